// Package money is the single rounding authority for the billing core.
//
// Every monetary figure in the system must be quantized here. Line
// calculators and document aggregation both depend on cent-exact
// agreement, so rounding is never re-implemented at call sites.
package money

import "github.com/shopspring/decimal"

// moneyPlaces and quantityPlaces fix the precision of stored amounts.
// Quantities carry four places because maintenance periods are billed
// as fractional years.
const (
	moneyPlaces    = 2
	quantityPlaces = 4
)

// Round quantizes d to two decimal places, ties rounding away from
// zero (commercial half-up, not banker's rounding).
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(moneyPlaces)
}

// RoundQuantity quantizes a prorated quantity to four decimal places,
// same rounding mode as Round.
func RoundQuantity(d decimal.Decimal) decimal.Decimal {
	return d.Round(quantityPlaces)
}

// Percent returns d% of base, rounded to the cent.
func Percent(base, d decimal.Decimal) decimal.Decimal {
	return Round(base.Mul(d).Div(decimal.NewFromInt(100)))
}

// MustParse parses a decimal literal and panics on malformed input.
// Intended for constants and test fixtures only.
func MustParse(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic("money: parse " + s + ": " + err.Error())
	}
	return d
}
