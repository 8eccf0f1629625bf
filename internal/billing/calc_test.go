package billing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestComputeLicense(t *testing.T) {
	cases := []struct {
		name     string
		price    string
		discount string
		vat      string
		subtotal string
		total    string
	}{
		{"no discount full vat", "100.00", "0", "25", "100.00", "125.00"},
		{"discount no vat", "99.99", "10", "0", "89.99", "89.99"},
		{"half-up rounding", "100.00", "33.33", "25", "66.67", "83.34"},
		{"negative price reversal", "-100.00", "0", "25", "-100.00", "-125.00"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l := LicenseLine{Price: dec(tc.price), Discount: dec(tc.discount), VatRate: dec(tc.vat)}
			ComputeLicense(&l)
			assert.Equal(t, tc.subtotal, l.Subtotal.StringFixed(2))
			assert.Equal(t, tc.total, l.Total.StringFixed(2))
		})
	}
}

func TestZeroDiscountPathsAgree(t *testing.T) {
	// The zero-discount shortcut must land on the same cent as the
	// full multiply-and-round formula.
	for _, price := range []string{"0.01", "99.99", "100.00", "1234.56"} {
		l := LicenseLine{Price: dec(price), Discount: decimal.Zero, VatRate: dec("25")}
		ComputeLicense(&l)

		viaFormula := dec(price).Mul(hundred.Sub(decimal.Zero)).Div(hundred).Round(2)
		assert.True(t, l.Subtotal.Equal(viaFormula), "price %s", price)
	}
}

func TestComputeMaintenance(t *testing.T) {
	m := MaintenanceLine{
		Start:    date(2020, time.January, 1),
		End:      date(2020, time.December, 31),
		Price:    dec("365.00"),
		Discount: decimal.Zero,
		VatRate:  dec("25"),
	}
	ComputeMaintenance(&m)

	assert.Equal(t, 366, m.Days, "leap year range is inclusive on both ends")
	assert.Equal(t, "1.0027", m.Quantity.StringFixed(4))
	assert.Equal(t, "365.00", m.Subtotal.StringFixed(2))
	assert.Equal(t, "365.99", m.SubtotalByQuantity.StringFixed(2))
	assert.Equal(t, "456.25", m.Total.StringFixed(2))
	assert.Equal(t, "457.49", m.TotalByQuantity.StringFixed(2))
}

func TestMaintenanceSingleDay(t *testing.T) {
	m := MaintenanceLine{
		Start: date(2021, time.March, 5),
		End:   date(2021, time.March, 5),
		Price: dec("365.00"),
	}
	ComputeMaintenance(&m)
	assert.Equal(t, 1, m.Days)
	assert.Equal(t, "0.0027", m.Quantity.StringFixed(4))
}

func TestLicenseMatches(t *testing.T) {
	a := LicenseLine{ProductID: 1, Price: dec("100.00"), VatRate: dec("25"), Discount: decimal.Zero}
	b := a
	assert.True(t, a.Matches(&b))

	b.Price = dec("100.01")
	assert.False(t, a.Matches(&b))

	b = a
	b.VatRate = dec("0")
	assert.False(t, a.Matches(&b))
}

func TestMaintenanceMatchesRequiresSameDates(t *testing.T) {
	a := MaintenanceLine{
		ProductID: 1, Price: dec("50.00"), VatRate: dec("25"),
		Start: date(2021, time.January, 1), End: date(2021, time.December, 31),
	}
	b := a
	assert.True(t, a.Matches(&b))

	b.End = date(2022, time.January, 1)
	assert.False(t, a.Matches(&b))
}

func TestSumRowsRoundsPerRow(t *testing.T) {
	// Two mergeable lines of 0.05 each: merged row VAT is
	// round(0.10 * 10%) = 0.01, not 2 * round(0.005).
	lines := []LicenseLine{
		{ProductID: 1, Price: dec("0.05"), VatRate: dec("10")},
		{ProductID: 1, Price: dec("0.05"), VatRate: dec("10")},
	}
	for i := range lines {
		ComputeLicense(&lines[i])
	}
	rows := LicenseRows(lines)
	require.Len(t, rows, 1)
	assert.Equal(t, 2, rows[0].Count)

	totals := SumRows(rows)
	assert.Equal(t, "0.10", totals.Subtotal.StringFixed(2))
	assert.Equal(t, "0.01", totals.Vat.StringFixed(2))
	assert.Equal(t, "0.11", totals.Total.StringFixed(2))
}

func TestSumRowsSkipsZeroVat(t *testing.T) {
	totals := SumRows([]ProductRow{
		{VatRate: decimal.Zero, RowTotal: dec("100.00")},
		{VatRate: dec("25"), RowTotal: dec("100.00")},
	})
	assert.Equal(t, "200.00", totals.Subtotal.StringFixed(2))
	assert.Equal(t, "25.00", totals.Vat.StringFixed(2))
}

func TestLicenseRowsSkipDisabled(t *testing.T) {
	lines := []LicenseLine{
		{ProductID: 1, Price: dec("10.00")},
		{ProductID: 1, Price: dec("10.00"), Disabled: true},
	}
	for i := range lines {
		ComputeLicense(&lines[i])
	}
	rows := LicenseRows(lines)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].Count)
}

func TestCustomTotalRoundingPaths(t *testing.T) {
	c := CustomLine{
		VatRate: dec("25"),
		Associations: []CustomAssociation{
			{Price: dec("10.01"), Count: 1},
			{Price: dec("0.02"), Count: 1},
		},
	}
	assert.Equal(t, "10.03", c.Price().StringFixed(2))

	unified := CustomTotal(&c, false)
	assert.Equal(t, "12.54", unified.StringFixed(2))

	legacy := CustomTotal(&c, true)
	assert.Equal(t, "12.5375", legacy.String())
}

func TestRecomputeDocumentDraft(t *testing.T) {
	created := date(2021, time.June, 1)
	d := Document{
		ID:        42,
		Stage:     StageDraft,
		QuoteDate: date(2021, time.June, 10),
		CreatedAt: created,
	}
	rows := []ProductRow{{VatRate: dec("25"), RowTotal: dec("100.00")}}
	RecomputeDocument(&d, rows, decimal.Zero, 30)

	assert.Equal(t, "100.00", d.Subtotal.StringFixed(2))
	assert.Equal(t, "25.00", d.Vat.StringFixed(2))
	assert.Equal(t, "125.00", d.Total.StringFixed(2))
	assert.Equal(t, "125.00", d.DueAmount.StringFixed(2))
	assert.Equal(t, int64(42), d.SignificantID)
	require.NotNil(t, d.SignificantDate)
	assert.Equal(t, created, *d.SignificantDate)
	require.NotNil(t, d.DueDate)
	assert.Equal(t, date(2021, time.July, 10), *d.DueDate)
	assert.Equal(t, "DRA-42", d.Identifier())
}

func TestRecomputeDocumentIdempotent(t *testing.T) {
	d := Document{ID: 1, Stage: StageDraft, QuoteDate: date(2021, time.June, 10), CreatedAt: date(2021, time.June, 1)}
	rows := []ProductRow{
		{VatRate: dec("25"), RowTotal: dec("66.67")},
		{VatRate: dec("12.5"), RowTotal: dec("10.01")},
	}
	RecomputeDocument(&d, rows, dec("50.00"), 14)
	first := d
	RecomputeDocument(&d, rows, dec("50.00"), 14)

	assert.True(t, first.Subtotal.Equal(d.Subtotal))
	assert.True(t, first.Vat.Equal(d.Vat))
	assert.True(t, first.Total.Equal(d.Total))
	assert.True(t, first.DueAmount.Equal(d.DueAmount))
	assert.Equal(t, first.SignificantID, d.SignificantID)
	assert.Equal(t, *first.DueDate, *d.DueDate)
}

func TestSignificantIDNeutralDefault(t *testing.T) {
	// A quote whose sequence id is missing resolves to zero rather
	// than faulting.
	d := Document{ID: 7, Stage: StageQuote, QuoteDate: date(2021, time.June, 10)}
	RecomputeDocument(&d, nil, decimal.Zero, 0)
	assert.Equal(t, int64(0), d.SignificantID)

	n := int64(55)
	d.QuoteNumber = &n
	RecomputeDocument(&d, nil, decimal.Zero, 0)
	assert.Equal(t, int64(55), d.SignificantID)
	assert.Equal(t, "QUO-55", d.Identifier())
}

func TestDueDatePrefersInvoiceDate(t *testing.T) {
	invoiced := date(2021, time.August, 1)
	n := int64(9)
	d := Document{
		Stage:         StageInvoice,
		QuoteDate:     date(2021, time.June, 10),
		InvoiceDate:   &invoiced,
		InvoiceNumber: &n,
	}
	RecomputeDocument(&d, nil, decimal.Zero, 30)
	require.NotNil(t, d.DueDate)
	assert.Equal(t, date(2021, time.August, 31), *d.DueDate)
	require.NotNil(t, d.SignificantDate)
	assert.Equal(t, invoiced, *d.SignificantDate)
}

func TestPaidBoundary(t *testing.T) {
	d := Document{DueAmount: decimal.Zero}
	assert.True(t, d.IsPaid())

	d.DueAmount = dec("0.01")
	assert.False(t, d.IsPaid())

	d.DueAmount = dec("-0.01")
	assert.False(t, d.IsPaid())
}

func TestOverdue(t *testing.T) {
	due := date(2021, time.June, 10)
	d := Document{DueDate: &due}

	assert.False(t, d.IsOverdue(date(2021, time.June, 10)))
	assert.True(t, d.IsOverdue(date(2021, time.June, 11)))

	d.DueDate = nil
	assert.False(t, d.IsOverdue(date(2021, time.June, 11)))
}
