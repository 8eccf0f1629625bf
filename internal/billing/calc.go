package billing

import (
	"time"

	"github.com/arbor-billing/arbor/internal/money"
	"github.com/shopspring/decimal"
)

var (
	hundred     = decimal.NewFromInt(100)
	daysPerYear = decimal.NewFromInt(365)
)

// lineSubtotal applies the discount and rounds to cents. A zero discount
// skips the multiply entirely so the two paths agree to the cent.
func lineSubtotal(price, discount decimal.Decimal) decimal.Decimal {
	if discount.IsZero() {
		return money.Round(price)
	}
	return money.Round(price.Mul(hundred.Sub(discount)).Div(hundred))
}

// withVat adds the VAT snapshot percentage and rounds to cents.
func withVat(amount, rate decimal.Decimal) decimal.Decimal {
	return money.Round(amount.Mul(hundred.Add(rate)).Div(hundred))
}

// ComputeLicense fills the stored subtotal and total of a license line.
func ComputeLicense(l *LicenseLine) {
	l.Subtotal = lineSubtotal(l.Price, l.Discount)
	l.Total = withVat(l.Subtotal, l.VatRate)
}

// MaintenanceDays counts the days in an inclusive date range. Both end
// days are billed, so a full calendar year is 365 or 366 days.
func MaintenanceDays(start, end time.Time) int {
	s := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	e := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	return int(e.Sub(s).Hours()/24) + 1
}

// ComputeMaintenance fills the derived fields of a maintenance line.
// Quantity is the covered fraction of a 365-day year at four decimals.
func ComputeMaintenance(m *MaintenanceLine) {
	m.Days = MaintenanceDays(m.Start, m.End)
	m.Quantity = money.RoundQuantity(decimal.NewFromInt(int64(m.Days)).Div(daysPerYear))

	m.Subtotal = lineSubtotal(m.Price, m.Discount)
	m.SubtotalByQuantity = money.Round(m.Subtotal.Mul(m.Quantity))

	m.Total = withVat(m.Subtotal, m.VatRate)
	m.TotalByQuantity = withVat(m.SubtotalByQuantity, m.VatRate)
}

// CustomTotal computes a custom line's gross amount. The historical
// path skipped the cent rounding; that behavior stays available behind
// the legacyRounding flag for parity with migrated data.
func CustomTotal(c *CustomLine, legacyRounding bool) decimal.Decimal {
	gross := c.Price().Mul(hundred.Add(c.VatRate)).Div(hundred)
	if legacyRounding {
		return gross
	}
	return money.Round(gross)
}

// ProductRow is a printed document row: one or more mergeable line
// items collapsed together. RowTotal carries the net amount the row
// contributes to the document subtotal.
type ProductRow struct {
	VatRate  decimal.Decimal `json:"vat_rate"`
	RowTotal decimal.Decimal `json:"row_total"`
	Count    int             `json:"count"`
}

// LicenseRows collapses license lines into printed rows. Disabled lines
// are skipped; mergeable lines sum their subtotals.
func LicenseRows(lines []LicenseLine) []ProductRow {
	var rows []ProductRow
	var heads []*LicenseLine
	for i := range lines {
		l := &lines[i]
		if l.Disabled {
			continue
		}
		merged := false
		for j, head := range heads {
			if head.Matches(l) {
				rows[j].RowTotal = rows[j].RowTotal.Add(l.Subtotal)
				rows[j].Count++
				merged = true
				break
			}
		}
		if !merged {
			heads = append(heads, l)
			rows = append(rows, ProductRow{VatRate: l.VatRate, RowTotal: l.Subtotal, Count: 1})
		}
	}
	return rows
}

// MaintenanceRows collapses maintenance lines into printed rows using
// the quantity-weighted subtotal.
func MaintenanceRows(lines []MaintenanceLine) []ProductRow {
	var rows []ProductRow
	var heads []*MaintenanceLine
	for i := range lines {
		m := &lines[i]
		if m.Disabled {
			continue
		}
		merged := false
		for j, head := range heads {
			if head.Matches(m) {
				rows[j].RowTotal = rows[j].RowTotal.Add(m.SubtotalByQuantity)
				rows[j].Count++
				merged = true
				break
			}
		}
		if !merged {
			heads = append(heads, m)
			rows = append(rows, ProductRow{VatRate: m.VatRate, RowTotal: m.SubtotalByQuantity, Count: 1})
		}
	}
	return rows
}

// CustomRows maps custom lines to printed rows, one row per line.
func CustomRows(lines []CustomLine) []ProductRow {
	var rows []ProductRow
	for i := range lines {
		c := &lines[i]
		if c.Disabled {
			continue
		}
		rows = append(rows, ProductRow{VatRate: c.VatRate, RowTotal: c.Price(), Count: 1})
	}
	return rows
}

// Totals are the aggregate money fields of a document.
type Totals struct {
	Subtotal decimal.Decimal
	Vat      decimal.Decimal
	Total    decimal.Decimal
}

// SumRows aggregates printed rows. VAT is rounded per row before
// summing so the document VAT agrees to the cent with the printed rows.
func SumRows(rows []ProductRow) Totals {
	subtotal := decimal.Zero
	vat := decimal.Zero
	for _, row := range rows {
		subtotal = subtotal.Add(row.RowTotal)
		if !row.VatRate.IsZero() {
			vat = vat.Add(money.Percent(row.RowTotal, row.VatRate))
		}
	}
	return Totals{Subtotal: subtotal, Vat: vat, Total: subtotal.Add(vat)}
}

// RecomputeDocument refreshes every stored aggregate on the document
// from its printed rows, the allocated sum and the credit terms. It is
// deterministic: same inputs, same stored fields.
func RecomputeDocument(d *Document, rows []ProductRow, allocated decimal.Decimal, creditDays int) {
	t := SumRows(rows)
	d.Subtotal = t.Subtotal
	d.Vat = t.Vat
	d.Total = t.Total
	d.Allocated = money.Round(allocated)
	d.DueAmount = d.Total.Sub(d.Allocated)

	due := dueDate(d, creditDays)
	d.DueDate = &due
	d.SignificantID = significantID(d)
	d.SignificantDate = significantDate(d)
}

// dueDate offsets the invoice date, or the quote date before invoicing,
// by the credit terms.
func dueDate(d *Document, creditDays int) time.Time {
	base := d.QuoteDate
	if d.InvoiceDate != nil {
		base = *d.InvoiceDate
	}
	return midnightUTC(base).AddDate(0, 0, creditDays)
}

// midnightUTC truncates an instant to its calendar date. Invoice and
// due dates persist as DATE columns, so a time of day would make the
// in-memory document disagree with its reloaded form.
func midnightUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// significantID resolves the stage-dependent display number. A stage
// whose sequence id has not been assigned yet resolves to zero rather
// than faulting; drafts legitimately lack one.
func significantID(d *Document) int64 {
	switch d.Stage {
	case StageQuote:
		if d.QuoteNumber != nil {
			return *d.QuoteNumber
		}
	case StageInvoice:
		if d.InvoiceNumber != nil {
			return *d.InvoiceNumber
		}
	default:
		return d.ID
	}
	return 0
}

// significantDate resolves the stage-dependent document date.
func significantDate(d *Document) *time.Time {
	switch d.Stage {
	case StageQuote:
		t := d.QuoteDate
		return &t
	case StageInvoice:
		return d.InvoiceDate
	default:
		t := d.CreatedAt
		return &t
	}
}
