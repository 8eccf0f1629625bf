// Package billing holds billing documents, their line items and the
// arithmetic that turns rows into totals. A document moves forward only,
// draft to quote to invoice, and every money field on it is a cache
// recomputed from its rows inside the mutating transaction.
package billing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Stage is the lifecycle stage of a document.
type Stage string

const (
	StageDraft   Stage = "draft"
	StageQuote   Stage = "quote"
	StageInvoice Stage = "invoice"
)

// ReversalRole tags a record's side of a reversal pair. A record holds
// at most one role; the counterpart id points at the other side.
type ReversalRole string

const (
	ReversalNone ReversalRole = ""
	// ReversalReverses marks the correcting record.
	ReversalReverses ReversalRole = "reverses"
	// ReversalReversedBy marks the original that was corrected.
	ReversalReversedBy ReversalRole = "reversed_by"
)

// Document is a billing document: an aggregate of frozen records, line
// items and stored totals. QuoteNumber and InvoiceNumber are sequence
// ids assigned once at promotion and never reassigned.
type Document struct {
	ID            int64      `json:"id"`
	Stage         Stage      `json:"stage"`
	QuoteNumber   *int64     `json:"quote_number,omitempty"`
	InvoiceNumber *int64     `json:"invoice_number,omitempty"`
	QuoteDate     time.Time  `json:"quote_date"`
	QuoteExpiry   time.Time  `json:"quote_expiry"`
	InvoiceDate   *time.Time `json:"invoice_date,omitempty"`

	CustomerID        int64  `json:"customer_id"`
	EndCustomerID     *int64 `json:"end_customer_id,omitempty"`
	ContactID         int64  `json:"contact_id"`
	CurrencyCode      string `json:"currency_code"`
	CustomerAddressID *int64 `json:"customer_address_id,omitempty"`
	BillingAddressID  *int64 `json:"billing_address_id,omitempty"`
	ShippingAddressID *int64 `json:"shipping_address_id,omitempty"`
	CreditTermsID     int64  `json:"credit_terms_id"`
	PaymentAccountID  int64  `json:"payment_account_id"`
	SellerID          *int64 `json:"seller_id,omitempty"`
	SoldByLabel       string `json:"sold_by_label"`
	Disabled          bool   `json:"disabled"`

	ReversalRole          ReversalRole `json:"reversal_role,omitempty"`
	ReversalCounterpartID *int64       `json:"reversal_counterpart_id,omitempty"`

	// Stored aggregates, recomputed from rows and allocations.
	Subtotal        decimal.Decimal `json:"subtotal"`
	Vat             decimal.Decimal `json:"vat"`
	Total           decimal.Decimal `json:"total"`
	Allocated       decimal.Decimal `json:"allocated"`
	DueAmount       decimal.Decimal `json:"due_amount"`
	DueDate         *time.Time      `json:"due_date,omitempty"`
	SignificantID   int64           `json:"significant_id"`
	SignificantDate *time.Time      `json:"significant_date,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Identifier renders the stage-dependent display number.
func (d *Document) Identifier() string {
	switch d.Stage {
	case StageQuote:
		return fmt.Sprintf("QUO-%d", d.SignificantID)
	case StageInvoice:
		return fmt.Sprintf("INV-%d", d.SignificantID)
	default:
		return fmt.Sprintf("DRA-%d", d.SignificantID)
	}
}

// IsPaid reports whether the document is fully allocated. The boundary
// is exact zero; amounts are cent-quantized so equality is safe.
func (d *Document) IsPaid() bool {
	return d.DueAmount.IsZero()
}

// IsOverdue reports whether the due date has passed as of now.
func (d *Document) IsOverdue(now time.Time) bool {
	if d.DueDate == nil {
		return false
	}
	y1, m1, d1 := d.DueDate.Date()
	y2, m2, d2 := now.Date()
	due := time.Date(y1, m1, d1, 0, 0, 0, 0, time.UTC)
	today := time.Date(y2, m2, d2, 0, 0, 0, 0, time.UTC)
	return due.Before(today)
}

// IsReversed reports whether a correcting document points at this one.
func (d *Document) IsReversed() bool {
	return d.ReversalRole == ReversalReversedBy
}

// LicenseLine is a sold license on a document. VatRate and VatMessage
// are snapshots taken from the VAT master when the line is created.
type LicenseLine struct {
	ID          int64           `json:"id"`
	DocumentID  int64           `json:"document_id"`
	ProductID   int64           `json:"product_id"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Discount    decimal.Decimal `json:"discount"`
	VatRate     decimal.Decimal `json:"vat_rate"`
	VatMessage  string          `json:"vat_message"`
	Disabled    bool            `json:"disabled"`

	Subtotal decimal.Decimal `json:"subtotal"`
	Total    decimal.Decimal `json:"total"`
}

// Matches reports whether two license lines can share a printed row.
func (l *LicenseLine) Matches(other *LicenseLine) bool {
	return l.ProductID == other.ProductID &&
		l.Price.Equal(other.Price) &&
		l.VatRate.Equal(other.VatRate) &&
		l.Discount.Equal(other.Discount)
}

// MaintenanceLine covers a maintenance period for a license. The date
// range is inclusive on both ends and the quantity is the fraction of a
// 365-day year it spans.
type MaintenanceLine struct {
	ID            int64           `json:"id"`
	DocumentID    int64           `json:"document_id"`
	ProductID     int64           `json:"product_id"`
	LicenseLineID *int64          `json:"license_line_id,omitempty"`
	Back          bool            `json:"back"`
	Start         time.Time       `json:"start"`
	End           time.Time       `json:"end"`
	Price         decimal.Decimal `json:"price"`
	Discount      decimal.Decimal `json:"discount"`
	VatRate       decimal.Decimal `json:"vat_rate"`
	VatMessage    string          `json:"vat_message"`
	Description   string          `json:"description"`
	Disabled      bool            `json:"disabled"`

	ReversalRole          ReversalRole `json:"reversal_role,omitempty"`
	ReversalCounterpartID *int64       `json:"reversal_counterpart_id,omitempty"`

	Days               int             `json:"days"`
	Quantity           decimal.Decimal `json:"quantity"`
	Subtotal           decimal.Decimal `json:"subtotal"`
	SubtotalByQuantity decimal.Decimal `json:"subtotal_by_quantity"`
	Total              decimal.Decimal `json:"total"`
	TotalByQuantity    decimal.Decimal `json:"total_by_quantity"`
}

// Matches reports whether two maintenance lines can share a printed row.
// Maintenance additionally requires identical start and end dates.
func (m *MaintenanceLine) Matches(other *MaintenanceLine) bool {
	return m.ProductID == other.ProductID &&
		m.Price.Equal(other.Price) &&
		m.VatRate.Equal(other.VatRate) &&
		m.Discount.Equal(other.Discount) &&
		m.Start.Equal(other.Start) &&
		m.End.Equal(other.End)
}

// CustomAssociation links a custom line to a product for reporting and
// carries the part of the line's price attributed to that product.
type CustomAssociation struct {
	ID           int64           `json:"id"`
	CustomLineID int64           `json:"custom_line_id"`
	ProductID    int64           `json:"product_id"`
	Price        decimal.Decimal `json:"price"`
	Count        int             `json:"count"`
}

// CustomLine is a free-form sellable row, for fees, royalties and the
// like. It has no discount and no date range; its price is the sum of
// its product associations.
type CustomLine struct {
	ID         int64           `json:"id"`
	DocumentID int64           `json:"document_id"`
	Name       string          `json:"name"`
	VatRate    decimal.Decimal `json:"vat_rate"`
	VatMessage string          `json:"vat_message"`
	Disabled   bool            `json:"disabled"`

	Associations []CustomAssociation `json:"associations,omitempty"`
}

// Price sums the association amounts.
func (c *CustomLine) Price() decimal.Decimal {
	sum := decimal.Zero
	for _, a := range c.Associations {
		sum = sum.Add(a.Price)
	}
	return sum
}

// Identifier renders the display id of a custom line.
func (c *CustomLine) Identifier() string {
	return fmt.Sprintf("CIT-%d", c.ID)
}
