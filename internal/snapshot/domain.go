// Package snapshot produces point-in-time copies of master records for
// billing documents. A frozen record belongs to exactly one document and
// keeps its values no matter how the originating master is edited later.
package snapshot

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// FrozenDiscount is a snapshot of a discount policy.
type FrozenDiscount struct {
	ID          int64           `json:"id"`
	OriginID    int64           `json:"origin_id"`
	Name        string          `json:"name"`
	Rate        decimal.Decimal `json:"rate"`
	Description string          `json:"description"`
	Disabled    bool            `json:"disabled"`
}

// FrozenCreditTerms is a snapshot of a payment-terms record.
type FrozenCreditTerms struct {
	ID       int64  `json:"id"`
	OriginID int64  `json:"origin_id"`
	Name     string `json:"name"`
	Days     int    `json:"days"`
}

// FrozenAddress is a snapshot of an address. Label and CustomerName are
// derived strings resolved from related masters at refresh time, not
// copied by reference.
type FrozenAddress struct {
	ID           int64  `json:"id"`
	OriginID     int64  `json:"origin_id"`
	Label        string `json:"label"`
	Postal       string `json:"postal"`
	Zip          string `json:"zip"`
	City         string `json:"city"`
	Country      string `json:"country"`
	State        string `json:"state"`
	CustomBillTo string `json:"custom_bill_to"`
	CustomerName string `json:"customer_name"`
	Disabled     bool   `json:"disabled"`
}

// FrozenContact is a snapshot of a contact person.
type FrozenContact struct {
	ID           int64  `json:"id"`
	OriginID     int64  `json:"origin_id"`
	CustomerName string `json:"customer_name"`
	FirstName    string `json:"first_name"`
	MiddleName   string `json:"middle_name"`
	LastName     string `json:"last_name"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	Mobile       string `json:"mobile"`
	Fax          string `json:"fax"`
	Disabled     bool   `json:"disabled"`
}

// FullName joins the name parts, skipping an empty middle name.
func (c *FrozenContact) FullName() string {
	res := c.FirstName
	if c.MiddleName != "" {
		res += " " + c.MiddleName
	}
	return res + " " + c.LastName
}

// FrozenPaymentAccount is a snapshot of a payment account.
type FrozenPaymentAccount struct {
	ID           int64  `json:"id"`
	OriginID     int64  `json:"origin_id"`
	Name         string `json:"name"`
	CurrencyCode string `json:"currency_code"`
	Description  string `json:"description"`
	PaymentInfo  string `json:"payment_info"`
}

// FrozenCustomer is a snapshot of a customer together with snapshots of
// its related records. Optional relations that were absent on the master
// at freeze time stay absent here.
type FrozenCustomer struct {
	ID                int64  `json:"id"`
	OriginID          int64  `json:"origin_id"`
	Name              string `json:"name"`
	CustomerNumber    int64  `json:"customer_number"`
	Description       string `json:"description"`
	VatNumber         string `json:"vat_number"`
	CurrencyCode      string `json:"currency_code"`
	MainAddressID     *int64 `json:"main_address_id,omitempty"`
	BillingAddressID  *int64 `json:"billing_address_id,omitempty"`
	ShippingAddressID *int64 `json:"shipping_address_id,omitempty"`
	DiscountID        *int64 `json:"discount_id,omitempty"`
	CreditTermsID     int64  `json:"credit_terms_id"`
	ShippingInfo      string `json:"shipping_info"`
	InvoiceInfo       string `json:"invoice_info"`
}

// Identifier renders the display id of the snapshotted customer.
func (c *FrozenCustomer) Identifier() string {
	return fmt.Sprintf("CUS-%d", c.CustomerNumber)
}

// FrozenSeller is a snapshot of the issuing company's own details.
type FrozenSeller struct {
	ID         int64  `json:"id"`
	OriginID   int64  `json:"origin_id"`
	Name       string `json:"name"`
	Street1    string `json:"street1"`
	Street2    string `json:"street2"`
	Zipcode    string `json:"zipcode"`
	City       string `json:"city"`
	Country    string `json:"country"`
	EUVat      string `json:"eu_vat"`
	Phone      string `json:"phone"`
	CompanyReg string `json:"company_reg"`
	Email      string `json:"email"`
	Web        string `json:"web"`
}
