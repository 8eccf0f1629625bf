// Package masterdata holds the mutable source-of-truth records the
// billing core reads: customers, contacts, addresses, payment terms
// and products. These records are edited freely by the surrounding
// CRUD screens and are never deleted, only disabled; documents capture
// them through frozen snapshots at creation time (see internal/snapshot).
package masterdata

import (
	"time"

	"github.com/shopspring/decimal"
)

// Currency is a supported currency code, e.g. USD, EUR. It is a label
// only; the system performs no rate conversion.
type Currency struct {
	Code     string `json:"code"`
	Disabled bool   `json:"disabled"`
}

// CreditTerms describes a payment term offered to customers, e.g. NET 30.
type CreditTerms struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Days int    `json:"days"`
}

// Discount is a discount policy in percent, assigned to customers to
// provide the default rate when products are added to a draft.
type Discount struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Rate        decimal.Decimal `json:"rate"`
	Description string          `json:"description"`
	Disabled    bool            `json:"disabled"`
}

// Vat describes a VAT model usable by line items. Line items snapshot
// Rate and Message at creation; later edits here never reach
// finalized documents.
type Vat struct {
	ID       int64           `json:"id"`
	Name     string          `json:"name"`
	Rate     decimal.Decimal `json:"rate"`
	Message  string          `json:"message"`
	Disabled bool            `json:"disabled"`
}

// AddressLabel adds meaning to an address: main address, lawyer
// address, sales division, and so on.
type AddressLabel struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Address is a postal address owned by a customer.
type Address struct {
	ID           int64  `json:"id"`
	LabelID      int64  `json:"label_id"`
	CustomerID   int64  `json:"customer_id"`
	Postal       string `json:"postal"`
	Zip          string `json:"zip"`
	City         string `json:"city"`
	Country      string `json:"country"`
	State        string `json:"state"`
	CustomBillTo string `json:"custom_bill_to"`
	Disabled     bool   `json:"disabled"`
}

// Customer is the root business record. All billing data links to a
// customer directly or indirectly.
type Customer struct {
	ID                int64     `json:"id"`
	Name              string    `json:"name"`
	Description       string    `json:"description"`
	VatNumber         string    `json:"vat_number"`
	CurrencyCode      string    `json:"currency_code"`
	PaymentAccountID  int64     `json:"payment_account_id"`
	MainAddressID     *int64    `json:"main_address_id,omitempty"`
	BillingAddressID  *int64    `json:"billing_address_id,omitempty"`
	ShippingAddressID *int64    `json:"shipping_address_id,omitempty"`
	DiscountID        *int64    `json:"discount_id,omitempty"`
	CreditTermsID     int64     `json:"credit_terms_id"`
	ShippingInfo      string    `json:"shipping_info"`
	InvoiceInfo       string    `json:"invoice_info"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Contact is a person within a customer organisation.
type Contact struct {
	ID         int64  `json:"id"`
	CustomerID int64  `json:"customer_id"`
	FirstName  string `json:"first_name"`
	MiddleName string `json:"middle_name"`
	LastName   string `json:"last_name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Mobile     string `json:"mobile"`
	Fax        string `json:"fax"`
	Disabled   bool   `json:"disabled"`
}

// FullName joins the contact's name parts, skipping an empty middle name.
func (c Contact) FullName() string {
	if c.MiddleName == "" {
		return c.FirstName + " " + c.LastName
	}
	return c.FirstName + " " + c.MiddleName + " " + c.LastName
}

// PaymentAccount labels a destination for incoming money, e.g. a bank
// account or cash, so payments can be matched per source.
type PaymentAccount struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	CurrencyCode string `json:"currency_code"`
	Description  string `json:"description"`
	PaymentInfo  string `json:"payment_info"`
	Disabled     bool   `json:"disabled"`
}

// SellerInfo is the issuing company's own identity block printed on
// documents.
type SellerInfo struct {
	ID         int64  `json:"id"`
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

// Product is the template an item is sold from.
type Product struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	MainDescription string `json:"maintenance_description"`
	Disabled        bool   `json:"disabled"`
	Ordering        int    `json:"ordering"`
}

// ProductPrice binds a product to a price in one currency. A product
// can only be sold in currencies it has a price for.
type ProductPrice struct {
	ID               int64            `json:"id"`
	ProductID        int64            `json:"product_id"`
	CurrencyCode     string           `json:"currency_code"`
	Price            decimal.Decimal  `json:"price"`
	MaintenancePrice *decimal.Decimal `json:"maintenance_price,omitempty"`
}
