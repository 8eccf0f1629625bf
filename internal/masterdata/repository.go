package masterdata

import (
	"context"
	"errors"

	"github.com/arbor-billing/arbor/internal/platform/db"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// ErrNotFound indicates the requested master record does not exist.
var ErrNotFound = errors.New("masterdata: not found")

// Repository provides read access to master records. Mutation belongs
// to the surrounding CRUD layer; the billing core only ever reads.
// It accepts a Querier so callers can scope reads to a transaction,
// which keeps a freeze consistent even while masters are being edited.
type Repository struct {
	q db.Querier
}

// NewRepository constructs a repository over a pool or transaction.
func NewRepository(q db.Querier) *Repository {
	return &Repository{q: q}
}

func (r *Repository) GetCustomer(ctx context.Context, id int64) (*Customer, error) {
	query := `
		SELECT id, name, description, vat_number, currency_code, payment_account_id,
			main_address_id, billing_address_id, shipping_address_id,
			discount_id, credit_terms_id, shipping_info, invoice_info,
			created_at, updated_at
		FROM customers WHERE id = $1`

	var c Customer
	var mainAddr, billAddr, shipAddr, discount pgtype.Int8
	err := r.q.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.Name, &c.Description, &c.VatNumber, &c.CurrencyCode, &c.PaymentAccountID,
		&mainAddr, &billAddr, &shipAddr,
		&discount, &c.CreditTermsID, &c.ShippingInfo, &c.InvoiceInfo,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	c.MainAddressID = int8Ptr(mainAddr)
	c.BillingAddressID = int8Ptr(billAddr)
	c.ShippingAddressID = int8Ptr(shipAddr)
	c.DiscountID = int8Ptr(discount)
	return &c, nil
}

func (r *Repository) GetContact(ctx context.Context, id int64) (*Contact, error) {
	query := `
		SELECT id, customer_id, first_name, middle_name, last_name,
			email, phone, mobile, fax, disabled
		FROM contacts WHERE id = $1`

	var c Contact
	err := r.q.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.CustomerID, &c.FirstName, &c.MiddleName, &c.LastName,
		&c.Email, &c.Phone, &c.Mobile, &c.Fax, &c.Disabled,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *Repository) GetAddress(ctx context.Context, id int64) (*Address, error) {
	query := `
		SELECT id, label_id, customer_id, postal, zip, city, country, state,
			custom_bill_to, disabled
		FROM addresses WHERE id = $1`

	var a Address
	err := r.q.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.LabelID, &a.CustomerID, &a.Postal, &a.Zip, &a.City, &a.Country,
		&a.State, &a.CustomBillTo, &a.Disabled,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (r *Repository) GetAddressLabel(ctx context.Context, id int64) (*AddressLabel, error) {
	var l AddressLabel
	err := r.q.QueryRow(ctx, `SELECT id, name FROM address_labels WHERE id = $1`, id).
		Scan(&l.ID, &l.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &l, nil
}

func (r *Repository) GetCreditTerms(ctx context.Context, id int64) (*CreditTerms, error) {
	var t CreditTerms
	err := r.q.QueryRow(ctx, `SELECT id, name, days FROM credit_terms WHERE id = $1`, id).
		Scan(&t.ID, &t.Name, &t.Days)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *Repository) GetDiscount(ctx context.Context, id int64) (*Discount, error) {
	var d Discount
	err := r.q.QueryRow(ctx,
		`SELECT id, name, rate, description, disabled FROM discounts WHERE id = $1`, id).
		Scan(&d.ID, &d.Name, &d.Rate, &d.Description, &d.Disabled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (r *Repository) GetVat(ctx context.Context, id int64) (*Vat, error) {
	var v Vat
	err := r.q.QueryRow(ctx,
		`SELECT id, name, rate, message, disabled FROM vats WHERE id = $1`, id).
		Scan(&v.ID, &v.Name, &v.Rate, &v.Message, &v.Disabled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

func (r *Repository) GetPaymentAccount(ctx context.Context, id int64) (*PaymentAccount, error) {
	query := `
		SELECT id, name, currency_code, description, payment_info, disabled
		FROM payment_accounts WHERE id = $1`

	var p PaymentAccount
	err := r.q.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.Name, &p.CurrencyCode, &p.Description, &p.PaymentInfo, &p.Disabled,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *Repository) GetSellerInfo(ctx context.Context, id int64) (*SellerInfo, error) {
	query := `
		SELECT id, name, street1, street2, zipcode, city, country, eu_vat,
			phone, company_reg, email, web
		FROM seller_info WHERE id = $1`

	var s SellerInfo
	err := r.q.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.Name, &s.Street1, &s.Street2, &s.Zipcode, &s.City, &s.Country,
		&s.EUVat, &s.Phone, &s.CompanyReg, &s.Email, &s.Web,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *Repository) GetProduct(ctx context.Context, id int64) (*Product, error) {
	query := `
		SELECT id, name, description, maintenance_description, disabled, ordering
		FROM products WHERE id = $1`

	var p Product
	err := r.q.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.Name, &p.Description, &p.MainDescription, &p.Disabled, &p.Ordering,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// GetProductPrice returns the latest price of a product in a currency.
func (r *Repository) GetProductPrice(ctx context.Context, productID int64, currency string) (*ProductPrice, error) {
	query := `
		SELECT id, product_id, currency_code, price, maintenance_price
		FROM product_prices
		WHERE product_id = $1 AND currency_code = $2
		ORDER BY id DESC LIMIT 1`

	var p ProductPrice
	err := r.q.QueryRow(ctx, query, productID, currency).Scan(
		&p.ID, &p.ProductID, &p.CurrencyCode, &p.Price, &p.MaintenancePrice,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func int8Ptr(v pgtype.Int8) *int64 {
	if !v.Valid {
		return nil
	}
	val := v.Int64
	return &val
}
