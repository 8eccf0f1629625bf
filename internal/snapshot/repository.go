package snapshot

import (
	"context"
	"errors"

	"github.com/arbor-billing/arbor/internal/platform/db"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// ErrNotFound indicates the frozen record does not exist.
var ErrNotFound = errors.New("snapshot: not found")

// PGRepository stores frozen records in dedicated tables, one per type.
type PGRepository struct {
	q db.Querier
}

// NewPGRepository constructs a repository over a pool or transaction.
func NewPGRepository(q db.Querier) *PGRepository {
	return &PGRepository{q: q}
}

func (r *PGRepository) InsertDiscount(ctx context.Context, f *FrozenDiscount) error {
	query := `
		INSERT INTO frozen_discounts (origin_id, name, rate, description, disabled)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	return r.q.QueryRow(ctx, query,
		f.OriginID, f.Name, f.Rate, f.Description, f.Disabled,
	).Scan(&f.ID)
}

func (r *PGRepository) InsertCreditTerms(ctx context.Context, f *FrozenCreditTerms) error {
	query := `
		INSERT INTO frozen_credit_terms (origin_id, name, days)
		VALUES ($1, $2, $3)
		RETURNING id`
	return r.q.QueryRow(ctx, query, f.OriginID, f.Name, f.Days).Scan(&f.ID)
}

func (r *PGRepository) InsertAddress(ctx context.Context, f *FrozenAddress) error {
	query := `
		INSERT INTO frozen_addresses (origin_id, label, postal, zip, city, country,
			state, custom_bill_to, customer_name, disabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`
	return r.q.QueryRow(ctx, query,
		f.OriginID, f.Label, f.Postal, f.Zip, f.City, f.Country,
		f.State, f.CustomBillTo, f.CustomerName, f.Disabled,
	).Scan(&f.ID)
}

func (r *PGRepository) UpdateAddress(ctx context.Context, f *FrozenAddress) error {
	query := `
		UPDATE frozen_addresses
		SET label = $2, postal = $3, zip = $4, city = $5, country = $6,
			state = $7, custom_bill_to = $8, customer_name = $9, disabled = $10
		WHERE id = $1`
	tag, err := r.q.Exec(ctx, query,
		f.ID, f.Label, f.Postal, f.Zip, f.City, f.Country,
		f.State, f.CustomBillTo, f.CustomerName, f.Disabled,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepository) InsertContact(ctx context.Context, f *FrozenContact) error {
	query := `
		INSERT INTO frozen_contacts (origin_id, customer_name, first_name, middle_name,
			last_name, email, phone, mobile, fax, disabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`
	return r.q.QueryRow(ctx, query,
		f.OriginID, f.CustomerName, f.FirstName, f.MiddleName,
		f.LastName, f.Email, f.Phone, f.Mobile, f.Fax, f.Disabled,
	).Scan(&f.ID)
}

func (r *PGRepository) UpdateContact(ctx context.Context, f *FrozenContact) error {
	query := `
		UPDATE frozen_contacts
		SET customer_name = $2, first_name = $3, middle_name = $4, last_name = $5,
			email = $6, phone = $7, mobile = $8, fax = $9, disabled = $10
		WHERE id = $1`
	tag, err := r.q.Exec(ctx, query,
		f.ID, f.CustomerName, f.FirstName, f.MiddleName, f.LastName,
		f.Email, f.Phone, f.Mobile, f.Fax, f.Disabled,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepository) InsertCustomer(ctx context.Context, f *FrozenCustomer) error {
	query := `
		INSERT INTO frozen_customers (origin_id, name, customer_number, description,
			vat_number, currency_code, main_address_id, billing_address_id,
			shipping_address_id, discount_id, credit_terms_id, shipping_info, invoice_info)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`
	return r.q.QueryRow(ctx, query,
		f.OriginID, f.Name, f.CustomerNumber, f.Description,
		f.VatNumber, f.CurrencyCode, f.MainAddressID, f.BillingAddressID,
		f.ShippingAddressID, f.DiscountID, f.CreditTermsID, f.ShippingInfo, f.InvoiceInfo,
	).Scan(&f.ID)
}

func (r *PGRepository) UpdateCustomer(ctx context.Context, f *FrozenCustomer) error {
	query := `
		UPDATE frozen_customers
		SET name = $2, customer_number = $3, description = $4, vat_number = $5,
			currency_code = $6, main_address_id = $7, billing_address_id = $8,
			shipping_address_id = $9, discount_id = $10, credit_terms_id = $11,
			shipping_info = $12, invoice_info = $13
		WHERE id = $1`
	tag, err := r.q.Exec(ctx, query,
		f.ID, f.Name, f.CustomerNumber, f.Description, f.VatNumber,
		f.CurrencyCode, f.MainAddressID, f.BillingAddressID,
		f.ShippingAddressID, f.DiscountID, f.CreditTermsID,
		f.ShippingInfo, f.InvoiceInfo,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepository) InsertPaymentAccount(ctx context.Context, f *FrozenPaymentAccount) error {
	query := `
		INSERT INTO frozen_payment_accounts (origin_id, name, currency_code, description, payment_info)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	return r.q.QueryRow(ctx, query,
		f.OriginID, f.Name, f.CurrencyCode, f.Description, f.PaymentInfo,
	).Scan(&f.ID)
}

func (r *PGRepository) InsertSeller(ctx context.Context, f *FrozenSeller) error {
	query := `
		INSERT INTO frozen_sellers (origin_id, name, street1, street2, zipcode, city,
			country, eu_vat, phone, company_reg, email, web)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`
	return r.q.QueryRow(ctx, query,
		f.OriginID, f.Name, f.Street1, f.Street2, f.Zipcode, f.City,
		f.Country, f.EUVat, f.Phone, f.CompanyReg, f.Email, f.Web,
	).Scan(&f.ID)
}

func (r *PGRepository) GetCustomer(ctx context.Context, id int64) (*FrozenCustomer, error) {
	query := `
		SELECT id, origin_id, name, customer_number, description, vat_number,
			currency_code, main_address_id, billing_address_id, shipping_address_id,
			discount_id, credit_terms_id, shipping_info, invoice_info
		FROM frozen_customers WHERE id = $1`

	var f FrozenCustomer
	var mainAddr, billAddr, shipAddr, discount pgtype.Int8
	err := r.q.QueryRow(ctx, query, id).Scan(
		&f.ID, &f.OriginID, &f.Name, &f.CustomerNumber, &f.Description, &f.VatNumber,
		&f.CurrencyCode, &mainAddr, &billAddr, &shipAddr,
		&discount, &f.CreditTermsID, &f.ShippingInfo, &f.InvoiceInfo,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	f.MainAddressID = int8Ptr(mainAddr)
	f.BillingAddressID = int8Ptr(billAddr)
	f.ShippingAddressID = int8Ptr(shipAddr)
	f.DiscountID = int8Ptr(discount)
	return &f, nil
}

func (r *PGRepository) GetAddress(ctx context.Context, id int64) (*FrozenAddress, error) {
	query := `
		SELECT id, origin_id, label, postal, zip, city, country, state,
			custom_bill_to, customer_name, disabled
		FROM frozen_addresses WHERE id = $1`

	var f FrozenAddress
	err := r.q.QueryRow(ctx, query, id).Scan(
		&f.ID, &f.OriginID, &f.Label, &f.Postal, &f.Zip, &f.City, &f.Country,
		&f.State, &f.CustomBillTo, &f.CustomerName, &f.Disabled,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &f, nil
}

func (r *PGRepository) GetContact(ctx context.Context, id int64) (*FrozenContact, error) {
	query := `
		SELECT id, origin_id, customer_name, first_name, middle_name, last_name,
			email, phone, mobile, fax, disabled
		FROM frozen_contacts WHERE id = $1`

	var f FrozenContact
	err := r.q.QueryRow(ctx, query, id).Scan(
		&f.ID, &f.OriginID, &f.CustomerName, &f.FirstName, &f.MiddleName, &f.LastName,
		&f.Email, &f.Phone, &f.Mobile, &f.Fax, &f.Disabled,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &f, nil
}

func (r *PGRepository) GetCreditTerms(ctx context.Context, id int64) (*FrozenCreditTerms, error) {
	var f FrozenCreditTerms
	err := r.q.QueryRow(ctx,
		`SELECT id, origin_id, name, days FROM frozen_credit_terms WHERE id = $1`, id).
		Scan(&f.ID, &f.OriginID, &f.Name, &f.Days)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &f, nil
}

func (r *PGRepository) GetDiscount(ctx context.Context, id int64) (*FrozenDiscount, error) {
	var f FrozenDiscount
	err := r.q.QueryRow(ctx,
		`SELECT id, origin_id, name, rate, description, disabled FROM frozen_discounts WHERE id = $1`, id).
		Scan(&f.ID, &f.OriginID, &f.Name, &f.Rate, &f.Description, &f.Disabled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &f, nil
}

func (r *PGRepository) GetPaymentAccount(ctx context.Context, id int64) (*FrozenPaymentAccount, error) {
	var f FrozenPaymentAccount
	err := r.q.QueryRow(ctx,
		`SELECT id, origin_id, name, currency_code, description, payment_info
		FROM frozen_payment_accounts WHERE id = $1`, id).
		Scan(&f.ID, &f.OriginID, &f.Name, &f.CurrencyCode, &f.Description, &f.PaymentInfo)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &f, nil
}

func (r *PGRepository) GetSeller(ctx context.Context, id int64) (*FrozenSeller, error) {
	query := `
		SELECT id, origin_id, name, street1, street2, zipcode, city, country,
			eu_vat, phone, company_reg, email, web
		FROM frozen_sellers WHERE id = $1`

	var f FrozenSeller
	err := r.q.QueryRow(ctx, query, id).Scan(
		&f.ID, &f.OriginID, &f.Name, &f.Street1, &f.Street2, &f.Zipcode, &f.City,
		&f.Country, &f.EUVat, &f.Phone, &f.CompanyReg, &f.Email, &f.Web,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &f, nil
}

func int8Ptr(v pgtype.Int8) *int64 {
	if !v.Valid {
		return nil
	}
	val := v.Int64
	return &val
}
