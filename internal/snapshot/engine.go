package snapshot

import (
	"context"
	"fmt"

	"github.com/arbor-billing/arbor/internal/masterdata"
)

// MasterReader reads the master records a freeze copies from. All reads
// for one freeze should run on the same transaction so a concurrent edit
// of the master cannot produce a torn snapshot.
type MasterReader interface {
	GetCustomer(ctx context.Context, id int64) (*masterdata.Customer, error)
	GetContact(ctx context.Context, id int64) (*masterdata.Contact, error)
	GetAddress(ctx context.Context, id int64) (*masterdata.Address, error)
	GetAddressLabel(ctx context.Context, id int64) (*masterdata.AddressLabel, error)
	GetCreditTerms(ctx context.Context, id int64) (*masterdata.CreditTerms, error)
	GetDiscount(ctx context.Context, id int64) (*masterdata.Discount, error)
	GetPaymentAccount(ctx context.Context, id int64) (*masterdata.PaymentAccount, error)
	GetSellerInfo(ctx context.Context, id int64) (*masterdata.SellerInfo, error)
}

// Repository persists frozen records. Insert methods assign the ID.
type Repository interface {
	InsertDiscount(ctx context.Context, f *FrozenDiscount) error
	InsertCreditTerms(ctx context.Context, f *FrozenCreditTerms) error
	InsertAddress(ctx context.Context, f *FrozenAddress) error
	UpdateAddress(ctx context.Context, f *FrozenAddress) error
	InsertContact(ctx context.Context, f *FrozenContact) error
	UpdateContact(ctx context.Context, f *FrozenContact) error
	InsertCustomer(ctx context.Context, f *FrozenCustomer) error
	UpdateCustomer(ctx context.Context, f *FrozenCustomer) error
	InsertPaymentAccount(ctx context.Context, f *FrozenPaymentAccount) error
	InsertSeller(ctx context.Context, f *FrozenSeller) error
}

// Engine freezes master records into frozen records and refreshes the
// derived fields of existing ones. Each frozen type has an explicit
// field mapping: Freeze copies the declared direct fields, Refresh
// fills the derived-only fields, and Refresh never overwrites a field
// that already holds a value.
type Engine struct {
	masters MasterReader
	repo    Repository
}

// NewEngine constructs an engine.
func NewEngine(masters MasterReader, repo Repository) *Engine {
	return &Engine{masters: masters, repo: repo}
}

// FreezeDiscount snapshots a discount policy.
func (e *Engine) FreezeDiscount(ctx context.Context, originID int64) (*FrozenDiscount, error) {
	m, err := e.masters.GetDiscount(ctx, originID)
	if err != nil {
		return nil, fmt.Errorf("snapshot: load discount %d: %w", originID, err)
	}
	f := &FrozenDiscount{
		OriginID:    m.ID,
		Name:        m.Name,
		Rate:        m.Rate,
		Description: m.Description,
		Disabled:    m.Disabled,
	}
	if err := e.repo.InsertDiscount(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

// FreezeCreditTerms snapshots a payment-terms record.
func (e *Engine) FreezeCreditTerms(ctx context.Context, originID int64) (*FrozenCreditTerms, error) {
	m, err := e.masters.GetCreditTerms(ctx, originID)
	if err != nil {
		return nil, fmt.Errorf("snapshot: load credit terms %d: %w", originID, err)
	}
	f := &FrozenCreditTerms{
		OriginID: m.ID,
		Name:     m.Name,
		Days:     m.Days,
	}
	if err := e.repo.InsertCreditTerms(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

// FreezeAddress snapshots an address, resolving its derived label and
// owning-customer strings before the first save.
func (e *Engine) FreezeAddress(ctx context.Context, originID int64) (*FrozenAddress, error) {
	m, err := e.masters.GetAddress(ctx, originID)
	if err != nil {
		return nil, fmt.Errorf("snapshot: load address %d: %w", originID, err)
	}
	f := &FrozenAddress{
		OriginID:     m.ID,
		Postal:       m.Postal,
		Zip:          m.Zip,
		City:         m.City,
		Country:      m.Country,
		State:        m.State,
		CustomBillTo: m.CustomBillTo,
		Disabled:     m.Disabled,
	}
	if err := e.RefreshAddress(ctx, f); err != nil {
		return nil, err
	}
	if err := e.repo.InsertAddress(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

// RefreshAddress fills the address fields that are resolved from related
// masters. Fields already holding a value are left alone.
func (e *Engine) RefreshAddress(ctx context.Context, f *FrozenAddress) error {
	if f.Label != "" && f.CustomerName != "" {
		return nil
	}
	m, err := e.masters.GetAddress(ctx, f.OriginID)
	if err != nil {
		return fmt.Errorf("snapshot: refresh address %d: %w", f.OriginID, err)
	}
	if f.Label == "" {
		label, err := e.masters.GetAddressLabel(ctx, m.LabelID)
		if err != nil {
			return fmt.Errorf("snapshot: refresh address %d: %w", f.OriginID, err)
		}
		f.Label = label.Name
	}
	if f.CustomerName == "" {
		owner, err := e.masters.GetCustomer(ctx, m.CustomerID)
		if err != nil {
			return fmt.Errorf("snapshot: refresh address %d: %w", f.OriginID, err)
		}
		f.CustomerName = owner.Name
	}
	return nil
}

// FreezeContact snapshots a contact person.
func (e *Engine) FreezeContact(ctx context.Context, originID int64) (*FrozenContact, error) {
	m, err := e.masters.GetContact(ctx, originID)
	if err != nil {
		return nil, fmt.Errorf("snapshot: load contact %d: %w", originID, err)
	}
	f := &FrozenContact{
		OriginID:   m.ID,
		FirstName:  m.FirstName,
		MiddleName: m.MiddleName,
		LastName:   m.LastName,
		Email:      m.Email,
		Phone:      m.Phone,
		Mobile:     m.Mobile,
		Fax:        m.Fax,
		Disabled:   m.Disabled,
	}
	if err := e.RefreshContact(ctx, f); err != nil {
		return nil, err
	}
	if err := e.repo.InsertContact(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

// RefreshContact resolves the owning-customer name when unset.
func (e *Engine) RefreshContact(ctx context.Context, f *FrozenContact) error {
	if f.CustomerName != "" {
		return nil
	}
	m, err := e.masters.GetContact(ctx, f.OriginID)
	if err != nil {
		return fmt.Errorf("snapshot: refresh contact %d: %w", f.OriginID, err)
	}
	owner, err := e.masters.GetCustomer(ctx, m.CustomerID)
	if err != nil {
		return fmt.Errorf("snapshot: refresh contact %d: %w", f.OriginID, err)
	}
	f.CustomerName = owner.Name
	return nil
}

// FreezePaymentAccount snapshots a payment account.
func (e *Engine) FreezePaymentAccount(ctx context.Context, originID int64) (*FrozenPaymentAccount, error) {
	m, err := e.masters.GetPaymentAccount(ctx, originID)
	if err != nil {
		return nil, fmt.Errorf("snapshot: load payment account %d: %w", originID, err)
	}
	f := &FrozenPaymentAccount{
		OriginID:     m.ID,
		Name:         m.Name,
		CurrencyCode: m.CurrencyCode,
		Description:  m.Description,
		PaymentInfo:  m.PaymentInfo,
	}
	if err := e.repo.InsertPaymentAccount(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

// FreezeSeller snapshots the issuing company's details.
func (e *Engine) FreezeSeller(ctx context.Context, originID int64) (*FrozenSeller, error) {
	m, err := e.masters.GetSellerInfo(ctx, originID)
	if err != nil {
		return nil, fmt.Errorf("snapshot: load seller info %d: %w", originID, err)
	}
	f := &FrozenSeller{
		OriginID:   m.ID,
		Name:       m.Name,
		Street1:    m.Street1,
		Street2:    m.Street2,
		Zipcode:    m.Zipcode,
		City:       m.City,
		Country:    m.Country,
		EUVat:      m.EUVat,
		Phone:      m.Phone,
		CompanyReg: m.CompanyReg,
		Email:      m.Email,
		Web:        m.Web,
	}
	if err := e.repo.InsertSeller(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

// FreezeCustomer snapshots a customer. The customer's credit terms are
// frozen with it; the discount policy and the three addresses are frozen
// lazily by RefreshCustomer, and stay absent when the master has none.
func (e *Engine) FreezeCustomer(ctx context.Context, originID int64) (*FrozenCustomer, error) {
	m, err := e.masters.GetCustomer(ctx, originID)
	if err != nil {
		return nil, fmt.Errorf("snapshot: load customer %d: %w", originID, err)
	}
	terms, err := e.FreezeCreditTerms(ctx, m.CreditTermsID)
	if err != nil {
		return nil, err
	}
	f := &FrozenCustomer{
		OriginID:      m.ID,
		Name:          m.Name,
		Description:   m.Description,
		VatNumber:     m.VatNumber,
		CreditTermsID: terms.ID,
		ShippingInfo:  m.ShippingInfo,
		InvoiceInfo:   m.InvoiceInfo,
	}
	if err := e.RefreshCustomer(ctx, f); err != nil {
		return nil, err
	}
	if err := e.repo.InsertCustomer(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

// RefreshCustomer fills the customer snapshot's derived fields: the
// permanent customer number, the currency code, and the nested discount
// and address snapshots. Nested snapshots are only created when the
// field is still unset and the master actually has the relation.
func (e *Engine) RefreshCustomer(ctx context.Context, f *FrozenCustomer) error {
	m, err := e.masters.GetCustomer(ctx, f.OriginID)
	if err != nil {
		return fmt.Errorf("snapshot: refresh customer %d: %w", f.OriginID, err)
	}
	if f.CustomerNumber == 0 {
		f.CustomerNumber = m.ID
	}
	if f.CurrencyCode == "" {
		f.CurrencyCode = m.CurrencyCode
	}
	if f.DiscountID == nil && m.DiscountID != nil {
		d, err := e.FreezeDiscount(ctx, *m.DiscountID)
		if err != nil {
			return err
		}
		f.DiscountID = &d.ID
	}
	if f.MainAddressID == nil && m.MainAddressID != nil {
		a, err := e.FreezeAddress(ctx, *m.MainAddressID)
		if err != nil {
			return err
		}
		f.MainAddressID = &a.ID
	}
	if f.BillingAddressID == nil && m.BillingAddressID != nil {
		a, err := e.FreezeAddress(ctx, *m.BillingAddressID)
		if err != nil {
			return err
		}
		f.BillingAddressID = &a.ID
	}
	if f.ShippingAddressID == nil && m.ShippingAddressID != nil {
		a, err := e.FreezeAddress(ctx, *m.ShippingAddressID)
		if err != nil {
			return err
		}
		f.ShippingAddressID = &a.ID
	}
	return nil
}

// SaveCustomer refreshes the derived fields and writes the snapshot back.
func (e *Engine) SaveCustomer(ctx context.Context, f *FrozenCustomer) error {
	if err := e.RefreshCustomer(ctx, f); err != nil {
		return err
	}
	return e.repo.UpdateCustomer(ctx, f)
}

// SaveAddress refreshes the derived fields and writes the snapshot back.
func (e *Engine) SaveAddress(ctx context.Context, f *FrozenAddress) error {
	if err := e.RefreshAddress(ctx, f); err != nil {
		return err
	}
	return e.repo.UpdateAddress(ctx, f)
}

// SaveContact refreshes the derived fields and writes the snapshot back.
func (e *Engine) SaveContact(ctx context.Context, f *FrozenContact) error {
	if err := e.RefreshContact(ctx, f); err != nil {
		return err
	}
	return e.repo.UpdateContact(ctx, f)
}
