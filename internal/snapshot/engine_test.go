package snapshot

import (
	"context"
	"testing"

	"github.com/arbor-billing/arbor/internal/masterdata"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMasters struct {
	customers map[int64]*masterdata.Customer
	contacts  map[int64]*masterdata.Contact
	addresses map[int64]*masterdata.Address
	labels    map[int64]*masterdata.AddressLabel
	terms     map[int64]*masterdata.CreditTerms
	discounts map[int64]*masterdata.Discount
	accounts  map[int64]*masterdata.PaymentAccount
	sellers   map[int64]*masterdata.SellerInfo
}

func newFakeMasters() *fakeMasters {
	return &fakeMasters{
		customers: map[int64]*masterdata.Customer{},
		contacts:  map[int64]*masterdata.Contact{},
		addresses: map[int64]*masterdata.Address{},
		labels:    map[int64]*masterdata.AddressLabel{},
		terms:     map[int64]*masterdata.CreditTerms{},
		discounts: map[int64]*masterdata.Discount{},
		accounts:  map[int64]*masterdata.PaymentAccount{},
		sellers:   map[int64]*masterdata.SellerInfo{},
	}
}

func (f *fakeMasters) GetCustomer(_ context.Context, id int64) (*masterdata.Customer, error) {
	if c, ok := f.customers[id]; ok {
		return c, nil
	}
	return nil, masterdata.ErrNotFound
}

func (f *fakeMasters) GetContact(_ context.Context, id int64) (*masterdata.Contact, error) {
	if c, ok := f.contacts[id]; ok {
		return c, nil
	}
	return nil, masterdata.ErrNotFound
}

func (f *fakeMasters) GetAddress(_ context.Context, id int64) (*masterdata.Address, error) {
	if a, ok := f.addresses[id]; ok {
		return a, nil
	}
	return nil, masterdata.ErrNotFound
}

func (f *fakeMasters) GetAddressLabel(_ context.Context, id int64) (*masterdata.AddressLabel, error) {
	if l, ok := f.labels[id]; ok {
		return l, nil
	}
	return nil, masterdata.ErrNotFound
}

func (f *fakeMasters) GetCreditTerms(_ context.Context, id int64) (*masterdata.CreditTerms, error) {
	if t, ok := f.terms[id]; ok {
		return t, nil
	}
	return nil, masterdata.ErrNotFound
}

func (f *fakeMasters) GetDiscount(_ context.Context, id int64) (*masterdata.Discount, error) {
	if d, ok := f.discounts[id]; ok {
		return d, nil
	}
	return nil, masterdata.ErrNotFound
}

func (f *fakeMasters) GetPaymentAccount(_ context.Context, id int64) (*masterdata.PaymentAccount, error) {
	if a, ok := f.accounts[id]; ok {
		return a, nil
	}
	return nil, masterdata.ErrNotFound
}

func (f *fakeMasters) GetSellerInfo(_ context.Context, id int64) (*masterdata.SellerInfo, error) {
	if s, ok := f.sellers[id]; ok {
		return s, nil
	}
	return nil, masterdata.ErrNotFound
}

type memRepo struct {
	nextID    int64
	discounts map[int64]FrozenDiscount
	terms     map[int64]FrozenCreditTerms
	addresses map[int64]FrozenAddress
	contacts  map[int64]FrozenContact
	customers map[int64]FrozenCustomer
	accounts  map[int64]FrozenPaymentAccount
	sellers   map[int64]FrozenSeller
}

func newMemRepo() *memRepo {
	return &memRepo{
		discounts: map[int64]FrozenDiscount{},
		terms:     map[int64]FrozenCreditTerms{},
		addresses: map[int64]FrozenAddress{},
		contacts:  map[int64]FrozenContact{},
		customers: map[int64]FrozenCustomer{},
		accounts:  map[int64]FrozenPaymentAccount{},
		sellers:   map[int64]FrozenSeller{},
	}
}

func (r *memRepo) next() int64 {
	r.nextID++
	return r.nextID
}

func (r *memRepo) InsertDiscount(_ context.Context, f *FrozenDiscount) error {
	f.ID = r.next()
	r.discounts[f.ID] = *f
	return nil
}

func (r *memRepo) InsertCreditTerms(_ context.Context, f *FrozenCreditTerms) error {
	f.ID = r.next()
	r.terms[f.ID] = *f
	return nil
}

func (r *memRepo) InsertAddress(_ context.Context, f *FrozenAddress) error {
	f.ID = r.next()
	r.addresses[f.ID] = *f
	return nil
}

func (r *memRepo) UpdateAddress(_ context.Context, f *FrozenAddress) error {
	r.addresses[f.ID] = *f
	return nil
}

func (r *memRepo) InsertContact(_ context.Context, f *FrozenContact) error {
	f.ID = r.next()
	r.contacts[f.ID] = *f
	return nil
}

func (r *memRepo) UpdateContact(_ context.Context, f *FrozenContact) error {
	r.contacts[f.ID] = *f
	return nil
}

func (r *memRepo) InsertCustomer(_ context.Context, f *FrozenCustomer) error {
	f.ID = r.next()
	r.customers[f.ID] = *f
	return nil
}

func (r *memRepo) UpdateCustomer(_ context.Context, f *FrozenCustomer) error {
	r.customers[f.ID] = *f
	return nil
}

func (r *memRepo) InsertPaymentAccount(_ context.Context, f *FrozenPaymentAccount) error {
	f.ID = r.next()
	r.accounts[f.ID] = *f
	return nil
}

func (r *memRepo) InsertSeller(_ context.Context, f *FrozenSeller) error {
	f.ID = r.next()
	r.sellers[f.ID] = *f
	return nil
}

func int64Ptr(v int64) *int64 { return &v }

func seedCustomer(m *fakeMasters) {
	m.terms[7] = &masterdata.CreditTerms{ID: 7, Name: "NET 30", Days: 30}
	m.discounts[3] = &masterdata.Discount{
		ID: 3, Name: "Partner", Rate: decimal.RequireFromString("12.5"),
	}
	m.labels[1] = &masterdata.AddressLabel{ID: 1, Name: "Headquarters"}
	m.addresses[40] = &masterdata.Address{
		ID: 40, LabelID: 1, CustomerID: 9,
		Postal: "Main Street 1", Zip: "8000", City: "Aarhus", Country: "DK",
	}
	m.customers[9] = &masterdata.Customer{
		ID: 9, Name: "Acme A/S", VatNumber: "DK12345678",
		CurrencyCode: "EUR", CreditTermsID: 7,
		DiscountID:    int64Ptr(3),
		MainAddressID: int64Ptr(40),
	}
}

func TestFreezeCustomer(t *testing.T) {
	masters := newFakeMasters()
	seedCustomer(masters)
	repo := newMemRepo()
	engine := NewEngine(masters, repo)

	frozen, err := engine.FreezeCustomer(context.Background(), 9)
	require.NoError(t, err)

	assert.Equal(t, int64(9), frozen.OriginID)
	assert.Equal(t, "Acme A/S", frozen.Name)
	assert.Equal(t, int64(9), frozen.CustomerNumber)
	assert.Equal(t, "EUR", frozen.CurrencyCode)
	assert.Equal(t, "CUS-9", frozen.Identifier())

	require.NotNil(t, frozen.DiscountID)
	disc := repo.discounts[*frozen.DiscountID]
	assert.Equal(t, "Partner", disc.Name)
	assert.True(t, disc.Rate.Equal(decimal.RequireFromString("12.5")))

	require.NotNil(t, frozen.MainAddressID)
	addr := repo.addresses[*frozen.MainAddressID]
	assert.Equal(t, "Headquarters", addr.Label)
	assert.Equal(t, "Acme A/S", addr.CustomerName)

	assert.Nil(t, frozen.BillingAddressID)
	assert.Nil(t, frozen.ShippingAddressID)

	terms := repo.terms[frozen.CreditTermsID]
	assert.Equal(t, 30, terms.Days)
}

func TestFreezeIsolatedFromMasterEdits(t *testing.T) {
	masters := newFakeMasters()
	seedCustomer(masters)
	repo := newMemRepo()
	engine := NewEngine(masters, repo)

	frozen, err := engine.FreezeCustomer(context.Background(), 9)
	require.NoError(t, err)

	masters.customers[9].Name = "Acme GmbH"
	masters.customers[9].CurrencyCode = "USD"
	masters.addresses[40].City = "Berlin"

	stored := repo.customers[frozen.ID]
	assert.Equal(t, "Acme A/S", stored.Name)
	assert.Equal(t, "EUR", stored.CurrencyCode)

	addr := repo.addresses[*frozen.MainAddressID]
	assert.Equal(t, "Aarhus", addr.City)
}

func TestRefreshFillsOnlyUnsetFields(t *testing.T) {
	masters := newFakeMasters()
	seedCustomer(masters)
	engine := NewEngine(masters, newMemRepo())

	f := &FrozenAddress{
		OriginID: 40,
		Label:    "Warehouse",
	}
	err := engine.RefreshAddress(context.Background(), f)
	require.NoError(t, err)

	assert.Equal(t, "Warehouse", f.Label, "set field must survive a refresh")
	assert.Equal(t, "Acme A/S", f.CustomerName)
}

func TestRefreshCustomerKeepsAbsentRelationsAbsent(t *testing.T) {
	masters := newFakeMasters()
	masters.terms[7] = &masterdata.CreditTerms{ID: 7, Name: "NET 14", Days: 14}
	masters.customers[5] = &masterdata.Customer{
		ID: 5, Name: "Solo ApS", CurrencyCode: "DKK", CreditTermsID: 7,
	}
	repo := newMemRepo()
	engine := NewEngine(masters, repo)

	frozen, err := engine.FreezeCustomer(context.Background(), 5)
	require.NoError(t, err)
	assert.Nil(t, frozen.DiscountID)
	assert.Nil(t, frozen.MainAddressID)

	err = engine.RefreshCustomer(context.Background(), frozen)
	require.NoError(t, err)
	assert.Nil(t, frozen.DiscountID)
	assert.Nil(t, frozen.MainAddressID)
	assert.Empty(t, repo.discounts)
}

func TestRefreshCustomerCreatesLateRelation(t *testing.T) {
	masters := newFakeMasters()
	masters.terms[7] = &masterdata.CreditTerms{ID: 7, Name: "NET 14", Days: 14}
	masters.customers[5] = &masterdata.Customer{
		ID: 5, Name: "Solo ApS", CurrencyCode: "DKK", CreditTermsID: 7,
	}
	repo := newMemRepo()
	engine := NewEngine(masters, repo)

	frozen, err := engine.FreezeCustomer(context.Background(), 5)
	require.NoError(t, err)
	require.Nil(t, frozen.DiscountID)

	masters.discounts[3] = &masterdata.Discount{ID: 3, Name: "Loyalty", Rate: decimal.NewFromInt(5)}
	masters.customers[5].DiscountID = int64Ptr(3)

	err = engine.SaveCustomer(context.Background(), frozen)
	require.NoError(t, err)
	require.NotNil(t, frozen.DiscountID)
	assert.Equal(t, "Loyalty", repo.discounts[*frozen.DiscountID].Name)
}

func TestFreezeContact(t *testing.T) {
	masters := newFakeMasters()
	seedCustomer(masters)
	masters.contacts[11] = &masterdata.Contact{
		ID: 11, CustomerID: 9,
		FirstName: "Jane", MiddleName: "Q", LastName: "Doe",
		Email: "jane@acme.example",
	}
	repo := newMemRepo()
	engine := NewEngine(masters, repo)

	frozen, err := engine.FreezeContact(context.Background(), 11)
	require.NoError(t, err)
	assert.Equal(t, "Acme A/S", frozen.CustomerName)
	assert.Equal(t, "Jane Q Doe", frozen.FullName())

	frozen.MiddleName = ""
	assert.Equal(t, "Jane Doe", frozen.FullName())
}
