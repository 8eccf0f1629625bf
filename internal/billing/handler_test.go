package billing

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbor-billing/arbor/internal/masterdata"
	"github.com/arbor-billing/arbor/internal/snapshot"
)

// mockFreezer plays both the transaction boundary and the freeze scope.
// WithTx snapshots the mock state before running fn and restores it on
// error, matching a rolled-back transaction.
type mockFreezer struct {
	repo   *mockRepository
	nextID int64

	frozenCustomers []int64
	frozenContacts  []int64
	frozenAccounts  []int64

	missingAccounts bool
}

func (f *mockFreezer) WithTx(_ context.Context, fn func(scope FreezeScope, repo RepositoryPort) error) error {
	customers := len(f.frozenCustomers)
	contacts := len(f.frozenContacts)
	accounts := len(f.frozenAccounts)
	docs := map[int64]*Document{}
	for id, d := range f.repo.documents {
		docs[id] = d
	}

	if err := fn(f, f.repo); err != nil {
		f.frozenCustomers = f.frozenCustomers[:customers]
		f.frozenContacts = f.frozenContacts[:contacts]
		f.frozenAccounts = f.frozenAccounts[:accounts]
		f.repo.documents = docs
		return err
	}
	return nil
}

func (f *mockFreezer) FreezeCustomer(_ context.Context, originID int64) (*snapshot.FrozenCustomer, error) {
	f.nextID++
	f.frozenCustomers = append(f.frozenCustomers, f.nextID)
	return &snapshot.FrozenCustomer{
		ID:            f.nextID,
		OriginID:      originID,
		CurrencyCode:  "EUR",
		CreditTermsID: 1,
	}, nil
}

func (f *mockFreezer) FreezeContact(_ context.Context, originID int64) (*snapshot.FrozenContact, error) {
	f.nextID++
	f.frozenContacts = append(f.frozenContacts, f.nextID)
	return &snapshot.FrozenContact{ID: f.nextID, OriginID: originID}, nil
}

func (f *mockFreezer) FreezeAddress(_ context.Context, originID int64) (*snapshot.FrozenAddress, error) {
	f.nextID++
	return &snapshot.FrozenAddress{ID: f.nextID, OriginID: originID}, nil
}

func (f *mockFreezer) FreezePaymentAccount(_ context.Context, originID int64) (*snapshot.FrozenPaymentAccount, error) {
	if f.missingAccounts {
		return nil, masterdata.ErrNotFound
	}
	f.nextID++
	f.frozenAccounts = append(f.frozenAccounts, f.nextID)
	return &snapshot.FrozenPaymentAccount{ID: f.nextID, OriginID: originID}, nil
}

func (f *mockFreezer) FreezeSeller(_ context.Context, originID int64) (*snapshot.FrozenSeller, error) {
	f.nextID++
	return &snapshot.FrozenSeller{ID: f.nextID, OriginID: originID}, nil
}

type mockVats struct{}

func (mockVats) GetVat(_ context.Context, id int64) (*masterdata.Vat, error) {
	return nil, masterdata.ErrNotFound
}

func newTestHandler(repo *mockRepository, freezer *mockFreezer) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(logger, newTestService(repo), freezer, mockVats{})
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

const createDocumentBody = `{
	"customer_id": 10,
	"contact_id": 11,
	"payment_account_id": 12,
	"quote_date": "2021-06-10",
	"quote_expiry": "2021-07-10"
}`

func TestCreateDocumentFreezesAndCreates(t *testing.T) {
	repo := newMockRepository()
	freezer := &mockFreezer{repo: repo}
	router := newTestHandler(repo, freezer)

	req := httptest.NewRequest(http.MethodPost, "/documents", strings.NewReader(createDocumentBody))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, repo.documents, 1)
	require.Len(t, freezer.frozenCustomers, 1)
	for _, d := range repo.documents {
		assert.Equal(t, freezer.frozenCustomers[0], d.CustomerID, "draft references the frozen customer, not the master")
		assert.Equal(t, "EUR", d.CurrencyCode)
	}
}

func TestCreateDocumentRollsBackFrozenRecords(t *testing.T) {
	repo := newMockRepository()
	freezer := &mockFreezer{repo: repo, missingAccounts: true}
	router := newTestHandler(repo, freezer)

	req := httptest.NewRequest(http.MethodPost, "/documents", strings.NewReader(createDocumentBody))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// The payment-account freeze fails after the customer and contact
	// were already frozen; the shared transaction must discard them.
	require.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
	assert.Empty(t, freezer.frozenCustomers)
	assert.Empty(t, freezer.frozenContacts)
	assert.Empty(t, repo.documents)
}
