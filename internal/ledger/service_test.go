package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/arbor-billing/arbor/internal/billing"
	"github.com/arbor-billing/arbor/internal/money"
)

func dec(s string) decimal.Decimal {
	return money.MustParse(s)
}

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

var testClock = func() time.Time {
	return time.Date(2021, 6, 15, 12, 0, 0, 0, time.UTC)
}

// mockDocuments backs the billing port the ledger refreshes document
// caches through. Allocated sums come from the ledger-side allocations
// so both stores stay in step, as they would over one transaction.
type mockDocuments struct {
	ledger    *mockRepository
	documents map[int64]*billing.Document
	licenses  map[int64][]billing.LicenseLine
	termsDays map[int64]int
}

func (m *mockDocuments) WithTx(ctx context.Context, fn func(billing.RepositoryPort) error) error {
	return fn(m)
}

func (m *mockDocuments) NextQuoteNumber(ctx context.Context) (int64, error)   { return 0, nil }
func (m *mockDocuments) NextInvoiceNumber(ctx context.Context) (int64, error) { return 0, nil }

func (m *mockDocuments) InsertDocument(ctx context.Context, d *billing.Document) error {
	m.documents[d.ID] = cloneDocument(d)
	return nil
}

func (m *mockDocuments) UpdateDocument(ctx context.Context, d *billing.Document) error {
	if _, ok := m.documents[d.ID]; !ok {
		return billing.ErrNotFound
	}
	m.documents[d.ID] = cloneDocument(d)
	return nil
}

func (m *mockDocuments) GetDocument(ctx context.Context, id int64) (*billing.Document, error) {
	d, ok := m.documents[id]
	if !ok {
		return nil, billing.ErrNotFound
	}
	return cloneDocument(d), nil
}

func (m *mockDocuments) ListDocuments(ctx context.Context, filter billing.DocumentFilter) ([]billing.Document, error) {
	return nil, nil
}

func (m *mockDocuments) DeleteDraft(ctx context.Context, id int64) error { return nil }

func (m *mockDocuments) InsertLicenseLine(ctx context.Context, l *billing.LicenseLine) error {
	m.licenses[l.DocumentID] = append(m.licenses[l.DocumentID], *l)
	return nil
}

func (m *mockDocuments) ListLicenseLines(ctx context.Context, documentID int64) ([]billing.LicenseLine, error) {
	return m.licenses[documentID], nil
}

func (m *mockDocuments) InsertMaintenanceLine(ctx context.Context, l *billing.MaintenanceLine) error {
	return nil
}

func (m *mockDocuments) ListMaintenanceLines(ctx context.Context, documentID int64) ([]billing.MaintenanceLine, error) {
	return nil, nil
}

func (m *mockDocuments) InsertCustomLine(ctx context.Context, c *billing.CustomLine) error {
	return nil
}

func (m *mockDocuments) ListCustomLines(ctx context.Context, documentID int64) ([]billing.CustomLine, error) {
	return nil, nil
}

func (m *mockDocuments) AllocatedSum(ctx context.Context, documentID int64) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, a := range m.ledger.allocations {
		if a.DocumentID == documentID {
			sum = sum.Add(a.Amount)
		}
	}
	return sum, nil
}

func (m *mockDocuments) CreditTermsDays(ctx context.Context, frozenTermsID int64) (int, error) {
	return m.termsDays[frozenTermsID], nil
}

func cloneDocument(d *billing.Document) *billing.Document {
	c := *d
	return &c
}

type mockRepository struct {
	payments    map[int64]*Payment
	allocations map[int64]*Allocation
	lastID      int64
	docs        *mockDocuments
}

func newMockRepository() *mockRepository {
	m := &mockRepository{
		payments:    make(map[int64]*Payment),
		allocations: make(map[int64]*Allocation),
	}
	m.docs = &mockDocuments{
		ledger:    m,
		documents: make(map[int64]*billing.Document),
		licenses:  make(map[int64][]billing.LicenseLine),
		termsDays: map[int64]int{1: 30},
	}
	return m
}

func (m *mockRepository) next() int64 {
	m.lastID++
	return m.lastID
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(RepositoryPort) error) error {
	return fn(m)
}

func (m *mockRepository) Documents() billing.RepositoryPort { return m.docs }

func (m *mockRepository) InsertPayment(ctx context.Context, p *Payment) error {
	p.ID = m.next()
	m.payments[p.ID] = clonePayment(p)
	return nil
}

func (m *mockRepository) UpdatePayment(ctx context.Context, p *Payment) error {
	if _, ok := m.payments[p.ID]; !ok {
		return ErrNotFound
	}
	m.payments[p.ID] = clonePayment(p)
	return nil
}

func (m *mockRepository) GetPayment(ctx context.Context, id int64) (*Payment, error) {
	p, ok := m.payments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clonePayment(p), nil
}

func (m *mockRepository) ListPayments(ctx context.Context, filter PaymentFilter) ([]Payment, error) {
	var out []Payment
	for _, p := range m.payments {
		if filter.CustomerID != 0 && p.CustomerID != filter.CustomerID {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (m *mockRepository) InsertAllocation(ctx context.Context, a *Allocation) error {
	a.ID = m.next()
	m.allocations[a.ID] = cloneAllocation(a)
	return nil
}

func (m *mockRepository) UpdateAllocation(ctx context.Context, a *Allocation) error {
	if _, ok := m.allocations[a.ID]; !ok {
		return ErrNotFound
	}
	m.allocations[a.ID] = cloneAllocation(a)
	return nil
}

func (m *mockRepository) GetAllocation(ctx context.Context, id int64) (*Allocation, error) {
	a, ok := m.allocations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneAllocation(a), nil
}

func (m *mockRepository) ListAllocationsByPayment(ctx context.Context, paymentID int64) ([]Allocation, error) {
	var out []Allocation
	for _, a := range m.allocations {
		if a.PaymentID == paymentID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *mockRepository) AllocationSum(ctx context.Context, paymentID int64) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, a := range m.allocations {
		if a.PaymentID == paymentID {
			sum = sum.Add(a.Amount)
		}
	}
	return sum, nil
}

func clonePayment(p *Payment) *Payment {
	c := *p
	return &c
}

func cloneAllocation(a *Allocation) *Allocation {
	c := *a
	return &c
}

// seedInvoice stores an invoice worth 125.00 (100.00 plus 25% VAT) and
// returns its id.
func seedInvoice(t *testing.T, repo *mockRepository) int64 {
	t.Helper()
	invoiceDate := date("2021-06-12")
	seq := int64(7)
	doc := &billing.Document{
		ID:            1,
		Stage:         billing.StageInvoice,
		InvoiceNumber: &seq,
		QuoteDate:     date("2021-06-10"),
		QuoteExpiry:   date("2021-07-10"),
		InvoiceDate:   &invoiceDate,
		CustomerID:    3,
		ContactID:     4,
		CurrencyCode:  "EUR",
		CreditTermsID: 1,
	}
	line := billing.LicenseLine{
		DocumentID: doc.ID,
		ProductID:  11,
		Price:      dec("100.00"),
		VatRate:    dec("25"),
	}
	billing.ComputeLicense(&line)
	repo.docs.documents[doc.ID] = doc
	repo.docs.licenses[doc.ID] = []billing.LicenseLine{line}
	require.NoError(t, billing.RecomputeTotalsWith(context.Background(), repo.docs, doc))
	return doc.ID
}

func seedPayment(t *testing.T, s *Service, amount string) *Payment {
	t.Helper()
	p, err := s.CreatePayment(context.Background(), CreatePaymentInput{
		Date:             date("2021-06-14"),
		PaymentAccountID: 5,
		CustomerID:       3,
		CurrencyCode:     "EUR",
		Amount:           dec(amount),
		Received:         dec(amount),
	})
	require.NoError(t, err)
	return p
}

func TestCreatePaymentInitializesBalances(t *testing.T) {
	s := NewService(newMockRepository(), testClock)
	p := seedPayment(t, s, "125.00")

	require.True(t, p.Allocated.IsZero())
	require.True(t, p.Residual.Equal(dec("125.00")), "residual %s", p.Residual)
	require.Equal(t, "PAY-1", p.Identifier())
	require.Equal(t, testClock(), p.CreatedAt)
}

func TestAllocateRecomputesPaymentAndDocument(t *testing.T) {
	repo := newMockRepository()
	s := NewService(repo, testClock)
	docID := seedInvoice(t, repo)
	p := seedPayment(t, s, "125.00")

	a, err := s.Allocate(context.Background(), p.ID, docID, dec("125.00"), date("2021-06-14"))
	require.NoError(t, err)
	require.Equal(t, p.ID, a.PaymentID)

	p, err = s.GetPayment(context.Background(), p.ID)
	require.NoError(t, err)
	require.True(t, p.Allocated.Equal(dec("125.00")))
	require.True(t, p.Residual.IsZero())

	doc := repo.docs.documents[docID]
	require.True(t, doc.Allocated.Equal(dec("125.00")))
	require.True(t, doc.IsPaid())
}

func TestAllocateDefaultsDateToClock(t *testing.T) {
	repo := newMockRepository()
	s := NewService(repo, testClock)
	docID := seedInvoice(t, repo)
	p := seedPayment(t, s, "50.00")

	a, err := s.Allocate(context.Background(), p.ID, docID, dec("50.00"), time.Time{})
	require.NoError(t, err)
	require.Equal(t, testClock(), a.Date)
}

func TestAllocateUnknownPayment(t *testing.T) {
	repo := newMockRepository()
	s := NewService(repo, testClock)
	docID := seedInvoice(t, repo)

	_, err := s.Allocate(context.Background(), 99, docID, dec("10.00"), date("2021-06-14"))
	require.ErrorIs(t, err, ErrNotFound)
	require.Empty(t, repo.allocations)
}

func TestAllocateUnknownDocument(t *testing.T) {
	repo := newMockRepository()
	s := NewService(repo, testClock)
	seedInvoice(t, repo)
	p := seedPayment(t, s, "100.00")

	_, err := s.Allocate(context.Background(), p.ID, 404, dec("10.00"), date("2021-06-14"))
	require.ErrorIs(t, err, billing.ErrNotFound)
	require.Empty(t, repo.allocations)
}

func TestReversePayment(t *testing.T) {
	repo := newMockRepository()
	s := NewService(repo, testClock)
	docID := seedInvoice(t, repo)
	p := seedPayment(t, s, "100.00")
	_, err := s.Allocate(context.Background(), p.ID, docID, dec("40.00"), date("2021-06-14"))
	require.NoError(t, err)

	rev, err := s.ReversePayment(context.Background(), p.ID)
	require.NoError(t, err)
	require.True(t, rev.Amount.Equal(dec("100.00")))
	require.Equal(t, billing.ReversalReverses, rev.ReversalRole)
	require.Equal(t, p.ID, *rev.ReversalCounterpartID)

	orig, err := s.GetPayment(context.Background(), p.ID)
	require.NoError(t, err)
	require.Equal(t, billing.ReversalReversedBy, orig.ReversalRole)
	require.Equal(t, rev.ID, *orig.ReversalCounterpartID)
	require.True(t, orig.IsReversed())

	// The counterpart amount is subtracted from the allocation sum on
	// each side, so the pair nets to zero effective allocation.
	require.True(t, orig.Allocated.Equal(dec("-60.00")), "allocated %s", orig.Allocated)
	require.True(t, orig.Residual.Equal(dec("160.00")), "residual %s", orig.Residual)
	require.True(t, rev.Allocated.Equal(dec("-100.00")))

	_, err = s.ReversePayment(context.Background(), p.ID)
	require.ErrorIs(t, err, ErrAlreadyReversed)
}

func TestReverseAllocationNetsOut(t *testing.T) {
	repo := newMockRepository()
	s := NewService(repo, testClock)
	docID := seedInvoice(t, repo)
	p := seedPayment(t, s, "125.00")
	a, err := s.Allocate(context.Background(), p.ID, docID, dec("125.00"), date("2021-06-14"))
	require.NoError(t, err)

	twin, err := s.ReverseAllocation(context.Background(), a.ID)
	require.NoError(t, err)
	require.True(t, twin.Amount.Equal(dec("-125.00")))
	require.Equal(t, billing.ReversalReverses, twin.ReversalRole)
	require.Equal(t, a.ID, *twin.ReversalCounterpartID)

	orig, err := s.repo.GetAllocation(context.Background(), a.ID)
	require.NoError(t, err)
	require.Equal(t, billing.ReversalReversedBy, orig.ReversalRole)
	require.Equal(t, twin.ID, *orig.ReversalCounterpartID)
	require.True(t, orig.Amount.Equal(dec("125.00")), "original amount untouched")

	p, err = s.GetPayment(context.Background(), p.ID)
	require.NoError(t, err)
	require.True(t, p.Allocated.IsZero())
	require.True(t, p.Residual.Equal(dec("125.00")))

	doc := repo.docs.documents[docID]
	require.True(t, doc.Allocated.IsZero())
	require.True(t, doc.DueAmount.Equal(dec("125.00")))

	_, err = s.ReverseAllocation(context.Background(), a.ID)
	require.ErrorIs(t, err, ErrAlreadyReversed)
}

func TestRecomputePaymentBalancesRepair(t *testing.T) {
	repo := newMockRepository()
	s := NewService(repo, testClock)
	docID := seedInvoice(t, repo)
	p := seedPayment(t, s, "125.00")
	_, err := s.Allocate(context.Background(), p.ID, docID, dec("75.00"), date("2021-06-14"))
	require.NoError(t, err)

	// Corrupt the stored cache, then repair.
	repo.payments[p.ID].Allocated = dec("999.99")

	fixed, err := s.RecomputePaymentBalances(context.Background(), p.ID)
	require.NoError(t, err)
	require.True(t, fixed.Allocated.Equal(dec("75.00")))
	require.True(t, fixed.Residual.Equal(dec("50.00")))
}

func TestListAllocationsRequiresPayment(t *testing.T) {
	s := NewService(newMockRepository(), testClock)
	_, err := s.ListAllocations(context.Background(), 42)
	require.ErrorIs(t, err, ErrNotFound)
}
