package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arbor-billing/arbor/internal/billing"
)

var (
	// ErrNotFound indicates the payment or allocation does not exist.
	ErrNotFound = errors.New("ledger: not found")
	// ErrAlreadyReversed indicates the record already participates in a
	// reversal pair.
	ErrAlreadyReversed = errors.New("ledger: already reversed")
)

// RepositoryPort defines data access for payments and allocations.
// Documents exposes a billing port bound to the same querier so a
// document cache refresh commits with the allocation that invalidated
// it.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(RepositoryPort) error) error
	Documents() billing.RepositoryPort

	InsertPayment(ctx context.Context, p *Payment) error
	UpdatePayment(ctx context.Context, p *Payment) error
	GetPayment(ctx context.Context, id int64) (*Payment, error)
	ListPayments(ctx context.Context, filter PaymentFilter) ([]Payment, error)

	InsertAllocation(ctx context.Context, a *Allocation) error
	UpdateAllocation(ctx context.Context, a *Allocation) error
	GetAllocation(ctx context.Context, id int64) (*Allocation, error)
	ListAllocationsByPayment(ctx context.Context, paymentID int64) ([]Allocation, error)
	AllocationSum(ctx context.Context, paymentID int64) (decimal.Decimal, error)
}

// PaymentFilter narrows a payment listing.
type PaymentFilter struct {
	CustomerID int64
	Limit      int
}

// Service handles payment recording, allocation and reversal.
type Service struct {
	repo RepositoryPort
	now  func() time.Time
}

// NewService builds a Service. A nil clock defaults to time.Now.
func NewService(repo RepositoryPort, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{repo: repo, now: now}
}

// CreatePaymentInput carries a new payment entry.
type CreatePaymentInput struct {
	Date             time.Time
	PaymentAccountID int64
	CustomerID       int64
	CurrencyCode     string
	Amount           decimal.Decimal
	Received         decimal.Decimal
}

// CreatePayment records a payment and initializes its balances.
func (s *Service) CreatePayment(ctx context.Context, input CreatePaymentInput) (*Payment, error) {
	p := &Payment{
		Date:             input.Date,
		PaymentAccountID: input.PaymentAccountID,
		CustomerID:       input.CustomerID,
		CurrencyCode:     input.CurrencyCode,
		Amount:           input.Amount,
		Received:         input.Received,
		CreatedAt:        s.now(),
	}
	RecomputeBalances(p, decimal.Zero, decimal.Zero)
	if err := s.repo.InsertPayment(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Allocate attaches an amount of a payment to a document and refreshes
// both caches in the same transaction. The amount is recorded exactly
// as given; over-allocation and corrective negatives are legitimate
// states the caller validates, not this core.
func (s *Service) Allocate(ctx context.Context, paymentID, documentID int64, amount decimal.Decimal, date time.Time) (*Allocation, error) {
	if date.IsZero() {
		date = s.now()
	}
	a := &Allocation{
		PaymentID:  paymentID,
		DocumentID: documentID,
		Date:       date,
		Amount:     amount,
	}
	err := s.repo.WithTx(ctx, func(repo RepositoryPort) error {
		p, err := repo.GetPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		if _, err := repo.Documents().GetDocument(ctx, documentID); err != nil {
			return err
		}
		if err := repo.InsertAllocation(ctx, a); err != nil {
			return err
		}
		if err := s.recomputePayment(ctx, repo, p); err != nil {
			return err
		}
		return s.recomputeDocument(ctx, repo, documentID)
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ReversePayment issues a correcting payment linked to the original.
// The original is never mutated beyond its reversal tag.
func (s *Service) ReversePayment(ctx context.Context, id int64) (*Payment, error) {
	var rev *Payment
	err := s.repo.WithTx(ctx, func(repo RepositoryPort) error {
		orig, err := repo.GetPayment(ctx, id)
		if err != nil {
			return err
		}
		if orig.ReversalRole != billing.ReversalNone {
			return ErrAlreadyReversed
		}
		now := s.now()
		rev = &Payment{
			Date:             now,
			PaymentAccountID: orig.PaymentAccountID,
			CustomerID:       orig.CustomerID,
			CurrencyCode:     orig.CurrencyCode,
			Amount:           orig.Amount,
			Received:         orig.Received,
			ReversalRole:     billing.ReversalReverses,
			CreatedAt:        now,
		}
		rev.ReversalCounterpartID = &orig.ID
		if err := repo.InsertPayment(ctx, rev); err != nil {
			return err
		}
		if err := s.recomputePayment(ctx, repo, rev); err != nil {
			return err
		}

		orig.ReversalRole = billing.ReversalReversedBy
		orig.ReversalCounterpartID = &rev.ID
		return s.recomputePayment(ctx, repo, orig)
	})
	if err != nil {
		return nil, err
	}
	return rev, nil
}

// ReverseAllocation nets out a single allocation with a negated twin,
// independent of whole-payment reversal, and refreshes the payment and
// document caches with it.
func (s *Service) ReverseAllocation(ctx context.Context, id int64) (*Allocation, error) {
	var rev *Allocation
	err := s.repo.WithTx(ctx, func(repo RepositoryPort) error {
		orig, err := repo.GetAllocation(ctx, id)
		if err != nil {
			return err
		}
		if orig.ReversalRole != billing.ReversalNone {
			return ErrAlreadyReversed
		}
		now := s.now()
		rev = &Allocation{
			PaymentID:    orig.PaymentID,
			DocumentID:   orig.DocumentID,
			Date:         now,
			Amount:       orig.Amount.Neg(),
			ReversalRole: billing.ReversalReverses,
		}
		rev.ReversalCounterpartID = &orig.ID
		if err := repo.InsertAllocation(ctx, rev); err != nil {
			return err
		}
		orig.ReversalRole = billing.ReversalReversedBy
		orig.ReversalCounterpartID = &rev.ID
		if err := repo.UpdateAllocation(ctx, orig); err != nil {
			return err
		}

		p, err := repo.GetPayment(ctx, orig.PaymentID)
		if err != nil {
			return err
		}
		if err := s.recomputePayment(ctx, repo, p); err != nil {
			return err
		}
		return s.recomputeDocument(ctx, repo, orig.DocumentID)
	})
	if err != nil {
		return nil, err
	}
	return rev, nil
}

// RecomputePaymentBalances reloads and rewrites a payment's stored
// balances. Exposed as a repair operation.
func (s *Service) RecomputePaymentBalances(ctx context.Context, id int64) (*Payment, error) {
	var p *Payment
	err := s.repo.WithTx(ctx, func(repo RepositoryPort) error {
		var err error
		p, err = repo.GetPayment(ctx, id)
		if err != nil {
			return err
		}
		return s.recomputePayment(ctx, repo, p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetPayment returns a single payment.
func (s *Service) GetPayment(ctx context.Context, id int64) (*Payment, error) {
	return s.repo.GetPayment(ctx, id)
}

// ListPayments returns payments matching the filter.
func (s *Service) ListPayments(ctx context.Context, filter PaymentFilter) ([]Payment, error) {
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	return s.repo.ListPayments(ctx, filter)
}

// ListAllocations returns a payment's allocation history.
func (s *Service) ListAllocations(ctx context.Context, paymentID int64) ([]Allocation, error) {
	if _, err := s.repo.GetPayment(ctx, paymentID); err != nil {
		return nil, err
	}
	return s.repo.ListAllocationsByPayment(ctx, paymentID)
}

// recomputePayment refreshes the stored balances from the allocation
// rows and the reversal counterpart, then saves.
func (s *Service) recomputePayment(ctx context.Context, repo RepositoryPort, p *Payment) error {
	sum, err := repo.AllocationSum(ctx, p.ID)
	if err != nil {
		return err
	}
	counterpart := decimal.Zero
	if p.ReversalCounterpartID != nil {
		other, err := repo.GetPayment(ctx, *p.ReversalCounterpartID)
		if err != nil {
			return err
		}
		counterpart = other.Amount
	}
	RecomputeBalances(p, sum, counterpart)
	return repo.UpdatePayment(ctx, p)
}

// recomputeDocument refreshes the document's stored totals inside the
// current transaction.
func (s *Service) recomputeDocument(ctx context.Context, repo RepositoryPort, documentID int64) error {
	docs := repo.Documents()
	d, err := docs.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}
	return billing.RecomputeTotalsWith(ctx, docs, d)
}
