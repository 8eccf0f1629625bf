package billing

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound indicates the document or line does not exist.
	ErrNotFound = errors.New("billing: not found")
	// ErrInvalidStage indicates the operation does not apply to the
	// document's current lifecycle stage.
	ErrInvalidStage = errors.New("billing: invalid stage")
	// ErrSequenceAssigned indicates the document already carries the
	// sequence id the operation would assign.
	ErrSequenceAssigned = errors.New("billing: sequence id already assigned")
	// ErrAlreadyReversed indicates the record already participates in a
	// reversal pair.
	ErrAlreadyReversed = errors.New("billing: already reversed")
)

// RepositoryPort defines data access for billing documents. WithTx runs
// the callback against a transaction-scoped port so every mutation and
// its cache recomputes commit together.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(RepositoryPort) error) error

	NextQuoteNumber(ctx context.Context) (int64, error)
	NextInvoiceNumber(ctx context.Context) (int64, error)

	InsertDocument(ctx context.Context, d *Document) error
	UpdateDocument(ctx context.Context, d *Document) error
	GetDocument(ctx context.Context, id int64) (*Document, error)
	ListDocuments(ctx context.Context, filter DocumentFilter) ([]Document, error)
	DeleteDraft(ctx context.Context, id int64) error

	InsertLicenseLine(ctx context.Context, l *LicenseLine) error
	ListLicenseLines(ctx context.Context, documentID int64) ([]LicenseLine, error)
	InsertMaintenanceLine(ctx context.Context, m *MaintenanceLine) error
	ListMaintenanceLines(ctx context.Context, documentID int64) ([]MaintenanceLine, error)
	InsertCustomLine(ctx context.Context, c *CustomLine) error
	ListCustomLines(ctx context.Context, documentID int64) ([]CustomLine, error)

	AllocatedSum(ctx context.Context, documentID int64) (decimal.Decimal, error)
	CreditTermsDays(ctx context.Context, frozenTermsID int64) (int, error)
}

// DocumentFilter narrows a document listing.
type DocumentFilter struct {
	Stage      Stage
	CustomerID int64
	Due        bool
	Overdue    bool
	Limit      int
}

// Service handles document lifecycle and total recomputation. The clock
// is injected so date-dependent fields are deterministic under test,
// and the legacy rounding flag preserves the historical custom-item
// path for migrated data.
type Service struct {
	repo                 RepositoryPort
	legacyCustomRounding bool
	now                  func() time.Time
}

// NewService builds a Service. A nil clock defaults to time.Now.
func NewService(repo RepositoryPort, legacyCustomRounding bool, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{repo: repo, legacyCustomRounding: legacyCustomRounding, now: now}
}

// CreateDraftInput carries the frozen record references and dates for a
// new draft. Freezing happens before this call, on the document-creation
// surface.
type CreateDraftInput struct {
	CustomerID        int64
	EndCustomerID     *int64
	ContactID         int64
	CurrencyCode      string
	CustomerAddressID *int64
	BillingAddressID  *int64
	ShippingAddressID *int64
	CreditTermsID     int64
	PaymentAccountID  int64
	SellerID          *int64
	SoldByLabel       string
	QuoteDate         time.Time
	QuoteExpiry       time.Time
}

// CreateDraft opens a new draft document.
func (s *Service) CreateDraft(ctx context.Context, input CreateDraftInput) (*Document, error) {
	var d *Document
	err := s.repo.WithTx(ctx, func(repo RepositoryPort) error {
		var err error
		d, err = s.CreateDraftWith(ctx, repo, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// CreateDraftWith opens the draft against a repository already bound to
// the caller's transaction, so frozen records created alongside commit
// or roll back with the document.
func (s *Service) CreateDraftWith(ctx context.Context, repo RepositoryPort, input CreateDraftInput) (*Document, error) {
	now := s.now()
	d := &Document{
		Stage:             StageDraft,
		QuoteDate:         input.QuoteDate,
		QuoteExpiry:       input.QuoteExpiry,
		CustomerID:        input.CustomerID,
		EndCustomerID:     input.EndCustomerID,
		ContactID:         input.ContactID,
		CurrencyCode:      input.CurrencyCode,
		CustomerAddressID: input.CustomerAddressID,
		BillingAddressID:  input.BillingAddressID,
		ShippingAddressID: input.ShippingAddressID,
		CreditTermsID:     input.CreditTermsID,
		PaymentAccountID:  input.PaymentAccountID,
		SellerID:          input.SellerID,
		SoldByLabel:       input.SoldByLabel,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := repo.InsertDocument(ctx, d); err != nil {
		return nil, err
	}
	if err := s.recompute(ctx, repo, d); err != nil {
		return nil, err
	}
	return d, nil
}

// DeleteDraft removes a draft. Promoted documents are permanent.
func (s *Service) DeleteDraft(ctx context.Context, id int64) error {
	return s.repo.WithTx(ctx, func(repo RepositoryPort) error {
		d, err := repo.GetDocument(ctx, id)
		if err != nil {
			return err
		}
		if d.Stage != StageDraft {
			return ErrInvalidStage
		}
		return repo.DeleteDraft(ctx, id)
	})
}

// AddLicenseLine computes and attaches a license line, then refreshes
// the document totals in the same transaction.
func (s *Service) AddLicenseLine(ctx context.Context, documentID int64, line LicenseLine) (*LicenseLine, error) {
	line.DocumentID = documentID
	ComputeLicense(&line)
	err := s.repo.WithTx(ctx, func(repo RepositoryPort) error {
		d, err := s.editableDocument(ctx, repo, documentID)
		if err != nil {
			return err
		}
		if err := repo.InsertLicenseLine(ctx, &line); err != nil {
			return err
		}
		return s.recompute(ctx, repo, d)
	})
	if err != nil {
		return nil, err
	}
	return &line, nil
}

// AddMaintenanceLine computes and attaches a maintenance period.
func (s *Service) AddMaintenanceLine(ctx context.Context, documentID int64, line MaintenanceLine) (*MaintenanceLine, error) {
	line.DocumentID = documentID
	ComputeMaintenance(&line)
	err := s.repo.WithTx(ctx, func(repo RepositoryPort) error {
		d, err := s.editableDocument(ctx, repo, documentID)
		if err != nil {
			return err
		}
		if err := repo.InsertMaintenanceLine(ctx, &line); err != nil {
			return err
		}
		return s.recompute(ctx, repo, d)
	})
	if err != nil {
		return nil, err
	}
	return &line, nil
}

// AddCustomLine attaches a custom line with its product associations.
func (s *Service) AddCustomLine(ctx context.Context, documentID int64, line CustomLine) (*CustomLine, error) {
	line.DocumentID = documentID
	err := s.repo.WithTx(ctx, func(repo RepositoryPort) error {
		d, err := s.editableDocument(ctx, repo, documentID)
		if err != nil {
			return err
		}
		if err := repo.InsertCustomLine(ctx, &line); err != nil {
			return err
		}
		return s.recompute(ctx, repo, d)
	})
	if err != nil {
		return nil, err
	}
	return &line, nil
}

// PromoteToQuote assigns the quote sequence id and moves the draft
// forward. The sequence id, once assigned, is permanent.
func (s *Service) PromoteToQuote(ctx context.Context, id int64) (*Document, error) {
	var d *Document
	err := s.repo.WithTx(ctx, func(repo RepositoryPort) error {
		var err error
		d, err = repo.GetDocument(ctx, id)
		if err != nil {
			return err
		}
		if d.Stage != StageDraft {
			return ErrInvalidStage
		}
		if d.QuoteNumber != nil {
			return ErrSequenceAssigned
		}
		n, err := repo.NextQuoteNumber(ctx)
		if err != nil {
			return err
		}
		d.QuoteNumber = &n
		d.Stage = StageQuote
		d.UpdatedAt = s.now()
		return s.recompute(ctx, repo, d)
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// PromoteToInvoice assigns the invoice sequence id, stamps the invoice
// date and moves the quote forward.
func (s *Service) PromoteToInvoice(ctx context.Context, id int64) (*Document, error) {
	var d *Document
	err := s.repo.WithTx(ctx, func(repo RepositoryPort) error {
		var err error
		d, err = repo.GetDocument(ctx, id)
		if err != nil {
			return err
		}
		if d.Stage != StageQuote {
			return ErrInvalidStage
		}
		if d.InvoiceNumber != nil {
			return ErrSequenceAssigned
		}
		n, err := repo.NextInvoiceNumber(ctx)
		if err != nil {
			return err
		}
		now := s.now()
		invoiceDate := midnightUTC(now)
		d.InvoiceNumber = &n
		d.Stage = StageInvoice
		d.InvoiceDate = &invoiceDate
		d.UpdatedAt = now
		return s.recompute(ctx, repo, d)
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// ReverseInvoice issues a correcting invoice that nets out the original.
// The original is never mutated beyond its reversal tag; the correcting
// document carries the original's lines with negated prices and gets its
// own invoice sequence id.
func (s *Service) ReverseInvoice(ctx context.Context, id int64) (*Document, error) {
	var rev *Document
	err := s.repo.WithTx(ctx, func(repo RepositoryPort) error {
		orig, err := repo.GetDocument(ctx, id)
		if err != nil {
			return err
		}
		if orig.Stage != StageInvoice {
			return ErrInvalidStage
		}
		if orig.ReversalRole != ReversalNone {
			return ErrAlreadyReversed
		}

		now := s.now()
		n, err := repo.NextInvoiceNumber(ctx)
		if err != nil {
			return err
		}
		rev = &Document{
			Stage:             StageInvoice,
			InvoiceNumber:     &n,
			QuoteDate:         orig.QuoteDate,
			QuoteExpiry:       orig.QuoteExpiry,
			InvoiceDate:       &now,
			CustomerID:        orig.CustomerID,
			EndCustomerID:     orig.EndCustomerID,
			ContactID:         orig.ContactID,
			CurrencyCode:      orig.CurrencyCode,
			CustomerAddressID: orig.CustomerAddressID,
			BillingAddressID:  orig.BillingAddressID,
			ShippingAddressID: orig.ShippingAddressID,
			CreditTermsID:     orig.CreditTermsID,
			PaymentAccountID:  orig.PaymentAccountID,
			SellerID:          orig.SellerID,
			SoldByLabel:       orig.SoldByLabel,
			ReversalRole:      ReversalReverses,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		rev.ReversalCounterpartID = &orig.ID
		if err := repo.InsertDocument(ctx, rev); err != nil {
			return err
		}
		if err := s.copyNegatedLines(ctx, repo, orig.ID, rev.ID); err != nil {
			return err
		}
		if err := s.recompute(ctx, repo, rev); err != nil {
			return err
		}

		orig.ReversalRole = ReversalReversedBy
		orig.ReversalCounterpartID = &rev.ID
		orig.UpdatedAt = now
		return s.recompute(ctx, repo, orig)
	})
	if err != nil {
		return nil, err
	}
	return rev, nil
}

func (s *Service) copyNegatedLines(ctx context.Context, repo RepositoryPort, fromID, toID int64) error {
	licenses, err := repo.ListLicenseLines(ctx, fromID)
	if err != nil {
		return err
	}
	for _, l := range licenses {
		neg := l
		neg.ID = 0
		neg.DocumentID = toID
		neg.Price = l.Price.Neg()
		ComputeLicense(&neg)
		if err := repo.InsertLicenseLine(ctx, &neg); err != nil {
			return err
		}
	}

	maintenances, err := repo.ListMaintenanceLines(ctx, fromID)
	if err != nil {
		return err
	}
	for _, m := range maintenances {
		neg := m
		neg.ID = 0
		neg.DocumentID = toID
		neg.Price = m.Price.Neg()
		neg.ReversalRole = ReversalReverses
		id := m.ID
		neg.ReversalCounterpartID = &id
		ComputeMaintenance(&neg)
		if err := repo.InsertMaintenanceLine(ctx, &neg); err != nil {
			return err
		}
	}

	customs, err := repo.ListCustomLines(ctx, fromID)
	if err != nil {
		return err
	}
	for _, c := range customs {
		neg := c
		neg.ID = 0
		neg.DocumentID = toID
		neg.Associations = make([]CustomAssociation, len(c.Associations))
		for i, a := range c.Associations {
			neg.Associations[i] = CustomAssociation{
				ProductID: a.ProductID,
				Price:     a.Price.Neg(),
				Count:     a.Count,
			}
		}
		if err := repo.InsertCustomLine(ctx, &neg); err != nil {
			return err
		}
	}
	return nil
}

// RecomputeTotals reloads the document's rows and allocations and
// rewrites every stored aggregate. Safe to call repeatedly; with no
// intervening writes the result is identical.
func (s *Service) RecomputeTotals(ctx context.Context, id int64) (*Document, error) {
	var d *Document
	err := s.repo.WithTx(ctx, func(repo RepositoryPort) error {
		var err error
		d, err = repo.GetDocument(ctx, id)
		if err != nil {
			return err
		}
		return s.recompute(ctx, repo, d)
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// GetDocument returns a single document.
func (s *Service) GetDocument(ctx context.Context, id int64) (*Document, error) {
	return s.repo.GetDocument(ctx, id)
}

// ListDocuments returns documents matching the filter.
func (s *Service) ListDocuments(ctx context.Context, filter DocumentFilter) ([]Document, error) {
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	return s.repo.ListDocuments(ctx, filter)
}

// DocumentRows are the printed rows of a document, grouped by kind.
type DocumentRows struct {
	Licenses     []ProductRow `json:"licenses"`
	Maintenances []ProductRow `json:"maintenances"`
	Customs      []ProductRow `json:"customs"`
}

// GetProductRows returns the collapsed printed rows for reporting.
func (s *Service) GetProductRows(ctx context.Context, documentID int64) (*DocumentRows, error) {
	if _, err := s.repo.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}
	licenses, err := s.repo.ListLicenseLines(ctx, documentID)
	if err != nil {
		return nil, err
	}
	maintenances, err := s.repo.ListMaintenanceLines(ctx, documentID)
	if err != nil {
		return nil, err
	}
	customs, err := s.repo.ListCustomLines(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return &DocumentRows{
		Licenses:     LicenseRows(licenses),
		Maintenances: MaintenanceRows(maintenances),
		Customs:      CustomRows(customs),
	}, nil
}

// CustomLineView is a custom line with its computed amounts.
type CustomLineView struct {
	CustomLine
	Price decimal.Decimal `json:"price"`
	Total decimal.Decimal `json:"total"`
}

// DocumentLines are all line items of a document with computed values.
type DocumentLines struct {
	Licenses     []LicenseLine     `json:"licenses"`
	Maintenances []MaintenanceLine `json:"maintenances"`
	Customs      []CustomLineView  `json:"customs"`
}

// GetLines returns every line item attached to a document. Custom line
// totals honor the configured rounding path.
func (s *Service) GetLines(ctx context.Context, documentID int64) (*DocumentLines, error) {
	if _, err := s.repo.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}
	licenses, err := s.repo.ListLicenseLines(ctx, documentID)
	if err != nil {
		return nil, err
	}
	maintenances, err := s.repo.ListMaintenanceLines(ctx, documentID)
	if err != nil {
		return nil, err
	}
	customs, err := s.repo.ListCustomLines(ctx, documentID)
	if err != nil {
		return nil, err
	}
	views := make([]CustomLineView, 0, len(customs))
	for _, c := range customs {
		views = append(views, CustomLineView{
			CustomLine: c,
			Price:      c.Price(),
			Total:      CustomTotal(&c, s.legacyCustomRounding),
		})
	}
	return &DocumentLines{Licenses: licenses, Maintenances: maintenances, Customs: views}, nil
}

// editableDocument loads a document and rejects line edits on invoices;
// invoice rows are permanent and corrections go through a reversal.
func (s *Service) editableDocument(ctx context.Context, repo RepositoryPort, id int64) (*Document, error) {
	d, err := repo.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Stage == StageInvoice {
		return nil, ErrInvalidStage
	}
	return d, nil
}

// recompute rebuilds the document's stored aggregates from its rows.
func (s *Service) recompute(ctx context.Context, repo RepositoryPort, d *Document) error {
	return RecomputeTotalsWith(ctx, repo, d)
}

// RecomputeTotalsWith rebuilds a document's stored aggregates against
// the given port. Callers holding a transaction-scoped port use this to
// refresh a document cache inside their own transaction, for example
// after writing an allocation.
func RecomputeTotalsWith(ctx context.Context, repo RepositoryPort, d *Document) error {
	licenses, err := repo.ListLicenseLines(ctx, d.ID)
	if err != nil {
		return err
	}
	maintenances, err := repo.ListMaintenanceLines(ctx, d.ID)
	if err != nil {
		return err
	}
	customs, err := repo.ListCustomLines(ctx, d.ID)
	if err != nil {
		return err
	}
	rows := LicenseRows(licenses)
	rows = append(rows, MaintenanceRows(maintenances)...)
	rows = append(rows, CustomRows(customs)...)

	allocated, err := repo.AllocatedSum(ctx, d.ID)
	if err != nil {
		return err
	}
	days, err := repo.CreditTermsDays(ctx, d.CreditTermsID)
	if err != nil {
		return err
	}
	RecomputeDocument(d, rows, allocated, days)
	return repo.UpdateDocument(ctx, d)
}
