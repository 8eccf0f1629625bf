package billing

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/arbor-billing/arbor/internal/masterdata"
	"github.com/arbor-billing/arbor/internal/platform/httpx"
	"github.com/arbor-billing/arbor/internal/snapshot"
)

// FreezeScope snapshots master records for a new document. Every method
// runs on the transaction the surrounding Freezer opened.
type FreezeScope interface {
	FreezeCustomer(ctx context.Context, originID int64) (*snapshot.FrozenCustomer, error)
	FreezeContact(ctx context.Context, originID int64) (*snapshot.FrozenContact, error)
	FreezeAddress(ctx context.Context, originID int64) (*snapshot.FrozenAddress, error)
	FreezePaymentAccount(ctx context.Context, originID int64) (*snapshot.FrozenPaymentAccount, error)
	FreezeSeller(ctx context.Context, originID int64) (*snapshot.FrozenSeller, error)
}

// Freezer runs a freeze-and-create unit of work on one transaction, so
// the master reads stay consistent and a failed step leaves nothing
// behind.
type Freezer interface {
	WithTx(ctx context.Context, fn func(scope FreezeScope, repo RepositoryPort) error) error
}

// VatReader resolves the VAT master a new line snapshots its rate from.
type VatReader interface {
	GetVat(ctx context.Context, id int64) (*masterdata.Vat, error)
}

// Handler manages billing endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	freezer  Freezer
	vats     VatReader
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, freezer Freezer, vats VatReader) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		freezer:  freezer,
		vats:     vats,
		validate: validator.New(),
	}
}

// MountRoutes registers billing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/documents", h.createDocument)
	r.Get("/documents", h.listDocuments)
	r.Get("/documents/{id}", h.getDocument)
	r.Delete("/documents/{id}", h.deleteDraft)
	r.Get("/documents/{id}/lines", h.getLines)
	r.Get("/documents/{id}/rows", h.getRows)
	r.Post("/documents/{id}/lines/license", h.addLicenseLine)
	r.Post("/documents/{id}/lines/maintenance", h.addMaintenanceLine)
	r.Post("/documents/{id}/lines/custom", h.addCustomLine)
	r.Post("/documents/{id}/promote-quote", h.promoteQuote)
	r.Post("/documents/{id}/promote-invoice", h.promoteInvoice)
	r.Post("/documents/{id}/reverse", h.reverseInvoice)
	r.Post("/documents/{id}/recompute", h.recompute)
}

type createDocumentRequest struct {
	CustomerID        int64  `json:"customer_id" validate:"required"`
	EndCustomerID     *int64 `json:"end_customer_id"`
	ContactID         int64  `json:"contact_id" validate:"required"`
	PaymentAccountID  int64  `json:"payment_account_id" validate:"required"`
	SellerID          *int64 `json:"seller_id"`
	CustomerAddressID *int64 `json:"customer_address_id"`
	BillingAddressID  *int64 `json:"billing_address_id"`
	ShippingAddressID *int64 `json:"shipping_address_id"`
	SoldByLabel       string `json:"sold_by_label"`
	QuoteDate         string `json:"quote_date" validate:"required,datetime=2006-01-02"`
	QuoteExpiry       string `json:"quote_expiry" validate:"required,datetime=2006-01-02"`
}

// createDocument freezes the referenced masters and opens a draft.
func (h *Handler) createDocument(w http.ResponseWriter, r *http.Request) {
	var req createDocumentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	quoteDate, _ := time.Parse("2006-01-02", req.QuoteDate)
	quoteExpiry, _ := time.Parse("2006-01-02", req.QuoteExpiry)

	ctx := r.Context()
	var doc *Document
	op := "create draft"
	err := h.freezer.WithTx(ctx, func(scope FreezeScope, repo RepositoryPort) error {
		customer, err := scope.FreezeCustomer(ctx, req.CustomerID)
		if err != nil {
			op = "freeze customer"
			return err
		}
		contact, err := scope.FreezeContact(ctx, req.ContactID)
		if err != nil {
			op = "freeze contact"
			return err
		}
		account, err := scope.FreezePaymentAccount(ctx, req.PaymentAccountID)
		if err != nil {
			op = "freeze payment account"
			return err
		}

		input := CreateDraftInput{
			CustomerID:       customer.ID,
			ContactID:        contact.ID,
			CurrencyCode:     customer.CurrencyCode,
			CreditTermsID:    customer.CreditTermsID,
			PaymentAccountID: account.ID,
			SoldByLabel:      req.SoldByLabel,
			QuoteDate:        quoteDate,
			QuoteExpiry:      quoteExpiry,
		}
		if req.EndCustomerID != nil {
			end, err := scope.FreezeCustomer(ctx, *req.EndCustomerID)
			if err != nil {
				op = "freeze end customer"
				return err
			}
			input.EndCustomerID = &end.ID
		}
		if req.SellerID != nil {
			seller, err := scope.FreezeSeller(ctx, *req.SellerID)
			if err != nil {
				op = "freeze seller"
				return err
			}
			input.SellerID = &seller.ID
		}
		for _, m := range []struct {
			masterID *int64
			target   **int64
		}{
			{req.CustomerAddressID, &input.CustomerAddressID},
			{req.BillingAddressID, &input.BillingAddressID},
			{req.ShippingAddressID, &input.ShippingAddressID},
		} {
			if m.masterID == nil {
				continue
			}
			addr, err := scope.FreezeAddress(ctx, *m.masterID)
			if err != nil {
				op = "freeze address"
				return err
			}
			*m.target = &addr.ID
		}

		doc, err = h.service.CreateDraftWith(ctx, repo, input)
		return err
	})
	if err != nil {
		h.respondError(w, op, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, doc)
}

func (h *Handler) listDocuments(w http.ResponseWriter, r *http.Request) {
	filter := DocumentFilter{
		Stage:   Stage(r.URL.Query().Get("stage")),
		Due:     r.URL.Query().Get("due") == "true",
		Overdue: r.URL.Query().Get("overdue") == "true",
	}
	if v := r.URL.Query().Get("customer_id"); v != "" {
		filter.CustomerID, _ = strconv.ParseInt(v, 10, 64)
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		filter.Limit, _ = strconv.Atoi(v)
	}
	docs, err := h.service.ListDocuments(r.Context(), filter)
	if err != nil {
		h.respondError(w, "list documents", err)
		return
	}
	httpx.JSON(w, http.StatusOK, docs)
}

func (h *Handler) getDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	doc, err := h.service.GetDocument(r.Context(), id)
	if err != nil {
		h.respondError(w, "get document", err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) deleteDraft(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteDraft(r.Context(), id); err != nil {
		h.respondError(w, "delete draft", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getLines(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	lines, err := h.service.GetLines(r.Context(), id)
	if err != nil {
		h.respondError(w, "get lines", err)
		return
	}
	httpx.JSON(w, http.StatusOK, lines)
}

func (h *Handler) getRows(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	rows, err := h.service.GetProductRows(r.Context(), id)
	if err != nil {
		h.respondError(w, "get rows", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

type licenseLineRequest struct {
	ProductID   int64           `json:"product_id" validate:"required"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Discount    decimal.Decimal `json:"discount"`
	VatID       int64           `json:"vat_id" validate:"required"`
}

func (h *Handler) addLicenseLine(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	var req licenseLineRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	vat, err := h.vats.GetVat(r.Context(), req.VatID)
	if err != nil {
		h.respondError(w, "resolve vat", err)
		return
	}
	line, err := h.service.AddLicenseLine(r.Context(), id, LicenseLine{
		ProductID:   req.ProductID,
		Description: req.Description,
		Price:       req.Price,
		Discount:    req.Discount,
		VatRate:     vat.Rate,
		VatMessage:  vat.Message,
	})
	if err != nil {
		h.respondError(w, "add license line", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, line)
}

type maintenanceLineRequest struct {
	ProductID     int64           `json:"product_id" validate:"required"`
	LicenseLineID *int64          `json:"license_line_id"`
	Back          bool            `json:"back"`
	Start         string          `json:"start" validate:"required,datetime=2006-01-02"`
	End           string          `json:"end" validate:"required,datetime=2006-01-02"`
	Price         decimal.Decimal `json:"price"`
	Discount      decimal.Decimal `json:"discount"`
	Description   string          `json:"description"`
	VatID         int64           `json:"vat_id" validate:"required"`
}

func (h *Handler) addMaintenanceLine(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	var req maintenanceLineRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	start, _ := time.Parse("2006-01-02", req.Start)
	end, _ := time.Parse("2006-01-02", req.End)
	if end.Before(start) {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "end date before start date")
		return
	}
	vat, err := h.vats.GetVat(r.Context(), req.VatID)
	if err != nil {
		h.respondError(w, "resolve vat", err)
		return
	}
	line, err := h.service.AddMaintenanceLine(r.Context(), id, MaintenanceLine{
		ProductID:     req.ProductID,
		LicenseLineID: req.LicenseLineID,
		Back:          req.Back,
		Start:         start,
		End:           end,
		Price:         req.Price,
		Discount:      req.Discount,
		Description:   req.Description,
		VatRate:       vat.Rate,
		VatMessage:    vat.Message,
	})
	if err != nil {
		h.respondError(w, "add maintenance line", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, line)
}

type customAssociationRequest struct {
	ProductID int64           `json:"product_id" validate:"required"`
	Price     decimal.Decimal `json:"price"`
	Count     int             `json:"count" validate:"min=1"`
}

type customLineRequest struct {
	Name         string                     `json:"name" validate:"required"`
	VatID        int64                      `json:"vat_id" validate:"required"`
	Associations []customAssociationRequest `json:"associations" validate:"required,min=1,dive"`
}

func (h *Handler) addCustomLine(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	var req customLineRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	vat, err := h.vats.GetVat(r.Context(), req.VatID)
	if err != nil {
		h.respondError(w, "resolve vat", err)
		return
	}
	line := CustomLine{
		Name:       req.Name,
		VatRate:    vat.Rate,
		VatMessage: vat.Message,
	}
	for _, a := range req.Associations {
		line.Associations = append(line.Associations, CustomAssociation{
			ProductID: a.ProductID,
			Price:     a.Price,
			Count:     a.Count,
		})
	}
	created, err := h.service.AddCustomLine(r.Context(), id, line)
	if err != nil {
		h.respondError(w, "add custom line", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) promoteQuote(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	doc, err := h.service.PromoteToQuote(r.Context(), id)
	if err != nil {
		h.respondError(w, "promote to quote", err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) promoteInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	doc, err := h.service.PromoteToInvoice(r.Context(), id)
	if err != nil {
		h.respondError(w, "promote to invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) reverseInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	doc, err := h.service.ReverseInvoice(r.Context(), id)
	if err != nil {
		h.respondError(w, "reverse invoice", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, doc)
}

func (h *Handler) recompute(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	doc, err := h.service.RecomputeTotals(r.Context(), id)
	if err != nil {
		h.respondError(w, "recompute totals", err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) urlID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "document id must be an integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, masterdata.ErrNotFound),
		errors.Is(err, snapshot.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidStage),
		errors.Is(err, ErrSequenceAssigned),
		errors.Is(err, ErrAlreadyReversed):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
