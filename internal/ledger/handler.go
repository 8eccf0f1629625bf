package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/arbor-billing/arbor/internal/billing"
	"github.com/arbor-billing/arbor/internal/platform/httpx"
)

// Handler manages payment and allocation endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(),
	}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/payments", h.createPayment)
	r.Get("/payments", h.listPayments)
	r.Get("/payments/{id}", h.getPayment)
	r.Get("/payments/{id}/allocations", h.listAllocations)
	r.Post("/payments/{id}/reverse", h.reversePayment)
	r.Post("/payments/{id}/recompute", h.recompute)
	r.Post("/allocations", h.allocate)
	r.Post("/allocations/{id}/reverse", h.reverseAllocation)
}

type createPaymentRequest struct {
	Date             string          `json:"date" validate:"required,datetime=2006-01-02"`
	PaymentAccountID int64           `json:"payment_account_id" validate:"required"`
	CustomerID       int64           `json:"customer_id" validate:"required"`
	CurrencyCode     string          `json:"currency_code" validate:"required,len=3"`
	Amount           decimal.Decimal `json:"amount"`
	Received         decimal.Decimal `json:"received"`
}

func (h *Handler) createPayment(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	date, _ := time.Parse("2006-01-02", req.Date)

	payment, err := h.service.CreatePayment(r.Context(), CreatePaymentInput{
		Date:             date,
		PaymentAccountID: req.PaymentAccountID,
		CustomerID:       req.CustomerID,
		CurrencyCode:     req.CurrencyCode,
		Amount:           req.Amount,
		Received:         req.Received,
	})
	if err != nil {
		h.respondError(w, "create payment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, payment)
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	var filter PaymentFilter
	if v := r.URL.Query().Get("customer_id"); v != "" {
		filter.CustomerID, _ = strconv.ParseInt(v, 10, 64)
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		filter.Limit, _ = strconv.Atoi(v)
	}
	payments, err := h.service.ListPayments(r.Context(), filter)
	if err != nil {
		h.respondError(w, "list payments", err)
		return
	}
	httpx.JSON(w, http.StatusOK, payments)
}

func (h *Handler) getPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	payment, err := h.service.GetPayment(r.Context(), id)
	if err != nil {
		h.respondError(w, "get payment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, payment)
}

func (h *Handler) listAllocations(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	allocations, err := h.service.ListAllocations(r.Context(), id)
	if err != nil {
		h.respondError(w, "list allocations", err)
		return
	}
	httpx.JSON(w, http.StatusOK, allocations)
}

type allocateRequest struct {
	PaymentID  int64           `json:"payment_id" validate:"required"`
	DocumentID int64           `json:"document_id" validate:"required"`
	Amount     decimal.Decimal `json:"amount"`
	Date       string          `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

func (h *Handler) allocate(w http.ResponseWriter, r *http.Request) {
	var req allocateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var date time.Time
	if req.Date != "" {
		date, _ = time.Parse("2006-01-02", req.Date)
	}
	allocation, err := h.service.Allocate(r.Context(), req.PaymentID, req.DocumentID, req.Amount, date)
	if err != nil {
		h.respondError(w, "allocate", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, allocation)
}

func (h *Handler) reversePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	payment, err := h.service.ReversePayment(r.Context(), id)
	if err != nil {
		h.respondError(w, "reverse payment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, payment)
}

func (h *Handler) reverseAllocation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	allocation, err := h.service.ReverseAllocation(r.Context(), id)
	if err != nil {
		h.respondError(w, "reverse allocation", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, allocation)
}

func (h *Handler) recompute(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	payment, err := h.service.RecomputePaymentBalances(r.Context(), id)
	if err != nil {
		h.respondError(w, "recompute balances", err)
		return
	}
	httpx.JSON(w, http.StatusOK, payment)
}

func (h *Handler) urlID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "id must be an integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, billing.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrAlreadyReversed):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
