package payments

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/exceva/property-ledger/internal/platform/httpx"
	"github.com/exceva/property-ledger/internal/shared"
)

// Handler exposes payment and credit endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers payment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/payments", h.allocatePayment)
	r.Get("/tenants/{tenantID}/credit-balance", h.getCreditBalance)
	r.Get("/tenants/{tenantID}/payments", h.listPayments)
}

type paymentRequest struct {
	TenantID  int64           `json:"tenant_id" validate:"required,gt=0"`
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method" validate:"required"`
	Date      string          `json:"date" validate:"required"`
	Reference string          `json:"reference" validate:"max=120"`
	Notes     string          `json:"notes" validate:"max=2000"`
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if !httpx.Expected(err) {
		h.logger.Error(op, slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func (h *Handler) allocatePayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := httpx.Decode(r, &req); err != nil {
		h.fail(w, r, "allocate payment", err)
		return
	}
	if err := httpx.ValidateStruct(h.validator, req); err != nil {
		h.fail(w, r, "allocate payment", err)
		return
	}
	date, err := time.Parse(time.DateOnly, strings.TrimSpace(req.Date))
	if err != nil {
		h.fail(w, r, "allocate payment", shared.NewValidationError([]string{"date must be formatted YYYY-MM-DD"}))
		return
	}
	result, err := h.service.AllocatePayment(r.Context(), PaymentInput{
		TenantID:  req.TenantID,
		Amount:    req.Amount,
		Method:    Method(strings.ToLower(strings.TrimSpace(req.Method))),
		Date:      date,
		Reference: req.Reference,
		Notes:     req.Notes,
	}, r.Header.Get(httpx.IdempotencyHeader))
	if err != nil {
		h.fail(w, r, "allocate payment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) getCreditBalance(w http.ResponseWriter, r *http.Request) {
	tenantID, err := httpx.Int64Param(r, "tenantID")
	if err != nil {
		h.fail(w, r, "credit balance", err)
		return
	}
	credit, err := h.service.GetTenantCreditBalance(r.Context(), tenantID)
	if err != nil {
		h.fail(w, r, "credit balance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, credit)
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	tenantID, err := httpx.Int64Param(r, "tenantID")
	if err != nil {
		h.fail(w, r, "list payments", err)
		return
	}
	payments, err := h.service.ListPayments(r.Context(), tenantID)
	if err != nil {
		h.fail(w, r, "list payments", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"payments": payments})
}
