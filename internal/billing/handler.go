package billing

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

// Handler exposes invoice, draft and adjustment endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers billing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/summary", h.getSummary)

	r.Get("/leases/{leaseID}/months/{month}", h.navigateToMonth)
	r.Put("/leases/{leaseID}/months/{month}/draft", h.saveDraft)
	r.Get("/leases/{leaseID}/recurring-charges", h.getRecurringCharges)

	r.Post("/invoices", h.createInvoice)
	r.Route("/invoices/{id}", func(r chi.Router) {
		r.Get("/", h.getInvoice)
		r.Put("/lines", h.updateLines)
		r.Post("/send", h.sendInvoice)
		r.Post("/cancel", h.cancelInvoice)
		r.Get("/adjustments", h.listAdjustments)
	})

	r.Post("/adjustments/preview", h.previewAdjustment)
	r.Post("/adjustments", h.createAdjustment)
}

type lineRequest struct {
	Description string          `json:"description"`
	Category    string          `json:"category" validate:"max=64"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

func toLineItems(in []lineRequest) []LineItem {
	out := make([]LineItem, len(in))
	for i, l := range in {
		out[i] = LineItem{Description: strings.TrimSpace(l.Description), Category: l.Category, Quantity: l.Quantity, UnitPrice: l.UnitPrice}
	}
	return out
}

type draftRequest struct {
	Lines []lineRequest `json:"line_items" validate:"dive"`
}

type createInvoiceRequest struct {
	LeaseID int64         `json:"lease_id" validate:"required,gt=0"`
	Month   string        `json:"month" validate:"required"`
	Lines   []lineRequest `json:"line_items" validate:"required,min=1,dive"`
}

type linesRequest struct {
	Lines []lineRequest `json:"line_items" validate:"dive"`
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"required"`
}

type adjustmentRequest struct {
	InvoiceID     int64           `json:"invoice_id"`
	Type          string          `json:"type"`
	AmountType    string          `json:"amount_type"`
	Amount        decimal.Decimal `json:"amount"`
	Reason        string          `json:"reason"`
	Notes         string          `json:"notes" validate:"max=2000"`
	EffectiveDate string          `json:"effective_date"`

	ExpectedPreviousTotal decimal.NullDecimal `json:"expected_previous_total"`
	ExpectedDelta         decimal.NullDecimal `json:"expected_delta"`
}

// reviewed rebuilds the proposal the operator confirmed.
func (req adjustmentRequest) reviewed(domain AdjustmentRequest) (Proposal, error) {
	if !req.ExpectedPreviousTotal.Valid || !req.ExpectedDelta.Valid {
		return Proposal{}, shared.NewValidationError([]string{MsgReviewRequired})
	}
	previous, delta := req.ExpectedPreviousTotal.Decimal, req.ExpectedDelta.Decimal
	return Proposal{Request: domain, PreviousTotal: previous, Delta: delta, NewTotal: previous.Add(delta)}, nil
}

func (req adjustmentRequest) toDomain() (AdjustmentRequest, error) {
	out := AdjustmentRequest{
		InvoiceID:  req.InvoiceID,
		Type:       AdjustmentType(strings.ToLower(strings.TrimSpace(req.Type))),
		AmountType: AmountType(strings.ToLower(strings.TrimSpace(req.AmountType))),
		Value:      req.Amount,
		Reason:     req.Reason,
		Notes:      strings.TrimSpace(req.Notes),
	}
	if raw := strings.TrimSpace(req.EffectiveDate); raw != "" {
		date, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return AdjustmentRequest{}, shared.NewValidationError([]string{"effective date must be formatted YYYY-MM-DD"})
		}
		out.EffectiveDate = date
	}
	return out, nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if !httpx.Expected(err) {
		h.logger.Error(op, slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func (h *Handler) getSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.FinancialSummary(r.Context())
	if err != nil {
		h.fail(w, r, "financial summary", err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) navigateToMonth(w http.ResponseWriter, r *http.Request) {
	leaseID, err := httpx.Int64Param(r, "leaseID")
	if err != nil {
		h.fail(w, r, "navigate to month", err)
		return
	}
	view, err := h.service.NavigateToMonth(r.Context(), leaseID, chi.URLParam(r, "month"))
	if err != nil {
		h.fail(w, r, "navigate to month", err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) saveDraft(w http.ResponseWriter, r *http.Request) {
	leaseID, err := httpx.Int64Param(r, "leaseID")
	if err != nil {
		h.fail(w, r, "save draft", err)
		return
	}
	var req draftRequest
	if err := httpx.Decode(r, &req); err != nil {
		h.fail(w, r, "save draft", err)
		return
	}
	if err := httpx.ValidateStruct(h.validator, req); err != nil {
		h.fail(w, r, "save draft", err)
		return
	}
	draft, err := h.service.SaveDraft(r.Context(), Draft{LeaseID: leaseID, Month: chi.URLParam(r, "month"), Lines: toLineItems(req.Lines)})
	if err != nil {
		h.fail(w, r, "save draft", err)
		return
	}
	httpx.JSON(w, http.StatusOK, draft)
}

func (h *Handler) getRecurringCharges(w http.ResponseWriter, r *http.Request) {
	leaseID, err := httpx.Int64Param(r, "leaseID")
	if err != nil {
		h.fail(w, r, "recurring charges", err)
		return
	}
	charges, err := h.service.GetRecurringCharges(r.Context(), leaseID)
	if err != nil {
		h.fail(w, r, "recurring charges", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"charges": charges})
}

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	var req createInvoiceRequest
	if err := httpx.Decode(r, &req); err != nil {
		h.fail(w, r, "create invoice", err)
		return
	}
	if err := httpx.ValidateStruct(h.validator, req); err != nil {
		h.fail(w, r, "create invoice", err)
		return
	}
	inv, err := h.service.CreateInvoiceFromDraft(r.Context(), Draft{LeaseID: req.LeaseID, Month: req.Month, Lines: toLineItems(req.Lines)})
	if err != nil {
		h.fail(w, r, "create invoice", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Int64Param(r, "id")
	if err != nil {
		h.fail(w, r, "get invoice", err)
		return
	}
	inv, err := h.service.GetInvoice(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) updateLines(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Int64Param(r, "id")
	if err != nil {
		h.fail(w, r, "update lines", err)
		return
	}
	var req linesRequest
	if err := httpx.Decode(r, &req); err != nil {
		h.fail(w, r, "update lines", err)
		return
	}
	if err := httpx.ValidateStruct(h.validator, req); err != nil {
		h.fail(w, r, "update lines", err)
		return
	}
	inv, err := h.service.UpdateLines(r.Context(), id, toLineItems(req.Lines))
	if err != nil {
		h.fail(w, r, "update lines", err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) sendInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Int64Param(r, "id")
	if err != nil {
		h.fail(w, r, "send invoice", err)
		return
	}
	inv, err := h.service.SendInvoice(r.Context(), id)
	if err != nil {
		h.fail(w, r, "send invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) cancelInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Int64Param(r, "id")
	if err != nil {
		h.fail(w, r, "cancel invoice", err)
		return
	}
	var req cancelRequest
	if err := httpx.Decode(r, &req); err != nil {
		h.fail(w, r, "cancel invoice", err)
		return
	}
	if err := httpx.ValidateStruct(h.validator, req); err != nil {
		h.fail(w, r, "cancel invoice", err)
		return
	}
	inv, err := h.service.CancelInvoice(r.Context(), id, req.Reason)
	if err != nil {
		h.fail(w, r, "cancel invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) listAdjustments(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Int64Param(r, "id")
	if err != nil {
		h.fail(w, r, "list adjustments", err)
		return
	}
	adjustments, err := h.service.ListAdjustments(r.Context(), id)
	if err != nil {
		h.fail(w, r, "list adjustments", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"adjustments": adjustments})
}

func (h *Handler) decodeAdjustment(r *http.Request) (adjustmentRequest, AdjustmentRequest, error) {
	var req adjustmentRequest
	if err := httpx.Decode(r, &req); err != nil {
		return req, AdjustmentRequest{}, err
	}
	if err := httpx.ValidateStruct(h.validator, req); err != nil {
		return req, AdjustmentRequest{}, err
	}
	domain, err := req.toDomain()
	return req, domain, err
}

func (h *Handler) previewAdjustment(w http.ResponseWriter, r *http.Request) {
	_, req, err := h.decodeAdjustment(r)
	if err != nil {
		h.fail(w, r, "preview adjustment", err)
		return
	}
	proposal, err := h.service.PreviewAdjustment(r.Context(), req)
	if err != nil {
		h.fail(w, r, "preview adjustment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, proposal)
}

func (h *Handler) createAdjustment(w http.ResponseWriter, r *http.Request) {
	raw, req, err := h.decodeAdjustment(r)
	if err != nil {
		h.fail(w, r, "create adjustment", err)
		return
	}
	reviewed, err := raw.reviewed(req)
	if err != nil {
		h.fail(w, r, "create adjustment", err)
		return
	}
	result, err := h.service.CreateAdjustment(r.Context(), reviewed, r.Header.Get(httpx.IdempotencyHeader))
	if err != nil {
		h.fail(w, r, "create adjustment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"success":          true,
		"adjustment":       result.Adjustment,
		"adjusted_invoice": result.Invoice,
	})
}
