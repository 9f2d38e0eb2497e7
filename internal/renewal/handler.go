package renewal

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

// Handler exposes renewal endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers renewal routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/leases/{leaseID}/renewals", h.listRenewals)
	r.Post("/renewals", h.initiateRenewal)
	r.Route("/renewals/{id}", func(r chi.Router) {
		r.Get("/", h.getRenewal)
		r.Post("/status", h.updateStatus)
		r.Post("/acceptance", h.setAcceptance)
		r.Post("/notify", h.notify)
	})
}

type initiateRequest struct {
	LeaseID              int64            `json:"lease_id" validate:"required,gt=0"`
	NewStartDate         string           `json:"new_start_date" validate:"required"`
	NewEndDate           string           `json:"new_end_date" validate:"required"`
	EscalationPercentage decimal.Decimal  `json:"escalation_percentage"`
	NewMonthlyRent       *decimal.Decimal `json:"new_monthly_rent"`
	Notes                string           `json:"notes" validate:"max=2000"`
}

func (req initiateRequest) toDomain() (Proposal, error) {
	var problems shared.Problems
	start, err := time.Parse(time.DateOnly, strings.TrimSpace(req.NewStartDate))
	if err != nil {
		problems.Addf("new start date must be formatted YYYY-MM-DD")
	}
	end, err := time.Parse(time.DateOnly, strings.TrimSpace(req.NewEndDate))
	if err != nil {
		problems.Addf("new end date must be formatted YYYY-MM-DD")
	}
	if err := problems.Err(); err != nil {
		return Proposal{}, err
	}
	return Proposal{
		LeaseID:              req.LeaseID,
		NewStartDate:         start,
		NewEndDate:           end,
		EscalationPercentage: req.EscalationPercentage,
		NewMonthlyRent:       req.NewMonthlyRent,
		Notes:                req.Notes,
	}, nil
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

type acceptanceRequest struct {
	Party    string `json:"party" validate:"required,oneof=tenant landlord"`
	Accepted bool   `json:"accepted"`
}

type notifyRequest struct {
	Method string `json:"method" validate:"required,oneof=email sms"`
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if !httpx.Expected(err) {
		h.logger.Error(op, slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func (h *Handler) decode(r *http.Request, target any) error {
	if err := httpx.Decode(r, target); err != nil {
		return err
	}
	return httpx.ValidateStruct(h.validator, target)
}

func (h *Handler) initiateRenewal(w http.ResponseWriter, r *http.Request) {
	var req initiateRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, "initiate renewal", err)
		return
	}
	proposal, err := req.toDomain()
	if err != nil {
		h.fail(w, r, "initiate renewal", err)
		return
	}
	renewal, err := h.service.InitiateRenewal(r.Context(), proposal)
	if err != nil {
		h.fail(w, r, "initiate renewal", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, renewal)
}

func (h *Handler) getRenewal(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Int64Param(r, "id")
	if err != nil {
		h.fail(w, r, "get renewal", err)
		return
	}
	renewal, err := h.service.GetRenewal(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get renewal", err)
		return
	}
	httpx.JSON(w, http.StatusOK, renewal)
}

func (h *Handler) listRenewals(w http.ResponseWriter, r *http.Request) {
	leaseID, err := httpx.Int64Param(r, "leaseID")
	if err != nil {
		h.fail(w, r, "list renewals", err)
		return
	}
	renewals, err := h.service.ListRenewals(r.Context(), leaseID)
	if err != nil {
		h.fail(w, r, "list renewals", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"renewals": renewals})
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Int64Param(r, "id")
	if err != nil {
		h.fail(w, r, "update renewal status", err)
		return
	}
	var req statusRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, "update renewal status", err)
		return
	}
	status, err := ParseStatus(req.Status)
	if err != nil {
		h.fail(w, r, "update renewal status", err)
		return
	}
	renewal, err := h.service.UpdateRenewalStatus(r.Context(), id, status)
	if err != nil {
		h.fail(w, r, "update renewal status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, renewal)
}

func (h *Handler) setAcceptance(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Int64Param(r, "id")
	if err != nil {
		h.fail(w, r, "record acceptance", err)
		return
	}
	var req acceptanceRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, "record acceptance", err)
		return
	}
	renewal, err := h.service.SetAcceptance(r.Context(), id, Party(req.Party), req.Accepted)
	if err != nil {
		h.fail(w, r, "record acceptance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, renewal)
}

func (h *Handler) notify(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Int64Param(r, "id")
	if err != nil {
		h.fail(w, r, "send renewal notification", err)
		return
	}
	var req notifyRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, "send renewal notification", err)
		return
	}
	result, err := h.service.SendRenewalNotification(r.Context(), id, Method(req.Method))
	if err != nil {
		h.fail(w, r, "send renewal notification", err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, result)
}
