package statement

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/exceva/property-ledger/internal/platform/httpx"
)

// Handler exposes lease statements.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers statement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/leases/{leaseID}/statement", h.getStatement)
	r.Get("/leases/{leaseID}/statement.xlsx", h.exportStatement)
}

func (h *Handler) load(r *http.Request) (Statement, error) {
	leaseID, err := httpx.Int64Param(r, "leaseID")
	if err != nil {
		return Statement{}, err
	}
	start, err := httpx.DateQuery(r, "start")
	if err != nil {
		return Statement{}, err
	}
	end, err := httpx.DateQuery(r, "end")
	if err != nil {
		return Statement{}, err
	}
	return h.service.GetLeaseStatement(r.Context(), leaseID, start, end)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if !httpx.Expected(err) {
		h.logger.Error("lease statement", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func (h *Handler) getStatement(w http.ResponseWriter, r *http.Request) {
	st, err := h.load(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, st)
}

func (h *Handler) exportStatement(w http.ResponseWriter, r *http.Request) {
	st, err := h.load(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="statement-lease-%d-%s.xlsx"`, st.LeaseID, st.PeriodEnd.Format("20060102")))
	if err := WriteXLSX(w, st); err != nil {
		h.logger.Error("export statement", slog.Int64("lease_id", st.LeaseID), slog.Any("error", err))
	}
}
