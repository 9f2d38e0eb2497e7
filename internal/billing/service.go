package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/exceva/property-ledger/internal/shared"
)

// RepositoryPort abstracts invoice storage.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetLeaseContext(ctx context.Context, leaseID int64) (LeaseContext, error)
	GetInvoice(ctx context.Context, id int64) (Invoice, error)
	FindInvoiceForMonth(ctx context.Context, leaseID int64, periodStart time.Time) (Invoice, bool, error)
	GetDraft(ctx context.Context, leaseID int64, month string) (Draft, bool, error)
	SaveDraft(ctx context.Context, draft Draft) error
	ListRecurringCharges(ctx context.Context, leaseID int64) ([]RecurringCharge, error)
	ListAdjustments(ctx context.Context, invoiceID int64) ([]Adjustment, error)
	ListInvoicesByStatus(ctx context.Context, statuses ...InvoiceStatus) ([]Invoice, error)
	SumAdjustments(ctx context.Context) (decimal.Decimal, error)
}

// TxRepository exposes the writes that must share one transaction.
type TxRepository interface {
	GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error)
	FindInvoiceForMonth(ctx context.Context, leaseID int64, periodStart time.Time) (Invoice, bool, error)
	NextInvoiceSequence(ctx context.Context) (int64, error)
	InsertInvoice(ctx context.Context, inv Invoice) (int64, error)
	ReplaceInvoiceLines(ctx context.Context, invoiceID int64, lines []LineItem) error
	UpdateInvoice(ctx context.Context, inv Invoice) error
	InsertAdjustment(ctx context.Context, adj Adjustment) error
	DeleteDraft(ctx context.Context, leaseID int64, month string) error
	ListReceivableDueBefore(ctx context.Context, cutoff time.Time) ([]Invoice, error)
}

// CreditDrawer applies a tenant's unapplied credit to a newly sent invoice.
type CreditDrawer interface {
	DrawCredit(ctx context.Context, tenantID, invoiceID int64) (decimal.Decimal, error)
}

// CreditReader reports the credit held across all tenants.
type CreditReader interface {
	TotalCreditHeld(ctx context.Context) (decimal.Decimal, error)
}

// Config carries billing policy.
type Config struct {
	Currency          string
	CommercialTaxRate decimal.Decimal
	DueDays           int
}

// Deps groups optional collaborators. Nil members are skipped.
type Deps struct {
	Credit      CreditDrawer
	CreditTotal CreditReader
	Locks       shared.Locker
	Idempotency shared.IdempotencyPort
	Audit       shared.AuditPort
	Logger      *slog.Logger
}

// Service orchestrates invoices, drafts and adjustments.
type Service struct {
	repo   RepositoryPort
	cfg    Config
	deps   Deps
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds the billing service.
func NewService(repo RepositoryPort, cfg Config, deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DueDays <= 0 {
		cfg.DueDays = 7
	}
	return &Service{repo: repo, cfg: cfg, deps: deps, logger: logger.With(slog.String("component", "billing")), now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) taxRateFor(lease LeaseContext) decimal.Decimal {
	if lease.Commercial {
		return s.cfg.CommercialTaxRate
	}
	return decimal.Zero
}

// NavigateToMonth returns the month's invoice, or the saved draft, or a draft
// seeded from the lease's recurring charges.
func (s *Service) NavigateToMonth(ctx context.Context, leaseID int64, month string) (MonthView, error) {
	start, _, err := ParseMonth(month)
	if err != nil {
		return MonthView{}, shared.NewValidationError([]string{err.Error()})
	}
	lease, err := s.repo.GetLeaseContext(ctx, leaseID)
	if err != nil {
		return MonthView{}, err
	}
	inv, found, err := s.repo.FindInvoiceForMonth(ctx, leaseID, start)
	if err != nil {
		return MonthView{}, err
	}
	if found {
		inv.Status = inv.EffectiveStatus(s.now())
		return MonthView{HasInvoice: true, Invoice: &inv}, nil
	}
	draft, found, err := s.repo.GetDraft(ctx, leaseID, month)
	if err != nil {
		return MonthView{}, err
	}
	if !found {
		charges, err := s.repo.ListRecurringCharges(ctx, leaseID)
		if err != nil {
			return MonthView{}, err
		}
		draft = SeedDraft(lease, month, charges)
	}
	return MonthView{InvoiceData: &draft}, nil
}

// SeedDraft prefills a month from recurring charges, falling back to the
// lease rent when none are configured.
func SeedDraft(lease LeaseContext, month string, charges []RecurringCharge) Draft {
	draft := Draft{LeaseID: lease.LeaseID, Month: month, Lines: []LineItem{}}
	for _, charge := range charges {
		draft.Lines = append(draft.Lines, LineItem{
			Description: charge.Description,
			Category:    charge.Category,
			Quantity:    decimal.NewFromInt(1),
			UnitPrice:   charge.Amount,
		})
	}
	if len(draft.Lines) == 0 && lease.MonthlyRent.IsPositive() {
		draft.Lines = append(draft.Lines, LineItem{
			Description: "Monthly rent",
			Category:    "rent",
			Quantity:    decimal.NewFromInt(1),
			UnitPrice:   lease.MonthlyRent,
		})
	}
	return draft
}

// SaveDraft persists an unnumbered draft for a month that has no invoice.
func (s *Service) SaveDraft(ctx context.Context, draft Draft) (Draft, error) {
	start, _, err := ParseMonth(draft.Month)
	if err != nil {
		return Draft{}, shared.NewValidationError([]string{err.Error()})
	}
	if err := ValidateLines(draft.Lines); err != nil {
		return Draft{}, err
	}
	if _, err := s.repo.GetLeaseContext(ctx, draft.LeaseID); err != nil {
		return Draft{}, err
	}
	if _, found, err := s.repo.FindInvoiceForMonth(ctx, draft.LeaseID, start); err != nil {
		return Draft{}, err
	} else if found {
		return Draft{}, &shared.StateError{Op: "save draft", Reason: "month " + draft.Month + " is already invoiced"}
	}
	draft.SavedAt = s.now()
	if err := s.repo.SaveDraft(ctx, draft); err != nil {
		return Draft{}, err
	}
	return draft, nil
}

// CreateInvoiceFromDraft promotes a draft into a numbered CREATED invoice.
func (s *Service) CreateInvoiceFromDraft(ctx context.Context, draft Draft) (Invoice, error) {
	lease, err := s.repo.GetLeaseContext(ctx, draft.LeaseID)
	if err != nil {
		return Invoice{}, err
	}
	if !lease.Active {
		return Invoice{}, &shared.StateError{Op: "create invoice", Reason: "lease is not active"}
	}
	inv, err := NewDraftInvoice(lease, draft.Month, draft.Lines, s.taxRateFor(lease), s.cfg.Currency, s.cfg.DueDays)
	if err != nil {
		return Invoice{}, err
	}
	actor := shared.ActorFromContext(ctx)
	now := s.now()
	inv.CreatedBy = actor
	inv.CreatedAt = now
	inv.UpdatedAt = now

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		_, found, err := tx.FindInvoiceForMonth(ctx, inv.LeaseID, inv.PeriodStart)
		if err != nil {
			return err
		}
		if found {
			return &shared.StateError{Op: "create invoice", Reason: "month " + draft.Month + " is already invoiced"}
		}
		seq, err := tx.NextInvoiceSequence(ctx)
		if err != nil {
			return err
		}
		if err := inv.Promote(InvoiceNumber(inv.PeriodStart, seq)); err != nil {
			return err
		}
		id, err := tx.InsertInvoice(ctx, inv)
		if err != nil {
			return err
		}
		inv.ID = id
		return tx.DeleteDraft(ctx, inv.LeaseID, draft.Month)
	})
	if err != nil {
		return Invoice{}, err
	}
	s.record(ctx, actor, "invoice.create", inv.ID, map[string]any{"number": inv.Number, "lease_id": inv.LeaseID, "total": inv.TotalAmount().String()})
	return inv, nil
}

// InvoiceNumber formats the human invoice number.
func InvoiceNumber(periodStart time.Time, seq int64) string {
	return fmt.Sprintf("INV-%s-%06d", periodStart.Format("200601"), seq)
}

// UpdateLines replaces the line items of an unsent invoice.
func (s *Service) UpdateLines(ctx context.Context, id int64, lines []LineItem) (Invoice, error) {
	var inv Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := current.ReplaceLines(lines); err != nil {
			return err
		}
		current.UpdatedAt = s.now()
		if err := tx.ReplaceInvoiceLines(ctx, id, current.Lines()); err != nil {
			return err
		}
		if err := tx.UpdateInvoice(ctx, current); err != nil {
			return err
		}
		inv = current
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

// SendInvoice locks the invoice and draws any tenant credit against it.
func (s *Service) SendInvoice(ctx context.Context, id int64) (Invoice, error) {
	actor := shared.ActorFromContext(ctx)
	var sent Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		now := s.now()
		if err := current.Send(now); err != nil {
			return err
		}
		current.UpdatedAt = now
		if err := tx.UpdateInvoice(ctx, current); err != nil {
			return err
		}
		sent = current
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	s.record(ctx, actor, "invoice.send", sent.ID, map[string]any{"number": sent.Number, "total": sent.TotalAmount().String()})

	if s.deps.Credit != nil {
		drawn, err := s.deps.Credit.DrawCredit(ctx, sent.TenantID, sent.ID)
		if err != nil {
			// the hourly credit sweep retries the draw
			s.logger.Warn("credit draw deferred", slog.Int64("invoice_id", sent.ID), slog.Any("error", err))
		} else if drawn.IsPositive() {
			s.logger.Info("credit applied", slog.Int64("invoice_id", sent.ID), slog.String("amount", drawn.StringFixed(2)))
		}
		return s.GetInvoice(ctx, sent.ID)
	}
	return sent, nil
}

// CancelInvoice voids an invoice with a reason.
func (s *Service) CancelInvoice(ctx context.Context, id int64, reason string) (Invoice, error) {
	actor := shared.ActorFromContext(ctx)
	var inv Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		now := s.now()
		if err := current.Cancel(strings.TrimSpace(reason), now); err != nil {
			return err
		}
		current.UpdatedAt = now
		if err := tx.UpdateInvoice(ctx, current); err != nil {
			return err
		}
		inv = current
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	s.record(ctx, actor, "invoice.cancel", inv.ID, map[string]any{"reason": inv.CancelReason})
	return inv, nil
}

// GetInvoice loads an invoice with its derived status.
func (s *Service) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	inv.Status = inv.EffectiveStatus(s.now())
	return inv, nil
}

// PreviewAdjustment validates an adjustment without committing it.
func (s *Service) PreviewAdjustment(ctx context.Context, req AdjustmentRequest) (Proposal, error) {
	inv, err := s.repo.GetInvoice(ctx, req.InvoiceID)
	if err != nil {
		return Proposal{}, err
	}
	return ProposeAdjustment(&inv, req)
}

// CreateAdjustment commits a reviewed proposal. The proposal's previous
// total and delta must still hold against the locked invoice; a review made
// against another total is a StateError and nothing is written.
// idempotencyKey may be empty.
func (s *Service) CreateAdjustment(ctx context.Context, reviewed Proposal, idempotencyKey string) (AdjustmentResult, error) {
	req := reviewed.Request
	if req.InvoiceID == 0 {
		return AdjustmentResult{}, &shared.StateError{Op: "create adjustment", Reason: "no invoice selected"}
	}
	actor := shared.ActorFromContext(ctx)
	var result AdjustmentResult
	err := shared.RunLocked(ctx, s.deps.Locks, shared.InvoiceLockKey(req.InvoiceID), func(ctx context.Context) error {
		return shared.Guarded(ctx, s.deps.Idempotency, idempotencyKey, "adjustments", func() error {
			return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
				inv, err := tx.GetInvoiceForUpdate(ctx, req.InvoiceID)
				if err != nil {
					return err
				}
				adj, err := inv.ApplyAdjustment(reviewed, actor, s.now())
				if err != nil {
					return err
				}
				if err := tx.InsertAdjustment(ctx, adj); err != nil {
					return err
				}
				if err := tx.UpdateInvoice(ctx, inv); err != nil {
					return err
				}
				result = AdjustmentResult{Adjustment: adj, Invoice: inv}
				return nil
			})
		})
	})
	if err != nil {
		if errors.Is(err, shared.ErrValidation) || errors.Is(err, shared.ErrInvalidState) {
			s.logger.Info("adjustment rejected", slog.Int64("invoice_id", req.InvoiceID), slog.Any("error", err))
		}
		return AdjustmentResult{}, err
	}
	adj := result.Adjustment
	s.record(ctx, actor, "adjustment.create", adj.InvoiceID, map[string]any{
		"adjustment_id": adj.ID.String(),
		"type":          string(adj.Type),
		"delta":         adj.Delta.String(),
		"new_total":     adj.NewTotal.String(),
		"reason":        adj.Reason,
	})
	return result, nil
}

// ListAdjustments returns an invoice's committed adjustments in order.
func (s *Service) ListAdjustments(ctx context.Context, invoiceID int64) ([]Adjustment, error) {
	if _, err := s.repo.GetInvoice(ctx, invoiceID); err != nil {
		return nil, err
	}
	return s.repo.ListAdjustments(ctx, invoiceID)
}

// GetRecurringCharges lists the standing charges of a lease.
func (s *Service) GetRecurringCharges(ctx context.Context, leaseID int64) ([]RecurringCharge, error) {
	if _, err := s.repo.GetLeaseContext(ctx, leaseID); err != nil {
		return nil, err
	}
	return s.repo.ListRecurringCharges(ctx, leaseID)
}

// SweepOverdue materialises the derived OVERDUE status for list queries.
func (s *Service) SweepOverdue(ctx context.Context) (int, error) {
	now := s.now()
	marked := 0
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		candidates, err := tx.ListReceivableDueBefore(ctx, now)
		if err != nil {
			return err
		}
		for _, inv := range candidates {
			if inv.Status == StatusOverdue || inv.EffectiveStatus(now) != StatusOverdue {
				continue
			}
			if err := inv.transition("mark overdue", StatusOverdue); err != nil {
				return err
			}
			inv.UpdatedAt = now
			if err := tx.UpdateInvoice(ctx, inv); err != nil {
				return err
			}
			marked++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return marked, nil
}

func (s *Service) record(ctx context.Context, actor int64, action string, invoiceID int64, meta map[string]any) {
	if s.deps.Audit == nil {
		return
	}
	err := s.deps.Audit.Record(ctx, shared.AuditLog{
		ActorID:  actor,
		Action:   action,
		Entity:   "invoice",
		EntityID: fmt.Sprintf("%d", invoiceID),
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
