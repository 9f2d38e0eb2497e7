package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/exceva/property-ledger/internal/billing"
	"github.com/exceva/property-ledger/internal/money"
	"github.com/exceva/property-ledger/internal/shared"
)

// RepositoryPort abstracts payment storage.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	TenantExists(ctx context.Context, tenantID int64) (bool, error)
	GetCreditBalance(ctx context.Context, tenantID int64) (CreditBalance, error)
	TotalCreditHeld(ctx context.Context) (decimal.Decimal, error)
	ListTenantsWithCredit(ctx context.Context) ([]int64, error)
	ListPayments(ctx context.Context, tenantID int64) ([]Payment, error)
}

// TxRepository exposes the writes of one allocation.
type TxRepository interface {
	ListOpenInvoicesForUpdate(ctx context.Context, tenantID int64) ([]billing.Invoice, error)
	GetInvoiceForUpdate(ctx context.Context, invoiceID int64) (billing.Invoice, error)
	UpdateInvoicePayment(ctx context.Context, inv billing.Invoice) error
	InsertPayment(ctx context.Context, p Payment) (Payment, error)
	InsertAllocation(ctx context.Context, a Allocation) error
	GetCreditForUpdate(ctx context.Context, tenantID int64) (CreditBalance, error)
	SaveCredit(ctx context.Context, c CreditBalance) error
}

// Deps groups optional collaborators.
type Deps struct {
	Locks       shared.Locker
	Idempotency shared.IdempotencyPort
	Audit       shared.AuditPort
	Logger      *slog.Logger
}

// Service allocates payments and manages tenant credit.
type Service struct {
	repo     RepositoryPort
	currency string
	deps     Deps
	logger   *slog.Logger
	now      func() time.Time
}

// NewService builds the payments service.
func NewService(repo RepositoryPort, currency string, deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, currency: currency, deps: deps, logger: logger.With(slog.String("component", "payments")), now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// AllocatePayment records a tenant payment and applies it oldest invoice
// first. Credit the tenant already holds is drawn before the payment, and
// the payment's surplus goes to the credit balance. Everything commits
// together or not at all.
func (s *Service) AllocatePayment(ctx context.Context, in PaymentInput, idempotencyKey string) (AllocationResult, error) {
	in.Reference = strings.TrimSpace(in.Reference)
	if err := in.Validate(); err != nil {
		return AllocationResult{}, err
	}
	exists, err := s.repo.TenantExists(ctx, in.TenantID)
	if err != nil {
		return AllocationResult{}, err
	}
	if !exists {
		return AllocationResult{}, shared.ErrNotFound
	}
	actor := shared.ActorFromContext(ctx)

	var (
		payment  Payment
		plan     Plan
		drawn    []Allocation
		invoices []billing.Invoice
	)
	err = shared.RunLocked(ctx, s.deps.Locks, shared.TenantLockKey(in.TenantID), func(ctx context.Context) error {
		return shared.Guarded(ctx, s.deps.Idempotency, idempotencyKey, "payments", func() error {
			return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
				open, err := tx.ListOpenInvoicesForUpdate(ctx, in.TenantID)
				if err != nil {
					return err
				}
				now := s.now()
				held, err := tx.GetCreditForUpdate(ctx, in.TenantID)
				if err != nil {
					return err
				}
				drawn, err = s.applyCredit(ctx, tx, held, open, now)
				if err != nil {
					return err
				}
				plan, err = PlanAllocation(in.Amount, OpenInvoicesOf(open))
				if err != nil {
					return err
				}
				payment, err = tx.InsertPayment(ctx, Payment{
					TenantID:  in.TenantID,
					Amount:    money.Round(in.Amount),
					Method:    in.Method,
					PaidAt:    in.Date,
					Reference: in.Reference,
					Notes:     strings.TrimSpace(in.Notes),
					CreatedBy: actor,
					CreatedAt: now,
				})
				if err != nil {
					return err
				}
				byID := indexInvoices(open)
				for i := range plan.Allocations {
					alloc := &plan.Allocations[i]
					alloc.PaymentID = payment.ID
					alloc.AppliedAt = in.Date
					inv := byID[alloc.InvoiceID]
					if err := inv.RecordPayment(alloc.Amount); err != nil {
						return err
					}
					inv.UpdatedAt = now
					if err := tx.UpdateInvoicePayment(ctx, *inv); err != nil {
						return err
					}
					if err := tx.InsertAllocation(ctx, *alloc); err != nil {
						return err
					}
				}
				invoices = touchedInvoices(open, drawn, plan.Allocations)
				if plan.ToCredit.IsPositive() {
					credit, err := tx.GetCreditForUpdate(ctx, in.TenantID)
					if err != nil {
						return err
					}
					credit.Amount = credit.Amount.Add(plan.ToCredit)
					credit.UpdatedAt = now
					if err := tx.SaveCredit(ctx, credit); err != nil {
						return err
					}
				}
				return nil
			})
		})
	})
	if err != nil {
		return AllocationResult{}, err
	}

	credit, err := s.repo.GetCreditBalance(ctx, in.TenantID)
	if err != nil {
		return AllocationResult{}, fmt.Errorf("payments: re-read credit balance: %w", err)
	}
	creditDrawn := sumAllocations(drawn)
	s.record(ctx, actor, "payment.allocate", "payment", payment.ID, map[string]any{
		"tenant_id":    in.TenantID,
		"amount":       payment.Amount.String(),
		"applied":      plan.Applied.String(),
		"to_credit":    plan.ToCredit.String(),
		"credit_drawn": creditDrawn.String(),
	})
	return AllocationResult{
		Success:       true,
		Message:       s.describe(payment.Amount, plan, creditDrawn),
		Payment:       payment,
		Allocations:   append(append([]Allocation{}, drawn...), plan.Allocations...),
		Invoices:      invoices,
		CreditBalance: credit,
	}, nil
}

func (s *Service) describe(amount decimal.Decimal, plan Plan, creditDrawn decimal.Decimal) string {
	msg := fmt.Sprintf("Payment of %s recorded", money.Format(s.currency, amount))
	if n := len(plan.Allocations); n > 0 {
		msg += fmt.Sprintf(" and applied to %d invoice(s)", n)
	}
	if creditDrawn.IsPositive() {
		msg += fmt.Sprintf("; %s of held credit applied first", money.Format(s.currency, creditDrawn))
	}
	if plan.ToCredit.IsPositive() {
		msg += fmt.Sprintf("; %s added to credit balance", money.Format(s.currency, plan.ToCredit))
	}
	return msg + "."
}

// DrawCredit applies held credit to a receivable invoice and returns the
// amount drawn.
func (s *Service) DrawCredit(ctx context.Context, tenantID, invoiceID int64) (decimal.Decimal, error) {
	drawn := decimal.Zero
	err := shared.RunLocked(ctx, s.deps.Locks, shared.TenantLockKey(tenantID), func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			credit, err := tx.GetCreditForUpdate(ctx, tenantID)
			if err != nil {
				return err
			}
			if !credit.Amount.IsPositive() {
				return nil
			}
			inv, err := tx.GetInvoiceForUpdate(ctx, invoiceID)
			if err != nil {
				return err
			}
			if inv.TenantID != tenantID {
				return &shared.StateError{Op: "draw credit", Reason: "invoice belongs to another tenant"}
			}
			allocs, err := s.applyCredit(ctx, tx, credit, []billing.Invoice{inv}, s.now())
			if err != nil {
				return err
			}
			drawn = sumAllocations(allocs)
			return nil
		})
	})
	if err != nil {
		return decimal.Zero, err
	}
	if drawn.IsPositive() {
		s.record(ctx, shared.ActorFromContext(ctx), "credit.draw", "invoice", invoiceID, map[string]any{"tenant_id": tenantID, "amount": drawn.String()})
	}
	return drawn, nil
}

// ApplyHeldCredit draws every tenant's held credit against their open
// invoices and returns how many tenants had credit applied. Tenants whose
// lock is busy are skipped until the next run; other failures are joined.
func (s *Service) ApplyHeldCredit(ctx context.Context) (int, error) {
	tenants, err := s.repo.ListTenantsWithCredit(ctx)
	if err != nil {
		return 0, err
	}
	var (
		applied int
		errs    []error
	)
	for _, tenantID := range tenants {
		var drawn []Allocation
		err := shared.RunLocked(ctx, s.deps.Locks, shared.TenantLockKey(tenantID), func(ctx context.Context) error {
			return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
				credit, err := tx.GetCreditForUpdate(ctx, tenantID)
				if err != nil {
					return err
				}
				open, err := tx.ListOpenInvoicesForUpdate(ctx, tenantID)
				if err != nil {
					return err
				}
				drawn, err = s.applyCredit(ctx, tx, credit, open, s.now())
				return err
			})
		})
		switch {
		case errors.Is(err, shared.ErrLockHeld):
			s.logger.Info("credit sweep skipped busy tenant", slog.Int64("tenant_id", tenantID))
			continue
		case err != nil:
			errs = append(errs, fmt.Errorf("tenant %d: %w", tenantID, err))
			continue
		}
		if len(drawn) == 0 {
			continue
		}
		applied++
		for _, alloc := range drawn {
			s.record(ctx, 0, "credit.draw", "invoice", alloc.InvoiceID, map[string]any{"tenant_id": tenantID, "amount": alloc.Amount.String()})
		}
	}
	return applied, errors.Join(errs...)
}

// applyCredit draws the locked credit balance against open, oldest first,
// inside the caller's transaction. Invoices in open are updated in place.
func (s *Service) applyCredit(ctx context.Context, tx TxRepository, credit CreditBalance, open []billing.Invoice, now time.Time) ([]Allocation, error) {
	if !credit.Amount.IsPositive() {
		return nil, nil
	}
	candidates := OpenInvoicesOf(open)
	if len(candidates) == 0 {
		return nil, nil
	}
	plan, err := PlanAllocation(credit.Amount, candidates)
	if err != nil {
		return nil, err
	}
	if len(plan.Allocations) == 0 {
		return nil, nil
	}
	byID := indexInvoices(open)
	for i := range plan.Allocations {
		alloc := &plan.Allocations[i]
		alloc.Source = SourceCredit
		alloc.AppliedAt = now
		inv := byID[alloc.InvoiceID]
		if err := inv.RecordPayment(alloc.Amount); err != nil {
			return nil, err
		}
		inv.UpdatedAt = now
		if err := tx.UpdateInvoicePayment(ctx, *inv); err != nil {
			return nil, err
		}
		if err := tx.InsertAllocation(ctx, *alloc); err != nil {
			return nil, err
		}
	}
	credit.Amount = credit.Amount.Sub(plan.Applied)
	credit.UpdatedAt = now
	if err := tx.SaveCredit(ctx, credit); err != nil {
		return nil, err
	}
	return plan.Allocations, nil
}

func indexInvoices(invoices []billing.Invoice) map[int64]*billing.Invoice {
	byID := make(map[int64]*billing.Invoice, len(invoices))
	for i := range invoices {
		byID[invoices[i].ID] = &invoices[i]
	}
	return byID
}

// touchedInvoices returns the invoices any allocation changed, in open's order.
func touchedInvoices(open []billing.Invoice, groups ...[]Allocation) []billing.Invoice {
	touched := map[int64]bool{}
	for _, group := range groups {
		for _, alloc := range group {
			touched[alloc.InvoiceID] = true
		}
	}
	out := []billing.Invoice{}
	for _, inv := range open {
		if touched[inv.ID] {
			out = append(out, inv)
		}
	}
	return out
}

func sumAllocations(allocs []Allocation) decimal.Decimal {
	total := decimal.Zero
	for _, alloc := range allocs {
		total = total.Add(alloc.Amount)
	}
	return total
}

// GetTenantCreditBalance returns a tenant's current credit.
func (s *Service) GetTenantCreditBalance(ctx context.Context, tenantID int64) (CreditBalance, error) {
	exists, err := s.repo.TenantExists(ctx, tenantID)
	if err != nil {
		return CreditBalance{}, err
	}
	if !exists {
		return CreditBalance{}, shared.ErrNotFound
	}
	return s.repo.GetCreditBalance(ctx, tenantID)
}

// TotalCreditHeld sums credit across tenants.
func (s *Service) TotalCreditHeld(ctx context.Context) (decimal.Decimal, error) {
	return s.repo.TotalCreditHeld(ctx)
}

// ListPayments returns a tenant's payments, newest first.
func (s *Service) ListPayments(ctx context.Context, tenantID int64) ([]Payment, error) {
	exists, err := s.repo.TenantExists(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, shared.ErrNotFound
	}
	return s.repo.ListPayments(ctx, tenantID)
}

func (s *Service) record(ctx context.Context, actor int64, action, entity string, id int64, meta map[string]any) {
	if s.deps.Audit == nil {
		return
	}
	if err := s.deps.Audit.Record(ctx, shared.AuditLog{
		ActorID:  actor,
		Action:   action,
		Entity:   entity,
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
		At:       s.now(),
	}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
