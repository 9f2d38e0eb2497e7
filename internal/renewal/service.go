package renewal

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/exceva/property-ledger/internal/money"
	"github.com/exceva/property-ledger/internal/shared"
)

// RepositoryPort abstracts renewal storage.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetLeaseTerms(ctx context.Context, leaseID int64) (LeaseTerms, error)
	GetRenewal(ctx context.Context, id int64) (LeaseRenewal, error)
	ListRenewals(ctx context.Context, leaseID int64) ([]LeaseRenewal, error)
}

// TxRepository exposes the writes that must share one transaction.
type TxRepository interface {
	FindActiveRenewal(ctx context.Context, leaseID int64) (LeaseRenewal, bool, error)
	InsertRenewal(ctx context.Context, r LeaseRenewal) (int64, error)
	GetRenewalForUpdate(ctx context.Context, id int64) (LeaseRenewal, error)
	UpdateRenewal(ctx context.Context, r LeaseRenewal) error
}

// Enqueuer hands a notification to the background worker.
type Enqueuer interface {
	EnqueueRenewalNotification(ctx context.Context, renewalID int64, method string) error
}

// Sender delivers a rendered notice.
type Sender interface {
	Send(ctx context.Context, notice Notice) error
}

// Config carries renewal policy.
type Config struct {
	Currency          string
	RequireAcceptance bool
}

// Deps groups optional collaborators. Without an Enqueuer notices are
// delivered inline.
type Deps struct {
	Locks    shared.Locker
	Enqueuer Enqueuer
	Sender   Sender
	Audit    shared.AuditPort
	Logger   *slog.Logger
}

// Service orchestrates lease renewals.
type Service struct {
	repo   RepositoryPort
	cfg    Config
	deps   Deps
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds the renewal service.
func NewService(repo RepositoryPort, cfg Config, deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "renewal"))
	if deps.Sender == nil {
		deps.Sender = LogSender{Logger: logger}
	}
	return &Service{repo: repo, cfg: cfg, deps: deps, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// InitiateRenewal records a PENDING renewal. A lease holds at most one
// pending or approved renewal at a time.
func (s *Service) InitiateRenewal(ctx context.Context, p Proposal) (LeaseRenewal, error) {
	lease, err := s.repo.GetLeaseTerms(ctx, p.LeaseID)
	if err != nil {
		return LeaseRenewal{}, err
	}
	renewal, err := NewRenewal(lease, p, s.now())
	if err != nil {
		return LeaseRenewal{}, err
	}
	renewal.CreatedBy = shared.ActorFromContext(ctx)

	err = shared.RunLocked(ctx, s.deps.Locks, shared.LeaseLockKey(p.LeaseID), func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			active, found, err := tx.FindActiveRenewal(ctx, p.LeaseID)
			if err != nil {
				return err
			}
			if found {
				return &shared.StateError{
					Op:     "initiate renewal",
					State:  string(active.Status),
					Reason: fmt.Sprintf("lease already has an active renewal (#%d)", active.ID),
				}
			}
			id, err := tx.InsertRenewal(ctx, renewal)
			if err != nil {
				return err
			}
			renewal.ID = id
			return nil
		})
	})
	if err != nil {
		return LeaseRenewal{}, err
	}
	s.record(ctx, "renewal.create", renewal.ID, map[string]any{
		"lease_id":         renewal.LeaseID,
		"new_monthly_rent": renewal.NewMonthlyRent.String(),
		"escalation":       renewal.EscalationPercentage.String(),
	})
	return renewal, nil
}

// UpdateRenewalStatus moves a renewal through its lifecycle.
func (s *Service) UpdateRenewalStatus(ctx context.Context, id int64, status Status) (LeaseRenewal, error) {
	var out LeaseRenewal
	err := s.mutate(ctx, id, func(r *LeaseRenewal) error {
		if err := r.Transition(status, s.cfg.RequireAcceptance, s.now()); err != nil {
			return err
		}
		out = *r
		return nil
	})
	if err != nil {
		return LeaseRenewal{}, err
	}
	s.record(ctx, "renewal.status", id, map[string]any{"status": string(status)})
	return out, nil
}

// SetAcceptance records the tenant's or landlord's answer.
func (s *Service) SetAcceptance(ctx context.Context, id int64, party Party, accepted bool) (LeaseRenewal, error) {
	var out LeaseRenewal
	err := s.mutate(ctx, id, func(r *LeaseRenewal) error {
		if err := r.SetAcceptance(party, accepted, s.now()); err != nil {
			return err
		}
		out = *r
		return nil
	})
	if err != nil {
		return LeaseRenewal{}, err
	}
	s.record(ctx, "renewal.acceptance", id, map[string]any{"party": string(party), "accepted": accepted})
	return out, nil
}

func (s *Service) mutate(ctx context.Context, id int64, fn func(*LeaseRenewal) error) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		r, err := tx.GetRenewalForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(&r); err != nil {
			return err
		}
		return tx.UpdateRenewal(ctx, r)
	})
}

// SendRenewalNotification queues a notice to the tenant.
func (s *Service) SendRenewalNotification(ctx context.Context, id int64, method Method) (NotificationResult, error) {
	if !method.Valid() {
		return NotificationResult{}, shared.NewValidationError([]string{fmt.Sprintf("unsupported notification method %q", method)})
	}
	r, err := s.repo.GetRenewal(ctx, id)
	if err != nil {
		return NotificationResult{}, err
	}
	if r.Status == StatusRejected {
		return NotificationResult{}, &shared.StateError{Op: "send renewal notification", State: string(r.Status), Reason: "renewal was rejected"}
	}
	if s.deps.Enqueuer == nil {
		if err := s.Deliver(ctx, id, method); err != nil {
			return NotificationResult{}, err
		}
		return NotificationResult{Success: true, Message: fmt.Sprintf("Renewal notice sent by %s.", method)}, nil
	}
	if err := s.deps.Enqueuer.EnqueueRenewalNotification(ctx, id, string(method)); err != nil {
		return NotificationResult{}, fmt.Errorf("renewal: enqueue notification: %w", err)
	}
	return NotificationResult{Success: true, Message: fmt.Sprintf("Renewal notice queued for delivery by %s.", method)}, nil
}

// Deliver renders and sends a notice, then stamps the renewal. The worker
// calls it for queued notifications.
func (s *Service) Deliver(ctx context.Context, id int64, method Method) error {
	r, err := s.repo.GetRenewal(ctx, id)
	if err != nil {
		return err
	}
	lease, err := s.repo.GetLeaseTerms(ctx, r.LeaseID)
	if err != nil {
		return err
	}
	notice, err := s.render(r, lease, method)
	if err != nil {
		return err
	}
	if err := s.deps.Sender.Send(ctx, notice); err != nil {
		return fmt.Errorf("renewal: send notice: %w", err)
	}
	err = s.mutate(ctx, id, func(r *LeaseRenewal) error {
		at := s.now()
		r.LastNotifiedAt = &at
		r.LastNotifiedVia = method
		r.UpdatedAt = at
		return nil
	})
	if err != nil {
		return err
	}
	s.record(ctx, "renewal.notify", id, map[string]any{"method": string(method)})
	return nil
}

func (s *Service) render(r LeaseRenewal, lease LeaseTerms, method Method) (Notice, error) {
	to := lease.TenantEmail
	if method == MethodSMS {
		to = lease.TenantPhone
	}
	if strings.TrimSpace(to) == "" {
		return Notice{}, shared.NewValidationError([]string{fmt.Sprintf("tenant has no contact for %s notifications", method)})
	}
	name := lease.TenantName
	if name == "" {
		name = "Tenant"
	}
	body := fmt.Sprintf("Dear %s, your lease renewal for %s to %s is %s. The new monthly rent is %s, up %s%% from %s.",
		name,
		r.NewStartDate.Format(time.DateOnly), r.NewEndDate.Format(time.DateOnly),
		strings.ToLower(string(r.Status)),
		money.Format(s.cfg.Currency, r.NewMonthlyRent),
		r.EscalationPercentage.String(),
		money.Format(s.cfg.Currency, r.CurrentRent))
	return Notice{RenewalID: r.ID, Method: method, To: to, Subject: "Lease renewal", Body: body}, nil
}

// GetRenewal returns one renewal.
func (s *Service) GetRenewal(ctx context.Context, id int64) (LeaseRenewal, error) {
	return s.repo.GetRenewal(ctx, id)
}

// ListRenewals returns a lease's renewals, newest first.
func (s *Service) ListRenewals(ctx context.Context, leaseID int64) ([]LeaseRenewal, error) {
	return s.repo.ListRenewals(ctx, leaseID)
}

func (s *Service) record(ctx context.Context, action string, id int64, meta map[string]any) {
	if s.deps.Audit == nil {
		return
	}
	err := s.deps.Audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "lease_renewal",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Int64("renewal_id", id), slog.Any("error", err))
	}
}

// LogSender writes notices to the log. It stands in when no mail or SMS
// gateway is configured.
type LogSender struct {
	Logger *slog.Logger
}

// Send logs the notice.
func (l LogSender) Send(_ context.Context, notice Notice) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("renewal notice", slog.Int64("renewal_id", notice.RenewalID), slog.String("method", string(notice.Method)), slog.String("to", notice.To), slog.String("body", notice.Body))
	return nil
}
