package statement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/exceva/property-ledger/internal/billing"
	"github.com/exceva/property-ledger/internal/shared"
)

// RepositoryPort loads the read-only history a statement is built from.
type RepositoryPort interface {
	GetHeader(ctx context.Context, leaseID int64) (Header, error)
	ListInvoices(ctx context.Context, leaseID int64) ([]billing.Invoice, error)
	ListAdjustments(ctx context.Context, leaseID int64) ([]billing.Adjustment, error)
	ListAllocations(ctx context.Context, leaseID int64) ([]AllocationRecord, error)
}

// Service builds lease statements.
type Service struct {
	repo     RepositoryPort
	currency string
	logger   *slog.Logger
	group    singleflight.Group
	now      func() time.Time
}

// NewService builds the statement service.
func NewService(repo RepositoryPort, currency string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, currency: currency, logger: logger.With(slog.String("component", "statement")), now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// GetLeaseStatement reconciles a lease over [start, end]. A zero start means
// the lease start and a zero end means today. Identical concurrent requests
// share one load.
func (s *Service) GetLeaseStatement(ctx context.Context, leaseID int64, start, end time.Time) (Statement, error) {
	key := fmt.Sprintf("%d:%s:%s", leaseID, start.Format(time.DateOnly), end.Format(time.DateOnly))
	resultCh := s.group.DoChan(key, func() (any, error) {
		return s.build(context.WithoutCancel(ctx), leaseID, start, end)
	})
	select {
	case <-ctx.Done():
		return Statement{}, ctx.Err()
	case res := <-resultCh:
		if res.Err != nil {
			return Statement{}, res.Err
		}
		st := res.Val.(Statement)
		st.Transactions = append([]Transaction(nil), st.Transactions...)
		return st, nil
	}
}

func (s *Service) build(ctx context.Context, leaseID int64, start, end time.Time) (Statement, error) {
	header, err := s.repo.GetHeader(ctx, leaseID)
	if err != nil {
		return Statement{}, err
	}
	if start.IsZero() {
		start = header.LeaseStart
	}
	if end.IsZero() {
		end = s.now()
	}
	start, end = day(start), day(end)
	if end.Before(start) {
		return Statement{}, shared.NewValidationError([]string{"statement end date must not be before its start date"})
	}

	invoices, err := s.repo.ListInvoices(ctx, leaseID)
	if err != nil {
		return Statement{}, err
	}
	adjustments, err := s.repo.ListAdjustments(ctx, leaseID)
	if err != nil {
		return Statement{}, err
	}
	allocations, err := s.repo.ListAllocations(ctx, leaseID)
	if err != nil {
		return Statement{}, err
	}

	prior, period := SplitAt(BuildActivity(invoices, adjustments, allocations), start, end)
	rec := Reconcile(Opening(prior), period)
	s.logger.Debug("statement built", slog.Int64("lease_id", leaseID), slog.Int("rows", len(rec.Rows)))
	return Statement{
		Header:       header,
		Currency:     s.currency,
		PeriodStart:  start,
		PeriodEnd:    end,
		Summary:      rec.Summary,
		Transactions: rec.Rows,
		GeneratedAt:  s.now(),
	}, nil
}
