package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/exceva/property-ledger/internal/jobs"
)

// CreditApplier draws held tenant credit against open invoices.
type CreditApplier interface {
	ApplyHeldCredit(ctx context.Context) (int, error)
}

// CreditSweepJob retries credit draws that could not run when an invoice
// was sent.
type CreditSweepJob struct {
	Applier CreditApplier
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle processes credit sweep tasks.
func (j *CreditSweepJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Applier == nil {
		return errors.New("credit sweep: handler not configured")
	}
	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(TaskCreditSweep)
	defer func() {
		err = tracker.End(err)
	}()

	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("job", TaskCreditSweep))
	start := time.Now()
	tenants, err := j.Applier.ApplyHeldCredit(ctx)
	metrics.AddAffected(TaskCreditSweep, tenants)
	if err != nil {
		logger.Error("credit sweep failed", slog.Int("tenants", tenants), slog.Any("error", err))
		return err
	}
	logger.Info("completed credit sweep", slog.Int("tenants", tenants), slog.Duration("duration", time.Since(start)))
	return nil
}
