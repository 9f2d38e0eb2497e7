package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/exceva/property-ledger/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// OverdueSweeper marks receivable invoices past their due date OVERDUE.
type OverdueSweeper interface {
	SweepOverdue(ctx context.Context) (int, error)
}

// OverdueSweepJob runs the nightly overdue sweep.
type OverdueSweepJob struct {
	Sweeper OverdueSweeper
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewOverdueSweepJob wires dependencies for the sweep handler.
func NewOverdueSweepJob(sweeper OverdueSweeper, logger *slog.Logger, metrics *jobmetrics.Metrics) *OverdueSweepJob {
	return &OverdueSweepJob{Sweeper: sweeper, Logger: logger, Metrics: metrics}
}

// Handle processes overdue sweep tasks.
func (j *OverdueSweepJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Sweeper == nil {
		return errors.New("overdue sweep: handler not configured")
	}
	tracker := j.metrics().Track(TaskOverdueSweep)
	defer func() {
		err = tracker.End(err)
	}()

	logger := j.logger()
	start := time.Now()
	swept, err := j.Sweeper.SweepOverdue(ctx)
	if err != nil {
		logger.Error("overdue sweep failed", slog.Any("error", err))
		return err
	}
	j.metrics().AddAffected(TaskOverdueSweep, swept)
	logger.Info("completed overdue sweep", slog.Int("invoices", swept), slog.Duration("duration", time.Since(start)))
	return nil
}

func (j *OverdueSweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskOverdueSweep))
	}
	return slog.Default().With(slog.String("job", TaskOverdueSweep))
}

func (j *OverdueSweepJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
