package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/exceva/property-ledger/internal/app"
	"github.com/exceva/property-ledger/jobs"
)

// JobNames maps the operator-facing job names to task types.
var JobNames = map[string]string{
	"overdue-sweep":       jobs.TaskOverdueSweep,
	"credit-sweep":        jobs.TaskCreditSweep,
	"idempotency-cleanup": jobs.TaskIdempotencyCleanup,
}

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

// NewJobsCLI initialises the CLI helpers using the provided Redis address.
func NewJobsCLI(redisAddr string) *JobsCLI {
	opts := asynq.RedisClientOpt{Addr: redisAddr}
	return &JobsCLI{client: asynq.NewClient(opts), inspector: asynq.NewInspector(opts)}
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		if closeErr := c.inspector.Close(); closeErr != nil {
			err = closeErr
		}
	}
	if c.client != nil {
		if closeErr := c.client.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// BuildTask prepares the task for a job name. Retention only applies to
// idempotency cleanup.
func BuildTask(name string, retention time.Duration) (*asynq.Task, error) {
	switch JobNames[name] {
	case jobs.TaskOverdueSweep:
		return jobs.NewOverdueSweepTask(), nil
	case jobs.TaskCreditSweep:
		return jobs.NewCreditSweepTask(), nil
	case jobs.TaskIdempotencyCleanup:
		return jobs.NewIdempotencyCleanupTask(retention)
	default:
		return nil, fmt.Errorf("jobs cli: unsupported job %q", name)
	}
}

// Trigger enqueues a supported job by name.
func (c *JobsCLI) Trigger(ctx context.Context, name string, retention time.Duration) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	task, err := BuildTask(name, retention)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.Queue(jobs.QueueDefault), asynq.MaxRetry(3))
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
	Archived  int
}

// InspectQueue reports the queue metrics for the default queue.
func (c *JobsCLI) InspectQueue() (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
		stats.Archived = info.Archived
	}
	return stats, nil
}

func newJobsCommand() *cobra.Command {
	var redisAddr string
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Trigger and inspect ledger background jobs",
	}
	cmd.PersistentFlags().StringVar(&redisAddr, "redis-addr", "", "redis address (defaults to REDIS_ADDR)")

	connect := func() (*JobsCLI, time.Duration, error) {
		cfg, err := app.LoadConfig()
		if err != nil {
			return nil, 0, err
		}
		addr := redisAddr
		if addr == "" {
			addr = cfg.RedisAddr
		}
		return NewJobsCLI(addr), cfg.IdempotencyRetention, nil
	}

	trigger := &cobra.Command{
		Use:       "trigger <overdue-sweep|credit-sweep|idempotency-cleanup>",
		Short:     "Enqueue a job now",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"overdue-sweep", "credit-sweep", "idempotency-cleanup"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, ok := JobNames[args[0]]; !ok {
				return fmt.Errorf("jobs cli: unsupported job %q", args[0])
			}
			c, retention, err := connect()
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()
			info, err := c.Trigger(cmd.Context(), args[0], retention)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
			return nil
		},
	}
	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show queue counts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, _, err := connect()
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()
			s, err := c.InspectQueue()
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "queue=%s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
				s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry, s.Archived)
			return nil
		},
	}
	cmd.AddCommand(trigger, stats)
	return cmd
}
