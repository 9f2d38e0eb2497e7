package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
)

// taskClient is the part of asynq.Client the enqueuer uses.
type taskClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Enqueuer hands work from the API process to the worker.
type Enqueuer struct {
	client taskClient
}

// NewEnqueuer connects an enqueuer to redis.
func NewEnqueuer(redisOpts asynq.RedisClientOpt) *Enqueuer {
	return &Enqueuer{client: asynq.NewClient(redisOpts)}
}

// EnqueueRenewalNotification queues a renewal notice. A notice for the same
// renewal and channel that is still queued absorbs the request.
func (e *Enqueuer) EnqueueRenewalNotification(ctx context.Context, renewalID int64, method string) error {
	task, err := NewRenewalNotifyTask(renewalID, method)
	if err != nil {
		return err
	}
	_, err = e.client.EnqueueContext(ctx, task,
		asynq.TaskID(fmt.Sprintf("%s:%d:%s", TaskRenewalNotify, renewalID, method)),
		asynq.MaxRetry(3),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue renewal notice %d: %w", renewalID, err)
	}
	return nil
}

// Close releases the redis connection.
func (e *Enqueuer) Close() error {
	return e.client.Close()
}
