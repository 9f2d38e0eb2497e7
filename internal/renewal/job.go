package renewal

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/exceva/property-ledger/internal/shared"
	"github.com/exceva/property-ledger/jobs"
)

// NotifyJob delivers queued renewal notices.
type NotifyJob struct {
	service *Service
	logger  *slog.Logger
}

// NewNotifyJob constructs a job handler.
func NewNotifyJob(service *Service, logger *slog.Logger) *NotifyJob {
	return &NotifyJob{service: service, logger: logger}
}

// Handle fulfils the asynq.HandlerFunc contract.
func (j *NotifyJob) Handle(ctx context.Context, task *asynq.Task) error {
	var payload jobs.RenewalNotifyPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	method := Method(payload.Method)
	if payload.RenewalID == 0 || !method.Valid() {
		return asynq.SkipRetry
	}
	if err := j.service.Deliver(ctx, payload.RenewalID, method); err != nil {
		if errors.Is(err, shared.ErrNotFound) || errors.Is(err, shared.ErrValidation) {
			if j.logger != nil {
				j.logger.Warn("renewal notice dropped", slog.Int64("renewal_id", payload.RenewalID), slog.Any("error", err))
			}
			return asynq.SkipRetry
		}
		if j.logger != nil {
			j.logger.Error("renewal notice", slog.Int64("renewal_id", payload.RenewalID), slog.Any("error", err))
		}
		return err
	}
	return nil
}
