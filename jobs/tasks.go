package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskOverdueSweep marks past-due receivable invoices OVERDUE.
	TaskOverdueSweep = "ledger:overdue_sweep"
	// TaskCreditSweep applies held tenant credit to open invoices.
	TaskCreditSweep = "ledger:credit_sweep"
	// TaskIdempotencyCleanup prunes expired submission keys.
	TaskIdempotencyCleanup = "ledger:idempotency_cleanup"
	// TaskRenewalNotify delivers a lease renewal notice.
	TaskRenewalNotify = "renewal:notify"
)

// NewOverdueSweepTask constructs an overdue sweep task. The sweep always
// runs against the worker's clock, so it carries no payload.
func NewOverdueSweepTask() *asynq.Task {
	return asynq.NewTask(TaskOverdueSweep, nil, asynq.Queue(QueueDefault))
}

// NewCreditSweepTask constructs a credit sweep task.
func NewCreditSweepTask() *asynq.Task {
	return asynq.NewTask(TaskCreditSweep, nil, asynq.Queue(QueueDefault))
}

// IdempotencyCleanupPayload carries the retention window.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewIdempotencyCleanupTask constructs a cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{RetentionHours: int(retention.Hours())})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}

// RenewalNotifyPayload identifies the renewal and channel to notify on.
type RenewalNotifyPayload struct {
	RenewalID int64  `json:"renewal_id"`
	Method    string `json:"method"`
}

// NewRenewalNotifyTask constructs a renewal notification task.
func NewRenewalNotifyTask(renewalID int64, method string) (*asynq.Task, error) {
	body, err := json.Marshal(RenewalNotifyPayload{RenewalID: renewalID, Method: method})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRenewalNotify, body, asynq.Queue(QueueDefault)), nil
}
