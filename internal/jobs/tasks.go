package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TaskTypeLedgerAudit = "ledger:audit"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// Queues are the worker queues with their priorities.
var Queues = map[string]int{
	QueueCritical: 6,
	QueueDefault:  3,
	QueueLow:      1,
}

// LedgerAuditPayload describes a reconciliation run.
type LedgerAuditPayload struct {
	RequestedBy string `json:"requested_by"`
	// FailOnMismatch makes an inconsistent ledger fail the task without retry.
	FailOnMismatch bool `json:"fail_on_mismatch"`
}

// NewLedgerAuditTask builds an audit task. Runs are unique per window so a
// slow audit is not stacked by the scheduler.
func NewLedgerAuditTask(payload LedgerAuditPayload, unique time.Duration) (*asynq.Task, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	opts := []asynq.Option{asynq.Queue(QueueDefault), asynq.MaxRetry(3)}
	if unique > 0 {
		opts = append(opts, asynq.Unique(unique))
	}
	return asynq.NewTask(TaskTypeLedgerAudit, raw, opts...), nil
}

// ParseLedgerAuditPayload decodes the payload of an audit task.
func ParseLedgerAuditPayload(task *asynq.Task) (LedgerAuditPayload, error) {
	var payload LedgerAuditPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return LedgerAuditPayload{}, err
	}
	return payload, nil
}
