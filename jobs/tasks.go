package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSessionsPurge deletes expired rows from auth_sessions.
	TaskSessionsPurge = "sessions:purge"
	// TaskAuditPrune deletes audit records past the retention period.
	TaskAuditPrune = "audit:prune"
)

// SessionsPurgePayload configures a purge run. Grace keeps rows that
// expired less than Grace ago.
type SessionsPurgePayload struct {
	Grace time.Duration `json:"grace"`
}

// AuditPrunePayload configures an audit prune run.
type AuditPrunePayload struct {
	Retention time.Duration `json:"retention"`
}

// NewSessionsPurgeTask constructs a sessions purge task.
func NewSessionsPurgeTask(grace time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(SessionsPurgePayload{Grace: grace})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSessionsPurge, data), nil
}

// NewAuditPruneTask constructs an audit prune task.
func NewAuditPruneTask(retention time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(AuditPrunePayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditPrune, data), nil
}
