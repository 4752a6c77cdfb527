package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/noteguard/noteguard/internal/shared"
)

// DefaultAuditRetention applies when a prune task carries no retention.
const DefaultAuditRetention = 90 * 24 * time.Hour

// Recorder receives one observation per job run.
type Recorder interface {
	ObserveJob(task string, err error)
}

// PurgeJob removes stale security records from postgres.
type PurgeJob struct {
	DB       shared.Execer
	Logger   *slog.Logger
	Recorder Recorder
	clock    func() time.Time
}

// NewPurgeJob initialises the purge handlers.
func NewPurgeJob(db shared.Execer, logger *slog.Logger, recorder Recorder) *PurgeJob {
	return &PurgeJob{
		DB:       db,
		Logger:   logger,
		Recorder: recorder,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// HandleSessions deletes auth_sessions rows that expired before now-grace.
func (j *PurgeJob) HandleSessions(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.DB == nil {
		return errors.New("sessions purge: handler not configured")
	}
	defer func() { j.observe(TaskSessionsPurge, err) }()

	var payload SessionsPurgePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		j.logger().Warn("malformed task payload", slog.String("task", TaskSessionsPurge), slog.Any("error", err))
		return asynq.SkipRetry
	}
	if payload.Grace < 0 {
		payload.Grace = 0
	}

	cutoff := j.clock().Add(-payload.Grace)
	tag, err := j.DB.Exec(ctx, `DELETE FROM auth_sessions WHERE expires_at < $1`, cutoff)
	if err != nil {
		j.logger().Error("purge sessions", slog.Any("error", err))
		return err
	}
	j.logger().Info("purged expired sessions",
		slog.Int64("rows", tag.RowsAffected()),
		slog.Time("cutoff", cutoff))
	return nil
}

// HandleAudit deletes audit_logs rows older than the retention period.
func (j *PurgeJob) HandleAudit(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.DB == nil {
		return errors.New("audit prune: handler not configured")
	}
	defer func() { j.observe(TaskAuditPrune, err) }()

	var payload AuditPrunePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		j.logger().Warn("malformed task payload", slog.String("task", TaskAuditPrune), slog.Any("error", err))
		return asynq.SkipRetry
	}
	if payload.Retention <= 0 {
		payload.Retention = DefaultAuditRetention
	}

	cutoff := j.clock().Add(-payload.Retention)
	tag, err := j.DB.Exec(ctx, `DELETE FROM audit_logs WHERE occurred_at < $1`, cutoff)
	if err != nil {
		j.logger().Error("prune audit logs", slog.Any("error", err))
		return err
	}
	j.logger().Info("pruned audit logs",
		slog.Int64("rows", tag.RowsAffected()),
		slog.Time("cutoff", cutoff))
	return nil
}

func (j *PurgeJob) observe(task string, err error) {
	if j.Recorder != nil {
		j.Recorder.ObserveJob(task, err)
	}
}

func (j *PurgeJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
