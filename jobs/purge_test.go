package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type execCall struct {
	sql  string
	args []any
}

type fakeExecer struct {
	calls []execCall
	tag   string
	err   error
}

func (f *fakeExecer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, execCall{sql: sql, args: args})
	if f.err != nil {
		return pgconn.CommandTag{}, f.err
	}
	return pgconn.NewCommandTag(f.tag), nil
}

type jobRecorder struct {
	runs map[string][]error
}

func (r *jobRecorder) ObserveJob(task string, err error) {
	if r.runs == nil {
		r.runs = make(map[string][]error)
	}
	r.runs[task] = append(r.runs[task], err)
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestPurgeJob(db *fakeExecer, rec *jobRecorder) *PurgeJob {
	job := NewPurgeJob(db, nil, nil)
	if rec != nil {
		job.Recorder = rec
	}
	job.clock = func() time.Time { return fixedNow }
	return job
}

func TestSessionsPurgeDeletesExpiredRows(t *testing.T) {
	db := &fakeExecer{tag: "DELETE 3"}
	rec := &jobRecorder{}
	job := newTestPurgeJob(db, rec)

	task, err := NewSessionsPurgeTask(time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.HandleSessions(context.Background(), task))

	require.Len(t, db.calls, 1)
	assert.Contains(t, db.calls[0].sql, "DELETE FROM auth_sessions")
	assert.Equal(t, fixedNow.Add(-time.Hour), db.calls[0].args[0])
	assert.Equal(t, []error{nil}, rec.runs[TaskSessionsPurge])
}

func TestSessionsPurgeReportsStoreFailure(t *testing.T) {
	boom := errors.New("connection refused")
	rec := &jobRecorder{}
	job := newTestPurgeJob(&fakeExecer{err: boom}, rec)

	task, err := NewSessionsPurgeTask(0)
	require.NoError(t, err)
	err = job.HandleSessions(context.Background(), task)
	require.ErrorIs(t, err, boom)
	require.Len(t, rec.runs[TaskSessionsPurge], 1)
	assert.ErrorIs(t, rec.runs[TaskSessionsPurge][0], boom)
}

func TestPurgeSkipsRetryOnMalformedPayload(t *testing.T) {
	db := &fakeExecer{}
	rec := &jobRecorder{}
	job := newTestPurgeJob(db, rec)

	err := job.HandleSessions(context.Background(), asynq.NewTask(TaskSessionsPurge, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	err = job.HandleAudit(context.Background(), asynq.NewTask(TaskAuditPrune, []byte("nope")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Empty(t, db.calls)

	require.Len(t, rec.runs[TaskSessionsPurge], 1)
	assert.ErrorIs(t, rec.runs[TaskSessionsPurge][0], asynq.SkipRetry)
	require.Len(t, rec.runs[TaskAuditPrune], 1)
	assert.ErrorIs(t, rec.runs[TaskAuditPrune][0], asynq.SkipRetry)
}

func TestAuditPruneDefaultsRetention(t *testing.T) {
	db := &fakeExecer{tag: "DELETE 0"}
	rec := &jobRecorder{}
	job := newTestPurgeJob(db, rec)

	task, err := NewAuditPruneTask(0)
	require.NoError(t, err)
	require.NoError(t, job.HandleAudit(context.Background(), task))

	require.Len(t, db.calls, 1)
	assert.Contains(t, db.calls[0].sql, "DELETE FROM audit_logs")
	assert.Equal(t, fixedNow.Add(-DefaultAuditRetention), db.calls[0].args[0])
	assert.Len(t, rec.runs[TaskAuditPrune], 1)
}

func TestPurgeWithoutDatabase(t *testing.T) {
	var job *PurgeJob
	task, err := NewSessionsPurgeTask(0)
	require.NoError(t, err)
	assert.Error(t, job.HandleSessions(context.Background(), task))
}
