package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return s.info, s.err }

type stubEnqueuer struct {
	calls int
	err   error
}

func (s *stubEnqueuer) EnqueueSessionsPurge(context.Context, time.Duration) (*asynq.TaskInfo, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &asynq.TaskInfo{ID: "task-1", Queue: QueueDefault}, nil
}

func serve(h *Handler, method, path string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	h.MountRoutes(r)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(method, path, nil))
	return rr
}

func TestHealthReportsQueueDepth(t *testing.T) {
	h := NewHandler(stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 4, Retry: 1}}, nil, nil)
	rr := serve(h, http.MethodGet, "/health")

	require.Equal(t, http.StatusOK, rr.Code)
	var body queueHealth
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, queueHealth{Queue: QueueDefault, Pending: 4, Retry: 1}, body)
}

func TestHealthWithoutInspector(t *testing.T) {
	rr := serve(NewHandler(nil, nil, nil), http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"queue":"default","pending":0,"active":0,"scheduled":0,"retry":0}`, rr.Body.String())
}

func TestHealthInspectorFailure(t *testing.T) {
	rr := serve(NewHandler(stubInspector{err: errors.New("redis down")}, nil, nil), http.MethodGet, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestPurgeEndpointEnqueues(t *testing.T) {
	enq := &stubEnqueuer{}
	rr := serve(NewHandler(nil, enq, nil), http.MethodPost, "/sessions/purge")

	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, 1, enq.calls)
	assert.JSONEq(t, `{"id":"task-1","queue":"default"}`, rr.Body.String())
}

func TestPurgeEndpointWithoutQueue(t *testing.T) {
	rr := serve(NewHandler(nil, nil, nil), http.MethodPost, "/sessions/purge")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestPurgeEndpointEnqueueFailure(t *testing.T) {
	enq := &stubEnqueuer{err: errors.New("redis down")}
	rr := serve(NewHandler(nil, enq, nil), http.MethodPost, "/sessions/purge")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestClientEnqueuesOnDefaultQueue(t *testing.T) {
	mr := miniredis.RunT(t)
	client := NewClient(asynq.RedisClientOpt{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	info, err := client.EnqueueSessionsPurge(context.Background(), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, QueueDefault, info.Queue)
	assert.Equal(t, TaskSessionsPurge, info.Type)

	var payload SessionsPurgePayload
	require.NoError(t, json.Unmarshal(info.Payload, &payload))
	assert.Equal(t, time.Minute, payload.Grace)
}

func TestNewWorkerRequiresHandlers(t *testing.T) {
	_, err := NewWorker(WorkerConfig{RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"}})
	assert.Error(t, err)
}
