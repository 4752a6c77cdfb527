package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestCheckAllowsLimitThenDenies(t *testing.T) {
	l := New()
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < DefaultLimit; i++ {
		res := l.Check("10.0.0.1", start.Add(time.Duration(i)*time.Second))
		assert.True(t, res.Allowed, "attempt %d should be allowed", i+1)
	}

	res := l.Check("10.0.0.1", start.Add(5*time.Second))
	assert.False(t, res.Allowed)
	assert.Equal(t, DefaultWindow, res.RetryAfter)
	assert.Equal(t, 60, res.RetryAfterSeconds())
}

func TestCheckAllowsAgainOnceFirstAttemptLeavesWindow(t *testing.T) {
	l := New()
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < DefaultLimit; i++ {
		require.True(t, l.Check("10.0.0.1", start.Add(time.Duration(i)*time.Second)).Allowed)
	}
	require.False(t, l.Check("10.0.0.1", start.Add(59*time.Second)).Allowed)

	res := l.Check("10.0.0.1", start.Add(DefaultWindow))
	assert.True(t, res.Allowed)

	// Only the first stamp has aged out; the window is full again.
	assert.False(t, l.Check("10.0.0.1", start.Add(DefaultWindow)).Allowed)
}

func TestDeniedAttemptsAreNotRecorded(t *testing.T) {
	l := New(WithLimit(2), WithWindow(10*time.Second))
	start := time.Unix(1_700_000_000, 0)

	require.True(t, l.Check("k", start).Allowed)
	require.True(t, l.Check("k", start.Add(time.Second)).Allowed)
	for i := 0; i < 5; i++ {
		require.False(t, l.Check("k", start.Add(2*time.Second)).Allowed)
	}
	assert.True(t, l.Check("k", start.Add(10*time.Second)).Allowed)
}

func TestClientsAreIndependent(t *testing.T) {
	l := New(WithLimit(1))
	now := time.Now()
	assert.True(t, l.Check("a", now).Allowed)
	assert.False(t, l.Check("a", now).Allowed)
	assert.True(t, l.Check("b", now).Allowed)
}

func TestApplies(t *testing.T) {
	l := New()
	assert.True(t, l.Applies(http.MethodPost, "/login"))
	assert.True(t, l.Applies(http.MethodPost, "/register"))
	assert.False(t, l.Applies(http.MethodGet, "/login"))
	assert.False(t, l.Applies(http.MethodPost, "/notes"))
	assert.False(t, l.Applies(http.MethodPost, "/login/"))

	custom := New(WithPaths("/api/token"))
	assert.True(t, custom.Applies(http.MethodPost, "/api/token"))
	assert.False(t, custom.Applies(http.MethodPost, "/login"))
}

func TestConcurrentChecksNeverExceedLimit(t *testing.T) {
	l := New()
	now := time.Now()
	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Check("shared", now).Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(DefaultLimit), allowed.Load())
}

func TestSweepDropsIdleBuckets(t *testing.T) {
	l := New()
	start := time.Unix(1_700_000_000, 0)
	for i := 0; i < 3; i++ {
		l.Check(fmt.Sprintf("client-%d", i), start)
	}
	l.Check("recent", start.Add(50*time.Second))

	removed := l.Sweep(start.Add(DefaultWindow + time.Second))
	assert.Equal(t, 3, removed)

	_, ok := l.buckets.Load("recent")
	assert.True(t, ok)

	// A swept key starts fresh.
	assert.True(t, l.Check("client-0", start.Add(2*DefaultWindow)).Allowed)
}

func TestRunStopsOnCancel(t *testing.T) {
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx, time.Millisecond) }()

	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRetryAfterSecondsRoundsUp(t *testing.T) {
	assert.Equal(t, 2, Result{RetryAfter: 1500 * time.Millisecond}.RetryAfterSeconds())
	assert.Equal(t, 0, Result{}.RetryAfterSeconds())
}
