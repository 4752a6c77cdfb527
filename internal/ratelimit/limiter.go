// Package ratelimit throttles credential submissions per client address
// using a sliding-window counter.
package ratelimit

import (
	"context"
	"net/http"
	"sync"
	"time"
)

const (
	// DefaultLimit is the number of submissions allowed per window.
	DefaultLimit = 4
	// DefaultWindow is the trailing interval submissions are counted over.
	DefaultWindow = 60 * time.Second
)

// Result is the outcome of a single Check.
type Result struct {
	Allowed    bool
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds for the Retry-After header.
func (r Result) RetryAfterSeconds() int {
	secs := int(r.RetryAfter / time.Second)
	if r.RetryAfter%time.Second != 0 {
		secs++
	}
	return secs
}

// Limiter holds one bucket per client key. Buckets are created lazily and
// each carries its own lock so unrelated clients never contend.
type Limiter struct {
	buckets sync.Map // map[string]*bucket
	limit   int
	window  time.Duration
	paths   map[string]struct{}
}

type bucket struct {
	mu     sync.Mutex
	stamps []time.Time
	// swept is set once the bucket has been removed from the map.
	swept bool
}

// Option customises a Limiter.
type Option func(*Limiter)

// WithLimit overrides DefaultLimit.
func WithLimit(n int) Option {
	return func(l *Limiter) {
		if n > 0 {
			l.limit = n
		}
	}
}

// WithWindow overrides DefaultWindow.
func WithWindow(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.window = d
		}
	}
}

// WithPaths replaces the set of throttled POST paths.
func WithPaths(paths ...string) Option {
	return func(l *Limiter) {
		l.paths = make(map[string]struct{}, len(paths))
		for _, p := range paths {
			l.paths[p] = struct{}{}
		}
	}
}

// New constructs a Limiter guarding POST /login and POST /register by default.
func New(opts ...Option) *Limiter {
	l := &Limiter{limit: DefaultLimit, window: DefaultWindow}
	WithPaths("/login", "/register")(l)
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Limit returns the configured submissions per window.
func (l *Limiter) Limit() int { return l.limit }

// Window returns the configured window.
func (l *Limiter) Window() time.Duration { return l.window }

// Applies reports whether a request is subject to throttling. It touches no
// shared state.
func (l *Limiter) Applies(method, path string) bool {
	if method != http.MethodPost {
		return false
	}
	_, ok := l.paths[path]
	return ok
}

// Check records an attempt for clientKey at now, unless the key already has
// limit attempts inside the trailing window, in which case the attempt is
// refused and not recorded.
func (l *Limiter) Check(clientKey string, now time.Time) Result {
	b := l.lockBucket(clientKey)
	defer b.mu.Unlock()

	b.prune(now.Add(-l.window))
	if len(b.stamps) >= l.limit {
		return Result{Allowed: false, RetryAfter: l.window}
	}
	b.stamps = append(b.stamps, now)
	return Result{Allowed: true}
}

// Sweep removes buckets with no attempts inside the window and returns how
// many were dropped.
func (l *Limiter) Sweep(now time.Time) int {
	cutoff := now.Add(-l.window)
	removed := 0
	l.buckets.Range(func(key, value any) bool {
		b := value.(*bucket)
		b.mu.Lock()
		b.prune(cutoff)
		idle := len(b.stamps) == 0
		if idle && l.buckets.CompareAndDelete(key, b) {
			b.swept = true
			removed++
		}
		b.mu.Unlock()
		return true
	})
	return removed
}

// Run sweeps idle buckets every interval until ctx is cancelled.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			l.Sweep(now)
		}
	}
}

// lockBucket returns the live bucket for key with its lock held.
func (l *Limiter) lockBucket(key string) *bucket {
	for {
		v, ok := l.buckets.Load(key)
		if !ok {
			v, _ = l.buckets.LoadOrStore(key, &bucket{})
		}
		b := v.(*bucket)
		b.mu.Lock()
		if !b.swept {
			return b
		}
		b.mu.Unlock()
	}
}

// prune drops stamps at or before cutoff; stamps are kept oldest first.
func (b *bucket) prune(cutoff time.Time) {
	i := 0
	for i < len(b.stamps) && !b.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		b.stamps = append(b.stamps[:0], b.stamps[i:]...)
	}
}
