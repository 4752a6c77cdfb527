// Package sessions tracks the single active login session of each principal.
//
// Registering a new session for a principal displaces the previous one
// instead of refusing the login. Callers receive the displaced id so they can
// tear down the matching transport session.
package sessions

import (
	"context"
	"sync"
	"time"
)

// Session binds one login episode to one principal.
type Session struct {
	ID          string
	PrincipalID int64
	CreatedAt   time.Time
}

// Registry holds one slot per principal. Each slot has its own lock, so
// logins of different principals never contend and two logins of the same
// principal are serialised.
type Registry struct {
	slots  sync.Map // map[int64]*slot
	owners sync.Map // map[string]int64, session id -> principal id
	ttl    time.Duration
}

type slot struct {
	mu      sync.Mutex
	current *Session
}

// NewRegistry constructs a Registry. A ttl of zero disables expiry.
func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{ttl: ttl}
}

// Register makes sessionID the only active session of principalID and
// returns the session it displaced, if any.
func (r *Registry) Register(principalID int64, sessionID string, now time.Time) (evicted string, ok bool) {
	v, _ := r.slots.LoadOrStore(principalID, &slot{})
	s := v.(*slot)

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev := s.current; prev != nil && prev.ID != sessionID {
		r.owners.Delete(prev.ID)
		if !r.expired(prev, now) {
			evicted, ok = prev.ID, true
		}
	}
	s.current = &Session{ID: sessionID, PrincipalID: principalID, CreatedAt: now}
	r.owners.Store(sessionID, principalID)
	return evicted, ok
}

// Invalidate removes sessionID unconditionally. Unknown ids are ignored.
func (r *Registry) Invalidate(sessionID string) {
	v, ok := r.owners.LoadAndDelete(sessionID)
	if !ok {
		return
	}
	if sv, ok := r.slots.Load(v.(int64)); ok {
		s := sv.(*slot)
		s.mu.Lock()
		if s.current != nil && s.current.ID == sessionID {
			s.current = nil
		}
		s.mu.Unlock()
	}
}

// IsActive reports whether sessionID is its principal's current session and
// has not outlived the registry ttl.
func (r *Registry) IsActive(sessionID string, now time.Time) bool {
	_, ok := r.Lookup(sessionID, now)
	return ok
}

// Lookup returns the active session for sessionID.
func (r *Registry) Lookup(sessionID string, now time.Time) (Session, bool) {
	if sessionID == "" {
		return Session{}, false
	}
	v, ok := r.owners.Load(sessionID)
	if !ok {
		return Session{}, false
	}
	sv, ok := r.slots.Load(v.(int64))
	if !ok {
		return Session{}, false
	}
	s := sv.(*slot)
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.current
	if cur == nil || cur.ID != sessionID {
		return Session{}, false
	}
	if r.expired(cur, now) {
		s.current = nil
		r.owners.Delete(sessionID)
		return Session{}, false
	}
	return *cur, true
}

// Sweep drops expired sessions and returns how many were removed.
func (r *Registry) Sweep(now time.Time) int {
	if r.ttl <= 0 {
		return 0
	}
	removed := 0
	r.slots.Range(func(_, value any) bool {
		s := value.(*slot)
		s.mu.Lock()
		if s.current != nil && r.expired(s.current, now) {
			r.owners.Delete(s.current.ID)
			s.current = nil
			removed++
		}
		s.mu.Unlock()
		return true
	})
	return removed
}

// Run sweeps expired sessions every interval until ctx is cancelled.
func (r *Registry) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			r.Sweep(now)
		}
	}
}

// Count returns the number of principals with an active session.
func (r *Registry) Count() int {
	n := 0
	r.slots.Range(func(_, value any) bool {
		s := value.(*slot)
		s.mu.Lock()
		if s.current != nil {
			n++
		}
		s.mu.Unlock()
		return true
	})
	return n
}

func (r *Registry) expired(s *Session, now time.Time) bool {
	return r.ttl > 0 && !now.Before(s.CreatedAt.Add(r.ttl))
}
