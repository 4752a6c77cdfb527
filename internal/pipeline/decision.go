// Package pipeline composes the rate limiter, session registry and
// authorization engine into one decision per request.
package pipeline

import (
	"time"
)

// Outcome enumerates the terminal states of the request pipeline.
type Outcome int

const (
	// OutcomeAllow lets the request reach its handler.
	OutcomeAllow Outcome = iota
	// OutcomeRedirectToLogin sends anonymous callers to the login page.
	OutcomeRedirectToLogin
	// OutcomeForbidden rejects an authenticated caller lacking a role.
	OutcomeForbidden
	// OutcomeTooManyRequests rejects a throttled credential submission.
	OutcomeTooManyRequests
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAllow:
		return "allow"
	case OutcomeRedirectToLogin:
		return "redirect_to_login"
	case OutcomeForbidden:
		return "forbidden"
	case OutcomeTooManyRequests:
		return "too_many_requests"
	}
	return "unknown"
}

// User-facing messages for the terminal outcomes.
const (
	MessageTooManyRequests = "Too Many Requests - rate limit triggered. Please wait and try again."
	MessageForbidden       = "Forbidden - you don't have permission to access this page."
)

// Decision is the per-request verdict. It is never persisted.
type Decision struct {
	Outcome    Outcome
	Reason     string
	RetryAfter time.Duration
}

// Allow returns a proceeding decision.
func Allow() Decision { return Decision{Outcome: OutcomeAllow} }

// RedirectToLogin returns the decision for an anonymous caller.
func RedirectToLogin(reason string) Decision {
	return Decision{Outcome: OutcomeRedirectToLogin, Reason: reason}
}

// Forbidden returns the decision for an authenticated caller without a
// matching role.
func Forbidden(reason string) Decision {
	return Decision{Outcome: OutcomeForbidden, Reason: reason}
}

// TooManyRequests returns the decision for a throttled client.
func TooManyRequests(retryAfter time.Duration) Decision {
	return Decision{Outcome: OutcomeTooManyRequests, Reason: "rate limit exceeded", RetryAfter: retryAfter}
}

// Terminal reports whether the decision ends the request.
func (d Decision) Terminal() bool { return d.Outcome != OutcomeAllow }

// RetryAfterSeconds rounds RetryAfter up to whole seconds.
func (d Decision) RetryAfterSeconds() int {
	if d.RetryAfter <= 0 {
		return 0
	}
	secs := d.RetryAfter / time.Second
	if d.RetryAfter%time.Second != 0 {
		secs++
	}
	return int(secs)
}
