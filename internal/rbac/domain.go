package rbac

import (
	"fmt"
	"strings"
)

// Role is a coarse authorization grouping carried by every principal.
type Role string

const (
	// RoleUser is assigned at registration.
	RoleUser Role = "USER"
	// RoleAdmin is granted out of band.
	RoleAdmin Role = "ADMIN"
)

// ParseRole accepts "USER", "admin", "ROLE_ADMIN" and similar spellings.
func ParseRole(raw string) (Role, error) {
	r := strings.ToUpper(strings.TrimSpace(raw))
	r = strings.TrimPrefix(r, "ROLE_")
	switch Role(r) {
	case RoleUser, RoleAdmin:
		return Role(r), nil
	}
	return "", fmt.Errorf("rbac: unknown role %q", raw)
}

// MatchKind selects how a rule pattern is compared with a request path.
type MatchKind int

const (
	// MatchExact requires the path to equal the pattern.
	MatchExact MatchKind = iota
	// MatchPrefix requires the path to start with the pattern.
	MatchPrefix
)

func (k MatchKind) String() string {
	switch k {
	case MatchExact:
		return "exact"
	case MatchPrefix:
		return "prefix"
	}
	return "unknown"
}

// Rule maps a path pattern to the roles allowed through. A rule without
// roles is public.
type Rule struct {
	Pattern string
	Match   MatchKind
	Roles   []Role
	Order   int
}

// Public reports whether the rule admits anonymous callers.
func (r Rule) Public() bool { return len(r.Roles) == 0 }

// Matches reports whether path falls under the rule.
func (r Rule) Matches(path string) bool {
	switch r.Match {
	case MatchExact:
		return path == r.Pattern
	case MatchPrefix:
		return strings.HasPrefix(path, r.Pattern)
	}
	return false
}

func (r Rule) String() string {
	if r.Match == MatchPrefix {
		return r.Pattern + "**"
	}
	return r.Pattern
}

// ParsePattern turns "/admin/**" or "/static/*" into a prefix rule pattern
// and anything else into an exact one.
func ParsePattern(pattern string) (string, MatchKind) {
	switch {
	case strings.HasSuffix(pattern, "**"):
		return strings.TrimSuffix(pattern, "**"), MatchPrefix
	case strings.HasSuffix(pattern, "*"):
		return strings.TrimSuffix(pattern, "*"), MatchPrefix
	}
	return pattern, MatchExact
}
