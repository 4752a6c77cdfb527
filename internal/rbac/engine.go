// Package rbac decides whether a principal may reach a path, using an
// ordered rule table where the first matching rule wins.
package rbac

// Verdict is the result of an authorization check.
type Verdict int

const (
	// VerdictAllow lets the request through.
	VerdictAllow Verdict = iota
	// VerdictUnauthenticated means an anonymous caller hit a protected path.
	VerdictUnauthenticated
	// VerdictForbidden means an authenticated caller lacks the required role.
	VerdictForbidden
)

func (v Verdict) String() string {
	switch v {
	case VerdictAllow:
		return "allow"
	case VerdictUnauthenticated:
		return "unauthenticated"
	case VerdictForbidden:
		return "forbidden"
	}
	return "unknown"
}

// Engine evaluates a fixed rule table. It is immutable once built and safe
// for concurrent use.
type Engine struct {
	rules []Rule
}

// Builder assembles an ordered rule table.
type Builder struct {
	rules []Rule
}

// NewBuilder starts an empty rule table.
func NewBuilder() *Builder { return &Builder{} }

// Permit appends public rules for the given patterns.
func (b *Builder) Permit(patterns ...string) *Builder {
	return b.Require(nil, patterns...)
}

// Require appends rules granting roles access to the given patterns.
func (b *Builder) Require(roles []Role, patterns ...string) *Builder {
	for _, p := range patterns {
		pattern, kind := ParsePattern(p)
		b.rules = append(b.rules, Rule{
			Pattern: pattern,
			Match:   kind,
			Roles:   append([]Role(nil), roles...),
			Order:   len(b.rules),
		})
	}
	return b
}

// Build freezes the table.
func (b *Builder) Build() *Engine {
	return NewEngine(b.rules)
}

// NewEngine copies rules in the given order.
func NewEngine(rules []Rule) *Engine {
	cp := make([]Rule, len(rules))
	copy(cp, rules)
	return &Engine{rules: cp}
}

// DefaultEngine returns the application's rule table.
func DefaultEngine() *Engine {
	return NewBuilder().
		Permit("/login", "/register", "/error", "/hello", "/headers",
			"/rate-limit", "/forbidden", "/favicon.ico", "/healthz", "/metrics", "/static/**").
		Require([]Role{RoleAdmin}, "/admin", "/admin/**").
		Require([]Role{RoleUser, RoleAdmin}, "/user", "/user/**").
		Build()
}

// Rules returns a copy of the table.
func (e *Engine) Rules() []Rule {
	cp := make([]Rule, len(e.rules))
	copy(cp, e.rules)
	return cp
}

// Match returns the first rule matching path.
func (e *Engine) Match(path string) (Rule, bool) {
	for _, r := range e.rules {
		if r.Matches(path) {
			return r, true
		}
	}
	return Rule{}, false
}

// Authorize checks path for a principal holding roles. No roles means the
// caller is anonymous. Paths outside the table require any authenticated
// principal.
func (e *Engine) Authorize(path string, roles ...Role) Verdict {
	anonymous := len(roles) == 0
	rule, ok := e.Match(path)
	switch {
	case ok && rule.Public():
		return VerdictAllow
	case anonymous:
		return VerdictUnauthenticated
	case !ok:
		return VerdictAllow
	case hasAnyRole(roles, rule.Roles):
		return VerdictAllow
	}
	return VerdictForbidden
}

func hasAnyRole(granted, required []Role) bool {
	set := make(map[Role]struct{}, len(granted))
	for _, r := range granted {
		set[r] = struct{}{}
	}
	for _, r := range required {
		if _, ok := set[r]; ok {
			return true
		}
	}
	return false
}
