package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/noteguard/noteguard/internal/ratelimit"
	"github.com/noteguard/noteguard/internal/rbac"
	"github.com/noteguard/noteguard/internal/sessions"
	"github.com/noteguard/noteguard/internal/shared"
	"github.com/noteguard/noteguard/internal/view"
)

// DefaultLoginPath is where anonymous callers are redirected.
const DefaultLoginPath = "/login"

// Recorder receives one observation per decision.
type Recorder interface {
	ObserveDecision(outcome string)
}

// Config groups the collaborators of a Guard.
type Config struct {
	Limiter   *ratelimit.Limiter
	Registry  *sessions.Registry
	Engine    *rbac.Engine
	Sessions  *shared.SessionManager
	Templates *view.Engine
	Logger    *slog.Logger
	Recorder  Recorder
	LoginPath string
	Clock     func() time.Time
}

// Guard runs the security pipeline.
type Guard struct {
	limiter   *ratelimit.Limiter
	registry  *sessions.Registry
	engine    *rbac.Engine
	sessions  *shared.SessionManager
	templates *view.Engine
	logger    *slog.Logger
	recorder  Recorder
	loginPath string
	now       func() time.Time
}

// New constructs a Guard. Limiter, Registry and Engine are required.
func New(cfg Config) *Guard {
	g := &Guard{
		limiter:   cfg.Limiter,
		registry:  cfg.Registry,
		engine:    cfg.Engine,
		sessions:  cfg.Sessions,
		templates: cfg.Templates,
		logger:    cfg.Logger,
		recorder:  cfg.Recorder,
		loginPath: cfg.LoginPath,
		now:       cfg.Clock,
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	if g.loginPath == "" {
		g.loginPath = DefaultLoginPath
	}
	if g.now == nil {
		g.now = time.Now
	}
	return g
}

// Request is the transport-independent view of an inbound request.
type Request struct {
	Method    string
	Path      string
	ClientKey string
	Identity  *shared.Identity
	Now       time.Time
}

// Throttle applies the rate limiter to credential submissions. Other
// requests are allowed without touching limiter state.
func (g *Guard) Throttle(method, path, clientKey string, now time.Time) Decision {
	if !g.limiter.Applies(method, path) {
		return Allow()
	}
	res := g.limiter.Check(clientKey, now)
	if res.Allowed {
		return Allow()
	}
	return TooManyRequests(res.RetryAfter)
}

// Admit consults the authorization engine for path. A nil identity is an
// anonymous caller.
func (g *Guard) Admit(path string, id *shared.Identity) Decision {
	var roles []rbac.Role
	if id != nil {
		roles = []rbac.Role{id.Role}
	}
	switch g.engine.Authorize(path, roles...) {
	case rbac.VerdictAllow:
		return Allow()
	case rbac.VerdictUnauthenticated:
		return RedirectToLogin("authentication required")
	default:
		if id == nil {
			return RedirectToLogin("authentication required")
		}
		rule, _ := g.engine.Match(path)
		return Forbidden(fmt.Sprintf("role %s not permitted by %s", id.Role, rule))
	}
}

// Evaluate runs the whole pipeline over req. The first terminal decision
// wins; later stages do not run.
func (g *Guard) Evaluate(req Request) Decision {
	if d := g.Throttle(req.Method, req.Path, req.ClientKey, req.Now); d.Terminal() {
		return d
	}
	return g.Admit(req.Path, req.Identity)
}

// Resolve returns the identity bound to sess, or nil when the session is
// anonymous or no longer the principal's active session. A displaced or
// expired binding is cleared from the session.
func (g *Guard) Resolve(sess *shared.Session, now time.Time) *shared.Identity {
	principalID, rawRole, ok := sess.Principal()
	if !ok {
		return nil
	}
	active, ok := g.registry.Lookup(sess.ID, now)
	if !ok || active.PrincipalID != principalID {
		sess.ClearPrincipal()
		return nil
	}
	role, err := rbac.ParseRole(rawRole)
	if err != nil {
		g.logger.Warn("session carries unknown role", slog.Int64("principal_id", principalID), slog.Any("error", err))
		sess.ClearPrincipal()
		return nil
	}
	return &shared.Identity{PrincipalID: principalID, SessionID: sess.ID, Role: role}
}

// Establish binds a freshly authenticated principal to sess. The session id
// is renewed first so the pre-login id never carries the principal, then the
// registry entry is created. When sess was already bound its old id is
// dropped from the registry and returned as replaced. A displaced session of
// the same principal is revoked from the store and returned as evicted.
func (g *Guard) Establish(ctx context.Context, sess *shared.Session, principalID int64, role rbac.Role) (replaced, evicted string, err error) {
	if _, _, bound := sess.Principal(); bound {
		replaced = sess.ID
		g.registry.Invalidate(replaced)
		sess.ClearPrincipal()
	}
	g.sessions.Renew(sess)
	evicted, ok := g.registry.Register(principalID, sess.ID, g.now())
	sess.SetPrincipal(principalID, string(role))
	if !ok {
		return replaced, "", nil
	}
	if err := g.sessions.Revoke(ctx, evicted); err != nil {
		return replaced, evicted, fmt.Errorf("pipeline: revoke displaced session: %w", err)
	}
	g.logger.InfoContext(ctx, "session displaced", slog.Int64("principal_id", principalID))
	return replaced, evicted, nil
}

// Release ends the login episode of sess.
func (g *Guard) Release(sess *shared.Session) {
	if sess == nil {
		return
	}
	g.registry.Invalidate(sess.ID)
	sess.ClearPrincipal()
	g.sessions.Destroy(sess)
}

func (g *Guard) observe(d Decision) {
	if g.recorder != nil {
		g.recorder.ObserveDecision(d.Outcome.String())
	}
}

// ClientKey returns the rate limiting identity of r: the host part of
// RemoteAddr.
func ClientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
