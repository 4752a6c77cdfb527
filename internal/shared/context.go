package shared

import (
	"context"

	"github.com/noteguard/noteguard/internal/rbac"
)

type sessionContextKey struct{}

type identityContextKey struct{}

// Identity is the authenticated principal behind a request.
type Identity struct {
	PrincipalID int64
	SessionID   string
	Role        rbac.Role
}

// ContextWithSession stores the session in context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session from context.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

// ContextWithIdentity stores the resolved principal in context.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext returns the resolved principal, or nil for anonymous
// requests.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityContextKey{}).(*Identity)
	return id
}
