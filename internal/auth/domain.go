package auth

import (
	"strings"
	"time"

	"github.com/noteguard/noteguard/internal/rbac"
)

// Principal is a registered account. Email is stored normalized and is the
// login identity.
type Principal struct {
	ID           int64
	Email        string
	PasswordHash string
	Role         rbac.Role
	CreatedAt    time.Time
}

// IsAdmin reports whether the principal holds the ADMIN role.
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == rbac.RoleAdmin
}

// NormalizeEmail trims and lowercases a login identifier.
func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
