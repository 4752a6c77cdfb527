package auth_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noteguard/noteguard/internal/auth"
	"github.com/noteguard/noteguard/internal/password"
	"github.com/noteguard/noteguard/internal/rbac"
	"github.com/noteguard/noteguard/internal/shared"
)

func TestAuthenticateNormalizesIdentifier(t *testing.T) {
	repo := newStubRepo()
	seeded := repo.seed(t, "user@example.com", "Abcdef123!", rbac.RoleUser)
	svc := auth.NewService(repo, nil, bcrypt.MinCost)

	p, err := svc.Authenticate(context.Background(), "  User@Example.COM ", "Abcdef123!")
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, p.ID)
	assert.Equal(t, rbac.RoleUser, p.Role)
}

func TestAuthenticateFailuresAreIndistinguishable(t *testing.T) {
	repo := newStubRepo()
	repo.seed(t, "user@example.com", "Abcdef123!", rbac.RoleUser)
	svc := auth.NewService(repo, nil, bcrypt.MinCost)

	_, wrongPassword := svc.Authenticate(context.Background(), "user@example.com", "Wrong12345!")
	_, unknownEmail := svc.Authenticate(context.Background(), "nobody@example.com", "Abcdef123!")

	assert.ErrorIs(t, wrongPassword, shared.ErrInvalidCredentials)
	assert.ErrorIs(t, unknownEmail, shared.ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
}

func TestAuthenticateStoreFailureIsNotCredentialFailure(t *testing.T) {
	repo := newStubRepo()
	repo.findErr = errors.New("connection refused")
	svc := auth.NewService(repo, nil, bcrypt.MinCost)

	_, err := svc.Authenticate(context.Background(), "user@example.com", "Abcdef123!")
	require.Error(t, err)
	assert.NotErrorIs(t, err, shared.ErrInvalidCredentials)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestRegisterHashesAndDefaultsToUser(t *testing.T) {
	repo := newStubRepo()
	svc := auth.NewService(repo, nil, bcrypt.MinCost)

	p, err := svc.Register(context.Background(), " New@Example.com", "Abcdef123!")
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", p.Email)
	assert.Equal(t, rbac.RoleUser, p.Role)
	assert.NotEqual(t, "Abcdef123!", p.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte("Abcdef123!")))

	_, err = svc.Authenticate(context.Background(), "new@example.com", "Abcdef123!")
	assert.NoError(t, err)
}

func TestRegisterRejectsWeakPasswordBeforeStore(t *testing.T) {
	repo := newStubRepo()
	svc := auth.NewService(repo, nil, bcrypt.MinCost)

	_, err := svc.Register(context.Background(), "new@example.com", "password123")
	var violation *password.Violation
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, password.RuleCommon, violation.Rule)

	_, err = repo.FindByEmail(context.Background(), "new@example.com")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRegisterRejectsOverlongPassword(t *testing.T) {
	svc := auth.NewService(newStubRepo(), nil, bcrypt.MinCost)

	_, err := svc.Register(context.Background(), "new@example.com", "Aa1!"+strings.Repeat("x", 80))
	assert.ErrorIs(t, err, password.ErrPolicy)
	var v *password.Violation
	require.True(t, errors.As(err, &v))
	assert.Equal(t, password.RuleMaxBytes, v.Rule)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	repo := newStubRepo()
	svc := auth.NewService(repo, nil, bcrypt.MinCost)

	_, err := svc.Register(context.Background(), "dup@example.com", "Abcdef123!")
	require.NoError(t, err)
	_, err = svc.Register(context.Background(), "DUP@example.com", "Abcdef123!")
	assert.ErrorIs(t, err, shared.ErrEmailTaken)
}

func TestCreateAdmin(t *testing.T) {
	svc := auth.NewService(newStubRepo(), nil, bcrypt.MinCost)

	p, err := svc.CreateAdmin(context.Background(), "root@example.com", "Abcdef123!")
	require.NoError(t, err)
	assert.True(t, p.IsAdmin())
}

func TestLandingPath(t *testing.T) {
	assert.Equal(t, "/admin", auth.LandingPath(rbac.RoleAdmin))
	assert.Equal(t, "/notes", auth.LandingPath(rbac.RoleUser))
}
