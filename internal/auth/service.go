package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/noteguard/noteguard/internal/password"
	"github.com/noteguard/noteguard/internal/rbac"
	"github.com/noteguard/noteguard/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo   Repository
	logger *slog.Logger
	cost   int

	dummyOnce sync.Once
	dummyHash []byte
}

// NewService constructs a new Service. cost is the bcrypt work factor used
// for new hashes; values outside bcrypt's range fall back to the default.
func NewService(repo Repository, logger *slog.Logger, cost int) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Service{repo: repo, logger: logger, cost: cost}
}

// Authenticate validates email/password credentials. Unknown accounts and
// wrong passwords both yield shared.ErrInvalidCredentials; any other error
// means the credential store could not be consulted.
func (s *Service) Authenticate(ctx context.Context, identifier, plaintext string) (*Principal, error) {
	email := NormalizeEmail(identifier)
	p, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			// Spend the same hashing time as a real comparison.
			_ = bcrypt.CompareHashAndPassword(s.dummy(), []byte(plaintext))
			s.logger.DebugContext(ctx, "login rejected", slog.String("reason", "unknown email"))
			return nil, shared.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("auth: authenticate: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(plaintext)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			s.logger.DebugContext(ctx, "login rejected", slog.String("reason", "password mismatch"), slog.Int64("principal_id", p.ID))
		} else {
			s.logger.ErrorContext(ctx, "stored hash unusable", slog.Int64("principal_id", p.ID), slog.Any("error", err))
		}
		return nil, shared.ErrInvalidCredentials
	}
	return p, nil
}

// Register creates a USER principal after checking the password policy. It
// returns a *password.Violation for weak passwords and shared.ErrEmailTaken
// for duplicates.
func (s *Service) Register(ctx context.Context, email, plaintext string) (*Principal, error) {
	return s.create(ctx, email, plaintext, rbac.RoleUser)
}

// CreateAdmin provisions an ADMIN principal, subject to the same policy.
func (s *Service) CreateAdmin(ctx context.Context, email, plaintext string) (*Principal, error) {
	return s.create(ctx, email, plaintext, rbac.RoleAdmin)
}

func (s *Service) create(ctx context.Context, email, plaintext string, role rbac.Role) (*Principal, error) {
	if err := password.Validate(plaintext); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), s.cost)
	if err != nil {
		return nil, fmt.Errorf("auth: hash password: %w", err)
	}
	p, err := s.repo.Create(ctx, NormalizeEmail(email), string(hash), role)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Principal loads the account behind an authenticated identity.
func (s *Service) Principal(ctx context.Context, id int64) (*Principal, error) {
	return s.repo.FindByID(ctx, id)
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, id string, principalID int64, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, principalID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}

func (s *Service) dummy() []byte {
	s.dummyOnce.Do(func() {
		hash, err := bcrypt.GenerateFromPassword([]byte("noteguard-timing-equalizer"), s.cost)
		if err != nil {
			hash = []byte("$2a$10$invalidinvalidinvalidinvalidinvalidinvalidinvalidinva")
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}
