package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noteguard/noteguard/internal/auth"
	"github.com/noteguard/noteguard/internal/rbac"
	"github.com/noteguard/noteguard/internal/shared"
)

type stubRepo struct {
	mu       sync.Mutex
	byEmail  map[string]*auth.Principal
	nextID   int64
	findErr  error
	sessions map[string]int64
	deleted  []string
}

func newStubRepo() *stubRepo {
	return &stubRepo{byEmail: make(map[string]*auth.Principal), sessions: make(map[string]int64)}
}

func (s *stubRepo) seed(t *testing.T, email, plaintext string, role rbac.Role) *auth.Principal {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.MinCost)
	require.NoError(t, err)
	p, err := s.Create(context.Background(), email, string(hash), role)
	require.NoError(t, err)
	return p
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*auth.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	p, ok := s.byEmail[email]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *stubRepo) FindByID(ctx context.Context, id int64) (*auth.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.byEmail {
		if p.ID == id {
			cp := *p
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (s *stubRepo) Create(ctx context.Context, email, passwordHash string, role rbac.Role) (*auth.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[email]; ok {
		return nil, shared.ErrEmailTaken
	}
	s.nextID++
	p := &auth.Principal{ID: s.nextID, Email: email, PasswordHash: passwordHash, Role: role, CreatedAt: time.Now()}
	s.byEmail[email] = p
	cp := *p
	return &cp, nil
}

func (s *stubRepo) CreateSession(ctx context.Context, id string, principalID int64, expiresAt time.Time, ip, ua string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = principalID
	return nil
}

func (s *stubRepo) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *stubRepo) hasSession(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[id]
	return ok
}
