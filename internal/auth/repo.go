package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noteguard/noteguard/internal/rbac"
	"github.com/noteguard/noteguard/internal/shared"
)

// Repository defines persistence operations for auth module.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*Principal, error)
	FindByID(ctx context.Context, id int64) (*Principal, error)
	Create(ctx context.Context, email, passwordHash string, role rbac.Role) (*Principal, error)
	CreateSession(ctx context.Context, id string, principalID int64, expiresAt time.Time, ip, ua string) error
	DeleteSession(ctx context.Context, id string) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const uniqueViolation = "23505"

const selectPrincipal = `SELECT id, email, password_hash, role, created_at FROM users`

// FindByEmail fetches a principal by normalized email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*Principal, error) {
	return r.findOne(ctx, selectPrincipal+` WHERE email = $1`, email)
}

// FindByID fetches a principal by id.
func (r *PGRepository) FindByID(ctx context.Context, id int64) (*Principal, error) {
	return r.findOne(ctx, selectPrincipal+` WHERE id = $1`, id)
}

func (r *PGRepository) findOne(ctx context.Context, query string, arg any) (*Principal, error) {
	var (
		p    Principal
		role string
	)
	err := r.pool.QueryRow(ctx, query, arg).Scan(&p.ID, &p.Email, &p.PasswordHash, &role, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("auth: find principal: %w", err)
	}
	if p.Role, err = rbac.ParseRole(role); err != nil {
		return nil, err
	}
	return &p, nil
}

// Create inserts a principal. A duplicate email yields shared.ErrEmailTaken.
func (r *PGRepository) Create(ctx context.Context, email, passwordHash string, role rbac.Role) (*Principal, error) {
	p := Principal{Email: email, PasswordHash: passwordHash, Role: role}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (email, password_hash, role) VALUES ($1, $2, $3) RETURNING id, created_at`,
		email, passwordHash, string(role),
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, shared.ErrEmailTaken
		}
		return nil, fmt.Errorf("auth: create principal: %w", err)
	}
	return &p, nil
}

// CreateSession persists a login session row for auditing.
func (r *PGRepository) CreateSession(ctx context.Context, id string, principalID int64, expiresAt time.Time, ip, ua string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO auth_sessions (id, user_id, created_at, expires_at, ip, ua) VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''))`,
		id, principalID, time.Now().UTC(), expiresAt.UTC(), ip, ua,
	)
	return err
}

// DeleteSession removes a session row.
func (r *PGRepository) DeleteSession(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM auth_sessions WHERE id = $1`, id)
	return err
}

var _ Repository = (*PGRepository)(nil)
