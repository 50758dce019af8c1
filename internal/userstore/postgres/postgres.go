package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/sugarscan/sugartrack/internal/ledger"
	"github.com/sugarscan/sugartrack/internal/userstore"
)

const uniqueViolation = "23505"

// Store implements userstore.Store backed by Postgres.
type Store struct {
	db *sql.DB
}

// New opens a Postgres-backed user store using the provided DSN and pool settings.
func New(dsn string, maxOpen, maxIdle, lifetimeMinutes, idleTimeMinutes int) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	if lifetimeMinutes > 0 {
		db.SetConnMaxLifetime(time.Duration(lifetimeMinutes) * time.Minute)
	}
	if idleTimeMinutes > 0 {
		db.SetConnMaxIdleTime(time.Duration(idleTimeMinutes) * time.Minute)
	}
	s, err := NewFromDB(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewFromDB wraps an existing handle and applies the schema.
func NewFromDB(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS users (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	age INTEGER NOT NULL DEFAULT 0,
	height DOUBLE PRECISION NOT NULL DEFAULT 0,
	weight DOUBLE PRECISION NOT NULL DEFAULT 0,
	sugar_limit DOUBLE PRECISION NOT NULL DEFAULT 50,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// DB exposes the handle for health checks.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close releases underlying resources.
func (s *Store) Close() error {
	return s.db.Close()
}

const userColumns = `id, name, email, password_hash, age, height, weight, sugar_limit, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*userstore.User, error) {
	var u userstore.User
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Age, &u.Height, &u.Weight, &u.SugarLimit, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// CreateUser inserts a new account.
func (s *Store) CreateUser(ctx context.Context, user userstore.NewUser) (*userstore.User, error) {
	email := userstore.NormalizeEmail(user.Email)
	if email == "" {
		return nil, errors.New("email required")
	}
	limit := user.SugarLimit
	if limit <= 0 {
		limit = userstore.DefaultSugarLimit
	}
	u, err := scanUser(s.db.QueryRowContext(ctx, `
INSERT INTO users(name, email, password_hash, sugar_limit)
VALUES($1, $2, $3, $4)
RETURNING `+userColumns, strings.TrimSpace(user.Name), email, user.PasswordHash, limit))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, userstore.ErrEmailTaken
		}
		return nil, err
	}
	return u, nil
}

// FindByEmail returns the account registered under email.
func (s *Store) FindByEmail(ctx context.Context, email string) (*userstore.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, userstore.NormalizeEmail(email)))
}

// GetUser returns the account with the given id.
func (s *Store) GetUser(ctx context.Context, id int64) (*userstore.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// UpdateProfile overwrites the editable profile fields.
func (s *Store) UpdateProfile(ctx context.Context, id int64, update userstore.ProfileUpdate) (*userstore.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `
UPDATE users
SET name = $1, age = $2, height = $3, weight = $4, sugar_limit = $5, updated_at = NOW()
WHERE id = $6
RETURNING `+userColumns, strings.TrimSpace(update.Name), update.Age, update.Height, update.Weight, update.SugarLimit, id))
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, userstore.ErrNotFound
	}
	return u, nil
}

// FindUserProfile returns the fields joined into a daily status.
func (s *Store) FindUserProfile(ctx context.Context, id int64) (*ledger.Profile, error) {
	var p ledger.Profile
	err := s.db.QueryRowContext(ctx, `SELECT id, name, sugar_limit FROM users WHERE id = $1`, id).Scan(&p.UserID, &p.Name, &p.SugarLimit)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}
