package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/sugarscan/sugartrack/internal/ledger"
	"github.com/sugarscan/sugartrack/internal/userstore"
)

// Store implements userstore.Store backed by SQLite.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite user store at the supplied path.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create identity directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	age INTEGER NOT NULL DEFAULT 0,
	height REAL NOT NULL DEFAULT 0,
	weight REAL NOT NULL DEFAULT 0,
	sugar_limit REAL NOT NULL DEFAULT 50,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
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

const selectUser = `SELECT id, name, email, password_hash, age, height, weight, sugar_limit, created_at, updated_at FROM users`

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
	res, err := s.db.ExecContext(ctx, `INSERT INTO users(name, email, password_hash, sugar_limit) VALUES(?, ?, ?, ?)`,
		strings.TrimSpace(user.Name), email, user.PasswordHash, limit)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique constraint") {
			return nil, userstore.ErrEmailTaken
		}
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetUser(ctx, id)
}

// FindByEmail returns the account registered under email.
func (s *Store) FindByEmail(ctx context.Context, email string) (*userstore.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, selectUser+` WHERE email = ?`, userstore.NormalizeEmail(email)))
}

// GetUser returns the account with the given id.
func (s *Store) GetUser(ctx context.Context, id int64) (*userstore.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, selectUser+` WHERE id = ?`, id))
}

// UpdateProfile overwrites the editable profile fields.
func (s *Store) UpdateProfile(ctx context.Context, id int64, update userstore.ProfileUpdate) (*userstore.User, error) {
	res, err := s.db.ExecContext(ctx, `
UPDATE users
SET name = ?, age = ?, height = ?, weight = ?, sugar_limit = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ?`, strings.TrimSpace(update.Name), update.Age, update.Height, update.Weight, update.SugarLimit, id)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, userstore.ErrNotFound
	}
	return s.GetUser(ctx, id)
}

// FindUserProfile returns the fields joined into a daily status.
func (s *Store) FindUserProfile(ctx context.Context, id int64) (*ledger.Profile, error) {
	var p ledger.Profile
	err := s.db.QueryRowContext(ctx, `SELECT id, name, sugar_limit FROM users WHERE id = ?`, id).Scan(&p.UserID, &p.Name, &p.SugarLimit)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}
