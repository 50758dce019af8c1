package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/sugarscan/sugartrack/internal/ledger"
)

// Store implements ledger.Store backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

// New opens a PostgreSQL-backed ledger store using the provided DSN and connection pool settings.
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
CREATE TABLE IF NOT EXISTS consumption_records (
	user_id BIGINT PRIMARY KEY,
	consumed_sugar DOUBLE PRECISION NOT NULL DEFAULT 0 CHECK (consumed_sugar >= 0),
	record_date DATE NOT NULL,
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

// Close releases underlying database resources.
func (s *Store) Close() error {
	return s.db.Close()
}

// FindConsumptionRecord returns nil, nil when the user has no record.
func (s *Store) FindConsumptionRecord(ctx context.Context, userID int64) (*ledger.Record, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT user_id, consumed_sugar, record_date
FROM consumption_records
WHERE user_id = $1`, userID)

	var rec ledger.Record
	if err := row.Scan(&rec.UserID, &rec.ConsumedSugar, &rec.RecordDate); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// InsertConsumptionRecord creates the user's record.
func (s *Store) InsertConsumptionRecord(ctx context.Context, userID int64, amount float64, date ledger.Date) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO consumption_records(user_id, consumed_sugar, record_date)
VALUES($1, $2, $3)`, userID, amount, date)
	return err
}

// UpdateConsumptionRecord overwrites the stored total and date.
func (s *Store) UpdateConsumptionRecord(ctx context.Context, userID int64, amount float64, date ledger.Date) error {
	return s.write(ctx, userID, amount, date)
}

// ResetConsumptionRecord zeroes the total and moves it to date.
func (s *Store) ResetConsumptionRecord(ctx context.Context, userID int64, date ledger.Date) error {
	return s.write(ctx, userID, 0, date)
}

func (s *Store) write(ctx context.Context, userID int64, amount float64, date ledger.Date) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE consumption_records
SET consumed_sugar = $1, record_date = $2, updated_at = NOW()
WHERE user_id = $3`, amount, date, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrNotFound
	}
	return nil
}
