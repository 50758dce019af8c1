package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	// register sqlite driver
	_ "modernc.org/sqlite"

	"github.com/sugarscan/sugartrack/internal/ledger"
)

// Store implements ledger.Store backed by SQLite.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite store at the given path.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	// a single writer keeps find-then-write pairs from hitting SQLITE_BUSY
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS consumption_records (
	user_id INTEGER PRIMARY KEY,
	consumed_sugar REAL NOT NULL DEFAULT 0 CHECK(consumed_sugar >= 0),
	record_date TEXT NOT NULL,
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

// Close releases underlying database resources.
func (s *Store) Close() error {
	return s.db.Close()
}

// FindConsumptionRecord returns nil, nil when the user has no record.
func (s *Store) FindConsumptionRecord(ctx context.Context, userID int64) (*ledger.Record, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT user_id, consumed_sugar, record_date
FROM consumption_records
WHERE user_id = ?`, userID)

	var rec ledger.Record
	if err := row.Scan(&rec.UserID, &rec.ConsumedSugar, &rec.RecordDate); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// InsertConsumptionRecord creates the user's record. The primary key rejects
// a second record for the same user.
func (s *Store) InsertConsumptionRecord(ctx context.Context, userID int64, amount float64, date ledger.Date) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO consumption_records(user_id, consumed_sugar, record_date)
VALUES(?, ?, ?)`, userID, amount, date)
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
SET consumed_sugar = ?, record_date = ?, updated_at = CURRENT_TIMESTAMP
WHERE user_id = ?`, amount, date, userID)
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
