package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sugarscan/sugartrack/internal/catalog"
)

// Store implements catalog.Store backed by PostgreSQL.
type Store struct {
	db *sqlx.DB
}

type productRow struct {
	Barcode         string         `db:"barcode"`
	Name            string         `db:"product_name"`
	SugarGrams      float64        `db:"sugar_grams"`
	GradeID         string         `db:"grade_id"`
	Recommendations pq.StringArray `db:"recommendations"`
}

// New opens a PostgreSQL-backed catalog using the provided DSN and pool settings.
func New(dsn string, maxOpen, maxIdle, lifetimeMinutes, idleTimeMinutes int) (*Store, error) {
	db, err := sqlx.Open("pgx", dsn)
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
	s, err := NewFromDB(db.DB)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewFromDB wraps an existing handle and applies the schema.
func NewFromDB(db *sql.DB) (*Store, error) {
	s := &Store{db: sqlx.NewDb(db, "pgx")}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS grades (
	grade_id TEXT PRIMARY KEY,
	label TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	max_sugar_grams DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS products (
	barcode TEXT PRIMARY KEY,
	product_name TEXT NOT NULL,
	sugar_grams DOUBLE PRECISION NOT NULL DEFAULT 0,
	grade_id TEXT NOT NULL DEFAULT '',
	recommendations TEXT[] NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS scans (
	scan_id BIGSERIAL PRIMARY KEY,
	user_id BIGINT NOT NULL,
	barcode TEXT NOT NULL,
	scanned_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_scans_user_scanned ON scans(user_id, scanned_at DESC);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// DB exposes the handle for health checks.
func (s *Store) DB() *sql.DB {
	return s.db.DB
}

// Close releases underlying database resources.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertGrade inserts or replaces a grade.
func (s *Store) UpsertGrade(ctx context.Context, grade catalog.Grade) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO grades(grade_id, label, description, max_sugar_grams)
VALUES($1, $2, $3, $4)
ON CONFLICT(grade_id) DO UPDATE SET
	label = EXCLUDED.label,
	description = EXCLUDED.description,
	max_sugar_grams = EXCLUDED.max_sugar_grams`, grade.ID, grade.Label, grade.Description, grade.MaxSugarGrams)
	return err
}

// UpsertProduct inserts or replaces a product.
func (s *Store) UpsertProduct(ctx context.Context, product catalog.Product) error {
	recs := product.Recommendations
	if recs == nil {
		recs = []string{}
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO products(barcode, product_name, sugar_grams, grade_id, recommendations)
VALUES($1, $2, $3, $4, $5)
ON CONFLICT(barcode) DO UPDATE SET
	product_name = EXCLUDED.product_name,
	sugar_grams = EXCLUDED.sugar_grams,
	grade_id = EXCLUDED.grade_id,
	recommendations = EXCLUDED.recommendations`,
		product.Barcode, product.Name, product.SugarGrams, product.GradeID, pq.Array(recs))
	return err
}

// GetGrade returns the grade with the given id.
func (s *Store) GetGrade(ctx context.Context, id string) (*catalog.Grade, error) {
	var g catalog.Grade
	err := s.db.GetContext(ctx, &g, `SELECT grade_id, label, description, max_sugar_grams FROM grades WHERE grade_id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &g, nil
}

// GetProduct returns the product with the given barcode.
func (s *Store) GetProduct(ctx context.Context, barcode string) (*catalog.Product, error) {
	var row productRow
	err := s.db.GetContext(ctx, &row, `
SELECT barcode, product_name, sugar_grams, grade_id, recommendations
FROM products WHERE barcode = $1`, barcode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	recs := []string(row.Recommendations)
	if recs == nil {
		recs = []string{}
	}
	return &catalog.Product{
		Barcode:         row.Barcode,
		Name:            row.Name,
		SugarGrams:      row.SugarGrams,
		GradeID:         row.GradeID,
		Recommendations: recs,
	}, nil
}

// RecordScan stores a scan of a known product.
func (s *Store) RecordScan(ctx context.Context, userID int64, barcode string, at time.Time) (*catalog.HistoryEntry, error) {
	product, err := s.GetProduct(ctx, barcode)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, catalog.ErrUnknownProduct
	}
	var scanID int64
	if err := s.db.QueryRowxContext(ctx, `
INSERT INTO scans(user_id, barcode, scanned_at)
VALUES($1, $2, $3)
RETURNING scan_id`, userID, barcode, at.UTC()).Scan(&scanID); err != nil {
		return nil, err
	}
	return &catalog.HistoryEntry{
		ScanID:      scanID,
		UserID:      userID,
		Barcode:     barcode,
		ProductName: product.Name,
		SugarGrams:  product.SugarGrams,
		GradeID:     product.GradeID,
		ScannedAt:   at.UTC(),
	}, nil
}

const historyQuery = `
SELECT s.scan_id, s.user_id, s.barcode,
	COALESCE(p.product_name, '') AS product_name,
	COALESCE(p.sugar_grams, 0) AS sugar_grams,
	COALESCE(p.grade_id, '') AS grade_id,
	s.scanned_at
FROM scans s
LEFT JOIN products p ON p.barcode = s.barcode`

// ListHistory returns the user's scans, newest first.
func (s *Store) ListHistory(ctx context.Context, userID int64) ([]catalog.HistoryEntry, error) {
	var entries []catalog.HistoryEntry
	if err := s.db.SelectContext(ctx, &entries, historyQuery+`
WHERE s.user_id = $1
ORDER BY s.scanned_at DESC, s.scan_id DESC`, userID); err != nil {
		return nil, err
	}
	return entries, nil
}

// GetHistoryEntry returns one of the user's scans.
func (s *Store) GetHistoryEntry(ctx context.Context, userID, scanID int64) (*catalog.HistoryEntry, error) {
	var e catalog.HistoryEntry
	err := s.db.GetContext(ctx, &e, historyQuery+`
WHERE s.user_id = $1 AND s.scan_id = $2`, userID, scanID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}
