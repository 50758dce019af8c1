package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/sugarscan/sugartrack/internal/catalog"
)

// Store implements catalog.Store backed by SQLite.
type Store struct {
	db *sqlx.DB
}

type productRow struct {
	Barcode         string  `db:"barcode"`
	Name            string  `db:"product_name"`
	SugarGrams      float64 `db:"sugar_grams"`
	GradeID         string  `db:"grade_id"`
	Recommendations string  `db:"recommendations"`
}

// New opens (or creates) a SQLite catalog at the given path.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create catalog directory: %w", err)
	}
	db, err := sqlx.Open("sqlite", path)
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
CREATE TABLE IF NOT EXISTS grades (
	grade_id TEXT PRIMARY KEY,
	label TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	max_sugar_grams REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS products (
	barcode TEXT PRIMARY KEY,
	product_name TEXT NOT NULL,
	sugar_grams REAL NOT NULL DEFAULT 0,
	grade_id TEXT NOT NULL DEFAULT '',
	recommendations TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS scans (
	scan_id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL,
	barcode TEXT NOT NULL,
	scanned_at TIMESTAMP NOT NULL
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
	_, err := s.db.NamedExecContext(ctx, `
INSERT INTO grades(grade_id, label, description, max_sugar_grams)
VALUES(:grade_id, :label, :description, :max_sugar_grams)
ON CONFLICT(grade_id) DO UPDATE SET
	label = excluded.label,
	description = excluded.description,
	max_sugar_grams = excluded.max_sugar_grams`, grade)
	return err
}

// UpsertProduct inserts or replaces a product.
func (s *Store) UpsertProduct(ctx context.Context, product catalog.Product) error {
	recs := product.Recommendations
	if recs == nil {
		recs = []string{}
	}
	encoded, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("encode recommendations: %w", err)
	}
	_, err = s.db.NamedExecContext(ctx, `
INSERT INTO products(barcode, product_name, sugar_grams, grade_id, recommendations)
VALUES(:barcode, :product_name, :sugar_grams, :grade_id, :recommendations)
ON CONFLICT(barcode) DO UPDATE SET
	product_name = excluded.product_name,
	sugar_grams = excluded.sugar_grams,
	grade_id = excluded.grade_id,
	recommendations = excluded.recommendations`, productRow{
		Barcode:         product.Barcode,
		Name:            product.Name,
		SugarGrams:      product.SugarGrams,
		GradeID:         product.GradeID,
		Recommendations: string(encoded),
	})
	return err
}

// GetGrade returns the grade with the given id.
func (s *Store) GetGrade(ctx context.Context, id string) (*catalog.Grade, error) {
	var g catalog.Grade
	err := s.db.GetContext(ctx, &g, `SELECT grade_id, label, description, max_sugar_grams FROM grades WHERE grade_id = ?`, id)
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
FROM products WHERE barcode = ?`, barcode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	p := &catalog.Product{
		Barcode:    row.Barcode,
		Name:       row.Name,
		SugarGrams: row.SugarGrams,
		GradeID:    row.GradeID,
	}
	if err := json.Unmarshal([]byte(row.Recommendations), &p.Recommendations); err != nil {
		return nil, fmt.Errorf("decode recommendations for %s: %w", barcode, err)
	}
	return p, nil
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
	res, err := s.db.ExecContext(ctx, `INSERT INTO scans(user_id, barcode, scanned_at) VALUES(?, ?, ?)`, userID, barcode, at.UTC())
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetHistoryEntry(ctx, userID, id)
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
WHERE s.user_id = ?
ORDER BY s.scanned_at DESC, s.scan_id DESC`, userID); err != nil {
		return nil, err
	}
	return entries, nil
}

// GetHistoryEntry returns one of the user's scans.
func (s *Store) GetHistoryEntry(ctx context.Context, userID, scanID int64) (*catalog.HistoryEntry, error) {
	var e catalog.HistoryEntry
	err := s.db.GetContext(ctx, &e, historyQuery+`
WHERE s.user_id = ? AND s.scan_id = ?`, userID, scanID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}
