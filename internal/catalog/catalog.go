// Package catalog holds the product and grade reference data and each
// user's scan history.
package catalog

import (
	"context"
	"errors"
	"time"
)

// ErrUnknownProduct is returned when recording a scan for a barcode that is not in the catalog.
var ErrUnknownProduct = errors.New("catalog: unknown product")

// Grade is a sugar-content band products are classified into.
type Grade struct {
	ID            string  `db:"grade_id" json:"grade_id" yaml:"id"`
	Label         string  `db:"label" json:"label" yaml:"label"`
	Description   string  `db:"description" json:"description" yaml:"description"`
	MaxSugarGrams float64 `db:"max_sugar_grams" json:"max_sugar_grams" yaml:"max_sugar_grams"`
}

// Product is a barcode-addressed catalog entry.
type Product struct {
	Barcode         string   `json:"product_barcode" yaml:"barcode"`
	Name            string   `json:"product_name" yaml:"name"`
	SugarGrams      float64  `json:"sugar_grams" yaml:"sugar_grams"`
	GradeID         string   `json:"grade_id" yaml:"grade"`
	Recommendations []string `json:"recommendations" yaml:"recommendations"`
}

// HistoryEntry is one scan joined with the scanned product.
type HistoryEntry struct {
	ScanID      int64     `db:"scan_id" json:"scan_id"`
	UserID      int64     `db:"user_id" json:"user_id"`
	Barcode     string    `db:"barcode" json:"product_barcode"`
	ProductName string    `db:"product_name" json:"product_name"`
	SugarGrams  float64   `db:"sugar_grams" json:"sugar_grams"`
	GradeID     string    `db:"grade_id" json:"grade_id"`
	ScannedAt   time.Time `db:"scanned_at" json:"scanned_at"`
}

// Store persists the catalog and scan history. Single-item lookups return
// nil, nil when nothing matches.
type Store interface {
	UpsertGrade(ctx context.Context, grade Grade) error
	UpsertProduct(ctx context.Context, product Product) error
	GetGrade(ctx context.Context, id string) (*Grade, error)
	GetProduct(ctx context.Context, barcode string) (*Product, error)
	RecordScan(ctx context.Context, userID int64, barcode string, at time.Time) (*HistoryEntry, error)
	ListHistory(ctx context.Context, userID int64) ([]HistoryEntry, error)
	GetHistoryEntry(ctx context.Context, userID, scanID int64) (*HistoryEntry, error)
	Close() error
}
