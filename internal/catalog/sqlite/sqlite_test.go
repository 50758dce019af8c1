package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/sugarscan/sugartrack/internal/catalog"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

const seedYAML = `
grades:
  - id: A
    label: Low sugar
    max_sugar_grams: 5
  - id: C
    label: High sugar
    max_sugar_grams: 22.5
products:
  - barcode: "8992753033737"
    name: Strawberry milk
    sugar_grams: 18
    grade: C
    recommendations: ["ff strawberry_lowfat", "gf strawberry"]
  - barcode: "8999999000001"
    name: Plain water
    grade: A
`

func seeded(t *testing.T) *Store {
	t.Helper()
	store := newStore(t)
	seed, err := catalog.ParseSeed([]byte(seedYAML))
	if err != nil {
		t.Fatalf("ParseSeed: %v", err)
	}
	if err := seed.Apply(context.Background(), store); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	return store
}

func TestProductsAndGrades(t *testing.T) {
	store := seeded(t)
	ctx := context.Background()

	p, err := store.GetProduct(ctx, "8992753033737")
	if err != nil || p == nil {
		t.Fatalf("GetProduct: %v %+v", err, p)
	}
	if p.Name != "Strawberry milk" || p.GradeID != "C" || len(p.Recommendations) != 2 {
		t.Fatalf("unexpected product %+v", p)
	}

	water, err := store.GetProduct(ctx, "8999999000001")
	if err != nil || water == nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if water.Recommendations == nil || len(water.Recommendations) != 0 {
		t.Fatalf("expected empty recommendations, got %#v", water.Recommendations)
	}

	g, err := store.GetGrade(ctx, "C")
	if err != nil || g == nil || g.MaxSugarGrams != 22.5 {
		t.Fatalf("GetGrade: %v %+v", err, g)
	}
	if missing, err := store.GetGrade(ctx, "Z"); err != nil || missing != nil {
		t.Fatalf("expected nil, nil; got %+v %v", missing, err)
	}

	// upsert replaces
	p.SugarGrams = 12
	if err := store.UpsertProduct(ctx, *p); err != nil {
		t.Fatalf("UpsertProduct: %v", err)
	}
	p, _ = store.GetProduct(ctx, "8992753033737")
	if p.SugarGrams != 12 {
		t.Fatalf("expected upsert to replace sugar grams, got %v", p.SugarGrams)
	}
}

func TestScanHistory(t *testing.T) {
	store := seeded(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	first, err := store.RecordScan(ctx, 7, "8992753033737", base)
	if err != nil {
		t.Fatalf("RecordScan: %v", err)
	}
	if first.ProductName != "Strawberry milk" || first.SugarGrams != 18 {
		t.Fatalf("unexpected entry %+v", first)
	}
	if _, err := store.RecordScan(ctx, 7, "8999999000001", base.Add(time.Hour)); err != nil {
		t.Fatalf("RecordScan: %v", err)
	}
	if _, err := store.RecordScan(ctx, 8, "8999999000001", base); err != nil {
		t.Fatalf("RecordScan: %v", err)
	}
	if _, err := store.RecordScan(ctx, 7, "0000", base); !errors.Is(err, catalog.ErrUnknownProduct) {
		t.Fatalf("expected ErrUnknownProduct, got %v", err)
	}

	history, err := store.ListHistory(ctx, 7)
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if len(history) != 2 || history[0].Barcode != "8999999000001" {
		t.Fatalf("unexpected history %+v", history)
	}

	entry, err := store.GetHistoryEntry(ctx, 7, first.ScanID)
	if err != nil || entry == nil || !entry.ScannedAt.Equal(base) {
		t.Fatalf("GetHistoryEntry: %v %+v", err, entry)
	}
	if other, err := store.GetHistoryEntry(ctx, 8, first.ScanID); err != nil || other != nil {
		t.Fatalf("scan must not be visible to another user: %+v %v", other, err)
	}

	empty, err := store.ListHistory(ctx, 99)
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty history, got %+v %v", empty, err)
	}
}
