package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/sugarscan/sugartrack/internal/catalog"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS grades").WillReturnResult(sqlmock.NewResult(0, 0))
	store, err := NewFromDB(db)
	if err != nil {
		t.Fatalf("NewFromDB: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return store, mock
}

func TestGetProductDecodesArray(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT barcode, product_name, sugar_grams, grade_id, recommendations").
		WithArgs("8992753033737").
		WillReturnRows(sqlmock.NewRows([]string{"barcode", "product_name", "sugar_grams", "grade_id", "recommendations"}).
			AddRow("8992753033737", "Strawberry milk", 18.0, "C", []byte(`{"gf strawberry","um strawberry"}`)))

	p, err := store.GetProduct(context.Background(), "8992753033737")
	if err != nil || p == nil {
		t.Fatalf("GetProduct: %v %+v", err, p)
	}
	if len(p.Recommendations) != 2 || p.Recommendations[1] != "um strawberry" {
		t.Fatalf("unexpected recommendations %#v", p.Recommendations)
	}
}

func TestUpsertProductEncodesArray(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO products").
		WithArgs("123", "Tea", 4.0, "A", `{"green tea"}`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.UpsertProduct(context.Background(), catalog.Product{Barcode: "123", Name: "Tea", SugarGrams: 4, GradeID: "A", Recommendations: []string{"green tea"}})
	if err != nil {
		t.Fatalf("UpsertProduct: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRecordScanUnknownProduct(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT barcode, product_name").
		WithArgs("000").
		WillReturnRows(sqlmock.NewRows([]string{"barcode", "product_name", "sugar_grams", "grade_id", "recommendations"}))

	_, err := store.RecordScan(context.Background(), 1, "000", time.Now())
	if !errors.Is(err, catalog.ErrUnknownProduct) {
		t.Fatalf("expected ErrUnknownProduct, got %v", err)
	}
}

func TestListHistory(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery("FROM scans s").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"scan_id", "user_id", "barcode", "product_name", "sugar_grams", "grade_id", "scanned_at"}).
			AddRow(int64(2), int64(7), "123", "Tea", 4.0, "A", at).
			AddRow(int64(1), int64(7), "456", "Cola", 35.0, "E", at.Add(-time.Hour)))

	history, err := store.ListHistory(context.Background(), 7)
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if len(history) != 2 || history[0].ScanID != 2 || history[1].ProductName != "Cola" {
		t.Fatalf("unexpected history %+v", history)
	}
}
