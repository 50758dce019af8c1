package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/sugarscan/sugartrack/internal/ledger"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS consumption_records").WillReturnResult(sqlmock.NewResult(0, 0))
	store, err := NewFromDB(db)
	if err != nil {
		t.Fatalf("NewFromDB: %v", err)
	}
	t.Cleanup(func() {
		mock.ExpectClose()
		_ = store.Close()
	})
	return store, mock
}

func TestFindConsumptionRecord(t *testing.T) {
	store, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{"user_id", "consumed_sugar", "record_date"}).
		AddRow(int64(5), 17.5, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	mock.ExpectQuery("SELECT user_id, consumed_sugar, record_date").WithArgs(int64(5)).WillReturnRows(rows)

	rec, err := store.FindConsumptionRecord(context.Background(), 5)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if rec == nil || rec.ConsumedSugar != 17.5 || rec.RecordDate.String() != "2024-05-01" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestFindConsumptionRecordMissing(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT user_id, consumed_sugar, record_date").
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "consumed_sugar", "record_date"}))

	rec, err := store.FindConsumptionRecord(context.Background(), 5)
	if err != nil || rec != nil {
		t.Fatalf("expected nil, nil; got %+v, %v", rec, err)
	}
}

func TestUpdateWritesDateAsText(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE consumption_records").
		WithArgs(42.0, "2024-05-02", int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.UpdateConsumptionRecord(context.Background(), 5, 42, ledger.MustParseDate("2024-05-02")); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestResetMissingRow(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE consumption_records").
		WithArgs(0.0, "2024-05-02", int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.ResetConsumptionRecord(context.Background(), 5, ledger.MustParseDate("2024-05-02"))
	if !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

type fixedProfile struct{}

func (fixedProfile) FindUserProfile(_ context.Context, userID int64) (*ledger.Profile, error) {
	return &ledger.Profile{UserID: userID, Name: "ana", SugarLimit: 50}, nil
}

func TestLedgerSurfacesStorageErrors(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT user_id, consumed_sugar, record_date").
		WithArgs(int64(5)).
		WillReturnError(errors.New("connection reset by peer"))

	l := ledger.New(store, fixedProfile{})
	_, err := l.RecordConsumption(context.Background(), 5, 1, ledger.MustParseDate("2024-05-02"))
	var se *ledger.StorageError
	if !errors.As(err, &se) {
		t.Fatalf("expected StorageError, got %v", err)
	}
	if se.Err.Error() != "connection reset by peer" {
		t.Fatalf("unexpected cause %v", se.Err)
	}
}
