package ledger

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
)

type memoryStore struct {
	mu      sync.Mutex
	records map[int64]Record
	resets  int
	failOn  string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: make(map[int64]Record)}
}

func (m *memoryStore) FindConsumptionRecord(_ context.Context, userID int64) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn == "find" {
		return nil, errors.New("disk on fire")
	}
	rec, ok := m.records[userID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *memoryStore) InsertConsumptionRecord(_ context.Context, userID int64, amount float64, date Date) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn == "insert" {
		return errors.New("disk on fire")
	}
	if _, ok := m.records[userID]; ok {
		return errors.New("duplicate record")
	}
	m.records[userID] = Record{UserID: userID, ConsumedSugar: amount, RecordDate: date}
	return nil
}

func (m *memoryStore) UpdateConsumptionRecord(_ context.Context, userID int64, amount float64, date Date) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn == "update" {
		return errors.New("disk on fire")
	}
	m.records[userID] = Record{UserID: userID, ConsumedSugar: amount, RecordDate: date}
	return nil
}

func (m *memoryStore) ResetConsumptionRecord(_ context.Context, userID int64, date Date) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn == "reset" {
		return errors.New("disk on fire")
	}
	m.resets++
	m.records[userID] = Record{UserID: userID, ConsumedSugar: 0, RecordDate: date}
	return nil
}

func (m *memoryStore) Close() error { return nil }

type profileMap map[int64]Profile

func (p profileMap) FindUserProfile(_ context.Context, userID int64) (*Profile, error) {
	prof, ok := p[userID]
	if !ok {
		return nil, nil
	}
	return &prof, nil
}

var (
	day1 = MustParseDate("2024-05-01")
	day2 = MustParseDate("2024-05-02")
)

func newTestLedger() (*Ledger, *memoryStore) {
	store := newMemoryStore()
	profiles := profileMap{
		7: {UserID: 7, Name: "Ana", SugarLimit: 50},
		9: {UserID: 9, Name: "Budi", SugarLimit: 30},
	}
	return New(store, profiles), store
}

func TestRecordConsumptionCreatesThenAccumulates(t *testing.T) {
	l, store := newTestLedger()
	ctx := context.Background()

	out, err := l.RecordConsumption(ctx, 7, 12.5, day1)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if out.Action != ActionCreated || out.Record.ConsumedSugar != 12.5 {
		t.Fatalf("unexpected first outcome %+v", out)
	}

	out, err = l.RecordConsumption(ctx, 7, 7.5, day1)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if out.Action != ActionUpdated || out.Record.ConsumedSugar != 20 {
		t.Fatalf("unexpected second outcome %+v", out)
	}
	if got := store.records[7]; got.ConsumedSugar != 20 || !got.RecordDate.Equal(day1) {
		t.Fatalf("stored record %+v", got)
	}
}

func TestRecordConsumptionOnLaterDayKeepsTotal(t *testing.T) {
	l, store := newTestLedger()
	ctx := context.Background()

	if _, err := l.RecordConsumption(ctx, 7, 30, day1); err != nil {
		t.Fatalf("record: %v", err)
	}
	out, err := l.RecordConsumption(ctx, 7, 5, day2)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if out.Record.ConsumedSugar != 35 {
		t.Fatalf("expected write path to accumulate across days, got %v", out.Record.ConsumedSugar)
	}
	if !store.records[7].RecordDate.Equal(day2) {
		t.Fatalf("expected record date to move to %s, got %s", day2, store.records[7].RecordDate)
	}
}

func TestRecordConsumptionZeroAmountCreatesRecord(t *testing.T) {
	l, _ := newTestLedger()
	out, err := l.RecordConsumption(context.Background(), 7, 0, day1)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if out.Action != ActionCreated || out.Record.ConsumedSugar != 0 {
		t.Fatalf("unexpected outcome %+v", out)
	}
}

func TestRecordConsumptionRejectsInvalidAmounts(t *testing.T) {
	l, store := newTestLedger()
	for _, amount := range []float64{-1, math.NaN(), math.Inf(1), math.Inf(-1)} {
		if _, err := l.RecordConsumption(context.Background(), 7, amount, day1); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("amount %v: expected ErrInvalidAmount, got %v", amount, err)
		}
	}
	if len(store.records) != 0 {
		t.Fatalf("invalid amounts must not write, got %+v", store.records)
	}
}

func TestRecordConsumptionRejectsOverflowingTotal(t *testing.T) {
	l, store := newTestLedger()
	ctx := context.Background()
	if _, err := l.RecordConsumption(ctx, 7, math.MaxFloat64, day1); err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := l.RecordConsumption(ctx, 7, math.MaxFloat64, day1); !errors.Is(err, ErrTotalOverflow) {
		t.Fatalf("expected ErrTotalOverflow, got %v", err)
	}
	if got := store.records[7].ConsumedSugar; got != math.MaxFloat64 {
		t.Fatalf("overflowing write must not persist, total is %v", got)
	}
}

func TestGetDailyStatusWithoutRecord(t *testing.T) {
	l, _ := newTestLedger()
	if _, err := l.GetDailyStatus(context.Background(), 7, day1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetDailyStatusWithoutProfile(t *testing.T) {
	l, store := newTestLedger()
	store.records[42] = Record{UserID: 42, ConsumedSugar: 10, RecordDate: day1}
	if _, err := l.GetDailyStatus(context.Background(), 42, day2); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if store.resets != 0 {
		t.Fatalf("missing profile must not reset the record")
	}
}

func TestGetDailyStatusSameDay(t *testing.T) {
	l, store := newTestLedger()
	ctx := context.Background()
	if _, err := l.RecordConsumption(ctx, 7, 20, day1); err != nil {
		t.Fatalf("record: %v", err)
	}
	status, err := l.GetDailyStatus(ctx, 7, day1)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.ConsumedSugar != 20 || status.SugarLimit != 50 || status.UserName != "Ana" {
		t.Fatalf("unexpected status %+v", status)
	}
	if status.Remaining != 30 || status.Exceeded || status.Reset {
		t.Fatalf("unexpected derived fields %+v", status)
	}
	if store.resets != 0 {
		t.Fatalf("same-day read must not write")
	}
}

func TestGetDailyStatusResetsStaleRecord(t *testing.T) {
	l, store := newTestLedger()
	ctx := context.Background()
	if _, err := l.RecordConsumption(ctx, 7, 40, day1); err != nil {
		t.Fatalf("record: %v", err)
	}
	status, err := l.GetDailyStatus(ctx, 7, day2)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.ConsumedSugar != 0 || !status.RecordDate.Equal(day2) || !status.Reset {
		t.Fatalf("expected reset status, got %+v", status)
	}
	if got := store.records[7]; got.ConsumedSugar != 0 || !got.RecordDate.Equal(day2) {
		t.Fatalf("expected persisted reset, got %+v", got)
	}

	// a second read the same day is idempotent
	if _, err := l.GetDailyStatus(ctx, 7, day2); err != nil {
		t.Fatalf("status: %v", err)
	}
	if store.resets != 1 {
		t.Fatalf("expected exactly one reset, got %d", store.resets)
	}
}

func TestGetDailyStatusExceeded(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()
	if _, err := l.RecordConsumption(ctx, 9, 45, day1); err != nil {
		t.Fatalf("record: %v", err)
	}
	status, err := l.GetDailyStatus(ctx, 9, day1)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.Exceeded || status.Remaining != 0 {
		t.Fatalf("expected exceeded status, got %+v", status)
	}
}

func TestReadThenWriteAcrossDays(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()
	if _, err := l.RecordConsumption(ctx, 7, 25, day1); err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := l.GetDailyStatus(ctx, 7, day2); err != nil {
		t.Fatalf("status: %v", err)
	}
	out, err := l.RecordConsumption(ctx, 7, 4, day2)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if out.Record.ConsumedSugar != 4 {
		t.Fatalf("expected total 4 after reset, got %v", out.Record.ConsumedSugar)
	}
}

func TestUsersAreIsolated(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()
	if _, err := l.RecordConsumption(ctx, 7, 10, day1); err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := l.RecordConsumption(ctx, 9, 3, day1); err != nil {
		t.Fatalf("record: %v", err)
	}
	a, _ := l.GetDailyStatus(ctx, 7, day1)
	b, _ := l.GetDailyStatus(ctx, 9, day1)
	if a.ConsumedSugar != 10 || b.ConsumedSugar != 3 {
		t.Fatalf("totals leaked between users: %v / %v", a.ConsumedSugar, b.ConsumedSugar)
	}
}

func TestConcurrentRecordsDoNotLoseUpdates(t *testing.T) {
	l, store := newTestLedger()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.RecordConsumption(ctx, 7, 1, day1); err != nil {
				t.Errorf("record: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := store.records[7].ConsumedSugar; got != 50 {
		t.Fatalf("expected 50 after concurrent writes, got %v", got)
	}
}

func TestStorageErrorsAreWrapped(t *testing.T) {
	for _, op := range []string{"find", "insert", "update"} {
		l, store := newTestLedger()
		if op == "update" {
			store.records[7] = Record{UserID: 7, ConsumedSugar: 1, RecordDate: day1}
		}
		store.failOn = op
		_, err := l.RecordConsumption(context.Background(), 7, 1, day1)
		var se *StorageError
		if !errors.As(err, &se) {
			t.Fatalf("%s: expected StorageError, got %v", op, err)
		}
	}

	l, store := newTestLedger()
	store.records[7] = Record{UserID: 7, ConsumedSugar: 1, RecordDate: day1}
	store.failOn = "reset"
	_, err := l.GetDailyStatus(context.Background(), 7, day2)
	var se *StorageError
	if !errors.As(err, &se) || se.Op != "reset consumption record" {
		t.Fatalf("expected reset StorageError, got %v", err)
	}
}

func TestRejectsMissingUser(t *testing.T) {
	l, _ := newTestLedger()
	if _, err := l.RecordConsumption(context.Background(), 0, 1, day1); !errors.Is(err, ErrInvalidUser) {
		t.Fatalf("expected ErrInvalidUser, got %v", err)
	}
	if _, err := l.GetDailyStatus(context.Background(), 0, day1); !errors.Is(err, ErrInvalidUser) {
		t.Fatalf("expected ErrInvalidUser, got %v", err)
	}
}
