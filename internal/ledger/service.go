package ledger

import (
	"context"
	"math"
	"sync"

	"github.com/rs/zerolog"
)

const lockStripes = 64

// Ledger keeps one running sugar total per user. Writes always accumulate;
// a read on a later calendar day rolls the total back to zero.
//
// Calls for the same user are serialized inside this process. Two processes
// sharing one database can still interleave a find-then-write pair.
type Ledger struct {
	store    Store
	profiles ProfileReader
	logger   zerolog.Logger
	locks    [lockStripes]sync.Mutex
}

// New builds a Ledger over the given storage and profile source.
func New(store Store, profiles ProfileReader) *Ledger {
	if store == nil {
		panic("ledger store required")
	}
	if profiles == nil {
		panic("ledger profile reader required")
	}
	return &Ledger{store: store, profiles: profiles, logger: zerolog.Nop()}
}

// SetLogger replaces the ledger's logger.
func (l *Ledger) SetLogger(logger zerolog.Logger) {
	l.logger = logger.With().Str("component", "ledger").Logger()
}

func (l *Ledger) lockUser(userID int64) func() {
	mu := &l.locks[uint64(userID)%lockStripes]
	mu.Lock()
	return mu.Unlock
}

// RecordConsumption adds amount to the user's total. The first call for a
// user creates the record; later calls add to it and move its date to
// eventDate without clearing the previous total.
func (l *Ledger) RecordConsumption(ctx context.Context, userID int64, amount float64, eventDate Date) (Outcome, error) {
	if userID <= 0 {
		return Outcome{}, ErrInvalidUser
	}
	if amount < 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return Outcome{}, ErrInvalidAmount
	}

	unlock := l.lockUser(userID)
	defer unlock()

	existing, err := l.store.FindConsumptionRecord(ctx, userID)
	if err != nil {
		return Outcome{}, &StorageError{Op: "find consumption record", Err: err}
	}

	if existing == nil {
		if err := l.store.InsertConsumptionRecord(ctx, userID, amount, eventDate); err != nil {
			return Outcome{}, &StorageError{Op: "insert consumption record", Err: err}
		}
		l.logger.Debug().Int64("user_id", userID).Float64("total", amount).Str("date", eventDate.String()).Msg("consumption record created")
		return Outcome{
			Action: ActionCreated,
			Record: Record{UserID: userID, ConsumedSugar: amount, RecordDate: eventDate},
		}, nil
	}

	total := existing.ConsumedSugar + amount
	if math.IsInf(total, 0) {
		return Outcome{}, ErrTotalOverflow
	}
	if err := l.store.UpdateConsumptionRecord(ctx, userID, total, eventDate); err != nil {
		return Outcome{}, &StorageError{Op: "update consumption record", Err: err}
	}
	l.logger.Debug().Int64("user_id", userID).Float64("total", total).Str("date", eventDate.String()).Msg("consumption record updated")
	return Outcome{
		Action: ActionUpdated,
		Record: Record{UserID: userID, ConsumedSugar: total, RecordDate: eventDate},
	}, nil
}

// GetDailyStatus returns the user's total for today joined with their limit.
// A record dated on any other day is reset to zero and re-dated to today
// before it is returned.
func (l *Ledger) GetDailyStatus(ctx context.Context, userID int64, today Date) (DailyStatus, error) {
	if userID <= 0 {
		return DailyStatus{}, ErrInvalidUser
	}

	unlock := l.lockUser(userID)
	defer unlock()

	record, err := l.store.FindConsumptionRecord(ctx, userID)
	if err != nil {
		return DailyStatus{}, &StorageError{Op: "find consumption record", Err: err}
	}
	if record == nil {
		return DailyStatus{}, ErrNotFound
	}

	profile, err := l.profiles.FindUserProfile(ctx, userID)
	if err != nil {
		return DailyStatus{}, &StorageError{Op: "find user profile", Err: err}
	}
	if profile == nil {
		return DailyStatus{}, ErrNotFound
	}

	status := DailyStatus{
		UserName:      profile.Name,
		SugarLimit:    profile.SugarLimit,
		ConsumedSugar: record.ConsumedSugar,
		RecordDate:    record.RecordDate,
	}

	if !record.RecordDate.Equal(today) {
		if err := l.store.ResetConsumptionRecord(ctx, userID, today); err != nil {
			return DailyStatus{}, &StorageError{Op: "reset consumption record", Err: err}
		}
		l.logger.Debug().Int64("user_id", userID).Str("from", record.RecordDate.String()).Str("to", today.String()).Msg("consumption record reset")
		status.ConsumedSugar = 0
		status.RecordDate = today
		status.Reset = true
	}

	status.Remaining = math.Max(0, status.SugarLimit-status.ConsumedSugar)
	status.Exceeded = status.ConsumedSugar > status.SugarLimit
	return status, nil
}
