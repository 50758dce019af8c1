package ledger

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a user has no consumption record or profile.
	ErrNotFound = errors.New("ledger: record not found")
	// ErrInvalidAmount rejects negative or non-finite sugar amounts.
	ErrInvalidAmount = errors.New("ledger: amount must be a non-negative number")
	// ErrTotalOverflow rejects a write whose running total is not representable.
	ErrTotalOverflow = errors.New("ledger: running total out of range")
	// ErrInvalidUser rejects a missing user id.
	ErrInvalidUser = errors.New("ledger: user id required")
)

// StorageError wraps a failure of the underlying data-access layer.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Action names what RecordConsumption did to the user's record.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
)

// Record is the single running total kept per user.
type Record struct {
	UserID        int64   `json:"user_id"`
	ConsumedSugar float64 `json:"consume_sugar"`
	RecordDate    Date    `json:"consume_date"`
}

// Outcome reports the action taken and the record as persisted afterwards.
type Outcome struct {
	Action Action `json:"action"`
	Record Record `json:"record"`
}

// Profile is the slice of a user's account the ledger reads.
type Profile struct {
	UserID     int64
	Name       string
	SugarLimit float64
}

// DailyStatus is the current day's total joined with the user's limit.
type DailyStatus struct {
	UserName      string  `json:"user_name"`
	SugarLimit    float64 `json:"sugar_limit"`
	ConsumedSugar float64 `json:"consume_sugar"`
	RecordDate    Date    `json:"consume_date"`
	Remaining     float64 `json:"remaining"`
	Exceeded      bool    `json:"exceeded"`
	// Reset is true when this read rolled a stale day over to zero.
	Reset bool `json:"-"`
}

// Store is the storage contract backing the ledger. Find returns nil, nil
// when the user has no record.
type Store interface {
	FindConsumptionRecord(ctx context.Context, userID int64) (*Record, error)
	InsertConsumptionRecord(ctx context.Context, userID int64, amount float64, date Date) error
	UpdateConsumptionRecord(ctx context.Context, userID int64, amount float64, date Date) error
	ResetConsumptionRecord(ctx context.Context, userID int64, date Date) error
	Close() error
}

// ProfileReader resolves the profile fields joined into DailyStatus.
// FindUserProfile returns nil, nil when the user does not exist.
type ProfileReader interface {
	FindUserProfile(ctx context.Context, userID int64) (*Profile, error)
}
