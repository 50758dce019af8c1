package userstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sugarscan/sugartrack/internal/ledger"
)

// DefaultSugarLimit is the daily allowance, in grams, for new accounts.
const DefaultSugarLimit = 50.0

var (
	// ErrEmailTaken is returned when registering an email that already exists.
	ErrEmailTaken = errors.New("email already registered")
	// ErrNotFound is returned when updating a user that does not exist.
	ErrNotFound = errors.New("user not found")
)

// User is a registered account with the profile fields the tracker uses.
type User struct {
	ID           int64     `json:"user_id"`
	Name         string    `json:"user_name"`
	Email        string    `json:"user_email"`
	PasswordHash string    `json:"-"`
	Age          int       `json:"user_age"`
	Height       float64   `json:"user_height"`
	Weight       float64   `json:"user_weight"`
	SugarLimit   float64   `json:"sugar_limit"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewUser is the input to CreateUser.
type NewUser struct {
	Name         string
	Email        string
	PasswordHash string
	SugarLimit   float64
}

// ProfileUpdate replaces every editable profile field at once.
type ProfileUpdate struct {
	Name       string
	Age        int
	Height     float64
	Weight     float64
	SugarLimit float64
}

// Store persists accounts across SQLite/Postgres backends. Lookups return
// nil, nil when the user does not exist.
type Store interface {
	CreateUser(ctx context.Context, user NewUser) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	GetUser(ctx context.Context, id int64) (*User, error)
	UpdateProfile(ctx context.Context, id int64, update ProfileUpdate) (*User, error)
	FindUserProfile(ctx context.Context, id int64) (*ledger.Profile, error)
	Close() error
}

// NormalizeEmail lower-cases and trims an address before it is stored or looked up.
func NormalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}
