package hooks

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType names the account and ledger transitions the tracker exports.
type EventType string

const (
	// EventUserRegistered is emitted after a new account is created.
	EventUserRegistered EventType = "sugartrack.user.registered"
	// EventProfileUpdated is emitted when profile fields or the sugar limit change.
	EventProfileUpdated EventType = "sugartrack.user.updated"
	// EventConsumptionRecorded is emitted after sugar intake is added to a ledger.
	EventConsumptionRecorded EventType = "sugartrack.consumption.recorded"
	// EventLedgerReset is emitted when a read rolls a stale day over to zero.
	EventLedgerReset EventType = "sugartrack.ledger.reset"
	// EventLimitExceeded is emitted when a recorded total first passes the user's limit.
	EventLimitExceeded EventType = "sugartrack.limit.exceeded"
	// EventProductScanned is emitted after a scan is added to a user's history.
	EventProductScanned EventType = "sugartrack.product.scanned"
)

// Event envelopes the payload broadcast to hook listeners.
type Event struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	OccurredAt time.Time      `json:"occurred_at"`
	UserID     string         `json:"user_id"`
	ActorID    string         `json:"actor_id"`
	Metadata   map[string]any `json:"metadata"`
}

// NewEvent stamps an event for userID with a fresh id.
func NewEvent(typ EventType, userID int64, metadata map[string]any) Event {
	id := strconv.FormatInt(userID, 10)
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		OccurredAt: time.Now().UTC(),
		UserID:     id,
		ActorID:    id,
		Metadata:   metadata,
	}
}

// Handler reacts to an Event. Implementations should be idempotent.
type Handler func(context.Context, Event) error

// Dispatcher coordinates handler registration and event fan-out.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers []Handler
}

// Register adds a handler. Handlers fire sequentially in registration order.
func (d *Dispatcher) Register(h Handler) {
	if h == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = append(d.handlers, h)
}

// Len reports how many handlers are registered.
func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers)
}

// Emit delivers an event to all registered handlers and joins their errors.
func (d *Dispatcher) Emit(ctx context.Context, event Event) error {
	d.mu.RLock()
	handlers := append([]Handler(nil), d.handlers...)
	d.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := h(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MarshalEvent converts an Event into the wire format handed to sinks.
var MarshalEvent = JSONMarshaler

// JSONMarshaler serialises the event into a stable JSON envelope.
func JSONMarshaler(evt Event) ([]byte, error) {
	return json.Marshal(evt)
}
