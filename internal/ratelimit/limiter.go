package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Decision is a store's answer for one request.
type Decision struct {
	Allowed   bool
	Remaining float64
}

// Store defines the interface for rate limit storage backends.
// MemoryStore serves a single instance; RedisStore shares buckets across instances.
type Store interface {
	// Allow takes one token from key's bucket, creating it full if absent.
	Allow(ctx context.Context, key string, rps float64, burst int) (Decision, error)
	// Close releases resources.
	Close() error
}

// Config holds configuration for the rate limiter.
type Config struct {
	Enabled           bool
	RequestsPerSecond float64 // sustained rate per key
	Burst             int     // bucket capacity
	RedisAddr         string  // empty selects the in-memory store
	RedisPassword     string
	RedisDB           int
	// SweepSchedule is a cron spec for evicting idle in-memory buckets.
	SweepSchedule string
	IdleTTL       time.Duration
}

// Validate checks the limits when the limiter is enabled.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.RequestsPerSecond <= 0 {
		return fmt.Errorf("ratelimit: requests per second must be positive, got %v", c.RequestsPerSecond)
	}
	if c.Burst <= 0 {
		return fmt.Errorf("ratelimit: burst must be positive, got %d", c.Burst)
	}
	return nil
}

// Limiter applies one per-key limit over a pluggable store.
type Limiter struct {
	store  Store
	rps    float64
	burst  int
	logger zerolog.Logger
}

// NewLimiter creates a limiter over store; a nil store selects a MemoryStore.
func NewLimiter(cfg Config, store Store) *Limiter {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 20
	}
	if store == nil {
		store = NewMemoryStore()
	}
	return &Limiter{
		store:  store,
		rps:    cfg.RequestsPerSecond,
		burst:  cfg.Burst,
		logger: zerolog.Nop(),
	}
}

// SetLogger replaces the limiter's logger.
func (l *Limiter) SetLogger(logger zerolog.Logger) {
	l.logger = logger.With().Str("component", "ratelimit").Logger()
}

// Allow reports whether key may proceed. Store failures fail open.
func (l *Limiter) Allow(ctx context.Context, key string) Decision {
	if key == "" {
		return Decision{Allowed: true, Remaining: float64(l.burst)}
	}
	d, err := l.store.Allow(ctx, key, l.rps, l.burst)
	if err != nil {
		l.logger.Warn().Err(err).Str("key", key).Msg("rate limit store failed, allowing request")
		return Decision{Allowed: true, Remaining: float64(l.burst)}
	}
	return d
}

// Burst returns the bucket capacity.
func (l *Limiter) Burst() int {
	return l.burst
}

// RetryAfter estimates when one token will be available again.
func (l *Limiter) RetryAfter(remaining float64) time.Duration {
	needed := 1 - remaining
	if needed <= 0 {
		return 0
	}
	return time.Duration(needed / l.rps * float64(time.Second))
}

// Close stops the limiter and releases resources.
func (l *Limiter) Close() error {
	return l.store.Close()
}
