package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryStore keeps one x/time/rate limiter per key.
type MemoryStore struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	now      func() time.Time
}

// NewMemoryStore creates a new in-memory rate limit store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		visitors: make(map[string]*visitor),
		now:      time.Now,
	}
}

// Allow takes one token from key's limiter.
func (s *MemoryStore) Allow(_ context.Context, key string, rps float64, burst int) (Decision, error) {
	now := s.now()

	s.mu.Lock()
	v, ok := s.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
		s.visitors[key] = v
	}
	v.lastSeen = now
	s.mu.Unlock()

	allowed := v.limiter.AllowN(now, 1)
	return Decision{Allowed: allowed, Remaining: v.limiter.TokensAt(now)}, nil
}

// Sweep evicts keys idle for longer than idle and returns how many went.
func (s *MemoryStore) Sweep(idle time.Duration) int {
	cutoff := s.now().Add(-idle)
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, v := range s.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(s.visitors, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.visitors)
}

// Close is a no-op; the store holds no external resources.
func (s *MemoryStore) Close() error {
	return nil
}
