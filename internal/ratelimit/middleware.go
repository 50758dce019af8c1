package ratelimit

import (
	"math"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"
)

// KeyFunc picks the bucket a request is charged to.
type KeyFunc func(*http.Request) string

// Middleware wraps an HTTP handler with rate limiting.
type Middleware struct {
	limiter  *Limiter
	key      KeyFunc
	reject   http.HandlerFunc
	onReject func(key string)
	logger   zerolog.Logger
}

// NewMiddleware creates a rate limiting middleware charging requests to key.
func NewMiddleware(limiter *Limiter, key KeyFunc, logger zerolog.Logger) *Middleware {
	return &Middleware{
		limiter: limiter,
		key:     key,
		reject: func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
		},
		logger: logger,
	}
}

// SetRejectHandler replaces the 429 response writer.
func (m *Middleware) SetRejectHandler(h http.HandlerFunc) {
	if h != nil {
		m.reject = h
	}
}

// OnReject registers a callback fired for every rejected request.
func (m *Middleware) OnReject(fn func(key string)) {
	m.onReject = fn
}

// Wrap applies rate limiting to an HTTP handler.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := m.key(r)
		d := m.limiter.Allow(r.Context(), key)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(m.limiter.Burst()))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(math.Floor(d.Remaining))))

		if !d.Allowed {
			wait := m.limiter.RetryAfter(d.Remaining)
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			m.logger.Info().Str("key", key).Str("path", r.URL.Path).Msg("rate limit exceeded")
			if m.onReject != nil {
				m.onReject(key)
			}
			m.reject(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
