package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/sugarscan/sugartrack/internal/auth"
	"github.com/sugarscan/sugartrack/internal/catalog"
	"github.com/sugarscan/sugartrack/internal/health"
	"github.com/sugarscan/sugartrack/internal/hooks"
	"github.com/sugarscan/sugartrack/internal/httpserver/protocol"
	"github.com/sugarscan/sugartrack/internal/ledger"
	"github.com/sugarscan/sugartrack/internal/metrics"
	"github.com/sugarscan/sugartrack/internal/ratelimit"
	"github.com/sugarscan/sugartrack/internal/userstore"
)

var defaultEndpointKeys = []string{"account", "consumption", "catalog", "health", "metrics"}

// Server exposes the tracker's HTTP API.
type Server struct {
	gate    *auth.Gate
	users   userstore.Store
	ledger  *ledger.Ledger
	catalog catalog.Store

	hooks   *hooks.Dispatcher
	limiter *ratelimit.Limiter
	metrics *metrics.Collector
	health  *health.Checker
	logger  zerolog.Logger

	now               func() time.Time
	defaultSugarLimit float64
	endpointKeys      []string
}

type identityContextKey struct{}

// New constructs a Server with the required dependencies.
func New(gate *auth.Gate, users userstore.Store, consumption *ledger.Ledger, products catalog.Store) *Server {
	if gate == nil || users == nil || consumption == nil || products == nil {
		panic("httpserver: gate, users, ledger and catalog are required")
	}
	return &Server{
		gate:              gate,
		users:             users,
		ledger:            consumption,
		catalog:           products,
		logger:            zerolog.Nop(),
		now:               time.Now,
		defaultSugarLimit: userstore.DefaultSugarLimit,
		endpointKeys:      defaultEndpointKeys,
	}
}

// SetLogger sets the base logger; per-request loggers derive from it.
func (s *Server) SetLogger(logger zerolog.Logger) { s.logger = logger }

// SetHooks attaches the lifecycle event dispatcher.
func (s *Server) SetHooks(d *hooks.Dispatcher) { s.hooks = d }

// SetRateLimiter enables rate limiting for user and public routes.
func (s *Server) SetRateLimiter(l *ratelimit.Limiter) { s.limiter = l }

// SetMetrics enables Prometheus instrumentation and the /metrics route.
func (s *Server) SetMetrics(c *metrics.Collector) { s.metrics = c }

// SetHealthChecker wires the dependency checks reported by /health.
func (s *Server) SetHealthChecker(c *health.Checker) { s.health = c }

// SetClock overrides the time source that decides "today".
func (s *Server) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// SetDefaultSugarLimit sets the limit given to newly registered users.
func (s *Server) SetDefaultSugarLimit(grams float64) {
	if grams > 0 {
		s.defaultSugarLimit = grams
	}
}

// SetEndpoints restricts which endpoint groups Router mounts.
func (s *Server) SetEndpoints(keys []string) {
	s.endpointKeys = normalizeEndpointKeys(keys, defaultEndpointKeys)
}

// Router returns a configured chi router for embedding in HTTP servers.
func (s *Server) Router() http.Handler {
	r := s.newBaseRouter()
	s.registerEndpointKeys(r, s.endpointKeys...)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.respondFail(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.respondFail(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

func (s *Server) newBaseRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(s.logger))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
	}
	r.Use(middleware.Recoverer)
	return r
}

func (s *Server) registerEndpoints(r chi.Router, endpoints ...protocol.Endpoint) {
	limit := s.rateLimitMiddleware()
	for _, ep := range endpoints {
		if ep == nil {
			continue
		}
		s.logger.Debug().Str("endpoint", ep.Name()).Msg("registering endpoint")
		for _, route := range ep.Routes() {
			handler := route.Handler
			switch route.Access {
			case protocol.AccessUser:
				if limit != nil {
					handler = limit.Wrap(handler)
				}
				handler = s.requireIdentity(handler)
			case protocol.AccessPublic:
				if limit != nil {
					handler = limit.Wrap(handler)
				}
			}
			r.Method(route.Method, route.Path, handler)
		}
	}
}

func (s *Server) registerEndpointKeys(r chi.Router, keys ...string) int {
	var endpoints []protocol.Endpoint
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		if ep := s.endpointByKey(key); ep != nil {
			endpoints = append(endpoints, ep)
		} else {
			s.logger.Debug().Str("endpoint", key).Msg("endpoint unavailable, skipping registration")
		}
	}
	s.registerEndpoints(r, endpoints...)
	return len(endpoints)
}

func (s *Server) endpointByKey(key string) protocol.Endpoint {
	switch key {
	case "account", "accounts", "user":
		return newAccountEndpoint(s)
	case "consumption", "consume", "ledger":
		return newConsumptionEndpoint(s)
	case "catalog", "history", "products":
		return newCatalogEndpoint(s)
	case "health", "status":
		return newHealthEndpoint(s)
	case "metrics":
		if s.metrics == nil {
			return nil
		}
		return newMetricsEndpoint(s)
	default:
		return nil
	}
}

func normalizeEndpointKeys(list []string, defaults []string) []string {
	out := make([]string, 0, len(list))
	for _, key := range list {
		if key = strings.TrimSpace(key); key != "" {
			out = append(out, key)
		}
	}
	if len(out) == 0 {
		return defaults
	}
	return out
}

// today is the server's current UTC calendar date.
func (s *Server) today() ledger.Date {
	return ledger.DateOf(s.now().UTC())
}

func (s *Server) requireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := s.gate.Verify(r.Header.Get("Authorization"))
		if err != nil {
			reason := "unknown"
			var authErr *auth.AuthError
			if errors.As(err, &authErr) {
				reason = authErr.Reason
			}
			s.metrics.RecordAuthFailure(reason)
			hlog.FromRequest(r).Debug().Str("reason", reason).Msg("credential rejected")
			s.respondUnauthorized(w)
			return
		}
		ctx := context.WithValue(r.Context(), identityContextKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func identityFromContext(ctx context.Context) (auth.Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(auth.Identity)
	return id, ok
}

func (s *Server) rateLimitMiddleware() *ratelimit.Middleware {
	if s.limiter == nil {
		return nil
	}
	m := ratelimit.NewMiddleware(s.limiter, rateLimitKey, s.logger)
	m.SetRejectHandler(func(w http.ResponseWriter, r *http.Request) {
		s.metrics.RecordRateLimited(metrics.RoutePattern(r))
		s.respondFail(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
	})
	return m
}

// rateLimitKey charges authenticated requests to the user and anonymous ones
// to the client address.
func rateLimitKey(r *http.Request) string {
	if id, ok := identityFromContext(r.Context()); ok {
		return "user:" + strconv.FormatInt(id.UserID, 10)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

func (s *Server) emit(ctx context.Context, typ hooks.EventType, userID int64, metadata map[string]any) {
	if s.hooks == nil {
		return
	}
	evt := hooks.NewEvent(typ, userID, metadata)
	evt.OccurredAt = s.now().UTC()
	if err := s.hooks.Emit(ctx, evt); err != nil {
		s.logger.Warn().Err(err).Str("event", string(typ)).Int64("user_id", userID).Msg("hook delivery failed")
	}
}

// envelope is the response body shared by every API route.
type envelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

const (
	statusSuccess = "success"
	statusFail    = "fail"
	statusMissed  = "missed"
)

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	if payload == nil {
		w.WriteHeader(status)
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error().Err(err).Int("status", status).Msg("encode response")
		status = http.StatusInternalServerError
		body, _ = json.Marshal(envelope{Status: statusFail, Message: "failed to encode response"})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

func (s *Server) respondSuccess(w http.ResponseWriter, message string, data any) {
	s.respondJSON(w, http.StatusOK, envelope{Status: statusSuccess, Message: message, Data: data})
}

func (s *Server) respondFail(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, envelope{Status: statusFail, Message: message})
}

func (s *Server) respondUnauthorized(w http.ResponseWriter) {
	s.respondJSON(w, http.StatusUnauthorized, envelope{Status: statusMissed, Message: "User is not authorized!"})
}

// respondError maps an error that no handler classified itself.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		s.respondUnauthorized(w)
	case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ledger.ErrTotalOverflow), errors.Is(err, ledger.ErrInvalidUser),
		errors.Is(err, auth.ErrPasswordRequired), errors.Is(err, auth.ErrPasswordTooLong), errors.Is(err, errBadRequest):
		s.respondFail(w, http.StatusBadRequest, err.Error())
	default:
		hlog.FromRequest(r).Error().Err(err).Msg("request failed")
		s.respondFail(w, http.StatusInternalServerError, err.Error())
	}
}
