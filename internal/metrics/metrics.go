package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sugartrack"

// Ledger outcomes recorded by RecordLedgerOp.
const (
	OutcomeCreated  = "created"
	OutcomeUpdated  = "updated"
	OutcomeRead     = "read"
	OutcomeNotFound = "not_found"
	OutcomeInvalid  = "invalid"
	OutcomeError    = "error"
)

// Collector owns a private registry so tests and multiple servers never
// collide on the global one.
type Collector struct {
	registry *prometheus.Registry

	httpInFlight  prometheus.Gauge
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	ledgerOps     *prometheus.CounterVec
	ledgerResets  prometheus.Counter
	sugarConsumed prometheus.Counter
	authFailures  *prometheus.CounterVec
	rateLimited   *prometheus.CounterVec
	scans         *prometheus.CounterVec
}

// NewCollector creates a collector with process and Go runtime metrics registered.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"method", "route"}),
		ledgerOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Consumption ledger operations by outcome.",
		}, []string{"operation", "outcome"}),
		ledgerResets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "resets_total",
			Help:      "Daily totals zeroed on a date rollover.",
		}),
		sugarConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "sugar_grams_total",
			Help:      "Grams of sugar recorded across all users.",
		}),
		authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "failures_total",
			Help:      "Rejected credentials by reason.",
		}, []string{"reason"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "rejections_total",
			Help:      "Requests rejected by the rate limiter.",
		}, []string{"route"}),
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "scans_total",
			Help:      "Product scans by grade.",
		}, []string{"grade"}),
	}
	c.registry.MustRegister(
		c.httpInFlight,
		c.httpRequests,
		c.httpDuration,
		c.ledgerOps,
		c.ledgerResets,
		c.sugarConsumed,
		c.authFailures,
		c.rateLimited,
		c.scans,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
	return c
}

// Registry exposes the underlying registry for tests and extra collectors.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordLedgerOp counts one ledger operation.
func (c *Collector) RecordLedgerOp(operation, outcome string) {
	if c == nil {
		return
	}
	c.ledgerOps.WithLabelValues(operation, outcome).Inc()
}

// RecordConsumption adds grams to the running total.
func (c *Collector) RecordConsumption(grams float64) {
	if c == nil || grams <= 0 {
		return
	}
	c.sugarConsumed.Add(grams)
}

// RecordReset counts a lazy daily reset.
func (c *Collector) RecordReset() {
	if c == nil {
		return
	}
	c.ledgerResets.Inc()
}

// RecordAuthFailure counts a rejected credential.
func (c *Collector) RecordAuthFailure(reason string) {
	if c == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	c.authFailures.WithLabelValues(reason).Inc()
}

// RecordRateLimited counts a 429 on route.
func (c *Collector) RecordRateLimited(route string) {
	if c == nil {
		return
	}
	c.rateLimited.WithLabelValues(route).Inc()
}

// RecordScan counts a product scan.
func (c *Collector) RecordScan(grade string) {
	if c == nil {
		return
	}
	if grade == "" {
		grade = "ungraded"
	}
	c.scans.WithLabelValues(grade).Inc()
}

// Middleware records request counts and latency keyed by the matched chi
// route pattern, so path parameters do not explode label cardinality.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		c.httpInFlight.Inc()
		defer c.httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		route := RoutePattern(r)
		method := strings.ToUpper(r.Method)
		c.httpRequests.WithLabelValues(method, route, strconv.Itoa(rec.status)).Inc()
		c.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	})
}

// RoutePattern returns the chi pattern that matched r, or "unmatched".
func RoutePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
