package health

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult holds the result of a health check.
type CheckResult struct {
	Status    Status        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Latency   time.Duration `json:"latency_ms"`
	Timestamp time.Time     `json:"timestamp"`
	Error     string        `json:"error,omitempty"`
}

// Component is one checked dependency.
type Component struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Critical bool   `json:"critical"`
	CheckResult
}

// Pinger is anything that can prove it is reachable, such as the redis
// rate-limit store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Config holds health checker configuration.
type Config struct {
	// Databases keyed by component name (users_db, ledger_db, catalog_db).
	// A database failure makes the service unhealthy.
	Databases map[string]*sql.DB
	// Services are non-critical dependencies; a failure only degrades.
	Services map[string]Pinger

	Timeout            time.Duration
	MaxDatabaseLatency time.Duration
}

// Checker performs health checks on system components.
type Checker struct {
	mu         sync.RWMutex
	components []Component

	databases  map[string]*sql.DB
	services   map[string]Pinger
	timeout    time.Duration
	maxLatency time.Duration
	now        func() time.Time
}

// New creates a new health checker.
func New(cfg Config) *Checker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.MaxDatabaseLatency <= 0 {
		cfg.MaxDatabaseLatency = 100 * time.Millisecond
	}
	dbs := make(map[string]*sql.DB, len(cfg.Databases))
	for name, db := range cfg.Databases {
		if db != nil {
			dbs[name] = db
		}
	}
	svcs := make(map[string]Pinger, len(cfg.Services))
	for name, p := range cfg.Services {
		if p != nil {
			svcs[name] = p
		}
	}
	return &Checker{
		databases:  dbs,
		services:   svcs,
		timeout:    cfg.Timeout,
		maxLatency: cfg.MaxDatabaseLatency,
		now:        time.Now,
	}
}

// Check probes every component concurrently and returns the overall status.
func (c *Checker) Check(ctx context.Context) HealthStatus {
	var wg sync.WaitGroup
	results := make(chan Component, len(c.databases)+len(c.services))

	for name, db := range c.databases {
		wg.Add(1)
		go func(name string, db *sql.DB) {
			defer wg.Done()
			results <- c.checkDatabase(ctx, name, db)
		}(name, db)
	}
	for name, p := range c.services {
		wg.Add(1)
		go func(name string, p Pinger) {
			defer wg.Done()
			results <- c.checkService(ctx, name, p)
		}(name, p)
	}
	wg.Wait()
	close(results)

	components := make([]Component, 0, cap(results))
	for comp := range results {
		components = append(components, comp)
	}
	sort.Slice(components, func(i, j int) bool { return components[i].Name < components[j].Name })

	c.mu.Lock()
	c.components = components
	c.mu.Unlock()

	return c.overall(components)
}

func (c *Checker) checkDatabase(ctx context.Context, name string, db *sql.DB) Component {
	comp := Component{Name: name, Type: "database", Critical: true}
	comp.Timestamp = c.now()

	start := time.Now()
	dbCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	err := db.PingContext(dbCtx)
	comp.Latency = time.Since(start)

	switch {
	case err != nil:
		comp.Status = StatusUnhealthy
		comp.Error = err.Error()
		comp.Message = "Database unreachable"
	case comp.Latency > c.maxLatency:
		comp.Status = StatusDegraded
		comp.Message = fmt.Sprintf("High latency: %v", comp.Latency)
	default:
		comp.Status = StatusHealthy
		comp.Message = "Connected"
	}
	return comp
}

func (c *Checker) checkService(ctx context.Context, name string, p Pinger) Component {
	comp := Component{Name: name, Type: "service"}
	comp.Timestamp = c.now()

	start := time.Now()
	sctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	err := p.Ping(sctx)
	comp.Latency = time.Since(start)

	if err != nil {
		comp.Status = StatusUnhealthy
		comp.Error = err.Error()
		comp.Message = "Unreachable"
		return comp
	}
	comp.Status = StatusHealthy
	comp.Message = "Reachable"
	return comp
}

func (c *Checker) overall(components []Component) HealthStatus {
	status := StatusHealthy
	for _, comp := range components {
		switch {
		case comp.Status == StatusUnhealthy && comp.Critical:
			status = StatusUnhealthy
		case comp.Status != StatusHealthy && status == StatusHealthy:
			status = StatusDegraded
		}
	}
	return HealthStatus{Status: status, Timestamp: c.now(), Components: components}
}

// HealthStatus represents the overall health of the system.
type HealthStatus struct {
	Status     Status      `json:"status"`
	Timestamp  time.Time   `json:"timestamp"`
	Components []Component `json:"components"`
}

// LastStatus returns the result of the most recent Check.
func (c *Checker) LastStatus() HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.components) == 0 {
		return HealthStatus{Status: StatusHealthy, Timestamp: c.now()}
	}
	return c.overall(c.components)
}
