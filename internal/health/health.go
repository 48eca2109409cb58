// Package health provides a registry of named upstream health checkers.
package health

import (
	"context"
	"sync"
	"time"
)

// DefaultCheckTimeout bounds a single checker run.
const DefaultCheckTimeout = 5 * time.Second

// Status represents the health of a single subsystem.
type Status struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Mode    string `json:"mode,omitempty"` // "live" or "mock" for chain clients
	Detail  string `json:"detail,omitempty"`
}

// Checker is a function that checks the health of a subsystem.
type Checker func(ctx context.Context) Status

// Registry holds named health checkers and runs them on demand.
type Registry struct {
	mu       sync.RWMutex
	checkers []namedChecker
	timeout  time.Duration
}

type namedChecker struct {
	name  string
	check Checker
}

// NewRegistry creates a new health check registry.
func NewRegistry() *Registry {
	return &Registry{timeout: DefaultCheckTimeout}
}

// WithTimeout overrides the per-checker timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	r.timeout = d
	return r
}

// Register adds a named health checker.
func (r *Registry) Register(name string, check Checker) {
	r.mu.Lock()
	r.checkers = append(r.checkers, namedChecker{name: name, check: check})
	r.mu.Unlock()
}

// Pinger is anything that can probe its upstream.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingChecker adapts a Pinger into a Checker. mode is reported as-is so the
// health page shows which chains are running on fixtures.
func PingChecker(name, mode string, p Pinger) Checker {
	return func(ctx context.Context) Status {
		st := Status{Name: name, Mode: mode, Healthy: true}
		if err := p.Ping(ctx); err != nil {
			st.Healthy = false
			st.Detail = err.Error()
		}
		return st
	}
}

// CheckAll runs all registered checkers and returns the aggregate health
// status plus individual subsystem results. Each checker gets its own
// timeout; names are filled in when a checker leaves them empty.
func (r *Registry) CheckAll(ctx context.Context) (healthy bool, statuses []Status) {
	r.mu.RLock()
	checkers := make([]namedChecker, len(r.checkers))
	copy(checkers, r.checkers)
	timeout := r.timeout
	r.mu.RUnlock()

	healthy = true
	statuses = make([]Status, len(checkers))

	for i, nc := range checkers {
		cctx, cancel := context.WithTimeout(ctx, timeout)
		statuses[i] = nc.check(cctx)
		cancel()
		if statuses[i].Name == "" {
			statuses[i].Name = nc.name
		}
		if !statuses[i].Healthy {
			healthy = false
		}
	}

	return healthy, statuses
}
