// Package health provides liveness reporting for the server's components.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Status represents the health status of a component.
type Status string

const (
	// StatusHealthy indicates the component is fully operational.
	StatusHealthy Status = "healthy"
	// StatusDegraded indicates the component is operational but with issues.
	StatusDegraded Status = "degraded"
	// StatusUnhealthy indicates the component is not operational.
	StatusUnhealthy Status = "unhealthy"
)

// ComponentStatus represents the health status of a single component.
type ComponentStatus struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Response represents the health check response.
type Response struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentStatus `json:"components"`
	Version    string                     `json:"version"`
	Uptime     string                     `json:"uptime"`
}

// CheckFunc reports the state of one component.
type CheckFunc func(ctx context.Context) ComponentStatus

// Checker aggregates registered component checks.
type Checker struct {
	mu        sync.RWMutex
	checks    map[string]CheckFunc
	startTime time.Time
	version   string
	timeout   time.Duration
}

// NewChecker creates a new health checker.
func NewChecker(version string) *Checker {
	return &Checker{
		checks:    make(map[string]CheckFunc),
		startTime: time.Now(),
		version:   version,
		timeout:   5 * time.Second,
	}
}

// Register adds or replaces the check reported under name.
func (c *Checker) Register(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// SetTimeout sets the timeout for health checks.
func (c *Checker) SetTimeout(timeout time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeout = timeout
}

// Check runs every registered check and returns the aggregated response. The
// overall status is the worst component status.
func (c *Checker) Check(ctx context.Context) *Response {
	c.mu.RLock()
	timeout := c.timeout
	checks := make(map[string]CheckFunc, len(c.checks))
	for name, fn := range c.checks {
		checks[name] = fn
	}
	c.mu.RUnlock()

	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	components := make(map[string]ComponentStatus, len(checks))
	overall := StatusHealthy
	for name, fn := range checks {
		st := fn(checkCtx)
		components[name] = st
		switch {
		case st.Status == StatusUnhealthy:
			overall = StatusUnhealthy
		case st.Status == StatusDegraded && overall == StatusHealthy:
			overall = StatusDegraded
		}
	}

	return &Response{
		Status:     overall,
		Components: components,
		Version:    c.version,
		Uptime:     time.Since(c.startTime).Round(time.Second).String(),
	}
}

// Handler returns an HTTP handler for health checks. Unhealthy answers 503.
func (c *Checker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := c.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if response.Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		json.NewEncoder(w).Encode(response)
	}
}

// SimulatorFreshness reports the simulator degraded when no tick has been
// seen within two intervals, and unhealthy past five.
func SimulatorFreshness(lastTick func() time.Time, interval time.Duration, now func() time.Time) CheckFunc {
	started := now()
	return func(context.Context) ComponentStatus {
		last := lastTick()
		if last.IsZero() {
			last = started
		}
		age := now().Sub(last)
		switch {
		case age > 5*interval:
			return ComponentStatus{Status: StatusUnhealthy, Message: fmt.Sprintf("no tick for %s", age.Round(time.Second))}
		case age > 2*interval:
			return ComponentStatus{Status: StatusDegraded, Message: fmt.Sprintf("last tick %s ago", age.Round(time.Second))}
		}
		return ComponentStatus{Status: StatusHealthy, Message: "ticking"}
	}
}

// StreamRegistry reports the number of connected stream sessions.
func StreamRegistry(count func() int) CheckFunc {
	return func(context.Context) ComponentStatus {
		return ComponentStatus{
			Status:  StatusHealthy,
			Message: fmt.Sprintf("%d session(s) connected", count()),
		}
	}
}
