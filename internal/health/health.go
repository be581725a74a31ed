// Package health aggregates component checks for the /healthz endpoint.
//
// Components register a Check; critical components make the overall
// status unhealthy when they fail, others only degrade it.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
	StatusUnknown   Status = "unknown"
)

// CheckResult represents the result of a health check.
type CheckResult struct {
	Status      Status         `json:"status"`
	Message     string         `json:"message,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	LastChecked time.Time      `json:"last_checked"`
	Duration    time.Duration  `json:"duration_ns"`
	Error       string         `json:"error,omitempty"`
}

// Check is a function that performs a health check.
type Check func(ctx context.Context) CheckResult

// Component represents a health-checkable component.
type Component struct {
	Name     string
	Critical bool
	Check    Check
	Timeout  time.Duration
}

// Checker manages health checks.
type Checker struct {
	mu         sync.RWMutex
	components map[string]*Component
	results    map[string]CheckResult
	startTime  time.Time
	ready      bool
}

// NewChecker creates a new Checker.
func NewChecker() *Checker {
	return &Checker{
		components: make(map[string]*Component),
		results:    make(map[string]CheckResult),
		startTime:  time.Now(),
	}
}

// Register registers a health check component.
func (c *Checker) Register(component *Component) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if component.Timeout == 0 {
		component.Timeout = 5 * time.Second
	}
	c.components[component.Name] = component
	c.results[component.Name] = CheckResult{Status: StatusUnknown}
}

// RegisterFunc registers a simple health check function.
func (c *Checker) RegisterFunc(name string, critical bool, check Check) {
	c.Register(&Component{Name: name, Critical: critical, Check: check})
}

// SetReady sets the readiness state.
func (c *Checker) SetReady(ready bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready = ready
}

// IsReady returns the readiness state.
func (c *Checker) IsReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// Check runs all registered health checks concurrently.
func (c *Checker) Check(ctx context.Context) map[string]CheckResult {
	c.mu.RLock()
	components := make([]*Component, 0, len(c.components))
	for _, comp := range c.components {
		components = append(components, comp)
	}
	c.mu.RUnlock()

	results := make(map[string]CheckResult, len(components))
	var wg sync.WaitGroup
	var rmu sync.Mutex

	for _, comp := range components {
		wg.Add(1)
		go func(comp *Component) {
			defer wg.Done()
			result := runCheck(ctx, comp)

			c.mu.Lock()
			c.results[comp.Name] = result
			c.mu.Unlock()

			rmu.Lock()
			results[comp.Name] = result
			rmu.Unlock()
		}(comp)
	}

	wg.Wait()
	return results
}

func runCheck(ctx context.Context, comp *Component) CheckResult {
	checkCtx, cancel := context.WithTimeout(ctx, comp.Timeout)
	defer cancel()

	start := time.Now()
	done := make(chan CheckResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- CheckResult{
					Status:  StatusUnhealthy,
					Message: "check panicked",
					Error:   fmt.Sprintf("%v", r),
				}
			}
		}()
		done <- comp.Check(checkCtx)
	}()

	var result CheckResult
	select {
	case result = <-done:
	case <-checkCtx.Done():
		result = CheckResult{
			Status:  StatusUnhealthy,
			Message: "check timed out",
			Error:   checkCtx.Err().Error(),
		}
	}

	result.LastChecked = start
	result.Duration = time.Since(start)
	return result
}

// OverallStatus returns the aggregated status of the last results.
func (c *Checker) OverallStatus() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	hasUnknown := false
	hasDegraded := false

	for name, result := range c.results {
		comp := c.components[name]
		if comp == nil {
			continue
		}

		switch result.Status {
		case StatusUnhealthy:
			if comp.Critical {
				return StatusUnhealthy
			}
			hasDegraded = true
		case StatusDegraded:
			hasDegraded = true
		case StatusUnknown:
			if comp.Critical {
				hasUnknown = true
			}
		}
	}

	if hasUnknown {
		return StatusUnknown
	}
	if hasDegraded {
		return StatusDegraded
	}
	return StatusHealthy
}

// Components returns the registered component names, sorted.
func (c *Checker) Components() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.components))
	for name := range c.components {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Response is the body of the health endpoint.
type Response struct {
	Status     Status                 `json:"status"`
	Ready      bool                   `json:"ready"`
	Uptime     string                 `json:"uptime"`
	Components map[string]CheckResult `json:"components,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// Report runs every check and builds the endpoint response.
func (c *Checker) Report(ctx context.Context) Response {
	components := c.Check(ctx)

	c.mu.RLock()
	ready := c.ready
	uptime := time.Since(c.startTime).Truncate(time.Second)
	c.mu.RUnlock()

	return Response{
		Status:     c.OverallStatus(),
		Ready:      ready,
		Uptime:     uptime.String(),
		Components: components,
		Timestamp:  time.Now().UTC(),
	}
}

// Handler serves the health report. Unhealthy, unknown or not-ready
// states answer 503.
func (c *Checker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := c.Report(r.Context())

		w.Header().Set("Content-Type", "application/json")
		switch {
		case !resp.Ready:
			w.WriteHeader(http.StatusServiceUnavailable)
		case resp.Status == StatusHealthy, resp.Status == StatusDegraded:
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(resp)
	})
}

// PingCheck reports a dependency reachable through ping.
func PingCheck(what string, ping func(ctx context.Context) error) Check {
	return func(ctx context.Context) CheckResult {
		if err := ping(ctx); err != nil {
			return CheckResult{
				Status:  StatusUnhealthy,
				Message: what + " unreachable",
				Error:   err.Error(),
			}
		}
		return CheckResult{Status: StatusHealthy, Message: what + " ok"}
	}
}

// Heartbeat records the last successful iteration of a loop.
type Heartbeat struct {
	last atomic.Int64
}

// Beat marks now as the last success.
func (h *Heartbeat) Beat() {
	h.last.Store(time.Now().UnixNano())
}

// Last returns the time of the last success, or the zero time.
func (h *Heartbeat) Last() time.Time {
	n := h.last.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// HeartbeatCheck is degraded when the last beat is older than maxAge and
// unknown before the first beat.
func HeartbeatCheck(h *Heartbeat, maxAge time.Duration) Check {
	return func(ctx context.Context) CheckResult {
		last := h.Last()
		if last.IsZero() {
			return CheckResult{Status: StatusUnknown, Message: "no successful poll yet"}
		}
		age := time.Since(last)
		details := map[string]any{"last_success": last.UTC(), "age_seconds": int(age.Seconds())}
		if age > maxAge {
			return CheckResult{Status: StatusDegraded, Message: "poll loop stalled", Details: details}
		}
		return CheckResult{Status: StatusHealthy, Message: "polling", Details: details}
	}
}
