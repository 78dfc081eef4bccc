// Package health reports whether a running chorder is taking events and
// whether the parts around the engine (journal, D-Bus) still work.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Status is the state of one component or of the whole process.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
	StatusUnknown   Status = "unknown"
)

// DefaultTimeout bounds a single check.
const DefaultTimeout = 2 * time.Second

// Check returns nil when the component works.
type Check func(ctx context.Context) error

// Result is the outcome of the latest run of a check.
type Result struct {
	Status   Status        `json:"status"`
	Error    string        `json:"error,omitempty"`
	Checked  time.Time     `json:"checked"`
	Duration time.Duration `json:"duration_ns"`
}

type component struct {
	critical bool
	check    Check
	result   Result
}

// Checker runs registered checks and aggregates them. A failing critical
// check makes the process unhealthy; any other failure degrades it.
type Checker struct {
	mu         sync.RWMutex
	components map[string]*component
	started    time.Time
	ready      bool
	timeout    time.Duration
	now        func() time.Time
}

// NewChecker returns a Checker with no checks that is not ready.
func NewChecker() *Checker {
	return &Checker{
		components: make(map[string]*component),
		started:    time.Now(),
		timeout:    DefaultTimeout,
		now:        time.Now,
	}
}

// Register adds or replaces the check called name.
func (c *Checker) Register(name string, critical bool, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.components[name] = &component{
		critical: critical,
		check:    check,
		result:   Result{Status: StatusUnknown},
	}
}

// SetReady marks whether events are being consumed.
func (c *Checker) SetReady(ready bool) {
	c.mu.Lock()
	c.ready = ready
	c.mu.Unlock()
}

// Ready reports the value of the last SetReady.
func (c *Checker) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// Run executes every check concurrently, each under its own timeout, and
// returns the results by name.
func (c *Checker) Run(ctx context.Context) map[string]Result {
	c.mu.RLock()
	names := make([]string, 0, len(c.components))
	checks := make([]Check, 0, len(c.components))
	for name, comp := range c.components {
		names = append(names, name)
		checks = append(checks, comp.check)
	}
	c.mu.RUnlock()

	results := make([]Result, len(names))
	var wg sync.WaitGroup
	for i := range names {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.run(ctx, checks[i])
		}(i)
	}
	wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]Result, len(names))
	for i, name := range names {
		if comp, ok := c.components[name]; ok {
			comp.result = results[i]
		}
		out[name] = results[i]
	}
	return out
}

func (c *Checker) run(ctx context.Context, check Check) Result {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := c.now()
	done := make(chan error, 1)
	go func() { done <- check(ctx) }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	r := Result{Status: StatusHealthy, Checked: start, Duration: c.now().Sub(start)}
	if err != nil {
		r.Status = StatusUnhealthy
		r.Error = err.Error()
	}
	return r
}

// Status aggregates the latest results. Critical checks that never ran
// leave the status unknown.
func (c *Checker) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := StatusHealthy
	for _, comp := range c.components {
		switch comp.result.Status {
		case StatusUnhealthy:
			if comp.critical {
				return StatusUnhealthy
			}
			status = StatusDegraded
		case StatusUnknown:
			if comp.critical && status == StatusHealthy {
				status = StatusUnknown
			}
		}
	}
	return status
}

// Report is the body of the health endpoints.
type Report struct {
	Status     Status            `json:"status"`
	Ready      bool              `json:"ready"`
	Uptime     string            `json:"uptime"`
	Components map[string]Result `json:"components,omitempty"`
}

// Report runs the checks and summarizes them.
func (c *Checker) Report(ctx context.Context) Report {
	results := c.Run(ctx)
	c.mu.RLock()
	ready, uptime := c.ready, c.now().Sub(c.started)
	c.mu.RUnlock()
	return Report{
		Status:     c.Status(),
		Ready:      ready,
		Uptime:     uptime.Round(time.Second).String(),
		Components: results,
	}
}

// Names lists the registered checks in order.
func (c *Checker) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.components))
	for name := range c.components {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LiveHandler answers 200 while the process can serve HTTP at all.
func (c *Checker) LiveHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "alive"})
	})
}

// ReadyHandler answers 200 when the engine is consuming events and no
// critical check fails, 503 otherwise. The body is a full Report.
func (c *Checker) ReadyHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rep := c.Report(r.Context())
		code := http.StatusOK
		if !rep.Ready || rep.Status == StatusUnhealthy || rep.Status == StatusUnknown {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, rep)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
