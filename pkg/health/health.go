// Package health runs dependency checks in parallel and serves the result
// as liveness and readiness probes.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status is the health of one component or of the whole service.
type Status string

const (
	StatusUp       Status = "up"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

var severity = map[Status]int{StatusUp: 0, StatusDegraded: 1, StatusDown: 2}

// Check probes one dependency.
type Check func(ctx context.Context) ComponentHealth

// ComponentHealth is one check's result.
type ComponentHealth struct {
	Status   Status `json:"status"`
	Message  string `json:"message,omitempty"`
	Optional bool   `json:"optional,omitempty"`
	Latency  string `json:"latency,omitempty"`
}

// Report aggregates every check. Status is the worst component status,
// except that an optional component being down only degrades it.
type Report struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  string                     `json:"timestamp"`
}

type registration struct {
	name     string
	check    Check
	optional bool
}

// Checker holds the registered checks.
type Checker struct {
	mu      sync.RWMutex
	checks  map[string]registration
	timeout time.Duration
	started time.Time
	logger  *slog.Logger
}

// NewChecker returns a Checker that gives each readiness run five seconds.
func NewChecker() *Checker {
	return &Checker{
		checks:  make(map[string]registration),
		timeout: 5 * time.Second,
		started: time.Now(),
		logger:  slog.Default().With("component", "health"),
	}
}

// Register adds a check the service cannot run without. A check with the
// same name is replaced.
func (c *Checker) Register(name string, check Check) {
	c.add(registration{name: name, check: check})
}

// RegisterOptional adds a check for a dependency the service can work
// without, such as the query cache.
func (c *Checker) RegisterOptional(name string, check Check) {
	c.add(registration{name: name, check: check, optional: true})
}

func (c *Checker) add(r registration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[r.name] = r
}

// Run executes every check concurrently. A check still running when ctx
// ends is reported down.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	regs := make([]registration, 0, len(c.checks))
	for _, r := range c.checks {
		regs = append(regs, r)
	}
	c.mu.RUnlock()
	sort.Slice(regs, func(i, j int) bool { return regs[i].name < regs[j].name })

	results := make([]ComponentHealth, len(regs))
	var g errgroup.Group
	for i, r := range regs {
		g.Go(func() error {
			results[i] = runOne(ctx, r)
			return nil
		})
	}
	_ = g.Wait()

	report := Report{
		Status:     StatusUp,
		Components: make(map[string]ComponentHealth, len(regs)),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	for i, r := range regs {
		res := results[i]
		report.Components[r.name] = res
		effective := res.Status
		if r.optional && effective == StatusDown {
			effective = StatusDegraded
		}
		if severity[effective] > severity[report.Status] {
			report.Status = effective
		}
		if res.Status != StatusUp {
			c.logger.Warn("component unhealthy",
				"name", r.name,
				"status", res.Status,
				"optional", r.optional,
				"message", res.Message,
			)
		}
	}
	return report
}

func runOne(ctx context.Context, r registration) ComponentHealth {
	start := time.Now()
	done := make(chan ComponentHealth, 1)
	go func() { done <- r.check(ctx) }()

	var res ComponentHealth
	select {
	case res = <-done:
	case <-ctx.Done():
		res = ComponentHealth{Status: StatusDown, Message: "check timed out"}
	}
	if _, known := severity[res.Status]; !known {
		res.Status = StatusDown
	}
	res.Optional = r.optional
	res.Latency = time.Since(start).Round(time.Millisecond).String()
	return res
}

// LiveHandler answers liveness probes without running any check.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "alive",
			"uptime": time.Since(c.started).Round(time.Second).String(),
		})
	}
}

// ReadyHandler answers readiness probes with the full Report: 503 when the
// service is down, 200 otherwise.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), c.timeout)
		defer cancel()
		report := c.Run(ctx)
		status := http.StatusOK
		if report.Status == StatusDown {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, report)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
