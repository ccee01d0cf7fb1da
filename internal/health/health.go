package health

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/dmmcquay/chess-analysis-mcp/internal/logging"
)

// Status represents the health status of a component.
type Status string

const (
	// StatusHealthy indicates the component is healthy.
	StatusHealthy Status = "healthy"
	// StatusUnhealthy indicates the component is unhealthy.
	StatusUnhealthy Status = "unhealthy"
	// StatusDegraded indicates the component is working but degraded.
	StatusDegraded Status = "degraded"
)

// ErrDegraded marks a check failure that leaves the service usable. A check
// returning an error wrapping it reports StatusDegraded instead of
// StatusUnhealthy.
var ErrDegraded = errors.New("degraded")

// Check represents a health check function.
type Check func(ctx context.Context) error

// Component represents a system component with health status.
type Component struct {
	Name        string                 `json:"name"`
	Status      Status                 `json:"status"`
	Message     string                 `json:"message,omitempty"`
	LastChecked time.Time              `json:"last_checked"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// Response represents the health check response.
type Response struct {
	Status     Status      `json:"status"`
	Timestamp  time.Time   `json:"timestamp"`
	Components []Component `json:"components,omitempty"`
	Version    string      `json:"version,omitempty"`
	GitCommit  string      `json:"git_commit,omitempty"`
}

// Checker manages health checks for the application.
type Checker struct {
	logger       logging.ContextLogger
	checks       map[string]Check
	details      map[string]func() map[string]interface{}
	mu           sync.RWMutex
	version      string
	gitCommit    string
	checkTimeout time.Duration
}

// NewChecker creates a new health checker.
func NewChecker(logger logging.ContextLogger, version, gitCommit string) *Checker {
	return &Checker{
		logger:       logger,
		checks:       make(map[string]Check),
		details:      make(map[string]func() map[string]interface{}),
		version:      version,
		gitCommit:    gitCommit,
		checkTimeout: 5 * time.Second,
	}
}

// RegisterCheck registers a health check for a component.
func (c *Checker) RegisterCheck(name string, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// RegisterDetails attaches metadata to the named component's report.
func (c *Checker) RegisterDetails(name string, fn func() map[string]interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.details[name] = fn
}

// CheckHealth runs all registered checks in parallel. The overall status is
// the worst component status.
func (c *Checker) CheckHealth(ctx context.Context) Response {
	c.mu.RLock()
	defer c.mu.RUnlock()

	response := Response{
		Status:     StatusHealthy,
		Timestamp:  time.Now().UTC(),
		Version:    c.version,
		GitCommit:  c.gitCommit,
		Components: make([]Component, 0, len(c.checks)),
	}

	if len(c.checks) == 0 {
		return response
	}

	results := make(chan Component, len(c.checks))
	var wg sync.WaitGroup

	for name, check := range c.checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- c.run(ctx, name, check)
		}()
	}

	wg.Wait()
	close(results)

	for component := range results {
		response.Components = append(response.Components, component)
		switch component.Status {
		case StatusUnhealthy:
			response.Status = StatusUnhealthy
		case StatusDegraded:
			if response.Status == StatusHealthy {
				response.Status = StatusDegraded
			}
		}
	}
	slices.SortFunc(response.Components, func(a, b Component) int {
		return cmp.Compare(a.Name, b.Name)
	})

	return response
}

func (c *Checker) run(ctx context.Context, name string, check Check) Component {
	component := Component{
		Name:        name,
		Status:      StatusHealthy,
		LastChecked: time.Now().UTC(),
	}
	if fn := c.details[name]; fn != nil {
		component.Metadata = fn()
	}

	checkCtx, cancel := context.WithTimeout(ctx, c.checkTimeout)
	defer cancel()

	err := check(checkCtx)
	switch {
	case err == nil:
	case errors.Is(err, ErrDegraded):
		component.Status = StatusDegraded
		component.Message = err.Error()
		c.logger.WithField("component", name).Warn("Health check degraded", "error", err)
	default:
		component.Status = StatusUnhealthy
		component.Message = err.Error()
		c.logger.WithField("component", name).Error("Health check failed", "error", err)
	}
	return component
}

// LivenessHandler returns an HTTP handler for liveness checks.
func (c *Checker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Simple liveness check - if we can handle requests, we're alive
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		response := Response{
			Status:    StatusHealthy,
			Timestamp: time.Now().UTC(),
			Version:   c.version,
			GitCommit: c.gitCommit,
		}

		if err := json.NewEncoder(w).Encode(response); err != nil {
			c.logger.Error("Failed to encode liveness response", "error", err)
		}
	}
}

// ReadinessHandler returns an HTTP handler for readiness checks. A degraded
// service is still ready.
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := logging.ContextWithCorrelationID(r.Context(), logging.GenerateCorrelationID())
		logger := c.logger.WithContext(ctx)

		logger.Debug("Performing readiness check")

		response := c.CheckHealth(ctx)

		w.Header().Set("Content-Type", "application/json")

		statusCode := http.StatusOK
		if response.Status == StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}

		w.WriteHeader(statusCode)

		if err := json.NewEncoder(w).Encode(response); err != nil {
			logger.Error("Failed to encode readiness response", "error", err)
		}
	}
}
