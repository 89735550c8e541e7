package handlers

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	healthStatusOK       = "ok"
	healthStatusDegraded = "degraded"

	defaultReadinessTimeout = 3 * time.Second
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// ReadinessCheck probes one backing dependency.
type ReadinessCheck func(ctx context.Context) error

// HealthHandlers serves liveness and dependency-backed readiness probes.
type HealthHandlers struct {
	build   BuildInfo
	clock   func() time.Time
	timeout time.Duration
	checks  map[string]ReadinessCheck
}

// HealthOption customises HealthHandlers.
type HealthOption func(*HealthHandlers)

// WithHealthBuildInfo sets the build metadata reported by both probes.
func WithHealthBuildInfo(info BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = info
	}
}

// WithHealthClock overrides the clock used for uptime and timestamps.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// WithHealthTimeout bounds each readiness check.
func WithHealthTimeout(timeout time.Duration) HealthOption {
	return func(h *HealthHandlers) {
		if timeout > 0 {
			h.timeout = timeout
		}
	}
}

// WithReadinessCheck registers a named dependency probe for /readyz.
func WithReadinessCheck(name string, check ReadinessCheck) HealthOption {
	return func(h *HealthHandlers) {
		if name == "" || check == nil {
			return
		}
		h.checks[name] = check
	}
}

// NewHealthHandlers constructs the probe handlers.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{
		clock:   time.Now,
		timeout: defaultReadinessTimeout,
		checks:  make(map[string]ReadinessCheck),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.build.StartedAt.IsZero() {
		h.build.StartedAt = h.clock()
	}
	return h
}

type healthResponse struct {
	Status      string                         `json:"status"`
	Version     string                         `json:"version,omitempty"`
	CommitSHA   string                         `json:"commitSha,omitempty"`
	Environment string                         `json:"environment,omitempty"`
	Uptime      string                         `json:"uptime"`
	Timestamp   string                         `json:"timestamp"`
	Checks      map[string]healthCheckResponse `json:"checks,omitempty"`
	Details     []string                       `json:"details,omitempty"`
}

type healthCheckResponse struct {
	Status    string `json:"status"`
	LatencyMS int64  `json:"latencyMs"`
	Error     string `json:"error,omitempty"`
}

// Healthz reports process liveness without touching dependencies.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, h.baseResponse(healthStatusOK))
}

// Readyz runs every registered check concurrently and fails with 503 when any of them errors.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		mu      sync.Mutex
		results = make(map[string]healthCheckResponse, len(h.checks))
	)
	group, groupCtx := errgroup.WithContext(ctx)
	for name, check := range h.checks {
		name, check := name, check
		group.Go(func() error {
			checkCtx, cancel := context.WithTimeout(groupCtx, h.timeout)
			defer cancel()

			start := time.Now()
			err := check(checkCtx)
			result := healthCheckResponse{Status: healthStatusOK, LatencyMS: time.Since(start).Milliseconds()}
			if err != nil {
				result.Status = healthStatusDegraded
				result.Error = err.Error()
			}
			mu.Lock()
			results[name] = result
			mu.Unlock()
			return nil
		})
	}
	_ = group.Wait()

	resp := h.baseResponse(healthStatusOK)
	resp.Checks = results
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if result := results[name]; result.Status != healthStatusOK {
			resp.Status = healthStatusDegraded
			resp.Details = append(resp.Details, name+": "+result.Error)
		}
	}

	status := http.StatusOK
	if resp.Status != healthStatusOK {
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, resp)
}

func (h *HealthHandlers) baseResponse(status string) healthResponse {
	now := h.clock().UTC()
	uptime := now.Sub(h.build.StartedAt)
	if uptime < 0 {
		uptime = 0
	}
	return healthResponse{
		Status:      status,
		Version:     h.build.Version,
		CommitSHA:   h.build.CommitSHA,
		Environment: h.build.Environment,
		Uptime:      uptime.Truncate(time.Second).String(),
		Timestamp:   now.Format(time.RFC3339),
	}
}
