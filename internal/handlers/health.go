package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/sellerdesk/api/internal/platform/httpx"
)

// ReadinessCheck probes one dependency; a non-nil error marks it unready.
type ReadinessCheck func(ctx context.Context) error

// HealthHandlers serves liveness and readiness endpoints.
type HealthHandlers struct {
	version     string
	environment string
	startedAt   time.Time
	clock       func() time.Time
	checks      map[string]ReadinessCheck
}

// HealthOption customises the health handlers.
type HealthOption func(*HealthHandlers)

// WithHealthVersion sets the build version reported by /healthz.
func WithHealthVersion(version string) HealthOption {
	return func(h *HealthHandlers) {
		h.version = version
	}
}

// WithHealthEnvironment sets the deployment environment reported by /healthz.
func WithHealthEnvironment(environment string) HealthOption {
	return func(h *HealthHandlers) {
		h.environment = environment
	}
}

// WithHealthClock overrides the time source, mainly for tests.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
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

// NewHealthHandlers constructs health handlers with the supplied options.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{
		clock:  time.Now,
		checks: map[string]ReadinessCheck{},
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.startedAt.IsZero() {
		h.startedAt = h.clock().UTC()
	}
	return h
}

// Healthz reports process liveness.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock().UTC()
	payload := map[string]any{
		"status":    "ok",
		"uptime":    now.Sub(h.startedAt).String(),
		"timestamp": now.Format(time.RFC3339),
	}
	if h.version != "" {
		payload["version"] = h.version
	}
	if h.environment != "" {
		payload["environment"] = h.environment
	}
	httpx.WriteJSON(w, http.StatusOK, payload)
}

// Readyz runs the registered dependency probes and reports aggregate readiness.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	checks := make(map[string]string, len(h.checks))
	ready := true
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			ready = false
			continue
		}
		checks[name] = "ok"
	}

	status := http.StatusOK
	state := "ok"
	if !ready {
		status = http.StatusServiceUnavailable
		state = "unavailable"
	}
	httpx.WriteJSON(w, status, map[string]any{
		"status": state,
		"checks": checks,
	})
}
