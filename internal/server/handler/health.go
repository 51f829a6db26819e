package handler

import (
	"context"
	"net/http"
	"time"
)

// HealthCheckFunc probes one dependency.
type HealthCheckFunc func(ctx context.Context) error

// HealthHandler serves the liveness endpoint with per-dependency status.
type HealthHandler struct {
	version string
	checks  map[string]HealthCheckFunc
}

// NewHealthHandler creates a HealthHandler. checks maps a dependency name
// (e.g. "postgres") to its probe; nil probes are allowed and skipped.
func NewHealthHandler(version string, checks map[string]HealthCheckFunc) *HealthHandler {
	return &HealthHandler{version: version, checks: checks}
}

type healthResponse struct {
	Status       string            `json:"status"`
	Version      string            `json:"version"`
	Time         time.Time         `json:"time"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

// HealthCheck reports overall and per-dependency health.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  "ok",
		Version: h.version,
		Time:    time.Now().UTC(),
	}

	status := http.StatusOK
	if len(h.checks) > 0 {
		resp.Dependencies = make(map[string]string, len(h.checks))
		for name, check := range h.checks {
			if check == nil {
				continue
			}
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			err := check(ctx)
			cancel()
			if err != nil {
				resp.Dependencies[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
			} else {
				resp.Dependencies[name] = "ok"
			}
		}
	}

	writeJSON(w, status, resp)
}
