package rest

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	errs "github.com/frahmantamala/settlement/internal"
)

// checkTimeout bounds each dependency ping so one slow component cannot stall the report.
const checkTimeout = 2 * time.Second

type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthUnhealthy HealthStatus = "unhealthy"
)

type HealthResponse struct {
	Status     HealthStatus          `json:"status"`
	CheckedAt  time.Time             `json:"checked_at"`
	Components map[string]CheckEntry `json:"components"`
}

type CheckEntry struct {
	Status     HealthStatus   `json:"status"`
	Message    string         `json:"message,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	CheckedAt  time.Time      `json:"checked_at"`
	DurationMs int64          `json:"duration_ms"`
}

// Pinger is any dependency that can report whether it is reachable.
type Pinger func(ctx context.Context) error

type HealthHandler struct {
	checks map[string]Pinger
}

// NewHealthHandler always checks postgres; extra components (the dedupe cache)
// are added when configured.
func NewHealthHandler(db *sql.DB, extra map[string]Pinger) *HealthHandler {
	checks := map[string]Pinger{"postgres": db.PingContext}
	for name, p := range extra {
		checks[name] = p
	}
	return &HealthHandler{checks: checks}
}

// pingHandler says the process is up
func (h *HealthHandler) pingHandler(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{"status": "OK"}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// healthCheckHandler checks every dependency
func (h *HealthHandler) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:     HealthHealthy,
		Components: make(map[string]CheckEntry, len(h.checks)),
	}

	for name, ping := range h.checks {
		start := time.Now()
		ctx, cancel := errs.WithCallTimeout(r.Context(), checkTimeout)
		err := ping(ctx)
		cancel()

		entry := CheckEntry{
			Status:     HealthHealthy,
			CheckedAt:  time.Now(),
			DurationMs: time.Since(start).Milliseconds(),
		}
		if err != nil {
			entry.Status = HealthUnhealthy
			entry.Message = err.Error()
			resp.Status = HealthUnhealthy
		}
		resp.Components[name] = entry
	}
	resp.CheckedAt = time.Now()

	statusCode := http.StatusOK
	if resp.Status == HealthUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}
