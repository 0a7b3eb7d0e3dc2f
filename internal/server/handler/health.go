package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"
)

// healthTimeout bounds each dependency probe.
const healthTimeout = 2 * time.Second

// Probe checks one optional dependency.
type Probe func(ctx context.Context) error

// HealthHandler reports liveness plus the state of optional dependencies.
type HealthHandler struct {
	probes    map[string]Probe
	platforms []string
	startedAt time.Time
	logger    *slog.Logger
}

// NewHealthHandler creates a HealthHandler. platforms lists the configured
// adapters; probes may be nil.
func NewHealthHandler(platforms []string, probes map[string]Probe, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		probes:    probes,
		platforms: platforms,
		startedAt: time.Now(),
		logger:    logger.With(slog.String("handler", "health")),
	}
}

// HealthCheck responds 200 with status "ok" or "degraded". A failing
// dependency never makes the endpoint itself fail.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(h.probes))
	for name := range h.probes {
		names = append(names, name)
	}
	sort.Strings(names)

	status := "ok"
	deps := make(map[string]string, len(names))
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		err := h.probes[name](ctx)
		cancel()
		if err != nil {
			status = "degraded"
			deps[name] = err.Error()
			h.logger.WarnContext(r.Context(), "dependency unhealthy",
				slog.String("dependency", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		deps[name] = "ok"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":         status,
		"platforms":      h.platforms,
		"dependencies":   deps,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}
