package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/aduan-desa/portal-server/internal/models"
	"go.uber.org/zap"
)

const version = "1.0.0"

var startTime = time.Now()

// Pinger checks that a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthHandler provides health check endpoints
type HealthHandler struct {
	storageDriver string
	storage       Pinger
	upstream      Pinger
	logger        *zap.SugaredLogger
}

// NewHealthHandler creates a new health handler. storage may be nil for
// the in-memory driver.
func NewHealthHandler(storageDriver string, storage, upstream Pinger, logger *zap.SugaredLogger) *HealthHandler {
	return &HealthHandler{storageDriver: storageDriver, storage: storage, upstream: upstream, logger: logger}
}

// Check handles GET /api/health (liveness probe)
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, models.HealthStatus{
		Status:  "ok",
		Version: version,
		Uptime:  time.Since(startTime).String(),
	})
}

// Ready handles GET /api/health/ready (readiness probe)
// Storage must answer. An unreachable village API is reported but does not
// make the portal unready; the pages still load and show the API error.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := models.HealthStatus{
		Status:   "ready",
		Version:  version,
		Uptime:   time.Since(startTime).String(),
		Storage:  h.storageDriver + ": connected",
		Upstream: "reachable",
	}

	if h.upstream != nil {
		if err := h.upstream.Ping(ctx); err != nil {
			h.logger.Warnw("Village API unreachable", "error", err)
			status.Upstream = "unreachable"
		}
	}

	if h.storage != nil {
		if err := h.storage.Ping(ctx); err != nil {
			h.logger.Errorw("Storage unreachable", "driver", h.storageDriver, "error", err)
			status.Status = "not ready"
			status.Storage = h.storageDriver + ": disconnected"
			respondJSON(w, http.StatusServiceUnavailable, status)
			return
		}
	}

	respondJSON(w, http.StatusOK, status)
}
