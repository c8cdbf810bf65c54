package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/aduan-desa/portal-server/internal/models"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// EventQuerier reads the session audit trail.
type EventQuerier interface {
	FetchByClient(ctx context.Context, clientHash string, limit int) ([]models.SessionEventRow, error)
	FetchRecent(ctx context.Context, eventType string, limit int) ([]models.SessionEventRow, error)
}

// ActivityHandler exposes the session audit trail to administrators
type ActivityHandler struct {
	events EventQuerier
	logger *zap.SugaredLogger
}

// NewActivityHandler creates a new activity handler. events may be nil
// when no database is configured.
func NewActivityHandler(events EventQuerier, logger *zap.SugaredLogger) *ActivityHandler {
	return &ActivityHandler{events: events, logger: logger}
}

// ByClient handles GET /api/admin/session-events/client/{clientHash}
func (h *ActivityHandler) ByClient(w http.ResponseWriter, r *http.Request) {
	if !h.enabled(w) {
		return
	}
	clientHash := chi.URLParam(r, "clientHash")
	if clientHash == "" {
		respondError(w, http.StatusBadRequest, "Client hash wajib diisi")
		return
	}

	events, err := h.events.FetchByClient(r.Context(), clientHash, limitParam(r, 50))
	if err != nil {
		h.logger.Errorw("Failed to fetch session events", "error", err)
		respondError(w, http.StatusInternalServerError, msgInternal)
		return
	}
	respondOK(w, "", events)
}

// Recent handles GET /api/admin/session-events?type=identity_mismatch
func (h *ActivityHandler) Recent(w http.ResponseWriter, r *http.Request) {
	if !h.enabled(w) {
		return
	}
	events, err := h.events.FetchRecent(r.Context(), r.URL.Query().Get("type"), limitParam(r, 100))
	if err != nil {
		h.logger.Errorw("Failed to fetch recent session events", "error", err)
		respondError(w, http.StatusInternalServerError, msgInternal)
		return
	}
	respondOK(w, "", events)
}

func (h *ActivityHandler) enabled(w http.ResponseWriter) bool {
	if h.events == nil {
		respondError(w, http.StatusNotFound, "Audit sesi tidak aktif")
		return false
	}
	return true
}

func limitParam(r *http.Request, fallback int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 || n > 500 {
		return fallback
	}
	return n
}
