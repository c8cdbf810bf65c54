package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/aduan-desa/portal-server/internal/backend"
	"github.com/aduan-desa/portal-server/internal/middleware"
	"github.com/aduan-desa/portal-server/internal/models"
	"github.com/aduan-desa/portal-server/internal/notifications"
	"github.com/aduan-desa/portal-server/internal/session"
	"github.com/aduan-desa/portal-server/internal/validation"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// NotificationHandler serves the resident's notification feed
type NotificationHandler struct {
	hub      *notifications.Hub
	users    *session.Provider
	devices  session.DeviceTokenSaver
	validate *validation.Validator
	logger   *zap.SugaredLogger
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(hub *notifications.Hub, users *session.Provider, devices session.DeviceTokenSaver,
	v *validation.Validator, logger *zap.SugaredLogger) *NotificationHandler {
	return &NotificationHandler{hub: hub, users: users, devices: devices, validate: v, logger: logger}
}

// List handles GET /api/notifications
// The first request, and any request with ?refresh=1 (sent when the window
// regains focus), refreshes the feed before answering.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	feed := h.feed(r)
	if !feed.Fetched() || r.URL.Query().Get("refresh") == "1" {
		if err := feed.Refresh(r.Context()); err != nil && !feed.Fetched() {
			h.failure(w, "list notifications", err)
			return
		}
	}
	respondJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		notifications.Snapshot
	}{Success: true, Snapshot: feed.Snapshot()})
}

// MarkRead handles POST /api/notifications/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	var in models.NotificationRef
	if !decodeValid(w, r, h.validate, h.logger, "mark read", &in) {
		return
	}
	res, err := h.feed(r).MarkRead(r.Context(), in.NotificationID.String())
	h.relay(w, "mark read", res, err)
}

// MarkAllRead handles POST /api/notifications/read-all
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	res, err := h.feed(r).MarkAllRead(r.Context())
	h.relay(w, "mark all read", res, err)
}

// Delete handles DELETE /api/notifications/{id}
func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if _, ok := idParam(w, r); !ok {
		return
	}
	res, err := h.feed(r).Delete(r.Context(), chi.URLParam(r, "id"))
	h.relay(w, "delete notification", res, err)
}

// DeleteRead handles DELETE /api/notifications/read
func (h *NotificationHandler) DeleteRead(w http.ResponseWriter, r *http.Request) {
	res, err := h.feed(r).DeleteRead(r.Context())
	h.relay(w, "delete read notifications", res, err)
}

// SaveDeviceToken handles POST /api/notifications/device-token
// Used when the browser obtains a push token after login.
func (h *NotificationHandler) SaveDeviceToken(w http.ResponseWriter, r *http.Request) {
	var in models.DeviceTokenRequest
	if !decodeValid(w, r, h.validate, h.logger, "save device token", &in) {
		return
	}
	m := middleware.SessionFrom(r.Context())
	if err := storeDeviceToken(r.Context(), m.Browser(), in.FCMToken); err != nil {
		h.logger.Warnw("Failed to store device token", "error", err)
	}
	if err := h.devices.SaveDeviceToken(r.Context(), m.Token(), in.FCMToken); err != nil {
		respondFailure(w, h.logger, "save device token", err)
		return
	}
	respondOK(w, "Token notifikasi tersimpan", nil)
}

// feed returns the browser's feed. The feed reads the token through the
// mounted session on every poll, so it stops once the resident logs out or
// the idle session is unmounted.
func (h *NotificationHandler) feed(r *http.Request) *notifications.Feed {
	m := middleware.SessionFrom(r.Context())
	clientID := middleware.ClientIDFrom(r.Context())
	return h.hub.Open(m.Browser().ClientHash, func(ctx context.Context) (string, error) {
		m, ok := h.users.Peek(clientID)
		if !ok {
			return "", nil
		}
		return m.Token(), nil
	})
}

func (h *NotificationHandler) relay(w http.ResponseWriter, op string, res *backend.Result, err error) {
	if err != nil {
		h.failure(w, op, err)
		return
	}
	respondResult(w, res)
}

func (h *NotificationHandler) failure(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, notifications.ErrNoSession) {
		respondError(w, http.StatusUnauthorized, msgNotLoggedIn)
		return
	}
	respondFailure(w, h.logger, op, err)
}
