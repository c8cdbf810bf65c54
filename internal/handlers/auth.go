package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/aduan-desa/portal-server/internal/backend"
	"github.com/aduan-desa/portal-server/internal/draft"
	"github.com/aduan-desa/portal-server/internal/middleware"
	"github.com/aduan-desa/portal-server/internal/models"
	"github.com/aduan-desa/portal-server/internal/notifications"
	"github.com/aduan-desa/portal-server/internal/session"
	"github.com/aduan-desa/portal-server/internal/storage"
	"github.com/aduan-desa/portal-server/internal/validation"
	"go.uber.org/zap"
)

// AuthHandler handles resident login, registration, logout and profile
// endpoints.
type AuthHandler struct {
	users    *session.Provider
	api      *backend.Client
	validate *validation.Validator
	hub      *notifications.Hub
	drafts   *draft.Registry
	logger   *zap.SugaredLogger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(users *session.Provider, api *backend.Client, v *validation.Validator,
	hub *notifications.Hub, drafts *draft.Registry, logger *zap.SugaredLogger) *AuthHandler {
	return &AuthHandler{users: users, api: api, validate: v, hub: hub, drafts: drafts, logger: logger}
}

// RequestOTP handles POST /api/auth/login/request-otp
func (h *AuthHandler) RequestOTP(w http.ResponseWriter, r *http.Request) {
	var req models.LoginOTPRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, msgBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondFailure(w, h.logger, "request otp", err)
		return
	}

	res, err := h.api.RequestLoginOTP(r.Context(), req)
	if err != nil {
		respondFailure(w, h.logger, "request otp", err)
		return
	}
	respondResult(w, res)
}

// VerifyOTP handles POST /api/auth/login/verify-otp
// A successful verification logs the browser in and, when asked to,
// remembers the username and phone for the next login.
func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req models.LoginVerifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, msgBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondFailure(w, h.logger, "verify otp", err)
		return
	}

	res, err := h.api.VerifyLoginOTP(r.Context(), req.Username, req.Phone, req.OTP)
	if err != nil {
		respondFailure(w, h.logger, "verify otp", err)
		return
	}
	if !res.Success {
		respondResult(w, res.Result)
		return
	}

	ctx := r.Context()
	m := h.users.Mount(ctx, middleware.ClientIDFrom(ctx))
	browser := m.Browser()

	if err := storeDeviceToken(ctx, browser, req.FCMToken); err != nil {
		h.logger.Warnw("Failed to store device token", "error", err)
	}
	if err := m.Login(ctx, res.Profile, res.Token); err != nil {
		respondFailure(w, h.logger, "login", err)
		return
	}
	if req.Remember {
		err = setSlots(ctx, browser.Local, map[storage.Slot]string{
			storage.SlotRememberedUsername: req.Username,
			storage.SlotRememberedPhone:    req.Phone,
		})
	} else {
		err = browser.Local.Remove(ctx, storage.SlotRememberedUsername, storage.SlotRememberedPhone)
	}
	if err != nil {
		h.logger.Warnw("Failed to update remembered login", "error", err)
	}

	h.logger.Infow("Resident logged in", "client", browser.ClientHash)
	respondOK(w, res.Message, map[string]any{"user": res.Profile})
}

// Register handles POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, msgBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondFailure(w, h.logger, "register", err)
		return
	}

	res, err := h.api.Register(r.Context(), req)
	if err != nil {
		respondFailure(w, h.logger, "register", err)
		return
	}
	respondResult(w, res)
}

// Logout handles POST /api/auth/logout
// Resident logout wipes everything the browser stored, admin slots included.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	m := h.users.Mount(ctx, middleware.ClientIDFrom(ctx))

	if err := m.Logout(ctx); err != nil {
		respondFailure(w, h.logger, "logout", err)
		return
	}
	h.hub.Close(m.Browser().ClientHash)
	h.drafts.Close(m.Browser())

	respondOK(w, "Berhasil logout", nil)
}

// Session handles GET /api/auth/session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	m := h.users.Mount(r.Context(), middleware.ClientIDFrom(r.Context()))
	respondOK(w, "", sessionStatus(m))
}

// Remembered handles GET /api/auth/remembered
func (h *AuthHandler) Remembered(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	local := h.users.Mount(ctx, middleware.ClientIDFrom(ctx)).Browser().Local

	username, _, err := local.Get(ctx, storage.SlotRememberedUsername)
	if err != nil {
		respondFailure(w, h.logger, "remembered", err)
		return
	}
	phone, _, err := local.Get(ctx, storage.SlotRememberedPhone)
	if err != nil {
		respondFailure(w, h.logger, "remembered", err)
		return
	}
	respondOK(w, "", models.RememberedLogin{Username: username, Phone: phone})
}

// Profile handles GET /api/profile
// The fetched profile replaces the one stored with the session.
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	m := middleware.SessionFrom(ctx)

	res, err := h.api.Profile(ctx, m.Token())
	if err != nil {
		respondFailure(w, h.logger, "profile", err)
		return
	}
	if res.Success {
		h.replaceProfile(ctx, m, res)
	}
	respondResult(w, res)
}

// UpdateProfile handles PUT /api/profile
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req models.ProfileUpdate
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, msgBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondFailure(w, h.logger, "update profile", err)
		return
	}

	ctx := r.Context()
	m := middleware.SessionFrom(ctx)
	res, err := h.api.UpdateProfile(ctx, m.Token(), req)
	if err != nil {
		respondFailure(w, h.logger, "update profile", err)
		return
	}
	if !res.Success {
		respondResult(w, res)
		return
	}

	fresh, err := h.api.Profile(ctx, m.Token())
	if err != nil {
		h.logger.Warnw("Profile updated but could not be re-fetched", "error", err)
	} else if fresh.Success {
		h.replaceProfile(ctx, m, fresh)
	}
	respondResult(w, res)
}

func (h *AuthHandler) replaceProfile(ctx context.Context, m *session.Manager, res *backend.Result) {
	profile, ok := profileFrom(res)
	if !ok {
		return
	}
	if err := m.ReplaceProfile(ctx, profile); err != nil {
		h.logger.Warnw("Failed to store refreshed profile", "error", err)
	}
}

// AdminAuthHandler handles administrator login, logout and account endpoints.
type AdminAuthHandler struct {
	admins   *session.Provider
	api      *backend.Client
	validate *validation.Validator
	logger   *zap.SugaredLogger
}

// NewAdminAuthHandler creates a new admin auth handler
func NewAdminAuthHandler(admins *session.Provider, api *backend.Client, v *validation.Validator, logger *zap.SugaredLogger) *AdminAuthHandler {
	return &AdminAuthHandler{admins: admins, api: api, validate: v, logger: logger}
}

// Login handles POST /api/admin/login
// Remembered admin passwords are stored base64 encoded. That only keeps
// them from being read at a glance; it is not encryption.
func (h *AdminAuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.AdminLoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, msgBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondFailure(w, h.logger, "admin login", err)
		return
	}

	res, err := h.api.AdminLogin(r.Context(), req.Email, req.Password)
	if err != nil {
		respondFailure(w, h.logger, "admin login", err)
		return
	}
	if !res.Success {
		respondResult(w, res.Result)
		return
	}

	ctx := r.Context()
	m := h.admins.Mount(ctx, middleware.ClientIDFrom(ctx))
	browser := m.Browser()

	if err := storeDeviceToken(ctx, browser, req.FCMToken); err != nil {
		h.logger.Warnw("Failed to store device token", "error", err)
	}
	if err := m.Login(ctx, res.Profile, res.Token); err != nil {
		respondFailure(w, h.logger, "admin login", err)
		return
	}
	if req.Remember {
		err = setSlots(ctx, browser.Local, map[storage.Slot]string{
			storage.SlotRememberedAdminEmail:    req.Email,
			storage.SlotRememberedAdminPassword: base64.StdEncoding.EncodeToString([]byte(req.Password)),
		})
	} else {
		err = browser.Local.Remove(ctx, storage.SlotRememberedAdminEmail, storage.SlotRememberedAdminPassword)
	}
	if err != nil {
		h.logger.Warnw("Failed to update remembered admin login", "error", err)
	}

	h.logger.Infow("Administrator logged in", "client", browser.ClientHash)
	respondOK(w, res.Message, map[string]any{"admin": res.Profile})
}

// Logout handles POST /api/admin/logout
func (h *AdminAuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	m := h.admins.Mount(ctx, middleware.ClientIDFrom(ctx))
	if err := m.Logout(ctx); err != nil {
		respondFailure(w, h.logger, "admin logout", err)
		return
	}
	respondOK(w, "Berhasil logout", nil)
}

// Session handles GET /api/admin/session
func (h *AdminAuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	m := h.admins.Mount(r.Context(), middleware.ClientIDFrom(r.Context()))
	respondOK(w, "", sessionStatus(m))
}

// Remembered handles GET /api/admin/remembered
func (h *AdminAuthHandler) Remembered(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	local := h.admins.Mount(ctx, middleware.ClientIDFrom(ctx)).Browser().Local

	email, _, err := local.Get(ctx, storage.SlotRememberedAdminEmail)
	if err != nil {
		respondFailure(w, h.logger, "admin remembered", err)
		return
	}
	encoded, _, err := local.Get(ctx, storage.SlotRememberedAdminPassword)
	if err != nil {
		respondFailure(w, h.logger, "admin remembered", err)
		return
	}

	out := models.RememberedLogin{Email: email}
	if encoded != "" {
		if raw, err := base64.StdEncoding.DecodeString(encoded); err == nil {
			out.Password = string(raw)
		} else {
			h.logger.Warnw("Remembered admin password is not base64, ignoring", "error", err)
		}
	}
	respondOK(w, "", out)
}

// ChangePassword handles POST /api/admin/change-password
func (h *AdminAuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req models.PasswordChange
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, msgBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondFailure(w, h.logger, "change password", err)
		return
	}

	bearer, ok := adminBearer(w, r, h.admins)
	if !ok {
		return
	}
	res, err := h.api.ChangeAdminPassword(r.Context(), bearer, req)
	if err != nil {
		respondFailure(w, h.logger, "change password", err)
		return
	}
	respondResult(w, res)
}

// adminBearer returns the stored admin token. RequireAdminAPI has already
// checked the slot; the session can still be loading for a concurrent
// request, or come up empty when the stored admin profile was unreadable.
func adminBearer(w http.ResponseWriter, r *http.Request, admins *session.Provider) (string, bool) {
	return sessionBearer(w, admins.Mount(r.Context(), middleware.ClientIDFrom(r.Context())))
}

func sessionBearer(w http.ResponseWriter, m *session.Manager) (string, bool) {
	if m.Loading() {
		w.Header().Set("Retry-After", "1")
		respondError(w, http.StatusServiceUnavailable, "Sesi sedang dimuat")
		return "", false
	}
	if tok := m.Token(); tok != "" {
		return tok, true
	}
	respondError(w, http.StatusUnauthorized, "Silakan login sebagai admin")
	return "", false
}

func sessionStatus(m *session.Manager) models.SessionStatus {
	return models.SessionStatus{
		Authenticated: m.IsAuthenticated(),
		Loading:       m.Loading(),
		Profile:       m.Profile(),
		Notifications: string(m.NotificationStatus()),
	}
}

func storeDeviceToken(ctx context.Context, browser storage.Browser, deviceToken string) error {
	if deviceToken == "" {
		return nil
	}
	return browser.Local.Set(ctx, storage.SlotFCMToken, deviceToken)
}

func setSlots(ctx context.Context, area storage.Area, values map[storage.Slot]string) error {
	for slot, v := range values {
		if err := area.Set(ctx, slot, v); err != nil {
			return err
		}
	}
	return nil
}

// profileFrom picks the profile object out of a profile answer, which
// carries it under "user" or "data".
func profileFrom(res *backend.Result) (json.RawMessage, bool) {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(res.Body, &body); err != nil {
		return nil, false
	}
	for _, key := range []string{"user", "data"} {
		if raw, ok := body[key]; ok && len(raw) > 0 && raw[0] == '{' {
			return raw, true
		}
	}
	return nil, false
}
