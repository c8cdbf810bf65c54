package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aduan-desa/portal-server/internal/backend"
	"github.com/aduan-desa/portal-server/internal/complaint"
	"github.com/aduan-desa/portal-server/internal/draft"
	"github.com/aduan-desa/portal-server/internal/middleware"
	"github.com/aduan-desa/portal-server/internal/notifications"
	"github.com/aduan-desa/portal-server/internal/session"
	"github.com/aduan-desa/portal-server/internal/storage"
	"github.com/aduan-desa/portal-server/internal/validation"
)

const testClient = "6f1d2c3b-4a59-4e8f-9a0b-1c2d3e4f5a6b"

// fakeAPI is a stand-in for the village PHP API.
type fakeAPI struct {
	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	calls    map[string]int
}

func (f *fakeAPI) on(path string, h http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[path] = h
}

func (f *fakeAPI) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/")
	f.mu.Lock()
	h, ok := f.handlers[path]
	f.calls[path]++
	f.mu.Unlock()
	if !ok {
		writeEnvelope(w, http.StatusNotFound, map[string]any{"success": false, "message": "not found"})
		return
	}
	h(w, r)
}

func writeEnvelope(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type testEnv struct {
	api    *fakeAPI
	store  *storage.MemoryBackend
	users  *session.Provider
	admins *session.Provider
	router http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	fake := &fakeAPI{handlers: map[string]http.HandlerFunc{}, calls: map[string]int{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return newTestEnvWithURL(t, fake, srv.URL+"/api/")
}

func newTestEnvWithURL(t *testing.T, fake *fakeAPI, baseURL string) *testEnv {
	t.Helper()
	logger := zap.NewNop().Sugar()

	api, err := backend.New(backend.Config{BaseURL: baseURL, Timeout: 2 * time.Second}, logger)
	require.NoError(t, err)

	store := storage.NewMemoryBackend()
	users := session.NewProvider(session.UserPolicy, store, session.Options{Logger: logger})
	admins := session.NewProvider(session.AdminPolicy, store, session.Options{Logger: logger})
	validate := validation.New()
	hub := notifications.NewHub(api, time.Hour, logger)
	t.Cleanup(hub.CloseAll)
	drafts := draft.NewRegistry(logger)

	auth := NewAuthHandler(users, api, validate, hub, drafts, logger)
	adminAuth := NewAdminAuthHandler(admins, api, validate, logger)
	admin := NewAdminHandler(admins, api, validate, logger)
	complaints := NewComplaintHandler(api, complaint.NewFlow(api, validate, logger), drafts, validate, logger)
	notes := NewNotificationHandler(hub, users, api.UserDeviceSaver(), validate, logger)
	health := NewHealthHandler("memory", nil, api, logger)

	r := chi.NewRouter()
	r.Use(middleware.ClientID("aduan_client", false))
	r.Get("/api/health", health.Check)
	r.Get("/api/health/ready", health.Ready)
	r.Post("/api/auth/login/verify-otp", auth.VerifyOTP)
	r.Post("/api/auth/login/request-otp", auth.RequestOTP)
	r.Post("/api/auth/logout", auth.Logout)
	r.Get("/api/auth/session", auth.Session)
	r.Get("/api/auth/remembered", auth.Remembered)
	r.Post("/api/admin/login", adminAuth.Login)
	r.Post("/api/admin/logout", adminAuth.Logout)
	r.Get("/api/admin/remembered", adminAuth.Remembered)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireUserAPI(users))
		r.Get("/api/profile", auth.Profile)
		r.Post("/api/complaints", complaints.Create)
		r.Post("/api/complaints/prepare", complaints.Prepare)
		r.Get("/api/complaints/draft", complaints.LoadDraft)
		r.Put("/api/complaints/draft", complaints.SaveDraft)
		r.Get("/api/complaints/{id}", complaints.Detail)
		r.Get("/api/notifications", notes.List)
		r.Post("/api/notifications/read", notes.MarkRead)
	})
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAdminAPI(store))
		r.Get("/api/admin/dashboard", admin.Dashboard)
		r.Post("/api/admin/complaints/status", admin.UpdateStatus)
	})

	return &testEnv{api: fake, store: store, users: users, admins: admins, router: r}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.AddCookie(&http.Cookie{Name: "aduan_client", Value: testClient})
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) browser() storage.Browser {
	return storage.ForClient(e.store, testClient)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func residentToken(t *testing.T, id int) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"data": map[string]any{"id": id}})
	s, err := tok.SignedString([]byte("secret"))
	require.NoError(t, err)
	return s
}

func (e *testEnv) loginResident(t *testing.T, remember bool) {
	t.Helper()
	tok := residentToken(t, 12)
	e.api.on("auth/login-verify-otp", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "Login berhasil",
			"token":   tok,
			"user":    map[string]any{"id": 12, "username": "budi"},
		})
	})
	rec := e.do(t, http.MethodPost, "/api/auth/login/verify-otp", map[string]any{
		"username": "budi", "phone": "081234567890", "otp": "123456", "remember": remember,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestVerifyOTPLogsInAndRemembers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.loginResident(t, true)

	rec := env.do(t, http.MethodGet, "/api/auth/session", nil)
	data := decodeBody(t, rec)["data"].(map[string]any)
	assert.Equal(t, true, data["authenticated"])
	assert.Equal(t, false, data["loading"])

	tok, ok, err := env.browser().Local.Get(ctx, storage.SlotToken)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotEmpty(t, tok)

	rec = env.do(t, http.MethodGet, "/api/auth/remembered", nil)
	data = decodeBody(t, rec)["data"].(map[string]any)
	assert.Equal(t, "budi", data["username"])
	assert.Equal(t, "081234567890", data["phone"])
}

func TestVerifyOTPWithoutRememberForgetsCredentials(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.browser().Local.Set(ctx, storage.SlotRememberedUsername, "lama"))

	env.loginResident(t, false)

	ok, err := env.browser().Local.Has(ctx, storage.SlotRememberedUsername)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyOTPValidationNeverCallsAPI(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/auth/login/verify-otp", map[string]any{
		"username": "budi", "phone": "12345", "otp": "123456",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["errors"], "phone")
	assert.Equal(t, 0, env.api.count("auth/login-verify-otp"))
}

func TestBackendFailureIsRelayed(t *testing.T) {
	env := newTestEnv(t)
	env.api.on("auth/login-verify-otp", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "OTP salah"})
	})

	rec := env.do(t, http.MethodPost, "/api/auth/login/verify-otp", map[string]any{
		"username": "budi", "phone": "081234567890", "otp": "000000",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "OTP salah", decodeBody(t, rec)["message"])

	rec = env.do(t, http.MethodGet, "/api/auth/session", nil)
	data := decodeBody(t, rec)["data"].(map[string]any)
	assert.Equal(t, false, data["authenticated"])
}

func TestUnreachableBackendIs502(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL + "/api/"
	srv.Close()

	env := newTestEnvWithURL(t, &fakeAPI{handlers: map[string]http.HandlerFunc{}, calls: map[string]int{}}, url)
	rec := env.do(t, http.MethodPost, "/api/auth/login/request-otp", map[string]any{
		"username": "budi", "phone": "081234567890",
	})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, msgNoResponse, decodeBody(t, rec)["message"])
}

func TestLogoutClearsAllStorage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.loginResident(t, true)
	require.NoError(t, env.browser().Local.Set(ctx, storage.SlotAdminToken, "admin"))
	require.NoError(t, env.browser().Session.Set(ctx, storage.SlotComplaintDraft, "{}"))

	rec := env.do(t, http.MethodPost, "/api/auth/logout", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	for _, area := range []storage.Area{env.browser().Local, env.browser().Session} {
		for _, slot := range []storage.Slot{storage.SlotToken, storage.SlotAdminToken,
			storage.SlotRememberedUsername, storage.SlotComplaintDraft} {
			ok, err := area.Has(ctx, slot)
			require.NoError(t, err)
			assert.False(t, ok, "%s still set in %s", slot, area.Namespace())
		}
	}

	rec = env.do(t, http.MethodGet, "/api/profile", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminLoginRemembersObscuredPassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.api.on("admin/login", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, map[string]any{
			"success": true,
			"token":   "admin-token",
			"admin":   map[string]any{"id": 1, "email": "admin@desa.id"},
		})
	})

	rec := env.do(t, http.MethodPost, "/api/admin/login", map[string]any{
		"email": "admin@desa.id", "password": "rahasia123", "remember": true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	stored, _, err := env.browser().Local.Get(ctx, storage.SlotRememberedAdminPassword)
	require.NoError(t, err)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("rahasia123")), stored)

	rec = env.do(t, http.MethodPost, "/api/admin/logout", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/admin/remembered", nil)
	data := decodeBody(t, rec)["data"].(map[string]any)
	assert.Equal(t, "admin@desa.id", data["email"])
	assert.Equal(t, "rahasia123", data["password"])

	ok, err := env.browser().Local.Has(ctx, storage.SlotAdminToken)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAdminEndpointsUseStoredToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.api.on("admin/dashboard-stats", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer admin-token", r.Header.Get("Authorization"))
		writeEnvelope(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{"total": 4}})
	})

	rec := env.do(t, http.MethodGet, "/api/admin/dashboard", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	require.NoError(t, env.browser().Local.Set(ctx, storage.SlotAdminToken, "admin-token"))
	require.NoError(t, env.browser().Local.Set(ctx, storage.SlotAdminData, `{"id":1}`))

	rec = env.do(t, http.MethodGet, "/api/admin/dashboard", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, env.api.count("admin/dashboard-stats"))

	rec = env.do(t, http.MethodPost, "/api/admin/complaints/status", map[string]any{
		"complaint_id": 3, "status": "archived",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAdminBearerWhileLoading(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.browser().Local.Set(ctx, storage.SlotAdminToken, "admin-token"))
	require.NoError(t, env.browser().Local.Set(ctx, storage.SlotAdminData, `{"id":1}`))

	m := session.NewManager(session.AdminPolicy, env.browser(), session.Options{Logger: zap.NewNop().Sugar()})
	require.True(t, m.Loading())

	rec := httptest.NewRecorder()
	tok, ok := sessionBearer(rec, m)
	assert.False(t, ok)
	assert.Empty(t, tok)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, false, decodeBody(t, rec)["success"])

	require.NoError(t, m.Bootstrap(ctx))
	rec = httptest.NewRecorder()
	tok, ok = sessionBearer(rec, m)
	assert.True(t, ok)
	assert.Equal(t, "admin-token", tok)
}

func TestDraftSaveIgnoredUntilLoaded(t *testing.T) {
	env := newTestEnv(t)
	env.loginResident(t, false)

	form := map[string]any{"formData": map[string]any{"title": "Jalan rusak"}}
	rec := env.do(t, http.MethodPut, "/api/complaints/draft", form)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decodeBody(t, rec)["data"].(map[string]any)["saved"])

	rec = env.do(t, http.MethodGet, "/api/complaints/draft", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/complaints/draft", form)
	assert.Equal(t, true, decodeBody(t, rec)["data"].(map[string]any)["saved"])

	rec = env.do(t, http.MethodGet, "/api/complaints/draft", nil)
	data := decodeBody(t, rec)["data"].(map[string]any)
	assert.Equal(t, "Jalan rusak", data["formData"].(map[string]any)["title"])
}

func TestPrepareFailsOpen(t *testing.T) {
	env := newTestEnv(t)
	env.loginResident(t, false)
	env.api.on("complaints/check-duplicate", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("<html>error</html>"))
	})

	rec := env.do(t, http.MethodPost, "/api/complaints/prepare", map[string]any{
		"category_id": "2",
		"title":       "Lampu jalan mati",
		"description": "Lampu di RT 03 mati sejak seminggu",
		"location":    "RT 03",
		"priority":    "sedang",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := decodeBody(t, rec)["data"].(map[string]any)
	assert.Equal(t, "confirm", data["stage"])
	assert.Equal(t, true, data["unverified"])
}

func multipartComplaint(t *testing.T) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range map[string]string{
		"category_id": "2",
		"title":       "Lampu jalan mati",
		"description": "Lampu di RT 03 mati sejak seminggu",
		"location":    "RT 03",
		"priority":    "tinggi",
	} {
		require.NoError(t, w.WriteField(k, v))
	}
	part, err := w.CreateFormFile("photos[]", "foto.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("\x89PNG\r\n\x1a\n0000"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestCreateComplaintClearsDraft(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.loginResident(t, false)
	require.NoError(t, env.browser().Local.Set(ctx, storage.SlotComplaintDraft, `{"formData":{"title":"x"}}`))

	env.api.on("complaints/create", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "Lampu jalan mati", r.FormValue("title"))
		assert.Len(t, r.MultipartForm.File["photos[]"], 1)
		writeEnvelope(w, http.StatusCreated, map[string]any{"success": true, "message": "Pengaduan terkirim"})
	})

	body, contentType := multipartComplaint(t)
	req := httptest.NewRequest(http.MethodPost, "/api/complaints", body)
	req.Header.Set("Content-Type", contentType)
	req.AddCookie(&http.Cookie{Name: "aduan_client", Value: testClient})
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	ok, err := env.browser().Local.Has(ctx, storage.SlotComplaintDraft)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDetailRejectsBadID(t *testing.T) {
	env := newTestEnv(t)
	env.loginResident(t, false)

	rec := env.do(t, http.MethodGet, "/api/complaints/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNotificationsListAndMarkRead(t *testing.T) {
	env := newTestEnv(t)
	env.loginResident(t, false)

	var mu sync.Mutex
	read := false
	env.api.on("notifications/list", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		isRead := 0
		if read {
			isRead = 1
		}
		mu.Unlock()
		writeEnvelope(w, http.StatusOK, map[string]any{
			"success": true,
			"data": []map[string]any{
				{"id": 1, "title": "Status", "message": "Diproses", "is_read": isRead},
				{"id": 2, "title": "Tanggapan", "message": "Dibalas", "is_read": 1},
			},
		})
	})
	env.api.on("notifications/mark-read", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		read = true
		mu.Unlock()
		writeEnvelope(w, http.StatusOK, map[string]any{"success": true})
	})

	rec := env.do(t, http.MethodGet, "/api/notifications", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Len(t, body["data"], 2)
	assert.Equal(t, float64(1), body["unread_count"])

	rec = env.do(t, http.MethodPost, "/api/notifications/read", map[string]any{"notification_id": 1})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/notifications", nil)
	assert.Equal(t, float64(0), decodeBody(t, rec)["unread_count"])
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])

	rec = env.do(t, http.MethodGet, "/api/health/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
