package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aduan-desa/portal-server/internal/session"
	"github.com/aduan-desa/portal-server/internal/storage"
)

const testClient = "0b8f5a9e-3c52-4f0e-9d57-1f2a3b4c5d6e"

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
})

func signedToken(t *testing.T, id int) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"data": map[string]any{"id": id}})
	s, err := tok.SignedString([]byte("test"))
	require.NoError(t, err)
	return s
}

func request(path string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, path, nil)
	return r.WithContext(WithClientID(r.Context(), testClient))
}

func TestClientIDIssuesCookie(t *testing.T) {
	var seen string
	h := ClientID("aduan_client", true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ClientIDFrom(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, seen, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
	assert.True(t, cookies[0].Secure)

	// An existing valid cookie is reused.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "aduan_client", Value: testClient})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, testClient, seen)
	assert.Empty(t, rec.Result().Cookies())

	// Garbage is replaced.
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "aduan_client", Value: "../../etc"})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.NotEqual(t, "../../etc", seen)
	assert.Len(t, rec.Result().Cookies(), 1)
}

func TestRequireUser(t *testing.T) {
	ctx := context.Background()
	provider := session.NewProvider(session.UserPolicy, storage.NewMemoryBackend(), session.Options{})
	h := RequireUser(provider)(okHandler)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, request("/dashboard"))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	m := provider.Mount(ctx, testClient)
	require.NoError(t, m.Login(ctx, json.RawMessage(`{"id":3}`), signedToken(t, 3)))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, request("/dashboard"))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestPublicOnly(t *testing.T) {
	ctx := context.Background()
	provider := session.NewProvider(session.UserPolicy, storage.NewMemoryBackend(), session.Options{})
	h := PublicOnly(provider)(okHandler)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, request("/login"))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	m := provider.Mount(ctx, testClient)
	require.NoError(t, m.Login(ctx, json.RawMessage(`{"id":3}`), signedToken(t, 3)))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, request("/login"))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))
}

func TestRequireAdminReadsStorageDirectly(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemoryBackend()
	h := RequireAdmin(backend)(okHandler)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, request("/admin/dashboard"))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/admin/login", rec.Header().Get("Location"))

	// A token alone is enough; no admin session is mounted.
	browser := storage.ForClient(backend, testClient)
	require.NoError(t, browser.Local.Set(ctx, storage.SlotAdminToken, "anything"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, request("/admin/dashboard"))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestAPIGuardsAnswerJSON(t *testing.T) {
	backend := storage.NewMemoryBackend()
	provider := session.NewProvider(session.UserPolicy, backend, session.Options{})

	for _, h := range []http.Handler{
		RequireUserAPI(provider)(okHandler),
		RequireAdminAPI(backend)(okHandler),
	} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, request("/api/anything"))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		var body map[string]any
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, false, body["success"])
		assert.NotEmpty(t, body["message"])
	}
}

// slowBackend blocks the first Get until release is closed.
type slowBackend struct {
	*storage.MemoryBackend
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (s *slowBackend) Get(ctx context.Context, namespace string, slot storage.Slot) (string, bool, error) {
	s.once.Do(func() {
		close(s.entered)
		<-s.release
	})
	return s.MemoryBackend.Get(ctx, namespace, slot)
}

func TestRequireUserShowsPlaceholderWhileLoading(t *testing.T) {
	backend := &slowBackend{
		MemoryBackend: storage.NewMemoryBackend(),
		entered:       make(chan struct{}),
		release:       make(chan struct{}),
	}
	provider := session.NewProvider(session.UserPolicy, backend, session.Options{})
	h := RequireUser(provider)(okHandler)

	first := make(chan int)
	go func() {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, request("/dashboard"))
		first <- rec.Code
	}()

	select {
	case <-backend.entered:
	case <-time.After(time.Second):
		t.Fatal("bootstrap never started")
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, request("/dashboard"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Refresh"))

	close(backend.release)
	assert.Equal(t, http.StatusFound, <-first)
}

func TestRateLimitPerAddressAndRoute(t *testing.T) {
	h := RateLimit(2)(okHandler)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, request("/api/auth/login/request-otp"))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, request("/api/auth/login/request-otp"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, request("/api/auth/register"))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	other := request("/api/auth/login/request-otp")
	other.RemoteAddr = "198.51.100.7:5555"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, other)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRateLimitIgnoresFreshClientCookies(t *testing.T) {
	h := ClientID("aduan_client", false)(RateLimit(2)(okHandler))

	passed := 0
	for i := 0; i < 20; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login/request-otp", nil)
		req.RemoteAddr = "203.0.113.9:" + strconv.Itoa(40000+i)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code == http.StatusNoContent {
			passed++
		}
	}
	assert.Equal(t, 2, passed)
}
