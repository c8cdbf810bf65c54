package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/aduan-desa/portal-server/internal/session"
	"github.com/aduan-desa/portal-server/internal/storage"
)

const sessionKey contextKey = "session"

const loadingPage = `<!doctype html><html><head><meta charset="utf-8"><title>Memuat...</title></head>` +
	`<body><p>Memuat...</p></body></html>`

// SessionFrom returns the Manager a guard mounted for the request.
func SessionFrom(ctx context.Context) *session.Manager {
	m, _ := ctx.Value(sessionKey).(*session.Manager)
	return m
}

// WithSession stores m in ctx.
func WithSession(ctx context.Context, m *session.Manager) context.Context {
	return context.WithValue(ctx, sessionKey, m)
}

// Mount bootstraps the browser's session of provider and puts it in the
// request context without enforcing anything.
func Mount(provider *session.Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m := provider.Mount(r.Context(), ClientIDFrom(r.Context()))
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), m)))
		})
	}
}

// RequireUser lets authenticated residents through. While the session is
// still loading a placeholder page is shown, which reloads itself.
func RequireUser(provider *session.Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m := provider.Mount(r.Context(), ClientIDFrom(r.Context()))
			switch {
			case m.Loading():
				writeLoading(w)
			case !m.IsAuthenticated():
				http.Redirect(w, r, "/login", http.StatusFound)
			default:
				next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), m)))
			}
		})
	}
}

// PublicOnly keeps authenticated residents away from the login and
// registration pages.
func PublicOnly(provider *session.Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m := provider.Mount(r.Context(), ClientIDFrom(r.Context()))
			switch {
			case m.Loading():
				writeLoading(w)
			case m.IsAuthenticated():
				http.Redirect(w, r, "/dashboard", http.StatusFound)
			default:
				next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), m)))
			}
		})
	}
}

// RequireAdmin checks the admin_token slot directly in storage. It does not
// consult the admin session and never waits for it to load.
func RequireAdmin(backend storage.Backend) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !hasAdminToken(r, backend) {
				http.Redirect(w, r, "/admin/login", http.StatusFound)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireUserAPI is RequireUser for JSON endpoints.
func RequireUserAPI(provider *session.Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m := provider.Mount(r.Context(), ClientIDFrom(r.Context()))
			switch {
			case m.Loading():
				w.Header().Set("Retry-After", "1")
				writeJSON(w, http.StatusServiceUnavailable, "Sesi sedang dimuat")
			case !m.IsAuthenticated():
				writeJSON(w, http.StatusUnauthorized, "Silakan login terlebih dahulu")
			default:
				next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), m)))
			}
		})
	}
}

// RequireAdminAPI is RequireAdmin for JSON endpoints.
func RequireAdminAPI(backend storage.Backend) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !hasAdminToken(r, backend) {
				writeJSON(w, http.StatusUnauthorized, "Silakan login sebagai admin")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func hasAdminToken(r *http.Request, backend storage.Backend) bool {
	browser := storage.ForClient(backend, ClientIDFrom(r.Context()))
	tok, ok, err := browser.Local.Get(r.Context(), storage.SlotAdminToken)
	return err == nil && ok && tok != ""
}

func writeLoading(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Refresh", "1")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(loadingPage))
}

func writeJSON(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"success": false, "message": message})
}
