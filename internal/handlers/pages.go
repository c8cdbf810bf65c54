package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// PageHandler serves the built single-page app. Guarded page routes answer
// with index.html; everything else is looked up as a static asset first.
type PageHandler struct {
	dir   string
	files http.Handler
}

// NewPageHandler serves files from dir
func NewPageHandler(dir string) *PageHandler {
	return &PageHandler{dir: dir, files: http.FileServer(http.Dir(dir))}
}

// Index answers with the app shell.
func (h *PageHandler) Index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, filepath.Join(h.dir, "index.html"))
}

// Static serves an asset, falling back to the app shell for unknown paths
// so client-side routes survive a reload.
func (h *PageHandler) Static(w http.ResponseWriter, r *http.Request) {
	clean := filepath.Clean("/" + strings.TrimPrefix(r.URL.Path, "/"))
	if info, err := os.Stat(filepath.Join(h.dir, clean)); err == nil && !info.IsDir() {
		h.files.ServeHTTP(w, r)
		return
	}
	h.Index(w, r)
}
