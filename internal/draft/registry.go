package draft

import (
	"context"
	"sync"
	"time"

	"github.com/aduan-desa/portal-server/internal/storage"
	"go.uber.org/zap"
)

type entry struct {
	editor   *Editor
	lastUsed time.Time
}

// Registry keeps the open Editor of each browser between requests.
type Registry struct {
	logger *zap.SugaredLogger
	now    func() time.Time

	mu      sync.Mutex
	editors map[string]*entry
}

// NewRegistry creates an empty registry
func NewRegistry(logger *zap.SugaredLogger) *Registry {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Registry{logger: logger, now: time.Now, editors: make(map[string]*entry)}
}

// Open returns the editor of browser, creating an unloaded one if needed.
func (r *Registry) Open(browser storage.Browser) *Editor {
	r.mu.Lock()
	defer r.mu.Unlock()
	if en, ok := r.editors[browser.ClientHash]; ok {
		en.lastUsed = r.now()
		return en.editor
	}
	e := NewEditor(browser.Local, r.logger)
	r.editors[browser.ClientHash] = &entry{editor: e, lastUsed: r.now()}
	return e
}

// Close forgets the editor of browser. The next Open starts unloaded.
func (r *Registry) Close(browser storage.Browser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.editors, browser.ClientHash)
}

// Sweep forgets editors not opened for longer than maxIdle and returns how
// many were dropped. A dropped browser must load its draft again before
// saves are stored.
func (r *Registry) Sweep(maxIdle time.Duration) int {
	cutoff := r.now().Add(-maxIdle)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, en := range r.editors {
		if en.lastUsed.Before(cutoff) {
			delete(r.editors, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of open editors.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.editors)
}

// RunJanitor sweeps idle editors every interval until ctx is done.
func (r *Registry) RunJanitor(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(maxIdle); n > 0 {
				r.logger.Debugw("Dropped idle draft editors", "count", n)
			}
		}
	}
}
