// Package draft autosaves the complaint form of a browser under a single
// storage slot. There is one draft per browser; concurrent editors
// overwrite each other.
package draft

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/aduan-desa/portal-server/internal/storage"
	"go.uber.org/zap"
)

// FormData mirrors the fields of the complaint form.
type FormData struct {
	CategoryID  string `json:"category_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Location    string `json:"location"`
	Priority    string `json:"priority"`
}

// Coordinates is a point picked on the map.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Draft is the stored form state.
type Draft struct {
	FormData    FormData     `json:"formData"`
	Coordinates *Coordinates `json:"coordinates"`
	Timestamp   time.Time    `json:"timestamp"`
}

// Editor loads, saves and clears the draft of one browser. Saves are
// ignored until Load has completed so the freshly loaded draft is not
// overwritten by an empty form.
type Editor struct {
	area   storage.Area
	logger *zap.SugaredLogger
	now    func() time.Time

	mu     sync.Mutex
	loaded bool
}

// NewEditor creates an editor writing to area.
func NewEditor(area storage.Area, logger *zap.SugaredLogger) *Editor {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Editor{area: area, logger: logger, now: time.Now}
}

// Load returns the stored draft. A missing or unreadable draft yields an
// empty form and a nil error; only storage failures are returned.
func (e *Editor) Load(ctx context.Context) (*Draft, error) {
	defer e.markLoaded()

	raw, ok, err := e.area.Get(ctx, storage.SlotComplaintDraft)
	if err != nil {
		return &Draft{}, fmt.Errorf("load draft: %w", err)
	}
	if !ok || raw == "" {
		return &Draft{}, nil
	}

	var d Draft
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		e.logger.Warnw("Stored complaint draft is unreadable, starting empty", "error", err)
		return &Draft{}, nil
	}
	return &d, nil
}

// Save stores form and coords. It reports false when the editor has not
// been loaded yet and nothing was written.
func (e *Editor) Save(ctx context.Context, form FormData, coords *Coordinates) (bool, error) {
	if !e.isLoaded() {
		return false, nil
	}

	d := Draft{FormData: form, Coordinates: coords, Timestamp: e.now().UTC()}
	raw, err := json.Marshal(d)
	if err != nil {
		return false, fmt.Errorf("encode draft: %w", err)
	}
	if err := e.area.Set(ctx, storage.SlotComplaintDraft, string(raw)); err != nil {
		return false, fmt.Errorf("save draft: %w", err)
	}
	return true, nil
}

// Clear removes the stored draft.
func (e *Editor) Clear(ctx context.Context) error {
	if err := e.area.Remove(ctx, storage.SlotComplaintDraft); err != nil {
		return fmt.Errorf("clear draft: %w", err)
	}
	return nil
}

func (e *Editor) markLoaded() {
	e.mu.Lock()
	e.loaded = true
	e.mu.Unlock()
}

func (e *Editor) isLoaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded
}
