package draft

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aduan-desa/portal-server/internal/storage"
)

func newArea() storage.Area {
	return storage.ForClient(storage.NewMemoryBackend(), "browser").Local
}

func TestDraftRoundTrip(t *testing.T) {
	ctx := context.Background()
	area := newArea()

	e := NewEditor(area, nil)
	_, err := e.Load(ctx)
	require.NoError(t, err)

	form := FormData{CategoryID: "3", Title: "X", Description: "Jalan berlubang", Location: "RT 02", Priority: "tinggi"}
	saved, err := e.Save(ctx, form, &Coordinates{Lat: 1, Lng: 2})
	require.NoError(t, err)
	assert.True(t, saved)

	reopened := NewEditor(area, nil)
	d, err := reopened.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, form, d.FormData)
	require.NotNil(t, d.Coordinates)
	assert.Equal(t, Coordinates{Lat: 1, Lng: 2}, *d.Coordinates)
	assert.False(t, d.Timestamp.IsZero())
}

func TestDraftSaveBeforeLoadIsIgnored(t *testing.T) {
	ctx := context.Background()
	area := newArea()
	require.NoError(t, area.Set(ctx, storage.SlotComplaintDraft, `{"formData":{"title":"lama"},"coordinates":null}`))

	e := NewEditor(area, nil)
	saved, err := e.Save(ctx, FormData{}, nil)
	require.NoError(t, err)
	assert.False(t, saved)

	d, err := e.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "lama", d.FormData.Title)
	assert.Nil(t, d.Coordinates)
}

func TestDraftUnreadableStartsEmpty(t *testing.T) {
	ctx := context.Background()
	area := newArea()
	require.NoError(t, area.Set(ctx, storage.SlotComplaintDraft, `{not json`))

	d, err := NewEditor(area, nil).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, FormData{}, d.FormData)
	assert.Nil(t, d.Coordinates)
}

func TestDraftClear(t *testing.T) {
	ctx := context.Background()
	area := newArea()
	e := NewEditor(area, nil)
	_, _ = e.Load(ctx)
	_, err := e.Save(ctx, FormData{Title: "X"}, nil)
	require.NoError(t, err)

	require.NoError(t, e.Clear(ctx))
	ok, err := area.Has(ctx, storage.SlotComplaintDraft)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDraftTimestampUsesClock(t *testing.T) {
	ctx := context.Background()
	e := NewEditor(newArea(), nil)
	fixed := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return fixed }
	_, _ = e.Load(ctx)

	_, err := e.Save(ctx, FormData{Title: "A"}, nil)
	require.NoError(t, err)

	d, err := e.Load(ctx)
	require.NoError(t, err)
	assert.True(t, fixed.Equal(d.Timestamp))
}

func TestRegistryKeepsEditorPerBrowser(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemoryBackend()
	r := NewRegistry(nil)
	b := storage.ForClient(backend, "browser")

	e := r.Open(b)
	assert.Same(t, e, r.Open(b))
	assert.NotSame(t, e, r.Open(storage.ForClient(backend, "other")))

	_, _ = e.Load(ctx)
	saved, err := r.Open(b).Save(ctx, FormData{Title: "A"}, nil)
	require.NoError(t, err)
	assert.True(t, saved)

	r.Close(b)
	saved, err = r.Open(b).Save(ctx, FormData{Title: "B"}, nil)
	require.NoError(t, err)
	assert.False(t, saved, "reopened editor must load first")
}

func TestRegistrySweepDropsIdleEditors(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemoryBackend()
	r := NewRegistry(nil)

	clock := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return clock }

	idle := storage.ForClient(backend, "idle")
	busy := storage.ForClient(backend, "busy")
	stale := r.Open(idle)
	_, _ = stale.Load(ctx)
	r.Open(busy)

	clock = clock.Add(20 * time.Minute)
	kept := r.Open(busy)

	clock = clock.Add(15 * time.Minute)
	assert.Equal(t, 1, r.Sweep(30*time.Minute))
	assert.Equal(t, 1, r.Len())
	assert.Same(t, kept, r.Open(busy))

	reopened := r.Open(idle)
	assert.NotSame(t, stale, reopened)
	saved, err := reopened.Save(ctx, FormData{Title: "A"}, nil)
	require.NoError(t, err)
	assert.False(t, saved)
}

func TestRegistryJanitorStopsWithContext(t *testing.T) {
	r := NewRegistry(nil)
	r.Open(storage.ForClient(storage.NewMemoryBackend(), "b"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.RunJanitor(ctx, 5*time.Millisecond, -time.Second)
		close(done)
	}()

	assert.Eventually(t, func() bool { return r.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
