package notifications

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Hub owns the feeds of all browsers.
type Hub struct {
	api      API
	interval time.Duration
	logger   *zap.SugaredLogger

	mu    sync.Mutex
	feeds map[string]*Feed
}

// NewHub creates a hub polling every interval
func NewHub(api API, interval time.Duration, logger *zap.SugaredLogger) *Hub {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Hub{api: api, interval: interval, logger: logger, feeds: make(map[string]*Feed)}
}

// Open returns the feed of key, starting its poll loop on first use.
func (h *Hub) Open(key string, token TokenSource) *Feed {
	h.mu.Lock()
	defer h.mu.Unlock()

	if f, ok := h.feeds[key]; ok {
		return f
	}
	f := NewFeed(h.api, token, h.logger)
	h.feeds[key] = f
	go func() {
		f.Run(context.Background(), h.interval)
		h.mu.Lock()
		if h.feeds[key] == f {
			delete(h.feeds, key)
		}
		h.mu.Unlock()
		f.Close()
	}()
	return f
}

// Close stops and forgets the feed of key.
func (h *Hub) Close(key string) {
	h.mu.Lock()
	f, ok := h.feeds[key]
	delete(h.feeds, key)
	h.mu.Unlock()
	if ok {
		f.Close()
	}
}

// CloseAll stops every feed.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	feeds := h.feeds
	h.feeds = make(map[string]*Feed)
	h.mu.Unlock()
	for _, f := range feeds {
		f.Close()
	}
}

// Len returns the number of open feeds.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.feeds)
}
