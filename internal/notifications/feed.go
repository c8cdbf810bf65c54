// Package notifications keeps a per-browser copy of the resident's
// notifications. The copy is refreshed by a poll loop, on demand, and shortly
// after every mutation; mutations are applied locally first. Polls and
// mutations are not ordered against each other, the follow-up refresh is
// what brings the copy back in line with the API.
package notifications

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/aduan-desa/portal-server/internal/backend"
	"github.com/aduan-desa/portal-server/internal/models"
	"go.uber.org/zap"
)

// ErrNoSession is returned when the browser holds no token to poll with.
var ErrNoSession = errors.New("notifications: no session token")

// API is the part of backend.Client the feed uses.
type API interface {
	Notifications(ctx context.Context, bearer string) (*models.NotificationList, *backend.Result, error)
	MarkNotificationRead(ctx context.Context, bearer, id string) (*backend.Result, error)
	MarkAllNotificationsRead(ctx context.Context, bearer string) (*backend.Result, error)
	DeleteNotification(ctx context.Context, bearer, id string) (*backend.Result, error)
	DeleteReadNotifications(ctx context.Context, bearer string) (*backend.Result, error)
}

// TokenSource returns the bearer token currently stored for the browser.
type TokenSource func(ctx context.Context) (string, error)

// Snapshot is the feed's current view.
type Snapshot struct {
	Items       []models.Notification `json:"data"`
	UnreadCount int                   `json:"unread_count"`
	FetchedAt   time.Time             `json:"fetched_at"`
	Error       string                `json:"error,omitempty"`
}

// Feed is the notification copy of one browser.
type Feed struct {
	api            API
	token          TokenSource
	logger         *zap.SugaredLogger
	reconcileDelay time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.RWMutex
	items     []models.Notification
	fetchedAt time.Time
	lastErr   string
}

// NewFeed creates a feed. Close releases its background work.
func NewFeed(api API, token TokenSource, logger *zap.SugaredLogger) *Feed {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Feed{
		api:            api,
		token:          token,
		logger:         logger,
		reconcileDelay: 500 * time.Millisecond,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Fetched reports whether the feed has completed at least one refresh.
func (f *Feed) Fetched() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return !f.fetchedAt.IsZero()
}

// Snapshot returns a copy of the current notifications. The unread count is
// derived from the items.
func (f *Feed) Snapshot() Snapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()

	items := make([]models.Notification, len(f.items))
	copy(items, f.items)
	unread := 0
	for _, n := range items {
		if n.IsRead == 0 {
			unread++
		}
	}
	return Snapshot{Items: items, UnreadCount: unread, FetchedAt: f.fetchedAt, Error: f.lastErr}
}

// Refresh replaces the local copy with the API's list.
func (f *Feed) Refresh(ctx context.Context) error {
	bearer, err := f.token(ctx)
	if err != nil {
		return err
	}
	if bearer == "" {
		return ErrNoSession
	}

	list, res, err := f.api.Notifications(ctx, bearer)
	if err != nil {
		f.setError(err.Error())
		return err
	}
	if !res.Success {
		f.setError(res.Message)
		return &backend.APIError{StatusCode: res.StatusCode, Message: res.Message}
	}

	f.mu.Lock()
	f.items = list.Data
	f.fetchedAt = time.Now()
	f.lastErr = ""
	f.mu.Unlock()
	return nil
}

// MarkRead marks id read locally and on the API.
func (f *Feed) MarkRead(ctx context.Context, id string) (*backend.Result, error) {
	f.apply(func(items []models.Notification) []models.Notification {
		for i := range items {
			if items[i].ID.String() == id {
				items[i].IsRead = 1
			}
		}
		return items
	})
	return f.mutate(ctx, func(bearer string) (*backend.Result, error) {
		return f.api.MarkNotificationRead(ctx, bearer, id)
	})
}

// MarkAllRead marks every notification read.
func (f *Feed) MarkAllRead(ctx context.Context) (*backend.Result, error) {
	f.apply(func(items []models.Notification) []models.Notification {
		for i := range items {
			items[i].IsRead = 1
		}
		return items
	})
	return f.mutate(ctx, func(bearer string) (*backend.Result, error) {
		return f.api.MarkAllNotificationsRead(ctx, bearer)
	})
}

// Delete removes id.
func (f *Feed) Delete(ctx context.Context, id string) (*backend.Result, error) {
	f.apply(func(items []models.Notification) []models.Notification {
		out := items[:0]
		for _, n := range items {
			if n.ID.String() != id {
				out = append(out, n)
			}
		}
		return out
	})
	return f.mutate(ctx, func(bearer string) (*backend.Result, error) {
		return f.api.DeleteNotification(ctx, bearer, id)
	})
}

// DeleteRead removes every read notification.
func (f *Feed) DeleteRead(ctx context.Context) (*backend.Result, error) {
	f.apply(func(items []models.Notification) []models.Notification {
		out := items[:0]
		for _, n := range items {
			if n.IsRead == 0 {
				out = append(out, n)
			}
		}
		return out
	})
	return f.mutate(ctx, func(bearer string) (*backend.Result, error) {
		return f.api.DeleteReadNotifications(ctx, bearer)
	})
}

// Run polls every interval until the feed is closed or ctx is done. It
// stops on its own once the browser no longer holds a token.
func (f *Feed) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-f.ctx.Done():
			return
		case <-ticker.C:
			err := f.Refresh(f.ctx)
			if errors.Is(err, ErrNoSession) {
				f.logger.Debug("Notification polling stopped, no session")
				return
			}
			if err != nil && !errors.Is(err, context.Canceled) {
				f.logger.Debugw("Notification poll failed", "error", err)
			}
		}
	}
}

// Close stops polling and pending reconciliations.
func (f *Feed) Close() {
	f.cancel()
}

func (f *Feed) apply(change func([]models.Notification) []models.Notification) {
	f.mu.Lock()
	f.items = change(f.items)
	f.mu.Unlock()
}

// mutate calls the API and schedules a reconciling refresh whatever the
// outcome.
func (f *Feed) mutate(ctx context.Context, call func(bearer string) (*backend.Result, error)) (*backend.Result, error) {
	bearer, err := f.token(ctx)
	if err != nil {
		return nil, err
	}
	if bearer == "" {
		return nil, ErrNoSession
	}

	res, err := call(bearer)
	f.scheduleReconcile()
	return res, err
}

func (f *Feed) scheduleReconcile() {
	go func() {
		timer := time.NewTimer(f.reconcileDelay)
		defer timer.Stop()
		select {
		case <-f.ctx.Done():
		case <-timer.C:
			if err := f.Refresh(f.ctx); err != nil && !errors.Is(err, context.Canceled) {
				f.logger.Debugw("Notification reconcile failed", "error", err)
			}
		}
	}()
}

func (f *Feed) setError(msg string) {
	f.mu.Lock()
	f.lastErr = msg
	f.mu.Unlock()
}
