// Package session holds the portal's belief that a browser is logged in.
//
// A Manager pairs a bearer token with the profile it was issued for and keeps
// both in the browser's storage. Whether the token is still valid is never
// checked here; the API rejects stale tokens per request and the session
// stays authenticated until an explicit Logout.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aduan-desa/portal-server/internal/storage"
	"github.com/aduan-desa/portal-server/internal/token"
	"go.uber.org/zap"
)

// Options carries the collaborators shared by every Manager of a Provider.
type Options struct {
	Logger      *zap.SugaredLogger
	Permissions PermissionRequester
	DeviceSaver DeviceTokenSaver
	Events      EventRecorder
	NotifyDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = zap.NewNop().Sugar()
	}
	if o.Events == nil {
		o.Events = LogRecorder{Logger: o.Logger}
	}
	return o
}

// Manager is the session of one browser for one Policy.
type Manager struct {
	policy  Policy
	browser storage.Browser
	opts    Options

	mu       sync.RWMutex
	token    string
	profile  json.RawMessage
	loading  bool
	lastUsed time.Time

	notifyStatus NotifyStatus
	notifyDone   chan struct{}
	notifyCancel context.CancelFunc
	notifyGen    uint64
}

// NewManager returns a Manager in the loading state. Call Bootstrap once.
func NewManager(policy Policy, browser storage.Browser, opts Options) *Manager {
	closed := make(chan struct{})
	close(closed)
	return &Manager{
		policy:       policy,
		browser:      browser,
		opts:         opts.withDefaults(),
		loading:      true,
		lastUsed:     time.Now(),
		notifyStatus: NotifyIdle,
		notifyDone:   closed,
	}
}

// Policy returns the policy the manager was built with.
func (m *Manager) Policy() Policy { return m.policy }

// Browser returns the storage the session lives in.
func (m *Manager) Browser() storage.Browser { return m.browser }

// Bootstrap hydrates the session from storage, or clears storage when the
// stored pair is unusable. Loading is false afterwards whatever happens.
func (m *Manager) Bootstrap(ctx context.Context) error {
	defer func() {
		m.mu.Lock()
		m.loading = false
		m.mu.Unlock()
	}()

	tok, okTok, err := m.browser.Local.Get(ctx, m.policy.TokenSlot)
	if err != nil {
		return fmt.Errorf("bootstrap %s: %w", m.policy.Name, err)
	}
	rawProfile, okProfile, err := m.browser.Local.Get(ctx, m.policy.ProfileSlot)
	if err != nil {
		return fmt.Errorf("bootstrap %s: %w", m.policy.Name, err)
	}
	if !okTok || tok == "" || !okProfile || rawProfile == "" {
		return nil
	}

	profile, err := decodeProfile([]byte(rawProfile))
	if err != nil {
		m.opts.Logger.Warnw("Stored profile is not valid JSON, clearing session",
			"variant", m.policy.Name, "error", err)
		m.record(ctx, EventCorruptSession, 0, "profile json")
		return m.discard(ctx, m.policy.Logout)
	}

	if m.policy.VerifyIdentity {
		payload, err := token.Decode(tok)
		if errors.Is(err, token.ErrMalformed) {
			m.opts.Logger.Warnw("Stored token is malformed, clearing session",
				"variant", m.policy.Name, "error", err)
			m.record(ctx, EventCorruptSession, 0, "malformed token")
			return m.discard(ctx, ClearEverything)
		}

		profileID, profileOK := token.CoerceID(profile["id"])
		if err != nil || !profileOK || payload.SubjectID != profileID {
			var tokenID int64
			if payload != nil {
				tokenID = payload.SubjectID
			}
			m.opts.Logger.Warnw("Token and stored profile belong to different accounts, clearing all storage",
				"variant", m.policy.Name,
				"token_id", tokenID,
				"profile_id", profileID,
			)
			m.record(ctx, EventIdentityMismatch, tokenID, fmt.Sprintf("profile id %d", profileID))
			return m.discard(ctx, ClearEverything)
		}
	}

	m.mu.Lock()
	m.token = tok
	m.profile = json.RawMessage(rawProfile)
	m.mu.Unlock()
	return nil
}

// Login stores the session in the browser and then in memory, and starts the
// notification registration in the background. The registration outcome
// never affects the login.
func (m *Manager) Login(ctx context.Context, profile json.RawMessage, bearer string) error {
	if bearer == "" {
		return errors.New("login: empty token")
	}
	fields, err := decodeProfile(profile)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	// Storage first: the session only exists in memory once both slots
	// are written.
	if err := m.browser.Local.Set(ctx, m.policy.TokenSlot, bearer); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if err := m.browser.Local.Set(ctx, m.policy.ProfileSlot, string(profile)); err != nil {
		if rmErr := m.browser.Local.Remove(ctx, m.policy.TokenSlot); rmErr != nil {
			m.opts.Logger.Warnw("Failed to roll back token after login error",
				"variant", m.policy.Name, "error", rmErr)
		}
		return fmt.Errorf("login: %w", err)
	}

	m.mu.Lock()
	m.token = bearer
	m.profile = append(json.RawMessage(nil), profile...)
	m.lastUsed = time.Now()
	m.mu.Unlock()

	id, _ := token.CoerceID(fields["id"])
	m.record(ctx, EventLogin, id, "")
	m.startNotification(bearer)
	return nil
}

// Logout forgets the session. The user policy wipes all browser storage;
// the admin policy removes only its own slots.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.RLock()
	id, _ := profileID(m.profile)
	m.mu.RUnlock()

	m.record(ctx, EventLogout, id, "")
	return m.discard(ctx, m.policy.Logout)
}

// ReplaceProfile stores a freshly fetched profile for the current session.
func (m *Manager) ReplaceProfile(ctx context.Context, profile json.RawMessage) error {
	if _, err := decodeProfile(profile); err != nil {
		return fmt.Errorf("replace profile: %w", err)
	}
	if !m.IsAuthenticated() {
		return errors.New("replace profile: not authenticated")
	}

	m.mu.Lock()
	m.profile = append(json.RawMessage(nil), profile...)
	m.mu.Unlock()

	return m.browser.Local.Set(ctx, m.policy.ProfileSlot, string(profile))
}

// IsAuthenticated reports whether a token is held. No expiry, revocation or
// signature check is made.
func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token != ""
}

// Loading is true only until Bootstrap returns.
func (m *Manager) Loading() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loading
}

// Token returns the bearer token, empty when logged out.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

// Profile returns a copy of the stored profile JSON, nil when logged out.
func (m *Manager) Profile() json.RawMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.profile == nil {
		return nil
	}
	return append(json.RawMessage(nil), m.profile...)
}

// NotificationStatus reports the state of the last notification registration.
func (m *Manager) NotificationStatus() NotifyStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.notifyStatus
}

// NotificationDone is closed once the current registration has finished.
func (m *Manager) NotificationDone() <-chan struct{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.notifyDone
}

func (m *Manager) touch() {
	m.mu.Lock()
	m.lastUsed = time.Now()
	m.mu.Unlock()
}

func (m *Manager) idleSince() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastUsed
}

func (m *Manager) startNotification(bearer string) {
	if m.opts.Permissions == nil || m.opts.DeviceSaver == nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	m.mu.Lock()
	if m.notifyCancel != nil {
		m.notifyCancel()
	}
	m.notifyGen++
	gen := m.notifyGen
	m.notifyStatus = NotifyPending
	m.notifyDone = done
	m.notifyCancel = cancel
	m.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()

		status := NotifyFailed
		var err error
		func() {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			status, err = registerDevice(ctx, m.opts.NotifyDelay, m.browser,
				m.opts.Permissions, m.opts.DeviceSaver, bearer)
		}()

		m.mu.Lock()
		current := m.notifyGen == gen
		if current {
			m.notifyStatus = status
		}
		m.mu.Unlock()

		if !current {
			return
		}
		switch status {
		case NotifyGranted:
			m.opts.Logger.Infow("Push notifications registered", "variant", m.policy.Name)
		case NotifyDenied:
			m.opts.Logger.Infow("Push notifications not permitted", "variant", m.policy.Name)
		default:
			m.opts.Logger.Warnw("Push notification setup failed", "variant", m.policy.Name, "error", err)
		}
	}()
}

// discard clears in-memory state, cancels any pending registration and
// removes storage according to scope.
func (m *Manager) discard(ctx context.Context, scope LogoutScope) error {
	m.mu.Lock()
	m.token = ""
	m.profile = nil
	if m.notifyCancel != nil {
		m.notifyCancel()
		m.notifyCancel = nil
	}
	m.notifyGen++
	m.notifyStatus = NotifyIdle
	m.mu.Unlock()

	if scope == ClearEverything {
		return m.browser.ClearAll(ctx)
	}
	return m.browser.Local.Remove(ctx, m.policy.TokenSlot, m.policy.ProfileSlot)
}

func (m *Manager) record(ctx context.Context, typ string, subject int64, detail string) {
	m.opts.Events.Record(ctx, Event{
		ClientHash: m.browser.ClientHash,
		Variant:    m.policy.Name,
		Type:       typ,
		SubjectID:  subject,
		Detail:     detail,
	})
}

func decodeProfile(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, errors.New("profile is null")
	}
	return fields, nil
}

func profileID(raw json.RawMessage) (int64, bool) {
	if raw == nil {
		return 0, false
	}
	fields, err := decodeProfile(raw)
	if err != nil {
		return 0, false
	}
	return token.CoerceID(fields["id"])
}
