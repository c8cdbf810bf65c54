package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aduan-desa/portal-server/internal/storage"
)

// ErrPermissionDenied is returned by a PermissionRequester when the browser
// refused (or never granted) push notifications.
var ErrPermissionDenied = errors.New("notification permission denied")

// NotifyStatus is the state of the post-login notification registration.
type NotifyStatus string

const (
	NotifyIdle    NotifyStatus = "idle"
	NotifyPending NotifyStatus = "pending"
	NotifyGranted NotifyStatus = "granted"
	NotifyDenied  NotifyStatus = "denied"
	NotifyFailed  NotifyStatus = "failed"
)

// PermissionRequester obtains a push device token for a browser.
type PermissionRequester interface {
	RequestPermission(ctx context.Context, browser storage.Browser) (string, error)
}

// DeviceTokenSaver registers a device token with the API on behalf of the
// account identified by bearer.
type DeviceTokenSaver interface {
	SaveDeviceToken(ctx context.Context, bearer, deviceToken string) error
}

// StoredDeviceToken reads the device token the browser handed over with its
// login request. A browser without one has not granted permission.
type StoredDeviceToken struct{}

func (StoredDeviceToken) RequestPermission(ctx context.Context, browser storage.Browser) (string, error) {
	v, ok, err := browser.Local.Get(ctx, storage.SlotFCMToken)
	if err != nil {
		return "", err
	}
	if !ok || v == "" {
		return "", ErrPermissionDenied
	}
	return v, nil
}

// registerDevice waits delay, asks for permission and saves the token.
func registerDevice(ctx context.Context, delay time.Duration, browser storage.Browser,
	req PermissionRequester, saver DeviceTokenSaver, bearer string) (NotifyStatus, error) {

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return NotifyIdle, ctx.Err()
	case <-timer.C:
	}

	deviceToken, err := req.RequestPermission(ctx, browser)
	if errors.Is(err, ErrPermissionDenied) {
		return NotifyDenied, err
	}
	if err != nil {
		return NotifyFailed, fmt.Errorf("request permission: %w", err)
	}

	if err := saver.SaveDeviceToken(ctx, bearer, deviceToken); err != nil {
		return NotifyFailed, fmt.Errorf("save device token: %w", err)
	}
	return NotifyGranted, nil
}
