// Package storage keeps the per-browser key/value slots that the portal uses
// in place of the browser's localStorage and sessionStorage.
//
// Every browser is identified by a client id cookie. Its slots live in two
// areas, "local" and "session", each a namespace inside a shared Backend.
// Writes are last-write-wins; there is no coordination between concurrent
// requests of the same browser.
package storage

import (
	"context"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Slot names a single stored value.
type Slot string

// Slots used by the portal.
const (
	SlotToken                   Slot = "token"
	SlotUser                    Slot = "user"
	SlotAdminToken              Slot = "admin_token"
	SlotAdminData               Slot = "admin_data"
	SlotRememberedUsername      Slot = "remembered_username"
	SlotRememberedPhone         Slot = "remembered_phone"
	SlotRememberedAdminEmail    Slot = "remembered_admin_email"
	SlotRememberedAdminPassword Slot = "remembered_admin_password"
	SlotComplaintDraft          Slot = "complaint_draft"
	SlotFCMToken                Slot = "fcm_token"
)

// Backend stores slots grouped by namespace.
type Backend interface {
	Get(ctx context.Context, namespace string, slot Slot) (string, bool, error)
	Set(ctx context.Context, namespace string, slot Slot, value string) error
	Remove(ctx context.Context, namespace string, slots ...Slot) error
	Clear(ctx context.Context, namespace string) error
}

// Area is a Backend bound to one namespace.
type Area struct {
	backend   Backend
	namespace string
}

// NewArea binds backend to namespace.
func NewArea(backend Backend, namespace string) Area {
	return Area{backend: backend, namespace: namespace}
}

// Namespace returns the namespace the area writes to.
func (a Area) Namespace() string { return a.namespace }

// Get returns the slot value and whether it was present.
func (a Area) Get(ctx context.Context, slot Slot) (string, bool, error) {
	v, ok, err := a.backend.Get(ctx, a.namespace, slot)
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", slot, err)
	}
	return v, ok, nil
}

// Has reports whether slot holds a non-empty value.
func (a Area) Has(ctx context.Context, slot Slot) (bool, error) {
	v, ok, err := a.Get(ctx, slot)
	if err != nil {
		return false, err
	}
	return ok && v != "", nil
}

// Set writes slot.
func (a Area) Set(ctx context.Context, slot Slot, value string) error {
	if err := a.backend.Set(ctx, a.namespace, slot, value); err != nil {
		return fmt.Errorf("set %s: %w", slot, err)
	}
	return nil
}

// Remove deletes the given slots. Missing slots are not an error.
func (a Area) Remove(ctx context.Context, slots ...Slot) error {
	if len(slots) == 0 {
		return nil
	}
	if err := a.backend.Remove(ctx, a.namespace, slots...); err != nil {
		return fmt.Errorf("remove %v: %w", slots, err)
	}
	return nil
}

// Clear deletes every slot in the area.
func (a Area) Clear(ctx context.Context) error {
	if err := a.backend.Clear(ctx, a.namespace); err != nil {
		return fmt.Errorf("clear %s: %w", a.namespace, err)
	}
	return nil
}

// Browser is the storage of one browser: a persistent local area and a
// session area.
type Browser struct {
	ClientHash string
	Local      Area
	Session    Area
}

// ForClient returns the storage areas of the browser identified by clientID.
func ForClient(backend Backend, clientID string) Browser {
	h := ClientHash(clientID)
	return Browser{
		ClientHash: h,
		Local:      NewArea(backend, "local:"+h),
		Session:    NewArea(backend, "session:"+h),
	}
}

// ClearAll wipes both areas entirely.
func (b Browser) ClearAll(ctx context.Context) error {
	if err := b.Local.Clear(ctx); err != nil {
		return err
	}
	return b.Session.Clear(ctx)
}

// ClientHash derives the storage namespace suffix for a client id so raw
// cookie values never appear as keys.
func ClientHash(clientID string) string {
	sum := blake2b.Sum256([]byte(clientID))
	return hex.EncodeToString(sum[:16])
}
