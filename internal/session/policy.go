package session

import "github.com/aduan-desa/portal-server/internal/storage"

// LogoutScope decides what Logout and a failed bootstrap remove.
type LogoutScope int

const (
	// ClearEverything wipes the local and session areas of the browser.
	ClearEverything LogoutScope = iota
	// ClearOwnSlots removes only the policy's token and profile slots.
	ClearOwnSlots
)

// Policy configures a Manager for one kind of account.
type Policy struct {
	Name           string
	TokenSlot      storage.Slot
	ProfileSlot    storage.Slot
	VerifyIdentity bool // compare the token's data.id with the stored profile id
	Logout         LogoutScope
}

// UserPolicy is used for residents. Stored sessions are checked against the
// token payload and logout wipes the whole browser storage.
var UserPolicy = Policy{
	Name:           "user",
	TokenSlot:      storage.SlotToken,
	ProfileSlot:    storage.SlotUser,
	VerifyIdentity: true,
	Logout:         ClearEverything,
}

// AdminPolicy is used for village administrators. Stored data is trusted as
// is, and logout keeps the remembered admin credentials.
var AdminPolicy = Policy{
	Name:           "admin",
	TokenSlot:      storage.SlotAdminToken,
	ProfileSlot:    storage.SlotAdminData,
	VerifyIdentity: false,
	Logout:         ClearOwnSlots,
}
