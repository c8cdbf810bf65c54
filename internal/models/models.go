// Package models defines the data structures exchanged with the browser and
// with the village API. Field names follow the API's JSON.
package models

import (
	"encoding/json"
	"time"
)

// Envelope is the uniform response shape of the village API and of the
// portal's own JSON endpoints.
type Envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// LoginOTPRequest asks the API to send a login OTP.
type LoginOTPRequest struct {
	Username string `json:"username" validate:"required,min=3"`
	Phone    string `json:"phone" validate:"required,phone_id"`
}

// LoginVerifyRequest completes an OTP login.
type LoginVerifyRequest struct {
	Username string `json:"username" validate:"required,min=3"`
	Phone    string `json:"phone" validate:"required,phone_id"`
	OTP      string `json:"otp" validate:"required,numeric,min=4,max=8"`
	Remember bool   `json:"remember"`
	FCMToken string `json:"fcm_token,omitempty"`
}

// RegisterRequest creates a resident account.
type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3"`
	Phone    string `json:"phone" validate:"required,phone_id"`
	Address  string `json:"address" validate:"required"`
}

// AdminLoginRequest is the administrator's password login.
type AdminLoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Remember bool   `json:"remember"`
	FCMToken string `json:"fcm_token,omitempty"`
}

// PasswordChange updates the administrator's password.
type PasswordChange struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=6"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=NewPassword"`
}

// ProfileUpdate edits the resident's own profile.
type ProfileUpdate struct {
	Name    string `json:"name,omitempty"`
	Phone   string `json:"phone" validate:"required,phone_id"`
	Email   string `json:"email,omitempty" validate:"omitempty,email"`
	Address string `json:"address" validate:"required"`
}

// ComplaintInput is the text part of a new or edited complaint.
type ComplaintInput struct {
	CategoryID  string   `json:"category_id" validate:"required,numeric"`
	Title       string   `json:"title" validate:"required,min=5,max=200"`
	Description string   `json:"description" validate:"required,min=10"`
	Location    string   `json:"location" validate:"required"`
	Priority    string   `json:"priority" validate:"required,oneof=rendah sedang tinggi"`
	Latitude    *float64 `json:"latitude,omitempty" validate:"omitempty,latitude"`
	Longitude   *float64 `json:"longitude,omitempty" validate:"omitempty,longitude"`
}

// DuplicateCheckRequest asks the API for similar existing complaints.
type DuplicateCheckRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// DuplicateCheck is the API's answer to a duplicate check.
type DuplicateCheck struct {
	Success           bool               `json:"success"`
	Message           string             `json:"message,omitempty"`
	IsDuplicate       bool               `json:"isDuplicate"`
	SimilarComplaints []SimilarComplaint `json:"similar_complaints"`
}

// SimilarComplaint is one match returned by the duplicate check.
type SimilarComplaint struct {
	ID          json.Number `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Similarity  float64     `json:"similarity"`
	Status      string      `json:"status"`
	CreatedAt   string      `json:"created_at"`
	IsOwn       bool        `json:"is_own"`
}

// Photo is an uploaded complaint photo.
type Photo struct {
	Filename    string
	ContentType string
	Data        []byte
}

// StatusUpdate changes a complaint's status.
type StatusUpdate struct {
	ComplaintID json.Number `json:"complaint_id" validate:"required"`
	Status      string      `json:"status" validate:"required,oneof=pending proses selesai ditolak"`
}

// ResponseInput adds an administrator response to a complaint.
type ResponseInput struct {
	ComplaintID json.Number `json:"complaint_id" validate:"required"`
	Response    string      `json:"response" validate:"required,min=3"`
}

// PublicToggle publishes or hides a complaint.
type PublicToggle struct {
	ComplaintID json.Number `json:"complaint_id" validate:"required"`
	IsPublic    bool        `json:"is_public"`
}

// CategoryInput creates or renames a complaint category.
type CategoryInput struct {
	Name        string `json:"name" validate:"required,min=3"`
	Description string `json:"description,omitempty"`
}

// ResidentInput is an administrator's create/update of a resident account.
type ResidentInput struct {
	Username string `json:"username" validate:"required,min=3"`
	Phone    string `json:"phone" validate:"required,phone_id"`
	Address  string `json:"address" validate:"required"`
	IsActive *bool  `json:"is_active,omitempty"`
}

// NotificationRef points at one notification.
type NotificationRef struct {
	NotificationID json.Number `json:"notification_id" validate:"required"`
}

// DeviceTokenRequest hands the browser's push token to the portal.
type DeviceTokenRequest struct {
	FCMToken string `json:"fcm_token" validate:"required"`
}

// Notification is the client view of a notification.
type Notification struct {
	ID          json.Number `json:"id"`
	Title       string      `json:"title"`
	Message     string      `json:"message"`
	IsRead      int         `json:"is_read"`
	ComplaintID json.Number `json:"complaint_id,omitempty"`
	CreatedAt   string      `json:"created_at"`
}

// NotificationList is the API's notification page.
type NotificationList struct {
	Success     bool           `json:"success"`
	Message     string         `json:"message,omitempty"`
	Data        []Notification `json:"data"`
	UnreadCount int            `json:"unread_count"`
}

// RememberedLogin prefills a login form.
type RememberedLogin struct {
	Username string `json:"username,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password,omitempty"`
}

// SessionStatus reports a browser's session to the SPA.
type SessionStatus struct {
	Authenticated bool            `json:"authenticated"`
	Loading       bool            `json:"loading"`
	Profile       json.RawMessage `json:"profile,omitempty"`
	Notifications string          `json:"notifications"`
}

// HealthStatus represents the server health check response
type HealthStatus struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Uptime   string `json:"uptime"`
	Storage  string `json:"storage,omitempty"`
	Upstream string `json:"upstream,omitempty"`
}

// SessionEventRow is a stored session audit record.
type SessionEventRow struct {
	ID         int64     `json:"id"`
	ClientHash string    `json:"client_hash"`
	Variant    string    `json:"variant"`
	EventType  string    `json:"event_type"`
	SubjectID  *int64    `json:"subject_id,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
