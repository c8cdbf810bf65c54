package backend

import (
	"context"

	"github.com/aduan-desa/portal-server/internal/models"
)

// Notifications fetches the account's notifications.
func (c *Client) Notifications(ctx context.Context, bearer string) (*models.NotificationList, *Result, error) {
	res, err := c.getJSON(ctx, bearer, "notifications/list", nil)
	if err != nil {
		return nil, nil, err
	}
	var out models.NotificationList
	if !res.Success {
		return &out, res, nil
	}
	if err := res.Decode(&out); err != nil {
		return nil, nil, err
	}
	return &out, res, nil
}

// MarkNotificationRead marks one notification as read.
func (c *Client) MarkNotificationRead(ctx context.Context, bearer, id string) (*Result, error) {
	return c.postJSON(ctx, bearer, "notifications/mark-read", map[string]string{"notification_id": id})
}

// MarkAllNotificationsRead marks every notification as read.
func (c *Client) MarkAllNotificationsRead(ctx context.Context, bearer string) (*Result, error) {
	return c.postJSON(ctx, bearer, "notifications/mark-all-read", struct{}{})
}

// DeleteNotification removes one notification.
func (c *Client) DeleteNotification(ctx context.Context, bearer, id string) (*Result, error) {
	return c.deleteJSON(ctx, bearer, "notifications/delete", idQuery(id))
}

// DeleteReadNotifications removes every read notification.
func (c *Client) DeleteReadNotifications(ctx context.Context, bearer string) (*Result, error) {
	return c.deleteJSON(ctx, bearer, "notifications/delete-all-read", nil)
}

// DeviceSaver registers push device tokens on one of the API's save
// endpoints. It satisfies session.DeviceTokenSaver.
type DeviceSaver struct {
	Client *Client
	Path   string
}

// UserDeviceSaver saves resident device tokens.
func (c *Client) UserDeviceSaver() DeviceSaver {
	return DeviceSaver{Client: c, Path: "notifications/save-fcm-token"}
}

// AdminDeviceSaver saves administrator device tokens.
func (c *Client) AdminDeviceSaver() DeviceSaver {
	return DeviceSaver{Client: c, Path: "admin/save-fcm-token"}
}

func (s DeviceSaver) SaveDeviceToken(ctx context.Context, bearer, deviceToken string) error {
	res, err := s.Client.postJSON(ctx, bearer, s.Path, map[string]string{"fcm_token": deviceToken})
	if err != nil {
		return err
	}
	if !res.Success {
		return &APIError{StatusCode: res.StatusCode, Message: res.Message}
	}
	return nil
}

// APIError is a backend-reported failure turned into an error for callers
// that cannot branch on Result.Success.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return "backend: " + e.Message
}
