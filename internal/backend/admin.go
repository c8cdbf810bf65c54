package backend

import (
	"context"
	"net/url"

	"github.com/aduan-desa/portal-server/internal/models"
)

// AdminComplaints lists every complaint, optionally filtered by the query
// parameters the admin screen sends (status, category, search, page).
func (c *Client) AdminComplaints(ctx context.Context, bearer string, filter url.Values) (*Result, error) {
	return c.getJSON(ctx, bearer, "complaints/admin-list", filter)
}

// AdminDashboard returns the statistics shown on the admin dashboard.
func (c *Client) AdminDashboard(ctx context.Context, bearer string) (*Result, error) {
	return c.getJSON(ctx, bearer, "admin/dashboard-stats", nil)
}

// UpdateStatus changes a complaint's status.
func (c *Client) UpdateStatus(ctx context.Context, bearer string, in models.StatusUpdate) (*Result, error) {
	return c.postJSON(ctx, bearer, "admin/update-status", in)
}

// AddResponse attaches an administrator response to a complaint.
func (c *Client) AddResponse(ctx context.Context, bearer string, in models.ResponseInput) (*Result, error) {
	return c.postJSON(ctx, bearer, "admin/add-response", in)
}

// TogglePublic publishes or hides a complaint.
func (c *Client) TogglePublic(ctx context.Context, bearer string, in models.PublicToggle) (*Result, error) {
	return c.postJSON(ctx, bearer, "admin/toggle-public", in)
}

// AdminCategories lists categories with administrative details.
func (c *Client) AdminCategories(ctx context.Context, bearer string) (*Result, error) {
	return c.getJSON(ctx, bearer, "admin/categories/list", nil)
}

// CreateCategory adds a category.
func (c *Client) CreateCategory(ctx context.Context, bearer string, in models.CategoryInput) (*Result, error) {
	return c.postJSON(ctx, bearer, "admin/categories/create", in)
}

// UpdateCategory renames a category.
func (c *Client) UpdateCategory(ctx context.Context, bearer, id string, in models.CategoryInput) (*Result, error) {
	return c.putJSON(ctx, bearer, "admin/categories/update", idQuery(id), in)
}

// DeleteCategory removes a category.
func (c *Client) DeleteCategory(ctx context.Context, bearer, id string) (*Result, error) {
	return c.deleteJSON(ctx, bearer, "admin/categories/delete", idQuery(id))
}

// Residents lists resident accounts.
func (c *Client) Residents(ctx context.Context, bearer string, filter url.Values) (*Result, error) {
	return c.getJSON(ctx, bearer, "admin/users/list", filter)
}

// CreateResident adds a resident account.
func (c *Client) CreateResident(ctx context.Context, bearer string, in models.ResidentInput) (*Result, error) {
	return c.postJSON(ctx, bearer, "admin/users/create", in)
}

// UpdateResident edits a resident account.
func (c *Client) UpdateResident(ctx context.Context, bearer, id string, in models.ResidentInput) (*Result, error) {
	return c.putJSON(ctx, bearer, "admin/users/update", idQuery(id), in)
}

// DeleteResident removes a resident account.
func (c *Client) DeleteResident(ctx context.Context, bearer, id string) (*Result, error) {
	return c.deleteJSON(ctx, bearer, "admin/users/delete", idQuery(id))
}
