package backend

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"

	"github.com/aduan-desa/portal-server/internal/models"
)

// Categories lists complaint categories.
func (c *Client) Categories(ctx context.Context, bearer string) (*Result, error) {
	return c.getJSON(ctx, bearer, "categories/list", nil)
}

// Complaints lists the resident's own complaints.
func (c *Client) Complaints(ctx context.Context, bearer string) (*Result, error) {
	return c.getJSON(ctx, bearer, "complaints/list", nil)
}

// PublicComplaints lists complaints published by the administration.
func (c *Client) PublicComplaints(ctx context.Context, bearer string) (*Result, error) {
	return c.getJSON(ctx, bearer, "complaints/public-list", nil)
}

// Complaint fetches one complaint.
func (c *Client) Complaint(ctx context.Context, bearer, id string) (*Result, error) {
	return c.getJSON(ctx, bearer, "complaints/detail", idQuery(id))
}

// UpdateComplaint edits a complaint's text fields.
func (c *Client) UpdateComplaint(ctx context.Context, bearer, id string, in models.ComplaintInput) (*Result, error) {
	return c.putJSON(ctx, bearer, "complaints/update", idQuery(id), in)
}

// DeleteComplaint removes a complaint.
func (c *Client) DeleteComplaint(ctx context.Context, bearer, id string) (*Result, error) {
	return c.deleteJSON(ctx, bearer, "complaints/delete", idQuery(id))
}

// CheckDuplicate asks the API for complaints similar to title/description.
func (c *Client) CheckDuplicate(ctx context.Context, bearer, title, description string) (*models.DuplicateCheck, error) {
	res, err := c.postJSON(ctx, bearer, "complaints/check-duplicate", models.DuplicateCheckRequest{
		Title:       title,
		Description: description,
	})
	if err != nil {
		return nil, err
	}
	var out models.DuplicateCheck
	if err := res.Decode(&out); err != nil {
		return nil, err
	}
	out.Success = res.Success
	return &out, nil
}

// CreateComplaint files a complaint with its photos as multipart form data.
// Uploads use the longer upload timeout.
func (c *Client) CreateComplaint(ctx context.Context, bearer string, in models.ComplaintInput, photos []models.Photo) (*Result, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := [][2]string{
		{"category_id", in.CategoryID},
		{"title", in.Title},
		{"description", in.Description},
		{"location", in.Location},
		{"priority", in.Priority},
	}
	if in.Latitude != nil && in.Longitude != nil {
		fields = append(fields,
			[2]string{"latitude", strconv.FormatFloat(*in.Latitude, 'f', -1, 64)},
			[2]string{"longitude", strconv.FormatFloat(*in.Longitude, 'f', -1, 64)},
		)
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, fmt.Errorf("write field %s: %w", f[0], err)
		}
	}

	for _, p := range photos {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="photos[]"; filename=%q`, p.Filename))
		ct := p.ContentType
		if ct == "" {
			ct = http.DetectContentType(p.Data)
		}
		h.Set("Content-Type", ct)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, fmt.Errorf("create photo part: %w", err)
		}
		if _, err := part.Write(p.Data); err != nil {
			return nil, fmt.Errorf("write photo %s: %w", p.Filename, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.uploadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("complaints/create", nil), &buf)
	if err != nil {
		return nil, fmt.Errorf("build complaints/create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return c.send(req, bearer, "complaints/create")
}
