package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/aduan-desa/portal-server/internal/backend"
	"github.com/aduan-desa/portal-server/internal/complaint"
	"github.com/aduan-desa/portal-server/internal/draft"
	"github.com/aduan-desa/portal-server/internal/middleware"
	"github.com/aduan-desa/portal-server/internal/models"
	"github.com/aduan-desa/portal-server/internal/validation"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	maxPhotos      = 5
	maxPhotoBytes  = 5 << 20
	maxUploadBytes = maxPhotos*maxPhotoBytes + 1<<20
)

// ComplaintHandler handles the resident's complaint endpoints
type ComplaintHandler struct {
	api      *backend.Client
	flow     *complaint.Flow
	drafts   *draft.Registry
	validate *validation.Validator
	logger   *zap.SugaredLogger
}

// NewComplaintHandler creates a new complaint handler
func NewComplaintHandler(api *backend.Client, flow *complaint.Flow, drafts *draft.Registry,
	v *validation.Validator, logger *zap.SugaredLogger) *ComplaintHandler {
	return &ComplaintHandler{api: api, flow: flow, drafts: drafts, validate: v, logger: logger}
}

// List handles GET /api/complaints
func (h *ComplaintHandler) List(w http.ResponseWriter, r *http.Request) {
	res, err := h.api.Complaints(r.Context(), bearer(r))
	h.relay(w, "list complaints", res, err)
}

// Public handles GET /api/complaints/public
func (h *ComplaintHandler) Public(w http.ResponseWriter, r *http.Request) {
	res, err := h.api.PublicComplaints(r.Context(), bearer(r))
	h.relay(w, "public complaints", res, err)
}

// Categories handles GET /api/categories
func (h *ComplaintHandler) Categories(w http.ResponseWriter, r *http.Request) {
	res, err := h.api.Categories(r.Context(), bearer(r))
	h.relay(w, "categories", res, err)
}

// Detail handles GET /api/complaints/{id}
func (h *ComplaintHandler) Detail(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	res, err := h.api.Complaint(r.Context(), bearer(r), id)
	h.relay(w, "complaint detail", res, err)
}

// Update handles PUT /api/complaints/{id}
func (h *ComplaintHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var in models.ComplaintInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, http.StatusBadRequest, msgBadRequest)
		return
	}
	if err := h.validate.Struct(in); err != nil {
		respondFailure(w, h.logger, "update complaint", err)
		return
	}
	res, err := h.api.UpdateComplaint(r.Context(), bearer(r), id, in)
	h.relay(w, "update complaint", res, err)
}

// Delete handles DELETE /api/complaints/{id}
func (h *ComplaintHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	res, err := h.api.DeleteComplaint(r.Context(), bearer(r), id)
	h.relay(w, "delete complaint", res, err)
}

// Prepare handles POST /api/complaints/prepare
// It answers which dialog the form shows next: the duplicate warning or
// the final confirmation.
func (h *ComplaintHandler) Prepare(w http.ResponseWriter, r *http.Request) {
	var in models.ComplaintInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, http.StatusBadRequest, msgBadRequest)
		return
	}
	prep, err := h.flow.Prepare(r.Context(), bearer(r), in)
	if err != nil {
		respondFailure(w, h.logger, "prepare complaint", err)
		return
	}
	respondOK(w, "", prep)
}

// Create handles POST /api/complaints (multipart/form-data)
// Photos arrive as repeated "photos[]" parts. The draft is cleared once
// the API accepts the complaint.
func (h *ComplaintHandler) Create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, msgBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	in, err := complaintFromForm(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	photos, err := photosFromForm(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	m := middleware.SessionFrom(r.Context())
	editor := h.drafts.Open(m.Browser())

	res, err := h.flow.Submit(r.Context(), m.Token(), in, photos, editor)
	h.relay(w, "create complaint", res, err)
}

// LoadDraft handles GET /api/complaints/draft
func (h *ComplaintHandler) LoadDraft(w http.ResponseWriter, r *http.Request) {
	editor := h.drafts.Open(middleware.SessionFrom(r.Context()).Browser())
	d, err := editor.Load(r.Context())
	if err != nil {
		respondFailure(w, h.logger, "load draft", err)
		return
	}
	respondOK(w, "", d)
}

type draftInput struct {
	FormData    draft.FormData     `json:"formData"`
	Coordinates *draft.Coordinates `json:"coordinates"`
}

// SaveDraft handles PUT /api/complaints/draft
// Saves sent before the draft was loaded are acknowledged but not stored.
func (h *ComplaintHandler) SaveDraft(w http.ResponseWriter, r *http.Request) {
	var in draftInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, http.StatusBadRequest, msgBadRequest)
		return
	}
	editor := h.drafts.Open(middleware.SessionFrom(r.Context()).Browser())
	saved, err := editor.Save(r.Context(), in.FormData, in.Coordinates)
	if err != nil {
		respondFailure(w, h.logger, "save draft", err)
		return
	}
	respondOK(w, "", map[string]bool{"saved": saved})
}

// ClearDraft handles DELETE /api/complaints/draft
func (h *ComplaintHandler) ClearDraft(w http.ResponseWriter, r *http.Request) {
	editor := h.drafts.Open(middleware.SessionFrom(r.Context()).Browser())
	if err := editor.Clear(r.Context()); err != nil {
		respondFailure(w, h.logger, "clear draft", err)
		return
	}
	respondOK(w, "Draft dihapus", nil)
}

func (h *ComplaintHandler) relay(w http.ResponseWriter, op string, res *backend.Result, err error) {
	if err != nil {
		respondFailure(w, h.logger, op, err)
		return
	}
	respondResult(w, res)
}

// bearer returns the token of the session a guard mounted, if any.
func bearer(r *http.Request) string {
	if m := middleware.SessionFrom(r.Context()); m != nil {
		return m.Token()
	}
	return ""
}

func idParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if _, err := strconv.ParseUint(id, 10, 64); err != nil {
		respondError(w, http.StatusBadRequest, "ID tidak valid")
		return "", false
	}
	return id, true
}

func complaintFromForm(r *http.Request) (models.ComplaintInput, error) {
	in := models.ComplaintInput{
		CategoryID:  strings.TrimSpace(r.FormValue("category_id")),
		Title:       strings.TrimSpace(r.FormValue("title")),
		Description: strings.TrimSpace(r.FormValue("description")),
		Location:    strings.TrimSpace(r.FormValue("location")),
		Priority:    strings.TrimSpace(r.FormValue("priority")),
	}
	lat, lng := r.FormValue("latitude"), r.FormValue("longitude")
	if lat == "" || lng == "" {
		return in, nil
	}
	la, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return in, fmt.Errorf("latitude tidak valid")
	}
	lo, err := strconv.ParseFloat(lng, 64)
	if err != nil {
		return in, fmt.Errorf("longitude tidak valid")
	}
	in.Latitude, in.Longitude = &la, &lo
	return in, nil
}

func photosFromForm(r *http.Request) ([]models.Photo, error) {
	files := r.MultipartForm.File["photos[]"]
	if len(files) > maxPhotos {
		return nil, fmt.Errorf("maksimal %d foto", maxPhotos)
	}

	photos := make([]models.Photo, 0, len(files))
	for _, fh := range files {
		if fh.Size > maxPhotoBytes {
			return nil, fmt.Errorf("ukuran foto %s melebihi 5MB", fh.Filename)
		}
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("foto %s tidak dapat dibaca", fh.Filename)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("foto %s tidak dapat dibaca", fh.Filename)
		}
		ct := http.DetectContentType(data)
		if !strings.HasPrefix(ct, "image/") {
			return nil, fmt.Errorf("file %s bukan gambar", fh.Filename)
		}
		photos = append(photos, models.Photo{Filename: fh.Filename, ContentType: ct, Data: data})
	}
	return photos, nil
}
