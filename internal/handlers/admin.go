package handlers

import (
	"net/http"

	"github.com/aduan-desa/portal-server/internal/backend"
	"github.com/aduan-desa/portal-server/internal/models"
	"github.com/aduan-desa/portal-server/internal/session"
	"github.com/aduan-desa/portal-server/internal/validation"
	"go.uber.org/zap"
)

// AdminHandler handles the administrator's management endpoints. Every
// call is made with the stored admin token.
type AdminHandler struct {
	admins   *session.Provider
	api      *backend.Client
	validate *validation.Validator
	logger   *zap.SugaredLogger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(admins *session.Provider, api *backend.Client, v *validation.Validator, logger *zap.SugaredLogger) *AdminHandler {
	return &AdminHandler{admins: admins, api: api, validate: v, logger: logger}
}

// Complaints handles GET /api/admin/complaints
// Query parameters are passed through as filters.
func (h *AdminHandler) Complaints(w http.ResponseWriter, r *http.Request) {
	h.call(w, r, "admin complaints", func(bearer string) (*backend.Result, error) {
		return h.api.AdminComplaints(r.Context(), bearer, r.URL.Query())
	})
}

// Dashboard handles GET /api/admin/dashboard
func (h *AdminHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	h.call(w, r, "admin dashboard", func(bearer string) (*backend.Result, error) {
		return h.api.AdminDashboard(r.Context(), bearer)
	})
}

// UpdateStatus handles POST /api/admin/complaints/status
func (h *AdminHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var in models.StatusUpdate
	if !decodeValid(w, r, h.validate, h.logger, "update status", &in) {
		return
	}
	h.call(w, r, "update status", func(bearer string) (*backend.Result, error) {
		return h.api.UpdateStatus(r.Context(), bearer, in)
	})
}

// AddResponse handles POST /api/admin/complaints/response
func (h *AdminHandler) AddResponse(w http.ResponseWriter, r *http.Request) {
	var in models.ResponseInput
	if !decodeValid(w, r, h.validate, h.logger, "add response", &in) {
		return
	}
	h.call(w, r, "add response", func(bearer string) (*backend.Result, error) {
		return h.api.AddResponse(r.Context(), bearer, in)
	})
}

// TogglePublic handles POST /api/admin/complaints/public
func (h *AdminHandler) TogglePublic(w http.ResponseWriter, r *http.Request) {
	var in models.PublicToggle
	if !decodeValid(w, r, h.validate, h.logger, "toggle public", &in) {
		return
	}
	h.call(w, r, "toggle public", func(bearer string) (*backend.Result, error) {
		return h.api.TogglePublic(r.Context(), bearer, in)
	})
}

// Categories handles GET /api/admin/categories
func (h *AdminHandler) Categories(w http.ResponseWriter, r *http.Request) {
	h.call(w, r, "admin categories", func(bearer string) (*backend.Result, error) {
		return h.api.AdminCategories(r.Context(), bearer)
	})
}

// CreateCategory handles POST /api/admin/categories
func (h *AdminHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var in models.CategoryInput
	if !decodeValid(w, r, h.validate, h.logger, "create category", &in) {
		return
	}
	h.call(w, r, "create category", func(bearer string) (*backend.Result, error) {
		return h.api.CreateCategory(r.Context(), bearer, in)
	})
}

// UpdateCategory handles PUT /api/admin/categories/{id}
func (h *AdminHandler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var in models.CategoryInput
	if !decodeValid(w, r, h.validate, h.logger, "update category", &in) {
		return
	}
	h.call(w, r, "update category", func(bearer string) (*backend.Result, error) {
		return h.api.UpdateCategory(r.Context(), bearer, id, in)
	})
}

// DeleteCategory handles DELETE /api/admin/categories/{id}
func (h *AdminHandler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	h.call(w, r, "delete category", func(bearer string) (*backend.Result, error) {
		return h.api.DeleteCategory(r.Context(), bearer, id)
	})
}

// Residents handles GET /api/admin/users
func (h *AdminHandler) Residents(w http.ResponseWriter, r *http.Request) {
	h.call(w, r, "residents", func(bearer string) (*backend.Result, error) {
		return h.api.Residents(r.Context(), bearer, r.URL.Query())
	})
}

// CreateResident handles POST /api/admin/users
func (h *AdminHandler) CreateResident(w http.ResponseWriter, r *http.Request) {
	var in models.ResidentInput
	if !decodeValid(w, r, h.validate, h.logger, "create resident", &in) {
		return
	}
	h.call(w, r, "create resident", func(bearer string) (*backend.Result, error) {
		return h.api.CreateResident(r.Context(), bearer, in)
	})
}

// UpdateResident handles PUT /api/admin/users/{id}
func (h *AdminHandler) UpdateResident(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var in models.ResidentInput
	if !decodeValid(w, r, h.validate, h.logger, "update resident", &in) {
		return
	}
	h.call(w, r, "update resident", func(bearer string) (*backend.Result, error) {
		return h.api.UpdateResident(r.Context(), bearer, id, in)
	})
}

// DeleteResident handles DELETE /api/admin/users/{id}
func (h *AdminHandler) DeleteResident(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	h.call(w, r, "delete resident", func(bearer string) (*backend.Result, error) {
		return h.api.DeleteResident(r.Context(), bearer, id)
	})
}

func (h *AdminHandler) call(w http.ResponseWriter, r *http.Request, op string, fn func(bearer string) (*backend.Result, error)) {
	tok, ok := adminBearer(w, r, h.admins)
	if !ok {
		return
	}
	res, err := fn(tok)
	if err != nil {
		respondFailure(w, h.logger, op, err)
		return
	}
	respondResult(w, res)
}

// decodeValid decodes and validates the body into v, answering the request
// itself when either step fails.
func decodeValid(w http.ResponseWriter, r *http.Request, v *validation.Validator, logger *zap.SugaredLogger, op string, dst any) bool {
	if err := decodeJSON(w, r, dst); err != nil {
		respondError(w, http.StatusBadRequest, msgBadRequest)
		return false
	}
	if err := v.Struct(dst); err != nil {
		respondFailure(w, logger, op, err)
		return false
	}
	return true
}

