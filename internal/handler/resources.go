package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/funnel-platform/internal/middleware"
	"github.com/capitalize-ai/funnel-platform/internal/model"
	"github.com/capitalize-ai/funnel-platform/internal/service"
	"github.com/capitalize-ai/funnel-platform/pkg/logger"
)

// ResourceHandler handles resource library endpoints.
type ResourceHandler struct {
	service *service.ResourceService
	logger  *logger.Logger
}

// NewResourceHandler creates a new resource handler.
func NewResourceHandler(svc *service.ResourceService, log *logger.Logger) *ResourceHandler {
	return &ResourceHandler{
		service: svc,
		logger:  log,
	}
}

// Create handles POST /api/v1/resources
func (h *ResourceHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)

	var req model.CreateResourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateName(req.Name); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateLink(req.Link); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateResourceType(req.Type); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateResourceCategory(req.Category); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.service.Create(ctx, tenantID, &req)
	if err != nil {
		h.logger.Error("failed to create resource")
		writeError(w, http.StatusInternalServerError, "failed to create resource")
		return
	}

	writeJSON(w, http.StatusCreated, res)
}

// List handles GET /api/v1/resources
// Supports ?type= and ?category= filters.
func (h *ResourceHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)
	limit, offset := pagination(r)

	typ := model.ResourceType(r.URL.Query().Get("type"))
	if typ != "" {
		if err := middleware.ValidateResourceType(typ); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	category := model.ResourceCategory(r.URL.Query().Get("category"))
	if category != "" {
		if err := middleware.ValidateResourceCategory(category); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	resp, err := h.service.List(ctx, tenantID, typ, category, limit, offset)
	if err != nil {
		h.logger.Error("failed to list resources")
		writeError(w, http.StatusInternalServerError, "failed to list resources")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/v1/resources/:id
func (h *ResourceHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)
	resourceID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(resourceID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.service.Get(ctx, tenantID, resourceID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// Update handles PUT /api/v1/resources/:id
func (h *ResourceHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)
	resourceID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(resourceID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.UpdateResourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name != "" {
		if err := middleware.ValidateName(req.Name); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if req.Link != "" {
		if err := middleware.ValidateLink(req.Link); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if req.Type != "" {
		if err := middleware.ValidateResourceType(req.Type); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if req.Category != "" {
		if err := middleware.ValidateResourceCategory(req.Category); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	res, err := h.service.Update(ctx, tenantID, resourceID, &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// Delete handles DELETE /api/v1/resources/:id
// Deleting a resource detaches it from every funnel that references it.
func (h *ResourceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)
	resourceID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(resourceID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.Delete(ctx, tenantID, resourceID); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
