// Package handler provides HTTP handlers for the API.
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/funnel-platform/internal/flow"
	"github.com/capitalize-ai/funnel-platform/internal/middleware"
	"github.com/capitalize-ai/funnel-platform/internal/model"
	"github.com/capitalize-ai/funnel-platform/internal/service"
	"github.com/capitalize-ai/funnel-platform/pkg/logger"
)

// FunnelHandler handles funnel endpoints.
type FunnelHandler struct {
	service    *service.FunnelService
	generation *service.GenerationService
	logger     *logger.Logger
}

// NewFunnelHandler creates a new funnel handler.
func NewFunnelHandler(svc *service.FunnelService, gen *service.GenerationService, log *logger.Logger) *FunnelHandler {
	return &FunnelHandler{
		service:    svc,
		generation: gen,
		logger:     log,
	}
}

// Create handles POST /api/v1/funnels
func (h *FunnelHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)

	var req model.CreateFunnelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateName(req.Name); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	f, err := h.service.Create(ctx, tenantID, &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, f)
}

// List handles GET /api/v1/funnels
func (h *FunnelHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)
	limit, offset := pagination(r)

	resp, err := h.service.List(ctx, tenantID, limit, offset)
	if err != nil {
		h.logger.Error("failed to list funnels")
		writeError(w, http.StatusInternalServerError, "failed to list funnels")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/v1/funnels/:id
func (h *FunnelHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)
	funnelID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(funnelID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	f, err := h.service.Get(ctx, tenantID, funnelID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, f)
}

// Update handles PUT /api/v1/funnels/:id
func (h *FunnelHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)
	funnelID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(funnelID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.UpdateFunnelRequest
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

	f, err := h.service.Update(ctx, tenantID, funnelID, &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, f)
}

// Delete handles DELETE /api/v1/funnels/:id
func (h *FunnelHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)
	funnelID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(funnelID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.Delete(ctx, tenantID, funnelID); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Deploy handles POST /api/v1/funnels/:id/deploy
func (h *FunnelHandler) Deploy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)
	funnelID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(funnelID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	f, err := h.service.Deploy(ctx, tenantID, funnelID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, f)
}

// Undeploy handles POST /api/v1/funnels/:id/undeploy
func (h *FunnelHandler) Undeploy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)
	funnelID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(funnelID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	f, err := h.service.Undeploy(ctx, tenantID, funnelID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, f)
}

// Layout handles GET /api/v1/funnels/:id/layout
// Pixel parameters may be overridden with ?blockWidth=&blockHeight=&gapX=&gapY=&margin=
func (h *FunnelHandler) Layout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)
	funnelID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(funnelID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	opts := flow.LayoutOptions{
		BlockWidth:  intQuery(r, "blockWidth"),
		BlockHeight: intQuery(r, "blockHeight"),
		GapX:        intQuery(r, "gapX"),
		GapY:        intQuery(r, "gapY"),
		Margin:      intQuery(r, "margin"),
	}

	layout, err := h.service.Layout(ctx, tenantID, funnelID, opts)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, layout)
}

// Path handles GET /api/v1/funnels/:id/path?blockId=X
// It returns the block IDs on the highlighted path from the start block to
// the selected block.
func (h *FunnelHandler) Path(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)
	funnelID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(funnelID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	blockID := r.URL.Query().Get("blockId")
	if blockID == "" {
		writeError(w, http.StatusBadRequest, "blockId query parameter is required")
		return
	}

	path, err := h.service.SelectedPath(ctx, tenantID, funnelID, blockID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string][]string{"path": path})
}

// AttachResource handles POST /api/v1/funnels/:id/resources
func (h *FunnelHandler) AttachResource(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)
	funnelID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(funnelID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.AttachResourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateID(req.ResourceID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	f, err := h.service.AttachResource(ctx, tenantID, funnelID, req.ResourceID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, f)
}

// DetachResource handles DELETE /api/v1/funnels/:id/resources/:resourceId
func (h *FunnelHandler) DetachResource(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)
	funnelID := chi.URLParam(r, "id")
	resourceID := chi.URLParam(r, "resourceId")

	if err := middleware.ValidateID(funnelID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateID(resourceID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	f, err := h.service.DetachResource(ctx, tenantID, funnelID, resourceID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, f)
}

// Generate handles POST /api/v1/generate-funnel
// The pipeline runs in the background; the response is the accepted funnel
// snapshot with generationStatus "generating". The dashboard polls the funnel
// until the status settles.
func (h *FunnelHandler) Generate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)

	var req model.GenerateFunnelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateID(req.FunnelID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	f, err := h.generation.Start(ctx, tenantID, req.FunnelID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, f)
}

func intQuery(r *http.Request, key string) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
