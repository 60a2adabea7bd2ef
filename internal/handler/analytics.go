package handler

import (
	"encoding/json"
	"net/http"
	"net/mail"
	"time"

	"github.com/capitalize-ai/funnel-platform/internal/middleware"
	"github.com/capitalize-ai/funnel-platform/internal/model"
	"github.com/capitalize-ai/funnel-platform/internal/service"
	"github.com/capitalize-ai/funnel-platform/pkg/logger"
)

// AnalyticsHandler serves the dashboard's sales and analytics endpoints.
type AnalyticsHandler struct {
	service *service.AnalyticsService
	logger  *logger.Logger
}

// NewAnalyticsHandler creates a new analytics handler.
func NewAnalyticsHandler(svc *service.AnalyticsService, log *logger.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		service: svc,
		logger:  log,
	}
}

// CreateOrder handles POST /api/v1/orders
func (h *AnalyticsHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)

	var req model.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateName(req.ProductName); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.AmountCents < 0 {
		writeError(w, http.StatusBadRequest, "amountCents cannot be negative")
		return
	}

	o, err := h.service.CreateOrder(ctx, tenantID, &req)
	if err != nil {
		h.logger.Error("failed to create order")
		writeError(w, http.StatusInternalServerError, "failed to create order")
		return
	}

	writeJSON(w, http.StatusCreated, o)
}

// ListOrders handles GET /api/v1/orders
// Supports ?from=&to= (RFC 3339) and ?funnelId= filters.
func (h *AnalyticsHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)
	limit, offset := pagination(r)

	from, ok := timeQuery(w, r, "from")
	if !ok {
		return
	}
	to, ok := timeQuery(w, r, "to")
	if !ok {
		return
	}
	funnelID := r.URL.Query().Get("funnelId")

	resp, err := h.service.ListOrders(ctx, tenantID, from, to, funnelID, limit, offset)
	if err != nil {
		h.logger.Error("failed to list orders")
		writeError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// CreateMember handles POST /api/v1/members
func (h *AnalyticsHandler) CreateMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)

	var req model.CreateMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Email != "" {
		if _, err := mail.ParseAddress(req.Email); err != nil {
			writeError(w, http.StatusBadRequest, "invalid email address")
			return
		}
	}

	m, err := h.service.CreateMember(ctx, tenantID, &req)
	if err != nil {
		h.logger.Error("failed to create member")
		writeError(w, http.StatusInternalServerError, "failed to create member")
		return
	}

	writeJSON(w, http.StatusCreated, m)
}

// Summary handles GET /api/v1/analytics/summary
func (h *AnalyticsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)

	sum, err := h.service.Summary(ctx, tenantID)
	if err != nil {
		h.logger.Error("failed to compute analytics summary")
		writeError(w, http.StatusInternalServerError, "failed to compute summary")
		return
	}

	writeJSON(w, http.StatusOK, sum)
}

// Revenue handles GET /api/v1/analytics/revenue?interval=day|week|month
func (h *AnalyticsHandler) Revenue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)

	interval, ok := intervalQuery(w, r)
	if !ok {
		return
	}
	from, ok := timeQuery(w, r, "from")
	if !ok {
		return
	}
	to, ok := timeQuery(w, r, "to")
	if !ok {
		return
	}

	resp, err := h.service.RevenueSeries(ctx, tenantID, interval, from, to)
	if err != nil {
		h.logger.Error("failed to compute revenue series")
		writeError(w, http.StatusInternalServerError, "failed to compute revenue series")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Members handles GET /api/v1/analytics/members?interval=day|week|month
func (h *AnalyticsHandler) Members(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)

	interval, ok := intervalQuery(w, r)
	if !ok {
		return
	}

	resp, err := h.service.MemberSeries(ctx, tenantID, interval)
	if err != nil {
		h.logger.Error("failed to compute member series")
		writeError(w, http.StatusInternalServerError, "failed to compute member series")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Funnels handles GET /api/v1/analytics/funnels
func (h *AnalyticsHandler) Funnels(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)

	resp, err := h.service.FunnelPerformance(ctx, tenantID)
	if err != nil {
		h.logger.Error("failed to compute funnel performance")
		writeError(w, http.StatusInternalServerError, "failed to compute funnel performance")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func intervalQuery(w http.ResponseWriter, r *http.Request) (model.Interval, bool) {
	interval := model.Interval(r.URL.Query().Get("interval"))
	switch interval {
	case "":
		return model.IntervalDay, true
	case model.IntervalDay, model.IntervalWeek, model.IntervalMonth:
		return interval, true
	default:
		writeError(w, http.StatusBadRequest, "interval must be day, week, or month")
		return "", false
	}
}

func timeQuery(w http.ResponseWriter, r *http.Request, key string) (time.Time, bool) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		writeError(w, http.StatusBadRequest, key+" must be an RFC 3339 timestamp")
		return time.Time{}, false
	}
	return t, true
}
