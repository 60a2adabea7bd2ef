package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/funnel-platform/internal/middleware"
	"github.com/capitalize-ai/funnel-platform/internal/model"
	"github.com/capitalize-ai/funnel-platform/internal/service"
	"github.com/capitalize-ai/funnel-platform/internal/store"
	"github.com/capitalize-ai/funnel-platform/pkg/logger"
)

const testSecret = "test-secret"

// memTranscript is an in-memory TranscriptLog for handler tests.
type memTranscript struct {
	mu       sync.Mutex
	messages []model.ChatMessage
	seq      uint64
}

func (m *memTranscript) PublishMessage(_ context.Context, msg *model.ChatMessage) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	c := *msg
	c.Sequence = m.seq
	m.messages = append(m.messages, c)
	return m.seq, nil
}

func (m *memTranscript) PublishEvent(_ context.Context, _ *model.SessionEvent) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	return m.seq, nil
}

func (m *memTranscript) GetMessages(_ context.Context, tenantID, sessionID string, afterSequence uint64, limit int) ([]model.ChatMessage, uint64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ChatMessage
	var last uint64
	for _, msg := range m.messages {
		if msg.TenantID != tenantID || msg.SessionID != sessionID || msg.Sequence <= afterSequence {
			continue
		}
		out = append(out, msg)
		last = msg.Sequence
		if len(out) == limit {
			break
		}
	}
	return out, last, len(out) == limit, nil
}

type testAPI struct {
	router  *chi.Mux
	store   *store.Store
	funnels *service.FunnelService
}

// newTestAPI wires the API routes the way cmd/api does, minus the NATS and
// websocket pieces.
func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	log, err := logger.New("error")
	require.NoError(t, err)

	st, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	funnelSvc := service.NewFunnelService(st, log)
	resourceSvc := service.NewResourceService(st, log)
	generationSvc := service.NewGenerationService(st, nil, service.GenerationConfig{}, log)
	chatSvc := service.NewChatService(st, &memTranscript{}, log)
	analyticsSvc := service.NewAnalyticsService(st, log)

	funnelHandler := NewFunnelHandler(funnelSvc, generationSvc, log)
	resourceHandler := NewResourceHandler(resourceSvc, log)
	sessionHandler := NewSessionHandler(chatSvc, log)
	analyticsHandler := NewAnalyticsHandler(analyticsSvc, log)

	r := chi.NewRouter()

	r.Route("/chat", func(r chi.Router) {
		r.Post("/sessions", sessionHandler.StartSession)
		r.Post("/sessions/{id}/messages", sessionHandler.PostMessage)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(testSecret))

		r.Route("/funnels", func(r chi.Router) {
			r.Post("/", funnelHandler.Create)
			r.Get("/", funnelHandler.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", funnelHandler.Get)
				r.Put("/", funnelHandler.Update)
				r.Delete("/", funnelHandler.Delete)
				r.Post("/deploy", funnelHandler.Deploy)
				r.Post("/undeploy", funnelHandler.Undeploy)
				r.Get("/layout", funnelHandler.Layout)
				r.Get("/path", funnelHandler.Path)
			})
		})
		r.Post("/generate-funnel", funnelHandler.Generate)

		r.Route("/resources", func(r chi.Router) {
			r.Post("/", resourceHandler.Create)
			r.Get("/", resourceHandler.List)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", sessionHandler.List)
			r.Get("/{id}", sessionHandler.Get)
		})

		r.Post("/orders", analyticsHandler.CreateOrder)
		r.Get("/analytics/summary", analyticsHandler.Summary)
	})

	return &testAPI{router: r, store: st, funnels: funnelSvc}
}

func (a *testAPI) do(t *testing.T, method, path, tenant string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	if tenant != "" {
		token, err := middleware.NewToken(testSecret, tenant, "test", []string{"admin"}, time.Minute)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v))
	return v
}

func testWireFlow() *model.FunnelFlow {
	to := func(id string) *string { return &id }
	return &model.FunnelFlow{
		StartBlockID: "welcome",
		Stages: []model.Stage{
			{ID: "stage-1", Name: "WELCOME", BlockIDs: []string{"welcome"}},
			{ID: "stage-2", Name: "OFFER", BlockIDs: []string{"offer"}},
		},
		Blocks: map[string]model.Block{
			"welcome": {ID: "welcome", Message: "Hi!", Options: []model.BlockOption{
				{Text: "Go", NextBlockID: to("offer")},
			}},
			"offer": {ID: "offer", Message: "Deal.", Options: []model.BlockOption{
				{Text: "Claim", NextBlockID: nil},
			}},
		},
	}
}

func TestAuthRequired(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodGet, "/api/v1/funnels", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestFunnelLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t)

	// Create
	w := api.do(t, http.MethodPost, "/api/v1/funnels", "t1", model.CreateFunnelRequest{Name: "Launch"})
	require.Equal(t, http.StatusCreated, w.Code)
	f := decode[model.Funnel](t, w)
	assert.Equal(t, "Launch", f.Name)
	assert.Equal(t, model.GenerationIdle, f.GenerationStatus)

	// Deploy without a flow is a 422.
	w = api.do(t, http.MethodPost, "/api/v1/funnels/"+f.ID+"/deploy", "t1", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	// Save a flow, then deploy.
	w = api.do(t, http.MethodPut, "/api/v1/funnels/"+f.ID, "t1", model.UpdateFunnelRequest{Flow: testWireFlow()})
	require.Equal(t, http.StatusOK, w.Code)
	w = api.do(t, http.MethodPost, "/api/v1/funnels/"+f.ID+"/deploy", "t1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[model.Funnel](t, w).IsDeployed)

	// Deployed funnels cannot be deleted.
	w = api.do(t, http.MethodDelete, "/api/v1/funnels/"+f.ID, "t1", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	// Layout and path come back once a flow exists.
	w = api.do(t, http.MethodGet, "/api/v1/funnels/"+f.ID+"/layout", "t1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = api.do(t, http.MethodGet, "/api/v1/funnels/"+f.ID+"/path?blockId=offer", "t1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	path := decode[map[string][]string](t, w)
	assert.Equal(t, []string{"welcome", "offer"}, path["path"])

	// Undeploy, then delete.
	w = api.do(t, http.MethodPost, "/api/v1/funnels/"+f.ID+"/undeploy", "t1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = api.do(t, http.MethodDelete, "/api/v1/funnels/"+f.ID, "t1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = api.do(t, http.MethodGet, "/api/v1/funnels/"+f.ID, "t1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFunnelTenantIsolationOverHTTP(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodPost, "/api/v1/funnels", "t1", model.CreateFunnelRequest{Name: "Mine"})
	require.Equal(t, http.StatusCreated, w.Code)
	f := decode[model.Funnel](t, w)

	w = api.do(t, http.MethodGet, "/api/v1/funnels/"+f.ID, "t2", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFunnelValidation(t *testing.T) {
	api := newTestAPI(t)

	// Empty name
	w := api.do(t, http.MethodPost, "/api/v1/funnels", "t1", model.CreateFunnelRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Malformed ID
	w = api.do(t, http.MethodGet, "/api/v1/funnels/not-a-uuid", "t1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Invalid flow
	w = api.do(t, http.MethodPost, "/api/v1/funnels", "t1", model.CreateFunnelRequest{Name: "X"})
	require.Equal(t, http.StatusCreated, w.Code)
	f := decode[model.Funnel](t, w)

	bad := testWireFlow()
	bad.StartBlockID = "nowhere"
	w = api.do(t, http.MethodPut, "/api/v1/funnels/"+f.ID, "t1", model.UpdateFunnelRequest{Flow: bad})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestGenerateWithoutLLMIs503(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodPost, "/api/v1/funnels", "t1", model.CreateFunnelRequest{Name: "X"})
	require.Equal(t, http.StatusCreated, w.Code)
	f := decode[model.Funnel](t, w)

	w = api.do(t, http.MethodPost, "/api/v1/generate-funnel", "t1", model.GenerateFunnelRequest{FunnelID: f.ID})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestResourceEndpoints(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodPost, "/api/v1/resources", "t1", model.CreateResourceRequest{
		Name:     "Course",
		Link:     "https://example.com/course",
		Type:     model.ResourceTypeMyProducts,
		Category: model.ResourceCategoryPaid,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	// Bad link is rejected up front.
	w = api.do(t, http.MethodPost, "/api/v1/resources", "t1", model.CreateResourceRequest{
		Name:     "Bad",
		Link:     "not-a-url",
		Type:     model.ResourceTypeMyProducts,
		Category: model.ResourceCategoryPaid,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodGet, "/api/v1/resources?type=MY_PRODUCTS", "t1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[model.ListResourcesResponse](t, w)
	assert.Equal(t, 1, list.Total)
}

func TestPublicChatOverREST(t *testing.T) {
	api := newTestAPI(t)
	ctx := context.Background()

	// Set up a deployed funnel directly through the service layer.
	f, err := api.funnels.Create(ctx, "t1", &model.CreateFunnelRequest{Name: "Launch"})
	require.NoError(t, err)
	_, err = api.funnels.Update(ctx, "t1", f.ID, &model.UpdateFunnelRequest{Flow: testWireFlow()})
	require.NoError(t, err)
	_, err = api.funnels.Deploy(ctx, "t1", f.ID)
	require.NoError(t, err)

	// Start a session without auth; tenant comes from the query.
	w := api.do(t, http.MethodPost, "/chat/sessions?tenant=t1", "", model.StartSessionRequest{FunnelID: f.ID})
	require.Equal(t, http.StatusCreated, w.Code)
	reply := decode[model.BotReply](t, w)
	require.NotNil(t, reply.Session)
	assert.Equal(t, model.SessionActive, reply.Session.Status)
	assert.Contains(t, reply.Message.Content, "Hi!")

	// Advance to the terminal option.
	sid := reply.Session.ID
	w = api.do(t, http.MethodPost, "/chat/sessions/"+sid+"/messages?tenant=t1", "", model.VisitorMessageRequest{Content: "Go"})
	require.Equal(t, http.StatusOK, w.Code)
	w = api.do(t, http.MethodPost, "/chat/sessions/"+sid+"/messages?tenant=t1", "", model.VisitorMessageRequest{Content: "Claim"})
	require.Equal(t, http.StatusOK, w.Code)
	reply = decode[model.BotReply](t, w)
	assert.Equal(t, model.SessionCompleted, reply.Session.Status)

	// Further messages are a conflict.
	w = api.do(t, http.MethodPost, "/chat/sessions/"+sid+"/messages?tenant=t1", "", model.VisitorMessageRequest{Content: "hello"})
	assert.Equal(t, http.StatusConflict, w.Code)

	// Missing tenant is a bad request.
	w = api.do(t, http.MethodPost, "/chat/sessions", "", model.StartSessionRequest{FunnelID: f.ID})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// The admin monitor sees the session with its transcript.
	w = api.do(t, http.MethodGet, "/api/v1/sessions/"+sid, "t1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	tr := decode[model.SessionTranscriptResponse](t, w)
	assert.Len(t, tr.Messages, 4)
}

func TestOrdersAndSummaryOverHTTP(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodPost, "/api/v1/orders", "t1", model.CreateOrderRequest{
		ProductName: "Course",
		AmountCents: 4900,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = api.do(t, http.MethodPost, "/api/v1/orders", "t1", model.CreateOrderRequest{
		ProductName: "Course",
		AmountCents: -1,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodGet, "/api/v1/analytics/summary", "t1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	sum := decode[model.AnalyticsSummary](t, w)
	assert.Equal(t, int64(4900), sum.RevenueCents)
	assert.Equal(t, 1, sum.Orders)
}
