// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// GenerationsTotal tracks funnel flow generations by outcome.
	GenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "funnel_generations_total",
			Help: "Total funnel flow generations",
		},
		[]string{"tenant_id", "status"},
	)

	// GenerationDuration tracks how long a generation pipeline run takes,
	// prompt build through validated flow.
	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "funnel_generation_duration_seconds",
			Help:    "Funnel generation pipeline duration",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 45, 60, 90, 120},
		},
		[]string{"model", "status"},
	)

	// LLMTokensTotal tracks total LLM tokens processed.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"model", "direction"},
	)

	// FunnelDeploysTotal tracks deploy and undeploy operations.
	FunnelDeploysTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "funnel_deploys_total",
			Help: "Total funnel deploy state changes",
		},
		[]string{"tenant_id", "action"},
	)

	// ChatSessionsTotal tracks chat sessions by terminal status.
	ChatSessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_sessions_total",
			Help: "Total chat sessions by status transition",
		},
		[]string{"tenant_id", "status"},
	)

	// ChatMessagesTotal tracks chat messages published to the transcript log.
	ChatMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_total",
			Help: "Total chat messages published",
		},
		[]string{"tenant_id", "role"},
	)

	// SSEConnectionsActive tracks active SSE monitoring connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	// WSConnectionsActive tracks active visitor websocket connections.
	WSConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_connections_active",
			Help: "Number of active visitor websocket connections",
		},
	)

	// NATSStreamMessages tracks messages in the chat transcript stream.
	NATSStreamMessages = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nats_stream_messages",
			Help: "Number of messages in NATS stream",
		},
		[]string{"stream"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordGeneration records one generation pipeline run.
func RecordGeneration(tenantID, model, status string, duration float64, tokensIn, tokensOut int) {
	GenerationsTotal.WithLabelValues(tenantID, status).Inc()
	GenerationDuration.WithLabelValues(model, status).Observe(duration)
	LLMTokensTotal.WithLabelValues(model, "in").Add(float64(tokensIn))
	LLMTokensTotal.WithLabelValues(model, "out").Add(float64(tokensOut))
}

// RecordDeploy records a deploy or undeploy of a funnel.
func RecordDeploy(tenantID, action string) {
	FunnelDeploysTotal.WithLabelValues(tenantID, action).Inc()
}

// RecordSession records a session status transition.
func RecordSession(tenantID, status string) {
	ChatSessionsTotal.WithLabelValues(tenantID, status).Inc()
}

// RecordChatMessage records one published chat message.
func RecordChatMessage(tenantID, role string) {
	ChatMessagesTotal.WithLabelValues(tenantID, role).Inc()
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}

// IncrementWSConnections increments the active websocket connection count.
func IncrementWSConnections() {
	WSConnectionsActive.Inc()
}

// DecrementWSConnections decrements the active websocket connection count.
func DecrementWSConnections() {
	WSConnectionsActive.Dec()
}
