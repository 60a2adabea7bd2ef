package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/funnel-platform/internal/middleware"
	"github.com/capitalize-ai/funnel-platform/internal/model"
	natsclient "github.com/capitalize-ai/funnel-platform/internal/nats"
	"github.com/capitalize-ai/funnel-platform/internal/service"
	"github.com/capitalize-ai/funnel-platform/pkg/logger"
	"github.com/capitalize-ai/funnel-platform/pkg/metrics"
)

// StreamHandler serves the dashboard's live session monitor: SSE replay of a
// session transcript followed by a live tail of new messages.
type StreamHandler struct {
	chatService *service.ChatService
	streams     *natsclient.StreamManager
	logger      *logger.Logger
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(chatSvc *service.ChatService, streams *natsclient.StreamManager, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		chatService: chatSvc,
		streams:     streams,
		logger:      log,
	}
}

// ReplayCompleteEvent marks the boundary between replayed history and live
// messages.
type ReplayCompleteEvent struct {
	LastSequence uint64 `json:"lastSequence"`
	MessageCount int    `json:"messageCount"`
}

// Stream handles GET /api/v1/sessions/:id/stream
// Supports ?after_sequence=N for resuming from a specific point.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)
	sessionID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Verify the session exists and belongs to the tenant.
	if _, err := h.chatService.Get(ctx, tenantID, sessionID); err != nil {
		writeServiceError(w, err)
		return
	}

	var afterSequence uint64
	if seqStr := r.URL.Query().Get("after_sequence"); seqStr != "" {
		if seq, err := strconv.ParseUint(seqStr, 10, 64); err == nil {
			afterSequence = seq
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// The server's WriteTimeout would cut this long-lived response; clear the
	// deadline and rely on heartbeats plus client disconnect instead.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Warn("failed to clear write deadline", zap.Error(err))
	}

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	done := ctx.Done()

	sendSSEEvent(w, flusher, "connected", map[string]string{
		"sessionId": sessionID,
	})

	// Snapshot the stream position before replay. If the replay finds no
	// messages, the live tail starts here instead of "new only", so a message
	// published between replay_complete and consumer creation is not lost.
	baseSequence, err := h.streams.LastSequence(ctx)
	if err != nil {
		h.logger.Warn("failed to read stream position",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}

	// Phase 1: replay history in batches.
	var lastSequence uint64
	var totalReplayed int

	for {
		messages, lastSeq, hasMore, err := h.chatService.Replay(ctx, tenantID, sessionID, afterSequence, 50)
		if err != nil {
			h.logger.Error("failed to replay session",
				zap.String("session_id", sessionID),
				zap.Error(err),
			)
			sendSSEEvent(w, flusher, "error", &model.ErrorEvent{
				Code:    "replay_error",
				Message: "Failed to replay messages",
			})
			break
		}

		for _, msg := range messages {
			select {
			case <-done:
				return
			default:
			}

			sendSSEEvent(w, flusher, "message", msg)
			lastSequence = msg.Sequence
			totalReplayed++
		}

		if !hasMore || lastSeq == 0 {
			break
		}
		afterSequence = lastSeq
	}

	sendSSEEvent(w, flusher, "replay_complete", &ReplayCompleteEvent{
		LastSequence: lastSequence,
		MessageCount: totalReplayed,
	})

	h.logger.Info("session replay complete",
		zap.String("session_id", sessionID),
		zap.Int("messages_replayed", totalReplayed),
		zap.Uint64("last_sequence", lastSequence),
	)

	// Phase 2: live tail. New messages arrive via an ordered channel; the
	// writer goroutine is this handler, so SSE writes stay single-threaded.
	if lastSequence < baseSequence {
		lastSequence = baseSequence
	}
	live := make(chan model.ChatMessage, 64)
	stop, err := h.streams.ConsumeLive(ctx, tenantID, sessionID, lastSequence, func(msg model.ChatMessage) {
		select {
		case live <- msg:
		default:
			// Slow monitor: drop rather than block the consumer callback.
		}
	})
	if err != nil {
		h.logger.Error("failed to start live tail",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		sendSSEEvent(w, flusher, "error", &model.ErrorEvent{
			Code:    "live_error",
			Message: "Failed to start live updates",
		})
		return
	}
	defer stop()

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-done:
			h.logger.Info("SSE client disconnected", zap.String("session_id", sessionID))
			return

		case msg := <-live:
			sendSSEEvent(w, flusher, "message", msg)

		case <-heartbeat.C:
			sendSSEEvent(w, flusher, "heartbeat", &model.HeartbeatEvent{
				Timestamp: time.Now(),
			})
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()

	return nil
}
