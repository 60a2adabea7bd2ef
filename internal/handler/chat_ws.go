package handler

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/capitalize-ai/funnel-platform/internal/middleware"
	"github.com/capitalize-ai/funnel-platform/internal/model"
	"github.com/capitalize-ai/funnel-platform/internal/service"
	"github.com/capitalize-ai/funnel-platform/pkg/logger"
	"github.com/capitalize-ai/funnel-platform/pkg/metrics"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 50 * time.Second
)

// wsFrame is the envelope for every frame the server sends on the chat socket.
type wsFrame struct {
	Type    string             `json:"type"`
	Session *model.ChatSession `json:"session,omitempty"`
	Message *model.ChatMessage `json:"message,omitempty"`
	Options []string           `json:"options,omitempty"`
	Error   string             `json:"error,omitempty"`
}

// chatSocket serializes writes to one websocket connection. Gorilla permits a
// single concurrent writer, and the ping loop runs beside the read loop.
type chatSocket struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *chatSocket) writeJSON(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return s.conn.WriteJSON(v)
}

func (s *chatSocket) ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return s.conn.WriteMessage(websocket.PingMessage, nil)
}

// ChatWSHandler serves the public visitor chat websocket.
type ChatWSHandler struct {
	service  *service.ChatService
	logger   *logger.Logger
	upgrader websocket.Upgrader
}

// NewChatWSHandler creates a new chat websocket handler. The widget is
// embedded on merchant sites, so cross-origin upgrades are allowed; tenant
// scoping is enforced per message.
func NewChatWSHandler(svc *service.ChatService, log *logger.Logger) *ChatWSHandler {
	return &ChatWSHandler{
		service: svc,
		logger:  log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Serve handles GET /chat/ws?tenant=X&funnel=Y
// The server opens a session on connect, pushes the start block, then reads
// visitor replies until the socket closes. A drop mid-flow abandons the
// session.
func (h *ChatWSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant")
	if err := middleware.ValidateTenantID(tenantID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	funnelID := r.URL.Query().Get("funnel")
	if err := middleware.ValidateID(funnelID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	sock := &chatSocket{conn: conn}

	metrics.IncrementWSConnections()
	defer metrics.DecrementWSConnections()

	ctx := r.Context()

	reply, err := h.service.StartSession(ctx, tenantID, &model.StartSessionRequest{
		FunnelID:  funnelID,
		VisitorID: r.URL.Query().Get("visitor"),
	})
	if err != nil {
		h.writeFrame(sock, &wsFrame{Type: "error", Error: err.Error()})
		return
	}
	sessionID := reply.Session.ID

	h.logger.Info("chat websocket connected",
		zap.String("session_id", sessionID),
		zap.String("tenant_id", tenantID),
	)

	h.writeFrame(sock, &wsFrame{Type: "session_created", Session: reply.Session})
	h.writeFrame(sock, &wsFrame{Type: "bot", Message: reply.Message, Options: reply.Options})

	// Keepalive pings on a side goroutine; the read loop handles pongs.
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	stopPing := make(chan struct{})
	defer close(stopPing)
	go h.pingLoop(sock, stopPing)

	for {
		var req model.VisitorMessageRequest
		if err := conn.ReadJSON(&req); err != nil {
			h.abandonOnDisconnect(tenantID, sessionID, err)
			return
		}

		if err := middleware.ValidateMessageContent(req.Content); err != nil {
			h.writeFrame(sock, &wsFrame{Type: "error", Error: err.Error()})
			continue
		}

		reply, err := h.service.Advance(ctx, tenantID, sessionID, req.Content)
		if err != nil {
			if errors.Is(err, service.ErrSessionNotActive) {
				h.writeFrame(sock, &wsFrame{Type: "error", Error: "session is no longer active"})
				return
			}
			h.logger.Error("failed to advance session",
				zap.String("session_id", sessionID),
				zap.Error(err),
			)
			h.writeFrame(sock, &wsFrame{Type: "error", Error: "internal error"})
			continue
		}

		if reply.Session.Status == model.SessionCompleted {
			h.writeFrame(sock, &wsFrame{Type: "completed", Session: reply.Session})
			return
		}

		h.writeFrame(sock, &wsFrame{Type: "bot", Message: reply.Message, Options: reply.Options, Session: reply.Session})
	}
}

func (h *ChatWSHandler) pingLoop(sock *chatSocket, stop <-chan struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := sock.ping(); err != nil {
				return
			}
		}
	}
}

func (h *ChatWSHandler) writeFrame(sock *chatSocket, frame *wsFrame) {
	if err := sock.writeJSON(frame); err != nil {
		h.logger.Warn("websocket write failed", zap.Error(err))
	}
}

// abandonOnDisconnect marks the session abandoned when the socket drops while
// the conversation is still active. The request context is gone by now, so
// the update runs under its own deadline.
func (h *ChatWSHandler) abandonOnDisconnect(tenantID, sessionID string, cause error) {
	ctx, cancel := newDetachedContext()
	defer cancel()

	if err := h.service.Abandon(ctx, tenantID, sessionID, "websocket closed"); err != nil {
		h.logger.Warn("failed to abandon session on disconnect",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return
	}

	h.logger.Info("chat websocket disconnected",
		zap.String("session_id", sessionID),
		zap.String("tenant_id", tenantID),
		zap.NamedError("cause", cause),
	)
}
