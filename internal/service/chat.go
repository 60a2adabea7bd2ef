package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/funnel-platform/internal/flow"
	"github.com/capitalize-ai/funnel-platform/internal/model"
	"github.com/capitalize-ai/funnel-platform/internal/store"
	"github.com/capitalize-ai/funnel-platform/pkg/logger"
	"github.com/capitalize-ai/funnel-platform/pkg/metrics"
)

// TranscriptLog is the slice of the stream manager the chat engine needs:
// append messages and events, replay a session. nats.StreamManager satisfies
// it.
type TranscriptLog interface {
	PublishMessage(ctx context.Context, msg *model.ChatMessage) (uint64, error)
	PublishEvent(ctx context.Context, event *model.SessionEvent) (uint64, error)
	GetMessages(ctx context.Context, tenantID, sessionID string, afterSequence uint64, limit int) ([]model.ChatMessage, uint64, bool, error)
}

// ChatService runs visitor conversations through deployed funnels and serves
// the live-chat monitoring screens.
type ChatService struct {
	store  *store.Store
	log    TranscriptLog
	logger *logger.Logger
}

// NewChatService creates a new chat service.
func NewChatService(st *store.Store, transcript TranscriptLog, log *logger.Logger) *ChatService {
	return &ChatService{
		store:  st,
		log:    transcript,
		logger: log,
	}
}

// StartSession opens a session against a deployed funnel and returns the
// start block's bot message.
func (s *ChatService) StartSession(ctx context.Context, tenantID string, req *model.StartSessionRequest) (*model.BotReply, error) {
	funnel, err := s.store.GetFunnel(ctx, tenantID, req.FunnelID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrFunnelNotFound
	}
	if err != nil {
		return nil, err
	}
	if !funnel.IsDeployed || funnel.Flow == nil {
		return nil, ErrFunnelNotDeployed
	}

	startBlock, ok := funnel.Flow.Blocks[funnel.Flow.StartBlockID]
	if !ok {
		return nil, fmt.Errorf("%w: start block missing", ErrInvalidFlow)
	}

	visitorID := req.VisitorID
	if visitorID == "" {
		visitorID = uuid.New().String()
	}

	now := time.Now().UTC()
	startID := funnel.Flow.StartBlockID
	session := &model.ChatSession{
		ID:             uuid.Must(uuid.NewV7()).String(),
		TenantID:       tenantID,
		FunnelID:       funnel.ID,
		VisitorID:      visitorID,
		CurrentBlockID: &startID,
		Path:           []string{startID},
		Status:         model.SessionActive,
		StartedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.store.PutSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	s.publishEvent(ctx, session, model.EventTypeStarted, "")
	botMsg := s.publishBot(ctx, session, startBlock)

	metrics.RecordSession(tenantID, string(model.SessionActive))
	s.logger.Info("chat session started",
		zap.String("session_id", session.ID),
		zap.String("funnel_id", funnel.ID),
		zap.String("tenant_id", tenantID),
	)

	return &model.BotReply{
		Session: session,
		Message: botMsg,
		Options: optionTexts(startBlock),
	}, nil
}

// Advance feeds a visitor reply into the session. A reply that matches one
// of the current block's options moves the session along that edge; a
// terminal option completes the session; anything else re-prompts with the
// same block.
func (s *ChatService) Advance(ctx context.Context, tenantID, sessionID, content string) (*model.BotReply, error) {
	session, err := s.store.GetSession(ctx, tenantID, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	if session.Status != model.SessionActive || session.CurrentBlockID == nil {
		return nil, ErrSessionNotActive
	}

	funnel, err := s.store.GetFunnel(ctx, tenantID, session.FunnelID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrFunnelNotFound
	}
	if err != nil {
		return nil, err
	}
	if funnel.Flow == nil {
		return nil, ErrFunnelNotDeployed
	}

	current, ok := funnel.Flow.Blocks[*session.CurrentBlockID]
	if !ok {
		// The flow was edited underneath a live session.
		return nil, fmt.Errorf("%w: current block missing", ErrInvalidFlow)
	}

	s.publishVisitor(ctx, session, content)

	idx, err := flow.MatchOption(current, content)
	if err != nil {
		// No match: repeat the prompt instead of guessing.
		botMsg := s.publishBot(ctx, session, current)
		return &model.BotReply{
			Session: session,
			Message: botMsg,
			Options: optionTexts(current),
		}, nil
	}

	chosen := current.Options[idx]
	if chosen.NextBlockID == nil {
		session, err = s.store.UpdateSession(ctx, tenantID, sessionID, func(sess *model.ChatSession) error {
			now := time.Now().UTC()
			sess.Status = model.SessionCompleted
			sess.CurrentBlockID = nil
			sess.CompletedAt = &now
			sess.UpdatedAt = now
			return nil
		})
		if err != nil {
			return nil, err
		}
		s.publishEvent(ctx, session, model.EventTypeCompleted, "")
		metrics.RecordSession(tenantID, string(model.SessionCompleted))
		return &model.BotReply{Session: session}, nil
	}

	nextID := *chosen.NextBlockID
	next, ok := funnel.Flow.Blocks[nextID]
	if !ok {
		return nil, fmt.Errorf("%w: option target missing", ErrInvalidFlow)
	}

	session, err = s.store.UpdateSession(ctx, tenantID, sessionID, func(sess *model.ChatSession) error {
		sess.CurrentBlockID = &nextID
		sess.Path = append(sess.Path, nextID)
		sess.UpdatedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}

	botMsg := s.publishBot(ctx, session, next)
	return &model.BotReply{
		Session: session,
		Message: botMsg,
		Options: optionTexts(next),
	}, nil
}

// Abandon marks an active session abandoned, e.g. when the visitor's
// websocket drops mid-flow. Completed sessions are left alone.
func (s *ChatService) Abandon(ctx context.Context, tenantID, sessionID, reason string) error {
	session, err := s.store.UpdateSession(ctx, tenantID, sessionID, func(sess *model.ChatSession) error {
		if sess.Status != model.SessionActive {
			return ErrSessionNotActive
		}
		sess.Status = model.SessionAbandoned
		sess.UpdatedAt = time.Now().UTC()
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return ErrSessionNotFound
	}
	if errors.Is(err, ErrSessionNotActive) {
		return nil
	}
	if err != nil {
		return err
	}

	s.publishEvent(ctx, session, model.EventTypeAbandoned, reason)
	metrics.RecordSession(tenantID, string(model.SessionAbandoned))
	return nil
}

// List retrieves sessions for the monitoring screen, optionally filtered by
// funnel and status.
func (s *ChatService) List(ctx context.Context, tenantID, funnelID string, status model.SessionStatus, limit, offset int) (*model.ListSessionsResponse, error) {
	all, err := s.store.ListSessions(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	filtered := make([]model.ChatSession, 0, len(all))
	for _, sess := range all {
		if funnelID != "" && sess.FunnelID != funnelID {
			continue
		}
		if status != "" && sess.Status != status {
			continue
		}
		filtered = append(filtered, sess)
	}

	total := len(filtered)
	start := offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	return &model.ListSessionsResponse{
		Sessions: filtered[start:end],
		Total:    total,
		HasMore:  end < total,
	}, nil
}

// Get retrieves a session without its transcript.
func (s *ChatService) Get(ctx context.Context, tenantID, sessionID string) (*model.ChatSession, error) {
	sess, err := s.store.GetSession(ctx, tenantID, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	return sess, err
}

// Transcript retrieves a session together with its full message history,
// replayed from the transcript log.
func (s *ChatService) Transcript(ctx context.Context, tenantID, sessionID string) (*model.SessionTranscriptResponse, error) {
	sess, err := s.Get(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}

	var messages []model.ChatMessage
	var after uint64
	for {
		batch, lastSeq, hasMore, err := s.log.GetMessages(ctx, tenantID, sessionID, after, 100)
		if err != nil {
			return nil, fmt.Errorf("failed to replay transcript: %w", err)
		}
		messages = append(messages, batch...)
		if !hasMore || lastSeq == 0 {
			break
		}
		after = lastSeq
	}

	if messages == nil {
		messages = []model.ChatMessage{}
	}
	return &model.SessionTranscriptResponse{
		Session:   sess,
		Messages:  messages,
		Traversed: s.traversedEdges(ctx, sess),
	}, nil
}

// traversedEdges maps the session's visited path onto the option edges still
// present in the funnel's flow. A missing or edited flow yields an empty set;
// the transcript itself is still served.
func (s *ChatService) traversedEdges(ctx context.Context, sess *model.ChatSession) []model.TraversedEdge {
	out := []model.TraversedEdge{}
	funnel, err := s.store.GetFunnel(ctx, sess.TenantID, sess.FunnelID)
	if err != nil || funnel.Flow == nil {
		return out
	}
	for _, e := range flow.Traversed(funnel.Flow, sess.Path) {
		out = append(out, model.TraversedEdge{From: e.From, To: e.To})
	}
	return out
}

// Replay exposes paged transcript replay for the SSE monitoring stream.
func (s *ChatService) Replay(ctx context.Context, tenantID, sessionID string, afterSequence uint64, limit int) ([]model.ChatMessage, uint64, bool, error) {
	return s.log.GetMessages(ctx, tenantID, sessionID, afterSequence, limit)
}

// publishBot appends the bot prompt for a block to the transcript log.
func (s *ChatService) publishBot(ctx context.Context, session *model.ChatSession, block model.Block) *model.ChatMessage {
	msg := &model.ChatMessage{
		ID:        uuid.Must(uuid.NewV7()).String(),
		SessionID: session.ID,
		TenantID:  session.TenantID,
		Role:      model.ChatRoleBot,
		Content:   BlockPrompt(block),
		BlockID:   block.ID,
		CreatedAt: time.Now().UTC(),
	}
	seq, err := s.log.PublishMessage(ctx, msg)
	if err != nil {
		s.logger.Error("failed to publish bot message",
			zap.String("session_id", session.ID),
			zap.Error(err),
		)
		return msg
	}
	msg.Sequence = seq
	metrics.RecordChatMessage(session.TenantID, string(model.ChatRoleBot))
	return msg
}

// publishVisitor appends a visitor reply to the transcript log.
func (s *ChatService) publishVisitor(ctx context.Context, session *model.ChatSession, content string) {
	msg := &model.ChatMessage{
		ID:        uuid.Must(uuid.NewV7()).String(),
		SessionID: session.ID,
		TenantID:  session.TenantID,
		Role:      model.ChatRoleVisitor,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.log.PublishMessage(ctx, msg); err != nil {
		s.logger.Error("failed to publish visitor message",
			zap.String("session_id", session.ID),
			zap.Error(err),
		)
		return
	}
	metrics.RecordChatMessage(session.TenantID, string(model.ChatRoleVisitor))
}

func (s *ChatService) publishEvent(ctx context.Context, session *model.ChatSession, typ model.EventType, reason string) {
	event := &model.SessionEvent{
		ID:        uuid.Must(uuid.NewV7()).String(),
		SessionID: session.ID,
		TenantID:  session.TenantID,
		Type:      typ,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.log.PublishEvent(ctx, event); err != nil {
		s.logger.Error("failed to publish session event",
			zap.String("session_id", session.ID),
			zap.String("type", string(typ)),
			zap.Error(err),
		)
	}
}

// BlockPrompt renders a block as the bot message visitors see: the message
// followed by numbered options.
func BlockPrompt(block model.Block) string {
	if len(block.Options) == 0 {
		return block.Message
	}
	var b strings.Builder
	b.WriteString(block.Message)
	b.WriteString("\n")
	for i, opt := range block.Options {
		fmt.Fprintf(&b, "\n%d. %s", i+1, opt.Text)
	}
	return b.String()
}

func optionTexts(block model.Block) []string {
	out := make([]string, len(block.Options))
	for i, opt := range block.Options {
		out[i] = opt.Text
	}
	return out
}
