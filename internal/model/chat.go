package model

import (
	"time"
)

// ChatRole identifies the sender of a chat message.
type ChatRole string

const (
	ChatRoleBot     ChatRole = "bot"
	ChatRoleVisitor ChatRole = "visitor"
	ChatRoleSystem  ChatRole = "system"
)

// SessionStatus tracks where a visitor conversation stands.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionAbandoned SessionStatus = "abandoned"
)

// ChatSession is one visitor's walk through a deployed funnel.
// Path records every block the conversation has visited, in order.
type ChatSession struct {
	ID             string        `json:"id"`
	TenantID       string        `json:"tenantId"`
	FunnelID       string        `json:"funnelId"`
	VisitorID      string        `json:"visitorId"`
	CurrentBlockID *string       `json:"currentBlockId,omitempty"`
	Path           []string      `json:"path"`
	Status         SessionStatus `json:"status"`
	StartedAt      time.Time     `json:"startedAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
	CompletedAt    *time.Time    `json:"completedAt,omitempty"`
}

// ChatMessage is a single message in a session transcript.
// Sequence is the JetStream sequence, populated on publish and read.
type ChatMessage struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	TenantID  string    `json:"tenantId"`
	Role      ChatRole  `json:"role"`
	Content   string    `json:"content"`
	BlockID   string    `json:"blockId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	Sequence  uint64    `json:"sequence,omitempty"`
}

// StartSessionRequest opens a session against a deployed funnel.
type StartSessionRequest struct {
	FunnelID  string `json:"funnelId"`
	VisitorID string `json:"visitorId,omitempty"`
}

// VisitorMessageRequest is a visitor's reply within a session.
type VisitorMessageRequest struct {
	Content string `json:"content"`
}

// BotReply is what the funnel engine answers with after each visitor turn:
// the bot message for the current block and the option texts to present.
type BotReply struct {
	Session *ChatSession `json:"session"`
	Message *ChatMessage `json:"message,omitempty"`
	Options []string     `json:"options,omitempty"`
}

// ListSessionsResponse is the response for listing chat sessions.
type ListSessionsResponse struct {
	Sessions []ChatSession `json:"sessions"`
	Total    int           `json:"total"`
	HasMore  bool          `json:"hasMore"`
}

// TraversedEdge is one option edge a session walked, for transcript
// rendering against the flow canvas.
type TraversedEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// SessionTranscriptResponse is a session with its full message history.
type SessionTranscriptResponse struct {
	Session   *ChatSession    `json:"session"`
	Messages  []ChatMessage   `json:"messages"`
	Traversed []TraversedEdge `json:"traversed"`
}

// ErrorEvent is the SSE error payload.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HeartbeatEvent keeps an SSE connection alive.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}
