package model

import (
	"time"
)

// EventType represents the type of session event.
type EventType string

const (
	EventTypeStarted   EventType = "started"
	EventTypeCompleted EventType = "completed"
	EventTypeAbandoned EventType = "abandoned"
	EventTypeError     EventType = "error"
)

// SessionEvent marks a state change in a chat session. Events share the
// JetStream subject space with messages so monitors see both in order.
type SessionEvent struct {
	ID        string            `json:"id"`
	SessionID string            `json:"sessionId"`
	TenantID  string            `json:"tenantId"`
	Type      EventType         `json:"type"`
	Reason    string            `json:"reason,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
	Sequence  uint64            `json:"sequence,omitempty"`
}
