// Package model defines data structures for the funnel platform.
//
// JSON field names follow the dashboard's existing wire contract (camelCase,
// e.g. startBlockId), which the canvas editor reads and writes field by field.
package model

import (
	"time"
)

// GenerationStatus tracks the lifecycle of a funnel's AI flow generation.
type GenerationStatus string

const (
	GenerationIdle       GenerationStatus = "idle"
	GenerationInProgress GenerationStatus = "generating"
	GenerationCompleted  GenerationStatus = "completed"
	GenerationFailed     GenerationStatus = "failed"
)

// Funnel represents one configured chat flow a merchant presents to end users.
type Funnel struct {
	ID               string           `json:"id"`
	TenantID         string           `json:"tenantId"`
	Name             string           `json:"name"`
	IsDeployed       bool             `json:"isDeployed"`
	WasEverDeployed  bool             `json:"wasEverDeployed"`
	Resources        []string         `json:"resources"`
	Flow             *FunnelFlow      `json:"flow,omitempty"`
	GenerationStatus GenerationStatus `json:"generationStatus"`
	GenerationError  string           `json:"generationError,omitempty"`
	LastGeneratedAt  *time.Time       `json:"lastGeneratedAt,omitempty"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// FunnelFlow is the directed graph of chat blocks rendered on the canvas.
// Stage membership groups blocks for layout; option edges drive traversal.
type FunnelFlow struct {
	StartBlockID string           `json:"startBlockId"`
	Stages       []Stage          `json:"stages"`
	Blocks       map[string]Block `json:"blocks"`
}

// Stage is a named grouping of blocks (WELCOME, OFFER, ...) used for canvas
// layout and conversation semantics. Stage order is layout order.
type Stage struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Explanation string   `json:"explanation,omitempty"`
	BlockIDs    []string `json:"blockIds"`
}

// Block is one bot message step in a funnel flow.
type Block struct {
	ID           string        `json:"id"`
	Message      string        `json:"message"`
	Options      []BlockOption `json:"options"`
	ResourceName string        `json:"resourceName,omitempty"`
}

// BlockOption is an outgoing edge from a block. A nil NextBlockID marks a
// terminal option: picking it completes the conversation.
type BlockOption struct {
	Text        string  `json:"text"`
	NextBlockID *string `json:"nextBlockId"`
}

// CreateFunnelRequest is the request to create a new funnel.
type CreateFunnelRequest struct {
	Name      string   `json:"name"`
	Resources []string `json:"resources,omitempty"`
}

// UpdateFunnelRequest is the request to update a funnel. Zero-valued fields
// are left untouched; a non-nil Flow replaces the whole graph (the canvas
// editor saves whole-flow updates).
type UpdateFunnelRequest struct {
	Name      string      `json:"name,omitempty"`
	Resources []string    `json:"resources,omitempty"`
	Flow      *FunnelFlow `json:"flow,omitempty"`
}

// ListFunnelsResponse is the response for listing funnels.
type ListFunnelsResponse struct {
	Funnels []Funnel `json:"funnels"`
	Total   int      `json:"total"`
	HasMore bool     `json:"hasMore"`
}

// GenerateFunnelRequest is the request body for POST /api/v1/generate-funnel.
type GenerateFunnelRequest struct {
	FunnelID string `json:"funnelId"`
}

// AttachResourceRequest attaches an existing resource to a funnel.
type AttachResourceRequest struct {
	ResourceID string `json:"resourceId"`
}
