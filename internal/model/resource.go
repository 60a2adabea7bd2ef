package model

import (
	"time"
)

// ResourceType classifies where a resource's revenue goes.
type ResourceType string

const (
	ResourceTypeAffiliate  ResourceType = "AFFILIATE"
	ResourceTypeMyProducts ResourceType = "MY_PRODUCTS"
)

// ResourceCategory classifies how a resource is offered in a flow.
type ResourceCategory string

const (
	ResourceCategoryPaid      ResourceCategory = "PAID"
	ResourceCategoryFreeValue ResourceCategory = "FREE_VALUE"
)

// Resource is a product, affiliate link, or content item attachable to a
// funnel. Generated flows reference resources by name in offer blocks.
type Resource struct {
	ID        string           `json:"id"`
	TenantID  string           `json:"tenantId"`
	Name      string           `json:"name"`
	Link      string           `json:"link"`
	Type      ResourceType     `json:"type"`
	Category  ResourceCategory `json:"category"`
	PromoCode string           `json:"promoCode,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// CreateResourceRequest is the request to add a resource to the library.
type CreateResourceRequest struct {
	Name      string           `json:"name"`
	Link      string           `json:"link"`
	Type      ResourceType     `json:"type"`
	Category  ResourceCategory `json:"category"`
	PromoCode string           `json:"promoCode,omitempty"`
}

// UpdateResourceRequest is the request to update a resource. Zero-valued
// fields are left untouched.
type UpdateResourceRequest struct {
	Name      string           `json:"name,omitempty"`
	Link      string           `json:"link,omitempty"`
	Type      ResourceType     `json:"type,omitempty"`
	Category  ResourceCategory `json:"category,omitempty"`
	PromoCode string           `json:"promoCode,omitempty"`
}

// ListResourcesResponse is the response for listing resources.
type ListResourcesResponse struct {
	Resources []Resource `json:"resources"`
	Total     int        `json:"total"`
	HasMore   bool       `json:"hasMore"`
}
