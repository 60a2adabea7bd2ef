package model

import (
	"time"
)

// Member is a flat audience row: someone who joined the merchant's community,
// optionally attributed to the funnel that converted them.
type Member struct {
	ID       string    `json:"id"`
	TenantID string    `json:"tenantId"`
	Name     string    `json:"name"`
	Email    string    `json:"email,omitempty"`
	Source   string    `json:"source,omitempty"`
	FunnelID string    `json:"funnelId,omitempty"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Order is a flat sales row. Amounts are integer cents.
type Order struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenantId"`
	FunnelID    string    `json:"funnelId,omitempty"`
	ResourceID  string    `json:"resourceId,omitempty"`
	ProductName string    `json:"productName"`
	AmountCents int64     `json:"amountCents"`
	Currency    string    `json:"currency"`
	Source      string    `json:"source,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// CreateOrderRequest ingests a sales row.
type CreateOrderRequest struct {
	FunnelID    string `json:"funnelId,omitempty"`
	ResourceID  string `json:"resourceId,omitempty"`
	ProductName string `json:"productName"`
	AmountCents int64  `json:"amountCents"`
	Currency    string `json:"currency,omitempty"`
	Source      string `json:"source,omitempty"`
}

// CreateMemberRequest ingests an audience row.
type CreateMemberRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	Source   string `json:"source,omitempty"`
	FunnelID string `json:"funnelId,omitempty"`
}

// ListOrdersResponse is the response for listing orders.
type ListOrdersResponse struct {
	Orders  []Order `json:"orders"`
	Total   int     `json:"total"`
	HasMore bool    `json:"hasMore"`
}

// AnalyticsSummary is the dashboard's top-line card data.
type AnalyticsSummary struct {
	RevenueCents      int64   `json:"revenueCents"`
	Orders            int     `json:"orders"`
	Members           int     `json:"members"`
	ActiveFunnels     int     `json:"activeFunnels"`
	SessionsStarted   int     `json:"sessionsStarted"`
	SessionsCompleted int     `json:"sessionsCompleted"`
	ConversionRate    float64 `json:"conversionRate"`
}

// Interval is a time-bucketing granularity for series endpoints.
type Interval string

const (
	IntervalDay   Interval = "day"
	IntervalWeek  Interval = "week"
	IntervalMonth Interval = "month"
)

// SeriesPoint is one bucket of a revenue series. Empty buckets between the
// first and last sale are zero-filled so charts render gaps honestly.
type SeriesPoint struct {
	Start        time.Time `json:"start"`
	RevenueCents int64     `json:"revenueCents"`
	Orders       int       `json:"orders"`
}

// RevenueSeriesResponse is the bucketed revenue series.
type RevenueSeriesResponse struct {
	Interval Interval      `json:"interval"`
	Points   []SeriesPoint `json:"points"`
}

// MemberPoint is one bucket of the audience growth series. Total carries the
// running cumulative count.
type MemberPoint struct {
	Start  time.Time `json:"start"`
	Joined int       `json:"joined"`
	Total  int       `json:"total"`
}

// MemberSeriesResponse is the bucketed audience growth series.
type MemberSeriesResponse struct {
	Interval Interval      `json:"interval"`
	Points   []MemberPoint `json:"points"`
}

// FunnelPerformance is per-funnel conversion data for the analytics screen.
type FunnelPerformance struct {
	FunnelID          string  `json:"funnelId"`
	Name              string  `json:"name"`
	IsDeployed        bool    `json:"isDeployed"`
	SessionsStarted   int     `json:"sessionsStarted"`
	SessionsCompleted int     `json:"sessionsCompleted"`
	CompletionRate    float64 `json:"completionRate"`
	Orders            int     `json:"orders"`
	RevenueCents      int64   `json:"revenueCents"`
}

// FunnelPerformanceResponse lists funnels ranked by revenue.
type FunnelPerformanceResponse struct {
	Funnels []FunnelPerformance `json:"funnels"`
}
