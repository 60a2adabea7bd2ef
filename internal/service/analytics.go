package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/capitalize-ai/funnel-platform/internal/model"
	"github.com/capitalize-ai/funnel-platform/internal/store"
	"github.com/capitalize-ai/funnel-platform/pkg/logger"
)

// AnalyticsService serves the dashboard's analytics screens: flat row
// ingestion plus filter/sort/reduce aggregation over stored rows.
type AnalyticsService struct {
	store  *store.Store
	logger *logger.Logger
}

// NewAnalyticsService creates a new analytics service.
func NewAnalyticsService(st *store.Store, log *logger.Logger) *AnalyticsService {
	return &AnalyticsService{
		store:  st,
		logger: log,
	}
}

// CreateOrder ingests a sales row.
func (s *AnalyticsService) CreateOrder(ctx context.Context, tenantID string, req *model.CreateOrderRequest) (*model.Order, error) {
	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}
	o := &model.Order{
		ID:          uuid.Must(uuid.NewV7()).String(),
		TenantID:    tenantID,
		FunnelID:    req.FunnelID,
		ResourceID:  req.ResourceID,
		ProductName: req.ProductName,
		AmountCents: req.AmountCents,
		Currency:    currency,
		Source:      req.Source,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.PutOrder(ctx, o); err != nil {
		return nil, fmt.Errorf("failed to store order: %w", err)
	}
	return o, nil
}

// CreateMember ingests an audience row.
func (s *AnalyticsService) CreateMember(ctx context.Context, tenantID string, req *model.CreateMemberRequest) (*model.Member, error) {
	m := &model.Member{
		ID:       uuid.Must(uuid.NewV7()).String(),
		TenantID: tenantID,
		Name:     req.Name,
		Email:    req.Email,
		Source:   req.Source,
		FunnelID: req.FunnelID,
		JoinedAt: time.Now().UTC(),
	}
	if err := s.store.PutMember(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to store member: %w", err)
	}
	return m, nil
}

// ListOrders returns sales rows, newest first, filtered by time range and
// funnel.
func (s *AnalyticsService) ListOrders(ctx context.Context, tenantID string, from, to time.Time, funnelID string, limit, offset int) (*model.ListOrdersResponse, error) {
	all, err := s.store.ListOrders(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	filtered := make([]model.Order, 0, len(all))
	for _, o := range all {
		if !from.IsZero() && o.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !o.CreatedAt.Before(to) {
			continue
		}
		if funnelID != "" && o.FunnelID != funnelID {
			continue
		}
		filtered = append(filtered, o)
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

	return &model.ListOrdersResponse{
		Orders:  filtered[start:end],
		Total:   total,
		HasMore: end < total,
	}, nil
}

// Summary computes the dashboard's top-line card data.
func (s *AnalyticsService) Summary(ctx context.Context, tenantID string) (*model.AnalyticsSummary, error) {
	orders, err := s.store.ListOrders(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	members, err := s.store.ListMembers(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	funnels, err := s.store.ListFunnels(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	sessions, err := s.store.ListSessions(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	sum := &model.AnalyticsSummary{
		Orders:  len(orders),
		Members: len(members),
	}
	for _, o := range orders {
		sum.RevenueCents += o.AmountCents
	}
	for _, f := range funnels {
		if f.IsDeployed {
			sum.ActiveFunnels++
		}
	}
	sum.SessionsStarted = len(sessions)
	for _, sess := range sessions {
		if sess.Status == model.SessionCompleted {
			sum.SessionsCompleted++
		}
	}
	if sum.SessionsStarted > 0 {
		sum.ConversionRate = float64(sum.SessionsCompleted) / float64(sum.SessionsStarted)
	}

	return sum, nil
}

// RevenueSeries buckets revenue and order counts by interval. Buckets
// between the first and last point are zero-filled so charts render gaps
// honestly.
func (s *AnalyticsService) RevenueSeries(ctx context.Context, tenantID string, interval model.Interval, from, to time.Time) (*model.RevenueSeriesResponse, error) {
	orders, err := s.store.ListOrders(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	buckets := make(map[time.Time]*model.SeriesPoint)
	var first, last time.Time
	for _, o := range orders {
		if !from.IsZero() && o.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !o.CreatedAt.Before(to) {
			continue
		}
		start := bucketStart(o.CreatedAt, interval)
		p, ok := buckets[start]
		if !ok {
			p = &model.SeriesPoint{Start: start}
			buckets[start] = p
		}
		p.RevenueCents += o.AmountCents
		p.Orders++
		if first.IsZero() || start.Before(first) {
			first = start
		}
		if start.After(last) {
			last = start
		}
	}

	resp := &model.RevenueSeriesResponse{Interval: interval, Points: []model.SeriesPoint{}}
	if len(buckets) == 0 {
		return resp, nil
	}
	for cur := first; !cur.After(last); cur = nextBucket(cur, interval) {
		if p, ok := buckets[cur]; ok {
			resp.Points = append(resp.Points, *p)
		} else {
			resp.Points = append(resp.Points, model.SeriesPoint{Start: cur})
		}
	}
	return resp, nil
}

// MemberSeries buckets audience growth by interval, with a running
// cumulative total.
func (s *AnalyticsService) MemberSeries(ctx context.Context, tenantID string, interval model.Interval) (*model.MemberSeriesResponse, error) {
	members, err := s.store.ListMembers(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	buckets := make(map[time.Time]int)
	var first, last time.Time
	for _, m := range members {
		start := bucketStart(m.JoinedAt, interval)
		buckets[start]++
		if first.IsZero() || start.Before(first) {
			first = start
		}
		if start.After(last) {
			last = start
		}
	}

	resp := &model.MemberSeriesResponse{Interval: interval, Points: []model.MemberPoint{}}
	if len(buckets) == 0 {
		return resp, nil
	}
	total := 0
	for cur := first; !cur.After(last); cur = nextBucket(cur, interval) {
		joined := buckets[cur]
		total += joined
		resp.Points = append(resp.Points, model.MemberPoint{Start: cur, Joined: joined, Total: total})
	}
	return resp, nil
}

// FunnelPerformance computes per-funnel conversion and revenue, ranked by
// revenue.
func (s *AnalyticsService) FunnelPerformance(ctx context.Context, tenantID string) (*model.FunnelPerformanceResponse, error) {
	funnels, err := s.store.ListFunnels(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	sessions, err := s.store.ListSessions(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	orders, err := s.store.ListOrders(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*model.FunnelPerformance, len(funnels))
	out := make([]model.FunnelPerformance, 0, len(funnels))
	for _, f := range funnels {
		byID[f.ID] = &model.FunnelPerformance{
			FunnelID:   f.ID,
			Name:       f.Name,
			IsDeployed: f.IsDeployed,
		}
	}

	for _, sess := range sessions {
		p, ok := byID[sess.FunnelID]
		if !ok {
			continue
		}
		p.SessionsStarted++
		if sess.Status == model.SessionCompleted {
			p.SessionsCompleted++
		}
	}
	for _, o := range orders {
		p, ok := byID[o.FunnelID]
		if !ok {
			continue
		}
		p.Orders++
		p.RevenueCents += o.AmountCents
	}

	for _, f := range funnels {
		p := byID[f.ID]
		if p.SessionsStarted > 0 {
			p.CompletionRate = float64(p.SessionsCompleted) / float64(p.SessionsStarted)
		}
		out = append(out, *p)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RevenueCents > out[j].RevenueCents
	})

	return &model.FunnelPerformanceResponse{Funnels: out}, nil
}

// bucketStart truncates a timestamp to its bucket in UTC. Weeks start on
// Monday.
func bucketStart(t time.Time, interval model.Interval) time.Time {
	t = t.UTC()
	switch interval {
	case model.IntervalWeek:
		day := t.Truncate(24 * time.Hour)
		weekday := int(day.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		return day.AddDate(0, 0, -(weekday - 1))
	case model.IntervalMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return t.Truncate(24 * time.Hour)
	}
}

func nextBucket(t time.Time, interval model.Interval) time.Time {
	switch interval {
	case model.IntervalWeek:
		return t.AddDate(0, 0, 7)
	case model.IntervalMonth:
		return t.AddDate(0, 1, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}
