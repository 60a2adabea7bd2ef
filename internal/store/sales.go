package store

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/capitalize-ai/funnel-platform/internal/model"
)

const (
	kindOrder  = "order"
	kindMember = "member"
)

// PutOrder writes a sales row.
func (s *Store) PutOrder(ctx context.Context, o *model.Order) error {
	return s.putJSON(ctx, key(kindOrder, o.TenantID, o.ID), o)
}

// ListOrders returns every sales row for the tenant, newest first.
func (s *Store) ListOrders(ctx context.Context, tenantID string) ([]model.Order, error) {
	var out []model.Order
	err := s.scanJSON(ctx, keyPrefix(kindOrder, tenantID), func(val []byte) error {
		var o model.Order
		if err := json.Unmarshal(val, &o); err != nil {
			return err
		}
		out = append(out, o)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// PutMember writes an audience row.
func (s *Store) PutMember(ctx context.Context, m *model.Member) error {
	return s.putJSON(ctx, key(kindMember, m.TenantID, m.ID), m)
}

// ListMembers returns every audience row for the tenant, oldest first.
// Growth series want join order.
func (s *Store) ListMembers(ctx context.Context, tenantID string) ([]model.Member, error) {
	var out []model.Member
	err := s.scanJSON(ctx, keyPrefix(kindMember, tenantID), func(val []byte) error {
		var m model.Member
		if err := json.Unmarshal(val, &m); err != nil {
			return err
		}
		out = append(out, m)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out, nil
}
