package store

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/capitalize-ai/funnel-platform/internal/model"
)

const kindResource = "resource"

// PutResource writes a resource record.
func (s *Store) PutResource(ctx context.Context, r *model.Resource) error {
	return s.putJSON(ctx, key(kindResource, r.TenantID, r.ID), r)
}

// GetResource reads one resource for the tenant.
func (s *Store) GetResource(ctx context.Context, tenantID, id string) (*model.Resource, error) {
	var r model.Resource
	if err := s.getJSON(ctx, key(kindResource, tenantID, id), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// ListResources returns every resource for the tenant, newest first.
func (s *Store) ListResources(ctx context.Context, tenantID string) ([]model.Resource, error) {
	var out []model.Resource
	err := s.scanJSON(ctx, keyPrefix(kindResource, tenantID), func(val []byte) error {
		var r model.Resource
		if err := json.Unmarshal(val, &r); err != nil {
			return err
		}
		out = append(out, r)
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

// DeleteResource removes a resource record.
func (s *Store) DeleteResource(ctx context.Context, tenantID, id string) error {
	return s.deleteKey(ctx, key(kindResource, tenantID, id))
}
