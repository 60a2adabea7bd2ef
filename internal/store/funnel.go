package store

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/capitalize-ai/funnel-platform/internal/model"
)

const kindFunnel = "funnel"

// PutFunnel writes a funnel record.
func (s *Store) PutFunnel(ctx context.Context, f *model.Funnel) error {
	return s.putJSON(ctx, key(kindFunnel, f.TenantID, f.ID), f)
}

// GetFunnel reads one funnel for the tenant.
func (s *Store) GetFunnel(ctx context.Context, tenantID, id string) (*model.Funnel, error) {
	var f model.Funnel
	if err := s.getJSON(ctx, key(kindFunnel, tenantID, id), &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// ListFunnels returns every funnel for the tenant, newest first.
func (s *Store) ListFunnels(ctx context.Context, tenantID string) ([]model.Funnel, error) {
	var out []model.Funnel
	err := s.scanJSON(ctx, keyPrefix(kindFunnel, tenantID), func(val []byte) error {
		var f model.Funnel
		if err := json.Unmarshal(val, &f); err != nil {
			return err
		}
		out = append(out, f)
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

// DeleteFunnel removes a funnel record.
func (s *Store) DeleteFunnel(ctx context.Context, tenantID, id string) error {
	return s.deleteKey(ctx, key(kindFunnel, tenantID, id))
}

// DeleteFunnelIf deletes the funnel only when check passes, atomically with
// the read, so a concurrent deploy cannot race the precondition.
func (s *Store) DeleteFunnelIf(ctx context.Context, tenantID, id string, check func(*model.Funnel) error) error {
	var f model.Funnel
	return s.checkDeleteJSON(ctx, key(kindFunnel, tenantID, id), &f, func() error {
		return check(&f)
	})
}

// UpdateFunnel applies fn to the stored funnel inside one transaction and
// writes the result back. Returning an error from fn aborts the update.
func (s *Store) UpdateFunnel(ctx context.Context, tenantID, id string, fn func(*model.Funnel) error) (*model.Funnel, error) {
	var f model.Funnel
	err := s.updateJSON(ctx, key(kindFunnel, tenantID, id), &f, func() error {
		return fn(&f)
	})
	if err != nil {
		return nil, err
	}
	return &f, nil
}
