package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/funnel-platform/internal/model"
	"github.com/capitalize-ai/funnel-platform/internal/store"
	"github.com/capitalize-ai/funnel-platform/pkg/logger"
)

// ResourceService handles the product and affiliate resource library.
type ResourceService struct {
	store  *store.Store
	logger *logger.Logger
}

// NewResourceService creates a new resource service.
func NewResourceService(st *store.Store, log *logger.Logger) *ResourceService {
	return &ResourceService{
		store:  st,
		logger: log,
	}
}

// Create adds a resource to the library.
func (s *ResourceService) Create(ctx context.Context, tenantID string, req *model.CreateResourceRequest) (*model.Resource, error) {
	now := time.Now().UTC()
	r := &model.Resource{
		ID:        uuid.Must(uuid.NewV7()).String(),
		TenantID:  tenantID,
		Name:      req.Name,
		Link:      req.Link,
		Type:      req.Type,
		Category:  req.Category,
		PromoCode: req.PromoCode,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.PutResource(ctx, r); err != nil {
		return nil, fmt.Errorf("failed to store resource: %w", err)
	}

	s.logger.Info("resource created",
		zap.String("resource_id", r.ID),
		zap.String("tenant_id", tenantID),
		zap.String("type", string(r.Type)),
	)

	return r, nil
}

// Get retrieves a resource by ID.
func (s *ResourceService) Get(ctx context.Context, tenantID, resourceID string) (*model.Resource, error) {
	r, err := s.store.GetResource(ctx, tenantID, resourceID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrResourceNotFound
	}
	return r, err
}

// List retrieves resources for a tenant, optionally filtered by type and
// category.
func (s *ResourceService) List(ctx context.Context, tenantID string, typ model.ResourceType, category model.ResourceCategory, limit, offset int) (*model.ListResourcesResponse, error) {
	all, err := s.store.ListResources(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	filtered := make([]model.Resource, 0, len(all))
	for _, r := range all {
		if typ != "" && r.Type != typ {
			continue
		}
		if category != "" && r.Category != category {
			continue
		}
		filtered = append(filtered, r)
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

	return &model.ListResourcesResponse{
		Resources: filtered[start:end],
		Total:     total,
		HasMore:   end < total,
	}, nil
}

// Update applies a partial update to a resource.
func (s *ResourceService) Update(ctx context.Context, tenantID, resourceID string, req *model.UpdateResourceRequest) (*model.Resource, error) {
	r, err := s.Get(ctx, tenantID, resourceID)
	if err != nil {
		return nil, err
	}

	if req.Name != "" {
		r.Name = req.Name
	}
	if req.Link != "" {
		r.Link = req.Link
	}
	if req.Type != "" {
		r.Type = req.Type
	}
	if req.Category != "" {
		r.Category = req.Category
	}
	if req.PromoCode != "" {
		r.PromoCode = req.PromoCode
	}
	r.UpdatedAt = time.Now().UTC()

	if err := s.store.PutResource(ctx, r); err != nil {
		return nil, fmt.Errorf("failed to store resource: %w", err)
	}
	return r, nil
}

// Delete removes a resource and detaches it from every funnel that
// references it. The dashboard used to filter arrays ad hoc; the server
// cascades so no funnel is left pointing at a dangling resource.
func (s *ResourceService) Delete(ctx context.Context, tenantID, resourceID string) error {
	if _, err := s.Get(ctx, tenantID, resourceID); err != nil {
		return err
	}

	funnels, err := s.store.ListFunnels(ctx, tenantID)
	if err != nil {
		return err
	}
	for _, f := range funnels {
		attached := false
		for _, id := range f.Resources {
			if id == resourceID {
				attached = true
				break
			}
		}
		if !attached {
			continue
		}
		if _, err := s.store.UpdateFunnel(ctx, tenantID, f.ID, func(f *model.Funnel) error {
			kept := f.Resources[:0]
			for _, id := range f.Resources {
				if id != resourceID {
					kept = append(kept, id)
				}
			}
			f.Resources = kept
			f.UpdatedAt = time.Now().UTC()
			return nil
		}); err != nil {
			return fmt.Errorf("failed to detach resource from funnel %s: %w", f.ID, err)
		}
	}

	if err := s.store.DeleteResource(ctx, tenantID, resourceID); err != nil {
		return err
	}

	s.logger.Info("resource deleted",
		zap.String("resource_id", resourceID),
		zap.String("tenant_id", tenantID),
	)
	return nil
}
