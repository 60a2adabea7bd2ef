package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/funnel-platform/internal/flow"
	"github.com/capitalize-ai/funnel-platform/internal/model"
	"github.com/capitalize-ai/funnel-platform/internal/store"
	"github.com/capitalize-ai/funnel-platform/pkg/logger"
	"github.com/capitalize-ai/funnel-platform/pkg/metrics"
)

// FunnelService handles funnel CRUD and the deploy lifecycle.
type FunnelService struct {
	store  *store.Store
	logger *logger.Logger
}

// NewFunnelService creates a new funnel service.
func NewFunnelService(st *store.Store, log *logger.Logger) *FunnelService {
	return &FunnelService{
		store:  st,
		logger: log,
	}
}

// Create creates a new funnel. IDs are server-generated; the dashboard never
// supplies one. Attached resources must already exist.
func (s *FunnelService) Create(ctx context.Context, tenantID string, req *model.CreateFunnelRequest) (*model.Funnel, error) {
	if err := s.checkResources(ctx, tenantID, req.Resources); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	f := &model.Funnel{
		ID:               uuid.Must(uuid.NewV7()).String(),
		TenantID:         tenantID,
		Name:             req.Name,
		Resources:        append([]string(nil), req.Resources...),
		GenerationStatus: model.GenerationIdle,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if f.Resources == nil {
		f.Resources = []string{}
	}

	if err := s.store.PutFunnel(ctx, f); err != nil {
		return nil, fmt.Errorf("failed to store funnel: %w", err)
	}

	s.logger.Info("funnel created",
		zap.String("funnel_id", f.ID),
		zap.String("tenant_id", tenantID),
	)

	return f, nil
}

// Get retrieves a funnel by ID.
func (s *FunnelService) Get(ctx context.Context, tenantID, funnelID string) (*model.Funnel, error) {
	f, err := s.store.GetFunnel(ctx, tenantID, funnelID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrFunnelNotFound
	}
	return f, err
}

// List retrieves funnels for a tenant, newest first.
func (s *FunnelService) List(ctx context.Context, tenantID string, limit, offset int) (*model.ListFunnelsResponse, error) {
	funnels, err := s.store.ListFunnels(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	total := len(funnels)
	start := offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	page := funnels[start:end]
	if page == nil {
		page = []model.Funnel{}
	}

	return &model.ListFunnelsResponse{
		Funnels: page,
		Total:   total,
		HasMore: end < total,
	}, nil
}

// Update applies a partial update. A non-nil flow replaces the whole graph
// and is normalized and validated first; the canvas editor saves whole-flow
// updates.
func (s *FunnelService) Update(ctx context.Context, tenantID, funnelID string, req *model.UpdateFunnelRequest) (*model.Funnel, error) {
	if req.Flow != nil {
		if err := flow.Normalize(req.Flow); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidFlow, err)
		}
		if res := flow.Validate(req.Flow); !res.Valid() {
			return nil, fmt.Errorf("%w: %s", ErrInvalidFlow, strings.Join(res.Errors, "; "))
		}
	}
	if req.Resources != nil {
		if err := s.checkResources(ctx, tenantID, req.Resources); err != nil {
			return nil, err
		}
	}

	f, err := s.store.UpdateFunnel(ctx, tenantID, funnelID, func(f *model.Funnel) error {
		if req.Name != "" {
			f.Name = req.Name
		}
		if req.Resources != nil {
			f.Resources = append([]string(nil), req.Resources...)
		}
		if req.Flow != nil {
			f.Flow = req.Flow
		}
		f.UpdatedAt = time.Now().UTC()
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrFunnelNotFound
	}
	return f, err
}

// Delete removes a funnel. A deployed funnel cannot be deleted; the check and
// the delete happen in one store transaction.
func (s *FunnelService) Delete(ctx context.Context, tenantID, funnelID string) error {
	err := s.store.DeleteFunnelIf(ctx, tenantID, funnelID, func(f *model.Funnel) error {
		if f.IsDeployed {
			return ErrFunnelDeployed
		}
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return ErrFunnelNotFound
	}
	return err
}

// Deploy makes a funnel live. The flow must exist and validate. At most one
// funnel per tenant is deployed: any other live funnel is undeployed first.
func (s *FunnelService) Deploy(ctx context.Context, tenantID, funnelID string) (*model.Funnel, error) {
	target, err := s.Get(ctx, tenantID, funnelID)
	if err != nil {
		return nil, err
	}
	if target.Flow == nil {
		return nil, ErrNoFlow
	}
	if res := flow.Validate(target.Flow); !res.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidFlow, strings.Join(res.Errors, "; "))
	}

	others, err := s.store.ListFunnels(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	for _, other := range others {
		if other.ID == funnelID || !other.IsDeployed {
			continue
		}
		if _, err := s.store.UpdateFunnel(ctx, tenantID, other.ID, func(f *model.Funnel) error {
			f.IsDeployed = false
			f.UpdatedAt = time.Now().UTC()
			return nil
		}); err != nil {
			return nil, fmt.Errorf("failed to undeploy funnel %s: %w", other.ID, err)
		}
		s.logger.Info("funnel undeployed by new deploy",
			zap.String("funnel_id", other.ID),
			zap.String("tenant_id", tenantID),
		)
	}

	f, err := s.store.UpdateFunnel(ctx, tenantID, funnelID, func(f *model.Funnel) error {
		f.IsDeployed = true
		f.WasEverDeployed = true
		f.UpdatedAt = time.Now().UTC()
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrFunnelNotFound
	}
	if err != nil {
		return nil, err
	}

	metrics.RecordDeploy(tenantID, "deploy")
	s.logger.Info("funnel deployed",
		zap.String("funnel_id", funnelID),
		zap.String("tenant_id", tenantID),
	)

	return f, nil
}

// Undeploy takes a funnel offline. WasEverDeployed stays latched.
func (s *FunnelService) Undeploy(ctx context.Context, tenantID, funnelID string) (*model.Funnel, error) {
	f, err := s.store.UpdateFunnel(ctx, tenantID, funnelID, func(f *model.Funnel) error {
		f.IsDeployed = false
		f.UpdatedAt = time.Now().UTC()
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrFunnelNotFound
	}
	if err != nil {
		return nil, err
	}

	metrics.RecordDeploy(tenantID, "undeploy")
	return f, nil
}

// AttachResource adds an existing resource to a funnel. Attaching twice is a
// no-op.
func (s *FunnelService) AttachResource(ctx context.Context, tenantID, funnelID, resourceID string) (*model.Funnel, error) {
	if _, err := s.store.GetResource(ctx, tenantID, resourceID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrResourceNotFound
		}
		return nil, err
	}

	f, err := s.store.UpdateFunnel(ctx, tenantID, funnelID, func(f *model.Funnel) error {
		for _, id := range f.Resources {
			if id == resourceID {
				return nil
			}
		}
		f.Resources = append(f.Resources, resourceID)
		f.UpdatedAt = time.Now().UTC()
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrFunnelNotFound
	}
	return f, err
}

// DetachResource removes a resource reference from a funnel.
func (s *FunnelService) DetachResource(ctx context.Context, tenantID, funnelID, resourceID string) (*model.Funnel, error) {
	f, err := s.store.UpdateFunnel(ctx, tenantID, funnelID, func(f *model.Funnel) error {
		kept := f.Resources[:0]
		for _, id := range f.Resources {
			if id != resourceID {
				kept = append(kept, id)
			}
		}
		f.Resources = kept
		f.UpdatedAt = time.Now().UTC()
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrFunnelNotFound
	}
	return f, err
}

// Layout computes the canvas geometry for a funnel's flow.
func (s *FunnelService) Layout(ctx context.Context, tenantID, funnelID string, opts flow.LayoutOptions) (*flow.CanvasLayout, error) {
	f, err := s.Get(ctx, tenantID, funnelID)
	if err != nil {
		return nil, err
	}
	if f.Flow == nil {
		return nil, ErrNoFlow
	}
	return flow.Layout(f.Flow, opts)
}

// SelectedPath computes the highlighted path for a selected block.
func (s *FunnelService) SelectedPath(ctx context.Context, tenantID, funnelID, blockID string) ([]string, error) {
	f, err := s.Get(ctx, tenantID, funnelID)
	if err != nil {
		return nil, err
	}
	if f.Flow == nil {
		return nil, ErrNoFlow
	}
	return flow.SelectedPath(f.Flow, blockID)
}

// checkResources verifies every referenced resource exists for the tenant.
func (s *FunnelService) checkResources(ctx context.Context, tenantID string, ids []string) error {
	for _, id := range ids {
		if _, err := s.store.GetResource(ctx, tenantID, id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrResourceNotFound
			}
			return err
		}
	}
	return nil
}
