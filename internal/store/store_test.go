package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/funnel-platform/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestFunnelRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	f := &model.Funnel{
		ID:               "f1",
		TenantID:         "t1",
		Name:             "Onboarding",
		GenerationStatus: model.GenerationIdle,
		CreatedAt:        time.Now().UTC(),
	}
	require.NoError(t, s.PutFunnel(ctx, f))

	got, err := s.GetFunnel(ctx, "t1", "f1")
	require.NoError(t, err)
	assert.Equal(t, "Onboarding", got.Name)
	assert.Equal(t, model.GenerationIdle, got.GenerationStatus)
}

func TestGetFunnel_TenantIsolation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutFunnel(ctx, &model.Funnel{ID: "f1", TenantID: "t1", Name: "Mine"}))

	_, err := s.GetFunnel(ctx, "t2", "f1")
	assert.ErrorIs(t, err, ErrNotFound)

	funnels, err := s.ListFunnels(ctx, "t2")
	require.NoError(t, err)
	assert.Empty(t, funnels)
}

func TestListFunnels_NewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.PutFunnel(ctx, &model.Funnel{
			ID:        id,
			TenantID:  "t1",
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	funnels, err := s.ListFunnels(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, funnels, 3)
	assert.Equal(t, "c", funnels[0].ID)
	assert.Equal(t, "a", funnels[2].ID)
}

func TestUpdateFunnel_Atomic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutFunnel(ctx, &model.Funnel{
		ID:               "f1",
		TenantID:         "t1",
		GenerationStatus: model.GenerationIdle,
	}))

	// First update wins.
	updated, err := s.UpdateFunnel(ctx, "t1", "f1", func(f *model.Funnel) error {
		if f.GenerationStatus == model.GenerationInProgress {
			return errors.New("already generating")
		}
		f.GenerationStatus = model.GenerationInProgress
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, model.GenerationInProgress, updated.GenerationStatus)

	// Second attempt sees the committed state and aborts without writing.
	_, err = s.UpdateFunnel(ctx, "t1", "f1", func(f *model.Funnel) error {
		if f.GenerationStatus == model.GenerationInProgress {
			return errors.New("already generating")
		}
		f.GenerationStatus = model.GenerationInProgress
		return nil
	})
	assert.Error(t, err)
}

func TestUpdateFunnel_Missing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.UpdateFunnel(context.Background(), "t1", "nope", func(f *model.Funnel) error {
		return nil
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteFunnel(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutFunnel(ctx, &model.Funnel{ID: "f1", TenantID: "t1"}))
	require.NoError(t, s.DeleteFunnel(ctx, "t1", "f1"))

	_, err := s.GetFunnel(ctx, "t1", "f1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteFunnelIf(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutFunnel(ctx, &model.Funnel{ID: "f1", TenantID: "t1", IsDeployed: true}))

	errDeployed := errors.New("deployed")
	err := s.DeleteFunnelIf(ctx, "t1", "f1", func(f *model.Funnel) error {
		if f.IsDeployed {
			return errDeployed
		}
		return nil
	})
	assert.ErrorIs(t, err, errDeployed)

	// The failed precondition must not have deleted the record.
	_, err = s.GetFunnel(ctx, "t1", "f1")
	require.NoError(t, err)

	_, err = s.UpdateFunnel(ctx, "t1", "f1", func(f *model.Funnel) error {
		f.IsDeployed = false
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, s.DeleteFunnelIf(ctx, "t1", "f1", func(f *model.Funnel) error {
		if f.IsDeployed {
			return errDeployed
		}
		return nil
	}))
	_, err = s.GetFunnel(ctx, "t1", "f1")
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.DeleteFunnelIf(ctx, "t1", "missing", func(f *model.Funnel) error { return nil })
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConfig_GCRatioDefaultsWhenUnset(t *testing.T) {
	// A zero ratio would make every GC tick call RunValueLogGC(0), which
	// Badger rejects. The server config path must never produce that.
	assert.Equal(t, DefaultConfig().GCDiscardRatio, Config{GCInterval: time.Minute}.gcRatio())
	assert.Equal(t, 0.7, Config{GCDiscardRatio: 0.7}.gcRatio())
}

func TestOpen_GCWithZeroRatio(t *testing.T) {
	s, err := Open(Config{
		Path:       t.TempDir(),
		GCInterval: 10 * time.Millisecond,
	}, nil)
	require.NoError(t, err)

	// Let a few GC ticks fire with the defaulted ratio, then confirm the
	// runner shuts down cleanly.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, s.Close())
}

func TestResourceRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := &model.Resource{
		ID:       "r1",
		TenantID: "t1",
		Name:     "Trading Course",
		Type:     model.ResourceTypeMyProducts,
		Category: model.ResourceCategoryPaid,
	}
	require.NoError(t, s.PutResource(ctx, r))

	got, err := s.GetResource(ctx, "t1", "r1")
	require.NoError(t, err)
	assert.Equal(t, model.ResourceTypeMyProducts, got.Type)

	require.NoError(t, s.DeleteResource(ctx, "t1", "r1"))
	_, err = s.GetResource(ctx, "t1", "r1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionUpdate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	start := "welcome"
	require.NoError(t, s.PutSession(ctx, &model.ChatSession{
		ID:             "s1",
		TenantID:       "t1",
		FunnelID:       "f1",
		CurrentBlockID: &start,
		Path:           []string{"welcome"},
		Status:         model.SessionActive,
		StartedAt:      time.Now().UTC(),
	}))

	next := "offer"
	sess, err := s.UpdateSession(ctx, "t1", "s1", func(sess *model.ChatSession) error {
		sess.CurrentBlockID = &next
		sess.Path = append(sess.Path, next)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"welcome", "offer"}, sess.Path)

	got, err := s.GetSession(ctx, "t1", "s1")
	require.NoError(t, err)
	assert.Equal(t, "offer", *got.CurrentBlockID)
}

func TestOrdersAndMembers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.PutOrder(ctx, &model.Order{ID: "o1", TenantID: "t1", AmountCents: 4900, CreatedAt: base}))
	require.NoError(t, s.PutOrder(ctx, &model.Order{ID: "o2", TenantID: "t1", AmountCents: 990, CreatedAt: base.Add(time.Hour)}))

	orders, err := s.ListOrders(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "o2", orders[0].ID, "orders are newest first")

	require.NoError(t, s.PutMember(ctx, &model.Member{ID: "m2", TenantID: "t1", JoinedAt: base.Add(time.Hour)}))
	require.NoError(t, s.PutMember(ctx, &model.Member{ID: "m1", TenantID: "t1", JoinedAt: base}))

	members, err := s.ListMembers(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "m1", members[0].ID, "members are oldest first")
}

func TestPing(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Ping())
}
