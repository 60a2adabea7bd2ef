package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/funnel-platform/internal/flow"
	"github.com/capitalize-ai/funnel-platform/internal/model"
	"github.com/capitalize-ai/funnel-platform/internal/store"
	"github.com/capitalize-ai/funnel-platform/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("error")
	require.NoError(t, err)
	return log
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func blockTo(id string) *string {
	return &id
}

// validFlow is a minimal two-block flow that passes validation.
func validFlow() *model.FunnelFlow {
	return &model.FunnelFlow{
		StartBlockID: "welcome",
		Stages: []model.Stage{
			{ID: "stage-1", Name: "WELCOME", BlockIDs: []string{"welcome"}},
			{ID: "stage-2", Name: "OFFER", BlockIDs: []string{"offer"}},
		},
		Blocks: map[string]model.Block{
			"welcome": {ID: "welcome", Message: "Hey there!", Options: []model.BlockOption{
				{Text: "Show me", NextBlockID: blockTo("offer")},
			}},
			"offer": {ID: "offer", Message: "Here it is.", Options: []model.BlockOption{
				{Text: "Claim", NextBlockID: nil},
			}},
		},
	}
}

func TestFunnelCreateAndGet(t *testing.T) {
	st := newTestStore(t)
	svc := NewFunnelService(st, testLogger(t))
	ctx := context.Background()

	f, err := svc.Create(ctx, "t1", &model.CreateFunnelRequest{Name: "Onboarding"})
	require.NoError(t, err)
	assert.NotEmpty(t, f.ID)
	assert.Equal(t, model.GenerationIdle, f.GenerationStatus)
	assert.False(t, f.IsDeployed)
	assert.NotNil(t, f.Resources)

	got, err := svc.Get(ctx, "t1", f.ID)
	require.NoError(t, err)
	assert.Equal(t, "Onboarding", got.Name)

	_, err = svc.Get(ctx, "t2", f.ID)
	assert.ErrorIs(t, err, ErrFunnelNotFound)
}

func TestFunnelCreate_UnknownResource(t *testing.T) {
	st := newTestStore(t)
	svc := NewFunnelService(st, testLogger(t))

	_, err := svc.Create(context.Background(), "t1", &model.CreateFunnelRequest{
		Name:      "Onboarding",
		Resources: []string{"missing"},
	})
	assert.ErrorIs(t, err, ErrResourceNotFound)
}

func TestFunnelUpdate_RejectsInvalidFlow(t *testing.T) {
	st := newTestStore(t)
	svc := NewFunnelService(st, testLogger(t))
	ctx := context.Background()

	f, err := svc.Create(ctx, "t1", &model.CreateFunnelRequest{Name: "Onboarding"})
	require.NoError(t, err)

	bad := validFlow()
	bad.StartBlockID = "nowhere"
	_, err = svc.Update(ctx, "t1", f.ID, &model.UpdateFunnelRequest{Flow: bad})
	assert.ErrorIs(t, err, ErrInvalidFlow)

	_, err = svc.Update(ctx, "t1", f.ID, &model.UpdateFunnelRequest{Flow: validFlow()})
	require.NoError(t, err)
}

func TestFunnelDeploy_RequiresFlow(t *testing.T) {
	st := newTestStore(t)
	svc := NewFunnelService(st, testLogger(t))
	ctx := context.Background()

	f, err := svc.Create(ctx, "t1", &model.CreateFunnelRequest{Name: "Onboarding"})
	require.NoError(t, err)

	_, err = svc.Deploy(ctx, "t1", f.ID)
	assert.ErrorIs(t, err, ErrNoFlow)
}

func TestFunnelDeploy_SingleLiveFunnel(t *testing.T) {
	st := newTestStore(t)
	svc := NewFunnelService(st, testLogger(t))
	ctx := context.Background()

	a, err := svc.Create(ctx, "t1", &model.CreateFunnelRequest{Name: "A"})
	require.NoError(t, err)
	b, err := svc.Create(ctx, "t1", &model.CreateFunnelRequest{Name: "B"})
	require.NoError(t, err)

	_, err = svc.Update(ctx, "t1", a.ID, &model.UpdateFunnelRequest{Flow: validFlow()})
	require.NoError(t, err)
	_, err = svc.Update(ctx, "t1", b.ID, &model.UpdateFunnelRequest{Flow: validFlow()})
	require.NoError(t, err)

	deployed, err := svc.Deploy(ctx, "t1", a.ID)
	require.NoError(t, err)
	assert.True(t, deployed.IsDeployed)
	assert.True(t, deployed.WasEverDeployed)

	// Deploying B undeploys A.
	_, err = svc.Deploy(ctx, "t1", b.ID)
	require.NoError(t, err)

	a2, err := svc.Get(ctx, "t1", a.ID)
	require.NoError(t, err)
	assert.False(t, a2.IsDeployed)
	assert.True(t, a2.WasEverDeployed, "wasEverDeployed stays latched")
}

func TestFunnelDelete_DeployedIsRejected(t *testing.T) {
	st := newTestStore(t)
	svc := NewFunnelService(st, testLogger(t))
	ctx := context.Background()

	f, err := svc.Create(ctx, "t1", &model.CreateFunnelRequest{Name: "Onboarding"})
	require.NoError(t, err)
	_, err = svc.Update(ctx, "t1", f.ID, &model.UpdateFunnelRequest{Flow: validFlow()})
	require.NoError(t, err)
	_, err = svc.Deploy(ctx, "t1", f.ID)
	require.NoError(t, err)

	err = svc.Delete(ctx, "t1", f.ID)
	assert.ErrorIs(t, err, ErrFunnelDeployed)

	_, err = svc.Undeploy(ctx, "t1", f.ID)
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, "t1", f.ID))

	_, err = svc.Get(ctx, "t1", f.ID)
	assert.ErrorIs(t, err, ErrFunnelNotFound)
}

func TestFunnelAttachDetachResource(t *testing.T) {
	st := newTestStore(t)
	funnels := NewFunnelService(st, testLogger(t))
	resources := NewResourceService(st, testLogger(t))
	ctx := context.Background()

	f, err := funnels.Create(ctx, "t1", &model.CreateFunnelRequest{Name: "Onboarding"})
	require.NoError(t, err)

	_, err = funnels.AttachResource(ctx, "t1", f.ID, "missing")
	assert.ErrorIs(t, err, ErrResourceNotFound)

	r, err := resources.Create(ctx, "t1", &model.CreateResourceRequest{
		Name:     "Course",
		Link:     "https://example.com/course",
		Type:     model.ResourceTypeMyProducts,
		Category: model.ResourceCategoryPaid,
	})
	require.NoError(t, err)

	updated, err := funnels.AttachResource(ctx, "t1", f.ID, r.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{r.ID}, updated.Resources)

	// Attaching twice is a no-op.
	updated, err = funnels.AttachResource(ctx, "t1", f.ID, r.ID)
	require.NoError(t, err)
	assert.Len(t, updated.Resources, 1)

	updated, err = funnels.DetachResource(ctx, "t1", f.ID, r.ID)
	require.NoError(t, err)
	assert.Empty(t, updated.Resources)
}

func TestResourceDelete_CascadesDetach(t *testing.T) {
	st := newTestStore(t)
	funnels := NewFunnelService(st, testLogger(t))
	resources := NewResourceService(st, testLogger(t))
	ctx := context.Background()

	r, err := resources.Create(ctx, "t1", &model.CreateResourceRequest{
		Name:     "Course",
		Link:     "https://example.com/course",
		Type:     model.ResourceTypeAffiliate,
		Category: model.ResourceCategoryFreeValue,
	})
	require.NoError(t, err)

	f, err := funnels.Create(ctx, "t1", &model.CreateFunnelRequest{
		Name:      "Onboarding",
		Resources: []string{r.ID},
	})
	require.NoError(t, err)

	require.NoError(t, resources.Delete(ctx, "t1", r.ID))

	got, err := funnels.Get(ctx, "t1", f.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Resources, "deleting a resource detaches it everywhere")

	err = resources.Delete(ctx, "t1", r.ID)
	assert.ErrorIs(t, err, ErrResourceNotFound)
}

func TestResourceList_Filters(t *testing.T) {
	st := newTestStore(t)
	resources := NewResourceService(st, testLogger(t))
	ctx := context.Background()

	_, err := resources.Create(ctx, "t1", &model.CreateResourceRequest{
		Name: "Paid course", Link: "https://example.com/a",
		Type: model.ResourceTypeMyProducts, Category: model.ResourceCategoryPaid,
	})
	require.NoError(t, err)
	_, err = resources.Create(ctx, "t1", &model.CreateResourceRequest{
		Name: "Free guide", Link: "https://example.com/b",
		Type: model.ResourceTypeAffiliate, Category: model.ResourceCategoryFreeValue,
	})
	require.NoError(t, err)

	resp, err := resources.List(ctx, "t1", "", "", 20, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Total)

	resp, err = resources.List(ctx, "t1", model.ResourceTypeAffiliate, "", 20, 0)
	require.NoError(t, err)
	require.Equal(t, 1, resp.Total)
	assert.Equal(t, "Free guide", resp.Resources[0].Name)

	resp, err = resources.List(ctx, "t1", "", model.ResourceCategoryPaid, 20, 0)
	require.NoError(t, err)
	require.Equal(t, 1, resp.Total)
	assert.Equal(t, "Paid course", resp.Resources[0].Name)
}

func TestFunnelLayoutAndPath(t *testing.T) {
	st := newTestStore(t)
	svc := NewFunnelService(st, testLogger(t))
	ctx := context.Background()

	f, err := svc.Create(ctx, "t1", &model.CreateFunnelRequest{Name: "Onboarding"})
	require.NoError(t, err)

	_, err = svc.Layout(ctx, "t1", f.ID, flow.LayoutOptions{})
	assert.ErrorIs(t, err, ErrNoFlow)

	_, err = svc.Update(ctx, "t1", f.ID, &model.UpdateFunnelRequest{Flow: validFlow()})
	require.NoError(t, err)

	layout, err := svc.Layout(ctx, "t1", f.ID, flow.LayoutOptions{})
	require.NoError(t, err)
	assert.Len(t, layout.Blocks, 2)
	assert.Len(t, layout.Stages, 2)

	path, err := svc.SelectedPath(ctx, "t1", f.ID, "offer")
	require.NoError(t, err)
	assert.Equal(t, []string{"welcome", "offer"}, path)
}
