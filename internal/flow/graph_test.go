package flow

import (
	"strings"
	"testing"

	"github.com/capitalize-ai/funnel-platform/internal/model"
)

func next(id string) *string {
	return &id
}

// testFlow builds a small well-formed funnel:
//
//	WELCOME:  welcome
//	QUALIFY:  experience, goal
//	OFFER:    offer (terminal)
func testFlow() *model.FunnelFlow {
	return &model.FunnelFlow{
		StartBlockID: "welcome",
		Stages: []model.Stage{
			{ID: "stage-1", Name: "WELCOME", BlockIDs: []string{"welcome"}},
			{ID: "stage-2", Name: "QUALIFY", BlockIDs: []string{"experience", "goal"}},
			{ID: "stage-3", Name: "OFFER", BlockIDs: []string{"offer"}},
		},
		Blocks: map[string]model.Block{
			"welcome": {ID: "welcome", Message: "Welcome! What brings you here?", Options: []model.BlockOption{
				{Text: "I want to grow", NextBlockID: next("experience")},
				{Text: "Just looking", NextBlockID: next("goal")},
			}},
			"experience": {ID: "experience", Message: "How experienced are you?", Options: []model.BlockOption{
				{Text: "Beginner", NextBlockID: next("offer")},
				{Text: "Advanced", NextBlockID: next("offer")},
			}},
			"goal": {ID: "goal", Message: "What is your goal?", Options: []model.BlockOption{
				{Text: "Passive income", NextBlockID: next("offer")},
			}},
			"offer": {ID: "offer", Message: "Here is the deal for you.", Options: []model.BlockOption{
				{Text: "Claim it", NextBlockID: nil},
			}},
		},
	}
}

func TestValidate_CleanFlow(t *testing.T) {
	res := Validate(testFlow())
	if !res.Valid() {
		t.Fatalf("expected valid flow, got errors: %v", res.Errors)
	}
	if len(res.OrphanBlockIDs) != 0 {
		t.Errorf("expected no orphans, got %v", res.OrphanBlockIDs)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(f *model.FunnelFlow)
		wantErr string
	}{
		{
			name:    "missing start block",
			mutate:  func(f *model.FunnelFlow) { f.StartBlockID = "nowhere" },
			wantErr: `start block "nowhere" does not exist`,
		},
		{
			name:    "empty start block",
			mutate:  func(f *model.FunnelFlow) { f.StartBlockID = "" },
			wantErr: "startBlockId is empty",
		},
		{
			name: "option points at unknown block",
			mutate: func(f *model.FunnelFlow) {
				b := f.Blocks["goal"]
				b.Options = append(b.Options, model.BlockOption{Text: "Elsewhere", NextBlockID: next("ghost")})
				f.Blocks["goal"] = b
			},
			wantErr: `unknown block "ghost"`,
		},
		{
			name: "block in no stage",
			mutate: func(f *model.FunnelFlow) {
				f.Stages[1].BlockIDs = []string{"experience"} // drop goal
			},
			wantErr: `block "goal" is not assigned to any stage`,
		},
		{
			name: "block in two stages",
			mutate: func(f *model.FunnelFlow) {
				f.Stages[2].BlockIDs = append(f.Stages[2].BlockIDs, "goal")
			},
			wantErr: `block "goal" is assigned to 2 stages`,
		},
		{
			name: "stage lists unknown block",
			mutate: func(f *model.FunnelFlow) {
				f.Stages[0].BlockIDs = append(f.Stages[0].BlockIDs, "ghost")
			},
			wantErr: `stage "stage-1" lists unknown block "ghost"`,
		},
		{
			name: "duplicate stage id",
			mutate: func(f *model.FunnelFlow) {
				f.Stages[2].ID = "stage-1"
			},
			wantErr: `duplicate stage id "stage-1"`,
		},
		{
			name: "block key mismatch",
			mutate: func(f *model.FunnelFlow) {
				b := f.Blocks["offer"]
				b.ID = "deal"
				f.Blocks["offer"] = b
			},
			wantErr: `block key "offer" does not match block id "deal"`,
		},
		{
			name: "empty option text",
			mutate: func(f *model.FunnelFlow) {
				b := f.Blocks["welcome"]
				b.Options[0].Text = ""
				f.Blocks["welcome"] = b
			},
			wantErr: `block "welcome" option 1 has empty text`,
		},
		{
			name: "cycle",
			mutate: func(f *model.FunnelFlow) {
				b := f.Blocks["offer"]
				b.Options[0].NextBlockID = next("welcome")
				f.Blocks["offer"] = b
			},
			wantErr: "cycle detected",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := testFlow()
			tt.mutate(f)
			res := Validate(f)
			if res.Valid() {
				t.Fatalf("expected errors, got valid flow")
			}
			if !containsSubstring(res.Errors, tt.wantErr) {
				t.Errorf("errors %v do not mention %q", res.Errors, tt.wantErr)
			}
		})
	}
}

func TestValidate_NilAndEmpty(t *testing.T) {
	if res := Validate(nil); res.Valid() {
		t.Error("nil flow should not validate")
	}
	if res := Validate(&model.FunnelFlow{StartBlockID: "a"}); res.Valid() {
		t.Error("flow without blocks should not validate")
	}
}

func TestValidate_OrphansAreNotErrors(t *testing.T) {
	f := testFlow()
	f.Blocks["island"] = model.Block{ID: "island", Message: "Nobody links here.", Options: []model.BlockOption{
		{Text: "Ok", NextBlockID: nil},
	}}
	f.Stages[2].BlockIDs = append(f.Stages[2].BlockIDs, "island")

	res := Validate(f)
	if !res.Valid() {
		t.Fatalf("orphan should not invalidate flow, got errors: %v", res.Errors)
	}
	if len(res.OrphanBlockIDs) != 1 || res.OrphanBlockIDs[0] != "island" {
		t.Errorf("expected orphan [island], got %v", res.OrphanBlockIDs)
	}
}

func TestNormalize(t *testing.T) {
	f := &model.FunnelFlow{
		StartBlockID: "  start  ",
		Stages: []model.Stage{
			{Name: "  WELCOME "},
		},
		Blocks: map[string]model.Block{
			"start": {Message: "  hi  ", Options: []model.BlockOption{
				{Text: "  Go  ", NextBlockID: nil},
				{Text: "   ", NextBlockID: next("start")},
			}},
		},
	}

	if err := Normalize(f); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if f.StartBlockID != "start" {
		t.Errorf("start not trimmed: %q", f.StartBlockID)
	}
	b := f.Blocks["start"]
	if b.ID != "start" {
		t.Errorf("block id not filled from key: %q", b.ID)
	}
	if b.Message != "hi" {
		t.Errorf("message not trimmed: %q", b.Message)
	}
	if len(b.Options) != 1 || b.Options[0].Text != "Go" {
		t.Errorf("blank option not dropped: %+v", b.Options)
	}
	if f.Stages[0].ID != "stage-1" {
		t.Errorf("stage id not assigned: %q", f.Stages[0].ID)
	}
	if f.Stages[0].Name != "WELCOME" {
		t.Errorf("stage name not trimmed: %q", f.Stages[0].Name)
	}
}

func TestNormalize_Unrepairable(t *testing.T) {
	if err := Normalize(nil); err == nil {
		t.Error("expected error for nil flow")
	}
	if err := Normalize(&model.FunnelFlow{StartBlockID: "x"}); err == nil {
		t.Error("expected error for flow without blocks")
	}
	if err := Normalize(&model.FunnelFlow{
		Blocks: map[string]model.Block{"a": {}},
	}); err == nil {
		t.Error("expected error for flow without start block")
	}
}

func containsSubstring(haystack []string, needle string) bool {
	for _, s := range haystack {
		if strings.Contains(s, needle) {
			return true
		}
	}
	return false
}
