package flow

import (
	"errors"
	"reflect"
	"testing"

	"github.com/capitalize-ai/funnel-platform/internal/model"
)

func TestLayout(t *testing.T) {
	f := testFlow()
	opts := LayoutOptions{BlockWidth: 100, BlockHeight: 50, GapX: 10, GapY: 20, Margin: 5}

	l, err := Layout(f, opts)
	if err != nil {
		t.Fatalf("Layout: %v", err)
	}

	// Widest row is QUALIFY with two blocks: 100 + 10 + 100 = 210.
	if l.Width != 220 {
		t.Errorf("expected width 220, got %d", l.Width)
	}
	// Three bands of 50 with two 20px gaps, plus margins.
	if l.Height != 200 {
		t.Errorf("expected height 200, got %d", l.Height)
	}

	if len(l.Blocks) != 4 {
		t.Fatalf("expected 4 placed blocks, got %d", len(l.Blocks))
	}
	if len(l.Stages) != 3 {
		t.Fatalf("expected 3 stage bands, got %d", len(l.Stages))
	}

	// Single-block rows are centered.
	welcome := l.Blocks["welcome"]
	if welcome.X != (220-100)/2 {
		t.Errorf("welcome not centered: %+v", welcome)
	}
	if welcome.Y != 5 {
		t.Errorf("welcome not at top margin: %+v", welcome)
	}

	// The two-block row fills the widest span.
	exp, goal := l.Blocks["experience"], l.Blocks["goal"]
	if exp.Y != goal.Y {
		t.Errorf("stage row not aligned: %+v vs %+v", exp, goal)
	}
	if goal.X != exp.X+100+10 {
		t.Errorf("row spacing wrong: %+v vs %+v", exp, goal)
	}

	// Stage bands descend in stage order.
	for i := 1; i < len(l.Stages); i++ {
		if l.Stages[i].Y <= l.Stages[i-1].Y {
			t.Errorf("stage bands not descending: %+v", l.Stages)
		}
	}

	// 5 option edges with a non-nil target: welcome has 2, experience 2, goal 1.
	if len(l.Edges) != 5 {
		t.Errorf("expected 5 edges, got %d", len(l.Edges))
	}
	for _, e := range l.Edges {
		from, to := l.Blocks[e.FromBlockID], l.Blocks[e.ToBlockID]
		if e.FromY != from.Y+from.Height || e.ToY != to.Y {
			t.Errorf("edge anchors wrong: %+v", e)
		}
		if e.FromX != from.X+from.Width/2 || e.ToX != to.X+to.Width/2 {
			t.Errorf("edge anchors not centered: %+v", e)
		}
	}
}

func TestLayout_Deterministic(t *testing.T) {
	f := testFlow()
	a, err := Layout(f, LayoutOptions{})
	if err != nil {
		t.Fatalf("Layout: %v", err)
	}
	b, err := Layout(f, LayoutOptions{})
	if err != nil {
		t.Fatalf("Layout: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("layout is not deterministic for the same flow and options")
	}
}

func TestLayout_ZeroOptionsUseDefaults(t *testing.T) {
	l, err := Layout(testFlow(), LayoutOptions{})
	if err != nil {
		t.Fatalf("Layout: %v", err)
	}
	d := DefaultLayoutOptions()
	if got := l.Blocks["welcome"].Width; got != d.BlockWidth {
		t.Errorf("expected default block width %d, got %d", d.BlockWidth, got)
	}
}

func TestLayout_EmptyFlow(t *testing.T) {
	if _, err := Layout(nil, LayoutOptions{}); !errors.Is(err, ErrEmptyFlow) {
		t.Errorf("expected ErrEmptyFlow, got %v", err)
	}
	if _, err := Layout(&model.FunnelFlow{}, LayoutOptions{}); !errors.Is(err, ErrEmptyFlow) {
		t.Errorf("expected ErrEmptyFlow, got %v", err)
	}
}
