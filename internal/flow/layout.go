package flow

import (
	"errors"

	"github.com/capitalize-ai/funnel-platform/internal/model"
)

// ErrEmptyFlow is returned when layout is requested for a flow with nothing
// to place.
var ErrEmptyFlow = errors.New("flow has no stages to lay out")

// LayoutOptions are the pixel parameters of the canvas. Zero values are
// replaced with defaults, so the zero LayoutOptions is usable.
type LayoutOptions struct {
	BlockWidth  int `json:"blockWidth"`
	BlockHeight int `json:"blockHeight"`
	GapX        int `json:"gapX"`
	GapY        int `json:"gapY"`
	Margin      int `json:"margin"`
}

// DefaultLayoutOptions returns the canvas defaults the dashboard renders with.
func DefaultLayoutOptions() LayoutOptions {
	return LayoutOptions{
		BlockWidth:  280,
		BlockHeight: 120,
		GapX:        32,
		GapY:        96,
		Margin:      48,
	}
}

func (o LayoutOptions) withDefaults() LayoutOptions {
	d := DefaultLayoutOptions()
	if o.BlockWidth <= 0 {
		o.BlockWidth = d.BlockWidth
	}
	if o.BlockHeight <= 0 {
		o.BlockHeight = d.BlockHeight
	}
	if o.GapX <= 0 {
		o.GapX = d.GapX
	}
	if o.GapY <= 0 {
		o.GapY = d.GapY
	}
	if o.Margin <= 0 {
		o.Margin = d.Margin
	}
	return o
}

// Rect is a block's placement on the canvas.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// StageBand is the horizontal band a stage occupies.
type StageBand struct {
	StageID string `json:"stageId"`
	Name    string `json:"name"`
	Y       int    `json:"y"`
	Height  int    `json:"height"`
}

// LayoutEdge is a drawable connector between two placed blocks. Anchors are
// bottom-center of the source and top-center of the target.
type LayoutEdge struct {
	FromBlockID string `json:"fromBlockId"`
	ToBlockID   string `json:"toBlockId"`
	FromX       int    `json:"fromX"`
	FromY       int    `json:"fromY"`
	ToX         int    `json:"toX"`
	ToY         int    `json:"toY"`
}

// CanvasLayout is the computed geometry for one flow: canvas size, a rect per
// placed block, one band per stage, and the connector endpoints.
type CanvasLayout struct {
	Width  int             `json:"width"`
	Height int             `json:"height"`
	Blocks map[string]Rect `json:"blocks"`
	Stages []StageBand     `json:"stages"`
	Edges  []LayoutEdge    `json:"edges"`
}

// Layout places a flow on the canvas: stages become horizontal bands top to
// bottom in stage order, and each stage's blocks form one centered row. The
// result is deterministic for a given flow and options.
//
// Blocks that appear in no stage are not placed; Validate flags those before
// a flow reaches rendering.
func Layout(f *model.FunnelFlow, opts LayoutOptions) (*CanvasLayout, error) {
	if f == nil || len(f.Stages) == 0 {
		return nil, ErrEmptyFlow
	}
	o := opts.withDefaults()

	// Canvas width is driven by the widest stage row.
	maxRow := 0
	for _, st := range f.Stages {
		n := placedCount(f, st)
		if w := rowWidth(n, o); w > maxRow {
			maxRow = w
		}
	}
	width := maxRow + 2*o.Margin

	layout := &CanvasLayout{
		Width:  width,
		Blocks: make(map[string]Rect),
	}

	y := o.Margin
	for _, st := range f.Stages {
		band := StageBand{StageID: st.ID, Name: st.Name, Y: y, Height: o.BlockHeight}
		layout.Stages = append(layout.Stages, band)

		n := placedCount(f, st)
		x := (width - rowWidth(n, o)) / 2
		for _, bid := range st.BlockIDs {
			if _, ok := f.Blocks[bid]; !ok {
				continue
			}
			layout.Blocks[bid] = Rect{X: x, Y: y, Width: o.BlockWidth, Height: o.BlockHeight}
			x += o.BlockWidth + o.GapX
		}
		y += o.BlockHeight + o.GapY
	}
	layout.Height = y - o.GapY + o.Margin

	// Connectors, in stage order so output is stable.
	for _, st := range f.Stages {
		for _, bid := range st.BlockIDs {
			from, ok := layout.Blocks[bid]
			if !ok {
				continue
			}
			for _, opt := range f.Blocks[bid].Options {
				if opt.NextBlockID == nil {
					continue
				}
				to, ok := layout.Blocks[*opt.NextBlockID]
				if !ok {
					continue
				}
				layout.Edges = append(layout.Edges, LayoutEdge{
					FromBlockID: bid,
					ToBlockID:   *opt.NextBlockID,
					FromX:       from.X + from.Width/2,
					FromY:       from.Y + from.Height,
					ToX:         to.X + to.Width/2,
					ToY:         to.Y,
				})
			}
		}
	}

	return layout, nil
}

func placedCount(f *model.FunnelFlow, st model.Stage) int {
	n := 0
	for _, bid := range st.BlockIDs {
		if _, ok := f.Blocks[bid]; ok {
			n++
		}
	}
	return n
}

func rowWidth(n int, o LayoutOptions) int {
	if n <= 0 {
		return 0
	}
	return n*o.BlockWidth + (n-1)*o.GapX
}
