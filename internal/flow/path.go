package flow

import (
	"errors"

	"github.com/capitalize-ai/funnel-platform/internal/model"
)

var (
	// ErrBlockNotFound is returned when a path target is not in the flow.
	ErrBlockNotFound = errors.New("block not found in flow")

	// ErrNoPath is returned when the target is unreachable from the start
	// block (an orphan, as far as highlighting is concerned).
	ErrNoPath = errors.New("no path from start block")
)

// PathTo returns the block IDs on the shortest path from the start block to
// the target, start and target included. This is the root-to-block part of
// the canvas "selected path" highlight.
func PathTo(f *model.FunnelFlow, blockID string) ([]string, error) {
	if f == nil {
		return nil, ErrBlockNotFound
	}
	if _, ok := f.Blocks[blockID]; !ok {
		return nil, ErrBlockNotFound
	}
	if _, ok := f.Blocks[f.StartBlockID]; !ok {
		return nil, ErrNoPath
	}
	if blockID == f.StartBlockID {
		return []string{blockID}, nil
	}

	adj := adjacency(f)
	parent := map[string]string{f.StartBlockID: ""}
	queue := []string{f.StartBlockID}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range adj[cur] {
			if _, seen := parent[next]; seen {
				continue
			}
			parent[next] = cur
			if next == blockID {
				return rebuild(parent, blockID), nil
			}
			queue = append(queue, next)
		}
	}
	return nil, ErrNoPath
}

func rebuild(parent map[string]string, end string) []string {
	var rev []string
	for cur := end; cur != ""; cur = parent[cur] {
		rev = append(rev, cur)
	}
	out := make([]string, 0, len(rev))
	for i := len(rev) - 1; i >= 0; i-- {
		out = append(out, rev[i])
	}
	return out
}

// SelectedPath returns the full highlight for a selected block: the shortest
// path from the start block to it, then the default descent below it (first
// option at each block) until a terminal option or a block already on the
// path. This matches what the canvas highlights when a block is clicked.
func SelectedPath(f *model.FunnelFlow, blockID string) ([]string, error) {
	path, err := PathTo(f, blockID)
	if err != nil {
		return nil, err
	}

	onPath := make(map[string]bool, len(path))
	for _, id := range path {
		onPath[id] = true
	}

	cur := blockID
	for {
		b, ok := f.Blocks[cur]
		if !ok || len(b.Options) == 0 || b.Options[0].NextBlockID == nil {
			break
		}
		next := *b.Options[0].NextBlockID
		if _, ok := f.Blocks[next]; !ok {
			break
		}
		if onPath[next] {
			break
		}
		path = append(path, next)
		onPath[next] = true
		cur = next
	}
	return path, nil
}

// Edge is one traversed option edge, for transcript rendering.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Traversed converts a session's visited block sequence into the option
// edges that still exist in the flow. Edges removed by later edits are
// silently dropped; the canvas only highlights what it can still draw.
func Traversed(f *model.FunnelFlow, path []string) []Edge {
	if f == nil || len(path) < 2 {
		return nil
	}
	var out []Edge
	for i := 0; i+1 < len(path); i++ {
		from, to := path[i], path[i+1]
		b, ok := f.Blocks[from]
		if !ok {
			continue
		}
		for _, opt := range b.Options {
			if opt.NextBlockID != nil && *opt.NextBlockID == to {
				out = append(out, Edge{From: from, To: to})
				break
			}
		}
	}
	return out
}
