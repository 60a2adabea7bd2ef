// Package flow implements the funnel flow graph: structural validation,
// path traversal for canvas highlighting, deterministic canvas layout, and
// visitor option matching.
//
// Everything here is pure computation over model.FunnelFlow. Persistence,
// generation, and transport live elsewhere.
package flow

import (
	"fmt"
	"sort"

	"github.com/capitalize-ai/funnel-platform/internal/model"
)

// ValidationResult reports every problem found in a flow, not just the first,
// so the editor can surface all of them at once. Orphan blocks (unreachable
// from the start block) are reported separately: they are legal while a flow
// is being edited but worth flagging.
type ValidationResult struct {
	Errors         []string `json:"errors,omitempty"`
	OrphanBlockIDs []string `json:"orphanBlockIds,omitempty"`
}

// Valid reports whether the flow has no structural errors. Orphans do not
// invalidate a flow.
func (r ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

// Validate checks a flow's structure: the start block must exist, every
// stage member and option target must resolve, every block must belong to
// exactly one stage, and the option graph must be acyclic.
func Validate(f *model.FunnelFlow) ValidationResult {
	var res ValidationResult

	if f == nil {
		res.Errors = append(res.Errors, "flow is empty")
		return res
	}
	if len(f.Blocks) == 0 {
		res.Errors = append(res.Errors, "flow has no blocks")
		return res
	}

	if f.StartBlockID == "" {
		res.Errors = append(res.Errors, "startBlockId is empty")
	} else if _, ok := f.Blocks[f.StartBlockID]; !ok {
		res.Errors = append(res.Errors, fmt.Sprintf("start block %q does not exist", f.StartBlockID))
	}

	// Map-key / block-ID agreement and option edges.
	for id, b := range f.Blocks {
		if b.ID != id {
			res.Errors = append(res.Errors, fmt.Sprintf("block key %q does not match block id %q", id, b.ID))
		}
		for i, opt := range b.Options {
			if opt.Text == "" {
				res.Errors = append(res.Errors, fmt.Sprintf("block %q option %d has empty text", id, i+1))
			}
			if opt.NextBlockID != nil {
				if _, ok := f.Blocks[*opt.NextBlockID]; !ok {
					res.Errors = append(res.Errors, fmt.Sprintf("block %q option %d points at unknown block %q", id, i+1, *opt.NextBlockID))
				}
			}
		}
	}

	// Stage membership: every block in exactly one stage.
	membership := make(map[string]int, len(f.Blocks))
	seenStages := make(map[string]bool, len(f.Stages))
	for _, st := range f.Stages {
		if st.ID == "" {
			res.Errors = append(res.Errors, fmt.Sprintf("stage %q has no id", st.Name))
		} else if seenStages[st.ID] {
			res.Errors = append(res.Errors, fmt.Sprintf("duplicate stage id %q", st.ID))
		}
		seenStages[st.ID] = true

		for _, bid := range st.BlockIDs {
			if _, ok := f.Blocks[bid]; !ok {
				res.Errors = append(res.Errors, fmt.Sprintf("stage %q lists unknown block %q", st.ID, bid))
				continue
			}
			membership[bid]++
		}
	}
	for id := range f.Blocks {
		switch membership[id] {
		case 0:
			res.Errors = append(res.Errors, fmt.Sprintf("block %q is not assigned to any stage", id))
		case 1:
		default:
			res.Errors = append(res.Errors, fmt.Sprintf("block %q is assigned to %d stages", id, membership[id]))
		}
	}

	if cyc := findCycle(f); cyc != "" {
		res.Errors = append(res.Errors, fmt.Sprintf("cycle detected through block %q", cyc))
	}

	res.OrphanBlockIDs = orphans(f)

	sort.Strings(res.Errors)
	return res
}

// adjacency returns the option edges of the flow as blockID -> next blockIDs.
// Nil (terminal) edges and dangling targets are skipped.
func adjacency(f *model.FunnelFlow) map[string][]string {
	adj := make(map[string][]string, len(f.Blocks))
	for id, b := range f.Blocks {
		for _, opt := range b.Options {
			if opt.NextBlockID == nil {
				continue
			}
			if _, ok := f.Blocks[*opt.NextBlockID]; !ok {
				continue
			}
			adj[id] = append(adj[id], *opt.NextBlockID)
		}
	}
	return adj
}

// findCycle runs a three-color DFS over the option graph and returns a block
// on the first cycle found, or "" when the graph is acyclic.
func findCycle(f *model.FunnelFlow) string {
	adj := adjacency(f)

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(f.Blocks))

	var visit func(id string) string
	visit = func(id string) string {
		color[id] = gray
		for _, next := range adj[id] {
			switch color[next] {
			case gray:
				return next
			case white:
				if hit := visit(next); hit != "" {
					return hit
				}
			}
		}
		color[id] = black
		return ""
	}

	// Deterministic start order.
	ids := make([]string, 0, len(f.Blocks))
	for id := range f.Blocks {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if color[id] == white {
			if hit := visit(id); hit != "" {
				return hit
			}
		}
	}
	return ""
}

// orphans returns block IDs unreachable from the start block via option
// edges, sorted for stable output.
func orphans(f *model.FunnelFlow) []string {
	if f.StartBlockID == "" {
		return nil
	}
	if _, ok := f.Blocks[f.StartBlockID]; !ok {
		return nil
	}

	adj := adjacency(f)
	seen := map[string]bool{f.StartBlockID: true}
	queue := []string{f.StartBlockID}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range adj[cur] {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}

	var out []string
	for id := range f.Blocks {
		if !seen[id] {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
