package flow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/capitalize-ai/funnel-platform/internal/model"
)

// Normalize repairs the cosmetic defects generated flows tend to arrive
// with: block IDs missing from values (the map key is authoritative), stages
// without IDs, stray whitespace, and options whose text is blank. It mutates
// the flow in place.
//
// Structural problems are left for Validate; Normalize only errors when the
// input is too empty to repair.
func Normalize(f *model.FunnelFlow) error {
	if f == nil {
		return errors.New("flow is empty")
	}
	if len(f.Blocks) == 0 {
		return errors.New("flow has no blocks")
	}
	f.StartBlockID = strings.TrimSpace(f.StartBlockID)
	if f.StartBlockID == "" {
		return errors.New("flow has no start block")
	}

	for key, b := range f.Blocks {
		if b.ID == "" {
			b.ID = key
		}
		b.Message = strings.TrimSpace(b.Message)
		b.ResourceName = strings.TrimSpace(b.ResourceName)

		kept := b.Options[:0]
		for _, opt := range b.Options {
			opt.Text = strings.TrimSpace(opt.Text)
			if opt.Text == "" {
				continue
			}
			kept = append(kept, opt)
		}
		b.Options = kept
		f.Blocks[key] = b
	}

	for i := range f.Stages {
		st := &f.Stages[i]
		st.Name = strings.TrimSpace(st.Name)
		st.Explanation = strings.TrimSpace(st.Explanation)
		if st.ID == "" {
			st.ID = fmt.Sprintf("stage-%d", i+1)
		}
	}
	return nil
}
