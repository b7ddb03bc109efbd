package main

import (
	"fmt"
	"os"

	"github.com/wayfarelabs/faregate/internal/catalog"
)

// applyPricing folds fetched models.dev data into the catalog in
// place. models.dev publishes cost per million tokens; the catalog
// stores per thousand, so costs divide by 1000 on the way in. Context
// and output limits only overwrite when models.dev reports a nonzero
// value.
//
// Returns how many models changed, how many matched but were already
// current, and how many had no models.dev entry.
func applyPricing(models []catalog.ModelDefinition, fetched map[string]*modelsDevModel) (updated, unchanged, missing int) {
	for i := range models {
		m := &models[i]
		md := fetched[m.ID]
		if md == nil {
			missing++
			continue
		}

		changed := false

		if md.Cost.Input > 0 || md.Cost.Output > 0 {
			in := md.Cost.Input / 1000
			out := md.Cost.Output / 1000
			if in != m.Pricing.InputPer1k || out != m.Pricing.OutputPer1k {
				fmt.Fprintf(os.Stderr, "  %s: pricing %g/%g -> %g/%g per 1k\n",
					m.ID, m.Pricing.InputPer1k, m.Pricing.OutputPer1k, in, out)
				m.Pricing.InputPer1k = in
				m.Pricing.OutputPer1k = out
				changed = true
			}
		}

		if md.Limit.Context > 0 && md.Limit.Context != m.ContextWindow {
			fmt.Fprintf(os.Stderr, "  %s: context %d -> %d\n", m.ID, m.ContextWindow, md.Limit.Context)
			m.ContextWindow = md.Limit.Context
			changed = true
		}

		if md.Limit.Output > 0 && md.Limit.Output != m.MaxOutputTokens {
			fmt.Fprintf(os.Stderr, "  %s: max output %d -> %d\n", m.ID, m.MaxOutputTokens, md.Limit.Output)
			m.MaxOutputTokens = md.Limit.Output
			changed = true
		}

		if changed {
			updated++
		} else {
			unchanged++
		}
	}
	return updated, unchanged, missing
}
