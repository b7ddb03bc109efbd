package agents

import (
	"fmt"
	"sort"

	"github.com/wayfarelabs/faregate/internal/settings"
)

const (
	// TemperatureMin and TemperatureMax bound the sampling temperature.
	TemperatureMin = 0.0
	TemperatureMax = 2.0

	// MaxTokensMin and MaxTokensMax bound the output token budget.
	MaxTokensMin = 1
	MaxTokensMax = 100000
)

// ValidateSettings checks a settings document at write time and
// returns every violation found, not just the first. The request path
// never calls this; it self-corrects instead.
func (r *Resolver) ValidateSettings(ts *settings.TenantSettings) []string {
	if ts == nil {
		return nil
	}

	var problems []string

	if ts.Defaults != nil {
		problems = append(problems, r.validateLayer("defaults", ts.Defaults)...)
	}

	roles := make([]string, 0, len(ts.Agents))
	for role := range ts.Agents {
		roles = append(roles, role)
	}
	sort.Strings(roles)

	for _, role := range roles {
		layer := ts.Agents[role]
		if layer == nil {
			continue
		}
		problems = append(problems, r.validateLayer(fmt.Sprintf("agent %q", role), layer)...)
	}

	return problems
}

func (r *Resolver) validateLayer(where string, layer *settings.AgentSettings) []string {
	var problems []string

	if layer.ModelID != nil {
		if _, ok := r.registry.Get(*layer.ModelID); !ok {
			problems = append(problems, fmt.Sprintf("%s: unknown model %q", where, *layer.ModelID))
		}
	}

	if layer.Temperature != nil {
		if t := *layer.Temperature; t < TemperatureMin || t > TemperatureMax {
			problems = append(problems, fmt.Sprintf("%s: temperature %g out of range [%g, %g]",
				where, t, TemperatureMin, TemperatureMax))
		}
	}

	if layer.MaxTokens != nil {
		if n := *layer.MaxTokens; n < MaxTokensMin || n > MaxTokensMax {
			problems = append(problems, fmt.Sprintf("%s: maxTokens %d out of range [%d, %d]",
				where, n, MaxTokensMin, MaxTokensMax))
		}
	}

	for _, id := range layer.FallbackOrder {
		if _, ok := r.registry.Get(id); !ok {
			problems = append(problems, fmt.Sprintf("%s: fallback model %q not in catalog", where, id))
		}
	}

	return problems
}
