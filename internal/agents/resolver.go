package agents

import (
	"dario.cat/mergo"

	"github.com/wayfarelabs/faregate/internal/catalog"
	. "github.com/wayfarelabs/faregate/internal/logging"
	"github.com/wayfarelabs/faregate/internal/settings"
)

// EffectiveConfig is the fully-resolved configuration for one request.
// Every field has a concrete value after Resolve; nothing is optional
// past this point.
type EffectiveConfig struct {
	ModelID        string
	MaxTokens      int
	Temperature    float64
	EnableFallback bool
	FallbackOrder  []string
}

// Resolver merges role defaults, tenant defaults, and tenant+role
// overrides into an EffectiveConfig. Pure computation, no I/O.
type Resolver struct {
	registry *catalog.Registry
}

// NewResolver returns a resolver that validates model ids against the
// registry.
func NewResolver(registry *catalog.Registry) *Resolver {
	return &Resolver{registry: registry}
}

// Resolve builds the effective config for a role. Layers apply in
// order, each overriding only the fields it explicitly sets:
// role defaults, then tenant-wide defaults, then the tenant's per-role
// override. An unknown final model id silently falls back to the role
// default so the request stays servable.
func (r *Resolver) Resolve(role string, ts *settings.TenantSettings) EffectiveConfig {
	roleModel := r.registry.DefaultModelForRole(role)

	merged := settings.AgentSettings{
		ModelID:        settings.Ptr(roleModel),
		MaxTokens:      settings.Ptr(MaxTokensForRole(role)),
		Temperature:    settings.Ptr(DefaultTemperature),
		EnableFallback: settings.Ptr(true),
	}

	if ts != nil {
		if ts.Defaults != nil {
			layer := *ts.Defaults
			// Fallback order is a per-role concern only.
			layer.FallbackOrder = nil
			if err := mergo.Merge(&merged, layer, mergo.WithOverride, mergo.WithoutDereference); err != nil {
				L_warn("agents: tenant defaults merge failed", "role", role, "error", err)
			}
		}
		if override := ts.Agents[role]; override != nil {
			if err := mergo.Merge(&merged, *override, mergo.WithOverride, mergo.WithoutDereference); err != nil {
				L_warn("agents: role override merge failed", "role", role, "error", err)
			}
		}
	}

	modelID := *merged.ModelID
	if _, ok := r.registry.Get(modelID); !ok {
		L_debug("agents: configured model not in catalog, using role default",
			"role", role, "model", modelID, "default", roleModel)
		modelID = roleModel
	}

	return EffectiveConfig{
		ModelID:        modelID,
		MaxTokens:      *merged.MaxTokens,
		Temperature:    *merged.Temperature,
		EnableFallback: *merged.EnableFallback,
		FallbackOrder:  merged.FallbackOrder,
	}
}
