// Package catalog holds the static model catalog used for routing,
// capability checks, and pricing.
package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	. "github.com/wayfarelabs/faregate/internal/logging"
)

//go:embed models.json
var embeddedModels []byte

// Registry is an immutable lookup table of model definitions. Load it
// once at startup and share it; all methods are safe for concurrent use
// because nothing mutates after Load returns.
type Registry struct {
	byID    map[string]int
	ordered []ModelDefinition
}

type catalogFile struct {
	Models []ModelDefinition `json:"models"`
}

// Load parses the embedded catalog and, when overridesPath names an
// existing YAML file, applies its entries on top. A missing overrides
// file is not an error; a malformed one is.
func Load(overridesPath string) (*Registry, error) {
	var file catalogFile
	if err := json.Unmarshal(embeddedModels, &file); err != nil {
		return nil, fmt.Errorf("catalog: parse embedded models: %w", err)
	}
	if len(file.Models) == 0 {
		return nil, fmt.Errorf("catalog: embedded models list is empty")
	}

	r := &Registry{
		byID:    make(map[string]int, len(file.Models)),
		ordered: file.Models,
	}
	for i, m := range r.ordered {
		if _, dup := r.byID[m.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate model id %q", m.ID)
		}
		r.byID[m.ID] = i
	}

	if overridesPath != "" {
		if err := r.applyOverrides(overridesPath); err != nil {
			return nil, err
		}
	}

	L_debug("catalog: loaded", "models", len(r.ordered))
	return r, nil
}

// Get returns the definition for id. Not-found is an expected outcome,
// not an error; validation logic relies on the boolean.
func (r *Registry) Get(id string) (ModelDefinition, bool) {
	idx, ok := r.byID[id]
	if !ok {
		return ModelDefinition{}, false
	}
	return r.ordered[idx], true
}

// All returns every model in catalog declaration order.
func (r *Registry) All() []ModelDefinition {
	out := make([]ModelDefinition, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Len returns the number of models in the catalog.
func (r *Registry) Len() int {
	return len(r.ordered)
}

// ListByProvider returns all models from one provider, in catalog order.
func (r *Registry) ListByProvider(p Provider) []ModelDefinition {
	var out []ModelDefinition
	for _, m := range r.ordered {
		if m.Provider == p {
			out = append(out, m)
		}
	}
	return out
}

// ListWithCapability returns all models with the named capability flag
// set, in catalog order.
func (r *Registry) ListWithCapability(capability Capability) []ModelDefinition {
	var out []ModelDefinition
	for _, m := range r.ordered {
		if m.Capabilities.Has(capability) {
			out = append(out, m)
		}
	}
	return out
}

// Cheapest returns the model with the lowest combined per-1K price among
// those tagged with taskType. Ties break toward catalog order. If no
// model carries that taskType, the globally cheapest model is returned.
func (r *Registry) Cheapest(taskType TaskType) ModelDefinition {
	var best ModelDefinition
	found := false
	for _, m := range r.ordered {
		if m.TaskType != taskType {
			continue
		}
		if !found || m.CombinedPrice() < best.CombinedPrice() {
			best = m
			found = true
		}
	}
	if found {
		return best
	}

	// No model tagged with this task type; fall back to global cheapest.
	for _, m := range r.ordered {
		if !found || m.CombinedPrice() < best.CombinedPrice() {
			best = m
			found = true
		}
	}
	return best
}

// Cost computes the USD cost of a single invocation. Unknown ids cost
// zero rather than erroring; callers treat unknown models as free
// because there is no pricing to apply.
func (r *Registry) Cost(id string, inputTokens, outputTokens int) float64 {
	m, ok := r.Get(id)
	if !ok {
		return 0
	}
	return float64(inputTokens)/1000*m.Pricing.InputPer1k +
		float64(outputTokens)/1000*m.Pricing.OutputPer1k
}

// ---- YAML overrides ----

// modelOverride mirrors ModelDefinition with optional fields so an
// overlay can change just one field of an existing model. Entries whose
// id is not in the catalog are appended as new models.
type modelOverride struct {
	ID              string         `yaml:"id"`
	NativeID        *string        `yaml:"nativeId"`
	Name            *string        `yaml:"name"`
	Provider        *Provider      `yaml:"provider"`
	ContextWindow   *int           `yaml:"contextWindow"`
	MaxOutputTokens *int           `yaml:"maxOutputTokens"`
	Capabilities    *Capabilities  `yaml:"capabilities"`
	Pricing         *priceOverride `yaml:"pricing"`
	TaskType        *TaskType      `yaml:"taskType"`
}

type priceOverride struct {
	InputPer1k  *float64 `yaml:"inputPer1k"`
	OutputPer1k *float64 `yaml:"outputPer1k"`
}

type overridesFile struct {
	Models []modelOverride `yaml:"models"`
}

func (r *Registry) applyOverrides(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			L_debug("catalog: no overrides file", "path", path)
			return nil
		}
		return fmt.Errorf("catalog: read overrides: %w", err)
	}

	var file overridesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("catalog: parse overrides: %w", err)
	}

	applied := 0
	for _, ov := range file.Models {
		if ov.ID == "" {
			L_warn("catalog: override entry without id, skipping")
			continue
		}

		idx, exists := r.byID[ov.ID]
		if exists {
			r.ordered[idx] = mergeOverride(r.ordered[idx], ov)
			applied++
			continue
		}

		m := mergeOverride(ModelDefinition{ID: ov.ID}, ov)
		if m.Provider == "" || m.ContextWindow <= 0 {
			L_warn("catalog: new model override incomplete, skipping", "id", ov.ID)
			continue
		}
		r.byID[m.ID] = len(r.ordered)
		r.ordered = append(r.ordered, m)
		applied++
	}

	if applied > 0 {
		L_info("catalog: applied overrides", "path", path, "count", applied)
	}
	return nil
}

func mergeOverride(m ModelDefinition, ov modelOverride) ModelDefinition {
	if ov.NativeID != nil {
		m.NativeID = *ov.NativeID
	}
	if ov.Name != nil {
		m.Name = *ov.Name
	}
	if ov.Provider != nil {
		m.Provider = *ov.Provider
	}
	if ov.ContextWindow != nil {
		m.ContextWindow = *ov.ContextWindow
	}
	if ov.MaxOutputTokens != nil {
		m.MaxOutputTokens = *ov.MaxOutputTokens
	}
	if ov.Capabilities != nil {
		m.Capabilities = *ov.Capabilities
	}
	if ov.Pricing != nil {
		if ov.Pricing.InputPer1k != nil {
			m.Pricing.InputPer1k = *ov.Pricing.InputPer1k
		}
		if ov.Pricing.OutputPer1k != nil {
			m.Pricing.OutputPer1k = *ov.Pricing.OutputPer1k
		}
	}
	if ov.TaskType != nil {
		m.TaskType = *ov.TaskType
	}
	return m
}
