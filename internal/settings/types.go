// Package settings defines per-tenant configuration overrides and the
// store they live in.
package settings

// AgentSettings is one partial configuration layer. Nil fields mean
// "not set here, fall through to the layer below". FallbackOrder is
// only honored on per-role overrides, never on tenant-wide defaults.
type AgentSettings struct {
	ModelID        *string  `json:"modelId,omitempty"`
	MaxTokens      *int     `json:"maxTokens,omitempty"`
	Temperature    *float64 `json:"temperature,omitempty"`
	EnableFallback *bool    `json:"enableFallback,omitempty"`
	FallbackOrder  []string `json:"fallbackOrder,omitempty"`
}

// TenantSettings holds everything one tenant has overridden: optional
// tenant-wide defaults plus optional per-role overrides.
type TenantSettings struct {
	Defaults *AgentSettings            `json:"defaults,omitempty"`
	Agents   map[string]*AgentSettings `json:"agents,omitempty"`
}

// Ptr returns a pointer to v, for building partial settings layers.
func Ptr[T any](v T) *T {
	return &v
}

// Clone returns a deep copy so stores can hand out settings without
// sharing mutable state with callers.
func (s *TenantSettings) Clone() *TenantSettings {
	if s == nil {
		return nil
	}
	out := &TenantSettings{
		Defaults: s.Defaults.clone(),
	}
	if s.Agents != nil {
		out.Agents = make(map[string]*AgentSettings, len(s.Agents))
		for role, a := range s.Agents {
			out.Agents[role] = a.clone()
		}
	}
	return out
}

func (a *AgentSettings) clone() *AgentSettings {
	if a == nil {
		return nil
	}
	out := &AgentSettings{}
	if a.ModelID != nil {
		out.ModelID = Ptr(*a.ModelID)
	}
	if a.MaxTokens != nil {
		out.MaxTokens = Ptr(*a.MaxTokens)
	}
	if a.Temperature != nil {
		out.Temperature = Ptr(*a.Temperature)
	}
	if a.EnableFallback != nil {
		out.EnableFallback = Ptr(*a.EnableFallback)
	}
	if a.FallbackOrder != nil {
		out.FallbackOrder = append([]string(nil), a.FallbackOrder...)
	}
	return out
}
