package catalog

import "strings"

// Provider identifies which upstream vendor serves a model.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderGoogle    Provider = "google"
	ProviderMeta      Provider = "meta-llama"
	ProviderMistral   Provider = "mistralai"
)

// TaskType is a coarse classification used for default model selection.
type TaskType string

const (
	TaskSimple   TaskType = "simple"
	TaskBalanced TaskType = "balanced"
	TaskComplex  TaskType = "complex"
)

// Capability names one of the independent capability flags on a model.
type Capability string

const (
	CapVision          Capability = "vision"
	CapFunctionCalling Capability = "functionCalling"
	CapJSONMode        Capability = "jsonMode"
	CapStreaming       Capability = "streaming"
)

// Capabilities holds the four independent capability flags.
type Capabilities struct {
	Vision          bool `json:"vision" yaml:"vision"`
	FunctionCalling bool `json:"functionCalling" yaml:"functionCalling"`
	JSONMode        bool `json:"jsonMode" yaml:"jsonMode"`
	Streaming       bool `json:"streaming" yaml:"streaming"`
}

// Has reports whether the named capability flag is set.
func (c Capabilities) Has(capability Capability) bool {
	switch capability {
	case CapVision:
		return c.Vision
	case CapFunctionCalling:
		return c.FunctionCalling
	case CapJSONMode:
		return c.JSONMode
	case CapStreaming:
		return c.Streaming
	}
	return false
}

// Pricing is the per-1K-token price in USD.
type Pricing struct {
	InputPer1k  float64 `json:"inputPer1k" yaml:"inputPer1k"`
	OutputPer1k float64 `json:"outputPer1k" yaml:"outputPer1k"`
}

// ModelDefinition describes one model in the catalog. Definitions are
// immutable after load; lookups hand out copies, never pointers into
// the registry.
type ModelDefinition struct {
	// ID is the routing identifier, e.g. "anthropic/claude-3.5-sonnet".
	ID string `json:"id" yaml:"id"`

	// NativeID is the identifier the provider's own API expects,
	// e.g. "claude-3-5-sonnet-20241022". Empty means same as the
	// part of ID after the provider prefix.
	NativeID string `json:"nativeId,omitempty" yaml:"nativeId"`

	// Name is a human-readable display name.
	Name string `json:"name" yaml:"name"`

	Provider        Provider     `json:"provider" yaml:"provider"`
	ContextWindow   int          `json:"contextWindow" yaml:"contextWindow"`
	MaxOutputTokens int          `json:"maxOutputTokens" yaml:"maxOutputTokens"`
	Capabilities    Capabilities `json:"capabilities" yaml:"capabilities"`
	Pricing         Pricing      `json:"pricing" yaml:"pricing"`
	TaskType        TaskType     `json:"taskType" yaml:"taskType"`
}

// CombinedPrice is the sum of input and output per-1K prices, used for
// cheapest-model selection.
func (m ModelDefinition) CombinedPrice() float64 {
	return m.Pricing.InputPer1k + m.Pricing.OutputPer1k
}

// NativeModelID returns the identifier to send to the provider's own API.
// Falls back to the ID with the provider prefix stripped.
func (m ModelDefinition) NativeModelID() string {
	if m.NativeID != "" {
		return m.NativeID
	}
	if idx := strings.Index(m.ID, "/"); idx >= 0 {
		return m.ID[idx+1:]
	}
	return m.ID
}
