package llm

import (
	"fmt"

	"github.com/wayfarelabs/faregate/internal/catalog"
)

// NewTransport creates a transport instance for one configured endpoint.
// Dispatches on cfg.Driver.
func NewTransport(name string, cfg TransportConfig, registry *catalog.Registry) (Transport, error) {
	switch cfg.Driver {
	case "anthropic":
		return NewAnthropicTransport(name, cfg, registry)
	case "openai":
		return NewOpenAITransport(name, cfg, registry)
	default:
		return nil, fmt.Errorf("unknown transport driver: %q", cfg.Driver)
	}
}
