package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wayfarelabs/faregate/internal/catalog"
	. "github.com/wayfarelabs/faregate/internal/logging"
	. "github.com/wayfarelabs/faregate/internal/metrics"
	"github.com/wayfarelabs/faregate/internal/tokens"
)

// DefaultRequestTimeout bounds each individual attempt.
const DefaultRequestTimeout = 60 * time.Second

const (
	defaultTemperature = 0.7

	// output budget for models missing from the catalog
	fallbackMaxTokens = 2048
)

// ChatOptions describe one logical chat request.
type ChatOptions struct {
	Model    string
	Messages []Message

	// MaxTokens caps the response; 0 means the model's catalog limit.
	MaxTokens int

	// Temperature in [0, 2]; nil means the 0.7 default.
	Temperature *float64

	JSONMode bool

	// FallbackOrder overrides the built-in candidate ordering.
	FallbackOrder []string

	// DisableFallback limits the request to a single attempt.
	DisableFallback bool

	// MaxAttempts bounds the fallback loop; 0 means the default.
	MaxAttempts int

	// Timeout overrides the client's per-attempt timeout.
	Timeout time.Duration
}

// Client executes chat requests: it routes each attempt to the right
// provider transport and lets the fallback controller walk candidate
// models when attempts fail retryably.
type Client struct {
	registry   *catalog.Registry
	controller *Controller
	transports map[string]Transport // keyed by catalog provider name
	timeout    time.Duration
}

// NewClient wires a client from its collaborators. A timeout of 0 selects
// DefaultRequestTimeout.
func NewClient(registry *catalog.Registry, controller *Controller, transports map[string]Transport, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Client{
		registry:   registry,
		controller: controller,
		transports: transports,
		timeout:    timeout,
	}
}

// Execute runs one logical chat request through the fallback loop and
// returns the terminal Result. Vision requirements are detected from the
// messages; callers never need to know which models can see. Each attempt
// serializes with the attempted model's id and runs under its own
// deadline, so an abandoned attempt aborts its in-flight request instead
// of leaking it. Cancelling ctx aborts whichever attempt is in flight.
func (c *Client) Execute(ctx context.Context, opts ChatOptions) Result {
	timing := MetricStart("llm", "execute")
	defer MetricEnd(timing)

	requiresVision := anyImages(opts.Messages)

	temperature := defaultTemperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}

	timeout := c.timeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}

	// One estimate for the transcript, reused to cap every attempt's
	// output budget against its model's context window.
	texts := make([]string, len(opts.Messages))
	for i, m := range opts.Messages {
		texts[i] = m.Content
	}
	estimatedInput := tokens.Get().CountAll(texts...)

	fbOpts := Options{
		FallbackOrder:  opts.FallbackOrder,
		RequiresVision: requiresVision,
		MaxAttempts:    opts.MaxAttempts,
	}
	if opts.DisableFallback {
		fbOpts.MaxAttempts = 1
	}

	L_debug("llm: executing chat request", "model", opts.Model, "messages", len(opts.Messages),
		"vision", requiresVision, "fallback", !opts.DisableFallback)

	executor := func(model string) (*Response, error) {
		transport, err := c.transportFor(model)
		if err != nil {
			return nil, err
		}
		req := &Request{
			Model:       model,
			Messages:    opts.Messages,
			MaxTokens:   c.outputBudget(model, opts.MaxTokens, estimatedInput),
			Temperature: temperature,
			JSONMode:    opts.JSONMode,
		}
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return transport.Complete(attemptCtx, req)
	}

	return c.controller.ExecuteWithFallback(opts.Model, executor, fbOpts)
}

// transportFor routes a model id to its provider's transport.
func (c *Client) transportFor(model string) (Transport, error) {
	provider := ""
	if def, ok := c.registry.Get(model); ok {
		provider = string(def.Provider)
	} else if i := strings.Index(model, "/"); i > 0 {
		provider = model[:i]
	}
	t, ok := c.transports[provider]
	if !ok {
		// classified retryable so fallback routes around an
		// unconfigured provider
		return nil, &RequestError{
			Message: fmt.Sprintf("provider %q not configured, model %s unavailable", provider, model),
		}
	}
	return t, nil
}

// outputBudget picks max_tokens for one attempt: the requested budget
// clamped to the model's output limit (the full limit when the caller
// didn't ask), then capped so prompt plus output fit the context window.
func (c *Client) outputBudget(model string, requested, estimatedInput int) int {
	def, ok := c.registry.Get(model)
	if !ok {
		if requested > 0 {
			return requested
		}
		return fallbackMaxTokens
	}
	budget := requested
	if budget <= 0 || budget > def.MaxOutputTokens {
		budget = def.MaxOutputTokens
	}
	return tokens.CapMaxTokens(budget, def.ContextWindow, estimatedInput, 100)
}
