package llm

import (
	"fmt"

	"github.com/wayfarelabs/faregate/internal/catalog"
	. "github.com/wayfarelabs/faregate/internal/logging"
	. "github.com/wayfarelabs/faregate/internal/metrics"
)

// DefaultMaxAttempts bounds the fallback loop when the caller doesn't.
const DefaultMaxAttempts = 3

// Built-in candidate orderings. Curated rather than price-sorted: cheap,
// high-availability models come first, premium models last, so a failing
// request degrades cost before it degrades at all. The vision list is the
// subset whose catalog entries carry the vision capability.
var defaultFallbackOrder = []string{
	"openai/gpt-4o-mini",
	"anthropic/claude-3-haiku",
	"google/gemini-1.5-flash",
	"anthropic/claude-3.5-haiku",
	"openai/gpt-4o",
	"anthropic/claude-3.5-sonnet",
	"google/gemini-1.5-pro",
}

var visionFallbackOrder = []string{
	"openai/gpt-4o-mini",
	"anthropic/claude-3-haiku",
	"google/gemini-1.5-flash",
	"openai/gpt-4o",
	"anthropic/claude-3.5-sonnet",
	"google/gemini-1.5-pro",
}

// Options steer one fallback loop invocation.
type Options struct {
	// FallbackOrder overrides the built-in candidate ordering.
	FallbackOrder []string

	// RequiresVision filters candidates to vision-capable models.
	RequiresVision bool

	// MaxAttempts bounds total executions; 0 means DefaultMaxAttempts.
	MaxAttempts int
}

// Result is the terminal outcome of one fallback loop. Failures are
// reported here rather than panicking or retrying forever; callers check
// Success instead of catching anything.
type Result struct {
	Success       bool
	Response      *Response
	Err           error
	Code          string // provider error code from the final failure, if any
	ModelUsed     string // last model attempted; the serving model on success
	FallbackCount int    // models tried beyond the primary
}

// Executor runs one attempt against one model and reports its outcome.
type Executor func(model string) (*Response, error)

// Controller drives the retry/fallback state machine: classify each
// failure, pick the next candidate, stop on success, a fatal error, an
// exhausted candidate list, or the attempt bound.
type Controller struct {
	registry *catalog.Registry
}

func NewController(registry *catalog.Registry) *Controller {
	return &Controller{registry: registry}
}

// NextCandidate returns the next model to try after current, or false when
// the ordering is exhausted. Skips models already failed, the current
// model, ids missing from the catalog, and, when vision is required,
// models that cannot see.
func (c *Controller) NextCandidate(current string, failed map[string]bool, opts Options) (string, bool) {
	order := opts.FallbackOrder
	if len(order) == 0 {
		if opts.RequiresVision {
			order = visionFallbackOrder
		} else {
			order = defaultFallbackOrder
		}
	}
	for _, id := range order {
		if id == current || failed[id] {
			continue
		}
		def, ok := c.registry.Get(id)
		if !ok {
			continue
		}
		if opts.RequiresVision && !def.Capabilities.Vision {
			continue
		}
		return id, true
	}
	return "", false
}

// Chain returns the full candidate sequence starting at primary: the
// models ExecuteWithFallback would walk if every attempt failed retryably
// and the attempt bound never fired.
func (c *Controller) Chain(primary string, opts Options) []string {
	chain := []string{primary}
	failed := map[string]bool{primary: true}
	current := primary
	for {
		next, ok := c.NextCandidate(current, failed, opts)
		if !ok {
			return chain
		}
		chain = append(chain, next)
		failed[next] = true
		current = next
	}
}

// EstimateChainCost sums the catalog cost of running the given token load
// on every model in a chain. Budget planning only, never on the request
// path.
func (c *Controller) EstimateChainCost(chain []string, estInput, estOutput int) float64 {
	total := 0.0
	for _, id := range chain {
		total += c.registry.Cost(id, estInput, estOutput)
	}
	return total
}

// ExecuteWithFallback runs the executor against primary and walks the
// candidate ordering on retryable failures. Fatal failures return
// immediately without consuming a fallback. The two exhaustion outcomes
// stay distinct: "fallback models exhausted" when the candidate list runs
// out, "max attempts reached" when the attempt bound fires first.
func (c *Controller) ExecuteWithFallback(primary string, exec Executor, opts Options) Result {
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	failed := make(map[string]bool)
	current := primary
	fallbackCount := 0

	for attempt := 1; ; attempt++ {
		resp, err := exec(current)
		if err == nil {
			if fallbackCount > 0 {
				L_info("llm: fallback succeeded", "model", current, "primary", primary,
					"fallbacks", fallbackCount, "attempts", attempt)
			}
			MetricSuccess("llm/fallback", "request")
			return Result{
				Success:       true,
				Response:      resp,
				ModelUsed:     current,
				FallbackCount: fallbackCount,
			}
		}

		if !IsRetryable(err) {
			L_warn("llm: fatal error, not retrying", "model", current, "error", err)
			MetricFailWithReason("llm/fallback", "request", "fatal")
			return Result{
				Err:           err,
				Code:          ErrorCode(err),
				ModelUsed:     current,
				FallbackCount: fallbackCount,
			}
		}

		failed[current] = true

		next, ok := c.NextCandidate(current, failed, opts)
		if !ok {
			L_warn("llm: fallback models exhausted", "primary", primary,
				"attempts", attempt, "lastError", err)
			MetricFailWithReason("llm/fallback", "request", "exhausted")
			return Result{
				Err:           fmt.Errorf("fallback models exhausted after %d attempts: %w", attempt, err),
				Code:          ErrorCode(err),
				ModelUsed:     current,
				FallbackCount: fallbackCount,
			}
		}

		if attempt >= maxAttempts {
			L_warn("llm: max attempts reached", "primary", primary,
				"attempts", attempt, "lastError", err)
			MetricFailWithReason("llm/fallback", "request", "max_attempts")
			return Result{
				Err:           fmt.Errorf("max attempts reached (%d): %w", maxAttempts, err),
				Code:          ErrorCode(err),
				ModelUsed:     current,
				FallbackCount: fallbackCount,
			}
		}

		L_warn("llm: retrying with fallback model", "failed", current, "next", next,
			"attempt", attempt, "error", err)
		MetricInc("llm/fallback", "model_switches")
		current = next
		fallbackCount++
	}
}
