package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/wayfarelabs/faregate/internal/catalog"
	. "github.com/wayfarelabs/faregate/internal/logging"
	. "github.com/wayfarelabs/faregate/internal/metrics"
)

// AnthropicTransport implements Transport for Anthropic's Claude API.
// Also works with Anthropic-compatible endpoints via BaseURL.
type AnthropicTransport struct {
	name     string
	client   *anthropic.Client
	registry *catalog.Registry
}

// NewAnthropicTransport creates a transport for the Anthropic messages API.
// An API key is required unless SkipValidation is set, in which case the
// transport constructs but every call fails with an auth error.
func NewAnthropicTransport(name string, cfg TransportConfig, registry *catalog.Registry) (*AnthropicTransport, error) {
	if cfg.APIKey == "" && !cfg.SkipValidation {
		return nil, fmt.Errorf("anthropic API key not configured")
	}

	// MaxRetries 0: the SDK retries transient failures on its own by
	// default, but failure handling belongs to the fallback controller.
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "(default)"
	}
	L_debug("anthropic transport created", "name", name, "baseURL", baseURL)

	return &AnthropicTransport{
		name:     name,
		client:   &client,
		registry: registry,
	}, nil
}

// Name returns the configured endpoint name
func (t *AnthropicTransport) Name() string {
	return t.name
}

// Complete sends one messages-API request and maps the result into the
// provider-agnostic shapes. JSONMode is prompt-enforced for Claude models;
// the flag does not alter the request.
func (t *AnthropicTransport) Complete(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()
	prefix := "llm/" + t.name + "/" + req.Model

	native := req.Model
	if def, ok := t.registry.Get(req.Model); ok {
		native = def.NativeModelID()
	}

	temperature := req.Temperature
	if temperature > 1 {
		// Anthropic caps temperature at 1.0
		L_debug("anthropic: clamping temperature", "requested", temperature)
		temperature = 1.0
	}

	messages, system := toAnthropicMessages(req.Messages)
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(native),
		MaxTokens:   int64(req.MaxTokens),
		Messages:    messages,
		Temperature: anthropic.Float(temperature),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	L_debug("anthropic: sending request", "transport", t.name, "model", native,
		"messages", len(messages), "maxTokens", req.MaxTokens)

	msg, err := t.client.Messages.New(ctx, params)
	if err != nil {
		wrapped := t.wrapError(err)
		L_debug("anthropic: request failed", "transport", t.name, "model", native, "error", wrapped)
		MetricDuration(prefix, "request", time.Since(start))
		MetricFailWithReason(prefix, "request_status", string(Classify(wrapped)))
		return nil, wrapped
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(tb.Text)
		}
	}

	out := &Response{
		Text:         text.String(),
		Model:        req.Model,
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}

	duration := time.Since(start)
	L_info("llm: request completed", "transport", t.name, "model", req.Model,
		"duration", duration.Round(time.Millisecond),
		"inputTokens", out.InputTokens, "outputTokens", out.OutputTokens)

	MetricDuration(prefix, "request", duration)
	MetricAdd(prefix, "input_tokens", int64(out.InputTokens))
	MetricAdd(prefix, "output_tokens", int64(out.OutputTokens))
	MetricSuccess(prefix, "request_status")

	return out, nil
}

// wrapError maps SDK errors onto RequestError for classification.
func (t *AnthropicTransport) wrapError(err error) error {
	out := &RequestError{Message: err.Error(), Err: err}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		out.Status = apiErr.StatusCode
	} else {
		out.Timeout = timeoutError(err)
		out.ConnErr = !out.Timeout && connectionError(err)
	}
	return out
}

// toAnthropicMessages converts transcript messages to Anthropic params.
// System messages are hoisted out and returned separately; the messages
// API takes them as a dedicated request field, not transcript entries.
func toAnthropicMessages(messages []Message) ([]anthropic.MessageParam, string) {
	var result []anthropic.MessageParam
	var system []string

	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			if msg.Content != "" {
				system = append(system, msg.Content)
			}
		case RoleUser:
			if msg.Content == "" && !msg.HasImages() {
				continue
			}
			var blocks []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, img := range msg.Images {
				blocks = append(blocks, anthropic.NewImageBlockBase64(img.MimeType, img.Data))
			}
			result = append(result, anthropic.NewUserMessage(blocks...))
		case RoleAssistant:
			if msg.Content == "" {
				continue
			}
			result = append(result, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	return result, strings.Join(system, "\n\n")
}
