package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/wayfarelabs/faregate/internal/catalog"
	. "github.com/wayfarelabs/faregate/internal/logging"
	. "github.com/wayfarelabs/faregate/internal/metrics"
)

// openRouterTransport adds Wayfare attribution headers to OpenRouter requests
type openRouterTransport struct {
	base http.RoundTripper
}

func (t *openRouterTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("HTTP-Referer", "https://wayfare.app")
	req.Header.Set("X-Title", "Wayfare")
	if t.base == nil {
		return http.DefaultTransport.RoundTrip(req)
	}
	return t.base.RoundTrip(req)
}

// OpenAITransport implements Transport for OpenAI-compatible chat APIs.
// Works against OpenAI itself and against aggregators like OpenRouter that
// speak the same wire format; Google, Meta and Mistral models are usually
// served through such an endpoint.
type OpenAITransport struct {
	name       string
	client     *openai.Client
	registry   *catalog.Registry
	baseURL    string
	openRouter bool
}

// NewOpenAITransport creates a transport for an OpenAI-compatible endpoint.
// The API key is optional so local or keyless gateways keep working; cloud
// endpoints reject unauthenticated calls on their own.
func NewOpenAITransport(name string, cfg TransportConfig, registry *catalog.Registry) (*OpenAITransport, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = "not-needed" // placeholder for servers that don't require auth
	}

	config := openai.DefaultConfig(apiKey)
	baseURL := cfg.BaseURL
	if baseURL != "" {
		// OpenAI-compatible APIs expect the /v1 suffix
		if !strings.HasSuffix(baseURL, "/v1") && !strings.HasSuffix(baseURL, "/v1/") {
			baseURL = strings.TrimSuffix(baseURL, "/") + "/v1"
		}
		config.BaseURL = baseURL
	}

	openRouter := strings.Contains(strings.ToLower(baseURL), "openrouter")
	if openRouter {
		config.HTTPClient = &http.Client{Transport: &openRouterTransport{base: http.DefaultTransport}}
		L_debug("openai: using OpenRouter headers", "referer", "https://wayfare.app", "title", "Wayfare")
	}

	displayURL := baseURL
	if displayURL == "" {
		displayURL = "(default)"
	}
	L_debug("openai transport created", "name", name, "baseURL", displayURL, "openRouter", openRouter)

	return &OpenAITransport{
		name:       name,
		client:     openai.NewClientWithConfig(config),
		registry:   registry,
		baseURL:    baseURL,
		openRouter: openRouter,
	}, nil
}

// Name returns the configured endpoint name
func (t *OpenAITransport) Name() string {
	return t.name
}

// nativeModel maps a catalog id to the name the endpoint expects.
// OpenRouter routes by the full vendor-prefixed id; direct APIs take the
// bare model name.
func (t *OpenAITransport) nativeModel(id string) string {
	if t.openRouter {
		return id
	}
	if def, ok := t.registry.Get(id); ok {
		return def.NativeModelID()
	}
	if i := strings.LastIndex(id, "/"); i >= 0 {
		return id[i+1:]
	}
	return id
}

// Complete sends one chat-completion request and maps the result into the
// provider-agnostic shapes. No internal retries.
func (t *OpenAITransport) Complete(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()
	prefix := "llm/" + t.name + "/" + req.Model
	model := t.nativeModel(req.Model)

	chatReq := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    toOpenAIMessages(req.Messages),
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
	}
	if req.JSONMode {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	L_debug("openai: sending request", "transport", t.name, "model", model,
		"messages", len(chatReq.Messages), "maxTokens", req.MaxTokens)

	resp, err := t.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		wrapped := t.wrapError(err)
		L_debug("openai: request failed", "transport", t.name, "model", model, "error", wrapped)
		MetricDuration(prefix, "request", time.Since(start))
		MetricFailWithReason(prefix, "request_status", string(Classify(wrapped)))
		return nil, wrapped
	}

	if len(resp.Choices) == 0 {
		MetricDuration(prefix, "request", time.Since(start))
		MetricFailWithReason(prefix, "request_status", "empty_response")
		return nil, &RequestError{Message: "response contained no choices"}
	}

	out := &Response{
		Text:         resp.Choices[0].Message.Content,
		Model:        req.Model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
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

// wrapError maps go-openai errors onto RequestError for classification.
func (t *OpenAITransport) wrapError(err error) error {
	out := &RequestError{Message: err.Error(), Err: err}

	var apiErr *openai.APIError
	var httpErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		out.Status = apiErr.HTTPStatusCode
		out.Message = apiErr.Message
		if code, ok := apiErr.Code.(string); ok {
			out.Code = code
		}
	case errors.As(err, &httpErr):
		out.Status = httpErr.HTTPStatusCode
	default:
		out.Timeout = timeoutError(err)
		out.ConnErr = !out.Timeout && connectionError(err)
	}
	return out
}

// toOpenAIMessages converts transcript messages to the OpenAI wire shape.
// Image parts become base64 data-URL image_url entries.
func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		if msg.HasImages() {
			parts := make([]openai.ChatMessagePart, 0, len(msg.Images)+1)
			for _, img := range msg.Images {
				dataURL := fmt.Sprintf("data:%s;base64,%s", img.MimeType, img.Data)
				parts = append(parts, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL:    dataURL,
						Detail: openai.ImageURLDetailAuto,
					},
				})
			}
			if msg.Content != "" {
				parts = append(parts, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeText,
					Text: msg.Content,
				})
			}
			result = append(result, openai.ChatCompletionMessage{
				Role:         msg.Role,
				MultiContent: parts,
			})
			continue
		}
		if msg.Content == "" {
			continue
		}
		result = append(result, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}
	return result
}
