// Package llm executes chat completions against interchangeable provider
// APIs and routes around failures. A Transport issues one attempt against
// one provider; the Controller drives the retry/fallback loop across
// models; the Client ties both together behind a single Execute call.
package llm

import "context"

// Message roles shared by every transport.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Image is an inline image attachment, base64-encoded. Source records
// where the image came from (upload id, path) for logging only; it never
// goes on the wire.
type Image struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
	Source   string `json:"source,omitempty"`
}

// Message is one entry in a chat transcript. System instructions travel as
// a message with RoleSystem; transports that hoist them into a dedicated
// field (Anthropic) do so during conversion.
type Message struct {
	Role    string  `json:"role"`
	Content string  `json:"content"`
	Images  []Image `json:"images,omitempty"`
}

// HasImages returns true if the message carries image parts.
func (m Message) HasImages() bool {
	return len(m.Images) > 0
}

// Request is the provider-agnostic form of one chat-completion attempt.
// Model is always a catalog id (e.g. "openai/gpt-4o"); each transport maps
// it to the provider's native model name on the wire.
type Request struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float64
	JSONMode    bool
}

// Response is the provider-agnostic result of one successful attempt.
// Model echoes the catalog id that served the request, which after
// fallback may differ from the id the caller originally asked for.
type Response struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Transport issues a single chat-completion attempt against one provider
// endpoint. Implementations must not retry internally: timeouts, rate
// limits and connection failures are the fallback controller's to handle,
// and transport-level retries would compound its delays.
type Transport interface {
	// Name returns the configured endpoint name (e.g. "anthropic", "openrouter").
	Name() string

	// Complete sends one request and blocks until the response arrives,
	// the context is cancelled, or the attempt fails. Failures are
	// returned as *RequestError so the classifier can inspect them.
	Complete(ctx context.Context, req *Request) (*Response, error)
}

// TransportConfig holds the per-endpoint settings a transport needs.
type TransportConfig struct {
	Driver  string // "anthropic" or "openai"
	APIKey  string
	BaseURL string

	// SkipValidation constructs the transport even without an API key.
	// Requests still go out and fail loudly; nothing is stubbed.
	SkipValidation bool
}

// anyImages reports whether any message in the transcript carries images.
// The client uses this to demand vision-capable fallback candidates
// without the caller having to know about capabilities.
func anyImages(messages []Message) bool {
	for _, m := range messages {
		if m.HasImages() {
			return true
		}
	}
	return false
}
