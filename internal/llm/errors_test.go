package llm

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},

		// Status codes
		{"rate limited 429", &RequestError{Status: 429, Message: "Too many requests"}, true},
		{"server error 500", &RequestError{Status: 500, Message: "Internal server error"}, true},
		{"bad gateway 502", &RequestError{Status: 502, Message: "Bad gateway"}, true},
		{"service down 503", &RequestError{Status: 503, Message: "Service down"}, true},
		{"anthropic overloaded 529", &RequestError{Status: 529, Message: "Overloaded"}, true},

		// Fatal client errors
		{"bad request 400", &RequestError{Status: 400, Message: "messages field malformed"}, false},
		{"bad api key 401", &RequestError{Status: 401, Message: "invalid x-api-key"}, false},
		{"forbidden 403", &RequestError{Status: 403, Message: "access denied"}, false},
		{"not found 404", &RequestError{Status: 404, Message: "model does not exist"}, false},

		// Flags set by the transports
		{"timeout flag", &RequestError{Timeout: true, Message: "context deadline exceeded"}, true},
		{"connection flag", &RequestError{ConnErr: true, Message: "dial tcp 10.0.0.1:443: connect: network is unreachable"}, true},

		// Message inspection for errors without structure
		{"timeout phrase", errors.New("upstream request timeout"), true},
		{"rate limit phrase mixed case", errors.New("Rate Limit exceeded for this key"), true},
		{"overloaded phrase", errors.New("the model is currently overloaded"), true},
		{"capacity phrase", errors.New("provider is at capacity, try again later"), true},
		{"unavailable phrase", errors.New("service temporarily unavailable"), true},
		{"plain fatal error", errors.New("invalid json in request body"), false},
		{"empty message", errors.New(""), false},

		// errors.As must see through wrapping
		{"wrapped request error", fmt.Errorf("attempt 1: %w", &RequestError{Status: 429, Message: "slow down"}), true},
		{"wrapped fatal error", fmt.Errorf("attempt 1: %w", &RequestError{Status: 400, Message: "bad payload"}), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"nil error", nil, ErrorTypeUnknown},

		// Structured errors classify by status first
		{"429", &RequestError{Status: 429}, ErrorTypeRateLimit},
		{"503", &RequestError{Status: 503}, ErrorTypeOverloaded},
		{"500", &RequestError{Status: 500}, ErrorTypeServer},
		{"529", &RequestError{Status: 529}, ErrorTypeServer},
		{"401", &RequestError{Status: 401}, ErrorTypeAuth},
		{"403", &RequestError{Status: 403}, ErrorTypeAuth},
		{"402", &RequestError{Status: 402}, ErrorTypeBilling},
		{"400", &RequestError{Status: 400}, ErrorTypeBadRequest},
		{"timeout flag", &RequestError{Timeout: true}, ErrorTypeTimeout},
		{"connection flag", &RequestError{ConnErr: true}, ErrorTypeConnection},

		// Status wins over a misleading message
		{"429 with timeout message", &RequestError{Status: 429, Message: "request timeout"}, ErrorTypeRateLimit},

		// Unstructured errors fall back to message inspection
		{"quota message", errors.New("monthly quota exceeded"), ErrorTypeRateLimit},
		{"capacity message", errors.New("no capacity for this model"), ErrorTypeOverloaded},
		{"deadline message", errors.New("context deadline exceeded"), ErrorTypeTimeout},
		{"refused message", errors.New("dial tcp: connection refused"), ErrorTypeConnection},
		{"api key message", errors.New("incorrect API key provided"), ErrorTypeAuth},
		{"billing message", errors.New("insufficient credit balance"), ErrorTypeBilling},
		{"malformed message", errors.New("malformed request body"), ErrorTypeBadRequest},
		{"unrecognized message", errors.New("something odd happened"), ErrorTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRequestErrorFormatting(t *testing.T) {
	tests := []struct {
		name string
		err  *RequestError
		want string
	}{
		{
			"status and code",
			&RequestError{Status: 429, Code: "rate_limit_exceeded", Message: "Rate limit reached"},
			`provider error (status 429, code rate_limit_exceeded): Rate limit reached`,
		},
		{
			"status only",
			&RequestError{Status: 500, Message: "Internal server error"},
			`provider error (status 500): Internal server error`,
		},
		{
			"timeout",
			&RequestError{Timeout: true, Message: "context deadline exceeded"},
			`request timed out: context deadline exceeded`,
		},
		{
			"connection",
			&RequestError{ConnErr: true, Message: "connection refused"},
			`connection error: connection refused`,
		},
		{
			"bare message",
			&RequestError{Message: "no transport for provider"},
			`no transport for provider`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRequestErrorUnwrap(t *testing.T) {
	base := errors.New("boom")
	err := &RequestError{Message: "wrapped failure", Err: base}
	if !errors.Is(err, base) {
		t.Error("errors.Is should find the underlying error through Unwrap")
	}
}

func TestErrorCode(t *testing.T) {
	err := fmt.Errorf("attempt 3: %w", &RequestError{Status: 401, Code: "invalid_api_key", Message: "bad key"})
	if got := ErrorCode(err); got != "invalid_api_key" {
		t.Errorf("ErrorCode() = %q, want %q", got, "invalid_api_key")
	}
	if got := ErrorCode(errors.New("plain")); got != "" {
		t.Errorf("ErrorCode(plain) = %q, want empty", got)
	}
	if got := ErrorCode(nil); got != "" {
		t.Errorf("ErrorCode(nil) = %q, want empty", got)
	}
}

func TestFormatErrorForUser(t *testing.T) {
	msg := FormatErrorForUser(&RequestError{Status: 429, Code: "rate_limit_exceeded", Message: "Request rate exceeded for org-123"})
	if !strings.Contains(msg, "rate limited") {
		t.Errorf("rate limit message = %q, want mention of rate limiting", msg)
	}
	if strings.Contains(msg, "org-123") {
		t.Errorf("provider internals leaked into user message: %q", msg)
	}

	unknown := FormatErrorForUser(errors.New("xyzzy"))
	if !strings.Contains(unknown, "xyzzy") {
		t.Errorf("unknown errors should surface the original message, got %q", unknown)
	}
}
