package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ErrorType buckets provider failures for fallback decisions, metrics and
// user messaging.
type ErrorType string

const (
	ErrorTypeUnknown    ErrorType = "unknown"
	ErrorTypeRateLimit  ErrorType = "rate_limit"
	ErrorTypeOverloaded ErrorType = "overloaded"
	ErrorTypeServer     ErrorType = "server"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypeConnection ErrorType = "connection"
	ErrorTypeAuth       ErrorType = "auth"
	ErrorTypeBilling    ErrorType = "billing"
	ErrorTypeBadRequest ErrorType = "bad_request"
)

// RequestError carries the structured failure detail from one attempt.
// Status and Code come from the provider's error envelope when a response
// was received; Timeout and ConnErr mark transport-level failures that
// never produced one.
type RequestError struct {
	Status  int    // HTTP status code, 0 when no response arrived
	Code    string // provider error code, e.g. "rate_limit_error"
	Message string
	Timeout bool
	ConnErr bool
	Err     error // underlying error, if any
}

func (e *RequestError) Error() string {
	if e.Status > 0 {
		if e.Code != "" {
			return fmt.Sprintf("provider error (status %d, code %s): %s", e.Status, e.Code, e.Message)
		}
		return fmt.Sprintf("provider error (status %d): %s", e.Status, e.Message)
	}
	if e.Timeout {
		return fmt.Sprintf("request timed out: %s", e.Message)
	}
	if e.ConnErr {
		return fmt.Sprintf("connection error: %s", e.Message)
	}
	return e.Message
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether a failed attempt should move on to the next
// fallback candidate. Structured fields (status code, transport flags) are
// consulted before message sniffing, so a provider that labels its errors
// properly never depends on prose; the substring check remains as a rescue
// for providers that return errors without a usable status.
//
// Retryable: 429, any 5xx, transport timeouts, connection failures, and
// messages mentioning timeouts/rate limits/overload/capacity/unavailable.
// Everything else (other 4xx, malformed payloads, bad credentials) is
// fatal; a different model will not fix those.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		if reqErr.Status == http.StatusTooManyRequests {
			return true
		}
		if reqErr.Status >= 500 {
			return true
		}
		if reqErr.Timeout || reqErr.ConnErr {
			return true
		}
	}
	return isRetryableMessage(err.Error())
}

// retryablePhrases are matched case-insensitively against error messages
// when structured fields give no verdict.
var retryablePhrases = []string{
	"timeout",
	"rate limit",
	"overloaded",
	"capacity",
	"unavailable",
}

func isRetryableMessage(msg string) bool {
	if msg == "" {
		return false
	}
	lower := strings.ToLower(msg)
	for _, phrase := range retryablePhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// Classify maps a failure to an ErrorType. Like IsRetryable it prefers
// structured fields and falls back to message heuristics.
func Classify(err error) ErrorType {
	if err == nil {
		return ErrorTypeUnknown
	}
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		switch {
		case reqErr.Status == http.StatusTooManyRequests:
			return ErrorTypeRateLimit
		case reqErr.Status == http.StatusServiceUnavailable:
			return ErrorTypeOverloaded
		case reqErr.Status >= 500:
			return ErrorTypeServer
		case reqErr.Status == http.StatusUnauthorized || reqErr.Status == http.StatusForbidden:
			return ErrorTypeAuth
		case reqErr.Status == http.StatusPaymentRequired:
			return ErrorTypeBilling
		case reqErr.Timeout:
			return ErrorTypeTimeout
		case reqErr.ConnErr:
			return ErrorTypeConnection
		case reqErr.Status >= 400:
			return ErrorTypeBadRequest
		}
	}
	return classifyMessage(err.Error())
}

func classifyMessage(msg string) ErrorType {
	if msg == "" {
		return ErrorTypeUnknown
	}
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "rate_limit") ||
		strings.Contains(lower, "too many requests") ||
		strings.Contains(lower, "quota"):
		return ErrorTypeRateLimit
	case strings.Contains(lower, "overloaded") ||
		strings.Contains(lower, "capacity") ||
		strings.Contains(lower, "unavailable"):
		return ErrorTypeOverloaded
	case strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "timed out") ||
		strings.Contains(lower, "deadline exceeded"):
		return ErrorTypeTimeout
	case strings.Contains(lower, "connection refused") ||
		strings.Contains(lower, "connection reset") ||
		strings.Contains(lower, "no such host"):
		return ErrorTypeConnection
	case strings.Contains(lower, "api key") ||
		strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "forbidden") ||
		strings.Contains(lower, "authentication"):
		return ErrorTypeAuth
	case strings.Contains(lower, "billing") ||
		strings.Contains(lower, "insufficient credit") ||
		strings.Contains(lower, "payment required"):
		return ErrorTypeBilling
	case strings.Contains(lower, "invalid request") ||
		strings.Contains(lower, "invalid_request") ||
		strings.Contains(lower, "malformed"):
		return ErrorTypeBadRequest
	}
	return ErrorTypeUnknown
}

// timeoutError reports whether err is a transport-level timeout: a
// cancelled deadline or a net.Error that timed out.
func timeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// connectionError reports whether err is a transport-level connection
// failure (refused, reset, unreachable). Dial and DNS failures surface as
// *net.OpError somewhere in the chain.
func connectionError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// ErrorCode extracts the provider-reported error code, if any.
func ErrorCode(err error) string {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Code
	}
	return ""
}

// FormatErrorForUser returns a short, user-presentable message for a
// failed request. The raw provider error stays in the logs.
func FormatErrorForUser(err error) string {
	switch Classify(err) {
	case ErrorTypeRateLimit:
		return "The model is rate limited right now. Please try again shortly."
	case ErrorTypeOverloaded:
		return "The model service is temporarily overloaded. Please try again in a moment."
	case ErrorTypeServer:
		return "The model service reported an internal error. Please try again."
	case ErrorTypeTimeout:
		return "The request timed out. Please try again."
	case ErrorTypeConnection:
		return "Could not reach the model service. Check connectivity and try again."
	case ErrorTypeAuth:
		return "Authentication with the model provider failed. Check the configured API key."
	case ErrorTypeBilling:
		return "The model provider reported a billing problem. Check the account credits."
	case ErrorTypeBadRequest:
		return "The request was rejected by the model provider."
	default:
		return fmt.Sprintf("Model request failed: %v", err)
	}
}
