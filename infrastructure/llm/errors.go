package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrEmptyAPIKey      = errors.New("API key cannot be empty")
	ErrNoResponseChoice = errors.New("no response choices returned")
	ErrNoCandidates     = errors.New("no candidates returned")
)

// ErrorType is the cause recorded when a model abstains. Its String form
// labels the abstention metrics.
type ErrorType int

const (
	ErrorTypeUnknown ErrorType = iota
	ErrorTypeAuthentication
	ErrorTypeRateLimit
	ErrorTypeBadRequest
	ErrorTypeNotFound
	ErrorTypeServerError
	ErrorTypeContentPolicy
	ErrorTypeNetwork
	ErrorTypeTimeout
)

var errorTypeLabels = [...]string{
	ErrorTypeUnknown:        "",
	ErrorTypeAuthentication: "authentication",
	ErrorTypeRateLimit:      "rate_limit",
	ErrorTypeBadRequest:     "bad_request",
	ErrorTypeNotFound:       "not_found",
	ErrorTypeServerError:    "server_error",
	ErrorTypeContentPolicy:  "content_policy",
	ErrorTypeNetwork:        "network",
	ErrorTypeTimeout:        "timeout",
}

// String returns the metric label for t, or "" for unknown causes.
func (t ErrorType) String() string {
	if t < 0 || int(t) >= len(errorTypeLabels) {
		return ""
	}
	return errorTypeLabels[t]
}

// ProviderError is why one provider call produced no answer. The router
// hands it to the dispatcher, which records the model as abstaining.
type ProviderError struct {
	Type         ErrorType
	Provider     string
	StatusCode   int
	Message      string
	WrappedError error
}

// NewProviderError creates a ProviderError.
func NewProviderError(provider string, errType ErrorType, statusCode int, message string, wrapped error) *ProviderError {
	return &ProviderError{
		Type:         errType,
		Provider:     provider,
		StatusCode:   statusCode,
		Message:      message,
		WrappedError: wrapped,
	}
}

func (e *ProviderError) Error() string {
	msg := e.Provider + " call failed"
	if e.StatusCode > 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if cause := e.Type.String(); cause != "" {
		msg += " [" + cause + "]"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.WrappedError != nil {
		msg += ": " + e.WrappedError.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error { return e.WrappedError }

// IsTransient reports whether the failure reflects the provider's health
// rather than the request. The circuit breaker only counts these.
func (e *ProviderError) IsTransient() bool {
	switch e.Type {
	case ErrorTypeRateLimit, ErrorTypeServerError, ErrorTypeNetwork, ErrorTypeTimeout:
		return true
	}
	return false
}

// IsTransient reports whether err is a transient provider failure. Errors
// that are not ProviderErrors count as transient.
func IsTransient(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.IsTransient()
	}
	return err != nil
}

// statusError classifies an HTTP failure reported by a provider SDK. An
// empty message falls back to the status text.
func statusError(provider string, status int, message string, err error) *ProviderError {
	if message == "" {
		message = http.StatusText(status)
	}

	errType := ErrorTypeUnknown
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		errType = ErrorTypeAuthentication
	case status == http.StatusTooManyRequests:
		errType = ErrorTypeRateLimit
	case status == http.StatusNotFound:
		errType = ErrorTypeNotFound
	case status >= 400 && status < 500:
		errType = ErrorTypeBadRequest
	case status >= 500:
		errType = ErrorTypeServerError
	}
	return NewProviderError(provider, errType, status, message, err)
}

// contextError classifies a call cut short by its context: the per-call
// timeout or the client going away.
func contextError(provider string, err error) *ProviderError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewProviderError(provider, ErrorTypeTimeout, 0, "call timed out", err)
	case errors.Is(err, context.Canceled):
		return NewProviderError(provider, ErrorTypeNetwork, 0, "request canceled", err)
	}
	return NewProviderError(provider, ErrorTypeUnknown, 0, "", err)
}
