package domain

import (
	"errors"
	"fmt"
)

// Common domain errors raised by the council and its collaborators.
var (
	// ErrCredentialsMissing indicates that no client is configured for the
	// provider family a model routes to.
	ErrCredentialsMissing = errors.New("provider credentials not configured")

	// ErrConversationNotFound indicates that a conversation id is unknown.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrFileNotFound indicates that a file id is unknown for a conversation.
	ErrFileNotFound = errors.New("file not found")

	// ErrUnknownTemplate indicates that a system-prompt template id is unknown.
	ErrUnknownTemplate = errors.New("unknown template")

	// ErrInvalidConfiguration indicates that configuration is invalid or incomplete.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// AbstentionError records why a model produced no usable result. Callers
// treat it as the model's absence, never as a failure of the whole request.
type AbstentionError struct {
	// Model is the model identifier that abstained.
	Model string
	// Cause is the underlying credential, transport, provider, or timeout error.
	Cause error
}

// Error implements the error interface for AbstentionError.
func (e *AbstentionError) Error() string {
	return fmt.Sprintf("model %s abstained: %v", e.Model, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *AbstentionError) Unwrap() error { return e.Cause }

// NewAbstention wraps cause as an abstention of model. An existing
// AbstentionError is returned unchanged.
func NewAbstention(model string, cause error) *AbstentionError {
	var existing *AbstentionError
	if errors.As(cause, &existing) {
		return existing
	}
	return &AbstentionError{Model: model, Cause: cause}
}

// IsAbstention reports whether err marks a model abstention.
func IsAbstention(err error) bool {
	var a *AbstentionError
	return errors.As(err, &a)
}

// ValidationError represents an error that occurred during validation.
// It can contain multiple validation failures.
type ValidationError struct {
	// Entity is the name of the entity that failed validation.
	Entity string

	// Errors contains the list of validation error messages.
	Errors []string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %v", e.Entity, e.Errors)
}

// AddError adds a new error message to the validation error.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// HasErrors returns true if there are any validation errors.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// NewValidationError creates a new ValidationError for the given entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{
		Entity: entity,
		Errors: make([]string, 0),
	}
}
