package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the three failure classes of the chunking engine.
var (
	// ErrConfiguration marks invalid or contradictory configuration values.
	// Raised before any document is processed.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrMalformedInput marks a Document missing required fields. No chunks
	// are emitted; the caller violated the contract and must not retry as-is.
	ErrMalformedInput = errors.New("malformed input")

	// ErrCollaborator marks an internally inconsistent result from an injected
	// tokenizer or sentence splitter. Propagated, never routed around.
	ErrCollaborator = errors.New("collaborator failure")
)

// Validation sentinels wrapped by ValidationError.
var (
	ErrMissingUID    = errors.New("missing document uid")
	ErrMissingSource = errors.New("missing document source")
	ErrUnknownSection = errors.New("unknown section name")
)

// ValidationError wraps a sentinel with field context.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}
