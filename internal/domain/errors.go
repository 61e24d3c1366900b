package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is allows errors.Is to match wrapped copies of a sentinel DomainError by code
// and message rather than pointer identity.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeUnavailable   = "UNAVAILABLE"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// Validation errors. These indicate caller misuse and propagate to the
// developer rather than degrading the request.
var (
	ErrMissingRequiredField = NewDomainError(ErrCodeValidation, "missing required field")
	ErrInvalidSourceType    = NewDomainError(ErrCodeValidation, "invalid source type")
	ErrInvalidEmbeddingDims = NewDomainError(ErrCodeValidation, "embedding has wrong dimensionality")
	ErrInvalidQueryVector   = NewDomainError(ErrCodeValidation, "query vector is empty or has wrong dimensionality")
)

// Not found errors
var (
	ErrChunkNotFound = NewDomainError(ErrCodeNotFound, "chunk not found")
)

// Availability errors. Callers degrade gracefully on these: context assembly
// falls back to keyword-only search when embeddings are unavailable and
// returns an empty context when both retrieval paths are down.
var (
	ErrEmbeddingUnavailable = NewDomainError(ErrCodeUnavailable, "embedding provider unavailable")
	ErrStoreUnavailable     = NewDomainError(ErrCodeUnavailable, "search store unavailable")
)

// IsDegradable reports whether err is a condition callers should degrade on
// rather than fail the whole request.
func IsDegradable(err error) bool {
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		return false
	}
	return domainErr.Code == ErrCodeUnavailable
}
