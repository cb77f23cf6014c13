package shared

import (
	"errors"
	"fmt"
)

// Error codes shared by the domain and the transport layer
const (
	CodeNotFound            = "NOT_FOUND"
	CodeValidation          = "VALIDATION_ERROR"
	CodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
	CodeConsistencyMismatch = "CONSISTENCY_MISMATCH"
	CodeInvalidState        = "INVALID_STATE"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is reports whether target is a DomainError with the same code
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// WithDetail returns a copy of the error carrying an extra detail entry
func (e *DomainError) WithDetail(key string, value any) *DomainError {
	details := make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	return &DomainError{Code: e.Code, Message: e.Message, Details: details}
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// NewNotFoundError creates a NOT_FOUND error for the named resource
func NewNotFoundError(resource, id string) *DomainError {
	return NewDomainError(CodeNotFound, fmt.Sprintf("%s %s not found", resource, id)).
		WithDetail("resource", resource).
		WithDetail("id", id)
}

// NewValidationError creates a VALIDATION_ERROR
func NewValidationError(format string, args ...any) *DomainError {
	return NewDomainError(CodeValidation, fmt.Sprintf(format, args...))
}

// NewConflictError creates a CONCURRENCY_CONFLICT error
func NewConflictError(format string, args ...any) *DomainError {
	return NewDomainError(CodeConcurrencyConflict, fmt.Sprintf(format, args...))
}

// NewConsistencyError creates a CONSISTENCY_MISMATCH error
func NewConsistencyError(format string, args ...any) *DomainError {
	return NewDomainError(CodeConsistencyMismatch, fmt.Sprintf(format, args...))
}

// Common domain errors
var (
	ErrNotFound            = NewDomainError(CodeNotFound, "Resource not found")
	ErrInvalidInput        = NewDomainError(CodeValidation, "Invalid input provided")
	ErrConcurrencyConflict = NewDomainError(CodeConcurrencyConflict, "Resource was modified by another process")
	ErrConsistencyMismatch = NewDomainError(CodeConsistencyMismatch, "Stored totals do not agree")
	ErrInvalidState        = NewDomainError(CodeInvalidState, "Operation not allowed in current state")
)

// CodeOf returns the domain error code of err, or an empty string
func CodeOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// IsNotFound reports whether err is a NOT_FOUND domain error
func IsNotFound(err error) bool { return CodeOf(err) == CodeNotFound }

// IsValidation reports whether err is a VALIDATION_ERROR domain error
func IsValidation(err error) bool { return CodeOf(err) == CodeValidation }

// IsConflict reports whether err is a CONCURRENCY_CONFLICT domain error
func IsConflict(err error) bool { return CodeOf(err) == CodeConcurrencyConflict }

// IsConsistency reports whether err is a CONSISTENCY_MISMATCH domain error
func IsConsistency(err error) bool { return CodeOf(err) == CodeConsistencyMismatch }
