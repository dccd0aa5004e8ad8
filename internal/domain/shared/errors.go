package shared

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-level error.
// Two domain errors are considered equal by errors.Is when their codes match,
// so callers can compare against the sentinels below even when the message
// carries request-specific detail.
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
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
	return e.Code == t.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound            = NewDomainError("NOT_FOUND", "Resource not found")
	ErrAlreadyExists       = NewDomainError("ALREADY_EXISTS", "Resource already exists")
	ErrInvalidInput        = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrConcurrencyConflict = NewDomainError("CONCURRENCY_CONFLICT", "Resource was modified by another process")
	ErrInvalidState        = NewDomainError("INVALID_STATE", "Operation not allowed in current state")
)

// ErrorKind classifies an error for callers that translate it to a transport status
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindNotFound
	KindValidation
	KindConflict
)

// String returns the string representation of the kind
func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

var conflictCodes = map[string]bool{
	"ALREADY_EXISTS":       true,
	"CONCURRENCY_CONFLICT": true,
}

// KindOf classifies err. Any domain error that is not a lookup miss or a
// conflict is a caller-side problem; everything else is internal.
func KindOf(err error) ErrorKind {
	var de *DomainError
	if !errors.As(err, &de) {
		return KindInternal
	}
	switch {
	case de.Code == ErrNotFound.Code:
		return KindNotFound
	case conflictCodes[de.Code]:
		return KindConflict
	default:
		return KindValidation
	}
}

// NotFoundf returns a NOT_FOUND domain error with a specific message
func NotFoundf(format string, args ...any) *DomainError {
	return NewDomainError(ErrNotFound.Code, fmt.Sprintf(format, args...))
}
