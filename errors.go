package servicebus

import (
	"errors"
	"fmt"
)

// Error represents a servicebus library error with categorization.
type Error struct {
	// Code is a machine-readable error code
	Code string

	// Message is a human-readable error message
	Message string

	// Err is the underlying error (if any)
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Error codes for servicebus operations.
const (
	// ErrCodeNoData indicates no data was found.
	ErrCodeNoData = "NO_DATA"

	// ErrCodeValidation indicates validation failed.
	ErrCodeValidation = "VALIDATION_ERROR"

	// ErrCodeConfiguration indicates invalid configuration.
	ErrCodeConfiguration = "CONFIGURATION_ERROR"

	// ErrCodeDatabase indicates database operation failed.
	ErrCodeDatabase = "DATABASE_ERROR"

	// ErrCodeTransport indicates a queue transport operation failed.
	ErrCodeTransport = "TRANSPORT_ERROR"

	// ErrCodePatternMismatch indicates no destination queue matched a send pattern.
	ErrCodePatternMismatch = "PATTERN_MISMATCH"

	// ErrCodeQueueExists indicates a queue already exists where creation was required.
	ErrCodeQueueExists = "QUEUE_EXISTS"

	// ErrCodeQueueNotFound indicates a queue does not exist where retrieval was required.
	ErrCodeQueueNotFound = "QUEUE_NOT_FOUND"

	// ErrCodeQueueConflict indicates an existing queue does not match the required configuration.
	ErrCodeQueueConflict = "QUEUE_CONFLICT"

	// ErrCodeQueueLocked indicates the queue is already opened for exclusive read.
	ErrCodeQueueLocked = "QUEUE_LOCKED"

	// ErrCodeQueueFull indicates the queue reached its maximum size.
	ErrCodeQueueFull = "QUEUE_FULL"

	// ErrCodeInvalidState indicates an operation is illegal in the current state
	// (a subscriber already running, a closed publisher).
	ErrCodeInvalidState = "INVALID_STATE"
)

// Common errors.
var (
	// ErrNoData is returned when a query returns no results.
	// This is not necessarily an error condition in all cases.
	ErrNoData = &Error{
		Code:    ErrCodeNoData,
		Message: "no data found",
	}

	// ErrInvalidConfiguration is returned when publisher or subscriber configuration is invalid.
	ErrInvalidConfiguration = &Error{
		Code:    ErrCodeConfiguration,
		Message: "invalid configuration",
	}
)

// NewError creates a new Error with the given code and message.
func NewError(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// NewErrorWithCause creates a new Error wrapping an underlying error.
func NewErrorWithCause(code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     cause,
	}
}

// IsNoData checks if an error is ErrNoData.
func IsNoData(err error) bool {
	return HasCode(err, ErrCodeNoData)
}

// HasCode reports whether err, or any error it wraps, is an *Error with the given code.
func HasCode(err error, code string) bool {
	var sbErr *Error
	if errors.As(err, &sbErr) {
		return sbErr.Code == code
	}
	return false
}
