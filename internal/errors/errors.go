package errors

import (
	stderrors "errors"
	"fmt"
	"slices"
	"strings"
)

// ErrorCode represents a stateintent error code.
type ErrorCode string

const (
	ErrInvalidInput       ErrorCode = "INVALID_INPUT"        // 400
	ErrInputTooLarge      ErrorCode = "INPUT_TOO_LARGE"      // 413
	ErrExtractionFailed   ErrorCode = "EXTRACTION_FAILED"    // 500
	ErrFinalization       ErrorCode = "FINALIZATION_FAILED"  // 500
	ErrMaxRetriesExceeded ErrorCode = "MAX_RETRIES_EXCEEDED" // 500
	ErrInternal           ErrorCode = "INTERNAL"             // 500
)

// Error represents a structured error with code, status, and details.
type Error struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any

	// cause is kept for logs only; it never reaches a response body.
	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// NewInvalidInput creates a 400 error for empty or malformed caller input.
func NewInvalidInput(msg string) *Error {
	return &Error{
		Code:    ErrInvalidInput,
		Status:  400,
		Message: msg,
	}
}

// NewInputTooLarge creates a 413 error when input text exceeds the size limit.
func NewInputTooLarge(max, actual int) *Error {
	return &Error{
		Code:    ErrInputTooLarge,
		Status:  413,
		Message: fmt.Sprintf("text exceeds maximum size: %d chars (max %d)", actual, max),
		Details: map[string]any{"max_chars": max, "actual_chars": actual},
	}
}

// NewExtractionFailed creates a 500 error for extractor malfunctions.
// The cause is retained for Unwrap but is not part of the message.
func NewExtractionFailed(msg string, cause error) *Error {
	return &Error{
		Code:    ErrExtractionFailed,
		Status:  500,
		Message: msg,
		cause:   cause,
	}
}

// NewFinalization creates a 500 error when finalization is attempted on a
// record whose validation did not pass.
func NewFinalization(issues []string) *Error {
	return &Error{
		Code:    ErrFinalization,
		Status:  500,
		Message: "validation failed: " + strings.Join(issues, ", "),
		Details: map[string]any{"issues": slices.Clone(issues)},
	}
}

// NewMaxRetriesExceeded creates a 500 error once every attempt failed validation.
// Adapters surface only the message; Details are for callers in-process.
func NewMaxRetriesExceeded(attempts int, issues []string) *Error {
	return &Error{
		Code:    ErrMaxRetriesExceeded,
		Status:  500,
		Message: MaxRetriesSummary(issues),
		Details: map[string]any{"attempts": attempts, "issues": slices.Clone(issues)},
	}
}

// MaxRetriesSummary formats the joined-issues summary shared by the error
// message and the failure audit entry.
func MaxRetriesSummary(issues []string) string {
	return "validation failed after max retries: " + strings.Join(issues, ", ")
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *Error {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &Error{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		cause:   err,
	}
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Is checks if err (or anything it wraps) is an *Error with the given code.
func Is(err error, code ErrorCode) bool {
	if e, ok := As(err); ok {
		return e.Code == code
	}
	return false
}

// Public reports whether the message of e may be shown to callers.
// Internal and extraction failures carry collaborator detail and are masked.
func (e *Error) Public() bool {
	switch e.Code {
	case ErrInternal, ErrExtractionFailed, ErrFinalization:
		return false
	}
	return true
}
