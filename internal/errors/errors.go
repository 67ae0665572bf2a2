package errors

import (
	"fmt"
)

// LexError is the structured error type for LexFuse.
// It provides rich context for error handling, logging, and user presentation.
type LexError struct {
	// Code is the unique error code (e.g., "ERR_301_ENCODING_FAILED").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Store, Service, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried or degraded.
	Retryable bool
}

// Error implements the error interface.
func (e *LexError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *LexError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with LexError.
func (e *LexError) Is(target error) bool {
	if t, ok := target.(*LexError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *LexError) WithDetail(key, value string) *LexError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new LexError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *LexError {
	return &LexError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a LexError from an existing error.
// The error's message becomes the LexError message.
func Wrap(code string, err error) *LexError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// EncodingError creates an embedding-service error.
// Fatal for the whole query: there is no retrieval path without a vector.
func EncodingError(message string, cause error) *LexError {
	return New(ErrCodeEncoding, message, cause)
}

// KnowledgeGraphError creates a recoverable knowledge-graph error.
func KnowledgeGraphError(message string, cause error) *LexError {
	return New(ErrCodeKnowledgeGraph, message, cause)
}

// KeywordIndexError creates a recoverable keyword-index error.
func KeywordIndexError(message string, cause error) *LexError {
	return New(ErrCodeKeywordIndex, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *LexError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *LexError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error is a LexError with Retryable flag set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if le, ok := err.(*LexError); ok {
		return le.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if le, ok := err.(*LexError); ok {
		return le.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a LexError.
// Returns empty string if not a LexError.
func GetCode(err error) string {
	if le, ok := err.(*LexError); ok {
		return le.Code
	}
	return ""
}
