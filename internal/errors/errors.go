package errors

import (
	"fmt"
)

// SweepError is the structured error type for codesweep.
// It provides rich context for error handling, logging, and user presentation.
type SweepError struct {
	// Code is the unique error code (e.g., "ERR_201_STORE_OPEN").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Storage, Network, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *SweepError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *SweepError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with SweepError.
func (e *SweepError) Is(target error) bool {
	if t, ok := target.(*SweepError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *SweepError) WithDetail(key, value string) *SweepError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *SweepError) WithSuggestion(suggestion string) *SweepError {
	e.Suggestion = suggestion
	return e
}

// New creates a new SweepError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *SweepError {
	return &SweepError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a SweepError from an existing error.
// The error's message becomes the SweepError message.
func Wrap(code string, err error) *SweepError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *SweepError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// StorageError creates a cache/metrics persistence error.
// Storage errors are swallowed at the engine boundary and only logged.
func StorageError(message string, cause error) *SweepError {
	return New(ErrCodeStoreOpen, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *SweepError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *SweepError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if se, ok := err.(*SweepError); ok {
		return se.Retryable
	}
	return false
}

// GetCode extracts the error code from a SweepError.
// Returns empty string if not a SweepError.
func GetCode(err error) string {
	if se, ok := err.(*SweepError); ok {
		return se.Code
	}
	return ""
}

// GetCategory extracts the category from a SweepError.
func GetCategory(err error) Category {
	if se, ok := err.(*SweepError); ok {
		return se.Category
	}
	return ""
}
