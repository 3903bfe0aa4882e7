package errors

import (
	"fmt"
)

// WeftError is the structured error type for Weft.
// It carries enough context for retry decisions, logging, and user display.
type WeftError struct {
	// Code is the unique error code (e.g., "ERR_202_MANIFEST_CORRUPT").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Storage, Backend, ...).
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
func (e *WeftError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *WeftError) Unwrap() error {
	return e.Cause
}

// Is matches errors by code so errors.Is works across wrapped instances.
func (e *WeftError) Is(target error) bool {
	if t, ok := target.(*WeftError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *WeftError) WithDetail(key, value string) *WeftError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *WeftError) WithSuggestion(suggestion string) *WeftError {
	e.Suggestion = suggestion
	return e
}

// New creates a WeftError with the given code and message.
// Category, severity, and the retryable flag are derived from the code.
func New(code string, message string, cause error) *WeftError {
	return &WeftError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a WeftError from an existing error.
// The error's message becomes the WeftError message.
func Wrap(code string, err error) *WeftError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *WeftError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// StorageError creates a manifest/checkpoint/index persistence error.
func StorageError(message string, cause error) *WeftError {
	return New(ErrCodeStorageFailed, message, cause)
}

// BackendError creates a vector-store or embedder backend error.
// Backend errors are typically retryable.
func BackendError(message string, cause error) *WeftError {
	return New(ErrCodeBackendUnavailable, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *WeftError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *WeftError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
// Errors that are not WeftErrors are conservatively treated as retryable so
// raw transport errors from backend SDKs still go through the retry loop.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if we, ok := err.(*WeftError); ok {
		return we.Retryable
	}
	return true
}

// IsFatal checks if an error has fatal severity.
// Fatal errors abort the current run.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if we, ok := err.(*WeftError); ok {
		return we.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a WeftError.
// Returns empty string if not a WeftError.
func GetCode(err error) string {
	if we, ok := err.(*WeftError); ok {
		return we.Code
	}
	return ""
}

// GetCategory extracts the category from a WeftError.
// Returns empty string if not a WeftError.
func GetCategory(err error) Category {
	if we, ok := err.(*WeftError); ok {
		return we.Category
	}
	return ""
}
