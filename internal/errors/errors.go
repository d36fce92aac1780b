package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"syscall"
)

// OneDeskError is the structured error type for One-Desk.
// It carries enough context for logging, HTTP status mapping and CLI output.
type OneDeskError struct {
	// Code is the unique error code (e.g., "ERR_402_DIMENSION_MISMATCH").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Network, etc.).
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
func (e *OneDeskError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *OneDeskError) Unwrap() error {
	return e.Cause
}

// Is matches another OneDeskError by code, so errors.Is works against
// sentinel-style values built with New.
func (e *OneDeskError) Is(target error) bool {
	if t, ok := target.(*OneDeskError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *OneDeskError) WithDetail(key, value string) *OneDeskError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *OneDeskError) WithSuggestion(suggestion string) *OneDeskError {
	e.Suggestion = suggestion
	return e
}

// New creates a new OneDeskError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *OneDeskError {
	return &OneDeskError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a OneDeskError from an existing error.
// The error's message becomes the OneDeskError message.
func Wrap(code string, err error) *OneDeskError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *OneDeskError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ValidationError reports malformed caller input. Not retried.
func ValidationError(message string, cause error) *OneDeskError {
	return New(ErrCodeInvalidInput, message, cause)
}

// DimensionError reports an embedding dimensionality mismatch against an
// already-initialized index.
func DimensionError(expected, got int) *OneDeskError {
	return New(ErrCodeDimensionMismatch,
		fmt.Sprintf("dimension mismatch: expected %d, got %d", expected, got), nil).
		WithDetail("expected", fmt.Sprint(expected)).
		WithDetail("got", fmt.Sprint(got)).
		WithSuggestion("the embedding model changed since the index was built; rebuild it with 'onedesk ingest --rebuild'")
}

// ModelError reports an embedding backend failure.
func ModelError(message string, cause error) *OneDeskError {
	return New(ErrCodeEmbeddingFailed, message, cause)
}

// BackendError reports an unreachable or misbehaving LLM backend.
func BackendError(message string, cause error) *OneDeskError {
	return New(ErrCodeLLMUnavailable, message, cause)
}

// PersistenceError reports a disk I/O failure while saving an index.
// A cause of ENOSPC is reported as ErrCodeDiskFull.
func PersistenceError(message string, cause error) *OneDeskError {
	if stderrors.Is(cause, syscall.ENOSPC) {
		return New(ErrCodeDiskFull, message, cause).
			WithSuggestion("free disk space under the indices directory and retry")
	}
	return New(ErrCodePersistFailed, message, cause)
}

// CorruptIndexError reports persisted index artifacts that exist but cannot be
// read back.
func CorruptIndexError(message string, cause error) *OneDeskError {
	return New(ErrCodeCorruptIndex, message, cause).
		WithSuggestion("delete the index files or run 'onedesk ingest --rebuild'")
}

// IOError creates an I/O-related error.
func IOError(message string, cause error) *OneDeskError {
	return New(ErrCodeFileNotFound, message, cause)
}

// NetworkError creates a network-related error.
// Network errors are typically retryable.
func NetworkError(message string, cause error) *OneDeskError {
	return New(ErrCodeNetworkTimeout, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *OneDeskError {
	return New(ErrCodeInternal, message, cause)
}

// As extracts the first OneDeskError in err's chain.
func As(err error) (*OneDeskError, bool) {
	var oe *OneDeskError
	if stderrors.As(err, &oe) {
		return oe, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if oe, ok := As(err); ok {
		return oe.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	if oe, ok := As(err); ok {
		return oe.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a OneDeskError.
// Returns empty string if not a OneDeskError.
func GetCode(err error) string {
	if oe, ok := As(err); ok {
		return oe.Code
	}
	return ""
}

// GetCategory extracts the category from a OneDeskError.
// Returns empty string if not a OneDeskError.
func GetCategory(err error) Category {
	if oe, ok := As(err); ok {
		return oe.Category
	}
	return ""
}

// HasCode reports whether err's chain holds a OneDeskError with code.
func HasCode(err error, code string) bool {
	return GetCode(err) == code
}

// HTTPStatus maps an error to the status code the HTTP layer should return.
func HTTPStatus(err error) int {
	oe, ok := As(err)
	if !ok {
		return http.StatusInternalServerError
	}

	switch oe.Code {
	case ErrCodeFileTooLarge:
		return http.StatusRequestEntityTooLarge
	case ErrCodeUnsupportedFile:
		return http.StatusUnsupportedMediaType
	case ErrCodeDimensionMismatch:
		return http.StatusConflict
	}

	switch oe.Category {
	case CategoryValidation:
		return http.StatusBadRequest
	case CategoryNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
