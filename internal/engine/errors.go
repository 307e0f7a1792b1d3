package engine

import (
	"errors"
	"fmt"
)

// SyncError is a request-level failure. It short-circuits the whole call,
// unlike per-change outcomes which are reported in PushResult entries.
type SyncError struct {
	// Code identifies the error category.
	Code SyncErrorCode

	// Message is a human-readable description, safe to show to clients.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// SyncErrorCode categorizes request-level failures.
type SyncErrorCode string

const (
	// ErrCodeValidation indicates a malformed request (HTTP 400).
	ErrCodeValidation SyncErrorCode = "VALIDATION_ERROR"

	// ErrCodeForbidden indicates the caller is not a member of the circle (HTTP 403).
	ErrCodeForbidden SyncErrorCode = "FORBIDDEN"

	// ErrCodeNotFound indicates an administrative target does not exist.
	ErrCodeNotFound SyncErrorCode = "NOT_FOUND"

	// ErrCodeConflict indicates an administrative create of an existing record.
	ErrCodeConflict SyncErrorCode = "CONFLICT"

	// ErrCodeStorage indicates the underlying persistence failed.
	ErrCodeStorage SyncErrorCode = "STORAGE_ERROR"

	// ErrCodeUnknownEntityType indicates an entity type with no registered store.
	ErrCodeUnknownEntityType SyncErrorCode = "UNKNOWN_ENTITY_TYPE"
)

// Error implements the error interface.
func (e *SyncError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the cause to errors.Is and errors.As.
func (e *SyncError) Unwrap() error {
	return e.Err
}

func newValidationError(format string, args ...any) *SyncError {
	return &SyncError{Code: ErrCodeValidation, Message: fmt.Sprintf(format, args...)}
}

func newForbiddenError(circleID string) *SyncError {
	return &SyncError{Code: ErrCodeForbidden, Message: fmt.Sprintf("not a member of circle %s", circleID)}
}

func newStorageError(op string, err error) *SyncError {
	return &SyncError{Code: ErrCodeStorage, Message: op + " failed", Err: err}
}

// CodeOf returns the code of a SyncError anywhere in err's chain, or "".
func CodeOf(err error) SyncErrorCode {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsValidationError reports whether err is a request validation failure.
// Matches both SyncError with ErrCodeValidation and BatchTooLargeError.
func IsValidationError(err error) bool {
	return CodeOf(err) == ErrCodeValidation || IsBatchTooLarge(err)
}

// IsForbidden reports whether err is a membership failure.
func IsForbidden(err error) bool {
	return CodeOf(err) == ErrCodeForbidden
}

// IsNotFound reports whether err names a missing administrative target.
func IsNotFound(err error) bool {
	return CodeOf(err) == ErrCodeNotFound
}

// IsConflict reports whether err is a duplicate administrative create.
func IsConflict(err error) bool {
	return CodeOf(err) == ErrCodeConflict
}
