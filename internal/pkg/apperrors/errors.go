package apperrors

import "errors"

// ValidationError means a transition guard rejected the input before any
// mutation. The message names the failing field so the UI can show an
// actionable error.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Validation builds a ValidationError with the given guard message.
func Validation(message string) error {
	return &ValidationError{Message: message}
}

// ConflictError means a concurrent transition is already in flight for the
// same COI. Callers should reload current state and retry.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// Conflict builds a ConflictError.
func Conflict(message string) error {
	return &ConflictError{Message: message}
}

// NotFoundError means the target record does not exist or is archived.
// Always fatal to the single operation, never a silent no-op.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// NotFound builds a NotFoundError.
func NotFound(message string) error {
	return &NotFoundError{Message: message}
}

// NotificationFailure means a post-commit notification could not be
// delivered. The state transition it followed is still successful; this is
// surfaced as a warning, not an error response.
type NotificationFailure struct {
	Message string
	Err     error
}

func (e *NotificationFailure) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *NotificationFailure) Unwrap() error { return e.Err }

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var ne *NotFoundError
	return errors.As(err, &ne)
}
