// -----------------------------------------------------------------------
// Errors - Typed engine errors with stable machine-readable kinds
// -----------------------------------------------------------------------

package models

import (
	"errors"
	"fmt"
)

// ErrorKind is the stable code transport adapters map onto status codes.
type ErrorKind string

const (
	ErrKindConflict        ErrorKind = "conflict"
	ErrKindStaleCommitment ErrorKind = "stale-commitment"
	ErrKindNotFound        ErrorKind = "not-found"
	ErrKindInvalidPayload  ErrorKind = "invalid-payload"
	ErrKindInternal        ErrorKind = "internal"
)

// Error carries an ErrorKind through the engine layers. Wrap freely with
// fmt.Errorf("...: %w", err); KindOf unwraps.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Conflictf builds a conflict error (same job id, different request hash).
func Conflictf(format string, args ...interface{}) *Error {
	return &Error{Kind: ErrKindConflict, Message: fmt.Sprintf(format, args...)}
}

// StaleCommitmentf builds a stale-commitment error (completion or heartbeat
// after the contract terminated, or an unknown commitment id).
func StaleCommitmentf(format string, args ...interface{}) *Error {
	return &Error{Kind: ErrKindStaleCommitment, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf builds a not-found error.
func NotFoundf(format string, args ...interface{}) *Error {
	return &Error{Kind: ErrKindNotFound, Message: fmt.Sprintf(format, args...)}
}

// InvalidPayloadf builds an invalid-payload error.
func InvalidPayloadf(format string, args ...interface{}) *Error {
	return &Error{Kind: ErrKindInvalidPayload, Message: fmt.Sprintf(format, args...)}
}

// Internalf builds an internal error; the operation is safe to retry.
func Internalf(format string, args ...interface{}) *Error {
	return &Error{Kind: ErrKindInternal, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind from err, defaulting to internal for
// unclassified errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}
