package wire

import (
	"fmt"

	"github.com/faiproject/fai/pkg/constants"
)

// Error is a protocol-level error carried in the body of a frame with
// Kind == 0, distinct from the ferr taxonomy used internally: this one
// crosses the wire and must stay a small, stable, CBOR-encodable shape.
type Error struct {
	Code       uint16  `cbor:"code"`
	Reason     string  `cbor:"reason"`
	RetryAfter *uint32 `cbor:"retry_after,omitempty"`
}

// NewError creates a protocol error with no retry hint.
func NewError(code uint16, reason string) *Error {
	return &Error{Code: code, Reason: reason}
}

// NewErrorWithRetry creates a protocol error carrying a retry-after hint,
// in seconds.
func NewErrorWithRetry(code uint16, reason string, retryAfter uint32) *Error {
	return &Error{Code: code, Reason: reason, RetryAfter: &retryAfter}
}

func (e *Error) Error() string {
	if e.RetryAfter != nil {
		return fmt.Sprintf("fai protocol error %d: %s (retry after %ds)", e.Code, e.Reason, *e.RetryAfter)
	}
	return fmt.Sprintf("fai protocol error %d: %s", e.Code, e.Reason)
}

// IsRetryable reports whether the error suggests the caller retry.
func (e *Error) IsRetryable() bool {
	return e.RetryAfter != nil || e.Code == constants.ErrorRateLimit
}

// ErrorCodeName returns the human-readable name for an error code.
func ErrorCodeName(code uint16) string {
	switch code {
	case constants.ErrorInvalidSig:
		return "INVALID_SIG"
	case constants.ErrorNotFound:
		return "NOT_FOUND"
	case constants.ErrorNoProvider:
		return "NO_PROVIDER"
	case constants.ErrorRateLimit:
		return "RATE_LIMIT"
	case constants.ErrorVersionMismatch:
		return "VERSION_MISMATCH"
	case constants.ErrorConflict:
		return "CONFLICT"
	default:
		return fmt.Sprintf("UNKNOWN_%d", code)
	}
}

// ErrInvalidSignature builds an invalid-signature error.
func ErrInvalidSignature(reason string) *Error {
	return NewError(constants.ErrorInvalidSig, reason)
}

// ErrNotFound builds a not-found error for a digest, commit, or ref.
func ErrNotFound(subject string) *Error {
	return NewError(constants.ErrorNotFound, fmt.Sprintf("not found: %s", subject))
}

// ErrNoProvider builds a no-provider error for a digest no known peer holds.
func ErrNoProvider(digest string) *Error {
	return NewError(constants.ErrorNoProvider, fmt.Sprintf("no provider found for %s", digest))
}

// ErrRateLimit builds a rate-limit error with a retry-after hint.
func ErrRateLimit(retryAfter uint32) *Error {
	return NewErrorWithRetry(constants.ErrorRateLimit, "rate limit exceeded", retryAfter)
}

// ErrVersionMismatch builds a protocol-version-mismatch error.
func ErrVersionMismatch(expected, actual uint16) *Error {
	return NewError(constants.ErrorVersionMismatch,
		fmt.Sprintf("version mismatch: expected %d, got %d", expected, actual))
}

// ErrConflict builds a conflict error, e.g. for a HEAD that moved since the
// caller last observed it.
func ErrConflict(reason string) *Error {
	return NewError(constants.ErrorConflict, reason)
}

// ErrorFrame wraps a protocol Error in a BaseFrame with the reserved
// error kind.
func ErrorFrame(from string, seq uint64, err *Error) *BaseFrame {
	return NewBaseFrame(0, from, seq, err)
}

// IsErrorFrame reports whether a frame carries an error body.
func IsErrorFrame(frame *BaseFrame) bool {
	return frame.Kind == 0
}

// ExtractError pulls the Error out of an error frame.
func ExtractError(frame *BaseFrame) (*Error, error) {
	if !IsErrorFrame(frame) {
		return nil, fmt.Errorf("frame is not an error frame")
	}
	err, ok := frame.Body.(*Error)
	if !ok {
		return nil, fmt.Errorf("frame body is not an Error")
	}
	return err, nil
}
