package commentguard

import (
	"fmt"
	"time"
)

// Pipeline error codes as constants
const (
	ErrorCodeValidationFailed    = "validation_failed"
	ErrorCodeDuplicateContent    = "duplicate_content"
	ErrorCodeAuthorizationDenied = "authorization_denied"
	ErrorCodeRateLimitExceeded   = "rate_limit_exceeded"
	ErrorCodeInvalidInput        = "invalid_input"
	ErrorCodeDecryptionFailed    = "decryption_failed"
	ErrorCodeNotFound            = "not_found"
	ErrorCodeInternalError       = "internal_error"
)

// Error represents a typed pipeline failure surfaced to callers.
// Expected outcomes (validation, duplicate, authorization, rate limit) carry
// enough detail to act on; crypto and internal failures are deliberately
// low-detail to avoid oracle leakage.
type Error struct {
	Code       string        // Stable machine-readable code (e.g. "validation_failed")
	Message    string        // Human-readable description
	Field      string        // Offending field, for validation errors
	Rule       string        // Failed rule, for validation errors
	RetryAfter time.Duration // Populated for rate limit errors
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field=%s, rule=%s)", e.Code, e.Message, e.Field, e.Rule)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is allows errors.Is matching on the code, so callers can compare against
// the constructors without tracking instances.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewError creates a new pipeline error
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Common pipeline errors as reusable constructors
var (
	// ErrValidation indicates the payload failed a validation rule
	ErrValidation = func(field, rule, message string) *Error {
		return &Error{Code: ErrorCodeValidationFailed, Message: message, Field: field, Rule: rule}
	}

	// ErrDuplicateContent indicates identical content from the same owner
	// within the duplicate suppression window
	ErrDuplicateContent = func(desc string) *Error {
		return NewError(ErrorCodeDuplicateContent, desc)
	}

	// ErrAuthorization indicates insufficient privilege for the requested action
	ErrAuthorization = func(desc string) *Error {
		return NewError(ErrorCodeAuthorizationDenied, desc)
	}

	// ErrRateLimit indicates the caller exceeded its quota for the operation class
	ErrRateLimit = func(retryAfter time.Duration) *Error {
		return &Error{
			Code:       ErrorCodeRateLimitExceeded,
			Message:    "rate limit exceeded",
			RetryAfter: retryAfter,
		}
	}

	// ErrInvalidInput indicates crypto misuse such as empty plaintext or a
	// malformed key
	ErrInvalidInput = func(desc string) *Error {
		return NewError(ErrorCodeInvalidInput, desc)
	}

	// ErrDecryption indicates tampering, context mismatch, or a malformed
	// envelope. The message is intentionally generic; the distinguishing
	// detail is logged server-side only.
	ErrDecryption = func() *Error {
		return NewError(ErrorCodeDecryptionFailed, "decryption failed")
	}

	// ErrNotFound indicates no row is visible under the caller's isolation
	ErrNotFound = func(desc string) *Error {
		return NewError(ErrorCodeNotFound, desc)
	}

	// ErrInternal indicates a store or infrastructure failure
	ErrInternal = func(desc string) *Error {
		return NewError(ErrorCodeInternalError, desc)
	}
)

// Sanitized returns a copy of the error safe to surface to callers in the
// given deployment posture. In production, internal and decryption errors are
// stripped to a generic message; expected outcomes pass through unchanged.
func (e *Error) Sanitized(production bool) *Error {
	if !production {
		return e
	}
	switch e.Code {
	case ErrorCodeInternalError:
		return NewError(ErrorCodeInternalError, "internal error")
	case ErrorCodeDecryptionFailed:
		return NewError(ErrorCodeDecryptionFailed, "decryption failed")
	default:
		return e
	}
}

// IsCode reports whether err is a pipeline *Error with the given code.
func IsCode(err error, code string) bool {
	e, ok := err.(*Error)
	return ok && e.Code == code
}
