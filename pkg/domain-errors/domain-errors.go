package domainerrors

import (
	"errors"
	"net/http"
)

// Code represents a domain error category independent of transport layer.
// These codes describe what went wrong in business logic terms, not HTTP terms.
type Code string

const (
	CodeNotFound     Code = "not_found"
	CodeInvalidInput Code = "invalid_input"
	CodeValidation   Code = "validation_failed"
	CodeInternal     Code = "internal_error"
	CodeConflict     Code = "conflict"
	CodeUnauthorized Code = "unauthorized"
	CodeForbidden    Code = "forbidden"
	CodeTimeout      Code = "timeout"

	// Ingestion-specific codes.
	CodeDuplicateEvent    Code = "duplicate_event"     // Same idempotency key already recorded; success for the caller
	CodeOrderingViolation Code = "ordering_violation"  // Event references a sequence older than what is applied
	CodeTenantIsolation   Code = "tenant_isolation"    // Cross-tenant access attempt; always surfaced, never corrected
	CodeInvalidToken      Code = "invalid_token"       // Credential decrypt or JWT validation failed
	CodeTokenExpired      Code = "token_expired"       // JWT past its expiry
	CodeExternalAPI       Code = "external_api_error"  // Downstream platform call failed; retriable
	CodeRateLimited       Code = "rate_limited"        // Too many requests for this tenant
	CodeInvariant         Code = "invariant_violation" // Illegal state transition or broken model invariant
)

// Error wraps domain or infrastructure failures with a stable code.
// It is transport-agnostic and can be used across service, store, and worker layers.
// Details carries structured context (field names, identifiers) and RetryAfter
// the suggested delay in seconds for rate-limit style failures.
type Error struct {
	Code       Code
	Message    string
	Details    map[string]any
	RetryAfter int
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Code)
}

// Unwrap implements error unwrapping for error chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is enables errors.Is() to match errors by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new domain error with the given code and message.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// NewWithDetails creates a new domain error carrying structured context.
func NewWithDetails(code Code, msg string, details map[string]any) error {
	return &Error{Code: code, Message: msg, Details: details}
}

// Wrap creates a new domain error wrapping an existing error.
// If the wrapped error is already a domain error, the original code is preserved.
func Wrap(err error, code Code, msg string) error {
	var existing *Error
	if errors.As(err, &existing) {
		return &Error{Code: existing.Code, Message: msg, Details: existing.Details, Err: err}
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode checks if an error is a domain error with the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf returns the code of a domain error, or CodeInternal for anything else.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// HTTPStatus maps a domain code to its HTTP-equivalent severity. Duplicate
// events map to 200: repeated delivery is expected and treated as success.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeDuplicateEvent:
		return http.StatusOK
	case CodeInvalidInput, CodeValidation:
		return http.StatusBadRequest
	case CodeUnauthorized, CodeInvalidToken, CodeTokenExpired:
		return http.StatusUnauthorized
	case CodeForbidden, CodeTenantIsolation:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeOrderingViolation, CodeInvariant:
		return http.StatusConflict
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeExternalAPI:
		return http.StatusBadGateway
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
