package errors

import (
	"fmt"
)

// APIError is the error shape every handler writes back to clients.
// Extra carries endpoint specific fields (attempt counters, admin lists)
// that are merged into the top level of the JSON body.
type APIError struct {
	Code    ErrorCode      `json:"error"`
	Message string         `json:"message"`
	Field   string         `json:"field,omitempty"`
	Details string         `json:"details,omitempty"`
	Extra   map[string]any `json:"-"`
	Status  int            `json:"-"`
}

func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field: %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newError(code ErrorCode, message string) *APIError {
	return &APIError{Code: code, Message: message, Status: code.StatusCode()}
}

// NotFound creates a NOT_FOUND error
func NotFound(resource string) *APIError {
	return newError(ErrNotFound, fmt.Sprintf("%s not found", resource))
}

// Unauthorized creates an UNAUTHORIZED error
func Unauthorized(message string) *APIError {
	return newError(ErrUnauthorized, message)
}

// Forbidden creates a FORBIDDEN error
func Forbidden(message string) *APIError {
	return newError(ErrForbidden, message)
}

// Conflict creates a CONFLICT error
func Conflict(message string) *APIError {
	return newError(ErrConflict, message)
}

// ValidationError reports a bad value for a single request field
func ValidationError(field, message string) *APIError {
	e := newError(ErrValidation, message)
	e.Field = field
	return e
}

// BadRequest creates a BAD_REQUEST error
func BadRequest(message string) *APIError {
	return newError(ErrBadRequest, message)
}

// InternalError creates an INTERNAL_ERROR
func InternalError(message string) *APIError {
	return newError(ErrInternalError, message)
}

// AlreadyExists creates an ALREADY_EXISTS error
func AlreadyExists(resource string) *APIError {
	return newError(ErrAlreadyExists, fmt.Sprintf("%s already exists", resource))
}

// AttemptsExhausted is returned once a retry budget has been used up
func AttemptsExhausted(attempts, max int) *APIError {
	e := newError(ErrAttemptsExhausted, fmt.Sprintf("maximum of %d attempts reached, reset the counter to try again", max))
	return e.WithExtra("attempts", attempts).WithExtra("maxAttempts", max)
}

// RateLimited creates a RATE_LIMITED error
func RateLimited(message string) *APIError {
	if message == "" {
		message = "rate limit exceeded"
	}
	return newError(ErrRateLimited, message)
}

// MethodNotAllowed creates a METHOD_NOT_ALLOWED error
func MethodNotAllowed(method string) *APIError {
	return newError(ErrMethodNotAllowed, fmt.Sprintf("method %s not allowed", method))
}

// ServiceUnavailable creates a SERVICE_UNAVAILABLE error
func ServiceUnavailable(service string) *APIError {
	return newError(ErrServiceUnavail, fmt.Sprintf("%s is not available", service))
}

// Upstream wraps a failure reported by a third-party API
func Upstream(service, message string) *APIError {
	return newError(ErrUpstream, fmt.Sprintf("%s: %s", service, message))
}

// WithDetails adds additional details to an error
func (e *APIError) WithDetails(details string) *APIError {
	e.Details = details
	return e
}

// WithExtra attaches a top level field to the error body
func (e *APIError) WithExtra(key string, value any) *APIError {
	if e.Extra == nil {
		e.Extra = make(map[string]any)
	}
	e.Extra[key] = value
	return e
}
