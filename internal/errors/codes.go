package errors

import "net/http"

// ErrorCode identifies the class of an API failure
type ErrorCode string

const (
	ErrNotFound          ErrorCode = "NOT_FOUND"
	ErrUnauthorized      ErrorCode = "UNAUTHORIZED"
	ErrForbidden         ErrorCode = "FORBIDDEN"
	ErrConflict          ErrorCode = "CONFLICT"
	ErrValidation        ErrorCode = "VALIDATION_ERROR"
	ErrBadRequest        ErrorCode = "BAD_REQUEST"
	ErrInternalError     ErrorCode = "INTERNAL_ERROR"
	ErrAlreadyExists     ErrorCode = "ALREADY_EXISTS"
	ErrAttemptsExhausted ErrorCode = "ATTEMPTS_EXHAUSTED"
	ErrRateLimited       ErrorCode = "RATE_LIMITED"
	ErrMethodNotAllowed  ErrorCode = "METHOD_NOT_ALLOWED"
	ErrServiceUnavail    ErrorCode = "SERVICE_UNAVAILABLE"
	ErrUpstream          ErrorCode = "UPSTREAM_ERROR"
)

// StatusCodeMap maps ErrorCode to HTTP status code
var StatusCodeMap = map[ErrorCode]int{
	ErrNotFound:          http.StatusNotFound,
	ErrUnauthorized:      http.StatusUnauthorized,
	ErrForbidden:         http.StatusForbidden,
	ErrConflict:          http.StatusConflict,
	ErrValidation:        http.StatusBadRequest,
	ErrBadRequest:        http.StatusBadRequest,
	ErrInternalError:     http.StatusInternalServerError,
	ErrAlreadyExists:     http.StatusConflict,
	ErrAttemptsExhausted: http.StatusTooManyRequests,
	ErrRateLimited:       http.StatusTooManyRequests,
	ErrMethodNotAllowed:  http.StatusMethodNotAllowed,
	ErrServiceUnavail:    http.StatusServiceUnavailable,
	ErrUpstream:          http.StatusInternalServerError,
}

// StatusCode returns the HTTP status code for this error code
func (e ErrorCode) StatusCode() int {
	if code, ok := StatusCodeMap[e]; ok {
		return code
	}
	return http.StatusInternalServerError
}
