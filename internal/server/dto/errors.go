// Package dto defines API request/response types and error handling.
//
// This package is the API contract layer: response types carry row ids as
// numbers, dates as YYYY-MM-DD strings and timestamps as RFC3339. Structured
// errors pair an HTTP status code with a machine-readable error code so
// clients can react without parsing messages.
package dto

import (
	"fmt"
	"maps"
	"net/http"
)

// ErrorCode defines specific error types for the API.
type ErrorCode string

const (
	// ErrorCodeValidationFailed is returned when input data fails validation.
	ErrorCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	// ErrorCodeInvalidBoundary is returned for malformed pagination parameters.
	ErrorCodeInvalidBoundary ErrorCode = "INVALID_BOUNDARY"
	// ErrorCodeInvalidRow is returned when a row does not match the table's
	// columns.
	ErrorCodeInvalidRow ErrorCode = "INVALID_ROW"

	// ErrorCodeNotFound is returned when a resource is not found.
	ErrorCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrorCodeTableNotFound is returned when a table is not found.
	ErrorCodeTableNotFound ErrorCode = "TABLE_NOT_FOUND"
	// ErrorCodeRowNotFound is returned when a row is not found.
	ErrorCodeRowNotFound ErrorCode = "ROW_NOT_FOUND"
	// ErrorCodePageNotFound is returned for a pagination boundary outside the
	// table.
	ErrorCodePageNotFound ErrorCode = "PAGE_NOT_FOUND"

	// ErrorCodeUnsupportedMediaType is returned for an unknown format
	// extension or an unusable Content-Type.
	ErrorCodeUnsupportedMediaType ErrorCode = "UNSUPPORTED_MEDIA_TYPE"

	// ErrorCodeConflict is returned when there is a resource conflict.
	ErrorCodeConflict ErrorCode = "CONFLICT"
	// ErrorCodeUnauthorized is returned when authentication is missing or invalid.
	ErrorCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	// ErrorCodeForbidden is returned when a user has insufficient permissions.
	ErrorCodeForbidden ErrorCode = "FORBIDDEN"
	// ErrorCodePayloadTooLarge is returned when a request body exceeds limits.
	ErrorCodePayloadTooLarge ErrorCode = "PAYLOAD_TOO_LARGE"
	// ErrorCodeRateLimited is returned when a rate limit is exceeded.
	ErrorCodeRateLimited ErrorCode = "RATE_LIMITED"
	// ErrorCodeInternal is returned when an unexpected server error occurs.
	ErrorCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// ErrorDetails defines the structured error information in a response.
type ErrorDetails struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// ErrorResponse is the standard API error response.
type ErrorResponse struct {
	Error   ErrorDetails   `json:"error"`
	Details map[string]any `json:"details,omitempty"`
}

// ErrorWithStatus is an error that includes an HTTP status code and error code.
type ErrorWithStatus interface {
	Error() string
	StatusCode() int
	Code() ErrorCode
	Details() map[string]any
}

// APIError is a concrete error type with status code and optional details.
type APIError struct {
	statusCode int
	code       ErrorCode
	message    string
	details    map[string]any
	wrappedErr error
}

// NewAPIError creates a new APIError with the given status code and message.
func NewAPIError(statusCode int, code ErrorCode, message string) *APIError {
	return &APIError{
		statusCode: statusCode,
		code:       code,
		message:    message,
		details:    make(map[string]any),
	}
}

// WithDetails adds details to the error.
func (e *APIError) WithDetails(details map[string]any) *APIError {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	maps.Copy(e.details, details)
	return e
}

// WithDetail adds a single detail to the error.
func (e *APIError) WithDetail(key string, value any) *APIError {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	e.details[key] = value
	return e
}

// Wrap wraps an underlying error.
func (e *APIError) Wrap(err error) *APIError {
	e.wrappedErr = err
	return e
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.wrappedErr != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrappedErr)
	}
	return e.message
}

// StatusCode returns the HTTP status code.
func (e *APIError) StatusCode() int {
	return e.statusCode
}

// Code returns the error code.
func (e *APIError) Code() ErrorCode {
	return e.code
}

// Details returns additional error details.
func (e *APIError) Details() map[string]any {
	return e.details
}

// Unwrap returns the wrapped error if any.
func (e *APIError) Unwrap() error {
	return e.wrappedErr
}

// Predefined error constructors for common cases

// BadRequest creates a 400 Bad Request error.
func BadRequest(message string) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrorCodeValidationFailed, message)
}

// InvalidBoundary creates a 400 error for malformed pagination parameters.
func InvalidBoundary(message string) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrorCodeInvalidBoundary, message)
}

// InvalidRow creates a 400 error for a row that does not fit the table.
func InvalidRow(message string) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrorCodeInvalidRow, message)
}

// NotFound creates a 404 Not Found error.
func NotFound(resource string) *APIError {
	return NewAPIError(http.StatusNotFound, ErrorCodeNotFound, resource+" not found")
}

// TableNotFound creates a 404 error for a missing table.
func TableNotFound(owner, name string) *APIError {
	return NewAPIError(http.StatusNotFound, ErrorCodeTableNotFound,
		fmt.Sprintf("table %s/%s not found", owner, name))
}

// RowNotFound creates a 404 error for a missing row.
func RowNotFound(rowID int64) *APIError {
	return NewAPIError(http.StatusNotFound, ErrorCodeRowNotFound,
		fmt.Sprintf("row %d not found", rowID)).WithDetail("row_id", rowID)
}

// PageNotFound creates a 404 error for a boundary pointing outside the table.
func PageNotFound() *APIError {
	return NewAPIError(http.StatusNotFound, ErrorCodePageNotFound, "that page does not exist")
}

// UnsupportedMediaType creates a 415 error for an unknown format.
func UnsupportedMediaType(what string) *APIError {
	return NewAPIError(http.StatusUnsupportedMediaType, ErrorCodeUnsupportedMediaType,
		"unsupported format: "+what)
}

// Conflict creates a 409 Conflict error.
func Conflict(message string) *APIError {
	return NewAPIError(http.StatusConflict, ErrorCodeConflict, message)
}

// Unauthorized returns a 401 Unauthorized error.
func Unauthorized() *APIError {
	return NewAPIError(http.StatusUnauthorized, ErrorCodeUnauthorized, "unauthorized")
}

// Forbidden returns a 403 Forbidden error.
func Forbidden(message string) *APIError {
	return NewAPIError(http.StatusForbidden, ErrorCodeForbidden, message)
}

// PayloadTooLarge creates a 413 error with the limit in the details.
func PayloadTooLarge(limit int64) *APIError {
	return NewAPIError(http.StatusRequestEntityTooLarge, ErrorCodePayloadTooLarge,
		"request body too large").WithDetail("limit_bytes", limit)
}

// RateLimited creates a 429 Too Many Requests error.
func RateLimited() *APIError {
	return NewAPIError(http.StatusTooManyRequests, ErrorCodeRateLimited, "rate limit exceeded")
}

// Internal returns a 500 Internal Server Error.
func Internal(message string) *APIError {
	return NewAPIError(http.StatusInternalServerError, ErrorCodeInternal, message)
}

// InternalWithError creates a 500 error wrapping an underlying error.
func InternalWithError(message string, err error) *APIError {
	return Internal(message).Wrap(err)
}
