// Package apperror provides structured error handling for the emission pipeline.
// All business errors must use AppError for consistent API responses.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes. The pipeline codes mirror the stages of an emission.
const (
	// Infrastructure errors (5xx)
	CodeInternal = "INTERNAL_ERROR"

	// Validation errors (400)
	CodeValidation = "VALIDATION_ERROR"

	// Pipeline failures (400)
	CodeNotFound             = "NOT_FOUND"
	CodeConfigurationMissing = "CONFIGURATION_MISSING"
	CodeAuthenticationFailed = "AUTHENTICATION_FAILED"
	CodeSequenceUnavailable  = "SEQUENCE_UNAVAILABLE"
	CodeGatewayRejected      = "GATEWAY_REJECTED"
	CodeGatewayUnreachable   = "GATEWAY_UNREACHABLE"

	// Never returned to callers; used to tag error logs after a gateway round-trip.
	CodePersistenceFailed = "PERSISTENCE_FAILED"

	// Authorization errors (401, 403)
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"

	// Conflict (409)
	CodeConflict = "CONFLICT"
)

// AppError is the standard error type for the platform.
// It implements error interface and provides structured details for API responses.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (sale id, sequence number, gateway status)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions ---

// NewValidation creates a validation error (400)
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewNotFound creates a not found error (404).
// The emission pipeline re-issues it as a stage failure (400).
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewStageFailure creates an emission pipeline failure (400).
func NewStageFailure(code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewConfigurationMissing reports absent or incomplete tenant fiscal configuration.
func NewConfigurationMissing(message string) *AppError {
	return NewStageFailure(CodeConfigurationMissing, message)
}

// NewAuthenticationFailed reports a rejected client-credentials grant.
func NewAuthenticationFailed(message string) *AppError {
	if message == "" {
		message = "gateway authentication failed"
	}
	return NewStageFailure(CodeAuthenticationFailed, message)
}

// NewSequenceUnavailable reports that no document number could be reserved.
func NewSequenceUnavailable(err error) *AppError {
	return NewStageFailure(CodeSequenceUnavailable, "fiscal sequence unavailable").WithCause(err)
}

// NewGatewayRejected carries the gateway-provided reason for a non-2xx answer.
func NewGatewayRejected(status int, message string) *AppError {
	if message == "" {
		message = fmt.Sprintf("gateway rejected the document with status %d", status)
	}
	return NewStageFailure(CodeGatewayRejected, message).WithDetail("gateway_status", status)
}

// NewGatewayUnreachable reports a transport failure or timeout talking to the gateway.
func NewGatewayUnreachable(err error) *AppError {
	return NewStageFailure(CodeGatewayUnreachable, "fiscal gateway unreachable").WithCause(err)
}

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewUnauthorized creates an authentication error (401)
func NewUnauthorized(message string) *AppError {
	return &AppError{
		Code:       CodeUnauthorized,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// NewForbidden creates an authorization error (403)
func NewForbidden(message string) *AppError {
	return &AppError{
		Code:       CodeForbidden,
		Message:    message,
		HTTPStatus: http.StatusForbidden,
	}
}

// NewConflict creates a conflict error (409)
func NewConflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// --- Helper functions ---

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus returns appropriate HTTP status for any error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// Is reports whether err carries the given code.
func Is(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	return Is(err, CodeNotFound)
}
