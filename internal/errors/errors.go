// Package errors defines the structured service error carried from the domain
// layer up to HTTP responses.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies an error category in API responses.
type Code string

const (
	CodeBadRequest       Code = "BAD_REQUEST"
	CodeUnauthorized     Code = "UNAUTHORIZED"
	CodeForbidden        Code = "FORBIDDEN"
	CodeNotFound         Code = "NOT_FOUND"
	CodeConflict         Code = "CONFLICT"
	CodeRateLimited      Code = "RATE_LIMITED"
	CodeInternal         Code = "INTERNAL"
	CodeValidationFailed Code = "VALIDATION_FAILED"
)

// ServiceError is the canonical error type exposed by services.
type ServiceError struct {
	Code       Code                   `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	cause      error
}

func (e *ServiceError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/As.
func (e *ServiceError) Unwrap() error { return e.cause }

// WithDetails attaches a detail key/value and returns the error.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func newError(code Code, status int, message string, cause error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: status, cause: cause}
}

// BadRequest reports a malformed or invalid request.
func BadRequest(message string) *ServiceError {
	return newError(CodeBadRequest, http.StatusBadRequest, message, nil)
}

// Validation reports a failed input validation with the offending field.
func Validation(field, message string) *ServiceError {
	return newError(CodeValidationFailed, http.StatusBadRequest, message, nil).WithDetails("field", field)
}

// Unauthorized reports missing or unusable credentials.
func Unauthorized(message string) *ServiceError {
	return newError(CodeUnauthorized, http.StatusUnauthorized, message, nil)
}

// Forbidden reports rejected credentials.
func Forbidden(message string) *ServiceError {
	return newError(CodeForbidden, http.StatusForbidden, message, nil)
}

// NotFound reports a missing entity, e.g. NotFound("organization", id).
func NotFound(entity string, id interface{}) *ServiceError {
	return newError(CodeNotFound, http.StatusNotFound, fmt.Sprintf("%s %v not found", entity, id), nil).
		WithDetails(entity+"_id", fmt.Sprintf("%v", id))
}

// Conflict reports a domain rule violation.
func Conflict(message string) *ServiceError {
	return newError(CodeConflict, http.StatusConflict, message, nil)
}

// RateLimitExceeded reports that the caller exhausted its request budget.
func RateLimitExceeded(limit int, window string) *ServiceError {
	return newError(CodeRateLimited, http.StatusTooManyRequests, "rate limit exceeded", nil).
		WithDetails("limit", limit).
		WithDetails("window", window)
}

// Internal wraps an unexpected failure.
func Internal(message string, cause error) *ServiceError {
	return newError(CodeInternal, http.StatusInternalServerError, message, cause)
}

// GetServiceError extracts a *ServiceError from err's chain, or nil.
func GetServiceError(err error) *ServiceError {
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}
	return nil
}

// HTTPStatus returns the status for err, defaulting to 500.
func HTTPStatus(err error) int {
	if se := GetServiceError(err); se != nil {
		return se.HTTPStatus
	}
	return http.StatusInternalServerError
}
