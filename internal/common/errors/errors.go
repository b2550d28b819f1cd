// Package errors provides structured error handling for the optimizer service
package errors

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorCode represents an application error code
type ErrorCode string

const (
	// General errors
	ErrInternal     ErrorCode = "INTERNAL_ERROR"
	ErrNotFound     ErrorCode = "NOT_FOUND"
	ErrBadRequest   ErrorCode = "BAD_REQUEST"
	ErrUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrForbidden    ErrorCode = "FORBIDDEN"
	ErrValidation   ErrorCode = "VALIDATION_ERROR"
	ErrRateLimit    ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Catalog errors
	ErrSnapshotNotLoaded ErrorCode = "SNAPSHOT_NOT_LOADED"
	ErrMalformedLabel    ErrorCode = "MALFORMED_LICENSE_LABEL"
	ErrInvariant         ErrorCode = "INVARIANT_VIOLATION"

	// Recommendation errors
	ErrEmptyRequest ErrorCode = "EMPTY_PERMISSION_REQUEST"

	// Conflict errors
	ErrRuleNotFound ErrorCode = "CONFLICT_RULE_NOT_FOUND"

	// Infrastructure errors
	ErrDatabase ErrorCode = "DATABASE_ERROR"
	ErrRedis    ErrorCode = "REDIS_ERROR"
	ErrIndexing ErrorCode = "AUDIT_INDEXING_ERROR"
)

// AppError represents a structured application error
type AppError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	Details    string                 `json:"details,omitempty"`
	StatusCode int                    `json:"-"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Err        error                  `json:"-"` // Original error for logging
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the original error
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithMetadata adds metadata to the error
func (e *AppError) WithMetadata(key string, value interface{}) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an existing error into an AppError
func Wrap(err error, code ErrorCode, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Err:        err,
	}
}

// Internal creates an internal server error
func Internal(message string, err error) *AppError {
	return &AppError{
		Code:       ErrInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// NotFound creates a not found error
func NotFound(resource string) *AppError {
	return &AppError{
		Code:       ErrNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
	}
}

// BadRequest creates a bad request error
func BadRequest(message string) *AppError {
	return &AppError{
		Code:       ErrBadRequest,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

// Unauthorized creates an unauthorized error
func Unauthorized(message string) *AppError {
	return &AppError{
		Code:       ErrUnauthorized,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

// SnapshotNotLoaded signals that no catalog snapshot has been loaded yet
func SnapshotNotLoaded() *AppError {
	return &AppError{
		Code:       ErrSnapshotNotLoaded,
		Message:    "permission catalog snapshot not loaded",
		StatusCode: http.StatusServiceUnavailable,
	}
}

// InvariantViolation wraps a composition invariant failure. These are fatal
// for the computation: the source data does not match the assumed model.
func InvariantViolation(err error) *AppError {
	return &AppError{
		Code:       ErrInvariant,
		Message:    "catalog data violates composition invariant",
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// Database wraps a database error
func Database(err error) *AppError {
	return &AppError{
		Code:       ErrDatabase,
		Message:    "database operation failed",
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// RespondWithError writes an AppError (or a generic error) as a JSON
// response on the gin context
func RespondWithError(c *gin.Context, err error) {
	if appErr, ok := err.(*AppError); ok {
		c.JSON(appErr.StatusCode, appErr)
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{
		"code":    ErrInternal,
		"message": "internal server error",
	})
}
