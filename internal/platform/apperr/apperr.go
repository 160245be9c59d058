// Package apperr defines the error kinds surfaced to API callers and the echo
// error handler that renders them.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrValidation   = errors.New("validation error")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrTransaction  = errors.New("transaction failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrInternal     = errors.New("internal error")
)

// AppError carries a stable code and a message safe to show to users. Cause
// holds the underlying error for logs and is never rendered.
type AppError struct {
	Kind       error             `json:"-"`
	Cause      error             `json:"-"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	HTTPStatus int               `json:"-"`
	Details    map[string]string `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap exposes both the kind sentinel and the cause to errors.Is/As.
func (e *AppError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

func Validation(message string, details map[string]string) *AppError {
	return &AppError{
		Kind:       ErrValidation,
		Message:    message,
		Code:       "VALIDATION_ERROR",
		HTTPStatus: http.StatusBadRequest,
		Details:    details,
	}
}

func NotFound(resource string) *AppError {
	return &AppError{
		Kind:       ErrNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		Code:       "NOT_FOUND",
		HTTPStatus: http.StatusNotFound,
	}
}

// NotFoundf builds a not-found error with a custom message.
func NotFoundf(format string, args ...any) *AppError {
	e := NotFound("")
	e.Message = fmt.Sprintf(format, args...)
	return e
}

func Conflict(message string) *AppError {
	return &AppError{
		Kind:       ErrConflict,
		Message:    message,
		Code:       "CONFLICT",
		HTTPStatus: http.StatusConflict,
	}
}

// TransactionFailure reports a rolled-back write. The cause stays internal.
func TransactionFailure(cause error) *AppError {
	return &AppError{
		Kind:       ErrTransaction,
		Cause:      cause,
		Message:    "the operation could not be completed; no changes were saved",
		Code:       "TRANSACTION_FAILED",
		HTTPStatus: http.StatusInternalServerError,
	}
}

func Unauthorized(message string) *AppError {
	return &AppError{
		Kind:       ErrUnauthorized,
		Message:    message,
		Code:       "UNAUTHORIZED",
		HTTPStatus: http.StatusUnauthorized,
	}
}

func Forbidden(message string) *AppError {
	return &AppError{
		Kind:       ErrForbidden,
		Message:    message,
		Code:       "FORBIDDEN",
		HTTPStatus: http.StatusForbidden,
	}
}

func Internal(cause error) *AppError {
	return &AppError{
		Kind:       ErrInternal,
		Cause:      cause,
		Message:    "internal server error",
		Code:       "INTERNAL_ERROR",
		HTTPStatus: http.StatusInternalServerError,
	}
}

// As returns the AppError in err's chain, if any.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
