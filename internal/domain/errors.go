package domain

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorKind classifies a business failure so handlers and callers can
// branch on the category instead of matching message strings.
type ErrorKind string

const (
	KindValidation          ErrorKind = "validation"
	KindNotFound            ErrorKind = "not_found"
	KindExpired             ErrorKind = "expired"
	KindAlreadyUsed         ErrorKind = "already_used"
	KindRateLimited         ErrorKind = "rate_limited"
	KindInsufficientCredits ErrorKind = "insufficient_credits"
	KindUpstreamUnavailable ErrorKind = "upstream_unavailable"
	KindUnauthorized        ErrorKind = "unauthorized"
	KindInternal            ErrorKind = "internal"
)

// AppError is a structured application error with an HTTP status code.
type AppError struct {
	Kind    ErrorKind `json:"kind"`
	Code    int       `json:"code"`
	Message string    `json:"error"`
	// RetryAfter is set only for rate-limited errors and tells the
	// caller when the operation becomes allowed again.
	RetryAfter time.Time `json:"retryAfter,omitzero"`
	Err        error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Common error constructors.

func ErrValidation(msg string) *AppError {
	return &AppError{Kind: KindValidation, Code: http.StatusUnprocessableEntity, Message: msg}
}

func ErrBadRequest(msg string) *AppError {
	return &AppError{Kind: KindValidation, Code: http.StatusBadRequest, Message: msg}
}

func ErrNotFound(msg string) *AppError {
	return &AppError{Kind: KindNotFound, Code: http.StatusNotFound, Message: msg}
}

func ErrExpired(msg string) *AppError {
	return &AppError{Kind: KindExpired, Code: http.StatusGone, Message: msg}
}

func ErrAlreadyUsed(msg string) *AppError {
	return &AppError{Kind: KindAlreadyUsed, Code: http.StatusConflict, Message: msg}
}

func ErrRateLimited(msg string, retryAfter time.Time) *AppError {
	return &AppError{Kind: KindRateLimited, Code: http.StatusTooManyRequests, Message: msg, RetryAfter: retryAfter}
}

func ErrInsufficientCredits(msg string) *AppError {
	return &AppError{Kind: KindInsufficientCredits, Code: http.StatusPaymentRequired, Message: msg}
}

func ErrUpstreamUnavailable(msg string, err error) *AppError {
	return &AppError{Kind: KindUpstreamUnavailable, Code: http.StatusServiceUnavailable, Message: msg, Err: err}
}

func ErrUnauthorized(msg string) *AppError {
	return &AppError{Kind: KindUnauthorized, Code: http.StatusUnauthorized, Message: msg}
}

func ErrInternal(msg string, err error) *AppError {
	return &AppError{Kind: KindInternal, Code: http.StatusInternalServerError, Message: msg, Err: err}
}

// AsAppError attempts to extract an AppError from an error chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsKind reports whether err is an AppError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Kind == kind
}
