package service

import (
	"errors"
	"fmt"

	"holidaysync/internal/auth"
	"holidaysync/internal/models"
)

// Code classifies a service failure for callers. The API layer maps codes to
// HTTP statuses.
type Code string

const (
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeUnauthenticated   Code = "UNAUTHENTICATED"
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeNotFound          Code = "NOT_FOUND"
	CodeCapacityExceeded  Code = "CAPACITY_EXCEEDED"
	CodeInvalidTransition Code = "INVALID_TRANSITION"
	CodeConflict          Code = "CONFLICT"
	CodeUnavailable       Code = "UNAVAILABLE"
	CodeInternal          Code = "INTERNAL"
)

// Error is a typed service failure. Message is safe to show to clients; Err
// carries the underlying cause for logs.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error carrying the same code, so callers can write
// errors.Is(err, &Error{Code: CodeNotFound}).
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code && t.Message == "" && t.Err == nil
	}
	return false
}

// ErrorCode extracts the code of err, or CodeInternal for untyped errors.
func ErrorCode(err error) Code {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return CodeInternal
}

func newError(code Code, msg string, err error) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

func validationError(format string, args ...interface{}) *Error {
	return newError(CodeValidation, fmt.Sprintf(format, args...), nil)
}

func notFoundError(what string, err error) *Error {
	return newError(CodeNotFound, what+" not found", err)
}

func internalError(msg string, err error) *Error {
	return newError(CodeInternal, msg, err)
}

// requireAdmin is the administrator guard every admin entry point runs first.
func requireAdmin(caller *auth.Caller) error {
	if caller == nil {
		return newError(CodeUnauthenticated, "authentication required", nil)
	}
	if !caller.IsAdmin() {
		return newError(CodeUnauthorized, "administrator role required", nil)
	}
	return nil
}

func requireCaller(caller *auth.Caller) error {
	if caller == nil {
		return newError(CodeUnauthenticated, "authentication required", nil)
	}
	return nil
}

// visibleTo reports whether caller may see b. Guest bookings are reachable by
// anyone holding their id.
func visibleTo(b *models.Booking, caller *auth.Caller, guestUserID string) bool {
	switch {
	case caller != nil && caller.IsAdmin():
		return true
	case caller != nil && caller.UserID == b.UserID:
		return true
	default:
		return b.UserID == guestUserID
	}
}
