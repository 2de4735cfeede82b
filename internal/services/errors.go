package services

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the services. Every error a service returns to a
// caller-correctable situation wraps exactly one of these.
var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidState = errors.New("invalid state")
	ErrValidation   = errors.New("validation failed")
	ErrConflict     = errors.New("conflict")
)

// ServiceError pairs an error kind with a message meant for the caller.
type ServiceError struct {
	Kind    error
	Message string
}

func (e *ServiceError) Error() string {
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Kind
}

func newError(kind error, format string, args ...interface{}) error {
	return &ServiceError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func notFound(format string, args ...interface{}) error {
	return newError(ErrNotFound, format, args...)
}

func forbidden(format string, args ...interface{}) error {
	return newError(ErrForbidden, format, args...)
}

func invalidState(format string, args ...interface{}) error {
	return newError(ErrInvalidState, format, args...)
}

func validationError(format string, args ...interface{}) error {
	return newError(ErrValidation, format, args...)
}

func conflict(format string, args ...interface{}) error {
	return newError(ErrConflict, format, args...)
}

// ErrorMessage returns the caller-facing message of a service error, or
// fallback when err carries no ServiceError.
func ErrorMessage(err error, fallback string) string {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Message
	}
	return fallback
}
