package utils

import (
	"errors"
	"fmt"
)

// ErrConfiguration marks non-recoverable setup defects that must fail before any
// session is processed.
var ErrConfiguration = errors.New("configuration error")

// AppError wraps an operation, human-facing message, and underlying error.
type AppError struct {
	Op  string
	Msg string
	Err error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(op, msg string, err error) error {
	return &AppError{Op: op, Msg: msg, Err: err}
}

// ConfigError builds an ErrConfiguration-wrapping error for the named field.
func ConfigError(field, format string, args ...any) error {
	return &AppError{Op: field, Msg: fmt.Sprintf(format, args...), Err: ErrConfiguration}
}
