package errors

import (
	"errors"
	"fmt"
)

// Error codes for programmatic handling.
const (
	CodeConfigInvalid   = "CONFIG_INVALID"
	CodeProfileNotFound = "PROFILE_NOT_FOUND"
	CodeNoConnections   = "NO_CONNECTIONS"
	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodeBackend         = "BACKEND"
	CodePack            = "PACK"
)

// Error is a structured store error with a code and an optional operator hint.
type Error struct {
	Code       string // machine-readable code (e.g. CONFIG_INVALID)
	Message    string // human-readable description
	Suggestion string // actionable fix
	Err        error  // wrapped underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap supports errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error with the given code and message.
func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error wrapping an existing error.
func Wrap(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// WithSuggestion sets the suggestion and returns the receiver.
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestion = suggestion
	return e
}

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Code == other.Code
	}
	return false
}

// AsCode extracts the code from an error, or "" if err is not an *Error.
func AsCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Suggestion extracts the suggestion from an error, or "".
func Suggestion(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Suggestion
	}
	return ""
}
