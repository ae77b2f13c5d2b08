// Package apperr defines the error kinds surfaced to API clients.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	// KindValidation covers bad input: wrong count, type, size or parameter.
	KindValidation Kind = iota + 1
	// KindToolUnavailable means a required external binary is not installed.
	KindToolUnavailable
	// KindToolFailure means the tool ran and failed.
	KindToolFailure
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindToolUnavailable:
		return "tool_unavailable"
	case KindToolFailure:
		return "tool_failure"
	default:
		return "internal"
	}
}

// Error carries a client-safe Message; Err holds the detail that only goes to
// the log.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Status maps the kind to an HTTP status.
func (e *Error) Status() int {
	if e.Kind == KindValidation {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func Validation(code, message string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message}
}

func ToolUnavailable(message string, err error) *Error {
	return &Error{Kind: KindToolUnavailable, Code: "tool_unavailable", Message: message, Err: err}
}

func ToolFailure(message string, err error) *Error {
	return &Error{Kind: KindToolFailure, Code: "tool_failed", Message: message, Err: err}
}

func Internal(message string, err error) *Error {
	if message == "" {
		message = "Internal server error"
	}
	return &Error{Kind: KindInternal, Code: "internal_error", Message: message, Err: err}
}

// From extracts an *Error from err's chain, or wraps err as Internal with
// the given fallback message.
func From(err error, fallback string) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(fallback, err)
}

// IsKind reports whether err carries an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}
