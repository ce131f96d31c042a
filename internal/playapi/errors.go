package playapi

import (
	"errors"
	"fmt"
)

// Kind classifies a dispatch failure. The classification is deterministic:
// the same failure condition always maps to the same kind.
type Kind string

const (
	// KindValidation marks a malformed or unknown invocation. Never retried.
	KindValidation Kind = "validation"
	// KindAuth marks invalid credential material or a failed token exchange.
	KindAuth Kind = "auth"
	// KindUpstreamTransient marks an upstream failure likely to succeed on retry.
	KindUpstreamTransient Kind = "upstream_transient"
	// KindUpstreamPermanent marks an upstream failure retry will not help with.
	KindUpstreamPermanent Kind = "upstream_permanent"
	// KindInternal marks any unanticipated failure.
	KindInternal Kind = "internal"
)

// Error is the structured error shape that crosses the dispatcher boundary.
// No raw internal failure escapes unmapped; Coerce wraps anything else.
type Error struct {
	Kind       Kind
	Message    string
	Field      string // offending argument for validation errors, if any
	HTTPStatus int    // upstream status for upstream errors, if observed
	Retriable  bool
	cause      error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// ErrorKind reports the kind as a string for transport encoding.
func (e *Error) ErrorKind() string { return string(e.Kind) }

// ErrorRetriable reports whether a caller may retry the invocation.
func (e *Error) ErrorRetriable() bool { return e.Retriable }

// Validationf builds a validation error naming the offending field.
// Pass an empty field for request-level problems (e.g. unknown tool).
func Validationf(field, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: fmt.Sprintf(format, args...)}
}

// Authf builds an auth error, optionally wrapping a cause.
func Authf(cause error, format string, args ...any) *Error {
	return &Error{Kind: KindAuth, Message: fmt.Sprintf(format, args...), cause: cause}
}

// Transient builds a retriable upstream error. Status is zero when no
// response was observed (network failure, timeout).
func Transient(status int, cause error, message string) *Error {
	return &Error{
		Kind:       KindUpstreamTransient,
		Message:    message,
		HTTPStatus: status,
		Retriable:  true,
		cause:      cause,
	}
}

// Permanent builds a non-retriable upstream error.
func Permanent(status int, cause error, message string) *Error {
	return &Error{
		Kind:       KindUpstreamPermanent,
		Message:    message,
		HTTPStatus: status,
		cause:      cause,
	}
}

// Internalf builds an internal error wrapping a cause.
func Internalf(cause error, format string, args ...any) *Error {
	return &Error{Kind: KindInternal, Message: fmt.Sprintf(format, args...), cause: cause}
}

// Coerce converts any error into a structured *Error. Structured errors pass
// through unchanged; everything else becomes KindInternal.
func Coerce(err error) *Error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	return &Error{Kind: KindInternal, Message: err.Error(), cause: err}
}
