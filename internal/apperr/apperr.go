// Package apperr defines the tagged error kinds shared by the ingest and
// query pipelines. Errors are classified where they originate so that the
// transport layer can map them to a status without inspecting message text.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind is the category of a caller-facing failure.
type Kind string

const (
	// KindInternal covers persistence I/O failures and unexpected provider
	// responses. Its details are logged, never returned to the caller.
	KindInternal Kind = "internal"
	// KindValidation is a rejected input: question, model, or file.
	KindValidation Kind = "validation"
	// KindNotFound is a missing embedding or generation model.
	KindNotFound Kind = "not_found"
	// KindTimeout is a provider that did not answer within its deadline.
	KindTimeout Kind = "timeout"
	// KindRateLimited is a request denied by a rate limiter.
	KindRateLimited Kind = "rate_limited"
)

// genericMessage is what callers see for internal failures.
const genericMessage = "An internal error occurred. Please try again later."

// HTTPStatus returns the status code a transport should use for k.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified failure.
type Error struct {
	// Kind is the failure category.
	Kind Kind
	// Field names the offending input for validation errors.
	Field string
	// Message is the caller-facing description.
	Message string
	// Hint is an optional remediation, e.g. "ollama pull nomic-embed-text".
	Hint string
	// ResetAt is when a rate-limited caller may retry.
	ResetAt time.Time
	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind. This lets callers
// write errors.Is(err, apperr.ErrTimeout).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

// Kind sentinels for errors.Is comparisons.
var (
	ErrValidation  = &Error{Kind: KindValidation}
	ErrNotFound    = &Error{Kind: KindNotFound}
	ErrTimeout     = &Error{Kind: KindTimeout}
	ErrRateLimited = &Error{Kind: KindRateLimited}
	ErrInternal    = &Error{Kind: KindInternal}
)

// Validation returns a validation error for field.
func Validation(field, message string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: message}
}

// NotFound returns a missing-model error with a remediation hint.
func NotFound(message, hint string, err error) *Error {
	return &Error{Kind: KindNotFound, Message: message, Hint: hint, Err: err}
}

// Timeout returns a provider deadline error.
func Timeout(message string, err error) *Error {
	return &Error{Kind: KindTimeout, Message: message, Err: err}
}

// RateLimited returns a denial carrying the window reset time.
func RateLimited(resetAt time.Time) *Error {
	return &Error{
		Kind:    KindRateLimited,
		Message: "Rate limit exceeded. Please try again later.",
		ResetAt: resetAt,
	}
}

// Internal wraps err as an internal failure.
func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err. Untagged errors are internal.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// PublicMessage returns the text safe to show a caller.
func PublicMessage(err error) string {
	e, ok := As(err)
	if !ok || e.Kind == KindInternal {
		return genericMessage
	}
	if e.Field != "" {
		return e.Field + ": " + e.Message
	}
	return e.Message
}
