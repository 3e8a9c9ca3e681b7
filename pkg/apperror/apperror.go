// Package apperror is the error taxonomy shared by every layer of the service.
// Repositories and services return *Error values tagged with a Kind; handlers
// turn the Kind into an HTTP status without inspecting driver or library errors.
package apperror

import (
	"errors"
	"net/http"
)

// Kind classifies a failure.
type Kind int

const (
	KindInternal Kind = iota
	KindBadRequest
	KindUnauthorized
	KindNotFound
	KindConflict
	KindTooManyRequests
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindTooManyRequests:
		return "too_many_requests"
	default:
		return "internal"
	}
}

// HTTPStatus returns the status code reported to clients for the kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error is a tagged failure with a client-safe message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New returns an error of the given kind.
func New(kind Kind, message string) error {
	return &Error{Kind: kind, Message: message}
}

// Wrap tags err with kind while keeping it in the chain for logging.
func Wrap(kind Kind, message string, err error) error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func BadRequest(message string) error      { return New(KindBadRequest, message) }
func Unauthorized(message string) error    { return New(KindUnauthorized, message) }
func NotFound(message string) error        { return New(KindNotFound, message) }
func Conflict(message string) error        { return New(KindConflict, message) }
func TooManyRequests(message string) error { return New(KindTooManyRequests, message) }

// Internal wraps an unexpected failure.
func Internal(message string, err error) error {
	return Wrap(KindInternal, message, err)
}

// KindOf reports the kind of err. Untagged errors are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// MessageOf returns the text safe to show a client. Internal failures never
// leak their cause.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Message
	}
	return "internal server error"
}
