package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies an error for status mapping and logging.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindAuthentication Kind = "authentication"
	KindNotFound       Kind = "not_found"
	KindSignature      Kind = "signature"
	KindUpstream       Kind = "upstream"
	KindConfiguration  Kind = "configuration"
	KindTimeout        Kind = "timeout"
	KindInternal       Kind = "internal"
)

// Error is the typed error used across the billing core. Message is safe to
// show to clients, Err carries the internal cause and is never rendered.
type Error struct {
	Kind    Kind
	Op      string
	Param   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Op != "" {
		b.WriteString(" [")
		b.WriteString(e.Op)
		b.WriteString("]")
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind so errors.Is(err, &Error{Kind: KindTimeout}) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
}

func Validation(param, message string) *Error {
	if message == "" {
		message = fmt.Sprintf("%s is required", param)
	}
	return &Error{Kind: KindValidation, Param: param, Message: message}
}

func Authentication(message string) *Error {
	if message == "" {
		message = "Unauthorized"
	}
	return &Error{Kind: KindAuthentication, Message: message}
}

func NotFound(resource string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s not found", resource)}
}

func Signature(err error) *Error {
	return &Error{Kind: KindSignature, Message: "Invalid webhook signature", Err: err}
}

func Upstream(op string, err error) *Error {
	return &Error{Kind: KindUpstream, Op: op, Message: "An unexpected error occurred. Please try again.", Err: err}
}

func Configuration(keys ...string) *Error {
	return &Error{
		Kind:    KindConfiguration,
		Message: "Server configuration error",
		Err:     fmt.Errorf("missing required configuration: %s", strings.Join(keys, ", ")),
	}
}

func Timeout(op string) *Error {
	return &Error{Kind: KindTimeout, Op: op, Message: "Request timed out. Please try again."}
}

// KindOf returns the kind of err, or KindInternal for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps an error to the response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation, KindSignature:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the message that may be rendered to a client.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return "An unexpected error occurred. Please try again."
}
