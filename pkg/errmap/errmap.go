// Package errmap classifies failures raised while dispatching an operation.
//
// Client-correctable mistakes carry one of the API codes and are reported
// verbatim to the requester. Everything else is a server error: its kind is
// reported but the message is only exposed in debug mode.
package errmap

import (
	"context"
	"errors"
	"fmt"
	"reflect"
)

// Code classifies an error. API codes double as the wire-level error tag.
type Code string

const (
	CodeMissingURI       Code = "MissingURIError"
	CodeInvalidURI       Code = "InvalidURIError"
	CodeRouteNotFound    Code = "RouteNotFoundError"
	CodeResourceNotFound Code = "ResourceNotFoundError"
	CodeInvalidRequest   Code = "InvalidRequestError"

	// Registration-time failure; never produced by dispatch.
	CodeInvalidPattern Code = "InvalidPatternError"

	CodePanic      Code = "Panic"
	CodeCanceled   Code = "Canceled"
	CodeTimeout    Code = "Timeout"
	CodeUnexpected Code = "ServerError"
)

var apiCodes = map[Code]struct{}{
	CodeMissingURI:       {},
	CodeInvalidURI:       {},
	CodeRouteNotFound:    {},
	CodeResourceNotFound: {},
	CodeInvalidRequest:   {},
}

// IsAPI reports whether code belongs to the closed set of client errors.
func IsAPI(code Code) bool {
	_, ok := apiCodes[code]
	return ok
}

// Kinder lets application errors name their own kind in server_error events.
type Kinder interface {
	Kind() string
}

// Error carries a code and a message while preserving the original cause via
// Unwrap.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Message != "" {
		return e.Message
	}
	if e.cause != nil {
		return e.cause.Error()
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error { return e.cause }

// API reports whether the error is client-visible.
func (e *Error) API() bool { return e != nil && IsAPI(e.Code) }

// New constructs an Error with the supplied code, message, and underlying cause.
func New(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// Newf constructs a cause-less Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func MissingURI() *Error {
	return &Error{Code: CodeMissingURI, Message: "missing URI"}
}

func InvalidURI(uri, reason string) *Error {
	return &Error{Code: CodeInvalidURI, Message: fmt.Sprintf("invalid URI %q: %s", uri, reason)}
}

func RouteNotFound(uri, verb string) *Error {
	return &Error{Code: CodeRouteNotFound, Message: fmt.Sprintf("no %s route for %q", verb, uri)}
}

func ResourceNotFound(uri string) *Error {
	return &Error{Code: CodeResourceNotFound, Message: fmt.Sprintf("no resource identified by %q", uri)}
}

func InvalidRequest(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidRequest, Message: fmt.Sprintf(format, args...)}
}

// Map converts an arbitrary error into an *Error with a best-effort code.
// An *Error anywhere in the chain wins; otherwise the error becomes a server
// error whose code names the underlying failure kind.
func Map(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	switch {
	case errors.Is(err, context.Canceled):
		return &Error{Code: CodeCanceled, cause: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Code: CodeTimeout, cause: err}
	}
	return &Error{Code: Code(Kind(err)), cause: err}
}

// Kind names the failure behind err: the Kind() of the first error in the
// chain implementing Kinder, else the type name of the innermost error that is
// not a plain wrapper or string error.
func Kind(err error) string {
	kind := ""
	for cur := err; cur != nil; cur = errors.Unwrap(cur) {
		if k, ok := cur.(Kinder); ok && k.Kind() != "" {
			return k.Kind()
		}
		if name := typeName(cur); name != "" {
			kind = name
		}
	}
	if kind == "" {
		return string(CodeUnexpected)
	}
	return kind
}

var anonymousTypes = map[string]struct{}{
	"errorString": {},
	"wrapError":   {},
	"wrapErrors":  {},
	"joinError":   {},
}

func typeName(err error) string {
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	name := t.Name()
	if name == "" {
		return ""
	}
	if _, ok := anonymousTypes[name]; ok {
		return ""
	}
	return name
}
