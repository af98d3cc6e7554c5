// Package apperr defines the error kinds surfaced to API callers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Kind classifies an error for the boundary.
type Kind string

const (
	KindValidation        Kind = "validation_error"
	KindAuthentication    Kind = "unauthenticated"
	KindAuthorization     Kind = "forbidden"
	KindNotFound          Kind = "not_found"
	KindConflict          Kind = "conflict"
	KindInvalidTransition Kind = "invalid_transition"
	KindStorage           Kind = "storage_error"
	KindOracle            Kind = "oracle_error"
)

// Error is a classified application error.
type Error struct {
	Kind    Kind
	Message string
	// Fields maps request field names to validation messages.
	Fields map[string]string
	// Reason carries the access decision reason for authorization failures.
	Reason string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if len(e.Fields) > 0 {
		names := make([]string, 0, len(e.Fields))
		for name := range e.Fields {
			names = append(names, name)
		}
		sort.Strings(names)
		parts := make([]string, 0, len(names))
		for _, name := range names {
			parts = append(parts, name+": "+e.Fields[name])
		}
		msg += " (" + strings.Join(parts, "; ") + ")"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the caller may retry the same request.
func (e *Error) Retryable() bool {
	return e.Kind == KindStorage || e.Kind == KindOracle
}

// Validation builds a field-identified validation error.
func Validation(fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: "validation failed", Fields: fields}
}

// BadRequest builds a validation error without field detail.
func BadRequest(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// Unauthenticated builds an authentication error.
func Unauthenticated() *Error {
	return &Error{Kind: KindAuthentication, Message: "authentication required", Reason: "unauthenticated"}
}

// Forbidden builds an authorization error carrying the denial reason.
func Forbidden(reason string) *Error {
	return &Error{Kind: KindAuthorization, Message: "access denied", Reason: reason}
}

// NotFound builds a not found error for the named resource.
func NotFound(resource string) *Error {
	return &Error{Kind: KindNotFound, Message: resource + " not found"}
}

// Conflict builds a conflict error.
func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

// InvalidTransition builds a workflow transition error.
func InvalidTransition(from, action string) *Error {
	return &Error{Kind: KindInvalidTransition, Message: fmt.Sprintf("cannot %s from %s", action, from)}
}

// Storage wraps a record store failure.
func Storage(op string, err error) *Error {
	return &Error{Kind: KindStorage, Message: op, Err: err}
}

// Oracle wraps an identity service failure.
func Oracle(op string, err error) *Error {
	return &Error{Kind: KindOracle, Message: op, Err: err}
}

// KindOf returns the kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps err to a response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindInvalidTransition:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
