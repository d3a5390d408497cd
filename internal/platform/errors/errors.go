// Package errors carries HTTP-facing failures with a category, a client-safe
// message and optional diagnostic fields.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

type Type string

const (
	TypeValidation  Type = "validation"
	TypeNotFound    Type = "not_found"
	TypeConflict    Type = "conflict"
	TypeInternal    Type = "internal"
	TypeExternal    Type = "external"
	TypeUnavailable Type = "unavailable"
	TypeRateLimited Type = "rate_limited"
)

var statusByType = map[Type]int{
	TypeValidation:  http.StatusBadRequest,
	TypeNotFound:    http.StatusNotFound,
	TypeConflict:    http.StatusConflict,
	TypeInternal:    http.StatusInternalServerError,
	TypeExternal:    http.StatusBadGateway,
	TypeUnavailable: http.StatusServiceUnavailable,
	TypeRateLimited: http.StatusTooManyRequests,
}

// Error is safe to render: Message goes to the client, Cause only to logs.
type Error struct {
	Type    Type
	Message string
	Cause   error
	Context map[string]any
}

func New(t Type, message string, cause error) *Error {
	return &Error{Type: t, Message: message, Cause: cause, Context: map[string]any{}}
}

func Validation(message string) *Error { return New(TypeValidation, message, nil) }
func NotFound(message string) *Error   { return New(TypeNotFound, message, nil) }
func Conflict(message string) *Error   { return New(TypeConflict, message, nil) }

func Internal(message string, cause error) *Error    { return New(TypeInternal, message, cause) }
func External(message string, cause error) *Error    { return New(TypeExternal, message, cause) }
func Unavailable(message string, cause error) *Error { return New(TypeUnavailable, message, cause) }

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// With attaches a diagnostic field that is also returned to the client.
func (e *Error) With(key string, value any) *Error {
	if e.Context == nil {
		e.Context = map[string]any{}
	}
	e.Context[key] = value
	return e
}

func (e *Error) HTTPStatus() int {
	if status, ok := statusByType[e.Type]; ok {
		return status
	}
	return http.StatusInternalServerError
}

type Response struct {
	Error   string         `json:"error"`
	Type    Type           `json:"type"`
	Context map[string]any `json:"context,omitempty"`
}

func (e *Error) ToResponse() Response {
	return Response{Error: e.Message, Type: e.Type, Context: e.Context}
}

// AsStructuredError returns the *Error inside err, or wraps err as an
// internal error with a generic message.
func AsStructuredError(err error) *Error {
	if err == nil {
		return nil
	}
	var structured *Error
	if errors.As(err, &structured) {
		return structured
	}
	return Internal("internal server error", err)
}
