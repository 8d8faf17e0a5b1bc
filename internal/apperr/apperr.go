// Package apperr implements the closed error taxonomy of spec.md §7 and
// maps internal failures onto it so that no stack trace, SQL text, or
// configuration value ever reaches a caller.
package apperr

import "fmt"

// Type is one of the four closed error categories a tool call can surface.
type Type string

const (
	Validation   Type = "validation"
	Unauthorized Type = "unauthorized"
	NotFound     Type = "not_found"
	Internal     Type = "internal"
)

// Error is the shape returned to MCP clients as ToolError (spec.md §3).
type Error struct {
	ErrType Type           `json:"error_type"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.ErrType, e.Message)
}

// New creates an Error of the given type with no field-level details.
func New(t Type, message string) *Error {
	return &Error{ErrType: t, Message: message}
}

// WithDetails attaches field-level details (e.g. {"field": "title"}) to a
// validation error.
func WithDetails(t Type, message string, details map[string]any) *Error {
	return &Error{ErrType: t, Message: message, Details: details}
}

// Validationf formats a validation error for a single field.
func Validationf(field, format string, args ...any) *Error {
	return &Error{
		ErrType: Validation,
		Message: fmt.Sprintf(format, args...),
		Details: map[string]any{"field": field},
	}
}

// Unauthorizedf formats an unauthorized error.
func Unauthorizedf(format string, args ...any) *Error {
	return &Error{ErrType: Unauthorized, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf formats a not_found error. Per spec.md §4.4, messages here must
// not leak whether a resource exists under a different owner.
func NotFoundf(format string, args ...any) *Error {
	return &Error{ErrType: NotFound, Message: fmt.Sprintf(format, args...)}
}

// Internalf formats an internal error. Callers must never put raw
// driver/SQL error text into format args that reach the caller; log the
// underlying error separately and pass only a safe summary here.
func Internalf(format string, args ...any) *Error {
	return &Error{ErrType: Internal, Message: fmt.Sprintf(format, args...)}
}

// As extracts an *Error from err, falling back to a generic Internal error
// for anything the call sites didn't already classify.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	return &Error{ErrType: Internal, Message: "an internal error occurred"}
}
