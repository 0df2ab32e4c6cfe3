package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error carries an HTTP status and a stable machine-readable code alongside
// the wrapped cause. Handlers map it straight onto the response.
type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

const (
	CodeValidation         = "validation_error"
	CodePermission         = "permission_denied"
	CodeNotFound           = "not_found"
	CodeInvalidTransition  = "invalid_transition"
	CodeConflict           = "conflict"
	CodeClosedConversation = "conversation_closed"
	CodeRateLimited        = "rate_limited"
)

func Validation(format string, args ...any) *Error {
	return New(http.StatusBadRequest, CodeValidation, fmt.Errorf(format, args...))
}

func Permission(format string, args ...any) *Error {
	return New(http.StatusForbidden, CodePermission, fmt.Errorf(format, args...))
}

func NotFound(format string, args ...any) *Error {
	return New(http.StatusNotFound, CodeNotFound, fmt.Errorf(format, args...))
}

func InvalidTransition(format string, args ...any) *Error {
	return New(http.StatusConflict, CodeInvalidTransition, fmt.Errorf(format, args...))
}

func Conflict(format string, args ...any) *Error {
	return New(http.StatusConflict, CodeConflict, fmt.Errorf(format, args...))
}

func ClosedConversation(format string, args ...any) *Error {
	return New(http.StatusConflict, CodeClosedConversation, fmt.Errorf(format, args...))
}

func RateLimited(format string, args ...any) *Error {
	return New(http.StatusTooManyRequests, CodeRateLimited, fmt.Errorf(format, args...))
}

// Is reports whether err is an *Error carrying the given code.
func Is(err error, code string) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code == code
	}
	return false
}

// StatusOf resolves the HTTP status for an error; unknown errors are 500s.
func StatusOf(err error) int {
	var ae *Error
	if errors.As(err, &ae) && ae.Status != 0 {
		return ae.Status
	}
	return http.StatusInternalServerError
}

// CodeOf resolves the machine code for an error, empty when untyped.
func CodeOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}
