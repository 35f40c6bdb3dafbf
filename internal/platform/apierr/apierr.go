package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is the single error shape the transport layer knows how to render.
// Code is a stable machine-readable tag; Err carries the detail string.
type Error struct {
	Status  int
	Message string
	Code    string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Message != "" {
		return e.Message
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
	return &Error{Status: status, Message: http.StatusText(status), Code: code, Err: err}
}

func Unauthorized(code string, err error) *Error {
	e := New(http.StatusUnauthorized, code, err)
	e.Message = "Unauthorized"
	return e
}

func BadRequest(err error) *Error {
	e := New(http.StatusBadRequest, "invalid_request", err)
	e.Message = "Invalid request body"
	return e
}

func SyncFailed(err error) *Error {
	e := New(http.StatusInternalServerError, "sync_failed", err)
	e.Message = "Sync failed"
	return e
}

// As extracts an *Error from err, falling back to a generic 500.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	out := New(http.StatusInternalServerError, "internal", err)
	out.Message = "Internal Server Error"
	return out
}
