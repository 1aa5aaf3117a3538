/*
Package errs provides custom error types and application-level error code constants.

This file defines the CustomError struct, which implements the standard Go error interface
and includes a business code, a taxonomy kind, a user-friendly message and an HTTP status code
for unified error reporting over both HTTP and WebSocket.
*/
package errs

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"roomchat/internal/pkg/logx"
)

// Kind classifies an error into the failure taxonomy shared by every component.
type Kind string

const (
	KindAuth           Kind = "auth"
	KindAuthorization  Kind = "authorization"
	KindNotFound       Kind = "not_found"
	KindValidation     Kind = "validation"
	KindConflict       Kind = "conflict"
	KindTransientStore Kind = "transient_store"
	KindInternal       Kind = "internal"
)

// CustomError is the custom error structure used throughout the application.
// It wraps the Go error interface, adding a business code, a kind and an HTTP status code.
type CustomError struct {
	// Code is the business error code (see constants definition).
	Code int `json:"code"`

	// Kind is the taxonomy bucket the code belongs to.
	Kind Kind `json:"-"`

	// Message is the user-friendly error description.
	Message string `json:"message"`

	// Status is the standard HTTP status code corresponding to this error.
	Status int `json:"-"`

	// Meta carries structured details for clients, e.g. remainingMs for a mute.
	Meta map[string]any `json:"meta,omitempty"`
}

// Error implements the standard Go error interface. It returns a formatted
// error string containing the error code, HTTP status, and message.
func (e CustomError) Error() string {
	return fmt.Sprintf("Error Code %d (HTTP %d): %s", e.Code, e.Status, e.Message)
}

// NewError constructs and returns a new *CustomError instance based on a predefined error code.
// The optional details parameter allows for formatting arguments (printf-style) to be supplied
// for the error message. If an unknown code is provided, it defaults to returning ErrUnknown.
func NewError(code int, details ...any) *CustomError {
	templateErr, ok := errorMap[code]

	if !ok {
		logx.Error(
			fmt.Errorf("attempted to create an error with an unknown code in errorMap"),
			"Unknown error code requested",
			"requested_code", code,
		)

		unknownErr := errorMap[ErrUnknown]
		return &CustomError{
			Code:    unknownErr.Code,
			Kind:    unknownErr.Kind,
			Message: unknownErr.Message,
			Status:  unknownErr.Status,
		}
	}

	customErr := templateErr

	if customErr.Status == 0 {
		customErr.Status = http.StatusOK
	}

	if (code == ErrUnknown || code == ErrStoreUnavailable) && len(details) > 0 {
		if originalErr, ok := details[0].(error); ok {
			logx.Error(
				originalErr,
				"Handling internal error with underlying cause",
				"code", code,
			)
		}
	} else if len(details) > 0 {
		if strings.Contains(customErr.Message, "%") {
			customErr.Message = fmt.Sprintf(customErr.Message, details...)
		} else {
			logx.Warn(
				"Details provided for error, but message template has no formatting placeholders. Details ignored.",
				"code", code,
			)
		}
	}

	return &customErr
}

// Muted builds an ErrMuted error carrying the remaining mute time in milliseconds.
func Muted(remaining time.Duration, muteUntil time.Time) *CustomError {
	e := NewError(ErrMuted)
	e.Meta = map[string]any{
		"remainingMs": remaining.Milliseconds(),
		"muteUntil":   muteUntil.UnixMilli(),
	}
	return e
}

// Store wraps a durable-store failure. A CustomError passes through untouched.
func Store(err error) error {
	if err == nil {
		return nil
	}
	if ce, ok := As(err); ok {
		return ce
	}
	return NewError(ErrStoreUnavailable, err)
}

// As extracts a *CustomError from err's chain.
func As(err error) (*CustomError, bool) {
	var ce *CustomError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// HasCode reports whether err carries the given application error code.
func HasCode(err error, code int) bool {
	ce, ok := As(err)
	return ok && ce.Code == code
}

// KindOf returns the taxonomy kind of err; unknown errors are internal.
func KindOf(err error) Kind {
	if ce, ok := As(err); ok {
		return ce.Kind
	}
	return KindInternal
}

// Wrap converts any error into a *CustomError suitable for clients.
func Wrap(err error) *CustomError {
	if err == nil {
		return nil
	}
	if ce, ok := As(err); ok {
		return ce
	}
	return NewError(ErrUnknown, err)
}
