package ndi

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType classifies errors returned by this package.
type ErrorType string

const (
	ErrorTypeInitializationFailed ErrorType = "INITIALIZATION_FAILED"
	ErrorTypeNullPointer          ErrorType = "NULL_POINTER"
	ErrorTypeInvalidUTF8          ErrorType = "INVALID_UTF8"
	ErrorTypeInvalidCString       ErrorType = "INVALID_CSTRING"
	ErrorTypeCaptureFailed        ErrorType = "CAPTURE_FAILED"
	ErrorTypeInvalidFrame         ErrorType = "INVALID_FRAME"
	ErrorTypePTZCommandFailed     ErrorType = "PTZ_COMMAND_FAILED"
	ErrorTypeInvalidConfiguration ErrorType = "INVALID_CONFIGURATION"
	ErrorTypeTimeout              ErrorType = "TIMEOUT"
	ErrorTypeFrameTimeout         ErrorType = "FRAME_TIMEOUT"
	ErrorTypeNoSourcesFound       ErrorType = "NO_SOURCES_FOUND"
	ErrorTypeBusy                 ErrorType = "BUSY"
	ErrorTypeClosed               ErrorType = "CLOSED"
	ErrorTypeFrameReleased        ErrorType = "FRAME_RELEASED"
)

// Error is the error type returned by this package.
type Error struct {
	Type    ErrorType              `json:"type"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Err     error                  `json:"-"`
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Type)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same type, so the sentinels below work with
// errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Type == e.Type
}

// WithDetails adds a detail to the error.
func (e *Error) WithDetails(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Sentinels for errors.Is.
var (
	ErrInitializationFailed = &Error{Type: ErrorTypeInitializationFailed}
	ErrNullPointer          = &Error{Type: ErrorTypeNullPointer}
	ErrInvalidUTF8          = &Error{Type: ErrorTypeInvalidUTF8}
	ErrInvalidCString       = &Error{Type: ErrorTypeInvalidCString}
	ErrCaptureFailed        = &Error{Type: ErrorTypeCaptureFailed}
	ErrInvalidFrame         = &Error{Type: ErrorTypeInvalidFrame}
	ErrPTZCommandFailed     = &Error{Type: ErrorTypePTZCommandFailed}
	ErrInvalidConfiguration = &Error{Type: ErrorTypeInvalidConfiguration}
	ErrTimeout              = &Error{Type: ErrorTypeTimeout}
	ErrFrameTimeout         = &Error{Type: ErrorTypeFrameTimeout}
	ErrNoSourcesFound       = &Error{Type: ErrorTypeNoSourcesFound}
	ErrBusy                 = &Error{Type: ErrorTypeBusy}
	ErrClosed               = &Error{Type: ErrorTypeClosed}
	ErrFrameReleased        = &Error{Type: ErrorTypeFrameReleased}
)

func newError(t ErrorType, format string, args ...interface{}) *Error {
	return &Error{Type: t, Message: fmt.Sprintf(format, args...)}
}

func wrapError(t ErrorType, err error, message string) *Error {
	return &Error{Type: t, Message: message, Err: err}
}

func invalidFrame(format string, args ...interface{}) *Error {
	return newError(ErrorTypeInvalidFrame, format, args...)
}

func invalidConfig(format string, args ...interface{}) *Error {
	return newError(ErrorTypeInvalidConfiguration, format, args...)
}

func closedError(what string) *Error {
	return newError(ErrorTypeClosed, "%s is closed", what)
}

// FrameTimeoutError is returned when the capture retry loop runs out of
// time without receiving a frame.
type FrameTimeoutError struct {
	Attempts int
	Elapsed  time.Duration
}

func (e *FrameTimeoutError) Error() string {
	return fmt.Sprintf("%s: no frame after %d attempts in %s", ErrorTypeFrameTimeout, e.Attempts, e.Elapsed.Round(time.Millisecond))
}

func (e *FrameTimeoutError) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Type == ErrorTypeFrameTimeout
}

// NoSourcesFoundError reports a lookup that matched nothing.
type NoSourcesFoundError struct {
	Criteria string
}

func (e *NoSourcesFoundError) Error() string {
	return fmt.Sprintf("%s: no sources matching %s", ErrorTypeNoSourcesFound, e.Criteria)
}

func (e *NoSourcesFoundError) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Type == ErrorTypeNoSourcesFound
}

// TypeOf returns the ErrorType carried by err, or "" when err did not come
// from this package.
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	var ft *FrameTimeoutError
	if errors.As(err, &ft) {
		return ErrorTypeFrameTimeout
	}
	var ns *NoSourcesFoundError
	if errors.As(err, &ns) {
		return ErrorTypeNoSourcesFound
	}
	return ""
}
