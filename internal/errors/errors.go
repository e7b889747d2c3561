package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/zsiec/ndikit/pkg/ndi"
)

// ErrorType represents the type of error.
type ErrorType string

const (
	ErrorTypeValidation  ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound    ErrorType = "NOT_FOUND"
	ErrorTypeInternal    ErrorType = "INTERNAL_ERROR"
	ErrorTypeTimeout     ErrorType = "TIMEOUT"
	ErrorTypeConflict    ErrorType = "CONFLICT"
	ErrorTypeRateLimit   ErrorType = "RATE_LIMIT"
	ErrorTypeServiceDown ErrorType = "SERVICE_DOWN"
	ErrorTypeNotAllowed  ErrorType = "METHOD_NOT_ALLOWED"
)

// AppError represents an application error with additional context.
type AppError struct {
	Type       ErrorType              `json:"type"`
	Message    string                 `json:"message"`
	Code       string                 `json:"code,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	HTTPStatus int                    `json:"-"`
	Err        error                  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails merges details into the error.
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{}, len(details))
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

func New(errType ErrorType, message string, httpStatus int) *AppError {
	return &AppError{
		Type:       errType,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

func Wrap(err error, errType ErrorType, message string, httpStatus int) *AppError {
	return &AppError{
		Type:       errType,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

func NewValidationError(message string) *AppError {
	return New(ErrorTypeValidation, message, http.StatusBadRequest)
}

// NewNotFoundError reports a missing resource, e.g. "source CAM (1)".
func NewNotFoundError(resource string) *AppError {
	return New(ErrorTypeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func NewInternalError(message string) *AppError {
	return New(ErrorTypeInternal, message, http.StatusInternalServerError)
}

func WrapInternalError(err error, message string) *AppError {
	return Wrap(err, ErrorTypeInternal, message, http.StatusInternalServerError)
}

func NewTimeoutError(message string) *AppError {
	return New(ErrorTypeTimeout, message, http.StatusGatewayTimeout)
}

func NewConflictError(message string) *AppError {
	return New(ErrorTypeConflict, message, http.StatusConflict)
}

func NewRateLimitError(message string) *AppError {
	return New(ErrorTypeRateLimit, message, http.StatusTooManyRequests)
}

func NewServiceDownError(service string) *AppError {
	return New(ErrorTypeServiceDown, fmt.Sprintf("%s service is currently unavailable", service), http.StatusServiceUnavailable)
}

func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// GetAppError extracts an AppError anywhere in err's chain.
func GetAppError(err error) (*AppError, bool) {
	var appErr *AppError
	ok := stderrors.As(err, &appErr)
	return appErr, ok
}

// FromNDI converts an error returned by pkg/ndi into an AppError with the
// matching HTTP status. Errors that did not come from pkg/ndi become
// internal errors, except context deadlines which map to timeouts.
func FromNDI(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := GetAppError(err); ok {
		return appErr
	}

	kind := ndi.TypeOf(err)
	var appErr *AppError
	switch kind {
	case ndi.ErrorTypeTimeout, ndi.ErrorTypeFrameTimeout:
		appErr = Wrap(err, ErrorTypeTimeout, "Timed out waiting for NDI", http.StatusGatewayTimeout)
	case ndi.ErrorTypeNoSourcesFound:
		appErr = Wrap(err, ErrorTypeNotFound, "No matching NDI source", http.StatusNotFound)
	case ndi.ErrorTypeInvalidConfiguration, ndi.ErrorTypeInvalidCString, ndi.ErrorTypeInvalidUTF8:
		appErr = Wrap(err, ErrorTypeValidation, "Invalid NDI request", http.StatusBadRequest)
	case ndi.ErrorTypeBusy:
		appErr = Wrap(err, ErrorTypeConflict, "NDI resource is busy", http.StatusConflict)
	case ndi.ErrorTypeInitializationFailed:
		appErr = Wrap(err, ErrorTypeServiceDown, "NDI runtime is unavailable", http.StatusServiceUnavailable)
	case "":
		if stderrors.Is(err, context.DeadlineExceeded) {
			return Wrap(err, ErrorTypeTimeout, "Request timed out", http.StatusGatewayTimeout)
		}
		return WrapInternalError(err, "An unexpected error occurred")
	default:
		appErr = WrapInternalError(err, "NDI operation failed")
	}
	return appErr.WithCode(string(kind))
}
