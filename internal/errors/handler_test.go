package errors

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/ndikit/pkg/ndi"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})
	return logger
}

func TestHandleError(t *testing.T) {
	handler := NewErrorHandler(quietLogger())

	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedType   ErrorType
		expectedCode   string
	}{
		{
			name:           "AppError",
			err:            NewValidationError("invalid format"),
			expectedStatus: http.StatusBadRequest,
			expectedType:   ErrorTypeValidation,
		},
		{
			name:           "standard error",
			err:            errors.New("something went wrong"),
			expectedStatus: http.StatusInternalServerError,
			expectedType:   ErrorTypeInternal,
		},
		{
			name:           "ndi frame timeout",
			err:            &ndi.FrameTimeoutError{Attempts: 3},
			expectedStatus: http.StatusGatewayTimeout,
			expectedType:   ErrorTypeTimeout,
			expectedCode:   "FRAME_TIMEOUT",
		},
		{
			name:           "ndi no sources",
			err:            &ndi.NoSourcesFoundError{Criteria: "name CAM"},
			expectedStatus: http.StatusNotFound,
			expectedType:   ErrorTypeNotFound,
			expectedCode:   "NO_SOURCES_FOUND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/sources/CAM/snapshot", nil)
			req.Header.Set("X-Request-ID", "test-123")
			rr := httptest.NewRecorder()

			handler.HandleError(rr, req, tt.err)

			assert.Equal(t, tt.expectedStatus, rr.Code)
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

			var response ErrorResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))

			assert.Equal(t, tt.expectedType, response.Error.Type)
			assert.Equal(t, tt.expectedCode, response.Error.Code)
			assert.NotEmpty(t, response.Error.Message)
			assert.Equal(t, "test-123", response.TraceID)
		})
	}
}

func TestHandleError_Details(t *testing.T) {
	handler := NewErrorHandler(quietLogger())
	rr := httptest.NewRecorder()

	err := NewValidationError("quality out of range").
		WithDetails(map[string]interface{}{"param": "quality"})
	handler.HandleError(rr, httptest.NewRequest(http.MethodGet, "/", nil), err)

	var response ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
	assert.Equal(t, "quality", response.Error.Details["param"])
	assert.Empty(t, response.TraceID)
}

func TestHandleNotFound(t *testing.T) {
	handler := NewErrorHandler(quietLogger())
	rr := httptest.NewRecorder()

	handler.HandleNotFound(rr, httptest.NewRequest(http.MethodGet, "/nonexistent", nil))

	assert.Equal(t, http.StatusNotFound, rr.Code)

	var response ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
	assert.Equal(t, ErrorTypeNotFound, response.Error.Type)
	assert.Contains(t, response.Error.Message, "endpoint")
}

func TestHandleMethodNotAllowed(t *testing.T) {
	handler := NewErrorHandler(quietLogger())
	rr := httptest.NewRecorder()

	handler.HandleMethodNotAllowed(rr, httptest.NewRequest(http.MethodPost, "/api/v1/sources", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)

	var response ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
	assert.Equal(t, ErrorTypeNotAllowed, response.Error.Type)
}

func TestMiddleware(t *testing.T) {
	handler := NewErrorHandler(quietLogger())

	protected := handler.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("middleware test panic")
	}))

	rr := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		protected.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/test", nil))
	})

	assert.Equal(t, http.StatusInternalServerError, rr.Code)

	var response ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
	assert.Contains(t, response.Error.Message, "unexpected error")
}

func TestMiddleware_AbortHandlerPropagates(t *testing.T) {
	handler := NewErrorHandler(quietLogger())

	protected := handler.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		protected.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}
