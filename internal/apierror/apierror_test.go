package apierror

import (
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(NewAPIError(ErrGateway, "gateway 502", nil)))
	assert.True(t, Retryable(NewAPIError(ErrNetwork, "connection reset", nil)))
	assert.True(t, Retryable(NewAPIError(ErrTimeout, "deadline exceeded", nil)))

	assert.False(t, Retryable(NewAPIError(ErrInvalidInput, "bad amount", nil)))
	assert.False(t, Retryable(NewAPIError(ErrInsufficientStock, "no stock", nil)))
	assert.False(t, Retryable(NewAPIError(ErrInternalServer, "boom", nil)))
	assert.False(t, Retryable(errors.New("untyped")))
}

func TestRetryable_Wrapped(t *testing.T) {
	err := errors.Wrap(NewAPIError(ErrTimeout, "deadline exceeded", nil), "calling gateway")
	assert.True(t, Retryable(err))
}

func TestCode(t *testing.T) {
	assert.Equal(t, ErrNotFound, Code(NewAPIError(ErrNotFound, "missing", nil)))
	assert.Equal(t, ErrInternalServer, Code(errors.New("untyped")))
}

func TestMapErrorToHTTPStatus(t *testing.T) {
	cases := map[ErrorCode]int{
		ErrNotFound:          http.StatusNotFound,
		ErrConflict:          http.StatusConflict,
		ErrInvalidState:      http.StatusConflict,
		ErrInvalidInput:      http.StatusBadRequest,
		ErrInsufficientStock: http.StatusUnprocessableEntity,
		ErrGateway:           http.StatusBadGateway,
		ErrTimeout:           http.StatusGatewayTimeout,
		ErrInternalServer:    http.StatusInternalServerError,
	}
	for code, status := range cases {
		assert.Equal(t, status, MapErrorToHTTPStatus(NewAPIError(code, "x", nil)))
	}
	assert.Equal(t, http.StatusInternalServerError, MapErrorToHTTPStatus(errors.New("untyped")))
}
