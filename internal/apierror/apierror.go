package apierror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
)

type ErrorCode string

const (
	ErrNotFound          ErrorCode = "NOT_FOUND"
	ErrConflict          ErrorCode = "CONFLICT"
	ErrBadRequest        ErrorCode = "BAD_REQUEST"
	ErrInvalidInput      ErrorCode = "INVALID_INPUT"
	ErrInvalidState      ErrorCode = "INVALID_STATE"
	ErrInsufficientStock ErrorCode = "INSUFFICIENT_STOCK"
	ErrGateway           ErrorCode = "GATEWAY_ERROR"
	ErrNetwork           ErrorCode = "NETWORK_ERROR"
	ErrTimeout           ErrorCode = "TIMEOUT"
	ErrInternalServer    ErrorCode = "INTERNAL_SERVER_ERROR"
)

type APIError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewAPIError(code ErrorCode, message string, details interface{}) APIError {
	logrus.Error(details)
	return APIError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// Retryable reports whether an error belongs to the transient class a saga step
// may back off and retry. Anything unclassified is treated as non-retryable so
// bugs are not masked as transient failures.
func Retryable(err error) bool {
	var apiErr APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Code {
	case ErrGateway, ErrNetwork, ErrTimeout:
		return true
	}
	return false
}

// Code extracts the error code from an error, defaulting to
// INTERNAL_SERVER_ERROR for untyped errors.
func Code(err error) ErrorCode {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ErrInternalServer
}

func MapErrorToHTTPStatus(err error) int {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case ErrNotFound:
			return http.StatusNotFound
		case ErrConflict, ErrInvalidState:
			return http.StatusConflict
		case ErrInvalidInput, ErrBadRequest:
			return http.StatusBadRequest
		case ErrInsufficientStock:
			return http.StatusUnprocessableEntity
		case ErrGateway, ErrNetwork:
			return http.StatusBadGateway
		case ErrTimeout:
			return http.StatusGatewayTimeout
		case ErrInternalServer:
			return http.StatusInternalServerError
		default:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}
