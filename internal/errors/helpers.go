package errors

import (
	"fmt"
	"net/http"
)

// NewConfigError creates a configuration error for a given key.
func NewConfigError(key, message string) *AppError {
	return New(ErrCodeInvalidConfig, message).
		WithContext("config_key", key)
}

// NewAPIError creates an error for an external service call. 5xx, 429 and
// 408 responses are retryable; everything else in 4xx is terminal.
func NewAPIError(service, endpoint string, statusCode int, err error) *AppError {
	var code ErrorCode
	switch service {
	case "platform":
		code = ErrCodePlatformAPI
	case "transport":
		code = ErrCodeTransportAPI
	case "webhook":
		code = ErrCodeWebhookDelivery
	default:
		code = ErrCodeInternalError
	}

	appErr := Wrap(err, code, fmt.Sprintf("%s API call failed", service)).
		WithContext("endpoint", endpoint).
		WithContext("status_code", statusCode)

	if RetryableStatus(statusCode) {
		appErr.Retryable = true
	}
	return appErr
}

// RetryableStatus reports whether an HTTP status warrants a retry. A zero
// status means the request never completed (network error) and is always
// retryable.
func RetryableStatus(statusCode int) bool {
	if statusCode == 0 {
		return true
	}
	return statusCode >= 500 || statusCode == http.StatusTooManyRequests ||
		statusCode == http.StatusRequestTimeout
}

// NewDatabaseError creates a fatal-class persistence error.
func NewDatabaseError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeDatabaseQuery, fmt.Sprintf("database %s failed", operation)).
		WithContext("operation", operation)
}

// NewNotFoundError creates a not found error with resource context.
func NewNotFoundError(resource, identifier string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource)).
		WithContext("resource", resource).
		WithContext("identifier", identifier)
}

// NewConflictError creates a conflict error, used for single-flight
// rejections and duplicate resources.
func NewConflictError(resource, message string) *AppError {
	return New(ErrCodeConflict, message).
		WithContext("resource", resource)
}

// HTTPStatusCode maps error codes to HTTP status codes for the admin API.
func HTTPStatusCode(err error) int {
	switch GetCode(err) {
	case ErrCodeInvalidConfig, ErrCodeMissingConfig, ErrCodeInvalidInput, ErrCodeInvalidPhone:
		return http.StatusBadRequest
	case ErrCodeAuthentication:
		return http.StatusUnauthorized
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeConflict:
		return http.StatusConflict
	case ErrCodePlatformAPI, ErrCodeTransportAPI, ErrCodeWebhookDelivery:
		if IsRetryable(err) {
			return http.StatusBadGateway
		}
		return http.StatusInternalServerError
	case ErrCodeDatabaseConnection, ErrCodeDatabaseQuery:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
