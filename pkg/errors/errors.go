package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType classifies failures from the provider and the local stores.
type ErrorType string

const (
	// ErrorTypeNetwork is a transport-level failure (timeout, refused, reset).
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeRateLimit is a provider throttling response.
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeFingerprint is the provider's request-signature rejection
	// (vendor ret 200013). The caller regenerates the fingerprint and retries.
	ErrorTypeFingerprint ErrorType = "fingerprint"
	// ErrorTypeServerError is a provider-side 5xx.
	ErrorTypeServerError ErrorType = "server_error"
	// ErrorTypeHandshake is a definitive login rejection by the vendor.
	ErrorTypeHandshake ErrorType = "handshake"
	// ErrorTypeExpired covers session TTL, quota and credential expiry.
	ErrorTypeExpired ErrorType = "expired"
	// ErrorTypeNotFound means the target external account does not exist.
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeParsing is a malformed provider payload.
	ErrorTypeParsing ErrorType = "parsing"
	// ErrorTypeIntegrity is a violated store invariant. Programming error,
	// never expected in normal operation.
	ErrorTypeIntegrity ErrorType = "integrity"
	ErrorTypeUnknown   ErrorType = "unknown"
)

// Error represents a typed error with the vendor or HTTP code attached.
type Error struct {
	Type    ErrorType
	Message string
	Code    int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
}

// New builds a typed error.
func New(t ErrorType, code int, format string, args ...interface{}) *Error {
	return &Error{Type: t, Message: fmt.Sprintf(format, args...), Code: code}
}

// IsRetryable checks if an error type should be retried.
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeServerError, ErrorTypeFingerprint:
		return true
	default:
		return false
	}
}

// IsTransient reports whether err carries a retryable error type. Untyped
// errors are not transient.
func IsTransient(err error) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return IsRetryable(e.Type)
	}
	return false
}

// TypeOf extracts the error type, or ErrorTypeUnknown for untyped errors.
func TypeOf(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error.
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 429: // Too Many Requests
		return true
	case 500, 502, 503, 504: // Server errors
		return true
	case 401, 403, 404: // Client errors that won't change
		return false
	default:
		return statusCode >= 500
	}
}
