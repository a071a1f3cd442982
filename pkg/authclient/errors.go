package authclient

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/rahulunni73/authclient/pkg/cryptox"
)

// ============================================================================
// Error kinds
// ============================================================================

// ErrorKind classifies every failure the client can surface. The string value
// is what callers see as errorCode in results.
type ErrorKind string

const (
	KindInvalidEnvelopeFormat ErrorKind = "INVALID_ENVELOPE_FORMAT"
	KindEncryptionFailed      ErrorKind = "ENCRYPTION_FAILED"
	KindDecryptionFailed      ErrorKind = "DECRYPTION_FAILED"
	KindNoRefreshToken        ErrorKind = "NO_REFRESH_TOKEN"
	KindRefreshTokenExpired   ErrorKind = "REFRESH_TOKEN_EXPIRED"
	KindRefreshFailed         ErrorKind = "REFRESH_FAILED"
	KindUnauthorized          ErrorKind = "UNAUTHORIZED"
	KindNetworkUnavailable    ErrorKind = "NETWORK_UNAVAILABLE"
	KindRequestTimeout        ErrorKind = "REQUEST_TIMEOUT"
	KindServerError           ErrorKind = "SERVER_ERROR"
	KindMalformedResponse     ErrorKind = "MALFORMED_RESPONSE"
	KindNotConfigured         ErrorKind = "CLIENT_NOT_CONFIGURED"
	KindCancelled             ErrorKind = "REQUEST_CANCELLED"
	KindStorage               ErrorKind = "STORAGE_ERROR"
	KindInvalidRequest        ErrorKind = "INVALID_REQUEST"
)

// ============================================================================
// Error
// ============================================================================

// Error is the single error type returned by the client. Two errors match
// under errors.Is when their kinds match, so callers can compare against the
// predefined values below regardless of status code or message.
type Error struct {
	Kind ErrorKind

	// StatusCode is the HTTP status associated with the failure, 0 when the
	// request never produced a response.
	StatusCode int

	// Message is human readable and safe to show to users.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("%s (status %d): %s: %v", e.Kind, e.StatusCode, e.Message, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.StatusCode, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// ============================================================================
// Predefined errors
// ============================================================================

var (
	ErrInvalidEnvelopeFormat = &Error{Kind: KindInvalidEnvelopeFormat, Message: "encrypted content is not a valid envelope"}
	ErrEncryptionFailed      = &Error{Kind: KindEncryptionFailed, Message: "failed to encrypt request body"}
	ErrDecryptionFailed      = &Error{Kind: KindDecryptionFailed, Message: "failed to decrypt response body"}

	// ErrNoRefreshToken is returned when a refresh is needed but the session
	// holds no refresh token (never authenticated, or logged out).
	ErrNoRefreshToken = &Error{Kind: KindNoRefreshToken, StatusCode: http.StatusUnauthorized, Message: "no refresh token available, please log in again"}

	// ErrRefreshTokenExpired is returned when the stored refresh token is past
	// its expiry. The session is cleared before it is returned.
	ErrRefreshTokenExpired = &Error{Kind: KindRefreshTokenExpired, StatusCode: http.StatusUnauthorized, Message: "refresh token expired, please log in again"}

	// ErrRefreshFailed matches every RefreshFailed(status, message) error.
	ErrRefreshFailed = &Error{Kind: KindRefreshFailed, Message: "token refresh failed"}

	// ErrUnauthorized is the terminal result of a request that was still
	// rejected after one refresh and retry.
	ErrUnauthorized = &Error{Kind: KindUnauthorized, StatusCode: http.StatusUnauthorized, Message: "unauthorized"}

	ErrNetworkUnavailable = &Error{Kind: KindNetworkUnavailable, Message: "network unavailable"}
	ErrRequestTimeout     = &Error{Kind: KindRequestTimeout, StatusCode: http.StatusRequestTimeout, Message: "request timed out"}
	ErrServerError        = &Error{Kind: KindServerError, StatusCode: http.StatusInternalServerError, Message: "server error"}
	ErrMalformedResponse  = &Error{Kind: KindMalformedResponse, Message: "malformed response"}
	ErrNotConfigured      = &Error{Kind: KindNotConfigured, Message: "client is not initialized"}
	ErrCancelled          = &Error{Kind: KindCancelled, Message: "request cancelled"}
	ErrStorage            = &Error{Kind: KindStorage, Message: "secure storage failure"}
	ErrInvalidRequest     = &Error{Kind: KindInvalidRequest, StatusCode: http.StatusBadRequest, Message: "invalid request"}
)

// newError builds an error of the given kind.
func newError(kind ErrorKind, statusCode int, message string, cause error) *Error {
	return &Error{Kind: kind, StatusCode: statusCode, Message: message, Err: cause}
}

// RefreshFailed builds the error for a refresh endpoint that answered with
// something other than fresh tokens.
func RefreshFailed(statusCode int, message string) *Error {
	if message == "" {
		message = "token refresh failed"
	}
	return newError(KindRefreshFailed, statusCode, message, nil)
}

// ServerError builds an error for a 5xx answer.
func ServerError(statusCode int, message string) *Error {
	if message == "" {
		message = http.StatusText(statusCode)
	}
	if message == "" {
		message = ErrServerError.Message
	}
	return newError(KindServerError, statusCode, message, nil)
}

// fromCryptoError maps cryptox sentinel errors onto client error kinds.
func fromCryptoError(err error) *Error {
	switch {
	case errors.Is(err, cryptox.ErrInvalidEnvelopeFormat):
		return newError(KindInvalidEnvelopeFormat, 0, ErrInvalidEnvelopeFormat.Message, err)
	case errors.Is(err, cryptox.ErrEncryptionFailed):
		return newError(KindEncryptionFailed, 0, ErrEncryptionFailed.Message, err)
	default:
		return newError(KindDecryptionFailed, 0, ErrDecryptionFailed.Message, err)
	}
}

// asError converts any error into *Error, defaulting to a network failure
// for errors that did not originate in this package.
func asError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return classifyTransportError(err)
}
