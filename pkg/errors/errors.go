package errors

import (
	"fmt"
)

// ErrorCode represents a unique error code
type ErrorCode int

const (
	// ErrCodeUnknown represents an unknown error
	ErrCodeUnknown ErrorCode = 1000

	// Device errors (2000-2999). Degrade, never fail the session.
	ErrCodeMicUnavailable    ErrorCode = 2000
	ErrCodeCameraUnavailable ErrorCode = 2001
	ErrCodeDeviceDenied      ErrorCode = 2002
	ErrCodeDeviceReleased    ErrorCode = 2003

	// Token errors (3000-3999). Fatal to session setup.
	ErrCodeTokenFetchFailed ErrorCode = 3000
	ErrCodeTokenExpired     ErrorCode = 3001
	ErrCodeMissingSecret    ErrorCode = 3002

	// Transport errors (4000-4999). Join/publish are fatal to setup.
	ErrCodeJoinFailed     ErrorCode = 4000
	ErrCodePublishFailed  ErrorCode = 4001
	ErrCodeInvalidState   ErrorCode = 4002
	ErrCodeNotJoined      ErrorCode = 4003
	ErrCodeSessionClosed  ErrorCode = 4004

	// Transform errors (5000-5999). Non-fatal, fall back to raw video.
	ErrCodeTransformInit     ErrorCode = 5000
	ErrCodeNoCredential      ErrorCode = 5001
	ErrCodeTransformDisposed ErrorCode = 5002
	ErrCodeUnknownParameter  ErrorCode = 5003

	// Subscribe errors (6000-6999). Non-fatal, per peer.
	ErrCodeSubscribeFailed ErrorCode = 6000

	// Signaling errors (7000-7999)
	ErrCodeSessionNotFound    ErrorCode = 7000
	ErrCodeInvalidTransition  ErrorCode = 7001
	ErrCodeSignalingWrite     ErrorCode = 7002
	ErrCodeSignalingSubscribe ErrorCode = 7003

	// Configuration errors (8000-8999)
	ErrCodeInvalidConfig ErrorCode = 8000
	ErrCodeMissingConfig ErrorCode = 8001
)

// Error represents a custom error with code and message
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and message
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with a code and message
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// IsErrorCode checks if the error has the given error code
func IsErrorCode(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}

	if e, ok := err.(*Error); ok {
		return e.Code == code
	}

	return false
}

// GetErrorCode returns the error code from an error, or ErrCodeUnknown if not found
func GetErrorCode(err error) ErrorCode {
	if err == nil {
		return ErrCodeUnknown
	}

	if e, ok := err.(*Error); ok {
		return e.Code
	}

	return ErrCodeUnknown
}

// IsDeviceError reports whether err belongs to the device range.
// Device failures degrade the session instead of aborting it.
func IsDeviceError(err error) bool {
	code := GetErrorCode(err)
	return code >= 2000 && code < 3000
}

// IsFatalSetupError reports whether err must abort session setup
// (token fetch, transport join or publish failures).
func IsFatalSetupError(err error) bool {
	code := GetErrorCode(err)
	return (code >= 3000 && code < 5000) && code != ErrCodeInvalidState
}

// Common error constructors for convenience

// NewMicUnavailableError creates a microphone acquisition error
func NewMicUnavailableError(cause error) *Error {
	return Wrap(ErrCodeMicUnavailable, "microphone unavailable", cause)
}

// NewCameraUnavailableError creates a camera acquisition error
func NewCameraUnavailableError(cause error) *Error {
	return Wrap(ErrCodeCameraUnavailable, "camera unavailable", cause)
}

// NewTokenFetchError creates a token fetch error
func NewTokenFetchError(cause error) *Error {
	return Wrap(ErrCodeTokenFetchFailed, "failed to fetch transport token", cause)
}

// NewJoinError creates a transport join error
func NewJoinError(roomID string, cause error) *Error {
	return Wrap(ErrCodeJoinFailed, fmt.Sprintf("failed to join room %s", roomID), cause)
}

// NewPublishError creates a transport publish error
func NewPublishError(cause error) *Error {
	return Wrap(ErrCodePublishFailed, "failed to publish local tracks", cause)
}

// NewTransformInitError creates a transform initialization error
func NewTransformInitError(cause error) *Error {
	return Wrap(ErrCodeTransformInit, "failed to initialize video transform", cause)
}

// NewSubscribeError creates a per-peer subscribe error
func NewSubscribeError(peerSessionID uint32, cause error) *Error {
	return Wrap(ErrCodeSubscribeFailed, fmt.Sprintf("failed to subscribe to peer %d", peerSessionID), cause)
}

// NewSessionNotFoundError creates a signaling session not found error
func NewSessionNotFoundError(sessionID string) *Error {
	return New(ErrCodeSessionNotFound, fmt.Sprintf("session not found: %s", sessionID))
}

// NewInvalidTransitionError creates a status transition error
func NewInvalidTransitionError(from, to string) *Error {
	return New(ErrCodeInvalidTransition, fmt.Sprintf("invalid status transition %s -> %s", from, to))
}
