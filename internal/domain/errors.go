package domain

import (
	"errors"
	"fmt"
)

var (
	// Error classes. Every error below wraps exactly one of these.
	ErrConfiguration = errors.New("invalid configuration")
	ErrPrecondition  = errors.New("precondition failed")
	ErrBackend       = errors.New("backend request failed")
	ErrUnsupported   = errors.New("operation not supported")

	// Config errors
	ErrMissingConfig     = fmt.Errorf("%w: missing required configuration", ErrConfiguration)
	ErrInvalidConfig     = fmt.Errorf("%w: malformed configuration value", ErrConfiguration)
	ErrMissingAuthDomain = fmt.Errorf("%w: auth domain is required", ErrConfiguration)
	ErrInvalidAPIKey     = fmt.Errorf("%w: API key is required", ErrConfiguration)

	// Precondition errors
	ErrMissingUser    = fmt.Errorf("%w: operation requires a user", ErrPrecondition)
	ErrMissingEventID = fmt.Errorf("%w: event id is required", ErrPrecondition)
	ErrDuplicateEvent = fmt.Errorf("%w: event id already registered", ErrPrecondition)
	ErrUserMismatch   = fmt.Errorf("%w: credential belongs to a different user", ErrPrecondition)

	// Provider errors
	ErrProviderNotFound  = errors.New("provider not found")
	ErrDuplicateProvider = errors.New("duplicate provider registration")

	// Event and channel errors
	ErrAuthEventFailed  = errors.New("auth event reported failure")
	ErrEventCancelled   = errors.New("auth event abandoned")
	ErrPopupTimeout     = fmt.Errorf("%w: popup timed out", ErrEventCancelled)
	ErrChannelInit      = errors.New("channel failed to initialize")
	ErrChannelClosed    = errors.New("channel closed")
	ErrDuplicateHandler = errors.New("message handler already registered")

	// Serialization
	ErrNotSerializable = fmt.Errorf("%w: credential cannot be serialized", ErrUnsupported)
)

// AuthError attaches the name of the auth instance an error was raised for.
type AuthError struct {
	AppName string
	Err     error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("idpauth: %s (app %s)", e.Err, e.AppName)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// NewAuthError wraps err with the auth instance name.
func NewAuthError(appName string, err error) *AuthError {
	return &AuthError{AppName: appName, Err: err}
}

// EventError is the rejection delivered to a pending operation whose auth
// event reported a failure outcome.
type EventError struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

func (e *EventError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("auth event failed: %s", e.Code)
	}
	return fmt.Sprintf("auth event failed: %s: %s", e.Code, e.Message)
}

func (e *EventError) Unwrap() error {
	return ErrAuthEventFailed
}

// MultiFactorError is returned when the backend requires a second factor.
// The opaque tokens are passed through untouched.
type MultiFactorError struct {
	PendingCredential string
	Info              []MFAInfo
	Response          *IDTokenResponse
}

func (e *MultiFactorError) Error() string {
	return "multi-factor authentication required"
}
