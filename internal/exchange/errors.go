package exchange

import (
	"fmt"

	"github.com/BlackMission/idpauth/internal/domain"
)

// Backend error codes with a dedicated error type.
const (
	codeInvalidIdpResponse = "INVALID_IDP_RESPONSE"
	codeAlreadyLinked      = "FEDERATED_USER_ID_ALREADY_LINKED"
	codeEmailExists        = "EMAIL_EXISTS"
	codeUserDisabled       = "USER_DISABLED"
	codeNeedConfirmation   = "NEED_CONFIRMATION"
)

// Error is the base error type of the token exchange. Every error type in
// this package matches domain.ErrBackend.
type Error struct {
	Code       string
	Message    string
	StatusCode int
}

func (e *Error) Error() string {
	return format(e.Code, e.Message, e.StatusCode)
}

func (e *Error) Unwrap() error { return domain.ErrBackend }

// InvalidCredentialError indicates the IdP response was rejected by the
// backend.
type InvalidCredentialError struct {
	Message    string
	StatusCode int
}

func (e *InvalidCredentialError) Error() string {
	return format(codeInvalidIdpResponse, e.Message, e.StatusCode)
}

func (e *InvalidCredentialError) Unwrap() error { return domain.ErrBackend }

func newInvalidCredentialError(message string, status int) *InvalidCredentialError {
	if message == "" {
		message = "The supplied auth credential is malformed or has expired"
	}
	return &InvalidCredentialError{Message: message, StatusCode: status}
}

// CredentialInUseError indicates the federated identity already belongs to
// another account.
type CredentialInUseError struct {
	Code       string
	Message    string
	StatusCode int
}

func (e *CredentialInUseError) Error() string {
	return format(e.Code, e.Message, e.StatusCode)
}

func (e *CredentialInUseError) Unwrap() error { return domain.ErrBackend }

func newCredentialInUseError(code, message string, status int) *CredentialInUseError {
	if message == "" {
		message = "This credential is already associated with a different account"
	}
	return &CredentialInUseError{Code: code, Message: message, StatusCode: status}
}

// UserDisabledError indicates the account was disabled by an administrator.
type UserDisabledError struct {
	Message    string
	StatusCode int
}

func (e *UserDisabledError) Error() string {
	return format(codeUserDisabled, e.Message, e.StatusCode)
}

func (e *UserDisabledError) Unwrap() error { return domain.ErrBackend }

func newUserDisabledError(message string, status int) *UserDisabledError {
	if message == "" {
		message = "The user account has been disabled"
	}
	return &UserDisabledError{Message: message, StatusCode: status}
}

// NeedConfirmationError indicates an account with the same email exists
// under a different provider. Response carries what the backend returned.
type NeedConfirmationError struct {
	Email      string
	Response   *domain.IDTokenResponse
	StatusCode int
}

func (e *NeedConfirmationError) Error() string {
	return format(codeNeedConfirmation, "account exists with different credential", e.StatusCode)
}

func (e *NeedConfirmationError) Unwrap() error { return domain.ErrBackend }

func newNeedConfirmationError(resp *domain.IDTokenResponse, status int) *NeedConfirmationError {
	e := &NeedConfirmationError{Response: resp, StatusCode: status}
	if resp != nil {
		e.Email = resp.Email
	}
	return e
}

func format(code, message string, status int) string {
	switch {
	case code != "" && status != 0:
		return fmt.Sprintf("exchange: %s: %s (status %d)", code, message, status)
	case code != "":
		return fmt.Sprintf("exchange: %s: %s", code, message)
	case status != 0:
		return fmt.Sprintf("exchange: %s (status %d)", message, status)
	default:
		return fmt.Sprintf("exchange: %s", message)
	}
}
