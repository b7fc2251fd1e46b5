// Package errors provides custom error types and error handling utilities.
package errors

import (
	"errors"
	"fmt"
)

// Transport and internal error codes.
const (
	CodeValidation  = "VALIDATION_ERROR"
	CodeNotFound    = "NOT_FOUND"
	CodeInternal    = "INTERNAL_ERROR"
	CodeUnavailable = "SERVICE_UNAVAILABLE"
	CodeTimeout     = "TIMEOUT"
	CodeBusy        = "BUSY"
	CodeClosed      = "CLOSED"
)

// Connection-domain error codes. These are the codes the backend reports in
// disconnect events and the keys of the error catalog.
const (
	// Media server.
	CodePlexUnreachable = "PLEX_UNREACHABLE"
	CodePlexAuthFailed  = "PLEX_AUTH_FAILED"
	CodePlexConnFailed  = "PLEX_CONN_FAILED"

	// Presence service.
	CodeDiscordNotRunning      = "DISCORD_NOT_RUNNING"
	CodeDiscordConnFailed      = "DISCORD_CONN_FAILED"
	CodeDiscordClientIDInvalid = "DISCORD_CLIENT_ID_INVALID"

	// Local configuration and credentials.
	CodeConfigReadFailed    = "CONFIG_READ_FAILED"
	CodeConfigWriteFailed   = "CONFIG_WRITE_FAILED"
	CodeKeychainUnavailable = "KEYCHAIN_UNAVAILABLE"
	CodeKeychainStoreFailed = "KEYCHAIN_STORE_FAILED"
	CodeKeychainReadFailed  = "KEYCHAIN_READ_FAILED"
	CodeEncryptionFailed    = "ENCRYPTION_FAILED"
	CodeDecryptionFailed    = "DECRYPTION_FAILED"

	CodeUnknown = "UNKNOWN_ERROR"
)

// AppError represents an application error with code and details.
type AppError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
	Err     error             `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with an AppError.
func Wrap(code, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithDetails adds details to the error.
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// WithDetail adds a single detail to the error.
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// Convenience constructors.

// ValidationError creates a validation error.
func ValidationError(message string) *AppError {
	return New(CodeValidation, message)
}

// NotFoundError creates a not found error.
func NotFoundError(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource))
}

// InternalError creates an internal error.
func InternalError(message string, err error) *AppError {
	return Wrap(CodeInternal, message, err)
}

// TimeoutError creates a timeout error for a specific operation.
func TimeoutError(operation string) *AppError {
	message := "operation timed out"
	if operation != "" {
		message = fmt.Sprintf("%s timed out", operation)
	}
	return New(CodeTimeout, message)
}

// ServiceUnavailableError creates a service unavailable error.
func ServiceUnavailableError(service string) *AppError {
	message := "service unavailable"
	if service != "" {
		message = fmt.Sprintf("%s is unavailable", service)
	}
	return New(CodeUnavailable, message)
}

// BusyError reports that a command for service is already in flight.
func BusyError(service string) *AppError {
	return New(CodeBusy, fmt.Sprintf("%s command already in progress", service)).
		WithDetail("service", service)
}

// CodeOf returns the code of the first AppError in err's chain, or "" when
// there is none.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}

// IsNotFound checks if error is a not found error.
func IsNotFound(err error) bool {
	return Is(err, CodeNotFound)
}

// IsValidation checks if error is a validation error.
func IsValidation(err error) bool {
	return Is(err, CodeValidation)
}

// IsBusy checks if error reports an in-flight command.
func IsBusy(err error) bool {
	return Is(err, CodeBusy)
}
