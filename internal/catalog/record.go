// Package catalog resolves backend error codes into user-facing error
// records. Resolution never fails: when the backend cannot be reached, a
// generic connection-error record for the affected service is produced.
package catalog

import (
	"strings"

	apperrors "github.com/plexcord/connstatus/internal/pkg/errors"
)

// ErrorRecord is the displayable description of an error code.
type ErrorRecord struct {
	Code        string `json:"code"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Suggestion  string `json:"suggestion"`
	Retryable   bool   `json:"retryable"`
}

// Fallback texts used when the catalog cannot be consulted.
const (
	FallbackTitle      = "Connection Error"
	FallbackSuggestion = "Please check your connection and try again."
)

// Fallback returns the generic record for code on the given service.
func Fallback(code, service string) ErrorRecord {
	return ErrorRecord{
		Code:        code,
		Title:       FallbackTitle,
		Description: "Failed to connect to " + ServiceName(service),
		Suggestion:  FallbackSuggestion,
		Retryable:   true,
	}
}

// ServiceName returns the display name of a service identifier.
func ServiceName(service string) string {
	switch service {
	case "plex":
		return "Plex"
	case "discord":
		return "Discord"
	case "":
		return "service"
	}
	return strings.ToUpper(service[:1]) + service[1:]
}

// table holds the built-in descriptions of every known code.
var table = map[string]ErrorRecord{
	// Media server
	apperrors.CodePlexUnreachable: {
		Title:       "Plex Server Unreachable",
		Description: "Cannot reach Plex server. The server may be offline or there may be a network issue.",
		Suggestion:  "Check if your Plex server is running and verify your network connection.",
		Retryable:   true,
	},
	apperrors.CodePlexAuthFailed: {
		Title:       "Plex Authentication Failed",
		Description: "Your Plex token is invalid or has expired.",
		Suggestion:  "Please re-authenticate with Plex to get a new token.",
		Retryable:   false,
	},
	apperrors.CodePlexConnFailed: {
		Title:       "Plex Connection Failed",
		Description: "Failed to connect to Plex server.",
		Suggestion:  "Check your server URL and network connection, then try again.",
		Retryable:   true,
	},
	apperrors.CodeTimeout: {
		Title:       "Connection Timeout",
		Description: "The connection to the server timed out.",
		Suggestion:  "The server may be slow or your network may be congested. Please try again.",
		Retryable:   true,
	},

	// Presence service
	apperrors.CodeDiscordNotRunning: {
		Title:       "Discord Not Running",
		Description: "Discord is not running on your computer.",
		Suggestion:  "Start Discord to enable Rich Presence.",
		Retryable:   true,
	},
	apperrors.CodeDiscordConnFailed: {
		Title:       "Discord Connection Failed",
		Description: "Cannot connect to Discord. The connection may have been interrupted.",
		Suggestion:  "Try restarting Discord and PlexCord.",
		Retryable:   true,
	},
	apperrors.CodeDiscordClientIDInvalid: {
		Title:       "Invalid Discord Client ID",
		Description: "The Discord Application Client ID is invalid.",
		Suggestion:  "Check your Client ID in Discord settings or reset to default.",
		Retryable:   false,
	},

	// Configuration
	apperrors.CodeConfigReadFailed: {
		Title:       "Configuration Error",
		Description: "Failed to read application settings.",
		Suggestion:  "The settings file may be corrupted. Try resetting the application.",
		Retryable:   false,
	},
	apperrors.CodeConfigWriteFailed: {
		Title:       "Settings Save Failed",
		Description: "Failed to save application settings.",
		Suggestion:  "Check that you have write permissions to the settings folder.",
		Retryable:   true,
	},

	// Credentials
	apperrors.CodeKeychainUnavailable: {
		Title:       "Secure Storage Unavailable",
		Description: "The system's secure storage is not available.",
		Suggestion:  "PlexCord will use encrypted file storage instead.",
		Retryable:   false,
	},
	apperrors.CodeKeychainStoreFailed: {
		Title:       "Failed to Store Credentials",
		Description: "Could not save your credentials securely.",
		Suggestion:  "Check your system's keychain settings and permissions.",
		Retryable:   true,
	},
	apperrors.CodeKeychainReadFailed: {
		Title:       "Failed to Read Credentials",
		Description: "Could not retrieve your saved credentials.",
		Suggestion:  "You may need to re-enter your Plex token.",
		Retryable:   false,
	},
	apperrors.CodeEncryptionFailed: {
		Title:       "Encryption Failed",
		Description: "Failed to encrypt your credentials.",
		Suggestion:  "Check available disk space and try again.",
		Retryable:   true,
	},
	apperrors.CodeDecryptionFailed: {
		Title:       "Decryption Failed",
		Description: "Failed to decrypt your saved credentials.",
		Suggestion:  "You'll need to re-enter your Plex token.",
		Retryable:   false,
	},

	apperrors.CodeUnknown: {
		Title:       "Unexpected Error",
		Description: "An unexpected error occurred.",
		Suggestion:  "Please try again. If the problem persists, restart PlexCord.",
		Retryable:   true,
	},
}

// Lookup returns the built-in record for code. Unknown codes get the
// UNKNOWN_ERROR description but keep their own code.
func Lookup(code string) ErrorRecord {
	rec, ok := table[code]
	if !ok {
		rec = table[apperrors.CodeUnknown]
	}
	rec.Code = code
	return rec
}

// Known reports whether code has a built-in description.
func Known(code string) bool {
	_, ok := table[code]
	return ok
}

// IsRetryable reports whether an error with the given code can be retried.
// Unknown codes are retryable.
func IsRetryable(code string) bool {
	if rec, ok := table[code]; ok {
		return rec.Retryable
	}
	return true
}

// IsAuthError reports whether the code means the user must re-authenticate.
func IsAuthError(code string) bool {
	switch code {
	case apperrors.CodePlexAuthFailed, apperrors.CodeKeychainReadFailed, apperrors.CodeDecryptionFailed:
		return true
	}
	return false
}

// IsConnectionError reports whether the code describes a connectivity problem.
func IsConnectionError(code string) bool {
	switch code {
	case apperrors.CodePlexUnreachable, apperrors.CodePlexConnFailed, apperrors.CodeTimeout,
		apperrors.CodeDiscordNotRunning, apperrors.CodeDiscordConnFailed:
		return true
	}
	return false
}
