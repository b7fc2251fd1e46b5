package security

import (
	apperrors "github.com/plexcord/connstatus/internal/pkg/errors"
)

// MinClientIDLength is the shortest accepted presence-service client ID.
const MinClientIDLength = 17

// ValidateClientID checks a presence-service client ID. The empty string is
// valid and selects the backend's default ID.
func ValidateClientID(clientID string) error {
	if clientID == "" {
		return nil
	}

	if len(clientID) < MinClientIDLength {
		return apperrors.New(apperrors.CodeDiscordClientIDInvalid,
			"Discord Client ID must be at least 17 digits")
	}

	for _, c := range clientID {
		if c < '0' || c > '9' {
			return apperrors.New(apperrors.CodeDiscordClientIDInvalid,
				"Discord Client ID must contain only numbers")
		}
	}

	return nil
}
