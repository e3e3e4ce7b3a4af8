package tgclient

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// Credentials holds the Telegram API authentication details needed to open
// a session. They are sensitive: the phone number is masked in logs and the
// hash is never logged.
type Credentials struct {
	APIID       int    `json:"api_id"`
	APIHash     string `json:"api_hash"`
	PhoneNumber string `json:"phone_number"`
}

// credentialsFileName is looked up under the storage root before falling
// back to environment variables.
const credentialsFileName = "credentials.json"

// LoadCredentials reads stored API credentials from the storage root, or
// falls back to the TG_API_ID / TG_API_HASH / TG_PHONE_NUMBER environment
// variables when no file exists. A missing file is not an error; missing
// API id or hash is.
func LoadCredentials(storageRoot string) (*Credentials, error) {
	credsPath := filepath.Join(storageRoot, credentialsFileName)

	if data, err := os.ReadFile(credsPath); err == nil {
		var creds Credentials
		if err := json.Unmarshal(data, &creds); err != nil {
			return nil, fmt.Errorf("failed to parse credentials file %s: %w", credsPath, err)
		}
		log.Info().Str("path", credsPath).Msg("Using API credentials from stored file")
		return validateCredentials(&creds)
	}

	log.Info().Msg("No credentials file found, using environment variables")
	creds := &Credentials{
		APIHash:     os.Getenv("TG_API_HASH"),
		PhoneNumber: os.Getenv("TG_PHONE_NUMBER"),
	}
	if idStr := os.Getenv("TG_API_ID"); idStr != "" {
		if _, err := fmt.Sscanf(idStr, "%d", &creds.APIID); err != nil {
			return nil, fmt.Errorf("TG_API_ID %q is not numeric: %w", idStr, err)
		}
	}
	return validateCredentials(creds)
}

func validateCredentials(creds *Credentials) (*Credentials, error) {
	if creds.APIID == 0 || creds.APIHash == "" {
		return nil, fmt.Errorf("api_id and api_hash are required; obtain them from https://my.telegram.org/apps")
	}
	if creds.PhoneNumber != "" {
		log.Info().Str("phone_number_masked", maskPhoneNumber(creds.PhoneNumber)).Msg("Credentials loaded")
	}
	return creds, nil
}

// maskPhoneNumber hides most digits of a phone number for use in logs.
func maskPhoneNumber(phoneNumber string) string {
	if len(phoneNumber) <= 4 {
		return "***"
	}
	visiblePrefix := 3
	if len(phoneNumber) > 10 {
		visiblePrefix = 4
	}
	masked := phoneNumber[:visiblePrefix]
	for i := visiblePrefix; i < len(phoneNumber)-2; i++ {
		masked += "*"
	}
	return masked + phoneNumber[len(phoneNumber)-2:]
}
