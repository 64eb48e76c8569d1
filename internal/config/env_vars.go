package config

import (
	"fmt"
	"os"
)

const (
	portEnvVar    = "PORT"
	appNameVar    = "APP_NAME"
	baseURLVar    = "BASE_URL"
	databaseVar   = "DATABASE_URL"
	allowedIDsVar = "ALLOWED_CLIENT_IDS"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetPort() string {
	port := GetEnv(portEnvVar, "8080")
	if port != "" && port[0] != ':' {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Sprintdeck Auth")
}

// GetBaseURL returns the public base URL of this server (e.g.
// "https://auth.sprintdeck.io"). Used for verification URIs, the bounce
// page, and the discovery document.
func (EnvVars) GetBaseURL() string {
	return GetEnv(baseURLVar, "http://localhost:8080")
}

func (EnvVars) GetDatabaseURL() string {
	return GetEnv(databaseVar, "")
}

// GetAllowedClientIDs returns the comma-separated client allow-list.
// An entry may be suffixed ":native" to pin that client's caller
// classification. Empty disables enforcement (local development).
func (EnvVars) GetAllowedClientIDs() string {
	return GetEnv(allowedIDsVar, "")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
