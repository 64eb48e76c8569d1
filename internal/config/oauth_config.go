package config

import (
	"time"

	"github.com/sprintdeck/sprintdeck-auth/oauth2"
)

type OAuthConfig interface {
	GetAuthCodeTimeout() time.Duration
	GetPendingRequestTimeout() time.Duration
	GetAccessTokenExpirySeconds() int
	GetLoginPath() string
}

type OAuth struct{}

var _ OAuthConfig = OAuth{}

func (OAuth) GetAuthCodeTimeout() time.Duration {
	return 10 * time.Minute
}

func (OAuth) GetPendingRequestTimeout() time.Duration {
	return 10 * time.Minute
}

// GetAccessTokenExpirySeconds is the expires_in hint on token responses.
// The authoritative expiry is inside the provider-issued token.
func (OAuth) GetAccessTokenExpirySeconds() int {
	return oauth2.AccessTokenLifetimeSeconds
}

// GetLoginPath is the human-facing login/consent page, served by the
// Sprintdeck web app on the same origin.
func (OAuth) GetLoginPath() string {
	return "/login"
}
