package oauth2

// TokenResponse represents the response from an OAuth2 token request, the
// standard token endpoint format defined in RFC 6749.
type TokenResponse struct {
	// AccessToken is the bearer token used to access the Sprintdeck API.
	// Usage: "Authorization: Bearer <access_token>"
	AccessToken string `json:"access_token"`

	// TokenType is always "Bearer".
	TokenType string `json:"token_type"`

	// ExpiresIn is the lifetime hint in seconds of the access token.
	ExpiresIn int `json:"expires_in"`

	// RefreshToken obtains new access tokens without re-authentication.
	// Security: store securely, never log.
	RefreshToken string `json:"refresh_token,omitempty"`

	// Scope is the space-separated list of granted permissions.
	Scope string `json:"scope,omitempty"`
}

// BearerTokenType is the only token_type this server issues.
const BearerTokenType = "Bearer"

// AccessTokenLifetimeSeconds is the expires_in hint returned with every
// token response. The authoritative expiry lives in the provider token.
const AccessTokenLifetimeSeconds = 3600
