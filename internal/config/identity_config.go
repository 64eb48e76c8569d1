package config

type Identity struct{}

var _ IdentityConfig = Identity{}

func (Identity) GetIdentityIssuerURL() string {
	return GetEnv("IDENTITY_ISSUER_URL", "http://localhost:9999")
}

func (Identity) GetIdentityClientID() string {
	return GetEnv("IDENTITY_CLIENT_ID", "sprintdeck-auth")
}

func (Identity) GetIdentityClientSecret() string {
	return GetEnv("IDENTITY_CLIENT_SECRET", "")
}

// GetIdentitySessionEndpoint is the provider URL that resolves a browser
// cookie into the session's user and token pair. Empty means
// "<issuer>/session".
func (Identity) GetIdentitySessionEndpoint() string {
	return GetEnv("IDENTITY_SESSION_ENDPOINT", "")
}
