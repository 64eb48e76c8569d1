package config

type Config interface {
	EnvConfig
	CorsConfig
	OAuthConfig
	IdentityConfig
	SecurityConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetBaseURL() string
	GetDatabaseURL() string
	GetAllowedClientIDs() string
	GetEnv() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type IdentityConfig interface {
	GetIdentityIssuerURL() string
	GetIdentityClientID() string
	GetIdentityClientSecret() string
	GetIdentitySessionEndpoint() string
}

type mainConfig struct {
	EnvVars
	Cors
	OAuth
	Identity
	Security
}

func New() Config {
	return mainConfig{}
}
