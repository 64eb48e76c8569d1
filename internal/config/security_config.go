package config

type SecurityConfig interface {
	GetVerboseErrors() bool
}

type Security struct{}

var _ SecurityConfig = Security{}

// GetVerboseErrors gates server_error descriptions: internal detail is
// only surfaced outside production.
func (Security) GetVerboseErrors() bool {
	return GetEnv("ENV", "DEV") != "PROD"
}
