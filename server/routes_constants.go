package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// OAuth2 Routes
	RouteAuthorize = "/authorize"
	RouteToken     = "/token"
	RouteRevoke    = "/revoke"

	// Callback bounce page for custom-scheme redirects
	RouteCallback = "/oauth/callback"

	// Metadata / Operations
	RouteDiscovery = "/.well-known/oauth-authorization-server"
	RouteHealthz   = "/healthz"
)
