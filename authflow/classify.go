package authflow

import (
	"net/url"
	"strings"

	"github.com/sprintdeck/sprintdeck-auth/clients"
	"github.com/sprintdeck/sprintdeck-auth/oauth2"
)

// agentUserAgents are substrings that mark a caller as a non-browser
// client. Matching is best-effort: the redirect scheme signal and the
// client registration's Native flag both outrank it.
var agentUserAgents = []string{
	"cursor",
	"vscode",
	"visual studio code",
	"jetbrains",
	"intellij",
	"electron",
	"curl",
	"wget",
	"python-requests",
	"go-http-client",
	"node-fetch",
	"axios",
	"postman",
	"insomnia",
}

// Programmatic classifies the caller of an unauthenticated authorize
// request. Programmatic callers get the 401 polling contract; interactive
// ones get a browser redirect to the login page.
//
// Precedence: registered Native flag, then redirect URI scheme, then
// user-agent sniffing. A caller with no User-Agent at all is assumed
// programmatic.
func Programmatic(params *oauth2.AuthorizationParameters, client *clients.Client) bool {
	if client != nil && client.Native {
		return true
	}

	if u, err := url.Parse(params.RedirectURI); err == nil && u.Scheme != "" {
		switch strings.ToLower(u.Scheme) {
		case "http", "https":
		default:
			return true
		}
	}

	ua := strings.ToLower(params.UserAgent)
	if ua == "" {
		return true
	}
	for _, marker := range agentUserAgents {
		if strings.Contains(ua, marker) {
			return true
		}
	}
	return false
}
