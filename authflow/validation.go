package authflow

import (
	"net/url"
	"strings"

	"github.com/sprintdeck/sprintdeck-auth/oauth2"
	"github.com/sprintdeck/sprintdeck-auth/pkce"
)

// validateAuthorizeParameters enforces the mandatory parameters and
// formats. Failures are invalid_request with no redirect: the redirect
// target itself is unverified at this point.
func validateAuthorizeParameters(params *oauth2.AuthorizationParameters) error {
	if params.ClientID == "" {
		return oauth2.InvalidRequest("client_id is required")
	}
	if params.RedirectURI == "" {
		return oauth2.InvalidRequest("redirect_uri is required")
	}
	if params.CodeChallenge == "" {
		return oauth2.InvalidRequest("code_challenge is required")
	}
	if !pkce.ValidChallengeFormat(params.CodeChallenge) {
		return oauth2.InvalidRequest("code_challenge must be base64url encoded")
	}

	switch params.Method() {
	case oauth2.CodeMethodTypeS256, oauth2.CodeMethodTypePlain:
	default:
		return oauth2.InvalidRequest("code_challenge_method must be 'S256' or 'plain'")
	}
	return nil
}

// normalizeRedirectURI makes the embedded and supplied redirect URIs
// comparable: trim whitespace, strip one trailing slash, case-fold.
func normalizeRedirectURI(uri string) string {
	uri = strings.TrimSpace(uri)
	uri = strings.TrimSuffix(uri, "/")
	return strings.ToLower(uri)
}

// httpScheme reports whether the redirect URI can be followed by a plain
// HTTP redirect. Custom schemes (cursor://, vscode://) go through the
// bounce page instead.
func httpScheme(redirectURI string) bool {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return true
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "":
		return true
	}
	return false
}
