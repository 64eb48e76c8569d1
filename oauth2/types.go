// Package oauth2 holds the wire-level types shared by the authorization,
// token, and revocation endpoints.
package oauth2

// CodeMethodType represents the PKCE (Proof Key for Code Exchange) challenge method.
// Used to prevent authorization code interception attacks by public clients.
type CodeMethodType string

const (
	// CodeMethodTypeS256 indicates SHA-256 hashing is used for the code challenge.
	// Client sends: code_challenge = BASE64URL(SHA256(code_verifier))
	// Server validates: SHA256(provided code_verifier) == embedded code_challenge
	CodeMethodTypeS256 CodeMethodType = "S256"

	// CodeMethodTypePlain means no hashing, code_verifier is compared directly.
	// Only protects against passive attacks; S256 is the default.
	CodeMethodTypePlain CodeMethodType = "plain"
)

// GrantType represents the OAuth 2.0 grant type used at the token endpoint.
type GrantType string

const (
	// AuthorizationCodeGrant exchanges an authorization code for tokens.
	// Token request includes: code, redirect_uri, code_verifier.
	AuthorizationCodeGrant GrantType = "authorization_code"

	// RefreshTokenGrant exchanges a refresh token for a new token pair.
	// Handled entirely by the upstream identity provider.
	RefreshTokenGrant GrantType = "refresh_token"
)

// AuthorizationParameters holds the query parameters of an authorize request.
type AuthorizationParameters struct {
	// ClientID identifies the application requesting authorization.
	// Required; validated against the static client allow-list.
	ClientID string

	// RedirectURI is where the authorization response will be sent.
	// Required. A non-HTTP custom scheme (e.g. "cursor://") marks the
	// caller as a native/agent client.
	RedirectURI string

	// CodeChallenge is the PKCE challenge derived from the client-held
	// code_verifier. Required; base64url charset only.
	CodeChallenge string

	// CodeChallengeMethod is "S256" (default when empty) or "plain".
	CodeChallengeMethod CodeMethodType

	// State is an opaque client value echoed back on the redirect.
	State string

	// Scope is the space-delimited list of requested permissions.
	Scope string

	// UserAgent is the caller's User-Agent header, used only as a fallback
	// signal when classifying browser vs. programmatic callers.
	UserAgent string
}

// Method returns the effective challenge method, defaulting to S256.
func (p *AuthorizationParameters) Method() CodeMethodType {
	if p.CodeChallengeMethod == "" {
		return CodeMethodTypeS256
	}
	return p.CodeChallengeMethod
}

// TokenRequest holds the body of a token endpoint request. The endpoint
// accepts both form encoding and JSON; the tags cover the JSON shape.
type TokenRequest struct {
	// GrantType selects the exchange: authorization_code or refresh_token.
	GrantType GrantType `json:"grant_type"`

	// Code is the authorization code received from the authorize endpoint.
	// Required for the authorization_code grant. Exchanged once, then the
	// backing pending-request row is deleted.
	Code string `json:"code,omitempty"`

	// RedirectURI must match the URI embedded in the code, post-normalization.
	RedirectURI string `json:"redirect_uri,omitempty"`

	// CodeVerifier is the PKCE verifier matching the embedded code_challenge.
	// Security: never log this value.
	CodeVerifier string `json:"code_verifier,omitempty"`

	// RefreshToken is required for the refresh_token grant.
	RefreshToken string `json:"refresh_token,omitempty"`

	// State, when the client sends one, must equal the state embedded in
	// the code.
	State string `json:"state,omitempty"`
}

// RevocationRequest holds the body of a revoke endpoint request.
type RevocationRequest struct {
	Token         string `json:"token"`
	TokenTypeHint string `json:"token_type_hint,omitempty"`
}

// PendingResponse is the machine-readable 401 body returned to a
// programmatic caller that has no login session yet. The client is
// expected to open VerificationURI in a browser and keep retrying the
// authorize call until a session exists.
type PendingResponse struct {
	Error                   string `json:"error"`
	ErrorDescription        string `json:"error_description,omitempty"`
	VerificationURI         string `json:"verification_uri"`
	VerificationURIComplete string `json:"verification_uri_complete"`
}
