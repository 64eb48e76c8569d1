// Package authflow implements the authorization-code-with-PKCE bridge that
// lets a non-browser client (IDE agent, desktop app) obtain Sprintdeck API
// credentials through a browser-mediated login.
package authflow

import (
	"context"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/sprintdeck/sprintdeck-auth/authcode"
	"github.com/sprintdeck/sprintdeck-auth/clients"
	"github.com/sprintdeck/sprintdeck-auth/identity"
	"github.com/sprintdeck/sprintdeck-auth/oauth2"
	"github.com/sprintdeck/sprintdeck-auth/pending"
	"github.com/sprintdeck/sprintdeck-auth/pkce"
)

// Config is the slice of server configuration the flow needs.
type Config interface {
	GetAuthCodeTimeout() time.Duration
	GetPendingRequestTimeout() time.Duration
	GetAccessTokenExpirySeconds() int
	GetLoginPath() string
	GetBaseURL() string
}

// SessionProbe asks the identity provider whether the current caller has
// an authenticated, cookie-bound session.
type SessionProbe func(ctx context.Context) (*identity.Session, error)

// LoginRedirect sends an interactive caller to the human-facing login page.
type LoginRedirect func(loginURL string)

// PendingRespond answers a programmatic caller that has no session yet.
// The caller is expected to open the verification URI and poll.
type PendingRespond func(resp *oauth2.PendingResponse)

// CodeRedirect sends the issued authorization code back to the client.
// useBounce is set for non-HTTP redirect schemes, which many platforms
// refuse to follow directly from a cross-origin response.
type CodeRedirect func(redirectURI, code, state string, useBounce bool)

// AuthorizationService orchestrates the authorize, token, and revocation
// operations. It owns no credentials: tokens are minted by the identity
// provider and only packaged here.
type AuthorizationService struct {
	requests pending.Repo
	provider identity.Provider
	registry *clients.Registry
	config   Config
	nowTime  func() time.Time // nowTime function (injectable for testing)
}

// AuthorizationServiceOption defines a function type to modify the AuthorizationService instance.
type AuthorizationServiceOption func(*AuthorizationService)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.nowTime = nowFunc
	}
}

// NewAuthorizationService initializes a new AuthorizationService with required dependencies.
func NewAuthorizationService(
	requests pending.Repo,
	provider identity.Provider,
	registry *clients.Registry,
	config Config,
	options ...AuthorizationServiceOption,
) (*AuthorizationService, error) {
	if requests == nil {
		return nil, errors.New("[NewAuthorizationService] pending request repo is required")
	}
	if provider == nil {
		return nil, errors.New("[NewAuthorizationService] identity provider is required")
	}
	if registry == nil {
		return nil, errors.New("[NewAuthorizationService] client registry is required")
	}
	if config == nil {
		return nil, errors.New("[NewAuthorizationService] config is required")
	}

	authService := &AuthorizationService{
		requests: requests,
		provider: provider,
		registry: registry,
		config:   config,
		nowTime:  time.Now,
	}

	for _, opt := range options {
		opt(authService)
	}

	return authService, nil
}

// Authorize runs the dual-mode authorize endpoint. Exactly one of the
// three callbacks fires on success; a returned error is always an
// *oauth2.Error suitable for a 400/authz response.
func (as *AuthorizationService) Authorize(
	ctx context.Context,
	params *oauth2.AuthorizationParameters,
	probe SessionProbe,
	loginRedirect LoginRedirect,
	pendingRespond PendingRespond,
	codeRedirect CodeRedirect,
) error {
	if err := validateAuthorizeParameters(params); err != nil {
		return err
	}

	client, err := as.lookupClient(params.ClientID)
	if err != nil {
		return err
	}

	// A failed probe degrades to the unauthenticated branch: the flow must
	// proceed, and the client will simply be asked to log in.
	session, err := probe(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Session probe failed, treating caller as unauthenticated")
		session = nil
	}

	if session == nil {
		return as.authorizeUnauthenticated(ctx, params, client, loginRedirect, pendingRespond)
	}
	return as.authorizeAuthenticated(ctx, params, session, codeRedirect)
}

// authorizeUnauthenticated records the request for later promotion and
// answers according to the caller classification.
func (as *AuthorizationService) authorizeUnauthenticated(
	ctx context.Context,
	params *oauth2.AuthorizationParameters,
	client *clients.Client,
	loginRedirect LoginRedirect,
	pendingRespond PendingRespond,
) error {
	// Persistence is best-effort deduplication, not correctness: the
	// self-contained code remains the source of truth at exchange time.
	_, err := as.requests.Upsert(ctx, &pending.Request{
		ClientID:            params.ClientID,
		CodeChallenge:       params.CodeChallenge,
		CodeChallengeMethod: string(params.Method()),
		RedirectURI:         params.RedirectURI,
		State:               params.State,
		Scope:               params.Scope,
		Status:              pending.StatusPending,
		ExpiresAt:           as.nowTime().Add(as.config.GetPendingRequestTimeout()),
	})
	if err != nil {
		log.Warn().Err(err).Str("client_id", params.ClientID).
			Msg("Failed to persist pending authorization request, continuing stateless")
	}

	loginURL := as.loginURL(params)

	if Programmatic(params, client) {
		pendingRespond(&oauth2.PendingResponse{
			Error:                   oauth2.ErrorCodeAuthorizationPending,
			ErrorDescription:        "User has not completed login. Open the verification URI in a browser and retry.",
			VerificationURI:         as.config.GetBaseURL() + as.config.GetLoginPath(),
			VerificationURIComplete: loginURL,
		})
		return nil
	}

	loginRedirect(loginURL)
	return nil
}

// authorizeAuthenticated mints the self-contained code from the current
// session, promotes any matching pending row, and redirects the browser.
func (as *AuthorizationService) authorizeAuthenticated(
	ctx context.Context,
	params *oauth2.AuthorizationParameters,
	session *identity.Session,
	codeRedirect CodeRedirect,
) error {
	// Idempotent re-check: the unauthenticated call validated this too,
	// but the authenticated entry may be a fresh request.
	if !pkce.ValidChallengeFormat(params.CodeChallenge) {
		return oauth2.InvalidRequest("code_challenge must be base64url encoded")
	}

	code, err := authcode.Encode(&authcode.Payload{
		UserID:              session.UserID,
		CodeChallenge:       params.CodeChallenge,
		CodeChallengeMethod: string(params.Method()),
		Scope:               params.Scope,
		RedirectURI:         params.RedirectURI,
		AccessToken:         session.AccessToken,
		RefreshToken:        session.RefreshToken,
		ExpiresAt:           as.nowTime().Add(as.config.GetAuthCodeTimeout()).UnixMilli(),
		State:               params.State,
	})
	if err != nil {
		return &oauth2.Error{Code: oauth2.ErrorCodeServerError, Description: "Failed to issue authorization code"}
	}

	// Promotion is what lets a polling client observe success. Failures
	// are logged, not surfaced: the browser redirect below still delivers
	// the code to interactive clients.
	row, err := as.requests.GetByChallenge(ctx, params.ClientID, params.CodeChallenge)
	switch {
	case err == nil:
		if err := as.requests.Promote(ctx, row.ID, session.UserID, code); err != nil {
			log.Warn().Err(err).Str("client_id", params.ClientID).
				Msg("Failed to promote pending authorization request")
		}
	case !errors.Is(err, pending.ErrNotFound):
		log.Warn().Err(err).Str("client_id", params.ClientID).
			Msg("Pending request lookup failed during promotion")
	}

	codeRedirect(params.RedirectURI, code, params.State, !httpScheme(params.RedirectURI))
	return nil
}

// Token handles the token endpoint for both supported grants.
func (as *AuthorizationService) Token(ctx context.Context, req *oauth2.TokenRequest) (*oauth2.TokenResponse, error) {
	switch req.GrantType {
	case oauth2.AuthorizationCodeGrant:
		return as.exchangeAuthorizationCode(ctx, req)
	case oauth2.RefreshTokenGrant:
		return as.refreshTokens(ctx, req)
	case "":
		return nil, oauth2.InvalidRequest("grant_type is required")
	default:
		return nil, oauth2.UnsupportedGrantType(string(req.GrantType))
	}
}

// exchangeAuthorizationCode validates a self-contained code and relays the
// tokens embedded in it. The identity provider is never consulted here.
func (as *AuthorizationService) exchangeAuthorizationCode(ctx context.Context, req *oauth2.TokenRequest) (*oauth2.TokenResponse, error) {
	if req.Code == "" {
		return nil, oauth2.InvalidRequest("code is required")
	}
	if req.RedirectURI == "" {
		return nil, oauth2.InvalidRequest("redirect_uri is required")
	}
	if req.CodeVerifier == "" {
		return nil, oauth2.InvalidRequest("code_verifier is required")
	}
	if !pkce.ValidVerifierFormat(req.CodeVerifier) {
		return nil, oauth2.InvalidRequest("code_verifier contains invalid characters")
	}

	// The code may have transited a redirect chain that percent-encoded it.
	code := req.Code
	if decoded, err := url.QueryUnescape(code); err == nil {
		code = decoded
	}

	// Best-effort bookkeeping lookup. A miss is not an error: the code is
	// self-contained, the row exists only for single-use enforcement.
	var rowID string
	row, err := as.requests.GetByCode(ctx, code)
	switch {
	case err == nil:
		rowID = row.ID
	case !errors.Is(err, pending.ErrNotFound):
		log.Warn().Err(err).Msg("Pending request lookup failed during token exchange")
	}

	payload, err := authcode.Decode(code)
	if err != nil {
		return nil, oauth2.InvalidGrant("Malformed authorization code")
	}

	if req.State != "" && payload.State != "" && req.State != payload.State {
		return nil, oauth2.InvalidGrant("State does not match authorization request")
	}

	if payload.Expired(as.nowTime()) {
		return nil, oauth2.InvalidGrant("Authorization code expired")
	}

	if normalizeRedirectURI(req.RedirectURI) != normalizeRedirectURI(payload.RedirectURI) {
		return nil, oauth2.InvalidGrant("redirect_uri does not match authorization request")
	}

	if !pkce.Verify(payload.CodeChallenge, req.CodeVerifier, challengeMethod(payload.CodeChallengeMethod)) {
		return nil, oauth2.InvalidGrant("Code verifier does not match code challenge")
	}

	if !payload.HasTokens() {
		return nil, oauth2.InvalidGrant("Authorization code is missing tokens")
	}

	// Single-use enforcement, advisory: deletion happens after validation,
	// so two concurrent redemptions can both reach this point. The store's
	// single-row delete is the only serialization applied.
	if rowID != "" {
		if err := as.requests.Delete(ctx, rowID); err != nil {
			log.Warn().Err(err).Msg("Failed to delete redeemed pending request")
		}
	}

	return &oauth2.TokenResponse{
		AccessToken:  payload.AccessToken,
		TokenType:    oauth2.BearerTokenType,
		ExpiresIn:    as.config.GetAccessTokenExpirySeconds(),
		RefreshToken: payload.RefreshToken,
		Scope:        payload.Scope,
	}, nil
}

// refreshTokens delegates entirely to the identity provider.
func (as *AuthorizationService) refreshTokens(ctx context.Context, req *oauth2.TokenRequest) (*oauth2.TokenResponse, error) {
	if req.RefreshToken == "" {
		return nil, oauth2.InvalidRequest("refresh_token is required")
	}

	pair, err := as.provider.Refresh(ctx, req.RefreshToken)
	if err != nil {
		return nil, oauth2.InvalidGrant("Invalid or expired refresh token")
	}

	return &oauth2.TokenResponse{
		AccessToken:  pair.AccessToken,
		TokenType:    oauth2.BearerTokenType,
		ExpiresIn:    as.config.GetAccessTokenExpirySeconds(),
		RefreshToken: pair.RefreshToken,
		Scope:        pair.Scope,
	}, nil
}

// Revoke forwards the revocation upstream. Per RFC 7009 the caller always
// sees success: unknown tokens, repeated revocations, and upstream
// failures are indistinguishable from the outside.
func (as *AuthorizationService) Revoke(ctx context.Context, token, tokenTypeHint string) {
	if token == "" {
		return
	}
	if err := as.provider.Revoke(ctx, token, tokenTypeHint); err != nil {
		log.Warn().Err(err).Str("token_type_hint", tokenTypeHint).
			Msg("Identity provider revocation failed")
	}
}

// SweepExpired reaps expired pending rows. Called by the janitor ticker.
func (as *AuthorizationService) SweepExpired(ctx context.Context) (int, error) {
	return as.requests.DeleteExpired(ctx, as.nowTime())
}

func (as *AuthorizationService) lookupClient(clientID string) (*clients.Client, error) {
	if as.registry.Empty() {
		return nil, nil // allow-list enforcement disabled
	}
	client, err := as.registry.Get(clientID)
	if err != nil {
		return nil, oauth2.UnauthorizedClient("Unknown client_id")
	}
	return client, nil
}

// loginURL builds the login page URL that returns to this authorize
// request once the user has a session.
func (as *AuthorizationService) loginURL(params *oauth2.AuthorizationParameters) string {
	authorize := url.Values{}
	authorize.Set("client_id", params.ClientID)
	authorize.Set("redirect_uri", params.RedirectURI)
	authorize.Set("code_challenge", params.CodeChallenge)
	authorize.Set("code_challenge_method", string(params.Method()))
	if params.State != "" {
		authorize.Set("state", params.State)
	}
	if params.Scope != "" {
		authorize.Set("scope", params.Scope)
	}
	returnTo := as.config.GetBaseURL() + "/authorize?" + authorize.Encode()

	login := url.Values{}
	login.Set("return_to", returnTo)
	return as.config.GetBaseURL() + as.config.GetLoginPath() + "?" + login.Encode()
}

func challengeMethod(method string) pkce.MethodType {
	if method == "" {
		return pkce.MethodS256
	}
	return pkce.MethodType(method)
}
