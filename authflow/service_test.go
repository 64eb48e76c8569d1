package authflow_test

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sprintdeck/sprintdeck-auth/authcode"
	"github.com/sprintdeck/sprintdeck-auth/authflow"
	"github.com/sprintdeck/sprintdeck-auth/clients"
	"github.com/sprintdeck/sprintdeck-auth/identity"
	"github.com/sprintdeck/sprintdeck-auth/identity/providerfakes"
	"github.com/sprintdeck/sprintdeck-auth/oauth2"
	"github.com/sprintdeck/sprintdeck-auth/pending"
	"github.com/sprintdeck/sprintdeck-auth/pkce"
	"github.com/stretchr/testify/require"
)

const (
	testClientID     = "cursor-ide"
	testRedirectURI  = "cursor://anysphere.cursor-callback"
	testWebRedirect  = "https://app.sprintdeck.io/oauth/done"
	testState        = "random-state-value"
	testScope        = "projects:read tasks:write"
	testAccessToken  = "session-access-token"
	testRefreshToken = "session-refresh-token"
	testUserID       = "user-1"
	browserUA        = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"
	agentUA          = "Cursor/1.0"

	testCodeVerifier  = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	testCodeChallenge = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
)

// testConfig satisfies authflow.Config with the production defaults.
type testConfig struct{}

func (testConfig) GetAuthCodeTimeout() time.Duration       { return 10 * time.Minute }
func (testConfig) GetPendingRequestTimeout() time.Duration { return 10 * time.Minute }
func (testConfig) GetAccessTokenExpirySeconds() int        { return 3600 }
func (testConfig) GetLoginPath() string                    { return "/login" }
func (testConfig) GetBaseURL() string                      { return "https://auth.sprintdeck.io" }

// testFixture holds all test dependencies
type testFixture struct {
	repo     *pending.InMemoryRepo
	provider *providerfakes.FakeProvider
	registry *clients.Registry
	service  *authflow.AuthorizationService
	now      time.Time
	current  *time.Time
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	now := time.Now()
	current := now
	repo := pending.NewInMemoryRepo(pending.WithNowTime(func() time.Time { return current }))
	provider := providerfakes.NewFakeProvider()
	registry := clients.NewRegistry([]clients.Client{
		{ID: testClientID},
		{ID: "sprintdeck-web"},
		{ID: "pinned-native", Native: true},
	})

	service, err := authflow.NewAuthorizationService(repo, provider, registry, testConfig{},
		authflow.WithNowTime(func() time.Time { return current }))
	require.NoError(t, err)

	return &testFixture{
		repo:     repo,
		provider: provider,
		registry: registry,
		service:  service,
		now:      now,
		current:  &current,
	}
}

func (f *testFixture) advance(d time.Duration) {
	*f.current = f.current.Add(d)
}

func (f *testFixture) session() *identity.Session {
	return &identity.Session{
		UserID:       testUserID,
		AccessToken:  testAccessToken,
		RefreshToken: testRefreshToken,
	}
}

func noSession(context.Context) (*identity.Session, error) { return nil, nil }

func withSession(s *identity.Session) authflow.SessionProbe {
	return func(context.Context) (*identity.Session, error) { return s, nil }
}

// authorizeResult captures which callback fired.
type authorizeResult struct {
	loginURL    string
	pendingResp *oauth2.PendingResponse
	redirectURI string
	code        string
	state       string
	useBounce   bool
}

func (f *testFixture) authorize(t *testing.T, params *oauth2.AuthorizationParameters, probe authflow.SessionProbe) (*authorizeResult, error) {
	t.Helper()
	result := &authorizeResult{}
	err := f.service.Authorize(context.Background(), params, probe,
		func(loginURL string) { result.loginURL = loginURL },
		func(resp *oauth2.PendingResponse) { result.pendingResp = resp },
		func(redirectURI, code, state string, useBounce bool) {
			result.redirectURI = redirectURI
			result.code = code
			result.state = state
			result.useBounce = useBounce
		})
	return result, err
}

func agentParams() *oauth2.AuthorizationParameters {
	return &oauth2.AuthorizationParameters{
		ClientID:      testClientID,
		RedirectURI:   testRedirectURI,
		CodeChallenge: testCodeChallenge,
		State:         testState,
		Scope:         testScope,
		UserAgent:     agentUA,
	}
}

func requireOAuthError(t *testing.T, err error, code string) *oauth2.Error {
	t.Helper()
	var oauthErr *oauth2.Error
	require.True(t, errors.As(err, &oauthErr), "expected *oauth2.Error, got %v", err)
	require.Equal(t, code, oauthErr.Code)
	return oauthErr
}

func TestAuthorizeParameterValidation(t *testing.T) {
	f := setupTestFixture(t)

	tests := []struct {
		name   string
		mutate func(*oauth2.AuthorizationParameters)
	}{
		{"missing client_id", func(p *oauth2.AuthorizationParameters) { p.ClientID = "" }},
		{"missing redirect_uri", func(p *oauth2.AuthorizationParameters) { p.RedirectURI = "" }},
		{"missing code_challenge", func(p *oauth2.AuthorizationParameters) { p.CodeChallenge = "" }},
		{"challenge with invalid characters", func(p *oauth2.AuthorizationParameters) { p.CodeChallenge = "not/base64url+" }},
		{"unknown challenge method", func(p *oauth2.AuthorizationParameters) { p.CodeChallengeMethod = "md5" }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			params := agentParams()
			tc.mutate(params)
			_, err := f.authorize(t, params, noSession)
			requireOAuthError(t, err, oauth2.ErrorCodeInvalidRequest)
		})
	}
}

func TestAuthorizeUnknownClient(t *testing.T) {
	f := setupTestFixture(t)
	params := agentParams()
	params.ClientID = "rogue-client"
	_, err := f.authorize(t, params, noSession)
	requireOAuthError(t, err, oauth2.ErrorCodeUnauthorizedClient)
}

func TestAuthorizeUnauthenticatedProgrammatic(t *testing.T) {
	f := setupTestFixture(t)

	result, err := f.authorize(t, agentParams(), noSession)
	require.NoError(t, err)
	require.NotNil(t, result.pendingResp)
	require.Equal(t, "authorization_pending", result.pendingResp.Error)
	require.Equal(t, "https://auth.sprintdeck.io/login", result.pendingResp.VerificationURI)
	require.Contains(t, result.pendingResp.VerificationURIComplete, "return_to=")
	require.Empty(t, result.code)
	require.Empty(t, result.loginURL)

	// The request was recorded for later promotion.
	row, err := f.repo.GetByChallenge(context.Background(), testClientID, testCodeChallenge)
	require.NoError(t, err)
	require.Equal(t, pending.StatusPending, row.Status)
	require.Equal(t, testState, row.State)
}

func TestAuthorizeUnauthenticatedInteractive(t *testing.T) {
	f := setupTestFixture(t)

	params := agentParams()
	params.RedirectURI = testWebRedirect
	params.UserAgent = browserUA
	result, err := f.authorize(t, params, noSession)
	require.NoError(t, err)
	require.Nil(t, result.pendingResp)
	require.Contains(t, result.loginURL, "https://auth.sprintdeck.io/login?return_to=")

	// The return_to target carries the original authorize parameters.
	u, err := url.Parse(result.loginURL)
	require.NoError(t, err)
	returnTo, err := url.Parse(u.Query().Get("return_to"))
	require.NoError(t, err)
	require.Equal(t, testClientID, returnTo.Query().Get("client_id"))
	require.Equal(t, testCodeChallenge, returnTo.Query().Get("code_challenge"))
	require.Equal(t, "S256", returnTo.Query().Get("code_challenge_method"))
}

func TestAuthorizeClassification(t *testing.T) {
	f := setupTestFixture(t)

	t.Run("custom scheme outranks browser user agent", func(t *testing.T) {
		params := agentParams()
		params.UserAgent = browserUA // scheme is still cursor://
		result, err := f.authorize(t, params, noSession)
		require.NoError(t, err)
		require.NotNil(t, result.pendingResp)
	})

	t.Run("empty user agent is programmatic", func(t *testing.T) {
		params := agentParams()
		params.RedirectURI = testWebRedirect
		params.UserAgent = ""
		result, err := f.authorize(t, params, noSession)
		require.NoError(t, err)
		require.NotNil(t, result.pendingResp)
	})

	t.Run("native registration pins classification", func(t *testing.T) {
		params := agentParams()
		params.ClientID = "pinned-native"
		params.RedirectURI = testWebRedirect
		params.UserAgent = browserUA
		result, err := f.authorize(t, params, noSession)
		require.NoError(t, err)
		require.NotNil(t, result.pendingResp)
	})
}

// failingRepo errors on every operation, to prove the unauthenticated path
// degrades to stateless operation.
type failingRepo struct{}

func (failingRepo) Upsert(context.Context, *pending.Request) (*pending.Request, error) {
	return nil, errors.New("store unavailable")
}
func (failingRepo) GetByChallenge(context.Context, string, string) (*pending.Request, error) {
	return nil, errors.New("store unavailable")
}
func (failingRepo) Promote(context.Context, string, string, string) error {
	return errors.New("store unavailable")
}
func (failingRepo) GetByCode(context.Context, string) (*pending.Request, error) {
	return nil, errors.New("store unavailable")
}
func (failingRepo) Delete(context.Context, string) error { return errors.New("store unavailable") }
func (failingRepo) DeleteExpired(context.Context, time.Time) (int, error) {
	return 0, errors.New("store unavailable")
}

func TestAuthorizeSurvivesStoreFailure(t *testing.T) {
	provider := providerfakes.NewFakeProvider()
	registry := clients.NewRegistry([]clients.Client{{ID: testClientID}})
	service, err := authflow.NewAuthorizationService(failingRepo{}, provider, registry, testConfig{})
	require.NoError(t, err)

	var pendingResp *oauth2.PendingResponse
	err = service.Authorize(context.Background(), agentParams(), noSession,
		func(string) {},
		func(resp *oauth2.PendingResponse) { pendingResp = resp },
		func(string, string, string, bool) {})
	require.NoError(t, err)
	require.NotNil(t, pendingResp, "flow must proceed without the store")

	// The authenticated branch redirects even when promotion cannot happen.
	var issued string
	err = service.Authorize(context.Background(), agentParams(),
		withSession(&identity.Session{UserID: testUserID, AccessToken: testAccessToken, RefreshToken: testRefreshToken}),
		func(string) {},
		func(*oauth2.PendingResponse) {},
		func(_, code, _ string, _ bool) { issued = code })
	require.NoError(t, err)
	require.NotEmpty(t, issued)
}

func TestAuthorizeAuthenticatedIssuesCode(t *testing.T) {
	f := setupTestFixture(t)

	// First the agent polls unauthenticated, creating the pending row.
	_, err := f.authorize(t, agentParams(), noSession)
	require.NoError(t, err)

	// Then the user logs in and the browser re-enters the same endpoint.
	result, err := f.authorize(t, agentParams(), withSession(f.session()))
	require.NoError(t, err)
	require.Equal(t, testRedirectURI, result.redirectURI)
	require.Equal(t, testState, result.state)
	require.True(t, result.useBounce, "cursor:// must go through the bounce page")
	require.NotEmpty(t, result.code)

	payload, err := authcode.Decode(result.code)
	require.NoError(t, err)
	require.Equal(t, testUserID, payload.UserID)
	require.Equal(t, testAccessToken, payload.AccessToken)
	require.Equal(t, testRefreshToken, payload.RefreshToken)
	require.Equal(t, testCodeChallenge, payload.CodeChallenge)
	require.Equal(t, testRedirectURI, payload.RedirectURI)

	// The pending row was promoted with the issued code.
	row, err := f.repo.GetByCode(context.Background(), result.code)
	require.NoError(t, err)
	require.Equal(t, pending.StatusAuthorized, row.Status)
	require.Equal(t, testUserID, row.UserID)
}

func TestAuthorizeAuthenticatedHTTPRedirectSkipsBounce(t *testing.T) {
	f := setupTestFixture(t)

	params := agentParams()
	params.RedirectURI = testWebRedirect
	result, err := f.authorize(t, params, withSession(f.session()))
	require.NoError(t, err)
	require.False(t, result.useBounce)
	require.Equal(t, testWebRedirect, result.redirectURI)
}

func TestAuthorizeDedupLastWriteWins(t *testing.T) {
	f := setupTestFixture(t)

	t.Run("same challenge updates in place", func(t *testing.T) {
		first := agentParams()
		first.State = "state-1"
		_, err := f.authorize(t, first, noSession)
		require.NoError(t, err)

		second := agentParams()
		second.State = "state-2"
		_, err = f.authorize(t, second, noSession)
		require.NoError(t, err)

		row, err := f.repo.GetByChallenge(context.Background(), testClientID, testCodeChallenge)
		require.NoError(t, err)
		require.Equal(t, "state-2", row.State)
	})

	t.Run("new challenge replaces the client's live row", func(t *testing.T) {
		otherChallenge := pkce.Challenge("another-verifier-another-verifier-another")

		retry := agentParams()
		retry.CodeChallenge = otherChallenge
		_, err := f.authorize(t, retry, noSession)
		require.NoError(t, err)

		// The earlier challenge is no longer promotable.
		_, err = f.repo.GetByChallenge(context.Background(), testClientID, testCodeChallenge)
		require.True(t, errors.Is(err, pending.ErrNotFound))

		row, err := f.repo.GetByChallenge(context.Background(), testClientID, otherChallenge)
		require.NoError(t, err)
		require.Equal(t, otherChallenge, row.CodeChallenge)
	})
}

func (f *testFixture) issueCode(t *testing.T, params *oauth2.AuthorizationParameters) string {
	t.Helper()
	result, err := f.authorize(t, params, withSession(f.session()))
	require.NoError(t, err)
	require.NotEmpty(t, result.code)
	return result.code
}

func codeGrant(code string) *oauth2.TokenRequest {
	return &oauth2.TokenRequest{
		GrantType:    oauth2.AuthorizationCodeGrant,
		Code:         code,
		RedirectURI:  testRedirectURI,
		CodeVerifier: testCodeVerifier,
	}
}

func TestTokenExchangeSucceeds(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.authorize(t, agentParams(), noSession)
	require.NoError(t, err)
	code := f.issueCode(t, agentParams())

	resp, err := f.service.Token(context.Background(), codeGrant(code))
	require.NoError(t, err)
	require.Equal(t, testAccessToken, resp.AccessToken)
	require.Equal(t, testRefreshToken, resp.RefreshToken)
	require.Equal(t, "Bearer", resp.TokenType)
	require.Equal(t, 3600, resp.ExpiresIn)
	require.Equal(t, testScope, resp.Scope)

	// Single-use bookkeeping: the pending row is gone.
	_, err = f.repo.GetByCode(context.Background(), code)
	require.True(t, errors.Is(err, pending.ErrNotFound))
}

func TestTokenExchangeAcceptsURLEncodedCode(t *testing.T) {
	f := setupTestFixture(t)
	code := f.issueCode(t, agentParams())

	req := codeGrant(url.QueryEscape(code))
	resp, err := f.service.Token(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, testAccessToken, resp.AccessToken)
}

// Second redemption of the same code still succeeds: the code is
// self-contained and re-verifies without the deleted row. Measured
// behavior, relied on by tests elsewhere.
func TestTokenExchangeDoubleRedemption(t *testing.T) {
	f := setupTestFixture(t)
	code := f.issueCode(t, agentParams())

	_, err := f.service.Token(context.Background(), codeGrant(code))
	require.NoError(t, err)

	resp, err := f.service.Token(context.Background(), codeGrant(code))
	require.NoError(t, err)
	require.Equal(t, testAccessToken, resp.AccessToken)
}

func TestTokenExchangeValidation(t *testing.T) {
	f := setupTestFixture(t)
	code := f.issueCode(t, agentParams())

	t.Run("missing code", func(t *testing.T) {
		req := codeGrant(code)
		req.Code = ""
		_, err := f.service.Token(context.Background(), req)
		requireOAuthError(t, err, oauth2.ErrorCodeInvalidRequest)
	})

	t.Run("missing redirect_uri", func(t *testing.T) {
		req := codeGrant(code)
		req.RedirectURI = ""
		_, err := f.service.Token(context.Background(), req)
		requireOAuthError(t, err, oauth2.ErrorCodeInvalidRequest)
	})

	t.Run("missing code_verifier", func(t *testing.T) {
		req := codeGrant(code)
		req.CodeVerifier = ""
		_, err := f.service.Token(context.Background(), req)
		requireOAuthError(t, err, oauth2.ErrorCodeInvalidRequest)
	})

	t.Run("verifier outside RFC 7636 charset rejected before decode", func(t *testing.T) {
		req := codeGrant("not-even-a-code")
		req.CodeVerifier = "bad verifier!"
		_, err := f.service.Token(context.Background(), req)
		oauthErr := requireOAuthError(t, err, oauth2.ErrorCodeInvalidRequest)
		require.Contains(t, oauthErr.Description, "code_verifier")
	})

	t.Run("malformed code", func(t *testing.T) {
		req := codeGrant("garbage-without-separator")
		_, err := f.service.Token(context.Background(), req)
		oauthErr := requireOAuthError(t, err, oauth2.ErrorCodeInvalidGrant)
		require.Contains(t, oauthErr.Description, "Malformed")
	})
}

func TestTokenExchangePKCE(t *testing.T) {
	f := setupTestFixture(t)

	t.Run("wrong verifier fails", func(t *testing.T) {
		code := f.issueCode(t, agentParams())
		req := codeGrant(code)
		req.CodeVerifier = "wrong-verifier-wrong-verifier-wrong-verifier"
		_, err := f.service.Token(context.Background(), req)
		oauthErr := requireOAuthError(t, err, oauth2.ErrorCodeInvalidGrant)
		require.Contains(t, oauthErr.Description, "Code verifier does not match code challenge")
	})

	t.Run("plain method compares directly", func(t *testing.T) {
		params := agentParams()
		params.CodeChallenge = "plain-challenge-value-plain-challenge-value"
		params.CodeChallengeMethod = oauth2.CodeMethodTypePlain
		code := f.issueCode(t, params)

		req := codeGrant(code)
		req.CodeVerifier = "plain-challenge-value-plain-challenge-value"
		resp, err := f.service.Token(context.Background(), req)
		require.NoError(t, err)
		require.Equal(t, testAccessToken, resp.AccessToken)
	})

	t.Run("generated verifier round trip", func(t *testing.T) {
		verifier, err := pkce.GenerateVerifier()
		require.NoError(t, err)

		params := agentParams()
		params.CodeChallenge = pkce.Challenge(verifier)
		code := f.issueCode(t, params)

		req := codeGrant(code)
		req.CodeVerifier = verifier
		_, err = f.service.Token(context.Background(), req)
		require.NoError(t, err)
	})
}

func TestTokenExchangeExpiredCode(t *testing.T) {
	f := setupTestFixture(t)
	code := f.issueCode(t, agentParams())

	f.advance(10*time.Minute + time.Second)

	_, err := f.service.Token(context.Background(), codeGrant(code))
	oauthErr := requireOAuthError(t, err, oauth2.ErrorCodeInvalidGrant)
	require.Contains(t, strings.ToLower(oauthErr.Description), "expired")
}

func TestTokenExchangeRedirectBinding(t *testing.T) {
	f := setupTestFixture(t)
	code := f.issueCode(t, agentParams())

	t.Run("different redirect fails even with correct PKCE", func(t *testing.T) {
		req := codeGrant(code)
		req.RedirectURI = "https://evil.example.com/cb"
		_, err := f.service.Token(context.Background(), req)
		oauthErr := requireOAuthError(t, err, oauth2.ErrorCodeInvalidGrant)
		require.Contains(t, oauthErr.Description, "redirect_uri")
	})

	t.Run("normalization tolerates trailing slash and case", func(t *testing.T) {
		req := codeGrant(code)
		req.RedirectURI = strings.ToUpper(testRedirectURI) + "/"
		_, err := f.service.Token(context.Background(), req)
		require.NoError(t, err)
	})
}

func TestTokenExchangeStateBinding(t *testing.T) {
	f := setupTestFixture(t)
	code := f.issueCode(t, agentParams())

	t.Run("mismatched state fails", func(t *testing.T) {
		req := codeGrant(code)
		req.State = "different-state"
		_, err := f.service.Token(context.Background(), req)
		requireOAuthError(t, err, oauth2.ErrorCodeInvalidGrant)
	})

	t.Run("omitted state is accepted", func(t *testing.T) {
		req := codeGrant(code)
		req.State = ""
		_, err := f.service.Token(context.Background(), req)
		require.NoError(t, err)
	})
}

func TestTokenGrantTypeHandling(t *testing.T) {
	f := setupTestFixture(t)

	t.Run("missing grant_type", func(t *testing.T) {
		_, err := f.service.Token(context.Background(), &oauth2.TokenRequest{})
		requireOAuthError(t, err, oauth2.ErrorCodeInvalidRequest)
	})

	t.Run("unsupported grant_type", func(t *testing.T) {
		_, err := f.service.Token(context.Background(), &oauth2.TokenRequest{GrantType: "password"})
		requireOAuthError(t, err, oauth2.ErrorCodeUnsupportedGrantType)
	})
}

func TestRefreshTokenGrant(t *testing.T) {
	f := setupTestFixture(t)
	f.provider.AddRefreshPair("old-refresh", &identity.TokenPair{
		AccessToken:  "new-access",
		RefreshToken: "new-refresh",
		Scope:        testScope,
	})

	t.Run("success", func(t *testing.T) {
		resp, err := f.service.Token(context.Background(), &oauth2.TokenRequest{
			GrantType:    oauth2.RefreshTokenGrant,
			RefreshToken: "old-refresh",
		})
		require.NoError(t, err)
		require.Equal(t, "new-access", resp.AccessToken)
		require.Equal(t, "new-refresh", resp.RefreshToken)
		require.Equal(t, 3600, resp.ExpiresIn)
	})

	t.Run("missing refresh_token", func(t *testing.T) {
		_, err := f.service.Token(context.Background(), &oauth2.TokenRequest{GrantType: oauth2.RefreshTokenGrant})
		requireOAuthError(t, err, oauth2.ErrorCodeInvalidRequest)
	})

	t.Run("provider rejection maps to invalid_grant", func(t *testing.T) {
		_, err := f.service.Token(context.Background(), &oauth2.TokenRequest{
			GrantType:    oauth2.RefreshTokenGrant,
			RefreshToken: "unknown-token",
		})
		requireOAuthError(t, err, oauth2.ErrorCodeInvalidGrant)
	})
}

func TestRevokeIsAlwaysSilent(t *testing.T) {
	f := setupTestFixture(t)

	f.service.Revoke(context.Background(), "some-token", "refresh_token")
	require.Equal(t, []string{"some-token"}, f.provider.RevokedTokens())

	// Upstream failure is swallowed.
	f.provider.FailRevoke(errors.New("upstream down"))
	f.service.Revoke(context.Background(), "another-token", "")

	// Empty token is a no-op, not a call.
	f.service.Revoke(context.Background(), "", "")
	require.Len(t, f.provider.RevokedTokens(), 2)
}

func TestSweepExpired(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.authorize(t, agentParams(), noSession)
	require.NoError(t, err)

	f.advance(11 * time.Minute)
	removed, err := f.service.SweepExpired(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, removed)
}
