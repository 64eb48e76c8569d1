package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const probeTimeout = 10 * time.Second

// OIDCProvider talks to the identity provider over its OIDC surface:
// discovery for endpoint locations, a session endpoint for the cookie
// probe, and the standard token/revocation endpoints.
type OIDCProvider struct {
	provider        *oidc.Provider
	oauthConfig     *oauth2.Config
	sessionEndpoint string
	revokeEndpoint  string
	httpClient      *http.Client
}

// discoveryClaims captures the non-standard endpoints we need beyond what
// go-oidc exposes directly.
type discoveryClaims struct {
	RevocationEndpoint string `json:"revocation_endpoint"`
}

// NewOIDCProvider discovers the identity provider rooted at issuerURL.
// sessionEndpoint is the provider's cookie-session probe URL; when empty it
// defaults to issuerURL + "/session".
func NewOIDCProvider(ctx context.Context, issuerURL, clientID, clientSecret, sessionEndpoint string) (*OIDCProvider, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, errors.Wrap(err, "[identity.NewOIDCProvider] oidc.NewProvider")
	}

	var claims discoveryClaims
	if err := provider.Claims(&claims); err != nil {
		return nil, errors.Wrap(err, "[identity.NewOIDCProvider] discovery claims")
	}
	revokeEndpoint := claims.RevocationEndpoint
	if revokeEndpoint == "" {
		revokeEndpoint = strings.TrimRight(issuerURL, "/") + "/revoke"
	}
	if sessionEndpoint == "" {
		sessionEndpoint = strings.TrimRight(issuerURL, "/") + "/session"
	}

	return &OIDCProvider{
		provider: provider,
		oauthConfig: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     provider.Endpoint(),
		},
		sessionEndpoint: sessionEndpoint,
		revokeEndpoint:  revokeEndpoint,
		httpClient:      &http.Client{Timeout: probeTimeout},
	}, nil
}

// sessionResponse is the provider's session endpoint body.
type sessionResponse struct {
	User struct {
		ID string `json:"id"`
	} `json:"user"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
}

// SessionFromRequest forwards the caller's cookies to the provider's
// session endpoint. 401/404 mean no session; any transport failure is an
// error so the caller can decide how to degrade.
func (p *OIDCProvider) SessionFromRequest(ctx context.Context, r *http.Request) (*Session, error) {
	if len(r.Cookies()) == 0 {
		return nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.sessionEndpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, "[identity.SessionFromRequest] build request")
	}
	req.Header.Set("Cookie", r.Header.Get("Cookie"))

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "[identity.SessionFromRequest] session probe")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("[identity.SessionFromRequest] unexpected status %d", resp.StatusCode)
	}

	var body sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.Wrap(err, "[identity.SessionFromRequest] decode body")
	}
	if body.AccessToken == "" {
		return nil, nil
	}

	session := &Session{
		UserID:       body.User.ID,
		AccessToken:  body.AccessToken,
		RefreshToken: body.RefreshToken,
		Scope:        body.Scope,
	}
	fillFromAccessToken(session)
	return session, nil
}

// fillFromAccessToken backfills UserID and ExpiresAt from the access
// token's claims when the session endpoint omits them. The token is
// provider-issued and verified upstream; this is a claims peek, not a
// signature check.
func fillFromAccessToken(session *Session) {
	claims := jwtlib.MapClaims{}
	parser := jwtlib.NewParser()
	if _, _, err := parser.ParseUnverified(session.AccessToken, claims); err != nil {
		return // opaque token, nothing to backfill
	}
	if session.UserID == "" {
		if sub, err := claims.GetSubject(); err == nil {
			session.UserID = sub
		}
	}
	if session.ExpiresAt.IsZero() {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			session.ExpiresAt = exp.Time
		}
	}
}

// Refresh exchanges a refresh token through the provider's token endpoint.
func (p *OIDCProvider) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	source := p.oauthConfig.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return nil, errors.Wrap(err, "[identity.Refresh] token source")
	}

	pair := &TokenPair{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}
	if pair.RefreshToken == "" {
		// Provider did not rotate; the old token stays valid.
		pair.RefreshToken = refreshToken
	}
	if scope, ok := token.Extra("scope").(string); ok {
		pair.Scope = scope
	}
	return pair, nil
}

// Revoke forwards an RFC 7009 revocation. Upstream errors are returned so
// the handler can log them, but per OAuth semantics the endpoint above
// this call still answers 200.
func (p *OIDCProvider) Revoke(ctx context.Context, token, tokenTypeHint string) error {
	form := url.Values{}
	form.Set("token", token)
	if tokenTypeHint != "" {
		form.Set("token_type_hint", tokenTypeHint)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.revokeEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return errors.Wrap(err, "[identity.Revoke] build request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if p.oauthConfig.ClientID != "" {
		req.SetBasicAuth(p.oauthConfig.ClientID, p.oauthConfig.ClientSecret)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "[identity.Revoke] post")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Warn().Int("status", resp.StatusCode).Msg("Identity provider revoke returned non-200")
		return errors.Errorf("[identity.Revoke] unexpected status %d", resp.StatusCode)
	}
	return nil
}

var _ Provider = (*OIDCProvider)(nil)
