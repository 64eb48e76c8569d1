package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"github.com/sprintdeck/sprintdeck-auth/identity"
	"github.com/sprintdeck/sprintdeck-auth/oauth2"
)

const (
	contentTypeHTML = "text/html; charset=utf-8"
	contentTypeJSON = "application/json; charset=utf-8"
)

// Authorize begins the authorization flow. Browsers with a session get a
// code redirect, browsers without one get the login page, and programmatic
// callers without one get the 401 polling contract.
func (s *Server) Authorize() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params := parseAuthorizationParameters(r)

		// Resolve the caller's login session from the forwarded cookies.
		probe := func(ctx context.Context) (*identity.Session, error) {
			return s.provider.SessionFromRequest(ctx, r)
		}

		loginRedirect := func(loginURL string) {
			http.Redirect(w, r, loginURL, http.StatusFound)
		}

		pendingRespond := func(resp *oauth2.PendingResponse) {
			w.Header().Set("Content-Type", contentTypeJSON)
			w.Header().Set("WWW-Authenticate", fmt.Sprintf(
				`Bearer error="invalid_token", error_description="authorization_pending", authorization_uri=%q`,
				resp.VerificationURIComplete))
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(resp)
		}

		codeRedirect := func(redirectURI, code, state string, useBounce bool) {
			if useBounce {
				http.Redirect(w, r, s.bounceURL(redirectURI, code, state), http.StatusFound)
				return
			}
			target, err := appendCodeToRedirect(redirectURI, code, state)
			if err != nil {
				s.writeOAuthError(w, &oauth2.Error{Code: oauth2.ErrorCodeServerError, Description: "Invalid redirect URI"})
				return
			}
			http.Redirect(w, r, target, http.StatusFound)
		}

		if err := s.flow.Authorize(r.Context(), params, probe, loginRedirect, pendingRespond, codeRedirect); err != nil {
			s.writeOAuthError(w, err)
		}
	}
}

// Token exchanges an authorization code or refresh token for tokens.
// Both form-encoded and JSON bodies are accepted; IDE agents commonly
// send JSON.
func (s *Server) Token() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenReq := &oauth2.TokenRequest{}
		if isJSONRequest(r) {
			if err := json.NewDecoder(r.Body).Decode(tokenReq); err != nil {
				s.writeOAuthError(w, oauth2.InvalidRequest("Failed to parse JSON body"))
				return
			}
		} else {
			if err := r.ParseForm(); err != nil {
				s.writeOAuthError(w, oauth2.InvalidRequest("Failed to parse form data"))
				return
			}
			tokenReq = &oauth2.TokenRequest{
				GrantType:    oauth2.GrantType(r.FormValue("grant_type")),
				Code:         r.FormValue("code"),
				RedirectURI:  r.FormValue("redirect_uri"),
				CodeVerifier: r.FormValue("code_verifier"),
				RefreshToken: r.FormValue("refresh_token"),
				State:        r.FormValue("state"),
			}
		}

		tokenResponse, err := s.flow.Token(r.Context(), tokenReq)
		if err != nil {
			s.writeOAuthError(w, err)
			return
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Pragma", "no-cache")
		_ = json.NewEncoder(w).Encode(tokenResponse)
	}
}

// Revoke revokes a token upstream. An unparseable body is the only
// failure; otherwise the answer is 200, so unknown, missing, and
// already-revoked tokens are indistinguishable from the outside.
func (s *Server) Revoke() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var revocation oauth2.RevocationRequest
		if isJSONRequest(r) {
			if err := json.NewDecoder(r.Body).Decode(&revocation); err != nil {
				s.writeOAuthError(w, oauth2.InvalidRequest("Failed to parse JSON body"))
				return
			}
		} else {
			if err := r.ParseForm(); err != nil {
				s.writeOAuthError(w, oauth2.InvalidRequest("Failed to parse form data"))
				return
			}
			revocation = oauth2.RevocationRequest{
				Token:         r.FormValue("token"),
				TokenTypeHint: r.FormValue("token_type_hint"),
			}
		}

		s.flow.Revoke(r.Context(), revocation.Token, revocation.TokenTypeHint)

		w.Header().Set("Content-Type", contentTypeJSON)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("{}\n"))
	}
}

// Preflight terminates CORS preflight requests; the CORS middleware has
// already written the headers.
func (s *Server) Preflight() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
}

// Helper functions

// isJSONRequest reports whether the body should be decoded as JSON.
func isJSONRequest(r *http.Request) bool {
	contentType := strings.ToLower(r.Header.Get("Content-Type"))
	return strings.HasPrefix(contentType, "application/json")
}

// parseAuthorizationParameters extracts the OAuth2 authorization parameters from the request
func parseAuthorizationParameters(r *http.Request) *oauth2.AuthorizationParameters {
	return &oauth2.AuthorizationParameters{
		ClientID:            r.URL.Query().Get("client_id"),
		RedirectURI:         r.URL.Query().Get("redirect_uri"),
		CodeChallenge:       r.URL.Query().Get("code_challenge"),
		CodeChallengeMethod: oauth2.CodeMethodType(r.URL.Query().Get("code_challenge_method")),
		State:               r.URL.Query().Get("state"),
		Scope:               r.URL.Query().Get("scope"),
		UserAgent:           r.UserAgent(),
	}
}

// appendCodeToRedirect adds code and state to the redirect URI's query string.
func appendCodeToRedirect(redirectURI, code, state string) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", errors.Wrap(err, "[appendCodeToRedirect] invalid redirect URI")
	}
	q := u.Query()
	q.Set("code", code)
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// bounceURL builds the same-origin bounce page URL that hands the code to
// a custom-scheme redirect target.
func (s *Server) bounceURL(redirectURI, code, state string) string {
	q := url.Values{}
	q.Set("redirectUri", redirectURI)
	q.Set("code", code)
	if state != "" {
		q.Set("state", state)
	}
	return s.config.GetBaseURL() + RouteCallback + "?" + q.Encode()
}

// writeOAuthError maps a flow error onto the wire. Non-protocol errors
// become server_error, with detail only outside production.
func (s *Server) writeOAuthError(w http.ResponseWriter, err error) {
	var oauthErr *oauth2.Error
	if !errors.As(err, &oauthErr) {
		description := "Internal server error"
		if s.config.GetVerboseErrors() {
			description = err.Error()
		}
		oauthErr = &oauth2.Error{Code: oauth2.ErrorCodeServerError, Description: description}
	}

	status := http.StatusBadRequest
	switch oauthErr.Code {
	case oauth2.ErrorCodeServerError:
		status = http.StatusInternalServerError
	case oauth2.ErrorCodeUnauthorizedClient:
		status = http.StatusUnauthorized
	}

	w.Header().Set("Content-Type", contentTypeJSON)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(oauth2.ErrorResponse{
		Error:            oauthErr.Code,
		ErrorDescription: oauthErr.Description,
	})
}
