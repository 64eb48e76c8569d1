// Package identity is the client for the upstream identity provider: the
// service that holds the browser login session and mints the actual bearer
// and refresh tokens. This server never creates credentials itself, it
// only probes sessions, refreshes pairs, and forwards revocations.
package identity

import (
	"context"
	"net/http"
	"time"
)

// Session is an authenticated browser session as reported by the provider.
// The tokens are the already-issued credentials for that session; the
// authorize flow packages them into the self-contained code.
type Session struct {
	UserID       string
	AccessToken  string
	RefreshToken string
	Scope        string
	ExpiresAt    time.Time
}

// TokenPair is the bearer credential pair the provider issues.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	Scope        string
}

// Provider is the contract the authorization flow depends on.
type Provider interface {
	// SessionFromRequest probes whether the caller has an authenticated,
	// cookie-bound session. A missing session is (nil, nil), not an error;
	// errors mean the probe itself failed.
	SessionFromRequest(ctx context.Context, r *http.Request) (*Session, error)

	// Refresh exchanges a refresh token for a new token pair.
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)

	// Revoke invalidates a token upstream. tokenTypeHint is
	// "access_token", "refresh_token", or empty.
	Revoke(ctx context.Context, token, tokenTypeHint string) error
}
