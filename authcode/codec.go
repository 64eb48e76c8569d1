// Package authcode encodes and decodes the self-contained authorization
// code issued by the authorize endpoint. The code is not a reference into
// storage: it carries the session's bearer tokens and the PKCE metadata
// needed to validate the exchange, so it must be handled with the same
// care as the tokens themselves (TLS only, never logged).
package authcode

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const prefixLength = 16

// Lifetime is the fixed validity window of an issued code.
const Lifetime = 10 * time.Minute

var (
	// ErrMalformed indicates the code is not "<prefix>.<base64url(JSON)>"
	// with a structurally complete payload.
	ErrMalformed = errors.New("malformed authorization code")
	// ErrMissingTokens indicates a structurally valid payload that does not
	// carry both bearer tokens.
	ErrMissingTokens = errors.New("authorization code payload is missing tokens")
)

// Payload is the JSON document embedded in an authorization code.
// ExpiresAt is an absolute deadline in epoch milliseconds.
type Payload struct {
	UserID              string `json:"userId"`
	CodeChallenge       string `json:"codeChallenge"`
	CodeChallengeMethod string `json:"codeChallengeMethod"`
	Scope               string `json:"scope,omitempty"`
	RedirectURI         string `json:"redirectUri"`
	AccessToken         string `json:"accessToken"`
	RefreshToken        string `json:"refreshToken"`
	ExpiresAt           int64  `json:"expiresAt"`
	State               string `json:"state,omitempty"`
}

// Expired reports whether the payload deadline has passed at the given time.
func (p *Payload) Expired(now time.Time) bool {
	return p.ExpiresAt <= now.UnixMilli()
}

// HasTokens reports whether both bearer tokens are present.
func (p *Payload) HasTokens() bool {
	return p.AccessToken != "" && p.RefreshToken != ""
}

// Encode serializes the payload into "<random-prefix>.<base64url(JSON)>".
// The prefix carries no meaning; it exists so two codes minted for the same
// payload are distinct strings.
func Encode(payload *Payload) (string, error) {
	prefixBytes := make([]byte, prefixLength)
	if _, err := rand.Read(prefixBytes); err != nil {
		return "", errors.Wrap(err, "[authcode.Encode] rand.Read")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Wrap(err, "[authcode.Encode] json.Marshal")
	}

	prefix := base64.RawURLEncoding.EncodeToString(prefixBytes)
	return prefix + "." + base64.RawURLEncoding.EncodeToString(body), nil
}

// Decode parses a code back into its payload. It enforces the structural
// invariant only: exactly two dot-separated parts, valid base64url, valid
// JSON, and the non-token required fields present. Token presence is the
// caller's check (ErrMissingTokens via Payload.HasTokens) so that the error
// description can distinguish the two failure classes.
func Decode(code string) (*Payload, error) {
	parts := strings.Split(code, ".")
	if len(parts) != 2 {
		return nil, errors.Wrap(ErrMalformed, "expected two dot-separated segments")
	}

	body, err := decodeBase64URL(parts[1])
	if err != nil {
		return nil, errors.Wrap(ErrMalformed, "payload is not valid base64url")
	}

	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errors.Wrap(ErrMalformed, "payload is not valid JSON")
	}

	if payload.UserID == "" || payload.CodeChallenge == "" || payload.RedirectURI == "" || payload.ExpiresAt == 0 {
		return nil, errors.Wrap(ErrMalformed, "payload is missing required fields")
	}

	return &payload, nil
}

// decodeBase64URL accepts both raw and padded base64url, since codes may
// have transited URL rewriting that re-padded them.
func decodeBase64URL(s string) ([]byte, error) {
	if b, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.URLEncoding.DecodeString(s)
}
