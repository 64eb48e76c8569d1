package authcode_test

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sprintdeck/sprintdeck-auth/authcode"
	"github.com/stretchr/testify/require"
)

func testPayload() *authcode.Payload {
	return &authcode.Payload{
		UserID:              "user-1",
		CodeChallenge:       "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM",
		CodeChallengeMethod: "S256",
		Scope:               "projects:read tasks:write",
		RedirectURI:         "cursor://callback",
		AccessToken:         "access-token-value",
		RefreshToken:        "refresh-token-value",
		ExpiresAt:           time.Now().Add(authcode.Lifetime).UnixMilli(),
		State:               "client-state",
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	code, err := authcode.Encode(testPayload())
	require.NoError(t, err)
	require.Equal(t, 2, strings.Count(code, ".")+1, "code must be two dot-separated segments")

	decoded, err := authcode.Decode(code)
	require.NoError(t, err)
	require.Equal(t, testPayload().UserID, decoded.UserID)
	require.Equal(t, testPayload().CodeChallenge, decoded.CodeChallenge)
	require.Equal(t, testPayload().AccessToken, decoded.AccessToken)
	require.Equal(t, testPayload().RefreshToken, decoded.RefreshToken)
	require.Equal(t, testPayload().RedirectURI, decoded.RedirectURI)
	require.Equal(t, testPayload().State, decoded.State)
	require.True(t, decoded.HasTokens())
}

func TestEncodeProducesDistinctCodes(t *testing.T) {
	p := testPayload()
	code1, err := authcode.Encode(p)
	require.NoError(t, err)
	code2, err := authcode.Encode(p)
	require.NoError(t, err)
	require.NotEqual(t, code1, code2)
}

func TestDecodeRejectsMalformedCodes(t *testing.T) {
	valid, err := authcode.Encode(testPayload())
	require.NoError(t, err)
	payloadPart := strings.Split(valid, ".")[1]

	tests := []struct {
		name string
		code string
	}{
		{"empty", ""},
		{"no separator", payloadPart},
		{"too many parts", "a.b.c"},
		{"bad base64", "prefix.%%%%"},
		{"non-JSON payload", "prefix." + base64.RawURLEncoding.EncodeToString([]byte("not json"))},
		{"missing required fields", "prefix." + base64.RawURLEncoding.EncodeToString([]byte(`{"scope":"x"}`))},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := authcode.Decode(tc.code)
			require.Error(t, err)
			require.True(t, errors.Is(err, authcode.ErrMalformed))
		})
	}
}

func TestDecodeAcceptsPaddedBase64(t *testing.T) {
	code, err := authcode.Encode(testPayload())
	require.NoError(t, err)

	parts := strings.Split(code, ".")
	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)

	padded := parts[0] + "." + base64.URLEncoding.EncodeToString(raw)
	decoded, err := authcode.Decode(padded)
	require.NoError(t, err)
	require.Equal(t, testPayload().UserID, decoded.UserID)
}

func TestPayloadExpired(t *testing.T) {
	p := testPayload()
	now := time.Now()

	p.ExpiresAt = now.Add(time.Minute).UnixMilli()
	require.False(t, p.Expired(now))

	p.ExpiresAt = now.Add(-time.Minute).UnixMilli()
	require.True(t, p.Expired(now))
}

func TestHasTokens(t *testing.T) {
	p := testPayload()
	require.True(t, p.HasTokens())

	p.AccessToken = ""
	require.False(t, p.HasTokens())

	p = testPayload()
	p.RefreshToken = ""
	require.False(t, p.HasTokens())
}
