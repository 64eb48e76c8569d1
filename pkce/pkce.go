// Package pkce implements the Proof Key for Code Exchange checks used by
// the authorization and token endpoints, as specified in RFC 7636.
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"regexp"
)

// MethodType represents the PKCE code challenge method.
type MethodType string

const (
	// MethodS256 hashes the verifier with SHA-256 before comparison.
	MethodS256 MethodType = "S256"
	// MethodPlain compares the verifier to the challenge directly.
	MethodPlain MethodType = "plain"
)

var (
	// verifierPattern is the RFC 7636 unreserved character set.
	verifierPattern = regexp.MustCompile(`^[A-Za-z0-9._~-]+$`)
	// challengePattern is base64url without padding.
	challengePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// ValidVerifierFormat reports whether the code_verifier uses only the
// RFC 7636 unreserved character set.
func ValidVerifierFormat(verifier string) bool {
	return verifierPattern.MatchString(verifier)
}

// ValidChallengeFormat reports whether the code_challenge is well formed
// base64url text.
func ValidChallengeFormat(challenge string) bool {
	return challengePattern.MatchString(challenge)
}

// Challenge derives the S256 code challenge for a verifier.
func Challenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// Verify compares a code_verifier against the stored code_challenge using
// the given method. An unrecognized method never verifies.
func Verify(challenge, verifier string, method MethodType) bool {
	switch method {
	case MethodS256:
		return Challenge(verifier) == challenge
	case MethodPlain:
		return verifier == challenge
	}
	return false
}

// GenerateVerifier creates a cryptographically random code verifier.
// 32 random bytes encode to 43 base64url characters, the RFC 7636 minimum.
func GenerateVerifier() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}
