package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// Random value sizes in bytes before encoding.
const (
	// TokenSize128 is enough for nonces and state parameters.
	TokenSize128 = 16
	// TokenSize256 is what master keys and PKCE verifiers use.
	TokenSize256 = 32
)

// GenerateToken returns size random bytes encoded as base64url without
// padding.
func GenerateToken(size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("token size must be positive, got %d", size)
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Fingerprint returns a deterministic base64url SHA-256 digest of s, for
// indexing secrets such as refresh tokens without keeping them around.
func Fingerprint(s string) string {
	sum := sha256.Sum256([]byte(s))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
