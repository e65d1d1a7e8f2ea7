package jwtx

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Signer mints tokens with an Ed25519, RSA or P-256 key. The SDK itself
// never signs anything; the dev backend and tests use this to issue tokens
// shaped like the real service's.
type Signer struct {
	kid    string
	method jwt.SigningMethod
	key    crypto.Signer
	jwk    JWK
}

// NewSigner loads a PKCS8 PEM private key. The algorithm follows the key
// type: EdDSA for Ed25519, RS256 for RSA and ES256 for P-256.
func NewSigner(kid string, pemKey []byte) (*Signer, error) {
	block, _ := pem.Decode(pemKey)
	if block == nil {
		return nil, errors.New("jwtx: invalid PEM for signing key")
	}
	if block.Type != "PRIVATE KEY" {
		return nil, fmt.Errorf("jwtx: expected PRIVATE KEY, got %q (keys must be PKCS8)", block.Type)
	}

	priv, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("jwtx: parse PKCS8: %w", err)
	}

	s := &Signer{kid: kid}
	switch k := priv.(type) {
	case ed25519.PrivateKey:
		s.method, s.key = jwt.SigningMethodEdDSA, k
		s.jwk = NewEd25519JWK(kid, k.Public().(ed25519.PublicKey))
	case *rsa.PrivateKey:
		s.method, s.key = jwt.SigningMethodRS256, k
		s.jwk = NewRSAJWK(kid, &k.PublicKey)
	case *ecdsa.PrivateKey:
		if k.Curve != elliptic.P256() {
			return nil, fmt.Errorf("jwtx: unsupported EC curve %s", k.Curve.Params().Name)
		}
		s.method, s.key = jwt.SigningMethodES256, k
		s.jwk = NewECJWK(kid, &k.PublicKey)
	default:
		return nil, fmt.Errorf("jwtx: unsupported private key type %T", priv)
	}
	return s, nil
}

func (s *Signer) KID() string { return s.kid }

// Alg returns the JWS algorithm name the signer uses.
func (s *Signer) Alg() string { return s.method.Alg() }

// Sign serialises claims into a signed JWT carrying the signer's kid.
func (s *Signer) Sign(claims map[string]any) (string, error) {
	t := jwt.NewWithClaims(s.method, jwt.MapClaims(claims))
	t.Header["kid"] = s.kid
	return t.SignedString(s.key)
}

// PublicJWK returns the key to publish in the project's JWKS.
func (s *Signer) PublicJWK() JWK {
	return s.jwk
}

// StandardClaims builds the registered claims for a token about subject in
// project projectID, issued by issuerBase.
func StandardClaims(issuerBase, projectID, subject string, ttl time.Duration, now time.Time) map[string]any {
	return map[string]any{
		ClaimIssuer:    issuerBase + "/" + projectID,
		ClaimSubject:   subject,
		ClaimAudience:  []string{projectID},
		ClaimIssuedAt:  now.Unix(),
		ClaimExpiresAt: now.Add(ttl).Unix(),
	}
}
