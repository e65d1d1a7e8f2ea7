package jwtx

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// VerifySignature checks raw against the keys in ks and confirms it was
// issued for projectID. Expiry is validated as well; callers that only need
// signature checks on stale tokens should inspect the error with
// errors.Is(err, jwt.ErrTokenExpired).
func VerifySignature(raw string, ks *KeySet, projectID string) (*Token, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{
		jwt.SigningMethodEdDSA.Alg(),
		jwt.SigningMethodRS256.Alg(),
		jwt.SigningMethodES256.Alg(),
	}))

	_, err := parser.Parse(raw, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("jwtx: missing kid")
		}
		pub, err := ks.Get(kid)
		if err != nil {
			return nil, fmt.Errorf("%w %q", ErrUnknownKID, kid)
		}
		return pub, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidSig, err)
		}
		return nil, fmt.Errorf("jwtx: parse or verify: %w", err)
	}

	tok, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	if projectID != "" && tok.ProjectID() != projectID {
		return nil, ErrWrongIssuer
	}
	return tok, nil
}
