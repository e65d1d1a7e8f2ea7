package authsdk

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/aussiebroadwan/authkit/pkg/jwtx"
)

// JWKS fetches the project's public signing keys.
func (c *Client) JWKS(ctx context.Context) (*jwtx.JWKS, error) {
	var out jwtx.JWKS
	path := "/v1/keys/" + url.PathEscape(c.projectID)
	if err := c.doJSON(ctx, http.MethodGet, path, "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// KeySet fetches the JWKS and loads it into a KeySet for VerifySession.
func (c *Client) KeySet(ctx context.Context) (*jwtx.KeySet, error) {
	jwks, err := c.JWKS(ctx)
	if err != nil {
		return nil, err
	}
	ks, err := jwtx.NewKeySetFromJWKS(*jwks)
	if err != nil {
		return nil, &DecodeError{Message: "invalid jwks", Err: err}
	}
	return ks, nil
}

// VerifySession checks the signatures of both tokens in s against ks and
// that they were issued for this client's project.
func (c *Client) VerifySession(s *Session, ks *jwtx.KeySet) error {
	if s == nil {
		return ErrNoSession
	}
	if _, err := jwtx.VerifySignature(s.SessionJWT(), ks, c.projectID); err != nil {
		return fmt.Errorf("session token: %w", err)
	}
	if _, err := jwtx.VerifySignature(s.RefreshJWT(), ks, c.projectID); err != nil {
		return fmt.Errorf("refresh token: %w", err)
	}
	return nil
}
