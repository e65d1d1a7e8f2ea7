package authsdk

import (
	"context"
	"net/http"
)

// SignInPassword authenticates with a login id and password.
func (c *Client) SignInPassword(ctx context.Context, loginID, password string) (*AuthenticationResponse, error) {
	var out AuthenticationResponse
	req := passwordRequest{LoginID: loginID, Password: password}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/auth/password/signin", "", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
