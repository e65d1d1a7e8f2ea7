package authsdk

import (
	"context"
	"errors"
	"net/http"
)

// Refresh exchanges a refresh JWT for a new session JWT. The response's
// RefreshJWT is empty when the backend did not rotate it.
func (c *Client) Refresh(ctx context.Context, refreshJWT string) (*RefreshResponse, error) {
	if refreshJWT == "" {
		return nil, errors.New("authsdk: refresh jwt is required")
	}

	var out RefreshResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/auth/refresh", refreshJWT, struct{}{}, &out); err != nil {
		return nil, err
	}
	if out.SessionJWT == "" {
		return nil, &DecodeError{Message: "refresh response without session jwt"}
	}
	return &out, nil
}

// Me fetches the current profile of the user owning refreshJWT.
func (c *Client) Me(ctx context.Context, refreshJWT string) (*User, error) {
	var out User
	if err := c.doJSON(ctx, http.MethodGet, "/v1/auth/me", refreshJWT, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout revokes refreshJWT on the backend.
func (c *Client) Logout(ctx context.Context, refreshJWT string) error {
	return c.doJSON(ctx, http.MethodPost, "/v1/auth/logout", refreshJWT, struct{}{}, nil)
}
