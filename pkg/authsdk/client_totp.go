package authsdk

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/pquerna/otp"
)

// VerifyTOTP signs in with a code from the user's authenticator app.
func (c *Client) VerifyTOTP(ctx context.Context, loginID, code string) (*AuthenticationResponse, error) {
	var out AuthenticationResponse
	req := codeRequest{LoginID: loginID, Code: code}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/auth/totp/verify", "", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateTOTP registers a new authenticator for the signed-in user and
// returns its provisioning details.
func (c *Client) UpdateTOTP(ctx context.Context, loginID, refreshJWT string) (*TOTPEnrollment, error) {
	if refreshJWT == "" {
		return nil, ErrNoSession
	}

	var out TOTPEnrollment
	req := loginIDRequest{LoginID: loginID}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/auth/totp/update", refreshJWT, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Key parses the otpauth:// provisioning URL.
func (e *TOTPEnrollment) Key() (*otp.Key, error) {
	if e.ProvisioningURL == "" {
		return nil, &DecodeError{Message: "enrollment without provisioning url"}
	}
	k, err := otp.NewKeyFromURL(e.ProvisioningURL)
	if err != nil {
		return nil, &DecodeError{Message: "invalid provisioning url", Err: err}
	}
	if k.Type() != "totp" {
		return nil, &DecodeError{Message: fmt.Sprintf("unexpected otp type %q", k.Type())}
	}
	if e.Secret != "" && k.Secret() != e.Secret {
		return nil, &DecodeError{Message: "provisioning url does not match key", Err: errors.New("secret mismatch")}
	}
	return k, nil
}
