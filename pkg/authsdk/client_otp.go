package authsdk

import (
	"context"
	"fmt"
	"net/http"
)

// SignInOTP asks the backend to send a one-time code to loginID.
func (c *Client) SignInOTP(ctx context.Context, method DeliveryMethod, loginID string) (*OTPSignInResponse, error) {
	if err := validateMethod(method); err != nil {
		return nil, err
	}

	var out OTPSignInResponse
	path := "/v1/auth/otp/signin/" + string(method)
	if err := c.doJSON(ctx, http.MethodPost, path, "", loginIDRequest{LoginID: loginID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyOTP completes an OTP sign-in. A wrong code is reported as a
// *ServerError matching ErrInvalidOTP.
func (c *Client) VerifyOTP(ctx context.Context, method DeliveryMethod, loginID, code string) (*AuthenticationResponse, error) {
	if err := validateMethod(method); err != nil {
		return nil, err
	}

	var out AuthenticationResponse
	path := "/v1/auth/otp/verify/" + string(method)
	if err := c.doJSON(ctx, http.MethodPost, path, "", codeRequest{LoginID: loginID, Code: code}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func validateMethod(m DeliveryMethod) error {
	switch m {
	case DeliveryEmail, DeliverySMS, DeliveryWhatsApp:
		return nil
	}
	return fmt.Errorf("authsdk: unsupported delivery method %q", m)
}
