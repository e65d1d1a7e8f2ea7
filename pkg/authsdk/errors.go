package authsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/aussiebroadwan/authkit/pkg/httpx"
	"github.com/aussiebroadwan/authkit/pkg/jwtx"
)

// Error codes returned by the identity backend that callers commonly match
// on. Compare with errors.Is against the predefined *ServerError values.
const (
	ErrCodeBadRequest           = "E011001"
	ErrCodeServerFailure        = "E011002"
	ErrCodeUnauthorized         = httpx.CodeUnauthorized
	ErrCodeNotFound             = "E011004"
	ErrCodeInvalidOTP           = "E061102"
	ErrCodeInvalidCredentials   = "E062108"
	ErrCodeEnchantedLinkPending = "E062503"
	ErrCodeTooManyRequests      = httpx.CodeTooManyRequests
)

var (
	// ErrDecode matches every malformed JWT, server payload or stored value.
	// It is the same sentinel jwtx uses, so token parse failures match too.
	ErrDecode = jwtx.ErrDecode

	// ErrNetwork matches every *NetworkError.
	ErrNetwork = errors.New("authsdk: network error")

	// ErrNoSession is returned by operations that need a tracked session.
	ErrNoSession = errors.New("authsdk: no session")

	// ErrMissingProjectID is returned by NewClient for an empty project id.
	ErrMissingProjectID = errors.New("authsdk: project id is required")
)

// Predefined server errors for errors.Is matching. Only Code is compared.
var (
	ErrBadRequest           = &ServerError{Code: ErrCodeBadRequest}
	ErrUnauthorized         = &ServerError{Code: ErrCodeUnauthorized}
	ErrNotFound             = &ServerError{Code: ErrCodeNotFound}
	ErrInvalidOTP           = &ServerError{Code: ErrCodeInvalidOTP}
	ErrInvalidCredentials   = &ServerError{Code: ErrCodeInvalidCredentials}
	ErrEnchantedLinkPending = &ServerError{Code: ErrCodeEnchantedLinkPending}
	ErrTooManyRequests      = &ServerError{Code: ErrCodeTooManyRequests}
)

// ServerError is a structured failure reported by the backend, such as a
// wrong OTP code or too many attempts.
type ServerError struct {
	StatusCode  int
	Code        string
	Description string
	Message     string
}

func (e *ServerError) Error() string {
	msg := fmt.Sprintf("authsdk: server error %s", e.Code)
	if e.Description != "" {
		msg += ": " + e.Description
	}
	if e.Message != "" {
		msg += " (" + e.Message + ")"
	}
	return msg
}

// Is reports whether target is a *ServerError with the same code.
func (e *ServerError) Is(target error) bool {
	t, ok := target.(*ServerError)
	return ok && t.Code == e.Code
}

// NetworkError wraps a transport failure reaching the backend.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return "authsdk: " + e.Op + ": " + e.Err.Error()
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

// DecodeError reports a response body or stored value that could not be
// decoded.
type DecodeError struct {
	Message string
	Err     error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return "authsdk: " + e.Message + ": " + e.Err.Error()
	}
	return "authsdk: " + e.Message
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// parseErrorResponse maps a non-2xx response into a *ServerError. Bodies
// that are not in the backend's error shape get a code derived from the
// HTTP status.
func parseErrorResponse(status int, body []byte) error {
	var eb httpx.ErrorBody
	if err := json.Unmarshal(body, &eb); err == nil && eb.Code != "" {
		return &ServerError{
			StatusCode:  status,
			Code:        eb.Code,
			Description: eb.Description,
			Message:     eb.Message,
		}
	}

	return &ServerError{
		StatusCode:  status,
		Code:        codeForStatus(status),
		Description: fmt.Sprintf("HTTP %d: %s", status, http.StatusText(status)),
	}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return ErrCodeBadRequest
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrCodeUnauthorized
	case http.StatusNotFound:
		return ErrCodeNotFound
	case http.StatusTooManyRequests:
		return ErrCodeTooManyRequests
	default:
		return ErrCodeServerFailure
	}
}
