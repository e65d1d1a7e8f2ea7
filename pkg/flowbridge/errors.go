package flowbridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/aussiebroadwan/authkit/pkg/jwtx"
)

var (
	// ErrFlowCancelled is reported when the page aborts without a reason,
	// which is how a user backing out of the flow surfaces.
	ErrFlowCancelled = errors.New("flowbridge: flow cancelled")

	// ErrDecode matches malformed wire messages and success payloads. It is
	// the same sentinel authsdk.ErrDecode resolves to.
	ErrDecode = jwtx.ErrDecode

	// ErrAlreadyStarted is returned by Start on a bridge that already ran.
	ErrAlreadyStarted = errors.New("flowbridge: flow already started")

	// ErrClosed is returned by operations on a closed bridge.
	ErrClosed = errors.New("flowbridge: bridge closed")
)

// FlowFailedError is a page-driven abort with an explicit reason, or an
// error the page script reported.
type FlowFailedError struct {
	Reason string
}

func (e *FlowFailedError) Error() string {
	return "flowbridge: flow failed: " + e.Reason
}

// NetworkError is a terminal page load failure. Message is the user-facing
// text for the failure class.
type NetworkError struct {
	Message    string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("flowbridge: %s: %v", e.Message, e.Err)
	}
	return "flowbridge: " + e.Message
}

func (e *NetworkError) Unwrap() error { return e.Err }

// DecodeError reports a bridge message that could not be parsed.
type DecodeError struct {
	Msg string
	Err error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("flowbridge: %s: %v", e.Msg, e.Err)
	}
	return "flowbridge: " + e.Msg
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

func decodeErr(msg string, err error) error {
	return &DecodeError{Msg: msg, Err: err}
}

// NativeKind classifies failures of native credential collaborators.
type NativeKind int

const (
	NativeFailed NativeKind = iota
	NativeAuthCancelled
	NativeAuthFailed
	PasskeyFailed
	PasskeyNoPasskeys
	PasskeyCancelled
)

// NativeCredentialError is returned by OAuth and passkey providers. Its
// Kind decides the failure reason relayed to the page.
type NativeCredentialError struct {
	Kind NativeKind
	Err  error
}

func (e *NativeCredentialError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("flowbridge: native credential %s: %v", e.Kind.Reason(), e.Err)
	}
	return "flowbridge: native credential " + e.Kind.Reason()
}

func (e *NativeCredentialError) Unwrap() error { return e.Err }

// Reason returns the wire string the page expects for this kind. The page
// matches on these exactly.
func (k NativeKind) Reason() string {
	switch k {
	case NativeAuthCancelled:
		return "OAuthNativeCancelled"
	case NativeAuthFailed:
		return "OAuthNativeFailed"
	case PasskeyFailed:
		return "PasskeyFailed"
	case PasskeyNoPasskeys:
		return "PasskeyNoPasskeys"
	case PasskeyCancelled:
		return "PasskeyCanceled"
	default:
		return "NativeFailed"
	}
}

// FailureReason maps any native handler error to the page's failure
// vocabulary. Errors that are not a *NativeCredentialError are reported as
// a generic native failure.
func FailureReason(err error) string {
	var nce *NativeCredentialError
	if errors.As(err, &nce) {
		return nce.Kind.Reason()
	}
	return NativeFailed.Reason()
}

// User-facing messages for page load failures.
const (
	MsgHostLookup   = "The server's host name could not be resolved"
	MsgConnect      = "Failed to connect to the server"
	MsgTimeout      = "The connection to the server timed out"
	MsgGeneric      = "Failed to load the authentication page"
	MsgBadRequest   = "The request to load the authentication page was invalid"
	MsgUnauthorized = "The request to load the authentication page was unauthorized"
	MsgForbidden    = "Access to the authentication page is forbidden"
	MsgNotFound     = "The authentication page was not found"
)

// LoadError describes a failed page load as reported by the PageHost.
// StatusCode is set for HTTP errors on the main frame, Err for transport
// failures.
type LoadError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *LoadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("load %s: http status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("load %s: %v", e.URL, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// retryable reports whether a load failure is transient: any transport
// failure, or a server error status.
func (e *LoadError) retryable() bool {
	if e.StatusCode != 0 {
		return e.StatusCode >= http.StatusInternalServerError
	}
	return true
}

// networkError converts a load failure into the terminal error the listener
// receives.
func (e *LoadError) networkError() *NetworkError {
	ne := &NetworkError{Message: loadFailureMessage(e), StatusCode: e.StatusCode, Err: e.Err}
	if ne.Err == nil {
		ne.Err = e
	}
	return ne
}

func loadFailureMessage(e *LoadError) string {
	if e.StatusCode != 0 {
		return statusMessage(e.StatusCode)
	}

	var dnsErr *net.DNSError
	if errors.As(e.Err, &dnsErr) {
		if dnsErr.IsTimeout {
			return MsgTimeout
		}
		return MsgHostLookup
	}
	if errors.Is(e.Err, context.DeadlineExceeded) || errors.Is(e.Err, os.ErrDeadlineExceeded) {
		return MsgTimeout
	}
	var netErr net.Error
	if errors.As(e.Err, &netErr) && netErr.Timeout() {
		return MsgTimeout
	}
	var opErr *net.OpError
	if errors.As(e.Err, &opErr) && opErr.Op == "dial" {
		return MsgConnect
	}
	return MsgGeneric
}

func statusMessage(status int) string {
	switch {
	case status == http.StatusBadRequest:
		return MsgBadRequest
	case status == http.StatusUnauthorized:
		return MsgUnauthorized
	case status == http.StatusForbidden:
		return MsgForbidden
	case status == http.StatusNotFound:
		return MsgNotFound
	case status >= http.StatusInternalServerError:
		return fmt.Sprintf("The server is unreachable (status %d)", status)
	default:
		return fmt.Sprintf("Failed to load the authentication page (status %d)", status)
	}
}
