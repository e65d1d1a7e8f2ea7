package flowbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Handler serves the requests a page posts. A nil Response with a nil
// error sends nothing back, which is how browser-based steps work: the page
// resumes when the app is reopened through a deep link and Bridge.Send
// delivers a WebResult.
type Handler interface {
	HandleRequest(ctx context.Context, req Request) (Response, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req Request) (Response, error)

func (f HandlerFunc) HandleRequest(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// CredentialProvider is the platform passkey manager. Options and results
// are opaque JSON strings.
type CredentialProvider interface {
	CreatePasskey(ctx context.Context, options string) (string, error)
	GetPasskey(ctx context.Context, options string) (string, error)
}

// OAuthProvider performs a sign-in with the platform's native OAuth
// provider.
type OAuthProvider interface {
	SignIn(ctx context.Context, start json.RawMessage) (stateID, idToken string, err error)
}

// BrowserOpener opens a URL outside the embedded page.
type BrowserOpener interface {
	OpenURL(ctx context.Context, url string) error
}

var errUnsupported = errors.New("not supported on this platform")

// NativeHandler routes requests to platform collaborators. Missing
// collaborators make the matching requests fail.
type NativeHandler struct {
	OAuth    OAuthProvider
	Passkeys CredentialProvider
	Browser  BrowserOpener
}

func (h NativeHandler) HandleRequest(ctx context.Context, req Request) (Response, error) {
	switch r := req.(type) {
	case OAuthNative:
		if h.OAuth == nil {
			return nil, &NativeCredentialError{Kind: NativeAuthFailed, Err: errUnsupported}
		}
		stateID, idToken, err := h.OAuth.SignIn(ctx, r.Start)
		if err != nil {
			return nil, err
		}
		return NativeOAuthResult{StateID: stateID, IDToken: idToken}, nil

	case OAuthWeb:
		return nil, h.open(ctx, r.StartURL)

	case SSO:
		return nil, h.open(ctx, r.StartURL)

	case WebAuthnCreate:
		if h.Passkeys == nil {
			return nil, &NativeCredentialError{Kind: PasskeyFailed, Err: errUnsupported}
		}
		resp, err := h.Passkeys.CreatePasskey(ctx, r.Options)
		if err != nil {
			return nil, err
		}
		return WebAuthnCreateResult{TransactionID: r.TransactionID, Response: resp}, nil

	case WebAuthnGet:
		if h.Passkeys == nil {
			return nil, &NativeCredentialError{Kind: PasskeyFailed, Err: errUnsupported}
		}
		resp, err := h.Passkeys.GetPasskey(ctx, r.Options)
		if err != nil {
			return nil, err
		}
		return WebAuthnGetResult{TransactionID: r.TransactionID, Response: resp}, nil

	default:
		return nil, fmt.Errorf("flowbridge: unhandled request %T", req)
	}
}

func (h NativeHandler) open(ctx context.Context, url string) error {
	if h.Browser == nil {
		return errUnsupported
	}
	return h.Browser.OpenURL(ctx, url)
}

// transactionID returns the WebAuthn transaction a request or response
// belongs to, or "".
func transactionID(v any) string {
	switch v := v.(type) {
	case WebAuthnCreate:
		return v.TransactionID
	case WebAuthnGet:
		return v.TransactionID
	case WebAuthnCreateResult:
		return v.TransactionID
	case WebAuthnGetResult:
		return v.TransactionID
	}
	return ""
}
