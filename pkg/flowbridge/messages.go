package flowbridge

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Wire discriminants shared with the page script.
const (
	TypeOAuthNative    = "oauthNative"
	TypeOAuthWeb       = "oauthWeb"
	TypeSSO            = "sso"
	TypeWebAuthnCreate = "webauthnCreate"
	TypeWebAuthnGet    = "webauthnGet"
	TypeMagicLink      = "magicLink"
	TypeFailure        = "failure"
)

// Request is a structured request posted by the page. The set of
// implementations is closed: OAuthNative, OAuthWeb, SSO, WebAuthnCreate and
// WebAuthnGet.
type Request interface {
	Type() string
	isRequest()
}

// OAuthNative asks for a sign-in with the platform's native OAuth
// provider. Start is passed to the provider untouched.
type OAuthNative struct {
	Start json.RawMessage
}

// OAuthWeb asks for StartURL to be opened in an external browser.
type OAuthWeb struct {
	StartURL string
}

// SSO asks for StartURL to be opened in an external browser.
type SSO struct {
	StartURL string
}

// WebAuthnCreate asks for a new passkey. Options is the JSON-encoded
// creation options, relayed as-is.
type WebAuthnCreate struct {
	TransactionID string
	Options       string
}

// WebAuthnGet asks for an assertion with an existing passkey.
type WebAuthnGet struct {
	TransactionID string
	Options       string
}

func (OAuthNative) Type() string    { return TypeOAuthNative }
func (OAuthWeb) Type() string       { return TypeOAuthWeb }
func (SSO) Type() string            { return TypeSSO }
func (WebAuthnCreate) Type() string { return TypeWebAuthnCreate }
func (WebAuthnGet) Type() string    { return TypeWebAuthnGet }

func (OAuthNative) isRequest()    {}
func (OAuthWeb) isRequest()       {}
func (SSO) isRequest()            {}
func (WebAuthnCreate) isRequest() {}
func (WebAuthnGet) isRequest()    {}

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type oauthNativePayload struct {
	Start json.RawMessage `json:"start"`
}

type startURLPayload struct {
	StartURL string `json:"startUrl"`
}

type webauthnPayload struct {
	TransactionID string `json:"transactionId"`
	Options       string `json:"options"`
}

// DecodeRequest parses a page request envelope. An unknown type, a missing
// payload or a missing required field is an ErrDecode failure.
func DecodeRequest(data []byte) (Request, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, decodeErr("malformed request envelope", err)
	}
	if !isObject(env.Payload) {
		return nil, decodeErr(fmt.Sprintf("request %q has no payload object", env.Type), nil)
	}

	switch env.Type {
	case TypeOAuthNative:
		var p oauthNativePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, decodeErr("malformed oauthNative payload", err)
		}
		if !isObject(p.Start) {
			return nil, decodeErr("oauthNative payload is missing start", nil)
		}
		return OAuthNative{Start: p.Start}, nil

	case TypeOAuthWeb, TypeSSO:
		var p startURLPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, decodeErr("malformed "+env.Type+" payload", err)
		}
		if p.StartURL == "" {
			return nil, decodeErr(env.Type+" payload is missing startUrl", nil)
		}
		if env.Type == TypeSSO {
			return SSO{StartURL: p.StartURL}, nil
		}
		return OAuthWeb{StartURL: p.StartURL}, nil

	case TypeWebAuthnCreate, TypeWebAuthnGet:
		var p webauthnPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, decodeErr("malformed "+env.Type+" payload", err)
		}
		if p.TransactionID == "" || p.Options == "" {
			return nil, decodeErr(env.Type+" payload is missing transactionId or options", nil)
		}
		if env.Type == TypeWebAuthnGet {
			return WebAuthnGet{TransactionID: p.TransactionID, Options: p.Options}, nil
		}
		return WebAuthnCreate{TransactionID: p.TransactionID, Options: p.Options}, nil

	default:
		return nil, decodeErr(fmt.Sprintf("unknown request type %q", env.Type), nil)
	}
}

// EncodeRequest renders r the way the page posts it.
func EncodeRequest(r Request) ([]byte, error) {
	var payload any
	switch r := r.(type) {
	case OAuthNative:
		payload = oauthNativePayload{Start: r.Start}
	case OAuthWeb:
		payload = startURLPayload{StartURL: r.StartURL}
	case SSO:
		payload = startURLPayload{StartURL: r.StartURL}
	case WebAuthnCreate:
		payload = webauthnPayload{TransactionID: r.TransactionID, Options: r.Options}
	case WebAuthnGet:
		payload = webauthnPayload{TransactionID: r.TransactionID, Options: r.Options}
	default:
		return nil, fmt.Errorf("flowbridge: unsupported request %T", r)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Type: r.Type(), Payload: raw})
}

// Response is a native result relayed back into the page. The set of
// implementations is closed: NativeOAuthResult, WebAuthnCreateResult,
// WebAuthnGetResult, WebResult and Failure.
type Response interface {
	Type() string
	isResponse()
}

// NativeOAuthResult carries the outcome of a native OAuth sign-in.
type NativeOAuthResult struct {
	StateID string
	IDToken string
}

// WebAuthnCreateResult carries a new passkey's attestation.
type WebAuthnCreateResult struct {
	TransactionID string
	Response      string
}

// WebAuthnGetResult carries a passkey assertion.
type WebAuthnGetResult struct {
	TransactionID string
	Response      string
}

// WebResult resumes a browser-based step with the URL the app was opened
// with. Kind is TypeOAuthWeb, TypeSSO or TypeMagicLink.
type WebResult struct {
	Kind string
	URL  string
}

// Failure tells the page a native step failed. Reason is one of the
// strings returned by FailureReason.
type Failure struct {
	Reason string
}

func (NativeOAuthResult) Type() string    { return TypeOAuthNative }
func (WebAuthnCreateResult) Type() string { return TypeWebAuthnCreate }
func (WebAuthnGetResult) Type() string    { return TypeWebAuthnGet }
func (r WebResult) Type() string          { return r.Kind }
func (Failure) Type() string              { return TypeFailure }

func (NativeOAuthResult) isResponse()    {}
func (WebAuthnCreateResult) isResponse() {}
func (WebAuthnGetResult) isResponse()    {}
func (WebResult) isResponse()            {}
func (Failure) isResponse()              {}

type nativeOAuthBody struct {
	NativeOAuth struct {
		StateID string `json:"stateId"`
		IDToken string `json:"idToken"`
	} `json:"nativeOAuth"`
}

type webauthnBody struct {
	TransactionID string `json:"transactionId"`
	Response      string `json:"response"`
}

type urlBody struct {
	URL string `json:"url"`
}

type failureBody struct {
	Failure string `json:"failure"`
}

// EncodeResponse returns the type name and JSON payload the page's
// response entry point takes.
func EncodeResponse(r Response) (string, string, error) {
	var body any
	switch r := r.(type) {
	case NativeOAuthResult:
		var b nativeOAuthBody
		b.NativeOAuth.StateID = r.StateID
		b.NativeOAuth.IDToken = r.IDToken
		body = b
	case WebAuthnCreateResult:
		body = webauthnBody{TransactionID: r.TransactionID, Response: r.Response}
	case WebAuthnGetResult:
		body = webauthnBody{TransactionID: r.TransactionID, Response: r.Response}
	case WebResult:
		switch r.Kind {
		case TypeOAuthWeb, TypeSSO, TypeMagicLink:
		default:
			return "", "", fmt.Errorf("flowbridge: unsupported web result kind %q", r.Kind)
		}
		body = urlBody{URL: r.URL}
	case Failure:
		body = failureBody{Failure: r.Reason}
	default:
		return "", "", fmt.Errorf("flowbridge: unsupported response %T", r)
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return "", "", err
	}
	return r.Type(), string(raw), nil
}

// DecodeResponse parses what EncodeResponse produced.
func DecodeResponse(typeName, payload string) (Response, error) {
	data := []byte(payload)
	switch typeName {
	case TypeOAuthNative:
		var b nativeOAuthBody
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, decodeErr("malformed oauthNative response", err)
		}
		return NativeOAuthResult{StateID: b.NativeOAuth.StateID, IDToken: b.NativeOAuth.IDToken}, nil
	case TypeWebAuthnCreate, TypeWebAuthnGet:
		var b webauthnBody
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, decodeErr("malformed "+typeName+" response", err)
		}
		if typeName == TypeWebAuthnGet {
			return WebAuthnGetResult{TransactionID: b.TransactionID, Response: b.Response}, nil
		}
		return WebAuthnCreateResult{TransactionID: b.TransactionID, Response: b.Response}, nil
	case TypeOAuthWeb, TypeSSO, TypeMagicLink:
		var b urlBody
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, decodeErr("malformed "+typeName+" response", err)
		}
		return WebResult{Kind: typeName, URL: b.URL}, nil
	case TypeFailure:
		var b failureBody
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, decodeErr("malformed failure response", err)
		}
		return Failure{Reason: b.Failure}, nil
	default:
		return nil, decodeErr(fmt.Sprintf("unknown response type %q", typeName), nil)
	}
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}
