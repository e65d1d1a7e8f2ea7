package flowbridge

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeRequest(t *testing.T) {
	tests := []struct {
		name string
		data string
		want Request
	}{
		{
			name: "webauthnGet",
			data: `{"type":"webauthnGet","payload":{"transactionId":"tx1","options":"opts"}}`,
			want: WebAuthnGet{TransactionID: "tx1", Options: "opts"},
		},
		{
			name: "webauthnCreate",
			data: `{"type":"webauthnCreate","payload":{"transactionId":"tx2","options":"{\"rp\":{}}"}}`,
			want: WebAuthnCreate{TransactionID: "tx2", Options: `{"rp":{}}`},
		},
		{
			name: "oauthWeb",
			data: `{"type":"oauthWeb","payload":{"startUrl":"https://accounts.example.com/o/auth"}}`,
			want: OAuthWeb{StartURL: "https://accounts.example.com/o/auth"},
		},
		{
			name: "sso",
			data: `{"type":"sso","payload":{"startUrl":"https://idp.example.com/saml"}}`,
			want: SSO{StartURL: "https://idp.example.com/saml"},
		},
		{
			name: "oauthNative keeps start untouched",
			data: `{"type":"oauthNative","payload":{"start":{"clientId":"c1","nonce":"n"}}}`,
			want: OAuthNative{Start: json.RawMessage(`{"clientId":"c1","nonce":"n"}`)},
		},
		{
			name: "extra fields are tolerated",
			data: `{"type":"sso","payload":{"startUrl":"https://idp.example.com","hint":"x"},"v":2}`,
			want: SSO{StartURL: "https://idp.example.com"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeRequest([]byte(tt.data))
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeRequestRejects(t *testing.T) {
	cases := map[string]string{
		"unknown type":        `{"type":"unknown","payload":{}}`,
		"missing type":        `{"payload":{"startUrl":"x"}}`,
		"missing payload":     `{"type":"sso"}`,
		"payload not object":  `{"type":"sso","payload":"https://idp.example.com"}`,
		"missing startUrl":    `{"type":"oauthWeb","payload":{}}`,
		"missing transaction": `{"type":"webauthnGet","payload":{"options":"o"}}`,
		"missing options":     `{"type":"webauthnCreate","payload":{"transactionId":"tx"}}`,
		"missing start":       `{"type":"oauthNative","payload":{}}`,
		"wrong field type":    `{"type":"webauthnGet","payload":{"transactionId":1,"options":"o"}}`,
		"not json":            `type=sso`,
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeRequest([]byte(data))
			require.ErrorIs(t, err, ErrDecode)

			var de *DecodeError
			require.ErrorAs(t, err, &de)
		})
	}
}

func TestEncodeRequestIsDecodable(t *testing.T) {
	for _, req := range []Request{
		OAuthNative{Start: json.RawMessage(`{"a":1}`)},
		OAuthWeb{StartURL: "https://a"},
		SSO{StartURL: "https://b"},
		WebAuthnCreate{TransactionID: "t1", Options: "o1"},
		WebAuthnGet{TransactionID: "t2", Options: "o2"},
	} {
		data, err := EncodeRequest(req)
		require.NoError(t, err)
		got, err := DecodeRequest(data)
		require.NoError(t, err)
		require.Equal(t, req, got)
	}
}

func TestEncodeResponseWireShapes(t *testing.T) {
	tests := []struct {
		resp     Response
		wantType string
		wantBody string
	}{
		{NativeOAuthResult{StateID: "s1", IDToken: "id1"}, "oauthNative", `{"nativeOAuth":{"stateId":"s1","idToken":"id1"}}`},
		{WebAuthnCreateResult{TransactionID: "tx", Response: "att"}, "webauthnCreate", `{"transactionId":"tx","response":"att"}`},
		{WebAuthnGetResult{TransactionID: "tx", Response: "asr"}, "webauthnGet", `{"transactionId":"tx","response":"asr"}`},
		{WebResult{Kind: TypeOAuthWeb, URL: "app://cb?code=1"}, "oauthWeb", `{"url":"app://cb?code=1"}`},
		{WebResult{Kind: TypeSSO, URL: "app://cb?code=2"}, "sso", `{"url":"app://cb?code=2"}`},
		{WebResult{Kind: TypeMagicLink, URL: "app://ml?t=3"}, "magicLink", `{"url":"app://ml?t=3"}`},
		{Failure{Reason: "PasskeyCanceled"}, "failure", `{"failure":"PasskeyCanceled"}`},
	}

	for _, tt := range tests {
		t.Run(tt.wantType, func(t *testing.T) {
			typeName, body, err := EncodeResponse(tt.resp)
			require.NoError(t, err)
			require.Equal(t, tt.wantType, typeName)
			require.JSONEq(t, tt.wantBody, body)

			back, err := DecodeResponse(typeName, body)
			require.NoError(t, err)
			require.Equal(t, tt.resp, back)
		})
	}

	t.Run("unknown web kind", func(t *testing.T) {
		_, _, err := EncodeResponse(WebResult{Kind: "carrierPigeon"})
		require.Error(t, err)
	})

	t.Run("unknown response type", func(t *testing.T) {
		_, err := DecodeResponse("telepathy", "{}")
		require.ErrorIs(t, err, ErrDecode)
	})
}

func TestRespondScriptQuotesArguments(t *testing.T) {
	js := respondScript("failure", `{"failure":"a'b\"c</script>"}`)
	require.Contains(t, js, ResponseEntryPoint+`("failure", `)
	require.NotContains(t, js, "</script>")
}
