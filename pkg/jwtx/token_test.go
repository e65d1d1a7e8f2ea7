package jwtx_test

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/aussiebroadwan/authkit/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const exampleIssuer = "https://api.example.com/P2abc123"

func hs256(t *testing.T, claims map[string]any) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims(claims)).SignedString([]byte("fixture"))
	require.NoError(t, err)
	return s
}

func rawPayload(payload string) string {
	enc := base64.RawURLEncoding
	return enc.EncodeToString([]byte(`{"alg":"none"}`)) + "." + enc.EncodeToString([]byte(payload)) + ".sig"
}

func TestParse(t *testing.T) {
	t.Parallel()

	exp := time.Now().Add(time.Hour).Unix()
	raw := hs256(t, map[string]any{
		"sub":   "U123",
		"iss":   exampleIssuer,
		"exp":   exp,
		"iat":   exp - 3600,
		"aud":   "P2abc123",
		"email": "user@example.com",
		"nested": map[string]any{
			"list": []any{1, "two"},
		},
	})

	tok, err := jwtx.Parse(raw)
	require.NoError(t, err)

	require.Equal(t, raw, tok.Raw())
	require.Equal(t, "U123", tok.EntityID())
	require.Equal(t, "P2abc123", tok.ProjectID())

	ms, ok := tok.ExpiresAtMillis()
	require.True(t, ok)
	require.Equal(t, exp*1000, ms)
	require.False(t, tok.IsExpired())

	iat, ok := tok.IssuedAt()
	require.True(t, ok)
	require.Equal(t, exp-3600, iat.Unix())

	custom := tok.CustomClaims()
	require.Equal(t, "user@example.com", custom["email"])
	require.Contains(t, custom, "nested")
	for _, reserved := range []string{"sub", "iss", "exp", "iat", "aud"} {
		require.NotContains(t, custom, reserved)
	}
}

func TestParseExpiry(t *testing.T) {
	t.Parallel()

	t.Run("exp in seconds becomes millis", func(t *testing.T) {
		for _, exp := range []int64{1, 1700000000, 4102444800} {
			tok, err := jwtx.Parse(hs256(t, map[string]any{"sub": "u", "iss": exampleIssuer, "exp": exp}))
			require.NoError(t, err)
			ms, ok := tok.ExpiresAtMillis()
			require.True(t, ok)
			require.Equal(t, exp*1000, ms)
		}
	})

	t.Run("missing exp", func(t *testing.T) {
		tok, err := jwtx.Parse(hs256(t, map[string]any{"sub": "u", "iss": exampleIssuer}))
		require.NoError(t, err)
		_, ok := tok.ExpiresAt()
		require.False(t, ok)
		require.False(t, tok.IsExpired())
	})

	t.Run("non numeric exp is tolerated", func(t *testing.T) {
		tok, err := jwtx.Parse(rawPayload(`{"sub":"u","iss":"` + exampleIssuer + `","exp":"soon"}`))
		require.NoError(t, err)
		_, ok := tok.ExpiresAtMillis()
		require.False(t, ok)
		require.False(t, tok.IsExpired())
	})

	t.Run("expired", func(t *testing.T) {
		now := time.Now()
		tok, err := jwtx.Parse(hs256(t, map[string]any{"sub": "u", "iss": exampleIssuer, "exp": now.Add(-time.Minute).Unix()}))
		require.NoError(t, err)
		require.True(t, tok.IsExpired())

		exp, _ := tok.ExpiresAt()
		require.True(t, tok.IsExpiredAt(exp), "expiry equal to now counts as expired")
		require.False(t, tok.IsExpiredAt(exp.Add(-time.Second)))
	})
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"two segments", "a.b"},
		{"four segments", "a.b.c.d"},
		{"bad base64", "a.!!!.c"},
		{"not json", rawPayload("hello")},
		{"json array", rawPayload(`["sub"]`)},
		{"missing sub", rawPayload(`{"iss":"` + exampleIssuer + `"}`)},
		{"non string sub", rawPayload(`{"sub":42,"iss":"` + exampleIssuer + `"}`)},
		{"missing iss", rawPayload(`{"sub":"u"}`)},
		{"non string iss", rawPayload(`{"sub":"u","iss":["x"]}`)},
		{"iss with no segment", rawPayload(`{"sub":"u","iss":"///"}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := jwtx.Parse(tt.raw)
			require.ErrorIs(t, err, jwtx.ErrDecode)

			var de *jwtx.DecodeError
			require.ErrorAs(t, err, &de)
		})
	}
}

func TestProjectIDFromIssuer(t *testing.T) {
	t.Parallel()

	tests := []struct{ iss, want string }{
		{"https://api.example.com/P1", "P1"},
		{"https://api.example.com/P1/", "P1"},
		{"P1", "P1"},
		{"https://api.example.com/v1/projects/P9", "P9"},
	}

	for _, tt := range tests {
		iss, want := tt.iss, tt.want
		tok, err := jwtx.Parse(hs256(t, map[string]any{"sub": "u", "iss": iss}))
		require.NoError(t, err, iss)
		require.Equal(t, want, tok.ProjectID(), iss)
	}
}

func TestPermissionsAndRoles(t *testing.T) {
	t.Parallel()

	tok, err := jwtx.Parse(hs256(t, map[string]any{
		"sub":         "u",
		"iss":         exampleIssuer,
		"permissions": []string{"read", "write"},
		"roles":       []string{"admin"},
		"tenants": map[string]any{
			"t1": map[string]any{
				"permissions": []string{"a", "b"},
				"roles":       []string{"owner"},
			},
			"t2":  map[string]any{"permissions": "not-a-list"},
			"bad": "not-an-object",
			"mix": map[string]any{"roles": []any{"ok", 3}},
		},
	}))
	require.NoError(t, err)

	require.Equal(t, []string{"read", "write"}, tok.Permissions())
	require.Equal(t, []string{"admin"}, tok.Roles())

	require.Equal(t, []string{"a", "b"}, tok.TenantPermissions("t1"))
	require.Equal(t, []string{"owner"}, tok.TenantRoles("t1"))

	require.Equal(t, []string{}, tok.TenantPermissions("t2"))
	require.Equal(t, []string{}, tok.TenantRoles("t2"))
	require.Equal(t, []string{}, tok.TenantPermissions("missing"))
	require.Equal(t, []string{}, tok.TenantRoles("bad"))
	require.Equal(t, []string{}, tok.TenantRoles("mix"))

	require.Equal(t, []string{"bad", "mix", "t1", "t2"}, tok.Tenants())
}

func TestPermissionsMissingOrMalformed(t *testing.T) {
	t.Parallel()

	tok, err := jwtx.Parse(hs256(t, map[string]any{
		"sub":     "u",
		"iss":     exampleIssuer,
		"roles":   "admin",
		"tenants": []string{"t1"},
	}))
	require.NoError(t, err)

	require.NotPanics(t, func() {
		require.Equal(t, []string{}, tok.Permissions())
		require.Equal(t, []string{}, tok.Roles())
		require.Equal(t, []string{}, tok.TenantPermissions("t1"))
		require.Equal(t, []string{}, tok.Tenants())
	})
}
