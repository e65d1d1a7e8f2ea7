package authsdk

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testProject = "P1test"

var testKey = []byte("test-only-hmac-key")

// testJWT signs claims with a throwaway HMAC key; the SDK never checks it.
func testJWT(t testing.TB, sub string, exp time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": sub,
		"iss": "https://api.authkit.dev/" + testProject,
		"iat": time.Now().Unix(),
	}
	if !exp.IsZero() {
		claims["exp"] = exp.Unix()
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testKey)
	require.NoError(t, err)
	return raw
}

func testSession(t testing.TB, sessionExp time.Time) *Session {
	t.Helper()
	s, err := NewSession(
		testJWT(t, "U1", sessionExp),
		testJWT(t, "U1", sessionExp.Add(30*24*time.Hour)),
		User{UserID: "U1", LoginIDs: []string{"u1@example.com"}, Status: UserStatusEnabled},
	)
	require.NoError(t, err)
	return s
}

// fakeRefresher answers Refresh with a session token valid for ttl. When
// gate is set, each call waits for a value on it first.
type fakeRefresher struct {
	t     testing.TB
	ttl   time.Duration
	err   error
	gate  chan struct{}
	calls atomic.Int32
}

func (f *fakeRefresher) Refresh(ctx context.Context, refreshJWT string) (*RefreshResponse, error) {
	f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if refreshJWT == "" {
		return nil, errors.New("empty refresh jwt")
	}
	return &RefreshResponse{SessionJWT: testJWT(f.t, "U1", time.Now().Add(f.ttl))}, nil
}
