package cmd

import (
	"bytes"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/authkit/internal/app"
	"github.com/aussiebroadwan/authkit/internal/devserver"
	"github.com/aussiebroadwan/authkit/pkg/cryptox"
	"github.com/aussiebroadwan/authkit/pkg/jwtx"
)

const cliProject = "P1cli"

// run executes the root command with args and returns what it printed.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
		resetContexts(rootCmd)
	})

	err := rootCmd.ExecuteContext(t.Context())
	return out.String(), err
}

// resetContexts clears the context cobra caches on each command after its
// first execution, so later tests do not inherit a canceled t.Context().
func resetContexts(c *cobra.Command) {
	c.SetContext(nil) //nolint:staticcheck // nil lets cobra re-inherit the root context
	for _, sub := range c.Commands() {
		resetContexts(sub)
	}
}

func setEnv(t *testing.T, store string) {
	t.Helper()
	configPath = ""
	t.Setenv("AUTHKIT_PROJECT_ID", cliProject)
	t.Setenv("AUTHKIT_STORE", store)
	t.Setenv("AUTHKIT_STORE_PATH", t.TempDir())
	t.Setenv("AUTHKIT_BASE_URL", "")
	t.Setenv("AUTHKIT_STALENESS", "")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv(cryptox.MasterKeyEnv, "cli test key")
}

func TestPrintToken(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":         "U1",
		"iss":         "https://api.authkit.dev/" + cliProject,
		"iat":         now.Add(-time.Minute).Unix(),
		"exp":         now.Add(time.Hour).Unix(),
		"roles":       []any{"admin"},
		"permissions": []any{"read", "write"},
		"tenants": map[string]any{
			"t1": map[string]any{"roles": []any{"owner"}, "permissions": []any{"billing"}},
		},
		"plan": "pro",
	}).SignedString([]byte("test-only"))
	require.NoError(t, err)
	tok, err := jwtx.Parse(raw)
	require.NoError(t, err)

	t.Run("global claims", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, printToken(&out, tok, "", false, now))
		s := out.String()
		require.Contains(t, s, "U1")
		require.Contains(t, s, cliProject)
		require.Contains(t, s, "valid for 1h0m0s")
		require.Contains(t, s, "admin")
		require.Contains(t, s, "read, write")
		require.Contains(t, s, "t1")
		require.Contains(t, s, `"plan": "pro"`)
		require.NotContains(t, s, "signature")
	})

	t.Run("tenant claims", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, printToken(&out, tok, "t1", true, now))
		s := out.String()
		require.Contains(t, s, "owner")
		require.Contains(t, s, "billing")
		require.NotContains(t, s, "admin")
		require.Contains(t, s, "signature")
	})

	t.Run("expired", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, printToken(&out, tok, "", false, now.Add(2*time.Hour)))
		require.Contains(t, out.String(), "expired 1h0m0s ago")
	})
}

func TestTokenDecodeRejectsGarbage(t *testing.T) {
	tokenVerify = false
	_, err := run(t, "token", "decode", "not-a-jwt")
	require.ErrorIs(t, err, jwtx.ErrDecode)
}

func TestKeygen(t *testing.T) {
	t.Cleanup(func() { keygenOut, keygenSigningAlg = "", "" })

	out, err := run(t, "keygen")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, cryptox.MasterKeyEnv+"="))

	path := filepath.Join(t.TempDir(), "master.key")
	_, err = run(t, "keygen", "--out", path, "--signing-key", cryptox.AlgEdDSA)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	key, err := cryptox.LoadKeyMaterial(path)
	require.NoError(t, err)
	require.Len(t, string(key), 43, "32 bytes in unpadded base64url")

	pemKey, err := os.ReadFile(path + ".pem")
	require.NoError(t, err)
	_, err = jwtx.NewSigner("k1", pemKey)
	require.NoError(t, err)
}

func TestSessionShowWithoutSession(t *testing.T) {
	setEnv(t, app.StoreMemory)

	out, err := run(t, "session", "show")
	require.NoError(t, err)
	require.Contains(t, out, "no session")
}

func TestSessionCommandsAgainstDevserver(t *testing.T) {
	srv, err := devserver.New(devserver.Config{ProjectID: cliProject})
	require.NoError(t, err)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	_, err = srv.AddUser("carol", devserver.UserOptions{Name: "Carol", Password: "s3cret!!"})
	require.NoError(t, err)

	setEnv(t, app.StoreSQLite)
	t.Setenv("AUTHKIT_BASE_URL", ts.URL)

	// Sign in and persist the session the way an application would.
	cfg, err := app.LoadConfig("")
	require.NoError(t, err)
	a, err := app.New(cfg, &bytes.Buffer{})
	require.NoError(t, err)
	resp, err := a.Client().SignInPassword(t.Context(), "carol", "s3cret!!")
	require.NoError(t, err)
	s, err := resp.Session()
	require.NoError(t, err)
	require.NoError(t, a.Manager().ManageSession(s))
	a.Close()

	out, err := run(t, "session", "show")
	require.NoError(t, err)
	require.Contains(t, out, s.User().UserID)
	require.Contains(t, out, "Carol")

	tokenVerify = true
	t.Cleanup(func() { tokenVerify = false })
	out, err = run(t, "token", "decode", s.SessionJWT(), "--verify")
	require.NoError(t, err)
	require.Contains(t, out, "signature")

	// Staleness beyond the session TTL forces a refresh.
	t.Setenv("AUTHKIT_STALENESS", "24h")
	sessionRefreshUser = false
	out, err = run(t, "session", "refresh")
	require.NoError(t, err)
	require.Contains(t, out, "session refreshed")
	require.EqualValues(t, 1, srv.RefreshCount())

	t.Cleanup(func() { sessionLogout = false })
	out, err = run(t, "session", "clear", "--logout")
	require.NoError(t, err)
	require.Contains(t, out, "session cleared")

	out, err = run(t, "session", "show")
	require.NoError(t, err)
	require.Contains(t, out, "no session")
}

func TestIssuerBase(t *testing.T) {
	require.Equal(t, "http://localhost:8080", issuerBase(":8080"))
	require.Equal(t, "http://127.0.0.1:9000", issuerBase("127.0.0.1:9000"))
}
