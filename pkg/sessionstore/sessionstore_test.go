package sessionstore_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/authkit/pkg/cryptox"
	"github.com/aussiebroadwan/authkit/pkg/sessionstore"
	"github.com/aussiebroadwan/authkit/pkg/sessionstore/memory"
	"github.com/aussiebroadwan/authkit/pkg/sessionstore/storetest"
)

func newSealer(t *testing.T, key string) *cryptox.Sealer {
	t.Helper()
	s, err := cryptox.NewSealer([]byte(key), "authkit-session-store")
	require.NoError(t, err)
	t.Cleanup(s.Destroy)
	return s
}

func TestEncryptedContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) sessionstore.Store {
		return sessionstore.Encrypted(memory.New(), newSealer(t, "0123456789abcdef0123456789abcdef"), nil)
	})
}

func TestEncryptedStoresCiphertext(t *testing.T) {
	inner := memory.New()
	enc := sessionstore.Encrypted(inner, newSealer(t, "0123456789abcdef0123456789abcdef"), nil)

	require.NoError(t, enc.SaveItem("P1", []byte(`{"sessionJwt":"a.b.c"}`)))

	raw, err := inner.LoadItem("P1")
	require.NoError(t, err)
	require.False(t, bytes.Contains(raw, []byte("sessionJwt")))
}

func TestEncryptedUnreadableIsAbsent(t *testing.T) {
	inner := memory.New()
	enc := sessionstore.Encrypted(inner, newSealer(t, "0123456789abcdef0123456789abcdef"), nil)

	t.Run("garbage", func(t *testing.T) {
		require.NoError(t, inner.SaveItem("P1", []byte("not sealed")))
		data, err := enc.LoadItem("P1")
		require.NoError(t, err)
		require.Nil(t, data)
	})

	t.Run("other key", func(t *testing.T) {
		other := sessionstore.Encrypted(inner, newSealer(t, "ffffffffffffffffffffffffffffffff"), nil)
		require.NoError(t, other.SaveItem("P1", []byte("v")))
		data, err := enc.LoadItem("P1")
		require.NoError(t, err)
		require.Nil(t, data)
	})

	t.Run("moved between keys", func(t *testing.T) {
		require.NoError(t, enc.SaveItem("P1", []byte("v")))
		raw, err := inner.LoadItem("P1")
		require.NoError(t, err)
		require.NoError(t, inner.SaveItem("P2", raw))

		data, err := enc.LoadItem("P2")
		require.NoError(t, err)
		require.Nil(t, data)
	})
}

func TestNoop(t *testing.T) {
	var s sessionstore.Noop
	require.NoError(t, s.SaveItem("P1", []byte("v")))
	data, err := s.LoadItem("P1")
	require.NoError(t, err)
	require.Nil(t, data)
	require.NoError(t, s.RemoveItem("P1"))
}
