// Package storetest checks that a sessionstore.Store behaves like one.
package storetest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/authkit/pkg/sessionstore"
)

// Run exercises the Store contract against stores built by newStore.
func Run(t *testing.T, newStore func(t *testing.T) sessionstore.Store) {
	t.Helper()

	t.Run("missing key loads as nil", func(t *testing.T) {
		s := newStore(t)
		data, err := s.LoadItem("absent")
		require.NoError(t, err)
		require.Nil(t, data)
	})

	t.Run("save then load", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.SaveItem("P1", []byte(`{"a":1}`)))

		data, err := s.LoadItem("P1")
		require.NoError(t, err)
		require.Equal(t, []byte(`{"a":1}`), data)
	})

	t.Run("save overwrites", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.SaveItem("P1", []byte("one")))
		require.NoError(t, s.SaveItem("P1", []byte("two")))

		data, err := s.LoadItem("P1")
		require.NoError(t, err)
		require.Equal(t, []byte("two"), data)
	})

	t.Run("keys are independent", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.SaveItem("P1", []byte("one")))
		require.NoError(t, s.SaveItem("P2", []byte("two")))
		require.NoError(t, s.RemoveItem("P1"))

		data, err := s.LoadItem("P2")
		require.NoError(t, err)
		require.Equal(t, []byte("two"), data)
	})

	t.Run("remove is idempotent", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.SaveItem("P1", []byte("one")))
		require.NoError(t, s.RemoveItem("P1"))
		require.NoError(t, s.RemoveItem("P1"))

		data, err := s.LoadItem("P1")
		require.NoError(t, err)
		require.Nil(t, data)
	})

	t.Run("returned data is not aliased", func(t *testing.T) {
		s := newStore(t)
		in := []byte("value")
		require.NoError(t, s.SaveItem("P1", in))
		in[0] = 'X'

		data, err := s.LoadItem("P1")
		require.NoError(t, err)
		require.Equal(t, []byte("value"), data)
	})
}
