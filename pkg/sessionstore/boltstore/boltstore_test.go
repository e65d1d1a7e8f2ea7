package boltstore_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/authkit/pkg/sessionstore"
	"github.com/aussiebroadwan/authkit/pkg/sessionstore/boltstore"
	"github.com/aussiebroadwan/authkit/pkg/sessionstore/storetest"
)

func open(t *testing.T, path string) *boltstore.Store {
	t.Helper()
	s, err := boltstore.Open(path)
	require.NoError(t, err)
	return s
}

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) sessionstore.Store {
		s := open(t, filepath.Join(t.TempDir(), "sessions.db"))
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")

	s := open(t, path)
	require.NoError(t, s.SaveItem("P1", []byte("persisted")))
	require.NoError(t, s.Close())

	s = open(t, path)
	defer s.Close()
	data, err := s.LoadItem("P1")
	require.NoError(t, err)
	require.Equal(t, []byte("persisted"), data)
}

func TestEmptyKey(t *testing.T) {
	s := open(t, filepath.Join(t.TempDir(), "sessions.db"))
	defer s.Close()
	require.ErrorIs(t, s.SaveItem("", []byte("x")), sessionstore.ErrEmptyKey)
}
