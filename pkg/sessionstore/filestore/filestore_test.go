package filestore_test

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/authkit/pkg/sessionstore"
	"github.com/aussiebroadwan/authkit/pkg/sessionstore/filestore"
	"github.com/aussiebroadwan/authkit/pkg/sessionstore/storetest"
)

func newStore(t *testing.T) *filestore.Store {
	t.Helper()
	s, err := filestore.New(t.TempDir(), nil)
	require.NoError(t, err)
	return s
}

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) sessionstore.Store { return newStore(t) })
}

func TestFilePermissions(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.SaveItem("P1", []byte("secret")))

	info, err := os.Stat(s.Path("P1"))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestPathEncodesUnsafeKeys(t *testing.T) {
	s := newStore(t)
	require.NotContains(t, s.Path("../escape"), "..")

	require.NoError(t, s.SaveItem("../escape", []byte("v")))
	data, err := s.LoadItem("../escape")
	require.NoError(t, err)
	require.Equal(t, []byte("v"), data)
}

func TestWatch(t *testing.T) {
	s := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var changes atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- s.Watch(ctx, "P1", func() { changes.Add(1) })
	}()

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)

	other, err := filestore.New(s.Dir(), nil)
	require.NoError(t, err)
	require.NoError(t, other.SaveItem("P1", []byte("from another process")))

	require.Eventually(t, func() bool { return changes.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)

	// Writes to other keys are ignored.
	before := changes.Load()
	require.NoError(t, other.SaveItem("P2", []byte("x")))
	time.Sleep(300 * time.Millisecond)
	require.Equal(t, before, changes.Load())

	cancel()
	require.NoError(t, <-done)
}
