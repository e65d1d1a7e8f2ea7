// Package filestore keeps one file per key in a directory.
package filestore

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/aussiebroadwan/authkit/pkg/sessionstore"
	"github.com/aussiebroadwan/authkit/pkg/slogx"
)

const (
	dirPerm  = 0o700
	filePerm = 0o600
	suffix   = ".session"

	// debounceDelay coalesces the create/write/rename burst of one save.
	debounceDelay = 100 * time.Millisecond
)

var plainKey = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Store writes values atomically: a temp file in the same directory is
// renamed over the target, so readers never see a partial write.
type Store struct {
	dir    string
	logger *slog.Logger
}

// New creates dir if needed.
func New(dir string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &Store{dir: dir, logger: slogx.OrDiscard(logger)}, nil
}

// Dir returns the directory holding the session files.
func (s *Store) Dir() string { return s.dir }

// Path returns the file holding key.
func (s *Store) Path(key string) string {
	name := key
	if !plainKey.MatchString(key) {
		name = "b64_" + base64.RawURLEncoding.EncodeToString([]byte(key))
	}
	return filepath.Join(s.dir, name+suffix)
}

func (s *Store) SaveItem(key string, data []byte) error {
	if key == "" {
		return sessionstore.ErrEmptyKey
	}

	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if err := tmp.Chmod(filePerm); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, s.Path(key)); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

func (s *Store) LoadItem(key string) ([]byte, error) {
	data, err := os.ReadFile(s.Path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

func (s *Store) RemoveItem(key string) error {
	err := os.Remove(s.Path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

// Watch calls onChange whenever the file for key is created, rewritten or
// removed, by this process or another one. It blocks until ctx is done.
func (s *Store) Watch(ctx context.Context, key string, onChange func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	// Watch the directory: an atomic rename replaces the inode a file
	// watch would be attached to.
	if err := w.Add(s.dir); err != nil {
		return fmt.Errorf("watch %s: %w", s.dir, err)
	}

	target := filepath.Clean(s.Path(key))
	debounce := time.NewTimer(time.Hour)
	debounce.Stop()
	defer debounce.Stop()

	s.logger.Debug("watching session file", "path", target)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				debounce.Reset(debounceDelay)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("session file watcher error", "error", err)
		case <-debounce.C:
			onChange()
		}
	}
}
