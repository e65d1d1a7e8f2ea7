// Package sessionstore holds the backing stores a SessionManager can persist
// sessions into, plus wrappers that apply to any of them.
package sessionstore

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/authkit/pkg/slogx"
)

// Store is the key-value capability every backing store implements.
// LoadItem returns (nil, nil) for a missing key.
type Store interface {
	SaveItem(key string, data []byte) error
	LoadItem(key string) ([]byte, error)
	RemoveItem(key string) error
}

// ErrEmptyKey is returned by stores for an empty key.
var ErrEmptyKey = errors.New("sessionstore: empty key")

// Noop discards every write and never finds anything. Sessions kept with it
// do not survive a restart.
type Noop struct{}

func (Noop) SaveItem(string, []byte) error { return nil }
func (Noop) LoadItem(string) ([]byte, error) { return nil, nil }
func (Noop) RemoveItem(string) error { return nil }

// Sealer encrypts and authenticates values. *cryptox.Sealer implements it.
type Sealer interface {
	Seal(plaintext, aad []byte) ([]byte, error)
	Open(sealed, aad []byte) ([]byte, error)
}

// EncryptedStore seals values before they reach the inner store. The key
// is bound as additional data, so a value copied under another key fails to
// open.
type EncryptedStore struct {
	inner  Store
	sealer Sealer
	logger *slog.Logger
}

// Encrypted wraps inner with sealer.
func Encrypted(inner Store, sealer Sealer, logger *slog.Logger) *EncryptedStore {
	return &EncryptedStore{inner: inner, sealer: sealer, logger: slogx.OrDiscard(logger)}
}

func (e *EncryptedStore) SaveItem(key string, data []byte) error {
	sealed, err := e.sealer.Seal(data, []byte(key))
	if err != nil {
		return fmt.Errorf("seal %s: %w", key, err)
	}
	return e.inner.SaveItem(key, sealed)
}

// LoadItem returns (nil, nil) when the stored value does not decrypt;
// unreadable data counts as no data.
func (e *EncryptedStore) LoadItem(key string) ([]byte, error) {
	sealed, err := e.inner.LoadItem(key)
	if err != nil || sealed == nil {
		return nil, err
	}
	data, err := e.sealer.Open(sealed, []byte(key))
	if err != nil {
		e.logger.Warn("stored value failed to decrypt", "key", key, "error", err)
		return nil, nil
	}
	return data, nil
}

func (e *EncryptedStore) RemoveItem(key string) error {
	return e.inner.RemoveItem(key)
}
