package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/hkdf"
)

// MasterKeyEnv is consulted by LoadKeyMaterial when no key file is given.
const MasterKeyEnv = "AUTHKIT_MASTER_KEY"

var (
	ErrNoKeyMaterial = errors.New("cryptox: no key material configured")
	ErrCiphertext    = errors.New("cryptox: ciphertext too short")
)

// LoadKeyMaterial reads raw key material from path if set, otherwise from the
// AUTHKIT_MASTER_KEY environment variable. Unlike a server there is no
// ephemeral fallback: a key that does not survive restarts would make every
// persisted session unreadable.
func LoadKeyMaterial(path string) ([]byte, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read master key file: %w", err)
		}
		data = []byte(strings.TrimSpace(string(data)))
		if len(data) == 0 {
			return nil, ErrNoKeyMaterial
		}
		return data, nil
	}

	if env := os.Getenv(MasterKeyEnv); env != "" {
		return []byte(env), nil
	}

	return nil, ErrNoKeyMaterial
}

// Sealer performs AES-256-GCM authenticated encryption with a key derived
// from arbitrary key material via HKDF-SHA256. The derived key lives in a
// memguard enclave and is only decrypted into locked memory for the
// duration of a Seal or Open call.
type Sealer struct {
	key *memguard.Enclave
}

// NewSealer derives a 32-byte key from keyMaterial, scoped by info so the
// same master key can protect unrelated data sets.
func NewSealer(keyMaterial []byte, info string) (*Sealer, error) {
	if len(keyMaterial) == 0 {
		return nil, ErrNoKeyMaterial
	}

	derived := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, keyMaterial, nil, []byte(info)), derived); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}

	// NewEnclave wipes derived.
	return &Sealer{key: memguard.NewEnclave(derived)}, nil
}

// Seal encrypts plaintext. The output format is:
// [12-byte nonce][encrypted data][16-byte auth tag]
// aad is authenticated but not encrypted, binding the ciphertext to e.g. a
// storage key.
func (s *Sealer) Seal(plaintext, aad []byte) ([]byte, error) {
	gcm, done, err := s.aead()
	if err != nil {
		return nil, err
	}
	defer done()

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, plaintext, aad), nil
}

// Open decrypts data produced by Seal with the same aad.
func (s *Sealer) Open(sealed, aad []byte) ([]byte, error) {
	gcm, done, err := s.aead()
	if err != nil {
		return nil, err
	}
	defer done()

	nonceSize := gcm.NonceSize()
	if len(sealed) < nonceSize {
		return nil, ErrCiphertext
	}

	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}

	return plaintext, nil
}

// Destroy wipes the key. The Sealer must not be used afterwards.
func (s *Sealer) Destroy() {
	s.key = nil
}

func (s *Sealer) aead() (cipher.AEAD, func(), error) {
	if s == nil || s.key == nil {
		return nil, nil, errors.New("cryptox: sealer destroyed")
	}

	buf, err := s.key.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open key enclave: %w", err)
	}

	block, err := aes.NewCipher(buf.Bytes())
	if err != nil {
		buf.Destroy()
		return nil, nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		buf.Destroy()
		return nil, nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return gcm, buf.Destroy, nil
}
