package authsdk

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aussiebroadwan/authkit/pkg/metrics"
	"github.com/aussiebroadwan/authkit/pkg/slogx"
)

// Store is the backing key-value capability behind SessionStorage.
// LoadItem returns (nil, nil) when the key is absent.
type Store interface {
	SaveItem(key string, data []byte) error
	LoadItem(key string) ([]byte, error)
	RemoveItem(key string) error
}

// encodedSession is the persisted form of a Session.
type encodedSession struct {
	SessionJWT string `json:"sessionJwt"`
	RefreshJWT string `json:"refreshJwt"`
	User       User   `json:"user"`
}

// EncodeSession serializes s to its persisted JSON form.
func EncodeSession(s *Session) ([]byte, error) {
	return json.Marshal(encodedSession{
		SessionJWT: s.SessionJWT(),
		RefreshJWT: s.RefreshJWT(),
		User:       s.user,
	})
}

// DecodeSession is the inverse of EncodeSession.
func DecodeSession(data []byte) (*Session, error) {
	var enc encodedSession
	if err := json.Unmarshal(data, &enc); err != nil {
		return nil, &DecodeError{Message: "invalid stored session", Err: err}
	}
	return NewSession(enc.SessionJWT, enc.RefreshJWT, enc.User)
}

// SessionStorage persists one session per project through a Store.
// Consecutive saves of an identical session reach the store only once.
type SessionStorage struct {
	key     string
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu   sync.Mutex
	last []byte
}

// NewSessionStorage keys the stored session by projectID.
func NewSessionStorage(projectID string, store Store, logger *slog.Logger, m *metrics.Metrics) *SessionStorage {
	return &SessionStorage{
		key:     projectID,
		store:   store,
		logger:  slogx.OrDiscard(logger),
		metrics: m,
	}
}

// Save writes s unless it serializes to the same bytes as the last write.
func (st *SessionStorage) Save(s *Session) error {
	if s == nil {
		return st.Remove()
	}

	data, err := EncodeSession(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.last != nil && bytes.Equal(st.last, data) {
		return nil
	}
	if err := st.store.SaveItem(st.key, data); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	st.last = data
	st.metrics.StorageWrite()
	return nil
}

// Load returns the stored session, or nil when there is none. Stored data
// that cannot be decoded is treated as absent; only store failures are
// returned as errors.
func (st *SessionStorage) Load() (*Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	data, err := st.store.LoadItem(st.key)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if len(data) == 0 {
		st.last = nil
		return nil, nil
	}

	s, err := DecodeSession(data)
	if err != nil {
		st.logger.Warn("discarding unreadable stored session", "error", err)
		st.last = nil
		return nil, nil
	}
	st.last = data
	return s, nil
}

// Remove deletes the stored session.
func (st *SessionStorage) Remove() error {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.last = nil
	if err := st.store.RemoveItem(st.key); err != nil {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}
