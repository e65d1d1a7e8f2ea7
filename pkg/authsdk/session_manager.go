package authsdk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aussiebroadwan/authkit/pkg/sessionstore/memory"
)

// ManagerOptions configures a SessionManager.
type ManagerOptions struct {
	// Store persists the session. Defaults to an in-memory store, which
	// does not survive a restart.
	Store Store

	// Lifecycle tunes the refresh timer. Logger and Metrics default to the
	// client's.
	Lifecycle LifecycleConfig
}

// SessionManager keeps the tracked session and its persisted copy in step.
// Every mutation goes through the lifecycle first and is then written to
// storage.
type SessionManager struct {
	client    *Client
	storage   *SessionStorage
	lifecycle *SessionLifecycle
	logger    *slog.Logger

	mu sync.Mutex
}

// NewSessionManager builds a manager and installs any session found in
// storage, without refreshing it.
func NewSessionManager(client *Client, opts ManagerOptions) *SessionManager {
	store := opts.Store
	if store == nil {
		store = memory.New()
	}

	lcfg := opts.Lifecycle
	if lcfg.Logger == nil {
		lcfg.Logger = client.Logger()
	}
	if lcfg.Metrics == nil {
		lcfg.Metrics = client.Metrics()
	}

	m := &SessionManager{
		client:    client,
		storage:   NewSessionStorage(client.ProjectID(), store, lcfg.Logger, lcfg.Metrics),
		lifecycle: NewSessionLifecycle(client, lcfg),
		logger:    lcfg.Logger,
	}
	m.lifecycle.onRefresh = m.persistRefreshed

	if err := m.ReloadSession(); err != nil {
		m.logger.Warn("failed to load stored session", "error", err)
	}
	return m
}

// Session returns the tracked session, or nil.
func (m *SessionManager) Session() *Session {
	return m.lifecycle.Session()
}

// Lifecycle exposes the underlying lifecycle.
func (m *SessionManager) Lifecycle() *SessionLifecycle {
	return m.lifecycle
}

// ManageSession tracks s and persists it.
func (m *SessionManager) ManageSession(s *Session) error {
	if s == nil {
		return m.ClearSession()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.lifecycle.SetSession(s)
	return m.storage.Save(s)
}

// ClearSession stops tracking and removes the stored session.
func (m *SessionManager) ClearSession() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lifecycle.SetSession(nil)
	return m.storage.Remove()
}

// SaveSession persists the tracked session. It is a no-op without one.
func (m *SessionManager) SaveSession() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.lifecycle.Session()
	if s == nil {
		return nil
	}
	return m.storage.Save(s)
}

// RefreshSessionIfNeeded refreshes through the lifecycle and persists only
// when a refresh happened. Errors are returned to the caller.
func (m *SessionManager) RefreshSessionIfNeeded(ctx context.Context) (bool, error) {
	refreshed, err := m.lifecycle.RefreshSessionIfNeeded(ctx)
	if err != nil || !refreshed {
		return false, err
	}
	if err := m.SaveSession(); err != nil {
		return true, err
	}
	return true, nil
}

// UpdateTokens replaces the tracked session's tokens, keeping the refresh
// token when r has none, and persists the result.
func (m *SessionManager) UpdateTokens(r RefreshResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.lifecycle.Session()
	if cur == nil {
		return ErrNoSession
	}
	next, err := cur.WithTokens(r)
	if err != nil {
		return err
	}
	m.lifecycle.SetSession(next)
	return m.storage.Save(next)
}

// UpdateUser replaces the tracked session's user and persists the result.
func (m *SessionManager) UpdateUser(u User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.lifecycle.Session()
	if cur == nil {
		return ErrNoSession
	}
	next := cur.WithUser(u)
	m.lifecycle.SetSession(next)
	return m.storage.Save(next)
}

// RefreshUser fetches the user's profile and stores it on the session.
func (m *SessionManager) RefreshUser(ctx context.Context) error {
	cur := m.lifecycle.Session()
	if cur == nil {
		return ErrNoSession
	}
	u, err := m.client.Me(ctx, cur.RefreshJWT())
	if err != nil {
		return err
	}
	return m.UpdateUser(*u)
}

// Logout revokes the refresh token on the backend and clears the session.
// The local session is cleared even when the backend call fails.
func (m *SessionManager) Logout(ctx context.Context) error {
	cur := m.lifecycle.Session()
	if cur == nil {
		return ErrNoSession
	}
	logoutErr := m.client.Logout(ctx, cur.RefreshJWT())
	clearErr := m.ClearSession()
	if logoutErr != nil {
		return fmt.Errorf("logout: %w", errors.Join(logoutErr, clearErr))
	}
	return clearErr
}

// ReloadSession replaces the tracked session with whatever storage holds.
func (m *SessionManager) ReloadSession() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.storage.Load()
	if err != nil {
		return err
	}
	m.lifecycle.SetSession(s)
	return nil
}

// Foreground forwards the app-foreground signal to the lifecycle.
func (m *SessionManager) Foreground() { m.lifecycle.Foreground() }

// Background forwards the app-background signal to the lifecycle.
func (m *SessionManager) Background() { m.lifecycle.Background() }

// Close stops the refresh timer.
func (m *SessionManager) Close() { m.lifecycle.Close() }

func (m *SessionManager) persistRefreshed(s *Session) {
	if s == nil {
		return
	}
	if err := m.SaveSession(); err != nil {
		m.logger.Warn("failed to persist refreshed session", "error", err)
	}
}
