package authsdk

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
	"weak"

	"golang.org/x/sync/singleflight"

	"github.com/aussiebroadwan/authkit/pkg/metrics"
	"github.com/aussiebroadwan/authkit/pkg/slogx"
)

// Refresher exchanges a refresh JWT for new tokens. *Client implements it.
type Refresher interface {
	Refresh(ctx context.Context, refreshJWT string) (*RefreshResponse, error)
}

// SessionLifecycle tracks the current session and, while the app is in the
// foreground, checks every Period whether the session token is within
// AllowedStaleness of expiry and refreshes it if so.
//
// The timer goroutine only holds a weak pointer to the lifecycle, so a
// lifecycle that is no longer referenced is collected and its timer stops.
type SessionLifecycle struct {
	refresher Refresher
	cfg       LifecycleConfig
	logger    *slog.Logger
	metrics   *metrics.Metrics

	session atomic.Pointer[Session]
	flight  singleflight.Group

	// onRefresh is told about sessions refreshed by the timer.
	onRefresh func(*Session)

	mu         sync.Mutex
	background bool
	closed     bool
	timer      *refreshTimer
}

// NewSessionLifecycle returns an idle lifecycle.
func NewSessionLifecycle(refresher Refresher, cfg LifecycleConfig) *SessionLifecycle {
	cfg = cfg.withDefaults()
	return &SessionLifecycle{
		refresher: refresher,
		cfg:       cfg,
		logger:    slogx.OrDiscard(cfg.Logger),
		metrics:   cfg.Metrics,
	}
}

// Session returns the tracked session, or nil.
func (lc *SessionLifecycle) Session() *Session {
	return lc.session.Load()
}

// SetSession starts tracking s. Setting a session equal to the current one
// does nothing; setting nil stops the timer.
func (lc *SessionLifecycle) SetSession(s *Session) {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	if s.Equal(lc.session.Load()) {
		return
	}
	lc.session.Store(s)

	if s == nil {
		lc.stopTimerLocked()
		return
	}
	if !lc.background && !lc.closed {
		lc.startTimerLocked(false)
	}
}

// Foreground resumes periodic checks, starting with one right away.
func (lc *SessionLifecycle) Foreground() {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	lc.background = false
	if lc.session.Load() != nil && !lc.closed {
		lc.startTimerLocked(true)
	}
}

// Background stops periodic checks until the next Foreground.
func (lc *SessionLifecycle) Background() {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	lc.background = true
	lc.stopTimerLocked()
}

// Close stops the timer for good and waits for a running check to finish.
func (lc *SessionLifecycle) Close() {
	lc.mu.Lock()
	lc.closed = true
	t := lc.timer
	lc.stopTimerLocked()
	lc.mu.Unlock()

	if t != nil {
		<-t.doneCh
	}
}

// RefreshSessionIfNeeded refreshes the tracked session when its token
// expires within the allowed staleness, and reports whether it did. Tokens
// without an expiry are never refreshed. Concurrent calls for the same
// refresh token share one backend call.
func (lc *SessionLifecycle) RefreshSessionIfNeeded(ctx context.Context) (bool, error) {
	s := lc.session.Load()
	if s == nil || !lc.isStale(s) {
		lc.metrics.RefreshResult(metrics.ResultSkipped)
		return false, nil
	}

	refreshJWT := s.RefreshJWT()
	v, err, _ := lc.flight.Do(refreshJWT, func() (any, error) {
		return lc.refresh(ctx, refreshJWT)
	})
	if err != nil {
		lc.metrics.RefreshResult(metrics.ResultError)
		return false, err
	}

	refreshed := v.(bool)
	if refreshed {
		lc.metrics.RefreshResult(metrics.ResultRefreshed)
	}
	return refreshed, nil
}

func (lc *SessionLifecycle) isStale(s *Session) bool {
	exp, ok := s.SessionToken().ExpiresAt()
	if !ok {
		return false
	}
	return exp.Sub(lc.cfg.Now()) <= lc.cfg.AllowedStaleness
}

// refresh calls the backend and installs the new tokens on whatever session
// is current, provided it still carries the refresh token that was used.
func (lc *SessionLifecycle) refresh(ctx context.Context, refreshJWT string) (bool, error) {
	resp, err := lc.refresher.Refresh(ctx, refreshJWT)
	if err != nil {
		return false, err
	}

	for {
		cur := lc.session.Load()
		if cur == nil || cur.RefreshJWT() != refreshJWT {
			lc.logger.Debug("session changed during refresh, dropping result")
			return false, nil
		}
		next, err := cur.WithTokens(*resp)
		if err != nil {
			return false, err
		}
		if lc.session.CompareAndSwap(cur, next) {
			lc.logger.Debug("session refreshed", "user_id", next.User().UserID)
			return true, nil
		}
	}
}

// tick runs one timer-driven check. Errors are logged and swallowed so the
// timer keeps going.
func (lc *SessionLifecycle) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), lc.cfg.Period)
	defer cancel()

	refreshed, err := lc.RefreshSessionIfNeeded(ctx)
	if err != nil {
		lc.logger.Warn("periodic session refresh failed", "error", err)
		return
	}
	if refreshed && lc.onRefresh != nil {
		lc.onRefresh(lc.session.Load())
	}
}

type refreshTimer struct {
	stopCh  chan struct{}
	doneCh  chan struct{}
	once    sync.Once
	cleanup runtime.Cleanup
}

func (t *refreshTimer) stop() {
	t.once.Do(func() { close(t.stopCh) })
}

func (lc *SessionLifecycle) startTimerLocked(immediate bool) {
	lc.stopTimerLocked()

	t := &refreshTimer{
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	t.cleanup = runtime.AddCleanup(lc, func(t *refreshTimer) { t.stop() }, t)
	lc.timer = t

	go runRefreshTimer(weak.Make(lc), lc.cfg.Period, immediate, t)
}

func (lc *SessionLifecycle) stopTimerLocked() {
	if lc.timer == nil {
		return
	}
	lc.timer.cleanup.Stop()
	lc.timer.stop()
	lc.timer = nil
}

// runRefreshTimer must not keep a strong reference to the lifecycle between
// ticks.
func runRefreshTimer(wp weak.Pointer[SessionLifecycle], period time.Duration, immediate bool, t *refreshTimer) {
	defer close(t.doneCh)

	if immediate && !fire(wp) {
		return
	}

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
			if !fire(wp) {
				return
			}
		}
	}
}

func fire(wp weak.Pointer[SessionLifecycle]) bool {
	lc := wp.Value()
	if lc == nil {
		return false
	}
	lc.tick()
	return true
}
