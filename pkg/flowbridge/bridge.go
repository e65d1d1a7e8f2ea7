package flowbridge

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aussiebroadwan/authkit/pkg/authsdk"
	"github.com/aussiebroadwan/authkit/pkg/idx"
	"github.com/aussiebroadwan/authkit/pkg/metrics"
	"github.com/aussiebroadwan/authkit/pkg/slogx"
)

// Retry defaults for page loads.
const (
	DefaultRetryWindow  = 10 * time.Second
	DefaultRetryBackoff = 1250 * time.Millisecond
)

// Flow outcome label values.
const (
	OutcomeSuccess   = "success"
	OutcomeCancelled = "cancelled"
	OutcomeFailed    = "failed"
	OutcomeNetwork   = "network"
	OutcomeDecode    = "decode"
)

// PageHost renders the flow page. Bridge calls it only from its Dispatcher.
// The host reports page events back through the Bridge's Page* methods and
// relays calls made on HostObject to the matching Bridge methods.
type PageHost interface {
	Load(url string)
	EvaluateScript(js string)
}

// Listener receives flow events. OnSuccess and OnError are terminal and
// exactly one of them is called per flow, unless the bridge is closed
// first.
type Listener interface {
	OnFound()
	OnReady()
	OnSuccess(resp *authsdk.AuthenticationResponse)
	OnError(err error)
}

// Callbacks is a Listener built from optional functions.
type Callbacks struct {
	Found   func()
	Ready   func()
	Success func(resp *authsdk.AuthenticationResponse)
	Error   func(err error)
}

func (c Callbacks) OnFound() {
	if c.Found != nil {
		c.Found()
	}
}

func (c Callbacks) OnReady() {
	if c.Ready != nil {
		c.Ready()
	}
}

func (c Callbacks) OnSuccess(resp *authsdk.AuthenticationResponse) {
	if c.Success != nil {
		c.Success(resp)
	}
}

func (c Callbacks) OnError(err error) {
	if c.Error != nil {
		c.Error(err)
	}
}

// Options configures a Bridge.
type Options struct {
	// ProjectID scopes the cookie fallback. Required.
	ProjectID string

	RetryWindow  time.Duration
	RetryBackoff time.Duration

	// Cookie names used when the page does not advertise its own.
	SessionCookieName string
	RefreshCookieName string

	// CookieJar is searched for tokens when a success payload has none.
	CookieJar http.CookieJar

	// Handler serves native requests. Defaults to an empty NativeHandler,
	// which fails every request.
	Handler Handler

	// Dispatcher serialises page interaction. Defaults to a SerialQueue
	// owned and closed by the Bridge.
	Dispatcher Dispatcher

	Logger  *slog.Logger
	Unsafe  bool
	Metrics *metrics.Metrics
	Now     func() time.Time
}

type state int

const (
	stateInitial state = iota
	stateLoading
	stateReady
	stateDone
)

// Bridge drives one flow run. Event methods may be called from any
// goroutine; they are applied in order on the Dispatcher.
type Bridge struct {
	host     PageHost
	listener Listener
	handler  Handler
	opts     Options
	policy   slogx.Policy
	logger   *slog.Logger
	runID    idx.ID

	dispatcher Dispatcher
	ownQueue   *SerialQueue

	ctx    context.Context
	cancel context.CancelFunc

	started atomic.Bool
	closed  atomic.Bool

	timerMu    sync.Mutex
	retryTimer *time.Timer

	// Owned by the dispatcher.
	state         state
	url           string
	startedAt     time.Time
	attempt       int
	setUp         bool
	pageStarted   bool
	retryPending  bool
	sessionCookie string
	refreshCookie string
	pending       map[string]struct{}
}

// New builds a bridge for one flow run.
func New(host PageHost, listener Listener, opts Options) (*Bridge, error) {
	if host == nil || listener == nil {
		return nil, errors.New("flowbridge: host and listener are required")
	}
	if strings.TrimSpace(opts.ProjectID) == "" {
		return nil, authsdk.ErrMissingProjectID
	}
	if opts.RetryWindow <= 0 {
		opts.RetryWindow = DefaultRetryWindow
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = DefaultRetryBackoff
	}
	if opts.SessionCookieName == "" {
		opts.SessionCookieName = DefaultSessionCookieName
	}
	if opts.RefreshCookieName == "" {
		opts.RefreshCookieName = DefaultRefreshCookieName
	}
	if opts.Handler == nil {
		opts.Handler = NativeHandler{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	runID := idx.NewWithPrefix(idx.PrefixFlow)
	logger := slogx.OrDiscard(opts.Logger).With("flow", runID.String())

	b := &Bridge{
		host:       host,
		listener:   listener,
		handler:    opts.Handler,
		opts:       opts,
		logger:     logger,
		policy:     slogx.Policy{Logger: logger, Unsafe: opts.Unsafe},
		runID:      runID,
		dispatcher: opts.Dispatcher,
		pending:    make(map[string]struct{}),
	}
	if b.dispatcher == nil {
		b.ownQueue = NewSerialQueue()
		b.dispatcher = b.ownQueue
	}
	b.ctx, b.cancel = context.WithCancel(context.Background())
	return b, nil
}

// RunID identifies this flow run in logs.
func (b *Bridge) RunID() idx.ID { return b.runID }

// Start loads the flow page. A bridge runs one flow only.
func (b *Bridge) Start(url string) error {
	if b.closed.Load() {
		return ErrClosed
	}
	if !b.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	b.do(func() {
		b.state = stateLoading
		b.url = url
		b.startedAt = b.opts.Now()
		b.attempt = 1
		b.setUp = false
		b.logger.Info("starting flow", "url", url)
		b.host.Load(url)
	})
	return nil
}

// Close abandons the flow. In-flight native requests are cancelled and no
// further listener callbacks are made. Safe to call more than once.
func (b *Bridge) Close() {
	if !b.closed.CompareAndSwap(false, true) {
		return
	}
	b.cancel()
	b.stopRetryTimer()
	if b.ownQueue != nil {
		b.ownQueue.Close()
	}
}

// PageStarted reports that the host began loading url.
func (b *Bridge) PageStarted(url string) {
	b.do(func() {
		if b.state == stateDone {
			return
		}
		if b.pageStarted {
			b.logger.Warn("page started twice during one load, ignoring", "url", url)
			return
		}
		b.pageStarted = true
		b.logger.Debug("page started", "url", url)
	})
}

// PageFinished reports a successful main frame load. The setup script is
// injected once per flow run.
func (b *Bridge) PageFinished(url string) {
	b.do(func() {
		b.pageStarted = false
		if b.state == stateDone || b.retryPending {
			return
		}
		if b.setUp {
			b.logger.Debug("page finished after setup, not injecting again", "url", url)
			return
		}
		b.setUp = true
		b.logger.Debug("page finished, injecting setup script", "url", url)
		b.host.EvaluateScript(setupScript(b.hostInfo()))
	})
}

// PageFailed reports a failed main frame load. Before setup, transient
// failures are retried while the retry window allows it.
func (b *Bridge) PageFailed(loadErr *LoadError) {
	b.do(func() {
		b.pageStarted = false
		if b.state == stateDone || b.retryPending {
			return
		}
		if loadErr.URL == "" {
			loadErr.URL = b.url
		}

		if !b.setUp && loadErr.retryable() {
			elapsed := b.opts.Now().Sub(b.startedAt)
			if delay, ok := retryDelay(b.attempt, elapsed, b.opts.RetryBackoff, b.opts.RetryWindow); ok {
				b.attempt++
				b.retryPending = true
				b.opts.Metrics.FlowRetry()
				b.logger.Info("page load failed, retrying",
					"attempt", b.attempt, "delay", delay, "error", loadErr)
				b.scheduleRetry(delay)
				return
			}
		}

		b.logger.Error("page load failed", "attempt", b.attempt, "error", loadErr)
		b.finish(OutcomeNetwork, nil, loadErr.networkError())
	})
}

// Found reports that the page's flow component was discovered. Non-empty
// cookie names override the configured ones.
func (b *Bridge) Found(sessionCookieName, refreshCookieName string) {
	b.do(func() {
		if b.state == stateDone {
			return
		}
		b.sessionCookie = sessionCookieName
		b.refreshCookie = refreshCookieName
		b.logger.Debug("flow component found")
		b.listener.OnFound()
	})
}

// Ready reports that the flow is interactive. tag says whether the
// component was ready on discovery or signalled it later.
func (b *Bridge) Ready(tag string) {
	b.do(func() {
		switch b.state {
		case stateLoading:
		case stateReady:
			b.logger.Debug("duplicate ready signal", "tag", tag)
			return
		default:
			return
		}
		b.state = stateReady
		b.logger.Info("flow ready", "tag", tag)
		b.listener.OnReady()
	})
}

// Succeed reports flow completion. payload is the JSON authentication
// response; tokens it lacks are looked up in the cookie jar for pageURL.
func (b *Bridge) Succeed(payload []byte, pageURL string) {
	b.do(func() {
		if !b.running() {
			return
		}
		resp, err := b.successResponse(payload, pageURL)
		if err != nil {
			b.logger.Error("unusable success payload", "error", err)
			b.finish(OutcomeDecode, nil, err)
			return
		}
		b.logger.Info("flow succeeded", "user", resp.User.UserID, "url", b.policy.Secret(pageURL))
		b.finish(OutcomeSuccess, resp, nil)
	})
}

// Abort reports that the page gave up. An empty reason is a cancellation.
func (b *Bridge) Abort(reason string) {
	b.do(func() {
		if !b.running() {
			return
		}
		if reason == "" {
			b.logger.Info("flow cancelled")
			b.finish(OutcomeCancelled, nil, ErrFlowCancelled)
			return
		}
		b.logger.Info("flow aborted", "reason", reason)
		b.finish(OutcomeFailed, nil, &FlowFailedError{Reason: reason})
	})
}

// Fail reports an error raised by the flow page.
func (b *Bridge) Fail(message string) {
	b.do(func() {
		if !b.running() {
			return
		}
		b.logger.Error("flow failed", "error", message)
		b.finish(OutcomeFailed, nil, &FlowFailedError{Reason: message})
	})
}

// Request relays a structured request posted by the page to the Handler.
// A message that does not decode ends the flow.
func (b *Bridge) Request(data []byte) {
	b.do(func() {
		if !b.running() {
			return
		}
		req, err := DecodeRequest(data)
		if err != nil {
			b.logger.Error("malformed bridge request", "error", err)
			b.finish(OutcomeDecode, nil, err)
			return
		}

		tx := transactionID(req)
		if tx != "" {
			if _, dup := b.pending[tx]; dup {
				b.logger.Warn("duplicate request for pending transaction, ignoring", "type", req.Type(), "transaction", tx)
				return
			}
			b.pending[tx] = struct{}{}
		}
		b.logger.Info("native request", "type", req.Type(), "transaction", tx)
		go b.serve(req, tx)
	})
}

// Console forwards page console output. Only the fail tag is logged unless
// unsafe logging is on.
func (b *Bridge) Console(tag, message string) {
	b.policy.Tagged(b.ctx, tag, "page console", "message", message)
}

// Send delivers a response the page is waiting for outside a request, such
// as a WebResult after a deep link resumed the app.
func (b *Bridge) Send(resp Response) error {
	if b.closed.Load() {
		return ErrClosed
	}
	if _, _, err := EncodeResponse(resp); err != nil {
		return err
	}
	b.do(func() {
		if !b.running() {
			return
		}
		b.deliver(resp)
	})
	return nil
}

func (b *Bridge) serve(req Request, tx string) {
	resp, err := b.handler.HandleRequest(b.ctx, req)
	if err == nil && tx != "" && transactionID(resp) != tx {
		err = errors.New("response does not match the request's transaction")
	}
	b.do(func() {
		if tx != "" {
			delete(b.pending, tx)
		}
		if !b.running() {
			return
		}
		if err != nil {
			b.logger.Warn("native request failed", "type", req.Type(), "error", err)
			b.deliver(Failure{Reason: FailureReason(err)})
			return
		}
		if resp != nil {
			b.deliver(resp)
		}
	})
}

func (b *Bridge) deliver(resp Response) {
	typeName, payload, err := EncodeResponse(resp)
	if err != nil {
		b.logger.Error("failed to encode native response", "type", resp.Type(), "error", err)
		return
	}
	b.logger.Debug("delivering native response", "type", typeName)
	b.host.EvaluateScript(respondScript(typeName, payload))
}

func (b *Bridge) successResponse(payload []byte, pageURL string) (*authsdk.AuthenticationResponse, error) {
	var resp authsdk.AuthenticationResponse
	if len(strings.TrimSpace(string(payload))) > 0 {
		if err := json.Unmarshal(payload, &resp); err != nil {
			return nil, decodeErr("malformed success payload", err)
		}
	}

	if resp.SessionJWT == "" || resp.RefreshJWT == "" {
		cookies := jarCookies(b.opts.CookieJar, pageURL)
		if resp.SessionJWT == "" {
			resp.SessionJWT = cookieToken(cookies, firstNonEmpty(b.sessionCookie, b.opts.SessionCookieName), b.opts.ProjectID)
		}
		if resp.RefreshJWT == "" {
			resp.RefreshJWT = cookieToken(cookies, firstNonEmpty(b.refreshCookie, b.opts.RefreshCookieName), b.opts.ProjectID)
		}
	}
	if resp.SessionJWT == "" || resp.RefreshJWT == "" {
		return nil, decodeErr("success payload has no session or refresh token", nil)
	}
	if _, err := resp.Session(); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (b *Bridge) finish(outcome string, resp *authsdk.AuthenticationResponse, err error) {
	b.state = stateDone
	b.retryPending = false
	b.stopRetryTimer()
	b.cancel()
	b.opts.Metrics.FlowOutcome(outcome)
	if err != nil {
		b.listener.OnError(err)
		return
	}
	b.listener.OnSuccess(resp)
}

func (b *Bridge) running() bool {
	return b.state == stateLoading || b.state == stateReady
}

func (b *Bridge) scheduleRetry(delay time.Duration) {
	b.timerMu.Lock()
	defer b.timerMu.Unlock()
	b.retryTimer = time.AfterFunc(delay, func() {
		b.do(func() {
			b.retryPending = false
			if b.state == stateDone {
				return
			}
			b.host.Load(b.url)
		})
	})
}

func (b *Bridge) stopRetryTimer() {
	b.timerMu.Lock()
	defer b.timerMu.Unlock()
	if b.retryTimer != nil {
		b.retryTimer.Stop()
		b.retryTimer = nil
	}
}

// do runs fn on the dispatcher unless the bridge is closed.
func (b *Bridge) do(fn func()) {
	if b.closed.Load() {
		return
	}
	b.dispatcher.Dispatch(func() {
		if b.closed.Load() {
			return
		}
		fn()
	})
}

func (b *Bridge) hostInfo() hostInfo {
	info := hostInfo{Platform: "go", OAuthNative: true, Passkeys: true}
	if h, ok := b.handler.(NativeHandler); ok {
		info.OAuthNative = h.OAuth != nil
		info.Passkeys = h.Passkeys != nil
	}
	return info
}

// retryDelay returns the wait before reloading after the given failed
// attempt, and whether that reload still fits in the retry window. The
// backoff grows linearly with the attempt number.
func retryDelay(attempt int, elapsed, backoff, window time.Duration) (time.Duration, bool) {
	delay := time.Duration(attempt) * backoff
	return delay, elapsed+delay <= window
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
