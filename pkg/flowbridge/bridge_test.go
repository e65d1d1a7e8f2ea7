package flowbridge

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/authkit/pkg/authsdk"
	"github.com/aussiebroadwan/authkit/pkg/metrics"
	"github.com/aussiebroadwan/authkit/pkg/slogx"
)

const (
	testProject = "P1flow"
	flowURL     = "https://auth.example.com/login?flow=sign-in"
)

func testJWT(t *testing.T, project string, iat time.Time) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "U1",
		"iss": "https://api.authkit.dev/" + project,
		"iat": iat.Unix(),
		"exp": iat.Add(time.Hour).Unix(),
	}).SignedString([]byte("test-only"))
	require.NoError(t, err)
	return raw
}

// syncDispatcher runs functions inline, one at a time.
type syncDispatcher struct{ mu sync.Mutex }

func (d *syncDispatcher) Dispatch(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn()
}

type fakeHost struct {
	mu      sync.Mutex
	loads   []string
	scripts []string
}

func (h *fakeHost) Load(url string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.loads = append(h.loads, url)
}

func (h *fakeHost) EvaluateScript(js string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.scripts = append(h.scripts, js)
}

func (h *fakeHost) loadCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.loads)
}

func (h *fakeHost) scriptList() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.scripts...)
}

type recorder struct {
	mu      sync.Mutex
	found   int
	ready   int
	success []*authsdk.AuthenticationResponse
	errs    []error
}

func (r *recorder) OnFound() { r.mu.Lock(); r.found++; r.mu.Unlock() }
func (r *recorder) OnReady() { r.mu.Lock(); r.ready++; r.mu.Unlock() }

func (r *recorder) OnSuccess(resp *authsdk.AuthenticationResponse) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.success = append(r.success, resp)
}

func (r *recorder) OnError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recorder) terminal() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.success) + len(r.errs)
}

func (r *recorder) lastErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.errs) == 0 {
		return nil
	}
	return r.errs[len(r.errs)-1]
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(d time.Duration, start time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = start.Add(d)
}

func newBridge(t *testing.T, opts Options) (*Bridge, *fakeHost, *recorder) {
	t.Helper()
	host := &fakeHost{}
	rec := &recorder{}
	if opts.ProjectID == "" {
		opts.ProjectID = testProject
	}
	if opts.Dispatcher == nil {
		opts.Dispatcher = &syncDispatcher{}
	}
	b, err := New(host, rec, opts)
	require.NoError(t, err)
	t.Cleanup(b.Close)
	return b, host, rec
}

// started returns a bridge whose page has loaded and signalled ready.
func started(t *testing.T, opts Options) (*Bridge, *fakeHost, *recorder) {
	t.Helper()
	b, host, rec := newBridge(t, opts)
	require.NoError(t, b.Start(flowURL))
	b.PageStarted(flowURL)
	b.PageFinished(flowURL)
	b.Found("", "")
	b.Ready("immediate")
	return b, host, rec
}

func TestNewValidates(t *testing.T) {
	_, err := New(nil, &recorder{}, Options{ProjectID: testProject})
	require.Error(t, err)

	_, err = New(&fakeHost{}, &recorder{}, Options{ProjectID: " "})
	require.ErrorIs(t, err, authsdk.ErrMissingProjectID)
}

func TestStartOnce(t *testing.T) {
	b, host, _ := newBridge(t, Options{})
	require.NoError(t, b.Start(flowURL))
	require.ErrorIs(t, b.Start(flowURL), ErrAlreadyStarted)
	require.Equal(t, []string{flowURL}, host.loads)
	require.True(t, strings.HasPrefix(b.RunID().String(), "flow_"))
}

func TestSetupInjectedOnce(t *testing.T) {
	logger, buf := bufferLogger()
	b, host, rec := newBridge(t, Options{Logger: logger})
	require.NoError(t, b.Start(flowURL))

	b.PageStarted(flowURL)
	b.PageStarted(flowURL)
	require.Contains(t, buf.String(), "page started twice")

	b.PageFinished(flowURL)
	b.PageStarted(flowURL + "&step=2")
	b.PageFinished(flowURL + "&step=2")

	scripts := host.scriptList()
	require.Len(t, scripts, 1)
	require.Contains(t, scripts[0], "window."+HostObject)
	require.Contains(t, scripts[0], `"passkeys":false`)

	b.Found("", "")
	b.Ready("event")
	b.Ready("immediate")
	require.Equal(t, 1, rec.found)
	require.Equal(t, 1, rec.ready)
}

func TestRetriesTransientLoadFailures(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := &clock{now: start}
	_, m := metrics.NewRegistry()

	b, host, rec := newBridge(t, Options{
		RetryBackoff: 5 * time.Millisecond,
		RetryWindow:  40 * time.Millisecond,
		Now:          clk.Now,
		Metrics:      m,
	})
	require.NoError(t, b.Start(flowURL))

	// Failures at 0, 5 and 15ms are retried after 5, 10 and 15ms. The fourth
	// failure at 30ms would need 20ms more and exceed the 40ms window.
	for i, at := range []time.Duration{0, 5, 15} {
		clk.Set(at*time.Millisecond, start)
		b.PageFailed(&LoadError{StatusCode: http.StatusBadGateway})
		require.Eventually(t, func() bool { return host.loadCount() == i+2 }, time.Second, time.Millisecond)
		require.Zero(t, rec.terminal())
	}

	clk.Set(30*time.Millisecond, start)
	b.PageFailed(&LoadError{Err: &url.Error{Op: "Get", URL: flowURL, Err: errors.New("connection reset")}})
	require.Equal(t, 1, rec.terminal())

	var ne *NetworkError
	require.ErrorAs(t, rec.lastErr(), &ne)
	require.Equal(t, MsgGeneric, ne.Message)
	require.Equal(t, 4, host.loadCount())
	require.Equal(t, 3.0, testutil.ToFloat64(m.FlowLoadRetries))
	require.Equal(t, 1.0, testutil.ToFloat64(m.FlowOutcomes.WithLabelValues(OutcomeNetwork)))
}

func TestLoadFailuresThatEndTheFlow(t *testing.T) {
	t.Run("client error is not retried", func(t *testing.T) {
		b, host, rec := newBridge(t, Options{})
		require.NoError(t, b.Start(flowURL))
		b.PageFailed(&LoadError{StatusCode: http.StatusNotFound})

		var ne *NetworkError
		require.ErrorAs(t, rec.lastErr(), &ne)
		require.Equal(t, MsgNotFound, ne.Message)
		require.Equal(t, 1, host.loadCount())
	})

	t.Run("no retry after setup", func(t *testing.T) {
		b, host, rec := started(t, Options{})
		b.PageFailed(&LoadError{StatusCode: http.StatusServiceUnavailable})

		var ne *NetworkError
		require.ErrorAs(t, rec.lastErr(), &ne)
		require.Equal(t, http.StatusServiceUnavailable, ne.StatusCode)
		require.Equal(t, 1, host.loadCount())
	})

	t.Run("window already spent", func(t *testing.T) {
		start := time.Now()
		clk := &clock{now: start}
		b, _, rec := newBridge(t, Options{Now: clk.Now})
		require.NoError(t, b.Start(flowURL))

		clk.Set(9*time.Second, start)
		b.PageFailed(&LoadError{Err: errors.New("reset")})
		require.Equal(t, 1, rec.terminal())
	})
}

func TestSuccessPayload(t *testing.T) {
	now := time.Now()
	sessionJWT := testJWT(t, testProject, now)
	refreshJWT := testJWT(t, testProject, now)

	t.Run("tokens in payload", func(t *testing.T) {
		_, m := metrics.NewRegistry()
		b, _, rec := started(t, Options{Metrics: m})
		b.Succeed([]byte(`{"sessionJwt":"`+sessionJWT+`","refreshJwt":"`+refreshJWT+`","user":{"userId":"U1"},"firstSeen":true}`), flowURL)

		require.Len(t, rec.success, 1)
		resp := rec.success[0]
		require.True(t, resp.FirstSeen)
		s, err := resp.Session()
		require.NoError(t, err)
		require.Equal(t, "U1", s.User().UserID)
		require.Equal(t, 1.0, testutil.ToFloat64(m.FlowOutcomes.WithLabelValues(OutcomeSuccess)))
	})

	t.Run("no tokens anywhere", func(t *testing.T) {
		b, _, rec := started(t, Options{})
		b.Succeed([]byte(`{}`), flowURL)
		require.ErrorIs(t, rec.lastErr(), ErrDecode)
	})

	t.Run("malformed payload", func(t *testing.T) {
		b, _, rec := started(t, Options{})
		b.Succeed([]byte(`{"sessionJwt":`), flowURL)
		require.ErrorIs(t, rec.lastErr(), ErrDecode)
	})

	t.Run("malformed token", func(t *testing.T) {
		b, _, rec := started(t, Options{})
		b.Succeed([]byte(`{"sessionJwt":"x.y","refreshJwt":"`+refreshJWT+`"}`), flowURL)
		require.ErrorIs(t, rec.lastErr(), ErrDecode)
	})
}

func jarWith(t *testing.T, cookies ...*http.Cookie) http.CookieJar {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	u, err := url.Parse(flowURL)
	require.NoError(t, err)
	jar.SetCookies(u, cookies)
	return jar
}

func TestCookieFallback(t *testing.T) {
	now := time.Now()
	older := testJWT(t, testProject, now.Add(-time.Hour))
	newer := testJWT(t, testProject, now)
	foreign := testJWT(t, "P9other", now.Add(time.Hour))
	refresh := testJWT(t, testProject, now)

	t.Run("newest matching cookie wins", func(t *testing.T) {
		// Same-name cookies only coexist in a jar with different paths.
		jar := jarWith(t,
			&http.Cookie{Name: DefaultSessionCookieName, Value: older, Path: "/"},
			&http.Cookie{Name: DefaultSessionCookieName, Value: newer, Path: "/login"},
			&http.Cookie{Name: DefaultRefreshCookieName, Value: refresh, Path: "/"},
		)
		b, _, rec := started(t, Options{CookieJar: jar})
		b.Succeed([]byte(`{}`), flowURL)

		require.Len(t, rec.success, 1)
		require.Equal(t, newer, rec.success[0].SessionJWT)
		require.Equal(t, refresh, rec.success[0].RefreshJWT)
	})

	t.Run("other projects and junk are ignored", func(t *testing.T) {
		cookies := []*http.Cookie{
			{Name: DefaultSessionCookieName, Value: older},
			{Name: DefaultSessionCookieName, Value: foreign},
			{Name: DefaultSessionCookieName, Value: "not-a-jwt"},
			{Name: "unrelated", Value: newer},
		}
		require.Equal(t, older, cookieToken(cookies, DefaultSessionCookieName, testProject))
		require.Empty(t, cookieToken(cookies, DefaultSessionCookieName, "P0none"))
	})

	t.Run("page advertised names", func(t *testing.T) {
		jar := jarWith(t,
			&http.Cookie{Name: DefaultSessionCookieName, Value: older, Path: "/"},
			&http.Cookie{Name: "custom_s", Value: newer, Path: "/"},
			&http.Cookie{Name: "custom_r", Value: refresh, Path: "/"},
		)
		b, host, rec := newBridge(t, Options{CookieJar: jar})
		require.NoError(t, b.Start(flowURL))
		b.PageFinished(flowURL)
		b.Found("custom_s", "custom_r")
		b.Ready("event")
		b.Succeed(nil, flowURL)

		require.Len(t, host.scriptList(), 1)
		require.Len(t, rec.success, 1)
		require.Equal(t, newer, rec.success[0].SessionJWT)
		require.Equal(t, refresh, rec.success[0].RefreshJWT)
	})

	t.Run("payload tokens take precedence", func(t *testing.T) {
		jar := jarWith(t, &http.Cookie{Name: DefaultRefreshCookieName, Value: refresh, Path: "/"})
		b, _, rec := started(t, Options{CookieJar: jar})
		b.Succeed([]byte(`{"sessionJwt":"`+older+`"}`), flowURL)

		require.Len(t, rec.success, 1)
		require.Equal(t, older, rec.success[0].SessionJWT)
		require.Equal(t, refresh, rec.success[0].RefreshJWT)
	})
}

func TestAbortAndFail(t *testing.T) {
	t.Run("empty reason cancels", func(t *testing.T) {
		b, _, rec := started(t, Options{})
		b.Abort("")
		require.ErrorIs(t, rec.lastErr(), ErrFlowCancelled)
	})

	t.Run("reason fails", func(t *testing.T) {
		b, _, rec := started(t, Options{})
		b.Abort("user blocked")
		var fe *FlowFailedError
		require.ErrorAs(t, rec.lastErr(), &fe)
		require.Equal(t, "user blocked", fe.Reason)
	})

	t.Run("page error fails", func(t *testing.T) {
		b, _, rec := started(t, Options{})
		b.Fail("E102 something broke")
		var fe *FlowFailedError
		require.ErrorAs(t, rec.lastErr(), &fe)
	})

	t.Run("one terminal callback only", func(t *testing.T) {
		b, _, rec := started(t, Options{})
		b.Abort("")
		b.Fail("late")
		b.Succeed([]byte(`{}`), flowURL)
		b.PageFailed(&LoadError{StatusCode: 500})
		b.Ready("event")
		require.Equal(t, 1, rec.terminal())
		require.Equal(t, 1, rec.ready)
	})
}

type passkeys struct {
	create func(ctx context.Context, options string) (string, error)
	get    func(ctx context.Context, options string) (string, error)
}

func (p passkeys) CreatePasskey(ctx context.Context, options string) (string, error) {
	return p.create(ctx, options)
}

func (p passkeys) GetPasskey(ctx context.Context, options string) (string, error) {
	return p.get(ctx, options)
}

type browser struct {
	mu   sync.Mutex
	urls []string
}

func (br *browser) OpenURL(_ context.Context, u string) error {
	br.mu.Lock()
	defer br.mu.Unlock()
	br.urls = append(br.urls, u)
	return nil
}

func (br *browser) opened() []string {
	br.mu.Lock()
	defer br.mu.Unlock()
	return append([]string(nil), br.urls...)
}

func TestNativeRequests(t *testing.T) {
	handler := NativeHandler{
		Passkeys: passkeys{
			create: func(context.Context, string) (string, error) {
				return "", &NativeCredentialError{Kind: PasskeyCancelled}
			},
			get: func(_ context.Context, options string) (string, error) {
				return "assertion-for-" + options, nil
			},
		},
	}

	t.Run("passkey assertion relayed", func(t *testing.T) {
		b, host, rec := started(t, Options{Handler: handler})
		b.Request([]byte(`{"type":"webauthnGet","payload":{"transactionId":"tx1","options":"opts"}}`))

		want := respondScript(TypeWebAuthnGet, `{"transactionId":"tx1","response":"assertion-for-opts"}`)
		require.Eventually(t, func() bool { return len(host.scriptList()) == 2 }, time.Second, time.Millisecond)
		require.Equal(t, want, host.scriptList()[1])
		require.Zero(t, rec.terminal())
	})

	t.Run("native failure mapped", func(t *testing.T) {
		b, host, rec := started(t, Options{Handler: handler})
		b.Request([]byte(`{"type":"webauthnCreate","payload":{"transactionId":"tx2","options":"opts"}}`))

		want := respondScript(TypeFailure, `{"failure":"PasskeyCanceled"}`)
		require.Eventually(t, func() bool { return len(host.scriptList()) == 2 }, time.Second, time.Millisecond)
		require.Equal(t, want, host.scriptList()[1])
		require.Zero(t, rec.terminal(), "native failures leave the flow running")
	})

	t.Run("missing collaborator", func(t *testing.T) {
		b, host, _ := started(t, Options{})
		b.Request([]byte(`{"type":"oauthNative","payload":{"start":{}}}`))

		want := respondScript(TypeFailure, `{"failure":"OAuthNativeFailed"}`)
		require.Eventually(t, func() bool { return len(host.scriptList()) == 2 }, time.Second, time.Millisecond)
		require.Equal(t, want, host.scriptList()[1])
	})

	t.Run("browser steps resume via Send", func(t *testing.T) {
		br := &browser{}
		b, host, _ := started(t, Options{Handler: NativeHandler{Browser: br}})
		b.Request([]byte(`{"type":"sso","payload":{"startUrl":"https://idp.example.com/saml"}}`))

		require.Eventually(t, func() bool { return len(br.opened()) == 1 }, time.Second, time.Millisecond)
		require.Len(t, host.scriptList(), 1, "nothing sent until the app is resumed")

		require.NoError(t, b.Send(WebResult{Kind: TypeSSO, URL: "app://resume?code=1"}))
		require.Equal(t, respondScript(TypeSSO, `{"url":"app://resume?code=1"}`), host.scriptList()[1])
	})

	t.Run("malformed request ends the flow", func(t *testing.T) {
		b, _, rec := started(t, Options{Handler: handler})
		b.Request([]byte(`{"type":"unknown","payload":{}}`))
		require.ErrorIs(t, rec.lastErr(), ErrDecode)
	})

	t.Run("mismatched transaction is a failure", func(t *testing.T) {
		h := HandlerFunc(func(context.Context, Request) (Response, error) {
			return WebAuthnGetResult{TransactionID: "other", Response: "r"}, nil
		})
		b, host, _ := started(t, Options{Handler: h})
		b.Request([]byte(`{"type":"webauthnGet","payload":{"transactionId":"tx3","options":"o"}}`))

		require.Eventually(t, func() bool { return len(host.scriptList()) == 2 }, time.Second, time.Millisecond)
		require.Equal(t, respondScript(TypeFailure, `{"failure":"NativeFailed"}`), host.scriptList()[1])
	})
}

func TestCloseCancelsNativeRequests(t *testing.T) {
	entered := make(chan struct{})
	cancelled := make(chan struct{})
	h := HandlerFunc(func(ctx context.Context, _ Request) (Response, error) {
		close(entered)
		<-ctx.Done()
		close(cancelled)
		return nil, ctx.Err()
	})

	b, host, rec := started(t, Options{Handler: h})
	b.Request([]byte(`{"type":"webauthnGet","payload":{"transactionId":"tx","options":"o"}}`))
	<-entered

	b.Close()
	<-cancelled
	require.ErrorIs(t, b.Start(flowURL), ErrClosed)
	require.ErrorIs(t, b.Send(Failure{Reason: "x"}), ErrClosed)

	b.Abort("")
	require.Zero(t, rec.terminal(), "no callbacks after close")
	require.Len(t, host.scriptList(), 1)
}

func bufferLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slogx.New(slogx.Config{Level: "debug", Format: "text", Output: &buf}), &buf
}

func TestConsoleForwarding(t *testing.T) {
	t.Run("safe mode keeps only uncaught errors", func(t *testing.T) {
		logger, buf := bufferLogger()
		b, _, _ := newBridge(t, Options{Logger: logger})
		b.Console("info", "user typed hunter2")
		b.Console(slogx.TagFail, "TypeError: x is undefined")

		out := buf.String()
		require.NotContains(t, out, "hunter2")
		require.Contains(t, out, "TypeError: x is undefined")
		require.Contains(t, out, "level=ERROR")
	})

	t.Run("unsafe mode forwards everything", func(t *testing.T) {
		logger, buf := bufferLogger()
		b, _, _ := newBridge(t, Options{Logger: logger, Unsafe: true})
		b.Console("warn", "deprecated api")
		require.Contains(t, buf.String(), "deprecated api")
		require.Contains(t, buf.String(), "level=WARN")
	})
}

func TestDefaultDispatcher(t *testing.T) {
	host := &fakeHost{}
	done := make(chan error, 1)
	b, err := New(host, Callbacks{Error: func(err error) { done <- err }}, Options{ProjectID: testProject})
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.Start(flowURL))
	b.PageFinished(flowURL)
	b.Ready("immediate")
	b.Abort("")

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrFlowCancelled)
	case <-time.After(time.Second):
		t.Fatal("no terminal callback")
	}
	require.Equal(t, 1, host.loadCount())
	require.Len(t, host.scriptList(), 1)
}
