// Package devserver is an in-process identity backend for one project. It
// serves the REST endpoints the SDK calls, mints real signed JWTs and lets
// tests steer it: seed users, verify enchanted links, count refreshes and
// inject failures.
package devserver

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/aussiebroadwan/authkit/pkg/authsdk"
	"github.com/aussiebroadwan/authkit/pkg/cryptox"
	"github.com/aussiebroadwan/authkit/pkg/httpx"
	"github.com/aussiebroadwan/authkit/pkg/jwtx"
	"github.com/aussiebroadwan/authkit/pkg/metrics"
	"github.com/aussiebroadwan/authkit/pkg/slogx"
)

// Defaults applied by New.
const (
	DefaultSessionTTL = 10 * time.Minute
	DefaultRefreshTTL = 30 * 24 * time.Hour
	DefaultOTPCode    = "123456"
	DefaultKeyID      = "dev-1"
)

// ErrUnknownPendingRef is returned by VerifyEnchantedLink for a ref the
// server never issued.
var ErrUnknownPendingRef = errors.New("devserver: unknown pending ref")

// Config configures a Server. Only ProjectID is required.
type Config struct {
	ProjectID string

	// IssuerBase prefixes the iss claim; the project id is appended as the
	// last path segment. Defaults to authsdk.DefaultBaseURL.
	IssuerBase string

	SessionTTL time.Duration
	RefreshTTL time.Duration

	// OTPCode is the code every OTP verification accepts.
	OTPCode string

	// RotateRefresh issues a new refresh JWT on every refresh and revokes
	// the old one.
	RotateRefresh bool

	// VerifyLimit throttles code and password checks per project and
	// caller. Defaults to httpx.StrictLimit.
	VerifyLimit httpx.RateLimitConfig

	// Signer signs tokens. A fresh EdDSA key is generated when nil.
	Signer *jwtx.Signer

	// PasswordPepper is mixed into every stored password hash.
	PasswordPepper []byte

	// Registry, when set, is served at GET /metrics.
	Registry *prometheus.Registry

	Logger *slog.Logger
	Now    func() time.Time
}

// Server implements http.Handler.
type Server struct {
	cfg    Config
	signer *jwtx.Signer
	keys   *jwtx.KeySet
	hasher *cryptox.PasswordHasher
	logger *slog.Logger
	router chi.Router

	refreshes atomic.Int64

	mu       sync.Mutex
	accounts map[string]*account // by login id
	pending  map[string]*pendingLink
	revoked  map[string]struct{} // cryptox.Fingerprint of refresh JWTs
	failures map[string]*Failure // by request path
}

// New builds a Server with cfg's defaults filled in.
func New(cfg Config) (*Server, error) {
	if cfg.ProjectID == "" {
		return nil, authsdk.ErrMissingProjectID
	}
	if cfg.IssuerBase == "" {
		cfg.IssuerBase = authsdk.DefaultBaseURL
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	if cfg.OTPCode == "" {
		cfg.OTPCode = DefaultOTPCode
	}
	if !cfg.VerifyLimit.Enabled() {
		cfg.VerifyLimit = httpx.StrictLimit
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	signer := cfg.Signer
	if signer == nil {
		pemKey, err := cryptox.GenerateSigningKey(cryptox.AlgEdDSA)
		if err != nil {
			return nil, err
		}
		if signer, err = jwtx.NewSigner(DefaultKeyID, pemKey); err != nil {
			return nil, err
		}
	}

	keys := jwtx.NewKeySet()
	if err := keys.AddJWK(signer.PublicJWK()); err != nil {
		return nil, err
	}

	s := &Server{
		cfg:      cfg,
		signer:   signer,
		keys:     keys,
		hasher:   cryptox.NewPasswordHasher(cfg.PasswordPepper),
		logger:   slogx.OrDiscard(cfg.Logger),
		accounts: make(map[string]*account),
		pending:  make(map[string]*pendingLink),
		revoked:  make(map[string]struct{}),
		failures: make(map[string]*Failure),
	}
	s.router = s.routes()
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ProjectID returns the project the server issues tokens for.
func (s *Server) ProjectID() string { return s.cfg.ProjectID }

// KeySet returns the server's public keys.
func (s *Server) KeySet() *jwtx.KeySet { return s.keys }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	// Failure injection sits outside the logger so dropped connections can
	// still hijack the raw writer.
	r.Use(s.injectFailures)
	r.Use(slogx.HTTPMiddleware(s.logger))

	r.Get("/v1/keys/{projectId}", s.handleJWKS)
	r.Post("/dev/enchantedlink/verify", s.handleDevVerifyLink)
	if s.cfg.Registry != nil {
		r.Handle("/metrics", metrics.HandlerFor(s.cfg.Registry))
	}

	r.Route("/v1/auth", func(r chi.Router) {
		r.Use(httpx.BearerMiddleware(s.cfg.ProjectID))

		// Code and password checks are guessable; throttle per project and
		// caller address.
		verify := httpx.RateLimitByProjectAndIP(s.cfg.VerifyLimit)

		r.Post("/otp/signin/{method}", s.handleOTPSignIn)
		r.With(verify).Post("/otp/verify/{method}", s.handleOTPVerify)
		r.With(verify).Post("/password/signin", s.handlePasswordSignIn)
		r.With(verify).Post("/totp/verify", s.handleTOTPVerify)
		r.Post("/totp/update", s.handleTOTPUpdate)
		r.Post("/enchantedlink/signin/email", s.handleEnchantedSignIn)
		r.Post("/enchantedlink/pending-session", s.handlePendingSession)

		r.Post("/refresh", s.handleRefresh)
		r.Get("/me", s.handleMe)
		r.Post("/logout", s.handleLogout)
	})

	return r
}

func writeError(w http.ResponseWriter, status int, code, description string) {
	httpx.WriteError(w, status, httpx.ErrorBody{Code: code, Description: description})
}

func writeBadRequest(w http.ResponseWriter, description string) {
	writeError(w, http.StatusBadRequest, authsdk.ErrCodeBadRequest, description)
}
