package app

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aussiebroadwan/authkit/pkg/authsdk"
	"github.com/aussiebroadwan/authkit/pkg/cryptox"
	"github.com/aussiebroadwan/authkit/pkg/metrics"
	"github.com/aussiebroadwan/authkit/pkg/sessionstore"
	"github.com/aussiebroadwan/authkit/pkg/sessionstore/boltstore"
	"github.com/aussiebroadwan/authkit/pkg/sessionstore/filestore"
	"github.com/aussiebroadwan/authkit/pkg/sessionstore/memory"
	"github.com/aussiebroadwan/authkit/pkg/sessionstore/sqlitestore"
	"github.com/aussiebroadwan/authkit/pkg/slogx"
)

// BuildVersion should be set at build time via ldflags.
var BuildVersion = "v0.1.0"

// sealerInfo scopes the storage key so the master key can be reused for
// other data without sharing derived keys.
const sealerInfo = "authkit/session-store/v1"

// Application wires the SDK for the CLI: logger, metrics, REST client and a
// session manager over the configured store.
type Application struct {
	cfg      Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	client  *authsdk.Client
	store   authsdk.Store
	files   *filestore.Store
	sealer  *cryptox.Sealer
	manager *authsdk.SessionManager
	closers []io.Closer
}

// New validates cfg and builds every dependency. Logs go to logOut.
func New(cfg Config, logOut io.Writer) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "authkit",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
			Output:  logOut,
		}),
	}
	app.registry, app.metrics = metrics.NewRegistry()

	client, err := authsdk.NewClient(authsdk.Config{
		ProjectID: cfg.ProjectID,
		BaseURL:   cfg.BaseURL,
		Logger:    app.logger,
		Unsafe:    cfg.UnsafeLogging,
		Metrics:   app.metrics,
	})
	if err != nil {
		return nil, err
	}
	app.client = client

	if err := app.initStore(); err != nil {
		app.Close()
		return nil, err
	}

	app.manager = authsdk.NewSessionManager(client, authsdk.ManagerOptions{
		Store: app.store,
		Lifecycle: authsdk.LifecycleConfig{
			Period:           cfg.RefreshPeriod,
			AllowedStaleness: cfg.Staleness,
		},
	})
	return app, nil
}

func (app *Application) Config() Config                 { return app.cfg }
func (app *Application) Logger() *slog.Logger           { return app.logger }
func (app *Application) Registry() *prometheus.Registry { return app.registry }
func (app *Application) Client() *authsdk.Client        { return app.client }
func (app *Application) Manager() *authsdk.SessionManager {
	return app.manager
}

// FileStore returns the underlying file store when the file backend is in
// use, for watching.
func (app *Application) FileStore() (*filestore.Store, bool) {
	return app.files, app.files != nil
}

// Close stops the manager and releases stores and key material.
func (app *Application) Close() {
	if app.manager != nil {
		app.manager.Close()
	}
	for _, c := range app.closers {
		if err := c.Close(); err != nil {
			app.logger.Error("error closing store", "error", err)
		}
	}
	app.closers = nil
	if app.sealer != nil {
		app.sealer.Destroy()
		app.sealer = nil
	}
}

// initStore opens the configured backend. Persistent backends are wrapped
// in an encrypted store.
func (app *Application) initStore() error {
	var inner authsdk.Store

	switch app.cfg.Store {
	case StoreMemory:
		app.store = memory.New()
		return nil
	case StoreNone:
		app.store = sessionstore.Noop{}
		return nil

	case StoreFile:
		fs, err := filestore.New(app.cfg.StorePath, app.logger)
		if err != nil {
			return fmt.Errorf("failed to open file store: %w", err)
		}
		app.files = fs
		inner = fs

	case StoreBolt:
		if err := os.MkdirAll(app.cfg.StorePath, 0o700); err != nil {
			return fmt.Errorf("failed to create store directory: %w", err)
		}
		bs, err := boltstore.Open(filepath.Join(app.cfg.StorePath, "sessions.bolt"))
		if err != nil {
			return fmt.Errorf("failed to open bolt store: %w", err)
		}
		app.closers = append(app.closers, bs)
		inner = bs

	case StoreSQLite:
		if err := os.MkdirAll(app.cfg.StorePath, 0o700); err != nil {
			return fmt.Errorf("failed to create store directory: %w", err)
		}
		dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)",
			filepath.Join(app.cfg.StorePath, "sessions.db"))
		ss, err := sqlitestore.Open(dsn)
		if err != nil {
			return fmt.Errorf("failed to open sqlite store: %w", err)
		}
		app.closers = append(app.closers, ss)
		inner = ss

	default:
		return fmt.Errorf("unknown store %q", app.cfg.Store)
	}

	key, err := cryptox.LoadKeyMaterial(app.cfg.MasterKeyPath)
	if errors.Is(err, cryptox.ErrNoKeyMaterial) {
		return fmt.Errorf("store %q needs a master key: set %s or master_key_path (see `authkit keygen`)",
			app.cfg.Store, cryptox.MasterKeyEnv)
	}
	if err != nil {
		return err
	}
	app.sealer, err = cryptox.NewSealer(key, sealerInfo)
	if err != nil {
		return fmt.Errorf("failed to derive storage key: %w", err)
	}

	app.store = sessionstore.Encrypted(inner, app.sealer, app.logger)
	app.logger.Debug("session store ready", "store", app.cfg.Store, "path", app.cfg.StorePath)
	return nil
}
