// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jeranaias/portalctl/internal/api"
	"github.com/jeranaias/portalctl/internal/auth"
	"github.com/jeranaias/portalctl/internal/config"
	"github.com/jeranaias/portalctl/internal/logging"
	"github.com/jeranaias/portalctl/internal/security"
	"github.com/jeranaias/portalctl/internal/session"
	"github.com/jeranaias/portalctl/internal/storage"
	"github.com/jeranaias/portalctl/internal/telemetry"
)

// SaltFileName is the PBKDF2 salt kept next to the durable store when token
// sealing is enabled.
const SaltFileName = "token.salt"

// Options carries process-level overrides that do not belong in the config
// file.
type Options struct {
	// Console mirrors log entries to a terminal writer (--verbose).
	Console zapcore.WriteSyncer
	// Logger replaces the configured logger entirely. Tests use it.
	Logger *zap.Logger
	// HTTPClient replaces the default transport.
	HTTPClient *http.Client
	// Clock replaces time.Now in the store and controller.
	Clock func() time.Time
}

// App holds the wired components for one process.
type App struct {
	Config     *config.Config
	Logger     *zap.Logger
	Metrics    *telemetry.Metrics
	Durable    storage.Store
	Tab        *storage.FileStore
	Store      *session.Store
	Monitor    *session.Monitor
	Client     *api.Client
	Controller *auth.Controller

	ownsLogger bool
}

// New validates cfg and builds the component graph. The caller must Close
// the returned App.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	a := &App{Config: cfg, Metrics: telemetry.New()}

	if opts.Logger != nil {
		a.Logger = opts.Logger
	} else {
		logFile, err := cfg.LogFile()
		if err != nil {
			return nil, err
		}
		logger, err := logging.New(logging.Options{
			Level:       cfg.Logging.Level,
			Development: cfg.Logging.Development,
			File:        logFile,
			MaxSizeMB:   cfg.Logging.MaxSizeMB,
			MaxBackups:  cfg.Logging.MaxBackups,
			MaxAgeDays:  cfg.Logging.MaxAgeDays,
			Console:     opts.Console,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize logging: %w", err)
		}
		a.Logger = logger
		a.ownsLogger = true
	}

	dir, err := cfg.StorageDir()
	if err != nil {
		return nil, err
	}

	durable, err := openDurable(ctx, cfg, dir)
	if err != nil {
		a.Logger.Error("durable store unavailable", zap.String("backend", cfg.Storage.Backend), zap.Error(err))
		return nil, err
	}
	a.Durable = durable

	scope := session.TabScope(cfg.Session.TabScope)
	a.Tab = session.OpenTabStore(dir, scope, a.Logger.Named("tab"))

	storeOpts := []session.StoreOption{
		session.WithTimeout(cfg.SessionTimeout()),
		session.WithClearOnRead(cfg.Session.ClearOnRead),
		session.WithActivityWriteInterval(cfg.ActivityWriteInterval()),
		session.WithLogger(a.Logger.Named("session")),
		session.WithMetrics(a.Metrics),
	}
	if opts.Clock != nil {
		storeOpts = append(storeOpts, session.WithClock(opts.Clock))
	}
	a.Store = session.NewStore(a.Durable, a.Tab, storeOpts...)

	a.Monitor = session.NewMonitor(a.Store,
		session.WithInterval(cfg.CheckInterval()),
		session.WithMonitorLogger(a.Logger.Named("monitor")),
		session.WithMonitorMetrics(a.Metrics),
	)

	clientOpts := []api.Option{
		api.WithTimeout(cfg.RequestTimeout()),
		api.WithEndpoints(endpointsFrom(cfg.API.Endpoints)),
		api.WithScheme(cfg.Auth.Scheme),
		api.WithUserAgent(cfg.API.UserAgent),
		api.WithRateLimit(cfg.API.RateLimitPerSec, cfg.API.RateBurst),
		api.WithLogger(a.Logger.Named("api")),
		api.WithMetrics(a.Metrics),
	}
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, api.WithHTTPClient(opts.HTTPClient))
	}
	a.Client = api.New(cfg.API.BaseURL, clientOpts...)

	ctrlOpts := []auth.Option{
		auth.WithLogger(a.Logger.Named("auth")),
		auth.WithMetrics(a.Metrics),
		auth.WithLogoutTimeout(cfg.LogoutTimeout()),
		auth.WithTokenTTL(cfg.TokenTTL()),
	}
	if opts.Clock != nil {
		ctrlOpts = append(ctrlOpts, auth.WithClock(opts.Clock))
	}
	a.Controller = auth.NewController(a.Client, a.Store, ctrlOpts...)

	a.Logger.Debug("app initialized",
		zap.String("base_url", a.Client.BaseURL()),
		zap.String("backend", cfg.Storage.Backend),
		zap.String("tab_scope", scope),
		zap.Duration("timeout", cfg.SessionTimeout()),
	)
	return a, nil
}

func openDurable(ctx context.Context, cfg *config.Config, dir string) (storage.Store, error) {
	durable, err := storage.Open(ctx, storage.Options{
		Backend:     cfg.Storage.Backend,
		Dir:         dir,
		RedisAddr:   cfg.Storage.RedisAddr,
		RedisDB:     cfg.Storage.RedisDB,
		RedisPrefix: cfg.Storage.RedisPrefix,
	})
	if err != nil {
		return nil, err
	}
	if !cfg.Security.EncryptToken {
		return durable, nil
	}

	sealer, err := security.NewSealer(cfg.Security.TokenPassphrase, filepath.Join(dir, SaltFileName))
	if err != nil {
		durable.Close()
		return nil, fmt.Errorf("failed to initialize token sealing: %w", err)
	}
	return storage.NewSealed(durable, sealer, session.TokenKey), nil
}

func endpointsFrom(e config.EndpointsConfig) api.Endpoints {
	return api.Endpoints{
		Login:         e.Login,
		Logout:        e.Logout,
		Register:      e.Register,
		VerifyEmail:   e.VerifyEmail,
		PasswordReset: e.PasswordReset,
		Google:        e.Google,
		User:          e.User,
	}
}

// Start arms the activity monitor, runs one immediate check so a session
// that lapsed while the process was not running is cleared, and restores the
// controller state. onExpired may be nil.
func (a *App) Start(onExpired func(session.ExpiryReason)) auth.State {
	a.Monitor.Init(func(reason session.ExpiryReason) {
		a.Controller.Sync()
		if onExpired != nil {
			onExpired(reason)
		}
	})
	a.Monitor.Check()
	return a.Controller.Initialize()
}

// Watch propagates durable token changes made by other terminals when
// session.cross_tab_sync is enabled. It is a no-op otherwise. The controller
// is re-synced before onChange runs.
func (a *App) Watch(ctx context.Context, onChange func(session.ExpiryReason)) error {
	if !a.Config.Session.CrossTabSync {
		return nil
	}
	err := a.Store.Watch(ctx, func(reason session.ExpiryReason) {
		a.Controller.Sync()
		if onChange != nil {
			onChange(reason)
		}
	})
	if errors.Is(err, storage.ErrWatchUnsupported) {
		a.Logger.Warn("cross-tab sync unavailable for this backend", zap.String("backend", a.Config.Storage.Backend))
		return nil
	}
	return err
}

// Close stops the monitor, exports metrics and releases the stores.
func (a *App) Close() error {
	a.Monitor.Destroy()

	var errs []error
	if err := a.Metrics.WriteTextfile(a.Config.Telemetry.MetricsFile); err != nil {
		a.Logger.Warn("metrics export failed", zap.Error(err))
		errs = append(errs, err)
	}
	if err := a.Tab.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := a.Durable.Close(); err != nil {
		errs = append(errs, err)
	}
	if a.ownsLogger {
		_ = a.Logger.Sync()
	}
	return errors.Join(errs...)
}
