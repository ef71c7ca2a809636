// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// app.go - Wires configuration into the running services.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/jeranaias/bcard-tui/internal/auth"
	"github.com/jeranaias/bcard-tui/internal/cardapi"
	"github.com/jeranaias/bcard-tui/internal/config"
	"github.com/jeranaias/bcard-tui/internal/logging"
	"github.com/jeranaias/bcard-tui/internal/security"
	"github.com/jeranaias/bcard-tui/internal/storage"
)

// App holds the services shared by the CLI commands and the TUI.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Store    storage.Store
	Guard    *security.AttemptGuard
	Sessions *security.SessionStore
	API      *cardapi.Client
	Auth     *auth.Service

	storageCfg storage.Config
	closers    []io.Closer
}

type appOptions struct {
	store      storage.Store
	logger     *slog.Logger
	httpClient *http.Client
	clock      security.Clock
	notifier   security.Notifier
	getenv     func(string) string
}

// AppOption customizes Bootstrap.
type AppOption func(*appOptions)

// WithStore uses store instead of opening the configured backend.
func WithStore(store storage.Store) AppOption {
	return func(o *appOptions) { o.store = store }
}

// WithAppLogger uses logger instead of opening the configured log file.
func WithAppLogger(logger *slog.Logger) AppOption {
	return func(o *appOptions) { o.logger = logger }
}

// WithAppHTTPClient sets the HTTP client used by the API client.
func WithAppHTTPClient(hc *http.Client) AppOption {
	return func(o *appOptions) { o.httpClient = hc }
}

// WithAppClock sets the clock used by the guard and sessions.
func WithAppClock(c security.Clock) AppOption {
	return func(o *appOptions) { o.clock = c }
}

// WithEventNotifier receives guard and sign-in events.
func WithEventNotifier(n security.Notifier) AppOption {
	return func(o *appOptions) { o.notifier = n }
}

// WithGetenv replaces os.Getenv for the passphrase lookup.
func WithGetenv(fn func(string) string) AppOption {
	return func(o *appOptions) { o.getenv = fn }
}

// Bootstrap opens storage and builds the services described by cfg.
// Close the returned App when done.
func Bootstrap(ctx context.Context, cfg *config.Config, verbose bool, opts ...AppOption) (_ *App, err error) {
	o := appOptions{getenv: os.Getenv}
	for _, opt := range opts {
		opt(&o)
	}

	app := &App{Config: cfg}
	defer func() {
		if err != nil {
			_ = app.Close()
		}
	}()

	app.Logger = o.logger
	if app.Logger == nil {
		logPath, err := cfg.LogPath()
		if err != nil {
			return nil, err
		}
		logger, closer, err := logging.New(logging.Options{
			Level:   cfg.Log.Level,
			Path:    logPath,
			Verbose: verbose,
		})
		if err != nil {
			return nil, fmt.Errorf("open log: %w", err)
		}
		app.Logger = logger
		app.closers = append(app.closers, closer)
	}

	statePath, err := cfg.StatePath()
	if err != nil {
		return nil, err
	}
	app.storageCfg = storage.Config{
		Driver: cfg.Storage.Backend,
		Path:   statePath,
		Redis: storage.RedisConfig{
			URL:    cfg.Storage.RedisURL,
			Prefix: cfg.Storage.RedisPrefix,
		},
		LockTimeout: cfg.LockTimeout(),
		Logger:      app.Logger,
	}

	store := o.store
	if store == nil {
		if store, err = storage.Open(ctx, app.storageCfg); err != nil {
			return nil, fmt.Errorf("open %s storage: %w", app.storageCfg.Driver, err)
		}
	}
	if cfg.Security.EncryptToken {
		key, err := tokenKey(cfg, o.getenv)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		sealed, err := storage.NewSealed(store, key, security.TokenKey)
		storage.ZeroBytes(key)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		store = sealed
	}
	app.Store = store
	app.closers = append(app.closers, store)

	notifier := o.notifier
	if notifier == nil {
		notifier = security.NotifierFunc(func(security.Event) {})
	}

	guardOpts := []security.AttemptGuardOption{
		security.WithMaxAttempts(cfg.Security.MaxLoginAttempts),
		security.WithLockoutDuration(cfg.LockoutDuration()),
		security.WithNotifier(notifier),
		security.WithLogger(app.Logger),
	}
	sessionOpts := []security.SessionOption{
		security.WithAuthHeader(cfg.API.AuthHeader),
		security.WithSessionLogger(app.Logger),
	}
	serviceOpts := []auth.Option{
		auth.WithNotifier(notifier),
		auth.WithLogger(app.Logger),
	}
	if o.clock != nil {
		guardOpts = append(guardOpts, security.WithClock(o.clock))
		sessionOpts = append(sessionOpts, security.WithSessionClock(o.clock))
		serviceOpts = append(serviceOpts, auth.WithClock(o.clock))
	}

	app.Guard = security.NewAttemptGuard(store, guardOpts...)
	app.Sessions = security.NewSessionStore(store, sessionOpts...)

	clientOpts := []cardapi.Option{
		cardapi.WithAuth(app.Sessions),
		cardapi.WithRateLimit(cfg.API.RequestsPerSecond),
		cardapi.WithMaxRetries(cfg.API.MaxRetries),
		cardapi.WithTimeout(cfg.Timeout()),
		cardapi.WithLogger(app.Logger),
	}
	if o.httpClient != nil {
		clientOpts = append(clientOpts, cardapi.WithHTTPClient(o.httpClient))
	}
	app.API = cardapi.NewClient(cfg.API.BaseURL, clientOpts...)
	app.Auth = auth.NewService(app.Guard, app.Sessions, app.API, app.API, serviceOpts...)

	return app, nil
}

// tokenKey derives the sealing key from the configured passphrase
// variable, or loads the key file.
func tokenKey(cfg *config.Config, getenv func(string) string) ([]byte, error) {
	if name := cfg.Security.PassphraseEnv; name != "" {
		if pass := getenv(name); pass != "" {
			saltPath, err := cfg.SaltPath()
			if err != nil {
				return nil, err
			}
			salt, err := storage.LoadOrCreateSalt(saltPath)
			if err != nil {
				return nil, fmt.Errorf("load token salt: %w", err)
			}
			return storage.DeriveKey(pass, salt, storage.PBKDF2Iterations), nil
		}
	}
	keyPath, err := cfg.KeyPath()
	if err != nil {
		return nil, err
	}
	key, err := storage.LoadOrCreateKey(keyPath)
	if err != nil {
		return nil, fmt.Errorf("load token key: %w", err)
	}
	return key, nil
}

// Watch starts a storage watcher that calls onChange when another process
// changes the persisted state. It returns nil when watching is disabled or
// the backend has no local files.
func (a *App) Watch(onChange func()) (*storage.Watcher, error) {
	if !a.Config.Storage.Watch {
		return nil, nil
	}
	paths := storage.WatchPaths(a.storageCfg)
	if len(paths) == 0 {
		return nil, nil
	}
	w, err := storage.NewWatcher(paths, storage.DefaultDebounce, onChange, a.Logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, w)
	return w, nil
}

// Close releases everything Bootstrap opened, in reverse order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
