// Package app wires the cache, vault and reconcile engine of one vault.
package app

import (
	"fmt"
	"io"
	"log/slog"

	"gtasksync/internal/cache"
	"gtasksync/internal/config"
	"gtasksync/internal/reconcile"
	"gtasksync/internal/service"
	"gtasksync/internal/vault"
)

// App is an opened vault with its cache and engine.
type App struct {
	Config   *config.Config
	Settings config.Settings
	Logger   *slog.Logger
	Store    *cache.Store
	Vault    *vault.FS
	Engine   *reconcile.Engine

	unlock func() error
}

// Options controls Open.
type Options struct {
	// Lock takes the cross-process sync lock for the lifetime of the App.
	Lock bool
	// NeedVault fails Open when no vault is configured.
	NeedVault bool
}

// Open loads settings, opens the cache and builds the engine. svc may be
// nil for commands that never reach the remote; such an App has no Engine.
func Open(cfg *config.Config, svc service.Service, logOut io.Writer, opts Options) (*App, error) {
	settings, err := cfg.LoadSettings()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	logger := cfg.Logger(logOut, settings.LogLevel)

	a := &App{Config: cfg, Settings: settings, Logger: logger}
	if root, err := settings.Vault(); err == nil {
		a.Vault = vault.New(root)
	} else if opts.NeedVault {
		return nil, err
	}

	if err := cfg.EnsureDir(); err != nil {
		return nil, fmt.Errorf("create config directory: %w", err)
	}
	store, err := cache.Open(cfg.CachePath(), logger)
	if err != nil {
		return nil, err
	}
	a.Store = store

	if opts.Lock {
		unlock, err := store.Lock()
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		a.unlock = unlock
	}

	if svc != nil && a.Vault != nil {
		env := reconcile.Env{Store: store, Settings: settings}
		a.Engine = reconcile.New(svc, a.Vault, env, logger.With("component", "reconcile"))
	}
	return a, nil
}

// Close unloads the engine, releases the lock and closes the cache.
func (a *App) Close() error {
	if a.Engine != nil {
		a.Engine.Unload()
	}
	if a.unlock != nil {
		if err := a.unlock(); err != nil {
			a.Logger.Warn("releasing sync lock failed", "err", err)
		}
	}
	return a.Store.Close()
}
