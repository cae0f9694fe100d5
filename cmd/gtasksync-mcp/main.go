// Package main serves the sync daemon to an editor host over MCP stdio.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/mark3labs/mcp-go/server"

	"gtasksync/internal/app"
	"gtasksync/internal/backend/googletasks"
	"gtasksync/internal/commands"
	"gtasksync/internal/config"
	"gtasksync/internal/daemon"
	"gtasksync/internal/events"
	"gtasksync/internal/mcptools"
)

func main() {
	configDir := flag.String("config", "", "config directory")
	vaultDir := flag.String("vault-dir", "", "vault root, overriding vault_path")
	debug := flag.Bool("debug", false, "debug logging")
	flag.Parse()

	if err := run(*configDir, *vaultDir, *debug); err != nil {
		fmt.Fprintf(os.Stderr, "gtasksync-mcp: %v\n", err)
		os.Exit(1)
	}
}

func run(configDir, vaultDir string, debug bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.New(configDir)
	if err != nil {
		return err
	}
	cfg.Debug = debug
	cfg.VaultPath = vaultDir

	svc, err := googletasks.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("%w (run: gtasksync login)", err)
	}

	// stdout carries the protocol, so logs go to stderr
	a, err := app.Open(cfg, svc, os.Stderr, app.Options{Lock: true, NeedVault: true})
	if err != nil {
		return err
	}
	defer a.Close()

	d := daemon.New(daemon.Config{
		Engine:    a.Engine,
		Events:    events.NewDispatcher(events.WithLogger(a.Logger)),
		Watcher:   a.Vault,
		Backup:    a.Store,
		BackupDir: cfg.BackupPath(),
		Settings:  a.Settings,
		Logger:    a.Logger.With("component", "daemon"),
	})

	ctx, cancel := context.WithCancel(ctx)
	var (
		wg     sync.WaitGroup
		runErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		runErr = d.Run(ctx)
		if runErr != nil {
			a.Logger.Error("sync daemon stopped", "err", runErr)
		}
	}()

	s := server.NewMCPServer(
		"gtasksync-mcp",
		commands.Version,
		server.WithToolCapabilities(true),
	)
	mcptools.Register(s, d, a.Engine, a.Vault)

	serveErr := server.ServeStdio(s)
	cancel()
	wg.Wait()
	return errors.Join(serveErr, runErr)
}
