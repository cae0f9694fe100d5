// Package main is the entry point for the gtasksync CLI.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"gtasksync/internal/backend/googletasks"
	"gtasksync/internal/cli"
	"gtasksync/internal/commands"
	"gtasksync/internal/config"
	"gtasksync/internal/service"
)

func main() {
	// Cancel on interrupt so watch can unload cleanly
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	factory := func(ctx context.Context, cfg *config.Config) (service.Service, error) {
		return googletasks.New(ctx, cfg)
	}

	dispatcher := cli.NewDispatcher(commands.DefaultRegistry, factory)

	code := dispatcher.Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
