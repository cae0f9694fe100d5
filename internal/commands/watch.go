package commands

import (
	"context"
	"flag"
	"fmt"
	"io"
	"sync"

	"gtasksync/internal/app"
	"gtasksync/internal/config"
	"gtasksync/internal/daemon"
	"gtasksync/internal/events"
	"gtasksync/internal/exitcode"
	"gtasksync/internal/output"
	"gtasksync/internal/reconcile"
	"gtasksync/internal/service"
)

func init() {
	Register(&WatchCmd{})
}

// WatchCmd implements the watch command.
type WatchCmd struct{}

func (c *WatchCmd) Name() string      { return "watch" }
func (c *WatchCmd) Aliases() []string { return []string{"daemon"} }
func (c *WatchCmd) Synopsis() string  { return "Keep the vault in sync until interrupted" }
func (c *WatchCmd) Usage() string     { return "gtasksync watch" }
func (c *WatchCmd) NeedsAuth() bool   { return true }
func (c *WatchCmd) NeedsVault() bool  { return true }

func (c *WatchCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *WatchCmd) Run(ctx context.Context, cfg *config.Config, svc service.Service, args []string, out, errOut io.Writer) int {
	a, code := openApp(cfg, svc, errOut, app.Options{Lock: true, NeedVault: true})
	if a == nil {
		return code
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
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		printReports(ctx, a.Engine.Results(), out, cfg.Quiet)
	}()

	err := d.Run(ctx)
	cancel()
	wg.Wait()
	if err != nil {
		fmt.Fprintf(errOut, "error: %s\n", err)
		return exitcode.For(err)
	}
	return exitcode.Success
}

// printReports writes every report that changed something or carries
// notices until ctx is done.
func printReports(ctx context.Context, results <-chan reconcile.Report, out io.Writer, quiet bool) {
	for {
		select {
		case <-ctx.Done():
			return
		case r := <-results:
			if quiet || (!r.Changed() && len(r.Notices) == 0) {
				continue
			}
			output.FormatReport(out, r)
		}
	}
}
