package commands

import (
	"context"
	"flag"
	"fmt"
	"io"

	"gtasksync/internal/app"
	"gtasksync/internal/config"
	"gtasksync/internal/exitcode"
	"gtasksync/internal/output"
	"gtasksync/internal/reconcile"
	"gtasksync/internal/service"
)

func init() {
	Register(&SyncCmd{})
}

// SyncCmd implements the sync command.
type SyncCmd struct {
	doc string
}

// SetDoc sets the document to sync (for testing).
func (c *SyncCmd) SetDoc(path string) {
	c.doc = path
}

func (c *SyncCmd) Name() string      { return "sync" }
func (c *SyncCmd) Aliases() []string { return nil }
func (c *SyncCmd) Synopsis() string  { return "Sync the vault, or one document, with Google Tasks" }
func (c *SyncCmd) Usage() string     { return "gtasksync sync [--doc <path>]" }
func (c *SyncCmd) NeedsAuth() bool   { return true }
func (c *SyncCmd) NeedsVault() bool  { return true }

func (c *SyncCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.doc, "doc", "", "")
	fs.StringVar(&c.doc, "d", "", "")
}

func (c *SyncCmd) Run(ctx context.Context, cfg *config.Config, svc service.Service, args []string, out, errOut io.Writer) int {
	if len(args) > 0 {
		fmt.Fprintf(errOut, "error: unexpected argument: %s\n", args[0])
		return exitcode.UserError
	}
	a, code := openApp(cfg, svc, errOut, app.Options{Lock: true, NeedVault: true})
	if a == nil {
		return code
	}
	defer a.Close()

	var (
		r   *reconcile.Report
		err error
	)
	if c.doc != "" {
		path, perr := resolveDoc(a.Vault, c.doc)
		if perr != nil {
			fmt.Fprintf(errOut, "error: %s\n", perr)
			return exitcode.UserError
		}
		r, err = a.Engine.SyncDocument(ctx, path)
	} else {
		r, err = a.Engine.SyncVault(ctx)
	}

	if r != nil && !cfg.Quiet {
		output.FormatReport(out, *r)
	}
	if err != nil {
		fmt.Fprintf(errOut, "error: %s\n", err)
		return exitcode.For(err)
	}
	return exitcode.Success
}
