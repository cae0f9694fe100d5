package commands

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"gtasksync/internal/app"
	"gtasksync/internal/config"
	"gtasksync/internal/exitcode"
	"gtasksync/internal/service"
)

func init() {
	Register(&ImportCmd{})
}

// ImportCmd implements the import command.
type ImportCmd struct{}

func (c *ImportCmd) Name() string      { return "import" }
func (c *ImportCmd) Aliases() []string { return nil }
func (c *ImportCmd) Synopsis() string  { return "Load a cache snapshot, migrating older versions" }
func (c *ImportCmd) Usage() string     { return "gtasksync import <snapshot.json>" }
func (c *ImportCmd) NeedsAuth() bool   { return false }

func (c *ImportCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *ImportCmd) Run(ctx context.Context, cfg *config.Config, svc service.Service, args []string, out, errOut io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(errOut, "error: snapshot file required")
		return exitcode.UserError
	}
	f, err := os.Open(args[0])
	if err != nil {
		fmt.Fprintf(errOut, "error: %s\n", err)
		return exitcode.UserError
	}
	defer f.Close()

	a, code := openApp(cfg, nil, errOut, app.Options{Lock: true})
	if a == nil {
		return code
	}
	defer a.Close()

	notices, err := a.Store.Import(f)
	if err != nil {
		fmt.Fprintf(errOut, "error: %s\n", err)
		return exitcode.UserError
	}
	if !cfg.Quiet {
		for _, n := range notices {
			fmt.Fprintln(out, n)
		}
		fmt.Fprintln(out, "ok")
	}
	return exitcode.Success
}
