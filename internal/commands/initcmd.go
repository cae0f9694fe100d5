package commands

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"gtasksync/internal/config"
	"gtasksync/internal/exitcode"
	"gtasksync/internal/service"
)

func init() {
	Register(&InitCmd{})
}

// InitCmd implements the init command.
type InitCmd struct {
	vault string
}

func (c *InitCmd) Name() string      { return "init" }
func (c *InitCmd) Aliases() []string { return nil }
func (c *InitCmd) Synopsis() string  { return "Write a default config.yaml" }
func (c *InitCmd) Usage() string     { return "gtasksync init [--vault <dir>]" }
func (c *InitCmd) NeedsAuth() bool   { return false }

func (c *InitCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.vault, "vault", "", "")
}

func (c *InitCmd) Run(ctx context.Context, cfg *config.Config, svc service.Service, args []string, out, errOut io.Writer) int {
	if err := cfg.EnsureDir(); err != nil {
		fmt.Fprintf(errOut, "error: %s\n", err)
		return exitcode.AuthError
	}
	err := config.WriteDefaultSettings(cfg.SettingsPath(), c.vault)
	if errors.Is(err, os.ErrExist) {
		fmt.Fprintf(errOut, "error: %s already exists\n", cfg.SettingsPath())
		return exitcode.UserError
	}
	if err != nil {
		fmt.Fprintf(errOut, "error: %s\n", err)
		return exitcode.AuthError
	}
	if !cfg.Quiet {
		fmt.Fprintln(out, cfg.SettingsPath())
	}
	return exitcode.Success
}
