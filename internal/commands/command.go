// Package commands implements the gtasksync subcommands. Each command
// registers itself with DefaultRegistry from an init function.
package commands

import (
	"context"
	"flag"
	"io"

	"gtasksync/internal/config"
	"gtasksync/internal/service"
)

// Command is one subcommand.
type Command interface {
	Name() string
	Aliases() []string

	// Synopsis and Usage are shown by help.
	Synopsis() string
	Usage() string

	// NeedsAuth reports whether Run needs a Google Tasks client. The
	// dispatcher passes a nil service to commands that return false.
	NeedsAuth() bool

	// RegisterFlags adds command flags next to the common ones.
	RegisterFlags(fs *flag.FlagSet)

	// Run executes the command with the positional arguments left after
	// flag parsing and returns a process exit code from package exitcode.
	Run(ctx context.Context, cfg *config.Config, svc service.Service, args []string, out, errOut io.Writer) int
}

// VaultCommand is implemented by commands that work on the vault. The
// dispatcher checks that the vault exists before running them.
type VaultCommand interface {
	Command
	NeedsVault() bool
}
