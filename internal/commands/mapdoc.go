package commands

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"gtasksync/internal/config"
	"gtasksync/internal/exitcode"
	"gtasksync/internal/filemap"
	"gtasksync/internal/outline"
	"gtasksync/internal/output"
	"gtasksync/internal/service"
)

func init() {
	Register(&MapCmd{})
}

// MapCmd implements the map command.
type MapCmd struct{}

func (c *MapCmd) Name() string      { return "map" }
func (c *MapCmd) Aliases() []string { return nil }
func (c *MapCmd) Synopsis() string  { return "Print the synced tasks of a document as JSON" }
func (c *MapCmd) Usage() string     { return "gtasksync map <path>" }
func (c *MapCmd) NeedsAuth() bool   { return false }

func (c *MapCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *MapCmd) Run(ctx context.Context, cfg *config.Config, svc service.Service, args []string, out, errOut io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(errOut, "error: document path required")
		return exitcode.UserError
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(errOut, "error: %s\n", err)
		return exitcode.UserError
	}

	o, err := outline.Parse(data)
	var m *filemap.Map
	if err == nil {
		m, err = filemap.Build(string(data), &o)
	}
	if err != nil {
		fmt.Fprintf(errOut, "error: %s\n", err)
		return exitcode.UserError
	}
	if err := output.FormatMap(out, args[0], m); err != nil {
		fmt.Fprintf(errOut, "error: %s\n", err)
		return exitcode.BackendError
	}
	return exitcode.Success
}
