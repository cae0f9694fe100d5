package commands

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"gtasksync/internal/config"
	"gtasksync/internal/exitcode"
	"gtasksync/internal/service"
)

func init() {
	Register(&HelpCmd{})
}

// HelpCmd implements the help command.
type HelpCmd struct{}

func (c *HelpCmd) Name() string      { return "help" }
func (c *HelpCmd) Aliases() []string { return nil }
func (c *HelpCmd) Synopsis() string  { return "Print usage" }
func (c *HelpCmd) Usage() string     { return "gtasksync help" }
func (c *HelpCmd) NeedsAuth() bool   { return false }

func (c *HelpCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *HelpCmd) Run(ctx context.Context, cfg *config.Config, svc service.Service, args []string, out, errOut io.Writer) int {
	writeUsage(out, DefaultRegistry)
	return exitcode.Success
}

// writeUsage lists every registered command with its synopsis.
func writeUsage(w io.Writer, r *Registry) {
	fmt.Fprintln(w, "Usage:")
	for _, cmd := range r.All() {
		fmt.Fprintf(w, "  %-44s %s\n", cmd.Usage(), cmd.Synopsis())
		if aliases := cmd.Aliases(); len(aliases) > 0 {
			fmt.Fprintf(w, "  %-44s (alias: %s)\n", "", strings.Join(aliases, ", "))
		}
	}
	fmt.Fprint(w, helpFooter)
}

const helpFooter = `
Common flags:
  --config <dir>     Override config directory
  --vault-dir <dir>  Override vault_path from the settings file
  --quiet            Suppress informational output
  --debug            Print debug logs to stderr

Tasks are checkbox lines tagged #gtask. Once synced, a line carries
%%[gtask_id:: <id>]%%; leave it in place to keep the line linked.
Indented checkboxes under a synced task become its sub-items.
`
