package commands

import (
	"context"
	"flag"
	"fmt"
	"io"
	"runtime/debug"

	"gtasksync/internal/cache"
	"gtasksync/internal/config"
	"gtasksync/internal/exitcode"
	"gtasksync/internal/service"
)

// Version is the application version. Set at build time.
var Version = "0.1.0"

func init() {
	Register(&VersionCmd{})
}

// VersionCmd prints the version, and with --verbose the cache format and
// toolchain it was built with.
type VersionCmd struct {
	verbose bool
}

func (c *VersionCmd) Name() string      { return "version" }
func (c *VersionCmd) Aliases() []string { return nil }
func (c *VersionCmd) Synopsis() string  { return "Print version and cache format" }
func (c *VersionCmd) Usage() string     { return "gtasksync version [--verbose]" }
func (c *VersionCmd) NeedsAuth() bool   { return false }

func (c *VersionCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.BoolVar(&c.verbose, "verbose", false, "also print cache format and build info")
}

func (c *VersionCmd) Run(ctx context.Context, cfg *config.Config, svc service.Service, args []string, out, errOut io.Writer) int {
	fmt.Fprintf(out, "gtasksync %s\n", Version)
	if !c.verbose {
		return exitcode.Success
	}
	fmt.Fprintf(out, "cache format: %s\n", cache.CurrentVersion)
	if info, ok := debug.ReadBuildInfo(); ok {
		fmt.Fprintf(out, "go: %s\n", info.GoVersion)
	}
	return exitcode.Success
}
