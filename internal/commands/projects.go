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
	"gtasksync/internal/service"
)

func init() {
	Register(&ProjectsCmd{})
}

// ProjectsCmd implements the projects command.
type ProjectsCmd struct{}

func (c *ProjectsCmd) Name() string      { return "projects" }
func (c *ProjectsCmd) Aliases() []string { return []string{"lists"} }
func (c *ProjectsCmd) Synopsis() string  { return "Refresh and list task lists" }
func (c *ProjectsCmd) Usage() string     { return "gtasksync projects" }
func (c *ProjectsCmd) NeedsAuth() bool   { return true }
func (c *ProjectsCmd) NeedsVault() bool  { return true }

func (c *ProjectsCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *ProjectsCmd) Run(ctx context.Context, cfg *config.Config, svc service.Service, args []string, out, errOut io.Writer) int {
	a, code := openApp(cfg, svc, errOut, app.Options{Lock: true, NeedVault: true})
	if a == nil {
		return code
	}
	defer a.Close()

	if _, err := a.Engine.RefreshProjects(ctx); err != nil {
		fmt.Fprintf(errOut, "error: %s\n", err)
		return exitcode.For(err)
	}
	snap := a.Store.Snapshot()
	defaultID := snap.Settings.DefaultProjectID
	if a.Settings.DefaultProjectID != "" {
		defaultID = a.Settings.DefaultProjectID
	}
	output.FormatProjects(out, snap.Projects, snap.ProjectGroups, defaultID)
	return exitcode.Success
}
