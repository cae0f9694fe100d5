package commands

import (
	"context"
	"flag"
	"fmt"
	"io"

	"gtasksync/internal/app"
	"gtasksync/internal/config"
	"gtasksync/internal/exitcode"
	"gtasksync/internal/service"
)

func init() {
	Register(&DefaultProjectCmd{})
}

// DefaultProjectCmd implements the default-project command.
type DefaultProjectCmd struct {
	vaultWide bool
}

func (c *DefaultProjectCmd) Name() string      { return "default-project" }
func (c *DefaultProjectCmd) Aliases() []string { return nil }
func (c *DefaultProjectCmd) Synopsis() string  { return "Set the task list new tasks are created in" }
func (c *DefaultProjectCmd) Usage() string {
	return "gtasksync default-project <path> <project-name> | --vault <project-name>"
}
func (c *DefaultProjectCmd) NeedsAuth() bool  { return true }
func (c *DefaultProjectCmd) NeedsVault() bool { return true }

func (c *DefaultProjectCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.BoolVar(&c.vaultWide, "vault", false, "")
}

func (c *DefaultProjectCmd) Run(ctx context.Context, cfg *config.Config, svc service.Service, args []string, out, errOut io.Writer) int {
	want := 2
	if c.vaultWide {
		want = 1
	}
	if len(args) != want {
		fmt.Fprintf(errOut, "error: usage: %s\n", c.Usage())
		return exitcode.UserError
	}

	a, code := openApp(cfg, svc, errOut, app.Options{Lock: true, NeedVault: true})
	if a == nil {
		return code
	}
	defer a.Close()

	path := ""
	if !c.vaultWide {
		p, err := resolveDoc(a.Vault, args[0])
		if err != nil {
			fmt.Fprintf(errOut, "error: %s\n", err)
			return exitcode.UserError
		}
		path = p
	}

	project, err := svc.ResolveProject(ctx, args[len(args)-1])
	if err != nil {
		fmt.Fprintf(errOut, "error: %s\n", err)
		return exitcode.For(err)
	}
	if _, err := a.Engine.RefreshProjects(ctx); err != nil {
		fmt.Fprintf(errOut, "error: %s\n", err)
		return exitcode.For(err)
	}
	if _, err := a.Engine.SetDefaultProject(path, project.ID); err != nil {
		fmt.Fprintf(errOut, "error: %s\n", err)
		return exitcode.For(err)
	}
	if !cfg.Quiet {
		fmt.Fprintln(out, "ok")
	}
	return exitcode.Success
}
