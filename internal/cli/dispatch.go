// Package cli turns command-line arguments into a configured command run:
// common flags, config, the Google Tasks backend and a vault check.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"gtasksync/internal/commands"
	"gtasksync/internal/config"
	"gtasksync/internal/exitcode"
	"gtasksync/internal/service"
)

// ServiceFactory builds the backend for commands that need one.
type ServiceFactory func(ctx context.Context, cfg *config.Config) (service.Service, error)

// Dispatcher routes arguments to registered commands.
type Dispatcher struct {
	registry *commands.Registry
	factory  ServiceFactory
}

// NewDispatcher returns a dispatcher over registry. A nil factory makes
// every command that needs the backend fail with a credentials hint.
func NewDispatcher(registry *commands.Registry, factory ServiceFactory) *Dispatcher {
	return &Dispatcher{registry: registry, factory: factory}
}

// commonFlags are accepted by every command.
type commonFlags struct {
	configDir string
	vaultDir  string
	quiet     bool
	debug     bool
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configDir, "config", "", "")
	fs.StringVar(&c.vaultDir, "vault-dir", "", "")
	fs.BoolVar(&c.quiet, "quiet", false, "")
	fs.BoolVar(&c.debug, "debug", false, "")
}

func (c *commonFlags) config() (*config.Config, error) {
	cfg, err := config.New(c.configDir)
	if err != nil {
		return nil, err
	}
	cfg.Quiet = c.quiet
	cfg.Debug = c.debug
	cfg.VaultPath = c.vaultDir
	return cfg, nil
}

// Run dispatches args and returns the process exit code. No arguments
// show help.
func (d *Dispatcher) Run(ctx context.Context, args []string, out, errOut io.Writer) int {
	name := "help"
	if len(args) > 0 {
		name, args = args[0], args[1:]
	}
	if strings.HasPrefix(name, "-") {
		fmt.Fprintf(errOut, "error: unknown command: %s\n", name)
		return exitcode.UserError
	}
	cmd, ok := d.registry.Find(name)
	if !ok {
		fmt.Fprintf(errOut, "error: unknown command: %s\n", name)
		return exitcode.UserError
	}
	return d.run(ctx, cmd, args, out, errOut)
}

func (d *Dispatcher) run(ctx context.Context, cmd commands.Command, args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet(cmd.Name(), flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var common commonFlags
	common.register(fs)
	cmd.RegisterFlags(fs)

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(errOut, "error: %s\n", flagError(err))
		return exitcode.UserError
	}
	positional := fs.Args()
	if len(positional) > 0 && strings.HasPrefix(positional[0], "-") {
		fmt.Fprintf(errOut, "error: unknown flag: %s\n", positional[0])
		return exitcode.UserError
	}

	cfg, err := common.config()
	if err != nil {
		fmt.Fprintf(errOut, "error: %s\n", err)
		return exitcode.UserError
	}

	var svc service.Service
	if cmd.NeedsAuth() {
		var code int
		if svc, code = d.backend(ctx, cfg, errOut); svc == nil {
			return code
		}
	}
	if vc, ok := cmd.(commands.VaultCommand); ok && vc.NeedsVault() {
		if code := checkVault(cfg, errOut); code != exitcode.Success {
			return code
		}
	}
	return cmd.Run(ctx, cfg, svc, positional, out, errOut)
}

// flagError rewrites flag package errors into the CLI's wording.
func flagError(err error) string {
	msg := err.Error()
	switch {
	case strings.HasPrefix(msg, "flag needs an argument:"):
		return "flag needs an argument: " + strings.TrimSpace(strings.TrimPrefix(msg, "flag needs an argument:"))
	case strings.HasPrefix(msg, "flag provided but not defined:"):
		return "unknown flag: " + strings.TrimSpace(strings.TrimPrefix(msg, "flag provided but not defined:"))
	}
	return msg
}

// backend builds the service. On failure it reports the problem and
// returns a nil service with the exit code to use.
func (d *Dispatcher) backend(ctx context.Context, cfg *config.Config, errOut io.Writer) (service.Service, int) {
	if d.factory == nil {
		switch {
		case !cfg.HasOAuthClient():
			fmt.Fprintf(errOut, "error: oauth_client.json not found in %s\n", cfg.Dir)
			return nil, exitcode.AuthError
		case !cfg.HasToken():
			fmt.Fprintln(errOut, "error: not logged in (run: gtasksync login)")
			return nil, exitcode.AuthError
		}
		fmt.Fprintln(errOut, "error: backend error: no Google Tasks client configured")
		return nil, exitcode.BackendError
	}
	svc, err := d.factory(ctx, cfg)
	if err != nil {
		return nil, reportFactoryError(err, errOut)
	}
	if svc == nil {
		fmt.Fprintln(errOut, "error: backend error: no Google Tasks client configured")
		return nil, exitcode.BackendError
	}
	return svc, exitcode.Success
}

// reportFactoryError classifies a failure to build the backend. Credential
// problems found before any request is made surface as plain errors that
// mention the token, so they are matched by text as well.
func reportFactoryError(err error, errOut io.Writer) int {
	code := exitcode.For(err)
	msg := err.Error()
	if code == exitcode.BackendError && (strings.Contains(msg, "token") || strings.Contains(msg, "auth")) {
		code = exitcode.AuthError
	}
	if code == exitcode.AuthError {
		fmt.Fprintf(errOut, "error: auth error: %s (run: gtasksync login)\n", err)
		return code
	}
	fmt.Fprintf(errOut, "error: backend error: %s\n", err)
	return code
}

// checkVault resolves the vault root of cfg and requires it to be an
// existing directory.
func checkVault(cfg *config.Config, errOut io.Writer) int {
	settings, err := cfg.LoadSettings()
	if err != nil {
		fmt.Fprintf(errOut, "error: %s\n", err)
		return exitcode.UserError
	}
	root, err := settings.Vault()
	if errors.Is(err, config.ErrNoVault) {
		fmt.Fprintf(errOut, "error: %s (set it in %s, pass --vault-dir or run: gtasksync init --vault <dir>)\n", err, cfg.SettingsPath())
		return exitcode.For(err)
	}
	if err != nil {
		fmt.Fprintf(errOut, "error: %s\n", err)
		return exitcode.UserError
	}
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		fmt.Fprintf(errOut, "error: vault not found: %s\n", root)
		return exitcode.UserError
	}
	return exitcode.Success
}
