package commands

import (
	"errors"
	"fmt"
	"io"

	"gtasksync/internal/app"
	"gtasksync/internal/config"
	"gtasksync/internal/exitcode"
	"gtasksync/internal/service"
	"gtasksync/internal/vault"
)

// openApp opens the configured vault and reports failures on errOut.
// The returned code is meaningful only when the App is nil.
func openApp(cfg *config.Config, svc service.Service, errOut io.Writer, opts app.Options) (*app.App, int) {
	a, err := app.Open(cfg, svc, errOut, opts)
	if err != nil {
		if errors.Is(err, config.ErrNoVault) {
			fmt.Fprintf(errOut, "error: %s (set it in %s, pass --vault-dir or run: gtasksync init --vault <dir>)\n", err, cfg.SettingsPath())
			return nil, exitcode.AuthError
		}
		fmt.Fprintf(errOut, "error: %s\n", err)
		return nil, exitcode.For(err)
	}
	return a, exitcode.Success
}

// resolveDoc turns a vault-relative or filesystem path into a vault path.
func resolveDoc(v *vault.FS, arg string) (string, error) {
	if v.Exists(arg) {
		return arg, nil
	}
	return v.Rel(arg)
}
