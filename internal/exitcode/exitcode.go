// Package exitcode defines the process exit codes of gtasksync and maps
// sync errors onto them.
package exitcode

import (
	"errors"

	"gtasksync/internal/cache"
	"gtasksync/internal/config"
	"gtasksync/internal/reconcile"
	"gtasksync/internal/service"
	"gtasksync/internal/vault"
)

const (
	// Success indicates successful completion.
	Success = 0

	// UserError covers bad arguments, unknown documents or projects, and
	// triggers refused because another pass or process holds the vault.
	UserError = 1

	// AuthError indicates missing credentials or configuration.
	AuthError = 2

	// BackendError indicates a remote, network or cache failure.
	BackendError = 3
)

// For returns the exit code for err.
func For(err error) int {
	switch {
	case err == nil:
		return Success
	case errors.Is(err, reconcile.ErrAuthRequired), service.IsAuth(err), errors.Is(err, config.ErrNoVault):
		return AuthError
	case errors.Is(err, reconcile.ErrBusy), errors.Is(err, cache.ErrLocked),
		errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrAmbiguous),
		errors.Is(err, vault.ErrOutsideVault):
		return UserError
	default:
		return BackendError
	}
}
