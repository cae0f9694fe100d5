package reconcile

import "errors"

var (
	// ErrBusy is returned when a pass is already running. The trigger is
	// dropped; the next scheduled or event-driven pass picks up the delta.
	ErrBusy = errors.New("sync pass already running")

	// ErrUnloaded is returned once the engine has been unloaded.
	ErrUnloaded = errors.New("sync engine unloaded")

	// ErrAuthRequired is returned after the remote rejected credentials.
	// Passes short-circuit until ResetAuth is called.
	ErrAuthRequired = errors.New("re-authentication required")
)
