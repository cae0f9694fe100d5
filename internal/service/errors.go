package service

import (
	"errors"
	"fmt"
)

var (
	// ErrAuth indicates rejected or expired credentials. It is not retried.
	ErrAuth = errors.New("auth error")

	// ErrTransient indicates a failure worth retrying (timeouts, rate limits, 5xx).
	ErrTransient = errors.New("transient error")

	// ErrNotFound indicates the addressed project or task does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAmbiguous indicates a name matched more than one project.
	ErrAmbiguous = errors.New("ambiguous")

	// ErrRejected indicates the remote refused the request for a reason
	// retrying will not fix.
	ErrRejected = errors.New("rejected")
)

// RemoteError is a classified failure of one remote operation.
type RemoteError struct {
	Op   string
	Kind error
	Err  error
}

func (e *RemoteError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *RemoteError) Unwrap() []error { return []error{e.Kind, e.Err} }

// IsAuth reports whether err is a credentials failure.
func IsAuth(err error) bool { return errors.Is(err, ErrAuth) }

// IsTransient reports whether err may succeed on retry.
func IsTransient(err error) bool { return errors.Is(err, ErrTransient) }

// IsNotFound reports whether err is a missing project or task.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
