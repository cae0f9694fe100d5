package cache

import (
	"errors"
	"fmt"
)

var (
	// ErrPersist indicates the cache could not be written.
	ErrPersist = errors.New("cache persist failed")

	// ErrLoad indicates the cache could not be read.
	ErrLoad = errors.New("cache load failed")

	// ErrLocked indicates another process holds the sync lock.
	ErrLocked = errors.New("cache locked by another process")

	// ErrMigrate indicates a snapshot could not be brought to the current version.
	ErrMigrate = errors.New("cache migration failed")
)

// Error wraps a storage failure with the operation that hit it.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error { return []error{e.Kind, e.Err} }

func persistErr(op string, err error) error {
	return &Error{Op: op, Kind: ErrPersist, Err: err}
}
