package jobregistry

import (
	"errors"
	"fmt"
)

// Sentinel errors for lock store operations.
var (
	// ErrReadFailure indicates a lock file could not be opened or decoded.
	ErrReadFailure = errors.New("lock read failed")

	// ErrWriteFailure indicates a lock file could not be written.
	ErrWriteFailure = errors.New("lock write failed")

	// ErrNotFound indicates no lock exists for the job.
	ErrNotFound = errors.New("job not found")
)

// LockError wraps lock file errors with context.
type LockError struct {
	// Op is the operation that failed (e.g., "read", "write").
	Op string

	// Path is the lock file path.
	Path string

	// Kind is one of the package sentinel errors.
	Kind error

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *LockError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("lock %s %s: %v", e.Op, e.Path, e.Kind)
	}
	return fmt.Sprintf("lock %s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the sentinel and the underlying error for errors.Is/As support.
func (e *LockError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IsReadFailure returns true if the error indicates an unreadable lock.
func IsReadFailure(err error) bool {
	return errors.Is(err, ErrReadFailure)
}

// IsWriteFailure returns true if the error indicates a lock was not written.
func IsWriteFailure(err error) bool {
	return errors.Is(err, ErrWriteFailure)
}

// IsNotFound returns true if the error indicates the job is not tracked.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
