package jobid

import (
	"errors"
	"fmt"
)

// ErrWriteFailure indicates the sequence counter could not be persisted.
var ErrWriteFailure = errors.New("sequence write failed")

// Error wraps sequence file errors with context.
type Error struct {
	// Op is the operation that failed (e.g., "write").
	Op string

	// Path is the sequence file path.
	Path string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("jobid %s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() []error {
	return []error{ErrWriteFailure, e.Err}
}

// IsWriteFailure returns true if the error indicates the counter was not saved.
func IsWriteFailure(err error) bool {
	return errors.Is(err, ErrWriteFailure)
}
