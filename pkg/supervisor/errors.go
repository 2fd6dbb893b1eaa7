package supervisor

import (
	"errors"
	"fmt"
)

// ErrSpawnFailure indicates the job process could not be started.
var ErrSpawnFailure = errors.New("job spawn failed")

// RunError wraps a supervisor failure with the job it concerned.
type RunError struct {
	// Op is the operation that failed (e.g., "open-output", "start").
	Op string

	JobID string

	Err error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("supervisor %s %s: %v", e.Op, e.JobID, e.Err)
}

func (e *RunError) Unwrap() []error {
	return []error{ErrSpawnFailure, e.Err}
}

// IsSpawnFailure returns true if the job never started.
func IsSpawnFailure(err error) bool {
	return errors.Is(err, ErrSpawnFailure)
}
