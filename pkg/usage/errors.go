package usage

import (
	"errors"

	"github.com/shirou/gopsutil/v4/process"
)

// ErrProcessNotFound indicates the pid does not refer to a running process.
var ErrProcessNotFound = errors.New("process not found")

// IsProcessNotFound returns true if the error indicates the process is gone.
func IsProcessNotFound(err error) bool {
	return errors.Is(err, ErrProcessNotFound) || errors.Is(err, process.ErrorProcessNotRunning)
}
