//go:build unix

package supervisor

import (
	"syscall"

	"github.com/fulmenhq/gofulmen/foundry"
)

var signalExitCodes = map[syscall.Signal]int{
	syscall.SIGHUP:  foundry.ExitSignalHup,
	syscall.SIGINT:  foundry.ExitSignalInt,
	syscall.SIGQUIT: foundry.ExitSignalQuit,
	syscall.SIGKILL: foundry.ExitSignalKill,
	syscall.SIGPIPE: foundry.ExitSignalPipe,
	syscall.SIGALRM: foundry.ExitSignalAlrm,
	syscall.SIGTERM: foundry.ExitSignalTerm,
}

// signalExitCode returns the exit code for a process killed by sig, using
// the 128+N convention for signals outside the catalog.
func signalExitCode(sig syscall.Signal) int {
	if code, ok := signalExitCodes[sig]; ok {
		return code
	}
	return 128 + int(sig)
}
