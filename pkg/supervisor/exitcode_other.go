//go:build !unix

package supervisor

import "syscall"

func signalExitCode(sig syscall.Signal) int {
	return 128 + int(sig)
}
