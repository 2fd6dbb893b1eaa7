//go:build !unix

package cmd

import (
	"fmt"
	"strings"
	"syscall"
)

func parseSignal(v string) (syscall.Signal, error) {
	switch strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(v)), "SIG") {
	case "", "TERM":
		return syscall.SIGTERM, nil
	case "KILL":
		return syscall.SIGKILL, nil
	}
	return 0, fmt.Errorf("%w: unsupported signal %q", errUsage, v)
}

func signalName(sig syscall.Signal) string {
	return sig.String()
}
