//go:build unix

package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// parseSignal accepts a signal name ("TERM", "SIGKILL") or number.
func parseSignal(v string) (syscall.Signal, error) {
	v = strings.ToUpper(strings.TrimSpace(v))
	if v == "" {
		return syscall.SIGTERM, nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		if n <= 0 || unix.SignalName(syscall.Signal(n)) == "" {
			return 0, fmt.Errorf("%w: unknown signal %d", errUsage, n)
		}
		return syscall.Signal(n), nil
	}
	if !strings.HasPrefix(v, "SIG") {
		v = "SIG" + v
	}
	sig := unix.SignalNum(v)
	if sig == 0 {
		return 0, fmt.Errorf("%w: unknown signal %q", errUsage, v)
	}
	return sig, nil
}

func signalName(sig syscall.Signal) string {
	if name := unix.SignalName(sig); name != "" {
		return name
	}
	return sig.String()
}
