package notify

import (
	"context"
	"net"
	"time"
)

// Prober checks that addr accepts connections within timeout.
type Prober func(ctx context.Context, addr string, timeout time.Duration) error

// TCPProbe opens and immediately closes a TCP connection to addr.
func TCPProbe(ctx context.Context, addr string, timeout time.Duration) error {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return conn.Close()
}
