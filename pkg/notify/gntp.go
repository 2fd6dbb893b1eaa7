package notify

import (
	"bufio"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Notification is a single push message.
type Notification struct {
	// Name is the registered notification name (see Condition.Category).
	Name   string
	Title  string
	Text   string
	Sticky bool
}

// PushSender delivers push notifications to a target.
type PushSender interface {
	Available() bool

	// Register announces the application and its notification names.
	Register(ctx context.Context, t Target) error

	Notify(ctx context.Context, t Target, n Notification) error
}

const (
	gntpVersion = "GNTP/1.0"
	saltSize    = 16
)

// GNTPSender speaks the Growl Notification Transport Protocol over TCP.
//
// Messages are sent unencrypted. When the target has a password the message
// carries a SHA256 key hash so the receiver can authenticate it.
type GNTPSender struct {
	AppName string
	Timeout time.Duration
}

func NewGNTPSender(appName string, timeout time.Duration) *GNTPSender {
	return &GNTPSender{AppName: appName, Timeout: timeout}
}

// Available is always true: GNTP needs nothing beyond TCP.
func (g *GNTPSender) Available() bool {
	return g != nil
}

func (g *GNTPSender) Register(ctx context.Context, t Target) error {
	var b strings.Builder
	writeHeader(&b, "Application-Name", g.AppName)
	writeHeader(&b, "Notifications-Count", strconv.Itoa(len(categories)))
	for _, c := range categories {
		b.WriteString("\r\n")
		writeHeader(&b, "Notification-Name", c.Category())
		writeHeader(&b, "Notification-Display-Name", "Job "+c.Text())
		writeHeader(&b, "Notification-Enabled", "True")
	}
	return g.send(ctx, t, "REGISTER", b.String())
}

func (g *GNTPSender) Notify(ctx context.Context, t Target, n Notification) error {
	var b strings.Builder
	writeHeader(&b, "Application-Name", g.AppName)
	writeHeader(&b, "Notification-Name", n.Name)
	writeHeader(&b, "Notification-Title", n.Title)
	writeHeader(&b, "Notification-Text", n.Text)
	writeHeader(&b, "Notification-Sticky", boolHeader(n.Sticky))
	return g.send(ctx, t, "NOTIFY", b.String())
}

func (g *GNTPSender) send(ctx context.Context, t Target, msgType, body string) error {
	fail := func(err error) error {
		return &DeliveryError{Channel: "push", Endpoint: t.Addr(), Err: err}
	}

	d := net.Dialer{Timeout: g.Timeout}
	conn, err := d.DialContext(ctx, "tcp", t.Addr())
	if err != nil {
		return fail(err)
	}
	defer func() { _ = conn.Close() }()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else if g.Timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(g.Timeout))
	}

	keyHash, err := gntpKeyHash(t.Password)
	if err != nil {
		return fail(err)
	}
	msg := gntpVersion + " " + msgType + " NONE" + keyHash + "\r\n" + body + "\r\n"
	if _, err := conn.Write([]byte(msg)); err != nil {
		return fail(fmt.Errorf("write %s: %w", msgType, err))
	}

	r := bufio.NewReader(conn)
	status, err := r.ReadString('\n')
	if err != nil {
		return fail(fmt.Errorf("read response: %w", err))
	}
	fields := strings.Fields(status)
	if len(fields) < 2 || !strings.HasPrefix(fields[0], "GNTP/") {
		return fail(fmt.Errorf("malformed response %q", strings.TrimSpace(status)))
	}
	switch fields[1] {
	case "-OK":
		return nil
	case "-ERROR":
		return fail(fmt.Errorf("%s rejected: %s", msgType, readErrorDescription(r)))
	default:
		return fail(fmt.Errorf("unexpected response %q", strings.TrimSpace(status)))
	}
}

// gntpKeyHash returns the " SHA256:<keyhash>.<salt>" suffix for password, or
// "" when there is no password.
//
//	key     = SHA256(password + salt)
//	keyhash = SHA256(key)
func gntpKeyHash(password string) (string, error) {
	if password == "" {
		return "", nil
	}
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	return " SHA256:" + keyHashHex(password, salt) + "." + strings.ToUpper(hex.EncodeToString(salt)), nil
}

func keyHashHex(password string, salt []byte) string {
	key := sha256.Sum256(append([]byte(password), salt...))
	hash := sha256.Sum256(key[:])
	return strings.ToUpper(hex.EncodeToString(hash[:]))
}

func readErrorDescription(r *bufio.Reader) string {
	for {
		line, err := r.ReadString('\n')
		line = strings.TrimSpace(line)
		if name, value, ok := strings.Cut(line, ":"); ok && strings.EqualFold(name, "Error-Description") {
			return strings.TrimSpace(value)
		}
		if err != nil || line == "" {
			return "no description"
		}
	}
}

// writeHeader writes one header line. Multi-line values keep bare LF breaks
// with empty lines dropped, since a blank line ends a GNTP section.
func writeHeader(b *strings.Builder, name, value string) {
	value = strings.ReplaceAll(value, "\r\n", "\n")
	value = strings.ReplaceAll(value, "\r", "\n")
	lines := strings.Split(value, "\n")
	kept := lines[:0]
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			kept = append(kept, l)
		}
	}
	value = strings.Join(kept, "\n")
	b.WriteString(name)
	b.WriteString(": ")
	b.WriteString(value)
	b.WriteString("\r\n")
}

func boolHeader(v bool) string {
	if v {
		return "True"
	}
	return "False"
}
