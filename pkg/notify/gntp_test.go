package notify

import (
	"bufio"
	"context"
	"encoding/hex"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const gntpOK = "GNTP/1.0 -OK NONE\r\nResponse-Action: NOTIFY\r\n\r\n"

// gntpServer is a minimal GNTP receiver that records every message.
type gntpServer struct {
	ln    net.Listener
	reply string

	mu       sync.Mutex
	messages []string
}

func startGNTPServer(t *testing.T, reply string) *gntpServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &gntpServer{ln: ln, reply: reply}
	t.Cleanup(func() { _ = ln.Close() })
	go s.serve()
	return s
}

func (s *gntpServer) target(password string) Target {
	addr := s.ln.Addr().(*net.TCPAddr)
	return Target{Host: addr.IP.String(), Port: addr.Port, Password: password}
}

func (s *gntpServer) Messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.messages...)
}

func (s *gntpServer) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.handle(conn)
	}
}

func (s *gntpServer) handle(conn net.Conn) {
	defer func() { _ = conn.Close() }()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
	r := bufio.NewReader(conn)

	msg, err := readSection(r)
	if err != nil {
		// Reachability probes connect and hang up without a message.
		return
	}
	if strings.Contains(firstLine(msg), " REGISTER ") {
		n, _ := strconv.Atoi(headerValue(msg, "Notifications-Count"))
		for i := 0; i < n; i++ {
			sec, err := readSection(r)
			if err != nil {
				return
			}
			msg += "\r\n" + sec
		}
	}

	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
	_, _ = conn.Write([]byte(s.reply))
}

func readSection(r *bufio.Reader) (string, error) {
	var b strings.Builder
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return "", err
		}
		if strings.TrimRight(line, "\r\n") == "" {
			return b.String(), nil
		}
		b.WriteString(line)
	}
}

func firstLine(msg string) string {
	line, _, _ := strings.Cut(msg, "\r\n")
	return line
}

func headerValue(msg, name string) string {
	for _, line := range strings.Split(msg, "\r\n") {
		if k, v, ok := strings.Cut(line, ":"); ok && k == name {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func TestGNTPSender_Register(t *testing.T) {
	srv := startGNTPServer(t, gntpOK)
	g := NewGNTPSender(AppName, 2*time.Second)

	require.NoError(t, g.Register(context.Background(), srv.target("")))

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "GNTP/1.0 REGISTER NONE", firstLine(msgs[0]))
	assert.Equal(t, "gopbs", headerValue(msgs[0], "Application-Name"))
	assert.Equal(t, "5", headerValue(msgs[0], "Notifications-Count"))
	for _, c := range categories {
		assert.Contains(t, msgs[0], "Notification-Name: "+c.Category()+"\r\n")
	}
}

func TestGNTPSender_NotifyWithPassword(t *testing.T) {
	srv := startGNTPServer(t, gntpOK)
	g := NewGNTPSender(AppName, 2*time.Second)

	err := g.Notify(context.Background(), srv.target("secret"), Notification{
		Name:   "job-stopped",
		Title:  "gopbs: finished",
		Text:   "Job 1.h.d (demo) finished\r\n\r\ndone",
		Sticky: true,
	})
	require.NoError(t, err)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	fields := strings.Fields(firstLine(msgs[0]))
	require.Len(t, fields, 4)
	assert.Equal(t, []string{"GNTP/1.0", "NOTIFY", "NONE"}, fields[:3])

	algo, rest, ok := strings.Cut(fields[3], ":")
	require.True(t, ok)
	assert.Equal(t, "SHA256", algo)
	hash, saltHex, ok := strings.Cut(rest, ".")
	require.True(t, ok)
	salt, err := hex.DecodeString(saltHex)
	require.NoError(t, err)
	assert.Len(t, salt, saltSize)
	assert.Equal(t, keyHashHex("secret", salt), hash)

	assert.Equal(t, "job-stopped", headerValue(msgs[0], "Notification-Name"))
	assert.Equal(t, "gopbs: finished", headerValue(msgs[0], "Notification-Title"))
	assert.Equal(t, "True", headerValue(msgs[0], "Notification-Sticky"))
	assert.Contains(t, msgs[0], "Notification-Text: Job 1.h.d (demo) finished\ndone\r\n")
}

func TestGNTPSender_ErrorResponse(t *testing.T) {
	srv := startGNTPServer(t, "GNTP/1.0 -ERROR NONE\r\nError-Code: 400\r\nError-Description: Not authorized\r\n\r\n")
	g := NewGNTPSender(AppName, 2*time.Second)

	err := g.Notify(context.Background(), srv.target("wrong"), Notification{Name: "job-started"})
	require.Error(t, err)
	assert.True(t, IsDeliveryFailure(err))
	assert.Contains(t, err.Error(), "Not authorized")
}

func TestGNTPSender_Unreachable(t *testing.T) {
	g := NewGNTPSender(AppName, 500*time.Millisecond)
	err := g.Register(context.Background(), deadTarget(t))
	require.Error(t, err)
	assert.True(t, IsDeliveryFailure(err))
}

func TestKeyHashHexIsDeterministic(t *testing.T) {
	salt := []byte("0123456789abcdef")
	assert.Equal(t, keyHashHex("pw", salt), keyHashHex("pw", salt))
	assert.NotEqual(t, keyHashHex("pw", salt), keyHashHex("other", salt))
	assert.Len(t, keyHashHex("pw", salt), 64)

	suffix, err := gntpKeyHash("")
	require.NoError(t, err)
	assert.Empty(t, suffix)
}

// deadTarget returns a target on a port that was just released.
func deadTarget(t *testing.T) Target {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	require.NoError(t, ln.Close())
	return Target{Host: addr.IP.String(), Port: addr.Port}
}
