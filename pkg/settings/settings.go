// Package settings defines the strongly typed gopbs configuration.
//
// Settings are produced once by a provider (see internal/config) and then
// normalized: any invalid value is replaced by its documented default and a
// warning is logged, so a bad config file never aborts job processing.
package settings

import (
	"fmt"
	"net"
	"net/mail"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultPushPort is the GNTP port used when a push host has no port.
const DefaultPushPort = 23053

// Settings is the full gopbs configuration.
type Settings struct {
	Server       HostSettings         `mapstructure:"server" yaml:"server"`
	Node         HostSettings         `mapstructure:"node" yaml:"node"`
	Jobs         JobSettings          `mapstructure:"jobs" yaml:"jobs"`
	Notification NotificationSettings `mapstructure:"notification" yaml:"notification"`
	Mail         MailSettings         `mapstructure:"mail" yaml:"mail"`
	Push         PushSettings         `mapstructure:"push" yaml:"push"`
	Log          LogSettings          `mapstructure:"log" yaml:"log"`
}

// HostSettings names a host for job ids (server) or execution (node).
type HostSettings struct {
	Hostname string `mapstructure:"hostname" yaml:"hostname"`
	Domain   string `mapstructure:"domain" yaml:"domain"`
}

// FQDN returns hostname.domain.
func (h HostSettings) FQDN() string {
	if h.Domain == "" {
		return h.Hostname
	}
	return h.Hostname + "." + h.Domain
}

type JobSettings struct {
	UsernameInJobID bool   `mapstructure:"username_in_jobid" yaml:"username_in_jobid"`
	SequenceFile    string `mapstructure:"sequence_file" yaml:"sequence_file"`
}

type NotificationSettings struct {
	SendMail bool `mapstructure:"send_mail" yaml:"send_mail"`
	SendPush bool `mapstructure:"send_push" yaml:"send_push"`
}

type MailSettings struct {
	From string `mapstructure:"from" yaml:"from"`

	// SMTP is the server endpoint as host:port.
	SMTP         string        `mapstructure:"smtp" yaml:"smtp"`
	Username     string        `mapstructure:"username" yaml:"username"`
	Password     string        `mapstructure:"password" yaml:"password"`
	Authenticate bool          `mapstructure:"authenticate" yaml:"authenticate"`
	TLS          bool          `mapstructure:"tls" yaml:"tls"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`

	// Recipients is used when a job names no mail users.
	Recipients []string `mapstructure:"recipients" yaml:"recipients"`
}

type PushSettings struct {
	// Hosts is a comma-separated list of host[:port] targets.
	Hosts string `mapstructure:"hosts" yaml:"hosts"`

	// Passwords is a comma-separated list matched to Hosts by position. A
	// shorter list reuses its last entry for the remaining hosts.
	Passwords string        `mapstructure:"passwords" yaml:"passwords"`
	Sticky    bool          `mapstructure:"sticky" yaml:"sticky"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type LogSettings struct {
	Logfile    string `mapstructure:"logfile" yaml:"logfile"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
}

// Defaults returns the documented default settings.
func Defaults() Settings {
	return Settings{
		Server: HostSettings{Hostname: "localhost", Domain: "local"},
		Node:   HostSettings{Hostname: "localhost", Domain: "local"},
		Jobs:   JobSettings{UsernameInJobID: false, SequenceFile: "sequence"},
		Notification: NotificationSettings{
			SendMail: false,
			SendPush: false,
		},
		Mail: MailSettings{
			From:         "nobody@example.org",
			SMTP:         "smtp.example.com:587",
			Username:     "user",
			Password:     "secret",
			Authenticate: false,
			TLS:          true,
			Timeout:      15 * time.Second,
		},
		Push: PushSettings{
			Hosts:     "localhost:23053",
			Passwords: "secret",
			Sticky:    true,
			Timeout:   2 * time.Second,
		},
		Log: LogSettings{Logfile: "gopbs.log", MaxSizeMB: 10, MaxBackups: 3},
	}
}

// Normalize trims values and resets invalid fields to their defaults,
// logging a warning for each reset. It returns the names of the reset fields.
func (s *Settings) Normalize(logger *zap.Logger) []string {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := Defaults()
	var reset []string
	fix := func(field string, bad any, apply func()) {
		apply()
		reset = append(reset, field)
		logger.Warn("Invalid configuration value; using default",
			zap.String("field", field), zap.Any("value", bad))
	}

	s.Server.Hostname = strings.TrimSpace(s.Server.Hostname)
	s.Server.Domain = strings.TrimSpace(s.Server.Domain)
	s.Node.Hostname = strings.TrimSpace(s.Node.Hostname)
	s.Node.Domain = strings.TrimSpace(s.Node.Domain)
	if !validIDPart(s.Server.Hostname) {
		fix("server.hostname", s.Server.Hostname, func() { s.Server.Hostname = def.Server.Hostname })
	}
	if !validIDPart(s.Server.Domain) {
		fix("server.domain", s.Server.Domain, func() { s.Server.Domain = def.Server.Domain })
	}
	if s.Node.Hostname == "" {
		fix("node.hostname", s.Node.Hostname, func() { s.Node.Hostname = def.Node.Hostname })
	}

	s.Jobs.SequenceFile = strings.TrimSpace(s.Jobs.SequenceFile)
	if s.Jobs.SequenceFile == "" || s.Jobs.SequenceFile != filepath.Base(s.Jobs.SequenceFile) || strings.HasSuffix(s.Jobs.SequenceFile, ".lock") {
		fix("jobs.sequence_file", s.Jobs.SequenceFile, func() { s.Jobs.SequenceFile = def.Jobs.SequenceFile })
	}

	s.Mail.From = strings.TrimSpace(s.Mail.From)
	if _, err := mail.ParseAddress(s.Mail.From); err != nil {
		fix("mail.from", s.Mail.From, func() { s.Mail.From = def.Mail.From })
	}
	s.Mail.SMTP = strings.TrimSpace(s.Mail.SMTP)
	if _, _, err := SplitHostPort(s.Mail.SMTP, 25); err != nil {
		fix("mail.smtp", s.Mail.SMTP, func() { s.Mail.SMTP = def.Mail.SMTP })
	}
	if s.Mail.Timeout <= 0 {
		fix("mail.timeout", s.Mail.Timeout, func() { s.Mail.Timeout = def.Mail.Timeout })
	}
	recipients := s.Mail.Recipients[:0]
	for _, r := range s.Mail.Recipients {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if _, err := mail.ParseAddress(r); err != nil {
			fix("mail.recipients", r, func() {})
			continue
		}
		recipients = append(recipients, r)
	}
	s.Mail.Recipients = recipients

	for _, h := range SplitList(s.Push.Hosts) {
		if _, _, err := SplitHostPort(h, DefaultPushPort); err != nil {
			fix("push.hosts", s.Push.Hosts, func() { s.Push.Hosts = def.Push.Hosts })
			break
		}
	}
	if s.Push.Timeout <= 0 {
		fix("push.timeout", s.Push.Timeout, func() { s.Push.Timeout = def.Push.Timeout })
	}

	s.Log.Logfile = strings.TrimSpace(s.Log.Logfile)
	if s.Log.Logfile == "" {
		fix("log.logfile", s.Log.Logfile, func() { s.Log.Logfile = def.Log.Logfile })
	}
	if s.Log.MaxSizeMB <= 0 {
		fix("log.max_size_mb", s.Log.MaxSizeMB, func() { s.Log.MaxSizeMB = def.Log.MaxSizeMB })
	}
	if s.Log.MaxBackups < 0 {
		fix("log.max_backups", s.Log.MaxBackups, func() { s.Log.MaxBackups = def.Log.MaxBackups })
	}

	return reset
}

// validIDPart reports whether v can appear as a dot-separated job id part.
func validIDPart(v string) bool {
	return v != "" && !strings.ContainsAny(v, " \t/\\")
}

// SplitList splits a comma-separated list, dropping empty entries.
func SplitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// SplitHostPort parses host[:port], applying defaultPort when none is given.
func SplitHostPort(addr string, defaultPort int) (string, int, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", 0, fmt.Errorf("address is empty")
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		// No port given.
		if strings.Contains(err.Error(), "missing port") {
			return strings.Trim(addr, "[]"), defaultPort, nil
		}
		return "", 0, fmt.Errorf("invalid address %q: %w", addr, err)
	}
	if host == "" {
		return "", 0, fmt.Errorf("invalid address %q: host is empty", addr)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("invalid address %q: bad port %q", addr, portStr)
	}
	return host, port, nil
}
