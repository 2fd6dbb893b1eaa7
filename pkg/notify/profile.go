package notify

import (
	"net"
	"strconv"
	"time"

	"github.com/3leaps/gopbs/pkg/jobregistry"
	"github.com/3leaps/gopbs/pkg/settings"
)

// Target is one push notification endpoint.
type Target struct {
	Host     string
	Port     int
	Password string
	Sticky   bool
}

// Addr returns host:port.
func (t Target) Addr() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// MailProfile holds everything needed to deliver job mail.
type MailProfile struct {
	Recipients   []string
	Host         string
	Port         int
	From         string
	TLS          bool
	Authenticate bool
	Username     string
	Password     string
	Timeout      time.Duration

	// Conditions is the set of conditions that trigger mail.
	Conditions map[Condition]bool
}

// Profile is the resolved notification configuration of one job.
type Profile struct {
	MailEnabled bool
	PushEnabled bool

	Mail        MailProfile
	Targets     []Target
	PushTimeout time.Duration
}

// BuildProfile resolves the notification profile for desc from s.
//
// Push hosts and passwords are matched by position. When there are fewer
// passwords than hosts the last password is reused; with no passwords at all
// every target gets an empty password. Empty list entries are ignored in both
// lists. A host entry that cannot be parsed is skipped but keeps its password
// position.
func BuildProfile(desc *jobregistry.Descriptor, s settings.Settings) Profile {
	p := Profile{
		MailEnabled: s.Notification.SendMail,
		PushEnabled: s.Notification.SendPush,
		PushTimeout: s.Push.Timeout,
	}

	passwords := settings.SplitList(s.Push.Passwords)
	for i, h := range settings.SplitList(s.Push.Hosts) {
		host, port, err := settings.SplitHostPort(h, settings.DefaultPushPort)
		if err != nil {
			continue
		}
		t := Target{Host: host, Port: port, Sticky: s.Push.Sticky}
		switch {
		case i < len(passwords):
			t.Password = passwords[i]
		case len(passwords) > 0:
			t.Password = passwords[len(passwords)-1]
		}
		p.Targets = append(p.Targets, t)
	}

	host, port, err := settings.SplitHostPort(s.Mail.SMTP, 25)
	if err != nil {
		host, port = "", 0
	}
	p.Mail = MailProfile{
		Host:         host,
		Port:         port,
		From:         s.Mail.From,
		TLS:          s.Mail.TLS,
		Authenticate: s.Mail.Authenticate,
		Username:     s.Mail.Username,
		Password:     s.Mail.Password,
		Timeout:      s.Mail.Timeout,
		Recipients:   recipients(desc, s.Mail.Recipients),
	}
	points := ""
	if desc != nil {
		points = desc.MailPoints
	}
	p.Mail.Conditions = ParseMailPoints(points)
	return p
}

// recipients prefers the job's own mail users over the configured fallback.
func recipients(desc *jobregistry.Descriptor, fallback []string) []string {
	var out []string
	if desc != nil {
		for _, u := range desc.MailUsers {
			out = append(out, settings.SplitList(u)...)
		}
	}
	if len(out) == 0 {
		out = append(out, fallback...)
	}
	return out
}
