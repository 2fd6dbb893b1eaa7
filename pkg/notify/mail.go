package notify

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/wneessen/go-mail"
)

// MailSender delivers composed messages.
type MailSender interface {
	Available() bool
	Send(ctx context.Context, msg *mail.Msg) error
}

// SMTPSender delivers mail through an SMTP relay.
type SMTPSender struct {
	profile MailProfile
}

func NewSMTPSender(p MailProfile) *SMTPSender {
	return &SMTPSender{profile: p}
}

// Available reports whether an SMTP endpoint is configured.
func (s *SMTPSender) Available() bool {
	return s != nil && s.profile.Host != "" && s.profile.Port > 0
}

func (s *SMTPSender) Send(ctx context.Context, msg *mail.Msg) error {
	opts := []mail.Option{
		mail.WithPort(s.profile.Port),
	}
	if s.profile.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(s.profile.Timeout))
	}
	if s.profile.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}
	if s.profile.Authenticate {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthAutoDiscover),
			mail.WithUsername(s.profile.Username),
			mail.WithPassword(s.profile.Password),
		)
	}
	endpoint := net.JoinHostPort(s.profile.Host, strconv.Itoa(s.profile.Port))
	client, err := mail.NewClient(s.profile.Host, opts...)
	if err != nil {
		return &DeliveryError{Channel: "mail", Endpoint: endpoint, Err: fmt.Errorf("create smtp client: %w", err)}
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return &DeliveryError{Channel: "mail", Endpoint: endpoint, Err: err}
	}
	return nil
}

// composeMessage builds one job mail. threadID, when set, is the Message-ID
// of the first delivered mail of this job.
func composeMessage(from, to, jobID, body, messageID, threadID string) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(from); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", from, err)
	}
	if err := m.To(to); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", to, err)
	}
	m.Subject("gopbs job " + jobID)
	m.SetMessageIDWithValue(messageID)
	if threadID != "" {
		m.SetGenHeader(mail.HeaderInReplyTo, threadID)
		m.SetGenHeader(mail.HeaderReferences, threadID)
	}
	m.SetDate()
	m.SetBodyString(mail.TypeTextPlain, body)
	return m, nil
}
