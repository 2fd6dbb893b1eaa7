// Package notify delivers job lifecycle notifications by mail and push.
//
// Delivery is best-effort: every failure is logged and swallowed, so a broken
// SMTP relay or an unreachable push host never affects the job itself.
package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/3leaps/gopbs/internal/idgen"
	"github.com/3leaps/gopbs/pkg/jobregistry"
	"github.com/3leaps/gopbs/pkg/settings"
)

// AppName is the application name announced to push receivers.
const AppName = "gopbs"

// Notifier dispatches notifications for one job.
//
// The mail thread id is per Notifier: the first delivered mail starts the
// thread and later mails of the same job reply to it.
type Notifier struct {
	desc    *jobregistry.Descriptor
	profile Profile
	mailer  MailSender
	pusher  PushSender
	probe   Prober
	newID   func() string
	logger  *zap.Logger

	mu       sync.Mutex
	threadID string
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithMailSender replaces the SMTP sender.
func WithMailSender(m MailSender) Option {
	return func(n *Notifier) {
		if m != nil {
			n.mailer = m
		}
	}
}

// WithPushSender replaces the GNTP sender.
func WithPushSender(p PushSender) Option {
	return func(n *Notifier) {
		if p != nil {
			n.pusher = p
		}
	}
}

// WithProber replaces the TCP reachability probe.
func WithProber(p Prober) Option {
	return func(n *Notifier) {
		if p != nil {
			n.probe = p
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(n *Notifier) {
		if l != nil {
			n.logger = l
		}
	}
}

// WithMessageIDFunc overrides the Message-ID local part generator.
func WithMessageIDFunc(fn func() string) Option {
	return func(n *Notifier) {
		if fn != nil {
			n.newID = fn
		}
	}
}

// New builds the notification profile for desc and registers every push
// target. Registration failures are logged; the target is kept.
func New(desc *jobregistry.Descriptor, s settings.Settings, opts ...Option) *Notifier {
	if desc == nil {
		desc = jobregistry.NewDescriptor("")
	}
	n := &Notifier{
		desc:    desc,
		profile: BuildProfile(desc, s),
		probe:   TCPProbe,
		newID:   idgen.New,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.mailer == nil {
		n.mailer = NewSMTPSender(n.profile.Mail)
	}
	if n.pusher == nil {
		n.pusher = NewGNTPSender(AppName, n.profile.PushTimeout)
	}

	if n.profile.MailEnabled && !n.mailer.Available() {
		n.logger.Warn("Mail channel not available; mail notifications disabled")
		n.profile.MailEnabled = false
	}
	if n.profile.PushEnabled && !n.pusher.Available() {
		n.logger.Warn("Push channel not available; push notifications disabled")
		n.profile.PushEnabled = false
	}

	if n.profile.PushEnabled {
		ctx := context.Background()
		for _, t := range n.profile.Targets {
			if err := n.pusher.Register(ctx, t); err != nil {
				n.logger.Warn("Failed to register with push target", zap.String("target", t.Addr()), zap.Error(err))
			}
		}
	}
	return n
}

// Profile returns the resolved notification profile.
func (n *Notifier) Profile() Profile {
	return n.profile
}

// ThreadID returns the Message-ID of the first delivered mail, or "".
func (n *Notifier) ThreadID() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.threadID
}

// Notify sends cond on every enabled channel. message is optional extra text.
func (n *Notifier) Notify(ctx context.Context, cond Condition, message string) {
	if n == nil {
		return
	}
	text := n.describe(cond, message)
	n.logger.Debug("Dispatching notification", zap.String("job_id", n.desc.JobID), zap.String("condition", string(cond)))

	if n.profile.MailEnabled && n.profile.Mail.Conditions[cond] {
		n.sendMail(ctx, text)
	}
	if n.profile.PushEnabled {
		n.sendPush(ctx, cond, text)
	}
}

// describe renders the human readable notification text.
func (n *Notifier) describe(cond Condition, message string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Job %s (%s) %s", n.desc.JobID, n.desc.Name, cond.Text())
	if cond == Stopped && n.desc.ExitStatus != nil {
		fmt.Fprintf(&b, " with exit code %d", *n.desc.ExitStatus)
	}
	if message = strings.TrimSpace(message); message != "" {
		b.WriteString("\n")
		b.WriteString(message)
	}
	return b.String()
}

func (n *Notifier) sendMail(ctx context.Context, body string) {
	mp := n.profile.Mail
	if len(mp.Recipients) == 0 {
		n.logger.Debug("No mail recipients configured", zap.String("job_id", n.desc.JobID))
		return
	}
	domain := n.desc.Server
	if domain == "" {
		domain = "localhost"
	}
	for _, rcpt := range mp.Recipients {
		thread := n.ThreadID()
		msg, err := composeMessage(mp.From, rcpt, n.desc.JobID, body, n.newID()+"@"+domain, thread)
		if err != nil {
			n.logger.Warn("Failed to compose mail", zap.String("recipient", rcpt), zap.Error(err))
			continue
		}
		if err := n.mailer.Send(ctx, msg); err != nil {
			n.logger.Warn("Failed to send mail", zap.String("recipient", rcpt), zap.Error(err))
			continue
		}
		n.logger.Debug("Sent mail", zap.String("recipient", rcpt), zap.String("message_id", msg.GetMessageID()))

		n.mu.Lock()
		if n.threadID == "" {
			n.threadID = msg.GetMessageID()
		}
		n.mu.Unlock()
	}
}

func (n *Notifier) sendPush(ctx context.Context, cond Condition, text string) {
	note := Notification{
		Name:  cond.Category(),
		Title: AppName + ": " + cond.Text(),
		Text:  text,
	}
	for _, t := range n.profile.Targets {
		if err := n.probe(ctx, t.Addr(), n.profile.PushTimeout); err != nil {
			n.logger.Warn("Push target not reachable; skipping", zap.String("target", t.Addr()), zap.Error(err))
			continue
		}
		note.Sticky = t.Sticky
		if err := n.pusher.Notify(ctx, t, note); err != nil {
			n.logger.Warn("Failed to send push notification", zap.String("target", t.Addr()), zap.Error(err))
		}
	}
}
