package settings

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestDefaultsAreValid(t *testing.T) {
	s := Defaults()
	assert.Empty(t, s.Normalize(nil))
	assert.Equal(t, "localhost", s.Server.Hostname)
	assert.Equal(t, "local", s.Server.Domain)
	assert.Equal(t, "sequence", s.Jobs.SequenceFile)
	assert.False(t, s.Jobs.UsernameInJobID)
	assert.True(t, s.Mail.TLS)
	assert.Equal(t, 2*time.Second, s.Push.Timeout)
}

func TestNormalize_ResetsInvalidFields(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)

	s := Defaults()
	s.Server.Hostname = "  "
	s.Jobs.SequenceFile = "../outside"
	s.Mail.From = "not an address"
	s.Mail.SMTP = "smtp.example.com:notaport"
	s.Mail.Timeout = -1
	s.Push.Hosts = "good:23053,:99999"
	s.Push.Timeout = 0
	s.Log.Logfile = ""

	reset := s.Normalize(zap.New(core))
	assert.ElementsMatch(t, []string{
		"server.hostname",
		"jobs.sequence_file",
		"mail.from",
		"mail.smtp",
		"mail.timeout",
		"push.hosts",
		"push.timeout",
		"log.logfile",
	}, reset)
	assert.Equal(t, len(reset), logs.Len())

	def := Defaults()
	assert.Equal(t, def.Server.Hostname, s.Server.Hostname)
	assert.Equal(t, def.Jobs.SequenceFile, s.Jobs.SequenceFile)
	assert.Equal(t, def.Mail.From, s.Mail.From)
	assert.Equal(t, def.Mail.SMTP, s.Mail.SMTP)
	assert.Equal(t, def.Push.Hosts, s.Push.Hosts)
	assert.Equal(t, def.Push.Timeout, s.Push.Timeout)
	assert.Equal(t, def.Log.Logfile, s.Log.Logfile)
}

func TestNormalize_DropsInvalidRecipients(t *testing.T) {
	s := Defaults()
	s.Mail.Recipients = []string{" ops@example.org ", "", "nope"}
	s.Normalize(nil)
	assert.Equal(t, []string{"ops@example.org"}, s.Mail.Recipients)
}

func TestSplitHostPort(t *testing.T) {
	tests := []struct {
		in       string
		wantHost string
		wantPort int
		wantErr  bool
	}{
		{in: "localhost", wantHost: "localhost", wantPort: 23053},
		{in: "growl.example.org:9000", wantHost: "growl.example.org", wantPort: 9000},
		{in: "[::1]:23053", wantHost: "::1", wantPort: 23053},
		{in: "", wantErr: true},
		{in: ":23053", wantErr: true},
		{in: "host:0", wantErr: true},
		{in: "host:abc", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			host, port, err := SplitHostPort(tt.in, DefaultPushPort)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantHost, host)
			assert.Equal(t, tt.wantPort, port)
		})
	}
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, SplitList(" a, b,,c ,"))
	assert.Nil(t, SplitList(""))
}

func TestHostSettingsFQDN(t *testing.T) {
	assert.Equal(t, "node.local", HostSettings{Hostname: "node", Domain: "local"}.FQDN())
	assert.Equal(t, "node", HostSettings{Hostname: "node"}.FQDN())
}
