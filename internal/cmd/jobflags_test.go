package cmd

import (
	"path/filepath"
	"testing"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/gopbs/pkg/settings"
)

func newJobFlagsCommand() *cobra.Command {
	c := &cobra.Command{Use: "test"}
	addJobFlags(c)
	return c
}

func TestDescriptorFromFlags(t *testing.T) {
	s := settings.Defaults()
	c := newJobFlagsCommand()
	require.NoError(t, c.ParseFlags([]string{
		"-N", "demo",
		"-o", "out.txt",
		"-j", "OE",
		"-m", "abe",
		"-M", "a@example.org,b@example.org",
		"-v", "FOO=bar",
	}))

	d, err := descriptorFromFlags(c, "7.localhost.local", "/jobs/run.sh", &s)
	require.NoError(t, err)
	assert.Equal(t, "7.localhost.local", d.JobID)
	assert.Equal(t, "demo", d.Name)
	assert.Equal(t, "localhost.local", d.Server)
	assert.Contains(t, d.Owner, "@localhost.local")
	assert.Equal(t, "oe", d.JoinPath)
	assert.Equal(t, "abe", d.MailPoints)
	assert.Equal(t, []string{"a@example.org", "b@example.org"}, d.MailUsers)
	assert.Equal(t, "FOO=bar", d.VariableList)
	assert.True(t, filepath.IsAbs(d.OutputPath))
	assert.Empty(t, d.ErrorPath)
	assert.Empty(t, d.ResourcesUsed)
}

func TestDescriptorFromFlags_DefaultName(t *testing.T) {
	s := settings.Defaults()
	d, err := descriptorFromFlags(newJobFlagsCommand(), "", "/jobs/run.sh", &s)
	require.NoError(t, err)
	assert.Equal(t, "run.sh", d.Name)
}

func TestDescriptorFromFlags_Invalid(t *testing.T) {
	s := settings.Defaults()
	tests := []struct {
		name string
		args []string
	}{
		{name: "join", args: []string{"-j", "xx"}},
		{name: "mail points", args: []string{"-m", "abz"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newJobFlagsCommand()
			require.NoError(t, c.ParseFlags(tt.args))
			_, err := descriptorFromFlags(c, "", "/jobs/run.sh", &s)
			require.Error(t, err)
			assert.Equal(t, foundry.ExitInvalidArgument, exitCodeFor(err))
		})
	}
}

func TestJobFlagArgsRoundTrip(t *testing.T) {
	s := settings.Defaults()
	src := newJobFlagsCommand()
	require.NoError(t, src.ParseFlags([]string{
		"-N", "demo", "-o", "/tmp/o", "-e", "/tmp/e", "-j", "eo", "-m", "be",
		"-M", "ops@example.org", "-v", "A=1,B=2",
	}))
	want, err := descriptorFromFlags(src, "3.h.d", "/jobs/run.sh", &s)
	require.NoError(t, err)

	dst := newJobFlagsCommand()
	require.NoError(t, dst.ParseFlags(jobFlagArgs(want)))
	got, err := descriptorFromFlags(dst, "3.h.d", "/jobs/run.sh", &s)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
