package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/gopbs/pkg/jobregistry"
)

// executeCommand runs the root command with args and captures stdout.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.PersistentFlags().VisitAll(reset)
	c.Flags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// testHome isolates HOME and returns an empty gopbs home.
func testHome(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell and signals")
	}
	t.Setenv("HOME", t.TempDir())
	t.Setenv("GOPBS_HOME", "")
	return t.TempDir()
}

func trackJob(t *testing.T, home, jobID string, pid int) {
	t.Helper()
	d := jobregistry.NewDescriptor(jobID)
	d.PID = pid
	d.Name = "sleeper"
	d.Owner = "alice@localhost.local"
	d.StartTime = time.Now().Add(-time.Minute).Unix()
	d.ExecHost = "localhost.local"
	require.NoError(t, jobregistry.NewStore(home).Persist(d))
}

func TestInitCommand(t *testing.T) {
	home := filepath.Join(testHome(t), "new-home")

	out, err := executeCommand(t, "--home", home, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "created=true")
	assert.FileExists(t, filepath.Join(home, "gopbs.yaml"))

	out, err = executeCommand(t, "--home", home, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "created=false")
}

func TestInitCommand_RequiresHome(t *testing.T) {
	testHome(t)
	_, err := executeCommand(t, "init")
	require.Error(t, err)
	assert.Equal(t, foundry.ExitConfigInvalid, exitCodeFor(err))
}

func TestSubmitForeground(t *testing.T) {
	home := testHome(t)
	work := t.TempDir()
	script := filepath.Join(work, "job.sh")
	require.NoError(t, os.WriteFile(script, []byte("echo \"hello from $PBS_JOBID\"\n"), 0644))
	outFile := filepath.Join(work, "job.out")

	out, err := executeCommand(t, "--home", home, "submit", "--foreground",
		"-N", "demo", "-o", outFile, "-e", filepath.Join(work, "job.err"), script)
	require.NoError(t, err)
	assert.Equal(t, "1.localhost.local\n", out)

	b, err := os.ReadFile(outFile)
	require.NoError(t, err)
	assert.Equal(t, "hello from 1.localhost.local\n", string(b))

	// The lock is gone once the job has finished.
	out, err = executeCommand(t, "--home", home, "stat", "--json")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)

	events, err := os.ReadFile(filepath.Join(home, "gopbs.log"))
	require.NoError(t, err)
	for _, msg := range []string{"Job submitted", "Job started", "Job finished"} {
		assert.Contains(t, string(events), msg)
	}

	// The sequence continues.
	out, err = executeCommand(t, "--home", home, "submit", "--foreground", "--json",
		"-o", outFile, "-e", filepath.Join(work, "job.err"), script)
	require.NoError(t, err)
	var res submitResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "2.localhost.local", res.JobID)
	require.NotNil(t, res.ExitStatus)
	assert.Equal(t, 0, *res.ExitStatus)
}

func TestSubmit_MissingScript(t *testing.T) {
	home := testHome(t)
	_, err := executeCommand(t, "--home", home, "submit", filepath.Join(home, "missing.sh"))
	require.Error(t, err)
	assert.Equal(t, foundry.ExitInvalidArgument, exitCodeFor(err))
}

func TestStat(t *testing.T) {
	home := testHome(t)
	trackJob(t, home, "1.localhost.local", os.Getpid())
	trackJob(t, home, "10.localhost.local", 0)

	out, err := executeCommand(t, "--home", home, "stat")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "JOB ID")
	assert.True(t, strings.HasPrefix(lines[1], "1.localhost.local"))
	assert.Contains(t, lines[1], " R ")
	assert.True(t, strings.HasPrefix(lines[2], "10.localhost.local"))
	assert.Contains(t, lines[2], " E ")

	out, err = executeCommand(t, "--home", home, "stat", "-f", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Job Id: 1.localhost.local\n")
	assert.Contains(t, out, "    Job_Name = sleeper\n")
	assert.Contains(t, out, "    session_id = "+strconv.Itoa(os.Getpid())+"\n")
	assert.Contains(t, out, "    resources_used.walltime = 0:01:")
	assert.NotContains(t, out, "10.localhost.local")

	out, err = executeCommand(t, "--home", home, "stat", "--json", "10")
	require.NoError(t, err)
	var jobs []jobregistry.Descriptor
	require.NoError(t, json.Unmarshal([]byte(out), &jobs))
	require.Len(t, jobs, 1)
	assert.Equal(t, "10.localhost.local", jobs[0].JobID)
}

func TestStat_NoJobs(t *testing.T) {
	home := testHome(t)
	out, err := executeCommand(t, "--home", home, "stat")
	require.NoError(t, err)
	assert.Equal(t, "No jobs found\n", out)
}

func TestStat_UnknownJob(t *testing.T) {
	home := testHome(t)
	_, err := executeCommand(t, "--home", home, "stat", "42")
	require.Error(t, err)
	assert.True(t, jobregistry.IsNotFound(err))
}

func TestDel(t *testing.T) {
	home := testHome(t)
	sleeper := exec.Command("sleep", "30")
	require.NoError(t, sleeper.Start())
	t.Cleanup(func() { _ = sleeper.Process.Kill() })
	trackJob(t, home, "5.localhost.local", sleeper.Process.Pid)

	out, err := executeCommand(t, "--home", home, "del", "5.localhost.local")
	require.NoError(t, err)
	assert.Equal(t, "sent=SIGTERM job_id=5.localhost.local\n", out)

	err = sleeper.Wait()
	require.Error(t, err)
	exitErr, ok := err.(*exec.ExitError)
	require.True(t, ok)
	assert.Equal(t, -1, exitErr.ExitCode(), "sleep must be killed by the signal")
}

func TestDel_UnknownJob(t *testing.T) {
	home := testHome(t)
	_, err := executeCommand(t, "--home", home, "del", "99.localhost.local")
	require.Error(t, err)
	assert.Equal(t, foundry.ExitFileNotFound, exitCodeFor(err))
}

func TestDel_InvalidSignal(t *testing.T) {
	home := testHome(t)
	_, err := executeCommand(t, "--home", home, "del", "-s", "BOGUS", "1")
	require.Error(t, err)
	assert.Equal(t, foundry.ExitInvalidArgument, exitCodeFor(err))
}

func TestResolveJobID(t *testing.T) {
	home := testHome(t)
	trackJob(t, home, "1.localhost.local", 0)
	trackJob(t, home, "10.localhost.local", 0)
	trackJob(t, home, "11.otherhost.local", 0)
	store := jobregistry.NewStore(home)

	id, err := resolveJobID(store, "1.localhost.local")
	require.NoError(t, err)
	assert.Equal(t, "1.localhost.local", id)

	id, err = resolveJobID(store, "1")
	require.NoError(t, err)
	assert.Equal(t, "1.localhost.local", id)

	id, err = resolveJobID(store, "11")
	require.NoError(t, err)
	assert.Equal(t, "11.otherhost.local", id)

	_, err = resolveJobID(store, "2")
	assert.True(t, jobregistry.IsNotFound(err))

	_, err = resolveJobID(store, "")
	assert.Equal(t, foundry.ExitInvalidArgument, exitCodeFor(err))
}

func TestVersionCommand(t *testing.T) {
	orig := versionInfo
	defer func() { versionInfo = orig }()
	SetVersionInfo("1.2.3", "abc123", "2026-10-01")

	out, err := executeCommand(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "gopbs 1.2.3")

	out, err = executeCommand(t, "version", "--json")
	require.NoError(t, err)
	var info map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "abc123", info["commit"])
}
