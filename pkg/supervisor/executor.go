// Package supervisor launches job processes and reports their lifecycle.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/gopbs/pkg/jobid"
	"github.com/3leaps/gopbs/pkg/jobregistry"
	"github.com/3leaps/gopbs/pkg/notify"
	"github.com/3leaps/gopbs/pkg/settings"
)

// DefaultShell interprets job scripts.
const DefaultShell = "/bin/sh"

// Notifier receives lifecycle conditions for one job.
type Notifier interface {
	Notify(ctx context.Context, cond notify.Condition, message string)
}

// NotifierFactory builds the notifier for a job.
type NotifierFactory func(desc *jobregistry.Descriptor) Notifier

// Executor runs job scripts in the foreground and tracks them in the lock
// store while they run.
type Executor struct {
	store    *jobregistry.Store
	settings settings.Settings

	newNotifier NotifierFactory
	logger      *zap.Logger
	events      *zap.Logger
	shell       string
	workDir     string
	now         func() time.Time
}

// Option configures an Executor.
type Option func(*Executor)

func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithEventLogger sets the logger that records job lifecycle events.
func WithEventLogger(l *zap.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.events = l
		}
	}
}

func WithNotifierFactory(f NotifierFactory) Option {
	return func(e *Executor) {
		if f != nil {
			e.newNotifier = f
		}
	}
}

// WithShell overrides the script interpreter.
func WithShell(shell string) Option {
	return func(e *Executor) {
		if strings.TrimSpace(shell) != "" {
			e.shell = shell
		}
	}
}

// WithWorkDir sets the job working directory (PBS_O_WORKDIR).
func WithWorkDir(dir string) Option {
	return func(e *Executor) {
		if strings.TrimSpace(dir) != "" {
			e.workDir = dir
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		if now != nil {
			e.now = now
		}
	}
}

func NewExecutor(store *jobregistry.Store, s settings.Settings, opts ...Option) *Executor {
	e := &Executor{
		store:    store,
		settings: s,
		logger:   zap.NewNop(),
		events:   zap.NewNop(),
		shell:    DefaultShell,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.newNotifier == nil {
		e.newNotifier = func(d *jobregistry.Descriptor) Notifier {
			return notify.New(d, e.settings, notify.WithLogger(e.logger))
		}
	}
	return e
}

func (e *Executor) Store() *jobregistry.Store {
	return e.store
}

// Run executes script for desc and blocks until the process exits.
//
// The lock is persisted with the child pid once the process has started and
// released on every exit path. A process killed by a signal is reported as
// aborted with the signal exit code (128+signal); any other exit is reported as stopped
// and recorded in desc.ExitStatus. err is non-nil only when the process could
// not be started.
func (e *Executor) Run(ctx context.Context, desc *jobregistry.Descriptor, script string) (int, error) {
	if e == nil || e.store == nil {
		return -1, fmt.Errorf("executor is not initialized")
	}
	if desc == nil || strings.TrimSpace(desc.JobID) == "" {
		return -1, fmt.Errorf("job_id is required")
	}
	n := e.newNotifier(desc)
	log := e.logger.With(zap.String("job_id", desc.JobID))

	workDir := e.workDir
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return -1, e.spawnFailed(ctx, n, desc, "workdir", err)
		}
		workDir = wd
	}
	ApplyDefaultPaths(desc, workDir)

	stdout, stderr, closeOutputs, err := openOutputs(desc)
	if err != nil {
		return -1, e.spawnFailed(ctx, n, desc, "open-output", err)
	}
	defer closeOutputs()

	cmd := exec.Command(e.shell, script)
	cmd.Dir = workDir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Env = jobEnv(desc, workDir)

	if err := cmd.Start(); err != nil {
		return -1, e.spawnFailed(ctx, n, desc, "start", err)
	}

	desc.PID = cmd.Process.Pid
	desc.StartTime = e.now().Unix()
	desc.ExecHost = e.settings.Node.FQDN()
	if err := e.store.Persist(desc); err != nil {
		// The job keeps running but del and stat cannot see it.
		log.Warn("Failed to persist job lock", zap.Error(err))
		e.events.Warn("Job lock not written; job is untracked", zap.String("job_id", desc.JobID),
			zap.Int("pid", desc.PID), zap.Error(err))
		n.Notify(ctx, notify.Other, "job lock could not be written, job is not tracked: "+err.Error())
	}
	defer func() {
		if err := e.store.Release(desc.JobID); err != nil {
			log.Warn("Failed to release job lock", zap.Error(err))
		}
	}()

	e.events.Info("Job started", zap.String("job_id", desc.JobID), zap.String("name", desc.Name),
		zap.Int("pid", desc.PID), zap.String("exec_host", desc.ExecHost))
	log.Debug("Job process started", zap.Int("pid", desc.PID))
	n.Notify(ctx, notify.Started, "")

	waitErr := cmd.Wait()

	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
	case errors.As(waitErr, &exitErr):
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			code := signalExitCode(ws.Signal())
			msg := fmt.Sprintf("terminated by signal %s", ws.Signal())
			e.events.Info("Job aborted", zap.String("job_id", desc.JobID), zap.Int("pid", desc.PID), zap.String("signal", ws.Signal().String()))
			n.Notify(ctx, notify.Aborted, msg)
			return code, nil
		}
	default:
		// Wait failed without an exit status (e.g. output copy error).
		log.Warn("Waiting for job process failed", zap.Error(waitErr))
		e.events.Info("Job failed", zap.String("job_id", desc.JobID), zap.Int("pid", desc.PID), zap.Error(waitErr))
		n.Notify(ctx, notify.Failed, waitErr.Error())
		return -1, nil
	}

	code := cmd.ProcessState.ExitCode()
	desc.ExitStatus = &code
	e.events.Info("Job finished", zap.String("job_id", desc.JobID), zap.Int("pid", desc.PID), zap.Int("exit_code", code))
	n.Notify(ctx, notify.Stopped, "")
	return code, nil
}

func (e *Executor) spawnFailed(ctx context.Context, n Notifier, desc *jobregistry.Descriptor, op string, err error) error {
	e.logger.Error("Failed to start job", zap.String("job_id", desc.JobID), zap.String("op", op), zap.Error(err))
	e.events.Info("Job failed", zap.String("job_id", desc.JobID), zap.String("op", op), zap.Error(err))
	n.Notify(ctx, notify.Failed, err.Error())
	return &RunError{Op: op, JobID: desc.JobID, Err: err}
}

// ApplyDefaultPaths fills in PBS style output paths (<name>.o<seq>,
// <name>.e<seq>) under workDir when the descriptor has none.
func ApplyDefaultPaths(desc *jobregistry.Descriptor, workDir string) {
	name := desc.Name
	if name == "" {
		name = "job"
	}
	seq := desc.JobID
	if n, ok := jobid.Sequence(desc.JobID); ok {
		seq = strconv.FormatInt(n, 10)
	}
	if desc.OutputPath == "" {
		desc.OutputPath = filepath.Join(workDir, name+".o"+seq)
	}
	if desc.ErrorPath == "" {
		desc.ErrorPath = filepath.Join(workDir, name+".e"+seq)
	}
}

// openOutputs opens the job's output files according to join_path: "oe"
// merges stderr into the output file, "eo" merges stdout into the error file.
func openOutputs(desc *jobregistry.Descriptor) (io.Writer, io.Writer, func(), error) {
	switch strings.ToLower(strings.TrimSpace(desc.JoinPath)) {
	case "oe":
		f, err := os.Create(desc.OutputPath)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("create output file: %w", err)
		}
		return f, f, func() { _ = f.Close() }, nil
	case "eo":
		f, err := os.Create(desc.ErrorPath)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("create error file: %w", err)
		}
		return f, f, func() { _ = f.Close() }, nil
	}

	out, err := os.Create(desc.OutputPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create output file: %w", err)
	}
	errf, err := os.Create(desc.ErrorPath)
	if err != nil {
		_ = out.Close()
		return nil, nil, nil, fmt.Errorf("create error file: %w", err)
	}
	return out, errf, func() {
		_ = out.Close()
		_ = errf.Close()
	}, nil
}

// jobEnv returns the environment of a job process: the caller's environment,
// the job's variable list (comma separated NAME=value pairs) and the PBS_*
// variables.
func jobEnv(desc *jobregistry.Descriptor, workDir string) []string {
	env := os.Environ()
	for _, kv := range settings.SplitList(desc.VariableList) {
		if name, _, ok := strings.Cut(kv, "="); ok && name != "" {
			env = append(env, kv)
		}
	}
	return append(env,
		"PBS_JOBID="+desc.JobID,
		"PBS_JOBNAME="+desc.Name,
		"PBS_O_HOST="+desc.Server,
		"PBS_O_WORKDIR="+workDir,
		"PBS_ENVIRONMENT=PBS_BATCH",
	)
}

// StartBackground spawns exe with args as a detached child whose stdout and
// stderr go to logPath. It returns the child pid once the process started.
func StartBackground(exe string, args []string, logPath string) (int, error) {
	if strings.TrimSpace(exe) == "" {
		return 0, fmt.Errorf("executable is required")
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return 0, fmt.Errorf("create log dir: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return 0, fmt.Errorf("open background log: %w", err)
	}
	defer func() { _ = logFile.Close() }()

	cmd := exec.Command(exe, args...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Env = os.Environ()
	detach(cmd)

	if err := cmd.Start(); err != nil {
		return 0, &RunError{Op: "start-background", Err: err}
	}
	pid := cmd.Process.Pid
	_ = cmd.Process.Release()
	return pid, nil
}
