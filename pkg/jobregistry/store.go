package jobregistry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/3leaps/gopbs/pkg/jobid"
	"github.com/3leaps/gopbs/pkg/usage"
)

const lockSuffix = ".lock"

// Store persists and loads job descriptors as lock files.
//
// Directory layout:
//
//	<root>/<job_id>.lock
//
// A lock file exists exactly while its job is tracked. It is a snapshot of the
// descriptor, not a mutual-exclusion primitive: in normal operation only the
// process supervising the job writes it, and concurrent writers race with last
// write wins.
type Store struct {
	root       string
	accountant *usage.Accountant
	logger     *zap.Logger
	now        func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithAccountant sets the resource accountant used by Read.
func WithAccountant(a *usage.Accountant) Option {
	return func(s *Store) {
		if a != nil {
			s.accountant = a
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source used for walltime.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func NewStore(root string, opts ...Option) *Store {
	s := &Store{
		root:   strings.TrimSpace(root),
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.accountant == nil {
		s.accountant = usage.NewAccountant(usage.WithLogger(s.logger))
	}
	return s
}

func (s *Store) RootDir() string {
	return s.root
}

// LockPath returns the lock file path for a job id.
func (s *Store) LockPath(jobID string) string {
	return filepath.Join(s.root, jobID+lockSuffix)
}

func (s *Store) ensureRoot() error {
	if strings.TrimSpace(s.root) == "" {
		return fmt.Errorf("lock directory is empty")
	}
	return os.MkdirAll(s.root, 0755)
}

// Persist writes the full descriptor to its lock file, replacing any previous
// snapshot, and records the path in d.Lockfile.
func (s *Store) Persist(d *Descriptor) error {
	if d == nil {
		return fmt.Errorf("descriptor is nil")
	}
	jobID := strings.TrimSpace(d.JobID)
	if jobID == "" {
		return fmt.Errorf("job_id is required")
	}
	if strings.ContainsRune(jobID, filepath.Separator) {
		return fmt.Errorf("job_id %q contains a path separator", jobID)
	}
	finalPath := s.LockPath(jobID)
	if err := s.ensureRoot(); err != nil {
		return &LockError{Op: "write", Path: finalPath, Kind: ErrWriteFailure, Err: err}
	}

	d.Lockfile = finalPath
	b, err := json.MarshalIndent(lockRecord{SchemaVersion: SchemaVersion, Job: *d}, "", "  ")
	if err != nil {
		return &LockError{Op: "write", Path: finalPath, Kind: ErrWriteFailure, Err: fmt.Errorf("marshal descriptor: %w", err)}
	}
	b = append(b, '\n')

	tmp, err := os.CreateTemp(s.root, jobID+".lock.tmp.*")
	if err != nil {
		return &LockError{Op: "write", Path: finalPath, Kind: ErrWriteFailure, Err: fmt.Errorf("create temp file: %w", err)}
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return &LockError{Op: "write", Path: finalPath, Kind: ErrWriteFailure, Err: fmt.Errorf("write temp lock file: %w", err)}
	}
	if err := tmp.Close(); err != nil {
		return &LockError{Op: "write", Path: finalPath, Kind: ErrWriteFailure, Err: fmt.Errorf("close temp lock file: %w", err)}
	}
	if err := os.Rename(tmpName, finalPath); err != nil {
		return &LockError{Op: "write", Path: finalPath, Kind: ErrWriteFailure, Err: fmt.Errorf("rename lock file: %w", err)}
	}

	s.logger.Debug("Persisted job lock", zap.String("job_id", jobID), zap.Int("pid", d.PID), zap.String("lockfile", finalPath))
	return nil
}

// Read loads a descriptor by job id or lock file path and refreshes its live
// resource usage.
//
// The job id and lock file path always come from the file name, not from the
// stored content. Usage values that could not be determined (zero) never
// overwrite stored values.
func (s *Store) Read(jobIDOrPath string) (*Descriptor, error) {
	path := s.resolvePath(jobIDOrPath)
	if path == "" {
		return nil, fmt.Errorf("job_id is required")
	}

	d, err := decodeLock(path)
	if err != nil {
		return nil, err
	}

	if d.ResourcesUsed == nil {
		d.ResourcesUsed = map[string]string{}
	}
	if d.StartTime > 0 {
		walltime := s.now().Unix() - d.StartTime
		if walltime < 0 {
			walltime = 0
		}
		d.ResourcesUsed[ResourceWalltime] = usage.FormatDuration(walltime)
	}

	u := s.accountant.Usage(d.PID)
	if u.CPUSeconds > 0 {
		d.ResourcesUsed[ResourceCPUTime] = usage.FormatDuration(u.CPUSeconds)
	}
	if u.RSS > 0 {
		d.ResourcesUsed[ResourceMem] = usage.FormatBytes(u.RSS)
	}
	if u.VMS > 0 {
		d.ResourcesUsed[ResourceVMem] = usage.FormatBytes(u.VMS)
	}
	if u.Threads > 0 {
		d.ResourcesUsed[ResourceThreads] = strconv.Itoa(u.Threads)
	}

	d.JobID = strings.TrimSuffix(filepath.Base(path), lockSuffix)
	d.Lockfile = path
	return d, nil
}

// Release deletes the job's lock file. A missing lock is not an error.
func (s *Store) Release(jobID string) error {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return fmt.Errorf("job_id is required")
	}
	path := s.LockPath(jobID)
	s.logger.Debug("Releasing job lock", zap.String("lockfile", path))
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return &LockError{Op: "release", Path: path, Kind: ErrWriteFailure, Err: err}
	}
	return nil
}

// FindPID returns the pid recorded in the first lock file (in name order)
// whose name starts with jobID.
//
// Prefix matching lets operators use the bare sequence number, but it is
// ambiguous: "1" also matches "10.host.domain". Callers that need an exact job
// should pass the full id.
func (s *Store) FindPID(jobID string) (int, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return 0, &LockError{Op: "find", Kind: ErrNotFound}
	}
	names, err := s.lockNames()
	if err != nil {
		return 0, err
	}
	for _, name := range names {
		if !strings.HasPrefix(name, jobID) {
			continue
		}
		path := filepath.Join(s.root, name)
		d, err := decodeLock(path)
		if err != nil {
			s.logger.Debug("Failed to open lock", zap.String("lockfile", path), zap.Error(err))
			return 0, &LockError{Op: "find", Path: path, Kind: ErrNotFound, Err: err}
		}
		if d.PID <= 0 {
			return 0, &LockError{Op: "find", Path: path, Kind: ErrNotFound}
		}
		return d.PID, nil
	}
	s.logger.Debug("No lock file found for job", zap.String("job_id", jobID))
	return 0, &LockError{Op: "find", Path: s.LockPath(jobID), Kind: ErrNotFound}
}

// Signal sends sig to the job's process and reports whether it was delivered.
//
// A job without a lock, or whose process already exited, is not an error: the
// lock may simply be stale.
func (s *Store) Signal(jobID string, sig syscall.Signal) bool {
	pid, err := s.FindPID(jobID)
	if err != nil {
		s.logger.Debug("Skipped sending signal (pid not found)", zap.String("job_id", jobID), zap.Stringer("signal", sig))
		return false
	}
	p, err := os.FindProcess(pid)
	if err == nil {
		err = p.Signal(sig)
	}
	if err != nil {
		s.logger.Debug("Failed to send signal",
			zap.String("job_id", jobID), zap.Int("pid", pid), zap.Stringer("signal", sig), zap.Error(err))
		return false
	}
	s.logger.Info("Sent signal to job", zap.String("job_id", jobID), zap.Int("pid", pid), zap.Stringer("signal", sig))
	return true
}

// List reads every tracked job, ordered by sequence number. Unreadable locks
// are skipped.
func (s *Store) List() ([]Descriptor, error) {
	names, err := s.lockNames()
	if err != nil {
		return nil, err
	}
	out := make([]Descriptor, 0, len(names))
	for _, name := range names {
		d, err := s.Read(filepath.Join(s.root, name))
		if err != nil {
			s.logger.Debug("Skipping unreadable lock", zap.String("lockfile", name), zap.Error(err))
			continue
		}
		out = append(out, *d)
	}
	sort.SliceStable(out, func(i, j int) bool {
		si, iok := jobid.Sequence(out[i].JobID)
		sj, jok := jobid.Sequence(out[j].JobID)
		if iok && jok && si != sj {
			return si < sj
		}
		if iok != jok {
			return iok
		}
		return out[i].JobID < out[j].JobID
	})
	return out, nil
}

// lockNames returns the lock file names in the root directory, sorted.
func (s *Store) lockNames() ([]string, error) {
	if strings.TrimSpace(s.root) == "" {
		return nil, fmt.Errorf("lock directory is empty")
	}
	names, err := doublestar.Glob(os.DirFS(s.root), "*"+lockSuffix)
	if err != nil {
		return nil, fmt.Errorf("scan lock directory: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) resolvePath(jobIDOrPath string) string {
	v := strings.TrimSpace(jobIDOrPath)
	if v == "" {
		return ""
	}
	if strings.HasSuffix(v, lockSuffix) || strings.ContainsRune(v, filepath.Separator) {
		return v
	}
	return s.LockPath(v)
}

func decodeLock(path string) (*Descriptor, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, &LockError{Op: "read", Path: path, Kind: ErrReadFailure, Err: err}
	}
	trimmed := strings.TrimSpace(string(b))
	if trimmed == "" {
		return nil, &LockError{Op: "read", Path: path, Kind: ErrReadFailure, Err: fmt.Errorf("lock file is empty")}
	}

	var rec lockRecord
	if err := json.Unmarshal([]byte(trimmed), &rec); err != nil {
		return nil, &LockError{Op: "read", Path: path, Kind: ErrReadFailure, Err: fmt.Errorf("parse lock file: %w", err)}
	}
	if rec.SchemaVersion <= 0 || rec.SchemaVersion > SchemaVersion {
		return nil, &LockError{Op: "read", Path: path, Kind: ErrReadFailure,
			Err: fmt.Errorf("unsupported lock schema version %d", rec.SchemaVersion)}
	}
	d := rec.Job
	return &d, nil
}

// IsAlive reports whether pid refers to a live process.
func IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// signal 0 is supported on unix; it checks for existence without sending a signal.
	if err := p.Signal(syscall.Signal(0)); err != nil {
		return false
	}
	return true
}
