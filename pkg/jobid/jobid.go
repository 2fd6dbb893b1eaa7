// Package jobid allocates batch job identifiers from a persisted counter.
//
// Identifiers have the form {sequence}.{hostname}.{domain}, optionally
// followed by .{username}. The counter lives in a single file holding the
// decimal value of the last sequence handed out.
//
// Allocation performs an unlocked read-modify-write of the counter file. Two
// allocators racing on the same file may hand out the same sequence number or
// skip one; gopbs targets a single operator on a single host and accepts that.
package jobid

import (
	"fmt"
	"os"
	"os/user"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Identity carries the naming parts of a job id.
type Identity struct {
	Hostname string
	Domain   string

	// Username is appended when UsernameInJobID is set. Empty means the
	// current user.
	Username        string
	UsernameInJobID bool
}

// Allocator hands out job ids backed by a sequence file.
type Allocator struct {
	path     string
	identity Identity
	logger   *zap.Logger
}

// NewAllocator returns an Allocator for the given sequence file.
func NewAllocator(sequencePath string, identity Identity, logger *zap.Logger) *Allocator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Allocator{path: strings.TrimSpace(sequencePath), identity: identity, logger: logger}
}

// Path returns the sequence file path.
func (a *Allocator) Path() string {
	return a.path
}

// Allocate increments the counter and returns the new job id.
//
// A missing or unreadable counter starts over from zero. If the new value
// cannot be written back, no id is returned.
func (a *Allocator) Allocate() (string, error) {
	if a.path == "" {
		return "", &Error{Op: "write", Path: a.path, Err: fmt.Errorf("sequence file path is empty")}
	}

	seq := a.current() + 1
	if err := os.WriteFile(a.path, []byte(strconv.FormatInt(seq, 10)), 0644); err != nil {
		a.logger.Error("Could not write sequence file", zap.String("path", a.path), zap.Error(err))
		return "", &Error{Op: "write", Path: a.path, Err: err}
	}

	id := Format(seq, a.identity)
	a.logger.Debug("Allocated job id", zap.String("job_id", id), zap.Int64("sequence", seq))
	return id, nil
}

func (a *Allocator) current() int64 {
	b, err := os.ReadFile(a.path)
	if err != nil {
		a.logger.Debug("Sequence file not readable; starting from zero", zap.String("path", a.path), zap.Error(err))
		return 0
	}
	seq, err := strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64)
	if err != nil || seq < 0 {
		a.logger.Debug("Sequence file content invalid; starting from zero", zap.String("path", a.path))
		return 0
	}
	return seq
}

// Format builds the job id for a sequence number.
func Format(seq int64, id Identity) string {
	base := fmt.Sprintf("%d.%s.%s", seq, id.Hostname, id.Domain)
	if !id.UsernameInJobID {
		return base
	}
	name := id.Username
	if name == "" {
		name = CurrentUsername()
	}
	return base + "." + name
}

// Sequence extracts the leading sequence number of a job id.
func Sequence(jobID string) (int64, bool) {
	head, _, _ := strings.Cut(jobID, ".")
	n, err := strconv.ParseInt(head, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// CurrentUsername returns $USER, falling back to the account database.
func CurrentUsername() string {
	if name := strings.TrimSpace(os.Getenv("USER")); name != "" {
		return name
	}
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return "unknown"
}
