// Package usage reports CPU, memory and thread usage for a job's process tree.
//
// Inspection is best-effort. A process that cannot be inspected (gone, access
// denied, or no introspection support on this platform) yields zero values,
// and callers treat zero as "unknown" rather than "nothing used".
package usage

import (
	"sync"

	"go.uber.org/zap"
)

const (
	// maxDepth and maxNodes bound the process tree walk.
	maxDepth = 64
	maxNodes = 4096
)

// Usage is the aggregated resource usage of a process and its descendants.
type Usage struct {
	// CPUSeconds is user+system CPU time, summed over the tree.
	CPUSeconds int64

	// RSS is resident memory in bytes, summed over the tree.
	RSS uint64

	// VMS is virtual memory in bytes, summed over the tree.
	VMS uint64

	// Threads is the thread count of the active leaf worker (see Accountant.Usage).
	Threads int
}

// IsZero reports whether nothing could be determined.
func (u Usage) IsZero() bool {
	return u.CPUSeconds == 0 && u.RSS == 0 && u.VMS == 0 && u.Threads == 0
}

// Sample is the usage of a single process, without descendants.
//
// Fields the inspector was not permitted to read are left at zero.
type Sample struct {
	CPUSeconds int64
	RSS        uint64
	VMS        uint64
	Threads    int
}

// Inspector is the OS introspection capability used by the Accountant.
//
// Inspect returns ErrProcessNotFound when the pid does not exist.
type Inspector interface {
	// Available reports whether process introspection works on this host.
	Available() bool

	// Inspect returns the usage sample of one process.
	Inspect(pid int) (Sample, error)

	// Children returns the pids of the direct children of pid.
	Children(pid int) ([]int, error)
}

// Accountant computes tree-wide usage through an Inspector.
type Accountant struct {
	inspector Inspector
	logger    *zap.Logger

	unavailableOnce sync.Once
}

// Option configures an Accountant.
type Option func(*Accountant)

// WithInspector overrides the default gopsutil-backed inspector.
func WithInspector(i Inspector) Option {
	return func(a *Accountant) {
		if i != nil {
			a.inspector = i
		}
	}
}

// WithLogger sets the logger used for debug diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(a *Accountant) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewAccountant returns an Accountant using the host's process table unless
// another Inspector is supplied.
func NewAccountant(opts ...Option) *Accountant {
	a := &Accountant{
		inspector: NewProcessInspector(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type node struct {
	pid      int
	depth    int
	own      Sample
	children []int // indexes into the walk order
}

// Usage returns the usage of pid and all of its descendants.
//
// CPU time, resident and virtual memory are summed over the whole tree. The
// thread count is not summed: for a process with children it is the result of
// the last child (in traversal order) that reported a non-zero count; for a
// leaf it is the process's own count. This surfaces the thread count of the
// currently active worker, e.g. the program a job shell is running.
func (a *Accountant) Usage(pid int) Usage {
	if a == nil || a.inspector == nil {
		return Usage{}
	}
	if !a.inspector.Available() {
		a.unavailableOnce.Do(func() {
			a.logger.Debug("Process introspection not available; resource usage will be reported as unknown")
		})
		return Usage{}
	}
	if pid <= 0 {
		return Usage{}
	}

	root, err := a.inspector.Inspect(pid)
	if err != nil {
		if IsProcessNotFound(err) {
			a.logger.Warn("Process is not running anymore", zap.Int("pid", pid))
		} else {
			a.logger.Debug("Cannot inspect process", zap.Int("pid", pid), zap.Error(err))
		}
		return Usage{}
	}

	nodes := a.walk(pid, root)

	// Children always follow their parent in walk order, so a reverse pass
	// sees every child's result before the parent's.
	results := make([]Usage, len(nodes))
	for i := len(nodes) - 1; i >= 0; i-- {
		n := nodes[i]
		u := Usage{
			CPUSeconds: n.own.CPUSeconds,
			RSS:        n.own.RSS,
			VMS:        n.own.VMS,
		}
		if len(n.children) == 0 {
			u.Threads = n.own.Threads
		}
		for _, ci := range n.children {
			c := results[ci]
			u.CPUSeconds += c.CPUSeconds
			u.RSS += c.RSS
			u.VMS += c.VMS
			if c.Threads > 0 {
				u.Threads = c.Threads
			}
		}
		results[i] = u
	}
	return results[0]
}

// walk collects the process tree breadth-first starting at pid.
func (a *Accountant) walk(pid int, root Sample) []node {
	nodes := []node{{pid: pid, own: root}}
	seen := map[int]struct{}{pid: {}}

	for i := 0; i < len(nodes); i++ {
		if nodes[i].depth >= maxDepth {
			a.logger.Debug("Process tree depth limit reached", zap.Int("pid", nodes[i].pid))
			continue
		}
		kids, err := a.inspector.Children(nodes[i].pid)
		if err != nil {
			a.logger.Debug("Cannot list child processes", zap.Int("pid", nodes[i].pid), zap.Error(err))
			continue
		}
		for _, kid := range kids {
			if _, dup := seen[kid]; dup {
				continue
			}
			if len(nodes) >= maxNodes {
				a.logger.Debug("Process tree size limit reached", zap.Int("pid", pid))
				break
			}
			seen[kid] = struct{}{}

			s, err := a.inspector.Inspect(kid)
			if err != nil {
				// The child may have exited between listing and inspection.
				a.logger.Debug("Cannot inspect child process", zap.Int("pid", kid), zap.Error(err))
				continue
			}
			nodes = append(nodes, node{pid: kid, depth: nodes[i].depth + 1, own: s})
			nodes[i].children = append(nodes[i].children, len(nodes)-1)
		}
	}
	return nodes
}
