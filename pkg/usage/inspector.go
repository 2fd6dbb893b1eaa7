package usage

import (
	"errors"
	"os"
	"sync"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcessInspector reads the host process table through gopsutil.
type ProcessInspector struct {
	once      sync.Once
	available bool
}

// NewProcessInspector returns an Inspector for the local host.
func NewProcessInspector() *ProcessInspector {
	return &ProcessInspector{}
}

// Available probes introspection support once by looking up our own pid.
func (pi *ProcessInspector) Available() bool {
	pi.once.Do(func() {
		ok, err := process.PidExists(int32(os.Getpid()))
		pi.available = err == nil && ok
	})
	return pi.available
}

// Inspect samples a single process. Metrics that cannot be read are zero.
func (pi *ProcessInspector) Inspect(pid int) (Sample, error) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		if errors.Is(err, process.ErrorProcessNotRunning) {
			return Sample{}, ErrProcessNotFound
		}
		return Sample{}, err
	}

	var s Sample
	if times, err := p.Times(); err == nil && times != nil {
		s.CPUSeconds = int64(times.User + times.System)
	}
	if mem, err := p.MemoryInfo(); err == nil && mem != nil {
		s.RSS = mem.RSS
		s.VMS = mem.VMS
	}
	if n, err := p.NumThreads(); err == nil {
		s.Threads = int(n)
	}

	// A process that vanished mid-sample reports nothing useful.
	if running, err := p.IsRunning(); err == nil && !running {
		return Sample{}, ErrProcessNotFound
	}
	return s, nil
}

// Children returns the direct child pids of pid.
func (pi *ProcessInspector) Children(pid int) ([]int, error) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		if errors.Is(err, process.ErrorProcessNotRunning) {
			return nil, ErrProcessNotFound
		}
		return nil, err
	}
	kids, err := p.Children()
	if err != nil {
		return nil, err
	}
	out := make([]int, 0, len(kids))
	for _, k := range kids {
		out = append(out, int(k.Pid))
	}
	return out, nil
}
