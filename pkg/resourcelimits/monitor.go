package resourcelimits

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/core-tools/shell-guardian-go/pkg/logging"
)

const defaultMonitorInterval = 5 * time.Second

// Usage is one sample of a child's resource consumption.
type Usage struct {
	RSS       int64
	CPUTime   time.Duration
	OpenFDs   int32
	SampledAt time.Time
}

// Violation describes a limit the child exceeded.
type Violation struct {
	LimitName string
	Limit     int64
	Actual    int64
}

func (v *Violation) String() string {
	return fmt.Sprintf("%s exceeded: limit=%d actual=%d", v.LimitName, v.Limit, v.Actual)
}

// ViolationCallback is invoked from the monitor goroutine when a sampled
// usage value exceeds its configured limit.
type ViolationCallback func(v *Violation)

// Monitor samples a child's resource usage and reports limit violations.
// On platforms without kernel enforcement this is the only line of defense,
// and on Linux it catches dimensions rlimits cannot express (RSS vs AS).
type Monitor struct {
	pid      int
	limits   *Limits
	interval time.Duration
	callback ViolationCallback
	logger   logging.Logger
}

func NewMonitor(pid int, limits *Limits, callback ViolationCallback, logger logging.Logger) *Monitor {
	interval := limits.MonitorInterval
	if interval <= 0 {
		interval = defaultMonitorInterval
	}
	return &Monitor{
		pid:      pid,
		limits:   limits,
		interval: interval,
		callback: callback,
		logger:   logger,
	}
}

// Run samples usage until the context is cancelled or the process exits.
// It is meant to be launched as a goroutine alongside the child.
func (m *Monitor) Run(ctx context.Context) {
	if m.limits.IsZero() {
		return
	}

	proc, err := process.NewProcess(int32(m.pid))
	if err != nil {
		m.logger.Warnf("Resource monitor could not attach to PID %d: %v", m.pid, err)
		return
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			usage, err := m.sample(proc)
			if err != nil {
				// Process exited between ticks; the supervisor's wait
				// handles the exit, we just stop sampling.
				m.logger.Debugf("Resource monitor stopping for PID %d: %v", m.pid, err)
				return
			}
			m.check(usage)
		}
	}
}

func (m *Monitor) sample(proc *process.Process) (*Usage, error) {
	usage := &Usage{SampledAt: time.Now()}

	if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
		usage.RSS = int64(mem.RSS)
	} else if err != nil {
		return nil, err
	}

	if times, err := proc.Times(); err == nil && times != nil {
		usage.CPUTime = time.Duration((times.User + times.System) * float64(time.Second))
	}

	if fds, err := proc.NumFDs(); err == nil {
		usage.OpenFDs = fds
	}

	return usage, nil
}

func (m *Monitor) check(usage *Usage) {
	if m.limits.MaxMemory > 0 && usage.RSS > m.limits.MaxMemory {
		m.report(&Violation{LimitName: "memory", Limit: m.limits.MaxMemory, Actual: usage.RSS})
	}
	if m.limits.MaxCPUTime > 0 && usage.CPUTime > m.limits.MaxCPUTime {
		m.report(&Violation{LimitName: "cpu_time", Limit: int64(m.limits.MaxCPUTime), Actual: int64(usage.CPUTime)})
	}
	if m.limits.MaxOpenFiles > 0 && int(usage.OpenFDs) > m.limits.MaxOpenFiles {
		m.report(&Violation{LimitName: "open_files", Limit: int64(m.limits.MaxOpenFiles), Actual: int64(usage.OpenFDs)})
	}
}

func (m *Monitor) report(v *Violation) {
	m.logger.Warnf("Resource violation for PID %d: %s", m.pid, v)
	if m.callback != nil {
		m.callback(v)
	}
}
