//go:build linux

package resourcelimits

import (
	"golang.org/x/sys/unix"

	"github.com/core-tools/shell-guardian-go/pkg/errors"
	"github.com/core-tools/shell-guardian-go/pkg/logging"
)

// Syscall seams, replaced in tests to simulate kernel rejections.
var (
	prlimitFn     = unix.Prlimit
	setpriorityFn = unix.Setpriority
)

// applyLimitsImpl sets rlimits on the child via prlimit(2). The limits take
// effect without cooperation from the child, which matters because the
// supervised binary may be arbitrary. Each limit is applied independently:
// one rejected ceiling (EPERM raising a hard limit as non-root) is warned
// about and skipped while the rest still go through.
func applyLimitsImpl(pid int, limits *Limits, logger logging.Logger) ([]AppliedLimit, error) {
	var applied []AppliedLimit
	collection := errors.NewErrorCollection()

	setRlimit := func(resource int, name string, value uint64) {
		rlim := unix.Rlimit{Cur: value, Max: value}
		if err := prlimitFn(pid, resource, &rlim, nil); err != nil {
			logger.Warnf("Skipping %s for PID %d: %v", name, pid, err)
			collection.Add(errors.NewResourceLimitError("failed to set "+name, err).
				WithContext("pid", pid).WithContext("value", value))
			return
		}
		applied = append(applied, AppliedLimit{Name: name, Value: int64(value)})
	}

	if limits.MaxProcesses > 0 {
		setRlimit(unix.RLIMIT_NPROC, "RLIMIT_NPROC", uint64(limits.MaxProcesses))
	}

	if limits.MaxOpenFiles > 0 {
		setRlimit(unix.RLIMIT_NOFILE, "RLIMIT_NOFILE", uint64(limits.MaxOpenFiles))
	}

	if limits.MaxCPUTime > 0 {
		seconds := uint64(limits.MaxCPUTime.Seconds())
		if seconds == 0 {
			seconds = 1
		}
		setRlimit(unix.RLIMIT_CPU, "RLIMIT_CPU", seconds)
	}

	if limits.MaxMemory > 0 {
		setRlimit(unix.RLIMIT_AS, "RLIMIT_AS", uint64(limits.MaxMemory))
	}

	if limits.Priority != 0 {
		if err := setpriorityFn(unix.PRIO_PROCESS, pid, limits.Priority); err != nil {
			logger.Warnf("Skipping priority for PID %d: %v", pid, err)
			collection.Add(errors.NewResourceLimitError("failed to set priority", err).
				WithContext("pid", pid).WithContext("priority", limits.Priority))
		} else {
			applied = append(applied, AppliedLimit{Name: "priority", Value: int64(limits.Priority)})
		}
	}

	return applied, collection.ToError()
}
