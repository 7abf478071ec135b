//go:build darwin

package resourcelimits

import (
	"golang.org/x/sys/unix"

	"github.com/core-tools/shell-guardian-go/pkg/errors"
	"github.com/core-tools/shell-guardian-go/pkg/logging"
)

var setpriorityFn = unix.Setpriority

// applyLimitsImpl on Darwin can only adjust scheduling priority after the
// fact; there is no prlimit(2) equivalent to retarget rlimits of another
// process. Unsupported dimensions are logged and skipped, and a rejected
// priority is collected as a warning rather than a fatal error.
func applyLimitsImpl(pid int, limits *Limits, logger logging.Logger) ([]AppliedLimit, error) {
	var applied []AppliedLimit
	collection := errors.NewErrorCollection()

	if limits.MaxProcesses > 0 || limits.MaxOpenFiles > 0 || limits.MaxCPUTime > 0 || limits.MaxMemory > 0 {
		logger.Warnf("Kernel resource limits are not supported on darwin, only monitoring applies, PID: %d", pid)
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
