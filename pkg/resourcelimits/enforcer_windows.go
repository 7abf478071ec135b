//go:build windows

package resourcelimits

import (
	"github.com/core-tools/shell-guardian-go/pkg/logging"
)

// applyLimitsImpl is a no-op on Windows; enforcement would need Job Objects
// and the monitor covers usage-based violations instead.
func applyLimitsImpl(pid int, limits *Limits, logger logging.Logger) ([]AppliedLimit, error) {
	logger.Warnf("Kernel resource limits are not supported on windows, only monitoring applies, PID: %d", pid)
	return nil, nil
}
