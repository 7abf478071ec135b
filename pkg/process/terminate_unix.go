//go:build !windows

package process

import (
	"syscall"
	"time"
)

// SendTerminationSignal sends SIGTERM to the process group on Unix systems.
func SendTerminationSignal(pid int, isDead bool, timeout time.Duration) error {
	if isDead {
		return nil
	}
	// Send SIGTERM to the process group (negative PID)
	// This ensures we terminate the entire process tree
	return syscall.Kill(-pid, syscall.SIGTERM)
}

// ForceKill sends SIGKILL to the process group as a last resort when the
// child ignores SIGTERM past the grace period.
func ForceKill(pid int) error {
	return syscall.Kill(-pid, syscall.SIGKILL)
}
