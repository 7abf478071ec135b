//go:build !windows

package supervisor

import (
	"os/exec"
	"syscall"
)

// setupDetachedAttributes severs the keeper check from the supervisor's
// process group so it survives the supervisor exiting.
func setupDetachedAttributes(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}
