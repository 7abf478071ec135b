//go:build windows

package process

import (
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"
)

// Windows console operation lock to prevent race conditions
var consoleOperationLock sync.Mutex

// SendTerminationSignal sends Ctrl+Break to the child's process group on
// Windows. Console APIs are serialized because concurrent attach/detach
// corrupts the console state of the whole session.
func SendTerminationSignal(pid int, isDead bool, timeout time.Duration) error {
	if pid <= 0 {
		return fmt.Errorf("invalid PID: %d", pid)
	}
	if isDead {
		return nil
	}

	consoleOperationLock.Lock()
	defer consoleOperationLock.Unlock()

	dll, err := syscall.LoadDLL("kernel32.dll")
	if err != nil {
		return fmt.Errorf("failed to load kernel32.dll: %v", err)
	}
	defer dll.Release()

	return sendCtrlBreakToProcessSafe(dll, pid, timeout)
}

// ForceKill terminates the process outright when Ctrl+Break was ignored.
func ForceKill(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Kill()
}

// sendCtrlBreakToProcessSafe sends Ctrl+Break with timeout protection
func sendCtrlBreakToProcessSafe(dll *syscall.DLL, pid int, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		done <- generateConsoleCtrlEvent(dll, pid)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send Ctrl+Break to PID %d: %v", pid, err)
		}
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timeout sending Ctrl+Break to PID %d after %v", pid, timeout)
	}
}

func generateConsoleCtrlEvent(dll *syscall.DLL, pid int) error {
	generateConsoleCtrlEvent, err := dll.FindProc("GenerateConsoleCtrlEvent")
	if err != nil {
		return err
	}

	result, _, err := generateConsoleCtrlEvent.Call(
		uintptr(syscall.CTRL_BREAK_EVENT),
		uintptr(pid),
	)
	if result == 0 {
		return err
	}
	return nil
}
