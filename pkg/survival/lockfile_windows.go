//go:build windows

package survival

import (
	"os"

	"golang.org/x/sys/windows"

	"github.com/core-tools/shell-guardian-go/pkg/errors"
)

func flockExclusive(f *os.File) error {
	overlapped := new(windows.Overlapped)
	err := windows.LockFileEx(windows.Handle(f.Fd()),
		windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY,
		0, 1, 0, overlapped)
	if err == nil {
		return nil
	}
	if err == windows.ERROR_LOCK_VIOLATION {
		return errors.NewConflictError("lock already held", nil)
	}
	return errors.NewIOError("LockFileEx failed", err)
}

func funlock(f *os.File) error {
	overlapped := new(windows.Overlapped)
	if err := windows.UnlockFileEx(windows.Handle(f.Fd()), 0, 1, 0, overlapped); err != nil {
		return errors.NewIOError("UnlockFileEx failed", err)
	}
	return nil
}
