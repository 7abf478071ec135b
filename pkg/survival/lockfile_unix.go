//go:build !windows

package survival

import (
	"os"

	"github.com/core-tools/shell-guardian-go/pkg/errors"

	"golang.org/x/sys/unix"
)

// flockExclusive takes a non-blocking exclusive flock(2) on the file.
// Advisory locks are released on close or process exit, so a crashed keeper
// never leaves the store permanently locked.
func flockExclusive(f *os.File) error {
	err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err == nil {
		return nil
	}
	if err == unix.EWOULDBLOCK {
		return errors.NewConflictError("lock already held", nil)
	}
	return errors.NewIOError("flock failed", err)
}

func funlock(f *os.File) error {
	if err := unix.Flock(int(f.Fd()), unix.LOCK_UN); err != nil {
		return errors.NewIOError("funlock failed", err)
	}
	return nil
}
