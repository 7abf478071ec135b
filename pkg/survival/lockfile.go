package survival

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/core-tools/shell-guardian-go/pkg/errors"
)

// FileLock is an advisory exclusion token over the full location set.
// Reconciliation requires exclusive access: two passes racing on the same
// locations with different references could propagate an inconsistent copy,
// so overlapping invocations (scheduled tick vs. manual check) must be
// rejected, not serialized.
type FileLock struct {
	path string
	file *os.File
}

// AcquireLock takes a non-blocking exclusive lock on the given lock file,
// creating it if needed. Returns a conflict error when another process
// already holds it.
func AcquireLock(path string) (*FileLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.NewIOError("failed to create lock directory", err).WithContext("path", path)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, errors.NewIOError("failed to open lock file", err).WithContext("path", path)
	}

	if err := flockExclusive(f); err != nil {
		f.Close()
		if errors.IsConflictError(err) {
			return nil, errors.NewConflictError("another reconciliation holds the survival store lock", nil).WithContext("path", path)
		}
		return nil, err
	}

	// The PID is informational only; exclusion comes from the flock, which
	// the kernel releases even if this process dies without cleanup.
	f.Truncate(0)
	fmt.Fprintf(f, "%d\n", os.Getpid())

	return &FileLock{path: path, file: f}, nil
}

// Release drops the lock. Safe to call once per acquired lock.
func (l *FileLock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := funlock(l.file)
	closeErr := l.file.Close()
	l.file = nil
	if err != nil {
		return err
	}
	return closeErr
}
