package recovery

import (
	"io"
	"os"
	"path/filepath"

	"github.com/core-tools/shell-guardian-go/pkg/errors"
	"github.com/core-tools/shell-guardian-go/pkg/logging"
)

// Reinstall copies the currently running guardian binary to the given
// destination. It is the manual escape hatch offered from the recovery
// shell when the installed copy itself is damaged; the keeper's quorum
// machinery is deliberately bypassed because the running image is, at this
// point, the only copy known to work.
func Reinstall(destination string, logger logging.Logger) error {
	self, err := os.Executable()
	if err != nil {
		return errors.NewIOError("cannot determine own executable path", err)
	}
	self, err = filepath.EvalSymlinks(self)
	if err != nil {
		return errors.NewIOError("cannot resolve own executable path", err)
	}

	logger.Infof("Reinstalling %s to %s", self, destination)

	src, err := os.Open(self)
	if err != nil {
		return errors.NewIOError("cannot open own executable", err).WithContext("path", self)
	}
	defer src.Close()

	dir := filepath.Dir(destination)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.NewIOError("cannot create destination directory", err).WithContext("dir", dir)
	}

	tmp, err := os.CreateTemp(dir, ".guardian-reinstall-*.tmp")
	if err != nil {
		return errors.NewIOError("cannot create temp file", err).WithContext("dir", dir)
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.NewIOError("copy failed", err).WithContext("path", tmpPath)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.NewIOError("sync failed", err).WithContext("path", tmpPath)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.NewIOError("close failed", err).WithContext("path", tmpPath)
	}

	if err := os.Chmod(tmpPath, 0755); err != nil {
		os.Remove(tmpPath)
		return errors.NewPermissionError("cannot set executable bit", err).WithContext("path", tmpPath)
	}
	if err := os.Rename(tmpPath, destination); err != nil {
		os.Remove(tmpPath)
		return errors.NewIOError("cannot move into place", err).WithContext("path", destination)
	}

	logger.Infof("Reinstall complete: %s", destination)
	return nil
}

// WriteMinimalRC writes a known-good minimal shell rc file next to the
// broken one, leaving the original untouched for the user to inspect.
func WriteMinimalRC(path string) error {
	content := `# Minimal shell configuration written by guardian recovery.
# Your original rc file was left untouched; compare and merge by hand.
export PS1='\u@\h:\w\$ '
export PATH="/usr/local/bin:/usr/bin:/bin:/usr/sbin:/sbin"
`
	if _, err := os.Stat(path); err == nil {
		return errors.NewConflictError("refusing to overwrite existing file", nil).WithContext("path", path)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return errors.NewIOError("cannot write minimal rc file", err).WithContext("path", path)
	}
	return nil
}
