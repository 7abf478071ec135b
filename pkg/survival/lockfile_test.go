package survival

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-tools/shell-guardian-go/pkg/errors"
)

func TestAcquireLockExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keeper.lock")

	lock, err := AcquireLock(path)
	require.NoError(t, err)

	// A second acquisition fails immediately instead of blocking
	_, err = AcquireLock(path)
	require.Error(t, err)
	assert.True(t, errors.IsConflictError(err))

	require.NoError(t, lock.Release())

	// Released locks can be re-acquired
	lock2, err := AcquireLock(path)
	require.NoError(t, err)
	require.NoError(t, lock2.Release())
}

func TestAcquireLockCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "keeper.lock")

	lock, err := AcquireLock(path)
	require.NoError(t, err)
	defer lock.Release()

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestReleaseNilSafe(t *testing.T) {
	var lock *FileLock
	assert.NoError(t, lock.Release())
}
