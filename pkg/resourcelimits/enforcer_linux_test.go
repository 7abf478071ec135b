//go:build linux

package resourcelimits

import (
	"syscall"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-tools/shell-guardian-go/pkg/errors"
	"github.com/core-tools/shell-guardian-go/pkg/logging"
)

func testLogger(t *testing.T) logging.Logger {
	return logging.NewLogger("", logging.LogFuncs{
		Debugf: t.Logf,
		Infof:  t.Logf,
		Warnf:  t.Logf,
		Errorf: t.Logf,
	})
}

func stubSyscalls(t *testing.T, prlimit func(int, int, *unix.Rlimit, *unix.Rlimit) error, setpriority func(int, int, int) error) {
	t.Helper()
	origPrlimit, origSetpriority := prlimitFn, setpriorityFn
	prlimitFn, setpriorityFn = prlimit, setpriority
	t.Cleanup(func() {
		prlimitFn, setpriorityFn = origPrlimit, origSetpriority
	})
}

func TestApplyLimitsContinuesPastRejectedLimit(t *testing.T) {
	var set []int
	stubSyscalls(t,
		func(pid int, resource int, newLimit *unix.Rlimit, old *unix.Rlimit) error {
			// The kernel rejects the process ceiling; everything else is fine
			if resource == unix.RLIMIT_NPROC {
				return syscall.EPERM
			}
			set = append(set, resource)
			return nil
		},
		func(which int, who int, prio int) error {
			set = append(set, -1)
			return nil
		},
	)

	limits := &Limits{
		MaxProcesses: 64,
		MaxOpenFiles: 1024,
		MaxCPUTime:   time.Minute,
		MaxMemory:    256 << 20,
		Priority:     10,
	}

	applied, err := NewEnforcer(testLogger(t)).ApplyLimits(1234, limits)

	// The rejected limit surfaces as an error, but every other ceiling was
	// still applied
	require.Error(t, err)
	require.Len(t, collectionErrors(err), 1)
	assert.True(t, errors.IsResourceLimitError(collectionErrors(err)[0]))
	assert.ElementsMatch(t, []int{unix.RLIMIT_NOFILE, unix.RLIMIT_CPU, unix.RLIMIT_AS, -1}, set)

	names := make([]string, 0, len(applied))
	for _, a := range applied {
		names = append(names, a.Name)
	}
	assert.ElementsMatch(t, []string{"RLIMIT_NOFILE", "RLIMIT_CPU", "RLIMIT_AS", "priority"}, names)
}

func TestApplyLimitsAggregatesAllRejections(t *testing.T) {
	stubSyscalls(t,
		func(pid int, resource int, newLimit *unix.Rlimit, old *unix.Rlimit) error {
			return syscall.EPERM
		},
		func(which int, who int, prio int) error {
			return syscall.EACCES
		},
	)

	limits := &Limits{
		MaxProcesses: 64,
		MaxOpenFiles: 1024,
		Priority:     -5,
	}

	applied, err := NewEnforcer(testLogger(t)).ApplyLimits(1234, limits)
	require.Error(t, err)
	assert.Empty(t, applied)
	assert.Len(t, collectionErrors(err), 3)
	for _, e := range collectionErrors(err) {
		assert.True(t, errors.IsResourceLimitError(e))
	}
}

func TestApplyLimitsAllAccepted(t *testing.T) {
	stubSyscalls(t,
		func(pid int, resource int, newLimit *unix.Rlimit, old *unix.Rlimit) error {
			return nil
		},
		func(which int, who int, prio int) error {
			return nil
		},
	)

	applied, err := NewEnforcer(testLogger(t)).ApplyLimits(1234, &Limits{MaxOpenFiles: 512})
	require.NoError(t, err)
	require.Len(t, applied, 1)
	assert.Equal(t, AppliedLimit{Name: "RLIMIT_NOFILE", Value: 512}, applied[0])
}

func collectionErrors(err error) []error {
	if collection, ok := err.(*errors.ErrorCollection); ok {
		return collection.Errors
	}
	return nil
}
