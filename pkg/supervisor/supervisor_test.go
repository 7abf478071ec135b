package supervisor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-tools/shell-guardian-go/pkg/errors"
	"github.com/core-tools/shell-guardian-go/pkg/process"
)

func writeScript(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755))
	return path
}

func fastConfig(executable string) Config {
	return Config{
		Execution: process.ExecutionConfig{
			ExecutablePath: executable,
		},
		MaxRestarts:      3,
		RestartWindow:    time.Minute,
		BackoffBase:      10 * time.Millisecond,
		BackoffCap:       50 * time.Millisecond,
		TerminateTimeout: time.Second,
	}
}

func TestSupervisorCleanExit(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	sup, err := NewSupervisor(fastConfig(writeScript(t, "ok", "exit 0")), testLogger(t))
	require.NoError(t, err)

	outcome, err := sup.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateStopped, outcome.State)
	assert.Equal(t, 0, outcome.ExitCode)
	assert.Len(t, outcome.Attempts, 1)
	assert.Equal(t, ExitClean, outcome.Attempts[0].Class)
	assert.Equal(t, StateStopped, sup.State())
}

func TestSupervisorEscalatesAfterBudget(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	sup, err := NewSupervisor(fastConfig(writeScript(t, "fail", "exit 7")), testLogger(t))
	require.NoError(t, err)

	outcome, err := sup.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsEscalationError(err))

	assert.Equal(t, StateEscalated, outcome.State)
	assert.Equal(t, 7, outcome.ExitCode)
	// Initial spawn plus exactly MaxRestarts restart attempts
	assert.Len(t, outcome.Attempts, 4)
	for _, a := range outcome.Attempts {
		assert.Equal(t, ExitFailure, a.Class)
		assert.Equal(t, 7, a.ExitCode)
	}

	lines := outcome.HistoryLines()
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "exit code 7")
}

func TestSupervisorRecoversAfterTransientFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	// Fails until the marker file exists, which the first run creates
	dir := t.TempDir()
	marker := filepath.Join(dir, "marker")
	script := writeScript(t, "flaky", fmt.Sprintf(
		"if [ -f %s ]; then exit 0; fi\ntouch %s\nexit 1", marker, marker))

	sup, err := NewSupervisor(fastConfig(script), testLogger(t))
	require.NoError(t, err)

	outcome, err := sup.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateStopped, outcome.State)
	assert.Len(t, outcome.Attempts, 2)
	assert.Equal(t, ExitFailure, outcome.Attempts[0].Class)
	assert.Equal(t, ExitClean, outcome.Attempts[1].Class)
}

func TestSupervisorCancellation(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	sup, err := NewSupervisor(fastConfig(writeScript(t, "sleeper", "sleep 60")), testLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	outcome, err := sup.Run(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsCancelledError(err))
	assert.Equal(t, StateStopped, outcome.State)
	assert.Less(t, time.Since(start), 10*time.Second, "cancellation must not wait out the child")
}

func TestSupervisorRecordsCrashes(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	crashLog := filepath.Join(t.TempDir(), "crashes.log")
	config := fastConfig(writeScript(t, "fail", "exit 1"))
	config.CrashLogPath = crashLog

	sup, err := NewSupervisor(config, testLogger(t))
	require.NoError(t, err)

	_, err = sup.Run(context.Background())
	require.Error(t, err)

	crashes, err := NewCrashLog(crashLog, testLogger(t)).RecentCrashes(time.Now(), time.Minute)
	require.NoError(t, err)
	assert.Len(t, crashes, 4)
}

func TestSupervisorEscalatesOnPreexistingCrashLoop(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	crashLogPath := filepath.Join(t.TempDir(), "crashes.log")
	log := NewCrashLog(crashLogPath, testLogger(t))
	now := time.Now()
	for i := 0; i < 5; i++ {
		log.Record(now.Add(-time.Duration(i)*time.Second), 1)
	}

	config := fastConfig(writeScript(t, "ok", "exit 0"))
	config.CrashLogPath = crashLogPath

	sup, err := NewSupervisor(config, testLogger(t))
	require.NoError(t, err)

	outcome, err := sup.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsEscalationError(err))
	assert.Equal(t, StateEscalated, outcome.State)
	assert.Empty(t, outcome.Attempts, "no spawn happens once a loop is detected")
}

func TestNewSupervisorRejectsInvalidConfig(t *testing.T) {
	_, err := NewSupervisor(Config{}, testLogger(t))
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
}
