package process

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateExecutionConfig(t *testing.T) {
	dir := t.TempDir()
	executable := filepath.Join(dir, "child")
	require.NoError(t, os.WriteFile(executable, []byte("#!/bin/sh\nexit 0\n"), 0755))

	tests := []struct {
		name      string
		config    ExecutionConfig
		shouldErr bool
	}{
		{
			name: "valid_minimal",
			config: ExecutionConfig{
				ExecutablePath: executable,
			},
			shouldErr: false,
		},
		{
			name: "valid_with_working_directory",
			config: ExecutionConfig{
				ExecutablePath:   executable,
				WorkingDirectory: dir,
			},
			shouldErr: false,
		},
		{
			name: "valid_with_environment",
			config: ExecutionConfig{
				ExecutablePath: executable,
				Environment:    []string{"GUARDIAN_CHILD=1"},
			},
			shouldErr: false,
		},
		{
			name:      "missing_executable_path",
			config:    ExecutionConfig{},
			shouldErr: true,
		},
		{
			name: "executable_not_found",
			config: ExecutionConfig{
				ExecutablePath: filepath.Join(dir, "missing"),
			},
			shouldErr: true,
		},
		{
			name: "relative_working_directory",
			config: ExecutionConfig{
				ExecutablePath:   executable,
				WorkingDirectory: "relative/dir",
			},
			shouldErr: true,
		},
		{
			name: "working_directory_is_file",
			config: ExecutionConfig{
				ExecutablePath:   executable,
				WorkingDirectory: executable,
			},
			shouldErr: true,
		},
		{
			name: "invalid_environment_entry",
			config: ExecutionConfig{
				ExecutablePath: executable,
				Environment:    []string{"NO_EQUALS_SIGN"},
			},
			shouldErr: true,
		},
		{
			name: "negative_wait_delay",
			config: ExecutionConfig{
				ExecutablePath: executable,
				WaitDelay:      -time.Second,
			},
			shouldErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateExecutionConfig(tt.config)
			if tt.shouldErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEnsureExecutable(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("execute bits are not meaningful on Windows")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "copy")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0644))

	require.NoError(t, EnsureExecutable(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&0111)

	// Already executable files are left alone
	require.NoError(t, EnsureExecutable(path))

	assert.Error(t, EnsureExecutable(filepath.Join(dir, "missing")))
}
