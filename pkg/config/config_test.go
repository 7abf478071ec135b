package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-tools/shell-guardian-go/pkg/errors"
	"github.com/core-tools/shell-guardian-go/pkg/supervisor"
	"github.com/core-tools/shell-guardian-go/pkg/survival"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "guardian.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	child := filepath.Join(dir, "child")
	require.NoError(t, os.WriteFile(child, []byte("#!/bin/sh\nexit 0\n"), 0755))

	path := writeConfig(t, `
logging:
  level: debug
  format: console
locations:
  - path: /usr/local/bin/guardian
  - path: /var/lib/guardian/guardian
    role: backup
  - path: /opt/tools/.cache/guardian
    role: hideout
supervisor:
  execution:
    executable_path: `+child+`
  max_restarts: 3
keeper:
  interval: 30m
`)

	config, err := LoadConfigFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", config.Logging.Level)
	require.Len(t, config.Locations, 3)
	// First location defaults to primary, later ones to backup
	assert.Equal(t, string(survival.RolePrimary), config.Locations[0].Role)
	assert.Equal(t, string(survival.RoleBackup), config.Locations[1].Role)
	assert.Equal(t, string(survival.RoleHideout), config.Locations[2].Role)

	assert.Equal(t, 3, config.Supervisor.MaxRestarts)
	assert.Equal(t, supervisor.DefaultRestartWindow, config.Supervisor.RestartWindow)

	locations := config.BuildLocations()
	require.Len(t, locations, 3)
	assert.Equal(t, "/usr/local/bin/guardian", locations[0].Path)
	assert.Equal(t, survival.RolePrimary, locations[0].Role)
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "no_locations",
			content: "locations: []\n",
		},
		{
			name: "relative_location",
			content: `
locations:
  - path: relative/guardian
`,
		},
		{
			name: "duplicate_location",
			content: `
locations:
  - path: /usr/local/bin/guardian
  - path: /usr/local/bin/guardian
`,
		},
		{
			name: "unknown_role",
			content: `
locations:
  - path: /usr/local/bin/guardian
    role: sidecar
`,
		},
		{
			name: "bad_pinned_fingerprint",
			content: `
locations:
  - path: /usr/local/bin/guardian
pinned_fingerprint: not-hex
`,
		},
		{
			name:    "malformed_yaml",
			content: "locations: [\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfigFromFile(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.True(t, errors.IsValidationError(err), "expected validation error, got: %v", err)
		})
	}
}

func TestLoadConfigResolvesBareCommand(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on sh being on PATH")
	}

	path := writeConfig(t, `
locations:
  - path: /usr/local/bin/guardian
supervisor:
  execution:
    executable_path: sh
`)

	config, err := LoadConfigFromFile(path)
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(config.Supervisor.Execution.ExecutablePath))
}

func TestDefaultConfig(t *testing.T) {
	config := Default()
	assert.Equal(t, "info", config.Logging.Level)
	assert.Equal(t, supervisor.DefaultMaxRestarts, config.Supervisor.MaxRestarts)
	assert.Empty(t, config.Supervisor.Execution.ExecutablePath)
}

func TestApplyCommandOverridesConfiguredChild(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on sh being on PATH")
	}

	dir := t.TempDir()
	configured := filepath.Join(dir, "configured")
	require.NoError(t, os.WriteFile(configured, []byte("#!/bin/sh\nexit 0\n"), 0755))

	config := Default()
	config.Supervisor.Execution.ExecutablePath = configured
	config.Supervisor.Execution.Args = []string{"--from-config"}

	require.NoError(t, config.ApplyCommand("sh", []string{"-c", "exit 1"}))

	assert.True(t, filepath.IsAbs(config.Supervisor.Execution.ExecutablePath))
	assert.NotEqual(t, configured, config.Supervisor.Execution.ExecutablePath)
	assert.Equal(t, []string{"-c", "exit 1"}, config.Supervisor.Execution.Args,
		"command-line args replace configured args wholesale")
}

func TestApplyCommandUnknownCommand(t *testing.T) {
	config := Default()
	err := config.ApplyCommand("definitely-not-on-path-anywhere", nil)
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfigFromFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsIOError(err))
}

func TestPinnedFingerprintFromConfig(t *testing.T) {
	hex := strings.Repeat("ab", 32)
	config := &GuardianConfig{
		Locations:         []LocationConfig{{Path: "/usr/local/bin/guardian", Role: "primary"}},
		PinnedFingerprint: hex,
	}
	require.NoError(t, ValidateConfig(config))

	fp, err := config.Pinned()
	require.NoError(t, err)
	require.NotNil(t, fp)
}
