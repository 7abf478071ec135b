package config

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/core-tools/shell-guardian-go/pkg/errors"
	"github.com/core-tools/shell-guardian-go/pkg/integrity"
	"github.com/core-tools/shell-guardian-go/pkg/keeper"
	"github.com/core-tools/shell-guardian-go/pkg/logging"
	"github.com/core-tools/shell-guardian-go/pkg/process"
	"github.com/core-tools/shell-guardian-go/pkg/supervisor"
	"github.com/core-tools/shell-guardian-go/pkg/survival"
)

// LocationConfig is one survival location as written in the config file.
// List order defines priority: earlier locations are preferred as
// reference tie-breakers and searched first.
type LocationConfig struct {
	Path string `yaml:"path"`
	Role string `yaml:"role,omitempty"`
}

// GuardianConfig is the root configuration shared by the guardian and the
// keeper.
type GuardianConfig struct {
	Logging           logging.ZapConfig `yaml:"logging,omitempty"`
	Locations         []LocationConfig  `yaml:"locations"`
	Supervisor        supervisor.Config `yaml:"supervisor"`
	Keeper            keeper.Config     `yaml:"keeper,omitempty"`
	PinnedFingerprint string            `yaml:"pinned_fingerprint,omitempty"`
}

// Default returns the configuration used when no config file is given:
// default logging, no survival locations, supervisor populated entirely from
// the command line.
func Default() *GuardianConfig {
	config := &GuardianConfig{
		Logging: logging.DefaultZapConfig(),
	}
	supervisor.SetConfigDefaults(&config.Supervisor)
	keeper.SetConfigDefaults(&config.Keeper)
	return config
}

// ApplyCommand overrides the supervised command with one given on the
// command line. The command is resolved against PATH; its args replace any
// configured args wholesale.
func (c *GuardianConfig) ApplyCommand(command string, args []string) error {
	resolved, err := process.ResolveExecutable(command)
	if err != nil {
		return err
	}
	c.Supervisor.Execution.ExecutablePath = resolved
	c.Supervisor.Execution.Args = args
	return nil
}

// LoadConfigFromFile reads, defaults, and validates a guardian config.
// Configuration problems fail fast here so neither binary starts half
// configured.
func LoadConfigFromFile(path string) (*GuardianConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewIOError("failed to read config file", err).WithContext("path", path)
	}

	var config GuardianConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.NewValidationError("failed to parse config file", err).WithContext("path", path)
	}

	setConfigDefaults(&config)

	if err := ValidateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setConfigDefaults(config *GuardianConfig) {
	if config.Logging.Level == "" {
		config.Logging = logging.DefaultZapConfig()
	}

	// Bare command names are resolved against PATH before validation stats
	// the path
	if config.Supervisor.Execution.ExecutablePath != "" {
		if resolved, err := process.ResolveExecutable(config.Supervisor.Execution.ExecutablePath); err == nil {
			config.Supervisor.Execution.ExecutablePath = resolved
		}
	}
	supervisor.SetConfigDefaults(&config.Supervisor)
	keeper.SetConfigDefaults(&config.Keeper)

	for i := range config.Locations {
		if config.Locations[i].Role == "" {
			if i == 0 {
				config.Locations[i].Role = string(survival.RolePrimary)
			} else {
				config.Locations[i].Role = string(survival.RoleBackup)
			}
		}
	}
}

// ValidateConfig checks the whole configuration tree.
func ValidateConfig(config *GuardianConfig) error {
	if len(config.Locations) == 0 {
		return errors.NewValidationError("at least one survival location is required", nil)
	}

	seen := make(map[string]bool)
	for _, location := range config.Locations {
		if location.Path == "" {
			return errors.NewValidationError("survival location path cannot be empty", nil)
		}
		if !filepath.IsAbs(location.Path) {
			return errors.NewValidationError("survival location path must be absolute: "+location.Path, nil)
		}
		clean := filepath.Clean(location.Path)
		if seen[clean] {
			return errors.NewValidationError("duplicate survival location: "+location.Path, nil)
		}
		seen[clean] = true

		switch survival.Role(location.Role) {
		case survival.RolePrimary, survival.RoleBackup, survival.RoleHideout:
		default:
			return errors.NewValidationError("unknown location role: "+location.Role, nil)
		}
	}

	// The supervisor section is optional for keeper-only deployments; the
	// guardian binary insists on it at startup.
	if config.Supervisor.Execution.ExecutablePath != "" {
		if err := supervisor.ValidateConfig(&config.Supervisor); err != nil {
			return err
		}
	}
	if err := keeper.ValidateConfig(&config.Keeper); err != nil {
		return err
	}

	if config.PinnedFingerprint != "" {
		if _, err := integrity.ParseFingerprint(strings.TrimSpace(config.PinnedFingerprint)); err != nil {
			return errors.NewValidationError("invalid pinned_fingerprint", err)
		}
	}

	return nil
}

// BuildLocations converts configured locations into store locations.
func (c *GuardianConfig) BuildLocations() []survival.Location {
	locations := make([]survival.Location, len(c.Locations))
	for i, lc := range c.Locations {
		locations[i] = survival.Location{
			Path: lc.Path,
			Role: survival.Role(lc.Role),
		}
	}
	return locations
}

// Pinned resolves the effective pinned fingerprint: config first, then the
// build-time value injected via ldflags.
func (c *GuardianConfig) Pinned() (*integrity.Fingerprint, error) {
	if c.PinnedFingerprint != "" {
		fp, err := integrity.ParseFingerprint(strings.TrimSpace(c.PinnedFingerprint))
		if err != nil {
			return nil, err
		}
		return &fp, nil
	}
	return integrity.Pinned()
}
