package resourcelimits

import (
	"time"

	"github.com/core-tools/shell-guardian-go/pkg/errors"
)

// Limits bounds the resource usage of a supervised child. Zero values mean
// "no limit" for that dimension.
type Limits struct {
	// Maximum number of processes/threads the child may create
	MaxProcesses int `yaml:"max_processes,omitempty"`

	// Maximum open file descriptors
	MaxOpenFiles int `yaml:"max_open_files,omitempty"`

	// Maximum CPU time the child may consume
	MaxCPUTime time.Duration `yaml:"max_cpu_time,omitempty"`

	// Maximum resident memory in bytes
	MaxMemory int64 `yaml:"max_memory,omitempty"`

	// Scheduling priority (nice value on Unix, -20..19)
	Priority int `yaml:"priority,omitempty"`

	// How often the monitor samples usage; defaults to 5s when limits are set
	MonitorInterval time.Duration `yaml:"monitor_interval,omitempty"`
}

// IsZero reports whether no limit is configured at all.
func (l *Limits) IsZero() bool {
	return l == nil || (l.MaxProcesses == 0 && l.MaxOpenFiles == 0 &&
		l.MaxCPUTime == 0 && l.MaxMemory == 0 && l.Priority == 0)
}

// Validate checks limit values for obvious misconfiguration.
func Validate(l *Limits) error {
	if l == nil {
		return nil
	}
	if l.MaxProcesses < 0 {
		return errors.NewValidationError("max_processes cannot be negative", nil)
	}
	if l.MaxOpenFiles < 0 {
		return errors.NewValidationError("max_open_files cannot be negative", nil)
	}
	if l.MaxCPUTime < 0 {
		return errors.NewValidationError("max_cpu_time cannot be negative", nil)
	}
	if l.MaxMemory < 0 {
		return errors.NewValidationError("max_memory cannot be negative", nil)
	}
	if l.Priority < -20 || l.Priority > 19 {
		return errors.NewValidationError("priority must be between -20 and 19", nil)
	}
	if l.MonitorInterval < 0 {
		return errors.NewValidationError("monitor_interval cannot be negative", nil)
	}
	return nil
}
