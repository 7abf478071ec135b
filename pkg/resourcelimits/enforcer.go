package resourcelimits

import (
	"github.com/core-tools/shell-guardian-go/pkg/logging"
)

// AppliedLimit records one kernel limit that was actually set for a child.
type AppliedLimit struct {
	Name  string
	Value int64
}

// Enforcer applies kernel-level resource limits to a running process.
type Enforcer interface {
	// ApplyLimits sets the configured limits on the process. Unsupported
	// dimensions on the current platform are logged and skipped, not
	// treated as fatal.
	ApplyLimits(pid int, limits *Limits) ([]AppliedLimit, error)
}

type enforcer struct {
	logger logging.Logger
}

// NewEnforcer creates a resource limit enforcer for the current platform.
func NewEnforcer(logger logging.Logger) Enforcer {
	return &enforcer{logger: logger}
}

func (e *enforcer) ApplyLimits(pid int, limits *Limits) ([]AppliedLimit, error) {
	if limits.IsZero() {
		return nil, nil
	}

	if err := Validate(limits); err != nil {
		return nil, err
	}

	e.logger.Infof("Applying resource limits to PID %d", pid)

	// Partial application is expected: rejected limits come back as an
	// aggregated error while everything the kernel accepted stays in force.
	applied, err := applyLimitsImpl(pid, limits, e.logger)

	for _, a := range applied {
		e.logger.Debugf("Applied limit %s=%d to PID %d", a.Name, a.Value, pid)
	}
	return applied, err
}
