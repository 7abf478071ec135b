package supervisor

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/core-tools/shell-guardian-go/pkg/errors"
	"github.com/core-tools/shell-guardian-go/pkg/logging"
	"github.com/core-tools/shell-guardian-go/pkg/process"
	"github.com/core-tools/shell-guardian-go/pkg/resourcelimits"
)

const (
	DefaultMaxRestarts      = 5
	DefaultRestartWindow    = 60 * time.Second
	DefaultBackoffBase      = 1 * time.Second
	DefaultBackoffCap       = 30 * time.Second
	DefaultTerminateTimeout = 10 * time.Second
)

// Config drives one supervision run.
type Config struct {
	// Execution describes the child to spawn and respawn
	Execution process.ExecutionConfig `yaml:"execution"`

	// MaxRestarts is the number of restart attempts after the initial
	// spawn; total spawns are MaxRestarts+1 before escalation
	MaxRestarts int `yaml:"max_restarts,omitempty"`

	// RestartWindow bounds how far back failures count against the
	// restart budget
	RestartWindow time.Duration `yaml:"restart_window,omitempty"`

	// BackoffBase is the delay before the first restart; it doubles per
	// attempt up to BackoffCap
	BackoffBase time.Duration `yaml:"backoff_base,omitempty"`
	BackoffCap  time.Duration `yaml:"backoff_cap,omitempty"`

	// TerminateTimeout is the grace period between the termination signal
	// and a forced kill
	TerminateTimeout time.Duration `yaml:"terminate_timeout,omitempty"`

	// Limits, when set, are enforced and monitored on each spawn
	Limits *resourcelimits.Limits `yaml:"limits,omitempty"`

	// CrashLogPath persists crash history across supervisor restarts
	CrashLogPath string `yaml:"crash_log_path,omitempty"`

	// KeeperCheckPath, when set, is spawned detached once per run so the
	// store gets verified even if the keeper service is not installed
	KeeperCheckPath string `yaml:"keeper_check_path,omitempty"`
}

// SetConfigDefaults fills unset fields with production defaults.
func SetConfigDefaults(config *Config) {
	if config.MaxRestarts == 0 {
		config.MaxRestarts = DefaultMaxRestarts
	}
	if config.RestartWindow == 0 {
		config.RestartWindow = DefaultRestartWindow
	}
	if config.BackoffBase == 0 {
		config.BackoffBase = DefaultBackoffBase
	}
	if config.BackoffCap == 0 {
		config.BackoffCap = DefaultBackoffCap
	}
	if config.TerminateTimeout == 0 {
		config.TerminateTimeout = DefaultTerminateTimeout
	}
}

// ValidateConfig checks a supervision config for misconfiguration.
func ValidateConfig(config *Config) error {
	if err := process.ValidateExecutionConfig(config.Execution); err != nil {
		return err
	}
	if config.MaxRestarts < 0 {
		return errors.NewValidationError("max_restarts cannot be negative", nil)
	}
	if config.RestartWindow < 0 {
		return errors.NewValidationError("restart_window cannot be negative", nil)
	}
	if config.BackoffBase < 0 || config.BackoffCap < 0 {
		return errors.NewValidationError("backoff durations cannot be negative", nil)
	}
	if err := resourcelimits.Validate(config.Limits); err != nil {
		return err
	}
	return nil
}

// Supervisor runs a child process under a restart circuit breaker: failures
// restart the child with exponential backoff until the budget inside the
// sliding window is spent, at which point supervision escalates instead of
// looping forever.
type Supervisor struct {
	config     Config
	executeCmd process.StdExecuteCmd
	enforcer   resourcelimits.Enforcer
	crashLog   *CrashLog
	logger     logging.Logger

	mu    sync.Mutex
	state State
}

func NewSupervisor(config Config, logger logging.Logger) (*Supervisor, error) {
	SetConfigDefaults(&config)
	if err := ValidateConfig(&config); err != nil {
		return nil, err
	}

	return &Supervisor{
		config:     config,
		executeCmd: process.NewStdExecuteCmd(config.Execution, config.Execution.ExecutablePath, logger),
		enforcer:   resourcelimits.NewEnforcer(logger),
		crashLog:   NewCrashLog(config.CrashLogPath, logger),
		logger:     logger,
		state:      StateStarting,
	}, nil
}

// State returns the current supervision state. Safe for concurrent use.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Run supervises the child until it exits cleanly, the context is cancelled,
// or the restart budget is exhausted. The returned outcome always carries
// the full attempt history; the error is non-nil only for escalation and
// cancellation.
func (s *Supervisor) Run(ctx context.Context) (*Outcome, error) {
	outcome := &Outcome{State: StateStarting}

	// A crash loop that predates this run (guardian itself being respawned
	// by a login loop) escalates immediately instead of burning another
	// restart budget.
	if crashes, err := s.crashLog.RecentCrashes(time.Now(), s.config.RestartWindow); err != nil {
		s.logger.Warnf("Failed to read crash history: %v", err)
	} else if len(crashes) > s.config.MaxRestarts {
		s.logger.Errorf("Crash loop detected before start: %d crashes within %v", len(crashes), s.config.RestartWindow)
		outcome.State = StateEscalated
		s.setState(StateEscalated)
		return outcome, errors.NewEscalationError("crash loop detected at startup", nil).
			WithContext("crashes", len(crashes)).
			WithContext("window", s.config.RestartWindow.String())
	}

	s.spawnKeeperCheck()

	for attemptNum := 1; ; attemptNum++ {
		if attemptNum == 1 {
			s.setState(StateStarting)
		} else {
			s.setState(StateRestarting)
		}

		attempt := s.runAttempt(ctx, attemptNum)
		outcome.Attempts = append(outcome.Attempts, attempt)
		outcome.ExitCode = attempt.ExitCode

		if ctx.Err() != nil {
			s.setState(StateStopped)
			outcome.State = StateStopped
			return outcome, errors.NewCancelledError("supervision cancelled", ctx.Err())
		}

		if !attempt.Failed() {
			s.logger.Infof("Child exited cleanly after %d attempt(s)", attemptNum)
			s.setState(StateStopped)
			outcome.State = StateStopped
			return outcome, nil
		}

		s.crashLog.Record(attempt.EndedAt, attempt.ExitCode)

		failures := s.failuresInWindow(outcome.Attempts, time.Now())
		if failures > s.config.MaxRestarts {
			s.logger.Errorf("Restart budget exhausted: %d failures within %v, escalating",
				failures, s.config.RestartWindow)
			s.setState(StateEscalated)
			outcome.State = StateEscalated
			return outcome, errors.NewEscalationError("restart budget exhausted", nil).
				WithContext("failures", failures).
				WithContext("max_restarts", s.config.MaxRestarts)
		}

		delay := BackoffDelay(s.config.BackoffBase, s.config.BackoffCap, failures)
		s.logger.Warnf("Child failed (attempt %d, exit code %d), restarting in %v",
			attemptNum, attempt.ExitCode, delay)

		s.setState(StateBackoff)
		if !sleepContext(ctx, delay) {
			s.setState(StateStopped)
			outcome.State = StateStopped
			return outcome, errors.NewCancelledError("supervision cancelled during backoff", ctx.Err())
		}
	}
}

// runAttempt spawns the child once and waits for it to end.
func (s *Supervisor) runAttempt(ctx context.Context, attemptNum int) Attempt {
	attempt := Attempt{Number: attemptNum, StartedAt: time.Now()}

	childCtx, cancelChild := context.WithCancel(ctx)
	defer cancelChild()

	proc, stdout, err := s.executeCmd(childCtx)
	if err != nil {
		attempt.EndedAt = time.Now()
		attempt.Class = ExitSpawn
		attempt.ExitCode = -1
		attempt.SpawnError = err
		s.logger.Errorf("Spawn failed on attempt %d: %v", attemptNum, err)
		return attempt
	}

	s.setState(StateRunning)

	if !s.config.Limits.IsZero() {
		if _, err := s.enforcer.ApplyLimits(proc.Pid, s.config.Limits); err != nil {
			s.logger.Warnf("Failed to apply resource limits to PID %d: %v", proc.Pid, err)
		}
	}

	violations := make(chan *resourcelimits.Violation, 1)
	if !s.config.Limits.IsZero() {
		monitor := resourcelimits.NewMonitor(proc.Pid, s.config.Limits, func(v *resourcelimits.Violation) {
			select {
			case violations <- v:
			default:
			}
		}, s.logger)
		go monitor.Run(childCtx)
	}

	go s.drainOutput(stdout)

	waitCh := make(chan int, 1)
	go func() {
		state, err := proc.Wait()
		if err != nil {
			s.logger.Warnf("Wait failed for PID %d: %v", proc.Pid, err)
			waitCh <- -1
			return
		}
		waitCh <- state.ExitCode()
	}()

	select {
	case code := <-waitCh:
		attempt.EndedAt = time.Now()
		attempt.ExitCode = code
		switch {
		case code == 0:
			attempt.Class = ExitClean
		case code == -1:
			attempt.Class = ExitSignal
		default:
			attempt.Class = ExitFailure
		}
		return attempt

	case v := <-violations:
		s.logger.Errorf("Terminating PID %d over resource violation: %s", proc.Pid, v)
		s.terminate(proc.Pid, waitCh)
		attempt.EndedAt = time.Now()
		attempt.Class = ExitFailure
		attempt.ExitCode = -1
		return attempt

	case <-ctx.Done():
		s.logger.Infof("Supervision cancelled, terminating PID %d", proc.Pid)
		s.terminate(proc.Pid, waitCh)
		attempt.EndedAt = time.Now()
		attempt.Class = ExitSignal
		attempt.ExitCode = -1
		return attempt
	}
}

// terminate asks the child to exit and force-kills it past the grace period.
func (s *Supervisor) terminate(pid int, waitCh <-chan int) {
	if err := process.SendTerminationSignal(pid, false, s.config.TerminateTimeout); err != nil {
		s.logger.Warnf("Failed to signal PID %d: %v", pid, err)
	}

	select {
	case <-waitCh:
		return
	case <-time.After(s.config.TerminateTimeout):
		s.logger.Warnf("PID %d ignored termination signal, killing", pid)
		if err := process.ForceKill(pid); err != nil {
			s.logger.Errorf("Failed to kill PID %d: %v", pid, err)
		}
		<-waitCh
	}
}

func (s *Supervisor) drainOutput(stdout io.ReadCloser) {
	defer stdout.Close()
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		s.logger.Debugf("child: %s", scanner.Text())
	}
}

// failuresInWindow counts failed attempts whose end time falls inside the
// sliding window. Old failures age out, so an occasionally-crashing child
// never accumulates toward escalation.
func (s *Supervisor) failuresInWindow(attempts []Attempt, now time.Time) int {
	cutoff := now.Add(-s.config.RestartWindow)
	count := 0
	for i := range attempts {
		if attempts[i].Failed() && !attempts[i].EndedAt.Before(cutoff) {
			count++
		}
	}
	return count
}

// spawnKeeperCheck launches the keeper in check mode, fully detached, so
// store verification happens even on hosts without the keeper service.
func (s *Supervisor) spawnKeeperCheck() {
	if s.config.KeeperCheckPath == "" {
		return
	}

	cmd := exec.Command(s.config.KeeperCheckPath, "check")
	setupDetachedAttributes(cmd)
	if err := cmd.Start(); err != nil {
		s.logger.Warnf("Failed to spawn keeper check: %v", err)
		return
	}
	s.logger.Debugf("Spawned detached keeper check, PID: %d", cmd.Process.Pid)
	if err := cmd.Process.Release(); err != nil {
		s.logger.Debugf("Failed to release keeper check process: %v", err)
	}
}

// sleepContext waits for the duration unless the context ends first.
// Returns false when cancelled.
func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
