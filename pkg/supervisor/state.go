package supervisor

import (
	"fmt"
	"time"
)

// State tracks where a supervised child is in its lifecycle.
type State string

const (
	// StateStarting: spawn requested, process not yet confirmed running
	StateStarting State = "starting"

	// StateRunning: child is alive and being monitored
	StateRunning State = "running"

	// StateBackoff: child failed, waiting out the restart delay
	StateBackoff State = "backoff"

	// StateRestarting: backoff elapsed, respawn in progress
	StateRestarting State = "restarting"

	// StateStopped: child exited cleanly, supervision over
	StateStopped State = "stopped"

	// StateEscalated: restart budget exhausted inside the window
	StateEscalated State = "escalated"
)

// ExitClass is the coarse judgement of how an attempt ended.
type ExitClass string

const (
	ExitClean   ExitClass = "clean"   // exit code 0
	ExitFailure ExitClass = "failure" // nonzero exit code
	ExitSignal  ExitClass = "signal"  // killed by a signal
	ExitSpawn   ExitClass = "spawn"   // never started
)

// Attempt records one spawn of the child and how it ended.
type Attempt struct {
	Number     int
	StartedAt  time.Time
	EndedAt    time.Time
	Class      ExitClass
	ExitCode   int
	SpawnError error
}

// Failed reports whether this attempt counts against the restart budget.
func (a *Attempt) Failed() bool {
	return a.Class != ExitClean
}

// Outcome is the final result of a supervision run.
type Outcome struct {
	State    State
	ExitCode int
	Attempts []Attempt
}

// HistoryLines renders the attempt history for human display, one line per
// spawn.
func (o *Outcome) HistoryLines() []string {
	lines := make([]string, 0, len(o.Attempts))
	for _, a := range o.Attempts {
		when := a.StartedAt.Format(time.RFC3339)
		if a.Class == ExitSpawn {
			lines = append(lines, fmt.Sprintf("attempt %d at %s: spawn failed: %v", a.Number, when, a.SpawnError))
			continue
		}
		lines = append(lines, fmt.Sprintf("attempt %d at %s: %s, exit code %d, ran %s",
			a.Number, when, a.Class, a.ExitCode, a.EndedAt.Sub(a.StartedAt).Round(time.Millisecond)))
	}
	return lines
}
