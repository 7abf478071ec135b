package supervisor

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/core-tools/shell-guardian-go/pkg/errors"
	"github.com/core-tools/shell-guardian-go/pkg/logging"
)

const (
	// crashLogMaxSize triggers rotation; the log only needs enough history
	// to judge a crash loop, not a full audit trail.
	crashLogMaxSize = 10 * 1024
)

// CrashLog persists crash timestamps across guardian restarts so a crash
// loop survives the supervisor itself being restarted (login loop case).
// Format is one line per crash: "<unix_ts> <exit_code>".
type CrashLog struct {
	path   string
	logger logging.Logger
}

func NewCrashLog(path string, logger logging.Logger) *CrashLog {
	return &CrashLog{path: path, logger: logger}
}

// Record appends a crash entry, rotating the file first when it has grown
// past the size cap. Persistence failures are logged and swallowed; losing
// a crash record must never take the supervisor down.
func (c *CrashLog) Record(at time.Time, exitCode int) {
	if c.path == "" {
		return
	}

	if err := c.rotateIfNeeded(); err != nil {
		c.logger.Warnf("Crash log rotation failed: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		c.logger.Warnf("Failed to create crash log directory: %v", err)
		return
	}

	f, err := os.OpenFile(c.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		c.logger.Warnf("Failed to open crash log: %v", err)
		return
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "%d %d\n", at.Unix(), exitCode); err != nil {
		c.logger.Warnf("Failed to append crash log entry: %v", err)
	}
}

// RecentCrashes returns the crash times recorded within the window ending
// at now. Malformed lines are skipped.
func (c *CrashLog) RecentCrashes(now time.Time, window time.Duration) ([]time.Time, error) {
	if c.path == "" {
		return nil, nil
	}

	f, err := os.Open(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewIOError("failed to open crash log", err).WithContext("path", c.path)
	}
	defer f.Close()

	cutoff := now.Add(-window)
	var crashes []time.Time

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		ts, ok := parseCrashLine(scanner.Text())
		if !ok {
			continue
		}
		if !ts.Before(cutoff) && !ts.After(now) {
			crashes = append(crashes, ts)
		}
	}
	if err := scanner.Err(); err != nil {
		return crashes, errors.NewIOError("failed to read crash log", err).WithContext("path", c.path)
	}

	return crashes, nil
}

// rotateIfNeeded rewrites the log with only the newer half of its lines
// once it exceeds the size cap.
func (c *CrashLog) rotateIfNeeded() error {
	info, err := os.Stat(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.Size() <= crashLogMaxSize {
		return nil
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		return err
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	keep := lines[len(lines)/2:]

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strings.Join(keep, "\n")+"\n"), 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, c.path); err != nil {
		os.Remove(tmp)
		return err
	}

	c.logger.Debugf("Crash log rotated, kept %d of %d entries", len(keep), len(lines))
	return nil
}

func parseCrashLine(line string) (time.Time, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return time.Time{}, false
	}
	sec, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(sec, 0), true
}
