package keeper

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/core-tools/shell-guardian-go/pkg/errors"
)

// Status is what the last keeper pass concluded, persisted as a small
// key=value file so shell scripts and humans can read it without tooling.
type Status struct {
	CheckedAt time.Time
	Result    string // healthy, degraded, no_quorum, error
	Reference string // hex fingerprint of the elected reference
	OK        int
	Repaired  int
	Failed    int
	Detail    string
}

const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
	StatusNoQuorum = "no_quorum"
	StatusError    = "error"
)

// WriteStatus persists the status atomically. The status file is advisory;
// callers treat write failures as non-fatal.
func WriteStatus(path string, status *Status) error {
	if path == "" {
		return nil
	}

	fields := map[string]string{
		"checked_at": status.CheckedAt.UTC().Format(time.RFC3339),
		"result":     status.Result,
		"reference":  status.Reference,
		"ok":         fmt.Sprintf("%d", status.OK),
		"repaired":   fmt.Sprintf("%d", status.Repaired),
		"failed":     fmt.Sprintf("%d", status.Failed),
	}
	if status.Detail != "" {
		fields["detail"] = status.Detail
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s=%s\n", k, fields[k])
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.NewIOError("failed to create status directory", err).WithContext("path", path)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(sb.String()), 0644); err != nil {
		return errors.NewIOError("failed to write status file", err).WithContext("path", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errors.NewIOError("failed to rename status file", err).WithContext("path", path)
	}
	return nil
}

// ReadStatus parses a status file written by WriteStatus. Unknown keys are
// ignored for forward compatibility.
func ReadStatus(path string) (*Status, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewIOError("failed to read status file", err).WithContext("path", path)
	}

	status := &Status{}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		switch key {
		case "checked_at":
			if ts, err := time.Parse(time.RFC3339, value); err == nil {
				status.CheckedAt = ts
			}
		case "result":
			status.Result = value
		case "reference":
			status.Reference = value
		case "ok":
			fmt.Sscanf(value, "%d", &status.OK)
		case "repaired":
			fmt.Sscanf(value, "%d", &status.Repaired)
		case "failed":
			fmt.Sscanf(value, "%d", &status.Failed)
		case "detail":
			status.Detail = value
		}
	}
	return status, nil
}
