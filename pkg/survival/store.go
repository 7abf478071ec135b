package survival

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/core-tools/shell-guardian-go/pkg/errors"
	"github.com/core-tools/shell-guardian-go/pkg/integrity"
	"github.com/core-tools/shell-guardian-go/pkg/logging"
)

// Store maintains the fixed set of survival locations in sync with an
// elected reference binary. It owns no background activity: Scan and
// Reconcile run synchronously under the caller's exclusion lock.
type Store struct {
	locations []Location
	logger    logging.Logger
}

// LocationResult is the per-location outcome of one reconciliation pass.
type LocationResult struct {
	Path   string
	Role   Role
	Result CheckResult
	Err    error
}

// ReconcileReport summarizes one reconciliation pass.
type ReconcileReport struct {
	Reference integrity.Fingerprint
	AlreadyOK int
	Repaired  int
	Failed    int
	Results   []LocationResult
}

// AllHealthy reports whether every location ended the pass ok or repaired.
func (r *ReconcileReport) AllHealthy() bool {
	return r.Failed == 0
}

// HumanLines renders the pass as operator-facing text, one line per
// location plus a reference and summary line.
func (r *ReconcileReport) HumanLines() []string {
	lines := make([]string, 0, len(r.Results)+2)
	lines = append(lines, fmt.Sprintf("reference: %s", integrity.FormatFingerprint(r.Reference)))
	for _, result := range r.Results {
		line := fmt.Sprintf("%-13s %s (%s)", string(result.Result)+":", result.Path, result.Role)
		if result.Err != nil {
			line += ": " + result.Err.Error()
		}
		lines = append(lines, line)
	}
	lines = append(lines, fmt.Sprintf("%d ok, %d repaired, %d failed", r.AlreadyOK, r.Repaired, r.Failed))
	return lines
}

// NewStore creates a survival store over the given locations. The list must
// be non-empty; priorities are assigned from list order.
func NewStore(locations []Location, logger logging.Logger) (*Store, error) {
	if len(locations) == 0 {
		return nil, errors.NewValidationError("survival location list cannot be empty", nil)
	}

	owned := make([]Location, len(locations))
	copy(owned, locations)
	for i := range owned {
		owned[i].Priority = i
		if owned[i].LastCheck == "" {
			owned[i].LastCheck = CheckResultUnknown
		}
	}

	return &Store{
		locations: owned,
		logger:    logger,
	}, nil
}

// Locations returns a snapshot of the configured locations with their last
// check results.
func (s *Store) Locations() []Location {
	snapshot := make([]Location, len(s.locations))
	copy(snapshot, s.locations)
	return snapshot
}

// Scan reads every survival location and returns one candidate per
// location, in priority order. Missing files yield absent markers; an
// unreadable file yields a non-eligible candidate and a warning, never a
// failed scan.
func (s *Store) Scan() []integrity.Candidate {
	candidates := make([]integrity.Candidate, 0, len(s.locations))
	for i := range s.locations {
		location := &s.locations[i]
		candidate, err := integrity.ScanCandidate(location.Path, location.Priority)
		if err != nil {
			s.logger.Warnf("Failed to scan survival location, path: %s, error: %v", location.Path, err)
		}
		candidates = append(candidates, candidate)
	}
	return candidates
}

// Reconcile brings every location in sync with the reference candidate.
// Locations already holding byte-identical content are left untouched;
// divergent or absent locations are repaired with an atomic
// write-to-temp-then-rename so a concurrent reader never observes a partial
// file. Per-location failures (read-only filesystem, disk full) are
// reported and do not abort the rest of the pass.
func (s *Store) Reconcile(reference *integrity.Candidate) (*ReconcileReport, error) {
	if reference == nil {
		return nil, errors.NewValidationError("reference candidate cannot be nil", nil)
	}

	referenceData, err := os.ReadFile(reference.Path)
	if err != nil {
		return nil, errors.NewIOError("failed to read reference copy", err).WithContext("path", reference.Path)
	}

	// Guard against the reference changing between classification and now:
	// repairing from unverified bytes would propagate corruption to every
	// writable location.
	if integrity.FingerprintBytes(referenceData) != reference.Fingerprint {
		return nil, errors.NewConflictError("reference copy changed since classification", nil).WithContext("path", reference.Path)
	}

	report := &ReconcileReport{
		Reference: reference.Fingerprint,
		Results:   make([]LocationResult, 0, len(s.locations)),
	}

	for i := range s.locations {
		location := &s.locations[i]
		result := s.reconcileLocation(location, reference.Fingerprint, referenceData)

		location.LastCheck = result.Result
		switch result.Result {
		case CheckResultOK:
			report.AlreadyOK++
		case CheckResultRepaired:
			location.LastRepairTime = time.Now()
			report.Repaired++
		case CheckResultFailed:
			report.Failed++
		}
		report.Results = append(report.Results, result)
	}

	s.logger.Infof("Reconcile pass complete, reference: %s, ok: %d, repaired: %d, failed: %d",
		integrity.FormatFingerprint(reference.Fingerprint), report.AlreadyOK, report.Repaired, report.Failed)

	return report, nil
}

func (s *Store) reconcileLocation(location *Location, referenceFingerprint integrity.Fingerprint, referenceData []byte) LocationResult {
	result := LocationResult{
		Path: location.Path,
		Role: location.Role,
	}

	candidate, scanErr := integrity.ScanCandidate(location.Path, location.Priority)
	if scanErr == nil && candidate.Present && candidate.Executable &&
		candidate.Fingerprint == referenceFingerprint {
		result.Result = CheckResultOK
		return result
	}

	reason := CheckResultCorrupt
	if scanErr != nil || !candidate.Present {
		reason = CheckResultMissing
	}

	if err := writeFileAtomic(location.Path, referenceData, referenceFingerprint); err != nil {
		s.logger.Warnf("Repair failed, path: %s, reason: %s, error: %v", location.Path, reason, err)
		result.Result = CheckResultFailed
		result.Err = err
		return result
	}

	s.logger.Infof("Repaired survival location, path: %s, was: %s", location.Path, reason)
	result.Result = CheckResultRepaired
	return result
}

// writeFileAtomic replaces path with data via a temp file in the same
// directory. The temp content is re-read and fingerprint-verified before
// the rename, so a short write or bit flip on the way down never reaches
// the live path.
func writeFileAtomic(path string, data []byte, expected integrity.Fingerprint) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.NewIOError("failed to create location directory", err).WithContext("dir", dir)
	}

	tmp, err := os.CreateTemp(dir, ".guardian-*.tmp")
	if err != nil {
		return errors.NewIOError("failed to create temp file", err).WithContext("dir", dir)
	}
	tmpPath := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return errors.NewIOError("failed to write repair content", err).WithContext("path", tmpPath)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return errors.NewIOError("failed to sync repair content", err).WithContext("path", tmpPath)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.NewIOError("failed to close temp file", err).WithContext("path", tmpPath)
	}

	written, err := integrity.FingerprintFile(tmpPath)
	if err != nil {
		os.Remove(tmpPath)
		return err
	}
	if written != expected {
		os.Remove(tmpPath)
		return errors.NewIOError(
			fmt.Sprintf("written content does not match reference fingerprint %s", integrity.FormatFingerprint(expected)), nil,
		).WithContext("path", tmpPath)
	}

	if err := os.Chmod(tmpPath, 0o755); err != nil {
		os.Remove(tmpPath)
		return errors.NewPermissionError("failed to set executable bit", err).WithContext("path", tmpPath)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return errors.NewIOError("failed to rename temp file into place", err).WithContext("path", path)
	}

	return nil
}
