package integrity

import (
	"encoding/hex"
	"io"
	"os"
	"time"

	"github.com/core-tools/shell-guardian-go/pkg/errors"

	"github.com/zeebo/blake3"
)

// Fingerprint is a 32-byte BLAKE3 digest of a binary's content. It is
// computed over file bytes only, never over metadata, so two byte-identical
// copies at different paths always carry the same fingerprint.
type Fingerprint [32]byte

// FingerprintFile computes the content fingerprint of the file at path by
// streaming it through the hasher. Fails with an IO error when the file is
// missing or unreadable.
func FingerprintFile(path string) (Fingerprint, error) {
	var fp Fingerprint

	f, err := os.Open(path)
	if err != nil {
		return fp, errors.NewIOError("failed to open candidate for fingerprinting", err).WithContext("path", path)
	}
	defer f.Close()

	hasher := blake3.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return fp, errors.NewIOError("failed to read candidate content", err).WithContext("path", path)
	}

	copy(fp[:], hasher.Sum(nil))
	return fp, nil
}

// FingerprintBytes computes the content fingerprint of an in-memory buffer.
// Used to verify freshly written repair content before it is renamed into
// place.
func FingerprintBytes(data []byte) Fingerprint {
	var fp Fingerprint
	hasher := blake3.New()
	hasher.Write(data)
	copy(fp[:], hasher.Sum(nil))
	return fp
}

// FormatFingerprint returns the canonical hex representation used in logs,
// status files, and CLI output.
func FormatFingerprint(fp Fingerprint) string {
	return hex.EncodeToString(fp[:])
}

// ParseFingerprint parses a 64-character hex string into a Fingerprint.
func ParseFingerprint(hexString string) (Fingerprint, error) {
	var fp Fingerprint
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return fp, errors.NewValidationError("fingerprint is not valid hex", err)
	}
	if len(decoded) != len(fp) {
		return fp, errors.NewValidationError("fingerprint has wrong length", nil).WithContext("bytes", len(decoded))
	}
	copy(fp[:], decoded)
	return fp, nil
}

// Candidate describes one scanned guardian binary image at a survival
// location. Candidates are rebuilt from the filesystem on every
// reconciliation pass and never mutated in place.
type Candidate struct {
	Path        string
	Priority    int // index of the owning survival location; lower wins ties
	Present     bool
	Executable  bool
	Size        int64
	ModTime     time.Time
	Fingerprint Fingerprint
}

// Eligible reports whether the candidate may participate in consensus
// voting: it must be present, executable, and non-empty.
func (c Candidate) Eligible() bool {
	return c.Present && c.Executable && c.Size > 0
}

// ScanCandidate builds a Candidate for a survival location path. A missing
// file yields an explicit absent marker, not an error; absence is an
// expected, recoverable state.
func ScanCandidate(path string, priority int) (Candidate, error) {
	candidate := Candidate{
		Path:     path,
		Priority: priority,
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return candidate, nil
		}
		return candidate, errors.NewIOError("failed to stat survival location", err).WithContext("path", path)
	}

	candidate.Present = true
	candidate.Size = info.Size()
	candidate.ModTime = info.ModTime()
	candidate.Executable = info.Mode()&0111 != 0

	if candidate.Size > 0 {
		fp, err := FingerprintFile(path)
		if err != nil {
			return candidate, err
		}
		candidate.Fingerprint = fp
	}

	return candidate, nil
}
