package integrity

import (
	"fmt"

	"github.com/core-tools/shell-guardian-go/pkg/errors"
)

// PinnedFingerprint is an optional build-time reference, injected via
// -ldflags "-X .../pkg/integrity.PinnedFingerprint=<hex>". When set, it
// takes precedence over quorum voting: consensus across copies is a trust
// heuristic, the pinned hash is ground truth.
var PinnedFingerprint string

// Pinned returns the parsed build-time reference fingerprint, or nil when
// none was linked in.
func Pinned() (*Fingerprint, error) {
	if PinnedFingerprint == "" {
		return nil, nil
	}
	fp, err := ParseFingerprint(PinnedFingerprint)
	if err != nil {
		return nil, errors.NewValidationError("pinned reference fingerprint is malformed", err)
	}
	return &fp, nil
}

// Classify elects the reference copy among the scanned candidates.
//
// Only present, executable, non-empty candidates vote. A pinned fingerprint,
// when provided, wins outright if any eligible candidate matches it.
// Otherwise the majority fingerprint wins; ties between equally sized
// clusters are broken by the highest-priority survival location (lowest
// priority index), then by most recent modification time. When no two
// candidates agree and no pinned match exists, classification fails with a
// no-quorum error rather than guessing.
//
// Classify is pure: it performs no I/O and never mutates its inputs.
func Classify(candidates []Candidate, pinned *Fingerprint) (*Candidate, error) {
	eligible := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Eligible() {
			eligible = append(eligible, c)
		}
	}

	if len(eligible) == 0 {
		return nil, errors.NewNoQuorumError("no eligible guardian copies found", nil).WithContext("scanned", len(candidates))
	}

	// Pinned reference overrides voting.
	if pinned != nil {
		if best := bestInCluster(eligible, *pinned); best != nil {
			return best, nil
		}
	}

	clusters := make(map[Fingerprint][]Candidate)
	for _, c := range eligible {
		clusters[c.Fingerprint] = append(clusters[c.Fingerprint], c)
	}

	var winner *Candidate
	winnerCount := 0
	for fp, members := range clusters {
		count := len(members)
		if count < winnerCount {
			continue
		}
		representative := bestInCluster(eligible, fp)
		if count > winnerCount || preferCandidate(representative, winner) {
			winner = representative
			winnerCount = count
		}
	}

	// A single vote is not consensus: with no agreement between at least two
	// copies there is no basis for trusting any of them.
	if winnerCount < 2 {
		return nil, errors.NewNoQuorumError(
			fmt.Sprintf("no two of %d eligible copies agree on a fingerprint", len(eligible)), nil,
		).WithContext("clusters", len(clusters))
	}

	return winner, nil
}

// bestInCluster picks the representative candidate for a fingerprint:
// highest-priority location first, most recently modified second.
func bestInCluster(candidates []Candidate, fp Fingerprint) *Candidate {
	var best *Candidate
	for i := range candidates {
		c := &candidates[i]
		if c.Fingerprint != fp {
			continue
		}
		if preferCandidate(c, best) {
			best = c
		}
	}
	if best == nil {
		return nil
	}
	chosen := *best
	return &chosen
}

// preferCandidate reports whether a should be chosen over b.
func preferCandidate(a, b *Candidate) bool {
	if a == nil {
		return false
	}
	if b == nil {
		return true
	}
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.ModTime.After(b.ModTime)
}
