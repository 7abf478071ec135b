package keeper

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/core-tools/shell-guardian-go/pkg/errors"
	"github.com/core-tools/shell-guardian-go/pkg/integrity"
	"github.com/core-tools/shell-guardian-go/pkg/logging"
	"github.com/core-tools/shell-guardian-go/pkg/survival"
)

const (
	DefaultInterval = 1 * time.Hour
	DefaultDebounce = 2 * time.Second
)

// Config drives the keeper, both one-shot checks and the periodic service.
type Config struct {
	// Interval between periodic passes in service mode
	Interval time.Duration `yaml:"interval,omitempty"`

	// Jitter randomizes each interval so fleet-wide keepers do not pass
	// in lockstep; defaults to Interval/10
	Jitter time.Duration `yaml:"jitter,omitempty"`

	// StatusFile, when set, receives the outcome of every pass
	StatusFile string `yaml:"status_file,omitempty"`

	// LockFile serializes passes against other keeper processes; derived
	// from StatusFile (or the system temp dir) when unset
	LockFile string `yaml:"lock_file,omitempty"`

	// NoLock disables pass serialization entirely
	NoLock bool `yaml:"no_lock,omitempty"`

	// Watch additionally triggers passes from filesystem events on the
	// survival locations (service mode only)
	Watch bool `yaml:"watch,omitempty"`
}

// SetConfigDefaults fills unset fields with production defaults.
func SetConfigDefaults(config *Config) {
	if config.Interval == 0 {
		config.Interval = DefaultInterval
	}
	if config.Jitter == 0 {
		config.Jitter = config.Interval / 10
	}
	if config.LockFile == "" && !config.NoLock {
		if config.StatusFile != "" {
			config.LockFile = config.StatusFile + ".lock"
		} else {
			config.LockFile = filepath.Join(os.TempDir(), "guardian-keeper.lock")
		}
	}
}

// ValidateConfig checks keeper configuration for misconfiguration.
func ValidateConfig(config *Config) error {
	if config.Interval < 0 {
		return errors.NewValidationError("interval cannot be negative", nil)
	}
	if config.Jitter < 0 {
		return errors.NewValidationError("jitter cannot be negative", nil)
	}
	return nil
}

// Keeper periodically verifies the survival store and repairs divergent
// copies from the quorum-elected reference.
type Keeper struct {
	config Config
	store  *survival.Store
	pinned *integrity.Fingerprint
	logger logging.Logger
}

func NewKeeper(config Config, store *survival.Store, pinned *integrity.Fingerprint, logger logging.Logger) (*Keeper, error) {
	SetConfigDefaults(&config)
	if err := ValidateConfig(&config); err != nil {
		return nil, err
	}
	return &Keeper{
		config: config,
		store:  store,
		pinned: pinned,
		logger: logger,
	}, nil
}

// Tick runs one verify-and-repair pass: take the exclusion lock, scan all
// locations, elect a reference by quorum, reconcile, and publish status.
// A held lock means another keeper is mid-pass; the tick is skipped, not
// failed. No quorum means repairs are withheld entirely, since repairing
// from an unelected copy could overwrite the last good binary.
func (k *Keeper) Tick(ctx context.Context) (*survival.ReconcileReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewCancelledError("keeper pass cancelled", err)
	}

	if !k.config.NoLock {
		lock, err := survival.AcquireLock(k.config.LockFile)
		if err != nil {
			if errors.IsConflictError(err) {
				k.logger.Infof("Another keeper holds the lock, skipping pass")
				return nil, nil
			}
			return nil, err
		}
		defer lock.Release()
	}

	candidates := k.store.Scan()

	reference, err := integrity.Classify(candidates, k.pinned)
	if err != nil {
		if errors.IsNoQuorumError(err) {
			k.logger.Errorf("No quorum among survival copies, withholding repairs: %v", err)
			k.publishStatus(&Status{
				CheckedAt: time.Now(),
				Result:    StatusNoQuorum,
				Detail:    "no two eligible copies agree",
			})
		}
		return nil, err
	}

	k.logger.Infof("Elected reference, path: %s, fingerprint: %s",
		reference.Path, integrity.FormatFingerprint(reference.Fingerprint))

	report, err := k.store.Reconcile(reference)
	if err != nil {
		k.publishStatus(&Status{
			CheckedAt: time.Now(),
			Result:    StatusError,
			Reference: integrity.FormatFingerprint(reference.Fingerprint),
			Detail:    err.Error(),
		})
		return nil, err
	}

	result := StatusHealthy
	if !report.AllHealthy() {
		result = StatusDegraded
	}
	k.publishStatus(&Status{
		CheckedAt: time.Now(),
		Result:    result,
		Reference: integrity.FormatFingerprint(report.Reference),
		OK:        report.AlreadyOK,
		Repaired:  report.Repaired,
		Failed:    report.Failed,
	})

	return report, nil
}

// RunService runs passes until the context ends: one immediately, then on
// a jittered interval, plus event-triggered passes when watching.
func (k *Keeper) RunService(ctx context.Context) error {
	k.logger.Infof("Keeper service starting, interval: %v, jitter: %v, watch: %v",
		k.config.Interval, k.config.Jitter, k.config.Watch)

	events := make(chan struct{}, 1)
	if k.config.Watch {
		watcher, err := newStoreWatcher(k.store, events, k.logger)
		if err != nil {
			// Watch is an optimization over the periodic pass, not a
			// requirement; degrade to interval-only.
			k.logger.Warnf("Filesystem watch unavailable, falling back to interval only: %v", err)
		} else {
			go watcher.run(ctx)
		}
	}

	if _, err := k.Tick(ctx); err != nil && !errors.IsNoQuorumError(err) {
		k.logger.Errorf("Keeper pass failed: %v", err)
	}

	for {
		timer := time.NewTimer(k.nextInterval())
		select {
		case <-ctx.Done():
			timer.Stop()
			k.logger.Infof("Keeper service stopping")
			return nil
		case <-timer.C:
		case <-events:
			timer.Stop()
			k.logger.Debugf("Keeper pass triggered by filesystem event")
		}

		if _, err := k.Tick(ctx); err != nil && !errors.IsNoQuorumError(err) && !errors.IsCancelledError(err) {
			k.logger.Errorf("Keeper pass failed: %v", err)
		}
	}
}

func (k *Keeper) nextInterval() time.Duration {
	interval := k.config.Interval
	if k.config.Jitter > 0 {
		interval += time.Duration(rand.Int63n(int64(k.config.Jitter)))
	}
	return interval
}

func (k *Keeper) publishStatus(status *Status) {
	if err := WriteStatus(k.config.StatusFile, status); err != nil {
		k.logger.Warnf("Failed to write status file: %v", err)
	}
}
