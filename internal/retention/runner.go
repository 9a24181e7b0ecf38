package retention

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"parafs/pkg/collection"
	"parafs/pkg/config"
	"parafs/pkg/metrics"
	"parafs/pkg/plog"
)

// runOnce executes a single sweep: acquire the lease, release every
// collection's purgatory handles that have aged past purgatoryWindow, reap
// stranded bytestream files older than strandedTTL, and write an audit
// record of what happened.
func runOnce(ctx context.Context, reg *collection.Registry, cfg config.RetentionConfig, purgatoryWindow, strandedTTL time.Duration, lockDir string) error {
	if err := os.MkdirAll(lockDir, 0o700); err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}
	owner := uuid.NewString()
	lock := NewFileLease(lockDir)
	acq, err := lock.Acquire(owner, 3*time.Minute)
	if err != nil {
		plog.Error("retention_lease_acquire_error", "error", err)
		return fmt.Errorf("lease acquire failed: %w", err)
	}
	if !acq {
		plog.Info("retention_lease_not_acquired")
		return nil
	}
	defer func() {
		if err := lock.Release(owner); err != nil {
			plog.Error("retention_lease_release_error", "error", err)
		}
	}()

	runID := uuid.NewString()
	now := time.Now()
	plog.Info("retention_run_start", "run_id", runID, "dry_run", cfg.DryRun)

	var totalReleased, totalReaped int
	reg.WithEach(func(name string, c *collection.Collection) {
		select {
		case <-ctx.Done():
			return
		default:
		}
		released := c.Ledger.PurgatoryCount()
		if !cfg.DryRun {
			released = c.Ledger.SweepPurgatory(now, purgatoryWindow)
		}
		totalReleased += released
		metrics.PurgatorySize.WithLabelValues(name).Set(float64(c.Ledger.PurgatoryCount()))
		reaped := reapStranded(c.Bytestream.StrandedDir(), now, strandedTTL, cfg.DryRun)
		totalReaped += reaped
		if released > 0 || reaped > 0 {
			entry := map[string]interface{}{"collection": name, "purgatory_released": released, "stranded_reaped": reaped}
			if plog.Audit != nil {
				plog.Audit.Info("retention_audit_item", "run_id", runID, "item", entry)
			} else {
				plog.Info("retention_audit_item", "run_id", runID, "item", entry)
			}
		}
	})

	if plog.Audit != nil {
		plog.Audit.Info("retention_audit_footer", "run_id", runID, "purgatory_released", totalReleased, "stranded_reaped", totalReaped)
	}
	plog.Info("retention_run_complete", "run_id", runID, "purgatory_released", totalReleased, "stranded_reaped", totalReaped)
	return nil
}

// reapStranded removes files under dir whose modification time is older
// than ttl, or just counts them when dryRun is set.
func reapStranded(dir string, now time.Time, ttl time.Duration, dryRun bool) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) < ttl {
			continue
		}
		n++
		if dryRun {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			plog.Error("retention_reap_stranded_failed", "path", filepath.Join(dir, e.Name()), "error", err)
		}
	}
	return n
}
