// Package retention implements the purgatory and stranded-bytestream
// sweeper: a cron-scheduled background pass that releases handles whose
// purgatory grace period has elapsed and reaps stranded bytestream files
// left behind by races between dataspace removal and in-flight transfers.
// Grounded on the teacher's internal/retention package for the
// lease/heartbeat/cron-scheduler shape, retargeted from thread-deletion
// purging onto collection.HandleLedger sweeps.
package retention

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/adhocore/gronx"

	"parafs/pkg/collection"
	"parafs/pkg/config"
	"parafs/pkg/plog"
)

// Start launches the sweep scheduler if cfg.Enabled, returning a cancel
// func that stops it. lockDir holds the cross-process advisory lease file.
func Start(ctx context.Context, reg *collection.Registry, collCfg config.CollectionConfig, cfg config.RetentionConfig, lockDir string) (context.CancelFunc, error) {
	if !cfg.Enabled {
		plog.Info("retention_disabled")
		return func() {}, nil
	}

	if err := os.MkdirAll(lockDir, 0o700); err != nil {
		plog.Error("retention_lock_dir_create_failed", "path", lockDir, "error", err)
		return nil, err
	}

	cronExpr := cfg.Cron
	if cronExpr == "" {
		cronExpr = "0 2 * * *"
	}
	if !gronx.IsValid(cronExpr) {
		plog.Error("retention_invalid_cron", "cron", cfg.Cron)
		return nil, fmt.Errorf("invalid retention cron expression: %s", cfg.Cron)
	}

	purgatoryWindow := collCfg.PurgatoryWindow.Duration()
	strandedTTL := purgatoryWindow
	if strandedTTL <= 0 {
		strandedTTL = 30 * time.Second
	}

	plog.Info("retention_enabled", "cron", cronExpr, "lock_dir", lockDir)
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, reg, collCfg, cfg, cronExpr, purgatoryWindow, strandedTTL, lockDir)
	return cancel, nil
}

// RunImmediate triggers a single sweep synchronously, bypassing the cron
// schedule. Used by fsck/admin tooling.
func RunImmediate(reg *collection.Registry, collCfg config.CollectionConfig, cfg config.RetentionConfig, lockDir string) error {
	purgatoryWindow := collCfg.PurgatoryWindow.Duration()
	strandedTTL := purgatoryWindow
	if strandedTTL <= 0 {
		strandedTTL = 30 * time.Second
	}
	return runOnce(context.Background(), reg, cfg, purgatoryWindow, strandedTTL, lockDir)
}

func runScheduler(ctx context.Context, reg *collection.Registry, collCfg config.CollectionConfig, cfg config.RetentionConfig, cronExpr string, purgatoryWindow, strandedTTL time.Duration, lockDir string) {
	for {
		select {
		case <-ctx.Done():
			plog.Info("retention_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			plog.Error("retention_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		wait := time.Until(next)
		select {
		case <-time.After(wait):
			if err := runOnce(ctx, reg, cfg, purgatoryWindow, strandedTTL, lockDir); err != nil {
				plog.Error("retention_run_error", "error", err)
			}
		case <-ctx.Done():
			plog.Info("retention_scheduler_stopping")
			return
		}
	}
}
