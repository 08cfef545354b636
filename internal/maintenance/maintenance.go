// Package maintenance runs periodic background housekeeping: pruning old
// execution history rows and sweeping orphaned notebook temp files.
package maintenance

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/HyphaGroup/crucible/internal/history"
	"github.com/HyphaGroup/crucible/internal/logger"
)

// Config holds maintenance settings.
type Config struct {
	History    *history.Store // optional
	ScriptsDir string
	CronExpr   string        // default "*/5 * * * *"
	Retention  time.Duration // history retention, default 7 days
	TmpMaxAge  time.Duration // orphaned .tmp age threshold, default 1 hour
}

// Runner schedules and executes maintenance sweeps.
type Runner struct {
	cfg  Config
	cron *cron.Cron
}

// New creates a runner with defaults applied.
func New(cfg Config) *Runner {
	if cfg.CronExpr == "" {
		cfg.CronExpr = "*/5 * * * *"
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 7 * 24 * time.Hour
	}
	if cfg.TmpMaxAge <= 0 {
		cfg.TmpMaxAge = time.Hour
	}
	return &Runner{cfg: cfg}
}

// Start schedules the sweep. Returns an error for a bad cron expression.
func (r *Runner) Start() error {
	c := cron.New()
	if _, err := c.AddFunc(r.cfg.CronExpr, r.RunOnce); err != nil {
		return err
	}
	c.Start()
	r.cron = c
	logger.Info("Maintenance scheduled (%s)", r.cfg.CronExpr)
	return nil
}

// Stop halts the schedule and waits for an in-flight sweep to finish.
func (r *Runner) Stop() {
	if r.cron == nil {
		return
	}
	ctx := r.cron.Stop()
	<-ctx.Done()
}

// RunOnce performs a single sweep.
func (r *Runner) RunOnce() {
	if r.cfg.History != nil {
		cutoff := time.Now().Add(-r.cfg.Retention)
		if pruned, err := r.cfg.History.PruneOlderThan(cutoff); err != nil {
			logger.Error("History prune failed: %v", err)
		} else if pruned > 0 {
			logger.Info("Pruned %d execution history rows", pruned)
		}
	}

	r.sweepTempFiles()
}

// sweepTempFiles removes notebook temp files left behind by an interrupted
// atomic write. Fresh .tmp files may belong to an in-flight save and are
// left alone.
func (r *Runner) sweepTempFiles() {
	if r.cfg.ScriptsDir == "" {
		return
	}

	entries, err := os.ReadDir(r.cfg.ScriptsDir)
	if err != nil {
		return
	}

	cutoff := time.Now().Add(-r.cfg.TmpMaxAge)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".tmp") {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(r.cfg.ScriptsDir, entry.Name())
		if err := os.Remove(path); err != nil {
			logger.Error("Failed to remove stale temp file %s: %v", path, err)
		} else {
			logger.Info("Removed stale temp file %s", path)
		}
	}
}
