package maintenance

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/HyphaGroup/crucible/internal/history"
)

func TestRunOnceSweepsStaleTempFiles(t *testing.T) {
	dir := t.TempDir()

	stale := filepath.Join(dir, "session.ipynb.tmp")
	if err := os.WriteFile(stale, []byte("{}"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	fresh := filepath.Join(dir, "active.ipynb.tmp")
	if err := os.WriteFile(fresh, []byte("{}"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	notebook := filepath.Join(dir, "session.ipynb")
	if err := os.WriteFile(notebook, []byte("{}"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.Chtimes(notebook, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	New(Config{ScriptsDir: dir, TmpMaxAge: time.Hour}).RunOnce()

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale temp file survived the sweep")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("fresh temp file removed, may belong to an in-flight save")
	}
	if _, err := os.Stat(notebook); err != nil {
		t.Error("notebook artifact removed by the sweep")
	}
}

func TestRunOncePrunesHistory(t *testing.T) {
	store, err := history.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	now := time.Now().UTC()
	if err := store.Record(&history.Record{
		SessionName: "demo", CodeSummary: "old", ExecutedAt: now.Add(-10 * 24 * time.Hour),
	}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := store.Record(&history.Record{
		SessionName: "demo", CodeSummary: "fresh", ExecutedAt: now,
	}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	New(Config{History: store, Retention: 7 * 24 * time.Hour}).RunOnce()

	records, err := store.List("demo", 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 1 || records[0].CodeSummary != "fresh" {
		t.Errorf("remaining rows = %+v, want only the fresh one", records)
	}
}

func TestStartRejectsBadCronExpr(t *testing.T) {
	r := New(Config{CronExpr: "not a cron expression"})
	if err := r.Start(); err == nil {
		r.Stop()
		t.Error("Start() with bad cron expression = nil error")
	}
}

func TestStartStop(t *testing.T) {
	r := New(Config{ScriptsDir: t.TempDir()})
	if err := r.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	r.Stop()
	// Stop on an already stopped runner is harmless
	r.Stop()
}
