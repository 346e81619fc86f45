package scheduler

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lyallcooper/rotscan/internal/db"
	"github.com/lyallcooper/rotscan/internal/device"
	"github.com/lyallcooper/rotscan/internal/scanner"
)

func testDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func testScheduler(t *testing.T) (*Scheduler, *db.DB) {
	t.Helper()
	database := testDB(t)
	resolver := device.NewResolver(
		device.WithMountsPath(filepath.Join(t.TempDir(), "missing-mounts")))
	sc := scanner.New(database, resolver, nil)
	return New(database, sc, nil), database
}

func TestNew(t *testing.T) {
	s, database := testScheduler(t)

	if s == nil {
		t.Fatal("New returned nil")
	}
	if s.db != database {
		t.Error("scheduler.db not set correctly")
	}
	if s.running {
		t.Error("scheduler should not be running initially")
	}
}

func TestStartStop(t *testing.T) {
	s, _ := testScheduler(t)

	s.Start()

	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running {
		t.Error("scheduler should be running after Start")
	}

	// Double start should be idempotent
	s.Start()

	s.Stop()

	s.mu.Lock()
	running = s.running
	s.mu.Unlock()
	if running {
		t.Error("scheduler should not be running after Stop")
	}

	// Double stop should be safe
	s.Stop()
}

func TestNextRun(t *testing.T) {
	s, _ := testScheduler(t)

	next, err := s.NextRun("0 * * * *")
	if err != nil {
		t.Fatalf("NextRun failed: %v", err)
	}
	now := time.Now()
	if next.Before(now) {
		t.Error("NextRun should be in the future")
	}
	if next.After(now.Add(time.Hour)) {
		t.Error("NextRun should be within the next hour")
	}
}

func TestNextRunExpressions(t *testing.T) {
	s, _ := testScheduler(t)

	tests := []struct {
		name    string
		cron    string
		wantErr bool
	}{
		{"every minute", "* * * * *", false},
		{"every hour", "0 * * * *", false},
		{"daily at 2am", "0 2 * * *", false},
		{"weekly on sunday", "0 0 * * 0", false},
		{"monthly first day", "0 0 1 * *", false},
		{"invalid", "invalid", true},
		{"too few fields", "* * *", true},
		{"too many fields", "* * * * * *", true}, // seconds field not supported
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.NextRun(tt.cron)
			if (err != nil) != tt.wantErr {
				t.Errorf("NextRun(%q) error = %v, wantErr %v", tt.cron, err, tt.wantErr)
			}
		})
	}
}

func TestCheckJobsRunsDueJob(t *testing.T) {
	s, database := testScheduler(t)

	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}

	past := time.Now().Add(-time.Hour)
	job := &db.ScheduledScan{
		Name:           "due job",
		Path:           root,
		Algorithm:      "sha256",
		CronExpression: "0 * * * *",
		Enabled:        true,
		NextRunAt:      &past,
	}
	if _, err := database.CreateScheduledScan(job); err != nil {
		t.Fatal(err)
	}

	s.checkJobs()
	s.wg.Wait()

	scans, err := database.ListScans(10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(scans) != 1 {
		t.Fatalf("expected 1 scan, got %d", len(scans))
	}
	if scans[0].ScheduledScanID == nil || *scans[0].ScheduledScanID != job.ID {
		t.Errorf("scan not linked to job: %+v", scans[0])
	}

	jobs, err := database.EnabledScheduledScans()
	if err != nil {
		t.Fatal(err)
	}
	if jobs[0].LastRunAt == nil {
		t.Error("last_run_at not updated")
	}
	if jobs[0].NextRunAt == nil || jobs[0].NextRunAt.Before(time.Now()) {
		t.Errorf("next_run_at not advanced: %v", jobs[0].NextRunAt)
	}
}

func TestCheckJobsSkipsDisabledAndFuture(t *testing.T) {
	s, database := testScheduler(t)

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)
	for _, job := range []*db.ScheduledScan{
		{Name: "disabled", Path: "/tmp", Algorithm: "sha256",
			CronExpression: "0 * * * *", Enabled: false, NextRunAt: &past},
		{Name: "future", Path: "/tmp", Algorithm: "sha256",
			CronExpression: "0 * * * *", Enabled: true, NextRunAt: &future},
		{Name: "never scheduled", Path: "/tmp", Algorithm: "sha256",
			CronExpression: "0 * * * *", Enabled: true},
	} {
		if _, err := database.CreateScheduledScan(job); err != nil {
			t.Fatal(err)
		}
	}

	s.checkJobs()
	s.wg.Wait()

	scans, err := database.ListScans(10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(scans) != 0 {
		t.Errorf("expected no scans, got %d", len(scans))
	}
}
