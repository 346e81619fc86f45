// Package scheduler launches recurring scans from their cron
// definitions.
package scheduler

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lyallcooper/rotscan/internal/db"
	"github.com/lyallcooper/rotscan/internal/scanner"
)

// Scheduler polls scheduled scan definitions and starts the due ones.
type Scheduler struct {
	db      *db.DB
	scanner *scanner.Scanner
	logger  scanner.Logger
	parser  cron.Parser

	// interval between due checks; tests shorten it
	interval time.Duration

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New creates a scheduler using standard five-field cron expressions.
func New(database *db.DB, sc *scanner.Scanner, logger scanner.Logger) *Scheduler {
	if logger == nil {
		logger = scanner.NewNopLogger()
	}
	return &Scheduler{
		db:       database,
		scanner:  sc,
		logger:   logger,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		interval: time.Minute,
	}
}

// Start starts the scheduler loop.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	go s.run()
}

// Stop stops the scheduler and waits for launched jobs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopChan)
	s.mu.Unlock()

	s.wg.Wait()
}

// run is the main scheduler loop
func (s *Scheduler) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Check immediately on start
	s.checkJobs()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.checkJobs()
		}
	}
}

// checkJobs launches every enabled job whose next run time has passed.
func (s *Scheduler) checkJobs() {
	jobs, err := s.db.EnabledScheduledScans()
	if err != nil {
		s.logger.Error("scheduler: listing jobs", "error", err)
		return
	}

	now := time.Now()
	for _, job := range jobs {
		if job.NextRunAt == nil || now.Before(*job.NextRunAt) {
			continue
		}
		s.wg.Add(1)
		go s.runJob(job)
	}
}

// runJob starts one scheduled scan and advances its bookkeeping.
func (s *Scheduler) runJob(job *db.ScheduledScan) {
	defer s.wg.Done()

	s.logger.Info("scheduler: running job", "job_id", job.ID, "name", job.Name)

	scan, err := s.scanner.StartScan(job.Path, scanner.Options{
		Name:            job.Name,
		Algorithm:       job.Algorithm,
		ScheduledScanID: &job.ID,
	})
	if err != nil {
		s.logger.Error("scheduler: starting scan", "job_id", job.ID, "error", err)
		return
	}

	now := time.Now()
	schedule, err := s.parser.Parse(job.CronExpression)
	if err != nil {
		s.logger.Error("scheduler: invalid cron expression", "job_id", job.ID, "error", err)
		return
	}

	nextRun := schedule.Next(now)
	if err := s.db.UpdateScheduledScanRuns(job.ID, now, nextRun); err != nil {
		s.logger.Error("scheduler: updating job run times", "job_id", job.ID, "error", err)
	}

	s.logger.Info("scheduler: started scan", "scan_id", scan.ID,
		"job_id", job.ID, "next_run", nextRun)
}

// NextRun computes the first run time of a cron expression after now.
// Used when creating or editing a scheduled scan.
func (s *Scheduler) NextRun(cronExpression string) (time.Time, error) {
	schedule, err := s.parser.Parse(cronExpression)
	if err != nil {
		return time.Time{}, err
	}
	return schedule.Next(time.Now()), nil
}
