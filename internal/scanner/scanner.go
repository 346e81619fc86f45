// Package scanner is the scan engine: it walks directory trees,
// checksums files with a worker pool, classifies each observation
// against the file's checksum history, and records results.
package scanner

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/lyallcooper/rotscan/internal/checksum"
	"github.com/lyallcooper/rotscan/internal/db"
	"github.com/lyallcooper/rotscan/internal/device"
	"github.com/lyallcooper/rotscan/internal/types"
	"github.com/lyallcooper/rotscan/internal/walker"
)

// DefaultWorkers is the checksum worker pool size when Options.Workers
// is unset.
const DefaultWorkers = 4

// DefaultAlgorithm is used when Options.Algorithm is unset.
const DefaultAlgorithm = "sha256"

// Directory names skipped by default.
var DefaultExcludeDirs = []string{".git", "node_modules", ".venv", "venv", "__pycache__"}

// Glob patterns skipped by default.
var DefaultExcludePatterns = []string{"*.tmp", "*.temp", "*.swp", "*.bak"}

var errScanStopped = errors.New("scan stopped")

// Options configures a single scan.
type Options struct {
	Name            string
	Algorithm       string
	Workers         int
	BlockSize       int
	ExcludeDirs     []string // nil means DefaultExcludeDirs
	ExcludePatterns []string // nil means DefaultExcludePatterns
	MaxDepth        int      // 0 means unlimited
	ScheduledScanID *int64
}

// subscriber wraps a progress channel with safe close handling
type subscriber struct {
	ch        chan *types.ScanProgress
	closeOnce sync.Once
	closed    bool
}

func (sub *subscriber) close() {
	sub.closeOnce.Do(func() {
		sub.closed = true
		close(sub.ch)
	})
}

func (sub *subscriber) send(progress *types.ScanProgress) bool {
	if sub.closed {
		return false
	}
	select {
	case sub.ch <- progress:
		return true
	default:
		return false
	}
}

// Scanner orchestrates scan runs. One Scanner serves the whole process;
// each run gets its own worker pool.
type Scanner struct {
	db       *db.DB
	resolver *device.Resolver
	logger   Logger

	// Active runs, keyed by scan ID
	mu     sync.RWMutex
	active map[int64]*run

	// SSE subscribers
	subMu       sync.RWMutex
	subscribers map[int64][]*subscriber

	cbMu          sync.RWMutex
	progressFuncs []func(*types.ScanProgress)
}

// New creates a scanner backed by the given database and device resolver.
func New(database *db.DB, resolver *device.Resolver, logger Logger) *Scanner {
	if logger == nil {
		logger = NewNopLogger()
	}
	return &Scanner{
		db:          database,
		resolver:    resolver,
		logger:      logger,
		active:      make(map[int64]*run),
		subscribers: make(map[int64][]*subscriber),
	}
}

// AddProgressFunc registers a callback invoked for every progress event
// of every scan. A panicking callback is logged and never aborts a scan.
func (s *Scanner) AddProgressFunc(fn func(*types.ScanProgress)) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.progressFuncs = append(s.progressFuncs, fn)
}

// Subscribe subscribes to progress updates for a scan
func (s *Scanner) Subscribe(scanID int64) chan *types.ScanProgress {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	sub := &subscriber{
		ch: make(chan *types.ScanProgress, 10),
	}
	s.subscribers[scanID] = append(s.subscribers[scanID], sub)
	return sub.ch
}

// Unsubscribe removes a subscriber
func (s *Scanner) Unsubscribe(scanID int64, ch chan *types.ScanProgress) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	subs := s.subscribers[scanID]
	for i, sub := range subs {
		if sub.ch == ch {
			// Remove from slice first, then close safely
			s.subscribers[scanID] = append(subs[:i], subs[i+1:]...)
			sub.close()
			break
		}
	}

	if len(s.subscribers[scanID]) == 0 {
		delete(s.subscribers, scanID)
	}
}

// broadcast sends progress to all subscribers without blocking
func (s *Scanner) broadcast(scanID int64, progress *types.ScanProgress) {
	s.subMu.RLock()
	subs := make([]*subscriber, len(s.subscribers[scanID]))
	copy(subs, s.subscribers[scanID])
	s.subMu.RUnlock()

	for _, sub := range subs {
		sub.send(progress)
	}
}

// closeSubscribers closes all subscriber channels for a scan
func (s *Scanner) closeSubscribers(scanID int64) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for _, sub := range s.subscribers[scanID] {
		sub.close()
	}
	delete(s.subscribers, scanID)
}

func (s *Scanner) publish(p *types.ScanProgress) {
	s.broadcast(p.ScanID, p)

	s.cbMu.RLock()
	funcs := make([]func(*types.ScanProgress), len(s.progressFuncs))
	copy(funcs, s.progressFuncs)
	s.cbMu.RUnlock()

	for _, fn := range funcs {
		s.callProgressFunc(fn, p)
	}
}

func (s *Scanner) callProgressFunc(fn func(*types.ScanProgress), p *types.ScanProgress) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("progress callback panicked", "scan_id", p.ScanID, "panic", rec)
		}
	}()
	fn(p)
}

// run is the per-scan state shared by the producer and workers.
type run struct {
	scanner *Scanner
	device  *db.StorageDevice
	calc    *checksum.Calculator
	root    string
	workers int
	wopts   walker.Options

	stop atomic.Bool

	mu         sync.Mutex
	scan       *db.Scan
	totalFiles int64
}

// Scan runs a scan synchronously and returns the finished scan record.
// The record is persisted even when the scan fails partway.
func (s *Scanner) Scan(path string, opts Options) (*db.Scan, error) {
	r, err := s.prepare(path, opts)
	if err != nil {
		return nil, err
	}
	if err := s.execute(r); err != nil {
		return r.scan, err
	}
	return r.scan, nil
}

// StartScan runs a scan in the background and returns its record
// immediately. Progress is observable via Subscribe.
func (s *Scanner) StartScan(path string, opts Options) (*db.Scan, error) {
	r, err := s.prepare(path, opts)
	if err != nil {
		return nil, err
	}
	go func() {
		if err := s.execute(r); err != nil {
			s.logger.Error("background scan failed", "scan_id", r.scan.ID, "error", err)
		}
	}()
	return r.scan, nil
}

// Stop requests a cooperative stop of a running scan. It reports whether
// the scan was active; the scan finishes as aborted shortly after.
func (s *Scanner) Stop(scanID int64) bool {
	s.mu.RLock()
	r, ok := s.active[scanID]
	s.mu.RUnlock()
	if ok {
		r.stop.Store(true)
		s.logger.Info("scan stop requested", "scan_id", scanID)
	}
	return ok
}

// Summary combines a scan record with its per-status checksum counts.
type Summary struct {
	Scan         *db.Scan         `json:"scan"`
	StatusCounts map[string]int64 `json:"status_counts"`
	ErrorCount   int64            `json:"error_count"`
}

// Summary returns the aggregated results of a finished or running scan.
func (s *Scanner) Summary(scanID int64) (*Summary, error) {
	scan, err := s.db.GetScan(scanID)
	if err != nil {
		return nil, err
	}
	if scan == nil {
		return nil, fmt.Errorf("scan %d not found", scanID)
	}
	agg, err := s.db.GetScanSummary(scanID)
	if err != nil {
		return nil, err
	}
	return &Summary{Scan: scan, StatusCounts: agg.StatusCounts, ErrorCount: agg.ErrorCount}, nil
}

// prepare validates the request, resolves the storage device and creates
// the scan record in its running state.
func (s *Scanner) prepare(path string, opts Options) (*run, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("invalid scan path: %w", err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("scan path %s is not a directory", abs)
	}

	if opts.Algorithm == "" {
		opts.Algorithm = DefaultAlgorithm
	}
	calc, err := checksum.New(opts.Algorithm, opts.BlockSize)
	if err != nil {
		return nil, err
	}

	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.ExcludeDirs == nil {
		opts.ExcludeDirs = DefaultExcludeDirs
	}
	if opts.ExcludePatterns == nil {
		opts.ExcludePatterns = DefaultExcludePatterns
	}

	dev, err := s.resolveDevice(abs)
	if err != nil {
		return nil, err
	}

	name := opts.Name
	if name == "" {
		name = "Scan of " + filepath.Base(abs)
	}

	scan := &db.Scan{
		Name:            name,
		TopLevelPath:    abs,
		StorageDeviceID: &dev.ID,
		Method:          calc.Algorithm(),
		ScheduledScanID: opts.ScheduledScanID,
	}
	if _, err := s.db.CreateScan(scan); err != nil {
		return nil, fmt.Errorf("creating scan record: %w", err)
	}

	r := &run{
		scanner: s,
		scan:    scan,
		device:  dev,
		calc:    calc,
		root:    abs,
		workers: opts.Workers,
		wopts: walker.Options{
			ExcludeDirs:     opts.ExcludeDirs,
			ExcludePatterns: opts.ExcludePatterns,
			MaxDepth:        opts.MaxDepth,
		},
	}

	s.mu.Lock()
	s.active[scan.ID] = r
	s.mu.Unlock()

	s.logger.Info("scan started", "scan_id", scan.ID, "path", abs,
		"algorithm", calc.Algorithm(), "workers", opts.Workers)
	return r, nil
}

// resolveDevice finds or registers the storage device backing a path.
// When the mount table has no answer the path gets a synthetic device
// with an identity derived from the path itself, so re-scans of the
// same tree keep hitting the same device row.
func (s *Scanner) resolveDevice(path string) (*db.StorageDevice, error) {
	info, err := s.resolver.Resolve(path)
	if err != nil {
		s.logger.Warn("device detection failed", "path", path, "error", err)
	}
	if info == nil {
		info = &device.Info{
			DeviceID:   "unknown-" + uuid.NewSHA1(uuid.NameSpaceURL, []byte(path)).String(),
			Name:       fmt.Sprintf("Unknown Device (%s)", path),
			MountPoint: "/",
			Type:       device.TypeUnknown,
		}
	}

	existing, err := s.db.GetStorageDevice(info.DeviceID, info.MountPoint)
	if err != nil {
		return nil, fmt.Errorf("looking up storage device: %w", err)
	}
	if existing == nil {
		d := &db.StorageDevice{
			Name:        info.Name,
			MountPoint:  info.MountPoint,
			DeviceType:  info.Type,
			TotalSize:   info.TotalSize,
			UsedSize:    info.UsedSize,
			IsConnected: true,
			DeviceID:    info.DeviceID,
		}
		if _, err := s.db.CreateStorageDevice(d); err != nil {
			return nil, fmt.Errorf("registering storage device: %w", err)
		}
		return d, nil
	}

	existing.LastSeen = time.Now()
	existing.IsConnected = true
	existing.TotalSize = info.TotalSize
	existing.UsedSize = info.UsedSize
	if err := s.db.UpdateStorageDevice(existing); err != nil {
		return nil, fmt.Errorf("updating storage device: %w", err)
	}
	return existing, nil
}

// execute drives a prepared run to a terminal state.
func (s *Scanner) execute(r *run) error {
	defer func() {
		s.mu.Lock()
		delete(s.active, r.scan.ID)
		s.mu.Unlock()
		s.closeSubscribers(r.scan.ID)
	}()

	r.report(types.ProgressCounting, r.root, "")
	total, err := walker.Count(r.root, r.wopts)
	if err != nil {
		return s.failScan(r, fmt.Errorf("counting files: %w", err))
	}
	r.mu.Lock()
	r.totalFiles = total
	r.mu.Unlock()
	r.report(types.ProgressStarting, "", "")

	files := make(chan string, 4*r.workers)
	var wg sync.WaitGroup
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range files {
				if r.stop.Load() {
					continue
				}
				r.safeProcess(path)
				r.fileDone(path)
			}
		}()
	}

	walkErr := walker.Walk(r.root, r.wopts, func(path string) error {
		if r.stop.Load() {
			return errScanStopped
		}
		files <- path
		return nil
	})
	close(files)
	wg.Wait()

	if walkErr != nil && !errors.Is(walkErr, errScanStopped) {
		return s.failScan(r, fmt.Errorf("walking %s: %w", r.root, walkErr))
	}

	if err := r.reconcileMissing(); err != nil {
		return s.failScan(r, fmt.Errorf("reconciling missing files: %w", err))
	}

	r.mu.Lock()
	if r.stop.Load() {
		r.scan.Status = db.ScanStatusAborted
	} else {
		r.scan.Status = db.ScanStatusCompleted
	}
	end := time.Now()
	duration := int64(end.Sub(r.scan.StartTime).Seconds())
	r.scan.EndTime = &end
	r.scan.DurationSeconds = &duration
	err = s.db.UpdateScan(r.scan)
	status := r.scan.Status
	scanned := r.scan.FilesScanned
	r.mu.Unlock()
	if err != nil {
		return s.failScan(r, fmt.Errorf("recording scan completion: %w", err))
	}

	s.logger.Info("scan finished", "scan_id", r.scan.ID, "status", status, "files", scanned)
	r.report(types.ProgressCompleted, "", "")
	return nil
}

// failScan moves a run to the failed state, best effort.
func (s *Scanner) failScan(r *run, err error) error {
	msg := err.Error()
	r.mu.Lock()
	r.scan.Status = db.ScanStatusFailed
	end := time.Now()
	duration := int64(end.Sub(r.scan.StartTime).Seconds())
	r.scan.EndTime = &end
	r.scan.DurationSeconds = &duration
	r.scan.ErrorMessage = &msg
	if uerr := s.db.UpdateScan(r.scan); uerr != nil {
		s.logger.Error("recording scan failure", "scan_id", r.scan.ID, "error", uerr)
	}
	r.mu.Unlock()

	s.logger.Error("scan failed", "scan_id", r.scan.ID, "error", err)
	r.report(types.ProgressFailed, "", msg)
	return err
}

// safeProcess isolates one file's processing: a returned error or panic
// becomes a recorded scan error, never a dead worker.
func (r *run) safeProcess(path string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.recordError(path, "processing_error", fmt.Sprint(rec))
		}
	}()
	if err := r.processFile(path); err != nil {
		r.recordError(path, "processing_error", err.Error())
	}
}

// processFile checksums one file and classifies the observation against
// the file's history.
func (r *run) processFile(path string) error {
	fi, err := os.Lstat(path)
	if err != nil {
		return err
	}
	if !fi.Mode().IsRegular() {
		return nil
	}
	mtime := fi.ModTime()

	store := r.scanner.db
	f, err := store.GetFileByPath(path, r.device.ID)
	if err != nil {
		return err
	}

	status := db.ChecksumStatusUnchanged
	var prev *db.Checksum
	var prevMod time.Time

	if f == nil {
		f = &db.File{
			Path:            path,
			Filename:        filepath.Base(path),
			Directory:       filepath.Dir(path),
			StorageDeviceID: r.device.ID,
			Size:            fi.Size(),
			LastModified:    mtime,
			FileType:        fileType(path),
		}
		if _, err := store.CreateFile(f); err != nil {
			return err
		}
		status = db.ChecksumStatusNew
	} else {
		prevMod = f.LastModified
		f.Size = fi.Size()
		f.LastModified = mtime
		f.LastSeen = time.Now()
		f.IsDeleted = false
		if err := store.UpdateFile(f); err != nil {
			return err
		}
		prev, err = store.GetLatestChecksum(f.ID)
		if err != nil {
			return err
		}
	}

	r.mu.Lock()
	r.scan.TotalSize += fi.Size()
	r.mu.Unlock()

	value, err := r.calc.File(path)
	if err != nil {
		r.recordError(path, "checksum_error", err.Error())
		return nil
	}

	var prevID *int64
	if prev != nil {
		prevID = &prev.ID
		if value != prev.Value {
			// Same bytes changed without the mtime moving: that is
			// rot, not an edit.
			if mtime.Unix() != prevMod.Unix() {
				status = db.ChecksumStatusModified
			} else {
				status = db.ChecksumStatusCorrupted
			}
		}
	}

	c := &db.Checksum{
		FileID:             f.ID,
		ScanID:             r.scan.ID,
		Value:              value,
		Method:             r.calc.Algorithm(),
		Status:             status,
		PreviousChecksumID: prevID,
	}
	if _, err := store.CreateChecksum(c); err != nil {
		return err
	}

	r.mu.Lock()
	switch {
	case status == db.ChecksumStatusNew:
		r.scan.FilesNew++
	case prev != nil:
		switch status {
		case db.ChecksumStatusUnchanged:
			r.scan.FilesUnchanged++
		case db.ChecksumStatusModified:
			r.scan.FilesModified++
		case db.ChecksumStatusCorrupted:
			r.scan.FilesCorrupted++
		}
	}
	err = store.UpdateScan(r.scan)
	r.mu.Unlock()
	return err
}

// fileDone counts a handled file and reports progress every 10 files.
func (r *run) fileDone(path string) {
	r.mu.Lock()
	r.scan.FilesScanned++
	n := r.scan.FilesScanned
	r.mu.Unlock()
	if n%10 == 0 {
		r.report(types.ProgressScanning, path, "")
	}
}

// reconcileMissing finds tracked files under the scan root that no
// longer exist on disk, flags them deleted and appends a missing
// observation to each file's history chain.
func (r *run) reconcileMissing() error {
	store := r.scanner.db
	files, err := store.ListFilesUnder(r.root, r.device.ID)
	if err != nil {
		return err
	}

	var missing int64
	for _, f := range files {
		if _, err := os.Stat(f.Path); err == nil || !os.IsNotExist(err) {
			continue
		}

		f.IsDeleted = true
		f.LastSeen = time.Now()
		if err := store.UpdateFile(f); err != nil {
			return err
		}

		prev, err := store.GetLatestChecksum(f.ID)
		if err != nil {
			return err
		}
		var prevID *int64
		if prev != nil {
			prevID = &prev.ID
		}
		c := &db.Checksum{
			FileID:             f.ID,
			ScanID:             r.scan.ID,
			Method:             r.calc.Algorithm(),
			Status:             db.ChecksumStatusMissing,
			PreviousChecksumID: prevID,
		}
		if _, err := store.CreateChecksum(c); err != nil {
			return err
		}
		missing++
		r.scanner.logger.Info("file missing", "scan_id", r.scan.ID, "path", f.Path)
	}

	if missing == 0 {
		return nil
	}
	r.mu.Lock()
	r.scan.FilesMissing = missing
	err = store.UpdateScan(r.scan)
	r.mu.Unlock()
	return err
}

func (r *run) recordError(path, errorType, message string) {
	r.scanner.logger.Warn("scan error", "scan_id", r.scan.ID,
		"path", path, "type", errorType, "error", message)
	_, err := r.scanner.db.CreateScanError(&db.ScanError{
		ScanID:       r.scan.ID,
		FilePath:     path,
		ErrorType:    errorType,
		ErrorMessage: message,
	})
	if err != nil {
		r.scanner.logger.Error("recording scan error", "scan_id", r.scan.ID, "error", err)
	}
}

// report publishes a progress snapshot to subscribers and callbacks.
func (r *run) report(status, currentPath, errMsg string) {
	r.mu.Lock()
	p := &types.ScanProgress{
		ScanID:         r.scan.ID,
		Status:         status,
		FilesProcessed: r.scan.FilesScanned,
		TotalFiles:     r.totalFiles,
		CurrentPath:    currentPath,
		Error:          errMsg,
		Timestamp:      time.Now().UTC(),
	}
	if r.totalFiles > 0 {
		p.PercentComplete = float64(p.FilesProcessed) / float64(p.TotalFiles) * 100
	}
	r.mu.Unlock()
	r.scanner.publish(p)
}
