package types

import "time"

// Progress statuses emitted while a scan runs.
const (
	ProgressCounting  = "counting"
	ProgressStarting  = "starting"
	ProgressScanning  = "scanning"
	ProgressCompleted = "completed"
	ProgressFailed    = "failed"
)

// ScanProgress represents scan progress for SSE updates and callbacks.
type ScanProgress struct {
	ScanID          int64     `json:"scan_id"`
	Status          string    `json:"status"`
	FilesProcessed  int64     `json:"files_processed"`
	TotalFiles      int64     `json:"total_files"`
	PercentComplete float64   `json:"percent_complete"`
	CurrentPath     string    `json:"current_path,omitempty"`
	Error           string    `json:"error,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}
