package db

import "time"

// StorageDevice represents a physical or logical volume that scanned
// files live on. Devices are created lazily the first time a scan root
// resolves to them and are never deleted.
type StorageDevice struct {
	ID          int64
	Name        string
	MountPoint  string
	DeviceType  string
	TotalSize   int64
	UsedSize    int64
	FirstSeen   time.Time
	LastSeen    time.Time
	IsConnected bool
	DeviceID    string // stable identity derived from the mount record
}

// File is one filesystem entry tracked across scans, keyed by
// (path, storage device). History lives in Checksum rows, not here.
type File struct {
	ID              int64
	Path            string
	Filename        string
	Directory       string
	StorageDeviceID int64
	Size            int64
	LastModified    time.Time
	FileType        string
	FirstSeen       time.Time
	LastSeen        time.Time
	IsDeleted       bool
}

// ChecksumStatus classifies one checksum observation.
type ChecksumStatus string

const (
	ChecksumStatusNew       ChecksumStatus = "new"
	ChecksumStatusUnchanged ChecksumStatus = "unchanged"
	ChecksumStatusModified  ChecksumStatus = "modified"
	ChecksumStatusCorrupted ChecksumStatus = "corrupted"
	ChecksumStatusMissing   ChecksumStatus = "missing"
)

// Checksum is one digest observation for a File within one Scan.
// PreviousChecksumID links to the most recent prior observation for the
// same file, forming a singly linked history chain.
type Checksum struct {
	ID                 int64
	FileID             int64
	ScanID             int64
	Value              string // lowercase hex digest; empty for a missing observation
	Method             string
	Timestamp          time.Time
	Status             ChecksumStatus
	PreviousChecksumID *int64
}

// ScanStatus is the lifecycle state of a scan run.
type ScanStatus string

const (
	ScanStatusRunning   ScanStatus = "running"
	ScanStatusCompleted ScanStatus = "completed"
	ScanStatusAborted   ScanStatus = "aborted"
	ScanStatusFailed    ScanStatus = "failed"
)

// Scan is one traversal run over a directory tree.
type Scan struct {
	ID              int64
	Name            string
	TopLevelPath    string
	StorageDeviceID *int64
	Method          string
	StartTime       time.Time
	EndTime         *time.Time
	Status          ScanStatus
	FilesScanned    int64
	FilesUnchanged  int64
	FilesModified   int64
	FilesCorrupted  int64
	FilesMissing    int64
	FilesNew        int64
	TotalSize       int64
	DurationSeconds *int64
	ScheduledScanID *int64
	ErrorMessage    *string
}

// ScanError records a non-fatal failure tied to one file within a scan.
type ScanError struct {
	ID           int64
	ScanID       int64
	FilePath     string
	ErrorType    string
	ErrorMessage string
	Timestamp    time.Time
}

// ScanSummary aggregates one scan's checksum observations by status.
type ScanSummary struct {
	ScanID       int64
	StatusCounts map[string]int64
	ErrorCount   int64
}

// ScheduledScan is a recurring scan definition driven by the scheduler.
type ScheduledScan struct {
	ID             int64
	Name           string
	Path           string
	Algorithm      string
	CronExpression string
	Enabled        bool
	LastRunAt      *time.Time
	NextRunAt      *time.Time
	CreatedAt      time.Time
}
