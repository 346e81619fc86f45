package db

import (
	"database/sql"
	"time"
)

// StorageDevice queries

// CreateStorageDevice inserts a new storage device and returns its ID.
func (db *DB) CreateStorageDevice(d *StorageDevice) (int64, error) {
	now := time.Now()
	if d.FirstSeen.IsZero() {
		d.FirstSeen = now
	}
	if d.LastSeen.IsZero() {
		d.LastSeen = now
	}

	var deviceID any
	if d.DeviceID != "" {
		deviceID = d.DeviceID
	}

	result, err := db.exec(`
		INSERT INTO storage_devices (name, mount_point, device_type, total_size, used_size,
			first_seen, last_seen, is_connected, device_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.Name, d.MountPoint, d.DeviceType, d.TotalSize, d.UsedSize,
		d.FirstSeen, d.LastSeen, d.IsConnected, deviceID,
	)
	if err != nil {
		return 0, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	d.ID = id
	return id, nil
}

// GetStorageDevice looks a device up by stable identity, falling back to
// mount point. Returns (nil, nil) when neither matches.
func (db *DB) GetStorageDevice(deviceID, mountPoint string) (*StorageDevice, error) {
	if deviceID != "" {
		d, err := scanStorageDevice(db.QueryRow(
			selectStorageDevice+" WHERE device_id = ?", deviceID))
		if err != nil {
			return nil, err
		}
		if d != nil {
			return d, nil
		}
	}
	return scanStorageDevice(db.QueryRow(
		selectStorageDevice+" WHERE mount_point = ? ORDER BY last_seen DESC LIMIT 1", mountPoint))
}

// UpdateStorageDevice persists mutable device fields.
func (db *DB) UpdateStorageDevice(d *StorageDevice) error {
	_, err := db.exec(`
		UPDATE storage_devices SET name = ?, mount_point = ?, device_type = ?,
			total_size = ?, used_size = ?, last_seen = ?, is_connected = ?
		WHERE id = ?`,
		d.Name, d.MountPoint, d.DeviceType, d.TotalSize, d.UsedSize,
		d.LastSeen, d.IsConnected, d.ID,
	)
	return err
}

// ListStorageDevices returns all known devices ordered by mount point.
func (db *DB) ListStorageDevices() ([]*StorageDevice, error) {
	rows, err := db.Query(selectStorageDevice + " ORDER BY mount_point")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []*StorageDevice
	for rows.Next() {
		d := &StorageDevice{}
		var deviceID sql.NullString
		if err := rows.Scan(&d.ID, &d.Name, &d.MountPoint, &d.DeviceType, &d.TotalSize,
			&d.UsedSize, &d.FirstSeen, &d.LastSeen, &d.IsConnected, &deviceID); err != nil {
			return nil, err
		}
		d.DeviceID = deviceID.String
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

const selectStorageDevice = `
	SELECT id, name, mount_point, device_type, total_size, used_size,
		first_seen, last_seen, is_connected, device_id
	FROM storage_devices`

func scanStorageDevice(row *sql.Row) (*StorageDevice, error) {
	d := &StorageDevice{}
	var deviceID sql.NullString
	err := row.Scan(&d.ID, &d.Name, &d.MountPoint, &d.DeviceType, &d.TotalSize,
		&d.UsedSize, &d.FirstSeen, &d.LastSeen, &d.IsConnected, &deviceID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	d.DeviceID = deviceID.String
	return d, nil
}

// File queries

// CreateFile inserts a new file row and returns its ID.
func (db *DB) CreateFile(f *File) (int64, error) {
	now := time.Now()
	if f.FirstSeen.IsZero() {
		f.FirstSeen = now
	}
	if f.LastSeen.IsZero() {
		f.LastSeen = now
	}

	result, err := db.exec(`
		INSERT INTO files (path, filename, directory, storage_device_id, size,
			last_modified, file_type, first_seen, last_seen, is_deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.Path, f.Filename, f.Directory, f.StorageDeviceID, f.Size,
		f.LastModified, f.FileType, f.FirstSeen, f.LastSeen, f.IsDeleted,
	)
	if err != nil {
		return 0, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	f.ID = id
	return id, nil
}

// GetFileByPath returns the file row for (path, device), or (nil, nil).
func (db *DB) GetFileByPath(path string, storageDeviceID int64) (*File, error) {
	row := db.QueryRow(selectFile+" WHERE path = ? AND storage_device_id = ?",
		path, storageDeviceID)
	f, err := scanFile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// UpdateFile persists mutable file fields.
func (db *DB) UpdateFile(f *File) error {
	_, err := db.exec(`
		UPDATE files SET size = ?, last_modified = ?, file_type = ?,
			last_seen = ?, is_deleted = ?
		WHERE id = ?`,
		f.Size, f.LastModified, f.FileType, f.LastSeen, f.IsDeleted, f.ID,
	)
	return err
}

// ListFilesUnder returns all non-deleted files on a device whose
// directory is root or any descendant of it. The match is by whole path
// component, so /data never captures files under /data2.
func (db *DB) ListFilesUnder(root string, storageDeviceID int64) ([]*File, error) {
	rows, err := db.Query(selectFile+`
		WHERE storage_device_id = ? AND is_deleted = 0
			AND (directory = ? OR directory LIKE ? || '/%')`,
		storageDeviceID, root, root)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []*File
	for rows.Next() {
		f := &File{}
		var lastModified sql.NullTime
		var fileType sql.NullString
		if err := rows.Scan(&f.ID, &f.Path, &f.Filename, &f.Directory, &f.StorageDeviceID,
			&f.Size, &lastModified, &fileType, &f.FirstSeen, &f.LastSeen, &f.IsDeleted); err != nil {
			return nil, err
		}
		f.LastModified = lastModified.Time
		f.FileType = fileType.String
		files = append(files, f)
	}
	return files, rows.Err()
}

const selectFile = `
	SELECT id, path, filename, directory, storage_device_id, size,
		last_modified, file_type, first_seen, last_seen, is_deleted
	FROM files`

func scanFile(row *sql.Row) (*File, error) {
	f := &File{}
	var lastModified sql.NullTime
	var fileType sql.NullString
	err := row.Scan(&f.ID, &f.Path, &f.Filename, &f.Directory, &f.StorageDeviceID,
		&f.Size, &lastModified, &fileType, &f.FirstSeen, &f.LastSeen, &f.IsDeleted)
	if err != nil {
		return nil, err
	}
	f.LastModified = lastModified.Time
	f.FileType = fileType.String
	return f, nil
}

// Checksum queries

// CreateChecksum inserts a checksum observation and returns its ID.
func (db *DB) CreateChecksum(c *Checksum) (int64, error) {
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now()
	}

	result, err := db.exec(`
		INSERT INTO checksums (file_id, scan_id, checksum_value, checksum_method,
			timestamp, status, previous_checksum_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.FileID, c.ScanID, c.Value, c.Method, c.Timestamp, c.Status, c.PreviousChecksumID,
	)
	if err != nil {
		return 0, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	c.ID = id
	return id, nil
}

// GetLatestChecksum returns the most recent checksum observation for a
// file across all scans, or (nil, nil) when none exists.
func (db *DB) GetLatestChecksum(fileID int64) (*Checksum, error) {
	checksums, err := db.ListChecksumsForFile(fileID, 1)
	if err != nil {
		return nil, err
	}
	if len(checksums) == 0 {
		return nil, nil
	}
	return checksums[0], nil
}

// ListChecksumsForFile returns a file's checksum history, newest first.
// A limit of 0 returns everything.
func (db *DB) ListChecksumsForFile(fileID int64, limit int) ([]*Checksum, error) {
	query := selectChecksum + " WHERE file_id = ? ORDER BY timestamp DESC, id DESC"
	args := []any{fileID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var checksums []*Checksum
	for rows.Next() {
		c := &Checksum{}
		var prev sql.NullInt64
		if err := rows.Scan(&c.ID, &c.FileID, &c.ScanID, &c.Value, &c.Method,
			&c.Timestamp, &c.Status, &prev); err != nil {
			return nil, err
		}
		if prev.Valid {
			c.PreviousChecksumID = &prev.Int64
		}
		checksums = append(checksums, c)
	}
	return checksums, rows.Err()
}

// GetChecksum returns one checksum row by ID, or (nil, nil).
func (db *DB) GetChecksum(id int64) (*Checksum, error) {
	row := db.QueryRow(selectChecksum+" WHERE id = ?", id)
	c := &Checksum{}
	var prev sql.NullInt64
	err := row.Scan(&c.ID, &c.FileID, &c.ScanID, &c.Value, &c.Method,
		&c.Timestamp, &c.Status, &prev)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if prev.Valid {
		c.PreviousChecksumID = &prev.Int64
	}
	return c, nil
}

// UpdateChecksumStatus corrects the classification of one observation
// (manual reclassification; rows are otherwise immutable).
func (db *DB) UpdateChecksumStatus(id int64, status ChecksumStatus) error {
	_, err := db.exec("UPDATE checksums SET status = ? WHERE id = ?", status, id)
	return err
}

const selectChecksum = `
	SELECT id, file_id, scan_id, checksum_value, checksum_method,
		timestamp, status, previous_checksum_id
	FROM checksums`

// Scan queries

// CreateScan inserts a scan row in its initial state and returns its ID.
func (db *DB) CreateScan(s *Scan) (int64, error) {
	if s.StartTime.IsZero() {
		s.StartTime = time.Now()
	}
	if s.Status == "" {
		s.Status = ScanStatusRunning
	}

	result, err := db.exec(`
		INSERT INTO scans (name, top_level_path, storage_device_id, checksum_method,
			start_time, status, scheduled_scan_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.Name, s.TopLevelPath, s.StorageDeviceID, s.Method,
		s.StartTime, s.Status, s.ScheduledScanID,
	)
	if err != nil {
		return 0, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	s.ID = id
	return id, nil
}

// UpdateScan persists the full mutable state of a scan row. The update
// is idempotent: workers re-write counters as they advance.
func (db *DB) UpdateScan(s *Scan) error {
	_, err := db.exec(`
		UPDATE scans SET status = ?, end_time = ?, files_scanned = ?,
			files_unchanged = ?, files_modified = ?, files_corrupted = ?,
			files_missing = ?, files_new = ?, total_size = ?,
			duration_seconds = ?, error_message = ?
		WHERE id = ?`,
		s.Status, s.EndTime, s.FilesScanned, s.FilesUnchanged, s.FilesModified,
		s.FilesCorrupted, s.FilesMissing, s.FilesNew, s.TotalSize,
		s.DurationSeconds, s.ErrorMessage, s.ID,
	)
	return err
}

// GetScan retrieves a scan by ID, or (nil, nil).
func (db *DB) GetScan(id int64) (*Scan, error) {
	row := db.QueryRow(selectScan+" WHERE id = ?", id)
	s, err := scanScan(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ListScans returns scans newest first with pagination.
func (db *DB) ListScans(limit, offset int) ([]*Scan, error) {
	rows, err := db.Query(selectScan+" ORDER BY start_time DESC, id DESC LIMIT ? OFFSET ?",
		limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scans []*Scan
	for rows.Next() {
		s, err := scanScan(rows)
		if err != nil {
			return nil, err
		}
		scans = append(scans, s)
	}
	return scans, rows.Err()
}

// GetScanSummary aggregates a scan's checksum observations by status and
// counts its recorded errors.
func (db *DB) GetScanSummary(scanID int64) (*ScanSummary, error) {
	rows, err := db.Query(`
		SELECT status, COUNT(*) FROM checksums WHERE scan_id = ? GROUP BY status`, scanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summary := &ScanSummary{ScanID: scanID, StatusCounts: make(map[string]int64)}
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		summary.StatusCounts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = db.QueryRow("SELECT COUNT(*) FROM scan_errors WHERE scan_id = ?", scanID).
		Scan(&summary.ErrorCount)
	if err != nil {
		return nil, err
	}
	return summary, nil
}

const selectScan = `
	SELECT id, name, top_level_path, storage_device_id, checksum_method,
		start_time, end_time, status, files_scanned, files_unchanged,
		files_modified, files_corrupted, files_missing, files_new,
		total_size, duration_seconds, scheduled_scan_id, error_message
	FROM scans`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScan(row rowScanner) (*Scan, error) {
	s := &Scan{}
	var deviceID, duration, scheduledID sql.NullInt64
	var endTime sql.NullTime
	var errorMsg sql.NullString

	err := row.Scan(&s.ID, &s.Name, &s.TopLevelPath, &deviceID, &s.Method,
		&s.StartTime, &endTime, &s.Status, &s.FilesScanned, &s.FilesUnchanged,
		&s.FilesModified, &s.FilesCorrupted, &s.FilesMissing, &s.FilesNew,
		&s.TotalSize, &duration, &scheduledID, &errorMsg)
	if err != nil {
		return nil, err
	}

	if deviceID.Valid {
		s.StorageDeviceID = &deviceID.Int64
	}
	if endTime.Valid {
		s.EndTime = &endTime.Time
	}
	if duration.Valid {
		s.DurationSeconds = &duration.Int64
	}
	if scheduledID.Valid {
		s.ScheduledScanID = &scheduledID.Int64
	}
	if errorMsg.Valid {
		s.ErrorMessage = &errorMsg.String
	}
	return s, nil
}

// ScanError queries

// CreateScanError records a non-fatal per-file failure.
func (db *DB) CreateScanError(e *ScanError) (int64, error) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	result, err := db.exec(`
		INSERT INTO scan_errors (scan_id, file_path, error_type, error_message, timestamp)
		VALUES (?, ?, ?, ?, ?)`,
		e.ScanID, e.FilePath, e.ErrorType, e.ErrorMessage, e.Timestamp,
	)
	if err != nil {
		return 0, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	e.ID = id
	return id, nil
}

// ListScanErrors returns all errors recorded for a scan, oldest first.
func (db *DB) ListScanErrors(scanID int64) ([]*ScanError, error) {
	rows, err := db.Query(`
		SELECT id, scan_id, file_path, error_type, error_message, timestamp
		FROM scan_errors WHERE scan_id = ? ORDER BY id`, scanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var errors []*ScanError
	for rows.Next() {
		e := &ScanError{}
		var msg sql.NullString
		if err := rows.Scan(&e.ID, &e.ScanID, &e.FilePath, &e.ErrorType, &msg, &e.Timestamp); err != nil {
			return nil, err
		}
		e.ErrorMessage = msg.String
		errors = append(errors, e)
	}
	return errors, rows.Err()
}

// ScheduledScan queries

// CreateScheduledScan inserts a recurring scan definition.
func (db *DB) CreateScheduledScan(s *ScheduledScan) (int64, error) {
	result, err := db.exec(`
		INSERT INTO scheduled_scans (name, path, algorithm, cron_expression, enabled, next_run_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.Name, s.Path, s.Algorithm, s.CronExpression, s.Enabled, s.NextRunAt,
	)
	if err != nil {
		return 0, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	s.ID = id
	return id, nil
}

// ListScheduledScans returns all scheduled scans ordered by name.
func (db *DB) ListScheduledScans() ([]*ScheduledScan, error) {
	return db.queryScheduledScans(selectScheduledScan + " ORDER BY name")
}

// EnabledScheduledScans returns only enabled scheduled scans.
func (db *DB) EnabledScheduledScans() ([]*ScheduledScan, error) {
	return db.queryScheduledScans(selectScheduledScan + " WHERE enabled = 1 ORDER BY name")
}

// UpdateScheduledScanRuns updates a job's bookkeeping after a launch.
func (db *DB) UpdateScheduledScanRuns(id int64, lastRun, nextRun time.Time) error {
	_, err := db.exec(`
		UPDATE scheduled_scans SET last_run_at = ?, next_run_at = ? WHERE id = ?`,
		lastRun, nextRun, id,
	)
	return err
}

const selectScheduledScan = `
	SELECT id, name, path, algorithm, cron_expression, enabled,
		last_run_at, next_run_at, created_at
	FROM scheduled_scans`

func (db *DB) queryScheduledScans(query string, args ...any) ([]*ScheduledScan, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scans []*ScheduledScan
	for rows.Next() {
		s := &ScheduledScan{}
		var lastRun, nextRun sql.NullTime
		if err := rows.Scan(&s.ID, &s.Name, &s.Path, &s.Algorithm, &s.CronExpression,
			&s.Enabled, &lastRun, &nextRun, &s.CreatedAt); err != nil {
			return nil, err
		}
		if lastRun.Valid {
			s.LastRunAt = &lastRun.Time
		}
		if nextRun.Valid {
			s.NextRunAt = &nextRun.Time
		}
		scans = append(scans, s)
	}
	return scans, rows.Err()
}
