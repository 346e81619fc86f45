package db

import (
	"fmt"
)

// Migrate runs all database migrations.
func (db *DB) Migrate() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var currentVersion int
	row := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migration001},
		{2, migration002},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", m.version, err)
		}

		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to run migration %d: %w", m.version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.version, err)
		}
	}

	return nil
}

const migration001 = `
-- Storage volumes that scan roots resolve onto
CREATE TABLE storage_devices (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    mount_point TEXT NOT NULL,
    device_type TEXT NOT NULL DEFAULT 'unknown',
    total_size INTEGER DEFAULT 0,
    used_size INTEGER DEFAULT 0,
    first_seen DATETIME NOT NULL,
    last_seen DATETIME NOT NULL,
    is_connected BOOLEAN DEFAULT 1,
    device_id TEXT UNIQUE
);

-- Files tracked across scans; at most one live row per (path, device)
CREATE TABLE files (
    id INTEGER PRIMARY KEY,
    path TEXT NOT NULL,
    filename TEXT NOT NULL,
    directory TEXT NOT NULL,
    storage_device_id INTEGER NOT NULL REFERENCES storage_devices(id),
    size INTEGER DEFAULT 0,
    last_modified DATETIME,
    file_type TEXT,
    first_seen DATETIME NOT NULL,
    last_seen DATETIME NOT NULL,
    is_deleted BOOLEAN DEFAULT 0,
    UNIQUE(path, storage_device_id)
);

CREATE INDEX idx_files_directory ON files(directory);
CREATE INDEX idx_files_device ON files(storage_device_id);

-- Traversal runs
CREATE TABLE scans (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    top_level_path TEXT NOT NULL,
    storage_device_id INTEGER REFERENCES storage_devices(id),
    checksum_method TEXT NOT NULL DEFAULT 'sha256',
    start_time DATETIME NOT NULL,
    end_time DATETIME,
    status TEXT NOT NULL DEFAULT 'running',
    files_scanned INTEGER DEFAULT 0,
    files_unchanged INTEGER DEFAULT 0,
    files_modified INTEGER DEFAULT 0,
    files_corrupted INTEGER DEFAULT 0,
    files_missing INTEGER DEFAULT 0,
    files_new INTEGER DEFAULT 0,
    total_size INTEGER DEFAULT 0,
    duration_seconds INTEGER,
    scheduled_scan_id INTEGER,
    error_message TEXT
);

CREATE INDEX idx_scans_status ON scans(status);
CREATE INDEX idx_scans_start_time ON scans(start_time);

-- One digest observation per (file, scan); previous_checksum_id forms
-- the per-file history chain
CREATE TABLE checksums (
    id INTEGER PRIMARY KEY,
    file_id INTEGER NOT NULL REFERENCES files(id),
    scan_id INTEGER NOT NULL REFERENCES scans(id),
    checksum_value TEXT NOT NULL DEFAULT '',
    checksum_method TEXT NOT NULL,
    timestamp DATETIME NOT NULL,
    status TEXT NOT NULL DEFAULT 'new',
    previous_checksum_id INTEGER REFERENCES checksums(id),
    UNIQUE(file_id, scan_id)
);

CREATE INDEX idx_checksums_file ON checksums(file_id);
CREATE INDEX idx_checksums_scan ON checksums(scan_id);

-- Non-fatal per-file failures during a scan
CREATE TABLE scan_errors (
    id INTEGER PRIMARY KEY,
    scan_id INTEGER NOT NULL REFERENCES scans(id),
    file_path TEXT NOT NULL,
    error_type TEXT NOT NULL,
    error_message TEXT,
    timestamp DATETIME NOT NULL
);

CREATE INDEX idx_scan_errors_scan ON scan_errors(scan_id);
`

const migration002 = `
-- Recurring scans driven by the scheduler
CREATE TABLE scheduled_scans (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    path TEXT NOT NULL,
    algorithm TEXT NOT NULL DEFAULT 'sha256',
    cron_expression TEXT NOT NULL,
    enabled BOOLEAN DEFAULT 1,
    last_run_at DATETIME,
    next_run_at DATETIME,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`
