package db

import (
	"path/filepath"
	"testing"
	"time"
)

// testDB creates a temporary database for testing
func testDB(t *testing.T) *DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

func TestStorageDevice_CreateAndLookup(t *testing.T) {
	db := testDB(t)

	d := &StorageDevice{
		Name:        "Internal SSD (ext4) - Root",
		MountPoint:  "/",
		DeviceType:  "internal_ssd",
		TotalSize:   1000,
		UsedSize:    400,
		IsConnected: true,
		DeviceID:    "/dev/nvme0n1p2",
	}
	if _, err := db.CreateStorageDevice(d); err != nil {
		t.Fatalf("CreateStorageDevice: %v", err)
	}

	// Lookup by identity.
	got, err := db.GetStorageDevice("/dev/nvme0n1p2", "/elsewhere")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.ID != d.ID {
		t.Fatalf("lookup by device_id failed: %+v", got)
	}

	// Fallback lookup by mount point.
	got, err = db.GetStorageDevice("", "/")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.ID != d.ID {
		t.Fatalf("lookup by mount point failed: %+v", got)
	}

	// Unknown device.
	got, err = db.GetStorageDevice("nope", "/nope")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("expected nil for unknown device, got %+v", got)
	}
}

func TestStorageDevice_Update(t *testing.T) {
	db := testDB(t)

	d := &StorageDevice{Name: "disk", MountPoint: "/data", DeviceType: "internal_hdd", DeviceID: "/dev/sda1"}
	if _, err := db.CreateStorageDevice(d); err != nil {
		t.Fatal(err)
	}

	d.TotalSize = 2000
	d.UsedSize = 999
	d.IsConnected = false
	d.LastSeen = time.Now().Add(time.Hour)
	if err := db.UpdateStorageDevice(d); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetStorageDevice(d.DeviceID, "")
	if err != nil {
		t.Fatal(err)
	}
	if got.TotalSize != 2000 || got.UsedSize != 999 || got.IsConnected {
		t.Errorf("update not persisted: %+v", got)
	}
}

func createTestDevice(t *testing.T, db *DB) *StorageDevice {
	t.Helper()
	d := &StorageDevice{Name: "test", MountPoint: "/", DeviceType: "unknown", DeviceID: "test-device", IsConnected: true}
	if _, err := db.CreateStorageDevice(d); err != nil {
		t.Fatal(err)
	}
	return d
}

func TestFile_CreateUpdateLookup(t *testing.T) {
	db := testDB(t)
	dev := createTestDevice(t, db)

	f := &File{
		Path:            "/data/docs/a.txt",
		Filename:        "a.txt",
		Directory:       "/data/docs",
		StorageDeviceID: dev.ID,
		Size:            10,
		LastModified:    time.Now().Truncate(time.Second),
		FileType:        "text",
	}
	if _, err := db.CreateFile(f); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetFileByPath("/data/docs/a.txt", dev.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Filename != "a.txt" || got.Size != 10 || got.IsDeleted {
		t.Fatalf("unexpected file: %+v", got)
	}

	got.Size = 20
	got.IsDeleted = true
	if err := db.UpdateFile(got); err != nil {
		t.Fatal(err)
	}
	got, err = db.GetFileByPath("/data/docs/a.txt", dev.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Size != 20 || !got.IsDeleted {
		t.Errorf("update not persisted: %+v", got)
	}

	missing, err := db.GetFileByPath("/data/docs/b.txt", dev.ID)
	if err != nil {
		t.Fatal(err)
	}
	if missing != nil {
		t.Errorf("expected nil for unknown path, got %+v", missing)
	}
}

func TestListFilesUnder_ComponentAware(t *testing.T) {
	db := testDB(t)
	dev := createTestDevice(t, db)

	paths := []struct {
		dir, name string
		deleted   bool
	}{
		{"/data", "a.txt", false},
		{"/data/sub", "b.txt", false},
		{"/data2", "c.txt", false},
		{"/data", "gone.txt", true},
	}
	for _, p := range paths {
		f := &File{
			Path: p.dir + "/" + p.name, Filename: p.name, Directory: p.dir,
			StorageDeviceID: dev.ID, IsDeleted: p.deleted,
		}
		if _, err := db.CreateFile(f); err != nil {
			t.Fatal(err)
		}
	}

	files, err := db.ListFilesUnder("/data", dev.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Fatalf("got %d files, want 2: %+v", len(files), files)
	}
	for _, f := range files {
		if f.Directory == "/data2" {
			t.Errorf("/data2 matched under /data")
		}
		if f.IsDeleted {
			t.Errorf("deleted file returned")
		}
	}
}

func TestChecksum_HistoryChain(t *testing.T) {
	db := testDB(t)
	dev := createTestDevice(t, db)

	f := &File{Path: "/x/a", Filename: "a", Directory: "/x", StorageDeviceID: dev.ID}
	if _, err := db.CreateFile(f); err != nil {
		t.Fatal(err)
	}

	scan1 := &Scan{Name: "s1", TopLevelPath: "/x", Method: "sha256"}
	if _, err := db.CreateScan(scan1); err != nil {
		t.Fatal(err)
	}
	scan2 := &Scan{Name: "s2", TopLevelPath: "/x", Method: "sha256"}
	if _, err := db.CreateScan(scan2); err != nil {
		t.Fatal(err)
	}

	base := time.Now().Truncate(time.Second)
	c1 := &Checksum{FileID: f.ID, ScanID: scan1.ID, Value: "aaa", Method: "sha256",
		Status: ChecksumStatusNew, Timestamp: base}
	if _, err := db.CreateChecksum(c1); err != nil {
		t.Fatal(err)
	}
	c2 := &Checksum{FileID: f.ID, ScanID: scan2.ID, Value: "bbb", Method: "sha256",
		Status: ChecksumStatusModified, PreviousChecksumID: &c1.ID, Timestamp: base.Add(time.Minute)}
	if _, err := db.CreateChecksum(c2); err != nil {
		t.Fatal(err)
	}

	latest, err := db.GetLatestChecksum(f.ID)
	if err != nil {
		t.Fatal(err)
	}
	if latest == nil || latest.ID != c2.ID {
		t.Fatalf("latest = %+v, want id %d", latest, c2.ID)
	}
	if latest.PreviousChecksumID == nil || *latest.PreviousChecksumID != c1.ID {
		t.Errorf("back-reference not persisted: %+v", latest)
	}

	history, err := db.ListChecksumsForFile(f.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 || history[0].ID != c2.ID || history[1].ID != c1.ID {
		t.Errorf("history not newest-first: %+v", history)
	}
}

func TestChecksum_UpdateStatus(t *testing.T) {
	db := testDB(t)
	dev := createTestDevice(t, db)

	f := &File{Path: "/x/a", Filename: "a", Directory: "/x", StorageDeviceID: dev.ID}
	if _, err := db.CreateFile(f); err != nil {
		t.Fatal(err)
	}
	scan := &Scan{Name: "s", TopLevelPath: "/x", Method: "sha256"}
	if _, err := db.CreateScan(scan); err != nil {
		t.Fatal(err)
	}
	c := &Checksum{FileID: f.ID, ScanID: scan.ID, Value: "aaa", Method: "sha256", Status: ChecksumStatusCorrupted}
	if _, err := db.CreateChecksum(c); err != nil {
		t.Fatal(err)
	}

	if err := db.UpdateChecksumStatus(c.ID, ChecksumStatusModified); err != nil {
		t.Fatal(err)
	}
	got, err := db.GetChecksum(c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != ChecksumStatusModified {
		t.Errorf("status = %s, want modified", got.Status)
	}
}

func TestScan_Lifecycle(t *testing.T) {
	db := testDB(t)

	s := &Scan{Name: "nightly", TopLevelPath: "/data", Method: "sha256"}
	if _, err := db.CreateScan(s); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetScan(s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != ScanStatusRunning {
		t.Errorf("initial status = %s, want running", got.Status)
	}
	if got.EndTime != nil || got.ErrorMessage != nil {
		t.Errorf("new scan has terminal fields set: %+v", got)
	}

	end := time.Now().Truncate(time.Second)
	duration := int64(42)
	got.Status = ScanStatusCompleted
	got.EndTime = &end
	got.DurationSeconds = &duration
	got.FilesScanned = 3
	got.FilesNew = 3
	got.TotalSize = 35
	if err := db.UpdateScan(got); err != nil {
		t.Fatal(err)
	}

	got, err = db.GetScan(s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != ScanStatusCompleted || got.FilesNew != 3 || got.TotalSize != 35 {
		t.Errorf("final state not persisted: %+v", got)
	}
	if got.EndTime == nil || got.DurationSeconds == nil || *got.DurationSeconds != 42 {
		t.Errorf("terminal fields not persisted: %+v", got)
	}

	scans, err := db.ListScans(10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(scans) != 1 || scans[0].ID != s.ID {
		t.Errorf("ListScans = %+v", scans)
	}
}

func TestScanSummary(t *testing.T) {
	db := testDB(t)
	dev := createTestDevice(t, db)

	scan := &Scan{Name: "s", TopLevelPath: "/x", Method: "sha256"}
	if _, err := db.CreateScan(scan); err != nil {
		t.Fatal(err)
	}

	statuses := []ChecksumStatus{
		ChecksumStatusNew, ChecksumStatusNew, ChecksumStatusUnchanged, ChecksumStatusCorrupted,
	}
	for i, status := range statuses {
		f := &File{Path: "/x/f" + string(rune('a'+i)), Filename: "f", Directory: "/x", StorageDeviceID: dev.ID}
		if _, err := db.CreateFile(f); err != nil {
			t.Fatal(err)
		}
		c := &Checksum{FileID: f.ID, ScanID: scan.ID, Value: "v", Method: "sha256", Status: status}
		if _, err := db.CreateChecksum(c); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := db.CreateScanError(&ScanError{ScanID: scan.ID, FilePath: "/x/bad", ErrorType: "checksum_error"}); err != nil {
		t.Fatal(err)
	}

	summary, err := db.GetScanSummary(scan.ID)
	if err != nil {
		t.Fatal(err)
	}
	if summary.StatusCounts["new"] != 2 || summary.StatusCounts["unchanged"] != 1 ||
		summary.StatusCounts["corrupted"] != 1 {
		t.Errorf("status counts = %+v", summary.StatusCounts)
	}
	if summary.ErrorCount != 1 {
		t.Errorf("error count = %d, want 1", summary.ErrorCount)
	}
}

func TestScanErrors_List(t *testing.T) {
	db := testDB(t)

	scan := &Scan{Name: "s", TopLevelPath: "/x", Method: "sha256"}
	if _, err := db.CreateScan(scan); err != nil {
		t.Fatal(err)
	}

	for _, e := range []ScanError{
		{ScanID: scan.ID, FilePath: "/x/a", ErrorType: "checksum_error", ErrorMessage: "failed to calculate checksum"},
		{ScanID: scan.ID, FilePath: "/x/b", ErrorType: "processing_error", ErrorMessage: "permission denied"},
	} {
		e := e
		if _, err := db.CreateScanError(&e); err != nil {
			t.Fatal(err)
		}
	}

	errors, err := db.ListScanErrors(scan.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(errors) != 2 || errors[0].FilePath != "/x/a" || errors[1].ErrorType != "processing_error" {
		t.Errorf("ListScanErrors = %+v", errors)
	}
}

func TestScheduledScans(t *testing.T) {
	db := testDB(t)

	next := time.Now().Add(time.Hour).Truncate(time.Second)
	s := &ScheduledScan{
		Name: "nightly", Path: "/data", Algorithm: "sha256",
		CronExpression: "0 2 * * *", Enabled: true, NextRunAt: &next,
	}
	if _, err := db.CreateScheduledScan(s); err != nil {
		t.Fatal(err)
	}
	disabled := &ScheduledScan{
		Name: "paused", Path: "/tmp", Algorithm: "sha256",
		CronExpression: "0 3 * * *", Enabled: false,
	}
	if _, err := db.CreateScheduledScan(disabled); err != nil {
		t.Fatal(err)
	}

	all, err := db.ListScheduledScans()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("ListScheduledScans = %+v", all)
	}

	enabled, err := db.EnabledScheduledScans()
	if err != nil {
		t.Fatal(err)
	}
	if len(enabled) != 1 || enabled[0].Name != "nightly" {
		t.Fatalf("EnabledScheduledScans = %+v", enabled)
	}
	if enabled[0].NextRunAt == nil {
		t.Fatal("next_run_at not persisted")
	}

	last := time.Now().Truncate(time.Second)
	newNext := last.Add(24 * time.Hour)
	if err := db.UpdateScheduledScanRuns(s.ID, last, newNext); err != nil {
		t.Fatal(err)
	}
	enabled, err = db.EnabledScheduledScans()
	if err != nil {
		t.Fatal(err)
	}
	if enabled[0].LastRunAt == nil {
		t.Error("last_run_at not updated")
	}
}
