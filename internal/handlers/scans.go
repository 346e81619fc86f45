package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/lyallcooper/rotscan/internal/db"
	"github.com/lyallcooper/rotscan/internal/scanner"
)

const defaultScanPageSize = 50

type scanResponse struct {
	ID              int64      `json:"id"`
	Name            string     `json:"name"`
	TopLevelPath    string     `json:"top_level_path"`
	StorageDeviceID *int64     `json:"storage_device_id,omitempty"`
	Method          string     `json:"checksum_method"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	Status          string     `json:"status"`
	FilesScanned    int64      `json:"files_scanned"`
	FilesUnchanged  int64      `json:"files_unchanged"`
	FilesModified   int64      `json:"files_modified"`
	FilesCorrupted  int64      `json:"files_corrupted"`
	FilesMissing    int64      `json:"files_missing"`
	FilesNew        int64      `json:"files_new"`
	TotalSize       int64      `json:"total_size"`
	TotalSizeHuman  string     `json:"total_size_human"`
	DurationSeconds *int64     `json:"duration_seconds,omitempty"`
	ScheduledScanID *int64     `json:"scheduled_scan_id,omitempty"`
	ErrorMessage    *string    `json:"error_message,omitempty"`
}

func newScanResponse(s *db.Scan) *scanResponse {
	return &scanResponse{
		ID:              s.ID,
		Name:            s.Name,
		TopLevelPath:    s.TopLevelPath,
		StorageDeviceID: s.StorageDeviceID,
		Method:          s.Method,
		StartTime:       s.StartTime,
		EndTime:         s.EndTime,
		Status:          string(s.Status),
		FilesScanned:    s.FilesScanned,
		FilesUnchanged:  s.FilesUnchanged,
		FilesModified:   s.FilesModified,
		FilesCorrupted:  s.FilesCorrupted,
		FilesMissing:    s.FilesMissing,
		FilesNew:        s.FilesNew,
		TotalSize:       s.TotalSize,
		TotalSizeHuman:  humanize.IBytes(uint64(s.TotalSize)),
		DurationSeconds: s.DurationSeconds,
		ScheduledScanID: s.ScheduledScanID,
		ErrorMessage:    s.ErrorMessage,
	}
}

// Scans handles the scan collection: GET lists, POST starts a scan.
func (h *Handler) Scans(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listScans(w, r)
	case http.MethodPost:
		h.startScan(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) listScans(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultScanPageSize)
	offset := queryInt(r, "offset", 0)

	scans, err := h.db.ListScans(limit, offset)
	if err != nil {
		h.logger.Error("listing scans", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list scans")
		return
	}

	resp := make([]*scanResponse, 0, len(scans))
	for _, s := range scans {
		resp = append(resp, newScanResponse(s))
	}
	writeJSON(w, http.StatusOK, resp)
}

type startScanRequest struct {
	Path            string   `json:"path"`
	Name            string   `json:"name"`
	Algorithm       string   `json:"algorithm"`
	Workers         int      `json:"workers"`
	BlockSize       int      `json:"block_size"`
	ExcludeDirs     []string `json:"exclude_dirs"`
	ExcludePatterns []string `json:"exclude_patterns"`
	MaxDepth        int      `json:"max_depth"`
}

func (h *Handler) startScan(w http.ResponseWriter, r *http.Request) {
	var req startScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	scan, err := h.scanner.StartScan(req.Path, scanner.Options{
		Name:            req.Name,
		Algorithm:       req.Algorithm,
		Workers:         req.Workers,
		BlockSize:       req.BlockSize,
		ExcludeDirs:     req.ExcludeDirs,
		ExcludePatterns: req.ExcludePatterns,
		MaxDepth:        req.MaxDepth,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, newScanResponse(scan))
}

// ScanRoutes dispatches /api/scans/{id} and its sub-resources.
func (h *Handler) ScanRoutes(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/scans/"), "/")
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.getScan(w, r, id)
		return
	}

	switch parts[1] {
	case "summary":
		h.scanSummary(w, r, id)
	case "errors":
		h.scanErrors(w, r, id)
	case "stop":
		h.stopScan(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) getScan(w http.ResponseWriter, r *http.Request, id int64) {
	scan, err := h.db.GetScan(id)
	if err != nil {
		h.logger.Error("getting scan", "scan_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get scan")
		return
	}
	if scan == nil {
		writeError(w, http.StatusNotFound, "scan not found")
		return
	}
	writeJSON(w, http.StatusOK, newScanResponse(scan))
}

type summaryResponse struct {
	Scan         *scanResponse    `json:"scan"`
	StatusCounts map[string]int64 `json:"status_counts"`
	ErrorCount   int64            `json:"error_count"`
}

func (h *Handler) scanSummary(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	summary, err := h.scanner.Summary(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summaryResponse{
		Scan:         newScanResponse(summary.Scan),
		StatusCounts: summary.StatusCounts,
		ErrorCount:   summary.ErrorCount,
	})
}

type scanErrorResponse struct {
	ID           int64     `json:"id"`
	FilePath     string    `json:"file_path"`
	ErrorType    string    `json:"error_type"`
	ErrorMessage string    `json:"error_message"`
	Timestamp    time.Time `json:"timestamp"`
}

func (h *Handler) scanErrors(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	errs, err := h.db.ListScanErrors(id)
	if err != nil {
		h.logger.Error("listing scan errors", "scan_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list scan errors")
		return
	}

	resp := make([]*scanErrorResponse, 0, len(errs))
	for _, e := range errs {
		resp = append(resp, &scanErrorResponse{
			ID:           e.ID,
			FilePath:     e.FilePath,
			ErrorType:    e.ErrorType,
			ErrorMessage: e.ErrorMessage,
			Timestamp:    e.Timestamp,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) stopScan(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if h.scanner.Stop(id) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "stopping"})
		return
	}

	scan, err := h.db.GetScan(id)
	if err != nil || scan == nil {
		writeError(w, http.StatusNotFound, "scan not found")
		return
	}
	writeError(w, http.StatusConflict, "scan is not running")
}

func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
