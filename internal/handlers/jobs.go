package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/lyallcooper/rotscan/internal/db"
)

type scheduledScanResponse struct {
	ID             int64      `json:"id"`
	Name           string     `json:"name"`
	Path           string     `json:"path"`
	Algorithm      string     `json:"algorithm"`
	CronExpression string     `json:"cron_expression"`
	Enabled        bool       `json:"enabled"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	NextRunAt      *time.Time `json:"next_run_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func newScheduledScanResponse(s *db.ScheduledScan) *scheduledScanResponse {
	return &scheduledScanResponse{
		ID:             s.ID,
		Name:           s.Name,
		Path:           s.Path,
		Algorithm:      s.Algorithm,
		CronExpression: s.CronExpression,
		Enabled:        s.Enabled,
		LastRunAt:      s.LastRunAt,
		NextRunAt:      s.NextRunAt,
		CreatedAt:      s.CreatedAt,
	}
}

// ScheduledScans handles the scheduled scan collection: GET lists,
// POST creates.
func (h *Handler) ScheduledScans(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listScheduledScans(w, r)
	case http.MethodPost:
		h.createScheduledScan(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) listScheduledScans(w http.ResponseWriter, _ *http.Request) {
	jobs, err := h.db.ListScheduledScans()
	if err != nil {
		h.logger.Error("listing scheduled scans", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list scheduled scans")
		return
	}

	resp := make([]*scheduledScanResponse, 0, len(jobs))
	for _, job := range jobs {
		resp = append(resp, newScheduledScanResponse(job))
	}
	writeJSON(w, http.StatusOK, resp)
}

type createScheduledScanRequest struct {
	Name           string `json:"name"`
	Path           string `json:"path"`
	Algorithm      string `json:"algorithm"`
	CronExpression string `json:"cron_expression"`
	Enabled        *bool  `json:"enabled"`
}

func (h *Handler) createScheduledScan(w http.ResponseWriter, r *http.Request) {
	var req createScheduledScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "name and path are required")
		return
	}
	if req.Algorithm == "" {
		req.Algorithm = "sha256"
	}

	next, err := h.scheduler.NextRun(req.CronExpression)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid cron expression: "+err.Error())
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	job := &db.ScheduledScan{
		Name:           req.Name,
		Path:           req.Path,
		Algorithm:      req.Algorithm,
		CronExpression: req.CronExpression,
		Enabled:        enabled,
		NextRunAt:      &next,
	}
	if _, err := h.db.CreateScheduledScan(job); err != nil {
		h.logger.Error("creating scheduled scan", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create scheduled scan")
		return
	}
	writeJSON(w, http.StatusCreated, newScheduledScanResponse(job))
}
