package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/lyallcooper/rotscan/internal/db"
	"github.com/lyallcooper/rotscan/internal/types"
)

// ScanProgressSSE streams scan progress as server-sent events.
func (h *Handler) ScanProgressSSE(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(r.URL.Path, "/")
	if len(parts) < 4 {
		http.NotFound(w, r)
		return
	}
	scanID, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	scan, err := h.db.GetScan(scanID)
	if err != nil || scan == nil {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	// Subscribe before sending the initial state so no update between
	// the two is lost.
	updates := h.scanner.Subscribe(scanID)
	defer h.scanner.Unsubscribe(scanID, updates)

	initial := progressFromScan(scan)
	h.sendProgress(w, flusher, initial)
	if scan.Status != db.ScanStatusRunning {
		h.sendEvent(w, flusher, "complete", fmt.Sprintf(`{"status":%q}`, scan.Status))
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case update, ok := <-updates:
			if !ok {
				// Channel closed, the scan reached a terminal state
				h.sendEvent(w, flusher, "complete", `{"status":"completed"}`)
				return
			}
			h.sendProgress(w, flusher, update)
			if update.Status == types.ProgressCompleted || update.Status == types.ProgressFailed {
				h.sendEvent(w, flusher, "complete", fmt.Sprintf(`{"status":%q}`, update.Status))
				return
			}
		}
	}
}

// progressFromScan builds the initial SSE snapshot from a scan record.
func progressFromScan(scan *db.Scan) *types.ScanProgress {
	status := types.ProgressScanning
	switch scan.Status {
	case db.ScanStatusCompleted, db.ScanStatusAborted:
		status = types.ProgressCompleted
	case db.ScanStatusFailed:
		status = types.ProgressFailed
	}
	p := &types.ScanProgress{
		ScanID:         scan.ID,
		Status:         status,
		FilesProcessed: scan.FilesScanned,
		Timestamp:      time.Now().UTC(),
	}
	if scan.ErrorMessage != nil {
		p.Error = *scan.ErrorMessage
	}
	return p
}

func (h *Handler) sendProgress(w http.ResponseWriter, flusher http.Flusher, p *types.ScanProgress) {
	data, _ := json.Marshal(p)
	h.sendEvent(w, flusher, "progress", string(data))
}

func (h *Handler) sendEvent(w http.ResponseWriter, flusher http.Flusher, event, data string) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	flusher.Flush()
}
