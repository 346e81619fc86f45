// Package handlers exposes the scan engine over a JSON HTTP API plus
// an SSE stream for live scan progress.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/lyallcooper/rotscan/internal/db"
	"github.com/lyallcooper/rotscan/internal/device"
	"github.com/lyallcooper/rotscan/internal/scanner"
	"github.com/lyallcooper/rotscan/internal/scheduler"
)

// Handler holds all HTTP handlers
type Handler struct {
	db        *db.DB
	scanner   *scanner.Scanner
	scheduler *scheduler.Scheduler
	resolver  *device.Resolver
	logger    scanner.Logger
}

// New creates a new Handler
func New(database *db.DB, sc *scanner.Scanner, sched *scheduler.Scheduler,
	resolver *device.Resolver, logger scanner.Logger) *Handler {
	if logger == nil {
		logger = scanner.NewNopLogger()
	}
	return &Handler{
		db:        database,
		scanner:   sc,
		scheduler: sched,
		resolver:  resolver,
		logger:    logger,
	}
}

// RegisterRoutes registers all HTTP routes
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Scans
	mux.HandleFunc("/api/scans", h.Scans)
	mux.HandleFunc("/api/scans/", h.ScanRoutes)

	// Devices and algorithms
	mux.HandleFunc("/api/devices", h.Devices)
	mux.HandleFunc("/api/algorithms", h.Algorithms)

	// Scheduled scans
	mux.HandleFunc("/api/scheduled-scans", h.ScheduledScans)

	// SSE
	mux.HandleFunc("/sse/scans/", h.ScanProgressSSE)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are gone at this point; nothing left to do.
		_ = err
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
