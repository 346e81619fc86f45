// Package app wires the application components together for the server
// and CLI entry points.
package app

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/lyallcooper/rotscan/internal/config"
	"github.com/lyallcooper/rotscan/internal/db"
	"github.com/lyallcooper/rotscan/internal/device"
	"github.com/lyallcooper/rotscan/internal/handlers"
	"github.com/lyallcooper/rotscan/internal/scanner"
	"github.com/lyallcooper/rotscan/internal/scheduler"
)

// ServerConfig contains options for creating the application server.
type ServerConfig struct {
	// ConfigPath is the TOML config file location. Optional.
	ConfigPath string

	// Port overrides the configured port when > 0.
	Port int

	// BindAddress is the address to bind to. Defaults to all interfaces.
	BindAddress string

	// Verbose enables debug logging.
	Verbose bool
}

// Server wraps the HTTP server and associated resources.
type Server struct {
	HTTP      *http.Server
	Config    *config.Config
	Database  *db.DB
	Scanner   *scanner.Scanner
	Scheduler *scheduler.Scheduler
	Logger    *slog.Logger
}

// NewLogger builds the process-wide structured logger.
func NewLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// CreateServer initializes all application components and returns a
// Server. Call Server.Cleanup() when done to release resources.
func CreateServer(cfg ServerConfig) (*Server, error) {
	appCfg, err := config.Load(cfg.ConfigPath)
	if err != nil {
		return nil, err
	}
	if cfg.Port > 0 {
		appCfg.Port = cfg.Port
	}

	logger := NewLogger(cfg.Verbose)
	logger.Info("rotscan starting", "db_path", appCfg.DBPath, "port", appCfg.Port)

	database, err := db.Open(appCfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	resolver := device.NewResolver()
	sc := scanner.New(database, resolver, logger)

	sched := scheduler.New(database, sc, logger)
	sched.Start()

	h := handlers.New(database, sc, sched, resolver, logger)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	addr := fmt.Sprintf("%s:%d", cfg.BindAddress, appCfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // No timeout for SSE
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		HTTP:      server,
		Config:    appCfg,
		Database:  database,
		Scanner:   sc,
		Scheduler: sched,
		Logger:    logger,
	}, nil
}

// Cleanup releases all resources held by the server.
func (s *Server) Cleanup() {
	if s.Scheduler != nil {
		s.Scheduler.Stop()
	}
	if s.Database != nil {
		s.Database.Close()
	}
}
