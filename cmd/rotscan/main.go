package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/lyallcooper/rotscan/internal/app"
	"github.com/lyallcooper/rotscan/internal/checksum"
	"github.com/lyallcooper/rotscan/internal/config"
	"github.com/lyallcooper/rotscan/internal/db"
	"github.com/lyallcooper/rotscan/internal/device"
	"github.com/lyallcooper/rotscan/internal/scanner"
	"github.com/lyallcooper/rotscan/internal/scheduler"
)

var (
	configPath string
	verbose    bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "rotscan",
	Short: "File integrity scanner that detects bitrot",
	Long: `rotscan walks directory trees, checksums every file and compares each
digest against the file's recorded history to detect silent corruption.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to TOML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	serveCmd.Flags().Int("port", 0, "port to listen on (overrides config)")
	serveCmd.Flags().String("bind", "", "address to bind to")

	scanCmd.Flags().String("name", "", "name for the scan")
	scanCmd.Flags().String("algorithm", "", "checksum algorithm")
	scanCmd.Flags().Int("workers", 0, "checksum worker count")
	scanCmd.Flags().StringSlice("exclude-dir", nil, "directory name to exclude (repeatable)")
	scanCmd.Flags().StringSlice("exclude-pattern", nil, "glob pattern to exclude (repeatable)")
	scanCmd.Flags().Int("max-depth", 0, "maximum traversal depth (0 = unlimited)")

	scheduleAddCmd.Flags().String("name", "", "name for the scheduled scan")
	scheduleAddCmd.Flags().String("cron", "", "five-field cron expression")
	scheduleAddCmd.Flags().String("algorithm", "sha256", "checksum algorithm")
	scheduleAddCmd.MarkFlagRequired("name")
	scheduleAddCmd.MarkFlagRequired("cron")

	scheduleCmd.AddCommand(scheduleListCmd, scheduleAddCmd)
	rootCmd.AddCommand(serveCmd, scanCmd, devicesCmd, algorithmsCmd, scheduleCmd)
}

// openEnv loads config and opens the database for one-shot commands.
func openEnv() (*config.Config, *db.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	return cfg, database, nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server and scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetInt("port")
		bind, _ := cmd.Flags().GetString("bind")

		server, err := app.CreateServer(app.ServerConfig{
			ConfigPath:  configPath,
			Port:        port,
			BindAddress: bind,
			Verbose:     verbose,
		})
		if err != nil {
			return err
		}
		defer server.Cleanup()

		errChan := make(chan error, 1)
		go func() {
			errChan <- server.HTTP.ListenAndServe()
		}()
		server.Logger.Info("listening", "addr", server.HTTP.Addr)

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

		select {
		case err := <-errChan:
			return err
		case sig := <-sigChan:
			server.Logger.Info("shutting down", "signal", sig.String())
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.HTTP.Shutdown(ctx)
		}
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan <path>",
	Short: "Scan a directory tree and report integrity changes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, database, err := openEnv()
		if err != nil {
			return err
		}
		defer database.Close()

		name, _ := cmd.Flags().GetString("name")
		algorithm, _ := cmd.Flags().GetString("algorithm")
		workers, _ := cmd.Flags().GetInt("workers")
		excludeDirs, _ := cmd.Flags().GetStringSlice("exclude-dir")
		excludePatterns, _ := cmd.Flags().GetStringSlice("exclude-pattern")
		maxDepth, _ := cmd.Flags().GetInt("max-depth")

		if algorithm == "" {
			algorithm = cfg.Scan.Algorithm
		}
		if workers == 0 {
			workers = cfg.Scan.Workers
		}
		if excludeDirs == nil {
			excludeDirs = cfg.Scan.ExcludeDirs
		}
		if excludePatterns == nil {
			excludePatterns = cfg.Scan.ExcludePatterns
		}

		sc := scanner.New(database, device.NewResolver(), app.NewLogger(verbose))

		scan, err := sc.Scan(args[0], scanner.Options{
			Name:            name,
			Algorithm:       algorithm,
			Workers:         workers,
			ExcludeDirs:     excludeDirs,
			ExcludePatterns: excludePatterns,
			MaxDepth:        maxDepth,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Scan %d (%s) %s\n", scan.ID, scan.Name, scan.Status)
		fmt.Printf("  Path:      %s\n", scan.TopLevelPath)
		fmt.Printf("  Algorithm: %s\n", scan.Method)
		fmt.Printf("  Scanned:   %d files, %s\n", scan.FilesScanned,
			humanize.IBytes(uint64(scan.TotalSize)))
		fmt.Printf("  New:       %d\n", scan.FilesNew)
		fmt.Printf("  Unchanged: %d\n", scan.FilesUnchanged)
		fmt.Printf("  Modified:  %d\n", scan.FilesModified)
		fmt.Printf("  Corrupted: %d\n", scan.FilesCorrupted)
		fmt.Printf("  Missing:   %d\n", scan.FilesMissing)

		summary, err := sc.Summary(scan.ID)
		if err == nil && summary.ErrorCount > 0 {
			fmt.Printf("  Errors:    %d (see scan_errors for details)\n", summary.ErrorCount)
		}
		if scan.FilesCorrupted > 0 {
			return fmt.Errorf("%d corrupted file(s) detected", scan.FilesCorrupted)
		}
		return nil
	},
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List mounted storage devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		devices, err := device.NewResolver().Devices()
		if err != nil {
			return err
		}
		if len(devices) == 0 {
			fmt.Println("No storage devices found")
			return nil
		}
		for _, d := range devices {
			fmt.Printf("%s\n", d.Name)
			fmt.Printf("  Mount:  %s (%s, %s)\n", d.MountPoint, d.FSType, d.Type)
			fmt.Printf("  Size:   %s total, %s used, %s free\n",
				humanize.IBytes(uint64(d.TotalSize)),
				humanize.IBytes(uint64(d.UsedSize)),
				humanize.IBytes(uint64(d.FreeSize)))
		}
		return nil
	},
}

var algorithmsCmd = &cobra.Command{
	Use:   "algorithms",
	Short: "List supported checksum algorithms",
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range checksum.Supported() {
			info, _ := checksum.AlgorithmInfo(name)
			fmt.Printf("%-10s %s (speed: %s, security: %s)\n",
				name, info.Description, info.Speed, info.Security)
			if info.Recommendation != "" {
				fmt.Printf("           %s\n", info.Recommendation)
			}
		}
	},
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage scheduled scans",
}

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scheduled scans",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, database, err := openEnv()
		if err != nil {
			return err
		}
		defer database.Close()

		jobs, err := database.ListScheduledScans()
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			fmt.Println("No scheduled scans")
			return nil
		}
		for _, job := range jobs {
			state := "enabled"
			if !job.Enabled {
				state = "disabled"
			}
			fmt.Printf("%d: %s [%s]\n", job.ID, job.Name, state)
			fmt.Printf("   Path: %s (%s)\n", job.Path, job.Algorithm)
			fmt.Printf("   Cron: %s\n", job.CronExpression)
			if job.NextRunAt != nil {
				fmt.Printf("   Next: %s\n", job.NextRunAt.Format(time.RFC3339))
			}
		}
		return nil
	},
}

var scheduleAddCmd = &cobra.Command{
	Use:   "add <path>",
	Short: "Add a scheduled scan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, database, err := openEnv()
		if err != nil {
			return err
		}
		defer database.Close()

		name, _ := cmd.Flags().GetString("name")
		cronExpr, _ := cmd.Flags().GetString("cron")
		algorithm, _ := cmd.Flags().GetString("algorithm")

		sc := scanner.New(database, device.NewResolver(), nil)
		next, err := scheduler.New(database, sc, nil).NextRun(cronExpr)
		if err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}

		job := &db.ScheduledScan{
			Name:           name,
			Path:           args[0],
			Algorithm:      algorithm,
			CronExpression: cronExpr,
			Enabled:        true,
			NextRunAt:      &next,
		}
		if _, err := database.CreateScheduledScan(job); err != nil {
			return err
		}
		fmt.Printf("Scheduled scan %d created, next run at %s\n",
			job.ID, next.Format(time.RFC3339))
		return nil
	},
}
