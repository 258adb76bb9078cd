package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agenttrace/agenttrace/internal/collector"
	"github.com/agenttrace/agenttrace/internal/config"
	"github.com/agenttrace/agenttrace/internal/database"
	"github.com/agenttrace/agenttrace/internal/events"
	"github.com/agenttrace/agenttrace/internal/modules/metrics"
	"github.com/agenttrace/agenttrace/internal/modules/spans"
	"github.com/agenttrace/agenttrace/internal/reliability"
	"github.com/agenttrace/agenttrace/internal/scheduler"
	"github.com/agenttrace/agenttrace/internal/server"
	"github.com/agenttrace/agenttrace/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

// serveCmd starts the collector, scheduler and dashboard server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the collector and dashboard server",
	Long: `Start the AgentTrace server.

The server will:
  - Accept spans over HTTP (JSON) and UDP (msgpack)
  - Price LLM calls and store spans in SQLite
  - Serve the dashboard UI and REST API on the configured port

The server runs until interrupted (Ctrl+C) or receives SIGTERM.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})
	log.Info().
		Str("data_dir", cfg.DataDir).
		Int("http_port", cfg.HTTPPort).
		Int("udp_port", cfg.UDPPort).
		Msg("Starting AgentTrace")

	// Databases
	spansDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "spans.db"),
		Profile: database.ProfileStandard,
		Name:    "spans",
	})
	if err != nil {
		return fmt.Errorf("failed to open spans database: %w", err)
	}
	defer spansDB.Close()
	if err := spansDB.Migrate(); err != nil {
		return fmt.Errorf("failed to migrate spans database: %w", err)
	}

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		return fmt.Errorf("failed to open cache database: %w", err)
	}
	defer cacheDB.Close()
	if err := cacheDB.Migrate(); err != nil {
		return fmt.Errorf("failed to migrate cache database: %w", err)
	}

	bus := events.NewBus(log)

	// Cost calculation
	var costCalc *collector.CostCalculator
	if !cfg.Collector.DisablePricing {
		costCalc = collector.NewCostCalculator()
		if cfg.Collector.PricingFile != "" {
			if err := costCalc.LoadPricingFile(cfg.Collector.PricingFile); err != nil {
				return fmt.Errorf("failed to load pricing file: %w", err)
			}
			log.Info().Str("file", cfg.Collector.PricingFile).Msg("Loaded pricing overrides")
		}
	}

	// Ingest pipeline
	spanRepo := spans.NewRepository(spansDB.Conn())
	pipeline := collector.NewPipeline(cfg.Collector, spanRepo, costCalc, bus, log)
	pipeline.Start()
	defer pipeline.Stop()

	udp, err := collector.NewUDPListener(cfg.UDPPort, pipeline, log)
	if err != nil {
		return fmt.Errorf("failed to start udp listener: %w", err)
	}
	udp.Start()
	defer udp.Stop()

	// Background jobs
	sched := scheduler.New(log)

	metricsService := metrics.NewService(spansDB.Conn())
	snapshotJob := scheduler.NewSnapshotJob(metricsService, cacheDB.Conn(), bus, log)
	if err := sched.AddJob("@every 1m", snapshotJob); err != nil {
		return fmt.Errorf("failed to schedule snapshot job: %w", err)
	}

	maintenanceJob := reliability.NewMaintenanceJob(log, spansDB, cacheDB)
	if err := sched.AddJob("0 0 3 * * *", maintenanceJob); err != nil {
		return fmt.Errorf("failed to schedule maintenance job: %w", err)
	}

	if cfg.Backup.Enabled() {
		store, err := reliability.NewS3Client(cfg.Backup, log)
		if err != nil {
			return fmt.Errorf("failed to create backup client: %w", err)
		}
		backupService := reliability.NewBackupService(
			store, spansDB, cacheDB, cfg.DataDir, cfg.Backup.KeepLast, bus, log)
		if err := sched.AddJob("@hourly", reliability.NewBackupJob(backupService)); err != nil {
			return fmt.Errorf("failed to schedule backup job: %w", err)
		}
		log.Info().Str("bucket", cfg.Backup.Bucket).Msg("Cloud backups enabled")
	}

	sched.Start()
	defer sched.Stop()

	// HTTP server
	srv := server.New(server.Deps{
		Config:   cfg,
		Log:      log,
		SpansDB:  spansDB,
		CacheDB:  cacheDB,
		Pipeline: pipeline,
		Bus:      bus,
	})

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Graceful shutdown failed")
	}

	log.Info().Msg("Shutdown complete")
	return nil
}
