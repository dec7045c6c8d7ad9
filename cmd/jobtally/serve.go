package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"jobtally/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ingestion daemon",
	Long:  "Runs every enabled source once, then again on the configured cron cadence; blocks until SIGINT/SIGTERM.",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("config loaded",
		"db_path", cfg.DBPath,
		"sources", len(cfg.Sources),
		"cron", cfg.Schedule.Cron,
	)

	_, _, orch, closeStore, err := openPipeline(cfg, logger)
	if err != nil {
		logger.Error("failed to open pipeline", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	if len(orch.Sources()) == 0 {
		logger.Error("no sources to ingest")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched := scheduler.NewScheduler(orch, cfg.Schedule.Cron, logger)
	if err := sched.Run(ctx); err != nil {
		logger.Error("scheduler error", "error", err)
		os.Exit(1)
	}

	logger.Info("goodbye")
	return nil
}
