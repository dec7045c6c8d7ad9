package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"jobtally/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run [source]",
	Short: "Run one ingestion cycle",
	Long:  "Runs one fetch-normalize-merge cycle for the named source, or for every enabled source when no source is given.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	_, _, orch, closeStore, err := openPipeline(cfg, logger)
	if err != nil {
		logger.Error("failed to open pipeline", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var reports []pipeline.RunReport
	if len(args) == 1 {
		reports = append(reports, orch.Run(ctx, args[0]))
	} else {
		reports = orch.RunAll(ctx)
	}

	failed := false
	for _, r := range reports {
		fmt.Println(r.Summary())
		if r.Outcome == pipeline.Failure {
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
	return nil
}
