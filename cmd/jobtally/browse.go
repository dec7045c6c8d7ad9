package main

import (
	"os"

	"github.com/spf13/cobra"

	"jobtally/internal/browse"
)

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse stored listings interactively (TUI)",
	Long:  "Launches the split-pane browser: stored listings on the left, aggregate summaries on the right.",
	RunE:  runBrowse,
}

func init() {
	rootCmd.AddCommand(browseCmd)
}

func runBrowse(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	st, engine, _, closeStore, err := openPipeline(cfg, logger)
	if err != nil {
		logger.Error("failed to open pipeline", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	return browse.Run(st, engine)
}
