package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild all aggregates from the store",
	Long:  "Discards every precomputed aggregate and recomputes them from a full store scan. Use after restoring a database or on suspected divergence.",
	RunE:  runRebuild,
}

func init() {
	rootCmd.AddCommand(rebuildCmd)
}

func runRebuild(cmd *cobra.Command, args []string) error {
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

	ctx := context.Background()
	if err := engine.Rebuild(ctx); err != nil {
		return fmt.Errorf("rebuild: %w", err)
	}

	n, err := st.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("aggregates rebuilt from %d listings\n", n)
	return nil
}
