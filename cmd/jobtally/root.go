package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"jobtally/internal/adapter"
	"jobtally/internal/config"
	"jobtally/internal/fetch"
	"jobtally/internal/model"
	"jobtally/internal/pipeline"
	"jobtally/internal/query"
	"jobtally/internal/store"
)

var (
	cfgPath string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "jobtally",
	Short: "Job market tally — ingest, dedup, query",
	Long:  "JobTally ingests postings from remote job boards, deduplicates them into a local store, and answers market questions from precomputed aggregates.",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (default: JOBTALLY_CONFIG env var or ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// loadConfig resolves the config path and parses it.
// Priority: explicit path arg > JOBTALLY_CONFIG env var > "./config.yaml"
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		if env := os.Getenv("JOBTALLY_CONFIG"); env != "" {
			path = env
		} else {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func setupLogger(dbg bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if dbg {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}

// buildAdapters creates one adapter per enabled source, each with its own
// fetch executor so per-source rate limits are independent.
func buildAdapters(cfg *config.Config, logger *slog.Logger) []model.SourceAdapter {
	var adapters []model.SourceAdapter
	for _, src := range cfg.Sources {
		if !src.Enabled {
			continue
		}

		exec := fetch.NewExecutor(src.Name, fetch.Options{
			MinInterval: cfg.Fetch.MinIntervalFor(src.Name),
			MaxRetries:  cfg.Fetch.MaxRetries,
			BaseDelay:   cfg.Fetch.BaseDelay,
			Timeout:     cfg.Fetch.Timeout,
			UserAgent:   cfg.UserAgent,
		}, logger)

		switch src.Name {
		case "remoteok":
			adapters = append(adapters, adapter.NewRemoteOKAdapter(src.BaseURL, exec))
		case "weworkremotely":
			adapters = append(adapters, adapter.NewWeWorkRemotelyAdapter(src.BaseURL, exec))
		default:
			logger.Warn("unsupported source, skipping", "source", src.Name)
			continue
		}
		logger.Info("registered source", "name", src.Name)
	}
	return adapters
}

// openPipeline wires the store, aggregate engine, and orchestrator. The
// returned close func must be called before exit.
func openPipeline(cfg *config.Config, logger *slog.Logger) (*store.SQLiteStore, *query.Engine, *pipeline.Orchestrator, func(), error) {
	st, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("open store: %w", err)
	}

	engine := query.NewEngine(st)
	orch := pipeline.NewOrchestrator(st, engine, logger, buildAdapters(cfg, logger)...)
	return st, engine, orch, func() { st.Close() }, nil
}
