// Package scheduler triggers ingestion runs on a cron cadence. The pipeline
// itself has no timer; this is the external trigger shipped with the daemon.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"jobtally/internal/pipeline"
)

// Runner is the slice of the orchestrator the scheduler needs.
type Runner interface {
	RunAll(ctx context.Context) []pipeline.RunReport
}

// Scheduler runs all sources once immediately, then on every cron tick,
// until its context is cancelled.
type Scheduler struct {
	runner Runner
	spec   string
	logger *slog.Logger
}

// NewScheduler creates a scheduler with a standard 5-field cron spec
// (descriptors like @every 6h also work).
func NewScheduler(runner Runner, spec string, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		runner: runner,
		spec:   spec,
		logger: logger,
	}
}

// Run starts the loop. It returns nil when ctx is cancelled (graceful
// shutdown) and an error only for an invalid cron spec.
func (s *Scheduler) Run(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(s.spec, func() { s.runAll(ctx) }); err != nil {
		return fmt.Errorf("invalid cron spec %q: %w", s.spec, err)
	}

	s.logger.Info("starting scheduler", "cron", s.spec)

	// One immediate cycle before the first tick.
	s.runAll(ctx)

	c.Start()
	<-ctx.Done()
	s.logger.Info("shutting down scheduler")

	// Wait for an in-flight cycle to finish.
	<-c.Stop().Done()
	return nil
}

func (s *Scheduler) runAll(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	for _, report := range s.runner.RunAll(ctx) {
		if report.Outcome == pipeline.Failure {
			s.logger.Error("scheduled run failed",
				"source", report.Source,
				"run_id", report.RunID,
				"error", report.Err,
			)
			continue
		}
		s.logger.Info("scheduled run finished", "summary", report.Summary())
	}
}
