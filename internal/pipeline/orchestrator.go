// Package pipeline sequences one ingestion run per source: read watermark,
// fetch, normalize, merge, refresh aggregates, then advance the watermark if
// nothing fatal happened. It is the only component that knows what "a run"
// is.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"jobtally/internal/model"
	"jobtally/internal/normalize"
	"jobtally/internal/query"
)

// Orchestrator owns the full ingestion pipeline for all configured sources.
type Orchestrator struct {
	adapters map[string]model.SourceAdapter
	store    model.ListingStore
	engine   *query.Engine
	logger   *slog.Logger
	now      func() time.Time
}

// NewOrchestrator creates an orchestrator wired with its dependencies.
func NewOrchestrator(store model.ListingStore, engine *query.Engine, logger *slog.Logger, adapters ...model.SourceAdapter) *Orchestrator {
	m := make(map[string]model.SourceAdapter, len(adapters))
	for _, a := range adapters {
		m[a.Name()] = a
	}
	return &Orchestrator{
		adapters: m,
		store:    store,
		engine:   engine,
		logger:   logger,
		now:      time.Now,
	}
}

// Sources returns the names of all registered sources, sorted.
func (o *Orchestrator) Sources() []string {
	names := make([]string, 0, len(o.adapters))
	for name := range o.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes one end-to-end run for the named source. It always returns a
// report; a fatal error is carried inside it, never swallowed. The watermark
// advances to the run's start time unless the run failed, so records posted
// while the run was in flight are re-offered next time (merge is idempotent,
// so that is safe).
func (o *Orchestrator) Run(ctx context.Context, source string) RunReport {
	report := RunReport{
		RunID:     uuid.NewString(),
		Source:    source,
		StartedAt: o.now().UTC(),
	}

	adapter, ok := o.adapters[source]
	if !ok {
		report.classify(fmt.Errorf("unknown source %q", source))
		report.FinishedAt = o.now().UTC()
		return report
	}

	watermark, err := o.store.Watermark(ctx, source)
	if err != nil {
		return o.finish(report, err)
	}

	records, err := adapter.ListSince(ctx, watermark)
	if err != nil {
		return o.finish(report, err)
	}
	report.Fetched = len(records)

	// Merges apply in normalization order; the aggregate refresh below sees
	// the same order.
	var delta []model.MergeOutcome
	var fatal error
	for _, raw := range records {
		if err := ctx.Err(); err != nil {
			fatal = err
			break
		}

		listing, err := normalize.Normalize(raw, source)
		if err != nil {
			var normErr *model.NormalizationError
			if errors.As(err, &normErr) {
				report.Dropped++
				o.logger.Debug("dropped record",
					"source", source,
					"run_id", report.RunID,
					"reason", normErr.Reason,
				)
				continue
			}
			fatal = err
			break
		}
		report.Normalized++

		outcome, err := o.store.Merge(ctx, listing)
		if err != nil {
			// Earlier merges in this run are committed and stay; the run
			// fails and is safe to retry.
			fatal = err
			break
		}
		delta = append(delta, outcome)
		switch outcome.Kind {
		case model.Inserted:
			report.Inserted++
		case model.Refreshed:
			report.Refreshed++
		}
	}

	// Keep the aggregates consistent with whatever was durably merged, even
	// on a failed run.
	o.engine.Refresh(delta)

	report.classify(fatal)
	if report.Outcome != Failure {
		if err := o.store.AdvanceWatermark(ctx, source, report.StartedAt); err != nil {
			report.classify(err)
		}
	}
	report.FinishedAt = o.now().UTC()

	o.logger.Info("run finished",
		"source", source,
		"run_id", report.RunID,
		"outcome", report.Outcome.String(),
		"fetched", report.Fetched,
		"normalized", report.Normalized,
		"inserted", report.Inserted,
		"refreshed", report.Refreshed,
		"dropped", report.Dropped,
	)
	return report
}

// finish records a fatal pre-merge error and closes out the report.
func (o *Orchestrator) finish(report RunReport, fatal error) RunReport {
	report.classify(fatal)
	report.FinishedAt = o.now().UTC()
	o.logger.Error("run failed",
		"source", report.Source,
		"run_id", report.RunID,
		"error", fatal,
	)
	return report
}

// RunAll runs every registered source concurrently. Sources are independent:
// one failing never aborts another. Reports come back in source-name order.
func (o *Orchestrator) RunAll(ctx context.Context) []RunReport {
	sources := o.Sources()
	reports := make([]RunReport, len(sources))

	var g errgroup.Group
	for i, source := range sources {
		g.Go(func() error {
			reports[i] = o.Run(ctx, source)
			return nil
		})
	}
	_ = g.Wait() // individual failures live in the reports

	return reports
}
