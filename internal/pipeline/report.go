package pipeline

import (
	"fmt"
	"time"
)

// Outcome classifies how a run ended.
type Outcome int

const (
	// Success: every fetched record was merged.
	Success Outcome = iota
	// PartialFailure: some records were dropped for missing identity
	// fields, but at least one was merged and nothing fatal happened.
	PartialFailure
	// Failure: a fatal fetch/parse/store error, or nothing at all could be
	// merged. The watermark does not advance.
	Failure
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case PartialFailure:
		return "partial_failure"
	case Failure:
		return "failure"
	default:
		return "unknown"
	}
}

// RunReport is what every run returns, regardless of how it went: exact
// counts of what succeeded, what was skipped, and what failed.
type RunReport struct {
	RunID      string
	Source     string
	StartedAt  time.Time
	FinishedAt time.Time

	Fetched    int // raw records the adapter returned
	Normalized int // records that yielded a listing
	Inserted   int // merges that created a new listing
	Refreshed  int // merges that reconciled a known listing
	Dropped    int // records skipped for missing identity fields

	Outcome Outcome
	Err     error // the fatal error for Failure runs, nil otherwise
}

// classify derives the outcome from the counts. fatal overrides everything.
func (r *RunReport) classify(fatal error) {
	r.Err = fatal
	switch {
	case fatal != nil:
		r.Outcome = Failure
	case r.Dropped > 0 && r.Normalized > 0:
		r.Outcome = PartialFailure
	case r.Dropped > 0:
		// every record was dropped
		r.Outcome = Failure
	default:
		r.Outcome = Success
	}
}

// Summary renders the report as a single human-readable line.
func (r RunReport) Summary() string {
	s := fmt.Sprintf("%s: %s (fetched %d, normalized %d, inserted %d, refreshed %d, dropped %d)",
		r.Source, r.Outcome, r.Fetched, r.Normalized, r.Inserted, r.Refreshed, r.Dropped)
	if r.Err != nil {
		s += fmt.Sprintf(": %v", r.Err)
	}
	return s
}
