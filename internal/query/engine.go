// Package query maintains precomputed aggregates over the listing store and
// answers the analytical query catalog from them. Answers are derived from
// counters, never by re-scanning raw listing text, so the same history always
// produces the same numbers.
package query

import (
	"context"
	"sort"
	"sync"
	"time"

	"jobtally/internal/model"
)

// Dimension names a grouping axis for aggregates.
type Dimension string

const (
	ByCompany Dimension = "company"
	ByTag     Dimension = "tag"
	ByTitle   Dimension = "title"
	// ByVolume buckets listings per (source, UTC day).
	ByVolume Dimension = "volume"

	// byTagDay backs Trend; keys are tag + "\x00" + day.
	byTagDay Dimension = "tagday"
)

// dimensions is every aggregate a rebuild recomputes.
var dimensions = []Dimension{ByCompany, ByTag, ByTitle, ByVolume, byTagDay}

// VolumeKey builds the composite key used by the ByVolume dimension.
func VolumeKey(source, day string) string {
	return source + "|" + day
}

type aggState int

const (
	stateUninitialized aggState = iota
	stateBuilding
	stateCurrent
)

type aggregate struct {
	state  aggState
	counts map[string]int
}

// Entry is one row of a grouped-count answer.
type Entry struct {
	Key   string
	Count int
}

// Bucket is one day of a trend answer.
type Bucket struct {
	Day   string // UTC day, 2006-01-02
	Count int
}

// ListingSource is the slice of the store the engine needs: a restartable
// scan over every stored listing.
type ListingSource interface {
	ForEach(ctx context.Context, fn func(model.JobListing) error) error
}

// Engine holds the derived aggregates. They are caches over the store, built
// lazily on the first query of a dimension and rebuildable from scratch at
// any time; dropping an Engine loses no data.
type Engine struct {
	mu    sync.RWMutex
	store ListingSource
	aggs  map[Dimension]*aggregate
}

// NewEngine creates an engine over the given store. No aggregates are built
// until they are first queried or Rebuild is called.
func NewEngine(store ListingSource) *Engine {
	aggs := make(map[Dimension]*aggregate, len(dimensions))
	for _, d := range dimensions {
		aggs[d] = &aggregate{counts: make(map[string]int)}
	}
	return &Engine{store: store, aggs: aggs}
}

// bucketDay returns the UTC day a listing counts toward. Listings without a
// posting date fall back to first_seen so volume aggregates see everything.
func bucketDay(l model.JobListing) string {
	if l.DatePosted != nil {
		return l.DatePosted.UTC().Format("2006-01-02")
	}
	return l.FirstSeen.UTC().Format("2006-01-02")
}

// keysFor maps a listing to its aggregate keys along one dimension.
func keysFor(dim Dimension, l model.JobListing) []string {
	switch dim {
	case ByCompany:
		if l.Company == "" {
			return nil
		}
		return []string{l.Company}
	case ByTag:
		return l.Tags
	case ByTitle:
		if l.Title == "" {
			return nil
		}
		return []string{l.Title}
	case ByVolume:
		return []string{VolumeKey(l.Source, bucketDay(l))}
	case byTagDay:
		day := bucketDay(l)
		keys := make([]string, 0, len(l.Tags))
		for _, tag := range l.Tags {
			keys = append(keys, tag+"\x00"+day)
		}
		return keys
	default:
		return nil
	}
}

// ensure builds the dimension's aggregate from the store if it has not been
// built yet. Callers must not hold e.mu.
func (e *Engine) ensure(ctx context.Context, dim Dimension) error {
	e.mu.RLock()
	agg, ok := e.aggs[dim]
	if ok && agg.state == stateCurrent {
		e.mu.RUnlock()
		return nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	agg, ok = e.aggs[dim]
	if !ok {
		agg = &aggregate{counts: make(map[string]int)}
		e.aggs[dim] = agg
	}
	if agg.state == stateCurrent {
		return nil
	}

	agg.state = stateBuilding
	agg.counts = make(map[string]int)
	err := e.store.ForEach(ctx, func(l model.JobListing) error {
		for _, k := range keysFor(dim, l) {
			agg.counts[k]++
		}
		return nil
	})
	if err != nil {
		agg.state = stateUninitialized
		return err
	}
	agg.state = stateCurrent
	return nil
}

// Refresh folds a run's merge outcomes into the aggregates, in the order the
// merges happened. An Inserted listing adds all of its keys. A Refreshed
// listing was already counted at insert, but reconciling can union in new
// tags or fill a previously unknown posting date (which moves its volume
// bucket), so the key difference against the prior stored state is applied.
// Dimensions that have never been queried stay uninitialized and will pick
// the listing up when they are lazily built.
func (e *Engine) Refresh(delta []model.MergeOutcome) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, out := range delta {
		for dim, agg := range e.aggs {
			if agg.state != stateCurrent {
				continue
			}
			switch out.Kind {
			case model.Inserted:
				for _, k := range keysFor(dim, out.Listing) {
					agg.counts[k]++
				}
			case model.Refreshed:
				applyKeyDiff(agg.counts, keysFor(dim, out.Prior), keysFor(dim, out.Listing))
			}
		}
	}
}

// applyKeyDiff moves counts from the before key set to the after key set.
// Keys in both are untouched, so an identical replay is a no-op.
func applyKeyDiff(counts map[string]int, before, after []string) {
	prev := make(map[string]bool, len(before))
	for _, k := range before {
		prev[k] = true
	}
	next := make(map[string]bool, len(after))
	for _, k := range after {
		next[k] = true
	}
	for k := range next {
		if !prev[k] {
			counts[k]++
		}
	}
	for k := range prev {
		if !next[k] {
			counts[k]--
			if counts[k] <= 0 {
				delete(counts, k)
			}
		}
	}
}

// Rebuild discards every aggregate and recomputes all of them from a single
// store scan. Used at startup and to recover from any suspected divergence.
func (e *Engine) Rebuild(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, dim := range dimensions {
		agg := e.aggs[dim]
		agg.state = stateBuilding
		agg.counts = make(map[string]int)
	}

	err := e.store.ForEach(ctx, func(l model.JobListing) error {
		for _, dim := range dimensions {
			agg := e.aggs[dim]
			for _, k := range keysFor(dim, l) {
				agg.counts[k]++
			}
		}
		return nil
	})
	if err != nil {
		for _, dim := range dimensions {
			e.aggs[dim].state = stateUninitialized
		}
		return err
	}

	for _, dim := range dimensions {
		e.aggs[dim].state = stateCurrent
	}
	return nil
}

// GroupCount is the primitive the catalog queries are built from: the counts
// along one dimension, optionally filtered by a key predicate. A nil match
// keeps every key. The returned map is a copy.
func (e *Engine) GroupCount(ctx context.Context, dim Dimension, match func(key string) bool) (map[string]int, error) {
	if err := e.ensure(ctx, dim); err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make(map[string]int)
	for k, n := range e.aggs[dim].counts {
		if match == nil || match(k) {
			out[k] = n
		}
	}
	return out, nil
}

// TopBy answers "which keys lead this dimension", largest count first. Ties
// break alphabetically so answers are deterministic.
func (e *Engine) TopBy(ctx context.Context, dim Dimension, n int) ([]Entry, error) {
	counts, err := e.GroupCount(ctx, dim, nil)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(counts))
	for k, c := range counts {
		entries = append(entries, Entry{Key: k, Count: c})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Key < entries[j].Key
	})

	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	return entries, nil
}

// CountMatching answers "how many listings match this key predicate" along a
// dimension, e.g. CountMatching(ctx, ByTag, func(k string) bool { return k == "python" }).
func (e *Engine) CountMatching(ctx context.Context, dim Dimension, match func(key string) bool) (int, error) {
	counts, err := e.GroupCount(ctx, dim, match)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	return total, nil
}

// Trend answers how many listings carried the tag on each UTC day of the
// window ending at now. Days without postings appear with a zero count, so
// the caller always gets one bucket per day: a window of N days yields
// exactly N buckets, the last being now's day.
func (e *Engine) Trend(ctx context.Context, tag string, window time.Duration, now time.Time) ([]Bucket, error) {
	if err := e.ensure(ctx, byTagDay); err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	counts := e.aggs[byTagDay].counts
	end := now.UTC().Truncate(24 * time.Hour)
	// The end day counts as the window's last day, so the start day is one
	// past the truncated window start.
	start := now.UTC().Add(-window).Truncate(24 * time.Hour).Add(24 * time.Hour)
	if start.After(end) {
		start = end
	}

	var buckets []Bucket
	for day := start; !day.After(end); day = day.Add(24 * time.Hour) {
		key := day.Format("2006-01-02")
		buckets = append(buckets, Bucket{Day: key, Count: counts[tag+"\x00"+key]})
	}
	return buckets, nil
}
