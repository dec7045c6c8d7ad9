package model

import (
	"context"
	"time"
)

// RawRecord is a single posting as extracted by a source adapter, before
// normalization. Fields may be empty when the source omits them; adapters
// never drop a record just because an optional field is missing.
type RawRecord struct {
	Title    string
	Company  string
	Location string
	Tags     []string
	DateRaw  string // source-specific date string, empty if absent
	URL      string
	Body     string // unstructured description text, stored uninterpreted
}

// JobListing is the canonical, deduplicated representation of one real-world
// posting. Identity fields (Title, Company) are case-folded; the original
// casing is kept in the Display* fields.
type JobListing struct {
	Fingerprint    string
	Title          string // folded, used for identity and grouping
	Company        string // folded
	DisplayTitle   string
	DisplayCompany string
	Location       string
	Tags           []string   // deduplicated, insertion order preserved
	DatePosted     *time.Time // nil means the source gave no parseable date
	Source         string
	URL            string
	RawBody        string
	FirstSeen      time.Time // set by the store on insert
	LastSeen       time.Time // refreshed by the store on every merge
}

// HasTag reports whether the listing carries the given (already folded) tag.
func (l JobListing) HasTag(tag string) bool {
	for _, t := range l.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// MergeKind classifies what a store merge did with a listing.
type MergeKind int

const (
	// Inserted means the fingerprint was new and a row was created.
	Inserted MergeKind = iota
	// Refreshed means the fingerprint was already known; last_seen was
	// advanced and newly-present fields were unioned in.
	Refreshed
)

func (k MergeKind) String() string {
	switch k {
	case Inserted:
		return "inserted"
	case Refreshed:
		return "refreshed"
	default:
		return "unknown"
	}
}

// MergeOutcome is the result of merging one listing into the store. Listing
// holds the stored state after the merge; for Refreshed outcomes Prior holds
// the stored state before it, so aggregate refresh can be driven from the
// delta alone. Prior is the zero value for Inserted outcomes.
type MergeOutcome struct {
	Kind    MergeKind
	Listing JobListing
	Prior   JobListing
}

// SourceAdapter lists postings from one site. Implementations perform reads
// only and must not mutate shared state.
type SourceAdapter interface {
	Name() string
	// ListSince returns raw records for postings at or after the given
	// watermark. A nil watermark means "everything the source offers".
	// Transport problems surface as *FetchError, unexpected page structure
	// as *ParseError.
	ListSince(ctx context.Context, since *time.Time) ([]RawRecord, error)
}

// ListingStore is the persistence contract for the incremental store.
type ListingStore interface {
	Merge(ctx context.Context, listing JobListing) (MergeOutcome, error)
	Get(ctx context.Context, fingerprint string) (JobListing, bool, error)
	ForEach(ctx context.Context, fn func(JobListing) error) error
	Count(ctx context.Context) (int, error)
	Watermark(ctx context.Context, source string) (*time.Time, error)
	AdvanceWatermark(ctx context.Context, source string, t time.Time) error
}
