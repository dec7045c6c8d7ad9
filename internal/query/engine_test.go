package query

import (
	"context"
	"testing"
	"time"

	"jobtally/internal/model"
)

// memStore is an in-memory ListingSource for tests.
type memStore struct {
	listings []model.JobListing
}

func (m *memStore) ForEach(_ context.Context, fn func(model.JobListing) error) error {
	for _, l := range m.listings {
		if err := fn(l); err != nil {
			return err
		}
	}
	return nil
}

func listing(fp, company, title string, tags []string, day string) model.JobListing {
	t, _ := time.Parse("2006-01-02", day)
	return model.JobListing{
		Fingerprint: fp,
		Company:     company,
		Title:       title,
		Tags:        tags,
		DatePosted:  &t,
		Source:      "remoteok",
		FirstSeen:   t,
		LastSeen:    t,
	}
}

func TestTopBy_Company(t *testing.T) {
	st := &memStore{listings: []model.JobListing{
		listing("1", "acme", "backend engineer", nil, "2024-01-10"),
		listing("2", "acme", "sre", nil, "2024-01-10"),
		listing("3", "initech", "backend engineer", nil, "2024-01-11"),
	}}
	e := NewEngine(st)

	top, err := e.TopBy(context.Background(), ByCompany, 2)
	if err != nil {
		t.Fatalf("TopBy: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(top))
	}
	if top[0].Key != "acme" || top[0].Count != 2 {
		t.Errorf("expected acme/2 first, got %s/%d", top[0].Key, top[0].Count)
	}
	if top[1].Key != "initech" || top[1].Count != 1 {
		t.Errorf("expected initech/1 second, got %s/%d", top[1].Key, top[1].Count)
	}
}

func TestTopBy_TiesBreakAlphabetically(t *testing.T) {
	st := &memStore{listings: []model.JobListing{
		listing("1", "zeta", "sre", nil, "2024-01-10"),
		listing("2", "alpha", "sre", nil, "2024-01-10"),
	}}
	e := NewEngine(st)

	top, err := e.TopBy(context.Background(), ByCompany, 0)
	if err != nil {
		t.Fatalf("TopBy: %v", err)
	}
	if top[0].Key != "alpha" || top[1].Key != "zeta" {
		t.Errorf("expected alphabetical tie-break, got %v", top)
	}
}

func TestCountMatching_TagScenario(t *testing.T) {
	// 10 listings, 3 of which carry "python".
	var listings []model.JobListing
	for i := 0; i < 10; i++ {
		tags := []string{"go"}
		if i < 3 {
			tags = []string{"python", "django"}
		}
		listings = append(listings, listing(
			string(rune('a'+i)), "acme", "engineer", tags, "2024-01-10"))
	}
	e := NewEngine(&memStore{listings: listings})

	n, err := e.CountMatching(context.Background(), ByTag, func(k string) bool { return k == "python" })
	if err != nil {
		t.Fatalf("CountMatching: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 python listings, got %d", n)
	}
}

func TestGroupCount_FilterAndCopy(t *testing.T) {
	st := &memStore{listings: []model.JobListing{
		listing("1", "acme", "sre", []string{"go", "aws"}, "2024-01-10"),
		listing("2", "initech", "sre", []string{"go"}, "2024-01-10"),
	}}
	e := NewEngine(st)

	counts, err := e.GroupCount(context.Background(), ByTag, func(k string) bool { return k == "go" })
	if err != nil {
		t.Fatalf("GroupCount: %v", err)
	}
	if len(counts) != 1 || counts["go"] != 2 {
		t.Fatalf("expected {go: 2}, got %v", counts)
	}

	// Mutating the answer must not reach into the engine.
	counts["go"] = 99
	again, _ := e.GroupCount(context.Background(), ByTag, nil)
	if again["go"] != 2 {
		t.Errorf("expected engine counts unchanged, got %d", again["go"])
	}
}

func TestRefresh_MatchesRebuild(t *testing.T) {
	ctx := context.Background()
	history := []model.JobListing{
		listing("1", "acme", "backend engineer", []string{"python"}, "2024-01-10"),
		listing("2", "initech", "sre", []string{"go"}, "2024-01-11"),
		listing("3", "acme", "data engineer", []string{"python", "sql"}, "2024-01-12"),
	}

	// Incremental path: empty store at first query, then refresh per insert.
	incStore := &memStore{}
	inc := NewEngine(incStore)
	if _, err := inc.TopBy(ctx, ByCompany, 0); err != nil {
		t.Fatalf("initial TopBy: %v", err)
	}
	if _, err := inc.TopBy(ctx, ByTag, 0); err != nil {
		t.Fatalf("initial TopBy: %v", err)
	}
	for _, l := range history {
		incStore.listings = append(incStore.listings, l)
		inc.Refresh([]model.MergeOutcome{{Kind: model.Inserted, Listing: l}})
	}

	// Rebuild path: everything already stored, one scan.
	reb := NewEngine(&memStore{listings: history})
	if err := reb.Rebuild(ctx); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	for _, dim := range []Dimension{ByCompany, ByTag} {
		for _, n := range []int{0, 1, 2, 5} {
			a, err := inc.TopBy(ctx, dim, n)
			if err != nil {
				t.Fatalf("incremental TopBy(%s, %d): %v", dim, n, err)
			}
			b, err := reb.TopBy(ctx, dim, n)
			if err != nil {
				t.Fatalf("rebuilt TopBy(%s, %d): %v", dim, n, err)
			}
			if len(a) != len(b) {
				t.Fatalf("TopBy(%s, %d) diverged: %v vs %v", dim, n, a, b)
			}
			for i := range a {
				if a[i] != b[i] {
					t.Fatalf("TopBy(%s, %d) diverged at %d: %v vs %v", dim, n, i, a, b)
				}
			}
		}
	}
}

func TestRefresh_RefreshedOutcomeDoesNotDoubleCount(t *testing.T) {
	ctx := context.Background()
	l := listing("1", "acme", "sre", []string{"go"}, "2024-01-10")
	st := &memStore{listings: []model.JobListing{l}}
	e := NewEngine(st)

	// Build the aggregate, then report the same listing as refreshed with an
	// identical prior state.
	if _, err := e.TopBy(ctx, ByCompany, 0); err != nil {
		t.Fatalf("TopBy: %v", err)
	}
	e.Refresh([]model.MergeOutcome{{Kind: model.Refreshed, Listing: l, Prior: l}})

	top, _ := e.TopBy(ctx, ByCompany, 0)
	if top[0].Count != 1 {
		t.Errorf("expected count 1 after refreshed outcome, got %d", top[0].Count)
	}
}

func TestRefresh_RefreshedTagUnionUpdatesCounts(t *testing.T) {
	ctx := context.Background()
	prior := listing("1", "acme", "backend engineer", []string{"aws"}, "2024-01-10")
	st := &memStore{listings: []model.JobListing{prior}}
	e := NewEngine(st)

	// Build ByTag, then reconcile a new tag into the stored listing.
	if _, err := e.TopBy(ctx, ByTag, 0); err != nil {
		t.Fatalf("TopBy: %v", err)
	}
	merged := prior
	merged.Tags = []string{"aws", "python"}
	st.listings[0] = merged
	e.Refresh([]model.MergeOutcome{{Kind: model.Refreshed, Listing: merged, Prior: prior}})

	n, err := e.CountMatching(ctx, ByTag, func(k string) bool { return k == "python" })
	if err != nil {
		t.Fatalf("CountMatching: %v", err)
	}
	if n != 1 {
		t.Errorf("expected python counted after refreshed union, got %d", n)
	}
	if n, _ := e.CountMatching(ctx, ByTag, func(k string) bool { return k == "aws" }); n != 1 {
		t.Errorf("expected aws still counted once, got %d", n)
	}

	// The incremental state must match a from-scratch rebuild.
	reb := NewEngine(&memStore{listings: []model.JobListing{merged}})
	if err := reb.Rebuild(ctx); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	a, _ := e.TopBy(ctx, ByTag, 0)
	b, _ := reb.TopBy(ctx, ByTag, 0)
	if len(a) != len(b) {
		t.Fatalf("incremental and rebuilt ByTag diverged: %v vs %v", a, b)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("incremental and rebuilt ByTag diverged at %d: %v vs %v", i, a, b)
		}
	}
}

func TestRefresh_FilledDateMovesVolumeBucket(t *testing.T) {
	ctx := context.Background()
	prior := listing("1", "acme", "sre", nil, "2024-01-10")
	prior.DatePosted = nil // bucketed by first_seen until the date is known
	st := &memStore{listings: []model.JobListing{prior}}
	e := NewEngine(st)

	if _, err := e.GroupCount(ctx, ByVolume, nil); err != nil {
		t.Fatalf("GroupCount: %v", err)
	}

	posted := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)
	merged := prior
	merged.DatePosted = &posted
	st.listings[0] = merged
	e.Refresh([]model.MergeOutcome{{Kind: model.Refreshed, Listing: merged, Prior: prior}})

	counts, err := e.GroupCount(ctx, ByVolume, nil)
	if err != nil {
		t.Fatalf("GroupCount: %v", err)
	}
	if counts[VolumeKey("remoteok", "2024-01-08")] != 1 {
		t.Errorf("expected listing moved to its posted day, got %v", counts)
	}
	if _, ok := counts[VolumeKey("remoteok", "2024-01-10")]; ok {
		t.Errorf("expected first_seen bucket vacated, got %v", counts)
	}
}

func TestRefresh_UninitializedDimensionStaysLazy(t *testing.T) {
	ctx := context.Background()
	l := listing("1", "acme", "sre", []string{"go"}, "2024-01-10")
	st := &memStore{listings: []model.JobListing{l}}
	e := NewEngine(st)

	// Refresh before any query: the dimension is uninitialized, so the
	// listing must not be pre-counted and then counted again by the lazy
	// build from the store.
	e.Refresh([]model.MergeOutcome{{Kind: model.Inserted, Listing: l}})

	top, err := e.TopBy(ctx, ByCompany, 0)
	if err != nil {
		t.Fatalf("TopBy: %v", err)
	}
	if len(top) != 1 || top[0].Count != 1 {
		t.Errorf("expected acme counted exactly once, got %v", top)
	}
}

func TestTrend_WindowWithZeroDays(t *testing.T) {
	st := &memStore{listings: []model.JobListing{
		listing("1", "acme", "sre", []string{"python"}, "2024-01-10"),
		listing("2", "initech", "dev", []string{"python"}, "2024-01-10"),
		listing("3", "acme", "dev", []string{"python"}, "2024-01-12"),
	}}
	e := NewEngine(st)

	now := time.Date(2024, 1, 12, 15, 0, 0, 0, time.UTC)
	buckets, err := e.Trend(context.Background(), "python", 72*time.Hour, now)
	if err != nil {
		t.Fatalf("Trend: %v", err)
	}

	// A three-day window yields exactly three buckets, the last being now's
	// day, with zero-count days filled in.
	want := []Bucket{
		{Day: "2024-01-10", Count: 2},
		{Day: "2024-01-11", Count: 0},
		{Day: "2024-01-12", Count: 1},
	}
	if len(buckets) != len(want) {
		t.Fatalf("expected %d buckets, got %d: %v", len(want), len(buckets), buckets)
	}
	for i, b := range buckets {
		if b != want[i] {
			t.Errorf("bucket %d: expected %+v, got %+v", i, want[i], b)
		}
	}
}

func TestVolume_BucketsBySourceAndDay(t *testing.T) {
	undated := listing("3", "acme", "dev", nil, "2024-01-12")
	undated.DatePosted = nil // falls back to first_seen

	st := &memStore{listings: []model.JobListing{
		listing("1", "acme", "sre", nil, "2024-01-10"),
		listing("2", "initech", "dev", nil, "2024-01-10"),
		undated,
	}}
	e := NewEngine(st)

	counts, err := e.GroupCount(context.Background(), ByVolume, nil)
	if err != nil {
		t.Fatalf("GroupCount: %v", err)
	}
	if counts[VolumeKey("remoteok", "2024-01-10")] != 2 {
		t.Errorf("expected 2 on 2024-01-10, got %v", counts)
	}
	if counts[VolumeKey("remoteok", "2024-01-12")] != 1 {
		t.Errorf("expected undated listing bucketed by first_seen, got %v", counts)
	}
}
