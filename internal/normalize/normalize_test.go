package normalize

import (
	"errors"
	"testing"
	"time"

	"jobtally/internal/model"
)

func TestNormalize_FoldsIdentityKeepsDisplay(t *testing.T) {
	raw := model.RawRecord{
		Title:    "  Backend  Engineer ",
		Company:  "ACME Corp",
		Location: " Remote, US ",
	}

	l, err := Normalize(raw, "remoteok")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.Title != "backend engineer" {
		t.Errorf("expected folded title %q, got %q", "backend engineer", l.Title)
	}
	if l.DisplayTitle != "Backend Engineer" {
		t.Errorf("expected display title %q, got %q", "Backend Engineer", l.DisplayTitle)
	}
	if l.Company != "acme corp" {
		t.Errorf("expected folded company %q, got %q", "acme corp", l.Company)
	}
	if l.DisplayCompany != "ACME Corp" {
		t.Errorf("expected display company %q, got %q", "ACME Corp", l.DisplayCompany)
	}
	if l.Location != "Remote, US" {
		t.Errorf("expected location %q, got %q", "Remote, US", l.Location)
	}
	if l.Source != "remoteok" {
		t.Errorf("expected source remoteok, got %q", l.Source)
	}
}

func TestNormalize_FingerprintStableAcrossFolding(t *testing.T) {
	r1 := model.RawRecord{Title: "Backend Engineer", Company: "Acme", Tags: []string{"python", "aws"}, DateRaw: "2024-01-10"}
	r2 := model.RawRecord{Title: "backend engineer ", Company: "ACME", Tags: []string{"AWS"}, DateRaw: "2024-01-10"}

	l1, err := Normalize(r1, "remoteok")
	if err != nil {
		t.Fatalf("normalize r1: %v", err)
	}
	l2, err := Normalize(r2, "remoteok")
	if err != nil {
		t.Fatalf("normalize r2: %v", err)
	}
	if l1.Fingerprint != l2.Fingerprint {
		t.Errorf("expected equal fingerprints, got %s vs %s", l1.Fingerprint, l2.Fingerprint)
	}
}

func TestNormalize_FingerprintDiffersAcrossSources(t *testing.T) {
	raw := model.RawRecord{Title: "Backend Engineer", Company: "Acme", DateRaw: "2024-01-10"}

	l1, _ := Normalize(raw, "remoteok")
	l2, _ := Normalize(raw, "weworkremotely")
	if l1.Fingerprint == l2.Fingerprint {
		t.Error("expected different fingerprints for different sources")
	}
}

func TestNormalize_Deterministic(t *testing.T) {
	raw := model.RawRecord{Title: "Data Engineer", Company: "Initech", Tags: []string{"SQL", "sql", "Go"}, DateRaw: "2024-03-01"}

	l1, err := Normalize(raw, "remoteok")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	l2, err := Normalize(raw, "remoteok")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l1.Fingerprint != l2.Fingerprint {
		t.Error("expected identical fingerprints for repeated normalization")
	}
	if len(l1.Tags) != len(l2.Tags) {
		t.Error("expected identical tags for repeated normalization")
	}
}

func TestNormalize_RejectsRecordWithoutIdentity(t *testing.T) {
	_, err := Normalize(model.RawRecord{Location: "Remote", Tags: []string{"go"}}, "remoteok")
	if err == nil {
		t.Fatal("expected error for record with neither title nor company")
	}
	var normErr *model.NormalizationError
	if !errors.As(err, &normErr) {
		t.Fatalf("expected *model.NormalizationError, got %T", err)
	}
}

func TestNormalize_AcceptsRecordWithOnlyTitle(t *testing.T) {
	l, err := Normalize(model.RawRecord{Title: "SRE"}, "remoteok")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.Fingerprint == "" {
		t.Error("expected fingerprint for record with only a title")
	}
}

func TestFoldTags_DeduplicatesPreservingOrder(t *testing.T) {
	got := FoldTags([]string{"Python", "AWS", " python ", "", "Go", "aws"})
	want := []string{"python", "aws", "go"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestParseDate_KnownLayouts(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Time
	}{
		{"2024-01-10", time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)},
		{"2024-01-10T09:30:00Z", time.Date(2024, 1, 10, 9, 30, 0, 0, time.UTC)},
		{"1704902400", time.Unix(1704902400, 0).UTC()},
		{"Jan 10, 2024", time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got := ParseDate(tt.raw)
		if got == nil {
			t.Errorf("ParseDate(%q) = nil, want %v", tt.raw, tt.want)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("ParseDate(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestParseDate_UnknownIsNilNotNow(t *testing.T) {
	for _, raw := range []string{"", "yesterday", "posted recently", "10/01/24ish"} {
		if got := ParseDate(raw); got != nil {
			t.Errorf("ParseDate(%q) = %v, want nil", raw, got)
		}
	}
}

func TestFingerprint_UnknownDateStillStable(t *testing.T) {
	f1 := Fingerprint("remoteok", "sre", "acme", nil)
	f2 := Fingerprint("remoteok", "sre", "acme", nil)
	if f1 != f2 {
		t.Error("expected stable fingerprint for unknown date")
	}

	d := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	if f1 == Fingerprint("remoteok", "sre", "acme", &d) {
		t.Error("expected dated fingerprint to differ from undated")
	}
}
