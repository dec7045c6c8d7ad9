// Package normalize maps raw adapter records into the canonical JobListing
// shape. Everything here is pure: same record in, same listing out, no I/O.
package normalize

import (
	"strconv"
	"strings"
	"time"

	"jobtally/internal/model"
)

// dateLayouts are the formats sources are known to emit, tried in order.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"Jan 2, 2006",
	"January 2, 2006",
}

// Normalize converts a raw record into a JobListing. It fails only when the
// record has neither a title nor a company after folding, because no stable
// fingerprint can be computed without identity fields. FirstSeen/LastSeen
// are left zero; the store owns them.
func Normalize(raw model.RawRecord, source string) (model.JobListing, error) {
	displayTitle := CleanText(raw.Title)
	displayCompany := CleanText(raw.Company)
	title := strings.ToLower(displayTitle)
	company := strings.ToLower(displayCompany)

	if title == "" && company == "" {
		return model.JobListing{}, &model.NormalizationError{
			Reason: "record has neither title nor company",
		}
	}

	datePosted := ParseDate(raw.DateRaw)

	return model.JobListing{
		Fingerprint:    Fingerprint(source, title, company, datePosted),
		Title:          title,
		Company:        company,
		DisplayTitle:   displayTitle,
		DisplayCompany: displayCompany,
		Location:       CleanText(raw.Location),
		Tags:           FoldTags(raw.Tags),
		DatePosted:     datePosted,
		Source:         source,
		URL:            strings.TrimSpace(raw.URL),
		RawBody:        raw.Body,
	}, nil
}

// CleanText collapses all whitespace (including non-breaking spaces) to
// single spaces and trims the ends.
func CleanText(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.Join(strings.Fields(s), " ")
}

// FoldTags lowercases and trims tags, drops empties, and deduplicates while
// preserving first-occurrence order.
func FoldTags(tags []string) []string {
	var out []string
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.ToLower(CleanText(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// ParseDate parses a source date string into a UTC timestamp. It returns nil
// when the value is absent or in no known format; it never substitutes the
// current time for an unknown date.
func ParseDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	// Some APIs hand out epoch seconds.
	if epoch, err := strconv.ParseInt(raw, 10, 64); err == nil && epoch > 0 {
		t := time.Unix(epoch, 0).UTC()
		return &t
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
