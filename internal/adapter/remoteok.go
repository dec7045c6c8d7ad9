// Package adapter holds one source adapter per remote-job site. Adapters
// read pages through a fetch.Executor and hand raw field-level records to
// the normalizer; they never touch shared state.
package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"jobtally/internal/fetch"
	"jobtally/internal/model"
	"jobtally/internal/normalize"
)

const remoteOKDefaultBaseURL = "https://remoteok.com"

// remoteOKJob represents a single posting in the RemoteOK API response.
type remoteOKJob struct {
	// The API emits id as a string on some postings and a number on others.
	ID          json.RawMessage `json:"id"`
	Position    string          `json:"position"`
	Company     string          `json:"company"`
	Location    string          `json:"location"`
	Tags        []string        `json:"tags"`
	Date        string          `json:"date"`
	URL         string          `json:"url"`
	Description string          `json:"description"`
}

// RemoteOKAdapter lists postings from the RemoteOK public API. The API
// returns one JSON array whose first element is a legal notice rather than a
// posting; elements without an id are skipped as non-postings.
type RemoteOKAdapter struct {
	baseURL string
	exec    *fetch.Executor
}

// NewRemoteOKAdapter creates a new adapter. An empty baseURL uses the public
// endpoint.
func NewRemoteOKAdapter(baseURL string, exec *fetch.Executor) *RemoteOKAdapter {
	if baseURL == "" {
		baseURL = remoteOKDefaultBaseURL
	}
	return &RemoteOKAdapter{baseURL: baseURL, exec: exec}
}

// Name implements model.SourceAdapter.
func (a *RemoteOKAdapter) Name() string { return "remoteok" }

// ListSince retrieves current postings and keeps those at or after the
// watermark. Postings whose date the API omits or garbles are kept; the
// merge path is idempotent, so re-offering an old record is harmless while
// dropping a new one is not.
func (a *RemoteOKAdapter) ListSince(ctx context.Context, since *time.Time) ([]model.RawRecord, error) {
	page, err := a.exec.Get(ctx, a.baseURL+"/api")
	if err != nil {
		return nil, err
	}

	records, err := parseRemoteOK(page.Body)
	if err != nil {
		return nil, &model.ParseError{Source: a.Name(), Err: err}
	}

	if since == nil {
		return records, nil
	}
	var out []model.RawRecord
	for _, r := range records {
		posted := normalize.ParseDate(r.DateRaw)
		if posted != nil && posted.Before(*since) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// parseRemoteOK decodes the API payload into raw records. Missing optional
// fields stay empty; a record is never discarded for lacking one.
func parseRemoteOK(body []byte) ([]model.RawRecord, error) {
	var elements []json.RawMessage
	if err := json.Unmarshal(body, &elements); err != nil {
		return nil, fmt.Errorf("decoding listing array: %w", err)
	}

	var records []model.RawRecord
	for _, el := range elements {
		var job remoteOKJob
		if err := json.Unmarshal(el, &job); err != nil {
			return nil, fmt.Errorf("decoding listing element: %w", err)
		}
		// The leading legal-notice element has no id.
		if len(job.ID) == 0 || string(job.ID) == "null" {
			continue
		}
		records = append(records, model.RawRecord{
			Title:    job.Position,
			Company:  job.Company,
			Location: job.Location,
			Tags:     job.Tags,
			DateRaw:  job.Date,
			URL:      job.URL,
			Body:     extractText(job.Description),
		})
	}
	return records, nil
}
