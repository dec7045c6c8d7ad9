package adapter

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"jobtally/internal/fetch"
	"jobtally/internal/model"
	"jobtally/internal/normalize"
)

const weWorkRemotelyDefaultBaseURL = "https://weworkremotely.com"

// WeWorkRemotelyAdapter scrapes the WeWorkRemotely listing index. Unlike
// RemoteOK there is no JSON API, so the fields come out of the board markup.
type WeWorkRemotelyAdapter struct {
	baseURL string
	exec    *fetch.Executor
}

// NewWeWorkRemotelyAdapter creates a new adapter. An empty baseURL uses the
// public site.
func NewWeWorkRemotelyAdapter(baseURL string, exec *fetch.Executor) *WeWorkRemotelyAdapter {
	if baseURL == "" {
		baseURL = weWorkRemotelyDefaultBaseURL
	}
	return &WeWorkRemotelyAdapter{baseURL: baseURL, exec: exec}
}

// Name implements model.SourceAdapter.
func (a *WeWorkRemotelyAdapter) Name() string { return "weworkremotely" }

// ListSince fetches the remote-jobs index and keeps postings at or after the
// watermark. Postings without a parseable date are kept.
func (a *WeWorkRemotelyAdapter) ListSince(ctx context.Context, since *time.Time) ([]model.RawRecord, error) {
	page, err := a.exec.Get(ctx, a.baseURL+"/remote-jobs")
	if err != nil {
		return nil, err
	}

	records, err := parseWeWorkRemotely(page.Body)
	if err != nil {
		return nil, &model.ParseError{Source: a.Name(), Err: err}
	}
	for i := range records {
		if strings.HasPrefix(records[i].URL, "/") {
			records[i].URL = a.baseURL + records[i].URL
		}
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

// parseWeWorkRemotely extracts postings from the board HTML. Each category
// section lists jobs as li elements with company/title/region spans and a
// datetime attribute. A page without any jobs section means the layout
// changed and is reported as a parse failure, not an empty result.
func parseWeWorkRemotely(body []byte) ([]model.RawRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing board html: %w", err)
	}

	sections := doc.Find("section.jobs")
	if sections.Length() == 0 {
		return nil, fmt.Errorf("no jobs sections found; site layout may have changed")
	}

	var records []model.RawRecord
	sections.Each(func(_ int, section *goquery.Selection) {
		category := normalize.CleanText(section.Find("h2").First().Text())

		section.Find("li").Each(func(_ int, li *goquery.Selection) {
			title := normalize.CleanText(li.Find("span.title").First().Text())
			company := normalize.CleanText(li.Find("span.company").First().Text())
			if title == "" && company == "" {
				// view-all links and other non-posting rows
				return
			}

			var tags []string
			if category != "" {
				tags = append(tags, category)
			}
			li.Find("span.region").Each(func(_ int, region *goquery.Selection) {
				if r := normalize.CleanText(region.Text()); r != "" {
					tags = append(tags, r)
				}
			})

			href := ""
			if a, ok := li.Find("a[href]").First().Attr("href"); ok {
				href = strings.TrimSpace(a)
			}

			dateRaw := ""
			if dt, ok := li.Find("time").First().Attr("datetime"); ok {
				dateRaw = strings.TrimSpace(dt)
			}

			records = append(records, model.RawRecord{
				Title:   title,
				Company: company,
				Tags:    tags,
				DateRaw: dateRaw,
				URL:     href,
			})
		})
	})
	return records, nil
}
