package adapter

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"jobtally/internal/model"
)

const wwrPage = `<!doctype html>
<html><body>
<section class="jobs">
	<h2>Programming</h2>
	<ul>
		<li>
			<a href="/remote-jobs/acme-backend-engineer">
				<span class="company">Acme</span>
				<span class="title">Backend Engineer</span>
				<span class="region">Anywhere in the World</span>
				<time datetime="2024-01-10">Jan 10</time>
			</a>
		</li>
		<li>
			<a href="/remote-jobs/initech-data-engineer">
				<span class="company">Initech</span>
				<span class="title">Data Engineer</span>
				<time datetime="2024-01-05">Jan 5</time>
			</a>
		</li>
		<li class="view-all"><a href="/categories/remote-programming-jobs">View all</a></li>
	</ul>
</section>
<section class="jobs">
	<h2>DevOps and Sysadmin</h2>
	<ul>
		<li>
			<a href="/remote-jobs/globex-sre">
				<span class="company">Globex</span>
				<span class="title">Site Reliability Engineer</span>
			</a>
		</li>
	</ul>
</section>
</body></html>`

func TestWeWorkRemotely_ParsesBoard(t *testing.T) {
	records, err := parseWeWorkRemotely([]byte(wwrPage))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records (view-all row skipped), got %d", len(records))
	}

	r := records[0]
	if r.Title != "Backend Engineer" {
		t.Errorf("expected title Backend Engineer, got %q", r.Title)
	}
	if r.Company != "Acme" {
		t.Errorf("expected company Acme, got %q", r.Company)
	}
	if r.DateRaw != "2024-01-10" {
		t.Errorf("expected date 2024-01-10, got %q", r.DateRaw)
	}
	if len(r.Tags) != 2 || r.Tags[0] != "Programming" || r.Tags[1] != "Anywhere in the World" {
		t.Errorf("unexpected tags: %v", r.Tags)
	}

	// Missing optional fields never drop a record.
	sre := records[2]
	if sre.Company != "Globex" {
		t.Errorf("expected company Globex, got %q", sre.Company)
	}
	if sre.DateRaw != "" {
		t.Errorf("expected empty date, got %q", sre.DateRaw)
	}
}

func TestWeWorkRemotely_LayoutChangeIsParseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><div>totally different markup</div></body></html>`))
	}))
	defer srv.Close()

	a := NewWeWorkRemotelyAdapter(srv.URL, newTestExecutor(srv))
	_, err := a.ListSince(context.Background(), nil)
	if err == nil {
		t.Fatal("expected error for changed layout, got nil")
	}
	var parseErr *model.ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected *model.ParseError, got %T", err)
	}
	if parseErr.Source != "weworkremotely" {
		t.Errorf("expected source weworkremotely, got %s", parseErr.Source)
	}
}

func TestWeWorkRemotely_ListSince_AbsolutizesURLsAndFilters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/remote-jobs" {
			t.Errorf("expected /remote-jobs, got %s", r.URL.Path)
		}
		w.Write([]byte(wwrPage))
	}))
	defer srv.Close()

	a := NewWeWorkRemotelyAdapter(srv.URL, newTestExecutor(srv))
	since := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)
	records, err := a.ListSince(context.Background(), &since)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The Jan 5 posting is behind the watermark; the undated one is kept.
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].URL != srv.URL+"/remote-jobs/acme-backend-engineer" {
		t.Errorf("expected absolute URL, got %q", records[0].URL)
	}
}
