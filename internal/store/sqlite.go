// Package store persists canonical job listings keyed by fingerprint, plus a
// per-source watermark of the last successful run. The ingestion path only
// ever inserts or updates; nothing here deletes a listing.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"jobtally/internal/model"
)

// SQLiteStore is the durable incremental store. Writers are serialized
// through a single connection; each merge runs in its own transaction so
// readers never observe a listing mid-merge.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and ensures
// the schema exists.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// modernc sqlite DSN; busy_timeout covers concurrent source runs.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// sqlite wants a single writer.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

func migrate(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS listings (
			fingerprint     TEXT PRIMARY KEY,
			source          TEXT NOT NULL,
			title           TEXT NOT NULL,
			company         TEXT NOT NULL,
			display_title   TEXT NOT NULL DEFAULT '',
			display_company TEXT NOT NULL DEFAULT '',
			location        TEXT NOT NULL DEFAULT '',
			tags            TEXT NOT NULL DEFAULT '[]',
			date_posted     TEXT NOT NULL DEFAULT '',
			url             TEXT NOT NULL DEFAULT '',
			raw_body        TEXT NOT NULL DEFAULT '',
			first_seen      TEXT NOT NULL,
			last_seen       TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_listings_source ON listings(source)`,
		`CREATE INDEX IF NOT EXISTS idx_listings_last_seen ON listings(last_seen)`,
		`CREATE TABLE IF NOT EXISTS watermarks (
			source       TEXT PRIMARY KEY,
			last_success TEXT NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Merge inserts a new listing or reconciles it with the stored one sharing
// its fingerprint. Reconciling refreshes last_seen, unions tags, and fills
// fields that were previously unknown; a known field is never overwritten
// with an unknown value. Merge is idempotent: repeating it only advances
// last_seen.
func (s *SQLiteStore) Merge(ctx context.Context, listing model.JobListing) (model.MergeOutcome, error) {
	now := s.now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.MergeOutcome{}, &model.StoreError{Op: "merge", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	existing, found, err := scanListing(tx.QueryRowContext(ctx,
		selectListing+` WHERE fingerprint = ?`, listing.Fingerprint))
	if err != nil {
		return model.MergeOutcome{}, &model.StoreError{Op: "merge", Err: err}
	}

	if !found {
		listing.FirstSeen = now
		listing.LastSeen = now
		if err := insertListing(ctx, tx, listing); err != nil {
			return model.MergeOutcome{}, &model.StoreError{Op: "merge", Err: err}
		}
		if err := tx.Commit(); err != nil {
			return model.MergeOutcome{}, &model.StoreError{Op: "merge", Err: err}
		}
		return model.MergeOutcome{Kind: model.Inserted, Listing: listing}, nil
	}

	merged := reconcile(existing, listing)
	merged.LastSeen = now

	tagsJSON, _ := json.Marshal(merged.Tags)
	_, err = tx.ExecContext(ctx, `
		UPDATE listings
		SET location = ?, tags = ?, date_posted = ?, url = ?, raw_body = ?,
		    display_title = ?, display_company = ?, last_seen = ?
		WHERE fingerprint = ?`,
		merged.Location, string(tagsJSON), formatDate(merged.DatePosted),
		merged.URL, merged.RawBody, merged.DisplayTitle, merged.DisplayCompany,
		merged.LastSeen.Format(time.RFC3339Nano), merged.Fingerprint,
	)
	if err != nil {
		return model.MergeOutcome{}, &model.StoreError{Op: "merge", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return model.MergeOutcome{}, &model.StoreError{Op: "merge", Err: err}
	}
	return model.MergeOutcome{Kind: model.Refreshed, Listing: merged, Prior: existing}, nil
}

// reconcile unions the incoming listing into the stored one. The stored
// value wins wherever it is already known.
func reconcile(stored, incoming model.JobListing) model.JobListing {
	seen := make(map[string]bool, len(stored.Tags))
	for _, t := range stored.Tags {
		seen[t] = true
	}
	for _, t := range incoming.Tags {
		if !seen[t] {
			seen[t] = true
			stored.Tags = append(stored.Tags, t)
		}
	}

	if stored.Location == "" {
		stored.Location = incoming.Location
	}
	if stored.DatePosted == nil {
		stored.DatePosted = incoming.DatePosted
	}
	if stored.URL == "" {
		stored.URL = incoming.URL
	}
	if stored.RawBody == "" {
		stored.RawBody = incoming.RawBody
	}
	if stored.DisplayTitle == "" {
		stored.DisplayTitle = incoming.DisplayTitle
	}
	if stored.DisplayCompany == "" {
		stored.DisplayCompany = incoming.DisplayCompany
	}
	return stored
}

const selectListing = `
	SELECT fingerprint, source, title, company, display_title, display_company,
	       location, tags, date_posted, url, raw_body, first_seen, last_seen
	FROM listings`

func insertListing(ctx context.Context, tx *sql.Tx, l model.JobListing) error {
	tagsJSON, _ := json.Marshal(l.Tags)
	_, err := tx.ExecContext(ctx, `
		INSERT INTO listings (fingerprint, source, title, company, display_title,
			display_company, location, tags, date_posted, url, raw_body,
			first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.Fingerprint, l.Source, l.Title, l.Company, l.DisplayTitle,
		l.DisplayCompany, l.Location, string(tagsJSON), formatDate(l.DatePosted),
		l.URL, l.RawBody,
		l.FirstSeen.Format(time.RFC3339Nano), l.LastSeen.Format(time.RFC3339Nano),
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanListing(row rowScanner) (model.JobListing, bool, error) {
	var l model.JobListing
	var tagsJSON, datePosted, firstSeen, lastSeen string
	err := row.Scan(
		&l.Fingerprint, &l.Source, &l.Title, &l.Company, &l.DisplayTitle,
		&l.DisplayCompany, &l.Location, &tagsJSON, &datePosted, &l.URL,
		&l.RawBody, &firstSeen, &lastSeen,
	)
	if err == sql.ErrNoRows {
		return model.JobListing{}, false, nil
	}
	if err != nil {
		return model.JobListing{}, false, err
	}

	if tagsJSON != "" && tagsJSON != "null" {
		_ = json.Unmarshal([]byte(tagsJSON), &l.Tags)
	}
	if datePosted != "" {
		if t, err := time.Parse(time.RFC3339Nano, datePosted); err == nil {
			t = t.UTC()
			l.DatePosted = &t
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, firstSeen); err == nil {
		l.FirstSeen = t.UTC()
	}
	if t, err := time.Parse(time.RFC3339Nano, lastSeen); err == nil {
		l.LastSeen = t.UTC()
	}
	return l, true, nil
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// Get looks up a listing by fingerprint.
func (s *SQLiteStore) Get(ctx context.Context, fingerprint string) (model.JobListing, bool, error) {
	l, found, err := scanListing(s.db.QueryRowContext(ctx,
		selectListing+` WHERE fingerprint = ?`, fingerprint))
	if err != nil {
		return model.JobListing{}, false, &model.StoreError{Op: "get", Err: err}
	}
	return l, found, nil
}

// ForEach streams every stored listing to fn in fingerprint order. Returning
// an error from fn stops the scan. Calling ForEach again restarts from the
// beginning, which is what aggregate rebuilds rely on.
func (s *SQLiteStore) ForEach(ctx context.Context, fn func(model.JobListing) error) error {
	rows, err := s.db.QueryContext(ctx, selectListing+` ORDER BY fingerprint`)
	if err != nil {
		return &model.StoreError{Op: "scan", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		l, _, err := scanListing(rows)
		if err != nil {
			return &model.StoreError{Op: "scan", Err: err}
		}
		if err := fn(l); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return &model.StoreError{Op: "scan", Err: err}
	}
	return nil
}

// Count returns the number of stored listings.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM listings`).Scan(&n); err != nil {
		return 0, &model.StoreError{Op: "count", Err: err}
	}
	return n, nil
}

// Watermark returns the timestamp of the source's last successful run, or
// nil if the source has never completed one.
func (s *SQLiteStore) Watermark(ctx context.Context, source string) (*time.Time, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT last_success FROM watermarks WHERE source = ?`, source).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &model.StoreError{Op: "watermark", Err: err}
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, &model.StoreError{Op: "watermark", Err: err}
	}
	t = t.UTC()
	return &t, nil
}

// AdvanceWatermark records t as the source's last successful run. Only the
// orchestrator calls this, and only after a run that did not fail.
func (s *SQLiteStore) AdvanceWatermark(ctx context.Context, source string, t time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO watermarks (source, last_success) VALUES (?, ?)
		ON CONFLICT(source) DO UPDATE SET last_success = excluded.last_success`,
		source, t.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return &model.StoreError{Op: "advance watermark", Err: err}
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
