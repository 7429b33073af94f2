// Package store persists fetched news items and pipeline run history in a
// local SQLite database.
package store

import (
	"crypto/sha256"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/brahma2024/agentic-ledger/internal/news"
)

// Item is a stored news item with the bundle context it arrived with.
type Item struct {
	ID         string
	Source     string
	Title      string
	URL        string
	Summary    string
	BundleName string
	ArxivCodes []string
	Published  time.Time
	FetchedAt  time.Time
}

// NewsItem converts the stored row back to the pipeline's item type.
func (i Item) NewsItem() news.Item {
	return news.Item{
		Title:     i.Title,
		Source:    i.Source,
		Summary:   i.Summary,
		URL:       i.URL,
		Published: i.Published,
	}
}

// Run records one convergence pipeline run.
type Run struct {
	ID               string
	SelectedTitle    string
	SelectedPaperID  string
	ConvergenceScore float64
	CombinedScore    float64
	GeneratedAt      time.Time
}

// QueryOpts filters item queries. Zero values mean no filter.
type QueryOpts struct {
	Since   time.Time
	Bundles []string
	Search  string
	Limit   int
}

// Store wraps separate read and write connections to the same database file.
// The single-connection write pool avoids SQLITE_BUSY under concurrent use.
type Store struct {
	readDB  *sql.DB
	writeDB *sql.DB
}

// Open opens (creating if needed) the database at dbPath.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating store dir: %w", err)
	}

	writeDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening write db: %w", err)
	}
	writeDB.SetMaxOpenConns(1)

	readDB, err := sql.Open("sqlite", dbPath+"?mode=ro")
	if err != nil {
		writeDB.Close()
		return nil, fmt.Errorf("opening read db: %w", err)
	}

	s := &Store{readDB: readDB, writeDB: writeDB}
	if err := s.init(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	_, err := s.writeDB.Exec(`
		CREATE TABLE IF NOT EXISTS items (
			id          TEXT PRIMARY KEY,
			source      TEXT NOT NULL,
			title       TEXT NOT NULL,
			url         TEXT NOT NULL,
			summary     TEXT NOT NULL DEFAULT '',
			bundle_name TEXT NOT NULL DEFAULT '',
			arxiv_codes TEXT NOT NULL DEFAULT '',
			published   DATETIME NOT NULL,
			fetched_at  DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_items_published ON items(published DESC);
		CREATE INDEX IF NOT EXISTS idx_items_bundle ON items(bundle_name);

		CREATE TABLE IF NOT EXISTS runs (
			id                TEXT PRIMARY KEY,
			selected_title    TEXT NOT NULL,
			selected_paper_id TEXT NOT NULL DEFAULT '',
			convergence_score REAL NOT NULL,
			combined_score    REAL NOT NULL,
			generated_at      DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("initializing schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	var errs []error
	if s.readDB != nil {
		errs = append(errs, s.readDB.Close())
	}
	if s.writeDB != nil {
		errs = append(errs, s.writeDB.Close())
	}
	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return nil
}

// ItemID derives a stable row ID from the item's dedup key.
func ItemID(item news.Item) string {
	h := sha256.Sum256([]byte(item.Key()))
	return fmt.Sprintf("%x", h[:16])
}

// UpsertItems inserts or refreshes items in one transaction. A conflicting ID
// keeps the original bundle context but refreshes title, summary, and
// fetched_at.
func (s *Store) UpsertItems(items []Item) error {
	tx, err := s.writeDB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO items (id, source, title, url, summary, bundle_name, arxiv_codes, published, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			summary = excluded.summary,
			fetched_at = excluded.fetched_at
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, item := range items {
		_, err := stmt.Exec(item.ID, item.Source, item.Title, item.URL, item.Summary,
			item.BundleName, strings.Join(item.ArxivCodes, ","), item.Published, item.FetchedAt)
		if err != nil {
			return fmt.Errorf("upserting item %s: %w", item.ID, err)
		}
	}

	return tx.Commit()
}

// Items returns stored items newest first, filtered by opts.
func (s *Store) Items(opts QueryOpts) ([]Item, error) {
	var (
		where []string
		args  []interface{}
	)

	if !opts.Since.IsZero() {
		where = append(where, "published >= ?")
		args = append(args, opts.Since)
	}

	if len(opts.Bundles) > 0 {
		placeholders := make([]string, len(opts.Bundles))
		for i, b := range opts.Bundles {
			placeholders[i] = "?"
			args = append(args, b)
		}
		where = append(where, "bundle_name IN ("+strings.Join(placeholders, ",")+")")
	}

	if opts.Search != "" {
		where = append(where, "(title LIKE ? OR summary LIKE ?)")
		term := "%" + opts.Search + "%"
		args = append(args, term, term)
	}

	query := "SELECT id, source, title, url, summary, bundle_name, arxiv_codes, published, fetched_at FROM items"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY published DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = 500
	}
	query += fmt.Sprintf(" LIMIT %d", limit)

	rows, err := s.readDB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var (
			item  Item
			codes string
		)
		if err := rows.Scan(&item.ID, &item.Source, &item.Title, &item.URL, &item.Summary,
			&item.BundleName, &codes, &item.Published, &item.FetchedAt); err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		if codes != "" {
			item.ArxivCodes = strings.Split(codes, ",")
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// RecordRun appends one run to the history.
func (s *Store) RecordRun(run Run) error {
	_, err := s.writeDB.Exec(`
		INSERT INTO runs (id, selected_title, selected_paper_id, convergence_score, combined_score, generated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, run.ID, run.SelectedTitle, run.SelectedPaperID, run.ConvergenceScore, run.CombinedScore, run.GeneratedAt)
	return err
}

// Runs returns run history newest first, capped at limit.
func (s *Store) Runs(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.readDB.Query(`
		SELECT id, selected_title, selected_paper_id, convergence_score, combined_score, generated_at
		FROM runs ORDER BY generated_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.SelectedTitle, &run.SelectedPaperID,
			&run.ConvergenceScore, &run.CombinedScore, &run.GeneratedAt); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Prune deletes items published before the retention window and returns how
// many were removed.
func (s *Store) Prune(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	res, err := s.writeDB.Exec("DELETE FROM items WHERE published < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning items: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns the stored item count and the database file size.
func (s *Store) Stats(dbPath string) (int64, int64, error) {
	var count int64
	if err := s.readDB.QueryRow("SELECT COUNT(*) FROM items").Scan(&count); err != nil {
		return 0, 0, fmt.Errorf("counting items: %w", err)
	}
	info, err := os.Stat(dbPath)
	if err != nil {
		return count, 0, fmt.Errorf("statting db: %w", err)
	}
	return count, info.Size(), nil
}

// NeedsRefresh reports whether the last feed refresh is older than interval.
func (s *Store) NeedsRefresh(interval time.Duration) bool {
	var value string
	err := s.readDB.QueryRow("SELECT value FROM meta WHERE key = 'last_refresh'").Scan(&value)
	if err != nil {
		return true
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return true
	}
	return time.Since(t) > interval
}

// SetLastRefresh stamps the current time as the last feed refresh.
func (s *Store) SetLastRefresh() error {
	_, err := s.writeDB.Exec(`
		INSERT INTO meta (key, value) VALUES ('last_refresh', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, time.Now().Format(time.RFC3339))
	return err
}
