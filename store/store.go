// Package store keeps a history of normalized listings in an embedded
// sqlite database. The dashboard reads from here instead of hitting the
// auction sites on every page load.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"truckwatch/models"
)

// Store wraps the history database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the history database at path.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS listings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			site TEXT NOT NULL,
			asset_id TEXT NOT NULL,
			title TEXT NOT NULL,
			city TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL DEFAULT '',
			bid_cents INTEGER,
			secs INTEGER,
			url TEXT NOT NULL DEFAULT '',
			tags TEXT NOT NULL DEFAULT '',
			target INTEGER NOT NULL DEFAULT 0,
			blocked INTEGER NOT NULL DEFAULT 0,
			fetched_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_listings_fetched ON listings(fetched_at);`,
		`CREATE INDEX IF NOT EXISTS idx_listings_site_asset ON listings(site, asset_id);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordCycle inserts one snapshot row per listing for this fetch cycle.
func (s *Store) RecordCycle(ctx context.Context, rows []models.Listing, fetchedAt time.Time) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO listings
		(site, asset_id, title, city, state, bid_cents, secs, url, tags, target, blocked, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	at := fetchedAt.UTC()
	for _, r := range rows {
		var bid, secs any
		if r.BidCents != nil {
			bid = *r.BidCents
		}
		if r.Secs != nil {
			secs = *r.Secs
		}
		if _, err := stmt.ExecContext(ctx, r.Site, r.AssetID, r.Title, r.City, r.State,
			bid, secs, r.URL, strings.Join(r.Tags, ","), r.Target, r.Blocked, at); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Snapshot is one stored listing row.
type Snapshot struct {
	Site      string
	AssetID   string
	Title     string
	City      string
	State     string
	BidCents  *int64
	Secs      *int64
	URL       string
	Tags      []string
	Target    bool
	Blocked   bool
	FetchedAt time.Time
}

// Recent returns the newest cycle's rows, soonest-closing first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT site, asset_id, title, city, state,
			bid_cents, secs, url, tags, target, blocked, fetched_at
		FROM listings
		WHERE fetched_at = (SELECT MAX(fetched_at) FROM listings)
		ORDER BY secs IS NULL, secs ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var sn Snapshot
		var bid, secs sql.NullInt64
		var tags string
		if err := rows.Scan(&sn.Site, &sn.AssetID, &sn.Title, &sn.City, &sn.State,
			&bid, &secs, &sn.URL, &tags, &sn.Target, &sn.Blocked, &sn.FetchedAt); err != nil {
			return nil, err
		}
		if bid.Valid {
			v := bid.Int64
			sn.BidCents = &v
		}
		if secs.Valid {
			v := secs.Int64
			sn.Secs = &v
		}
		if tags != "" {
			sn.Tags = strings.Split(tags, ",")
		}
		out = append(out, sn)
	}
	return out, rows.Err()
}

// PruneOlderThan drops snapshots older than the cutoff and reports how many
// went away.
func (s *Store) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM listings WHERE fetched_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
