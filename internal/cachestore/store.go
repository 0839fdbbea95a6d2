// Package cachestore persists keyword metrics and run summaries in SQLite so
// enrichment results survive between runs.
package cachestore

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/strikezone/internal/enrich"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS keyword_metrics (
	keyword           TEXT PRIMARY KEY,
	volume            INTEGER,
	difficulty        REAL,
	cpc               REAL,
	competition_level TEXT NOT NULL DEFAULT '',
	fetched_at        DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_keyword_metrics_fetched ON keyword_metrics(fetched_at);

CREATE TABLE IF NOT EXISTS analysis_runs (
	id               TEXT PRIMARY KEY,
	started_at       DATETIME NOT NULL,
	ranking_source   TEXT NOT NULL DEFAULT '',
	crawl_source     TEXT NOT NULL DEFAULT '',
	pages            INTEGER NOT NULL DEFAULT 0,
	keywords         INTEGER NOT NULL DEFAULT 0,
	volume           INTEGER NOT NULL DEFAULT 0,
	enrichment_state TEXT NOT NULL DEFAULT '',
	duration_ms      INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_analysis_runs_started ON analysis_runs(started_at);
`

// DB wraps a sql.DB with cache operations.
type DB struct {
	conn *sql.DB
}

var _ enrich.Store = (*DB)(nil)

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("cachestore: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("cachestore: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("cachestore: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Ping checks the connection, for readiness probes.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
