package cachestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/starford/strikezone/internal/apperr"
	"github.com/starford/strikezone/internal/models"
)

const runColumns = `id, started_at, ranking_source, crawl_source, pages, keywords, volume, enrichment_state, duration_ms`

// RecordRun stores the summary of a finished analysis.
func (db *DB) RecordRun(ctx context.Context, r models.RunSummary) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO analysis_runs (id, started_at, ranking_source, crawl_source, pages, keywords, volume, enrichment_state, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			pages            = excluded.pages,
			keywords         = excluded.keywords,
			volume           = excluded.volume,
			enrichment_state = excluded.enrichment_state,
			duration_ms      = excluded.duration_ms
	`, r.ID, r.StartedAt.UTC(), r.RankingSource, r.CrawlSource, r.Pages, r.Keywords, r.Volume, r.EnrichmentState, r.DurationMS)
	if err != nil {
		return fmt.Errorf("cachestore: record run: %w", err)
	}
	return nil
}

// ListRuns returns runs newest first, with the total count for paging.
func (db *DB) ListRuns(ctx context.Context, limit, offset int) ([]models.RunSummary, int, error) {
	if limit <= 0 {
		limit = 50
	}
	var total int
	if err := db.conn.QueryRowContext(ctx, `SELECT count(*) FROM analysis_runs`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("cachestore: count runs: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM analysis_runs
		ORDER BY started_at DESC, id
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("cachestore: list runs: %w", err)
	}
	defer rows.Close()

	var out []models.RunSummary
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	return out, total, rows.Err()
}

// GetRun returns one run summary or apperr.ErrNotFound.
func (db *DB) GetRun(ctx context.Context, id string) (*models.RunSummary, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+runColumns+` FROM analysis_runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (models.RunSummary, error) {
	var r models.RunSummary
	if err := s.Scan(&r.ID, &r.StartedAt, &r.RankingSource, &r.CrawlSource, &r.Pages, &r.Keywords, &r.Volume, &r.EnrichmentState, &r.DurationMS); err != nil {
		return r, fmt.Errorf("cachestore: scan run: %w", err)
	}
	return r, nil
}
