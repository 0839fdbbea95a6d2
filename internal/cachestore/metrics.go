package cachestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/starford/strikezone/internal/models"
)

// LoadFresh returns every cached keyword fetched at or after since.
func (db *DB) LoadFresh(ctx context.Context, since time.Time) ([]models.KeywordMetrics, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT keyword, volume, difficulty, cpc, competition_level, fetched_at
		FROM keyword_metrics
		WHERE fetched_at >= ?
		ORDER BY keyword
	`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("cachestore: load fresh: %w", err)
	}
	defer rows.Close()

	var out []models.KeywordMetrics
	for rows.Next() {
		var (
			m          models.KeywordMetrics
			volume     sql.NullInt64
			difficulty sql.NullFloat64
			cpc        sql.NullFloat64
		)
		if err := rows.Scan(&m.Keyword, &volume, &difficulty, &cpc, &m.CompetitionLevel, &m.FetchedAt); err != nil {
			return nil, fmt.Errorf("cachestore: scan metrics: %w", err)
		}
		if volume.Valid {
			v := int(volume.Int64)
			m.Volume = &v
		}
		if difficulty.Valid {
			m.Difficulty = &difficulty.Float64
		}
		if cpc.Valid {
			m.CPC = &cpc.Float64
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Save upserts metrics in a single transaction.
func (db *DB) Save(ctx context.Context, ms []models.KeywordMetrics) error {
	if len(ms) == 0 {
		return nil
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("cachestore: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO keyword_metrics (keyword, volume, difficulty, cpc, competition_level, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(keyword) DO UPDATE SET
			volume            = excluded.volume,
			difficulty        = excluded.difficulty,
			cpc               = excluded.cpc,
			competition_level = excluded.competition_level,
			fetched_at        = excluded.fetched_at
	`)
	if err != nil {
		return fmt.Errorf("cachestore: prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, m := range ms {
		fetched := m.FetchedAt
		if fetched.IsZero() {
			fetched = time.Now()
		}
		var volume any
		if m.Volume != nil {
			volume = *m.Volume
		}
		if _, err := stmt.ExecContext(ctx, m.Keyword, volume, nullFloat(m.Difficulty), nullFloat(m.CPC), m.CompetitionLevel, fetched.UTC()); err != nil {
			return fmt.Errorf("cachestore: upsert %q: %w", m.Keyword, err)
		}
	}
	return tx.Commit()
}

// Purge deletes entries fetched before the cutoff and returns how many went.
func (db *DB) Purge(ctx context.Context, before time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM keyword_metrics WHERE fetched_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("cachestore: purge: %w", err)
	}
	return res.RowsAffected()
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
