// Package match applies striking-distance thresholds to joined records and
// flags where each keyword already appears on its page.
package match

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/cases"

	"github.com/starford/strikezone/internal/apperr"
	"github.com/starford/strikezone/internal/join"
	"github.com/starford/strikezone/internal/models"
)

// Config holds the filter thresholds and toggles. Pages the crawl marks as
// non-indexable are dropped unless IncludeNonIndexable is set.
type Config struct {
	MinPosition         int  `yaml:"min_position" json:"min_position"`
	MaxPosition         int  `yaml:"max_position" json:"max_position"`
	MinVolume           int  `yaml:"min_volume" json:"min_volume"`
	ExcludePaginated    bool `yaml:"exclude_paginated" json:"exclude_paginated"`
	DropOptimized       bool `yaml:"drop_optimized" json:"drop_optimized"`
	IncludeNonIndexable bool `yaml:"include_non_indexable" json:"include_non_indexable"`
}

// Stats counts why filtered records were dropped. Each record is counted
// under the first rule it fails.
type Stats struct {
	Input         int `json:"input"`
	NonIndexable  int `json:"non_indexable"`
	OutsideWindow int `json:"outside_window"`
	BelowVolume   int `json:"below_volume"`
	Paginated     int `json:"paginated"`
	Optimized     int `json:"optimized"`
	Kept          int `json:"kept"`
}

// DefaultConfig returns the usual striking-distance window, positions 4-20.
func DefaultConfig() Config {
	return Config{
		MinPosition:      4,
		MaxPosition:      20,
		MinVolume:        10,
		ExcludePaginated: true,
		DropOptimized:    true,
	}
}

// Validate reports threshold combinations that can never match.
func (c Config) Validate() error {
	switch {
	case c.MinPosition < 1:
		return &apperr.ConfigurationError{Field: "min_position", Reason: fmt.Sprintf("must be at least 1, got %d", c.MinPosition)}
	case c.MaxPosition < c.MinPosition:
		return &apperr.ConfigurationError{Field: "max_position", Reason: fmt.Sprintf("%d is below min_position %d", c.MaxPosition, c.MinPosition)}
	case c.MinVolume < 0:
		return &apperr.ConfigurationError{Field: "min_volume", Reason: fmt.Sprintf("must not be negative, got %d", c.MinVolume)}
	}
	return nil
}

// PaginationPatterns is the fixed list of URL shapes treated as paginated or
// faceted listings.
var PaginationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/page/\d+(?:$|\?)`),
	regexp.MustCompile(`[?&]page=`),
	regexp.MustCompile(`[?&]paged=`),
	regexp.MustCompile(`[?&]p=\d+`),
	regexp.MustCompile(`filterby`),
}

// Paginated reports whether a normalized URL matches a pagination pattern.
func Paginated(normalizedURL string) bool {
	for _, re := range PaginationPatterns {
		if re.MatchString(normalizedURL) {
			return true
		}
	}
	return false
}

// Filter keeps the records inside the position and volume window. It
// allocates a new slice and leaves recs untouched.
func Filter(recs []join.Record, cfg Config) ([]join.Record, Stats) {
	stats := Stats{Input: len(recs)}
	out := make([]join.Record, 0, len(recs))
	for _, r := range recs {
		switch {
		case r.Content.Indexable == models.NonIndexable && !cfg.IncludeNonIndexable:
			stats.NonIndexable++
		case !inWindow(r.Ranking.Position, cfg):
			stats.OutsideWindow++
		case r.Ranking.Volume < cfg.MinVolume:
			stats.BelowVolume++
		case cfg.ExcludePaginated && Paginated(r.NormalizedURL):
			stats.Paginated++
		default:
			out = append(out, r)
		}
	}
	stats.Kept = len(out)
	return out, stats
}

// inWindow is written so that a NaN position never qualifies.
func inWindow(position float64, cfg Config) bool {
	return position >= float64(cfg.MinPosition) && position <= float64(cfg.MaxPosition)
}

// Contains reports whether keyword occurs in text under Unicode case
// folding. An empty text or keyword never matches.
func Contains(text, keyword string) bool {
	fold := cases.Fold()
	return containsFolded(fold.String(text), fold.String(keyword))
}

func containsFolded(text, keyword string) bool {
	return text != "" && keyword != "" && strings.Contains(text, keyword)
}

type foldedPage struct {
	title, heading, copy string
}

// Match converts filtered records into opportunity rows with presence flags.
// Each page's text is folded once. When dropOptimized is set, rows found in
// title, heading and copy are removed.
func Match(recs []join.Record, dropOptimized bool) []models.OpportunityRow {
	fold := cases.Fold()
	pages := make(map[string]foldedPage)
	out := make([]models.OpportunityRow, 0, len(recs))
	for _, r := range recs {
		page, ok := pages[r.NormalizedURL]
		if !ok {
			page = foldedPage{
				title:   fold.String(r.Content.Title),
				heading: fold.String(r.Content.Heading),
				copy:    fold.String(r.Content.Copy),
			}
			pages[r.NormalizedURL] = page
		}
		kw := fold.String(r.Ranking.Keyword)
		row := models.OpportunityRow{
			URL:           r.Content.URL,
			NormalizedURL: r.NormalizedURL,
			Keyword:       r.Ranking.Keyword,
			Volume:        r.Ranking.Volume,
			Position:      r.Ranking.Position,
			InTitle:       containsFolded(page.title, kw),
			InHeading:     containsFolded(page.heading, kw),
			InCopy:        containsFolded(page.copy, kw),
			Difficulty:    r.Ranking.Difficulty,
			CPC:           r.Ranking.CPC,
		}
		if dropOptimized && row.Optimized() {
			continue
		}
		out = append(out, row)
	}
	return out
}

// Run validates cfg, filters recs and computes the opportunity rows.
func Run(recs []join.Record, cfg Config) ([]models.OpportunityRow, Stats, error) {
	if err := cfg.Validate(); err != nil {
		return nil, Stats{}, err
	}
	kept, stats := Filter(recs, cfg)
	rows := Match(kept, cfg.DropOptimized)
	stats.Optimized = len(kept) - len(rows)
	stats.Kept = len(rows)
	return rows, stats, nil
}
