// Package models defines the domain types for strikezone.
package models

import "time"

// Indexability records whether a crawled page may appear in search results.
type Indexability int

const (
	IndexUnknown Indexability = iota
	Indexable
	NonIndexable
)

// String returns the label used in exports.
func (i Indexability) String() string {
	switch i {
	case Indexable:
		return "indexable"
	case NonIndexable:
		return "non-indexable"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (i Indexability) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// RankingRecord is one keyword a URL ranks for, taken from a ranking export.
type RankingRecord struct {
	URL        string   `json:"url"`
	Keyword    string   `json:"keyword"`
	Volume     int      `json:"volume"`
	Position   float64  `json:"position"`
	Difficulty *float64 `json:"difficulty,omitempty"`
	CPC        *float64 `json:"cpc,omitempty"`
	Row        int      `json:"row"` // 1-based data row in the source table
}

// ContentRecord is the on-page content of one crawled URL.
type ContentRecord struct {
	URL       string       `json:"url"`
	Title     string       `json:"title"`
	Heading   string       `json:"heading"`
	Copy      string       `json:"copy"`
	Indexable Indexability `json:"indexable"`
	Row       int          `json:"row"`
}

// OpportunityRow is a single keyword in striking distance for a page,
// together with where the keyword already appears on that page.
type OpportunityRow struct {
	URL           string   `json:"url"`
	NormalizedURL string   `json:"normalized_url"`
	Keyword       string   `json:"keyword"`
	Volume        int      `json:"volume"`
	Position      float64  `json:"position"`
	InTitle       bool     `json:"in_title"`
	InHeading     bool     `json:"in_heading"`
	InCopy        bool     `json:"in_copy"`
	Difficulty    *float64 `json:"difficulty,omitempty"`
	CPC           *float64 `json:"cpc,omitempty"`
	Competition   string   `json:"competition,omitempty"`
}

// Optimized reports whether the keyword already appears in every element.
func (r OpportunityRow) Optimized() bool {
	return r.InTitle && r.InHeading && r.InCopy
}

// PageSummary rolls up the opportunities of one URL.
type PageSummary struct {
	URL                    string           `json:"url"`
	KeywordCount           int              `json:"keyword_count"`
	StrikingDistanceVolume int              `json:"striking_distance_volume"`
	AvgDifficulty          *float64         `json:"avg_difficulty,omitempty"`
	Rows                   []OpportunityRow `json:"rows"`
}

// KeywordMetrics is the provider's view of one keyword. It doubles as the
// enrichment cache entry, keyed by the normalized keyword.
type KeywordMetrics struct {
	Keyword          string    `json:"keyword"`
	Volume           *int      `json:"volume,omitempty"`
	Difficulty       *float64  `json:"difficulty,omitempty"`
	CPC              *float64  `json:"cpc,omitempty"`
	CompetitionLevel string    `json:"competition_level,omitempty"`
	FetchedAt        time.Time `json:"fetched_at"`
}

// RunSummary is the persisted outline of one analysis run.
type RunSummary struct {
	ID              string    `json:"id"`
	StartedAt       time.Time `json:"started_at"`
	RankingSource   string    `json:"ranking_source"`
	CrawlSource     string    `json:"crawl_source"`
	Pages           int       `json:"pages"`
	Keywords        int       `json:"keywords"`
	Volume          int       `json:"volume"`
	EnrichmentState string    `json:"enrichment_state,omitempty"`
	DurationMS      int64     `json:"duration_ms"`
}
