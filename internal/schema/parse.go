package schema

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/starford/strikezone/internal/models"
	"github.com/starford/strikezone/internal/table"
)

// IngestStats counts the rows of one table that were read and skipped.
type IngestStats struct {
	Source      string         `json:"source"`
	Rows        int            `json:"rows"`
	Skipped     int            `json:"skipped"`
	SkipReasons map[string]int `json:"skip_reasons,omitempty"`
}

func (s *IngestStats) skip(reason string) {
	s.Skipped++
	if s.SkipReasons == nil {
		s.SkipReasons = make(map[string]int)
	}
	s.SkipReasons[reason]++
}

// Reasons returns the skip reasons in a stable order.
func (s IngestStats) Reasons() []string {
	out := make([]string, 0, len(s.SkipReasons))
	for r := range s.SkipReasons {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// ParseRankings converts a ranking export into records. Rows with an empty
// URL or keyword, or a volume/position that does not parse, are skipped.
func ParseRankings(t *table.Table) ([]models.RankingRecord, IngestStats, error) {
	stats := IngestStats{Source: t.Name}
	m, err := Map(t.Name, t.Headers, RankingRequired, []Field{FieldDifficulty, FieldCPC})
	if err != nil {
		return nil, stats, err
	}

	out := make([]models.RankingRecord, 0, len(t.Rows))
	for i, row := range t.Rows {
		stats.Rows++
		rec := models.RankingRecord{
			URL:     m.Value(row, FieldURL),
			Keyword: strings.Join(strings.Fields(m.Value(row, FieldKeyword)), " "),
			Row:     i + 1,
		}
		if rec.URL == "" {
			stats.skip("empty url")
			continue
		}
		if rec.Keyword == "" {
			stats.skip("empty keyword")
			continue
		}
		vol, err := ParseVolume(m.Value(row, FieldVolume))
		if err != nil {
			stats.skip("invalid volume")
			continue
		}
		pos, err := ParsePosition(m.Value(row, FieldPosition))
		if err != nil {
			stats.skip("invalid position")
			continue
		}
		rec.Volume, rec.Position = vol, pos
		rec.Difficulty = optionalFloat(m.Value(row, FieldDifficulty))
		rec.CPC = optionalFloat(m.Value(row, FieldCPC))
		out = append(out, rec)
	}
	return out, stats, nil
}

// ParseCrawl converts a crawl export into content records. Rows without a
// URL are skipped; duplicate detection belongs to the join.
func ParseCrawl(t *table.Table) ([]models.ContentRecord, IngestStats, error) {
	stats := IngestStats{Source: t.Name}
	m, err := Map(t.Name, t.Headers, CrawlRequired, []Field{FieldIndexable})
	if err != nil {
		return nil, stats, err
	}

	out := make([]models.ContentRecord, 0, len(t.Rows))
	for i, row := range t.Rows {
		stats.Rows++
		rec := models.ContentRecord{
			URL:       m.Value(row, FieldURL),
			Title:     PlainText(m.Value(row, FieldTitle)),
			Heading:   PlainText(m.Value(row, FieldHeading)),
			Copy:      PlainText(m.Value(row, FieldCopy)),
			Indexable: ParseIndexability(m.Value(row, FieldIndexable)),
			Row:       i + 1,
		}
		if rec.URL == "" {
			stats.skip("empty url")
			continue
		}
		out = append(out, rec)
	}
	return out, stats, nil
}

// ParseVolume reads a search volume. Thousands separators are accepted and
// bucketed values such as "0-10" resolve to their lower bound.
func ParseVolume(s string) (int, error) {
	s = strings.TrimSpace(s)
	if lo, _, ok := strings.Cut(s, "-"); ok && lo != "" {
		s = strings.TrimSpace(lo)
	}
	s = strings.NewReplacer(",", "", " ", "", "\u00a0", "").Replace(s)
	if s == "" {
		return 0, fmt.Errorf("schema: empty volume")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("schema: volume %q: %w", s, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("schema: volume %q is not a number", s)
	}
	if f < 0 {
		return 0, fmt.Errorf("schema: negative volume %q", s)
	}
	if f > math.MaxInt32 {
		return 0, fmt.Errorf("schema: volume %q out of range", s)
	}
	return int(f), nil
}

// ParsePosition reads a ranking position, which must be greater than zero.
func ParsePosition(s string) (float64, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	p, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("schema: position %q: %w", s, err)
	}
	if math.IsNaN(p) || math.IsInf(p, 0) || p <= 0 {
		return 0, fmt.Errorf("schema: position %q out of range", s)
	}
	return p, nil
}

// ParseIndexability maps the crawl indexability column onto the tri-state.
func ParseIndexability(s string) models.Indexability {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "indexable", "true", "yes", "1":
		return models.Indexable
	case "non-indexable", "non indexable", "noindex", "false", "no", "0":
		return models.NonIndexable
	default:
		return models.IndexUnknown
	}
}

func optionalFloat(s string) *float64 {
	s = strings.TrimSuffix(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "$")), "%")
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}
