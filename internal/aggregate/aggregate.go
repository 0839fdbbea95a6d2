// Package aggregate rolls opportunity rows up into per-page summaries.
package aggregate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/starford/strikezone/internal/models"
)

// Aggregate groups rows by normalized URL. Rows inside a page are ordered by
// volume descending, then position ascending, then keyword. Pages are
// ordered by striking-distance volume descending, then keyword count
// descending, then URL. The input slice is not modified.
func Aggregate(rows []models.OpportunityRow) []models.PageSummary {
	index := make(map[string]int)
	var pages []models.PageSummary
	for _, r := range rows {
		key := r.NormalizedURL
		if key == "" {
			key = r.URL
		}
		i, ok := index[key]
		if !ok {
			i = len(pages)
			index[key] = i
			pages = append(pages, models.PageSummary{URL: r.URL})
		}
		pages[i].Rows = append(pages[i].Rows, r)
	}

	for i := range pages {
		p := &pages[i]
		var diffSum float64
		var diffN int
		for _, r := range p.Rows {
			p.KeywordCount++
			p.StrikingDistanceVolume += r.Volume
			if r.Difficulty != nil {
				diffSum += *r.Difficulty
				diffN++
			}
		}
		if diffN > 0 {
			avg := diffSum / float64(diffN)
			p.AvgDifficulty = &avg
		}
		SortRows(p.Rows)
	}
	SortPages(pages)
	return pages
}

// SortRows orders rows by volume desc, position asc, keyword asc.
func SortRows(rows []models.OpportunityRow) {
	sort.SliceStable(rows, func(a, b int) bool {
		ra, rb := rows[a], rows[b]
		if ra.Volume != rb.Volume {
			return ra.Volume > rb.Volume
		}
		if ra.Position != rb.Position {
			return ra.Position < rb.Position
		}
		return ra.Keyword < rb.Keyword
	})
}

// SortPages orders summaries by volume desc, keyword count desc, URL asc.
func SortPages(pages []models.PageSummary) {
	sort.SliceStable(pages, func(a, b int) bool {
		pa, pb := pages[a], pages[b]
		if pa.StrikingDistanceVolume != pb.StrikingDistanceVolume {
			return pa.StrikingDistanceVolume > pb.StrikingDistanceVolume
		}
		if pa.KeywordCount != pb.KeywordCount {
			return pa.KeywordCount > pb.KeywordCount
		}
		return pa.URL < pb.URL
	})
}

// Flatten returns the rows of pages in page order.
func Flatten(pages []models.PageSummary) []models.OpportunityRow {
	var out []models.OpportunityRow
	for _, p := range pages {
		out = append(out, p.Rows...)
	}
	return out
}

// TopKeywords returns at most n leading rows of a summary.
func TopKeywords(p models.PageSummary, n int) []models.OpportunityRow {
	if n < 0 || n >= len(p.Rows) {
		return p.Rows
	}
	return p.Rows[:n]
}

// View selects which opportunities a report shows.
type View string

const (
	ViewAll         View = "all"
	ViewGaps        View = "gaps"        // at least one element misses the keyword
	ViewUnoptimized View = "unoptimized" // keyword absent from every element
)

// ParseView accepts the view names used by the CLI and API.
func ParseView(s string) (View, error) {
	switch v := View(strings.ToLower(strings.TrimSpace(s))); v {
	case "":
		return ViewAll, nil
	case ViewAll, ViewGaps, ViewUnoptimized:
		return v, nil
	default:
		return "", fmt.Errorf("aggregate: unknown view %q", s)
	}
}

func (v View) includes(r models.OpportunityRow) bool {
	switch v {
	case ViewGaps:
		return !r.Optimized()
	case ViewUnoptimized:
		return !r.InTitle && !r.InHeading && !r.InCopy
	default:
		return true
	}
}

// VolumeRange bounds a page's striking-distance volume. A zero Max means
// no upper bound.
type VolumeRange struct {
	Min int
	Max int
}

func (vr VolumeRange) contains(v int) bool {
	return v >= vr.Min && (vr.Max == 0 || v <= vr.Max)
}

// Select narrows pages to the rows of the given view, recomputes their
// totals and drops pages left empty or outside vr.
func Select(pages []models.PageSummary, view View, vr VolumeRange) []models.PageSummary {
	var rows []models.OpportunityRow
	for _, p := range pages {
		for _, r := range p.Rows {
			if view.includes(r) {
				rows = append(rows, r)
			}
		}
	}
	var out []models.PageSummary
	for _, p := range Aggregate(rows) {
		if vr.contains(p.StrikingDistanceVolume) {
			out = append(out, p)
		}
	}
	return out
}

// Totals summarizes a set of pages.
type Totals struct {
	Pages              int      `json:"pages"`
	Keywords           int      `json:"keywords"`
	Volume             int      `json:"volume"`
	AvgKeywordsPerPage float64  `json:"avg_keywords_per_page"`
	AvgDifficulty      *float64 `json:"avg_difficulty,omitempty"`
	MissingFromTitle   int      `json:"missing_from_title"`
	MissingFromHeading int      `json:"missing_from_heading"`
	MissingFromCopy    int      `json:"missing_from_copy"`
}

// Summarize computes Totals over pages. AvgDifficulty averages the rows that
// carry a difficulty.
func Summarize(pages []models.PageSummary) Totals {
	t := Totals{Pages: len(pages)}
	var diffSum float64
	var diffN int
	for _, p := range pages {
		t.Keywords += p.KeywordCount
		t.Volume += p.StrikingDistanceVolume
		for _, r := range p.Rows {
			if r.Difficulty != nil {
				diffSum += *r.Difficulty
				diffN++
			}
			if !r.InTitle {
				t.MissingFromTitle++
			}
			if !r.InHeading {
				t.MissingFromHeading++
			}
			if !r.InCopy {
				t.MissingFromCopy++
			}
		}
	}
	if t.Pages > 0 {
		t.AvgKeywordsPerPage = float64(t.Keywords) / float64(t.Pages)
	}
	if diffN > 0 {
		avg := diffSum / float64(diffN)
		t.AvgDifficulty = &avg
	}
	return t
}
