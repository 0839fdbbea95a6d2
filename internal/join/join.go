// Package join merges ranking records with crawl records on normalized URL.
package join

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/starford/strikezone/internal/apperr"
	"github.com/starford/strikezone/internal/models"
)

// Record is one ranking row paired with the content of its page.
type Record struct {
	NormalizedURL string
	Ranking       models.RankingRecord
	Content       models.ContentRecord
}

// Stats describes what the join kept and dropped.
type Stats struct {
	RankingRows       int `json:"ranking_rows"`
	RankingURLs       int `json:"ranking_urls"`
	CrawlURLs         int `json:"crawl_urls"`
	MatchedURLs       int `json:"matched_urls"`
	Joined            int `json:"joined"`
	RankingDuplicates int `json:"ranking_duplicates"`
}

// NormalizeURL reduces a URL to the form used as join key: the scheme and
// fragment are removed, the host is lower-cased and trailing slashes are
// trimmed from the path. Path and query keep their case.
func NormalizeURL(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	} else if strings.HasPrefix(s, "//") {
		s = s[2:]
	}
	if i := strings.IndexByte(s, '#'); i >= 0 {
		s = s[:i]
	}

	query := ""
	if i := strings.IndexByte(s, '?'); i >= 0 {
		s, query = s[:i], s[i:]
	}

	host, path := s, ""
	if i := strings.IndexByte(s, '/'); i >= 0 {
		host, path = s[:i], s[i:]
	}
	host = strings.ToLower(host)
	path = strings.TrimRight(path, "/")
	if query == "?" {
		query = ""
	}
	return host + path + query
}

// Join returns the inner join of rankings and crawl on normalized URL.
// Duplicate crawl URLs fail with DuplicateURLError. Duplicate ranking rows
// for the same URL and keyword keep the best (lowest) position, the first
// seen row winning ties. Output follows the first-seen ranking order.
// Indexability is carried on each record for the filter stage.
func Join(rankings []models.RankingRecord, crawl []models.ContentRecord, source string) ([]Record, Stats, error) {
	var stats Stats
	stats.RankingRows = len(rankings)

	pages := make(map[string]models.ContentRecord, len(crawl))
	for _, c := range crawl {
		key := NormalizeURL(c.URL)
		if prev, ok := pages[key]; ok {
			return nil, stats, &apperr.DuplicateURLError{
				Source: source,
				URL:    key,
				Raw:    []string{prev.URL, c.URL},
				Rows:   []int{prev.Row, c.Row},
			}
		}
		pages[key] = c
	}
	stats.CrawlURLs = len(pages)

	fold := cases.Fold()
	type rankKey struct{ url, keyword string }
	best := make(map[rankKey]int, len(rankings))
	var kept []Record
	rankURLs := make(map[string]struct{})
	matched := make(map[string]struct{})

	for _, r := range rankings {
		url := NormalizeURL(r.URL)
		rankURLs[url] = struct{}{}
		page, ok := pages[url]
		if !ok {
			continue
		}
		k := rankKey{url, fold.String(r.Keyword)}
		if i, dup := best[k]; dup {
			stats.RankingDuplicates++
			if r.Position < kept[i].Ranking.Position {
				kept[i].Ranking = r
			}
			continue
		}
		best[k] = len(kept)
		matched[url] = struct{}{}
		kept = append(kept, Record{NormalizedURL: url, Ranking: r, Content: page})
	}
	stats.RankingURLs = len(rankURLs)

	stats.MatchedURLs = len(matched)
	stats.Joined = len(kept)
	return kept, stats, nil
}
