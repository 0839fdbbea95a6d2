package join

import (
	"errors"
	"reflect"
	"sort"
	"testing"

	"github.com/starford/strikezone/internal/apperr"
	"github.com/starford/strikezone/internal/models"
)

func TestNormalizeURL(t *testing.T) {
	cases := []struct{ in, want string }{
		{"https://Example.COM/Shoes/", "example.com/Shoes"},
		{"http://example.com/Shoes", "example.com/Shoes"},
		{"example.com/shoes//", "example.com/shoes"},
		{"https://example.com/", "example.com"},
		{"https://example.com", "example.com"},
		{"https://example.com/a/?Page=2", "example.com/a?Page=2"},
		{"https://example.com/a#reviews", "example.com/a"},
		{"  /a/  ", "/a"},
		{"/a", "/a"},
		{"//CDN.example.com/x", "cdn.example.com/x"},
	}
	for _, tc := range cases {
		if got := NormalizeURL(tc.in); got != tc.want {
			t.Errorf("NormalizeURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeURL_PathCaseSensitive(t *testing.T) {
	if NormalizeURL("https://example.com/A") == NormalizeURL("https://example.com/a") {
		t.Error("paths differing in case must not collide")
	}
}

func TestJoin_IntersectionOfURLs(t *testing.T) {
	rankings := []models.RankingRecord{
		{URL: "https://example.com/a", Keyword: "k1", Position: 5},
		{URL: "https://example.com/b/", Keyword: "k2", Position: 6},
		{URL: "https://example.com/only-ranking", Keyword: "k3", Position: 7},
		{URL: "http://EXAMPLE.com/a/", Keyword: "k4", Position: 8},
	}
	crawl := []models.ContentRecord{
		{URL: "https://example.com/a/", Row: 1},
		{URL: "https://example.com/b", Row: 2, Indexable: models.NonIndexable},
		{URL: "https://example.com/only-crawl", Row: 3},
	}
	recs, stats, err := Join(rankings, crawl, "crawl.csv")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}

	rankSet := map[string]bool{}
	for _, r := range rankings {
		rankSet[NormalizeURL(r.URL)] = true
	}
	var want []string
	for _, c := range crawl {
		if u := NormalizeURL(c.URL); rankSet[u] {
			want = append(want, u)
		}
	}
	sort.Strings(want)

	if got := urlSet(recs); !reflect.DeepEqual(got, want) {
		t.Errorf("URLs = %v, want %v", got, want)
	}
	if stats.MatchedURLs != 2 || stats.Joined != 3 {
		t.Errorf("stats = %+v", stats)
	}
	if recs[0].Ranking.Keyword != "k1" || recs[2].Ranking.Keyword != "k4" {
		t.Errorf("order not preserved: %v, %v", recs[0].Ranking.Keyword, recs[2].Ranking.Keyword)
	}
}

func TestJoin_DuplicateCrawlURL(t *testing.T) {
	crawl := []models.ContentRecord{
		{URL: "https://example.com/a", Row: 1},
		{URL: "https://example.com/b", Row: 2},
		{URL: "http://example.com/a/", Row: 3},
	}
	_, _, err := Join(nil, crawl, "crawl.csv")
	if !errors.Is(err, apperr.ErrDuplicateURL) {
		t.Fatalf("err = %v, want ErrDuplicateURL", err)
	}
	var de *apperr.DuplicateURLError
	if !errors.As(err, &de) {
		t.Fatal("expected *DuplicateURLError")
	}
	if de.URL != "example.com/a" || !reflect.DeepEqual(de.Rows, []int{1, 3}) {
		t.Errorf("error = %+v", de)
	}
}

func TestJoin_RankingDuplicatesBestPositionWins(t *testing.T) {
	rankings := []models.RankingRecord{
		{URL: "/a", Keyword: "Best Shoes", Volume: 100, Position: 9, Row: 1},
		{URL: "/a/", Keyword: "best shoes", Volume: 100, Position: 6, Row: 2},
		{URL: "/a", Keyword: "best shoes", Volume: 100, Position: 6, Row: 3},
	}
	crawl := []models.ContentRecord{{URL: "/a"}}
	recs, stats, err := Join(rankings, crawl, "crawl.csv")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("records = %d, want 1", len(recs))
	}
	if recs[0].Ranking.Row != 2 {
		t.Errorf("kept row = %d, want 2 (lowest position, first seen)", recs[0].Ranking.Row)
	}
	if stats.RankingDuplicates != 2 {
		t.Errorf("duplicates = %d, want 2", stats.RankingDuplicates)
	}
}

func TestJoin_KeepsNonIndexable(t *testing.T) {
	rankings := []models.RankingRecord{{URL: "/a", Keyword: "k", Position: 5}, {URL: "/b", Keyword: "k", Position: 5}}
	crawl := []models.ContentRecord{
		{URL: "/a", Indexable: models.NonIndexable},
		{URL: "/b", Indexable: models.IndexUnknown},
	}

	recs, stats, err := Join(rankings, crawl, "crawl.csv")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if got := urlSet(recs); !reflect.DeepEqual(got, []string{"/a", "/b"}) {
		t.Errorf("URLs = %v, want [/a /b]", got)
	}
	if recs[0].Content.Indexable != models.NonIndexable {
		t.Errorf("indexability not carried: %+v", recs[0].Content)
	}
	if stats.MatchedURLs != 2 || stats.Joined != 2 {
		t.Errorf("stats = %+v", stats)
	}
}

func urlSet(recs []Record) []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range recs {
		if !seen[r.NormalizedURL] {
			seen[r.NormalizedURL] = true
			out = append(out, r.NormalizedURL)
		}
	}
	sort.Strings(out)
	return out
}
