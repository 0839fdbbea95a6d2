// Package testutil provides shared test helpers for export fixtures and
// databases.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/strikezone/internal/cachestore"
)

// RankingCSV is a small Ahrefs-style ranking export.
const RankingCSV = `Keyword,Current URL,Volume,Current position,KD
best shoes,https://example.com/a/,120,7,30
running shoes,https://example.com/a,300,12,
shoes for running,https://example.com/a,50,3,
cheap shoes,https://example.com/b,90,5,10
cheap shoes,https://example.com/b,90,9,10
trail shoes,https://example.com/c,40,15,
red shoes,https://example.com/only-ranking,500,6,
tiny shoes,https://example.com/a,0-10,8,
`

// CrawlCSV is a Screaming Frog-style crawl export matching RankingCSV.
const CrawlCSV = `Address,Indexability,Title 1,H1-1,Copy 1
https://example.com/a,Indexable,Shoes For Running,Our Shoes,buy best running shoes here
https://example.com/b,Indexable,Cheap Shoes,Cheap Shoes,we sell cheap shoes
https://example.com/c,Non-Indexable,Trail,Trail,trail shoes
https://example.com/only-crawl,Indexable,Other,Other,other
`

// DuplicateCrawlCSV lists the same page twice under different spellings.
const DuplicateCrawlCSV = `Address,Title 1,H1-1,Copy 1
https://example.com/a,A,A,a
http://EXAMPLE.com/a/,A again,A,a
`

// TestDB creates a temporary cache database that is automatically closed.
func TestDB(t *testing.T) *cachestore.DB {
	t.Helper()
	db, err := cachestore.Open(filepath.Join(t.TempDir(), "strikezone-test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// WriteFile writes content to name inside dir and returns the full path.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// Exports writes RankingCSV and CrawlCSV into a temp dir and returns both
// paths.
func Exports(t *testing.T) (ranking, crawl string) {
	t.Helper()
	dir := t.TempDir()
	return WriteFile(t, dir, "ranking.csv", RankingCSV), WriteFile(t, dir, "crawl.csv", CrawlCSV)
}
