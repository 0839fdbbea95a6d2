// Package enrich attaches keyword metrics from an external provider to
// opportunity rows. Keywords are deduplicated, checked against a run-scoped
// cache and sent in bounded batches.
package enrich

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/starford/strikezone/internal/models"
)

// NormalizeKeyword is the cache key for a keyword: trimmed, inner
// whitespace collapsed and lower-cased.
func NormalizeKeyword(kw string) string {
	return strings.ToLower(strings.Join(strings.Fields(kw), " "))
}

// Cache holds the metrics known during one analysis run. It is safe for
// concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]models.KeywordMetrics
	fetched map[string]struct{}
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{
		entries: make(map[string]models.KeywordMetrics),
		fetched: make(map[string]struct{}),
	}
}

// Get returns the metrics cached for kw.
func (c *Cache) Get(kw string) (models.KeywordMetrics, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.entries[NormalizeKeyword(kw)]
	return m, ok
}

// Put stores metrics fetched during this run.
func (c *Cache) Put(m models.KeywordMetrics) {
	m.Keyword = NormalizeKeyword(m.Keyword)
	if m.Keyword == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[m.Keyword] = m
	c.fetched[m.Keyword] = struct{}{}
}

// Seed loads previously persisted metrics. Seeded entries are not reported
// by Fetched.
func (c *Cache) Seed(ms []models.KeywordMetrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range ms {
		m.Keyword = NormalizeKeyword(m.Keyword)
		if m.Keyword == "" {
			continue
		}
		c.entries[m.Keyword] = m
	}
}

// Len returns the number of cached keywords.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Fetched returns the entries added by Put, sorted by keyword.
func (c *Cache) Fetched() []models.KeywordMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.KeywordMetrics, 0, len(c.fetched))
	for kw := range c.fetched {
		out = append(out, c.entries[kw])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Keyword < out[j].Keyword })
	return out
}

// Store persists metrics between runs.
type Store interface {
	LoadFresh(ctx context.Context, since time.Time) ([]models.KeywordMetrics, error)
	Save(ctx context.Context, ms []models.KeywordMetrics) error
}
