package enrich

import "github.com/starford/strikezone/internal/models"

// Missing returns the normalized keywords of rows that lack a difficulty or
// CPC, deduplicated in first-seen order.
func Missing(rows []models.OpportunityRow) []string {
	seen := make(map[string]struct{}, len(rows))
	var out []string
	for _, r := range rows {
		if r.Difficulty != nil && r.CPC != nil {
			continue
		}
		kw := NormalizeKeyword(r.Keyword)
		if _, ok := seen[kw]; ok || kw == "" {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	return out
}

// Apply returns a copy of rows with absent difficulty and CPC filled from
// the cache. With overrideVolume set, a cached volume replaces the export's.
// Rows whose keyword is not cached are returned unchanged.
func Apply(rows []models.OpportunityRow, cache *Cache, overrideVolume bool) []models.OpportunityRow {
	out := make([]models.OpportunityRow, len(rows))
	copy(out, rows)
	if cache == nil {
		return out
	}
	for i := range out {
		m, ok := cache.Get(out[i].Keyword)
		if !ok {
			continue
		}
		if out[i].Difficulty == nil && m.Difficulty != nil {
			d := *m.Difficulty
			out[i].Difficulty = &d
		}
		if out[i].CPC == nil && m.CPC != nil {
			c := *m.CPC
			out[i].CPC = &c
		}
		if overrideVolume && m.Volume != nil {
			out[i].Volume = *m.Volume
		}
		if out[i].Competition == "" {
			out[i].Competition = m.CompetitionLevel
		}
	}
	return out
}
