package mcpserver

import (
	"strings"

	"github.com/starford/strikezone/internal/schema"
)

const inputFormatIntro = `# strikezone Input Format

An analysis joins two exports of the same site.

- **Ranking export** (Ahrefs, SEMrush, Search Console): one row per keyword a
  URL ranks for.
- **Crawl export** (Screaming Frog): one row per crawled URL with its title,
  first H1 and body copy.

## Files

1. CSV or TSV; the delimiter is detected from the header line.
2. UTF-8, UTF-8 with BOM and UTF-16 (Ahrefs default) are accepted.
3. The first line is the header. Headers are matched case-insensitively and
   the first alias present wins.
4. Volume accepts thousands separators and ranges such as ` + "`0-10`" + `
   (the lower bound is used). Rows with an empty URL or keyword, or an
   unparseable volume or position, are skipped and counted.
5. Two crawl rows that normalize to the same URL abort the run.
6. HTML markup in the copy column is reduced to its text.

## Columns
`

// InputFormat returns the input contract with the current alias table.
func InputFormat() string {
	var b strings.Builder
	b.WriteString(inputFormatIntro)
	section := func(title string, required []schema.Field, optional []schema.Field) {
		b.WriteString("\n### " + title + "\n\n")
		for _, f := range required {
			b.WriteString("- `" + string(f) + "` (required): " + quoted(schema.Aliases[f]) + "\n")
		}
		for _, f := range optional {
			b.WriteString("- `" + string(f) + "`: " + quoted(schema.Aliases[f]) + "\n")
		}
	}
	section("Ranking export", schema.RankingRequired, []schema.Field{schema.FieldDifficulty, schema.FieldCPC})
	section("Crawl export", schema.CrawlRequired, []schema.Field{schema.FieldIndexable})
	return b.String()
}

func quoted(aliases []string) string {
	q := make([]string, len(aliases))
	for i, a := range aliases {
		q[i] = `"` + a + `"`
	}
	return strings.Join(q, ", ")
}
