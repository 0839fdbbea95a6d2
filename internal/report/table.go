package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/starford/strikezone/internal/aggregate"
	"github.com/starford/strikezone/internal/models"
	"github.com/starford/strikezone/internal/pipeline"
)

// WriteTable renders pages for a terminal, followed by totals and the
// enrichment outcome.
func WriteTable(w io.Writer, res *pipeline.Result, pages []models.PageSummary, top int) error {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"URL", "Volume", "Keywords", "Avg KD", "Top keywords"})
	for _, p := range pages {
		tw.AppendRow(table.Row{
			p.URL,
			p.StrikingDistanceVolume,
			p.KeywordCount,
			formatFloat(p.AvgDifficulty),
			keywordCell(aggregate.TopKeywords(p, top)),
		})
	}
	t := aggregate.Summarize(pages)
	tw.AppendFooter(table.Row{"Total", t.Volume, t.Keywords, formatFloat(t.AvgDifficulty), ""})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 3, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 4, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	tw.Render()

	if _, err := fmt.Fprintf(w, "%d pages, %.1f keywords per page, missing from title/H1/copy: %d/%d/%d\n",
		t.Pages, t.AvgKeywordsPerPage, t.MissingFromTitle, t.MissingFromHeading, t.MissingFromCopy); err != nil {
		return err
	}
	if e := res.Enrichment; e != nil {
		if _, err := fmt.Fprintf(w, "enrichment %s: %d requested, %d cached, %d fetched, %d failed batches\n",
			e.State, e.RequestedCount, e.CachedCount, e.FetchedCount, len(e.FailedBatches)); err != nil {
			return err
		}
	}
	return nil
}

// keywordCell lists keywords one per line as "keyword (volume) THC", with
// a dash for each element that misses the keyword.
func keywordCell(rows []models.OpportunityRow) string {
	lines := make([]string, len(rows))
	for i, r := range rows {
		lines[i] = r.Keyword + " (" + strconv.Itoa(r.Volume) + ") " + flags(r)
	}
	return strings.Join(lines, "\n")
}

func flags(r models.OpportunityRow) string {
	b := []byte("---")
	if r.InTitle {
		b[0] = 'T'
	}
	if r.InHeading {
		b[1] = 'H'
	}
	if r.InCopy {
		b[2] = 'C'
	}
	return string(b)
}
