package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/starford/strikezone/internal/aggregate"
	"github.com/starford/strikezone/internal/models"
)

var rowsHeader = []string{
	"URL", "Keyword", "Volume", "Position",
	"In Title", "In H1", "In Copy",
	"Difficulty", "CPC", "Competition",
}

// WriteRowsCSV writes one line per opportunity row.
func WriteRowsCSV(w io.Writer, rows []models.OpportunityRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(rowsHeader); err != nil {
		return fmt.Errorf("report: write csv: %w", err)
	}
	for _, r := range rows {
		rec := []string{
			r.URL,
			r.Keyword,
			strconv.Itoa(r.Volume),
			formatFloat(&r.Position),
			strconv.FormatBool(r.InTitle),
			strconv.FormatBool(r.InHeading),
			strconv.FormatBool(r.InCopy),
			formatFloat(r.Difficulty),
			formatFloat(r.CPC),
			r.Competition,
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("report: write csv: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// PagesHeader returns the wide export header for top keyword groups.
func PagesHeader(top int) []string {
	h := []string{"URL", "Striking Dist. Vol", "KWs in Striking Dist.", "Avg Difficulty"}
	for i := 1; i <= top; i++ {
		kw := "KW" + strconv.Itoa(i)
		h = append(h, kw, kw+" Vol", kw+" Difficulty", kw+" in Title", kw+" in H1", kw+" in Copy")
	}
	return h
}

// WritePagesCSV writes one line per page with its top keywords spread
// across KW1..KWn column groups. Pages with fewer keywords leave the
// remaining groups empty.
func WritePagesCSV(w io.Writer, pages []models.PageSummary, top int) error {
	header := PagesHeader(top)
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("report: write csv: %w", err)
	}
	for _, p := range pages {
		rec := make([]string, 0, len(header))
		rec = append(rec,
			p.URL,
			strconv.Itoa(p.StrikingDistanceVolume),
			strconv.Itoa(p.KeywordCount),
			formatFloat(p.AvgDifficulty),
		)
		kws := aggregate.TopKeywords(p, top)
		for i := range top {
			if i >= len(kws) {
				rec = append(rec, "", "", "", "", "", "")
				continue
			}
			r := kws[i]
			rec = append(rec,
				r.Keyword,
				strconv.Itoa(r.Volume),
				formatFloat(r.Difficulty),
				strconv.FormatBool(r.InTitle),
				strconv.FormatBool(r.InHeading),
				strconv.FormatBool(r.InCopy),
			)
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("report: write csv: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}
