// Package report renders analysis results as CSV, NDJSON, JSON or a
// terminal table.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/starford/strikezone/internal/aggregate"
	"github.com/starford/strikezone/internal/models"
	"github.com/starford/strikezone/internal/pipeline"
)

// DefaultTop is the number of keyword column groups in the wide pages export.
const DefaultTop = 5

// Format names an output encoding.
type Format string

const (
	FormatTable    Format = "table"
	FormatRowsCSV  Format = "rows-csv"
	FormatPagesCSV Format = "pages-csv"
	FormatNDJSON   Format = "ndjson"
	FormatJSON     Format = "json"
)

// ParseFormat accepts both CLI spellings ("rows-csv") and API spellings
// ("rows.csv").
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), ".", "-"))
	switch f {
	case FormatTable, FormatRowsCSV, FormatPagesCSV, FormatNDJSON, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("report: unknown format %q", s)
	}
}

// ContentType returns the MIME type served for f.
func (f Format) ContentType() string {
	switch f {
	case FormatRowsCSV, FormatPagesCSV:
		return "text/csv; charset=utf-8"
	case FormatNDJSON:
		return "application/x-ndjson"
	case FormatJSON:
		return "application/json"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Options narrows what a report shows.
type Options struct {
	View   aggregate.View
	Volume aggregate.VolumeRange
	Top    int
}

func (o Options) top() int {
	if o.Top <= 0 {
		return DefaultTop
	}
	return o.Top
}

// Render writes res to w in format f.
func Render(w io.Writer, f Format, res *pipeline.Result, opts Options) error {
	pages := aggregate.Select(res.Pages, opts.View, opts.Volume)
	switch f {
	case FormatRowsCSV:
		return WriteRowsCSV(w, aggregate.Flatten(pages))
	case FormatPagesCSV:
		return WritePagesCSV(w, pages, opts.top())
	case FormatNDJSON:
		return WriteNDJSON(w, aggregate.Flatten(pages))
	case FormatJSON:
		return WriteJSON(w, Narrow(res, pages))
	case FormatTable:
		return WriteTable(w, res, pages, opts.top())
	default:
		return fmt.Errorf("report: unknown format %q", f)
	}
}

// Narrow returns a shallow copy of res restricted to pages, with totals
// recomputed.
func Narrow(res *pipeline.Result, pages []models.PageSummary) *pipeline.Result {
	out := *res
	if pages == nil {
		pages = []models.PageSummary{}
	}
	out.Pages = pages
	out.Rows = aggregate.Flatten(pages)
	out.Totals = aggregate.Summarize(pages)
	return &out
}

// WriteNDJSON writes one opportunity row per line.
func WriteNDJSON(w io.Writer, rows []models.OpportunityRow) error {
	enc := json.NewEncoder(w)
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("report: write ndjson: %w", err)
		}
	}
	return nil
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("report: write json: %w", err)
	}
	return nil
}
