// Package schema maps the column names used by different export tools onto
// the canonical ranking and crawl records.
package schema

import (
	"strings"

	"github.com/starford/strikezone/internal/apperr"
)

// Field is a logical column of the canonical schema.
type Field string

const (
	FieldURL        Field = "url"
	FieldKeyword    Field = "keyword"
	FieldVolume     Field = "volume"
	FieldPosition   Field = "position"
	FieldDifficulty Field = "difficulty"
	FieldCPC        Field = "cpc"
	FieldTitle      Field = "title"
	FieldHeading    Field = "heading"
	FieldCopy       Field = "copy"
	FieldIndexable  Field = "indexable"
)

// Aliases lists, per field, the literal header names accepted for it in
// priority order. When a table carries several aliases of one field the
// earliest alias in this list wins.
var Aliases = map[Field][]string{
	FieldURL:        {"URL", "Current URL", "Address", "Page URL", "Landing Page", "Page"},
	FieldKeyword:    {"Keyword", "Query", "Search Term", "Top queries"},
	FieldVolume:     {"Volume", "Search Volume", "Avg. monthly searches", "Search volume"},
	FieldPosition:   {"Position", "Current position", "Rank", "Average Position"},
	FieldDifficulty: {"KD", "Keyword Difficulty", "Difficulty", "KD %"},
	FieldCPC:        {"CPC", "CPC (USD)", "Cost per click"},
	FieldTitle:      {"Title", "Title 1", "Page Title", "Meta Title"},
	FieldHeading:    {"H1", "H1-1", "Heading", "H1 1"},
	FieldCopy:       {"Copy", "Copy 1", "Body", "Body Text", "Content", "Extractor 1 1"},
	FieldIndexable:  {"Indexability", "Indexable", "Index Status"},
}

// Required fields per export kind. Difficulty, CPC and indexability are
// optional and resolve to absent/unknown when missing.
var (
	RankingRequired = []Field{FieldURL, FieldKeyword, FieldVolume, FieldPosition}
	CrawlRequired   = []Field{FieldURL, FieldTitle, FieldHeading, FieldCopy}
)

// Mapping holds the resolved column index of each field; -1 means absent.
type Mapping map[Field]int

// Has reports whether the field resolved to a column.
func (m Mapping) Has(f Field) bool {
	i, ok := m[f]
	return ok && i >= 0
}

// Value returns the trimmed cell for f, or "" when the field is absent.
func (m Mapping) Value(row []string, f Field) string {
	i, ok := m[f]
	if !ok || i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// Resolve returns the index of the header that matches f, comparing
// case-insensitively after trimming whitespace.
func Resolve(headers []string, f Field) (int, bool) {
	for _, alias := range Aliases[f] {
		for i, h := range headers {
			if strings.EqualFold(strings.TrimSpace(h), alias) {
				return i, true
			}
		}
	}
	return -1, false
}

// Map resolves every field in required and optional against headers.
// The first required field without a matching header yields a SchemaError
// naming source.
func Map(source string, headers []string, required, optional []Field) (Mapping, error) {
	m := make(Mapping, len(required)+len(optional))
	for _, f := range required {
		i, ok := Resolve(headers, f)
		if !ok {
			return nil, &apperr.SchemaError{Source: source, Field: string(f), Headers: headers}
		}
		m[f] = i
	}
	for _, f := range optional {
		i, _ := Resolve(headers, f)
		m[f] = i
	}
	return m, nil
}
