package schema

import (
	"errors"
	"testing"

	"github.com/starford/strikezone/internal/apperr"
	"github.com/starford/strikezone/internal/models"
	"github.com/starford/strikezone/internal/table"
)

func TestResolve_AliasPriority(t *testing.T) {
	headers := []string{"Address", " current url ", "Title 1"}
	i, ok := Resolve(headers, FieldURL)
	if !ok {
		t.Fatal("url not resolved")
	}
	// "Current URL" precedes "Address" in the alias list.
	if i != 1 {
		t.Errorf("index = %d, want 1", i)
	}
}

func TestResolve_Deterministic(t *testing.T) {
	headers := []string{"KD", "Keyword Difficulty", "Keyword"}
	for n := 0; n < 10; n++ {
		if i, _ := Resolve(headers, FieldDifficulty); i != 0 {
			t.Fatalf("iteration %d: index = %d, want 0", n, i)
		}
	}
}

func TestMap_MissingRequired(t *testing.T) {
	_, err := Map("ranking.csv", []string{"URL", "Keyword", "Position"}, RankingRequired, nil)
	if !errors.Is(err, apperr.ErrSchema) {
		t.Fatalf("err = %v, want ErrSchema", err)
	}
	var se *apperr.SchemaError
	if !errors.As(err, &se) {
		t.Fatal("expected *SchemaError")
	}
	if se.Field != "volume" || se.Source != "ranking.csv" {
		t.Errorf("error = %+v", se)
	}
}

func TestMap_OptionalAbsent(t *testing.T) {
	m, err := Map("crawl.csv", []string{"Address", "Title 1", "H1-1", "Copy 1"}, CrawlRequired, []Field{FieldIndexable})
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if m.Has(FieldIndexable) {
		t.Error("indexable should be absent")
	}
	if got := m.Value([]string{"a", "b", "c", "d"}, FieldIndexable); got != "" {
		t.Errorf("absent value = %q", got)
	}
}

func TestParseRankings(t *testing.T) {
	tbl := &table.Table{
		Name:    "ahrefs.csv",
		Headers: []string{"Keyword", "Current URL", "Search Volume", "Current position", "KD"},
		Rows: [][]string{
			{"best  shoes", "https://example.com/a", "1,200", "7", "31"},
			{"cheap shoes", "https://example.com/a", "0-10", "12.5", ""},
			{"", "https://example.com/a", "10", "4", ""},
			{"red shoes", "https://example.com/b", "n/a", "4", ""},
			{"blue shoes", "https://example.com/b", "40", "0", ""},
		},
	}
	recs, stats, err := ParseRankings(tbl)
	if err != nil {
		t.Fatalf("ParseRankings: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("records = %d, want 2", len(recs))
	}
	if recs[0].Keyword != "best shoes" || recs[0].Volume != 1200 || recs[0].Position != 7 {
		t.Errorf("first record = %+v", recs[0])
	}
	if recs[0].Difficulty == nil || *recs[0].Difficulty != 31 {
		t.Errorf("difficulty = %v, want 31", recs[0].Difficulty)
	}
	if recs[1].Volume != 0 || recs[1].Difficulty != nil {
		t.Errorf("second record = %+v", recs[1])
	}
	if recs[1].Row != 2 {
		t.Errorf("row = %d, want 2", recs[1].Row)
	}
	if stats.Rows != 5 || stats.Skipped != 3 {
		t.Errorf("stats = %+v", stats)
	}
	if got := stats.SkipReasons["invalid position"]; got != 1 {
		t.Errorf("invalid position skips = %d, want 1", got)
	}
}

func TestParseCrawl(t *testing.T) {
	tbl := &table.Table{
		Name:    "crawl.csv",
		Headers: []string{"Address", "Indexability", "Title 1", "H1-1", "Copy 1"},
		Rows: [][]string{
			{"https://example.com/a", "Indexable", "Shoes  For\tRunning", "Our Shoes", "<p>buy <b>best</b> shoes</p><script>x()</script>"},
			{"https://example.com/b", "Non-Indexable", "", "", ""},
			{"", "Indexable", "x", "y", "z"},
		},
	}
	recs, stats, err := ParseCrawl(tbl)
	if err != nil {
		t.Fatalf("ParseCrawl: %v", err)
	}
	if len(recs) != 2 || stats.Skipped != 1 {
		t.Fatalf("records = %d skipped = %d", len(recs), stats.Skipped)
	}
	if recs[0].Title != "Shoes For Running" {
		t.Errorf("title = %q", recs[0].Title)
	}
	if recs[0].Copy != "buy best shoes" {
		t.Errorf("copy = %q, want %q", recs[0].Copy, "buy best shoes")
	}
	if recs[0].Indexable != models.Indexable || recs[1].Indexable != models.NonIndexable {
		t.Errorf("indexability = %v, %v", recs[0].Indexable, recs[1].Indexable)
	}
}

func TestParseCrawl_MissingHeading(t *testing.T) {
	tbl := &table.Table{Name: "crawl.csv", Headers: []string{"Address", "Title 1", "Copy 1"}}
	_, _, err := ParseCrawl(tbl)
	var se *apperr.SchemaError
	if !errors.As(err, &se) || se.Field != "heading" {
		t.Fatalf("err = %v, want missing heading", err)
	}
}

func TestParseVolume(t *testing.T) {
	cases := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"120", 120, false},
		{"1,500", 1500, false},
		{"0-10", 0, false},
		{"10-100", 10, false},
		{"", 0, true},
		{"-5", 0, true},
		{"abc", 0, true},
		{"NaN", 0, true},
		{"Inf", 0, true},
		{"1e30", 0, true},
		{"2147483648", 0, true},
		{"2147483647", 2147483647, false},
	}
	for _, tc := range cases {
		got, err := ParseVolume(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseVolume(%q) err = %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseVolume(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestParsePosition(t *testing.T) {
	cases := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"7", 7, false},
		{"5.5", 5.5, false},
		{"5,5", 5.5, false},
		{"0", 0, true},
		{"-3", 0, true},
		{"NaN", 0, true},
		{"nan", 0, true},
		{"+Inf", 0, true},
		{"", 0, true},
	}
	for _, tc := range cases {
		got, err := ParsePosition(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParsePosition(%q) err = %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParsePosition(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestParseRankings_SkipsNonFiniteNumbers(t *testing.T) {
	tbl := &table.Table{
		Name:    "ranking.csv",
		Headers: []string{"Keyword", "Current URL", "Volume", "Current position", "KD"},
		Rows: [][]string{
			{"best shoes", "https://example.com/a", "120", "NaN", ""},
			{"red shoes", "https://example.com/a", "NaN", "7", ""},
			{"blue shoes", "https://example.com/a", "1e30", "7", ""},
			{"green shoes", "https://example.com/a", "80", "6", "NaN"},
		},
	}
	recs, stats, err := ParseRankings(tbl)
	if err != nil {
		t.Fatalf("ParseRankings: %v", err)
	}
	if len(recs) != 1 || recs[0].Keyword != "green shoes" {
		t.Fatalf("records = %+v, want only green shoes", recs)
	}
	if recs[0].Difficulty != nil {
		t.Errorf("difficulty = %v, want nil", *recs[0].Difficulty)
	}
	if stats.Skipped != 3 || stats.SkipReasons["invalid position"] != 1 || stats.SkipReasons["invalid volume"] != 2 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestPlainText(t *testing.T) {
	cases := map[string]string{
		"  plain   text ":                     "plain text",
		"<div>Hello <em>World</em></div>":     "Hello World",
		"a < b and c > d":                     "a < b and c > d",
		"<style>p{}</style><p>kept</p>":       "kept",
		"":                                    "",
	}
	for in, want := range cases {
		if got := PlainText(in); got != want {
			t.Errorf("PlainText(%q) = %q, want %q", in, got, want)
		}
	}
}
