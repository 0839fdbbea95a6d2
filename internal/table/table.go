// Package table reads tabular exports (CSV or TSV, any common encoding)
// into a header row plus string cells.
package table

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/html/charset"
)

// maxInputBytes bounds a single export held in memory.
const maxInputBytes = 256 << 20

// Table is a decoded export. Every row has exactly len(Headers) cells.
type Table struct {
	Name    string
	Headers []string
	Rows    [][]string
}

// Len returns the number of data rows.
func (t *Table) Len() int { return len(t.Rows) }

// ReadFile reads the export at path. The table is named after the file.
func ReadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("table: open %s: %w", path, err)
	}
	defer f.Close()
	return Read(f, filepath.Base(path))
}

// Read decodes r into a Table. The encoding is detected from a byte order
// mark or UTF-8 validity, and the delimiter from the header line.
func Read(r io.Reader, name string) (*Table, error) {
	raw, err := io.ReadAll(io.LimitReader(r, maxInputBytes+1))
	if err != nil {
		return nil, fmt.Errorf("table: read %s: %w", name, err)
	}
	if len(raw) > maxInputBytes {
		return nil, fmt.Errorf("table: %s exceeds %d bytes", name, maxInputBytes)
	}

	data, err := toUTF8(raw)
	if err != nil {
		return nil, fmt.Errorf("table: decode %s: %w", name, err)
	}

	cr := csv.NewReader(bytes.NewReader(data))
	cr.Comma = sniffDelimiter(data)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("table: %s: no header row", name)
	}
	if err != nil {
		return nil, fmt.Errorf("table: parse %s header: %w", name, err)
	}

	t := &Table{Name: name, Headers: make([]string, len(header))}
	for i, h := range header {
		t.Headers[i] = strings.TrimSpace(h)
	}

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("table: parse %s: %w", name, err)
		}
		if blank(rec) {
			continue
		}
		t.Rows = append(t.Rows, fit(rec, len(t.Headers)))
	}
	return t, nil
}

// toUTF8 converts raw export bytes to UTF-8 and strips a leading BOM.
// Ahrefs writes UTF-16LE, most other tools UTF-8 or Windows-1252.
func toUTF8(raw []byte) ([]byte, error) {
	enc, _, _ := charset.DetermineEncoding(raw, "text/csv")
	out, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return nil, err
	}
	return bytes.TrimPrefix(out, []byte("\ufeff")), nil
}

func sniffDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	best, bestCount := ',', 0
	for _, d := range []rune{'\t', ',', ';'} {
		if n := countOutsideQuotes(line, byte(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

func countOutsideQuotes(line []byte, sep byte) int {
	n, quoted := 0, false
	for _, b := range line {
		switch {
		case b == '"':
			quoted = !quoted
		case b == sep && !quoted:
			n++
		}
	}
	return n
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func fit(rec []string, width int) []string {
	if len(rec) == width {
		return rec
	}
	out := make([]string, width)
	copy(out, rec)
	return out
}
