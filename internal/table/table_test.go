package table

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf16"
)

func TestRead_CommaSeparated(t *testing.T) {
	in := "URL, Keyword ,Volume,Position\n/a,best shoes,120,7\n/b,\"red, shoes\",30,12\n"
	tbl, err := Read(strings.NewReader(in), "ranking.csv")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got := strings.Join(tbl.Headers, "|"); got != "URL|Keyword|Volume|Position" {
		t.Errorf("headers = %q", got)
	}
	if tbl.Len() != 2 {
		t.Fatalf("rows = %d, want 2", tbl.Len())
	}
	if tbl.Rows[1][1] != "red, shoes" {
		t.Errorf("quoted cell = %q", tbl.Rows[1][1])
	}
}

func TestRead_TabSeparatedUTF16(t *testing.T) {
	text := "Keyword\tCurrent URL\tVolume\tCurrent position\nbest shoes\thttps://example.com/a\t0-10\t5\n"
	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xFE})
	for _, u := range utf16.Encode([]rune(text)) {
		_ = binary.Write(&buf, binary.LittleEndian, u)
	}

	tbl, err := Read(&buf, "ahrefs.csv")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(tbl.Headers) != 4 || tbl.Headers[0] != "Keyword" {
		t.Fatalf("headers = %q", tbl.Headers)
	}
	if tbl.Rows[0][2] != "0-10" {
		t.Errorf("volume cell = %q", tbl.Rows[0][2])
	}
}

func TestRead_StripsUTF8BOM(t *testing.T) {
	tbl, err := Read(strings.NewReader("\ufeffAddress;Title 1\nhttps://x.io/;Home\n"), "crawl.csv")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if tbl.Headers[0] != "Address" {
		t.Errorf("first header = %q, want Address", tbl.Headers[0])
	}
	if tbl.Rows[0][1] != "Home" {
		t.Errorf("semicolon split failed: %q", tbl.Rows[0])
	}
}

func TestRead_PadsShortRowsAndSkipsBlank(t *testing.T) {
	tbl, err := Read(strings.NewReader("a,b,c\n1\n,,\n4,5,6\n"), "t.csv")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if tbl.Len() != 2 {
		t.Fatalf("rows = %d, want 2", tbl.Len())
	}
	if len(tbl.Rows[0]) != 3 || tbl.Rows[0][2] != "" {
		t.Errorf("short row not padded: %q", tbl.Rows[0])
	}
}

func TestRead_Empty(t *testing.T) {
	_, err := Read(strings.NewReader(""), "empty.csv")
	if err == nil || !strings.Contains(err.Error(), "empty.csv") {
		t.Fatalf("expected error naming file, got %v", err)
	}
}

func TestReadFile_NamesTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crawl.csv")
	if err := os.WriteFile(path, []byte("Address\nhttps://x.io/\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	tbl, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if tbl.Name != "crawl.csv" {
		t.Errorf("name = %q, want crawl.csv", tbl.Name)
	}
}
