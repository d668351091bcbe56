package writer

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/atlascrawl/atlas/internal/model"
)

func fixedTime(offsetSeconds int) time.Time {
	return time.Date(2026, 1, 1, 0, 0, offsetSeconds, 0, time.UTC)
}

func readPart(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	defer dec.Close()

	var lines []string
	scanner := bufio.NewScanner(dec)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines
}

func TestPageWriterSortsByNormalizedURL(t *testing.T) {
	dir := t.TempDir()
	w, err := NewPageWriter(dir)
	if err != nil {
		t.Fatal(err)
	}

	urls := []string{"https://example.com/c", "https://example.com/a", "https://example.com/b"}
	for i, u := range urls {
		err := w.Write(model.PageRecord{
			PageID:        "p" + u[len(u)-1:],
			URL:           u,
			NormalizedURL: u,
			Status:        200,
			CapturedAt:    fixedTime(i),
		})
		if err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	meta, err := w.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	if meta.RecordCount != 3 {
		t.Fatalf("record count = %d, want 3", meta.RecordCount)
	}
	if len(meta.Parts) != 1 {
		t.Fatalf("parts = %d, want 1", len(meta.Parts))
	}

	lines := readPart(t, filepath.Join(dir, meta.Parts[0].Path))
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3", len(lines))
	}
	for i, want := range []string{"/a", "/b", "/c"} {
		if !contains(lines[i], want) {
			t.Errorf("line %d = %q, expected to contain %q", i, lines[i], want)
		}
	}
}

func TestPageWriterRejectsInvalidRecord(t *testing.T) {
	dir := t.TempDir()
	w, err := NewPageWriter(dir)
	if err != nil {
		t.Fatal(err)
	}
	err = w.Write(model.PageRecord{}) // missing required page_id, url, etc.
	if err == nil {
		t.Error("expected schema validation to reject an empty record")
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
