package checkpoint

import (
	"os"
	"testing"

	"github.com/atlascrawl/atlas/internal/model"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	snap := model.CheckpointSnapshot{
		CrawlID: "crawl-1",
		FrontierTasks: []model.URLTask{
			{URL: "https://example.com/", Normalized: "https://example.com/", Depth: 0},
		},
		VisitedDigests:  []string{"https://example.com/"},
		PartSequences:   map[string]int{"pages": 2, "edges": 1},
		PreviousPageIDs: map[string]string{"https://example.com/": "page-1"},
	}

	if err := Save(dir, snap); err != nil {
		t.Fatal(err)
	}
	if !Exists(dir, "crawl-1") {
		t.Fatal("expected checkpoint to exist after save")
	}

	loaded, err := Load(dir, "crawl-1")
	if err != nil {
		t.Fatal(err)
	}
	if loaded.CrawlID != snap.CrawlID {
		t.Errorf("crawl id = %q, want %q", loaded.CrawlID, snap.CrawlID)
	}
	if len(loaded.FrontierTasks) != 1 || loaded.FrontierTasks[0].URL != snap.FrontierTasks[0].URL {
		t.Errorf("frontier tasks did not round-trip: %+v", loaded.FrontierTasks)
	}
	if loaded.PartSequences["pages"] != 2 || loaded.PartSequences["edges"] != 1 {
		t.Errorf("part sequences did not round-trip: %+v", loaded.PartSequences)
	}
	if loaded.SavedAt.IsZero() {
		t.Error("expected SavedAt to be stamped on save")
	}
}

func TestLoadMissingReturnsNotExist(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(dir, "nonexistent")
	if err == nil {
		t.Fatal("expected an error loading a missing checkpoint")
	}
	if !os.IsNotExist(err) {
		t.Errorf("expected a not-exist error, got %v", err)
	}
}

func TestExistsFalseBeforeSave(t *testing.T) {
	dir := t.TempDir()
	if Exists(dir, "crawl-2") {
		t.Error("expected Exists to be false before any save")
	}
}

func TestRemoveDeletesCheckpoint(t *testing.T) {
	dir := t.TempDir()
	snap := model.CheckpointSnapshot{CrawlID: "crawl-3"}
	if err := Save(dir, snap); err != nil {
		t.Fatal(err)
	}
	if err := Remove(dir, "crawl-3"); err != nil {
		t.Fatal(err)
	}
	if Exists(dir, "crawl-3") {
		t.Error("expected checkpoint to be gone after remove")
	}
}

func TestRemoveMissingIsNoop(t *testing.T) {
	dir := t.TempDir()
	if err := Remove(dir, "never-existed"); err != nil {
		t.Errorf("expected removing a missing checkpoint to be a no-op, got %v", err)
	}
}
