// Package checkpoint implements the resume subsystem (§4.8): periodic,
// atomic snapshots of frontier and writer state that let a crawl resume
// after an interruption without re-crawling or duplicating already-written
// records. It generalizes the teacher's models.Checkpoint, whose
// SaveToFile wrote directly to the destination path, into the
// write-temp-then-rename pattern used elsewhere in the archive (manifest,
// blob store) so a crash mid-save can never leave a corrupt checkpoint.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/atlascrawl/atlas/internal/model"
)

// Filename returns the checkpoint file name for a crawl ID.
func Filename(crawlID string) string {
	return fmt.Sprintf("checkpoint_%s.json", crawlID)
}

// Save atomically writes snap to <dir>/checkpoint_<crawl_id>.json.
func Save(dir string, snap model.CheckpointSnapshot) error {
	snap.SavedAt = time.Now()

	path := filepath.Join(dir, Filename(snap.CrawlID))
	tmp := path + ".tmp"

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("checkpoint: marshal: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("checkpoint: write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("checkpoint: rename into place: %w", err)
	}
	return nil
}

// Load reads a checkpoint for crawlID from dir. It returns os.ErrNotExist
// (wrapped) if no checkpoint has been saved yet.
func Load(dir, crawlID string) (model.CheckpointSnapshot, error) {
	path := filepath.Join(dir, Filename(crawlID))
	data, err := os.ReadFile(path)
	if err != nil {
		return model.CheckpointSnapshot{}, err
	}
	var snap model.CheckpointSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return model.CheckpointSnapshot{}, fmt.Errorf("checkpoint: decode %s: %w", path, err)
	}
	return snap, nil
}

// Exists reports whether a checkpoint file is present for crawlID.
func Exists(dir, crawlID string) bool {
	_, err := os.Stat(filepath.Join(dir, Filename(crawlID)))
	return err == nil
}

// Remove deletes a crawl's checkpoint file once it has finished cleanly.
func Remove(dir, crawlID string) error {
	err := os.Remove(filepath.Join(dir, Filename(crawlID)))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("checkpoint: remove: %w", err)
	}
	return nil
}
