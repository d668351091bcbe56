// Package manifest assembles the archive's top-level self-description
// (§3 Manifest, Capability set, Provenance record) and writes it atomically.
// It is grounded on HelgeSverre-crawldocs's CrawlManifest/CrawlStatistics —
// its save-to-temp-then-rename idiom and its statistics rollup — adapted
// from a single crawl-progress file into Atlas's capability-aware manifest.
package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/atlascrawl/atlas/internal/model"
)

// Builder accumulates dataset metadata and statistics as the crawl runs and
// produces the final Manifest at Finalize time.
type Builder struct {
	mu sync.Mutex

	provenance  model.ProvenanceRecord
	datasets    map[string]model.DatasetMetadata
	stats       model.SchedulerStats
	notes       []model.ManifestNote
	renderMode  string
	replayTier  string
	blobs       *model.BlobStats
}

// NewBuilder starts a manifest for crawlID, recording the seeds and the
// tool version used.
func NewBuilder(crawlID, toolVersion string, seeds []string) *Builder {
	hostname, _ := os.Hostname()
	return &Builder{
		provenance: model.ProvenanceRecord{
			CrawlID:     crawlID,
			ToolVersion: toolVersion,
			StartedAt:   time.Now(),
			Seeds:       seeds,
			HostName:    hostname,
		},
		datasets: make(map[string]model.DatasetMetadata),
	}
}

// SetConfigDigest records a hash of the resolved configuration, so two
// archives produced with identical settings can be compared (§3 Provenance).
func (b *Builder) SetConfigDigest(digest string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.provenance.ConfigDigest = digest
}

// SetCrawlProfile records the render mode and replay tier the crawl ran
// with, so Finalize can derive the capability set from configuration rather
// than from which datasets merely exist (§3 Capability set, §4.7).
func (b *Builder) SetCrawlProfile(renderMode, replayTier string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.renderMode = renderMode
	b.replayTier = replayTier
}

// SetBlobStats records the content-addressed blob store's summary, rolled
// into the manifest's blob_store block (§4.6.4).
func (b *Builder) SetBlobStats(stats model.BlobStats) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blobs = &stats
}

// AddNote attaches a structured warning (schema mismatch, truncated resume,
// and the like) that a reader of the archive should see up front.
func (b *Builder) AddNote(note model.ManifestNote) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notes = append(b.notes, note)
}

// SetDataset records (or replaces) a dataset's metadata, normally supplied
// by that dataset's PartWriter.Finalize result. The capability set is
// derived separately at Finalize time, not here, so an empty dataset never
// advertises a capability it does not back (property 10).
func (b *Builder) SetDataset(meta model.DatasetMetadata) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.datasets[meta.Name] = meta
}

// UpdateStats replaces the crawl statistics block (normally the scheduler's
// live counters, snapshotted at finalize time).
func (b *Builder) UpdateStats(stats model.SchedulerStats) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stats = stats
}

// Finalize marks the crawl finished and produces the Manifest, deriving its
// capability set and audit hash from the accumulated dataset metadata.
func (b *Builder) Finalize(exitCode int) model.Manifest {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.provenance.FinishedAt = time.Now()
	b.provenance.ExitCode = exitCode

	names := make([]string, 0, len(b.datasets))
	for name := range b.datasets {
		names = append(names, name)
	}
	sort.Strings(names)
	datasets := make([]model.DatasetMetadata, 0, len(names))
	for _, name := range names {
		datasets = append(datasets, b.datasets[name])
	}

	m := model.Manifest{
		FormatVersion: "atlas/1",
		Capabilities:  model.CapabilitySet{Capabilities: deriveCapabilities(b.renderMode, b.replayTier, b.datasets)},
		Provenance:    b.provenance,
		Datasets:      datasets,
		Stats:         b.stats,
		Blobs:         b.blobs,
		Notes:         b.notes,
	}
	m.AuditSHA256 = auditHash(m)
	return m
}

// deriveCapabilities computes the closed capability vocabulary (§3) from the
// render mode and replay tier the crawl actually ran with, gated on each
// capability's backing dataset holding at least one record (property 10:
// no capability is present without a non-empty corresponding dataset).
func deriveCapabilities(renderMode, replayTier string, datasets map[string]model.DatasetMetadata) []model.Capability {
	nonEmpty := func(name string) bool { return datasets[name].RecordCount > 0 }

	var caps []model.Capability
	if nonEmpty("pages") {
		caps = append(caps, model.CapSEOCore)
		if renderMode == "prerender" || renderMode == "full" {
			caps = append(caps, model.CapRenderDOM)
		}
		if renderMode == "full" {
			caps = append(caps, model.CapA11yCore)
		}
		if replayTier == "html" || replayTier == "html+css" || replayTier == "full" {
			caps = append(caps, model.CapReplayHTML)
		}
	}
	if nonEmpty("assets") {
		if replayTier == "html+css" || replayTier == "full" {
			caps = append(caps, model.CapReplayCSS)
		}
		if replayTier == "full" {
			caps = append(caps, model.CapReplayImages)
		}
	}

	sort.Slice(caps, func(i, j int) bool { return caps[i] < caps[j] })
	return caps
}

// auditHash is the archive-level audit hash (§4.6.5, §4.7): SHA-256 of the
// lexicographically sorted concatenation of every part's hash across every
// dataset in the manifest. An external verifier can recompute it from the
// physical part files alone, and it changes if a single byte in any part is
// tampered with, unlike a hash over the manifest's own JSON encoding.
func auditHash(m model.Manifest) string {
	var partHashes []string
	for _, ds := range m.Datasets {
		for _, p := range ds.Parts {
			partHashes = append(partHashes, p.SHA256)
		}
	}
	sort.Strings(partHashes)

	h := sha256.New()
	for _, ph := range partHashes {
		h.Write([]byte(ph))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Save writes the manifest to <dir>/manifest.json, using the
// write-to-temp-then-rename pattern so a reader never observes a partially
// written manifest.
func Save(dir string, m model.Manifest) error {
	path := filepath.Join(dir, "manifest.json")
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("manifest: create temp file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("manifest: encode: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("manifest: close temp file: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("manifest: rename into place: %w", err)
	}
	return nil
}

// Load reads a previously saved manifest, for inspection or verification
// tooling.
func Load(dir string) (model.Manifest, error) {
	path := filepath.Join(dir, "manifest.json")
	raw, err := os.ReadFile(path)
	if err != nil {
		return model.Manifest{}, fmt.Errorf("manifest: read: %w", err)
	}
	var m model.Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return model.Manifest{}, fmt.Errorf("manifest: decode: %w", err)
	}
	return m, nil
}

// Verify recomputes the audit hash and reports whether it matches the
// manifest's stored value.
func Verify(m model.Manifest) bool {
	want := m.AuditSHA256
	return auditHash(m) == want
}
