package model

import "time"

// PartInfo describes one compressed shard of a dataset (§3 Part file).
type PartInfo struct {
	Dataset    string `json:"dataset"`
	Version    string `json:"version"`
	Sequence   int    `json:"sequence"` // zero-padded in the filename, plain here
	Path       string `json:"path"`
	RecordCount int64 `json:"record_count"`
	RawBytes   int64  `json:"raw_bytes"`
	CompBytes  int64  `json:"compressed_bytes"`
	SHA256     string `json:"sha256"`
}

// DatasetMetadata summarizes one dataset's parts for the manifest.
type DatasetMetadata struct {
	Name        string     `json:"name"`
	Version     string     `json:"version"`
	SchemaPath  string     `json:"schema_path"`
	Parts       []PartInfo `json:"parts"`
	RecordCount int64      `json:"record_count"`
	SHA256      string     `json:"sha256"` // hash over the concatenation of part hashes
}

// Capability is a single advertised archive feature token, drawn from the
// closed vocabulary in §3 Capability set.
type Capability string

const (
	CapSEOCore      Capability = "seo.core"
	CapA11yCore     Capability = "a11y.core"
	CapRenderDOM    Capability = "render.dom"
	CapReplayHTML   Capability = "replay.html"
	CapReplayCSS    Capability = "replay.css"
	CapReplayImages Capability = "replay.images"
)

// CapabilitySet is the archive's declared feature surface, derived from the
// render mode and replay tier actually exercised during the crawl.
type CapabilitySet struct {
	Capabilities []Capability `json:"capabilities"`
}

// Has reports whether a capability token is present.
func (c CapabilitySet) Has(cap Capability) bool {
	for _, existing := range c.Capabilities {
		if existing == cap {
			return true
		}
	}
	return false
}

// ProvenanceRecord documents how the archive was produced, for audit and
// reproducibility (§3 Provenance record).
type ProvenanceRecord struct {
	CrawlID        string    `json:"crawl_id"`
	ToolVersion    string    `json:"tool_version"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	Seeds          []string  `json:"seeds"`
	ConfigDigest   string    `json:"config_digest"`
	HostName       string    `json:"hostname,omitempty"`
	ExitCode       int       `json:"exit_code"`
	InterruptedAt  string    `json:"interrupted_at,omitempty"`
}

// ManifestNote is a structured, machine-parseable warning attached to the
// manifest (e.g. schema mismatches, truncated resumes).
type ManifestNote struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	URL     string `json:"url,omitempty"`
}

// SchedulerStats are the live counters the scheduler exposes and the
// manifest's crawl_statistics block is built from.
type SchedulerStats struct {
	PagesCrawled    int64 `json:"pages_crawled"`
	PagesFailed     int64 `json:"pages_failed"`
	PagesSkipped    int64 `json:"pages_skipped"`
	BytesDownloaded int64 `json:"bytes_downloaded"`
	EdgesDiscovered int64 `json:"edges_discovered"`
	AssetsCaptured  int64 `json:"assets_captured"`
	ErrorsTotal     int64 `json:"errors_total"`
	ErrorsBudget    int64 `json:"errors_budget"`
	ProcessingTimeMillis int64 `json:"processing_time_millis"`
}

// BlobStats summarizes the content-addressed blob store for the manifest
// (§4.6.4): how many blobs it holds, their total compressed size, and a
// Merkle-style root over every blob digest, so a verifier can detect a
// missing or substituted blob without rehashing the whole store.
type BlobStats struct {
	BlobCount       int64  `json:"blob_count"`
	CompressedBytes int64  `json:"compressed_bytes"`
	MerkleRoot      string `json:"merkle_root,omitempty"`
}

// Manifest is the archive's top-level self-description (§3 Manifest).
type Manifest struct {
	FormatVersion string            `json:"format_version"`
	Capabilities  CapabilitySet     `json:"capabilities"`
	Provenance    ProvenanceRecord  `json:"provenance"`
	Datasets      []DatasetMetadata `json:"datasets"`
	Stats         SchedulerStats    `json:"crawl_statistics"`
	Blobs         *BlobStats        `json:"blob_store,omitempty"`
	Notes         []ManifestNote    `json:"notes,omitempty"`
	AuditSHA256   string            `json:"audit_sha256"`
}

// CheckpointSnapshot is the resumable state of an in-progress crawl (§3
// Checkpoint snapshot), generalizing the teacher's models.Checkpoint.
type CheckpointSnapshot struct {
	CrawlID         string          `json:"crawl_id"`
	SavedAt         time.Time       `json:"saved_at"`
	FrontierTasks   []URLTask       `json:"frontier_tasks"`
	VisitedDigests  []string        `json:"visited_digests"`
	Stats           SchedulerStats  `json:"stats"`
	PartSequences   map[string]int  `json:"part_sequences"`
	PreviousPageIDs map[string]string `json:"previous_page_ids,omitempty"`
}
