package model

import "time"

// PageRecord is the archive's primary dataset record: one per crawled URL.
// page_id is minted once, before fetch, so it is stable across retries.
type PageRecord struct {
	PageID           string            `json:"page_id"`
	PreviousPageID   string            `json:"previous_page_id,omitempty"`
	URL              string            `json:"url"`
	NormalizedURL    string            `json:"normalized_url"`
	FinalURL         string            `json:"final_url"`
	Status           int               `json:"status"`
	ContentType      string            `json:"content_type"`
	ResponseSize     int64             `json:"response_size"`
	ResponseTimeMS   int64             `json:"response_time_ms"`
	BodySHA256       string            `json:"body_sha256"`
	RenderedDOMSHA256 string           `json:"rendered_dom_sha256,omitempty"`
	BodyBlobRef      string            `json:"body_blob_ref,omitempty"`
	Depth            int               `json:"depth"`
	DiscoverySource  DiscoverySource   `json:"discovery_source"`
	Referrer         string            `json:"referrer,omitempty"`
	RobotsDecision   RobotsDecision    `json:"robots_decision"`
	Noindex          bool              `json:"noindex"`
	WaitCondition    string            `json:"wait_condition"`
	Timings          NavigationTimings `json:"timings"`
	ProcessingTimeMS int64             `json:"processing_time_ms"`
	CapturedAt       time.Time         `json:"captured_at"`
	FormsRedacted    int               `json:"forms_redacted,omitempty"`
}

// DatasetName returns the dataset this record belongs to.
func (PageRecord) DatasetName() string { return "pages" }

// SortKey returns the key used for the deterministic pre-finalize sort:
// normalized URL ascending (§4.6.3).
func (p PageRecord) SortKey() string { return p.NormalizedURL }
