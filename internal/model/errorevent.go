package model

import "time"

// ErrorRecord is a dataset record, not an exception: every crawl error is
// written, even when fatal (§3 Error record).
type ErrorRecord struct {
	URL       string    `json:"url"`
	Timestamp time.Time `json:"timestamp"`
	Phase     string    `json:"phase"` // fetch, render, extract, write
	Kind      string    `json:"error_kind"`
	Message   string    `json:"message"`
	Stack     string    `json:"stack,omitempty"`
}

func (ErrorRecord) DatasetName() string { return "errors" }

// ErrorSortKey is (timestamp, URL) per §4.6.3.
type ErrorSortKey struct {
	Timestamp time.Time
	URL       string
}

func (e ErrorRecord) SortKey() ErrorSortKey {
	return ErrorSortKey{Timestamp: e.Timestamp, URL: e.URL}
}

// EventRecord is a structured crawl log entry, archived as a dataset.
type EventRecord struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Code      string                 `json:"event_code"`
	CrawlID   string                 `json:"crawl_id"`
	PageID    string                 `json:"page_id,omitempty"`
	Sequence  int64                  `json:"sequence"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

func (EventRecord) DatasetName() string { return "events" }

// EventSortKey is (timestamp, sequence) — a strict total order per §4.6.3.
type EventSortKey struct {
	Timestamp time.Time
	Sequence  int64
}

func (e EventRecord) SortKey() EventSortKey {
	return EventSortKey{Timestamp: e.Timestamp, Sequence: e.Sequence}
}
