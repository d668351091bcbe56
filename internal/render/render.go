// Package render implements the Fetch+Render component (§4.4): the part of
// the engine that turns a URL into response bytes, optionally by running it
// through a real browser. It generalizes the teacher's DynamicCrawler,
// PagePool, and ResourceMonitor from a single always-render JS-file scraper
// into a Renderer interface with two implementations selected by
// render.mode — raw (plain HTTP) and prerender/full (headless Chrome via
// go-rod).
package render

import (
	"context"
	"time"

	"github.com/atlascrawl/atlas/internal/model"
)

// Result is what a render operation hands back to the scheduler for one URL.
type Result struct {
	FinalURL     string
	Status       int
	ContentType  string
	Body         []byte
	RenderedDOM  []byte // non-empty only in prerender/full mode
	ResponseTime time.Duration
	Timings      model.NavigationTimings
	WaitCondition string
	EndReason    model.NavEndReason
	Headers      map[string][]string
	// DetectedCharset is the encoding the fetcher transcoded Body from, or
	// empty if it was already UTF-8 / no transcoding was needed.
	DetectedCharset string
}

// Renderer fetches or renders a single URL. Implementations must be safe
// for concurrent use by multiple callers — the scheduler calls Render from
// its worker pool.
type Renderer interface {
	Render(ctx context.Context, url string) (*Result, error)
	Close() error
}
