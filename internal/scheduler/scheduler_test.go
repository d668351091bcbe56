package scheduler

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/atlascrawl/atlas/internal/model"
	"github.com/atlascrawl/atlas/internal/policy"
	"github.com/atlascrawl/atlas/internal/ratelimit"
	"github.com/atlascrawl/atlas/internal/render"
)

// panicFetcher fails the test if the policy gate ever fetches robots.txt;
// every test here disables robots checking, so it never should.
type panicFetcher struct{ t *testing.T }

func (f panicFetcher) Do(req *http.Request) (*http.Response, error) {
	f.t.Fatal("robots.txt fetch should not happen when RespectRobots is false")
	return nil, nil
}

// fakeRenderer serves canned HTML per path with no real I/O, so tests run
// without a browser or network.
type fakeRenderer struct {
	pages map[string]string
}

func (r *fakeRenderer) Render(ctx context.Context, rawURL string) (*render.Result, error) {
	html, ok := r.pages[rawURL]
	if !ok {
		return nil, fmt.Errorf("fake renderer: no page registered for %s", rawURL)
	}
	return &render.Result{
		FinalURL:    rawURL,
		Status:      200,
		ContentType: "text/html",
		Body:        []byte(html),
	}, nil
}

func (r *fakeRenderer) Close() error { return nil }

func newTestGate(t *testing.T, seedHost string) *policy.Gate {
	t.Helper()
	gate, err := policy.New(policy.Config{
		AllowedSchemes: []string{"http", "https"},
		SeedHosts:      []string{seedHost},
		RespectRobots:  false,
	}, panicFetcher{t: t})
	if err != nil {
		t.Fatalf("build policy gate: %v", err)
	}
	return gate
}

func TestSchedulerCrawlsToCompletion(t *testing.T) {
	dir := t.TempDir()
	renderer := &fakeRenderer{pages: map[string]string{
		"https://example.com/":  `<html><body><a href="/next">next</a></body></html>`,
		"https://example.com/next": `<html><body>leaf page</body></html>`,
	}}

	s, err := New(Config{
		CrawlID:     "test-crawl",
		ToolVersion: "atlascrawl/test",
		Seeds:       []string{"https://example.com/"},
		OutDir:      dir,
		Concurrency: 2,
		MaxDepth:    -1,
		MaxErrors:   -1,
		RenderMode:  "raw",
		BucketCap:   16,
	}, Deps{
		Gate:     newTestGate(t, "example.com"),
		Limiter:  ratelimit.New(ratelimit.Config{GlobalRPS: 1000, GlobalBurst: 1000, PerOriginRPS: 1000, PerOriginBurst: 1000}),
		Renderer: renderer,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	m := s.Wait()

	if m.Provenance.CrawlID != "test-crawl" {
		t.Errorf("manifest crawl id = %q", m.Provenance.CrawlID)
	}
	if m.Stats.PagesCrawled != 2 {
		t.Errorf("pages crawled = %d, want 2", m.Stats.PagesCrawled)
	}
	if m.Stats.EdgesDiscovered != 1 {
		t.Errorf("edges discovered = %d, want 1", m.Stats.EdgesDiscovered)
	}
	if !m.Capabilities.Has(model.CapSEOCore) {
		t.Error("expected seo.core capability on a pages-producing crawl")
	}
	if m.Capabilities.Has(model.CapRenderDOM) {
		t.Error("expected no render.dom capability from a raw-mode crawl")
	}

	st, _ := s.Status()
	if st != StateFinished {
		t.Errorf("final state = %q, want %q", st, StateFinished)
	}
}

func TestSchedulerRespectsMaxDepth(t *testing.T) {
	dir := t.TempDir()
	renderer := &fakeRenderer{pages: map[string]string{
		"https://example.com/":  `<html><body><a href="/a">a</a></body></html>`,
		"https://example.com/a": `<html><body><a href="/b">b</a></body></html>`,
		"https://example.com/b": `<html><body>too deep to reach</body></html>`,
	}}

	s, err := New(Config{
		CrawlID:     "depth-crawl",
		ToolVersion: "atlascrawl/test",
		Seeds:       []string{"https://example.com/"},
		OutDir:      dir,
		Concurrency: 2,
		MaxDepth:    1,
		MaxErrors:   -1,
		RenderMode:  "raw",
		BucketCap:   16,
	}, Deps{
		Gate:     newTestGate(t, "example.com"),
		Limiter:  ratelimit.New(ratelimit.Config{GlobalRPS: 1000, GlobalBurst: 1000, PerOriginRPS: 1000, PerOriginBurst: 1000}),
		Renderer: renderer,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	m := s.Wait()

	if m.Stats.PagesCrawled != 2 {
		t.Errorf("pages crawled = %d, want 2 (seed depth 0 and /a at depth 1, /b beyond max_depth dropped)", m.Stats.PagesCrawled)
	}
}

func TestSchedulerCancelStopsWorkersAndFinalizes(t *testing.T) {
	dir := t.TempDir()
	renderer := &fakeRenderer{pages: map[string]string{
		"https://example.com/": `<html><body>no links</body></html>`,
	}}

	s, err := New(Config{
		CrawlID:     "cancel-crawl",
		ToolVersion: "atlascrawl/test",
		Seeds:       []string{"https://example.com/"},
		OutDir:      dir,
		Concurrency: 1,
		MaxDepth:    -1,
		MaxErrors:   -1,
		RenderMode:  "raw",
		BucketCap:   16,
	}, Deps{
		Gate:     newTestGate(t, "example.com"),
		Limiter:  ratelimit.New(ratelimit.Config{GlobalRPS: 1000, GlobalBurst: 1000, PerOriginRPS: 1000, PerOriginBurst: 1000}),
		Renderer: renderer,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.Cancel()
	m := s.Wait()

	if m.AuditSHA256 == "" {
		t.Error("expected a cancelled crawl to still produce a verifiable manifest")
	}
}
