package policy

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
)

type fakeFetcher struct {
	body   string
	status int
}

func (f *fakeFetcher) Do(req *http.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode: f.status,
		Body:       io.NopCloser(strings.NewReader(f.body)),
		Header:     make(http.Header),
	}, nil
}

func TestEvaluateRejectsDisallowedScheme(t *testing.T) {
	g, err := New(Config{AllowedSchemes: []string{"http", "https"}, SeedHosts: []string{"example.com"}}, &fakeFetcher{status: 404})
	if err != nil {
		t.Fatal(err)
	}
	d := g.Evaluate(context.Background(), "ftp://example.com/file")
	if d.Allowed {
		t.Error("expected ftp scheme to be rejected")
	}
}

func TestEvaluateRejectsOutOfScopeHost(t *testing.T) {
	g, err := New(Config{SeedHosts: []string{"example.com"}}, &fakeFetcher{status: 404})
	if err != nil {
		t.Fatal(err)
	}
	d := g.Evaluate(context.Background(), "https://other.com/page")
	if d.Allowed {
		t.Error("expected out-of-scope host to be rejected")
	}
}

func TestEvaluateRejectsPrivateAddress(t *testing.T) {
	g, err := New(Config{FollowExternal: true}, &fakeFetcher{status: 404})
	if err != nil {
		t.Fatal(err)
	}
	d := g.Evaluate(context.Background(), "http://127.0.0.1/admin")
	if d.Allowed {
		t.Error("expected loopback address to be rejected")
	}
}

func TestEvaluateRespectsRobotsDisallow(t *testing.T) {
	g, err := New(Config{
		SeedHosts:     []string{"example.com"},
		RespectRobots: true,
		UserAgent:     "AtlasCrawler",
	}, &fakeFetcher{status: 200, body: "User-agent: *\nDisallow: /private\n"})
	if err != nil {
		t.Fatal(err)
	}
	d := g.Evaluate(context.Background(), "https://example.com/private/page")
	if d.Allowed {
		t.Error("expected robots.txt disallow to reject the URL")
	}
}

func TestEvaluateOverrideBypassesRobots(t *testing.T) {
	g, err := New(Config{
		SeedHosts:      []string{"example.com"},
		RespectRobots:  true,
		OverrideRobots: true,
		UserAgent:      "AtlasCrawler",
	}, &fakeFetcher{status: 200, body: "User-agent: *\nDisallow: /private\n"})
	if err != nil {
		t.Fatal(err)
	}
	d := g.Evaluate(context.Background(), "https://example.com/private/page")
	if !d.Allowed {
		t.Error("expected override to allow the URL despite robots.txt")
	}
	if d.Robots != "override" {
		t.Errorf("robots decision = %q, want override", d.Robots)
	}
}

func TestEvaluateAllowDenyPatterns(t *testing.T) {
	g, err := New(Config{
		SeedHosts:    []string{"example.com"},
		AllowPatterns: []string{"/blog/**"},
	}, &fakeFetcher{status: 404})
	if err != nil {
		t.Fatal(err)
	}
	if d := g.Evaluate(context.Background(), "https://example.com/blog/post-1"); !d.Allowed {
		t.Errorf("expected /blog/post-1 to be allowed, reason=%s", d.Reason)
	}
	if d := g.Evaluate(context.Background(), "https://example.com/other/page"); d.Allowed {
		t.Error("expected /other/page to be rejected by allow-list")
	}
}

func TestRobotsCacheReused(t *testing.T) {
	fake := &fakeFetcher{status: 200, body: "User-agent: *\nDisallow: /private\n"}
	g, err := New(Config{SeedHosts: []string{"example.com"}, RespectRobots: true}, fake)
	if err != nil {
		t.Fatal(err)
	}
	g.Evaluate(context.Background(), "https://example.com/a")
	g.Evaluate(context.Background(), "https://example.com/b")

	g.robotsMu.RLock()
	_, cached := g.robotsCache["example.com"]
	g.robotsMu.RUnlock()
	if !cached {
		t.Error("expected robots.txt response to be cached after first fetch")
	}
}
