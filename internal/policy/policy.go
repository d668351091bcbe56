// Package policy implements the crawl policy gate (§4.3): the single choke
// point every dequeued URL passes through before it is fetched. It
// generalizes the teacher's robots-and-scope checks (previously
// scattered across URLQueue.Push and the static crawler) into one component,
// and borrows the lazy-cache-with-TTL idiom from the teacher's
// ResourceMonitor.CalculateMaxTabs for its per-origin robots.txt cache.
package policy

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/glob"
	"github.com/temoto/robotstxt"

	"github.com/atlascrawl/atlas/internal/model"
	"github.com/atlascrawl/atlas/internal/urlnorm"
)

// Decision is the outcome of evaluating one URL against the policy gate.
type Decision struct {
	Allowed bool
	Robots  model.RobotsDecision
	Reason  string
}

// Config holds the static scope rules evaluated for every URL.
type Config struct {
	AllowedSchemes  []string
	FollowExternal  bool
	SeedHosts       []string
	AllowPatterns   []string
	DenyPatterns    []string
	BlockList       []string
	RespectRobots   bool
	OverrideRobots  bool
	UserAgent       string
	RobotsTTL       time.Duration
	RobotsTimeout   time.Duration
}

// fetcher is the subset of *http.Client the gate needs, narrowed so tests
// can substitute a fake without spinning up a real server.
type fetcher interface {
	Do(req *http.Request) (*http.Response, error)
}

// Gate is the policy gate. It is safe for concurrent use.
type Gate struct {
	cfg           Config
	allowGlobs    []glob.Glob
	denyGlobs     []glob.Glob
	client        fetcher
	robotsMu      sync.RWMutex
	robotsCache   map[string]robotsEntry
}

type robotsEntry struct {
	data      *robotstxt.RobotsData
	fetchedAt time.Time
}

// New compiles the glob patterns and returns a ready Gate.
func New(cfg Config, client fetcher) (*Gate, error) {
	if cfg.RobotsTTL <= 0 {
		cfg.RobotsTTL = time.Hour
	}
	if cfg.RobotsTimeout <= 0 {
		cfg.RobotsTimeout = 10 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "AtlasCrawler/1.0"
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.RobotsTimeout}
	}

	g := &Gate{cfg: cfg, client: client, robotsCache: make(map[string]robotsEntry)}

	for _, p := range cfg.AllowPatterns {
		compiled, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("policy: invalid allow pattern %q: %w", p, err)
		}
		g.allowGlobs = append(g.allowGlobs, compiled)
	}
	for _, p := range cfg.DenyPatterns {
		compiled, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("policy: invalid deny pattern %q: %w", p, err)
		}
		g.denyGlobs = append(g.denyGlobs, compiled)
	}

	return g, nil
}

// Evaluate decides whether rawURL may be fetched. It checks scheme, scope,
// block/allow/deny lists, private-network targets, and finally robots.txt.
func (g *Gate) Evaluate(ctx context.Context, rawURL string) Decision {
	scheme, host, path, err := splitURL(rawURL)
	if err != nil {
		return Decision{Allowed: false, Reason: fmt.Sprintf("unparseable URL: %v", err)}
	}

	if !schemeAllowed(scheme, g.cfg.AllowedSchemes) {
		return Decision{Allowed: false, Reason: fmt.Sprintf("scheme %q not allowed", scheme)}
	}

	if isPrivateOrLoopback(host) {
		return Decision{Allowed: false, Reason: "target resolves to a private or loopback address"}
	}

	if !g.cfg.FollowExternal && !hostInScope(host, g.cfg.SeedHosts) {
		return Decision{Allowed: false, Reason: fmt.Sprintf("host %q outside crawl scope", host)}
	}

	for _, blocked := range g.cfg.BlockList {
		if strings.EqualFold(blocked, host) {
			return Decision{Allowed: false, Reason: fmt.Sprintf("host %q is block-listed", host)}
		}
	}

	if len(g.denyGlobs) > 0 && matchesAny(g.denyGlobs, path) {
		return Decision{Allowed: false, Reason: "path matches a deny pattern"}
	}
	if len(g.allowGlobs) > 0 && !matchesAny(g.allowGlobs, path) {
		return Decision{Allowed: false, Reason: "path does not match any allow pattern"}
	}

	if !g.cfg.RespectRobots {
		return Decision{Allowed: true, Robots: model.RobotsOverride, Reason: "robots.txt disabled by configuration"}
	}

	allowed, reason := g.checkRobots(ctx, scheme, host, path)
	if !allowed && g.cfg.OverrideRobots {
		return Decision{Allowed: true, Robots: model.RobotsOverride, Reason: "robots.txt disallowed but override enabled"}
	}
	if !allowed {
		return Decision{Allowed: false, Robots: model.RobotsDisallow, Reason: reason}
	}
	return Decision{Allowed: true, Robots: model.RobotsAllow}
}

func splitURL(rawURL string) (scheme, host, path string, err error) {
	normalized, err := urlnorm.Normalize(rawURL, urlnorm.PolicyKeep)
	if err != nil {
		return "", "", "", err
	}
	scheme, rest, ok := strings.Cut(normalized, "://")
	if !ok {
		return "", "", "", fmt.Errorf("no scheme in %q", rawURL)
	}
	host, path, _ = strings.Cut(rest, "/")
	return scheme, strings.ToLower(host), "/" + path, nil
}

func schemeAllowed(scheme string, allowed []string) bool {
	if len(allowed) == 0 {
		return scheme == "http" || scheme == "https"
	}
	for _, a := range allowed {
		if strings.EqualFold(a, scheme) {
			return true
		}
	}
	return false
}

func hostInScope(host string, seedHosts []string) bool {
	for _, seed := range seedHosts {
		if strings.EqualFold(seed, host) {
			return true
		}
	}
	return false
}

func matchesAny(globs []glob.Glob, path string) bool {
	for _, g := range globs {
		if g.Match(path) {
			return true
		}
	}
	return false
}

func isPrivateOrLoopback(host string) bool {
	h := host
	if idx := strings.LastIndex(h, ":"); idx != -1 {
		if _, err := fmt.Sscanf(h[idx+1:], "%d", new(int)); err == nil {
			h = h[:idx]
		}
	}
	ip := net.ParseIP(h)
	if ip == nil {
		return strings.EqualFold(h, "localhost")
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast()
}

// checkRobots fetches (or reuses a cached copy of) host's robots.txt and
// tests path against it for the configured user agent.
func (g *Gate) checkRobots(ctx context.Context, scheme, host, path string) (bool, string) {
	data, err := g.robotsFor(ctx, scheme, host)
	if err != nil {
		return true, "" // no usable robots.txt: fail open per convention
	}
	if data == nil {
		return true, ""
	}
	group := data.FindGroup(g.cfg.UserAgent)
	if group == nil {
		return true, ""
	}
	if !group.Test(path) {
		return false, fmt.Sprintf("robots.txt disallows %s for %s", path, g.cfg.UserAgent)
	}
	return true, ""
}

func (g *Gate) robotsFor(ctx context.Context, scheme, host string) (*robotstxt.RobotsData, error) {
	g.robotsMu.RLock()
	entry, ok := g.robotsCache[host]
	g.robotsMu.RUnlock()
	if ok && time.Since(entry.fetchedAt) < g.cfg.RobotsTTL {
		return entry.data, nil
	}

	reqURL := fmt.Sprintf("%s://%s/robots.txt", scheme, host)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", g.cfg.UserAgent)

	resp, err := g.client.Do(req)
	if err != nil {
		g.cacheRobots(host, nil)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		g.cacheRobots(host, nil)
		return nil, nil
	}

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		g.cacheRobots(host, nil)
		return nil, err
	}

	g.cacheRobots(host, data)
	return data, nil
}

func (g *Gate) cacheRobots(host string, data *robotstxt.RobotsData) {
	g.robotsMu.Lock()
	g.robotsCache[host] = robotsEntry{data: data, fetchedAt: time.Now()}
	g.robotsMu.Unlock()
}
