// Package urlnorm implements the canonical URL normalization the frontier,
// policy gate, and dataset writer all rely on for deduplication (§4.2).
// Two URLs that normalize to the same string are the same crawl task.
package urlnorm

import (
	"net/url"
	"sort"
	"strings"

	whatwgurl "github.com/nlnwa/whatwg-url/url"
)

// defaultTrackingParams are stripped under discovery.param_policy=strip,
// the engine's default (§6.3).
var defaultTrackingParams = map[string]bool{
	"utm_source":   true,
	"utm_medium":   true,
	"utm_campaign": true,
	"utm_term":     true,
	"utm_content":  true,
	"gclid":        true,
	"fbclid":       true,
	"mc_cid":       true,
	"mc_eid":       true,
	"_ga":          true,
	"ref":          true,
}

var parser = whatwgurl.NewParser()

// Policy selects how query parameters are treated during normalization.
type Policy int

const (
	PolicyStrip Policy = iota
	PolicyKeep
	PolicySample
)

// ParsePolicy maps the engineconfig string option onto a Policy.
func ParsePolicy(s string) Policy {
	switch s {
	case "keep":
		return PolicyKeep
	case "sample":
		return PolicySample
	default:
		return PolicyStrip
	}
}

// Normalize produces the canonical form of rawURL used as the frontier's and
// dataset writer's dedup key. It lowercases scheme and host (punycoding IDN
// hosts), elides default ports, drops fragments, and applies the tracking
// parameter policy, sorting any remaining query parameters for a stable key.
func Normalize(rawURL string, policy Policy) (string, error) {
	parsed, err := parser.Parse(rawURL)
	if err != nil {
		return "", err
	}

	u, err := url.Parse(parsed.Href(false))
	if err != nil {
		return "", err
	}

	u.Fragment = ""
	u.RawFragment = ""

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(stripDefaultPort(u.Scheme, u.Host))

	if u.Path == "" {
		u.Path = "/"
	}

	u.RawQuery = normalizeQuery(u.RawQuery, policy)

	return u.String(), nil
}

// Host returns the normalized (lowercased, punycoded) host of rawURL,
// without parsing the full URL twice at call sites that only need the
// origin for rate limiting or robots.txt caching.
func Host(rawURL string) (string, error) {
	parsed, err := parser.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return strings.ToLower(parsed.Host()), nil
}

func stripDefaultPort(scheme, host string) string {
	switch scheme {
	case "http":
		return strings.TrimSuffix(host, ":80")
	case "https":
		return strings.TrimSuffix(host, ":443")
	default:
		return host
	}
}

func normalizeQuery(rawQuery string, policy Policy) string {
	if rawQuery == "" {
		return ""
	}
	values, err := url.ParseQuery(rawQuery)
	if err != nil || len(values) == 0 {
		return ""
	}

	if policy == PolicyStrip {
		for key := range values {
			if defaultTrackingParams[strings.ToLower(key)] {
				delete(values, key)
			}
		}
	}

	if len(values) == 0 {
		return ""
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		vals := values[k]
		sort.Strings(vals)
		for j, v := range vals {
			if i+j > 0 && b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

// IsAbsolute reports whether rawURL already carries a scheme, distinguishing
// links that need resolving against a base from ones that don't.
func IsAbsolute(rawURL string) bool {
	u, err := url.Parse(rawURL)
	return err == nil && u.IsAbs()
}

// Resolve joins ref against base the way a browser resolves an anchor href.
func Resolve(base, ref string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return baseURL.ResolveReference(refURL).String(), nil
}
