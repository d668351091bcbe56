package render

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"

	"github.com/atlascrawl/atlas/internal/model"
	"github.com/atlascrawl/atlas/internal/privacy"
)

// HTTPFetcher implements Renderer for render.mode=raw: a plain HTTP GET with
// no JavaScript execution. It is the cheapest path and the one the policy
// gate's robots.txt fetches also use. Its http.Client never sets a
// CookieJar, so no session state survives between requests even before the
// privacy policy's strip_cookies flag is consulted.
type HTTPFetcher struct {
	client          *http.Client
	userAgent       string
	maxBytesPerPage int64
	redactor        *privacy.Redactor
}

// NewHTTPFetcher builds a fetcher. maxBytesPerPage of 0 means unbounded. A
// nil redactor disables outgoing header sanitization.
func NewHTTPFetcher(timeout time.Duration, userAgent string, maxBytesPerPage int64, redactor *privacy.Redactor) *HTTPFetcher {
	return &HTTPFetcher{
		client:          &http.Client{Timeout: timeout},
		userAgent:       userAgent,
		maxBytesPerPage: maxBytesPerPage,
		redactor:        redactor,
	}
}

func (f *HTTPFetcher) Render(ctx context.Context, rawURL string) (*Result, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("render: build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept-Encoding", "gzip, br")
	if f.redactor != nil {
		f.redactor.SanitizeRequestHeaders(req.Header)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("render: fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "br" {
		reader = brotli.NewReader(reader)
	}
	if f.maxBytesPerPage > 0 {
		reader = io.LimitReader(reader, f.maxBytesPerPage)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("render: read body %s: %w", rawURL, err)
	}

	contentType := resp.Header.Get("Content-Type")
	body, detected := transcodeToUTF8(body, contentType)

	elapsed := time.Since(start)
	return &Result{
		FinalURL:        resp.Request.URL.String(),
		Status:          resp.StatusCode,
		ContentType:     contentType,
		Body:            body,
		ResponseTime:    elapsed,
		WaitCondition:   "fetch",
		EndReason:       model.NavFetch,
		Headers:         resp.Header,
		DetectedCharset: detected,
		Timings: model.NavigationTimings{
			NavStart:         start,
			DOMContentLoaded: elapsed,
			LoadEventEnd:     elapsed,
		},
	}, nil
}

// Do sends req with the fetcher's own client, so the policy gate's
// robots.txt requests share its timeout and cookie-less transport.
func (f *HTTPFetcher) Do(req *http.Request) (*http.Response, error) {
	return f.client.Do(req)
}

// transcodeToUTF8 sniffs body's encoding from contentType and its own bytes
// and, if it isn't already UTF-8, transcodes it with the charset package's
// io.Reader. When the charset package is not certain of the encoding, a
// chardet content sniff with confidence below 30 vetoes transcoding and the
// body is returned unchanged.
func transcodeToUTF8(body []byte, contentType string) ([]byte, string) {
	_, name, certain := charset.DetermineEncoding(body, contentType)
	if name == "utf-8" {
		return body, ""
	}
	if !certain {
		if res, err := chardet.NewTextDetector().DetectBest(body); err == nil && res.Confidence < 30 {
			return body, ""
		}
	}

	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return body, ""
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return body, ""
	}
	return decoded, name
}

func (f *HTTPFetcher) Close() error { return nil }
