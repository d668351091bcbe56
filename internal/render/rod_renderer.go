package render

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"

	"github.com/atlascrawl/atlas/internal/logging"
	"github.com/atlascrawl/atlas/internal/model"
)

// ErrBrowserCrashed is returned (wrapped) when the underlying browser
// process has gone away and could not be restarted within maxBrowserRetries.
var ErrBrowserCrashed = errors.New("render: browser crashed")

// RodRendererConfig configures the headless-browser Renderer.
type RodRendererConfig struct {
	Headless         bool
	Mode             string // "prerender" or "full"
	NavTimeout       time.Duration
	SettleTime       time.Duration // extra wait for client-side rendering after load
	Concurrency      int
	MaxBrowserRetries int
}

// RodRenderer implements Renderer by driving a real headless Chrome
// instance through go-rod, generalizing the teacher's DynamicCrawler +
// PagePool + ResourceMonitor trio from a JS-file scraper into a general
// page renderer that returns the rendered DOM alongside the raw response.
type RodRenderer struct {
	cfg RodRendererConfig

	mu      sync.Mutex
	browser *rod.Browser
	pool    *pagePool
	monitor *resourceMonitor
	retries int
}

// NewRodRenderer launches a browser and returns a ready RodRenderer.
func NewRodRenderer(cfg RodRendererConfig) (*RodRenderer, error) {
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 30 * time.Second
	}
	if cfg.MaxBrowserRetries <= 0 {
		cfg.MaxBrowserRetries = 3
	}
	r := &RodRenderer{cfg: cfg}
	if err := r.launch(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *RodRenderer) launch() error {
	l := launcher.New().Headless(r.cfg.Headless).Set("ignore-certificate-errors")

	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("render: launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("render: connect to browser: %w", err)
	}

	monitor := newResourceMonitor(monitorConfig{
		SafetyReserveMemory: 1024 * 1024 * 1024,
		SafetyThreshold:     500 * 1024 * 1024,
		CPULoadThreshold:    80,
		MaxTabsLimit:        maxInt(r.cfg.Concurrency, 1),
		TabMemoryUsage:      100 * 1024 * 1024,
	})
	monitor.start(time.Second)

	r.mu.Lock()
	r.browser = browser
	r.monitor = monitor
	r.pool = newPagePool(browser, monitor)
	r.mu.Unlock()

	return nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Render navigates to rawURL, waits for it to settle per the configured
// mode, and returns the final HTML along with navigation timings. A
// crashed browser is restarted up to MaxBrowserRetries times before Render
// gives up and returns ErrBrowserCrashed.
func (r *RodRenderer) Render(ctx context.Context, rawURL string) (*Result, error) {
	result, err := r.renderOnce(ctx, rawURL)
	if err == nil {
		return result, nil
	}
	if !errors.Is(err, errTabUnavailable) {
		return nil, err
	}

	r.mu.Lock()
	r.retries++
	retries := r.retries
	r.mu.Unlock()

	if retries > r.cfg.MaxBrowserRetries {
		return nil, fmt.Errorf("%w: exceeded %d restart attempts: %v", ErrBrowserCrashed, r.cfg.MaxBrowserRetries, err)
	}

	logging.Warnf("render: browser crashed, restarting (attempt %d/%d): %v", retries, r.cfg.MaxBrowserRetries, err)
	if relaunchErr := r.launch(); relaunchErr != nil {
		return nil, fmt.Errorf("%w: restart failed: %v", ErrBrowserCrashed, relaunchErr)
	}
	return r.renderOnce(ctx, rawURL)
}

// errTabUnavailable marks failures that mean the browser process itself is
// unusable (new tab could not be created), as opposed to a single page
// failing to navigate or load, which should not trigger a browser restart.
var errTabUnavailable = errors.New("render: tab unavailable")

func (r *RodRenderer) renderOnce(ctx context.Context, rawURL string) (*Result, error) {
	r.mu.Lock()
	pool := r.pool
	r.mu.Unlock()

	page, err := pool.acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errTabUnavailable, err)
	}
	defer pool.release(page)

	page = page.Context(ctx)

	navStart := time.Now()
	if err := page.Timeout(r.cfg.NavTimeout).Navigate(rawURL); err != nil {
		return nil, fmt.Errorf("render: navigate %s: %w", rawURL, err)
	}

	endReason := model.NavLoad
	if err := page.Timeout(r.cfg.NavTimeout).WaitLoad(); err != nil {
		endReason = model.NavTimeout
	}
	domLoaded := time.Since(navStart)

	waitCondition := "load"
	if r.cfg.Mode == "full" {
		waitCondition = "networkidle"
		if err := page.Timeout(r.cfg.NavTimeout).WaitIdle(2 * time.Second); err != nil {
			endReason = model.NavTimeout
		} else {
			endReason = model.NavNetworkIdle
		}
	}
	if r.cfg.SettleTime > 0 {
		time.Sleep(r.cfg.SettleTime)
	}
	loadEventEnd := time.Since(navStart)

	info, err := page.Info()
	if err != nil {
		return nil, fmt.Errorf("render: read page info for %s: %w", rawURL, err)
	}

	html, err := page.HTML()
	if err != nil {
		return nil, fmt.Errorf("render: read rendered DOM for %s: %w", rawURL, err)
	}

	return &Result{
		FinalURL:      info.URL,
		Status:        200,
		ContentType:   "text/html",
		Body:          []byte(html),
		RenderedDOM:   []byte(html),
		ResponseTime:  domLoaded,
		WaitCondition: waitCondition,
		EndReason:     endReason,
		Timings: model.NavigationTimings{
			NavStart:         navStart,
			DOMContentLoaded: domLoaded,
			LoadEventEnd:     loadEventEnd,
		},
	}, nil
}

func (r *RodRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pool != nil {
		_ = r.pool.close()
	}
	if r.monitor != nil {
		r.monitor.stop()
	}
	if r.browser != nil {
		return r.browser.Close()
	}
	return nil
}
