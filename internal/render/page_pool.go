package render

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/atlascrawl/atlas/internal/logging"
)

// pageHealth tracks how well a tab has been cleaning up between pages, the
// same signal the teacher's PagePool uses to decide when to retire a tab
// rather than keep reusing a dirty one.
type pageHealth struct {
	cleanFailures int
	lastSuccess   time.Time
	dirty         bool
}

// pagePool manages a bounded set of browser tabs sized by resourceMonitor.
type pagePool struct {
	browser   *rod.Browser
	monitor   *resourceMonitor

	mu        sync.Mutex
	pages     []*rod.Page
	available chan *rod.Page
	closed    bool

	healthMu sync.RWMutex
	health   map[*rod.Page]*pageHealth
}

func newPagePool(browser *rod.Browser, monitor *resourceMonitor) *pagePool {
	return &pagePool{
		browser:   browser,
		monitor:   monitor,
		available: make(chan *rod.Page, 32),
		health:    make(map[*rod.Page]*pageHealth),
	}
}

func (pp *pagePool) acquire(ctx context.Context) (*rod.Page, error) {
	pp.mu.Lock()
	if pp.closed {
		pp.mu.Unlock()
		return nil, fmt.Errorf("render: page pool is closed")
	}
	pp.mu.Unlock()

	select {
	case page := <-pp.available:
		return page, nil
	default:
	}

	pp.mu.Lock()
	currentSize := len(pp.pages)
	maxSize := pp.monitor.maxTabs()
	pp.mu.Unlock()

	if currentSize >= maxSize {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case page := <-pp.available:
			return page, nil
		}
	}

	if ok, reason := pp.monitor.checkAvailability(); !ok {
		logging.Warnf("render: insufficient resources for a new tab: %s", reason)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case page := <-pp.available:
			return page, nil
		}
	}

	page, err := pp.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("render: create tab (browser may have crashed): %w", err)
	}

	pp.mu.Lock()
	pp.pages = append(pp.pages, page)
	pp.mu.Unlock()

	pp.healthMu.Lock()
	pp.health[page] = &pageHealth{lastSuccess: time.Now()}
	pp.healthMu.Unlock()

	return page, nil
}

func (pp *pagePool) release(page *rod.Page) {
	if page == nil {
		return
	}

	pp.healthMu.RLock()
	h, exists := pp.health[page]
	pp.healthMu.RUnlock()
	if !exists {
		pp.destroy(page)
		return
	}

	if err := pp.clean(page); err != nil {
		pp.healthMu.Lock()
		h.cleanFailures++
		failures := h.cleanFailures
		pp.healthMu.Unlock()

		if failures >= 3 {
			pp.destroy(page)
			return
		}
		if failures == 2 {
			pp.healthMu.Lock()
			h.dirty = true
			pp.healthMu.Unlock()
		}
	} else {
		pp.healthMu.Lock()
		h.cleanFailures = 0
		h.dirty = false
		h.lastSuccess = time.Now()
		pp.healthMu.Unlock()
	}

	select {
	case pp.available <- page:
	default:
		pp.destroy(page)
	}
}

// clean clears storage and cookies between navigations so state from one
// page never bleeds into the next.
func (pp *pagePool) clean(page *rod.Page) error {
	_, err := page.Evaluate(&rod.EvalOptions{JS: `() => {
		try { localStorage.clear(); } catch (e) {}
		try { sessionStorage.clear(); } catch (e) {}
		try {
			document.cookie.split(";").forEach(function(c) {
				var eq = c.indexOf("=");
				var name = eq > -1 ? c.substr(0, eq) : c;
				document.cookie = name.replace(/^ +/, "") + "=;expires=Thu, 01 Jan 1970 00:00:00 UTC;path=/";
			});
		} catch (e) {}
		return true;
	}`})
	if err != nil {
		return fmt.Errorf("render: clean tab state: %w", err)
	}
	return nil
}

func (pp *pagePool) destroy(page *rod.Page) {
	pp.mu.Lock()
	for i, p := range pp.pages {
		if p == page {
			pp.pages = append(pp.pages[:i], pp.pages[i+1:]...)
			break
		}
	}
	pp.mu.Unlock()

	pp.healthMu.Lock()
	delete(pp.health, page)
	pp.healthMu.Unlock()

	if err := page.Close(); err != nil {
		logging.Warnf("render: closing tab: %v", err)
	}
}

func (pp *pagePool) currentSize() int {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	return len(pp.pages)
}

func (pp *pagePool) close() error {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	if pp.closed {
		return nil
	}
	for _, page := range pp.pages {
		if err := page.Close(); err != nil {
			logging.Warnf("render: closing tab during shutdown: %v", err)
		}
	}
	pp.pages = nil
	close(pp.available)
	pp.closed = true
	return nil
}
