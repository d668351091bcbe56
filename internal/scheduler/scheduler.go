// Package scheduler owns the crawl lifecycle (§4.9): it binds the frontier,
// policy gate, rate limiter, renderer, extractor set, and dataset writers
// into a worker pool, and exposes the state machine (idle/running/paused/
// cancelling/cancelled/finalizing/finished) other packages observe through
// Status and Subscribe. It generalizes the teacher's Crawler orchestration
// (internal/core/crawler.go: construct sub-components, run phases, merge
// stats, report) with erndmrc-spider2's Scheduler state machine (atomic
// running/paused flags, pauseCh/resumeCh/stopCh, atomic SchedulerStats
// counters) — the frontier's own blocking Pop replaces spider2's
// sleep-and-poll loop.
package scheduler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/atlascrawl/atlas/internal/atlaserr"
	"github.com/atlascrawl/atlas/internal/checkpoint"
	"github.com/atlascrawl/atlas/internal/extract"
	"github.com/atlascrawl/atlas/internal/frontier"
	"github.com/atlascrawl/atlas/internal/logging"
	"github.com/atlascrawl/atlas/internal/manifest"
	"github.com/atlascrawl/atlas/internal/model"
	"github.com/atlascrawl/atlas/internal/policy"
	"github.com/atlascrawl/atlas/internal/privacy"
	"github.com/atlascrawl/atlas/internal/ratelimit"
	"github.com/atlascrawl/atlas/internal/render"
	"github.com/atlascrawl/atlas/internal/urlnorm"
	"github.com/atlascrawl/atlas/internal/writer"
)

// State is one node of the §4.9 lifecycle state machine.
type State string

const (
	StateIdle       State = "idle"
	StateRunning    State = "running"
	StatePaused     State = "paused"
	StateCancelling State = "cancelling"
	StateCancelled  State = "cancelled"
	StateFinalizing State = "finalizing"
	StateFinished   State = "finished"
)

const maxRenderRetries = 2

// Config is the subset of engineconfig.Config the scheduler itself needs,
// already resolved to concrete values (hosts parsed, policies normalized).
type Config struct {
	CrawlID     string
	ToolVersion string
	Seeds       []string
	OutDir      string

	Concurrency int
	MaxDepth    int // -1 = unbounded
	MaxPages    int // 0 = unbounded
	MaxErrors   int // -1 = no budget

	ParamPolicy urlnorm.Policy
	RenderMode  string
	ReplayTier  string
	Redactor    *privacy.Redactor

	HeartbeatInterval time.Duration
	CheckpointEvery   time.Duration
	ConfigDigest      string

	BucketCap int // frontier per-depth channel capacity
}

type datasetWriters struct {
	pages  *writer.PartWriter[model.PageRecord]
	edges  *writer.PartWriter[model.EdgeRecord]
	assets *writer.PartWriter[model.AssetRecord]
	errors *writer.PartWriter[model.ErrorRecord]
	events *writer.PartWriter[model.EventRecord]
}

// Scheduler is the engine's single long-lived orchestrator. One Scheduler
// drives one crawl from idle through to finished/cancelled.
type Scheduler struct {
	cfg      Config
	frontier *frontier.Frontier
	gate     *policy.Gate
	limiter  *ratelimit.Limiter
	renderer render.Renderer
	writers  datasetWriters
	blobs    *writer.BlobStore
	mb       *manifest.Builder

	stateMu sync.RWMutex
	state   State

	running atomic.Bool
	paused  atomic.Bool

	pagesCrawled     atomic.Int64
	pagesFailed      atomic.Int64
	pagesSkipped     atomic.Int64
	bytesDownloaded  atomic.Int64
	edgesDiscovered  atomic.Int64
	assetsCaptured   atomic.Int64
	errorsTotal      atomic.Int64
	activeWorkers    atomic.Int32
	eventSeq         atomic.Int64
	budgetExceeded   atomic.Bool

	pauseCh  chan struct{}
	resumeCh chan struct{}
	stopCh   chan struct{}
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	subsMu sync.Mutex
	subs   []chan model.EventRecord

	// resumedPageID holds normalized URL -> page ID carried forward from a
	// prior session's checkpoint (empty on a fresh crawl). mintedPageID
	// holds the IDs this session has minted so far, for both reuse within
	// a single attempt and for the next checkpoint's PreviousPageIDs.
	prevMu        sync.Mutex
	resumedPageID map[string]string
	mintedPageID  map[string]string

	startTime time.Time
}

// Deps bundles the components the caller has already constructed (each
// with its own config section) for New to wire into one scheduler.
type Deps struct {
	Gate     *policy.Gate
	Limiter  *ratelimit.Limiter
	Renderer render.Renderer
	Blobs    *writer.BlobStore // nil disables the blob store
}

// New builds a scheduler for a fresh crawl: a new frontier seeded from
// cfg.Seeds, and new dataset writers starting at part sequence zero.
func New(cfg Config, deps Deps) (*Scheduler, error) {
	s, err := newScheduler(cfg, deps)
	if err != nil {
		return nil, err
	}
	for _, seed := range cfg.Seeds {
		task, err := frontier.NormalizeAndBuildTask(seed, 0, model.DiscoverySeed, "", cfg.ParamPolicy)
		if err != nil {
			return nil, fmt.Errorf("scheduler: seed %q: %w", seed, err)
		}
		if err := s.frontier.Push(task); err != nil {
			return nil, fmt.Errorf("scheduler: push seed %q: %w", seed, err)
		}
	}
	return s, nil
}

// Resume rebuilds a scheduler from a prior checkpoint: the frontier is
// restored with its pending tasks and visited set, dataset writers pick up
// part numbering and any unflushed records by scanning their own output
// directories, and previously minted page IDs are carried forward so a
// re-crawled URL's new page record links to the prior ID through
// previous_page_id.
func Resume(cfg Config, deps Deps, snap model.CheckpointSnapshot) (*Scheduler, error) {
	s, err := newScheduler(cfg, deps)
	if err != nil {
		return nil, err
	}
	restored, err := frontier.Restore(cfg.MaxDepth, cfg.BucketCap, snap.FrontierTasks, snap.VisitedDigests)
	if err != nil {
		return nil, fmt.Errorf("scheduler: restore frontier: %w", err)
	}
	s.frontier = restored
	for k, v := range snap.PreviousPageIDs {
		s.resumedPageID[k] = v
	}
	return s, nil
}

func newScheduler(cfg Config, deps Deps) (*Scheduler, error) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	f := frontier.New(cfg.MaxDepth, cfg.BucketCap)

	pages, err := writer.NewPageWriter(cfg.OutDir)
	if err != nil {
		return nil, fmt.Errorf("scheduler: page writer: %w", err)
	}
	edges, err := writer.NewEdgeWriter(cfg.OutDir)
	if err != nil {
		return nil, fmt.Errorf("scheduler: edge writer: %w", err)
	}
	assets, err := writer.NewAssetWriter(cfg.OutDir)
	if err != nil {
		return nil, fmt.Errorf("scheduler: asset writer: %w", err)
	}
	errs, err := writer.NewErrorWriter(cfg.OutDir)
	if err != nil {
		return nil, fmt.Errorf("scheduler: error writer: %w", err)
	}
	events, err := writer.NewEventWriter(cfg.OutDir)
	if err != nil {
		return nil, fmt.Errorf("scheduler: event writer: %w", err)
	}

	mb := manifest.NewBuilder(cfg.CrawlID, cfg.ToolVersion, cfg.Seeds)
	mb.SetConfigDigest(cfg.ConfigDigest)
	mb.SetCrawlProfile(cfg.RenderMode, cfg.ReplayTier)

	return &Scheduler{
		cfg:      cfg,
		frontier: f,
		gate:     deps.Gate,
		limiter:  deps.Limiter,
		renderer: deps.Renderer,
		writers: datasetWriters{
			pages: pages, edges: edges, assets: assets, errors: errs, events: events,
		},
		blobs:         deps.Blobs,
		mb:            mb,
		state:         StateIdle,
		pauseCh:       make(chan struct{}),
		resumeCh:      make(chan struct{}),
		stopCh:        make(chan struct{}),
		resumedPageID: make(map[string]string),
		mintedPageID:  make(map[string]string),
	}, nil
}

// Start transitions idle -> running, launches the worker pool, and begins
// the heartbeat and checkpoint goroutines. It returns once workers are
// launched; call Wait to block until the crawl reaches a terminal state.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.running.Load() {
		return fmt.Errorf("scheduler: already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.setState(StateRunning)
	s.running.Store(true)
	s.startTime = time.Now()

	for i := 0; i < s.cfg.Concurrency; i++ {
		s.wg.Add(1)
		go s.worker(runCtx, i)
	}

	s.wg.Add(1)
	go s.monitorCompletion(runCtx)

	if s.cfg.HeartbeatInterval > 0 {
		s.wg.Add(1)
		go s.heartbeatLoop(runCtx)
	}
	if s.cfg.CheckpointEvery > 0 {
		s.wg.Add(1)
		go s.checkpointLoop(runCtx)
	}

	return nil
}

// Wait blocks until every worker and housekeeping goroutine has exited,
// then finalizes the dataset writers and manifest.
func (s *Scheduler) Wait() model.Manifest {
	s.wg.Wait()
	return s.finalize()
}

// Pause suspends the worker pool; in-flight tasks finish, but no worker
// pops a new task from the frontier until Resume is called.
func (s *Scheduler) Pause() {
	s.stateMu.RLock()
	running := s.state == StateRunning
	s.stateMu.RUnlock()
	if !running {
		return
	}
	s.paused.Store(true)
	s.setState(StatePaused)
}

// Resume wakes workers parked in Pause.
func (s *Scheduler) Resume() {
	s.paused.Store(false)
	s.setState(StateRunning)
	for i := 0; i < s.cfg.Concurrency; i++ {
		select {
		case s.resumeCh <- struct{}{}:
		default:
		}
	}
}

// Cancel requests cooperative shutdown: in-flight I/O is aborted via the
// worker context, the writers are still finalized with whatever streamed
// so far, and the manifest's provenance records the interruption.
func (s *Scheduler) Cancel() {
	s.setState(StateCancelling)
	if s.cancel != nil {
		s.cancel()
	}
	closeOnce(s.stopCh)
}

// Status reports the live counters the manifest's crawl_statistics block
// and an operator's progress display are both built from.
func (s *Scheduler) Status() (State, model.SchedulerStats) {
	s.stateMu.RLock()
	st := s.state
	s.stateMu.RUnlock()
	return st, s.snapshotStats()
}

// Subscribe returns a channel of every event record the scheduler emits.
// The channel is closed when the crawl reaches a terminal state.
func (s *Scheduler) Subscribe() <-chan model.EventRecord {
	ch := make(chan model.EventRecord, 64)
	s.subsMu.Lock()
	s.subs = append(s.subs, ch)
	s.subsMu.Unlock()
	return ch
}

func (s *Scheduler) setState(st State) {
	s.stateMu.Lock()
	s.state = st
	s.stateMu.Unlock()
}

func (s *Scheduler) snapshotStats() model.SchedulerStats {
	return model.SchedulerStats{
		PagesCrawled:    s.pagesCrawled.Load(),
		PagesFailed:     s.pagesFailed.Load(),
		PagesSkipped:    s.pagesSkipped.Load(),
		BytesDownloaded: s.bytesDownloaded.Load(),
		EdgesDiscovered: s.edgesDiscovered.Load(),
		AssetsCaptured:  s.assetsCaptured.Load(),
		ErrorsTotal:     s.errorsTotal.Load(),
		ErrorsBudget:    int64(s.cfg.MaxErrors),
		ProcessingTimeMillis: time.Since(s.startTime).Milliseconds(),
	}
}

// worker repeatedly pops a task, runs it through the pipeline, and exits
// once the frontier is closed and drained or the run context is done.
func (s *Scheduler) worker(ctx context.Context, id int) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
		}

		if s.paused.Load() {
			select {
			case <-s.resumeCh:
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			}
		}

		task, ok := s.frontier.Pop(ctx)
		if !ok {
			return
		}

		s.activeWorkers.Add(1)
		s.processTask(ctx, task)
		s.activeWorkers.Add(-1)
	}
}

// monitorCompletion detects natural completion (frontier empty, no worker
// holding a task that could still push more work) and closes the frontier
// so every blocked Pop returns, ending the worker pool without a cancel.
func (s *Scheduler) monitorCompletion(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if s.paused.Load() {
				continue
			}
			if s.frontier.Size() == 0 && s.activeWorkers.Load() == 0 {
				s.setState(StateFinalizing)
				s.frontier.Close()
				return
			}
		}
	}
}

func (s *Scheduler) heartbeatLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.emitHeartbeat()
		}
	}
}

func (s *Scheduler) emitHeartbeat() {
	elapsed := time.Since(s.startTime).Seconds()
	pps := 0.0
	if elapsed > 0 {
		pps = float64(s.pagesCrawled.Load()) / elapsed
	}
	payload := map[string]interface{}{
		"queued":          s.frontier.Size(),
		"in_flight":       s.activeWorkers.Load(),
		"completed":       s.pagesCrawled.Load(),
		"errors":          s.errorsTotal.Load(),
		"pages_per_sec":   pps,
		"resident_memory": residentMemoryBytes(),
	}
	s.emitEvent("info", "heartbeat", "", payload)
}

// residentMemoryBytes samples this process's RSS via gopsutil, the same
// library the teacher's resource monitor uses for its headroom checks.
func residentMemoryBytes() uint64 {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0
	}
	info, err := p.MemoryInfo()
	if err != nil || info == nil {
		return 0
	}
	return info.RSS
}

func (s *Scheduler) checkpointLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.CheckpointEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.saveCheckpoint()
			return
		case <-s.stopCh:
			s.saveCheckpoint()
			return
		case <-ticker.C:
			s.saveCheckpoint()
		}
	}
}

func (s *Scheduler) saveCheckpoint() {
	tasks, visited := s.frontier.Snapshot()
	s.prevMu.Lock()
	prev := make(map[string]string, len(s.resumedPageID)+len(s.mintedPageID))
	for k, v := range s.resumedPageID {
		prev[k] = v
	}
	for k, v := range s.mintedPageID {
		prev[k] = v
	}
	s.prevMu.Unlock()

	snap := model.CheckpointSnapshot{
		CrawlID:        s.cfg.CrawlID,
		FrontierTasks:  tasks,
		VisitedDigests: visited,
		Stats:          s.snapshotStats(),
		PartSequences: map[string]int{
			"pages":  s.writers.pages.PartSequence(),
			"edges":  s.writers.edges.PartSequence(),
			"assets": s.writers.assets.PartSequence(),
			"errors": s.writers.errors.PartSequence(),
			"events": s.writers.events.PartSequence(),
		},
		PreviousPageIDs: prev,
	}
	if err := checkpoint.Save(s.cfg.OutDir, snap); err != nil {
		logging.Warnf("scheduler: checkpoint save failed: %v", err)
	}
}

// processTask runs one URL through policy, rate limiting, render, extract,
// and the dataset writers, and pushes every internal link it discovers
// back onto the frontier as a new task.
func (s *Scheduler) processTask(ctx context.Context, task model.URLTask) {
	decision := s.gate.Evaluate(ctx, task.URL)
	if !decision.Allowed {
		s.pagesSkipped.Add(1)
		s.emitEvent("debug", "policy_denied", "", map[string]interface{}{
			"url": task.URL, "reason": decision.Reason, "robots": string(decision.Robots),
		})
		return
	}

	origin, err := urlnorm.Host(task.URL)
	if err != nil {
		origin = task.URL
	}
	if err := s.limiter.Acquire(ctx, origin); err != nil {
		return // context cancelled while waiting for a token
	}

	pageID := s.pageIDFor(task.Normalized)

	start := time.Now()
	result, renderErr := s.renderWithRetry(ctx, task.URL)
	elapsed := time.Since(start)

	if renderErr != nil {
		s.recordError(task.URL, "render", classifyRenderErr(renderErr), renderErr)
		return
	}

	s.bytesDownloaded.Add(int64(len(result.Body)))

	content := string(result.Body)
	if len(result.RenderedDOM) > 0 {
		content = string(result.RenderedDOM)
	}
	pe, err := extract.Extract(content, result.FinalURL, pageID, s.cfg.RenderMode, s.cfg.Redactor)
	if err != nil {
		s.recordError(task.URL, "extract", atlaserr.KindExtractValidation, err)
		pe = &extract.PageExtract{}
	}

	page := model.PageRecord{
		PageID:           pageID,
		PreviousPageID:   s.previousPageID(task.Normalized),
		URL:              task.URL,
		NormalizedURL:    task.Normalized,
		FinalURL:         result.FinalURL,
		Status:           result.Status,
		ContentType:      result.ContentType,
		ResponseSize:     int64(len(result.Body)),
		ResponseTimeMS:   elapsed.Milliseconds(),
		BodySHA256:       sha256Hex(result.Body),
		Depth:            task.Depth,
		DiscoverySource:  task.Source,
		Referrer:         task.Referrer,
		RobotsDecision:   decision.Robots,
		Noindex:          pe.Noindex,
		WaitCondition:    result.WaitCondition,
		Timings:          result.Timings,
		ProcessingTimeMS: elapsed.Milliseconds(),
		CapturedAt:       time.Now(),
		FormsRedacted:    pe.FormsRedacted,
	}
	if len(result.RenderedDOM) > 0 {
		page.RenderedDOMSHA256 = sha256Hex(result.RenderedDOM)
	}
	if s.blobs != nil {
		if ref, err := s.blobs.Put(result.Body); err == nil {
			page.BodyBlobRef = ref
		}
	}

	if err := s.writers.pages.Write(page); err != nil {
		s.recordError(task.URL, "write", atlaserr.KindWriteIO, err)
	}

	for i, edge := range pe.Edges {
		edge.SourcePageID = pageID
		edge.DiscoveryOrder = i
		edge.RenderMode = s.cfg.RenderMode
		if err := s.writers.edges.Write(edge); err != nil {
			s.recordError(task.URL, "write", atlaserr.KindWriteIO, err)
		}
		s.edgesDiscovered.Add(1)

		if !edge.Internal {
			continue
		}
		if s.cfg.MaxPages > 0 && s.pagesCrawled.Load()+int64(s.frontier.Size()) >= int64(s.cfg.MaxPages) {
			continue
		}
		nextTask, err := frontier.NormalizeAndBuildTask(edge.TargetURL, task.Depth+1, model.DiscoveryLink, task.URL, s.cfg.ParamPolicy)
		if err != nil {
			continue
		}
		_ = s.frontier.Push(nextTask) // duplicate/over-depth pushes are expected and silently dropped
	}

	for _, asset := range pe.Assets {
		asset.PageID = pageID
		if err := s.writers.assets.Write(asset); err != nil {
			s.recordError(task.URL, "write", atlaserr.KindWriteIO, err)
		}
		s.assetsCaptured.Add(1)
	}

	s.pagesCrawled.Add(1)
	s.emitEvent("debug", "page_done", pageID, map[string]interface{}{
		"url": task.URL, "status": result.Status, "edges": len(pe.Edges), "assets": len(pe.Assets),
	})
}

// renderWithRetry retries a transient render failure a bounded number of
// times with linear backoff; it does not touch the frontier, so a retry
// that eventually succeeds never counts against the error budget.
func (s *Scheduler) renderWithRetry(ctx context.Context, rawURL string) (*render.Result, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRenderRetries; attempt++ {
		result, err := s.renderer.Render(ctx, rawURL)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		select {
		case <-time.After(time.Duration(attempt+1) * 250 * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

// pageIDFor mints a fresh page ID for this processing attempt. google/uuid's
// v7 IDs are time-ordered, so page_id sorts chronologically even though the
// pages dataset itself is sorted by normalized URL.
func (s *Scheduler) pageIDFor(normalized string) string {
	id := uuid.Must(uuid.NewV7()).String()
	s.prevMu.Lock()
	s.mintedPageID[normalized] = id
	s.prevMu.Unlock()
	return id
}

// previousPageID returns the page ID a prior, interrupted session already
// minted for this URL, if this crawl was resumed from a checkpoint that
// recorded one.
func (s *Scheduler) previousPageID(normalized string) string {
	s.prevMu.Lock()
	defer s.prevMu.Unlock()
	return s.resumedPageID[normalized]
}

func (s *Scheduler) recordError(url, phase string, kind atlaserr.Kind, cause error) {
	s.pagesFailed.Add(1)
	if kind.CountsAgainstBudget() {
		total := s.errorsTotal.Add(1)
		if s.cfg.MaxErrors >= 0 && total >= int64(s.cfg.MaxErrors) {
			s.budgetExceeded.Store(true)
			s.Cancel()
		}
	}
	rec := model.ErrorRecord{
		URL: url, Timestamp: time.Now(), Phase: phase, Kind: string(kind), Message: cause.Error(),
	}
	if err := s.writers.errors.Write(rec); err != nil {
		logging.Warnf("scheduler: error writer failed: %v", err)
	}
	s.emitEvent("warn", "crawl_error", "", map[string]interface{}{
		"url": url, "phase": phase, "kind": string(kind), "message": cause.Error(),
	})
}

func (s *Scheduler) emitEvent(level, code, pageID string, payload map[string]interface{}) {
	rec := model.EventRecord{
		Timestamp: time.Now(),
		Level:     level,
		Code:      code,
		CrawlID:   s.cfg.CrawlID,
		PageID:    pageID,
		Sequence:  s.eventSeq.Add(1),
		Payload:   payload,
	}
	if err := s.writers.events.Write(rec); err != nil {
		logging.Warnf("scheduler: event writer failed: %v", err)
	}
	if level == "warn" || level == "error" {
		logging.Warnf("%s: %v", code, payload)
	} else {
		logging.Debugf("%s: %v", code, payload)
	}

	s.subsMu.Lock()
	for _, ch := range s.subs {
		select {
		case ch <- rec:
		default:
		}
	}
	s.subsMu.Unlock()
}

// finalize runs once all workers have stopped: it finalizes every dataset
// writer, rolls the resulting part metadata and final statistics into the
// manifest, and writes manifest.json.
func (s *Scheduler) finalize() model.Manifest {
	s.setState(StateFinalizing)

	exitCode := 0
	if s.budgetExceeded.Load() {
		exitCode = int(atlaserr.ExitErrorBudget)
	}

	if meta, err := s.writers.pages.Finalize(); err == nil {
		s.mb.SetDataset(meta)
	} else {
		logging.Warnf("scheduler: finalize pages: %v", err)
	}
	if meta, err := s.writers.edges.Finalize(); err == nil {
		s.mb.SetDataset(meta)
	} else {
		logging.Warnf("scheduler: finalize edges: %v", err)
	}
	if meta, err := s.writers.assets.Finalize(); err == nil {
		s.mb.SetDataset(meta)
	} else {
		logging.Warnf("scheduler: finalize assets: %v", err)
	}
	if meta, err := s.writers.errors.Finalize(); err == nil {
		s.mb.SetDataset(meta)
	} else {
		logging.Warnf("scheduler: finalize errors: %v", err)
	}
	if meta, err := s.writers.events.Finalize(); err == nil {
		s.mb.SetDataset(meta)
	} else {
		logging.Warnf("scheduler: finalize events: %v", err)
	}

	s.mb.UpdateStats(s.snapshotStats())
	if s.blobs != nil {
		if stats, err := s.blobs.Stats(); err == nil {
			s.mb.SetBlobStats(stats)
		} else {
			logging.Warnf("scheduler: blob stats: %v", err)
		}
	}

	m := s.mb.Finalize(exitCode)

	interrupted := false
	select {
	case <-s.stopCh:
		interrupted = true
		m.Provenance.InterruptedAt = time.Now().UTC().Format(time.RFC3339)
	default:
	}

	if err := manifest.Save(s.cfg.OutDir, m); err != nil {
		logging.Warnf("scheduler: manifest save failed: %v", err)
	} else if !s.budgetExceeded.Load() && !interrupted {
		_ = checkpoint.Remove(s.cfg.OutDir, s.cfg.CrawlID)
	}

	finalState := StateFinished
	if s.budgetExceeded.Load() {
		finalState = StateCancelled
	}
	s.setState(finalState)
	s.running.Store(false)

	s.subsMu.Lock()
	for _, ch := range s.subs {
		close(ch)
	}
	s.subs = nil
	s.subsMu.Unlock()

	return m
}

func classifyRenderErr(err error) atlaserr.Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return atlaserr.KindRenderTimeout
	}
	if errors.Is(err, render.ErrBrowserCrashed) {
		return atlaserr.KindRenderCrash
	}
	return atlaserr.KindFetchNetwork
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func closeOnce(ch chan struct{}) {
	select {
	case <-ch:
	default:
		close(ch)
	}
}
