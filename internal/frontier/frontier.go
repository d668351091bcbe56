// Package frontier implements the crawl frontier (§4.1): the deduplicated,
// depth-ordered queue of discovered URL tasks. It generalizes the teacher's
// URLQueue from a single flat channel bounded to one target domain into a
// depth-bucketed structure that preserves breadth-first discovery order
// across an unbounded crawl scope.
package frontier

import (
	"context"
	"fmt"
	"sync"

	"github.com/atlascrawl/atlas/internal/model"
	"github.com/atlascrawl/atlas/internal/urlnorm"
)

// overflowDepth is the bucket every task at this depth or deeper collapses
// into, so a pathologically deep site cannot allocate one channel per level.
const overflowDepth = 63

// Frontier is a depth-bucketed, deduplicated task queue. Pop drains the
// shallowest non-empty bucket first, giving breadth-first discovery order
// with no global sort: each bucket is a FIFO buffered channel.
type Frontier struct {
	mu        sync.Mutex
	cond      *sync.Cond
	buckets   map[int]chan model.URLTask
	visited   map[string]bool
	maxDepth  int
	bucketCap int
	closed    bool
	size      int
}

// New creates a Frontier. maxDepth of -1 means unbounded (§6.3 maxDepth).
// bucketCap bounds each depth bucket's buffered channel capacity.
func New(maxDepth, bucketCap int) *Frontier {
	if bucketCap <= 0 {
		bucketCap = 1000
	}
	f := &Frontier{
		buckets:   make(map[int]chan model.URLTask),
		visited:   make(map[string]bool),
		maxDepth:  maxDepth,
		bucketCap: bucketCap,
	}
	f.cond = sync.NewCond(&f.mu)
	return f
}

func clampDepth(depth int) int {
	if depth < 0 {
		return 0
	}
	if depth > overflowDepth {
		return overflowDepth
	}
	return depth
}

// Push enqueues a task if it is within the depth limit and has not already
// been seen. Dedup key is the task's Normalized URL, not its raw URL, so
// two differently-spelled links to the same resource collapse to one task.
func (f *Frontier) Push(task model.URLTask) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return fmt.Errorf("frontier: closed")
	}
	if f.maxDepth >= 0 && task.Depth > f.maxDepth {
		return fmt.Errorf("frontier: depth %d exceeds limit %d", task.Depth, f.maxDepth)
	}
	if task.Normalized == "" {
		return fmt.Errorf("frontier: task has no normalized URL")
	}
	if f.visited[task.Normalized] {
		return fmt.Errorf("frontier: already seen: %s", task.Normalized)
	}
	f.visited[task.Normalized] = true

	bucketKey := clampDepth(task.Depth)
	ch, ok := f.buckets[bucketKey]
	if !ok {
		ch = make(chan model.URLTask, f.bucketCap)
		f.buckets[bucketKey] = ch
	}
	ch <- task
	f.size++
	f.cond.Broadcast()
	return nil
}

// Pop returns the next task in breadth-first order, blocking until one is
// available or ctx is cancelled. The bool is false on cancellation or once
// the frontier has been closed and drained.
func (f *Frontier) Pop(ctx context.Context) (model.URLTask, bool) {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			f.mu.Lock()
			f.cond.Broadcast()
			f.mu.Unlock()
		case <-stop:
		}
	}()

	f.mu.Lock()
	defer f.mu.Unlock()

	for {
		if ch, ok := f.nextReadyBucketLocked(); ok {
			task := <-ch
			f.size--
			return task, true
		}
		select {
		case <-ctx.Done():
			return model.URLTask{}, false
		default:
		}
		if f.closed && f.size == 0 {
			return model.URLTask{}, false
		}
		f.cond.Wait()
	}
}

func (f *Frontier) nextReadyBucketLocked() (chan model.URLTask, bool) {
	for depth := 0; depth <= overflowDepth; depth++ {
		if ch, ok := f.buckets[depth]; ok && len(ch) > 0 {
			return ch, true
		}
	}
	return nil, false
}

// Size returns the number of tasks currently queued across all buckets.
func (f *Frontier) Size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.size
}

// IsVisited reports whether a normalized URL has already been enqueued.
func (f *Frontier) IsVisited(normalized string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.visited[normalized]
}

// Close stops accepting new tasks. Pop continues to drain queued tasks
// until the frontier is empty, then reports false.
func (f *Frontier) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.cond.Broadcast()
}

// Snapshot captures the frontier's remaining tasks and visited set for a
// checkpoint (§4.8). It does not drain the queue.
func (f *Frontier) Snapshot() ([]model.URLTask, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	tasks := make([]model.URLTask, 0, f.size)
	for depth, ch := range f.buckets {
		drained := make([]model.URLTask, 0, len(ch))
		for len(ch) > 0 {
			t := <-ch
			drained = append(drained, t)
			tasks = append(tasks, t)
		}
		for _, t := range drained {
			ch <- t
		}
		_ = depth
	}

	digests := make([]string, 0, len(f.visited))
	for d := range f.visited {
		digests = append(digests, d)
	}
	return tasks, digests
}

// Restore rebuilds frontier state from a checkpoint snapshot into a newly
// constructed Frontier.
func Restore(maxDepth, bucketCap int, tasks []model.URLTask, visitedDigests []string) (*Frontier, error) {
	f := New(maxDepth, bucketCap)
	for _, d := range visitedDigests {
		f.visited[d] = true
	}
	for _, t := range tasks {
		bucketKey := clampDepth(t.Depth)
		ch, ok := f.buckets[bucketKey]
		if !ok {
			ch = make(chan model.URLTask, f.bucketCap)
			f.buckets[bucketKey] = ch
		}
		f.visited[t.Normalized] = true
		ch <- t
		f.size++
	}
	return f, nil
}

// NormalizeAndBuildTask is a convenience used by the scheduler to turn a
// discovered link into a task with its dedup key already computed.
func NormalizeAndBuildTask(rawURL string, depth int, source model.DiscoverySource, referrer string, policy urlnorm.Policy) (model.URLTask, error) {
	normalized, err := urlnorm.Normalize(rawURL, policy)
	if err != nil {
		return model.URLTask{}, err
	}
	return model.URLTask{
		URL:        rawURL,
		Normalized: normalized,
		Depth:      depth,
		Source:     source,
		Referrer:   referrer,
		Status:     model.TaskPending,
	}, nil
}
