package frontier

import (
	"context"
	"testing"
	"time"

	"github.com/atlascrawl/atlas/internal/model"
)

func task(normalized string, depth int) model.URLTask {
	return model.URLTask{URL: normalized, Normalized: normalized, Depth: depth, Source: model.DiscoverySeed}
}

func TestPushDedup(t *testing.T) {
	f := New(-1, 10)
	if err := f.Push(task("https://example.com/a", 0)); err != nil {
		t.Fatalf("first push: %v", err)
	}
	if err := f.Push(task("https://example.com/a", 1)); err == nil {
		t.Fatal("expected dedup error on repeated push")
	}
	if f.Size() != 1 {
		t.Errorf("size = %d, want 1", f.Size())
	}
}

func TestPushRejectsOverDepth(t *testing.T) {
	f := New(2, 10)
	if err := f.Push(task("https://example.com/deep", 3)); err == nil {
		t.Fatal("expected depth limit error")
	}
}

func TestPopBreadthFirstOrder(t *testing.T) {
	f := New(-1, 10)
	must := func(err error) {
		if err != nil {
			t.Fatal(err)
		}
	}
	must(f.Push(task("https://example.com/d1", 1)))
	must(f.Push(task("https://example.com/d0", 0)))
	must(f.Push(task("https://example.com/d2", 2)))

	ctx := context.Background()
	first, ok := f.Pop(ctx)
	if !ok || first.Depth != 0 {
		t.Fatalf("expected depth 0 first, got %+v ok=%v", first, ok)
	}
	second, ok := f.Pop(ctx)
	if !ok || second.Depth != 1 {
		t.Fatalf("expected depth 1 second, got %+v ok=%v", second, ok)
	}
}

func TestPopUnblocksOnContextCancel(t *testing.T) {
	f := New(-1, 10)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	done := make(chan bool, 1)
	go func() {
		_, ok := f.Pop(ctx)
		done <- ok
	}()

	select {
	case ok := <-done:
		if ok {
			t.Error("expected Pop to report false after cancellation")
		}
	case <-time.After(time.Second):
		t.Fatal("Pop did not unblock on context cancellation")
	}
}

func TestCloseDrainsThenStops(t *testing.T) {
	f := New(-1, 10)
	if err := f.Push(task("https://example.com/only", 0)); err != nil {
		t.Fatal(err)
	}
	f.Close()

	ctx := context.Background()
	if _, ok := f.Pop(ctx); !ok {
		t.Fatal("expected remaining task to drain before close takes effect")
	}
	if _, ok := f.Pop(ctx); ok {
		t.Fatal("expected Pop to report false once frontier is closed and empty")
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	f := New(-1, 10)
	if err := f.Push(task("https://example.com/a", 0)); err != nil {
		t.Fatal(err)
	}
	if err := f.Push(task("https://example.com/b", 1)); err != nil {
		t.Fatal(err)
	}

	tasks, visited := f.Snapshot()
	if len(tasks) != 2 {
		t.Fatalf("snapshot tasks = %d, want 2", len(tasks))
	}

	restored, err := Restore(-1, 10, tasks, visited)
	if err != nil {
		t.Fatal(err)
	}
	if restored.Size() != 2 {
		t.Errorf("restored size = %d, want 2", restored.Size())
	}
	if !restored.IsVisited("https://example.com/a") {
		t.Error("restored frontier lost visited entry")
	}
}
