package workerpool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestSubmitAndShutdown(t *testing.T) {
	p := New("test", 2, 10)
	var count atomic.Int32

	for i := 0; i < 5; i++ {
		if !p.Submit("count", func(context.Context) { count.Add(1) }) {
			t.Fatalf("Submit %d failed", i)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p.Shutdown(ctx)

	if got := count.Load(); got != 5 {
		t.Fatalf("count = %d, want 5", got)
	}
	if got := p.Stats().Completed; got != 5 {
		t.Fatalf("Completed = %d, want 5", got)
	}
}

func TestSubmitAfterShutdownReturnsFalse(t *testing.T) {
	p := New("test", 1, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p.Shutdown(ctx)

	if p.Submit("late", func(context.Context) {}) {
		t.Fatal("Submit after Shutdown should return false")
	}
}

func TestQueueFullReturnsFalse(t *testing.T) {
	p := New("test", 1, 1)
	blocker := make(chan struct{})
	started := make(chan struct{})
	p.Submit("block", func(context.Context) {
		close(started)
		<-blocker
	})
	<-started

	if !p.Submit("fill", func(context.Context) {}) {
		t.Fatal("second submit should fill the queue")
	}
	if p.Submit("overflow", func(context.Context) {}) {
		t.Fatal("Submit should return false when queue is full")
	}

	close(blocker)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p.Shutdown(ctx)
}

func TestPanicIsRecovered(t *testing.T) {
	p := New("test", 1, 4)
	var ran atomic.Bool
	p.Submit("boom", func(context.Context) { panic("boom") })
	p.Submit("after", func(context.Context) { ran.Store(true) })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p.Shutdown(ctx)

	if !ran.Load() {
		t.Fatal("task after a panic should still run")
	}
	if got := p.Stats().Panicked; got != 1 {
		t.Fatalf("Panicked = %d, want 1", got)
	}
}

func TestShutdownTimeoutCancelsTasks(t *testing.T) {
	p := New("test", 1, 1)
	var cancelled atomic.Bool
	started := make(chan struct{})
	p.Submit("slow", func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
	})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	p.Shutdown(ctx)

	if !cancelled.Load() {
		t.Fatal("expected running task to observe cancellation")
	}
}
