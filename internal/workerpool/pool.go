package workerpool

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/realsaraf/blooom/internal/logging"
)

var log = logging.L("workerpool")

// Task is a unit of work submitted to the pool. The context is cancelled
// when the pool is shut down with an expired deadline.
type Task func(ctx context.Context)

// Pool is a bounded goroutine pool with a fixed-size task queue. It runs
// the background uploads that follow a finished recording.
type Pool struct {
	name      string
	queue     chan namedTask
	wg        sync.WaitGroup
	accepting atomic.Bool
	closeOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc

	completed atomic.Int64
	failed    atomic.Int64
}

type namedTask struct {
	label string
	run   Task
}

// Stats is a point-in-time view of pool activity.
type Stats struct {
	Queued    int   `json:"queued"`
	Completed int64 `json:"completed"`
	Panicked  int64 `json:"panicked"`
}

// New creates a pool named name with workers goroutines and a queue of
// queueSize pending tasks.
func New(name string, workers, queueSize int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		name:   name,
		queue:  make(chan namedTask, queueSize),
		ctx:    ctx,
		cancel: cancel,
	}
	p.accepting.Store(true)

	for i := 0; i < workers; i++ {
		go p.worker()
	}

	log.Debug("worker pool started", "pool", name, "workers", workers, "queueSize", queueSize)
	return p
}

// Submit enqueues a task. Returns false if the pool is shut down or the
// queue is full; the caller decides whether that is worth reporting.
func (p *Pool) Submit(label string, task Task) bool {
	if !p.accepting.Load() {
		return false
	}

	// Add before enqueue so Shutdown cannot observe a zero counter while a
	// task sits in the queue.
	p.wg.Add(1)
	select {
	case p.queue <- namedTask{label: label, run: task}:
		return true
	default:
		p.wg.Done()
		log.Warn("worker pool queue full, task rejected", "pool", p.name, "task", label)
		return false
	}
}

// Stats reports queue depth and counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Queued:    len(p.queue),
		Completed: p.completed.Load(),
		Panicked:  p.failed.Load(),
	}
}

// Shutdown stops accepting tasks and waits for queued and in-flight tasks.
// If ctx expires first, running tasks see their context cancelled.
func (p *Pool) Shutdown(ctx context.Context) {
	p.accepting.Store(false)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Debug("worker pool drained", "pool", p.name)
	case <-ctx.Done():
		log.Warn("worker pool drain timed out, cancelling tasks", "pool", p.name)
		p.cancel()
		<-done
	}

	p.cancel()
	p.closeOnce.Do(func() {
		close(p.queue)
	})
}

func (p *Pool) worker() {
	for t := range p.queue {
		p.runTask(t)
	}
}

func (p *Pool) runTask(t namedTask) {
	defer p.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			p.failed.Add(1)
			log.Error("task panicked", "pool", p.name, "task", t.label, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	t.run(p.ctx)
	p.completed.Add(1)
}
