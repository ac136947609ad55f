// Package parallel provides the goroutine pool used for background work:
// shader compilation and chunked particle generation.
package parallel

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

// WorkerPool is a fixed set of goroutines draining a shared work queue.
//
// Work items that panic are recovered and reported through the panic
// handler so one bad shader cannot take the frame loop down.
//
// Thread safety: WorkerPool is safe for concurrent use.
type WorkerPool struct {
	workers int

	// queue is the shared work queue. Closed by Close.
	queue chan func()

	// mu guards sends on queue against Close.
	mu sync.RWMutex

	// wg waits for all workers to finish.
	wg sync.WaitGroup

	// running indicates whether the pool is accepting work.
	running atomic.Bool

	// queued counts items submitted but not yet started.
	queued atomic.Int64

	onPanic func(recovered any)
}

// Option configures a WorkerPool.
type Option func(*WorkerPool)

// WithPanicHandler sets the function called with the value recovered from
// a panicking work item. The default discards it.
func WithPanicHandler(fn func(recovered any)) Option {
	return func(p *WorkerPool) { p.onPanic = fn }
}

// NewWorkerPool creates a pool with the given number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
// The pool starts immediately and workers begin waiting for work.
func NewWorkerPool(workers int, opts ...Option) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	queueSize := workers * 4
	if queueSize < 8 {
		queueSize = 8
	}

	p := &WorkerPool{
		workers: workers,
		queue:   make(chan func(), queueSize),
		onPanic: func(any) {},
	}
	for _, opt := range opts {
		opt(p)
	}

	p.running.Store(true)

	p.wg.Add(workers)
	for range workers {
		go p.worker()
	}

	return p
}

// worker runs queued work until the queue is closed and drained.
func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for work := range p.queue {
		p.queued.Add(-1)
		p.run(work)
	}
}

func (p *WorkerPool) run(work func()) {
	defer func() {
		if r := recover(); r != nil {
			p.onPanic(r)
		}
	}()
	work()
}

// Submit queues a single work item. It reports false if the pool is
// closed, in which case fn is not run.
func (p *WorkerPool) Submit(fn func()) bool {
	if fn == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.running.Load() {
		return false
	}
	p.queued.Add(1)
	p.queue <- fn
	return true
}

// ExecuteAll runs every work item on the pool and waits for all of them.
// If the pool is closed, the items run on the calling goroutine.
func (p *WorkerPool) ExecuteAll(work []func()) {
	if len(work) == 0 {
		return
	}

	var done sync.WaitGroup
	done.Add(len(work))
	for _, fn := range work {
		wrapped := func() {
			defer done.Done()
			fn()
		}
		if !p.Submit(wrapped) {
			p.run(wrapped)
		}
	}
	done.Wait()
}

// Close stops accepting work, lets queued work finish, and stops all
// workers. Close is safe to call multiple times.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	if !p.running.CompareAndSwap(true, false) {
		p.mu.Unlock()
		return
	}
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}

// Workers returns the number of workers in the pool.
func (p *WorkerPool) Workers() int {
	return p.workers
}

// IsRunning returns true if the pool is still accepting work.
func (p *WorkerPool) IsRunning() bool {
	return p.running.Load()
}

// QueuedWork returns the number of items waiting for a worker.
func (p *WorkerPool) QueuedWork() int {
	return int(p.queued.Load())
}

// PanicError wraps a value recovered from a panicking work item.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("parallel: work item panicked: %v", e.Value)
}
