package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestWorkerPool_Create(t *testing.T) {
	tests := []struct {
		name    string
		workers int
		want    int
	}{
		{"explicit", 4, 4},
		{"zero uses GOMAXPROCS", 0, runtime.GOMAXPROCS(0)},
		{"negative uses GOMAXPROCS", -5, runtime.GOMAXPROCS(0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := NewWorkerPool(tt.workers)
			defer pool.Close()

			if pool.Workers() != tt.want {
				t.Errorf("Workers() = %d, want %d", pool.Workers(), tt.want)
			}
			if !pool.IsRunning() {
				t.Error("pool should be running after creation")
			}
		})
	}
}

func TestWorkerPool_ExecuteAll(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	var counter atomic.Int64
	work := make([]func(), 100)
	for i := range work {
		work[i] = func() { counter.Add(1) }
	}

	pool.ExecuteAll(work)

	if counter.Load() != 100 {
		t.Errorf("counter = %d, want 100", counter.Load())
	}
}

func TestWorkerPool_ExecuteAll_Empty(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Close()

	pool.ExecuteAll(nil)
	pool.ExecuteAll([]func(){})
}

func TestWorkerPool_ExecuteAll_AfterClose(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Close()

	ran := 0
	pool.ExecuteAll([]func(){func() { ran++ }, func() { ran++ }})
	if ran != 2 {
		t.Errorf("ran = %d, want 2 (inline fallback)", ran)
	}
}

func TestWorkerPool_Submit(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Close()

	done := make(chan struct{})
	if !pool.Submit(func() { close(done) }) {
		t.Fatal("Submit returned false on running pool")
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("submitted work did not run")
	}
}

func TestWorkerPool_SubmitAfterClose(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Close()

	if pool.Submit(func() {}) {
		t.Error("Submit after Close should return false")
	}
	if pool.Submit(nil) {
		t.Error("Submit(nil) should return false")
	}
}

func TestWorkerPool_CloseDrainsQueue(t *testing.T) {
	pool := NewWorkerPool(1)

	var counter atomic.Int64
	for range 20 {
		pool.Submit(func() { counter.Add(1) })
	}
	pool.Close()

	if counter.Load() != 20 {
		t.Errorf("counter = %d after Close, want 20", counter.Load())
	}
	if pool.IsRunning() {
		t.Error("pool should not be running after Close")
	}
	pool.Close() // second Close is a no-op
}

func TestWorkerPool_PanicRecovered(t *testing.T) {
	var (
		mu  sync.Mutex
		got any
	)
	pool := NewWorkerPool(1, WithPanicHandler(func(r any) {
		mu.Lock()
		got = r
		mu.Unlock()
	}))

	pool.Submit(func() { panic("bad shader") })
	var after atomic.Bool
	pool.Submit(func() { after.Store(true) })
	pool.Close()

	mu.Lock()
	defer mu.Unlock()
	if got != "bad shader" {
		t.Errorf("recovered = %v, want %q", got, "bad shader")
	}
	if !after.Load() {
		t.Error("worker should keep running after a panic")
	}
}

func TestPanicError(t *testing.T) {
	err := &PanicError{Value: "x"}
	if err.Error() != "parallel: work item panicked: x" {
		t.Errorf("Error() = %q", err.Error())
	}
}
