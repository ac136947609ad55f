// Package pipeline compiles and caches the particle compute pipelines.
//
// Pipelines are queued by descriptor and compiled on a worker pool. The
// frame loop never blocks on compilation: it polls Status each frame and
// only records dispatches for pipelines that are Ready.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/gogpu/particlelife/gpucore"
	"github.com/gogpu/particlelife/internal/cache"
	"github.com/gogpu/particlelife/internal/parallel"
)

// Handle refers to a queued pipeline. The zero Handle is invalid.
type Handle uint32

// Status is the compile state of a pipeline. It only moves forward:
// Pending to Ready or Pending to Failed.
type Status uint8

const (
	StatusPending Status = iota
	StatusReady
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// Options configures a Registry.
type Options struct {
	// Compiler defaults to NagaCompiler.
	Compiler Compiler

	// Pool runs compilation. When nil the registry owns a pool of
	// Workers goroutines and closes it on Close.
	Pool    *parallel.WorkerPool
	Workers int

	// SPIRVCacheSize bounds the compiled-source cache. Default 32.
	SPIRVCacheSize int

	Logger *slog.Logger
}

// Stats reports registry activity.
type Stats struct {
	Queued  int
	Hits    uint64 // Queue calls answered by an existing entry
	Ready   int
	Failed  int
	Pending int

	SPIRV cache.Stats
}

type entry struct {
	desc     Descriptor
	status   Status
	pipeline gpucore.ComputePipelineID
	err      error
	done     chan struct{}
}

// Registry compiles compute pipelines asynchronously and hands out
// handles whose status can be polled without blocking.
//
// Thread safety: Registry is safe for concurrent use.
type Registry struct {
	adapter  gpucore.GPUAdapter
	compiler Compiler
	pool     *parallel.WorkerPool
	ownsPool bool
	log      *slog.Logger
	spirv    *cache.Cache[uint64, []uint32]
	flight   singleflight.Group

	mu      sync.RWMutex
	entries []*entry // index = Handle-1
	byHash  map[uint64]Handle
	hits    uint64
	closed  bool

	layoutMu sync.Mutex
	layouts  map[gpucore.BindGroupLayoutID]gpucore.PipelineLayoutID

	inflight sync.WaitGroup
}

// NewRegistry creates a registry that builds pipelines on adapter.
func NewRegistry(adapter gpucore.GPUAdapter, opts Options) *Registry {
	r := &Registry{
		adapter:  adapter,
		compiler: opts.Compiler,
		pool:     opts.Pool,
		log:      opts.Logger,
		byHash:   make(map[uint64]Handle),
		layouts:  make(map[gpucore.BindGroupLayoutID]gpucore.PipelineLayoutID),
	}
	if r.compiler == nil {
		r.compiler = NagaCompiler{}
	}
	if r.log == nil {
		r.log = slog.New(slog.DiscardHandler)
	}
	if r.pool == nil {
		r.pool = parallel.NewWorkerPool(opts.Workers)
		r.ownsPool = true
	}
	size := opts.SPIRVCacheSize
	if size <= 0 {
		size = 32
	}
	r.spirv = cache.New[uint64, []uint32](size)
	return r
}

// Queue registers desc for compilation and returns immediately. Queuing
// an identical descriptor again returns the existing handle.
func (r *Registry) Queue(desc Descriptor) Handle {
	desc.Defines = desc.Defines.Clone()
	key := desc.Hash()

	r.mu.Lock()
	if h, ok := r.byHash[key]; ok {
		r.hits++
		r.mu.Unlock()
		return h
	}
	e := &entry{desc: desc, done: make(chan struct{})}
	r.entries = append(r.entries, e)
	h := Handle(len(r.entries))
	r.byHash[key] = h

	if r.closed {
		r.mu.Unlock()
		r.finish(e, gpucore.InvalidID, ErrClosed)
		return h
	}
	r.inflight.Add(1)
	r.mu.Unlock()

	if !r.pool.Submit(func() {
		defer r.inflight.Done()
		r.build(e)
	}) {
		r.inflight.Done()
		r.finish(e, gpucore.InvalidID, ErrClosed)
	}
	return h
}

func (r *Registry) lookup(h Handle) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if h == 0 || int(h) > len(r.entries) {
		return nil
	}
	return r.entries[h-1]
}

// Status returns the current state of h without blocking. Unknown handles
// report StatusFailed.
func (r *Registry) Status(h Handle) Status {
	e := r.lookup(h)
	if e == nil {
		return StatusFailed
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return e.status
}

// Pipeline returns the compiled pipeline once h is Ready.
func (r *Registry) Pipeline(h Handle) (gpucore.ComputePipelineID, bool) {
	e := r.lookup(h)
	if e == nil {
		return gpucore.InvalidID, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return e.pipeline, e.status == StatusReady
}

// Err returns the build error of a Failed pipeline, nil otherwise.
func (r *Registry) Err(h Handle) error {
	e := r.lookup(h)
	if e == nil {
		return fmt.Errorf("%w: %d", ErrUnknownHandle, h)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return e.err
}

// Label returns the descriptor label of h.
func (r *Registry) Label(h Handle) string {
	if e := r.lookup(h); e != nil {
		return e.desc.Label
	}
	return ""
}

// Wait blocks until h leaves Pending or ctx is done. It is meant for
// tools and tests; the frame loop polls Status instead.
func (r *Registry) Wait(ctx context.Context, h Handle) (Status, error) {
	e := r.lookup(h)
	if e == nil {
		return StatusFailed, fmt.Errorf("%w: %d", ErrUnknownHandle, h)
	}
	select {
	case <-e.done:
		r.mu.RLock()
		defer r.mu.RUnlock()
		return e.status, e.err
	case <-ctx.Done():
		return StatusPending, ctx.Err()
	}
}

// Stats returns a snapshot of registry activity.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := Stats{Queued: len(r.entries), Hits: r.hits, SPIRV: r.spirv.Stats()}
	for _, e := range r.entries {
		switch e.status {
		case StatusReady:
			s.Ready++
		case StatusFailed:
			s.Failed++
		default:
			s.Pending++
		}
	}
	return s
}

// Close waits for in-flight builds and destroys every pipeline and
// pipeline layout the registry created. Handles stay valid for Status
// queries but their pipelines must no longer be used.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	r.inflight.Wait()
	if r.ownsPool {
		r.pool.Close()
	}

	r.mu.Lock()
	for _, e := range r.entries {
		if e.pipeline != gpucore.InvalidID {
			r.adapter.DestroyComputePipeline(e.pipeline)
			e.pipeline = gpucore.InvalidID
		}
	}
	r.mu.Unlock()

	r.layoutMu.Lock()
	for bgl, pl := range r.layouts {
		r.adapter.DestroyPipelineLayout(pl)
		delete(r.layouts, bgl)
	}
	r.layoutMu.Unlock()
	r.spirv.Clear()
}

func (r *Registry) finish(e *entry, pipeline gpucore.ComputePipelineID, err error) {
	r.mu.Lock()
	e.pipeline = pipeline
	e.err = err
	if err != nil {
		e.status = StatusFailed
	} else {
		e.status = StatusReady
	}
	r.mu.Unlock()
	close(e.done)

	if err != nil {
		r.log.Error("pipeline: build failed", "label", e.desc.Label, "entry", e.desc.EntryPoint, "err", err)
	} else {
		r.log.Debug("pipeline: ready", "label", e.desc.Label, "entry", e.desc.EntryPoint)
	}
}

// build runs the whole pipeline creation for e on a pool worker:
// preprocess, validate, compile, shader module, pipeline layout, pipeline.
func (r *Registry) build(e *entry) {
	defer func() {
		if p := recover(); p != nil {
			r.finish(e, gpucore.InvalidID, fmt.Errorf("%w: %s: %v", ErrCompile, e.desc.Label, &parallel.PanicError{Value: p}))
		}
	}()
	pipeline, err := r.create(&e.desc)
	if err != nil {
		err = fmt.Errorf("pipeline %q: %w", e.desc.Label, err)
	}
	r.finish(e, pipeline, err)
}

func (r *Registry) create(desc *Descriptor) (gpucore.ComputePipelineID, error) {
	src, err := Preprocess(desc.Source, desc.Defines)
	if err != nil {
		return gpucore.InvalidID, err
	}
	if desc.Workgroup != ([3]uint32{}) {
		if err := checkLimits(desc.Workgroup, r.adapter.Capabilities()); err != nil {
			return gpucore.InvalidID, err
		}
		if err := ValidateWorkgroupSize(src, desc.EntryPoint, desc.Defines, desc.Workgroup); err != nil {
			return gpucore.InvalidID, err
		}
	} else if _, ok := entryPointAttrs(src, desc.EntryPoint); !ok {
		return gpucore.InvalidID, fmt.Errorf("%w: %q", ErrEntryPointNotFound, desc.EntryPoint)
	}

	words, err := r.compileSource(src)
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("%w: %w", ErrCompile, err)
	}

	module, err := r.adapter.CreateShaderModule(words, desc.Label)
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("create shader module: %w", err)
	}
	defer r.adapter.DestroyShaderModule(module)

	layout, err := r.pipelineLayout(desc.Layout, desc.Label)
	if err != nil {
		return gpucore.InvalidID, err
	}

	pipeline, err := r.adapter.CreateComputePipeline(&gpucore.ComputePipelineDesc{
		Label:        desc.Label,
		Layout:       layout,
		ShaderModule: module,
		EntryPoint:   desc.EntryPoint,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("create compute pipeline: %w", err)
	}
	return pipeline, nil
}

// compileSource compiles preprocessed WGSL at most once per distinct
// source, even when several kernels of one file build concurrently.
func (r *Registry) compileSource(src string) ([]uint32, error) {
	key := hashSource(src)
	if words, ok := r.spirv.Get(key); ok {
		return words, nil
	}
	v, err, _ := r.flight.Do(strconv.FormatUint(key, 16), func() (any, error) {
		if words, ok := r.spirv.Get(key); ok {
			return words, nil
		}
		words, err := r.compiler.Compile(src)
		if err != nil {
			return nil, err
		}
		r.spirv.Set(key, words)
		return words, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]uint32), nil
}

// pipelineLayout returns the shared single-group pipeline layout for bgl.
func (r *Registry) pipelineLayout(bgl gpucore.BindGroupLayoutID, label string) (gpucore.PipelineLayoutID, error) {
	r.layoutMu.Lock()
	defer r.layoutMu.Unlock()
	if pl, ok := r.layouts[bgl]; ok {
		return pl, nil
	}
	pl, err := r.adapter.CreatePipelineLayout(label+"_layout", []gpucore.BindGroupLayoutID{bgl})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("create pipeline layout: %w", err)
	}
	r.layouts[bgl] = pl
	return pl, nil
}
