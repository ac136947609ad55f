// Package app wires the particle simulation's GPU side together: pipeline
// registry, resource pool, update and render nodes, and the render graph
// that orders them.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gogpu/particlelife/gpucore"
	"github.com/gogpu/particlelife/internal/graph"
	"github.com/gogpu/particlelife/internal/metrics"
	"github.com/gogpu/particlelife/internal/nodes"
	"github.com/gogpu/particlelife/internal/parallel"
	"github.com/gogpu/particlelife/internal/pipeline"
	"github.com/gogpu/particlelife/internal/resource"
	"github.com/gogpu/particlelife/internal/world"
)

// Defaults.
const (
	DefaultWidth         = 800
	DefaultHeight        = 800
	DefaultWorkgroupSize = 16
)

// ErrNoAdapter is returned by New without an adapter.
var ErrNoAdapter = errors.New("app: no GPU adapter")

// Options configures a Plugin.
type Options struct {
	// Width and Height are the render target extent the kernels are
	// compiled for. Default 800x800.
	Width, Height uint32

	// WorkgroupSize is the kernels' workgroup edge. Default 16.
	WorkgroupSize uint32

	// FramesInFlight bounds how long replaced resources are kept alive.
	FramesInFlight int

	// Defines are extra kernel defines, e.g. BOUNCE_EDGES.
	Defines pipeline.Defines

	// Seed seeds particle generation.
	Seed uint64

	// Compiler defaults to pipeline.NagaCompiler.
	Compiler pipeline.Compiler

	// Workers sizes the pool shared by pipeline compilation and particle
	// generation. Zero uses GOMAXPROCS.
	Workers int

	Logger  *slog.Logger
	Metrics *metrics.Collectors
}

func (o Options) withDefaults() Options {
	if o.Width == 0 {
		o.Width = DefaultWidth
	}
	if o.Height == 0 {
		o.Height = DefaultHeight
	}
	if o.WorkgroupSize == 0 {
		o.WorkgroupSize = DefaultWorkgroupSize
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// Plugin owns the GPU side of the particle simulation.
//
// Frame must be called from one goroutine at a time.
type Plugin struct {
	adapter gpucore.GPUAdapter
	opts    Options
	log     *slog.Logger

	workers  *parallel.WorkerPool
	registry *pipeline.Registry
	layouts  resource.Layouts
	targets  *resource.Targets
	pool     *resource.Pool[world.Entity]
	graph    *graph.Graph

	update        *nodes.UpdateNode
	render        *nodes.RenderNode
	updateKernels pipeline.UpdateKernels
	renderKernels pipeline.RenderKernels

	textures []gpucore.TextureID
	frame    uint64
	closed   bool

	// ensureErrs holds the last resource error logged per entity.
	ensureErrs map[world.Entity]string
}

// New creates layouts, queues every kernel for compilation and builds
// the render graph. It does not wait for compilation.
func New(adapter gpucore.GPUAdapter, opts Options) (*Plugin, error) {
	if adapter == nil {
		return nil, ErrNoAdapter
	}
	opts = opts.withDefaults()
	p := &Plugin{adapter: adapter, opts: opts, log: opts.Logger, ensureErrs: map[world.Entity]string{}}

	var err error
	if p.layouts.Update, err = pipeline.NewUpdateLayout(adapter); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	if p.layouts.Render, err = pipeline.NewRenderLayout(adapter); err != nil {
		adapter.DestroyBindGroupLayout(p.layouts.Update)
		return nil, fmt.Errorf("app: %w", err)
	}

	p.workers = parallel.NewWorkerPool(opts.Workers)
	p.registry = pipeline.NewRegistry(adapter, pipeline.Options{
		Compiler: opts.Compiler,
		Pool:     p.workers,
		Logger:   p.log,
	})
	params := pipeline.KernelParams{
		WorkgroupSize: opts.WorkgroupSize,
		Width:         opts.Width,
		Height:        opts.Height,
		Extra:         opts.Defines,
	}
	p.updateKernels = pipeline.QueueUpdateKernels(p.registry, p.layouts.Update, params)
	p.renderKernels = pipeline.QueueRenderKernels(p.registry, p.layouts.Render, params)

	p.targets = resource.NewTargets()
	p.pool, err = resource.NewPool[world.Entity](adapter, p.layouts, resource.Options{
		Targets:        p.targets,
		Width:          opts.Width,
		Height:         opts.Height,
		FramesInFlight: opts.FramesInFlight,
		Seed:           opts.Seed,
		Workers:        p.workers,
		Logger:         p.log,
		Metrics:        opts.Metrics,
	})
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("app: %w", err)
	}

	nodeOpts := nodes.Options{
		WorkgroupSize: opts.WorkgroupSize,
		Width:         opts.Width,
		Height:        opts.Height,
		Logger:        p.log,
		Metrics:       opts.Metrics,
	}
	p.update = nodes.NewUpdateNode(p.registry, p.pool, p.updateKernels, nodeOpts)
	p.render = nodes.NewRenderNode(p.registry, p.pool, p.renderKernels, nodeOpts)

	if p.graph, err = buildGraph(p.update, p.render, p.log); err != nil {
		p.Close()
		return nil, err
	}

	p.log.Info("app: particle plugin ready",
		"width", opts.Width, "height", opts.Height, "workgroup_size", opts.WorkgroupSize)
	return p, nil
}

// buildGraph wires update -> render -> camera driver.
func buildGraph(update, render graph.Node, log *slog.Logger) (*graph.Graph, error) {
	g := graph.New(log)
	steps := []func() error{
		func() error { return g.AddNode(graph.ParticleUpdate, update) },
		func() error { return g.AddNode(graph.ParticleRender, render) },
		func() error { return g.AddNode(graph.CameraDriver, graph.PresentNode{}) },
		func() error { return g.AddEdge(graph.ParticleUpdate, graph.ParticleRender) },
		func() error { return g.AddEdge(graph.ParticleRender, graph.CameraDriver) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, fmt.Errorf("app: build graph: %w", err)
		}
	}
	if _, err := g.Order(); err != nil {
		return nil, fmt.Errorf("app: build graph: %w", err)
	}
	return g, nil
}

// CreateTarget creates a storage texture of the given size and registers
// it as a render target. The texture is destroyed by Close.
func (p *Plugin) CreateTarget(width, height uint32) (resource.TargetID, error) {
	tex, err := p.adapter.CreateTexture(&gpucore.TextureDesc{
		Label:  "particle_target",
		Width:  width,
		Height: height,
		Format: gpucore.TextureFormatRGBA8Unorm,
		Usage:  gpucore.TextureUsageStorageBinding | gpucore.TextureUsageCopySrc | gpucore.TextureUsageTextureBinding,
	})
	if err != nil {
		return 0, fmt.Errorf("app: create target: %w", err)
	}
	p.textures = append(p.textures, tex)
	return p.targets.Register(tex, width, height), nil
}

// Targets returns the render target table.
func (p *Plugin) Targets() *resource.Targets { return p.targets }

// Registry returns the pipeline registry.
func (p *Plugin) Registry() *pipeline.Registry { return p.registry }

// Pool returns the resource pool.
func (p *Plugin) Pool() *resource.Pool[world.Entity] { return p.pool }

// UpdateState returns e's update warm-up state.
func (p *Plugin) UpdateState(e world.Entity) nodes.UpdateState { return p.update.State(e) }

// RenderState returns e's render state.
func (p *Plugin) RenderState(e world.Entity) nodes.RenderState { return p.render.State(e) }

// WaitReady blocks until every kernel has finished compiling and returns
// the first compile error.
func (p *Plugin) WaitReady(ctx context.Context) error {
	all := p.updateKernels.All()
	handles := append(all[:], p.renderKernels.Clear, p.renderKernels.Render)
	var errs []error
	for _, h := range handles {
		status, err := p.registry.Wait(ctx, h)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if status == pipeline.StatusFailed {
			errs = append(errs, fmt.Errorf("%s: %w", p.registry.Label(h), err))
		}
	}
	return errors.Join(errs...)
}

// Frame prepares resources for snap, records the graph into one encoder
// and submits it. Entities whose resources cannot be prepared are
// skipped for the frame; an error is returned only when encoding or
// submission fails.
func (p *Plugin) Frame(snap *world.Snapshot, dt float32) error {
	start := time.Now()
	p.frame++

	for _, x := range snap.Entities {
		_, err := p.pool.Ensure(x.Entity, snap.Config, snap.Config.Recreate, x.Target, dt)
		p.logEnsure(x.Entity, err)
	}
	p.pool.Retain(snap.Alive)
	for e := range p.ensureErrs {
		if !snap.Alive(e) {
			delete(p.ensureErrs, e)
		}
	}

	enc, err := p.adapter.BeginEncoding(fmt.Sprintf("particle_frame_%d", p.frame))
	if err != nil {
		p.opts.Metrics.FrameFailed()
		return fmt.Errorf("app: begin encoding: %w", err)
	}
	if err := p.graph.Frame(snap, &graph.RunContext{Encoder: enc, Frame: p.frame}); err != nil {
		enc.Discard()
		p.opts.Metrics.FrameFailed()
		return fmt.Errorf("app: frame %d: %w", p.frame, err)
	}
	if err := p.adapter.Submit(enc); err != nil {
		p.opts.Metrics.FrameFailed()
		return fmt.Errorf("app: submit frame %d: %w", p.frame, err)
	}

	if released := p.pool.ReleaseRetired(); released > 0 {
		p.log.Debug("app: released retired resources", "count", released, "frame", p.frame)
	}
	p.opts.Metrics.FrameDone(time.Since(start))
	return nil
}

// logEnsure logs a resource error once until it changes or clears.
func (p *Plugin) logEnsure(e world.Entity, err error) {
	if err == nil {
		if _, ok := p.ensureErrs[e]; ok {
			delete(p.ensureErrs, e)
			p.log.Info("app: resources ready", "entity", e.ID())
		}
		return
	}
	msg := err.Error()
	if p.ensureErrs[e] == msg {
		return
	}
	p.ensureErrs[e] = msg
	p.log.Warn("app: resources not ready", "entity", e.ID(), "err", err)
}

// Frames returns the number of frames attempted.
func (p *Plugin) Frames() uint64 { return p.frame }

// Close waits for the GPU and destroys everything the plugin created.
func (p *Plugin) Close() {
	if p.closed {
		return
	}
	p.closed = true
	if err := p.adapter.WaitIdle(); err != nil {
		p.log.Warn("app: wait idle", "err", err)
	}
	if p.pool != nil {
		p.pool.Close()
	}
	if p.registry != nil {
		p.registry.Close()
	}
	if p.workers != nil {
		p.workers.Close()
	}
	for _, tex := range p.textures {
		p.adapter.DestroyTexture(tex)
	}
	p.textures = nil
	p.adapter.DestroyBindGroupLayout(p.layouts.Render)
	p.adapter.DestroyBindGroupLayout(p.layouts.Update)
}
