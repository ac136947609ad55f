// Package resource owns the per-entity GPU buffers and bind groups of the
// particle simulation.
//
// A resource set is built whole or not at all. Rebuilding builds the new
// set off to the side, swaps it in, and retires the old one until the
// frames that may still reference it have completed.
package resource

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gogpu/particlelife/gpucore"
	"github.com/gogpu/particlelife/internal/metrics"
	"github.com/gogpu/particlelife/internal/parallel"
	"github.com/gogpu/particlelife/internal/particle"
	"github.com/gogpu/particlelife/internal/pipeline"
)

// Pool errors.
var (
	// ErrNoAdapter is returned by NewPool without an adapter.
	ErrNoAdapter = errors.New("resource: no GPU adapter")

	// ErrClosed is returned by Ensure after Close.
	ErrClosed = errors.New("resource: pool closed")
)

// DefaultFramesInFlight is how many frames a retired set outlives its
// replacement before it is destroyed.
const DefaultFramesInFlight = 2

// Layouts are the bind group layouts resource sets are bound against.
type Layouts struct {
	Update gpucore.BindGroupLayoutID
	Render gpucore.BindGroupLayoutID
}

// Options configures a Pool.
type Options struct {
	// Targets resolves render targets. Required for render bind groups.
	Targets *Targets

	// Width and Height bound initial particle positions when the target
	// cannot be resolved at build time.
	Width, Height uint32

	// FramesInFlight defaults to DefaultFramesInFlight.
	FramesInFlight int

	// Seed seeds particle generation. Each build uses Seed + generation.
	Seed uint64

	// Workers generates particles in parallel when non-nil.
	Workers *parallel.WorkerPool

	Logger  *slog.Logger
	Metrics *metrics.Collectors
}

// Set is one entity's complete resource set.
type Set struct {
	Generation uint64
	N, M       int
	Sizes      Sizes
	Target     TargetID

	Particles      gpucore.BufferID
	Config         gpucore.BufferID
	Matrix         gpucore.BufferID
	DeltaTime      gpucore.BufferID
	SpatialIndices gpucore.BufferID
	SpatialOffsets gpucore.BufferID

	UpdateBindGroup gpucore.BindGroupID
	RenderBindGroup gpucore.BindGroupID

	renderTexture gpucore.TextureID
	// applied is the configuration whose scalars the config buffer holds.
	applied particle.SimulationConfig
}

// HasRender reports whether the render bind group exists.
func (s *Set) HasRender() bool {
	return s != nil && s.RenderBindGroup != gpucore.InvalidID
}

// buffers lists every buffer of the set.
func (s *Set) buffers() []gpucore.BufferID {
	return []gpucore.BufferID{s.Particles, s.Config, s.Matrix, s.DeltaTime, s.SpatialIndices, s.SpatialOffsets}
}

type retiredItem struct {
	frame      uint64
	bindGroups []gpucore.BindGroupID
	buffers    []gpucore.BufferID
}

// Pool lazily creates and recreates resource sets keyed by K, usually an
// ECS entity. Sets are only touched on the render side of the frame, but
// Pool is safe for concurrent use.
type Pool[K comparable] struct {
	adapter gpucore.GPUAdapter
	layouts Layouts
	opts    Options
	log     *slog.Logger

	mu         sync.Mutex
	sets       map[K]*Set
	retired    []retiredItem
	frame      uint64
	generation uint64
	closed     bool
}

// NewPool creates an empty pool.
func NewPool[K comparable](adapter gpucore.GPUAdapter, layouts Layouts, opts Options) (*Pool[K], error) {
	if adapter == nil {
		return nil, ErrNoAdapter
	}
	if opts.FramesInFlight <= 0 {
		opts.FramesInFlight = DefaultFramesInFlight
	}
	if opts.Targets == nil {
		opts.Targets = NewTargets()
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Pool[K]{
		adapter: adapter,
		layouts: layouts,
		opts:    opts,
		log:     log,
		sets:    make(map[K]*Set),
	}, nil
}

// Ensure makes sure key has a resource set matching cfg and returns it.
//
// With recreate false and unchanged n and m, the existing set is reused:
// only the config uniform (when its scalars changed) and the delta time
// are uploaded. Otherwise a complete new set is built with fresh
// particles and the old one is retired. On error the previous set, if
// any, stays in place and is returned with the error.
//
// The render bind group is created once target resolves to a texture and
// rebuilt whenever that texture changes. Until then the set has no render
// bind group.
func (p *Pool[K]) Ensure(key K, cfg particle.SimulationConfig, recreate bool, target TargetID, dt float32) (*Set, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}

	cur := p.sets[key]
	if cur == nil || recreate || cur.N != cfg.N || cur.M != cfg.M {
		if err := cfg.Validate(); err != nil {
			return cur, fmt.Errorf("resource: %w", err)
		}
		next, err := p.build(cfg, target)
		if err != nil {
			return cur, err
		}
		if cur != nil {
			p.retireLocked(cur.bindGroups(), cur.buffers())
		}
		p.sets[key] = next
		p.opts.Metrics.Rebuild()
		p.log.Info("resource: set built",
			"generation", next.Generation, "n", next.N, "m", next.M,
			"bytes", next.Sizes.Total(), "recreate", recreate)
		cur = next
	} else if next := appliedConfig(cfg); !next.Equal(cur.applied) {
		if err := p.adapter.WriteBuffer(cur.Config, 0, next.ShaderConfig().Bytes()); err != nil {
			return cur, fmt.Errorf("resource: upload config: %w", err)
		}
		cur.applied = next
	}

	if err := p.adapter.WriteBuffer(cur.DeltaTime, 0, particle.PackDeltaTime(dt)); err != nil {
		return cur, fmt.Errorf("resource: upload delta time: %w", err)
	}

	if err := p.ensureRenderLocked(cur, target); err != nil {
		return cur, err
	}
	return cur, nil
}

func (s *Set) bindGroups() []gpucore.BindGroupID {
	var out []gpucore.BindGroupID
	if s.UpdateBindGroup != gpucore.InvalidID {
		out = append(out, s.UpdateBindGroup)
	}
	if s.RenderBindGroup != gpucore.InvalidID {
		out = append(out, s.RenderBindGroup)
	}
	return out
}

// appliedConfig strips what the config uniform does not carry, so changes
// are detected with SimulationConfig.Equal.
func appliedConfig(cfg particle.SimulationConfig) particle.SimulationConfig {
	cfg.Recreate = false
	cfg.AttractionMatrix = nil
	return cfg
}

// ensureRenderLocked creates, rebuilds or drops the render bind group to
// follow the texture currently behind target.
func (p *Pool[K]) ensureRenderLocked(s *Set, target TargetID) error {
	tg, ok := p.opts.Targets.Resolve(target)
	if !ok {
		if s.RenderBindGroup != gpucore.InvalidID {
			p.retireLocked([]gpucore.BindGroupID{s.RenderBindGroup}, nil)
			s.RenderBindGroup = gpucore.InvalidID
			s.renderTexture = gpucore.InvalidID
			p.log.Debug("resource: render target gone, bind group dropped", "generation", s.Generation)
		}
		s.Target = target
		return nil
	}
	if s.RenderBindGroup != gpucore.InvalidID && s.renderTexture == tg.Texture && s.Target == target {
		return nil
	}

	bg, err := p.adapter.CreateBindGroup(&gpucore.BindGroupDesc{
		Label:  fmt.Sprintf("particle_render_bg_%d", s.Generation),
		Layout: p.layouts.Render,
		Entries: []gpucore.BindGroupEntry{
			{Binding: pipeline.RenderBindingParticles, Buffer: s.Particles, Size: allocSize(s.Sizes.Particles)},
			{Binding: pipeline.RenderBindingConfig, Buffer: s.Config, Size: s.Sizes.Config},
			{Binding: pipeline.RenderBindingTexture, Texture: tg.Texture},
		},
	})
	if err != nil {
		return fmt.Errorf("resource: render bind group: %w", err)
	}
	if s.RenderBindGroup != gpucore.InvalidID {
		p.retireLocked([]gpucore.BindGroupID{s.RenderBindGroup}, nil)
	}
	s.RenderBindGroup = bg
	s.renderTexture = tg.Texture
	s.Target = target
	p.log.Debug("resource: render bind group created", "generation", s.Generation, "texture", tg.Texture)
	return nil
}

// build creates every buffer of a new set, uploads its initial contents
// and creates the update bind group. On failure everything it created is
// destroyed.
func (p *Pool[K]) build(cfg particle.SimulationConfig, target TargetID) (*Set, error) {
	p.generation++
	s := &Set{
		Generation: p.generation,
		N:          cfg.N,
		M:          cfg.M,
		Sizes:      SizesFor(cfg.N, cfg.M),
		Target:     target,
		applied:    appliedConfig(cfg),
	}

	var created []gpucore.BufferID
	fail := func(err error) (*Set, error) {
		for _, id := range created {
			p.adapter.DestroyBuffer(id)
		}
		return nil, err
	}
	create := func(label string, size uint64, usage gpucore.BufferUsage) (gpucore.BufferID, error) {
		alloc := allocSize(size)
		id, err := p.adapter.CreateBuffer(&gpucore.BufferDesc{
			Label: fmt.Sprintf("%s_%d", label, s.Generation),
			Size:  alloc,
			Usage: usage,
		})
		if err != nil {
			return gpucore.InvalidID, fmt.Errorf("resource: create %s buffer (%d bytes): %w", label, alloc, err)
		}
		created = append(created, id)
		p.log.Debug("resource: buffer created", "label", label, "size", alloc, "generation", s.Generation)
		return id, nil
	}

	specs := []struct {
		dst   *gpucore.BufferID
		label string
		size  uint64
		usage gpucore.BufferUsage
	}{
		{&s.Particles, "particles", s.Sizes.Particles, gpucore.BufferUsageCopyDst | gpucore.BufferUsageStorage | gpucore.BufferUsageCopySrc},
		{&s.Config, "config", s.Sizes.Config, gpucore.BufferUsageUniform | gpucore.BufferUsageCopyDst},
		{&s.Matrix, "attraction_matrix", s.Sizes.Matrix, gpucore.BufferUsageStorage | gpucore.BufferUsageCopySrc | gpucore.BufferUsageCopyDst},
		{&s.DeltaTime, "delta_time", s.Sizes.DeltaTime, gpucore.BufferUsageUniform | gpucore.BufferUsageCopyDst},
		{&s.SpatialIndices, "spatial_indices", s.Sizes.SpatialIndices, gpucore.BufferUsageStorage | gpucore.BufferUsageCopyDst},
		{&s.SpatialOffsets, "spatial_offsets", s.Sizes.SpatialOffsets, gpucore.BufferUsageStorage | gpucore.BufferUsageCopyDst},
	}
	for _, spec := range specs {
		id, err := create(spec.label, spec.size, spec.usage)
		if err != nil {
			return fail(err)
		}
		*spec.dst = id
	}

	width, height := p.opts.Width, p.opts.Height
	if tg, ok := p.opts.Targets.Resolve(target); ok {
		width, height = tg.Width, tg.Height
	}
	particles := particle.Generate(cfg.N, cfg.M, width, height, p.opts.Seed+s.Generation, p.opts.Workers)

	uploads := []struct {
		label string
		id    gpucore.BufferID
		data  []byte
	}{
		{"particles", s.Particles, particle.PackParticles(particles)},
		{"config", s.Config, s.applied.ShaderConfig().Bytes()},
		{"attraction_matrix", s.Matrix, particle.PackMatrix(cfg.AttractionMatrix)},
	}
	for _, u := range uploads {
		if len(u.data) == 0 {
			continue
		}
		if err := p.adapter.WriteBuffer(u.id, 0, u.data); err != nil {
			return fail(fmt.Errorf("resource: upload %s: %w", u.label, err))
		}
	}

	bg, err := p.adapter.CreateBindGroup(&gpucore.BindGroupDesc{
		Label:  fmt.Sprintf("particle_update_bg_%d", s.Generation),
		Layout: p.layouts.Update,
		Entries: []gpucore.BindGroupEntry{
			{Binding: pipeline.UpdateBindingParticles, Buffer: s.Particles, Size: allocSize(s.Sizes.Particles)},
			{Binding: pipeline.UpdateBindingConfig, Buffer: s.Config, Size: s.Sizes.Config},
			{Binding: pipeline.UpdateBindingMatrix, Buffer: s.Matrix, Size: allocSize(s.Sizes.Matrix)},
			{Binding: pipeline.UpdateBindingDeltaTime, Buffer: s.DeltaTime, Size: s.Sizes.DeltaTime},
			{Binding: pipeline.UpdateBindingSpatialIndices, Buffer: s.SpatialIndices, Size: allocSize(s.Sizes.SpatialIndices)},
			{Binding: pipeline.UpdateBindingSpatialOffsets, Buffer: s.SpatialOffsets, Size: allocSize(s.Sizes.SpatialOffsets)},
		},
	})
	if err != nil {
		return fail(fmt.Errorf("resource: update bind group: %w", err))
	}
	s.UpdateBindGroup = bg
	return s, nil
}

// Get returns the current set of key.
func (p *Pool[K]) Get(key K) (*Set, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sets[key]
	return s, ok
}

// Generation returns the generation of key's current set, or 0.
func (p *Pool[K]) Generation(key K) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.sets[key]; ok {
		return s.Generation
	}
	return 0
}

// Keys returns the keys that currently own a set.
func (p *Pool[K]) Keys() []K {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]K, 0, len(p.sets))
	for k := range p.sets {
		keys = append(keys, k)
	}
	return keys
}

// Len returns the number of live sets.
func (p *Pool[K]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sets)
}

// Remove retires the set of key, if any.
func (p *Pool[K]) Remove(key K) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.sets[key]; ok {
		p.retireLocked(s.bindGroups(), s.buffers())
		delete(p.sets, key)
		p.log.Debug("resource: set removed", "generation", s.Generation)
	}
}

// Retain removes the sets of every key for which live returns false.
func (p *Pool[K]) Retain(live func(K) bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, s := range p.sets {
		if !live(k) {
			p.retireLocked(s.bindGroups(), s.buffers())
			delete(p.sets, k)
		}
	}
}

func (p *Pool[K]) retireLocked(bindGroups []gpucore.BindGroupID, buffers []gpucore.BufferID) {
	p.retired = append(p.retired, retiredItem{frame: p.frame, bindGroups: bindGroups, buffers: buffers})
}

// ReleaseRetired advances the pool's frame counter and destroys retired
// resources that have outlived FramesInFlight frames. Call it once per
// frame after submission.
func (p *Pool[K]) ReleaseRetired() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frame++

	released := 0
	keep := p.retired[:0]
	for _, item := range p.retired {
		if p.frame-item.frame < uint64(p.opts.FramesInFlight) {
			keep = append(keep, item)
			continue
		}
		p.destroy(item)
		released++
	}
	clear(p.retired[len(keep):])
	p.retired = keep
	p.opts.Metrics.ResourceSets(len(p.sets), len(p.retired))
	return released
}

// Retired returns the number of retired items awaiting release.
func (p *Pool[K]) Retired() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.retired)
}

func (p *Pool[K]) destroy(item retiredItem) {
	for _, bg := range item.bindGroups {
		p.adapter.DestroyBindGroup(bg)
	}
	for _, b := range item.buffers {
		p.adapter.DestroyBuffer(b)
	}
}

// Close destroys every set and retired resource immediately. The caller
// must have waited for the GPU to go idle.
func (p *Pool[K]) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for _, item := range p.retired {
		p.destroy(item)
	}
	p.retired = nil
	for k, s := range p.sets {
		p.destroy(retiredItem{bindGroups: s.bindGroups(), buffers: s.buffers()})
		delete(p.sets, k)
	}
}
