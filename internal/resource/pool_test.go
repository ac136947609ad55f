package resource

import (
	"bytes"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/gogpu/particlelife/gpucore"
	"github.com/gogpu/particlelife/internal/particle"
	"github.com/gogpu/particlelife/internal/pipeline"
)

type poolFixture struct {
	adapter *gpucore.RecordingAdapter
	targets *Targets
	pool    *Pool[int]
}

func newPoolFixture(t *testing.T) *poolFixture {
	t.Helper()
	adapter := gpucore.NewRecordingAdapter()
	update, err := pipeline.NewUpdateLayout(adapter)
	if err != nil {
		t.Fatalf("NewUpdateLayout: %v", err)
	}
	render, err := pipeline.NewRenderLayout(adapter)
	if err != nil {
		t.Fatalf("NewRenderLayout: %v", err)
	}
	targets := NewTargets()
	pool, err := NewPool[int](adapter, Layouts{Update: update, Render: render}, Options{
		Targets: targets,
		Width:   800,
		Height:  800,
		Seed:    7,
	})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	t.Cleanup(pool.Close)
	return &poolFixture{adapter: adapter, targets: targets, pool: pool}
}

func (f *poolFixture) texture(t *testing.T, w, h uint32) gpucore.TextureID {
	t.Helper()
	tex, err := f.adapter.CreateTexture(&gpucore.TextureDesc{
		Label:  "target",
		Width:  w,
		Height: h,
		Format: gpucore.TextureFormatRGBA8Unorm,
		Usage:  gpucore.TextureUsageStorageBinding,
	})
	if err != nil {
		t.Fatalf("CreateTexture: %v", err)
	}
	return tex
}

func testConfig(n, m int) particle.SimulationConfig {
	return particle.New(n, m, rand.New(rand.NewPCG(3, 4)))
}

func TestNewPoolRequiresAdapter(t *testing.T) {
	if _, err := NewPool[int](nil, Layouts{}, Options{}); !errors.Is(err, ErrNoAdapter) {
		t.Fatalf("err = %v, want ErrNoAdapter", err)
	}
}

func TestEnsureCreatesCompleteSet(t *testing.T) {
	f := newPoolFixture(t)
	cfg := testConfig(100, 3)
	target := f.targets.Register(f.texture(t, 800, 800), 800, 800)

	s, err := f.pool.Ensure(1, cfg, false, target, 0.016)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}

	want := SizesFor(100, 3)
	buffers := []struct {
		name string
		id   gpucore.BufferID
		size uint64
	}{
		{"particles", s.Particles, want.Particles},
		{"config", s.Config, want.Config},
		{"matrix", s.Matrix, want.Matrix},
		{"delta time", s.DeltaTime, want.DeltaTime},
		{"spatial indices", s.SpatialIndices, want.SpatialIndices},
		{"spatial offsets", s.SpatialOffsets, want.SpatialOffsets},
	}
	for _, b := range buffers {
		t.Run(b.name, func(t *testing.T) {
			desc, ok := f.adapter.Buffer(b.id)
			if !ok {
				t.Fatalf("buffer %d not live", b.id)
			}
			if desc.Size != b.size {
				t.Errorf("size = %d, want %d", desc.Size, b.size)
			}
		})
	}

	if !s.HasRender() {
		t.Fatal("render bind group missing with a resolved target")
	}
	if got := f.adapter.LiveBindGroups(); got != 2 {
		t.Errorf("live bind groups = %d, want 2", got)
	}
	if !bytes.Equal(f.adapter.BufferData(s.Config), cfg.ShaderConfig().Bytes()) {
		t.Error("config buffer does not hold the packed shader config")
	}
	if !bytes.Equal(f.adapter.BufferData(s.Matrix), particle.PackMatrix(cfg.AttractionMatrix)) {
		t.Error("matrix buffer does not hold the attraction matrix")
	}
	ps := particle.UnpackParticles(f.adapter.BufferData(s.Particles))
	if len(ps) != 100 {
		t.Fatalf("unpacked %d particles, want 100", len(ps))
	}
	for i, p := range ps {
		if p.Type >= 3 || p.Position[0] < 0 || p.Position[0] >= 800 {
			t.Fatalf("particle %d out of range: %+v", i, p)
		}
	}
}

func TestEnsureIsIdempotent(t *testing.T) {
	f := newPoolFixture(t)
	cfg := testConfig(64, 2)

	first, err := f.pool.Ensure(1, cfg, false, 0, 0.016)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	buffers := f.adapter.LiveBuffers()
	for range 5 {
		s, err := f.pool.Ensure(1, cfg, false, 0, 0.016)
		if err != nil {
			t.Fatalf("Ensure: %v", err)
		}
		if s != first {
			t.Fatal("set rebuilt without a change")
		}
	}
	if got := f.adapter.LiveBuffers(); got != buffers {
		t.Errorf("live buffers = %d, want %d", got, buffers)
	}
	if f.pool.Retired() != 0 {
		t.Errorf("retired = %d, want 0", f.pool.Retired())
	}
}

func TestEnsureRebuilds(t *testing.T) {
	tests := []struct {
		name     string
		next     func(particle.SimulationConfig) particle.SimulationConfig
		recreate bool
	}{
		{"recreate requested", func(c particle.SimulationConfig) particle.SimulationConfig { return c }, true},
		{"particle count changed", func(c particle.SimulationConfig) particle.SimulationConfig {
			c.N = 200
			return c
		}, false},
		{"type count changed", func(c particle.SimulationConfig) particle.SimulationConfig {
			c.M = 4
			c.AttractionMatrix = make([]float32, 16)
			return c
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPoolFixture(t)
			cfg := testConfig(100, 3)
			old, err := f.pool.Ensure(1, cfg, false, 0, 0.016)
			if err != nil {
				t.Fatalf("Ensure: %v", err)
			}
			next := tt.next(cfg)
			s, err := f.pool.Ensure(1, next, tt.recreate, 0, 0.016)
			if err != nil {
				t.Fatalf("Ensure: %v", err)
			}
			if s == old || s.Generation <= old.Generation {
				t.Fatalf("generation %d, old %d: set not rebuilt", s.Generation, old.Generation)
			}
			if s.N != next.N || s.M != next.M {
				t.Errorf("set n=%d m=%d, want n=%d m=%d", s.N, s.M, next.N, next.M)
			}
			if got, _ := f.pool.Get(1); got != s {
				t.Error("Get does not return the new set")
			}
			if f.pool.Retired() != 1 {
				t.Errorf("retired = %d, want 1", f.pool.Retired())
			}
			// The old set stays alive until in-flight frames complete.
			if _, ok := f.adapter.Buffer(old.Particles); !ok {
				t.Error("old particle buffer destroyed before its frames completed")
			}
		})
	}
}

func TestEnsureReuploadsChangedConfig(t *testing.T) {
	f := newPoolFixture(t)
	cfg := testConfig(32, 2)
	s, err := f.pool.Ensure(1, cfg, false, 0, 0.016)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}

	cfg.RMax = 120
	cfg.AttractionMatrix = []float32{1, 1, 1, 1}
	got, err := f.pool.Ensure(1, cfg, false, 0, 0.016)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if got != s {
		t.Fatal("scalar change rebuilt the set")
	}
	if !bytes.Equal(f.adapter.BufferData(s.Config), cfg.ShaderConfig().Bytes()) {
		t.Error("config buffer not updated")
	}
	if bytes.Equal(f.adapter.BufferData(s.Matrix), particle.PackMatrix(cfg.AttractionMatrix)) {
		t.Error("matrix uploaded without a recreate")
	}
}

func TestEnsureWritesDeltaTimeEveryFrame(t *testing.T) {
	f := newPoolFixture(t)
	cfg := testConfig(16, 1)
	for _, dt := range []float32{0.016, 0.033, 0.008} {
		s, err := f.pool.Ensure(1, cfg, false, 0, dt)
		if err != nil {
			t.Fatalf("Ensure: %v", err)
		}
		if !bytes.Equal(f.adapter.BufferData(s.DeltaTime), particle.PackDeltaTime(dt)) {
			t.Errorf("dt buffer does not hold %v", dt)
		}
	}
}

func TestEnsureRenderBindGroupFollowsTarget(t *testing.T) {
	f := newPoolFixture(t)
	cfg := testConfig(16, 2)
	target := f.targets.Register(gpucore.InvalidID, 0, 0)

	s, err := f.pool.Ensure(1, cfg, false, target, 0.016)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if s.HasRender() {
		t.Fatal("render bind group created before the target texture exists")
	}

	tex := f.texture(t, 800, 800)
	f.targets.Set(target, tex, 800, 800)
	if _, err := f.pool.Ensure(1, cfg, false, target, 0.016); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if !s.HasRender() {
		t.Fatal("render bind group not created once the target resolved")
	}
	first := s.RenderBindGroup
	desc, _ := f.adapter.BindGroup(first)
	if desc.Entries[pipeline.RenderBindingTexture].Texture != tex {
		t.Errorf("render bind group binds texture %d, want %d", desc.Entries[pipeline.RenderBindingTexture].Texture, tex)
	}

	if _, err := f.pool.Ensure(1, cfg, false, target, 0.016); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if s.RenderBindGroup != first {
		t.Error("render bind group rebuilt for an unchanged texture")
	}

	resized := f.texture(t, 1024, 768)
	f.targets.Set(target, resized, 1024, 768)
	if _, err := f.pool.Ensure(1, cfg, false, target, 0.016); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if s.RenderBindGroup == first {
		t.Error("render bind group not rebuilt after the texture changed")
	}

	f.targets.Remove(target)
	if _, err := f.pool.Ensure(1, cfg, false, target, 0.016); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if s.HasRender() {
		t.Error("render bind group kept after the target was removed")
	}
}

func TestEnsureEdgeSizes(t *testing.T) {
	tests := []struct {
		name string
		n, m int
	}{
		{"no particles", 0, 2},
		{"single type", 50, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPoolFixture(t)
			s, err := f.pool.Ensure(1, testConfig(tt.n, tt.m), false, 0, 0.016)
			if err != nil {
				t.Fatalf("Ensure: %v", err)
			}
			for _, id := range s.buffers() {
				desc, ok := f.adapter.Buffer(id)
				if !ok {
					t.Fatalf("buffer %d missing", id)
				}
				if desc.Size < minBufferSize {
					t.Errorf("buffer %q has %d bytes", desc.Label, desc.Size)
				}
			}
			if s.UpdateBindGroup == gpucore.InvalidID {
				t.Error("update bind group missing")
			}
		})
	}
}

func TestEnsureInvalidConfigKeepsSet(t *testing.T) {
	f := newPoolFixture(t)
	cfg := testConfig(16, 2)
	s, err := f.pool.Ensure(1, cfg, false, 0, 0.016)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}

	bad := cfg
	bad.M = 0
	got, err := f.pool.Ensure(1, bad, false, 0, 0.016)
	if !errors.Is(err, particle.ErrInvalidConfig) {
		t.Fatalf("err = %v, want ErrInvalidConfig", err)
	}
	if got != s {
		t.Error("failed rebuild replaced the previous set")
	}
	if cur, _ := f.pool.Get(1); cur != s {
		t.Error("failed rebuild replaced the stored set")
	}
}

// faultyAdapter fails the failBuffer-th CreateBuffer and the
// failBindGroup-th CreateBindGroup call (1-based, 0 never fails) and counts
// writes per buffer.
type faultyAdapter struct {
	*gpucore.RecordingAdapter
	failBuffer, failBindGroup int
	buffers, bindGroups       int
	writes                    map[gpucore.BufferID]int
}

var errInjected = errors.New("injected failure")

func (a *faultyAdapter) CreateBuffer(desc *gpucore.BufferDesc) (gpucore.BufferID, error) {
	a.buffers++
	if a.buffers == a.failBuffer {
		return gpucore.InvalidID, errInjected
	}
	return a.RecordingAdapter.CreateBuffer(desc)
}

func (a *faultyAdapter) CreateBindGroup(desc *gpucore.BindGroupDesc) (gpucore.BindGroupID, error) {
	a.bindGroups++
	if a.bindGroups == a.failBindGroup {
		return gpucore.InvalidID, errInjected
	}
	return a.RecordingAdapter.CreateBindGroup(desc)
}

func (a *faultyAdapter) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) error {
	if a.writes == nil {
		a.writes = map[gpucore.BufferID]int{}
	}
	a.writes[id]++
	return a.RecordingAdapter.WriteBuffer(id, offset, data)
}

func newFaultyPool(t *testing.T, a *faultyAdapter) *Pool[int] {
	t.Helper()
	update, err := pipeline.NewUpdateLayout(a)
	if err != nil {
		t.Fatalf("NewUpdateLayout: %v", err)
	}
	render, err := pipeline.NewRenderLayout(a)
	if err != nil {
		t.Fatalf("NewRenderLayout: %v", err)
	}
	pool, err := NewPool[int](a, Layouts{Update: update, Render: render}, Options{Targets: NewTargets(), Width: 800, Height: 800, Seed: 7})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func TestEnsureBuildFailureLeaksNothing(t *testing.T) {
	tests := []struct {
		name          string
		failBuffer    int
		failBindGroup int
	}{
		{"first buffer", 1, 0},
		{"spatial indices buffer", 5, 0},
		{"last buffer", 6, 0},
		{"update bind group", 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &faultyAdapter{RecordingAdapter: gpucore.NewRecordingAdapter()}
			pool := newFaultyPool(t, a)
			a.failBuffer, a.failBindGroup = tt.failBuffer, tt.failBindGroup
			buffers, groups := a.LiveBuffers(), a.LiveBindGroups()

			if _, err := pool.Ensure(1, testConfig(1000, 2), false, 0, 0.016); !errors.Is(err, errInjected) {
				t.Fatalf("err = %v, want injected failure", err)
			}
			if got := a.LiveBuffers(); got != buffers {
				t.Errorf("live buffers = %d, want %d", got, buffers)
			}
			if got := a.LiveBindGroups(); got != groups {
				t.Errorf("live bind groups = %d, want %d", got, groups)
			}
			if _, ok := pool.Get(1); ok {
				t.Error("partial set stored")
			}
		})
	}
}

func TestEnsureIgnoresSubEpsilonConfigNoise(t *testing.T) {
	a := &faultyAdapter{RecordingAdapter: gpucore.NewRecordingAdapter()}
	pool := newFaultyPool(t, a)
	cfg := testConfig(32, 2)
	s, err := pool.Ensure(1, cfg, false, 0, 0.016)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	uploads := a.writes[s.Config]

	noisy := cfg.Clone()
	noisy.DT += particle.Epsilon / 4
	noisy.RMax += particle.Epsilon / 4
	if _, err := pool.Ensure(1, noisy, false, 0, 0.016); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if got := a.writes[s.Config]; got != uploads {
		t.Errorf("config uploaded %d times for sub-epsilon noise", got-uploads)
	}

	noisy.RMax = 120
	if _, err := pool.Ensure(1, noisy, false, 0, 0.016); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if got := a.writes[s.Config]; got != uploads+1 {
		t.Errorf("config uploads = %d, want %d", got, uploads+1)
	}
}

func TestReleaseRetired(t *testing.T) {
	f := newPoolFixture(t)
	cfg := testConfig(16, 2)
	old, err := f.pool.Ensure(1, cfg, false, 0, 0.016)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if _, err := f.pool.Ensure(1, cfg, true, 0, 0.016); err != nil {
		t.Fatalf("Ensure: %v", err)
	}

	for frame := 1; frame < DefaultFramesInFlight; frame++ {
		if n := f.pool.ReleaseRetired(); n != 0 {
			t.Fatalf("frame %d released %d items early", frame, n)
		}
	}
	if n := f.pool.ReleaseRetired(); n != 1 {
		t.Fatalf("released %d items, want 1", n)
	}
	if _, ok := f.adapter.Buffer(old.Particles); ok {
		t.Error("old particle buffer still live")
	}
	if _, ok := f.adapter.BindGroup(old.UpdateBindGroup); ok {
		t.Error("old update bind group still live")
	}
}

func TestRemoveAndRetain(t *testing.T) {
	f := newPoolFixture(t)
	cfg := testConfig(16, 2)
	for key := range 3 {
		if _, err := f.pool.Ensure(key, cfg, false, 0, 0.016); err != nil {
			t.Fatalf("Ensure(%d): %v", key, err)
		}
	}

	f.pool.Remove(0)
	f.pool.Remove(42)
	f.pool.Retain(func(k int) bool { return k != 1 })

	if got := f.pool.Keys(); len(got) != 1 || got[0] != 2 {
		t.Fatalf("keys = %v, want [2]", got)
	}
	if f.pool.Retired() != 2 {
		t.Errorf("retired = %d, want 2", f.pool.Retired())
	}
}

func TestCloseDestroysEverything(t *testing.T) {
	f := newPoolFixture(t)
	tex := f.texture(t, 64, 64)
	target := f.targets.Register(tex, 64, 64)
	cfg := testConfig(16, 2)
	for key := range 2 {
		if _, err := f.pool.Ensure(key, cfg, false, target, 0.016); err != nil {
			t.Fatalf("Ensure: %v", err)
		}
	}
	if _, err := f.pool.Ensure(0, cfg, true, target, 0.016); err != nil {
		t.Fatalf("Ensure: %v", err)
	}

	f.pool.Close()
	if got := f.adapter.LiveBuffers(); got != 0 {
		t.Errorf("live buffers = %d, want 0", got)
	}
	if got := f.adapter.LiveBindGroups(); got != 0 {
		t.Errorf("live bind groups = %d, want 0", got)
	}
	if _, err := f.pool.Ensure(0, cfg, false, target, 0.016); !errors.Is(err, ErrClosed) {
		t.Errorf("Ensure after Close: err = %v, want ErrClosed", err)
	}
}
