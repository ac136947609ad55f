package nodes

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/gogpu/particlelife/gpucore"
	"github.com/gogpu/particlelife/internal/graph"
	"github.com/gogpu/particlelife/internal/particle"
	"github.com/gogpu/particlelife/internal/pipeline"
	"github.com/gogpu/particlelife/internal/resource"
	"github.com/gogpu/particlelife/internal/world"
)

// Handles used by the fakes. Pipeline IDs are handle + 100.
var (
	testUpdateKernels = pipeline.UpdateKernels{SpatialHashGrid: 1, Velocities: 2, Positions: 3}
	testRenderKernels = pipeline.RenderKernels{Clear: 4, Render: 5}
)

type fakePipelines struct {
	status map[pipeline.Handle]pipeline.Status
}

func newFakePipelines() *fakePipelines {
	return &fakePipelines{status: make(map[pipeline.Handle]pipeline.Status)}
}

func (f *fakePipelines) set(s pipeline.Status, hs ...pipeline.Handle) {
	for _, h := range hs {
		f.status[h] = s
	}
}

func (f *fakePipelines) readyAll() {
	f.set(pipeline.StatusReady, 1, 2, 3, 4, 5)
}

func (f *fakePipelines) Status(h pipeline.Handle) pipeline.Status { return f.status[h] }

func (f *fakePipelines) Pipeline(h pipeline.Handle) (gpucore.ComputePipelineID, bool) {
	if f.status[h] != pipeline.StatusReady {
		return gpucore.InvalidID, false
	}
	return gpucore.ComputePipelineID(h + 100), true
}

func (f *fakePipelines) Err(h pipeline.Handle) error {
	if f.status[h] == pipeline.StatusFailed {
		return errors.New("compile failed")
	}
	return nil
}

type fakeResources map[world.Entity]*resource.Set

func (f fakeResources) Get(e world.Entity) (*resource.Set, bool) {
	s, ok := f[e]
	return s, ok
}

func fullSet(n int) *resource.Set {
	return &resource.Set{N: n, M: 2, UpdateBindGroup: 50, RenderBindGroup: 60}
}

type nodeFixture struct {
	adapter   *gpucore.RecordingAdapter
	world     *world.World
	pipelines *fakePipelines
	resources fakeResources
	update    *UpdateNode
	render    *RenderNode
}

func newNodeFixture(t *testing.T) *nodeFixture {
	t.Helper()
	rng := rand.New(rand.NewPCG(5, 6))
	f := &nodeFixture{
		adapter:   gpucore.NewRecordingAdapter(),
		world:     world.New(particle.New(1000, 3, rng), rng),
		pipelines: newFakePipelines(),
		resources: fakeResources{},
	}
	opts := Options{WorkgroupSize: 16, Width: 800, Height: 800}
	f.update = NewUpdateNode(f.pipelines, f.resources, testUpdateKernels, opts)
	f.render = NewRenderNode(f.pipelines, f.resources, testRenderKernels, opts)
	return f
}

// frame runs Update then Run on nodes against one encoder and returns the
// recorded passes.
func (f *nodeFixture) frame(t *testing.T, nodes ...graph.Node) []gpucore.Pass {
	t.Helper()
	snap := f.world.Extract()
	for _, n := range nodes {
		n.Update(&snap)
	}
	enc, err := f.adapter.BeginEncoding("frame")
	if err != nil {
		t.Fatal(err)
	}
	ctx := &graph.RunContext{Encoder: enc}
	for _, n := range nodes {
		if err := n.Run(ctx); err != nil {
			t.Fatalf("Run: %v", err)
		}
	}
	if err := f.adapter.Submit(enc); err != nil {
		t.Fatal(err)
	}
	sub, _ := f.adapter.LastSubmission()
	return sub.Passes()
}

func TestUpdateStateString(t *testing.T) {
	tests := []struct {
		s    UpdateState
		want string
	}{
		{UpdateLoading, "loading"},
		{UpdateSpatialHashGrid, "update_spatial_hash_grid"},
		{UpdateVelocities, "update_velocities"},
		{UpdatePositions, "update_positions"},
		{UpdateFailed, "failed"},
		{UpdateState(42), "UpdateState(42)"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.s, got, tt.want)
		}
	}
	if got := RenderState(9).String(); got != "RenderState(9)" {
		t.Errorf("RenderState(9).String() = %q", got)
	}
}

func TestUpdateWarmUpOneStepPerFrame(t *testing.T) {
	f := newNodeFixture(t)
	e := f.world.Spawn(1)
	f.resources[e] = fullSet(1000)
	f.pipelines.readyAll()

	wantKernels := []int{1, 2, 3, 3, 3}
	wantStates := []UpdateState{UpdateSpatialHashGrid, UpdateVelocities, UpdatePositions, UpdatePositions, UpdatePositions}
	for frame := range wantKernels {
		passes := f.frame(t, f.update)
		if got := f.update.State(e); got != wantStates[frame] {
			t.Fatalf("frame %d: state %v, want %v", frame, got, wantStates[frame])
		}
		if len(passes) != 1 {
			t.Fatalf("frame %d: %d passes, want 1", frame, len(passes))
		}
		ds := passes[0].Dispatches
		if len(ds) != wantKernels[frame] {
			t.Fatalf("frame %d: %d dispatches, want %d", frame, len(ds), wantKernels[frame])
		}
		for i, d := range ds {
			if want := gpucore.ComputePipelineID(testUpdateKernels.All()[i] + 100); d.Pipeline != want {
				t.Errorf("frame %d dispatch %d: pipeline %d, want %d", frame, i, d.Pipeline, want)
			}
			if d.X != 63 || d.Y != 1 || d.Z != 1 {
				t.Errorf("frame %d dispatch %d: groups %dx%dx%d, want 63x1x1", frame, i, d.X, d.Y, d.Z)
			}
			if d.BindGroup != 50 {
				t.Errorf("frame %d dispatch %d: bind group %d, want 50", frame, i, d.BindGroup)
			}
		}
	}
}

func TestUpdateWaitsForEachKernel(t *testing.T) {
	f := newNodeFixture(t)
	e := f.world.Spawn(1)
	f.resources[e] = fullSet(10)

	steps := []struct {
		ready []pipeline.Handle
		want  UpdateState
	}{
		{nil, UpdateLoading},
		{[]pipeline.Handle{2, 3}, UpdateLoading},
		{[]pipeline.Handle{1}, UpdateSpatialHashGrid},
		{nil, UpdateVelocities},
		{nil, UpdatePositions},
	}
	for i, step := range steps {
		f.pipelines.set(pipeline.StatusReady, step.ready...)
		passes := f.frame(t, f.update)
		got := f.update.State(e)
		if got != step.want {
			t.Fatalf("step %d: state %v, want %v", i, got, step.want)
		}
		if got == UpdateLoading && len(passes) != 0 {
			t.Errorf("step %d: loading entity recorded %d passes", i, len(passes))
		}
	}
}

func TestUpdateStatesNeverMoveBackward(t *testing.T) {
	f := newNodeFixture(t)
	e := f.world.Spawn(1)
	f.resources[e] = fullSet(10)
	f.pipelines.readyAll()

	prev := UpdateLoading
	for range 10 {
		f.frame(t, f.update)
		// Recreate requests and resource rebuilds do not reset warm-up.
		f.world.RequestRecreate()
		f.resources[e] = fullSet(20)
		cur := f.update.State(e)
		if cur < prev {
			t.Fatalf("state moved from %v back to %v", prev, cur)
		}
		prev = cur
	}
}

func TestUpdateSkips(t *testing.T) {
	tests := []struct {
		name string
		set  *resource.Set
	}{
		{"no resources", nil},
		{"no bind group", &resource.Set{N: 10}},
		{"no particles", &resource.Set{N: 0, UpdateBindGroup: 50}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newNodeFixture(t)
			e := f.world.Spawn(1)
			if tt.set != nil {
				f.resources[e] = tt.set
			}
			f.pipelines.readyAll()
			for range 4 {
				if passes := f.frame(t, f.update); len(passes) != 0 {
					t.Fatalf("recorded %d passes, want 0", len(passes))
				}
			}
			// Readiness still advances while dispatch is skipped.
			if got := f.update.State(e); got != UpdatePositions {
				t.Errorf("state = %v, want %v", got, UpdatePositions)
			}
		})
	}
}

func TestUpdateFailedIsTerminal(t *testing.T) {
	f := newNodeFixture(t)
	e := f.world.Spawn(1)
	f.resources[e] = fullSet(10)
	f.pipelines.set(pipeline.StatusReady, 1)
	f.pipelines.set(pipeline.StatusFailed, 2)

	for range 3 {
		if passes := f.frame(t, f.update); len(passes) != 0 {
			t.Fatalf("failed entity recorded %d passes", len(passes))
		}
	}
	if got := f.update.State(e); got != UpdateFailed {
		t.Fatalf("state = %v, want failed", got)
	}
	f.pipelines.readyAll()
	f.frame(t, f.update)
	if got := f.update.State(e); got != UpdateFailed {
		t.Errorf("state left failed: %v", got)
	}
}

func TestUpdateDropsDespawnedEntities(t *testing.T) {
	f := newNodeFixture(t)
	a := f.world.Spawn(1)
	b := f.world.Spawn(1)
	f.resources[a] = fullSet(10)
	f.resources[b] = fullSet(10)
	f.pipelines.readyAll()

	f.frame(t, f.update)
	f.frame(t, f.update)
	f.world.Despawn(a)
	passes := f.frame(t, f.update)

	if len(passes) != 1 {
		t.Errorf("%d passes, want 1", len(passes))
	}
	if f.update.states.Len() != 1 {
		t.Errorf("tracked %d entities, want 1", f.update.states.Len())
	}
	if _, ok := f.update.states.Lookup(a); ok {
		t.Error("despawned entity still tracked")
	}
}

func TestRenderClearBeforeSplat(t *testing.T) {
	f := newNodeFixture(t)
	e := f.world.Spawn(1)
	f.resources[e] = fullSet(1000)
	f.pipelines.readyAll()

	passes := f.frame(t, f.render)
	if got := f.render.State(e); got != RenderReady {
		t.Fatalf("state = %v, want ready", got)
	}
	if len(passes) != 2 {
		t.Fatalf("%d passes, want 2", len(passes))
	}
	clearPass, splat := passes[0], passes[1]
	if clearPass.Label != "particle_clear" || splat.Label != "particle_render" {
		t.Fatalf("pass order %q, %q", clearPass.Label, splat.Label)
	}
	cd, sd := clearPass.Dispatches[0], splat.Dispatches[0]
	if cd.Pipeline != 104 || cd.X != 50 || cd.Y != 50 || cd.Z != 1 {
		t.Errorf("clear dispatch = %+v, want pipeline 104 50x50x1", cd)
	}
	if sd.Pipeline != 105 || sd.X != 63 || sd.Y != 1 {
		t.Errorf("splat dispatch = %+v, want pipeline 105 63x1x1", sd)
	}
	if cd.BindGroup != 60 || sd.BindGroup != 60 {
		t.Errorf("bind groups %d, %d, want 60", cd.BindGroup, sd.BindGroup)
	}
}

func TestRenderEdgeCases(t *testing.T) {
	tests := []struct {
		name       string
		set        *resource.Set
		ready      bool
		wantPasses int
	}{
		{"pipelines pending", fullSet(10), false, 0},
		{"render target missing", &resource.Set{N: 10, UpdateBindGroup: 50}, true, 0},
		{"no particles clears only", fullSet(0), true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newNodeFixture(t)
			e := f.world.Spawn(1)
			f.resources[e] = tt.set
			if tt.ready {
				f.pipelines.readyAll()
			}
			if passes := f.frame(t, f.render); len(passes) != tt.wantPasses {
				t.Errorf("%d passes, want %d", len(passes), tt.wantPasses)
			}
		})
	}
}

func TestRenderFailed(t *testing.T) {
	f := newNodeFixture(t)
	e := f.world.Spawn(1)
	f.resources[e] = fullSet(10)
	f.pipelines.set(pipeline.StatusReady, 4)
	f.pipelines.set(pipeline.StatusFailed, 5)

	if passes := f.frame(t, f.render); len(passes) != 0 {
		t.Fatalf("%d passes, want 0", len(passes))
	}
	if got := f.render.State(e); got != RenderFailed {
		t.Errorf("state = %v, want failed", got)
	}
}

func TestUpdateThenRenderShareEncoder(t *testing.T) {
	f := newNodeFixture(t)
	e := f.world.Spawn(1)
	f.resources[e] = fullSet(32)
	f.pipelines.readyAll()

	passes := f.frame(t, f.update, f.render)
	labels := make([]string, len(passes))
	for i, p := range passes {
		labels[i] = p.Label
	}
	want := []string{"particle_update", "particle_clear", "particle_render"}
	if len(labels) != len(want) {
		t.Fatalf("passes %v, want %v", labels, want)
	}
	for i := range want {
		if labels[i] != want[i] {
			t.Errorf("pass %d = %q, want %q", i, labels[i], want[i])
		}
	}
}

func TestTracker(t *testing.T) {
	f := newNodeFixture(t)
	a, b := f.world.Spawn(1), f.world.Spawn(2)
	tr := NewTracker(UpdateLoading)

	if tr.Get(a) != UpdateLoading {
		t.Error("untracked entity not in the initial state")
	}
	tr.Set(a, UpdateVelocities)
	tr.Set(b, UpdatePositions)
	if s, ok := tr.Lookup(a); !ok || s != UpdateVelocities {
		t.Errorf("Lookup(a) = %v, %v", s, ok)
	}
	if n := tr.Retain(func(e world.Entity) bool { return e == b }); n != 1 {
		t.Errorf("Retain dropped %d, want 1", n)
	}
	tr.Remove(b)
	if tr.Len() != 0 {
		t.Errorf("Len() = %d, want 0", tr.Len())
	}
}
