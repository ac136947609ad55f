package nodes

import (
	"fmt"
	"log/slog"

	"github.com/gogpu/particlelife/gpucore"
	"github.com/gogpu/particlelife/internal/graph"
	"github.com/gogpu/particlelife/internal/pipeline"
	"github.com/gogpu/particlelife/internal/world"
)

// RenderState is an entity's render readiness.
type RenderState uint8

const (
	RenderLoading RenderState = iota
	RenderReady
	RenderFailed
)

var renderStateNames = [...]string{
	RenderLoading: "loading",
	RenderReady:   "ready",
	RenderFailed:  "failed",
}

func (s RenderState) String() string {
	if int(s) < len(renderStateNames) {
		return renderStateNames[s]
	}
	return fmt.Sprintf("RenderState(%d)", s)
}

var renderStateLabels = renderStateNames[:]

// RenderNode clears each particle system's target and splats its
// particles into it.
type RenderNode struct {
	pipelines Pipelines
	resources Resources
	kernels   pipeline.RenderKernels
	opts      Options

	states   *Tracker[RenderState]
	entities []world.Extracted
	skips    *skipLog
}

var _ graph.Node = (*RenderNode)(nil)

// NewRenderNode returns a render node for kernels.
func NewRenderNode(p Pipelines, r Resources, kernels pipeline.RenderKernels, opts Options) *RenderNode {
	opts = opts.withDefaults()
	return &RenderNode{
		pipelines: p,
		resources: r,
		kernels:   kernels,
		opts:      opts,
		states:    NewTracker(RenderLoading),
		skips:     newSkipLog(string(graph.ParticleRender), opts.Logger, opts.Metrics),
	}
}

// State returns e's current state.
func (n *RenderNode) State(e world.Entity) RenderState {
	return n.states.Get(e)
}

// Update implements graph.Node.
func (n *RenderNode) Update(snap *world.Snapshot) {
	n.entities = append(n.entities[:0], snap.Entities...)
	n.states.Retain(snap.Alive)
	n.skips.retain(snap.Alive)

	clearStatus, renderStatus := n.pipelines.Status(n.kernels.Clear), n.pipelines.Status(n.kernels.Render)
	counts := make(map[string]int, len(renderStateLabels))
	for _, x := range n.entities {
		cur := n.states.Get(x.Entity)
		next := cur
		switch {
		case cur == RenderFailed:
		case clearStatus == pipeline.StatusFailed || renderStatus == pipeline.StatusFailed:
			next = RenderFailed
			err := n.pipelines.Err(n.kernels.Clear)
			if err == nil {
				err = n.pipelines.Err(n.kernels.Render)
			}
			n.opts.Logger.Error("nodes: render kernels failed, dispatch suspended",
				"entity", x.Entity.ID(), "err", err)
		case cur == RenderLoading && clearStatus == pipeline.StatusReady && renderStatus == pipeline.StatusReady:
			next = RenderReady
			n.opts.Logger.Debug("nodes: render ready", "entity", x.Entity.ID())
		}
		n.states.Set(x.Entity, next)
		counts[next.String()]++
	}
	n.opts.Metrics.NodeStates(string(graph.ParticleRender), renderStateLabels, counts)
}

// Run implements graph.Node. Per ready entity it records a clear pass
// over the whole target and then a splat pass over the particles. Both
// bind the entity's render bind group.
func (n *RenderNode) Run(ctx *graph.RunContext) error {
	node := string(graph.ParticleRender)
	for _, x := range n.entities {
		e := x.Entity
		switch n.states.Get(e) {
		case RenderLoading:
			n.skips.skip(e, reasonLoading, slog.LevelDebug)
			continue
		case RenderFailed:
			n.skips.skip(e, reasonFailed, slog.LevelDebug)
			continue
		}

		set, ok := n.resources.Get(e)
		if !ok {
			n.skips.skip(e, reasonNoResources, slog.LevelWarn)
			continue
		}
		if !set.HasRender() {
			// Expected until the render target exists.
			n.skips.skip(e, reasonNoBindGroup, slog.LevelDebug)
			continue
		}
		clearID, ok1 := n.pipelines.Pipeline(n.kernels.Clear)
		renderID, ok2 := n.pipelines.Pipeline(n.kernels.Render)
		if !ok1 || !ok2 {
			n.skips.skip(e, reasonLoading, slog.LevelDebug)
			continue
		}

		wg := n.opts.WorkgroupSize
		gx, gy := gpucore.WorkgroupCount2D(n.opts.Width, n.opts.Height, wg)
		pass := ctx.Encoder.BeginComputePass("particle_clear")
		pass.SetPipeline(clearID)
		pass.SetBindGroup(0, set.RenderBindGroup)
		pass.Dispatch(gx, gy, 1)
		pass.End()
		n.opts.Metrics.Dispatch(node, pipeline.EntryClear)

		if set.N > 0 {
			pass = ctx.Encoder.BeginComputePass("particle_render")
			pass.SetPipeline(renderID)
			pass.SetBindGroup(0, set.RenderBindGroup)
			pass.Dispatch(gpucore.WorkgroupCount(uint32(set.N), wg), 1, 1)
			pass.End()
			n.opts.Metrics.Dispatch(node, pipeline.EntryRender)
		}
		n.skips.dispatched(e)
	}
	return nil
}
