package nodes

import (
	"fmt"
	"log/slog"

	"github.com/gogpu/particlelife/gpucore"
	"github.com/gogpu/particlelife/internal/graph"
	"github.com/gogpu/particlelife/internal/pipeline"
	"github.com/gogpu/particlelife/internal/world"
)

// UpdateState is an entity's position in the update warm-up. It only
// moves forward, one step per frame, each step enabling one more kernel.
type UpdateState uint8

const (
	// UpdateLoading dispatches nothing.
	UpdateLoading UpdateState = iota
	// UpdateSpatialHashGrid dispatches the spatial hash kernel.
	UpdateSpatialHashGrid
	// UpdateVelocities adds the velocity kernel.
	UpdateVelocities
	// UpdatePositions adds the position kernel. Steady state.
	UpdatePositions
	// UpdateFailed is terminal: a kernel failed to compile.
	UpdateFailed
)

var updateStateNames = [...]string{
	UpdateLoading:         "loading",
	UpdateSpatialHashGrid: "update_spatial_hash_grid",
	UpdateVelocities:      "update_velocities",
	UpdatePositions:       "update_positions",
	UpdateFailed:          "failed",
}

// String returns the state name.
func (s UpdateState) String() string {
	if int(s) < len(updateStateNames) {
		return updateStateNames[s]
	}
	return fmt.Sprintf("UpdateState(%d)", s)
}

// updateStateLabels are the metric labels of every state.
var updateStateLabels = updateStateNames[:]

// kernels returns how many update kernels the state enables.
func (s UpdateState) kernels() int {
	switch s {
	case UpdateSpatialHashGrid:
		return 1
	case UpdateVelocities:
		return 2
	case UpdatePositions:
		return 3
	default:
		return 0
	}
}

// UpdateNode advances and dispatches the three update kernels for every
// particle system.
type UpdateNode struct {
	pipelines Pipelines
	resources Resources
	kernels   pipeline.UpdateKernels
	opts      Options

	states   *Tracker[UpdateState]
	entities []world.Extracted
	skips    *skipLog
}

var _ graph.Node = (*UpdateNode)(nil)

// NewUpdateNode returns an update node for kernels.
func NewUpdateNode(p Pipelines, r Resources, kernels pipeline.UpdateKernels, opts Options) *UpdateNode {
	opts = opts.withDefaults()
	return &UpdateNode{
		pipelines: p,
		resources: r,
		kernels:   kernels,
		opts:      opts,
		states:    NewTracker(UpdateLoading),
		skips:     newSkipLog(string(graph.ParticleUpdate), opts.Logger, opts.Metrics),
	}
}

// State returns e's current state.
func (n *UpdateNode) State(e world.Entity) UpdateState {
	return n.states.Get(e)
}

// Update implements graph.Node. It caches the live entities, drops state
// of despawned ones and advances each entity by at most one step.
func (n *UpdateNode) Update(snap *world.Snapshot) {
	n.entities = append(n.entities[:0], snap.Entities...)
	n.states.Retain(snap.Alive)
	n.skips.retain(snap.Alive)

	counts := make(map[string]int, len(updateStateLabels))
	for _, x := range n.entities {
		cur := n.states.Get(x.Entity)
		next := n.advance(cur)
		if next != cur {
			n.opts.Logger.Debug("nodes: update state changed",
				"entity", x.Entity.ID(), "from", cur, "to", next)
			if next == UpdateFailed {
				n.opts.Logger.Error("nodes: update kernels failed, dispatch suspended",
					"entity", x.Entity.ID(), "err", n.failure())
			}
		}
		n.states.Set(x.Entity, next)
		counts[next.String()]++
	}
	n.opts.Metrics.NodeStates(string(graph.ParticleUpdate), updateStateLabels, counts)
}

func (n *UpdateNode) advance(cur UpdateState) UpdateState {
	if cur == UpdateFailed || n.failure() != nil {
		return UpdateFailed
	}
	all := n.kernels.All()
	k := cur.kernels()
	if k >= len(all) {
		return cur
	}
	if n.pipelines.Status(all[k]) != pipeline.StatusReady {
		return cur
	}
	return cur + 1
}

// failure returns the first compile error among the update kernels.
func (n *UpdateNode) failure() error {
	for _, h := range n.kernels.All() {
		if n.pipelines.Status(h) == pipeline.StatusFailed {
			if err := n.pipelines.Err(h); err != nil {
				return err
			}
			return fmt.Errorf("nodes: pipeline %d failed", h)
		}
	}
	return nil
}

// Run implements graph.Node. It records one compute pass per dispatching
// entity holding the kernels its state enables, in order.
func (n *UpdateNode) Run(ctx *graph.RunContext) error {
	all := n.kernels.All()
	names := [...]string{pipeline.EntrySpatialHashGrid, pipeline.EntryVelocities, pipeline.EntryPositions}

	for _, x := range n.entities {
		e := x.Entity
		state := n.states.Get(e)
		switch state {
		case UpdateLoading:
			n.skips.skip(e, reasonLoading, slog.LevelDebug)
			continue
		case UpdateFailed:
			n.skips.skip(e, reasonFailed, slog.LevelDebug)
			continue
		}

		set, ok := n.resources.Get(e)
		if !ok {
			n.skips.skip(e, reasonNoResources, slog.LevelWarn)
			continue
		}
		if set.UpdateBindGroup == gpucore.InvalidID {
			n.skips.skip(e, reasonNoBindGroup, slog.LevelWarn)
			continue
		}
		if set.N == 0 {
			n.skips.skip(e, reasonEmpty, slog.LevelDebug)
			continue
		}

		k := state.kernels()
		ids := make([]gpucore.ComputePipelineID, k)
		ready := true
		for i := range k {
			ids[i], ready = n.pipelines.Pipeline(all[i])
			if !ready {
				break
			}
		}
		if !ready {
			n.skips.skip(e, reasonLoading, slog.LevelDebug)
			continue
		}

		groups := gpucore.WorkgroupCount(uint32(set.N), n.opts.WorkgroupSize)
		pass := ctx.Encoder.BeginComputePass(string(graph.ParticleUpdate))
		pass.SetBindGroup(0, set.UpdateBindGroup)
		for i, id := range ids {
			pass.SetPipeline(id)
			pass.Dispatch(groups, 1, 1)
			n.opts.Metrics.Dispatch(string(graph.ParticleUpdate), names[i])
		}
		pass.End()
		n.skips.dispatched(e)
	}
	return nil
}
