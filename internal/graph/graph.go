// Package graph runs the per-frame render graph.
//
// Nodes are wired with explicit edges. Each frame every node's Update runs
// in dependency order, then every node's Run records into the frame's
// command encoder in the same order. Update sees the extracted world and
// may change node state; Run only records commands.
package graph

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/gogpu/particlelife/gpucore"
	"github.com/gogpu/particlelife/internal/world"
)

// Graph errors.
var (
	ErrCycle         = errors.New("graph: cycle")
	ErrUnknownNode   = errors.New("graph: unknown node")
	ErrDuplicateNode = errors.New("graph: duplicate node")
)

// Label names a node.
type Label string

// Labels of the nodes the particle plugin wires.
const (
	ParticleUpdate Label = "particle_update"
	ParticleRender Label = "particle_render"
	CameraDriver   Label = "camera_driver"
)

// RunContext is passed to Node.Run.
type RunContext struct {
	Encoder gpucore.CommandEncoder
	Frame   uint64
}

// Node is a unit of per-frame GPU work.
type Node interface {
	// Update prepares the node for this frame. It must not record
	// commands.
	Update(snap *world.Snapshot)

	// Run records the node's commands. An error aborts the frame.
	Run(ctx *RunContext) error
}

// Graph is a DAG of nodes. It is not safe for concurrent use.
type Graph struct {
	labels []Label
	nodes  map[Label]Node
	edges  map[Label][]Label

	order []Label
	dirty bool
	log   *slog.Logger
}

// New returns an empty graph. A nil logger discards output.
func New(log *slog.Logger) *Graph {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Graph{
		nodes: make(map[Label]Node),
		edges: make(map[Label][]Label),
		log:   log,
	}
}

// AddNode adds node under label.
func (g *Graph) AddNode(label Label, node Node) error {
	if _, ok := g.nodes[label]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateNode, label)
	}
	g.labels = append(g.labels, label)
	g.nodes[label] = node
	g.dirty = true
	return nil
}

// AddEdge makes to run after from.
func (g *Graph) AddEdge(from, to Label) error {
	for _, l := range [...]Label{from, to} {
		if _, ok := g.nodes[l]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownNode, l)
		}
	}
	if slices.Contains(g.edges[from], to) {
		return nil
	}
	g.edges[from] = append(g.edges[from], to)
	g.dirty = true
	return nil
}

// Node returns the node registered under label.
func (g *Graph) Node(label Label) (Node, bool) {
	n, ok := g.nodes[label]
	return n, ok
}

// Order returns the execution order: a topological order of the edges in
// which independent nodes keep their insertion order.
func (g *Graph) Order() ([]Label, error) {
	if !g.dirty && g.order != nil {
		return slices.Clone(g.order), nil
	}

	indegree := make(map[Label]int, len(g.labels))
	for _, from := range g.labels {
		for _, to := range g.edges[from] {
			indegree[to]++
		}
	}

	order := make([]Label, 0, len(g.labels))
	done := make(map[Label]bool, len(g.labels))
	for len(order) < len(g.labels) {
		progressed := false
		for _, l := range g.labels {
			if done[l] || indegree[l] > 0 {
				continue
			}
			done[l] = true
			order = append(order, l)
			for _, to := range g.edges[l] {
				indegree[to]--
			}
			progressed = true
			// Restart so an unblocked earlier node wins over later ones.
			break
		}
		if !progressed {
			var stuck []Label
			for _, l := range g.labels {
				if !done[l] {
					stuck = append(stuck, l)
				}
			}
			return nil, fmt.Errorf("%w among %v", ErrCycle, stuck)
		}
	}

	g.order = order
	g.dirty = false
	return slices.Clone(order), nil
}

// Frame runs one frame: Update on every node, then Run on every node, both
// in Order. The first Run error stops the frame.
func (g *Graph) Frame(snap *world.Snapshot, ctx *RunContext) error {
	order, err := g.Order()
	if err != nil {
		return err
	}
	for _, l := range order {
		g.nodes[l].Update(snap)
	}
	for _, l := range order {
		if err := g.nodes[l].Run(ctx); err != nil {
			return fmt.Errorf("graph: node %q: %w", l, err)
		}
	}
	g.log.Debug("graph: frame recorded", "frame", ctx.Frame, "nodes", len(order))
	return nil
}

// PresentNode stands in for the presentation driver the particle nodes
// feed. It records nothing.
type PresentNode struct{}

// Update implements Node.
func (PresentNode) Update(*world.Snapshot) {}

// Run implements Node.
func (PresentNode) Run(*RunContext) error { return nil }
