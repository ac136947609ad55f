// Package nodes implements the particle update and render graph nodes.
//
// Both nodes keep a per-entity state machine that only moves forward as
// the compute pipelines they need finish compiling. A node never waits:
// an entity whose pipelines or resources are not ready is skipped for the
// frame and retried on the next one.
package nodes

import (
	"context"
	"log/slog"

	"github.com/gogpu/particlelife/gpucore"
	"github.com/gogpu/particlelife/internal/metrics"
	"github.com/gogpu/particlelife/internal/pipeline"
	"github.com/gogpu/particlelife/internal/resource"
	"github.com/gogpu/particlelife/internal/world"
)

// Pipelines reports compile status and resolves compiled pipelines.
// *pipeline.Registry implements it.
type Pipelines interface {
	Status(h pipeline.Handle) pipeline.Status
	Pipeline(h pipeline.Handle) (gpucore.ComputePipelineID, bool)
	Err(h pipeline.Handle) error
}

// Resources resolves an entity's resource set.
// *resource.Pool[world.Entity] implements it.
type Resources interface {
	Get(e world.Entity) (*resource.Set, bool)
}

// Skip reasons, used as metric labels and log attributes.
const (
	reasonLoading     = "loading"
	reasonFailed      = "failed"
	reasonNoResources = "no_resources"
	reasonNoBindGroup = "no_bind_group"
	reasonEmpty       = "empty"
)

// Options configures a node.
type Options struct {
	// WorkgroupSize is the kernels' workgroup edge. Defaults to 16.
	WorkgroupSize uint32

	// Width and Height are the render target extent the clear kernel
	// covers. Defaults to 800x800.
	Width, Height uint32

	Logger  *slog.Logger
	Metrics *metrics.Collectors
}

func (o Options) withDefaults() Options {
	if o.WorkgroupSize == 0 {
		o.WorkgroupSize = 16
	}
	if o.Width == 0 {
		o.Width = 800
	}
	if o.Height == 0 {
		o.Height = 800
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// skipLog reports a skipped entity once per reason. A dispatch clears the
// entity's entry, so the next stall is reported again.
type skipLog struct {
	node    string
	log     *slog.Logger
	metrics *metrics.Collectors
	last    *Tracker[string]
}

func newSkipLog(node string, log *slog.Logger, m *metrics.Collectors) *skipLog {
	return &skipLog{node: node, log: log, metrics: m, last: NewTracker("")}
}

func (s *skipLog) skip(e world.Entity, reason string, level slog.Level) {
	s.metrics.Skip(s.node, reason)
	if s.last.Get(e) == reason {
		return
	}
	s.last.Set(e, reason)
	s.log.Log(context.Background(), level, "nodes: dispatch skipped",
		"node", s.node, "entity", e.ID(), "reason", reason)
}

func (s *skipLog) dispatched(e world.Entity) {
	s.last.Remove(e)
}

func (s *skipLog) retain(live func(world.Entity) bool) {
	s.last.Retain(live)
}
