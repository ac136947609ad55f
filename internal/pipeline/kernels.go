package pipeline

import (
	_ "embed"

	"github.com/gogpu/particlelife/gpucore"
)

//go:embed shaders/particle_update.wgsl
var updateShaderWGSL string

//go:embed shaders/particle_render.wgsl
var renderShaderWGSL string

// UpdateShaderSource returns the WGSL of the update kernels before preprocessing.
func UpdateShaderSource() string { return updateShaderWGSL }

// RenderShaderSource returns the WGSL of the render kernels before preprocessing.
func RenderShaderSource() string { return renderShaderWGSL }

// Kernel entry points.
const (
	EntrySpatialHashGrid = "update_spatial_hash_grid"
	EntryVelocities      = "update_velocities"
	EntryPositions       = "update_positions"
	EntryClear           = "clear"
	EntryRender          = "render"
)

// Define names used by the kernels.
const (
	DefineWorkgroupSize = "WORKGROUP_SIZE"
	DefineTextureWidth  = "TEXTURE_WIDTH"
	DefineTextureHeight = "TEXTURE_HEIGHT"
)

// KernelParams are the compile-time constants shared by all kernels.
type KernelParams struct {
	WorkgroupSize uint32
	Width         uint32
	Height        uint32

	// Extra defines, e.g. BOUNCE_EDGES.
	Extra Defines
}

// Defines returns the full define set for p.
func (p KernelParams) Defines() Defines {
	d := Defines{
		DefineWorkgroupSize: p.WorkgroupSize,
		DefineTextureWidth:  p.Width,
		DefineTextureHeight: p.Height,
	}
	for k, v := range p.Extra {
		d[k] = v
	}
	return d
}

// UpdateKernels holds the handles of the three update pipelines, in
// dispatch order.
type UpdateKernels struct {
	SpatialHashGrid Handle
	Velocities      Handle
	Positions       Handle
}

// All returns the handles in dispatch order.
func (k UpdateKernels) All() [3]Handle {
	return [3]Handle{k.SpatialHashGrid, k.Velocities, k.Positions}
}

// RenderKernels holds the handles of the clear and splat pipelines.
type RenderKernels struct {
	Clear  Handle
	Render Handle
}

// QueueUpdateKernels queues the update pipelines against layout.
func QueueUpdateKernels(r *Registry, layout gpucore.BindGroupLayoutID, p KernelParams) UpdateKernels {
	wg := [3]uint32{p.WorkgroupSize, 1, 1}
	queue := func(entry string) Handle {
		return r.Queue(Descriptor{
			Label:      entry,
			Source:     updateShaderWGSL,
			EntryPoint: entry,
			Layout:     layout,
			Defines:    p.Defines(),
			Workgroup:  wg,
		})
	}
	return UpdateKernels{
		SpatialHashGrid: queue(EntrySpatialHashGrid),
		Velocities:      queue(EntryVelocities),
		Positions:       queue(EntryPositions),
	}
}

// QueueRenderKernels queues the clear and splat pipelines against layout.
// clear runs 2-D over the texture, render 1-D over particles.
func QueueRenderKernels(r *Registry, layout gpucore.BindGroupLayoutID, p KernelParams) RenderKernels {
	queue := func(entry string, wg [3]uint32) Handle {
		return r.Queue(Descriptor{
			Label:      "particle_" + entry,
			Source:     renderShaderWGSL,
			EntryPoint: entry,
			Layout:     layout,
			Defines:    p.Defines(),
			Workgroup:  wg,
		})
	}
	return RenderKernels{
		Clear:  queue(EntryClear, [3]uint32{p.WorkgroupSize, p.WorkgroupSize, 1}),
		Render: queue(EntryRender, [3]uint32{p.WorkgroupSize, 1, 1}),
	}
}
