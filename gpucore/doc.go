// Package gpucore provides the backend-agnostic GPU abstractions used by the
// particle simulation.
//
// The [GPUAdapter] interface hides the concrete device so the same scheduling
// code drives every backend:
//   - backend/native: gogpu/wgpu HAL (Vulkan or the noop device)
//   - [RecordingAdapter]: in-memory device that records submitted commands
//
//	 +--------------------------------------------+
//	 | pipeline registry, resource pool, nodes    |
//	 +---------------------+----------------------+
//	                       |
//	                 GPUAdapter
//	                       |
//	        +--------------+--------------+
//	        |                             |
//	+-------v--------+          +---------v--------+
//	|  HALAdapter    |          | RecordingAdapter |
//	|  (hal.Device)  |          |  (host memory)   |
//	+----------------+          +------------------+
//
// # Resource Management
//
// GPU resources are managed via opaque IDs ([BufferID], [TextureID], etc.).
// Adapters map IDs to backend resources; [InvalidID] never names a resource.
//
// # Command Recording
//
// A frame is recorded into one [CommandEncoder]. Each compute pass binds a
// pipeline and bind group and dispatches workgroups sized with
// [WorkgroupCount] or [WorkgroupCount2D]. Passes execute in recording order.
package gpucore
