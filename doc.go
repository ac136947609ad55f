// Package particlelife is a GPU-driven "Particle Life" simulation core.
//
// Particles of m types attract or repel each other according to an m x m
// attraction matrix. The simulation runs entirely in compute shaders: each
// frame a spatial-hash grid is rebuilt, velocities are integrated from the
// pairwise forces, positions are advanced, and the particles are splatted
// into a storage texture.
//
// # Architecture
//
// The host side is a small render graph driven once per frame:
//
//	simulation world --(snapshot)--> mailbox --> frame scheduler
//	                                                 |
//	                       +-------------------------+
//	                       |
//	                queue phase: resource pool ensures buffers and bind groups
//	                       |
//	               update  ->  render  ->  camera driver
//
// Every node is updated before any node runs. Nodes wait for the
// asynchronously compiled pipelines to become ready and warm up one kernel
// per frame: spatial hash grid, then velocities, then positions.
//
// # Packages
//
//   - [github.com/gogpu/particlelife/gpucore]: backend-agnostic GPU adapter
//   - [github.com/gogpu/particlelife/backend/native]: gogpu/wgpu HAL backend
//   - internal/pipeline: pipeline registry with async compilation
//   - internal/resource: per-entity GPU resource pool
//   - internal/nodes: update and render stage nodes
//   - internal/app: wiring and the frame loop
//
// # Logging
//
// particlelife is silent by default. Use [SetLogger] to route diagnostics
// to any [log/slog] handler.
package particlelife
