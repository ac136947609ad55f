package gpucore

// GPUAdapter abstracts over different GPU backend implementations.
//
// The particle nodes, the resource pool and the pipeline registry only talk
// to this interface, so the same scheduling code runs on a HAL device, the
// noop device, or the in-memory RecordingAdapter used by tests.
// Implementations must be thread-safe for concurrent use.
//
// Resource lifecycle:
//   - Resources are created via Create* methods
//   - Resources must be explicitly destroyed via Destroy* methods
//   - Destroying a resource while in use is undefined behavior
//   - IDs become invalid after destruction and must not be reused
type GPUAdapter interface {
	// === Capabilities ===

	// Capabilities returns the adapter's compute limits.
	Capabilities() AdapterCapabilities

	// === Shader Compilation ===

	// CreateShaderModule creates a shader module from SPIR-V bytecode.
	// The SPIR-V is compiled by naga before being passed here.
	CreateShaderModule(spirv []uint32, label string) (ShaderModuleID, error)

	// DestroyShaderModule releases a shader module.
	DestroyShaderModule(id ShaderModuleID)

	// === Buffer Management ===

	// CreateBuffer creates a GPU buffer.
	CreateBuffer(desc *BufferDesc) (BufferID, error)

	// DestroyBuffer releases a GPU buffer.
	DestroyBuffer(id BufferID)

	// WriteBuffer queues a write of data into a buffer at offset.
	// The write is visible to commands submitted afterwards.
	WriteBuffer(id BufferID, offset uint64, data []byte) error

	// === Texture Management ===

	// CreateTexture creates a 2D GPU texture.
	CreateTexture(desc *TextureDesc) (TextureID, error)

	// DestroyTexture releases a GPU texture.
	DestroyTexture(id TextureID)

	// === Pipeline Management ===

	// CreateBindGroupLayout creates a bind group layout.
	CreateBindGroupLayout(desc *BindGroupLayoutDesc) (BindGroupLayoutID, error)

	// DestroyBindGroupLayout releases a bind group layout.
	DestroyBindGroupLayout(id BindGroupLayoutID)

	// CreatePipelineLayout creates a pipeline layout from bind group layouts.
	CreatePipelineLayout(label string, layouts []BindGroupLayoutID) (PipelineLayoutID, error)

	// DestroyPipelineLayout releases a pipeline layout.
	DestroyPipelineLayout(id PipelineLayoutID)

	// CreateComputePipeline creates a compute pipeline.
	CreateComputePipeline(desc *ComputePipelineDesc) (ComputePipelineID, error)

	// DestroyComputePipeline releases a compute pipeline.
	DestroyComputePipeline(id ComputePipelineID)

	// CreateBindGroup creates a bind group.
	CreateBindGroup(desc *BindGroupDesc) (BindGroupID, error)

	// DestroyBindGroup releases a bind group.
	DestroyBindGroup(id BindGroupID)

	// === Command Recording and Execution ===

	// BeginEncoding starts a new command encoder. All passes of one frame
	// are recorded into a single encoder and submitted together.
	BeginEncoding(label string) (CommandEncoder, error)

	// Submit finishes the encoder and submits its commands to the queue.
	// The encoder cannot be used afterwards.
	Submit(encoder CommandEncoder) error

	// WaitIdle waits for all submitted GPU work to complete.
	WaitIdle() error
}

// CommandEncoder records the compute passes of one frame.
type CommandEncoder interface {
	// BeginComputePass begins a compute pass. The pass must be ended with
	// ComputePassEncoder.End before another pass is begun.
	BeginComputePass(label string) ComputePassEncoder

	// Discard abandons the encoder without submitting it.
	Discard()
}

// ComputePassEncoder records compute commands.
//
// Usage:
//  1. Obtain encoder from CommandEncoder.BeginComputePass()
//  2. Set pipeline and bind groups
//  3. Dispatch compute workgroups
//  4. Call End() to finish recording
//  5. Call GPUAdapter.Submit() to execute
//
// The encoder is single-use and cannot be reused after End().
type ComputePassEncoder interface {
	// SetPipeline sets the active compute pipeline.
	SetPipeline(pipeline ComputePipelineID)

	// SetBindGroup sets a bind group at the specified index.
	// Index must be less than the number of bind group layouts in the pipeline.
	SetBindGroup(index uint32, group BindGroupID)

	// Dispatch dispatches compute workgroups.
	// x, y, z are the number of workgroups in each dimension.
	// Total threads = x * y * z * workgroup_size.
	Dispatch(x, y, z uint32)

	// End finishes the compute pass.
	// After this call, the encoder cannot be used again.
	End()
}

// AdapterCapabilities describes GPU adapter capabilities.
type AdapterCapabilities struct {
	// MaxWorkgroupSizeX is the maximum workgroup size in X dimension.
	MaxWorkgroupSizeX uint32

	// MaxWorkgroupSizeY is the maximum workgroup size in Y dimension.
	MaxWorkgroupSizeY uint32

	// MaxWorkgroupInvocations is the maximum total invocations per workgroup.
	MaxWorkgroupInvocations uint32

	// MaxBufferSize is the maximum buffer size in bytes.
	MaxBufferSize uint64

	// MaxComputeWorkgroupsPerDimension is the maximum workgroups per dispatch dimension.
	MaxComputeWorkgroupsPerDimension uint32
}

// DefaultCapabilities returns conservative limits matching the WebGPU
// baseline, used when a backend does not report its own.
func DefaultCapabilities() AdapterCapabilities {
	return AdapterCapabilities{
		MaxWorkgroupSizeX:                256,
		MaxWorkgroupSizeY:                256,
		MaxWorkgroupInvocations:          256,
		MaxBufferSize:                    256 << 20,
		MaxComputeWorkgroupsPerDimension: 65535,
	}
}
