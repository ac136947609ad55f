//go:build !nogpu

// Package native implements gpucore.GPUAdapter on top of gogpu/wgpu's HAL.
package native

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/particlelife/gpucore"
	"github.com/gogpu/wgpu/hal"
)

// fenceTimeout bounds how long Submit and WaitIdle block on the previous frame.
const fenceTimeout = 5 * time.Second

// halTexture keeps the view used for storage bindings alongside its texture.
type halTexture struct {
	texture hal.Texture
	view    hal.TextureView
	desc    gpucore.TextureDesc
}

// inflight is a submitted command buffer whose fence has not been waited on.
type inflight struct {
	cmdBuf hal.CommandBuffer
	fence  hal.Fence
}

// HALAdapter implements gpucore.GPUAdapter using gogpu/wgpu/hal directly.
//
// Thread Safety: HALAdapter is safe for concurrent use from multiple goroutines.
// Resource maps are protected by an RWMutex; submission is serialized.
type HALAdapter struct {
	mu     sync.RWMutex
	device hal.Device
	queue  hal.Queue
	caps   gpucore.AdapterCapabilities

	// ID generation
	nextID atomic.Uint64

	// Resource tracking maps gpucore IDs to hal resources
	buffers          map[gpucore.BufferID]hal.Buffer
	textures         map[gpucore.TextureID]*halTexture
	shaderModules    map[gpucore.ShaderModuleID]hal.ShaderModule
	computePipelines map[gpucore.ComputePipelineID]hal.ComputePipeline
	bindGroupLayouts map[gpucore.BindGroupLayoutID]hal.BindGroupLayout
	pipelineLayouts  map[gpucore.PipelineLayoutID]hal.PipelineLayout
	bindGroups       map[gpucore.BindGroupID]hal.BindGroup

	submitMu sync.Mutex
	pending  *inflight
}

// NewHALAdapter creates a new HALAdapter wrapping the given device and queue.
// If limits is nil, gputypes.DefaultLimits is used.
func NewHALAdapter(device hal.Device, queue hal.Queue, limits *gputypes.Limits) *HALAdapter {
	lim := gputypes.DefaultLimits()
	if limits != nil {
		lim = *limits
	}

	adapter := &HALAdapter{
		device: device,
		queue:  queue,
		caps: gpucore.AdapterCapabilities{
			MaxWorkgroupSizeX:                lim.MaxComputeWorkgroupSizeX,
			MaxWorkgroupSizeY:                lim.MaxComputeWorkgroupSizeY,
			MaxWorkgroupInvocations:          lim.MaxComputeInvocationsPerWorkgroup,
			MaxBufferSize:                    lim.MaxBufferSize,
			MaxComputeWorkgroupsPerDimension: lim.MaxComputeWorkgroupsPerDimension,
		},
		buffers:          make(map[gpucore.BufferID]hal.Buffer),
		textures:         make(map[gpucore.TextureID]*halTexture),
		shaderModules:    make(map[gpucore.ShaderModuleID]hal.ShaderModule),
		computePipelines: make(map[gpucore.ComputePipelineID]hal.ComputePipeline),
		bindGroupLayouts: make(map[gpucore.BindGroupLayoutID]hal.BindGroupLayout),
		pipelineLayouts:  make(map[gpucore.PipelineLayoutID]hal.PipelineLayout),
		bindGroups:       make(map[gpucore.BindGroupID]hal.BindGroup),
	}

	// Start ID generation at 1 (0 is invalid)
	adapter.nextID.Store(1)

	return adapter
}

// newID generates a unique resource ID.
func (a *HALAdapter) newID() uint64 {
	return a.nextID.Add(1) - 1
}

// Capabilities returns the device limits relevant to compute dispatch.
func (a *HALAdapter) Capabilities() gpucore.AdapterCapabilities {
	return a.caps
}

// === Shader Compilation ===

// CreateShaderModule creates a shader module from SPIR-V bytecode.
func (a *HALAdapter) CreateShaderModule(spirv []uint32, label string) (gpucore.ShaderModuleID, error) {
	if len(spirv) == 0 {
		return gpucore.InvalidID, fmt.Errorf("%w: empty SPIR-V bytecode for %q", gpucore.ErrInvalidDescriptor, label)
	}

	module, err := a.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label,
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("create shader module %q: %w", label, err)
	}

	id := gpucore.ShaderModuleID(a.newID())

	a.mu.Lock()
	a.shaderModules[id] = module
	a.mu.Unlock()

	slogger().Debug("native: shader module created", "label", label, "words", len(spirv))
	return id, nil
}

// DestroyShaderModule releases a shader module.
func (a *HALAdapter) DestroyShaderModule(id gpucore.ShaderModuleID) {
	a.mu.Lock()
	module, ok := a.shaderModules[id]
	if ok {
		delete(a.shaderModules, id)
	}
	a.mu.Unlock()

	if ok {
		a.device.DestroyShaderModule(module)
	}
}

// === Buffer Management ===

// CreateBuffer creates a GPU buffer.
func (a *HALAdapter) CreateBuffer(desc *gpucore.BufferDesc) (gpucore.BufferID, error) {
	if desc == nil || desc.Size == 0 {
		return gpucore.InvalidID, fmt.Errorf("%w: buffer size must be positive", gpucore.ErrInvalidDescriptor)
	}
	if a.caps.MaxBufferSize > 0 && desc.Size > a.caps.MaxBufferSize {
		return gpucore.InvalidID, fmt.Errorf("%w: buffer %q size %d exceeds device limit %d",
			gpucore.ErrInvalidDescriptor, desc.Label, desc.Size, a.caps.MaxBufferSize)
	}

	buffer, err := a.device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  desc.Size,
		Usage: convertBufferUsage(desc.Usage),
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("create buffer %q: %w", desc.Label, err)
	}

	id := gpucore.BufferID(a.newID())

	a.mu.Lock()
	a.buffers[id] = buffer
	a.mu.Unlock()

	return id, nil
}

// DestroyBuffer releases a GPU buffer.
func (a *HALAdapter) DestroyBuffer(id gpucore.BufferID) {
	a.mu.Lock()
	buffer, ok := a.buffers[id]
	if ok {
		delete(a.buffers, id)
	}
	a.mu.Unlock()

	if ok {
		a.device.DestroyBuffer(buffer)
	}
}

// WriteBuffer queues a write into a buffer.
func (a *HALAdapter) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) error {
	a.mu.RLock()
	buffer, ok := a.buffers[id]
	a.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: buffer %d", gpucore.ErrUnknownResource, id)
	}
	if len(data) > 0 {
		a.queue.WriteBuffer(buffer, offset, data)
	}
	return nil
}

// === Texture Management ===

// CreateTexture creates a 2D texture and the view used to bind it.
func (a *HALAdapter) CreateTexture(desc *gpucore.TextureDesc) (gpucore.TextureID, error) {
	if desc == nil || desc.Width == 0 || desc.Height == 0 {
		return gpucore.InvalidID, fmt.Errorf("%w: texture dimensions must be positive", gpucore.ErrInvalidDescriptor)
	}

	format := convertTextureFormat(desc.Format)
	texture, err := a.device.CreateTexture(&hal.TextureDescriptor{
		Label: desc.Label,
		Size: hal.Extent3D{
			Width:              desc.Width,
			Height:             desc.Height,
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        format,
		Usage:         convertTextureUsage(desc.Usage),
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("create texture %q: %w", desc.Label, err)
	}

	view, err := a.device.CreateTextureView(texture, &hal.TextureViewDescriptor{
		Label:         desc.Label + "_view",
		Format:        format,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		a.device.DestroyTexture(texture)
		return gpucore.InvalidID, fmt.Errorf("create texture view %q: %w", desc.Label, err)
	}

	id := gpucore.TextureID(a.newID())

	a.mu.Lock()
	a.textures[id] = &halTexture{texture: texture, view: view, desc: *desc}
	a.mu.Unlock()

	return id, nil
}

// DestroyTexture releases a texture and its view.
func (a *HALAdapter) DestroyTexture(id gpucore.TextureID) {
	a.mu.Lock()
	tex, ok := a.textures[id]
	if ok {
		delete(a.textures, id)
	}
	a.mu.Unlock()

	if ok {
		a.device.DestroyTextureView(tex.view)
		a.device.DestroyTexture(tex.texture)
	}
}

// === Pipeline Management ===

// CreateBindGroupLayout creates a bind group layout visible to compute.
func (a *HALAdapter) CreateBindGroupLayout(desc *gpucore.BindGroupLayoutDesc) (gpucore.BindGroupLayoutID, error) {
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("%w: nil bind group layout descriptor", gpucore.ErrInvalidDescriptor)
	}

	entries := make([]gputypes.BindGroupLayoutEntry, len(desc.Entries))
	for i, entry := range desc.Entries {
		entries[i] = convertBindGroupLayoutEntry(entry)
	}

	layout, err := a.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   desc.Label,
		Entries: entries,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("create bind group layout %q: %w", desc.Label, err)
	}

	id := gpucore.BindGroupLayoutID(a.newID())

	a.mu.Lock()
	a.bindGroupLayouts[id] = layout
	a.mu.Unlock()

	return id, nil
}

// DestroyBindGroupLayout releases a bind group layout.
func (a *HALAdapter) DestroyBindGroupLayout(id gpucore.BindGroupLayoutID) {
	a.mu.Lock()
	layout, ok := a.bindGroupLayouts[id]
	if ok {
		delete(a.bindGroupLayouts, id)
	}
	a.mu.Unlock()

	if ok {
		a.device.DestroyBindGroupLayout(layout)
	}
}

// CreatePipelineLayout creates a pipeline layout.
func (a *HALAdapter) CreatePipelineLayout(label string, layouts []gpucore.BindGroupLayoutID) (gpucore.PipelineLayoutID, error) {
	a.mu.RLock()
	halLayouts := make([]hal.BindGroupLayout, len(layouts))
	for i, id := range layouts {
		layout, ok := a.bindGroupLayouts[id]
		if !ok {
			a.mu.RUnlock()
			return gpucore.InvalidID, fmt.Errorf("%w: bind group layout %d", gpucore.ErrUnknownResource, id)
		}
		halLayouts[i] = layout
	}
	a.mu.RUnlock()

	pipelineLayout, err := a.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            label,
		BindGroupLayouts: halLayouts,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("create pipeline layout %q: %w", label, err)
	}

	id := gpucore.PipelineLayoutID(a.newID())

	a.mu.Lock()
	a.pipelineLayouts[id] = pipelineLayout
	a.mu.Unlock()

	return id, nil
}

// DestroyPipelineLayout releases a pipeline layout.
func (a *HALAdapter) DestroyPipelineLayout(id gpucore.PipelineLayoutID) {
	a.mu.Lock()
	layout, ok := a.pipelineLayouts[id]
	if ok {
		delete(a.pipelineLayouts, id)
	}
	a.mu.Unlock()

	if ok {
		a.device.DestroyPipelineLayout(layout)
	}
}

// CreateComputePipeline creates a compute pipeline.
func (a *HALAdapter) CreateComputePipeline(desc *gpucore.ComputePipelineDesc) (gpucore.ComputePipelineID, error) {
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("%w: nil compute pipeline descriptor", gpucore.ErrInvalidDescriptor)
	}

	a.mu.RLock()
	pipelineLayout, layoutOK := a.pipelineLayouts[desc.Layout]
	shaderModule, moduleOK := a.shaderModules[desc.ShaderModule]
	a.mu.RUnlock()

	if !layoutOK {
		return gpucore.InvalidID, fmt.Errorf("%w: pipeline layout %d", gpucore.ErrUnknownResource, desc.Layout)
	}
	if !moduleOK {
		return gpucore.InvalidID, fmt.Errorf("%w: shader module %d", gpucore.ErrUnknownResource, desc.ShaderModule)
	}

	pipeline, err := a.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  desc.Label,
		Layout: pipelineLayout,
		Compute: hal.ComputeState{
			Module:     shaderModule,
			EntryPoint: desc.EntryPoint,
		},
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("create compute pipeline %q: %w", desc.Label, err)
	}

	id := gpucore.ComputePipelineID(a.newID())

	a.mu.Lock()
	a.computePipelines[id] = pipeline
	a.mu.Unlock()

	return id, nil
}

// DestroyComputePipeline releases a compute pipeline.
func (a *HALAdapter) DestroyComputePipeline(id gpucore.ComputePipelineID) {
	a.mu.Lock()
	pipeline, ok := a.computePipelines[id]
	if ok {
		delete(a.computePipelines, id)
	}
	a.mu.Unlock()

	if ok {
		a.device.DestroyComputePipeline(pipeline)
	}
}

// CreateBindGroup creates a bind group.
func (a *HALAdapter) CreateBindGroup(desc *gpucore.BindGroupDesc) (gpucore.BindGroupID, error) {
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("%w: nil bind group descriptor", gpucore.ErrInvalidDescriptor)
	}

	a.mu.RLock()
	halLayout, ok := a.bindGroupLayouts[desc.Layout]
	if !ok {
		a.mu.RUnlock()
		return gpucore.InvalidID, fmt.Errorf("%w: bind group layout %d", gpucore.ErrUnknownResource, desc.Layout)
	}

	entries := make([]gputypes.BindGroupEntry, len(desc.Entries))
	for i, entry := range desc.Entries {
		halEntry, err := a.convertBindGroupEntry(entry)
		if err != nil {
			a.mu.RUnlock()
			return gpucore.InvalidID, fmt.Errorf("bind group %q entry %d: %w", desc.Label, entry.Binding, err)
		}
		entries[i] = halEntry
	}
	a.mu.RUnlock()

	bindGroup, err := a.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   desc.Label,
		Layout:  halLayout,
		Entries: entries,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("create bind group %q: %w", desc.Label, err)
	}

	id := gpucore.BindGroupID(a.newID())

	a.mu.Lock()
	a.bindGroups[id] = bindGroup
	a.mu.Unlock()

	return id, nil
}

// DestroyBindGroup releases a bind group.
func (a *HALAdapter) DestroyBindGroup(id gpucore.BindGroupID) {
	a.mu.Lock()
	group, ok := a.bindGroups[id]
	if ok {
		delete(a.bindGroups, id)
	}
	a.mu.Unlock()

	if ok {
		a.device.DestroyBindGroup(group)
	}
}

// === Command Recording and Execution ===

// BeginEncoding creates a command encoder and begins recording.
func (a *HALAdapter) BeginEncoding(label string) (gpucore.CommandEncoder, error) {
	encoder, err := a.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(label); err != nil {
		return nil, fmt.Errorf("begin encoding: %w", err)
	}
	return &halCommandEncoder{adapter: a, encoder: encoder}, nil
}

// Submit ends encoding and submits the command buffer. At most one frame
// is in flight: the previous submission is waited on first.
func (a *HALAdapter) Submit(encoder gpucore.CommandEncoder) error {
	enc, ok := encoder.(*halCommandEncoder)
	if !ok || enc.adapter != a {
		return gpucore.ErrForeignEncoder
	}
	if enc.finished {
		return gpucore.ErrEncoderFinished
	}
	enc.finished = true

	cmdBuf, err := enc.encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("end encoding: %w", err)
	}

	a.submitMu.Lock()
	defer a.submitMu.Unlock()

	if err := a.retirePendingLocked(); err != nil {
		a.device.FreeCommandBuffer(cmdBuf)
		return err
	}

	fence, err := a.device.CreateFence()
	if err != nil {
		a.device.FreeCommandBuffer(cmdBuf)
		return fmt.Errorf("create fence: %w", err)
	}
	if err := a.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		a.device.DestroyFence(fence)
		a.device.FreeCommandBuffer(cmdBuf)
		return fmt.Errorf("submit: %w", err)
	}
	a.pending = &inflight{cmdBuf: cmdBuf, fence: fence}
	return nil
}

// WaitIdle waits for the in-flight submission, if any.
func (a *HALAdapter) WaitIdle() error {
	a.submitMu.Lock()
	defer a.submitMu.Unlock()
	return a.retirePendingLocked()
}

// retirePendingLocked waits on the in-flight fence and frees its command
// buffer. Must be called with submitMu held.
func (a *HALAdapter) retirePendingLocked() error {
	p := a.pending
	if p == nil {
		return nil
	}
	a.pending = nil
	defer a.device.DestroyFence(p.fence)
	defer a.device.FreeCommandBuffer(p.cmdBuf)

	ok, err := a.device.Wait(p.fence, 1, fenceTimeout)
	if err != nil {
		return fmt.Errorf("wait for GPU: %w", err)
	}
	if !ok {
		return ErrFenceTimeout
	}
	return nil
}

// Release destroys every resource still tracked by the adapter. The
// device itself is owned by the caller.
func (a *HALAdapter) Release() {
	if err := a.WaitIdle(); err != nil {
		slogger().Warn("native: wait before release failed", "error", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for id, bg := range a.bindGroups {
		a.device.DestroyBindGroup(bg)
		delete(a.bindGroups, id)
	}
	for id, p := range a.computePipelines {
		a.device.DestroyComputePipeline(p)
		delete(a.computePipelines, id)
	}
	for id, l := range a.pipelineLayouts {
		a.device.DestroyPipelineLayout(l)
		delete(a.pipelineLayouts, id)
	}
	for id, l := range a.bindGroupLayouts {
		a.device.DestroyBindGroupLayout(l)
		delete(a.bindGroupLayouts, id)
	}
	for id, m := range a.shaderModules {
		a.device.DestroyShaderModule(m)
		delete(a.shaderModules, id)
	}
	for id, t := range a.textures {
		a.device.DestroyTextureView(t.view)
		a.device.DestroyTexture(t.texture)
		delete(a.textures, id)
	}
	for id, b := range a.buffers {
		a.device.DestroyBuffer(b)
		delete(a.buffers, id)
	}
}

// === Type Conversion Helpers ===

// convertBufferUsage converts gpucore.BufferUsage to gputypes.BufferUsage.
func convertBufferUsage(usage gpucore.BufferUsage) gputypes.BufferUsage {
	var result gputypes.BufferUsage

	if usage&gpucore.BufferUsageMapRead != 0 {
		result |= gputypes.BufferUsageMapRead
	}
	if usage&gpucore.BufferUsageMapWrite != 0 {
		result |= gputypes.BufferUsageMapWrite
	}
	if usage&gpucore.BufferUsageCopySrc != 0 {
		result |= gputypes.BufferUsageCopySrc
	}
	if usage&gpucore.BufferUsageCopyDst != 0 {
		result |= gputypes.BufferUsageCopyDst
	}
	if usage&gpucore.BufferUsageUniform != 0 {
		result |= gputypes.BufferUsageUniform
	}
	if usage&gpucore.BufferUsageStorage != 0 {
		result |= gputypes.BufferUsageStorage
	}

	return result
}

// convertTextureUsage converts gpucore.TextureUsage to gputypes.TextureUsage.
func convertTextureUsage(usage gpucore.TextureUsage) gputypes.TextureUsage {
	var result gputypes.TextureUsage

	if usage&gpucore.TextureUsageCopySrc != 0 {
		result |= gputypes.TextureUsageCopySrc
	}
	if usage&gpucore.TextureUsageCopyDst != 0 {
		result |= gputypes.TextureUsageCopyDst
	}
	if usage&gpucore.TextureUsageTextureBinding != 0 {
		result |= gputypes.TextureUsageTextureBinding
	}
	if usage&gpucore.TextureUsageStorageBinding != 0 {
		result |= gputypes.TextureUsageStorageBinding
	}

	return result
}

// convertTextureFormat converts gpucore.TextureFormat to gputypes.TextureFormat.
func convertTextureFormat(format gpucore.TextureFormat) gputypes.TextureFormat {
	switch format {
	case gpucore.TextureFormatBGRA8Unorm:
		return gputypes.TextureFormatBGRA8Unorm
	default:
		return gputypes.TextureFormatRGBA8Unorm
	}
}

// convertBindGroupLayoutEntry converts a gpucore layout entry to a compute-visible
// gputypes entry.
func convertBindGroupLayoutEntry(entry gpucore.BindGroupLayoutEntry) gputypes.BindGroupLayoutEntry {
	result := gputypes.BindGroupLayoutEntry{
		Binding:    entry.Binding,
		Visibility: gputypes.ShaderStageCompute,
	}

	switch entry.Type {
	case gpucore.BindingTypeUniformBuffer:
		result.Buffer = &gputypes.BufferBindingLayout{
			Type:           gputypes.BufferBindingTypeUniform,
			MinBindingSize: entry.MinBindingSize,
		}
	case gpucore.BindingTypeStorageBuffer:
		result.Buffer = &gputypes.BufferBindingLayout{
			Type:           gputypes.BufferBindingTypeStorage,
			MinBindingSize: entry.MinBindingSize,
		}
	case gpucore.BindingTypeReadOnlyStorageBuffer:
		result.Buffer = &gputypes.BufferBindingLayout{
			Type:           gputypes.BufferBindingTypeReadOnlyStorage,
			MinBindingSize: entry.MinBindingSize,
		}
	case gpucore.BindingTypeStorageTexture:
		result.StorageTexture = &gputypes.StorageTextureBindingLayout{
			Access:        gputypes.StorageTextureAccessWriteOnly,
			Format:        gputypes.TextureFormatRGBA8Unorm,
			ViewDimension: gputypes.TextureViewDimension2D,
		}
	}

	return result
}

// convertBindGroupEntry resolves gpucore IDs to native handles.
// Must be called with mu.RLock held.
func (a *HALAdapter) convertBindGroupEntry(entry gpucore.BindGroupEntry) (gputypes.BindGroupEntry, error) {
	result := gputypes.BindGroupEntry{Binding: entry.Binding}

	switch {
	case entry.Buffer != gpucore.InvalidID:
		buffer, ok := a.buffers[entry.Buffer]
		if !ok {
			return result, fmt.Errorf("%w: buffer %d", gpucore.ErrUnknownResource, entry.Buffer)
		}
		result.Resource = gputypes.BufferBinding{
			Buffer: buffer.NativeHandle(),
			Offset: entry.Offset,
			Size:   entry.Size,
		}
	case entry.Texture != gpucore.InvalidID:
		tex, ok := a.textures[entry.Texture]
		if !ok {
			return result, fmt.Errorf("%w: texture %d", gpucore.ErrUnknownResource, entry.Texture)
		}
		result.Resource = gputypes.TextureViewBinding{
			TextureView: tex.view.NativeHandle(),
		}
	default:
		return result, fmt.Errorf("%w: entry binds no resource", gpucore.ErrInvalidDescriptor)
	}

	return result, nil
}

// === Command Encoder ===

// halCommandEncoder implements gpucore.CommandEncoder.
type halCommandEncoder struct {
	adapter  *HALAdapter
	encoder  hal.CommandEncoder
	finished bool
}

// BeginComputePass begins a compute pass on the frame encoder.
func (e *halCommandEncoder) BeginComputePass(label string) gpucore.ComputePassEncoder {
	if e.finished {
		return &halComputePassEncoder{adapter: e.adapter}
	}
	pass := e.encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: label})
	return &halComputePassEncoder{adapter: e.adapter, pass: pass}
}

// Discard abandons recording.
func (e *halCommandEncoder) Discard() {
	if e.finished {
		return
	}
	e.finished = true
	e.encoder.DiscardEncoding()
}

// === Compute Pass Encoder ===

// halComputePassEncoder implements gpucore.ComputePassEncoder.
type halComputePassEncoder struct {
	adapter *HALAdapter
	pass    hal.ComputePassEncoder
}

// SetPipeline sets the active compute pipeline.
func (e *halComputePassEncoder) SetPipeline(pipeline gpucore.ComputePipelineID) {
	if e.pass == nil {
		return
	}

	e.adapter.mu.RLock()
	halPipeline, ok := e.adapter.computePipelines[pipeline]
	e.adapter.mu.RUnlock()

	if ok {
		e.pass.SetPipeline(halPipeline)
	}
}

// SetBindGroup sets a bind group at the specified index.
func (e *halComputePassEncoder) SetBindGroup(index uint32, group gpucore.BindGroupID) {
	if e.pass == nil {
		return
	}

	e.adapter.mu.RLock()
	halGroup, ok := e.adapter.bindGroups[group]
	e.adapter.mu.RUnlock()

	if ok {
		e.pass.SetBindGroup(index, halGroup, nil)
	}
}

// Dispatch dispatches compute workgroups. Empty dispatches are dropped.
func (e *halComputePassEncoder) Dispatch(x, y, z uint32) {
	if e.pass == nil || x == 0 || y == 0 || z == 0 {
		return
	}
	e.pass.Dispatch(x, y, z)
}

// End finishes the compute pass.
func (e *halComputePassEncoder) End() {
	if e.pass == nil {
		return
	}
	e.pass.End()
	e.pass = nil
}
