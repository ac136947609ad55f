package pipeline

import (
	"fmt"

	"github.com/gogpu/particlelife/gpucore"
	"github.com/gogpu/particlelife/internal/particle"
)

// Update bind group bindings.
const (
	UpdateBindingParticles uint32 = iota
	UpdateBindingConfig
	UpdateBindingMatrix
	UpdateBindingDeltaTime
	UpdateBindingSpatialIndices
	UpdateBindingSpatialOffsets
)

// Render bind group bindings.
const (
	RenderBindingParticles uint32 = iota
	RenderBindingConfig
	RenderBindingTexture
)

// UpdateLayoutEntries is the bind group layout shared by the three update
// kernels.
func UpdateLayoutEntries() []gpucore.BindGroupLayoutEntry {
	return []gpucore.BindGroupLayoutEntry{
		{Binding: UpdateBindingParticles, Type: gpucore.BindingTypeStorageBuffer},
		{Binding: UpdateBindingConfig, Type: gpucore.BindingTypeUniformBuffer, MinBindingSize: particle.ConfigUniformSize},
		{Binding: UpdateBindingMatrix, Type: gpucore.BindingTypeReadOnlyStorageBuffer},
		{Binding: UpdateBindingDeltaTime, Type: gpucore.BindingTypeUniformBuffer, MinBindingSize: particle.DeltaTimeUniformSize},
		{Binding: UpdateBindingSpatialIndices, Type: gpucore.BindingTypeStorageBuffer},
		{Binding: UpdateBindingSpatialOffsets, Type: gpucore.BindingTypeStorageBuffer},
	}
}

// RenderLayoutEntries is the bind group layout shared by the clear and
// splat kernels.
func RenderLayoutEntries() []gpucore.BindGroupLayoutEntry {
	return []gpucore.BindGroupLayoutEntry{
		{Binding: RenderBindingParticles, Type: gpucore.BindingTypeStorageBuffer},
		{Binding: RenderBindingConfig, Type: gpucore.BindingTypeUniformBuffer, MinBindingSize: particle.ConfigUniformSize},
		{Binding: RenderBindingTexture, Type: gpucore.BindingTypeStorageTexture},
	}
}

// NewUpdateLayout creates the update bind group layout on adapter.
func NewUpdateLayout(adapter gpucore.GPUAdapter) (gpucore.BindGroupLayoutID, error) {
	id, err := adapter.CreateBindGroupLayout(&gpucore.BindGroupLayoutDesc{
		Label:   "particle_update_layout",
		Entries: UpdateLayoutEntries(),
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("pipeline: update layout: %w", err)
	}
	return id, nil
}

// NewRenderLayout creates the render bind group layout on adapter.
func NewRenderLayout(adapter gpucore.GPUAdapter) (gpucore.BindGroupLayoutID, error) {
	id, err := adapter.CreateBindGroupLayout(&gpucore.BindGroupLayoutDesc{
		Label:   "particle_render_layout",
		Entries: RenderLayoutEntries(),
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("pipeline: render layout: %w", err)
	}
	return id, nil
}
