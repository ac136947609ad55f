package resource

import (
	"sync"

	"github.com/gogpu/particlelife/gpucore"
)

// TargetID names a render target independently of the texture currently
// backing it. Resizing a target swaps its texture but keeps the ID.
type TargetID uint32

// Target is a resolved render target.
type Target struct {
	Texture gpucore.TextureID
	Width   uint32
	Height  uint32
}

// Targets maps render target IDs to textures. A target may be registered
// before its texture exists. Resolve reports it unavailable until Set is
// called.
//
// Thread safety: Targets is safe for concurrent use.
type Targets struct {
	mu      sync.RWMutex
	next    TargetID
	targets map[TargetID]Target
}

// NewTargets returns an empty table.
func NewTargets() *Targets {
	return &Targets{next: 1, targets: make(map[TargetID]Target)}
}

// Register allocates a new target ID backed by tex. Pass
// gpucore.InvalidID to register a target whose texture is not ready yet.
func (t *Targets) Register(tex gpucore.TextureID, width, height uint32) TargetID {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.next
	t.next++
	t.targets[id] = Target{Texture: tex, Width: width, Height: height}
	return id
}

// Set replaces the texture behind id, registering id if needed.
func (t *Targets) Set(id TargetID, tex gpucore.TextureID, width, height uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.targets[id] = Target{Texture: tex, Width: width, Height: height}
	if id >= t.next {
		t.next = id + 1
	}
}

// Resolve returns the texture behind id. It reports false when id is
// unknown or has no texture yet.
func (t *Targets) Resolve(id TargetID) (Target, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tg, ok := t.targets[id]
	if !ok || tg.Texture == gpucore.InvalidID {
		return Target{}, false
	}
	return tg, true
}

// Remove forgets id. The texture is not destroyed.
func (t *Targets) Remove(id TargetID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.targets, id)
}

// Len returns the number of registered targets.
func (t *Targets) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.targets)
}
