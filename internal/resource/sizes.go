package resource

import "github.com/gogpu/particlelife/internal/particle"

// Per-element sizes of the spatial hash buffers.
const (
	SpatialIndexSize  = 16 // vec4<u32>: particle index, cell x, cell y, cell key
	SpatialOffsetSize = 4  // u32
)

// Fixed uniform sizes.
const (
	ConfigBufferSize    = particle.ConfigUniformSize
	DeltaTimeBufferSize = particle.DeltaTimeUniformSize
)

// minBufferSize is the smallest allocation made. Buffers whose logical
// size is zero (n = 0) are still created so bind groups stay complete.
const minBufferSize = 4

// ParticleBufferSize returns n × sizeof(Particle).
func ParticleBufferSize(n int) uint64 {
	return uint64(max(n, 0)) * particle.ParticleSize
}

// MatrixBufferSize returns m² × 4.
func MatrixBufferSize(m int) uint64 {
	m = max(m, 0)
	return uint64(m*m) * particle.MatrixEntrySize
}

// SpatialIndicesSize returns n × 16.
func SpatialIndicesSize(n int) uint64 {
	return uint64(max(n, 0)) * SpatialIndexSize
}

// SpatialOffsetsSize returns n × 4.
func SpatialOffsetsSize(n int) uint64 {
	return uint64(max(n, 0)) * SpatialOffsetSize
}

// Sizes are the logical byte sizes of a resource set's buffers. The
// allocations may be larger (see allocSize).
type Sizes struct {
	Particles      uint64
	Config         uint64
	Matrix         uint64
	DeltaTime      uint64
	SpatialIndices uint64
	SpatialOffsets uint64
}

// SizesFor returns the logical buffer sizes for n particles of m types.
func SizesFor(n, m int) Sizes {
	return Sizes{
		Particles:      ParticleBufferSize(n),
		Config:         ConfigBufferSize,
		Matrix:         MatrixBufferSize(m),
		DeltaTime:      DeltaTimeBufferSize,
		SpatialIndices: SpatialIndicesSize(n),
		SpatialOffsets: SpatialOffsetsSize(n),
	}
}

// Total returns the sum of the logical sizes.
func (s Sizes) Total() uint64 {
	return s.Particles + s.Config + s.Matrix + s.DeltaTime + s.SpatialIndices + s.SpatialOffsets
}

func allocSize(logical uint64) uint64 {
	return max(logical, minBufferSize)
}
