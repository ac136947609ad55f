package particle

import (
	"encoding/binary"
	"math"
)

// GPU byte layouts. These must match the structs in the WGSL kernels.
const (
	// ParticleSize is the WGSL array stride of Particle: two vec2<f32>,
	// one u32, padded to the 8-byte struct alignment.
	ParticleSize = 24

	// ShaderConfigSize is the packed size of ShaderConfig's seven scalars.
	ShaderConfigSize = 28

	// ConfigUniformSize is ShaderConfigSize rounded up to the 16-byte
	// uniform buffer alignment.
	ConfigUniformSize = 32

	// DeltaTimeUniformSize is the uniform holding the frame delta.
	DeltaTimeUniformSize = 16

	// MatrixEntrySize is the size of one attraction matrix entry.
	MatrixEntrySize = 4
)

// ShaderConfig is the scalar part of SimulationConfig as the kernels see it.
type ShaderConfig struct {
	N                uint32
	DT               float32
	FrictionHalfLife float32
	RMax             float32
	M                uint32
	ForceFactor      float32
	FrictionFactor   float32
}

// ShaderConfig extracts the uniform fields of the configuration.
func (c SimulationConfig) ShaderConfig() ShaderConfig {
	return ShaderConfig{
		N:                uint32(c.N),
		DT:               c.DT,
		FrictionHalfLife: c.FrictionHalfLife,
		RMax:             c.RMax,
		M:                uint32(c.M),
		ForceFactor:      c.ForceFactor,
		FrictionFactor:   c.FrictionFactor,
	}
}

// Bytes packs the config into a ConfigUniformSize little-endian buffer.
func (s ShaderConfig) Bytes() []byte {
	buf := make([]byte, ConfigUniformSize)
	le := binary.LittleEndian
	le.PutUint32(buf[0:], s.N)
	le.PutUint32(buf[4:], math.Float32bits(s.DT))
	le.PutUint32(buf[8:], math.Float32bits(s.FrictionHalfLife))
	le.PutUint32(buf[12:], math.Float32bits(s.RMax))
	le.PutUint32(buf[16:], s.M)
	le.PutUint32(buf[20:], math.Float32bits(s.ForceFactor))
	le.PutUint32(buf[24:], math.Float32bits(s.FrictionFactor))
	return buf
}

// PackParticles serializes particles with ParticleSize stride.
func PackParticles(ps []Particle) []byte {
	buf := make([]byte, len(ps)*ParticleSize)
	le := binary.LittleEndian
	for i, p := range ps {
		o := i * ParticleSize
		le.PutUint32(buf[o:], math.Float32bits(p.Position[0]))
		le.PutUint32(buf[o+4:], math.Float32bits(p.Position[1]))
		le.PutUint32(buf[o+8:], math.Float32bits(p.Velocity[0]))
		le.PutUint32(buf[o+12:], math.Float32bits(p.Velocity[1]))
		le.PutUint32(buf[o+16:], p.Type)
	}
	return buf
}

// UnpackParticles is the inverse of PackParticles. Trailing bytes that do
// not form a whole particle are ignored.
func UnpackParticles(buf []byte) []Particle {
	n := len(buf) / ParticleSize
	out := make([]Particle, n)
	le := binary.LittleEndian
	for i := range out {
		o := i * ParticleSize
		out[i] = Particle{
			Position: [2]float32{math.Float32frombits(le.Uint32(buf[o:])), math.Float32frombits(le.Uint32(buf[o+4:]))},
			Velocity: [2]float32{math.Float32frombits(le.Uint32(buf[o+8:])), math.Float32frombits(le.Uint32(buf[o+12:]))},
			Type:     le.Uint32(buf[o+16:]),
		}
	}
	return out
}

// PackMatrix serializes the attraction matrix as little-endian f32.
func PackMatrix(matrix []float32) []byte {
	buf := make([]byte, len(matrix)*MatrixEntrySize)
	for i, v := range matrix {
		binary.LittleEndian.PutUint32(buf[i*MatrixEntrySize:], math.Float32bits(v))
	}
	return buf
}

// PackDeltaTime packs the frame delta into a DeltaTimeUniformSize buffer.
func PackDeltaTime(dt float32) []byte {
	buf := make([]byte, DeltaTimeUniformSize)
	binary.LittleEndian.PutUint32(buf, math.Float32bits(dt))
	return buf
}
