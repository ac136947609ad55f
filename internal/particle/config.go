// Package particle defines the simulation configuration, the particle
// record, and their GPU byte layouts.
package particle

import (
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"
)

// Limits enforced by Validate.
const (
	// MaxParticles bounds n so the spatial index buffer stays within the
	// default 256 MiB buffer limit.
	MaxParticles = 1 << 20

	// MaxTypes bounds m.
	MaxTypes = 32
)

// Defaults for a fresh configuration.
const (
	DefaultDT               float32 = 0.0004
	DefaultFrictionHalfLife float32 = 0.02
	DefaultRMax             float32 = 50
	DefaultForceFactor      float32 = 10
	DefaultN                        = 1
)

// Epsilon is the float32 machine epsilon. Scalars closer than this compare equal.
const Epsilon float32 = 1.1920929e-07

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("particle: invalid config")

// SimulationConfig is the value handed from the simulation side to the
// render side every frame. It is copied, never shared.
type SimulationConfig struct {
	N                int       `json:"n" yaml:"n"`
	DT               float32   `json:"dt" yaml:"dt"`
	FrictionHalfLife float32   `json:"friction_half_life" yaml:"friction_half_life"`
	RMax             float32   `json:"r_max" yaml:"r_max"`
	M                int       `json:"m" yaml:"m"`
	ForceFactor      float32   `json:"force_factor" yaml:"force_factor"`
	FrictionFactor   float32   `json:"friction_factor" yaml:"friction_factor"`
	AttractionMatrix []float32 `json:"attraction_matrix" yaml:"attraction_matrix"`
	Recreate         bool      `json:"recreate" yaml:"recreate"`
}

// Default returns a configuration with a random type count in [1, 10] and
// a random attraction matrix.
func Default(rng *rand.Rand) SimulationConfig {
	return New(DefaultN, 1+rng.IntN(10), rng)
}

// New returns a configuration for n particles of m types with default
// physics and a random attraction matrix.
func New(n, m int, rng *rand.Rand) SimulationConfig {
	return SimulationConfig{
		N:                n,
		DT:               DefaultDT,
		FrictionHalfLife: DefaultFrictionHalfLife,
		RMax:             DefaultRMax,
		M:                m,
		ForceFactor:      DefaultForceFactor,
		FrictionFactor:   FrictionFactorFor(DefaultDT, DefaultFrictionHalfLife),
		AttractionMatrix: RandomMatrix(m, rng),
	}
}

// FrictionFactorFor returns 0.5^(dt/halfLife), the per-step velocity decay.
func FrictionFactorFor(dt, halfLife float32) float32 {
	if halfLife <= 0 {
		return 0
	}
	return float32(math.Pow(0.5, float64(dt)/float64(halfLife)))
}

// RandomMatrix returns an m x m row-major matrix whose entries are drawn
// from N(0, 0.5) and re-drawn until they fall inside [-1, 1].
func RandomMatrix(m int, rng *rand.Rand) []float32 {
	if m <= 0 {
		return nil
	}
	out := make([]float32, m*m)
	for i := range out {
		for {
			v := rng.NormFloat64() * 0.5
			if v >= -1 && v <= 1 {
				out[i] = float32(v)
				break
			}
		}
	}
	return out
}

// Attraction returns matrix[i*m+j], the attraction of type i toward type j.
func (c *SimulationConfig) Attraction(i, j int) float32 {
	return c.AttractionMatrix[i*c.M+j]
}

// Clone returns a deep copy.
func (c SimulationConfig) Clone() SimulationConfig {
	c.AttractionMatrix = append([]float32(nil), c.AttractionMatrix...)
	return c
}

// WithRandomMatrix returns a copy with a freshly sampled attraction matrix.
func (c SimulationConfig) WithRandomMatrix(rng *rand.Rand) SimulationConfig {
	c.AttractionMatrix = RandomMatrix(c.M, rng)
	return c
}

// Normalize recomputes the derived friction factor and replaces an
// attraction matrix whose length does not match m.
func (c SimulationConfig) Normalize(rng *rand.Rand) SimulationConfig {
	c.FrictionFactor = FrictionFactorFor(c.DT, c.FrictionHalfLife)
	if len(c.AttractionMatrix) != c.M*c.M {
		c.AttractionMatrix = RandomMatrix(c.M, rng)
	}
	return c
}

// Equal compares the integer fields and the recreate flag exactly and the
// float scalars within Epsilon. The attraction matrix is not compared:
// it is only uploaded when resources are recreated.
func (c SimulationConfig) Equal(o SimulationConfig) bool {
	return c.N == o.N &&
		c.M == o.M &&
		c.Recreate == o.Recreate &&
		floatEqual(c.DT, o.DT) &&
		floatEqual(c.FrictionHalfLife, o.FrictionHalfLife) &&
		floatEqual(c.RMax, o.RMax) &&
		floatEqual(c.ForceFactor, o.ForceFactor) &&
		floatEqual(c.FrictionFactor, o.FrictionFactor)
}

// MatrixEqual reports whether both attraction matrices have the same shape
// and entries within Epsilon.
func (c SimulationConfig) MatrixEqual(o SimulationConfig) bool {
	if len(c.AttractionMatrix) != len(o.AttractionMatrix) {
		return false
	}
	for i := range c.AttractionMatrix {
		if !floatEqual(c.AttractionMatrix[i], o.AttractionMatrix[i]) {
			return false
		}
	}
	return true
}

// Hash returns an FNV-1a hash of the fields Equal compares exactly,
// the particle and type counts. Configs that are Equal always hash alike;
// float scalars are settled by Equal.
func (c SimulationConfig) Hash() uint64 {
	h := fnv.New64a()
	var buf [8]byte
	for _, v := range [...]uint64{uint64(c.N), uint64(c.M)} {
		for i := range buf {
			buf[i] = byte(v >> (8 * i))
		}
		_, _ = h.Write(buf[:])
	}
	return h.Sum64()
}

// Validate checks the configuration against the limits the GPU layout
// relies on.
func (c SimulationConfig) Validate() error {
	switch {
	case c.N < 0 || c.N > MaxParticles:
		return fmt.Errorf("%w: n=%d outside [0, %d]", ErrInvalidConfig, c.N, MaxParticles)
	case c.M < 1 || c.M > MaxTypes:
		return fmt.Errorf("%w: m=%d outside [1, %d]", ErrInvalidConfig, c.M, MaxTypes)
	case len(c.AttractionMatrix) != c.M*c.M:
		return fmt.Errorf("%w: attraction matrix has %d entries, want %d", ErrInvalidConfig, len(c.AttractionMatrix), c.M*c.M)
	case !(c.DT > 0):
		return fmt.Errorf("%w: dt=%g must be positive", ErrInvalidConfig, c.DT)
	case !(c.FrictionHalfLife > 0):
		return fmt.Errorf("%w: friction_half_life=%g must be positive", ErrInvalidConfig, c.FrictionHalfLife)
	case !(c.RMax > 0):
		return fmt.Errorf("%w: r_max=%g must be positive", ErrInvalidConfig, c.RMax)
	}
	return nil
}

func floatEqual(a, b float32) bool {
	return float32(math.Abs(float64(a-b))) < Epsilon
}
