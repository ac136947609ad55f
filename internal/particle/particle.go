package particle

import (
	"math/rand/v2"

	"github.com/gogpu/particlelife/internal/parallel"
)

// Particle is one simulated particle.
type Particle struct {
	Position [2]float32
	Velocity [2]float32
	Type     uint32
}

// generateChunk is the number of particles produced per work item.
const generateChunk = 4096

// Generate returns n particles with positions uniform over width x height,
// velocities uniform in [-1, 1)² and types uniform in [0, m). The output is
// a pure function of seed. When pool is non-nil, chunks are generated in
// parallel.
func Generate(n, m int, width, height uint32, seed uint64, pool *parallel.WorkerPool) []Particle {
	if n <= 0 {
		return nil
	}
	if m < 1 {
		m = 1
	}
	out := make([]Particle, n)

	chunks := (n + generateChunk - 1) / generateChunk
	work := make([]func(), chunks)
	for c := range chunks {
		lo := c * generateChunk
		hi := min(lo+generateChunk, n)
		work[c] = func() {
			rng := rand.New(rand.NewPCG(seed, uint64(c)))
			fillRandom(out[lo:hi], m, float32(width), float32(height), rng)
		}
	}

	if pool == nil || chunks == 1 {
		for _, w := range work {
			w()
		}
		return out
	}
	pool.ExecuteAll(work)
	return out
}

func fillRandom(dst []Particle, m int, width, height float32, rng *rand.Rand) {
	for i := range dst {
		dst[i] = Particle{
			Position: [2]float32{rng.Float32() * width, rng.Float32() * height},
			Velocity: [2]float32{rng.Float32()*2 - 1, rng.Float32()*2 - 1},
			Type:     uint32(rng.IntN(m)),
		}
	}
}
