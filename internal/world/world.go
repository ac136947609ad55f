// Package world is the simulation side of the particle system: an ECS world
// of particle-system entities plus the configuration they share, and the
// snapshot handed to the render side every frame.
package world

import (
	"math/rand/v2"
	"sync"

	"github.com/mlange-42/ark/ecs"

	"github.com/gogpu/particlelife/internal/particle"
	"github.com/gogpu/particlelife/internal/resource"
)

// Entity identifies a particle system. It carries a generation, so a
// despawned entity never aliases a later one.
type Entity = ecs.Entity

// ParticleSystem is the component marking an entity as a simulated
// particle system drawn into Target.
type ParticleSystem struct {
	Target resource.TargetID
}

// Extracted is one live particle system as seen by the render side.
type Extracted struct {
	Entity Entity
	Target resource.TargetID
}

// Snapshot is the render side's copy of the world for one frame.
// Config.Recreate is set when the render side must rebuild every
// resource set.
type Snapshot struct {
	Config   particle.SimulationConfig
	Entities []Extracted
	// Seq increases by one per Extract.
	Seq uint64
}

// Alive reports whether e is part of the snapshot.
func (s *Snapshot) Alive(e Entity) bool {
	for _, x := range s.Entities {
		if x.Entity == e {
			return true
		}
	}
	return false
}

// World holds the particle-system entities and the configuration they
// share.
//
// Thread safety: World is safe for concurrent use.
type World struct {
	mu       sync.Mutex
	ecs      *ecs.World
	systems  *ecs.Map[ParticleSystem]
	filter   *ecs.Filter1[ParticleSystem]
	config   particle.SimulationConfig
	recreate bool
	seq      uint64
	rng      *rand.Rand
}

// New returns a world with cfg as its configuration. The rng samples
// attraction matrices on recreate.
func New(cfg particle.SimulationConfig, rng *rand.Rand) *World {
	w := ecs.NewWorld()
	return &World{
		ecs:     &w,
		systems: ecs.NewMap[ParticleSystem](&w),
		filter:  ecs.NewFilter1[ParticleSystem](&w),
		config:  cfg.Clone(),
		rng:     rng,
	}
}

// Spawn adds a particle system drawn into target.
func (w *World) Spawn(target resource.TargetID) Entity {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.systems.NewEntity(&ParticleSystem{Target: target})
}

// Despawn removes e. Despawning a dead entity is a no-op.
func (w *World) Despawn(e Entity) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ecs.Alive(e) {
		w.ecs.RemoveEntity(e)
	}
}

// SetTarget points e at a different render target.
func (w *World) SetTarget(e Entity, target resource.TargetID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.ecs.Alive(e) || !w.systems.Has(e) {
		return false
	}
	w.systems.Get(e).Target = target
	return true
}

// SetConfig replaces the configuration. A config with Recreate set also
// requests a recreate. Its attraction matrix is kept when it has m*m
// entries and sampled afresh otherwise.
func (w *World) SetConfig(cfg particle.SimulationConfig) {
	w.mu.Lock()
	defer w.mu.Unlock()
	cfg = cfg.Clone()
	if len(cfg.AttractionMatrix) != cfg.M*cfg.M && w.rng != nil {
		cfg = cfg.WithRandomMatrix(w.rng)
	}
	if cfg.Recreate {
		cfg.Recreate = false
		w.recreate = true
	}
	w.config = cfg
}

// Config returns a copy of the configuration.
func (w *World) Config() particle.SimulationConfig {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.config.Clone()
}

// RequestRecreate asks the render side to rebuild every resource set with
// fresh particles and a freshly sampled attraction matrix.
func (w *World) RequestRecreate() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.rng != nil {
		w.config = w.config.WithRandomMatrix(w.rng)
	}
	w.recreate = true
}

// Len returns the number of live particle systems.
func (w *World) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	q := w.filter.Query()
	for q.Next() {
		n++
	}
	return n
}

// Extract copies the world into a snapshot and consumes a pending
// recreate request.
func (w *World) Extract() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.seq++
	snap := Snapshot{
		Config: w.config.Clone(),
		Seq:    w.seq,
	}
	snap.Config.Recreate = w.recreate
	w.recreate = false

	q := w.filter.Query()
	for q.Next() {
		ps := q.Get()
		snap.Entities = append(snap.Entities, Extracted{Entity: q.Entity(), Target: ps.Target})
	}
	return snap
}
