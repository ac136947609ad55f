package nodes

import "github.com/gogpu/particlelife/internal/world"

// Tracker holds one state value per entity. Entities carry a generation,
// so a despawned entity's slot never leaks into a new one; slots are
// dropped explicitly with Remove or Retain.
type Tracker[S any] struct {
	slots map[world.Entity]S
	zero  S
}

// NewTracker returns an empty tracker whose Get returns initial for
// untracked entities.
func NewTracker[S any](initial S) *Tracker[S] {
	return &Tracker[S]{slots: make(map[world.Entity]S), zero: initial}
}

// Get returns e's state, or the initial state if e is untracked.
func (t *Tracker[S]) Get(e world.Entity) S {
	if s, ok := t.slots[e]; ok {
		return s
	}
	return t.zero
}

// Lookup returns e's state and whether e is tracked.
func (t *Tracker[S]) Lookup(e world.Entity) (S, bool) {
	s, ok := t.slots[e]
	return s, ok
}

// Set stores e's state.
func (t *Tracker[S]) Set(e world.Entity, s S) {
	t.slots[e] = s
}

// Remove drops e's state.
func (t *Tracker[S]) Remove(e world.Entity) {
	delete(t.slots, e)
}

// Retain drops every entity for which live returns false and returns how
// many were dropped.
func (t *Tracker[S]) Retain(live func(world.Entity) bool) int {
	n := 0
	for e := range t.slots {
		if !live(e) {
			delete(t.slots, e)
			n++
		}
	}
	return n
}

// Len returns the number of tracked entities.
func (t *Tracker[S]) Len() int {
	return len(t.slots)
}

// Each calls fn for every tracked entity in unspecified order.
func (t *Tracker[S]) Each(fn func(world.Entity, S)) {
	for e, s := range t.slots {
		fn(e, s)
	}
}
