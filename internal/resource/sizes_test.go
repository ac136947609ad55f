package resource

import (
	"testing"

	"github.com/gogpu/particlelife/gpucore"
)

func TestSizesFor(t *testing.T) {
	tests := []struct {
		name string
		n, m int
		want Sizes
	}{
		{"default", 1000, 6, Sizes{Particles: 24000, Config: 32, Matrix: 144, DeltaTime: 16, SpatialIndices: 16000, SpatialOffsets: 4000}},
		{"empty", 0, 1, Sizes{Particles: 0, Config: 32, Matrix: 4, DeltaTime: 16, SpatialIndices: 0, SpatialOffsets: 0}},
		{"negative clamps", -5, -1, Sizes{Config: 32, DeltaTime: 16}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SizesFor(tt.n, tt.m)
			if got != tt.want {
				t.Errorf("SizesFor(%d, %d) = %+v, want %+v", tt.n, tt.m, got, tt.want)
			}
		})
	}
}

func TestSizesTotal(t *testing.T) {
	s := SizesFor(10, 2)
	want := uint64(240 + 32 + 16 + 16 + 160 + 40)
	if got := s.Total(); got != want {
		t.Errorf("Total() = %d, want %d", got, want)
	}
}

func TestAllocSize(t *testing.T) {
	for _, tt := range []struct{ in, want uint64 }{{0, 4}, {3, 4}, {4, 4}, {24, 24}} {
		if got := allocSize(tt.in); got != tt.want {
			t.Errorf("allocSize(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestTargets(t *testing.T) {
	ts := NewTargets()
	pending := ts.Register(gpucore.InvalidID, 0, 0)
	ready := ts.Register(9, 800, 600)

	if pending == ready {
		t.Fatal("Register returned a duplicate ID")
	}
	if _, ok := ts.Resolve(pending); ok {
		t.Error("target without texture resolved")
	}
	tg, ok := ts.Resolve(ready)
	if !ok || tg.Texture != 9 || tg.Width != 800 || tg.Height != 600 {
		t.Errorf("Resolve(ready) = %+v, %v", tg, ok)
	}

	ts.Set(pending, 11, 32, 32)
	if tg, ok := ts.Resolve(pending); !ok || tg.Texture != 11 {
		t.Errorf("Resolve after Set = %+v, %v", tg, ok)
	}

	ts.Set(100, 12, 1, 1)
	if next := ts.Register(13, 1, 1); next <= 100 {
		t.Errorf("Register after Set(100) returned %d", next)
	}

	ts.Remove(ready)
	if _, ok := ts.Resolve(ready); ok {
		t.Error("removed target resolved")
	}
	if got := ts.Len(); got != 3 {
		t.Errorf("Len() = %d, want 3", got)
	}
}
