package pipeline

import (
	"hash/fnv"
	"io"
	"strconv"

	"github.com/gogpu/particlelife/gpucore"
)

// Descriptor identifies one compute pipeline: a kernel entry point in
// shader source, compiled with defines against a single bind group layout.
type Descriptor struct {
	Label      string
	Source     string
	EntryPoint string
	Layout     gpucore.BindGroupLayoutID
	Defines    Defines

	// Workgroup is the size the dispatch math assumes. The kernel's
	// @workgroup_size must match it. A zero value skips the check.
	Workgroup [3]uint32
}

// Hash returns an FNV-1a hash over every field. Define order does not
// matter.
func (d *Descriptor) Hash() uint64 {
	h := fnv.New64a()
	str := func(s string) {
		_, _ = io.WriteString(h, s)
		_, _ = h.Write([]byte{0})
	}
	num := func(v uint64) {
		str(strconv.FormatUint(v, 16))
	}

	str(d.Label)
	str(d.Source)
	str(d.EntryPoint)
	num(uint64(d.Layout))
	for _, k := range d.Defines.Keys() {
		str(k)
		num(uint64(d.Defines[k]))
	}
	for _, w := range d.Workgroup {
		num(uint64(w))
	}
	return h.Sum64()
}

func hashSource(src string) uint64 {
	h := fnv.New64a()
	_, _ = io.WriteString(h, src)
	return h.Sum64()
}
