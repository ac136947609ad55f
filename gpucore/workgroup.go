package gpucore

// WorkgroupCount returns the number of workgroups needed to cover elements
// invocations with the given workgroup size: ceil(elements / size).
// It returns 0 when there is nothing to process or size is 0.
func WorkgroupCount(elements, size uint32) uint32 {
	if elements == 0 || size == 0 {
		return 0
	}
	return (elements + size - 1) / size
}

// WorkgroupCount2D returns the workgroup grid covering a width x height
// area with square workgroups of the given size.
func WorkgroupCount2D(width, height, size uint32) (x, y uint32) {
	return WorkgroupCount(width, size), WorkgroupCount(height, size)
}
