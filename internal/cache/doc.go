// Package cache provides a small generic LRU cache.
//
// The pipeline registry keeps compiled SPIR-V here, keyed by the hash of
// the preprocessed shader source, so kernels that share a source file
// (the three update kernels, the two render kernels) are compiled once.
//
//	c := cache.New[uint64, []uint32](32)
//	words, err := c.GetOrCreate(key, compile)
//
// Cache is safe for concurrent use.
package cache
