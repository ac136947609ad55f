package native

import "errors"

// Package errors for the HAL backend.
var (
	// ErrNoGPU is returned when no GPU adapter is available.
	ErrNoGPU = errors.New("native: no GPU adapter available")

	// ErrBackendUnavailable is returned when the requested HAL backend is
	// not compiled in or not supported on this platform.
	ErrBackendUnavailable = errors.New("native: backend not available")

	// ErrFenceTimeout is returned when a submission does not complete in time.
	ErrFenceTimeout = errors.New("native: timed out waiting for GPU")
)
