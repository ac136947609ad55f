package gpucore

import "errors"

// Adapter errors shared by all backends.
var (
	// ErrUnknownResource is returned when an ID does not name a live resource.
	ErrUnknownResource = errors.New("gpucore: unknown resource")

	// ErrInvalidDescriptor is returned for malformed descriptors
	// (zero sizes, empty SPIR-V, mismatched bindings).
	ErrInvalidDescriptor = errors.New("gpucore: invalid descriptor")

	// ErrEncoderFinished is returned when an encoder is reused after submit.
	ErrEncoderFinished = errors.New("gpucore: command encoder already finished")

	// ErrForeignEncoder is returned when an encoder is submitted to an
	// adapter that did not create it.
	ErrForeignEncoder = errors.New("gpucore: encoder belongs to another adapter")
)
