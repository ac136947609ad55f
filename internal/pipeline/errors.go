package pipeline

import "errors"

// Pipeline build errors. A pipeline whose build fails with any of these
// stays in StatusFailed for the life of the registry.
var (
	// ErrDirective is returned for malformed or unbalanced preprocessor directives.
	ErrDirective = errors.New("pipeline: malformed shader directive")

	// ErrUndefined is returned when source references #{NAME} and NAME is not defined.
	ErrUndefined = errors.New("pipeline: undefined shader define")

	// ErrEntryPointNotFound is returned when the entry point or its
	// @workgroup_size attribute is missing from the source.
	ErrEntryPointNotFound = errors.New("pipeline: entry point not found")

	// ErrWorkgroupMismatch is returned when the kernel's declared workgroup
	// size differs from the size the dispatch math assumes.
	ErrWorkgroupMismatch = errors.New("pipeline: workgroup size mismatch")

	// ErrWorkgroupLimit is returned when a workgroup size exceeds adapter limits.
	ErrWorkgroupLimit = errors.New("pipeline: workgroup size exceeds adapter limits")

	// ErrCompile wraps shader compiler failures.
	ErrCompile = errors.New("pipeline: shader compilation failed")

	// ErrClosed is returned for pipelines queued after Close.
	ErrClosed = errors.New("pipeline: registry closed")

	// ErrUnknownHandle is returned for handles the registry did not issue.
	ErrUnknownHandle = errors.New("pipeline: unknown handle")
)
