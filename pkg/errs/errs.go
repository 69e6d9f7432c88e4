// Package errs defines the error taxonomy shared across tasque: usage
// errors surfaced to the caller, store errors, resource errors, and
// worker errors confined to the worker process.
package errs

import (
	"errors"
	"fmt"
)

// Sentinel errors, checkable with errors.Is. ResourceError is never
// constructed directly by a plugin (CanAlloc signals capacity
// exhaustion by returning false, not by returning this error); it
// exists so callers that do wrap a plugin failure (e.g. the GPU
// enumerator refusing to run) can tag it consistently.
var (
	ErrUsage    = errors.New("usage error")
	ErrStore    = errors.New("store error")
	ErrResource = errors.New("resource error")
	ErrWorker   = errors.New("worker error")
)

// Usage formats a fresh message and wraps it as a usage error.
func Usage(format string, a ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, a...), ErrUsage)
}

// Store wraps err as a store error with context.
func Store(context string, err error) error {
	return fmt.Errorf("%s: %w: %w", context, ErrStore, err)
}

// Resource wraps err as a resource error with context.
func Resource(context string, err error) error {
	return fmt.Errorf("%s: %w: %w", context, ErrResource, err)
}

// Worker wraps err as a worker error with context.
func Worker(context string, err error) error {
	return fmt.Errorf("%s: %w: %w", context, ErrWorker, err)
}
