// Package resource implements the pluggable admission-control layer
// of §4.C: a capability interface (CanAlloc/Request/Book) plus four
// concrete plugins (void, virtual, gpu, vmem) selected at supervisor
// startup by the store's "resource" config key.
//
// Plugins are safe to call from the supervisor only; the book they
// hold is process-local and is rebuilt from the store on supervisor
// startup by the reconcile pass (pkg/supervisor), never persisted
// itself.
package resource

import "github.com/cdluminate/tasque/pkg/errs"

// Plugin is the capability object admission decisions are made
// against. CanAlloc is a non-blocking predicate over the current
// in-memory book; it never mutates state. Request reserves the
// allocation intent for pid and returns two idempotent thunks bound
// to that pid: acquire commits the reservation (and may return
// environment variables such as CUDA_VISIBLE_DEVICES to export into
// the child's environment) and release returns the capacity.
//
// Because the supervisor must decide the child's environment (for
// GPU/VMem, CUDA_VISIBLE_DEVICES) before the fork that produces its
// real pid, Request/acquire are first invoked against a placeholder
// pid chosen by the supervisor; once the real worker pid is known,
// the supervisor calls Rebind to move the book entry onto it (§4.D
// step 4a: "the reservation is completed after fork by re-binding to
// the actual child pid"). Rebind is a no-op if oldPID is not booked.
type Plugin interface {
	Name() string
	CanAlloc(rsc float64) bool
	Request(pid int, rsc float64) (acquire func() (env []string, err error), release func() error)
	Rebind(oldPID, newPID int)
	// Reserve directly inserts pid into the book without going
	// through CanAlloc/acquire. It exists solely for the supervisor's
	// startup reconcile pass, which must rebuild the book for tasks
	// already Running when the supervisor (re)starts (§4.C: "the book
	// ... is rebuilt from the Store on supervisor startup"). For
	// Void/Virtual the reserved value is the task's rsc and capacity
	// accounting is exact; for GPU/VMem the specific card a surviving
	// task holds is not recorded anywhere durable, so Reserve books it
	// under a sentinel index that never matches a real card — the
	// task keeps running unaffected, but the card it actually holds
	// may be handed to a second request until that task exits.
	Reserve(pid int, rsc float64)
	Book() map[int]float64
}

// New constructs the plugin named by name, one of "void", "virtual",
// "gpu", "vmem". Additional names may be recognized by a future
// build; an unrecognized name is a usage error, not a panic.
func New(name string) (Plugin, error) {
	switch name {
	case "", "void":
		return NewVoid(), nil
	case "virtual":
		return NewVirtual(), nil
	case "gpu":
		return NewGPU(NewNvidiaSMI()), nil
	case "vmem":
		return NewVMem(NewNvidiaSMI()), nil
	default:
		return nil, errs.Usage("resource: unknown plugin %q", name)
	}
}
