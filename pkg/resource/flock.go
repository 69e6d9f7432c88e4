package resource

import (
	"os"

	"golang.org/x/sys/unix"
)

// cudaSelectorLockPath is the well-known path serializing card
// selection across independent acquire calls, per §5 "CUDA selector
// locking": without it, two callers racing CanAlloc/acquire could
// both pick the same idle card before either's book update is
// visible to the other.
const cudaSelectorLockPath = "/tmp/.tasque-cusel.lock"

// withSelectorLock runs fn while holding an advisory exclusive flock
// on the well-known selector lock file. The lock is process-local in
// effect here (the supervisor's own book mutex already serializes
// concurrent acquires within one process), but taking it anyway keeps
// the on-disk contract available to any companion device-selector
// binary built against the same well-known path.
func withSelectorLock(fn func() error) error {
	f, err := os.OpenFile(cudaSelectorLockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		// Best effort: selection still serializes via the in-process
		// mutex even if the lock file can't be created.
		return fn()
	}
	defer f.Close()

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		return fn()
	}
	defer unix.Flock(int(f.Fd()), unix.LOCK_UN)

	return fn()
}
