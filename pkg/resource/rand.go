package resource

import "time"

// rngSeed seeds the GPU card-selection RNG. Card choice among equally
// idle candidates has no correctness requirement (§4.C only requires
// "a random available-and-unbooked card"), so a time-derived seed is
// sufficient.
func rngSeed() int64 {
	return time.Now().UnixNano()
}
