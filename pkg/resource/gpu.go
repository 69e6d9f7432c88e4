package resource

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
)

// GPU is the whole-card plugin: each request consumes one entire idle
// card, selected at random among those not already booked. The
// selected index is exported via CUDA_VISIBLE_DEVICES so the child
// process sees only that card.
type GPU struct {
	mu   sync.Mutex
	enum Enumerator
	book map[int]float64 // pid -> card index
	rnd  *rand.Rand
}

// NewGPU constructs a GPU plugin backed by the given device
// enumerator.
func NewGPU(enum Enumerator) *GPU {
	return &GPU{
		enum: enum,
		book: make(map[int]float64),
		rnd:  rand.New(rand.NewSource(rngSeed())),
	}
}

func (p *GPU) Name() string { return "gpu" }

func (p *GPU) CanAlloc(rsc float64) bool {
	cards, err := p.enum.Enumerate(context.Background())
	if err != nil {
		return false
	}
	p.mu.Lock()
	booked := bookedIndexes(p.book)
	p.mu.Unlock()
	for _, c := range cards {
		if c.Available() && !booked[c.Index] {
			return true
		}
	}
	return false
}

func (p *GPU) Request(pid int, rsc float64) (func() ([]string, error), func() error) {
	acquire := func() (env []string, err error) {
		lockErr := withSelectorLock(func() error {
			cards, err := p.enum.Enumerate(context.Background())
			if err != nil {
				return err
			}
			p.mu.Lock()
			defer p.mu.Unlock()
			booked := bookedIndexes(p.book)
			var candidates []Card
			for _, c := range cards {
				if c.Available() && !booked[c.Index] {
					candidates = append(candidates, c)
				}
			}
			if len(candidates) == 0 {
				return fmt.Errorf("resource: no available GPU card")
			}
			chosen := candidates[p.rnd.Intn(len(candidates))]
			p.book[pid] = float64(chosen.Index)
			env = []string{fmt.Sprintf("CUDA_VISIBLE_DEVICES=%d", chosen.Index)}
			return nil
		})
		return env, lockErr
	}
	release := func() error {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.book, pid)
		return nil
	}
	return acquire, release
}

// reservedSentinelIndex books a reconciled pid without claiming a
// specific card index; see Plugin.Reserve's doc comment.
const reservedSentinelIndex = -1

func (p *GPU) Reserve(pid int, rsc float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.book[pid] = reservedSentinelIndex
}

func (p *GPU) Rebind(oldPID, newPID int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v, ok := p.book[oldPID]; ok {
		delete(p.book, oldPID)
		p.book[newPID] = v
	}
}

func (p *GPU) Book() map[int]float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return cloneBook(p.book)
}

func bookedIndexes(book map[int]float64) map[int]bool {
	out := make(map[int]bool, len(book))
	for _, idx := range book {
		out[int(idx)] = true
	}
	return out
}
