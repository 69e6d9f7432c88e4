package resource

import (
	"context"
	"fmt"
	"sync"
)

// VMem is the fine-grained GPU memory plugin: a card may serve at
// most one request at a time (it is pinned for the requesting pid),
// but admission is judged on free memory rather than whole-card
// idleness.
type VMem struct {
	mu   sync.Mutex
	enum Enumerator
	book map[int]float64 // pid -> card index
}

// NewVMem constructs a VMem plugin backed by the given device
// enumerator.
func NewVMem(enum Enumerator) *VMem {
	return &VMem{enum: enum, book: make(map[int]float64)}
}

func (p *VMem) Name() string { return "vmem" }

func (p *VMem) CanAlloc(rsc float64) bool {
	cards, err := p.enum.Enumerate(context.Background())
	if err != nil {
		return false
	}
	p.mu.Lock()
	booked := bookedIndexes(p.book)
	p.mu.Unlock()
	for _, c := range cards {
		if !booked[c.Index] && float64(c.FreeMB) >= rsc {
			return true
		}
	}
	return false
}

func (p *VMem) Request(pid int, rsc float64) (func() ([]string, error), func() error) {
	acquire := func() (env []string, err error) {
		lockErr := withSelectorLock(func() error {
			cards, err := p.enum.Enumerate(context.Background())
			if err != nil {
				return err
			}
			p.mu.Lock()
			defer p.mu.Unlock()
			booked := bookedIndexes(p.book)
			var chosen *Card
			for i := range cards {
				c := cards[i]
				if booked[c.Index] || float64(c.FreeMB) < rsc {
					continue
				}
				if chosen == nil || c.FreeMB > chosen.FreeMB {
					chosen = &c
				}
			}
			if chosen == nil {
				return fmt.Errorf("resource: no GPU card with %v MiB free", rsc)
			}
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

func (p *VMem) Reserve(pid int, rsc float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.book[pid] = reservedSentinelIndex
}

func (p *VMem) Rebind(oldPID, newPID int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v, ok := p.book[oldPID]; ok {
		delete(p.book, oldPID)
		p.book[newPID] = v
	}
}

func (p *VMem) Book() map[int]float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return cloneBook(p.book)
}
