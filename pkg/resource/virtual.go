package resource

import "sync"

// virtualCapacity is the total logical capacity of the Virtual
// plugin; rsc values are fractions of this unit.
const virtualCapacity = 1.0

// epsilon absorbs floating-point accumulation error across repeated
// acquire/release cycles so a task whose rsc exactly matches the
// remaining capacity is not spuriously refused.
const epsilon = 1e-9

// Virtual expresses logical parallelism as fractional units of a
// single capacity of 1.0; it is purely numeric and has no relation to
// physical resources.
type Virtual struct {
	mu   sync.Mutex
	book map[int]float64
}

// NewVirtual constructs an empty Virtual plugin.
func NewVirtual() *Virtual {
	return &Virtual{book: make(map[int]float64)}
}

func (p *Virtual) Name() string { return "virtual" }

func (p *Virtual) CanAlloc(rsc float64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return rsc <= virtualCapacity-p.sumLocked()+epsilon
}

func (p *Virtual) sumLocked() float64 {
	var sum float64
	for _, v := range p.book {
		sum += v
	}
	return sum
}

func (p *Virtual) Request(pid int, rsc float64) (func() ([]string, error), func() error) {
	acquire := func() ([]string, error) {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.book[pid] = rsc
		return nil, nil
	}
	release := func() error {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.book, pid)
		return nil
	}
	return acquire, release
}

func (p *Virtual) Reserve(pid int, rsc float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.book[pid] = rsc
}

func (p *Virtual) Rebind(oldPID, newPID int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v, ok := p.book[oldPID]; ok {
		delete(p.book, oldPID)
		p.book[newPID] = v
	}
}

func (p *Virtual) Book() map[int]float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return cloneBook(p.book)
}
