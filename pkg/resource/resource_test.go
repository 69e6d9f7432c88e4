package resource

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeEnumerator struct {
	cards []Card
	err   error
}

func (f *fakeEnumerator) Enumerate(ctx context.Context) ([]Card, error) {
	return f.cards, f.err
}

func TestVoidAllowsOneAtATime(t *testing.T) {
	p := NewVoid()
	require.True(t, p.CanAlloc(0))

	acquire, release := p.Request(100, 0)
	_, err := acquire()
	require.NoError(t, err)
	require.False(t, p.CanAlloc(0))

	require.NoError(t, release())
	require.True(t, p.CanAlloc(0))
}

func TestVoidRebindMovesBookEntry(t *testing.T) {
	p := NewVoid()
	acquire, _ := p.Request(0, 0)
	_, err := acquire()
	require.NoError(t, err)

	p.Rebind(0, 4242)
	book := p.Book()
	_, hadPlaceholder := book[0]
	require.False(t, hadPlaceholder)
	require.Equal(t, float64(1), book[4242])
}

// P7: the sum of rsc over the book never exceeds declared capacity.
func TestVirtualRespectsCapacity(t *testing.T) {
	p := NewVirtual()
	require.True(t, p.CanAlloc(0.4))

	a1, _ := p.Request(1, 0.4)
	_, err := a1()
	require.NoError(t, err)

	a2, _ := p.Request(2, 0.4)
	_, err = a2()
	require.NoError(t, err)

	require.False(t, p.CanAlloc(0.4))
	require.True(t, p.CanAlloc(0.2))

	a3, r3 := p.Request(3, 0.2)
	_, err = a3()
	require.NoError(t, err)

	var sum float64
	for _, v := range p.Book() {
		sum += v
	}
	require.LessOrEqual(t, sum, 1.0+epsilon)

	require.NoError(t, r3())
	require.True(t, p.CanAlloc(0.2))
}

func TestGPUPicksAvailableUnbookedCard(t *testing.T) {
	enum := &fakeEnumerator{cards: []Card{
		{Index: 0, TotalMB: 16000, UsedMB: 0, FreeMB: 16000},
		{Index: 1, TotalMB: 16000, UsedMB: 15000, FreeMB: 1000},
	}}
	p := NewGPU(enum)
	require.True(t, p.CanAlloc(0))

	acquire, release := p.Request(42, 0)
	env, err := acquire()
	require.NoError(t, err)
	require.Equal(t, []string{"CUDA_VISIBLE_DEVICES=0"}, env)

	require.False(t, p.CanAlloc(0)) // card 0 now booked, card 1 not available

	require.NoError(t, release())
	require.True(t, p.CanAlloc(0))
}

func TestGPUEnumerationFailureIsNotCapacity(t *testing.T) {
	p := NewGPU(&fakeEnumerator{err: errBoom})
	require.False(t, p.CanAlloc(0))
}

func TestVMemChecksFreeMemoryOnUnbookedCard(t *testing.T) {
	enum := &fakeEnumerator{cards: []Card{
		{Index: 0, TotalMB: 16000, UsedMB: 14000, FreeMB: 2000},
		{Index: 1, TotalMB: 16000, UsedMB: 8000, FreeMB: 8000},
	}}
	p := NewVMem(enum)
	require.True(t, p.CanAlloc(4000))
	require.False(t, p.CanAlloc(9000))

	acquire, release := p.Request(7, 4000)
	env, err := acquire()
	require.NoError(t, err)
	require.Equal(t, []string{"CUDA_VISIBLE_DEVICES=1"}, env)

	require.True(t, p.CanAlloc(1000)) // card 0 still has 2000 free
	require.NoError(t, release())
}

func TestParseNvidiaSMI(t *testing.T) {
	data := []byte("0, 16000, 100, 15900\n1, 16000, 16000, 0\n")
	cards, err := parseNvidiaSMI(data)
	require.NoError(t, err)
	require.Len(t, cards, 2)
	require.Equal(t, Card{Index: 0, TotalMB: 16000, UsedMB: 100, FreeMB: 15900}, cards[0])
	require.True(t, cards[0].Available())
	require.False(t, cards[1].Available())
}

func TestNewUnknownPlugin(t *testing.T) {
	_, err := New("bogus")
	require.Error(t, err)
}

var errBoom = requireErr("boom")

type requireErr string

func (e requireErr) Error() string { return string(e) }
