package block

import (
	"math/rand/v2"
	"sync"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// S1 — alignment clamp: value_size=8, capacity=3, alignment=64.
func TestBlockAlignmentClampScenarioS1(t *testing.T) {
	b, err := New(8, 3, 64, nil)
	require.NoError(t, err)

	var got []unsafe.Pointer
	for i := 0; i < 3; i++ {
		p := b.Allocate()
		require.NotNil(t, p)
		assert.Zero(t, uintptr(p)%64, "pointer must be 64-byte aligned")
		got = append(got, p)
	}
	assert.Nil(t, b.Allocate(), "capacity exhausted, 4th allocation must fail")
	assert.Len(t, got, 3)
}

func TestBlockZeroValueSizeRejected(t *testing.T) {
	_, err := New(0, 4, 0, nil)
	require.Error(t, err)
}

func TestBlockZeroCapacityAllocateReturnsNil(t *testing.T) {
	b, err := New(16, 0, 0, nil)
	require.NoError(t, err)
	assert.Nil(t, b.Allocate())
	assert.NoError(t, b.Free(nil))
}

// Property 2 — alignment: every returned pointer satisfies p % A == 0.
func TestBlockAllocateAlignment(t *testing.T) {
	b, err := New(24, 16, 32, nil)
	require.NoError(t, err)
	for i := 0; i < 16; i++ {
		p := b.Allocate()
		require.NotNil(t, p)
		assert.Zero(t, uintptr(p)%32)
	}
}

// Property 3 — range: every returned p satisfies block.InRange(p).
func TestBlockInRange(t *testing.T) {
	b, err := New(16, 8, 0, nil)
	require.NoError(t, err)
	for i := 0; i < 8; i++ {
		p := b.Allocate()
		require.NotNil(t, p)
		assert.True(t, b.InRange(uintptr(p)))
	}
	assert.False(t, b.InRange(0))
	assert.False(t, b.InRange(b.Base()+uintptr(b.UsableSize())))
}

// Property 1 & 4 — allocate/free round trip never exceeds capacity, and
// the free list always holds exactly capacity - outstanding indices.
func TestBlockAllocateFreeRoundTrip(t *testing.T) {
	const capacity = 32
	b, err := New(16, capacity, 0, nil)
	require.NoError(t, err)

	var held []unsafe.Pointer
	for i := 0; i < capacity; i++ {
		p := b.Allocate()
		require.NotNil(t, p)
		held = append(held, p)
	}
	assert.Nil(t, b.Allocate())
	assert.EqualValues(t, 0, b.FreeListLen())

	for _, p := range held {
		require.NoError(t, b.Free(p))
	}
	assert.EqualValues(t, capacity, b.FreeListLen())

	// Reallocating must return every previously freed index before any
	// held pointer is returned twice.
	seen := make(map[unsafe.Pointer]bool)
	for i := 0; i < capacity; i++ {
		p := b.Allocate()
		require.NotNil(t, p)
		assert.False(t, seen[p], "slot reused before being freed again")
		seen[p] = true
	}
}

func TestBlockFreeMisaligned(t *testing.T) {
	b, err := New(16, 4, 0, nil)
	require.NoError(t, err)
	p := b.Allocate()
	require.NotNil(t, p)
	err = b.Free(unsafe.Pointer(uintptr(p) + 1))
	require.Error(t, err)
}

func TestBlockFreeOutOfRange(t *testing.T) {
	b, err := New(16, 4, 0, nil)
	require.NoError(t, err)
	other, err := New(16, 4, 0, nil)
	require.NoError(t, err)
	p := other.Allocate()
	require.NotNil(t, p)
	err = b.Free(p)
	require.Error(t, err)
}

func TestBlockConcurrentAllocateFree(t *testing.T) {
	const capacity = 64
	b, err := New(32, capacity, 0, nil)
	require.NoError(t, err)

	var mu sync.Mutex
	var leaked []unsafe.Pointer

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				p := b.Allocate()
				if p == nil {
					continue
				}
				if rand.IntN(4) == 0 {
					mu.Lock()
					leaked = append(leaked, p)
					mu.Unlock()
				} else {
					_ = b.Free(p)
				}
			}
		}()
	}
	wg.Wait()

	for _, p := range leaked {
		_ = b.Free(p)
	}
	assert.LessOrEqual(t, b.FreeListLen(), uint32(capacity))
}

func TestBlockClone(t *testing.T) {
	b, err := New(16, 4, 0, nil)
	require.NoError(t, err)
	p := b.Allocate()
	require.NotNil(t, p)

	clone := b.Clone()
	assert.Equal(t, b.ValueSize(), clone.ValueSize())
	assert.Equal(t, b.Capacity(), clone.Capacity())
	assert.Equal(t, b.FreeListLen(), clone.FreeListLen())
}
