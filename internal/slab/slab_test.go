package slab

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// S4 — bucket dispatch: configured sizes {2,8,32}, calibrating to
// {2,4,8,16,32} with smallest_block_exponent=1.
func TestFindBlockBucketScenarioS4(t *testing.T) {
	s, err := New(2, []BucketConfig{
		{BlockSize: 2, InitialCapacity: 4, GrowthFactor: 2},
		{BlockSize: 8, InitialCapacity: 4, GrowthFactor: 2},
		{BlockSize: 32, InitialCapacity: 4, GrowthFactor: 2},
	}, nil)
	require.NoError(t, err)

	cases := []struct {
		size uint64
		want int
	}{
		{1, 0}, {2, 0}, {3, 1}, {4, 1}, {5, 2}, {8, 2}, {9, 3}, {16, 3}, {17, 4}, {32, 4},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, s.FindBlockBucket(c.size), "size=%d", c.size)
	}
}

func TestAllocateDeallocateRoundTrip(t *testing.T) {
	s, err := New(2, []BucketConfig{{BlockSize: 16, InitialCapacity: 4, GrowthFactor: 2}}, nil)
	require.NoError(t, err)

	p := s.Allocate(16, 0, 1)
	require.NotNil(t, p)
	require.NoError(t, s.Deallocate(16, 0, p, 1))
}

func TestAllocateGrowsBucketWhenFull(t *testing.T) {
	s, err := New(2, []BucketConfig{{BlockSize: 16, InitialCapacity: 2, GrowthFactor: 2}}, nil)
	require.NoError(t, err)

	var got []unsafe.Pointer
	for i := 0; i < 6; i++ {
		p := s.Allocate(16, 0, 1)
		require.NotNil(t, p, "allocation %d should succeed via bucket growth", i)
		got = append(got, p)
	}
	seen := make(map[unsafe.Pointer]bool)
	for _, p := range got {
		assert.False(t, seen[p])
		seen[p] = true
	}
}

func TestAllocateOutOfRangeReturnsNil(t *testing.T) {
	s, err := New(2, []BucketConfig{{BlockSize: 16, InitialCapacity: 2, GrowthFactor: 2}}, nil)
	require.NoError(t, err)
	assert.Nil(t, s.Allocate(0, 0, 0))
	assert.Nil(t, s.Allocate(1<<20, 0, 1), "no bucket serves 1 MiB")
}

func TestDeallocateForeignPointerDropsSilently(t *testing.T) {
	s, err := New(2, []BucketConfig{{BlockSize: 16, InitialCapacity: 2, GrowthFactor: 2}}, nil)
	require.NoError(t, err)
	var x int64
	err = s.Deallocate(16, 0, unsafe.Pointer(&x), 1)
	assert.NoError(t, err)
}

func TestMakeUniqueRoundTrip(t *testing.T) {
	s, err := New(2, []BucketConfig{{BlockSize: 64, InitialCapacity: 2, GrowthFactor: 2}}, nil)
	require.NoError(t, err)

	res, owner := MakeUnique(s, int64(42))
	require.Equal(t, MakeSuccess, res)
	require.NotNil(t, owner)
	assert.EqualValues(t, 42, *owner.Get())
	require.NoError(t, owner.Release())
}

func TestBucketConfigsReflectsCalibration(t *testing.T) {
	s, err := New(2, []BucketConfig{{BlockSize: 16, InitialCapacity: 16}, {BlockSize: 64, InitialCapacity: 4}}, nil)
	require.NoError(t, err)
	configs := s.BucketConfigs()
	require.Len(t, configs, 3)
	assert.EqualValues(t, 16, configs[0].BlockSize)
	assert.EqualValues(t, 32, configs[1].BlockSize)
	assert.EqualValues(t, 64, configs[2].BlockSize)
}
