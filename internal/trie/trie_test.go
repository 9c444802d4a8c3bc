package trie

import (
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcaflux/slabmem/internal/slab"
)

func newNodeSlab(t *testing.T) *slab.Slab {
	t.Helper()
	s, err := slab.New(4, []slab.BucketConfig{
		{BlockSize: 16, InitialCapacity: 64, GrowthFactor: 2},
		{BlockSize: 32, InitialCapacity: 64, GrowthFactor: 2},
	}, nil)
	require.NoError(t, err)
	return s
}

func TestEmplaceFindRoundTrip(t *testing.T) {
	tr := New[int64](newNodeSlab(t))

	key, value, inserted, err := tr.Emplace(42, 100)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.EqualValues(t, 42, key)
	assert.EqualValues(t, 100, value)

	got, ok := tr.Find(42)
	require.True(t, ok)
	assert.EqualValues(t, 100, got)

	_, ok = tr.Find(43)
	assert.False(t, ok)
}

func TestEmplaceExistingKeyReturnsInsertedFalse(t *testing.T) {
	tr := New[int64](newNodeSlab(t))
	_, _, inserted, err := tr.Emplace(7, 1)
	require.NoError(t, err)
	require.True(t, inserted)

	_, value, inserted, err := tr.Emplace(7, 999)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.EqualValues(t, 1, value, "existing value must be preserved, not overwritten")
}

func TestMinMax(t *testing.T) {
	tr := New[int64](newNodeSlab(t))
	keys := []uint64{50, 10, 99, 1, 42}
	for _, k := range keys {
		_, _, _, err := tr.Emplace(k, int64(k))
		require.NoError(t, err)
	}

	minKey, _, ok := tr.Min()
	require.True(t, ok)
	assert.EqualValues(t, 1, minKey)

	maxKey, _, ok := tr.Max()
	require.True(t, ok)
	assert.EqualValues(t, 99, maxKey)
}

func TestFindLessEqual(t *testing.T) {
	tr := New[int64](newNodeSlab(t))
	for _, k := range []uint64{10, 20, 30, 40} {
		_, _, _, err := tr.Emplace(k, int64(k))
		require.NoError(t, err)
	}

	key, value, ok := tr.FindLessEqual(25)
	require.True(t, ok)
	assert.EqualValues(t, 20, key)
	assert.EqualValues(t, 20, value)

	key, _, ok = tr.FindLessEqual(40)
	require.True(t, ok)
	assert.EqualValues(t, 40, key)

	_, _, ok = tr.FindLessEqual(5)
	assert.False(t, ok, "no key <= 5 exists")

	key, _, ok = tr.FindLessEqual(^uint64(0))
	require.True(t, ok)
	assert.EqualValues(t, 40, key)
}

func TestIterateAscendingAndDescending(t *testing.T) {
	tr := New[int64](newNodeSlab(t))
	keys := []uint64{5, 1, 9, 3, 7}
	for _, k := range keys {
		_, _, _, err := tr.Emplace(k, int64(k))
		require.NoError(t, err)
	}

	var forward []uint64
	tr.Iterate(func(k uint64, v int64) bool {
		forward = append(forward, k)
		return true
	})
	sorted := append([]uint64(nil), keys...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	assert.Equal(t, sorted, forward)

	var backward []uint64
	tr.IterateReverse(func(k uint64, v int64) bool {
		backward = append(backward, k)
		return true
	})
	reversed := append([]uint64(nil), sorted...)
	for i, j := 0, len(reversed)-1; i < j; i, j = i+1, j-1 {
		reversed[i], reversed[j] = reversed[j], reversed[i]
	}
	assert.Equal(t, reversed, backward)
}

func TestIterateStopsEarly(t *testing.T) {
	tr := New[int64](newNodeSlab(t))
	for _, k := range []uint64{1, 2, 3, 4, 5} {
		_, _, _, err := tr.Emplace(k, int64(k))
		require.NoError(t, err)
	}
	var seen int
	tr.Iterate(func(k uint64, v int64) bool {
		seen++
		return seen < 2
	})
	assert.Equal(t, 2, seen)
}

func TestSizeTracksLeafCount(t *testing.T) {
	tr := New[int64](newNodeSlab(t))
	assert.EqualValues(t, 0, tr.Size())
	for i := uint64(0); i < 10; i++ {
		_, _, _, err := tr.Emplace(i, int64(i))
		require.NoError(t, err)
	}
	assert.EqualValues(t, 10, tr.Size())
	// re-inserting an existing key must not grow size.
	_, _, _, err := tr.Emplace(3, 999)
	require.NoError(t, err)
	assert.EqualValues(t, 10, tr.Size())
}

func TestRandomKeysPredecessorMatchesLinearScan(t *testing.T) {
	tr := New[int64](newNodeSlab(t))
	var keys []uint64
	for i := 0; i < 200; i++ {
		k := rand.Uint64()
		if _, _, inserted, err := tr.Emplace(k, int64(k)); err == nil && inserted {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	for i := 0; i < 50; i++ {
		target := rand.Uint64()
		want, wantOK := linearFindLessEqual(keys, target)
		gotKey, _, gotOK := tr.FindLessEqual(target)
		require.Equal(t, wantOK, gotOK, "target=%d", target)
		if wantOK {
			assert.Equal(t, want, gotKey, "target=%d", target)
		}
	}
}

func linearFindLessEqual(sorted []uint64, target uint64) (uint64, bool) {
	best := uint64(0)
	found := false
	for _, k := range sorted {
		if k <= target && (!found || k > best) {
			best = k
			found = true
		}
	}
	return best, found
}
