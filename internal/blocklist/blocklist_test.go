package blocklist

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListBeginAlwaysValid(t *testing.T) {
	l, err := New(16, 4, 0, nil)
	require.NoError(t, err)
	it := l.Begin()
	assert.True(t, it.IsValid())
	assert.True(t, it.IsLast())
}

func TestIteratorDereferenceEndSentinel(t *testing.T) {
	l, err := New(16, 4, 0, nil)
	require.NoError(t, err)
	it := l.Begin()
	it.Next()
	assert.False(t, it.IsValid())
	_, err = it.Node()
	require.Error(t, err)
}

func TestTryAppendGrowsChain(t *testing.T) {
	l, err := New(16, 2, 0, nil)
	require.NoError(t, err)

	it := l.Begin()
	assert.True(t, it.IsLast())

	successor, err := l.CreateNode(4)
	require.NoError(t, err)
	res, err := it.TryAppend(successor)
	require.NoError(t, err)
	assert.Equal(t, AppendSuccess, res)
	assert.False(t, it.IsLast())

	it.Next()
	require.True(t, it.IsValid())
	node, err := it.Node()
	require.NoError(t, err)
	assert.EqualValues(t, 4, node.Block().Capacity())
	assert.True(t, it.IsLast())
}

func TestTryAppendBeaten(t *testing.T) {
	l, err := New(16, 2, 0, nil)
	require.NoError(t, err)
	it := l.Begin()

	first, err := l.CreateNode(2)
	require.NoError(t, err)
	res, err := it.TryAppend(first)
	require.NoError(t, err)
	require.Equal(t, AppendSuccess, res)

	second, err := l.CreateNode(2)
	require.NoError(t, err)
	res, err = it.TryAppend(second)
	require.NoError(t, err)
	assert.Equal(t, AppendBeaten, res)
}

// Only one of many concurrent appenders racing on the same iterator
// position may win; every other racer must observe AppendBeaten.
func TestConcurrentTryAppendExactlyOneWinner(t *testing.T) {
	const racers = 32
	l, err := New(16, 2, 0, nil)
	require.NoError(t, err)
	it := l.Begin()

	var wins int
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(racers)
	for i := 0; i < racers; i++ {
		go func() {
			defer wg.Done()
			node, err := l.CreateNode(2)
			if err != nil {
				return
			}
			res, err := it.TryAppend(node)
			if err == nil && res == AppendSuccess {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}
