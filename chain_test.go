package memres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T, blocks int) *PoolMemory {
	t.Helper()
	p, err := NewPoolMemory(16, blocks)
	require.NoError(t, err)
	return p
}

func TestChunkChainAppend(t *testing.T) {
	var c ChunkChain[*PoolMemory]
	_, ok := c.Last()
	assert.False(t, ok)

	require.NoError(t, c.Append(newTestPool(t, 2)))
	require.NoError(t, c.Append(newTestPool(t, 4)))
	require.NoError(t, c.Append(newTestPool(t, 4)), "equal sizes are allowed")
	require.ErrorIs(t, c.Append(newTestPool(t, 1)), ErrInvalidConfiguration)

	assert.Equal(t, 3, c.Len())
	assert.Equal(t, (2+4+4)*16, c.Capacity())
	last, ok := c.Last()
	require.True(t, ok)
	assert.Same(t, c.At(2), last)
}

func TestChunkChainOwner(t *testing.T) {
	var c ChunkChain[*PoolMemory]
	first, second := newTestPool(t, 2), newTestPool(t, 4)
	require.NoError(t, c.Append(first))
	require.NoError(t, c.Append(second))

	b, err := first.Get()
	require.NoError(t, err)
	i, owner, ok := c.Owner(addrOf(b))
	require.True(t, ok)
	assert.Equal(t, 0, i)
	assert.Same(t, first, owner)

	b, err = second.Get()
	require.NoError(t, err)
	i, owner, ok = c.Owner(addrOf(b))
	require.True(t, ok)
	assert.Equal(t, 1, i)
	assert.Same(t, second, owner)

	_, _, ok = c.Owner(addrOf(make([]byte, 16)))
	assert.False(t, ok)
}

func TestChunkChainStates(t *testing.T) {
	var c ChunkChain[*PoolMemory]
	first := newTestPool(t, 1)
	require.NoError(t, c.Append(first))
	assert.Equal(t, Active, c.State(0))

	b, err := first.Get()
	require.NoError(t, err)
	assert.Equal(t, Draining, c.State(0), "a full last chunk drains")

	second := newTestPool(t, 2)
	require.NoError(t, c.Append(second))
	assert.Equal(t, Draining, c.State(0))
	assert.Equal(t, Active, c.State(1))

	require.NoError(t, first.Free(b))
	assert.Equal(t, Retired, c.State(0))
	assert.Equal(t, []string{"retired", "active"}, []string{c.State(0).String(), c.State(1).String()})
	assert.Equal(t, "state(9)", ChunkState(9).String())
}

func TestChunkChainPrune(t *testing.T) {
	prov := &countingProvider{}
	var c ChunkChain[*PoolMemory]
	var pools []*PoolMemory
	for _, n := range []int{1, 2, 4, 8} {
		p, err := NewPoolMemoryFrom(prov, 16, n)
		require.NoError(t, err)
		require.NoError(t, c.Append(p))
		pools = append(pools, p)
	}
	// Keep chunk 1 alive; 0 and 2 are empty and not last.
	_, err := pools[1].Get()
	require.NoError(t, err)

	var retired []int
	n, err := c.Prune(func(p *PoolMemory) { retired = append(retired, p.Capacity()) })
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int{4, 1}, retired)
	assert.Equal(t, 2, prov.frees)

	require.Equal(t, 2, c.Len())
	assert.Same(t, pools[1], c.At(0))
	assert.Same(t, pools[3], c.At(1))
	assert.True(t, pools[0].Buffer().Released())

	// The last chunk is never pruned, even when empty.
	_, err = c.Prune(nil)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())
}

func TestChunkChainMetrics(t *testing.T) {
	var c ChunkChain[*PoolMemory]
	assert.Equal(t, ChainMetrics{}, c.Metrics())

	p := newTestPool(t, 4)
	require.NoError(t, c.Append(p))
	_, err := p.Get()
	require.NoError(t, err)

	m := c.Metrics()
	assert.Equal(t, 1, m.NumChunks)
	assert.Equal(t, 64, m.Capacity)
	assert.Equal(t, 16, m.SizeInUse)
	assert.InDelta(t, 0.25, m.Utilization, 1e-9)

	require.NoError(t, c.Release())
	assert.Zero(t, c.Len())
	assert.True(t, p.Buffer().Released())
}
