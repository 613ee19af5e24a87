package memres

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPoolMemory(t *testing.T) {
	tests := []struct {
		name       string
		blockSize  int
		blockCount int
		wantErr    bool
	}{
		{"link sized blocks", LinkSize, 8, false},
		{"16x10", 16, 10, false},
		{"single block", 64, 1, false},
		{"block smaller than link", LinkSize - 1, 8, true},
		{"zero blocks", 16, 0, true},
		{"negative blocks", 16, -3, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPoolMemory(tt.blockSize, tt.blockCount)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidConfiguration)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.blockSize, p.BlockSize())
			assert.Equal(t, tt.blockCount, p.Capacity())
			assert.Equal(t, tt.blockCount, p.FreeCount())
			assert.Zero(t, p.UsedCount())
			assert.True(t, p.Empty())
			assert.False(t, p.Full())
		})
	}
}

func TestPoolMemoryWithBuffer(t *testing.T) {
	backing := make([]byte, 100)
	buf, err := BorrowBuffer(backing)
	require.NoError(t, err)

	p, err := NewPoolMemoryWithBuffer(16, buf)
	require.NoError(t, err)
	assert.Equal(t, 6, p.Capacity(), "trailing bytes do not form a block")

	b, err := p.Get()
	require.NoError(t, err)
	b[0] = 0x7F
	assert.Equal(t, byte(0x7F), backing[0])

	require.NoError(t, p.Release())
	assert.Equal(t, byte(0x7F), backing[0])

	_, err = NewPoolMemoryWithBuffer(16, nil)
	require.ErrorIs(t, err, ErrInvalidConfiguration)

	small, err := BorrowBuffer(make([]byte, 8))
	require.NoError(t, err)
	_, err = NewPoolMemoryWithBuffer(16, small)
	require.ErrorIs(t, err, ErrInvalidConfiguration)
}

// TestPoolMemoryScenario walks the 16-byte, 10-block pool through
// exhaustion and refill.
func TestPoolMemoryScenario(t *testing.T) {
	p, err := NewPoolMemory(16, 10)
	require.NoError(t, err)
	defer p.Release()

	blocks := make([][]byte, 0, 10)
	seen := make(map[uintptr]bool)
	for i := 0; i < 10; i++ {
		b, err := p.Get()
		require.NoError(t, err)
		require.Len(t, b, 16)
		addr := addrOf(b)
		require.False(t, seen[addr], "block %d handed out twice", i)
		seen[addr] = true
		if i > 0 {
			assert.Equal(t, uintptr(16), addr-addrOf(blocks[i-1]))
		}
		blocks = append(blocks, b)
	}
	assert.True(t, p.Full())

	_, err = p.Get()
	require.ErrorIs(t, err, ErrOutOfMemory)

	// Free in a scrambled order.
	for _, i := range []int{3, 9, 0, 5, 1, 8, 2, 7, 4, 6} {
		require.NoError(t, p.Free(blocks[i]))
	}
	assert.Equal(t, 10, p.FreeCount())
	assert.True(t, p.Empty())

	for i := 0; i < 10; i++ {
		_, err := p.Get()
		require.NoError(t, err)
	}
	assert.True(t, p.Full())
}

func TestPoolMemoryExhaustion(t *testing.T) {
	for _, n := range []int{1, 2, 7, 64, 1000} {
		t.Run(fmt.Sprintf("blocks=%d", n), func(t *testing.T) {
			p, err := NewPoolMemory(8, n)
			require.NoError(t, err)
			for i := 0; i < n; i++ {
				_, err := p.Get()
				require.NoError(t, err)
			}
			_, err = p.Get()
			require.ErrorIs(t, err, ErrOutOfMemory)
			assert.Equal(t, n, p.UsedCount())
		})
	}
}

func TestPoolMemoryRoundTrip(t *testing.T) {
	p, err := NewPoolMemory(32, 8)
	require.NoError(t, err)

	// Disturb the free list first so the head is not block 0.
	_, err = p.Get()
	require.NoError(t, err)
	b, err := p.Get()
	require.NoError(t, err)
	require.NoError(t, p.Free(b))
	require.Equal(t, uint32(1), p.freeHead)

	head, free := p.freeHead, p.FreeCount()
	blk, err := p.Get()
	require.NoError(t, err)
	require.NoError(t, p.Free(blk))
	assert.Equal(t, head, p.freeHead)
	assert.Equal(t, free, p.FreeCount())
}

// TestPoolMemoryRandomized checks the accounting invariant and the address
// range after every operation of a random get/free sequence.
func TestPoolMemoryRandomized(t *testing.T) {
	const n, blockSize = 128, 24
	p, err := NewPoolMemory(blockSize, n)
	require.NoError(t, err)

	start := addrOf(p.Buffer().Bytes())
	end := start + uintptr(n*blockSize)
	rng := rand.New(rand.NewPCG(7, 11))

	var live [][]byte
	for op := 0; op < 20000; op++ {
		if len(live) == 0 || (rng.IntN(100) < 55 && !p.Full()) {
			b, err := p.Get()
			require.NoError(t, err)
			addr := addrOf(b)
			require.True(t, addr >= start && addr+blockSize <= end, "block %#x outside pool", addr)
			require.Zero(t, (addr-start)%blockSize)
			live = append(live, b)
		} else {
			i := rng.IntN(len(live))
			require.NoError(t, p.Free(live[i]))
			live[i] = live[len(live)-1]
			live = live[:len(live)-1]
		}
		require.Equal(t, n, p.FreeCount()+p.UsedCount(), "op %d", op)
		require.Equal(t, len(live), p.UsedCount())
	}
}

func TestPoolMemoryInvalidRelease(t *testing.T) {
	p, err := NewPoolMemory(16, 4)
	require.NoError(t, err)
	b, err := p.Get()
	require.NoError(t, err)

	other, err := NewPoolMemory(16, 4)
	require.NoError(t, err)
	foreign, err := other.Get()
	require.NoError(t, err)

	tests := []struct {
		name  string
		block []byte
	}{
		{"foreign block", foreign},
		{"misaligned block", p.Buffer().Bytes()[3:8]},
		{"heap slice", make([]byte, 16)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			free := p.FreeCount()
			require.ErrorIs(t, p.Free(tt.block), ErrInvalidRelease)
			assert.Equal(t, free, p.FreeCount(), "rejected free must not touch the free list")
		})
	}

	t.Run("double free", func(t *testing.T) {
		require.NoError(t, p.Free(b))
		require.ErrorIs(t, p.Free(b), ErrInvalidRelease)
		assert.Equal(t, 4, p.FreeCount())
	})

	t.Run("index out of range", func(t *testing.T) {
		require.ErrorIs(t, p.FreeIndex(-1), ErrInvalidRelease)
		require.ErrorIs(t, p.FreeIndex(4), ErrInvalidRelease)
	})

	t.Run("empty slice", func(t *testing.T) {
		assert.NoError(t, p.Free(nil))
	})
}

func TestPoolMemoryIndexes(t *testing.T) {
	p, err := NewPoolMemory(LinkSize, 3)
	require.NoError(t, err)

	for want := 0; want < 3; want++ {
		i, err := p.GetIndex()
		require.NoError(t, err)
		assert.Equal(t, want, i)

		got, err := p.IndexOf(p.Block(i))
		require.NoError(t, err)
		assert.Equal(t, i, got)
	}
	require.NoError(t, p.FreeIndex(1))
	i, err := p.GetIndex()
	require.NoError(t, err)
	assert.Equal(t, 1, i, "the most recently freed block is reused first")
}

func TestPoolMemoryReset(t *testing.T) {
	p, err := NewPoolMemory(16, 4)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		_, _ = p.Get()
	}
	p.Reset()
	assert.True(t, p.Empty())
	assert.Equal(t, 64, p.Size())
	assert.Zero(t, p.UsedBytes())
}

func TestPoolMemoryRelease(t *testing.T) {
	prov := &countingProvider{}
	p, err := NewPoolMemoryFrom(prov, 16, 4)
	require.NoError(t, err)
	b, err := p.Get()
	require.NoError(t, err)

	require.NoError(t, p.Release())
	assert.Equal(t, 1, prov.frees)
	assert.Zero(t, p.Capacity())
	assert.Zero(t, p.UsedCount())
	assert.Zero(t, p.FreeCount())
	assert.True(t, p.Empty(), "nothing is live after release")

	p.Reset()
	_, err = p.Get()
	require.ErrorIs(t, err, ErrOutOfMemory)
	_, err = p.Get()
	require.ErrorIs(t, err, ErrOutOfMemory)
	require.ErrorIs(t, p.Free(b), ErrInvalidRelease)
}
