package memres

import (
	"encoding/binary"
	"math"

	"github.com/bits-and-blooms/bitset"
	"github.com/cockroachdb/errors"
)

// LinkSize is the number of bytes a free block spends on its free-list link.
// Blocks must be at least this large.
const LinkSize = 4

// nilBlock terminates the free list.
const nilBlock = math.MaxUint32

// PoolMemory serves equally sized blocks out of one Buffer in O(1).
//
// Free blocks form an intrusive singly linked list: the first LinkSize bytes
// of each free block hold the index of the next free block. No coalescing is
// done. PoolMemory is not safe for concurrent use.
type PoolMemory struct {
	buf         *Buffer
	blockSize   int
	totalBlocks int
	freeHead    uint32
	freeCount   int

	// live tracks handed-out blocks so double frees are rejected in O(1).
	live *bitset.BitSet
}

// NewPoolMemory creates a pool of blockCount blocks of blockSize bytes backed
// by an Owned buffer from DefaultProvider.
func NewPoolMemory(blockSize, blockCount int) (*PoolMemory, error) {
	return NewPoolMemoryFrom(DefaultProvider, blockSize, blockCount)
}

// NewPoolMemoryFrom is NewPoolMemory with an explicit Provider.
func NewPoolMemoryFrom(p Provider, blockSize, blockCount int) (*PoolMemory, error) {
	if err := checkPoolShape(blockSize, blockCount); err != nil {
		return nil, err
	}
	if blockCount > math.MaxInt/blockSize {
		return nil, errors.Wrapf(ErrInvalidConfiguration, "pool of %d blocks of %d bytes overflows", blockCount, blockSize)
	}
	buf, err := NewBuffer(p, blockSize*blockCount)
	if err != nil {
		return nil, err
	}
	return newPoolMemory(buf, blockSize), nil
}

// NewPoolMemoryWithBuffer lays a pool over an existing buffer. The block count
// is buf.Len() / blockSize; trailing bytes are left unused.
func NewPoolMemoryWithBuffer(blockSize int, buf *Buffer) (*PoolMemory, error) {
	if buf == nil || buf.Len() == 0 {
		return nil, errors.Wrap(ErrInvalidConfiguration, "pool buffer is empty")
	}
	if blockSize <= 0 {
		return nil, errors.Wrapf(ErrInvalidConfiguration, "block size %d must be positive", blockSize)
	}
	if err := checkPoolShape(blockSize, buf.Len()/blockSize); err != nil {
		return nil, err
	}
	return newPoolMemory(buf, blockSize), nil
}

func checkPoolShape(blockSize, blockCount int) error {
	if blockSize < LinkSize {
		return errors.Wrapf(ErrInvalidConfiguration, "block size %d cannot hold a %d-byte free-list link", blockSize, LinkSize)
	}
	if blockCount <= 0 {
		return errors.Wrapf(ErrInvalidConfiguration, "block count %d must be positive", blockCount)
	}
	if uint64(blockCount) >= nilBlock {
		return errors.Wrapf(ErrInvalidConfiguration, "block count %d exceeds the link index space", blockCount)
	}
	return nil
}

func newPoolMemory(buf *Buffer, blockSize int) *PoolMemory {
	p := &PoolMemory{
		buf:         buf,
		blockSize:   blockSize,
		totalBlocks: buf.Len() / blockSize,
	}
	p.live = bitset.New(uint(p.totalBlocks))
	p.Reset()
	return p
}

// Reset relinks every block into the free list, forgetting all allocations.
func (p *PoolMemory) Reset() {
	for i := 0; i < p.totalBlocks; i++ {
		next := uint32(i + 1)
		if i == p.totalBlocks-1 {
			next = nilBlock
		}
		p.setLink(i, next)
	}
	p.freeHead = 0
	if p.totalBlocks == 0 {
		p.freeHead = nilBlock
	}
	p.freeCount = p.totalBlocks
	p.live.ClearAll()
}

func (p *PoolMemory) link(i int) uint32 {
	off := i * p.blockSize
	return binary.NativeEndian.Uint32(p.buf.data[off : off+LinkSize])
}

func (p *PoolMemory) setLink(i int, next uint32) {
	off := i * p.blockSize
	binary.NativeEndian.PutUint32(p.buf.data[off:off+LinkSize], next)
}

// GetIndex pops the free-list head and returns its block index.
func (p *PoolMemory) GetIndex() (int, error) {
	if p.freeHead == nilBlock || p.buf.Released() {
		return 0, errors.Wrapf(ErrOutOfMemory, "pool of %d blocks exhausted", p.totalBlocks)
	}
	i := int(p.freeHead)
	p.freeHead = p.link(i)
	p.freeCount--
	p.live.Set(uint(i))
	return i, nil
}

// Get pops a block off the free list. The returned slice is blockSize long
// and its capacity is clipped to the block.
func (p *PoolMemory) Get() ([]byte, error) {
	i, err := p.GetIndex()
	if err != nil {
		return nil, err
	}
	return p.Block(i), nil
}

// FreeIndex pushes block i back onto the free list.
func (p *PoolMemory) FreeIndex(i int) error {
	if i < 0 || i >= p.totalBlocks || p.buf.Released() {
		return errors.Wrapf(ErrInvalidRelease, "block %d outside pool of %d blocks", i, p.totalBlocks)
	}
	if !p.live.Test(uint(i)) {
		return errors.Wrapf(ErrInvalidRelease, "block %d is already free", i)
	}
	p.live.Clear(uint(i))
	p.setLink(i, p.freeHead)
	p.freeHead = uint32(i)
	p.freeCount++
	return nil
}

// Free returns a block obtained from Get. Freeing an empty slice is a no-op.
// Addresses outside the pool, off a block boundary, or already free are
// rejected with ErrInvalidRelease and leave the free list untouched.
func (p *PoolMemory) Free(block []byte) error {
	if len(block) == 0 {
		return nil
	}
	i, err := p.IndexOf(block)
	if err != nil {
		return err
	}
	return p.FreeIndex(i)
}

// IndexOf maps a block slice back to its index.
func (p *PoolMemory) IndexOf(block []byte) (int, error) {
	return p.indexAt(addrOf(block))
}

func (p *PoolMemory) indexAt(addr uintptr) (int, error) {
	off, ok := p.buf.offsetOf(addr)
	if !ok || off >= p.totalBlocks*p.blockSize {
		return 0, errors.Wrapf(ErrInvalidRelease, "address %#x does not belong to this pool", addr)
	}
	if off%p.blockSize != 0 {
		return 0, errors.Wrapf(ErrInvalidRelease, "offset %d is not on a %d-byte block boundary", off, p.blockSize)
	}
	return off / p.blockSize, nil
}

// Block returns the bytes of block i.
func (p *PoolMemory) Block(i int) []byte {
	off := i * p.blockSize
	return p.buf.data[off : off+p.blockSize : off+p.blockSize]
}

// BlockSize returns the size of each block in bytes.
func (p *PoolMemory) BlockSize() int { return p.blockSize }

// Capacity returns the total number of blocks.
func (p *PoolMemory) Capacity() int { return p.totalBlocks }

// FreeCount returns the number of blocks on the free list.
func (p *PoolMemory) FreeCount() int { return p.freeCount }

// UsedCount returns the number of blocks handed out.
func (p *PoolMemory) UsedCount() int { return p.totalBlocks - p.freeCount }

// Empty reports whether no block is in use.
func (p *PoolMemory) Empty() bool { return p.freeCount == p.totalBlocks }

// Full reports whether every block is in use.
func (p *PoolMemory) Full() bool { return p.freeCount == 0 }

// Size returns the pool size in bytes.
func (p *PoolMemory) Size() int { return p.totalBlocks * p.blockSize }

// UsedBytes returns the bytes held by live blocks.
func (p *PoolMemory) UsedBytes() int { return p.UsedCount() * p.blockSize }

func (p *PoolMemory) Buffer() *Buffer { return p.buf }

// Contains reports whether addr points into this pool's buffer.
func (p *PoolMemory) Contains(addr uintptr) bool { return p.buf.Contains(addr) }

// Release frees the buffer if it is Owned. The pool is unusable afterwards
// and reports zero capacity.
func (p *PoolMemory) Release() error {
	p.totalBlocks = 0
	p.freeHead = nilBlock
	p.freeCount = 0
	p.live.ClearAll()
	return p.buf.Release()
}
