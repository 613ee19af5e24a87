package memres

import (
	"github.com/cockroachdb/errors"
	"github.com/eapache/queue"
)

// BidiMemory is a double-ended bump arena over one Buffer.
//
// Get advances head like MonoMemory; Free advances tail, reclaiming the
// oldest outstanding allocation first. Once nothing is outstanding both
// return to 0 and the whole arena is reusable. Frees must come in allocation
// order; any other order is rejected with ErrInvalidRelease.
// BidiMemory is not safe for concurrent use.
type BidiMemory struct {
	buf     *Buffer
	head    int
	tail    int
	pending *queue.Queue
}

// NewBidiMemory creates an arena of size bytes backed by an Owned buffer from
// DefaultProvider.
func NewBidiMemory(size int) (*BidiMemory, error) {
	return NewBidiMemoryFrom(DefaultProvider, size)
}

// NewBidiMemoryFrom is NewBidiMemory with an explicit Provider.
func NewBidiMemoryFrom(p Provider, size int) (*BidiMemory, error) {
	buf, err := NewBuffer(p, size)
	if err != nil {
		return nil, err
	}
	return &BidiMemory{buf: buf, pending: queue.New()}, nil
}

// NewBidiMemoryWithBuffer lays an arena over an existing buffer.
func NewBidiMemoryWithBuffer(buf *Buffer) (*BidiMemory, error) {
	if buf == nil || buf.Len() == 0 {
		return nil, errors.Wrap(ErrInvalidConfiguration, "arena buffer is empty")
	}
	return &BidiMemory{buf: buf, pending: queue.New()}, nil
}

// Get returns size bytes at head and advances it.
func (b *BidiMemory) Get(size int) ([]byte, error) {
	if size < 0 {
		return nil, errors.Wrapf(ErrInvalidConfiguration, "negative allocation size %d", size)
	}
	if size > b.buf.Len()-b.head {
		return nil, errors.Wrapf(ErrOutOfMemory, "arena has %d of %d bytes free, %d requested", b.FreeCount(), b.buf.Len(), size)
	}
	off := b.head
	b.head += size
	b.pending.Add(size)
	return b.buf.data[off : off+size : off+size], nil
}

// Free reclaims the oldest outstanding allocation, which must be exactly
// size bytes.
func (b *BidiMemory) Free(size int) error {
	if b.pending.Length() == 0 {
		return errors.Wrapf(ErrInvalidRelease, "free of %d bytes with nothing outstanding", size)
	}
	if oldest := b.pending.Peek().(int); oldest != size {
		return errors.Wrapf(ErrInvalidRelease, "free of %d bytes, oldest allocation is %d bytes at offset %d", size, oldest, b.tail)
	}
	b.pending.Remove()
	b.tail += size
	if b.pending.Length() == 0 {
		b.head, b.tail = 0, 0
	}
	return nil
}

// Reset drops every outstanding allocation.
func (b *BidiMemory) Reset() {
	b.head, b.tail = 0, 0
	if b.pending.Length() > 0 {
		b.pending = queue.New()
	}
}

// Capacity returns the arena size in bytes.
func (b *BidiMemory) Capacity() int { return b.buf.Len() }

func (b *BidiMemory) Head() int { return b.head }

func (b *BidiMemory) Tail() int { return b.tail }

// FreeCount returns the bytes still available past head.
func (b *BidiMemory) FreeCount() int { return b.buf.Len() - b.head }

// UsedCount returns the bytes between tail and head.
func (b *BidiMemory) UsedCount() int { return b.head - b.tail }

// Outstanding returns the number of live allocations.
func (b *BidiMemory) Outstanding() int { return b.pending.Length() }

func (b *BidiMemory) Empty() bool { return b.pending.Length() == 0 }

func (b *BidiMemory) Full() bool { return b.head == b.buf.Len() }

func (b *BidiMemory) Buffer() *Buffer { return b.buf }

// Release frees the buffer if it is Owned.
func (b *BidiMemory) Release() error {
	b.Reset()
	return b.buf.Release()
}
