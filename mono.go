package memres

import (
	"slices"

	"github.com/cockroachdb/errors"
)

// span is one outstanding arena allocation.
type span struct {
	off, size int
}

// MonoMemory is a monotonic bump arena over one Buffer.
//
// Get advances an index; Free undoes the most recent Get of the same size.
// Frees must come in exact reverse order of allocation. The arena keeps the
// stack of outstanding allocations and rejects any other order with
// ErrInvalidRelease. MonoMemory is not safe for concurrent use.
type MonoMemory struct {
	buf         *Buffer
	index       int
	outstanding []span
}

// NewMonoMemory creates an arena of size bytes backed by an Owned buffer from
// DefaultProvider.
func NewMonoMemory(size int) (*MonoMemory, error) {
	return NewMonoMemoryFrom(DefaultProvider, size)
}

// NewMonoMemoryFrom is NewMonoMemory with an explicit Provider.
func NewMonoMemoryFrom(p Provider, size int) (*MonoMemory, error) {
	buf, err := NewBuffer(p, size)
	if err != nil {
		return nil, err
	}
	return &MonoMemory{buf: buf}, nil
}

// NewMonoMemoryWithBuffer lays an arena over an existing buffer.
func NewMonoMemoryWithBuffer(buf *Buffer) (*MonoMemory, error) {
	if buf == nil || buf.Len() == 0 {
		return nil, errors.Wrap(ErrInvalidConfiguration, "arena buffer is empty")
	}
	return &MonoMemory{buf: buf}, nil
}

// Get returns size bytes at the current index and advances it.
func (m *MonoMemory) Get(size int) ([]byte, error) {
	if size < 0 {
		return nil, errors.Wrapf(ErrInvalidConfiguration, "negative allocation size %d", size)
	}
	if size > m.buf.Len()-m.index {
		return nil, errors.Wrapf(ErrOutOfMemory, "arena has %d of %d bytes free, %d requested", m.FreeCount(), m.buf.Len(), size)
	}
	off := m.index
	m.index += size
	m.outstanding = append(m.outstanding, span{off: off, size: size})
	return m.buf.data[off : off+size : off+size], nil
}

// Free undoes the most recent allocation, which must be exactly size bytes.
func (m *MonoMemory) Free(size int) error {
	n := len(m.outstanding)
	if n == 0 {
		return errors.Wrapf(ErrInvalidRelease, "free of %d bytes with nothing outstanding", size)
	}
	if top := m.outstanding[n-1]; top.size != size {
		return errors.Wrapf(ErrInvalidRelease, "free of %d bytes, most recent allocation is %d bytes at offset %d", size, top.size, top.off)
	}
	m.outstanding = m.outstanding[:n-1]
	m.index -= size
	return nil
}

// Top returns the most recent outstanding allocation.
func (m *MonoMemory) Top() (off, size int, ok bool) {
	n := len(m.outstanding)
	if n == 0 {
		return 0, 0, false
	}
	top := m.outstanding[n-1]
	return top.off, top.size, true
}

// Lookup returns the size of the outstanding allocation starting at off.
func (m *MonoMemory) Lookup(off int) (int, bool) {
	i, ok := slices.BinarySearchFunc(m.outstanding, off, func(s span, off int) int { return s.off - off })
	if !ok {
		return 0, false
	}
	return m.outstanding[i].size, true
}

// Offset returns the byte offset of b inside the arena.
func (m *MonoMemory) Offset(b []byte) (int, bool) {
	return m.buf.offsetOf(addrOf(b))
}

// Reset rewinds the arena to empty in O(1).
func (m *MonoMemory) Reset() {
	m.index = 0
	m.outstanding = m.outstanding[:0]
}

// Capacity returns the arena size in bytes.
func (m *MonoMemory) Capacity() int { return m.buf.Len() }

// Index returns the bump offset.
func (m *MonoMemory) Index() int { return m.index }

// FreeCount returns the bytes still available.
func (m *MonoMemory) FreeCount() int { return m.buf.Len() - m.index }

// UsedCount returns the bytes handed out.
func (m *MonoMemory) UsedCount() int { return m.index }

// UsedBytes is UsedCount; it lets MonoMemory report like other chunks.
func (m *MonoMemory) UsedBytes() int { return m.index }

// Outstanding returns the number of live allocations.
func (m *MonoMemory) Outstanding() int { return len(m.outstanding) }

func (m *MonoMemory) Empty() bool { return m.index == 0 }

func (m *MonoMemory) Full() bool { return m.index == m.buf.Len() }

func (m *MonoMemory) Buffer() *Buffer { return m.buf }

func (m *MonoMemory) Contains(addr uintptr) bool { return m.buf.Contains(addr) }

// Release frees the buffer if it is Owned.
func (m *MonoMemory) Release() error {
	m.Reset()
	return m.buf.Release()
}
