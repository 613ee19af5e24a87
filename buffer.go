package memres

import (
	"fmt"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
)

// Ownership records who releases a Buffer's storage.
type Ownership uint8

const (
	// Owned storage came from a Provider and is handed back to it on Release.
	Owned Ownership = iota
	// Borrowed storage belongs to the caller; Release only detaches it.
	Borrowed
)

func (o Ownership) String() string {
	switch o {
	case Owned:
		return "owned"
	case Borrowed:
		return "borrowed"
	default:
		return fmt.Sprintf("ownership(%d)", uint8(o))
	}
}

// Buffer is a byte range tagged with its ownership.
// Every engine in this package works on exactly one Buffer.
type Buffer struct {
	data     []byte
	own      Ownership
	provider Provider
}

// NewBuffer allocates an Owned buffer of size bytes from p.
// A nil p uses DefaultProvider.
func NewBuffer(p Provider, size int) (*Buffer, error) {
	if size <= 0 {
		return nil, errors.Wrapf(ErrInvalidConfiguration, "buffer length %d must be positive", size)
	}
	if p == nil {
		p = DefaultProvider
	}
	data, err := p.Allocate(size)
	if err != nil {
		return nil, err
	}
	return &Buffer{data: data, own: Owned, provider: p}, nil
}

// BorrowBuffer wraps caller-managed storage. The buffer never frees it.
func BorrowBuffer(b []byte) (*Buffer, error) {
	if len(b) == 0 {
		return nil, errors.Wrap(ErrInvalidConfiguration, "borrowed buffer is empty")
	}
	return &Buffer{data: b, own: Borrowed}, nil
}

// Bytes returns the whole backing range. It is nil after Release.
func (b *Buffer) Bytes() []byte { return b.data }

// Len returns the buffer length in bytes, 0 after Release.
func (b *Buffer) Len() int { return len(b.data) }

func (b *Buffer) Ownership() Ownership { return b.own }

// Released reports whether Release has been called.
func (b *Buffer) Released() bool { return b.data == nil }

// Release hands Owned storage back to its provider. Borrowed storage is only
// detached. Calling Release twice is a no-op.
func (b *Buffer) Release() error {
	if b.data == nil {
		return nil
	}
	data := b.data
	b.data = nil
	if b.own == Owned && b.provider != nil {
		return b.provider.Free(data)
	}
	return nil
}

// base returns the address of the first byte, 0 after Release.
func (b *Buffer) base() uintptr {
	if len(b.data) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(unsafe.SliceData(b.data)))
}

// Contains reports whether addr lies inside the buffer.
func (b *Buffer) Contains(addr uintptr) bool {
	start := b.base()
	return start != 0 && addr >= start && addr < start+uintptr(len(b.data))
}

// offsetOf converts an address inside the buffer to a byte offset.
func (b *Buffer) offsetOf(addr uintptr) (int, bool) {
	if !b.Contains(addr) {
		return 0, false
	}
	return int(addr - b.base()), true
}

func (b *Buffer) String() string {
	return fmt.Sprintf("Buffer{%s, %s}", humanize.IBytes(uint64(len(b.data))), b.own)
}

// addrOf returns the address of the first byte of s, or 0 for an empty slice.
func addrOf(s []byte) uintptr {
	if cap(s) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(unsafe.SliceData(s)))
}
