package memres

import (
	"unsafe"

	"github.com/cockroachdb/errors"
)

// Typed views over engine memory. The bytes behind these values are not
// scanned by the garbage collector, so T must not hold pointers to Go heap
// memory that is not otherwise kept alive.

// sizeOf returns the size of T in bytes.
func sizeOf[T any]() int {
	var zero T
	return int(unsafe.Sizeof(zero))
}

// alignOf returns the alignment of T in bytes.
func alignOf[T any]() int {
	var zero T
	return int(unsafe.Alignof(zero))
}

// alignUp rounds n up to a multiple of align, which must be a power of two.
func alignUp(n, align int) int {
	mask := align - 1
	return (n + mask) &^ mask
}

// sliceOf reinterprets b as n values of T. b must hold at least n*sizeof(T) bytes.
func sliceOf[T any](b []byte, n int) []T {
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(b))), n)
}

// ptrOf reinterprets the start of b as a *T.
func ptrOf[T any](b []byte) *T {
	return (*T)(unsafe.Pointer(unsafe.SliceData(b)))
}

// addrOfSlice returns the address of the first element of s.
func addrOfSlice[T any](s []T) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(s)))
}

// PoolGet takes one block from p and returns it as a zeroed *T.
// The pool's block size must fit a T.
func PoolGet[T any](p *PoolMemory) (*T, error) {
	if size := sizeOf[T](); size > p.BlockSize() {
		return nil, errors.Wrapf(ErrInvalidConfiguration, "%d-byte value does not fit a %d-byte block", size, p.BlockSize())
	}
	b, err := p.Get()
	if err != nil {
		return nil, err
	}
	clear(b)
	return ptrOf[T](b), nil
}

// PoolPut returns a value obtained from PoolGet.
func PoolPut[T any](p *PoolMemory, v *T) error {
	if v == nil {
		return nil
	}
	i, err := p.indexAt(uintptr(unsafe.Pointer(v)))
	if err != nil {
		return err
	}
	return p.FreeIndex(i)
}

// MonoAllocSlice bump-allocates n values of T from m. The slice is not
// zeroed. The start is padded up to T's alignment and the padding is
// released together with the slice.
func MonoAllocSlice[T any](m *MonoMemory, n int) ([]T, error) {
	if n <= 0 {
		return nil, nil
	}
	if n > maxSize[T]() {
		return nil, errors.Wrapf(ErrOutOfMemory, "%d elements exceed the maximum of %d", n, maxSize[T]())
	}
	align := alignOf[T]()
	pad := alignPad(m.buf.base()+uintptr(m.index), align)
	b, err := m.Get(pad + alignUp(n*sizeOf[T](), align))
	if err != nil {
		return nil, err
	}
	return sliceOf[T](b[pad:], n), nil
}

// alignPad returns how many bytes past addr the next multiple of align is.
func alignPad(addr uintptr, align int) int {
	a := uintptr(align)
	return int((a - addr%a) % a)
}

// MonoAllocSliceZeroed is MonoAllocSlice with zeroed memory.
func MonoAllocSliceZeroed[T any](m *MonoMemory, n int) ([]T, error) {
	s, err := MonoAllocSlice[T](m, n)
	if err != nil || s == nil {
		return s, err
	}
	clear(s)
	return s, nil
}

// MonoFreeSlice undoes the MonoAllocSlice that returned s, which must be the
// most recent allocation still outstanding on m.
func MonoFreeSlice[T any](m *MonoMemory, s []T) error {
	if cap(s) == 0 {
		return nil
	}
	off, ok := m.buf.offsetOf(addrOfSlice(s))
	top, size, live := m.Top()
	end := off + alignUp(cap(s)*sizeOf[T](), alignOf[T]())
	if !ok || !live || off < top || end != top+size {
		return errors.Wrapf(ErrInvalidRelease, "slice at offset %d is not the most recent allocation", off)
	}
	return m.Free(size)
}
