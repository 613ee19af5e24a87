package container

import (
	"math"
	"unsafe"

	"github.com/pavanmanishd/memres"
)

// HeapAllocator serves every request straight from the Go heap. It is the
// baseline the chunked allocators are measured against.
type HeapAllocator[T any] struct{}

var _ memres.Allocator[int] = HeapAllocator[int]{}

func (HeapAllocator[T]) Allocate(n int) ([]T, error) {
	if n <= 0 {
		return nil, nil
	}
	return make([]T, n), nil
}

func (HeapAllocator[T]) Deallocate([]T) error { return nil }

func (HeapAllocator[T]) Construct(p *T, v T) { *p = v }

func (HeapAllocator[T]) Destroy(p *T) {
	if d, ok := any(p).(memres.Destroyer); ok {
		d.Destroy()
	}
	var zero T
	*p = zero
}

func (HeapAllocator[T]) MaxSize() int {
	var zero T
	return math.MaxInt / (int(unsafe.Sizeof(zero)) + int(unsafe.Sizeof(uintptr(0))))
}

func (HeapAllocator[T]) AlwaysEqual() bool { return true }
