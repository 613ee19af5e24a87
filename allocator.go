package memres

import (
	"math"
	"unsafe"
)

// Allocator is the contract a container needs from its storage.
//
// Allocate returns n uninitialized elements; Deallocate takes back a slice
// returned by Allocate (its capacity is the element count). Construct and
// Destroy initialize and tear down one element in place.
//
// AlwaysEqual reports that any two allocators of the same element type are
// interchangeable: a container may move or copy its contents between them
// without reallocating.
type Allocator[T any] interface {
	Allocate(n int) ([]T, error)
	Deallocate(p []T) error
	Construct(p *T, v T)
	Destroy(p *T)
	MaxSize() int
	AlwaysEqual() bool
}

// Destroyer is implemented by element types that hold resources needing
// teardown before their memory is reused.
type Destroyer interface {
	Destroy()
}

func construct[T any](p *T, v T) {
	*p = v
}

func destroy[T any](p *T) {
	if d, ok := any(p).(Destroyer); ok {
		d.Destroy()
	}
	var zero T
	*p = zero
}

// maxSize is the largest element count an allocator will accept for T.
func maxSize[T any]() int {
	return math.MaxInt / (sizeOf[T]() + int(unsafe.Sizeof(uintptr(0))))
}
