// Package container holds the minimal growable array and linked list used to
// drive and compare memres allocators.
package container

import (
	"github.com/cockroachdb/errors"

	"github.com/pavanmanishd/memres"
)

// ErrEmpty is returned when popping from an empty container.
var ErrEmpty = errors.New("container: empty")

// Vector is a growable array whose storage comes from an Allocator.
// Capacity doubles on growth. Vector is not safe for concurrent use.
type Vector[T any] struct {
	alloc memres.Allocator[T]
	// data has len == size and cap == the element count Allocate returned.
	data []T
}

func NewVector[T any](a memres.Allocator[T]) *Vector[T] {
	return &Vector[T]{alloc: a}
}

func (v *Vector[T]) Len() int { return len(v.data) }

func (v *Vector[T]) Cap() int { return cap(v.data) }

// At returns element i. It panics if i is out of range.
func (v *Vector[T]) At(i int) T { return v.data[i] }

// Set replaces element i. It panics if i is out of range.
func (v *Vector[T]) Set(i int, x T) { v.data[i] = x }

// Push appends x, growing the storage when full.
func (v *Vector[T]) Push(x T) error {
	if len(v.data) == cap(v.data) {
		n := max(2*cap(v.data), 1)
		if err := v.Reserve(n); err != nil {
			return err
		}
	}
	v.data = v.data[:len(v.data)+1]
	v.alloc.Construct(&v.data[len(v.data)-1], x)
	return nil
}

// Pop removes and returns the last element.
func (v *Vector[T]) Pop() (T, error) {
	var zero T
	if len(v.data) == 0 {
		return zero, ErrEmpty
	}
	last := &v.data[len(v.data)-1]
	x := *last
	v.alloc.Destroy(last)
	v.data = v.data[:len(v.data)-1]
	return x, nil
}

// Reserve makes room for at least n elements. Existing elements are moved
// into the new storage and the old storage is handed back.
func (v *Vector[T]) Reserve(n int) error {
	if n <= cap(v.data) {
		return nil
	}
	if n > v.alloc.MaxSize() {
		return errors.Newf("container: vector of %d elements exceeds max size %d", n, v.alloc.MaxSize())
	}
	next, err := v.alloc.Allocate(n)
	if err != nil {
		return errors.Wrapf(err, "container: grow vector to %d", n)
	}
	next = next[:len(v.data)]
	for i := range v.data {
		v.alloc.Construct(&next[i], v.data[i])
		v.alloc.Destroy(&v.data[i])
	}
	old := v.data
	v.data = next
	if cap(old) > 0 {
		return v.alloc.Deallocate(old[:cap(old)])
	}
	return nil
}

// Release destroys every element and hands the storage back.
func (v *Vector[T]) Release() error {
	for i := range v.data {
		v.alloc.Destroy(&v.data[i])
	}
	old := v.data
	v.data = nil
	if cap(old) == 0 {
		return nil
	}
	return v.alloc.Deallocate(old[:cap(old)])
}
