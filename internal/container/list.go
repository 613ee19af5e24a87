package container

import (
	"iter"
	"unsafe"

	"github.com/cockroachdb/errors"

	"github.com/pavanmanishd/memres"
)

// Node is one element of a List. Nodes are allocated one at a time.
type Node[T any] struct {
	prev, next *Node[T]
	Value      T
}

// List is a doubly linked list whose nodes come from an Allocator.
// List is not safe for concurrent use.
type List[T any] struct {
	alloc      memres.Allocator[Node[T]]
	head, tail *Node[T]
	n          int
}

func NewList[T any](a memres.Allocator[Node[T]]) *List[T] {
	return &List[T]{alloc: a}
}

func (l *List[T]) Len() int { return l.n }

// Front returns the first node, or nil.
func (l *List[T]) Front() *Node[T] { return l.head }

// Back returns the last node, or nil.
func (l *List[T]) Back() *Node[T] { return l.tail }

// Next returns the node after n, or nil.
func (n *Node[T]) Next() *Node[T] { return n.next }

// Prev returns the node before n, or nil.
func (n *Node[T]) Prev() *Node[T] { return n.prev }

func (l *List[T]) newNode(v T) (*Node[T], error) {
	s, err := l.alloc.Allocate(1)
	if err != nil {
		return nil, errors.Wrap(err, "container: allocate list node")
	}
	p := &s[0]
	l.alloc.Construct(p, Node[T]{Value: v})
	return p, nil
}

func (l *List[T]) freeNode(p *Node[T]) error {
	l.alloc.Destroy(p)
	return l.alloc.Deallocate(unsafe.Slice(p, 1))
}

// PushBack appends v.
func (l *List[T]) PushBack(v T) error {
	p, err := l.newNode(v)
	if err != nil {
		return err
	}
	p.prev = l.tail
	if l.tail != nil {
		l.tail.next = p
	} else {
		l.head = p
	}
	l.tail = p
	l.n++
	return nil
}

// PushFront prepends v.
func (l *List[T]) PushFront(v T) error {
	p, err := l.newNode(v)
	if err != nil {
		return err
	}
	p.next = l.head
	if l.head != nil {
		l.head.prev = p
	} else {
		l.tail = p
	}
	l.head = p
	l.n++
	return nil
}

// PopBack removes the last element and returns its value.
func (l *List[T]) PopBack() (T, error) {
	if l.tail == nil {
		var zero T
		return zero, ErrEmpty
	}
	return l.remove(l.tail)
}

// PopFront removes the first element and returns its value.
func (l *List[T]) PopFront() (T, error) {
	if l.head == nil {
		var zero T
		return zero, ErrEmpty
	}
	return l.remove(l.head)
}

// Remove unlinks n, which must belong to l, and frees it.
func (l *List[T]) Remove(n *Node[T]) (T, error) {
	return l.remove(n)
}

func (l *List[T]) remove(p *Node[T]) (T, error) {
	if p.prev != nil {
		p.prev.next = p.next
	} else {
		l.head = p.next
	}
	if p.next != nil {
		p.next.prev = p.prev
	} else {
		l.tail = p.prev
	}
	l.n--
	v := p.Value
	return v, l.freeNode(p)
}

// All yields every value from front to back.
func (l *List[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		for p := l.head; p != nil; p = p.next {
			if !yield(p.Value) {
				return
			}
		}
	}
}

// Release frees every node.
func (l *List[T]) Release() error {
	var errs error
	for p := l.head; p != nil; {
		next := p.next
		errs = errors.CombineErrors(errs, l.freeNode(p))
		p = next
	}
	l.head, l.tail, l.n = nil, nil, 0
	return errs
}
