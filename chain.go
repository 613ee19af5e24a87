package memres

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Chunk is one engine instance inside a ChunkChain.
type Chunk interface {
	Buffer() *Buffer
	Contains(addr uintptr) bool
	// Empty reports that the chunk holds no live allocations.
	Empty() bool
	// Full reports that the chunk cannot serve another allocation.
	Full() bool
	UsedBytes() int
	Release() error
}

// ChunkState is the lifecycle stage of a chunk inside its chain.
type ChunkState uint8

const (
	// Active chunks can still serve allocations.
	Active ChunkState = iota
	// Draining chunks serve no new allocations but hold live ones.
	Draining
	// Retired chunks hold nothing and may be released.
	Retired
)

func (s ChunkState) String() string {
	switch s {
	case Active:
		return "active"
	case Draining:
		return "draining"
	case Retired:
		return "retired"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// ChunkChain is an ordered, append-only sequence of chunks. New chunks are
// only ever allocated from the last one; older chunks drain until empty and
// are then removed.
//
// ChunkChain is not safe for concurrent use.
type ChunkChain[C Chunk] struct {
	chunks []C
}

// Len returns the number of chunks in the chain.
func (c *ChunkChain[C]) Len() int { return len(c.chunks) }

// At returns chunk i, oldest first.
func (c *ChunkChain[C]) At(i int) C { return c.chunks[i] }

// Last returns the newest chunk.
func (c *ChunkChain[C]) Last() (C, bool) {
	var zero C
	if len(c.chunks) == 0 {
		return zero, false
	}
	return c.chunks[len(c.chunks)-1], true
}

// Append adds ch as the newest chunk. Its capacity must not be smaller than
// the current last chunk's.
func (c *ChunkChain[C]) Append(ch C) error {
	if last, ok := c.Last(); ok && ch.Buffer().Len() < last.Buffer().Len() {
		return errors.Wrapf(ErrInvalidConfiguration, "chunk of %d bytes cannot follow one of %d bytes", ch.Buffer().Len(), last.Buffer().Len())
	}
	c.chunks = append(c.chunks, ch)
	return nil
}

// Owner finds the chunk whose buffer contains addr. The newest chunk is
// checked first since most frees target it.
func (c *ChunkChain[C]) Owner(addr uintptr) (int, C, bool) {
	for i := len(c.chunks) - 1; i >= 0; i-- {
		if c.chunks[i].Contains(addr) {
			return i, c.chunks[i], true
		}
	}
	var zero C
	return -1, zero, false
}

// State reports the lifecycle stage of chunk i.
func (c *ChunkChain[C]) State(i int) ChunkState {
	ch := c.chunks[i]
	last := i == len(c.chunks)-1
	switch {
	case !last && ch.Empty():
		return Retired
	case last && !ch.Full():
		return Active
	default:
		return Draining
	}
}

// Remove drops chunk i from the chain and releases it.
func (c *ChunkChain[C]) Remove(i int) error {
	ch := c.chunks[i]
	copy(c.chunks[i:], c.chunks[i+1:])
	var zero C
	c.chunks[len(c.chunks)-1] = zero
	c.chunks = c.chunks[:len(c.chunks)-1]
	return ch.Release()
}

// Prune removes every retired chunk and returns how many were released.
// onRetire, if not nil, sees each chunk before it is released.
func (c *ChunkChain[C]) Prune(onRetire func(C)) (int, error) {
	var (
		n    int
		errs error
	)
	for i := len(c.chunks) - 2; i >= 0; i-- {
		if c.State(i) != Retired {
			continue
		}
		if onRetire != nil {
			onRetire(c.chunks[i])
		}
		if err := c.Remove(i); err != nil {
			errs = errors.CombineErrors(errs, err)
		}
		n++
	}
	return n, errs
}

// Release drops and releases every chunk.
func (c *ChunkChain[C]) Release() error {
	var errs error
	for _, ch := range c.chunks {
		errs = errors.CombineErrors(errs, ch.Release())
	}
	c.chunks = nil
	return errs
}

// Capacity returns the total bytes of all chunks.
func (c *ChunkChain[C]) Capacity() int {
	sum := 0
	for _, ch := range c.chunks {
		sum += ch.Buffer().Len()
	}
	return sum
}

// SizeInUse returns the bytes held by live allocations across all chunks.
func (c *ChunkChain[C]) SizeInUse() int {
	sum := 0
	for _, ch := range c.chunks {
		sum += ch.UsedBytes()
	}
	return sum
}

// Metrics returns a snapshot of chain statistics.
func (c *ChunkChain[C]) Metrics() ChainMetrics {
	m := ChainMetrics{
		NumChunks: len(c.chunks),
		Capacity:  c.Capacity(),
		SizeInUse: c.SizeInUse(),
	}
	if m.Capacity > 0 {
		m.Utilization = float64(m.SizeInUse) / float64(m.Capacity)
	}
	return m
}
