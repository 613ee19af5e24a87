package memres

import (
	"math"

	"github.com/cockroachdb/errors"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
)

// vectorChunk is a MonoMemory chunk plus the bookkeeping needed to accept
// frees in any order while the arena itself only unwinds from the top.
type vectorChunk struct {
	mem  *MonoMemory
	live int
	// buried holds offsets freed while another allocation sat above them.
	buried map[int]struct{}
}

func (c *vectorChunk) Buffer() *Buffer            { return c.mem.Buffer() }
func (c *vectorChunk) Contains(addr uintptr) bool { return c.mem.Contains(addr) }
func (c *vectorChunk) Empty() bool                { return c.live == 0 }
func (c *vectorChunk) Full() bool                 { return c.mem.Full() }
func (c *vectorChunk) UsedBytes() int             { return c.mem.UsedBytes() }
func (c *vectorChunk) Release() error             { return c.mem.Release() }

// free releases the allocation of size bytes at off. The top allocation is
// popped along with any buried ones directly beneath it; anything else is
// buried until it surfaces. Once nothing is live the arena is rewound.
func (c *vectorChunk) free(off, size int) error {
	top, topSize, ok := c.mem.Top()
	if !ok || off > top {
		return errors.Wrapf(ErrInvalidRelease, "offset %d is not a live allocation", off)
	}
	if off != top {
		if _, dup := c.buried[off]; dup {
			return errors.Wrapf(ErrInvalidRelease, "offset %d is already free", off)
		}
		if got, ok := c.mem.Lookup(off); !ok || got != size {
			return errors.Wrapf(ErrInvalidRelease, "free of %d bytes at offset %d does not match a live allocation", size, off)
		}
		if c.buried == nil {
			c.buried = make(map[int]struct{})
		}
		c.buried[off] = struct{}{}
		c.live--
	} else {
		if topSize != size {
			return errors.Wrapf(ErrInvalidRelease, "free of %d bytes at offset %d, allocation is %d bytes", size, off, topSize)
		}
		if err := c.mem.Free(size); err != nil {
			return err
		}
		c.live--
		for {
			top, topSize, ok = c.mem.Top()
			if !ok {
				break
			}
			if _, b := c.buried[top]; !b {
				break
			}
			delete(c.buried, top)
			if err := c.mem.Free(topSize); err != nil {
				return err
			}
		}
	}
	if c.live == 0 {
		c.mem.Reset()
		clear(c.buried)
	}
	return nil
}

// VectorAllocator serves contiguous element runs for growable arrays.
//
// It bump-allocates from a chain of MonoMemory chunks. When the newest chunk
// cannot fit a request, a new chunk of ChunkFactor times the request (and at
// least the previous chunk's size) is appended; older chunks stay alive until
// their last allocation is freed, then they are released.
//
// VectorAllocator is not safe for concurrent use.
type VectorAllocator[T any] struct {
	cfg      Config
	provider Provider
	logger   log.Logger
	metrics  *adapterMetrics

	chain    ChunkChain[*vectorChunk]
	released bool
}

var _ Allocator[int] = (*VectorAllocator[int])(nil)

// NewVectorAllocator validates cfg and returns an allocator with no chunks.
// A nil logger discards output; a nil registerer leaves metrics unregistered.
func NewVectorAllocator[T any](cfg Config, logger log.Logger, reg prometheus.Registerer) (*VectorAllocator[T], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p, err := ProviderByName(cfg.Provider)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return newVectorAllocator[T](cfg, p, logger, newAdapterMetrics(reg, "vector")), nil
}

func newVectorAllocator[T any](cfg Config, p Provider, logger log.Logger, m *adapterMetrics) *VectorAllocator[T] {
	return &VectorAllocator[T]{
		cfg:      cfg,
		provider: p,
		logger:   logger,
		metrics:  m,
	}
}

// RebindVector returns an allocator for U with a's policy, logger and metrics.
// The new allocator starts with no chunks.
func RebindVector[U, T any](a *VectorAllocator[T]) *VectorAllocator[U] {
	return newVectorAllocator[U](a.cfg, a.provider, a.logger, a.metrics)
}

// Allocate returns n uninitialized elements. n <= 0 returns nil.
func (a *VectorAllocator[T]) Allocate(n int) ([]T, error) {
	a.panicIfReleased()
	if n <= 0 {
		return nil, nil
	}
	if n > a.MaxSize() {
		return nil, errors.Wrapf(ErrOutOfMemory, "%d elements exceed the maximum of %d", n, a.MaxSize())
	}
	elem := sizeOf[T]()
	if elem == 0 {
		return make([]T, n), nil
	}
	size := alignUp(n*elem, alignOf[T]())

	// Fast path: room in the newest chunk
	if last, ok := a.chain.Last(); ok && last.mem.FreeCount() >= size {
		return a.allocateFrom(last, n)
	}

	c, err := a.grow(size)
	if err != nil {
		return nil, err
	}
	return a.allocateFrom(c, n)
}

func (a *VectorAllocator[T]) allocateFrom(c *vectorChunk, n int) ([]T, error) {
	s, err := MonoAllocSlice[T](c.mem, n)
	if err != nil {
		return nil, err
	}
	c.live++
	a.metrics.allocations.Inc()
	return s, nil
}

// grow appends a chunk large enough for size bytes.
func (a *VectorAllocator[T]) grow(size int) (*vectorChunk, error) {
	capacity := size
	if size <= math.MaxInt/a.cfg.ChunkFactor {
		capacity = size * a.cfg.ChunkFactor
	}
	if last, ok := a.chain.Last(); ok && last.mem.Capacity() > capacity {
		capacity = last.mem.Capacity()
	}

	mem, err := NewMonoMemoryFrom(a.provider, capacity)
	if err != nil {
		return nil, errors.Wrapf(err, "vector: new chunk of %d bytes", capacity)
	}
	c := &vectorChunk{mem: mem}
	if err := a.chain.Append(c); err != nil {
		return nil, errors.CombineErrors(err, mem.Release())
	}
	a.metrics.chunkCreated(capacity)
	level.Debug(a.logger).Log("msg", "appended chunk", "allocator", "vector", "chunk", a.chain.Len()-1, "capacity_bytes", capacity)

	// The previous chunk may already be drained now that it is no longer last.
	if err := a.prune(); err != nil {
		return nil, err
	}
	return c, nil
}

// Deallocate takes back a slice returned by Allocate. The element count is
// cap(p), so callers must not shrink the capacity of what they free.
func (a *VectorAllocator[T]) Deallocate(p []T) error {
	a.panicIfReleased()
	if cap(p) == 0 || sizeOf[T]() == 0 {
		return nil
	}
	addr := addrOfSlice(p)
	_, c, ok := a.chain.Owner(addr)
	if !ok {
		return errors.Wrapf(ErrInvalidRelease, "vector: address %#x does not belong to this allocator", addr)
	}
	off, _ := c.mem.buf.offsetOf(addr)
	if err := c.free(off, alignUp(cap(p)*sizeOf[T](), alignOf[T]())); err != nil {
		return err
	}
	a.metrics.deallocations.Inc()
	if c.Empty() {
		return a.prune()
	}
	return nil
}

func (a *VectorAllocator[T]) prune() error {
	_, err := a.chain.Prune(func(c *vectorChunk) {
		a.metrics.chunkRetired(c.mem.Capacity())
		level.Debug(a.logger).Log("msg", "released drained chunk", "allocator", "vector", "capacity_bytes", c.mem.Capacity())
	})
	return errors.Wrap(err, "vector: release chunk")
}

// Construct stores v at p.
func (a *VectorAllocator[T]) Construct(p *T, v T) { construct(p, v) }

// Destroy tears down the element at p, calling Destroy on it when *T
// implements Destroyer, and zeroes it.
func (a *VectorAllocator[T]) Destroy(p *T) { destroy(p) }

// MaxSize returns the largest element count Allocate accepts.
func (a *VectorAllocator[T]) MaxSize() int { return maxSize[T]() }

// AlwaysEqual is true: vector allocators of one element type are interchangeable.
func (a *VectorAllocator[T]) AlwaysEqual() bool { return true }

// Equal reports whether memory from a may be released through other. It always is.
func (a *VectorAllocator[T]) Equal(*VectorAllocator[T]) bool { return true }

// NumChunks returns the number of chunks in the chain.
func (a *VectorAllocator[T]) NumChunks() int { return a.chain.Len() }

// ChunkStates returns the lifecycle stage of every chunk, oldest first.
func (a *VectorAllocator[T]) ChunkStates() []ChunkState {
	states := make([]ChunkState, a.chain.Len())
	for i := range states {
		states[i] = a.chain.State(i)
	}
	return states
}

// Metrics returns a snapshot of chain statistics.
func (a *VectorAllocator[T]) Metrics() ChainMetrics { return a.chain.Metrics() }

// Release frees every chunk. Any subsequent Allocate or Deallocate panics.
func (a *VectorAllocator[T]) Release() error {
	if a.released {
		return nil
	}
	a.metrics.capacityBytes.Sub(float64(a.chain.Capacity()))
	a.released = true
	return a.chain.Release()
}

func (a *VectorAllocator[T]) panicIfReleased() {
	if a.released {
		panic("memres: use after Release()")
	}
}
