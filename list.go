package memres

import (
	"math"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
)

// ListAllocator serves single nodes for linked containers.
//
// It takes blocks from a chain of PoolMemory chunks. The first chunk holds
// InitialBlocks nodes; each new chunk holds GrowthFactor times the previous
// one. A freed node always goes back to the pool whose buffer contains it.
// Chunks that are no longer last and hold no nodes are released.
//
// ListAllocator is not safe for concurrent use.
type ListAllocator[T any] struct {
	cfg       Config
	provider  Provider
	logger    log.Logger
	metrics   *adapterMetrics
	blockSize int

	chain    ChunkChain[*PoolMemory]
	released bool
}

var _ Allocator[int] = (*ListAllocator[int])(nil)

// NewListAllocator validates cfg and returns an allocator with no chunks.
// A nil logger discards output; a nil registerer leaves metrics unregistered.
func NewListAllocator[T any](cfg Config, logger log.Logger, reg prometheus.Registerer) (*ListAllocator[T], error) {
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
	return newListAllocator[T](cfg, p, logger, newAdapterMetrics(reg, "list")), nil
}

func newListAllocator[T any](cfg Config, p Provider, logger log.Logger, m *adapterMetrics) *ListAllocator[T] {
	return &ListAllocator[T]{
		cfg:       cfg,
		provider:  p,
		logger:    logger,
		metrics:   m,
		blockSize: nodeBlockSize[T](),
	}
}

// nodeBlockSize is the pool block size for one T: at least LinkSize and a
// multiple of T's alignment.
func nodeBlockSize[T any]() int {
	return alignUp(max(sizeOf[T](), LinkSize), max(alignOf[T](), 1))
}

// RebindList returns an allocator for U with a's policy, logger and metrics.
// The new allocator starts with no chunks.
func RebindList[U, T any](a *ListAllocator[T]) *ListAllocator[U] {
	return newListAllocator[U](a.cfg, a.provider, a.logger, a.metrics)
}

// Allocate returns one node as a single-element slice. Nodes are served one
// at a time; any other n is rejected.
func (a *ListAllocator[T]) Allocate(n int) ([]T, error) {
	if n != 1 {
		a.panicIfReleased()
		return nil, errors.Wrapf(ErrInvalidConfiguration, "list: allocate %d nodes: nodes are served one at a time", n)
	}
	p, err := a.New()
	if err != nil {
		return nil, err
	}
	return unsafe.Slice(p, 1), nil
}

// Deallocate takes back a slice returned by Allocate.
func (a *ListAllocator[T]) Deallocate(p []T) error {
	if cap(p) == 0 {
		a.panicIfReleased()
		return nil
	}
	return a.Delete(unsafe.SliceData(p))
}

// New returns an uninitialized node.
func (a *ListAllocator[T]) New() (*T, error) {
	a.panicIfReleased()

	last, ok := a.chain.Last()
	if !ok || last.Full() {
		var err error
		if last, err = a.grow(); err != nil {
			return nil, err
		}
	}
	b, err := last.Get()
	if err != nil {
		return nil, err
	}
	a.metrics.allocations.Inc()
	return ptrOf[T](b), nil
}

// grow appends a pool with GrowthFactor times the blocks of the current last one.
func (a *ListAllocator[T]) grow() (*PoolMemory, error) {
	blocks := a.cfg.InitialBlocks
	if last, ok := a.chain.Last(); ok {
		blocks = last.Capacity()
		if blocks <= math.MaxInt/a.cfg.GrowthFactor {
			blocks *= a.cfg.GrowthFactor
		}
	}

	pool, err := NewPoolMemoryFrom(a.provider, a.blockSize, blocks)
	if err != nil {
		return nil, errors.Wrapf(err, "list: new chunk of %d blocks", blocks)
	}
	if err := a.chain.Append(pool); err != nil {
		return nil, errors.CombineErrors(err, pool.Release())
	}
	a.metrics.chunkCreated(pool.Size())
	level.Debug(a.logger).Log("msg", "appended chunk", "allocator", "list", "chunk", a.chain.Len()-1, "blocks", blocks, "capacity_bytes", pool.Size())

	if err := a.prune(); err != nil {
		return nil, err
	}
	return pool, nil
}

// Delete returns a node to the pool that owns it. Deleting nil is a no-op.
func (a *ListAllocator[T]) Delete(p *T) error {
	a.panicIfReleased()
	if p == nil {
		return nil
	}
	addr := uintptr(unsafe.Pointer(p))
	_, pool, ok := a.chain.Owner(addr)
	if !ok {
		return errors.Wrapf(ErrInvalidRelease, "list: address %#x does not belong to this allocator", addr)
	}
	i, err := pool.indexAt(addr)
	if err != nil {
		return err
	}
	if err := pool.FreeIndex(i); err != nil {
		return err
	}
	a.metrics.deallocations.Inc()
	if pool.Empty() {
		return a.prune()
	}
	return nil
}

func (a *ListAllocator[T]) prune() error {
	_, err := a.chain.Prune(func(p *PoolMemory) {
		a.metrics.chunkRetired(p.Size())
		level.Debug(a.logger).Log("msg", "released drained chunk", "allocator", "list", "blocks", p.Capacity(), "capacity_bytes", p.Size())
	})
	return errors.Wrap(err, "list: release chunk")
}

// Construct stores v at p.
func (a *ListAllocator[T]) Construct(p *T, v T) { construct(p, v) }

// Destroy tears down the node at p, calling Destroy on it when *T
// implements Destroyer, and zeroes it.
func (a *ListAllocator[T]) Destroy(p *T) { destroy(p) }

// MaxSize returns the largest element count a container may request.
func (a *ListAllocator[T]) MaxSize() int { return maxSize[T]() }

// AlwaysEqual is true: list allocators of one element type are interchangeable.
func (a *ListAllocator[T]) AlwaysEqual() bool { return true }

// Equal reports whether memory from a may be released through other. It always is.
func (a *ListAllocator[T]) Equal(*ListAllocator[T]) bool { return true }

// BlockSize returns the pool block size used for one node.
func (a *ListAllocator[T]) BlockSize() int { return a.blockSize }

// NumChunks returns the number of chunks in the chain.
func (a *ListAllocator[T]) NumChunks() int { return a.chain.Len() }

// ChunkCapacities returns the block count of every chunk, oldest first.
func (a *ListAllocator[T]) ChunkCapacities() []int {
	caps := make([]int, a.chain.Len())
	for i := range caps {
		caps[i] = a.chain.At(i).Capacity()
	}
	return caps
}

// ChunkStates returns the lifecycle stage of every chunk, oldest first.
func (a *ListAllocator[T]) ChunkStates() []ChunkState {
	states := make([]ChunkState, a.chain.Len())
	for i := range states {
		states[i] = a.chain.State(i)
	}
	return states
}

// Metrics returns a snapshot of chain statistics.
func (a *ListAllocator[T]) Metrics() ChainMetrics { return a.chain.Metrics() }

// Release frees every chunk. Any subsequent call panics.
func (a *ListAllocator[T]) Release() error {
	if a.released {
		return nil
	}
	a.metrics.capacityBytes.Sub(float64(a.chain.Capacity()))
	a.released = true
	return a.chain.Release()
}

func (a *ListAllocator[T]) panicIfReleased() {
	if a.released {
		panic("memres: use after Release()")
	}
}
