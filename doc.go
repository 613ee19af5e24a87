// Package memres implements memory resources: fixed-buffer allocation
// engines and the chunked allocator adapters that containers build on.
//
// # Overview
//
// Every engine works on exactly one Buffer, a byte range that is either
// Owned (obtained from a Provider and returned to it on Release) or Borrowed
// (caller storage that is never freed). Three engines are provided:
//
//   - PoolMemory: equally sized blocks, O(1) get and free through an
//     intrusive free list kept inside the free blocks themselves
//   - MonoMemory: a bump arena whose frees must come in reverse order
//   - BidiMemory: a bump arena whose frees must come in allocation order
//
// Engines never grow. When one runs out of room it returns ErrOutOfMemory.
//
// # Basic Usage
//
//	pool, err := memres.NewPoolMemory(16, 10)
//	if err != nil {
//		return err
//	}
//	defer pool.Release()
//
//	b, _ := pool.Get()      // 16 bytes
//	_ = pool.Free(b)        // back on the free list
//
//	n, _ := memres.PoolGet[int64](pool)
//	*n = 42
//	_ = memres.PoolPut(pool, n)
//
// # Adapters
//
// VectorAllocator and ListAllocator implement Allocator for containers. Both
// keep a ChunkChain: new memory comes only from the newest chunk, older chunks
// drain as their contents are freed and are released once empty.
//
//	a, _ := memres.NewVectorAllocator[int](memres.DefaultConfig(), logger, prometheus.DefaultRegisterer)
//	defer a.Release()
//
//	s, _ := a.Allocate(100)
//	_ = a.Deallocate(s)
//
// Adapters of one kind created on the same registerer report into shared
// collectors, so any number of them may use prometheus.DefaultRegisterer.
//
// VectorAllocator chunks are MonoMemory arenas sized ChunkFactor times the
// request that created them. ListAllocator chunks are PoolMemory pools of
// node-sized blocks whose block count grows by GrowthFactor per chunk. A
// freed node is routed to the pool that contains its address.
//
// # Typed Values
//
// Generic helpers such as PoolGet and MonoAllocSlice hand out typed views of
// engine memory. That memory is not scanned by the garbage collector, so
// element types must not hold the only reference to Go heap objects.
//
// # Thread Safety
//
// Nothing in this package is safe for concurrent use. Callers that share an
// engine or allocator across goroutines must serialize access themselves.
//
// # Errors
//
// Failures wrap one of ErrOutOfMemory, ErrInvalidConfiguration or
// ErrInvalidRelease and can be matched with errors.Is.
package memres
