package memres

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdapterMetrics(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	a, err := NewListAllocator[int64](DefaultConfig(), nil, reg)
	require.NoError(t, err)

	var nodes []*int64
	for i := 0; i < 3; i++ {
		p, err := a.New()
		require.NoError(t, err)
		nodes = append(nodes, p)
	}
	// Chunks of 1 and 2 blocks, 8 bytes each.
	for _, p := range nodes {
		require.NoError(t, a.Delete(p))
	}
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(`
		# HELP memres_allocations_total Total number of successful allocate calls.
		# TYPE memres_allocations_total counter
		memres_allocations_total{allocator="list"} 3
		# HELP memres_capacity_bytes Bytes of chunk storage currently held by allocator chains.
		# TYPE memres_capacity_bytes gauge
		memres_capacity_bytes{allocator="list"} 16
		# HELP memres_chunks_created_total Total number of chunks appended to allocator chains.
		# TYPE memres_chunks_created_total counter
		memres_chunks_created_total{allocator="list"} 2
		# HELP memres_chunks_retired_total Total number of drained chunks released from allocator chains.
		# TYPE memres_chunks_retired_total counter
		memres_chunks_retired_total{allocator="list"} 1
		# HELP memres_deallocations_total Total number of successful deallocate calls.
		# TYPE memres_deallocations_total counter
		memres_deallocations_total{allocator="list"} 3
	`)))

	require.NoError(t, a.Release())
	assert.Zero(t, testutil.ToFloat64(a.metrics.capacityBytes))
}

func TestAdapterMetricsShareRegistry(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	v, err := NewVectorAllocator[int](DefaultConfig(), nil, reg)
	require.NoError(t, err)
	defer v.Release()
	l, err := NewListAllocator[int](DefaultConfig(), nil, reg)
	require.NoError(t, err)
	defer l.Release()

	_, err = v.Allocate(10)
	require.NoError(t, err)
	_, err = l.New()
	require.NoError(t, err)

	n, err := testutil.GatherAndCount(reg, "memres_allocations_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "one series per allocator kind")
	assert.Equal(t, 160.0, testutil.ToFloat64(v.metrics.capacityBytes))
	assert.Equal(t, 8.0, testutil.ToFloat64(l.metrics.capacityBytes))
}

func TestChainMetricsSnapshot(t *testing.T) {
	a := newTestVector[int64](t, DefaultConfig())
	assert.Equal(t, ChainMetrics{}, a.Metrics())

	_, err := a.Allocate(8)
	require.NoError(t, err)

	m := a.Metrics()
	assert.Equal(t, 1, m.NumChunks)
	assert.Equal(t, 128, m.Capacity)
	assert.Equal(t, 64, m.SizeInUse)
	assert.InDelta(t, 0.5, m.Utilization, 1e-9)
}

func TestAdapterMetricsSameKindShareCollectors(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	cfg := DefaultConfig()

	var vectors []*VectorAllocator[int]
	var lists []*ListAllocator[int]
	for i := 0; i < 2; i++ {
		v, err := NewVectorAllocator[int](cfg, nil, reg)
		require.NoError(t, err)
		defer v.Release()
		vectors = append(vectors, v)

		l, err := NewListAllocator[int](cfg, nil, reg)
		require.NoError(t, err)
		defer l.Release()
		lists = append(lists, l)
	}
	// A third kind-mate built from a different element type still shares.
	f, err := NewVectorAllocator[float64](cfg, nil, reg)
	require.NoError(t, err)
	defer f.Release()
	assert.Same(t, vectors[0].metrics.allocations, f.metrics.allocations)

	for _, v := range vectors {
		_, err := v.Allocate(10)
		require.NoError(t, err)
	}
	for _, l := range lists {
		_, err := l.New()
		require.NoError(t, err)
	}

	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(`
		# HELP memres_allocations_total Total number of successful allocate calls.
		# TYPE memres_allocations_total counter
		memres_allocations_total{allocator="list"} 2
		memres_allocations_total{allocator="vector"} 2
		# HELP memres_capacity_bytes Bytes of chunk storage currently held by allocator chains.
		# TYPE memres_capacity_bytes gauge
		memres_capacity_bytes{allocator="list"} 16
		memres_capacity_bytes{allocator="vector"} 320
	`), "memres_allocations_total", "memres_capacity_bytes"))

	require.NoError(t, vectors[0].Release())
	assert.Equal(t, 160.0, testutil.ToFloat64(vectors[1].metrics.capacityBytes))
}

func TestAdapterMetricsNilRegisterer(t *testing.T) {
	a, err := NewVectorAllocator[int](DefaultConfig(), nil, nil)
	require.NoError(t, err)
	b, err := NewVectorAllocator[int](DefaultConfig(), nil, nil)
	require.NoError(t, err)
	assert.NotSame(t, a.metrics.allocations, b.metrics.allocations)
}
