package memres

import (
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// ChainMetrics contains statistical information about an adapter's chunks.
type ChainMetrics struct {
	NumChunks   int     // Chunks currently in the chain
	Capacity    int     // Total capacity in bytes
	SizeInUse   int     // Bytes held by live allocations
	Utilization float64 // Ratio of used to total capacity (0.0-1.0)
}

// adapterMetrics are the Prometheus collectors an adapter updates.
// Adapters of one kind on the same registerer share one set of collectors,
// and rebound adapters share their parent's.
type adapterMetrics struct {
	chunksCreated prometheus.Counter
	chunksRetired prometheus.Counter
	allocations   prometheus.Counter
	deallocations prometheus.Counter
	capacityBytes prometheus.Gauge
}

func newAdapterMetrics(reg prometheus.Registerer, kind string) *adapterMetrics {
	labels := prometheus.Labels{"allocator": kind}
	return &adapterMetrics{
		chunksCreated: registerOrExisting(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "memres_chunks_created_total",
			Help:        "Total number of chunks appended to allocator chains.",
			ConstLabels: labels,
		})),
		chunksRetired: registerOrExisting(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "memres_chunks_retired_total",
			Help:        "Total number of drained chunks released from allocator chains.",
			ConstLabels: labels,
		})),
		allocations: registerOrExisting(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "memres_allocations_total",
			Help:        "Total number of successful allocate calls.",
			ConstLabels: labels,
		})),
		deallocations: registerOrExisting(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "memres_deallocations_total",
			Help:        "Total number of successful deallocate calls.",
			ConstLabels: labels,
		})),
		capacityBytes: registerOrExisting(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "memres_capacity_bytes",
			Help:        "Bytes of chunk storage currently held by allocator chains.",
			ConstLabels: labels,
		})),
	}
}

// registerOrExisting registers c with reg, or returns the collector already
// registered under the same descriptor. A nil reg leaves c unregistered.
func registerOrExisting[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if reg == nil {
		return c
	}
	err := reg.Register(c)
	if err == nil {
		return c
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing
		}
	}
	panic(err)
}

func (m *adapterMetrics) chunkCreated(bytes int) {
	m.chunksCreated.Inc()
	m.capacityBytes.Add(float64(bytes))
}

func (m *adapterMetrics) chunkRetired(bytes int) {
	m.chunksRetired.Inc()
	m.capacityBytes.Sub(float64(bytes))
}
