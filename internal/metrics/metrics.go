// Package metrics exposes Prometheus instrumentation for the ingestion and
// stacking subsystems.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Set bundles every collector the core registers.
type Set struct {
	ReadingsAccepted prometheus.Counter
	ReadingsRejected prometheus.Counter

	FlushesCompleted prometheus.Counter
	FlushesFailed    prometheus.Counter
	RecordsProcessed prometheus.Counter
	RecordsFailed    prometheus.Counter

	GenerationsCompleted prometheus.Counter
	GenerationsFailed    prometheus.Counter
	GenerationSeconds    prometheus.Histogram

	BufferOccupancy *prometheus.GaugeVec
}

// New creates and registers the collector set on the given registerer.
func New(reg prometheus.Registerer) *Set {
	s := &Set{
		ReadingsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geostack_readings_accepted_total",
			Help: "Readings accepted into a station buffer.",
		}),
		ReadingsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geostack_readings_rejected_total",
			Help: "Readings rejected because the station buffer was full.",
		}),
		FlushesCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geostack_flushes_completed_total",
			Help: "Buffer flushes that reached durable storage.",
		}),
		FlushesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geostack_flushes_failed_total",
			Help: "Buffer flushes aborted by a storage-layer fault.",
		}),
		RecordsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geostack_records_processed_total",
			Help: "Records committed to durable storage.",
		}),
		RecordsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geostack_records_failed_total",
			Help: "Records dropped by per-record validation during flush.",
		}),
		GenerationsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geostack_generations_completed_total",
			Help: "Stack generations that published an artifact.",
		}),
		GenerationsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geostack_generations_failed_total",
			Help: "Stack generations aborted by a pipeline or export error.",
		}),
		GenerationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "geostack_generation_seconds",
			Help:    "Wall time of a full stack generation.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		BufferOccupancy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "geostack_buffer_occupancy",
			Help: "Current number of buffered readings per station.",
		}, []string{"station"}),
	}

	reg.MustRegister(
		s.ReadingsAccepted, s.ReadingsRejected,
		s.FlushesCompleted, s.FlushesFailed,
		s.RecordsProcessed, s.RecordsFailed,
		s.GenerationsCompleted, s.GenerationsFailed, s.GenerationSeconds,
		s.BufferOccupancy,
	)
	return s
}

// NewNop creates a set backed by a private registry, for tests and callers
// that do not scrape.
func NewNop() *Set {
	return New(prometheus.NewRegistry())
}
