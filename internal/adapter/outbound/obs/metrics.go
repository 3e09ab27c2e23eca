// Package obs wires the pipeline's tracing/metrics sinks: a Prometheus
// registry for batch counters and an OpenTelemetry tracer/meter pair for
// per-item spans and stage-latency histograms. The teacher's go.mod
// already declares the otel modules this package imports; nothing in
// the teacher repo itself exercises them, so this is their first
// concrete caller.
package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the batch-scoped Prometheus counters spec §7's summary
// tallies are mirrored into, one label value per itemctx.Status.
type Metrics struct {
	ItemsTotal     *prometheus.CounterVec
	BatchesTotal   prometheus.Counter
	ReplayWriteErr prometheus.Counter
}

// NewMetrics registers and returns a fresh Metrics against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		ItemsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ingestpipe",
				Name:      "items_total",
				Help:      "Total items processed, by terminal status",
			},
			[]string{"status"}, // created/updated/destroyed/noop/rejected
		),
		BatchesTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "ingestpipe",
				Name:      "batches_total",
				Help:      "Total batches run to completion",
			},
		),
		ReplayWriteErr: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "ingestpipe",
				Name:      "replay_write_errors_total",
				Help:      "Replay pack writes that failed after an item reached a terminal status",
			},
		),
	}
}
