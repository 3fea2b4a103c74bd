// Package metrics exposes pipeline observability through a dedicated
// Prometheus registry, keeping the default global registry untouched.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the instrument set for one daemon instance.
type Metrics struct {
	registry *prometheus.Registry

	ChunksIngested   prometheus.Counter
	ChunksRejected   prometheus.Counter
	UpdatesEmitted   prometheus.Counter
	EmitBatchSize    prometheus.Histogram
	ModelLatency     *prometheus.HistogramVec
	StreamSubscribed prometheus.Gauge
}

// New creates and registers the instrument set.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		ChunksIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "earmark_chunks_ingested_total",
			Help: "Audio chunks accepted for transcription.",
		}),
		ChunksRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "earmark_chunks_rejected_total",
			Help: "Audio chunks refused because the pipeline was paused.",
		}),
		UpdatesEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "earmark_updates_emitted_total",
			Help: "Segment updates written to the archive and stream.",
		}),
		EmitBatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "earmark_emit_batch_size",
			Help:    "Updates emitted per drain cycle.",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64},
		}),
		ModelLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "earmark_model_call_seconds",
			Help:    "Wall time of language model calls by pipeline stage.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"stage"}),
		StreamSubscribed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "earmark_stream_subscribers",
			Help: "Currently connected stream subscribers.",
		}),
	}
	registry.MustRegister(
		m.ChunksIngested,
		m.ChunksRejected,
		m.UpdatesEmitted,
		m.EmitBatchSize,
		m.ModelLatency,
		m.StreamSubscribed,
	)
	return m
}

// RegisterQueueDepth publishes a gauge tracking the depth of a named queue.
func (m *Metrics) RegisterQueueDepth(name string, depth func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "earmark_queue_depth",
		Help:        "Items currently buffered in a pipeline queue.",
		ConstLabels: prometheus.Labels{"queue": name},
	}, func() float64 { return float64(depth()) }))
}

// RegisterArchiveSize publishes a gauge tracking archived segment count.
func (m *Metrics) RegisterArchiveSize(size func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "earmark_archive_segments",
		Help: "Segments held in the transcript archive.",
	}, func() float64 { return float64(size()) }))
}

// ObserveEmit records one emitter drain cycle.
func (m *Metrics) ObserveEmit(updates int) {
	if updates <= 0 {
		return
	}
	m.UpdatesEmitted.Add(float64(updates))
	m.EmitBatchSize.Observe(float64(updates))
}

// ObserveModelCall records one language model round trip for a stage.
func (m *Metrics) ObserveModelCall(stage string, seconds float64) {
	m.ModelLatency.WithLabelValues(stage).Observe(seconds)
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
