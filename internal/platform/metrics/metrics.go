package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the segmenter.
type Metrics struct {
	registry                 *prometheus.Registry
	requestsTotal            prometheus.Counter
	errorsTotal              prometheus.Counter
	segmentsCompletedTotal   prometheus.Counter
	segmentsEvictedTotal     prometheus.Counter
	packetsWrittenTotal      *prometheus.CounterVec
	packetWriteErrorsTotal   prometheus.Counter
	manifestWriteErrorsTotal prometheus.Counter
	currentSegment           prometheus.Gauge
	segmentDuration          prometheus.Histogram
}

// New creates and registers Prometheus metrics for the segmenter.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hls_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hls_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	segmentsCompletedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hls_segments_completed_total",
		Help: "Total number of segment files finalized and added to the playlist",
	})
	segmentsEvictedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hls_segments_evicted_total",
		Help: "Total number of segments dropped from the playlist window",
	})
	packetsWrittenTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hls_packets_written_total",
		Help: "Total number of packets written to segment files",
	}, []string{"role"})
	packetWriteErrorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hls_packet_write_errors_total",
		Help: "Total number of packets that could not be written and were skipped",
	})
	manifestWriteErrorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hls_manifest_write_errors_total",
		Help: "Total number of failed manifest writes",
	})
	currentSegment := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hls_current_segment_index",
		Help: "Index of the segment currently being written",
	})
	segmentDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "hls_segment_duration_seconds",
		Help:    "Duration of completed segments",
		Buckets: []float64{1, 2, 4, 6, 8, 10, 12, 15, 20, 30},
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		segmentsCompletedTotal,
		segmentsEvictedTotal,
		packetsWrittenTotal,
		packetWriteErrorsTotal,
		manifestWriteErrorsTotal,
		currentSegment,
		segmentDuration,
	)

	return &Metrics{
		registry:                 registry,
		requestsTotal:            requestsTotal,
		errorsTotal:              errorsTotal,
		segmentsCompletedTotal:   segmentsCompletedTotal,
		segmentsEvictedTotal:     segmentsEvictedTotal,
		packetsWrittenTotal:      packetsWrittenTotal,
		packetWriteErrorsTotal:   packetWriteErrorsTotal,
		manifestWriteErrorsTotal: manifestWriteErrorsTotal,
		currentSegment:           currentSegment,
		segmentDuration:          segmentDuration,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// ObserveSegment records a completed segment and its duration in seconds.
func (m *Metrics) ObserveSegment(seconds float64) {
	m.segmentsCompletedTotal.Inc()
	m.segmentDuration.Observe(seconds)
}

// AddSegmentsEvicted adds n to the evicted segments counter.
func (m *Metrics) AddSegmentsEvicted(n int) {
	m.segmentsEvictedTotal.Add(float64(n))
}

// IncPacketsWritten increments the written packets counter for role.
func (m *Metrics) IncPacketsWritten(role string) {
	m.packetsWrittenTotal.WithLabelValues(role).Inc()
}

// IncPacketWriteErrors increments the skipped packets counter.
func (m *Metrics) IncPacketWriteErrors() {
	m.packetWriteErrorsTotal.Inc()
}

// IncManifestWriteErrors increments the manifest write failure counter.
func (m *Metrics) IncManifestWriteErrors() {
	m.manifestWriteErrorsTotal.Inc()
}

// SetCurrentSegment sets the current segment index gauge.
func (m *Metrics) SetCurrentSegment(index uint64) {
	m.currentSegment.Set(float64(index))
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler that serves Prometheus metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
