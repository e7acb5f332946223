package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments exported at /metrics. All record
// methods are safe to call on a nil receiver so tests can leave metrics out.
type Metrics struct {
	DocumentsConsumed  prometheus.Counter
	DocumentsDuplicate prometheus.Counter
	DocumentsFailed    prometheus.Counter
	ConsumeDuration    prometheus.Histogram

	stageDuration *prometheus.HistogramVec
	stageErrors   *prometheus.CounterVec

	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	uploadsRejected prometheus.Counter
}

// New registers all instruments on the default registry. Call it once per
// process; promauto panics on duplicate registration.
func New() *Metrics {
	return &Metrics{
		DocumentsConsumed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "emlarchiver_documents_consumed_total",
			Help: "Number of documents successfully archived",
		}),
		DocumentsDuplicate: promauto.NewCounter(prometheus.CounterOpts{
			Name: "emlarchiver_documents_duplicate_total",
			Help: "Number of documents skipped because their checksum was already stored",
		}),
		DocumentsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "emlarchiver_documents_failed_total",
			Help: "Number of documents whose conversion failed",
		}),
		ConsumeDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "emlarchiver_consume_duration_seconds",
			Help:    "Wall time spent consuming a single document",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		stageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "emlarchiver_stage_duration_seconds",
			Help:    "Duration of individual conversion collaborator calls",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"stage"}),
		stageErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "emlarchiver_stage_errors_total",
			Help: "Failed conversion collaborator calls",
		}, []string{"stage"}),
		httpRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "emlarchiver_http_requests_total",
			Help: "HTTP requests handled, by method, route and status code",
		}, []string{"method", "route", "status"}),
		httpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "emlarchiver_http_request_duration_seconds",
			Help:    "HTTP request latency, by method and route",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		uploadsRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "emlarchiver_uploads_rejected_total",
			Help: "Uploads rejected before conversion (unsupported type or bad request)",
		}),
	}
}

// ObserveStage records one conversion collaborator call. It matches the
// pipeline's observer hook signature.
func (m *Metrics) ObserveStage(stage string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
	if err != nil {
		m.stageErrors.WithLabelValues(stage).Inc()
	}
}

// RecordHTTPRequest records one handled HTTP request.
func (m *Metrics) RecordHTTPRequest(method, route, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// RecordConsume records the outcome of one consume attempt.
func (m *Metrics) RecordConsume(elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.ConsumeDuration.Observe(elapsed.Seconds())
	if err != nil {
		m.DocumentsFailed.Inc()
		return
	}
	m.DocumentsConsumed.Inc()
}

// RecordDuplicate counts a document skipped by checksum deduplication.
func (m *Metrics) RecordDuplicate() {
	if m == nil {
		return
	}
	m.DocumentsDuplicate.Inc()
}

// RecordRejectedUpload counts an upload rejected before conversion.
func (m *Metrics) RecordRejectedUpload() {
	if m == nil {
		return
	}
	m.uploadsRejected.Inc()
}
