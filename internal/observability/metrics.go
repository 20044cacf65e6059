// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Stream metrics
	FramesReceived  prometheus.Counter
	FramesRejected  *prometheus.CounterVec
	Reconnects      prometheus.Counter
	SubscribesSent  *prometheus.CounterVec
	ConnectionState prometheus.Gauge

	// Ingestion metrics
	EventsProcessed prometheus.Counter
	TokensCreated   prometheus.Counter

	// Batcher metrics
	FlushesTotal  *prometheus.CounterVec
	FlushDuration prometheus.Histogram
	PendingTokens prometheus.Gauge
	PendingTxs    prometheus.Gauge

	// Storage metrics
	SubscribedMints prometheus.Gauge
	StorageBytes    prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "pumpportal_archiver"
	}

	return &Metrics{
		FramesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "frames_received_total",
			Help:      "Total number of frames read from the stream",
		}),
		FramesRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "frames_rejected_total",
			Help:      "Total number of frames rejected by the classifier, by reason",
		}, []string{"reason"}),
		Reconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "reconnects_total",
			Help:      "Total number of completed reconnect cycles",
		}),
		SubscribesSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "subscribes_sent_total",
			Help:      "Total number of outbound subscribe requests by method",
		}, []string{"method"}),
		ConnectionState: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "connection_state",
			Help:      "Current connection state (0=disconnected 1=connecting 2=connected 3=backoff 4=shutting_down)",
		}),

		EventsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "events_processed_total",
			Help:      "Total number of buy/sell events classified",
		}),
		TokensCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "tokens_created_total",
			Help:      "Total number of token creation events classified",
		}),

		FlushesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batcher",
			Name:      "flushes_total",
			Help:      "Total number of batch flush attempts by status",
		}, []string{"status"}),
		FlushDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "batcher",
			Name:      "flush_duration_seconds",
			Help:      "Batch flush duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		PendingTokens: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "batcher",
			Name:      "pending_tokens",
			Help:      "Current number of buffered token rows",
		}),
		PendingTxs: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "batcher",
			Name:      "pending_transactions",
			Help:      "Current number of buffered transaction rows",
		}),

		SubscribedMints: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "subscribed_mints",
			Help:      "Current number of mints in the subscription registry",
		}),
		StorageBytes: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "size_bytes",
			Help:      "Current durable storage size in bytes (-1 when unavailable)",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordFrameReceived increments the frames received counter.
func RecordFrameReceived() {
	DefaultMetrics.FramesReceived.Inc()
}

// RecordFrameRejected records a rejected frame by reason.
func RecordFrameRejected(reason string) {
	DefaultMetrics.FramesRejected.WithLabelValues(reason).Inc()
}

// RecordReconnect increments the reconnect counter.
func RecordReconnect() {
	DefaultMetrics.Reconnects.Inc()
}

// RecordSubscribeSent increments the subscribe request counter for a method.
func RecordSubscribeSent(method string) {
	DefaultMetrics.SubscribesSent.WithLabelValues(method).Inc()
}

// UpdateConnectionState updates the connection state gauge.
func UpdateConnectionState(state int) {
	DefaultMetrics.ConnectionState.Set(float64(state))
}

// RecordEventProcessed increments the processed events counter.
func RecordEventProcessed() {
	DefaultMetrics.EventsProcessed.Inc()
}

// RecordTokenCreated increments the tokens created counter.
func RecordTokenCreated() {
	DefaultMetrics.TokensCreated.Inc()
}

// RecordFlush records a flush attempt and its duration.
func RecordFlush(status string, seconds float64) {
	DefaultMetrics.FlushesTotal.WithLabelValues(status).Inc()
	DefaultMetrics.FlushDuration.Observe(seconds)
}

// UpdateBufferSizes updates the pending buffer gauges.
func UpdateBufferSizes(tokens, txs int) {
	DefaultMetrics.PendingTokens.Set(float64(tokens))
	DefaultMetrics.PendingTxs.Set(float64(txs))
}

// UpdateSubscribedMints updates the subscribed mints gauge.
func UpdateSubscribedMints(n int) {
	DefaultMetrics.SubscribedMints.Set(float64(n))
}

// UpdateStorageBytes updates the storage size gauge. Pass -1 when the size
// is unavailable.
func UpdateStorageBytes(n int64) {
	DefaultMetrics.StorageBytes.Set(float64(n))
}
