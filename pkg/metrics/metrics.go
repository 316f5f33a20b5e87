package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mkv_api_requests_total",
			Help: "Total number of coordinator API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mkv_api_request_duration_seconds",
			Help:    "Coordinator API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Replication metrics
	ReplicationPutTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mkv_replication_put_total",
			Help: "Total number of replicated PUTs by outcome",
		},
		[]string{"outcome"}, // "committed", "rolled_back"
	)

	ReplicationDeleteTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mkv_replication_delete_total",
			Help: "Total number of replicated DELETEs by outcome",
		},
		[]string{"outcome"}, // "unlinked", "purged", "retry"
	)

	ReplicationPutDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mkv_replication_put_duration_seconds",
			Help:    "Time to replicate a PUT across all chosen volumes",
			Buckets: prometheus.DefBuckets,
		},
	)

	VolumeOrphansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mkv_volume_orphans_total",
			Help: "Total number of volume blobs orphaned by a failed rollback DELETE",
		},
		[]string{"volume"},
	)

	// Rebalance metrics
	RebalancedKeysTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mkv_rebalanced_keys_total",
			Help: "Total number of keys successfully rebalanced",
		},
	)

	RebalanceFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mkv_rebalance_failures_total",
			Help: "Total number of keys that failed to rebalance",
		},
	)

	// Multipart metrics
	MultipartUploadsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mkv_multipart_uploads_active",
			Help: "Number of multipart uploads currently registered",
		},
	)
)

func init() {
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(ReplicationPutTotal)
	prometheus.MustRegister(ReplicationDeleteTotal)
	prometheus.MustRegister(ReplicationPutDuration)
	prometheus.MustRegister(VolumeOrphansTotal)
	prometheus.MustRegister(RebalancedKeysTotal)
	prometheus.MustRegister(RebalanceFailuresTotal)
	prometheus.MustRegister(MultipartUploadsActive)
}

// Handler returns the Prometheus HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the elapsed duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}
