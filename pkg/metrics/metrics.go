package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	UpdatesEnqueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "latticed_updates_enqueued_total",
			Help: "Total number of updates registered, by index",
		},
		[]string{"index"},
	)

	UpdatesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "latticed_updates_processed_total",
			Help: "Total number of updates that reached Processed, by index",
		},
		[]string{"index"},
	)

	UpdatesFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "latticed_updates_failed_total",
			Help: "Total number of updates that reached Failed, by index",
		},
		[]string{"index"},
	)

	UpdateProcessingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "latticed_update_processing_seconds",
			Help:    "Time the writer thread spent applying a single update",
			Buckets: prometheus.DefBuckets,
		},
	)

	UpdateStorePending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "latticed_update_store_pending",
			Help: "Number of updates currently enqueued across all indexes",
		},
	)

	InboxDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "latticed_inbox_depth",
			Help: "Number of messages currently buffered in the update loop inbox",
		},
	)

	HandlersInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "latticed_handlers_in_flight",
			Help: "Number of update loop message handlers currently executing",
		},
	)

	DumpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "latticed_dumps_total",
			Help: "Total number of dump jobs by terminal status",
		},
		[]string{"status"},
	)

	DumpDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "latticed_dump_duration_seconds",
			Help:    "End-to-end duration of a dump job",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
	)

	FileStoreBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "latticed_filestore_bytes",
			Help: "Approximate bytes held by the update file store",
		},
	)

	RetentionSweepsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "latticed_retention_sweeps_total",
			Help: "Total number of retention sweep cycles run",
		},
	)

	RetentionOrphansDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "latticed_retention_orphans_deleted_total",
			Help: "Total number of orphaned payloads deleted by the retention sweeper",
		},
	)

	RetentionSweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "latticed_retention_sweep_seconds",
			Help:    "Time spent in a single retention sweep cycle",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(
		UpdatesEnqueued,
		UpdatesProcessed,
		UpdatesFailed,
		UpdateProcessingDuration,
		UpdateStorePending,
		InboxDepth,
		HandlersInFlight,
		DumpsTotal,
		DumpDuration,
		FileStoreBytes,
		RetentionSweepsTotal,
		RetentionOrphansDeleted,
		RetentionSweepDuration,
	)
}

// Handler returns the Prometheus HTTP handler.
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

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
