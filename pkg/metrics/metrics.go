package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// JobsTotal tracks jobs by lifecycle state: pending, active, finished.
	JobsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "quiver_jobs_total",
			Help: "Total number of jobs by lifecycle state",
		},
		[]string{"state"},
	)

	JobsScheduledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quiver_jobs_scheduled_total",
			Help: "Total number of jobs dispatched to a worker",
		},
	)

	JobsFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quiver_jobs_failed_total",
			Help: "Total number of jobs whose read or transform failed",
		},
	)

	SchedulingLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "quiver_scheduling_latency_seconds",
			Help:    "Time the master spends taking a job off the queue and encoding it for a requesting worker",
			Buckets: prometheus.DefBuckets,
		},
	)

	// BufferBytes tracks each worker's StreamBuffer occupancy.
	BufferBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "quiver_buffer_bytes",
			Help: "Bytes currently held in a worker's stream buffer",
		},
		[]string{"worker"},
	)

	CollectiveWritesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quiver_collective_writes_total",
			Help: "Total number of collective (metadata-creating) store writes performed",
		},
	)

	BusRTT = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "quiver_bus_rtt_seconds",
			Help:    "Round-trip time of the master's all_gather collective over the message bus",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(JobsTotal)
	prometheus.MustRegister(JobsScheduledTotal)
	prometheus.MustRegister(JobsFailedTotal)
	prometheus.MustRegister(SchedulingLatency)
	prometheus.MustRegister(BufferBytes)
	prometheus.MustRegister(CollectiveWritesTotal)
	prometheus.MustRegister(BusRTT)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
