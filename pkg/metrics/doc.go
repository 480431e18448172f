/*
Package metrics provides Prometheus metrics collection and exposition for
quiver's processing engine, plus a small health-check surface for the
master and worker processes.

Metrics are defined and registered at package init and exposed via HTTP
for scraping by a Prometheus server; nothing in this package depends on
the scheduler or store directly except through the Collector, which
polls a JobQueue and a set of per-worker StreamBuffers on a ticker.

# Architecture

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Prometheus Registry                │          │
	│  │  - Global DefaultRegistry                   │          │
	│  │  - MustRegister at package init             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │              Metric Categories               │          │
	│  │                                              │          │
	│  │  Jobs: total{state}, scheduled, failed       │          │
	│  │  Scheduling: dispatch latency histogram      │          │
	│  │  Buffer: bytes held per worker               │          │
	│  │  Store: collective writes total              │          │
	│  │  Bus: all_gather round-trip time             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          Collector (rank 0 only)             │          │
	│  │  - samples JobQueue.Snapshot() on a tick     │          │
	│  │  - samples registered StreamBuffer.Size()    │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          HTTP Metrics Endpoint               │          │
	│  │  - Path: /metrics, Handler: promhttp.Handler │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Metric Registry:
  - Global Prometheus DefaultRegistry
  - All metrics registered at package init
  - Thread-safe for concurrent updates from multiple goroutines

Gauge Metrics (quiver_jobs_total, quiver_buffer_bytes):
  - Instant values, can go up or down
  - Set directly from a JobQueue/StreamBuffer snapshot

Counter Metrics (quiver_jobs_scheduled_total, quiver_jobs_failed_total,
quiver_collective_writes_total):
  - Monotonically increasing, incremented at the call site

Histogram Metrics (quiver_scheduling_latency_seconds,
quiver_bus_rtt_seconds):
  - Distribution of observed durations, via the Timer helper

# Timer

Timer is a small stopwatch: NewTimer starts it, ObserveDuration records
the elapsed time to a histogram, ObserveDurationVec does the same with
labels. Used around JobQueue dispatch and the master's Bus.AllGather
call; Barrier is not timed.

# Health

HealthChecker tracks named components ("bus", "store", ...) as healthy
or unhealthy and exposes /health, /ready, and /live HTTP handlers for
process supervisors. GetReadiness treats "bus" and "store" as the
critical components a process can't run without.

# See Also

  - pkg/queue for the JobQueue this Collector samples
  - pkg/buffer for the StreamBuffer this Collector samples
  - pkg/scheduler for where SchedulingLatency and BusRTT are observed
*/
package metrics
