package metrics

import (
	"sync"
	"time"

	"github.com/quiverio/quiver/pkg/buffer"
	"github.com/quiverio/quiver/pkg/queue"
)

// Collector periodically samples a JobQueue and any StreamBuffers
// registered with it, publishing their state as Prometheus gauges. Rank 0 runs one Collector for the lifetime of a Distributed
// run; the Local scheduler has no analogous use since its workers and
// queue live and die within a single Run call.
type Collector struct {
	queue *queue.JobQueue

	mu      sync.Mutex
	buffers map[string]*buffer.StreamBuffer

	stopCh chan struct{}
}

// NewCollector creates a collector bound to q with no buffers; buffers
// are sampled only once added via RegisterBuffer. The Distributed
// scheduler registers none, since its workers' buffers live on other
// ranks.
func NewCollector(q *queue.JobQueue) *Collector {
	return &Collector{
		queue:   q,
		buffers: make(map[string]*buffer.StreamBuffer),
		stopCh:  make(chan struct{}),
	}
}

// RegisterBuffer associates a worker's StreamBuffer with the
// collector, so its occupancy is sampled on every tick.
func (c *Collector) RegisterBuffer(worker string, buf *buffer.StreamBuffer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buffers[worker] = buf
}

// Start begins collecting metrics on a fixed interval.
func (c *Collector) Start(interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectQueueMetrics()
	c.collectBufferMetrics()
}

func (c *Collector) collectQueueMetrics() {
	if c.queue == nil {
		return
	}
	snap := c.queue.Snapshot()
	JobsTotal.WithLabelValues("pending").Set(float64(snap.Pending))
	JobsTotal.WithLabelValues("active").Set(float64(snap.Active))
	JobsTotal.WithLabelValues("finished").Set(float64(snap.Finished))
}

func (c *Collector) collectBufferMetrics() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for worker, buf := range c.buffers {
		BufferBytes.WithLabelValues(worker).Set(float64(buf.Size()))
	}
}
