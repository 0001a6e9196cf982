package metrics

import (
	"time"

	"github.com/cuemby/directord/pkg/types"
)

// Source is whatever the coordinator exposes for periodic metrics
// collection. Defined here rather than importing pkg/coordinator
// directly so pkg/coordinator is free to import pkg/metrics for its
// own inline histogram updates without a cyclic import.
type Source interface {
	WorkerCounts() map[types.NodeStatus]int
	JobCounts() map[types.JobState]int
	QueueDepths() map[string]int
}

// Collector polls a Source on a fixed interval and updates the
// package's gauges, mirroring the teacher's periodic poll-then-set
// pattern.
type Collector struct {
	source Source
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector over source.
func NewCollector(source Source) *Collector {
	return &Collector{
		source: source,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics every 15 seconds.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
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
	for status, count := range c.source.WorkerCounts() {
		WorkersTotal.WithLabelValues(string(status)).Set(float64(count))
	}
	for state, count := range c.source.JobCounts() {
		JobsTotal.WithLabelValues(string(state)).Set(float64(count))
	}
	for identity, depth := range c.source.QueueDepths() {
		QueueDepth.WithLabelValues(identity).Set(float64(depth))
	}
}
