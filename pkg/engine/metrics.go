package engine

import (
	"sync/atomic"
	"time"
)

// StageMetrics is the snapshot of one node stage's counters.
type StageMetrics struct {
	NodeId      string
	Read        int64
	Processed   int64
	Dropped     int64
	RowErrors   int64
	RoutingLost int64
	Duration    time.Duration
}

// metricsCollector accumulates counters for one stage invocation. Only
// behaviors that declare the Metrics capability get a collected snapshot.
type metricsCollector struct {
	read      atomic.Int64
	processed atomic.Int64
	dropped   atomic.Int64
	rowErrors atomic.Int64
	started   time.Time
}

func newMetricsCollector() *metricsCollector {
	return &metricsCollector{started: time.Now()}
}

func (m *metricsCollector) recordRead(n int)  { m.read.Add(int64(n)) }
func (m *metricsCollector) recordProcessed() { m.processed.Add(1) }
func (m *metricsCollector) recordDropped()   { m.dropped.Add(1) }
func (m *metricsCollector) recordRowError()  { m.rowErrors.Add(1) }

func (m *metricsCollector) snapshot(nodeId string, routingLost int64) StageMetrics {
	return StageMetrics{
		NodeId:      nodeId,
		Read:        m.read.Load(),
		Processed:   m.processed.Load(),
		Dropped:     m.dropped.Load(),
		RowErrors:   m.rowErrors.Load(),
		RoutingLost: routingLost,
		Duration:    time.Since(m.started),
	}
}
