// Package routing resolves a node's declared output edges into buffer
// writes. A RoutingContext is created once per stage execution, bound to
// one (execution, source node) pair, and discarded after the writer stage
// completes.
package routing

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/buffers"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/record"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/workflow"
)

// Context is the read-only routing binding for one node stage. It is safe
// for concurrent use by a parallelized writer.
type Context struct {
	executionId  string
	sourceNodeId string
	outputPorts  []workflow.OutputPort
	store        *buffers.Store
	logger       *zap.Logger

	// lost counts records that had no eligible output edge and were
	// dropped. Routing loss is a warning condition, never a crash.
	lost atomic.Int64
}

// NewContext binds a routing context to one node stage.
func NewContext(executionId, sourceNodeId string, outputPorts []workflow.OutputPort, store *buffers.Store, logger *zap.Logger) *Context {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Context{
		executionId:  executionId,
		sourceNodeId: sourceNodeId,
		outputPorts:  outputPorts,
		store:        store,
		logger:       logger,
	}
}

// OutputPorts returns the declared output edges in declaration order.
func (c *Context) OutputPorts() []workflow.OutputPort {
	return c.outputPorts
}

// RouteRecord delivers a record according to its route key. An absent key
// falls back to the default route. Otherwise the declared output edges are
// scanned in declaration order for one whose source port matches the key;
// the first match wins and exactly one edge fires. A key with no matching
// edge also falls back to the default route.
func (c *Context) RouteRecord(rec *record.Record, routeKey string) {
	if routeKey == "" {
		c.RouteToDefault(rec)
		return
	}
	for _, port := range c.outputPorts {
		if port.SourcePort == routeKey {
			c.store.AddRecord(c.executionId, port.TargetNodeId, port.TargetPort, rec)
			return
		}
	}
	c.RouteToDefault(rec)
}

// RouteToDefault delivers a record to the first declared edge. Edge
// declaration order is preserved from the source graph, so "first" is
// semantically significant. With no declared edges the record is dropped
// and the loss is logged and counted.
func (c *Context) RouteToDefault(rec *record.Record) {
	if len(c.outputPorts) == 0 {
		c.lost.Add(1)
		c.logger.Warn("record dropped: node has no output edges",
			zap.String("executionId", c.executionId),
			zap.String("nodeId", c.sourceNodeId))
		return
	}
	first := c.outputPorts[0]
	c.store.AddRecord(c.executionId, first.TargetNodeId, first.TargetPort, rec)
}

// RouteToAllPorts delivers an independent copy of the record to every
// declared edge. Copies are clones so downstream consumers never observe
// each other's mutations. Used by fan-out behaviors that do not use
// per-item route labels.
func (c *Context) RouteToAllPorts(rec *record.Record) {
	if len(c.outputPorts) == 0 {
		c.lost.Add(1)
		c.logger.Warn("record dropped: node has no output edges",
			zap.String("executionId", c.executionId),
			zap.String("nodeId", c.sourceNodeId))
		return
	}
	for _, port := range c.outputPorts {
		c.store.AddRecord(c.executionId, port.TargetNodeId, port.TargetPort, rec.Clone())
	}
}

// RoutingLost returns how many records this context dropped for lack of an
// eligible output edge.
func (c *Context) RoutingLost() int64 {
	return c.lost.Load()
}
