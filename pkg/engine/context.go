package engine

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/buffers"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/expr"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/record"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/routing"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/workflow"
)

// OutputItemsKey is the execution variable that chains terminal node
// output into the next stage's direct-mode reader.
const OutputItemsKey = "outputItems"

// CheckpointKeyPrefix prefixes checkpoint marker variables.
const CheckpointKeyPrefix = "checkpoint_"

// Variables is the flat execution-scoped key-value store. One instance
// lives for exactly one execution.
type Variables struct {
	mu     sync.RWMutex
	values map[string]interface{}
}

// NewVariables creates an empty variable store.
func NewVariables() *Variables {
	return &Variables{values: make(map[string]interface{})}
}

// Set stores a value.
func (v *Variables) Set(key string, value interface{}) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.values[key] = value
}

// Get returns a value and whether it is present.
func (v *Variables) Get(key string) (interface{}, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	val, ok := v.values[key]
	return val, ok
}

// Has reports whether key is present.
func (v *Variables) Has(key string) bool {
	_, ok := v.Get(key)
	return ok
}

// SetRecords stores a list-valued variable.
func (v *Variables) SetRecords(key string, records []*record.Record) {
	v.Set(key, records)
}

// Records returns a list-valued variable, or nil when absent or not a
// record list.
func (v *Variables) Records(key string) []*record.Record {
	val, ok := v.Get(key)
	if !ok {
		return nil
	}
	records, _ := val.([]*record.Record)
	return records
}

// Snapshot returns a copy of the store for inspection after execution.
func (v *Variables) Snapshot() map[string]interface{} {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make(map[string]interface{}, len(v.values))
	for k, val := range v.values {
		out[k] = val
	}
	return out
}

// StageContext is the per-node-execution context passed to every stage
// call of one behavior invocation. Scratch state a behavior needs across
// its reader, processor and writer calls goes in State, never in ambient
// storage: stage sub-calls are not guaranteed to run on the same worker.
type StageContext struct {
	// Ctx carries cancellation for blocking work inside a stage.
	Ctx context.Context

	// ExecutionId identifies the running execution.
	ExecutionId string

	// WorkflowId identifies the compiled workflow.
	WorkflowId string

	// Node is the node definition the stage executes.
	Node workflow.NodeDefinition

	// InputPorts are the node's resolved input ports in declaration order.
	InputPorts []string

	// Routing resolves output edges into buffer writes. Nil when the node
	// runs in terminal (non-routing) mode.
	Routing *routing.Context

	// Buffers is the shared buffer store, exposed so multi-input
	// behaviors can drain secondary ports during writer construction.
	Buffers *buffers.Store

	// Variables is the execution-scoped variable store.
	Variables *Variables

	// Evaluator is the expression-evaluation capability.
	Evaluator expr.Evaluator

	// Logger is the execution logger, pre-tagged with execution and node.
	Logger *zap.Logger

	// State is per-stage scratch shared by this invocation's
	// reader/processor/writer calls.
	State map[string]interface{}

	// sequence numbers Process calls in input order, available to
	// behaviors that annotate arrival order.
	sequence int
}

// PrimaryPort returns the node's primary input port: the first declared
// input port, or the conventional default when none are declared.
func (sc *StageContext) PrimaryPort() string {
	if len(sc.InputPorts) > 0 {
		return sc.InputPorts[0]
	}
	return workflow.DefaultPort
}

// DrainPort reads and clears one named buffer port for this node. The
// get+clear is atomic, so a second drain before the next write yields
// an empty batch.
func (sc *StageContext) DrainPort(port string) []*record.Record {
	return sc.Buffers.Drain(sc.ExecutionId, sc.Node.Id, port)
}

// HasInputPort reports whether the node declares the named input port.
func (sc *StageContext) HasInputPort(port string) bool {
	for _, p := range sc.InputPorts {
		if p == port {
			return true
		}
	}
	return false
}

// NextSequence returns the 0-based arrival index of the record currently
// being processed.
func (sc *StageContext) NextSequence() int {
	n := sc.sequence
	sc.sequence++
	return n
}
