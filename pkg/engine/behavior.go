// Package engine implements the staged node-execution runtime: the
// three-stage node contract, the buffered reader/writer adapters, the
// behavior registry and the bulk-synchronous plan executor.
package engine

import (
	"encoding/json"
	"fmt"

	"github.com/mitchellh/mapstructure"

	enginerrors "github.com/krishnasabbu/abinitio-backend-sub000/pkg/errors"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/record"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/workflow"
)

// Behavior is the contract every node type implements. A stage invocation
// calls Read once, Process per record, then Write once with the full
// processed batch. Validate is called for every node before any stage of
// the plan executes.
type Behavior interface {
	// Validate checks the node configuration. Failures are configuration
	// errors and prevent the execution from starting.
	Validate() error

	// Read produces the bounded input batch for this stage invocation.
	Read(sc *StageContext) ([]*record.Record, error)

	// Process transforms one record. Returning (nil, nil) drops the record
	// before it reaches the writer. Row-level errors are classified via
	// the errors package; any other error aborts the stage.
	Process(sc *StageContext, rec *record.Record) (*record.Record, error)

	// Write receives the full processed batch. In routing mode it resolves
	// each record's destination; in terminal mode it stores the batch as
	// an execution variable.
	Write(sc *StageContext, batch []*record.Record) error

	// Capabilities declares what the engine may do with this behavior.
	Capabilities() Capabilities
}

// Capabilities are the engine-facing flags a behavior declares.
type Capabilities struct {
	// Metrics opts the node into per-stage metrics collection.
	Metrics bool
	// FailureHandling declares that node-level failures may be skipped
	// per config instead of aborting the whole plan.
	FailureHandling bool
	// ParallelSafe declares the processor is a pure function of the
	// record, so the engine may fan the processor stage out across
	// workers. Behaviors that build cross-record state (join and
	// partition index builders) must leave this false.
	ParallelSafe bool
}

// FailureMode controls how a stage-level failure propagates.
type FailureMode string

const (
	// FailureAbort stops the remaining plan. Default.
	FailureAbort FailureMode = "abort"
	// FailureSkip records the node as failed and continues the plan.
	FailureSkip FailureMode = "skip"
)

// Constructor builds a behavior from a node definition. Config decoding
// happens here; validation happens in Validate.
type Constructor func(def workflow.NodeDefinition) (Behavior, error)

// commonConfig carries the failure-policy keys every node honors.
type commonConfig struct {
	OnFailure   string `json:"onFailure"`
	StopOnError *bool  `json:"stopOnError"`
}

// BaseBehavior supplies the default reader, identity processor, routing
// writer and config decoding. Node behaviors embed it and override what
// they need.
type BaseBehavior struct {
	def    workflow.NodeDefinition
	common commonConfig
}

// NewBaseBehavior creates the embedded base for a node definition.
func NewBaseBehavior(def workflow.NodeDefinition) BaseBehavior {
	b := BaseBehavior{def: def}
	_ = b.DecodeConfig(&b.common)
	return b
}

// NodeId returns the node's id.
func (b *BaseBehavior) NodeId() string { return b.def.Id }

// NodeType returns the node's type.
func (b *BaseBehavior) NodeType() string { return b.def.Type }

// Definition returns the node definition.
func (b *BaseBehavior) Definition() workflow.NodeDefinition { return b.def }

// DecodeConfig decodes the node's raw JSON config document into a typed
// struct. Field names match json tags; numeric widening is permitted.
func (b *BaseBehavior) DecodeConfig(out interface{}) error {
	raw := map[string]interface{}{}
	if len(b.def.Config) > 0 {
		if err := json.Unmarshal(b.def.Config, &raw); err != nil {
			return enginerrors.NewConfigurationError(b.def.Id, "", fmt.Sprintf("config is not a JSON document: %v", err))
		}
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return enginerrors.NewConfigurationError(b.def.Id, "", err.Error())
	}
	if err := dec.Decode(raw); err != nil {
		return enginerrors.NewConfigurationError(b.def.Id, "", err.Error())
	}
	return nil
}

// ConfigMap returns the raw config document as a map.
func (b *BaseBehavior) ConfigMap() map[string]interface{} {
	raw := map[string]interface{}{}
	if len(b.def.Config) > 0 {
		_ = json.Unmarshal(b.def.Config, &raw)
	}
	return raw
}

// Validate accepts any configuration by default.
func (b *BaseBehavior) Validate() error { return nil }

// Capabilities defaults to no metrics, no failure handling, serial
// processing.
func (b *BaseBehavior) Capabilities() Capabilities { return Capabilities{} }

// StopOnRowError reports whether a row-level error should abort the stage
// instead of dropping the offending record. Controlled by the node's
// stopOnError / onFailure config keys.
func (b *BaseBehavior) StopOnRowError() bool {
	if b.common.StopOnError != nil {
		return *b.common.StopOnError
	}
	return b.common.OnFailure == "fail"
}

// StageFailureMode reports how a fatal stage error propagates for this
// node. Skipping requires the behavior to declare FailureHandling.
func (b *BaseBehavior) StageFailureMode() FailureMode {
	if b.common.OnFailure == string(FailureSkip) {
		return FailureSkip
	}
	return FailureAbort
}

// Read drains the node's primary input port in routing mode, or reads the
// direct-mode output variable when the node has no upstream edges.
func (b *BaseBehavior) Read(sc *StageContext) ([]*record.Record, error) {
	if len(sc.InputPorts) > 0 {
		return sc.DrainPort(sc.PrimaryPort()), nil
	}
	return sc.Variables.Records(OutputItemsKey), nil
}

// Process is the identity transform.
func (b *BaseBehavior) Process(sc *StageContext, rec *record.Record) (*record.Record, error) {
	return rec, nil
}

// Write routes each record by its route label when the node declares
// output edges, and otherwise stores the batch as the execution's output
// variable for the next direct-mode reader.
func (b *BaseBehavior) Write(sc *StageContext, batch []*record.Record) error {
	if sc.Routing != nil {
		for _, rec := range batch {
			sc.Routing.RouteRecord(rec, rec.RouteLabel())
		}
		return nil
	}
	sc.Variables.SetRecords(OutputItemsKey, batch)
	return nil
}
