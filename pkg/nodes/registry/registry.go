// Package registry assembles the built-in node behaviors into an engine
// registry. Embedders extend the returned registry with their own types
// before handing it to an executor.
package registry

import (
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/engine"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/nodes/conditional"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/nodes/control"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/nodes/joinset"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/nodes/partition"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/workflow"
)

// TypePassthrough names the no-op behavior used for source and sink
// placeholder nodes.
const TypePassthrough = "passthrough"

// Passthrough reads, emits and routes records unchanged.
type Passthrough struct {
	engine.BaseBehavior
}

// NewPassthrough constructs a Passthrough behavior.
func NewPassthrough(def workflow.NodeDefinition) (engine.Behavior, error) {
	return &Passthrough{BaseBehavior: engine.NewBaseBehavior(def)}, nil
}

// Capabilities declares a parallel-safe identity processor.
func (p *Passthrough) Capabilities() engine.Capabilities {
	return engine.Capabilities{ParallelSafe: true}
}

// Builtin returns a registry populated with every built-in behavior.
func Builtin() *engine.Registry {
	r := engine.NewRegistry()

	r.MustRegister(TypePassthrough, NewPassthrough)

	r.MustRegister(joinset.TypeJoin, joinset.NewJoin)
	r.MustRegister(joinset.TypeMerge, joinset.NewMerge)
	r.MustRegister(joinset.TypeCollect, joinset.NewCollect)
	r.MustRegister(joinset.TypeIntersect, joinset.NewIntersect)
	r.MustRegister(joinset.TypeMinus, joinset.NewMinus)

	r.MustRegister(partition.TypePartition, partition.NewPartition)
	r.MustRegister(partition.TypeHashPartition, partition.NewHashPartition)
	r.MustRegister(partition.TypeRangePartition, partition.NewRangePartition)
	r.MustRegister(partition.TypeBroadcast, partition.NewBroadcast)
	r.MustRegister(partition.TypeReplicate, partition.NewReplicate)

	r.MustRegister(conditional.TypeDecision, conditional.NewDecision)
	r.MustRegister(conditional.TypeSwitch, conditional.NewSwitch)
	r.MustRegister(conditional.TypeJobCondition, conditional.NewJobCondition)
	r.MustRegister(conditional.TypeValidate, conditional.NewValidate)
	r.MustRegister(conditional.TypeSchemaValidator, conditional.NewSchemaValidator)
	r.MustRegister(conditional.TypeReject, conditional.NewReject)

	r.MustRegister(control.TypeCheckpoint, control.NewCheckpoint)
	r.MustRegister(control.TypeResume, control.NewResume)
	r.MustRegister(control.TypeThrottle, control.NewThrottle)
	r.MustRegister(control.TypeSLA, control.NewSLA)

	return r
}
