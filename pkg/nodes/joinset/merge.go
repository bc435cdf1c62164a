package joinset

import (
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/engine"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/record"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/workflow"
)

// Merge is the pure union of two or three named input ports. Output order
// is port arrival order: the full contents of the first declared port,
// then the second, then the third. No de-duplication.
type Merge struct {
	engine.BaseBehavior
}

// NewMerge constructs a Merge behavior.
func NewMerge(def workflow.NodeDefinition) (engine.Behavior, error) {
	return &Merge{BaseBehavior: engine.NewBaseBehavior(def)}, nil
}

// Capabilities opts into metrics; the processor is the identity and is
// safe to parallelize.
func (m *Merge) Capabilities() engine.Capabilities {
	return engine.Capabilities{Metrics: true, ParallelSafe: true}
}

// Read drains every declared input port in declaration order and
// concatenates the batches.
func (m *Merge) Read(sc *engine.StageContext) ([]*record.Record, error) {
	if len(sc.InputPorts) == 0 {
		return sc.Variables.Records(engine.OutputItemsKey), nil
	}
	var union []*record.Record
	for _, port := range sc.InputPorts {
		union = append(union, sc.DrainPort(port)...)
	}
	return union, nil
}
