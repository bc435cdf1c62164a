package joinset

import (
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/engine"
	enginerrors "github.com/krishnasabbu/abinitio-backend-sub000/pkg/errors"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/record"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/workflow"
)

// SetOpConfig configures Intersect and Minus.
type SetOpConfig struct {
	// KeyFields build the composite membership key.
	KeyFields []string `json:"keyFields"`
	// RightPort names the secondary input port in routing mode.
	RightPort string `json:"rightPort"`
}

// setOp is the shared machinery of Intersect and Minus: the right input is
// materialized into a key set, then left records are emitted or withheld
// by membership, de-duplicated by key with first-occurrence-wins semantics
// preserving left-side order.
type setOp struct {
	engine.BaseBehavior
	cfg SetOpConfig

	// keep reports whether a left record whose key is in the right set is
	// emitted (Intersect) or withheld (Minus).
	keepOnHit bool

	rightSet map[string]bool
	emitted  map[string]bool
}

func newSetOp(def workflow.NodeDefinition, keepOnHit bool) (*setOp, error) {
	op := &setOp{BaseBehavior: engine.NewBaseBehavior(def), keepOnHit: keepOnHit}
	if err := op.DecodeConfig(&op.cfg); err != nil {
		return nil, err
	}
	if op.cfg.RightPort == "" {
		op.cfg.RightPort = DefaultRightPort
	}
	return op, nil
}

// Validate requires at least one key field.
func (op *setOp) Validate() error {
	if len(op.cfg.KeyFields) == 0 {
		return enginerrors.NewConfigurationError(op.NodeId(), "keyFields", "at least one key field is required")
	}
	return nil
}

// Capabilities opts into metrics. Membership and dedup state are shared
// across records, so the processor stays single-threaded.
func (op *setOp) Capabilities() engine.Capabilities {
	return engine.Capabilities{Metrics: true}
}

// Read materializes the right input into a membership set and returns the
// left batch.
func (op *setOp) Read(sc *engine.StageContext) ([]*record.Record, error) {
	var left, right []*record.Record
	if len(sc.InputPorts) > 0 {
		left = sc.DrainPort(sc.PrimaryPort())
		right = sc.DrainPort(op.cfg.RightPort)
	} else {
		left = sc.Variables.Records(LeftInputItemsKey)
		right = sc.Variables.Records(RightInputItemsKey)
	}

	op.rightSet = make(map[string]bool, len(right))
	op.emitted = make(map[string]bool)
	for _, rec := range right {
		op.rightSet[record.CompositeKey(rec, op.cfg.KeyFields)] = true
	}
	return left, nil
}

// Process emits the first left occurrence of each qualifying key and
// drops everything else.
func (op *setOp) Process(sc *engine.StageContext, rec *record.Record) (*record.Record, error) {
	key := record.CompositeKey(rec, op.cfg.KeyFields)
	if op.emitted[key] {
		return nil, nil
	}
	if op.rightSet[key] != op.keepOnHit {
		// Dedup applies to withheld keys too: later duplicates of a
		// non-qualifying key must not qualify.
		op.emitted[key] = true
		return nil, nil
	}
	op.emitted[key] = true
	return rec, nil
}

// Intersect emits left records whose composite key exists in the right
// input, first occurrence only.
type Intersect struct {
	*setOp
}

// NewIntersect constructs an Intersect behavior.
func NewIntersect(def workflow.NodeDefinition) (engine.Behavior, error) {
	op, err := newSetOp(def, true)
	if err != nil {
		return nil, err
	}
	return &Intersect{setOp: op}, nil
}

// Minus emits left records whose composite key does not exist in the
// right input, first occurrence only.
type Minus struct {
	*setOp
}

// NewMinus constructs a Minus behavior.
func NewMinus(def workflow.NodeDefinition) (engine.Behavior, error) {
	op, err := newSetOp(def, false)
	if err != nil {
		return nil, err
	}
	return &Minus{setOp: op}, nil
}
