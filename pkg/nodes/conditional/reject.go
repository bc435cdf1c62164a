package conditional

import (
	"time"

	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/engine"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/record"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/workflow"
)

// RejectConfig configures a Reject node.
type RejectConfig struct {
	// Reason is recorded on every record that passes through.
	Reason string `json:"reason"`
}

// Reject stamps each record as rejected with the configured reason, the
// rejection time and the rejecting node. It does not filter: the
// annotated records continue downstream, typically into a dead-letter
// sink wired on the node's outgoing edge.
type Reject struct {
	engine.BaseBehavior
	cfg RejectConfig

	// now is swapped in tests for a fixed clock.
	now func() time.Time
}

// NewReject constructs a Reject behavior.
func NewReject(def workflow.NodeDefinition) (engine.Behavior, error) {
	r := &Reject{BaseBehavior: engine.NewBaseBehavior(def), now: time.Now}
	if err := r.DecodeConfig(&r.cfg); err != nil {
		return nil, err
	}
	return r, nil
}

// Capabilities declares metrics and a parallel-safe processor.
func (r *Reject) Capabilities() engine.Capabilities {
	return engine.Capabilities{Metrics: true, ParallelSafe: true}
}

// Process annotates the rejection metadata on a copy of the record.
func (r *Reject) Process(sc *engine.StageContext, rec *record.Record) (*record.Record, error) {
	reason := r.cfg.Reason
	if reason == "" {
		reason = "rejected"
	}
	out := rec.Clone()
	out.Set(record.KeyRejected, true)
	out.Set(record.KeyRejectionReason, reason)
	out.Set(record.KeyRejectedAt, r.now().UTC().Format(time.RFC3339))
	out.Set(record.KeyRejectionOrigin, r.NodeId())
	return out, nil
}
