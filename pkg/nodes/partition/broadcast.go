package partition

import (
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/engine"
	enginerrors "github.com/krishnasabbu/abinitio-backend-sub000/pkg/errors"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/record"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/workflow"
)

// DefaultBroadcastCopies is used when Broadcast has no configured targets.
const DefaultBroadcastCopies = 3

// ReplicateConfig configures a Replicate node.
type ReplicateConfig struct {
	// NumberOfCopies is how many independent copies each record becomes.
	NumberOfCopies int `json:"numberOfCopies"`
}

// Replicate emits N independent copies of each input record, each
// annotated with its 1-based replica index. Copies are clones: mutating
// one never affects another.
type Replicate struct {
	engine.BaseBehavior
	cfg ReplicateConfig
}

// NewReplicate constructs a Replicate behavior.
func NewReplicate(def workflow.NodeDefinition) (engine.Behavior, error) {
	r := &Replicate{BaseBehavior: engine.NewBaseBehavior(def)}
	if err := r.DecodeConfig(&r.cfg); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate requires a positive copy count.
func (r *Replicate) Validate() error {
	if r.cfg.NumberOfCopies <= 0 {
		return enginerrors.NewConfigurationError(r.NodeId(), "numberOfCopies", "numberOfCopies must be greater than 0")
	}
	return nil
}

// Capabilities opts into metrics.
func (r *Replicate) Capabilities() engine.Capabilities {
	return engine.Capabilities{Metrics: true}
}

// Write expands the batch into replica copies before delegating to the
// default writer, so replicas follow normal route-label resolution.
func (r *Replicate) Write(sc *engine.StageContext, batch []*record.Record) error {
	expanded := make([]*record.Record, 0, len(batch)*r.cfg.NumberOfCopies)
	for _, rec := range batch {
		for i := 1; i <= r.cfg.NumberOfCopies; i++ {
			dup := rec.Clone()
			dup.Set(record.KeyReplicaIndex, i)
			expanded = append(expanded, dup)
		}
	}
	return r.BaseBehavior.Write(sc, expanded)
}

// BroadcastConfig configures a Broadcast node.
type BroadcastConfig struct {
	// TargetNodes is the annotated target list; its length is the copy
	// count. Empty falls back to DefaultBroadcastCopies.
	TargetNodes []string `json:"targetNodes"`
}

// Broadcast emits copies of each record to every declared output edge.
// Each copy carries its 1-based replica index and the configured target
// list; with no configured targets the copy count defaults to 3.
type Broadcast struct {
	engine.BaseBehavior
	cfg BroadcastConfig
}

// NewBroadcast constructs a Broadcast behavior.
func NewBroadcast(def workflow.NodeDefinition) (engine.Behavior, error) {
	b := &Broadcast{BaseBehavior: engine.NewBaseBehavior(def)}
	if err := b.DecodeConfig(&b.cfg); err != nil {
		return nil, err
	}
	return b, nil
}

// Capabilities opts into metrics.
func (b *Broadcast) Capabilities() engine.Capabilities {
	return engine.Capabilities{Metrics: true}
}

// Write expands each record into its annotated copies and delivers every
// copy to all declared edges. Broadcast does not use per-item route
// labels; fan-out is all-ports by definition.
func (b *Broadcast) Write(sc *engine.StageContext, batch []*record.Record) error {
	copies := len(b.cfg.TargetNodes)
	if copies == 0 {
		copies = DefaultBroadcastCopies
	}

	expanded := make([]*record.Record, 0, len(batch)*copies)
	for _, rec := range batch {
		for i := 1; i <= copies; i++ {
			dup := rec.Clone()
			dup.Set(record.KeyReplicaIndex, i)
			if len(b.cfg.TargetNodes) > 0 {
				dup.Set(record.KeyBroadcastTargets, append([]string(nil), b.cfg.TargetNodes...))
			}
			expanded = append(expanded, dup)
		}
	}

	if sc.Routing != nil {
		for _, rec := range expanded {
			sc.Routing.RouteToAllPorts(rec)
		}
		return nil
	}
	sc.Variables.SetRecords(engine.OutputItemsKey, expanded)
	return nil
}
