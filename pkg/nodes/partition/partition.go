// Package partition implements the one-to-many distribution behaviors:
// Partition, HashPartition, RangePartition, Broadcast and Replicate.
// Partitioners annotate each record with a partition id and its input
// arrival order; an ordered Collect downstream can use the arrival order
// to restore sequence after the partitions are processed independently.
package partition

import (
	"fmt"
	"strconv"

	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/engine"
	enginerrors "github.com/krishnasabbu/abinitio-backend-sub000/pkg/errors"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/record"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/workflow"
)

// Node type names registered for this package.
const (
	TypePartition      = "partition"
	TypeHashPartition  = "hashPartition"
	TypeRangePartition = "rangePartition"
	TypeBroadcast      = "broadcast"
	TypeReplicate      = "replicate"
)

// Partition modes.
const (
	ModeRoundRobin = "roundRobin"
	ModeHash       = "hash"
)

// PartitionConfig configures Partition and HashPartition.
type PartitionConfig struct {
	// Mode is roundRobin or hash. HashPartition forces hash.
	Mode string `json:"mode"`
	// Partitions is the partition count.
	Partitions int `json:"partitions"`
	// KeyFields build the composite hash key in hash mode.
	KeyFields []string `json:"keyFields"`
}

// Partition assigns each record a partition id: round-robin by arrival
// order, or a stable hash of the composite key-field string taken modulo
// the partition count. The route label is the partition id in decimal, so
// output edges bind one source port per partition.
type Partition struct {
	engine.BaseBehavior
	cfg      PartitionConfig
	hashOnly bool
}

// NewPartition constructs a Partition behavior.
func NewPartition(def workflow.NodeDefinition) (engine.Behavior, error) {
	return newPartition(def, false)
}

// NewHashPartition constructs a HashPartition behavior.
func NewHashPartition(def workflow.NodeDefinition) (engine.Behavior, error) {
	return newPartition(def, true)
}

func newPartition(def workflow.NodeDefinition, hashOnly bool) (engine.Behavior, error) {
	p := &Partition{BaseBehavior: engine.NewBaseBehavior(def), hashOnly: hashOnly}
	if err := p.DecodeConfig(&p.cfg); err != nil {
		return nil, err
	}
	if hashOnly {
		p.cfg.Mode = ModeHash
	} else if p.cfg.Mode == "" {
		p.cfg.Mode = ModeRoundRobin
	}
	return p, nil
}

// Validate checks mode, partition count and hash keys.
func (p *Partition) Validate() error {
	switch p.cfg.Mode {
	case ModeRoundRobin, ModeHash:
	default:
		return enginerrors.NewConfigurationError(p.NodeId(), "mode",
			fmt.Sprintf("unknown partition mode %q", p.cfg.Mode))
	}
	if p.cfg.Partitions <= 0 {
		return enginerrors.NewConfigurationError(p.NodeId(), "partitions", "partitions must be greater than 0")
	}
	if p.cfg.Mode == ModeHash && len(p.cfg.KeyFields) == 0 {
		return enginerrors.NewConfigurationError(p.NodeId(), "keyFields", "hash partitioning requires key fields")
	}
	return nil
}

// Capabilities opts into metrics. Round-robin assignment depends on
// arrival order, so the processor stays single-threaded.
func (p *Partition) Capabilities() engine.Capabilities {
	return engine.Capabilities{Metrics: true}
}

// Process annotates the partition assignment and arrival order, and sets
// the route label to the partition id.
func (p *Partition) Process(sc *engine.StageContext, rec *record.Record) (*record.Record, error) {
	index := sc.NextSequence()

	var id int
	switch p.cfg.Mode {
	case ModeHash:
		id = hashPartitionId(record.CompositeKey(rec, p.cfg.KeyFields), p.cfg.Partitions)
	default:
		id = index % p.cfg.Partitions
	}

	out := rec.Clone()
	out.Set(record.KeyPartitionID, id)
	out.Set(record.KeyPartitionIndex, index)
	out.SetRouteLabel(strconv.Itoa(id))
	return out, nil
}

// hashPartitionId maps a composite key string to a partition. The hash is
// the 31-based signed 32-bit string hash; the absolute value avoids a
// negative result before the modulo. Kept for compatibility with existing
// partition assignments.
func hashPartitionId(key string, partitions int) int {
	var h int32
	for _, r := range key {
		h = 31*h + int32(r)
	}
	if h < 0 {
		h = -h
	}
	if h < 0 { // math.MinInt32 negates to itself
		h = 0
	}
	return int(h) % partitions
}
