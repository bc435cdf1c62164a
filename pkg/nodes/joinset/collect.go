package joinset

import (
	"fmt"
	"sort"

	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/engine"
	enginerrors "github.com/krishnasabbu/abinitio-backend-sub000/pkg/errors"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/record"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/workflow"
)

// Collect modes.
const (
	CollectConcat  = "concat"
	CollectOrdered = "ordered"
)

// maxCollectPorts bounds the fan-in of a Collect node.
const maxCollectPorts = 3

// CollectConfig configures a Collect node.
type CollectConfig struct {
	// CollectMode is concat (arrival order) or ordered (restore sequence
	// by partition metadata).
	CollectMode string `json:"collectMode"`
	// StripMetadata removes all reserved keys after ordering.
	StripMetadata bool `json:"stripMetadata"`
}

// Collect unions up to three input ports. Ordered mode sorts by
// _partitionIndex ascending then _sequence ascending, which restores the
// input sequence of an upstream range partition; records with missing or
// non-numeric ordering metadata compare equal, so the sort is a stable
// no-op for them rather than an error.
type Collect struct {
	engine.BaseBehavior
	cfg CollectConfig
}

// NewCollect constructs a Collect behavior.
func NewCollect(def workflow.NodeDefinition) (engine.Behavior, error) {
	c := &Collect{BaseBehavior: engine.NewBaseBehavior(def)}
	if err := c.DecodeConfig(&c.cfg); err != nil {
		return nil, err
	}
	if c.cfg.CollectMode == "" {
		c.cfg.CollectMode = CollectConcat
	}
	return c, nil
}

// Validate checks the collect mode.
func (c *Collect) Validate() error {
	switch c.cfg.CollectMode {
	case CollectConcat, CollectOrdered:
		return nil
	default:
		return enginerrors.NewConfigurationError(c.NodeId(), "collectMode",
			fmt.Sprintf("unknown collect mode %q", c.cfg.CollectMode))
	}
}

// Capabilities opts into metrics.
func (c *Collect) Capabilities() engine.Capabilities {
	return engine.Capabilities{Metrics: true}
}

// Read drains up to three input ports in declaration order.
func (c *Collect) Read(sc *engine.StageContext) ([]*record.Record, error) {
	if len(sc.InputPorts) > maxCollectPorts {
		return nil, enginerrors.NewConfigurationError(c.NodeId(), "",
			fmt.Sprintf("collect supports at most %d input ports, got %d", maxCollectPorts, len(sc.InputPorts)))
	}
	if len(sc.InputPorts) == 0 {
		return sc.Variables.Records(engine.OutputItemsKey), nil
	}
	var union []*record.Record
	for _, port := range sc.InputPorts {
		union = append(union, sc.DrainPort(port)...)
	}
	return union, nil
}

// Write orders the full batch when configured, optionally strips reserved
// metadata, then delegates to the default writer.
func (c *Collect) Write(sc *engine.StageContext, batch []*record.Record) error {
	if c.cfg.CollectMode == CollectOrdered {
		sort.SliceStable(batch, func(i, j int) bool {
			return orderingLess(batch[i], batch[j])
		})
	}
	if c.cfg.StripMetadata {
		for _, rec := range batch {
			rec.StripMetadata()
		}
	}
	return c.BaseBehavior.Write(sc, batch)
}

// orderingLess compares by _partitionIndex then _sequence. A missing or
// non-numeric value on either side makes that component compare equal.
func orderingLess(a, b *record.Record) bool {
	ai, aok := record.AsFloat(a.Value(record.KeyPartitionIndex))
	bi, bok := record.AsFloat(b.Value(record.KeyPartitionIndex))
	if aok && bok && ai != bi {
		return ai < bi
	}
	as, aok := record.AsFloat(a.Value(record.KeySequence))
	bs, bok := record.AsFloat(b.Value(record.KeySequence))
	if aok && bok {
		return as < bs
	}
	return false
}
