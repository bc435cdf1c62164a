// Package joinset implements the multi-input keyed-equality dataflow
// operators: Join, Merge, Collect, Intersect and Minus. All of them index
// one input by a composite key built from configured key fields; the key
// is the pipe-joined string form of the field values with a "null" literal
// for absent fields. That stringification is collision-prone when values
// contain "|" or the literal text "null"; it is kept as-is for
// compatibility with existing workflows.
package joinset

import (
	"fmt"

	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/engine"
	enginerrors "github.com/krishnasabbu/abinitio-backend-sub000/pkg/errors"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/record"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/workflow"
)

// Node type names registered for this package.
const (
	TypeJoin      = "join"
	TypeMerge     = "merge"
	TypeCollect   = "collect"
	TypeIntersect = "intersect"
	TypeMinus     = "minus"
)

// Variable names used by direct-mode multi-input readers.
const (
	LeftInputItemsKey  = "leftInputItems"
	RightInputItemsKey = "rightInputItems"
)

// DefaultRightPort is the conventional secondary input port.
const DefaultRightPort = "right"

// Join modes.
const (
	JoinInner = "inner"
	JoinLeft  = "left"
	JoinRight = "right"
	JoinFull  = "full"
)

// rightPrefix is prepended to right-side field names that collide with an
// existing left field instead of overwriting it.
const rightPrefix = "right_"

// JoinConfig configures a Join node.
type JoinConfig struct {
	// JoinType is one of inner, left, right, full.
	JoinType string `json:"joinType"`
	// LeftKeys are the lookup key fields on the primary input. Defaults
	// to RightKeys.
	LeftKeys []string `json:"leftKeys"`
	// RightKeys are the index key fields on the secondary input. Defaults
	// to LeftKeys.
	RightKeys []string `json:"rightKeys"`
	// RightPort names the secondary input port in routing mode.
	RightPort string `json:"rightPort"`
}

// Join merges the primary (left) input against an index built from the
// secondary (right) input. Matching right fields are merged into the left
// record; collisions are inserted under a right_-prefixed key. Unmatched
// left records are emitted null-padded for left/full modes, and unmatched
// right records are appended after the left pass for right/full modes.
type Join struct {
	engine.BaseBehavior
	cfg JoinConfig

	// Per-invocation state. Join runs its processor single-threaded, so
	// plain fields are fine.
	index     map[string][]*record.Record
	rightSeen []string
	matched   map[string]bool
	output    []*record.Record
}

// NewJoin constructs a Join behavior.
func NewJoin(def workflow.NodeDefinition) (engine.Behavior, error) {
	j := &Join{BaseBehavior: engine.NewBaseBehavior(def)}
	if err := j.DecodeConfig(&j.cfg); err != nil {
		return nil, err
	}
	if j.cfg.RightPort == "" {
		j.cfg.RightPort = DefaultRightPort
	}
	if len(j.cfg.LeftKeys) == 0 {
		j.cfg.LeftKeys = j.cfg.RightKeys
	}
	if len(j.cfg.RightKeys) == 0 {
		j.cfg.RightKeys = j.cfg.LeftKeys
	}
	return j, nil
}

// Validate checks the join mode and key configuration.
func (j *Join) Validate() error {
	switch j.cfg.JoinType {
	case JoinInner, JoinLeft, JoinRight, JoinFull:
	case "":
		return enginerrors.NewConfigurationError(j.NodeId(), "joinType", "joinType is required")
	default:
		return enginerrors.NewConfigurationError(j.NodeId(), "joinType",
			fmt.Sprintf("unknown join type %q", j.cfg.JoinType))
	}
	if len(j.cfg.RightKeys) == 0 {
		return enginerrors.NewConfigurationError(j.NodeId(), "rightKeys", "at least one right key field is required")
	}
	if len(j.cfg.LeftKeys) != len(j.cfg.RightKeys) {
		return enginerrors.NewConfigurationError(j.NodeId(), "leftKeys",
			"leftKeys and rightKeys must have the same length")
	}
	return nil
}

// Capabilities opts into metrics. The processor consults the shared join
// index and must stay single-threaded.
func (j *Join) Capabilities() engine.Capabilities {
	return engine.Capabilities{Metrics: true, FailureHandling: true}
}

// Read materializes the secondary input fully and builds the join index
// before the primary batch is returned for processing.
func (j *Join) Read(sc *engine.StageContext) ([]*record.Record, error) {
	var left, right []*record.Record
	if len(sc.InputPorts) > 0 {
		left = sc.DrainPort(sc.PrimaryPort())
		right = sc.DrainPort(j.cfg.RightPort)
	} else {
		left = sc.Variables.Records(LeftInputItemsKey)
		right = sc.Variables.Records(RightInputItemsKey)
	}

	j.index = make(map[string][]*record.Record)
	j.rightSeen = j.rightSeen[:0]
	j.matched = make(map[string]bool)
	j.output = j.output[:0]
	for _, rec := range right {
		key := record.CompositeKey(rec, j.cfg.RightKeys)
		if _, ok := j.index[key]; !ok {
			j.rightSeen = append(j.rightSeen, key)
		}
		j.index[key] = append(j.index[key], rec)
	}
	return left, nil
}

// Process joins one left record against the index. Expanded results are
// accumulated stage-locally because one left record can match several
// right records; the record itself passes through as a presence marker.
func (j *Join) Process(sc *engine.StageContext, rec *record.Record) (*record.Record, error) {
	key := record.CompositeKey(rec, j.cfg.LeftKeys)
	matches, hit := j.index[key]
	if hit {
		j.matched[key] = true
		for _, right := range matches {
			j.output = append(j.output, mergeRecords(rec, right, j.cfg.RightKeys))
		}
		return rec, nil
	}

	if j.cfg.JoinType == JoinLeft || j.cfg.JoinType == JoinFull {
		padded := rec.Clone()
		for _, field := range j.cfg.RightKeys {
			if !padded.Has(field) {
				padded.Set(field, nil)
			}
		}
		j.output = append(j.output, padded)
	}
	return rec, nil
}

// Write emits the joined batch: the accumulated left-pass output, then
// for right/full modes the unmatched right records with left key fields
// null-padded, in right arrival order.
func (j *Join) Write(sc *engine.StageContext, batch []*record.Record) error {
	joined := append([]*record.Record(nil), j.output...)

	if j.cfg.JoinType == JoinRight || j.cfg.JoinType == JoinFull {
		for _, key := range j.rightSeen {
			if j.matched[key] {
				continue
			}
			for _, rec := range j.index[key] {
				padded := rec.Clone()
				for _, field := range j.cfg.LeftKeys {
					if !padded.Has(field) {
						padded.Set(field, nil)
					}
				}
				joined = append(joined, padded)
			}
		}
	}

	return j.BaseBehavior.Write(sc, joined)
}

// mergeRecords copies right fields into a clone of the left record. The
// right join-key fields are skipped (they equal the left keys on a hit);
// any other colliding field name is kept under a right_-prefixed key so
// the left value is never overwritten.
func mergeRecords(left, right *record.Record, rightKeys []string) *record.Record {
	skip := make(map[string]bool, len(rightKeys))
	for _, k := range rightKeys {
		skip[k] = true
	}
	out := left.Clone()
	for _, key := range right.Keys() {
		if skip[key] {
			continue
		}
		value := right.Value(key)
		if out.Has(key) {
			out.Set(rightPrefix+key, value)
			continue
		}
		out.Set(key, value)
	}
	return out
}
