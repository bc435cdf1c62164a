package partition

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/engine"
	enginerrors "github.com/krishnasabbu/abinitio-backend-sub000/pkg/errors"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/record"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/workflow"
)

// UnknownBucket receives records whose field value is unparsable or
// matches no declared bucket.
const UnknownBucket = "unknown"

// RangeConfig configures a RangePartition node.
type RangeConfig struct {
	// Field is the numeric field the buckets test.
	Field string `json:"field"`
	// Buckets are declared as "name:min-max" or "name:min+" (open-ended),
	// tested in declaration order.
	Buckets []string `json:"buckets"`
}

// rangeBucket is one parsed bucket declaration.
type rangeBucket struct {
	name      string
	min       float64
	max       float64
	openEnded bool
}

func (b rangeBucket) contains(v float64) bool {
	if b.openEnded {
		return v >= b.min
	}
	return v >= b.min && v <= b.max
}

// RangePartition buckets records by a numeric field. The first bucket
// whose bounds contain the value wins, in declaration order; unparsable
// or unmatched values map to the reserved "unknown" bucket. The bucket
// name is both the partition id and the route label, and each record is
// annotated with its input arrival order.
type RangePartition struct {
	engine.BaseBehavior
	cfg     RangeConfig
	buckets []rangeBucket
}

// NewRangePartition constructs a RangePartition behavior.
func NewRangePartition(def workflow.NodeDefinition) (engine.Behavior, error) {
	p := &RangePartition{BaseBehavior: engine.NewBaseBehavior(def)}
	if err := p.DecodeConfig(&p.cfg); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate parses the bucket declarations.
func (p *RangePartition) Validate() error {
	if p.cfg.Field == "" {
		return enginerrors.NewConfigurationError(p.NodeId(), "field", "field is required")
	}
	if len(p.cfg.Buckets) == 0 {
		return enginerrors.NewConfigurationError(p.NodeId(), "buckets", "at least one bucket is required")
	}
	p.buckets = p.buckets[:0]
	for _, decl := range p.cfg.Buckets {
		bucket, err := parseBucket(decl)
		if err != nil {
			return enginerrors.NewConfigurationError(p.NodeId(), "buckets", err.Error())
		}
		if bucket.name == UnknownBucket {
			return enginerrors.NewConfigurationError(p.NodeId(), "buckets",
				fmt.Sprintf("bucket name %q is reserved", UnknownBucket))
		}
		p.buckets = append(p.buckets, bucket)
	}
	return nil
}

// Capabilities opts into metrics. Arrival-order annotation keeps the
// processor single-threaded.
func (p *RangePartition) Capabilities() engine.Capabilities {
	return engine.Capabilities{Metrics: true}
}

// Process assigns the record to its first matching bucket.
func (p *RangePartition) Process(sc *engine.StageContext, rec *record.Record) (*record.Record, error) {
	index := sc.NextSequence()

	bucket := UnknownBucket
	if value, ok := record.AsFloat(rec.Value(p.cfg.Field)); ok {
		for _, b := range p.buckets {
			if b.contains(value) {
				bucket = b.name
				break
			}
		}
	}

	out := rec.Clone()
	out.Set(record.KeyPartitionID, bucket)
	out.Set(record.KeyPartitionIndex, index)
	out.SetRouteLabel(bucket)
	return out, nil
}

// parseBucket parses "name:min-max" or "name:min+".
func parseBucket(decl string) (rangeBucket, error) {
	name, bounds, ok := strings.Cut(decl, ":")
	if !ok || name == "" || bounds == "" {
		return rangeBucket{}, fmt.Errorf("bucket %q: expected name:min-max or name:min+", decl)
	}

	if strings.HasSuffix(bounds, "+") {
		min, err := strconv.ParseFloat(strings.TrimSuffix(bounds, "+"), 64)
		if err != nil {
			return rangeBucket{}, fmt.Errorf("bucket %q: invalid lower bound: %v", decl, err)
		}
		return rangeBucket{name: name, min: min, openEnded: true}, nil
	}

	// Split on the last dash so negative lower bounds parse.
	cut := strings.LastIndex(bounds, "-")
	if cut <= 0 {
		return rangeBucket{}, fmt.Errorf("bucket %q: expected min-max bounds", decl)
	}
	min, err := strconv.ParseFloat(bounds[:cut], 64)
	if err != nil {
		return rangeBucket{}, fmt.Errorf("bucket %q: invalid lower bound: %v", decl, err)
	}
	max, err := strconv.ParseFloat(bounds[cut+1:], 64)
	if err != nil {
		return rangeBucket{}, fmt.Errorf("bucket %q: invalid upper bound: %v", decl, err)
	}
	if max < min {
		return rangeBucket{}, fmt.Errorf("bucket %q: upper bound below lower bound", decl)
	}
	return rangeBucket{name: name, min: min, max: max}, nil
}
