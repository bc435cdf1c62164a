package conditional

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/engine"
	enginerrors "github.com/krishnasabbu/abinitio-backend-sub000/pkg/errors"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/record"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/workflow"
)

// JobConditionConfig configures a JobCondition node.
type JobConditionConfig struct {
	// Expression is evaluated once per stage against the execution-scoped
	// variables, not against individual records.
	Expression string `json:"expression"`
	TruePort   string `json:"truePort"`
	FalsePort  string `json:"falsePort"`
	// FailOnError aborts the stage on evaluation failure instead of
	// taking the false branch.
	FailOnError bool `json:"failOnError"`
}

// JobCondition branches a whole batch on a condition over shared
// execution variables. The expression is evaluated once; every record of
// the batch takes the same branch.
type JobCondition struct {
	engine.BaseBehavior
	cfg JobConditionConfig

	// label is the branch computed once per stage invocation.
	label    string
	resolved bool
}

// NewJobCondition constructs a JobCondition behavior.
func NewJobCondition(def workflow.NodeDefinition) (engine.Behavior, error) {
	j := &JobCondition{BaseBehavior: engine.NewBaseBehavior(def)}
	if err := j.DecodeConfig(&j.cfg); err != nil {
		return nil, err
	}
	if j.cfg.TruePort == "" {
		j.cfg.TruePort = DefaultTruePort
	}
	if j.cfg.FalsePort == "" {
		j.cfg.FalsePort = DefaultFalsePort
	}
	return j, nil
}

// Validate requires an expression.
func (j *JobCondition) Validate() error {
	if j.cfg.Expression == "" {
		return enginerrors.NewConfigurationError(j.NodeId(), "expression", "expression is required")
	}
	return nil
}

// Capabilities opts into metrics. The cached branch is cross-record
// state, so the processor stays single-threaded.
func (j *JobCondition) Capabilities() engine.Capabilities {
	return engine.Capabilities{Metrics: true, FailureHandling: true}
}

// Read resets the cached branch for this invocation before delegating to
// the default reader.
func (j *JobCondition) Read(sc *engine.StageContext) ([]*record.Record, error) {
	j.resolved = false
	return j.BaseBehavior.Read(sc)
}

// Process attaches the batch-wide branch label.
func (j *JobCondition) Process(sc *engine.StageContext, rec *record.Record) (*record.Record, error) {
	if !j.resolved {
		result, err := sc.Evaluator.EvaluateBool(j.cfg.Expression, sc.Variables.Snapshot())
		if err != nil {
			if j.cfg.FailOnError {
				return nil, fmt.Errorf("job condition expression: %w", err)
			}
			sc.Logger.Debug("job condition failed to evaluate, taking false branch",
				zap.String("expression", j.cfg.Expression),
				zap.Error(err))
			result = false
		}
		if result {
			j.label = j.cfg.TruePort
		} else {
			j.label = j.cfg.FalsePort
		}
		j.resolved = true
	}

	out := rec.Clone()
	out.SetRouteLabel(j.label)
	return out, nil
}
