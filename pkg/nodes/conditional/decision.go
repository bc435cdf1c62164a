// Package conditional implements the per-item predicate behaviors:
// Decision, Switch, JobCondition, Validate, SchemaValidator and Reject.
// They evaluate expressions through the engine's expression capability and
// annotate a route label consumed by port resolution; they never deliver
// records themselves.
package conditional

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/engine"
	enginerrors "github.com/krishnasabbu/abinitio-backend-sub000/pkg/errors"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/record"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/workflow"
)

// Node type names registered for this package.
const (
	TypeDecision        = "decision"
	TypeSwitch          = "switch"
	TypeJobCondition    = "jobCondition"
	TypeValidate        = "validate"
	TypeSchemaValidator = "schemaValidator"
	TypeReject          = "reject"
)

// Default branch port names.
const (
	DefaultTruePort  = "true"
	DefaultFalsePort = "false"
)

// DecisionConfig configures a Decision node.
type DecisionConfig struct {
	// Expression is evaluated as a boolean against each record.
	Expression string `json:"expression"`
	// TruePort and FalsePort are the route labels for the two branches.
	TruePort  string `json:"truePort"`
	FalsePort string `json:"falsePort"`
	// FailOnError aborts the stage on evaluation failure instead of
	// taking the false branch.
	FailOnError bool `json:"failOnError"`
}

// Decision evaluates a boolean expression per record and attaches the
// true or false branch label. Evaluation failure takes the false branch
// unless the node is configured to fail the job.
type Decision struct {
	engine.BaseBehavior
	cfg DecisionConfig
}

// NewDecision constructs a Decision behavior.
func NewDecision(def workflow.NodeDefinition) (engine.Behavior, error) {
	d := &Decision{BaseBehavior: engine.NewBaseBehavior(def)}
	if err := d.DecodeConfig(&d.cfg); err != nil {
		return nil, err
	}
	if d.cfg.TruePort == "" {
		d.cfg.TruePort = DefaultTruePort
	}
	if d.cfg.FalsePort == "" {
		d.cfg.FalsePort = DefaultFalsePort
	}
	return d, nil
}

// Validate requires an expression.
func (d *Decision) Validate() error {
	if d.cfg.Expression == "" {
		return enginerrors.NewConfigurationError(d.NodeId(), "expression", "expression is required")
	}
	return nil
}

// Capabilities declares a pure, parallel-safe processor.
func (d *Decision) Capabilities() engine.Capabilities {
	return engine.Capabilities{Metrics: true, FailureHandling: true, ParallelSafe: true}
}

// Process attaches the branch label for one record.
func (d *Decision) Process(sc *engine.StageContext, rec *record.Record) (*record.Record, error) {
	result, err := sc.Evaluator.EvaluateBool(d.cfg.Expression, rec.ToMap())
	if err != nil {
		if d.cfg.FailOnError {
			return nil, fmt.Errorf("decision expression: %w", err)
		}
		sc.Logger.Debug("decision expression failed, taking false branch",
			zap.String("expression", d.cfg.Expression),
			zap.Error(err))
		result = false
	}

	out := rec.Clone()
	if result {
		out.SetRouteLabel(d.cfg.TruePort)
	} else {
		out.SetRouteLabel(d.cfg.FalsePort)
	}
	return out, nil
}
