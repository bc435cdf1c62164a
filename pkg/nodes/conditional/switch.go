package conditional

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/engine"
	enginerrors "github.com/krishnasabbu/abinitio-backend-sub000/pkg/errors"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/record"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/workflow"
)

// SwitchCase is one branch of a Switch node.
type SwitchCase struct {
	// Expression is evaluated as a boolean against the record.
	Expression string `json:"expression"`
	// Port is the route label attached when the expression holds.
	Port string `json:"port"`
}

// SwitchConfig configures a Switch node.
type SwitchConfig struct {
	// Cases are tested in declaration order; the first match wins.
	Cases []SwitchCase `json:"cases"`
	// DefaultPort is the label attached when no case matches. Empty
	// leaves the record unlabelled, which routes it to the default edge.
	DefaultPort string `json:"defaultPort"`
}

// Switch is the multi-branch form of Decision: each record takes the
// first case whose expression holds. An evaluation failure on a case is
// treated as a non-match, not an abort.
type Switch struct {
	engine.BaseBehavior
	cfg SwitchConfig
}

// NewSwitch constructs a Switch behavior.
func NewSwitch(def workflow.NodeDefinition) (engine.Behavior, error) {
	s := &Switch{BaseBehavior: engine.NewBaseBehavior(def)}
	if err := s.DecodeConfig(&s.cfg); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate requires at least one complete case.
func (s *Switch) Validate() error {
	if len(s.cfg.Cases) == 0 {
		return enginerrors.NewConfigurationError(s.NodeId(), "cases", "at least one case is required")
	}
	for i, c := range s.cfg.Cases {
		if c.Expression == "" {
			return enginerrors.NewConfigurationError(s.NodeId(), fmt.Sprintf("cases[%d].expression", i), "expression is required")
		}
		if c.Port == "" {
			return enginerrors.NewConfigurationError(s.NodeId(), fmt.Sprintf("cases[%d].port", i), "port is required")
		}
	}
	return nil
}

// Capabilities declares a pure, parallel-safe processor.
func (s *Switch) Capabilities() engine.Capabilities {
	return engine.Capabilities{Metrics: true, FailureHandling: true, ParallelSafe: true}
}

// Process attaches the first matching case's port label.
func (s *Switch) Process(sc *engine.StageContext, rec *record.Record) (*record.Record, error) {
	scope := rec.ToMap()
	out := rec.Clone()
	for _, c := range s.cfg.Cases {
		match, err := sc.Evaluator.EvaluateBool(c.Expression, scope)
		if err != nil {
			sc.Logger.Debug("switch case failed to evaluate, treating as non-match",
				zap.String("expression", c.Expression),
				zap.Error(err))
			continue
		}
		if match {
			out.SetRouteLabel(c.Port)
			return out, nil
		}
	}
	if s.cfg.DefaultPort != "" {
		out.SetRouteLabel(s.cfg.DefaultPort)
	}
	return out, nil
}
