package conditional

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/engine"
	enginerrors "github.com/krishnasabbu/abinitio-backend-sub000/pkg/errors"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/record"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/workflow"
)

// Port and variable names used by the validation behaviors.
const (
	DefaultValidPort   = "out"
	DefaultInvalidPort = "invalid"
	ValidItemsKey      = "validItems"
	InvalidItemsKey    = "invalidItems"
)

// ValidationRule is one check applied to each record.
type ValidationRule struct {
	// Field names the field under test.
	Field string `json:"field"`
	// Required fails the rule when the field is absent or nil.
	Required bool `json:"required"`
	// Expression, when set, must evaluate true against the record.
	Expression string `json:"expression"`
	// Message overrides the recorded failure text.
	Message string `json:"message"`
}

// ValidateConfig configures a Validate node.
type ValidateConfig struct {
	Rules       []ValidationRule `json:"rules"`
	ValidPort   string           `json:"validPort"`
	InvalidPort string           `json:"invalidPort"`
}

// Validator runs each record against the configured rules. Failing
// records get their failures recorded under the reserved validation
// metadata key and are routed to the invalid port; passing records go to
// the valid port. In terminal mode the batch is split into the validItems
// and invalidItems variables instead. Records are never dropped here.
type Validator struct {
	engine.BaseBehavior
	cfg ValidateConfig
}

// NewValidate constructs a Validate behavior.
func NewValidate(def workflow.NodeDefinition) (engine.Behavior, error) {
	v := &Validator{BaseBehavior: engine.NewBaseBehavior(def)}
	if err := v.DecodeConfig(&v.cfg); err != nil {
		return nil, err
	}
	if v.cfg.ValidPort == "" {
		v.cfg.ValidPort = DefaultValidPort
	}
	if v.cfg.InvalidPort == "" {
		v.cfg.InvalidPort = DefaultInvalidPort
	}
	return v, nil
}

// Validate checks each rule names a field or an expression.
func (v *Validator) Validate() error {
	for i, rule := range v.cfg.Rules {
		if rule.Field == "" && rule.Expression == "" {
			return enginerrors.NewConfigurationError(v.NodeId(), fmt.Sprintf("rules[%d]", i),
				"rule needs a field or an expression")
		}
	}
	return nil
}

// Capabilities declares metrics and a parallel-safe processor.
func (v *Validator) Capabilities() engine.Capabilities {
	return engine.Capabilities{Metrics: true, FailureHandling: true, ParallelSafe: true}
}

// Process records rule failures and labels the record's branch.
func (v *Validator) Process(sc *engine.StageContext, rec *record.Record) (*record.Record, error) {
	var failures []string
	scope := rec.ToMap()

	for _, rule := range v.cfg.Rules {
		if rule.Required {
			if value, ok := rec.Get(rule.Field); !ok || value == nil {
				failures = append(failures, failureText(rule, fmt.Sprintf("field %q is required", rule.Field)))
				continue
			}
		}
		if rule.Expression != "" {
			ok, err := sc.Evaluator.EvaluateBool(rule.Expression, scope)
			if err != nil {
				sc.Logger.Debug("validation expression failed to evaluate, treating as rule failure",
					zap.String("expression", rule.Expression),
					zap.Error(err))
				ok = false
			}
			if !ok {
				failures = append(failures, failureText(rule, fmt.Sprintf("rule %q failed", rule.Expression)))
			}
		}
	}

	out := rec.Clone()
	if len(failures) > 0 {
		out.Set(record.KeyValidationErrors, failures)
		out.SetRouteLabel(v.cfg.InvalidPort)
	} else {
		out.SetRouteLabel(v.cfg.ValidPort)
	}
	return out, nil
}

// Write splits the batch into valid/invalid variables in terminal mode;
// in routing mode the branch labels drive normal port resolution.
func (v *Validator) Write(sc *engine.StageContext, batch []*record.Record) error {
	if sc.Routing != nil {
		return v.BaseBehavior.Write(sc, batch)
	}

	var valid, invalid []*record.Record
	for _, rec := range batch {
		if rec.Has(record.KeyValidationErrors) {
			invalid = append(invalid, rec)
			continue
		}
		valid = append(valid, rec)
	}
	sc.Variables.SetRecords(ValidItemsKey, valid)
	sc.Variables.SetRecords(InvalidItemsKey, invalid)
	sc.Variables.SetRecords(engine.OutputItemsKey, valid)
	return nil
}

func failureText(rule ValidationRule, fallback string) string {
	if rule.Message != "" {
		return rule.Message
	}
	return fallback
}
