package conditional

import (
	"fmt"
	"strings"

	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/engine"
	enginerrors "github.com/krishnasabbu/abinitio-backend-sub000/pkg/errors"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/record"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/workflow"
)

// SchemaField describes one expected field of the incoming records.
type SchemaField struct {
	Name string `json:"name"`
	// Type, when set, constrains the field's value kind. One of
	// "string", "number", "boolean", "object", "array". Empty accepts
	// any present value.
	Type string `json:"type"`
	// Optional fields may be absent without failing the record.
	Optional bool `json:"optional"`
}

// SchemaValidatorConfig configures a SchemaValidator node.
type SchemaValidatorConfig struct {
	Fields      []SchemaField `json:"fields"`
	ValidPort   string        `json:"validPort"`
	InvalidPort string        `json:"invalidPort"`
}

// SchemaValidator checks each record's shape against a declared field
// list. Records that miss a required field or carry a wrong-typed value
// get the failure summary written under the reserved schema-error key and
// take the invalid branch. Like Validator it never drops records.
type SchemaValidator struct {
	engine.BaseBehavior
	cfg SchemaValidatorConfig
}

// NewSchemaValidator constructs a SchemaValidator behavior.
func NewSchemaValidator(def workflow.NodeDefinition) (engine.Behavior, error) {
	s := &SchemaValidator{BaseBehavior: engine.NewBaseBehavior(def)}
	if err := s.DecodeConfig(&s.cfg); err != nil {
		return nil, err
	}
	if s.cfg.ValidPort == "" {
		s.cfg.ValidPort = DefaultValidPort
	}
	if s.cfg.InvalidPort == "" {
		s.cfg.InvalidPort = DefaultInvalidPort
	}
	return s, nil
}

// Validate requires at least one named field with a known type.
func (s *SchemaValidator) Validate() error {
	if len(s.cfg.Fields) == 0 {
		return enginerrors.NewConfigurationError(s.NodeId(), "fields", "at least one expected field is required")
	}
	for i, f := range s.cfg.Fields {
		if f.Name == "" {
			return enginerrors.NewConfigurationError(s.NodeId(), fmt.Sprintf("fields[%d].name", i), "field name is required")
		}
		switch f.Type {
		case "", "string", "number", "boolean", "object", "array":
		default:
			return enginerrors.NewConfigurationError(s.NodeId(), fmt.Sprintf("fields[%d].type", i),
				fmt.Sprintf("unknown field type %q", f.Type))
		}
	}
	return nil
}

// Capabilities declares metrics and a parallel-safe processor.
func (s *SchemaValidator) Capabilities() engine.Capabilities {
	return engine.Capabilities{Metrics: true, FailureHandling: true, ParallelSafe: true}
}

// Process annotates the record with its schema failures, if any, and
// labels the branch.
func (s *SchemaValidator) Process(sc *engine.StageContext, rec *record.Record) (*record.Record, error) {
	var failures []string
	for _, f := range s.cfg.Fields {
		value, ok := rec.Get(f.Name)
		if !ok || value == nil {
			if !f.Optional {
				failures = append(failures, fmt.Sprintf("missing field %q", f.Name))
			}
			continue
		}
		if f.Type != "" && !matchesType(value, f.Type) {
			failures = append(failures, fmt.Sprintf("field %q is not a %s", f.Name, f.Type))
		}
	}

	out := rec.Clone()
	if len(failures) > 0 {
		out.Set(record.KeySchemaError, strings.Join(failures, "; "))
		out.SetRouteLabel(s.cfg.InvalidPort)
	} else {
		out.SetRouteLabel(s.cfg.ValidPort)
	}
	return out, nil
}

// Write mirrors Validator: terminal stages split the batch into the
// valid/invalid variables, routed stages defer to the branch labels.
func (s *SchemaValidator) Write(sc *engine.StageContext, batch []*record.Record) error {
	if sc.Routing != nil {
		return s.BaseBehavior.Write(sc, batch)
	}

	var valid, invalid []*record.Record
	for _, rec := range batch {
		if rec.Has(record.KeySchemaError) {
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

func matchesType(value any, want string) bool {
	switch want {
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		_, ok := record.AsFloat(value)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "array":
		switch value.(type) {
		case []any, []*record.Record:
			return true
		}
		return false
	}
	return true
}
