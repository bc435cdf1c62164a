// Package errors defines the error taxonomy shared by the engine and the
// node behaviors. Configuration and unsupported-feature errors are fatal
// and prevent or abort an execution; row-level errors are policy-dependent
// and may be annotated onto the offending record instead of failing the plan.
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration indicates invalid or missing node configuration.
	// Raised by Validate before any stage runs.
	ErrConfiguration = errors.New("invalid node configuration")

	// ErrUnsupportedFeature indicates an explicitly-unimplemented option
	// was selected.
	ErrUnsupportedFeature = errors.New("unsupported feature")

	// ErrRowLevel indicates a single record failed in a processor or
	// writer stage.
	ErrRowLevel = errors.New("row-level processing failure")

	// ErrSLAViolation indicates elapsed wall-clock time exceeded the
	// configured bound.
	ErrSLAViolation = errors.New("sla violated")

	// ErrDuplicateNode indicates two nodes share an id.
	ErrDuplicateNode = errors.New("duplicate node id")

	// ErrCycle indicates the workflow graph is not a DAG.
	ErrCycle = errors.New("cycle detected in workflow graph")

	// ErrUnknownNodeType indicates no behavior is registered for a node type.
	ErrUnknownNodeType = errors.New("no behavior registered for node type")

	// ErrEvaluation indicates the expression capability failed to evaluate
	// an expression. Callers decide whether to treat this as the false
	// branch or escalate.
	ErrEvaluation = errors.New("expression evaluation failed")
)

// ConfigurationError reports an invalid node configuration. It is raised at
// validate time, before execution starts.
type ConfigurationError struct {
	NodeID string
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("node %s: config field %q: %s", e.NodeID, e.Field, e.Reason)
	}
	return fmt.Sprintf("node %s: %s", e.NodeID, e.Reason)
}

// Unwrap classifies the error as ErrConfiguration.
func (e *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}

// NewConfigurationError creates a configuration error for a node.
func NewConfigurationError(nodeID, field, reason string) *ConfigurationError {
	return &ConfigurationError{NodeID: nodeID, Field: field, Reason: reason}
}

// UnsupportedFeatureError reports selection of a feature that is declared
// but intentionally not implemented.
type UnsupportedFeatureError struct {
	NodeID  string
	Feature string
}

func (e *UnsupportedFeatureError) Error() string {
	return fmt.Sprintf("node %s: feature %q is not supported", e.NodeID, e.Feature)
}

func (e *UnsupportedFeatureError) Unwrap() error {
	return ErrUnsupportedFeature
}

// NewUnsupportedFeatureError creates an unsupported-feature error.
func NewUnsupportedFeatureError(nodeID, feature string) *UnsupportedFeatureError {
	return &UnsupportedFeatureError{NodeID: nodeID, Feature: feature}
}

// RowLevelError reports a failure confined to one record. Depending on the
// node's onFailure policy it is either recorded as metadata on the record
// or escalated to a fatal stage error.
type RowLevelError struct {
	NodeID    string
	ItemIndex int
	Cause     error
}

func (e *RowLevelError) Error() string {
	return fmt.Sprintf("node %s: record %d: %v", e.NodeID, e.ItemIndex, e.Cause)
}

func (e *RowLevelError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrRowLevel, e.Cause}
	}
	return []error{ErrRowLevel}
}

// NewRowLevelError creates a row-level error for one record.
func NewRowLevelError(nodeID string, itemIndex int, cause error) *RowLevelError {
	return &RowLevelError{NodeID: nodeID, ItemIndex: itemIndex, Cause: cause}
}

// SLAViolationError reports that an execution ran past its configured
// wall-clock bound. Advisory unless the node is configured to fail.
type SLAViolationError struct {
	NodeID    string
	ElapsedMs int64
	BoundMs   int64
}

func (e *SLAViolationError) Error() string {
	return fmt.Sprintf("node %s: elapsed %dms exceeds sla of %dms", e.NodeID, e.ElapsedMs, e.BoundMs)
}

func (e *SLAViolationError) Unwrap() error {
	return ErrSLAViolation
}

// EvaluationError reports a failed expression evaluation.
type EvaluationError struct {
	Expression string
	Cause      error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluating %q: %v", e.Expression, e.Cause)
}

func (e *EvaluationError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrEvaluation, e.Cause}
	}
	return []error{ErrEvaluation}
}

// IsConfiguration checks whether err is a configuration error.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsRowLevel checks whether err is confined to a single record.
func IsRowLevel(err error) bool {
	return errors.Is(err, ErrRowLevel)
}

// IsEvaluation checks whether err came from the expression capability.
func IsEvaluation(err error) bool {
	return errors.Is(err, ErrEvaluation)
}
