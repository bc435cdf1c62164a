package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigurationErrorUnwraps(t *testing.T) {
	err := NewConfigurationError("node-1", "joinType", "joinType is required")

	assert.True(t, errors.Is(err, ErrConfiguration))
	assert.True(t, IsConfiguration(err))
	assert.Contains(t, err.Error(), "node-1")
	assert.Contains(t, err.Error(), "joinType")

	wrapped := fmt.Errorf("compiling plan: %w", err)
	assert.True(t, IsConfiguration(wrapped))
}

func TestRowLevelErrorCarriesCause(t *testing.T) {
	cause := errors.New("bad value")
	err := NewRowLevelError("node-1", 3, cause)

	assert.True(t, errors.Is(err, ErrRowLevel))
	assert.True(t, IsRowLevel(err))
	assert.True(t, errors.Is(err, cause))

	var rowErr *RowLevelError
	assert.True(t, errors.As(err, &rowErr))
	assert.Equal(t, 3, rowErr.ItemIndex)
}

func TestUnsupportedFeatureError(t *testing.T) {
	err := NewUnsupportedFeatureError("node-1", "positional restore")
	assert.True(t, errors.Is(err, ErrUnsupportedFeature))
}

func TestSLAViolationError(t *testing.T) {
	err := &SLAViolationError{NodeID: "sla-1", ElapsedMs: 1200, BoundMs: 1000}
	assert.True(t, errors.Is(err, ErrSLAViolation))
	assert.Contains(t, err.Error(), "1200")
}

func TestEvaluationError(t *testing.T) {
	cause := errors.New("SyntaxError")
	err := &EvaluationError{Expression: "a >", Cause: cause}

	assert.True(t, errors.Is(err, ErrEvaluation))
	assert.True(t, IsEvaluation(err))
	assert.True(t, errors.Is(err, cause))
}

func TestClassifiersRejectUnrelatedErrors(t *testing.T) {
	plain := errors.New("boom")
	assert.False(t, IsConfiguration(plain))
	assert.False(t, IsRowLevel(plain))
	assert.False(t, IsEvaluation(plain))
	assert.False(t, IsConfiguration(nil))
}
