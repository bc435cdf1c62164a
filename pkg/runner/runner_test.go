package runner_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/engine"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/record"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/runner"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/workflow"
)

func TestNewWithoutSideServices(t *testing.T) {
	r, err := runner.New(context.Background(), runner.Config{}, zap.NewNop())
	require.NoError(t, err)
	defer r.Close()

	assert.True(t, r.Registry().Has("passthrough"))
	assert.True(t, r.Registry().Has("join"))
}

func TestNewRequiresLogger(t *testing.T) {
	_, err := runner.New(context.Background(), runner.Config{}, nil)
	assert.Error(t, err)
}

func TestRunLinearWorkflow(t *testing.T) {
	r, err := runner.New(context.Background(), runner.Config{}, zap.NewNop())
	require.NoError(t, err)
	defer r.Close()

	rules, _ := json.Marshal(map[string]any{
		"rules": []map[string]any{{"field": "id", "required": true}},
	})
	def := &workflow.Definition{
		Id: "wf-linear",
		Nodes: []workflow.NodeDefinition{
			{Id: "source", Type: "passthrough"},
			{Id: "check", Type: "validate", Config: rules},
			{Id: "sink", Type: "passthrough"},
		},
		Edges: []workflow.Edge{
			{SourceNodeId: "source", SourcePort: "out", TargetNodeId: "check", TargetPort: "in"},
			{SourceNodeId: "check", SourcePort: "out", TargetNodeId: "sink", TargetPort: "in"},
		},
	}

	input := []*record.Record{
		record.FromPairs("id", 1),
		record.FromPairs("id", 2),
	}
	result, err := r.Run(context.Background(), def, input)
	require.NoError(t, err)

	assert.Len(t, result.Output, 2)
	assert.NotEmpty(t, result.ExecutionId)
	assert.Equal(t, "wf-linear", result.WorkflowId)
}

func TestRunRejectsBadDefinition(t *testing.T) {
	r, err := runner.New(context.Background(), runner.Config{}, zap.NewNop())
	require.NoError(t, err)
	defer r.Close()

	def := &workflow.Definition{
		Id: "wf-cycle",
		Nodes: []workflow.NodeDefinition{
			{Id: "a", Type: "passthrough"},
			{Id: "b", Type: "passthrough"},
		},
		Edges: []workflow.Edge{
			{SourceNodeId: "a", SourcePort: "out", TargetNodeId: "b", TargetPort: "in"},
			{SourceNodeId: "b", SourcePort: "out", TargetNodeId: "a", TargetPort: "in"},
		},
	}
	_, err = r.Run(context.Background(), def, nil)
	assert.Error(t, err)
}

func TestRunTimeoutBoundsExecution(t *testing.T) {
	r, err := runner.New(context.Background(), runner.Config{
		RunTimeout: time.Millisecond,
	}, zap.NewNop())
	require.NoError(t, err)
	defer r.Close()

	throttle, _ := json.Marshal(map[string]any{"recordsPerSecond": 1})
	def := &workflow.Definition{
		Id: "wf-slow",
		Nodes: []workflow.NodeDefinition{
			{Id: "slow", Type: "throttle", Config: throttle},
		},
	}

	input := []*record.Record{
		record.FromPairs("id", 1),
		record.FromPairs("id", 2),
		record.FromPairs("id", 3),
	}
	_, err = r.Run(context.Background(), def, input)
	assert.Error(t, err)
}

func TestRegistryAcceptsCustomTypes(t *testing.T) {
	r, err := runner.New(context.Background(), runner.Config{}, zap.NewNop())
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.Registry().Register("custom", func(def workflow.NodeDefinition) (engine.Behavior, error) {
		b := &customBehavior{BaseBehavior: engine.NewBaseBehavior(def)}
		return b, nil
	}))

	def := &workflow.Definition{
		Id:    "wf-custom",
		Nodes: []workflow.NodeDefinition{{Id: "c", Type: "custom"}},
	}
	result, err := r.Run(context.Background(), def, []*record.Record{record.FromPairs("id", 1)})
	require.NoError(t, err)

	require.Len(t, result.Output, 1)
	assert.Equal(t, true, result.Output[0].Value("touched"))
}

type customBehavior struct {
	engine.BaseBehavior
}

func (c *customBehavior) Process(_ *engine.StageContext, rec *record.Record) (*record.Record, error) {
	rec.Set("touched", true)
	return rec, nil
}
