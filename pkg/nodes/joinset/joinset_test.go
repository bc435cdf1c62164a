package joinset_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/buffers"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/engine"
	enginerrors "github.com/krishnasabbu/abinitio-backend-sub000/pkg/errors"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/nodes/joinset"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/record"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/workflow"
)

func nodeDef(id, typ string, config map[string]any) workflow.NodeDefinition {
	raw, _ := json.Marshal(config)
	return workflow.NodeDefinition{Id: id, Type: typ, Config: raw}
}

func terminalContext() *engine.StageContext {
	return &engine.StageContext{
		Ctx:       context.Background(),
		Node:      workflow.NodeDefinition{Id: "n"},
		Buffers:   buffers.NewStore(),
		Variables: engine.NewVariables(),
		Logger:    zap.NewNop(),
		State:     make(map[string]interface{}),
	}
}

// runStage drives one behavior through the read, process and write calls
// the way the executor does in serial mode.
func runStage(t *testing.T, b engine.Behavior, sc *engine.StageContext) []*record.Record {
	t.Helper()
	require.NoError(t, b.Validate())

	batch, err := b.Read(sc)
	require.NoError(t, err)

	processed := make([]*record.Record, 0, len(batch))
	for _, rec := range batch {
		out, err := b.Process(sc, rec)
		require.NoError(t, err)
		if out != nil {
			processed = append(processed, out)
		}
	}

	require.NoError(t, b.Write(sc, processed))
	return sc.Variables.Records(engine.OutputItemsKey)
}

func TestInnerJoinMergesMatches(t *testing.T) {
	b, err := joinset.NewJoin(nodeDef("j", "join", map[string]any{
		"joinType": "inner",
		"leftKeys": []string{"id"},
	}))
	require.NoError(t, err)

	sc := terminalContext()
	sc.Variables.SetRecords(joinset.LeftInputItemsKey, []*record.Record{
		record.FromPairs("id", 1, "a", "x"),
		record.FromPairs("id", 2, "a", "y"),
	})
	sc.Variables.SetRecords(joinset.RightInputItemsKey, []*record.Record{
		record.FromPairs("id", 1, "b", "y"),
	})

	out := runStage(t, b, sc)
	require.Len(t, out, 1)
	assert.Equal(t, map[string]interface{}{"id": 1, "a": "x", "b": "y"}, out[0].ToMap())
}

func TestLeftJoinPadsUnmatched(t *testing.T) {
	b, err := joinset.NewJoin(nodeDef("j", "join", map[string]any{
		"joinType":  "left",
		"leftKeys":  []string{"id"},
		"rightKeys": []string{"id"},
	}))
	require.NoError(t, err)

	sc := terminalContext()
	sc.Variables.SetRecords(joinset.LeftInputItemsKey, []*record.Record{
		record.FromPairs("id", 1, "a", "x"),
		record.FromPairs("id", 2, "a", "y"),
	})
	sc.Variables.SetRecords(joinset.RightInputItemsKey, []*record.Record{
		record.FromPairs("id", 1, "b", "match"),
	})

	out := runStage(t, b, sc)
	require.Len(t, out, 2)
	assert.Equal(t, "match", out[0].Value("b"))
	assert.Equal(t, 2, out[1].Value("id"))
	// Unmatched left records keep their fields, no padding were needed
	// because the join key already exists on the left side.
	assert.False(t, out[1].Has("b"))
}

func TestFullJoinEmitsUnmatchedBothSides(t *testing.T) {
	b, err := joinset.NewJoin(nodeDef("j", "join", map[string]any{
		"joinType": "full",
		"leftKeys": []string{"id"},
	}))
	require.NoError(t, err)

	sc := terminalContext()
	sc.Variables.SetRecords(joinset.LeftInputItemsKey, []*record.Record{
		record.FromPairs("id", 1, "left", true),
	})
	sc.Variables.SetRecords(joinset.RightInputItemsKey, []*record.Record{
		record.FromPairs("id", 2, "right", true),
	})

	out := runStage(t, b, sc)
	require.Len(t, out, 2)
	assert.Equal(t, 1, out[0].Value("id"))
	assert.Equal(t, 2, out[1].Value("id"))
	assert.Equal(t, true, out[1].Value("right"))
}

func TestJoinExpandsMultipleMatches(t *testing.T) {
	b, err := joinset.NewJoin(nodeDef("j", "join", map[string]any{
		"joinType": "inner",
		"leftKeys": []string{"id"},
	}))
	require.NoError(t, err)

	sc := terminalContext()
	sc.Variables.SetRecords(joinset.LeftInputItemsKey, []*record.Record{
		record.FromPairs("id", 1, "a", "x"),
	})
	sc.Variables.SetRecords(joinset.RightInputItemsKey, []*record.Record{
		record.FromPairs("id", 1, "b", "first"),
		record.FromPairs("id", 1, "b", "second"),
	})

	out := runStage(t, b, sc)
	require.Len(t, out, 2)
	assert.Equal(t, "first", out[0].Value("b"))
	assert.Equal(t, "second", out[1].Value("b"))
}

func TestJoinPrefixesCollidingFields(t *testing.T) {
	b, err := joinset.NewJoin(nodeDef("j", "join", map[string]any{
		"joinType": "inner",
		"leftKeys": []string{"id"},
	}))
	require.NoError(t, err)

	sc := terminalContext()
	sc.Variables.SetRecords(joinset.LeftInputItemsKey, []*record.Record{
		record.FromPairs("id", 1, "name", "left-name"),
	})
	sc.Variables.SetRecords(joinset.RightInputItemsKey, []*record.Record{
		record.FromPairs("id", 1, "name", "right-name"),
	})

	out := runStage(t, b, sc)
	require.Len(t, out, 1)
	assert.Equal(t, "left-name", out[0].Value("name"))
	assert.Equal(t, "right-name", out[0].Value("right_name"))
}

func TestJoinValidateRequiresKeys(t *testing.T) {
	b, err := joinset.NewJoin(nodeDef("j", "join", map[string]any{"joinType": "inner"}))
	require.NoError(t, err)
	assert.True(t, enginerrors.IsConfiguration(b.Validate()))

	b, err = joinset.NewJoin(nodeDef("j", "join", map[string]any{
		"joinType": "sideways",
		"leftKeys": []string{"id"},
	}))
	require.NoError(t, err)
	assert.True(t, enginerrors.IsConfiguration(b.Validate()))
}

func TestJoinDefaultsKeysFromEitherSide(t *testing.T) {
	cases := []struct {
		name   string
		config map[string]any
	}{
		{"leftKeysOnly", map[string]any{"joinType": "inner", "leftKeys": []string{"id"}}},
		{"rightKeysOnly", map[string]any{"joinType": "inner", "rightKeys": []string{"id"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b, err := joinset.NewJoin(nodeDef("j", "join", tc.config))
			require.NoError(t, err)

			sc := terminalContext()
			sc.Variables.SetRecords(joinset.LeftInputItemsKey, []*record.Record{
				record.FromPairs("id", 1, "a", "x"),
			})
			sc.Variables.SetRecords(joinset.RightInputItemsKey, []*record.Record{
				record.FromPairs("id", 1, "b", "y"),
			})

			out := runStage(t, b, sc)
			require.Len(t, out, 1)
			assert.Equal(t, "y", out[0].Value("b"))
		})
	}
}

func TestJoinReadsFromPorts(t *testing.T) {
	b, err := joinset.NewJoin(nodeDef("j", "join", map[string]any{
		"joinType": "inner",
		"leftKeys": []string{"id"},
	}))
	require.NoError(t, err)

	sc := terminalContext()
	sc.ExecutionId = "ex"
	sc.InputPorts = []string{"out", "right"}
	sc.Buffers.AddRecord("ex", "n", "out", record.FromPairs("id", 1, "a", "x"))
	sc.Buffers.AddRecord("ex", "n", "right", record.FromPairs("id", 1, "b", "y"))

	out := runStage(t, b, sc)
	require.Len(t, out, 1)
	assert.Equal(t, "y", out[0].Value("b"))
}

func TestMergeConcatenatesPortsInOrder(t *testing.T) {
	b, err := joinset.NewMerge(nodeDef("m", "merge", nil))
	require.NoError(t, err)

	sc := terminalContext()
	sc.ExecutionId = "ex"
	sc.InputPorts = []string{"out", "second"}
	sc.Buffers.AddRecord("ex", "n", "out", record.FromPairs("id", 1))
	sc.Buffers.AddRecord("ex", "n", "second", record.FromPairs("id", 2))
	sc.Buffers.AddRecord("ex", "n", "out", record.FromPairs("id", 3))

	out := runStage(t, b, sc)
	require.Len(t, out, 3)
	assert.Equal(t, 1, out[0].Value("id"))
	assert.Equal(t, 3, out[1].Value("id"))
	assert.Equal(t, 2, out[2].Value("id"))
}

func TestCollectOrderedRestoresSequence(t *testing.T) {
	b, err := joinset.NewCollect(nodeDef("c", "collect", map[string]any{
		"collectMode": "ordered",
	}))
	require.NoError(t, err)

	sc := terminalContext()
	arrival := []int{2, 0, 1}
	items := make([]*record.Record, 0, len(arrival))
	for _, idx := range arrival {
		r := record.FromPairs("v", idx)
		r.Set(record.KeyPartitionIndex, idx)
		items = append(items, r)
	}
	sc.Variables.SetRecords(engine.OutputItemsKey, items)

	out := runStage(t, b, sc)
	require.Len(t, out, 3)
	for i, rec := range out {
		assert.Equal(t, i, rec.Value("v"))
	}
}

func TestCollectStripsMetadata(t *testing.T) {
	b, err := joinset.NewCollect(nodeDef("c", "collect", map[string]any{
		"collectMode":   "concat",
		"stripMetadata": true,
	}))
	require.NoError(t, err)

	sc := terminalContext()
	r := record.FromPairs("v", 1)
	r.Set(record.KeyPartitionIndex, 0)
	r.SetRouteLabel("x")
	sc.Variables.SetRecords(engine.OutputItemsKey, []*record.Record{r})

	out := runStage(t, b, sc)
	require.Len(t, out, 1)
	assert.Equal(t, []string{"v"}, out[0].Keys())
}

func TestCollectRejectsTooManyPorts(t *testing.T) {
	b, err := joinset.NewCollect(nodeDef("c", "collect", nil))
	require.NoError(t, err)

	sc := terminalContext()
	sc.InputPorts = []string{"a", "b", "c", "d"}

	_, err = b.Read(sc)
	assert.True(t, enginerrors.IsConfiguration(err))
}

func TestIntersectKeepsMatchingOnce(t *testing.T) {
	b, err := joinset.NewIntersect(nodeDef("i", "intersect", map[string]any{
		"keyFields": []string{"id"},
	}))
	require.NoError(t, err)

	sc := terminalContext()
	sc.Variables.SetRecords(joinset.LeftInputItemsKey, []*record.Record{
		record.FromPairs("id", 1),
		record.FromPairs("id", 1),
		record.FromPairs("id", 2),
	})
	sc.Variables.SetRecords(joinset.RightInputItemsKey, []*record.Record{
		record.FromPairs("id", 1),
	})

	out := runStage(t, b, sc)
	require.Len(t, out, 1)
	assert.Equal(t, 1, out[0].Value("id"))
}

func TestMinusWithholdsMatching(t *testing.T) {
	b, err := joinset.NewMinus(nodeDef("m", "minus", map[string]any{
		"keyFields": []string{"id"},
	}))
	require.NoError(t, err)

	sc := terminalContext()
	sc.Variables.SetRecords(joinset.LeftInputItemsKey, []*record.Record{
		record.FromPairs("id", 1),
		record.FromPairs("id", 1),
		record.FromPairs("id", 2),
		record.FromPairs("id", 2),
	})
	sc.Variables.SetRecords(joinset.RightInputItemsKey, []*record.Record{
		record.FromPairs("id", 1),
	})

	out := runStage(t, b, sc)
	require.Len(t, out, 1)
	assert.Equal(t, 2, out[0].Value("id"))
}

func TestSetOpsRequireKeyFields(t *testing.T) {
	b, err := joinset.NewIntersect(nodeDef("i", "intersect", nil))
	require.NoError(t, err)
	assert.True(t, enginerrors.IsConfiguration(b.Validate()))
}
