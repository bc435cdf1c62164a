package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/buffers"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/record"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/workflow"
)

func twoPortContext(store *buffers.Store) *Context {
	return NewContext("ex", "src", []workflow.OutputPort{
		{SourcePort: "true", TargetNodeId: "t1", TargetPort: "out"},
		{SourcePort: "false", TargetNodeId: "t2", TargetPort: "out"},
	}, store, nil)
}

func TestRouteRecordMatchesSourcePort(t *testing.T) {
	store := buffers.NewStore()
	c := twoPortContext(store)

	c.RouteRecord(record.FromPairs("id", 1), "false")

	assert.Equal(t, 0, store.Size("ex", "t1", "out"))
	assert.Equal(t, 1, store.Size("ex", "t2", "out"))
}

func TestRouteRecordEmptyKeyUsesDefault(t *testing.T) {
	store := buffers.NewStore()
	c := twoPortContext(store)

	c.RouteRecord(record.FromPairs("id", 1), "")

	assert.Equal(t, 1, store.Size("ex", "t1", "out"))
	assert.Equal(t, 0, store.Size("ex", "t2", "out"))
}

func TestRouteRecordUnknownKeyFallsBackToDefault(t *testing.T) {
	store := buffers.NewStore()
	c := twoPortContext(store)

	c.RouteRecord(record.FromPairs("id", 1), "nope")

	assert.Equal(t, 1, store.Size("ex", "t1", "out"))
	assert.Equal(t, int64(0), c.RoutingLost())
}

func TestRouteRecordFirstMatchWins(t *testing.T) {
	store := buffers.NewStore()
	c := NewContext("ex", "src", []workflow.OutputPort{
		{SourcePort: "out", TargetNodeId: "t1", TargetPort: "out"},
		{SourcePort: "out", TargetNodeId: "t2", TargetPort: "out"},
	}, store, nil)

	c.RouteRecord(record.FromPairs("id", 1), "out")

	assert.Equal(t, 1, store.Size("ex", "t1", "out"))
	assert.Equal(t, 0, store.Size("ex", "t2", "out"))
}

func TestRouteToDefaultWithNoEdgesCountsLoss(t *testing.T) {
	store := buffers.NewStore()
	c := NewContext("ex", "src", nil, store, nil)

	c.RouteToDefault(record.FromPairs("id", 1))
	c.RouteRecord(record.FromPairs("id", 2), "anything")

	assert.Equal(t, int64(2), c.RoutingLost())
}

func TestRouteToAllPortsDeliversIndependentClones(t *testing.T) {
	store := buffers.NewStore()
	c := twoPortContext(store)

	src := record.FromPairs("id", 1)
	c.RouteToAllPorts(src)

	first := store.Drain("ex", "t1", "out")
	second := store.Drain("ex", "t2", "out")
	require.Len(t, first, 1)
	require.Len(t, second, 1)

	first[0].Set("id", 99)
	assert.Equal(t, 1, second[0].Value("id"))
	assert.Equal(t, 1, src.Value("id"))
}
