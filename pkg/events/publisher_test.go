package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	internalnats "github.com/krishnasabbu/abinitio-backend-sub000/internal/nats"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/engine"
)

type fakeConn struct {
	subjects []string
	payloads [][]byte
	failWith error
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

func testPublisher(conn publishConn) *Publisher {
	cfg := internalnats.DefaultConnectionConfig("")
	cfg.PublishMaxRetries = 0
	return &Publisher{
		conn:    conn,
		cfg:     cfg,
		logger:  zap.NewNop(),
		nowFunc: func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	}
}

func TestExecutionStartedSubjectAndPayload(t *testing.T) {
	conn := &fakeConn{}
	p := testPublisher(conn)

	p.ExecutionStarted(context.Background(), "wf-1", "exec-1")

	require.Len(t, conn.subjects, 1)
	assert.Equal(t, "workflow.execution.started", conn.subjects[0])

	var ev ExecutionEvent
	require.NoError(t, json.Unmarshal(conn.payloads[0], &ev))
	assert.Equal(t, "wf-1", ev.WorkflowId)
	assert.Equal(t, "exec-1", ev.ExecutionId)
	assert.Equal(t, "started", ev.Status)
	assert.False(t, ev.Timestamp.IsZero())
}

func TestNodeCompletedCarriesStageMetrics(t *testing.T) {
	conn := &fakeConn{}
	p := testPublisher(conn)

	p.NodeCompleted(context.Background(), "wf-1", "exec-1", "route", engine.StageMetrics{
		NodeId:      "route",
		Read:        10,
		Processed:   8,
		Dropped:     1,
		RowErrors:   1,
		RoutingLost: 3,
		Duration:    250 * time.Millisecond,
	}, nil)

	require.Len(t, conn.subjects, 1)
	assert.Equal(t, "workflow.node.completed", conn.subjects[0])

	var ev ExecutionEvent
	require.NoError(t, json.Unmarshal(conn.payloads[0], &ev))
	assert.Equal(t, "route", ev.NodeId)
	assert.Equal(t, "completed", ev.Status)
	assert.Equal(t, int64(10), ev.Read)
	assert.Equal(t, int64(8), ev.Processed)
	assert.Equal(t, int64(1), ev.Dropped)
	assert.Equal(t, int64(1), ev.RowErrors)
	assert.Equal(t, int64(3), ev.RoutingLost)
	assert.Equal(t, int64(250), ev.DurationMs)
}

func TestNodeCompletedFailureStatus(t *testing.T) {
	conn := &fakeConn{}
	p := testPublisher(conn)

	p.NodeCompleted(context.Background(), "wf", "exec", "boom", engine.StageMetrics{}, errors.New("reader blew up"))

	var ev ExecutionEvent
	require.NoError(t, json.Unmarshal(conn.payloads[0], &ev))
	assert.Equal(t, "failed", ev.Status)
	assert.Equal(t, "reader blew up", ev.Error)
}

func TestExecutionCompletedFailureStatus(t *testing.T) {
	conn := &fakeConn{}
	p := testPublisher(conn)

	p.ExecutionCompleted(context.Background(), "wf", "exec", errors.New("node boom: reader blew up"))

	require.Len(t, conn.subjects, 1)
	assert.Equal(t, "workflow.execution.completed", conn.subjects[0])

	var ev ExecutionEvent
	require.NoError(t, json.Unmarshal(conn.payloads[0], &ev))
	assert.Equal(t, "failed", ev.Status)
}

func TestPublishFailureIsBestEffort(t *testing.T) {
	conn := &fakeConn{failWith: errors.New("broker down")}
	p := testPublisher(conn)

	// Must log and drop, never panic or block the execution.
	p.ExecutionStarted(context.Background(), "wf", "exec")
	assert.Empty(t, conn.subjects)
}
