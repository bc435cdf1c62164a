// Package events publishes execution lifecycle events over NATS.
// Publishing is best-effort: a failed publish after retries logs and
// drops the event, it never fails the execution that raised it.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	internalnats "github.com/krishnasabbu/abinitio-backend-sub000/internal/nats"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/engine"
)

// Event subjects, relative to the configured prefix.
const (
	SubjectExecutionStarted   = "execution.started"
	SubjectNodeCompleted      = "node.completed"
	SubjectExecutionCompleted = "execution.completed"
)

const publishRetryDelay = time.Second

// ExecutionEvent is the wire form of every published lifecycle event.
type ExecutionEvent struct {
	WorkflowId  string    `json:"workflowId"`
	ExecutionId string    `json:"executionId"`
	NodeId      string    `json:"nodeId,omitempty"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	Read        int64     `json:"read,omitempty"`
	Processed   int64     `json:"processed,omitempty"`
	Dropped     int64     `json:"dropped,omitempty"`
	RowErrors   int64     `json:"rowErrors,omitempty"`
	RoutingLost int64     `json:"routingLost,omitempty"`
	DurationMs  int64     `json:"durationMs,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// publishConn is the slice of the NATS connection publishing uses.
type publishConn interface {
	Publish(subject string, data []byte) error
}

// Publisher implements the engine's event sink over a NATS connection.
type Publisher struct {
	conn    publishConn
	nc      *nats.Conn
	cfg     *internalnats.ConnectionConfig
	logger  *zap.Logger
	nowFunc func() time.Time
}

var _ engine.EventSink = (*Publisher)(nil)

// NewPublisher wraps an established connection. The config supplies the
// subject prefix and retry policy.
func NewPublisher(conn *nats.Conn, cfg *internalnats.ConnectionConfig, logger *zap.Logger) *Publisher {
	if cfg == nil {
		cfg = internalnats.DefaultConnectionConfig("")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{conn: conn, nc: conn, cfg: cfg, logger: logger, nowFunc: time.Now}
}

// Connect dials NATS and returns a publisher over the new connection.
func Connect(ctx context.Context, cfg *internalnats.ConnectionConfig, logger *zap.Logger) (*Publisher, error) {
	conn, err := internalnats.Connect(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return NewPublisher(conn, cfg, logger), nil
}

// Close drains the underlying connection.
func (p *Publisher) Close() error {
	return internalnats.Close(p.nc)
}

// ExecutionStarted publishes the execution start event.
func (p *Publisher) ExecutionStarted(ctx context.Context, workflowId, executionId string) {
	p.publish(ctx, SubjectExecutionStarted, ExecutionEvent{
		WorkflowId:  workflowId,
		ExecutionId: executionId,
		Status:      "started",
	})
}

// NodeCompleted publishes a per-node completion event with its metrics.
func (p *Publisher) NodeCompleted(ctx context.Context, workflowId, executionId, nodeId string, metrics engine.StageMetrics, err error) {
	ev := ExecutionEvent{
		WorkflowId:  workflowId,
		ExecutionId: executionId,
		NodeId:      nodeId,
		Status:      "completed",
		Read:        metrics.Read,
		Processed:   metrics.Processed,
		Dropped:     metrics.Dropped,
		RowErrors:   metrics.RowErrors,
		RoutingLost: metrics.RoutingLost,
		DurationMs:  metrics.Duration.Milliseconds(),
	}
	if err != nil {
		ev.Status = "failed"
		ev.Error = err.Error()
	}
	p.publish(ctx, SubjectNodeCompleted, ev)
}

// ExecutionCompleted publishes the terminal execution event.
func (p *Publisher) ExecutionCompleted(ctx context.Context, workflowId, executionId string, err error) {
	ev := ExecutionEvent{
		WorkflowId:  workflowId,
		ExecutionId: executionId,
		Status:      "completed",
	}
	if err != nil {
		ev.Status = "failed"
		ev.Error = err.Error()
	}
	p.publish(ctx, SubjectExecutionCompleted, ev)
}

func (p *Publisher) publish(ctx context.Context, subject string, ev ExecutionEvent) {
	ev.Timestamp = p.nowFunc().UTC()

	payload, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("failed to marshal event", zap.String("subject", subject), zap.Error(err))
		return
	}

	full := p.cfg.SubjectPrefix + "." + subject
	retries := p.cfg.PublishMaxRetries
	if retries < 0 {
		retries = 0
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				p.logger.Warn("event publish abandoned",
					zap.String("subject", full),
					zap.Error(ctx.Err()))
				return
			case <-time.After(publishRetryDelay):
			}
		}
		if lastErr = p.conn.Publish(full, payload); lastErr == nil {
			return
		}
	}
	p.logger.Error("event publish failed after retries",
		zap.String("subject", full),
		zap.Int("attempts", retries+1),
		zap.Error(lastErr))
}
