package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/buffers"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/concurrency"
	enginerrors "github.com/krishnasabbu/abinitio-backend-sub000/pkg/errors"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/expr"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/plan"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/record"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/routing"
)

// EventSink receives execution lifecycle notifications. Implementations
// must tolerate being called from concurrent executions.
type EventSink interface {
	ExecutionStarted(ctx context.Context, workflowId, executionId string)
	NodeCompleted(ctx context.Context, workflowId, executionId, nodeId string, metrics StageMetrics, err error)
	ExecutionCompleted(ctx context.Context, workflowId, executionId string, err error)
}

// ResultArchiver persists terminal node output for later inspection.
type ResultArchiver interface {
	ArchiveNodeResult(ctx context.Context, workflowId, executionId, nodeId, status string, output []*record.Record) error
}

// Result summarizes one completed execution.
type Result struct {
	ExecutionId string
	WorkflowId  string
	// Output is the final terminal batch (the outputItems variable after
	// the last stage).
	Output []*record.Record
	// Variables is a snapshot of the execution-scoped variable store.
	Variables map[string]interface{}
	// NodeMetrics holds snapshots for behaviors that opted into metrics.
	NodeMetrics []StageMetrics
	// SkippedNodes lists nodes that failed but were configured to skip.
	SkippedNodes []string
	// RoutingLost is the total count of records dropped for lack of an
	// eligible output edge.
	RoutingLost int64
}

// Executor drives compiled plans stage by stage under the bulk-synchronous
// model: each node fully drains its input and fully writes its output
// before any dependent stage starts. Distinct executions are independent
// and may run concurrently against the same executor.
type Executor struct {
	registry    *Registry
	store       *buffers.Store
	evaluator   expr.Evaluator
	logger      *zap.Logger
	events      EventSink
	archiver    ResultArchiver
	parallelism int
	tracer      trace.Tracer
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the executor logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Executor) { e.logger = logger }
}

// WithBufferStore shares a buffer store across executors.
func WithBufferStore(store *buffers.Store) Option {
	return func(e *Executor) { e.store = store }
}

// WithEvaluator sets the expression-evaluation capability.
func WithEvaluator(ev expr.Evaluator) Option {
	return func(e *Executor) { e.evaluator = ev }
}

// WithEventSink publishes lifecycle events to the sink.
func WithEventSink(sink EventSink) Option {
	return func(e *Executor) { e.events = sink }
}

// WithResultArchiver archives terminal node output.
func WithResultArchiver(archiver ResultArchiver) Option {
	return func(e *Executor) { e.archiver = archiver }
}

// WithParallelism bounds concurrent record processing for behaviors that
// declare a parallel-safe processor. Values below 2 keep stages serial.
func WithParallelism(n int) Option {
	return func(e *Executor) { e.parallelism = n }
}

// NewExecutor creates an executor over a behavior registry.
func NewExecutor(registry *Registry, opts ...Option) (*Executor, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}
	e := &Executor{
		registry: registry,
		tracer:   otel.Tracer("engine/executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.store == nil {
		e.store = buffers.NewStore()
	}
	if e.evaluator == nil {
		e.evaluator = expr.NewEvaluator()
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	return e, nil
}

// BufferStore exposes the executor's buffer store, mainly for tests and
// for seeding routing-mode source nodes.
func (e *Executor) BufferStore() *buffers.Store {
	return e.store
}

// Execute runs a compiled plan to completion under a fresh execution id.
// The input batch seeds the direct-mode reader of the first stage. All
// buffers belonging to the execution are destroyed on return, success or
// not.
func (e *Executor) Execute(ctx context.Context, p *plan.Plan, input []*record.Record) (*Result, error) {
	return e.ExecuteWithId(ctx, NewExecutionId(), p, input)
}

// ExecuteWithId runs a compiled plan under a caller-chosen execution id,
// so port buffers seeded through BufferStore before the call are visible
// to the plan's stages.
func (e *Executor) ExecuteWithId(ctx context.Context, executionId string, p *plan.Plan, input []*record.Record) (*Result, error) {
	if p == nil {
		return nil, fmt.Errorf("plan cannot be nil")
	}
	if executionId == "" {
		return nil, fmt.Errorf("execution id cannot be empty")
	}

	// Construct and validate every behavior before any stage executes.
	behaviors := make([]Behavior, len(p.Stages))
	for i, stage := range p.Stages {
		b, err := e.registry.Create(stage.Node)
		if err != nil {
			return nil, err
		}
		if err := b.Validate(); err != nil {
			return nil, err
		}
		behaviors[i] = b
	}

	defer e.store.RemoveExecution(executionId)

	logger := e.logger.With(
		zap.String("workflowId", p.WorkflowId),
		zap.String("executionId", executionId))

	ctx, span := e.tracer.Start(ctx, "engine.execute",
		trace.WithAttributes(
			attribute.String("workflow.id", p.WorkflowId),
			attribute.String("execution.id", executionId),
			attribute.Int("stages", len(p.Stages)),
		))
	defer span.End()

	if e.events != nil {
		e.events.ExecutionStarted(ctx, p.WorkflowId, executionId)
	}
	logger.Info("execution started", zap.Int("stages", len(p.Stages)))

	vars := NewVariables()
	if len(input) > 0 {
		vars.SetRecords(OutputItemsKey, input)
	}

	result := &Result{ExecutionId: executionId, WorkflowId: p.WorkflowId}

	for i, stage := range p.Stages {
		metrics, stageErr := e.runStage(ctx, executionId, p, stage, behaviors[i], vars, logger)
		result.RoutingLost += metrics.RoutingLost
		if behaviors[i].Capabilities().Metrics {
			result.NodeMetrics = append(result.NodeMetrics, metrics)
		}
		if e.events != nil {
			e.events.NodeCompleted(ctx, p.WorkflowId, executionId, stage.Node.Id, metrics, stageErr)
		}
		if stageErr == nil {
			continue
		}

		if mode := stageFailureMode(behaviors[i]); mode == FailureSkip {
			logger.Warn("node failed, skipping per onFailure config",
				zap.String("nodeId", stage.Node.Id),
				zap.Error(stageErr))
			result.SkippedNodes = append(result.SkippedNodes, stage.Node.Id)
			continue
		}

		span.RecordError(stageErr)
		span.SetStatus(codes.Error, stageErr.Error())
		logger.Error("execution aborted",
			zap.String("nodeId", stage.Node.Id),
			zap.Error(stageErr))
		if e.events != nil {
			e.events.ExecutionCompleted(ctx, p.WorkflowId, executionId, stageErr)
		}
		result.Variables = vars.Snapshot()
		return result, fmt.Errorf("node %s: %w", stage.Node.Id, stageErr)
	}

	result.Output = vars.Records(OutputItemsKey)
	result.Variables = vars.Snapshot()

	span.SetStatus(codes.Ok, "execution completed")
	logger.Info("execution completed",
		zap.Int("outputRecords", len(result.Output)),
		zap.Int64("routingLost", result.RoutingLost))
	if e.events != nil {
		e.events.ExecutionCompleted(ctx, p.WorkflowId, executionId, nil)
	}
	return result, nil
}

// runStage executes one node's reader, processor and writer to completion.
func (e *Executor) runStage(ctx context.Context, executionId string, p *plan.Plan, stage plan.Stage, b Behavior, vars *Variables, logger *zap.Logger) (StageMetrics, error) {
	stageLogger := logger.With(
		zap.String("nodeId", stage.Node.Id),
		zap.String("nodeType", stage.Node.Type))

	ctx, span := e.tracer.Start(ctx, "engine.stage",
		trace.WithAttributes(
			attribute.String("node.id", stage.Node.Id),
			attribute.String("node.type", stage.Node.Type),
		))
	defer span.End()

	collector := newMetricsCollector()

	var rctx *routing.Context
	if len(stage.OutputPorts) > 0 {
		rctx = routing.NewContext(executionId, stage.Node.Id, stage.OutputPorts, e.store, stageLogger)
	}

	sc := &StageContext{
		Ctx:         ctx,
		ExecutionId: executionId,
		WorkflowId:  p.WorkflowId,
		Node:        stage.Node,
		InputPorts:  stage.InputPorts,
		Routing:     rctx,
		Buffers:     e.store,
		Variables:   vars,
		Evaluator:   e.evaluator,
		Logger:      stageLogger,
		State:       make(map[string]interface{}),
	}

	batch, err := b.Read(sc)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return e.finishStage(sc, collector, rctx, "failed"), fmt.Errorf("reader: %w", err)
	}
	collector.recordRead(len(batch))

	processed, err := e.processBatch(sc, b, batch, collector)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return e.finishStage(sc, collector, rctx, "failed"), err
	}

	if err := b.Write(sc, processed); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return e.finishStage(sc, collector, rctx, "failed"), fmt.Errorf("writer: %w", err)
	}

	metrics := e.finishStage(sc, collector, rctx, "success")
	stageLogger.Debug("stage completed",
		zap.Int64("read", metrics.Read),
		zap.Int64("processed", metrics.Processed),
		zap.Int64("dropped", metrics.Dropped),
		zap.Int64("routingLost", metrics.RoutingLost))
	span.SetStatus(codes.Ok, "stage completed")
	return metrics, nil
}

// processBatch applies the processor to every record, serially or fanned
// out when the behavior declares a parallel-safe processor. Nil results
// are filtered; row-level errors drop the record or abort the stage per
// the node's failure policy.
func (e *Executor) processBatch(sc *StageContext, b Behavior, batch []*record.Record, collector *metricsCollector) ([]*record.Record, error) {
	caps := b.Capabilities()
	if caps.ParallelSafe && e.parallelism > 1 && len(batch) > 1 {
		return e.processParallel(sc, b, batch, collector)
	}

	processed := make([]*record.Record, 0, len(batch))
	for i, rec := range batch {
		out, err := b.Process(sc, rec)
		if err != nil {
			if dropErr := e.handleRowError(sc, b, i, err, collector); dropErr != nil {
				return nil, dropErr
			}
			continue
		}
		if out == nil {
			collector.recordDropped()
			continue
		}
		collector.recordProcessed()
		processed = append(processed, out)
	}
	return processed, nil
}

// processParallel fans the processor out across a bounded worker set while
// preserving input order in the output batch.
func (e *Executor) processParallel(sc *StageContext, b Behavior, batch []*record.Record, collector *metricsCollector) ([]*record.Record, error) {
	limiter := concurrency.NewLimiter(e.parallelism)
	outputs := make([]*record.Record, len(batch))
	rowErrs := make([]error, len(batch))

	var wg sync.WaitGroup
	for i, rec := range batch {
		if err := limiter.Acquire(sc.Ctx); err != nil {
			// In-flight workers must drain before the buffers are torn down.
			wg.Wait()
			return nil, err
		}
		wg.Add(1)
		go func(i int, rec *record.Record) {
			defer wg.Done()
			defer limiter.Release()
			outputs[i], rowErrs[i] = b.Process(sc, rec)
		}(i, rec)
	}
	wg.Wait()

	processed := make([]*record.Record, 0, len(batch))
	for i := range batch {
		if rowErrs[i] != nil {
			if dropErr := e.handleRowError(sc, b, i, rowErrs[i], collector); dropErr != nil {
				return nil, dropErr
			}
			continue
		}
		if outputs[i] == nil {
			collector.recordDropped()
			continue
		}
		collector.recordProcessed()
		processed = append(processed, outputs[i])
	}
	return processed, nil
}

// handleRowError classifies a processor error. Row-level errors drop the
// record unless the node's policy escalates them; anything else aborts
// the stage.
func (e *Executor) handleRowError(sc *StageContext, b Behavior, index int, err error, collector *metricsCollector) error {
	if !enginerrors.IsRowLevel(err) {
		return fmt.Errorf("processor: %w", err)
	}
	collector.recordRowError()
	if stopOnRowError(b) {
		return fmt.Errorf("processor: %w", err)
	}
	sc.Logger.Warn("record dropped after row-level error",
		zap.Int("itemIndex", index),
		zap.Error(err))
	return nil
}

// finishStage snapshots metrics and archives terminal output.
func (e *Executor) finishStage(sc *StageContext, collector *metricsCollector, rctx *routing.Context, status string) StageMetrics {
	var lost int64
	if rctx != nil {
		lost = rctx.RoutingLost()
	}
	metrics := collector.snapshot(sc.Node.Id, lost)

	if rctx == nil && e.archiver != nil {
		output := sc.Variables.Records(OutputItemsKey)
		if err := e.archiver.ArchiveNodeResult(sc.Ctx, sc.WorkflowId, sc.ExecutionId, sc.Node.Id, status, output); err != nil {
			sc.Logger.Warn("failed to archive node result", zap.Error(err))
		}
	}
	return metrics
}

// stopOnRowError consults the behavior's failure policy; behaviors that do
// not expose one abort on row-level errors only when escalated.
func stopOnRowError(b Behavior) bool {
	type rowPolicy interface{ StopOnRowError() bool }
	if p, ok := b.(rowPolicy); ok {
		return p.StopOnRowError()
	}
	return false
}

// stageFailureMode consults the behavior's stage failure policy. Skipping
// requires the behavior to declare the FailureHandling capability.
func stageFailureMode(b Behavior) FailureMode {
	if !b.Capabilities().FailureHandling {
		return FailureAbort
	}
	type stagePolicy interface{ StageFailureMode() FailureMode }
	if p, ok := b.(stagePolicy); ok {
		return p.StageFailureMode()
	}
	return FailureAbort
}

// NewExecutionId returns a fresh execution id. Callers that seed buffers
// before a run pass it to ExecuteWithId.
func NewExecutionId() string {
	return uuid.NewString()
}
