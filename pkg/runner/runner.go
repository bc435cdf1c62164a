// Package runner assembles the workflow engine and its optional
// side-services (event publishing, result archiving, tracing) from one
// configuration struct, and runs workflow definitions end to end.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	internalnats "github.com/krishnasabbu/abinitio-backend-sub000/internal/nats"
	"github.com/krishnasabbu/abinitio-backend-sub000/internal/tracing"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/engine"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/events"
	nodereg "github.com/krishnasabbu/abinitio-backend-sub000/pkg/nodes/registry"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/plan"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/record"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/storage"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/workflow"
)

// Config drives the runner assembly. Zero-value optional sections leave
// the corresponding service disabled.
type Config struct {
	// Parallelism bounds in-stage record concurrency for parallel-safe
	// behaviors. Values below 2 keep stages serial.
	Parallelism int

	// RunTimeout bounds a single workflow run. Zero disables the bound.
	RunTimeout time.Duration

	// NATSURL enables lifecycle event publishing when set.
	NATSURL string

	// EventSubjectPrefix overrides the default event subject prefix.
	EventSubjectPrefix string

	// AzureConnectionString and ResultContainer enable result archiving
	// when both are set.
	AzureConnectionString string
	ResultContainer       string

	// Tracing enables OpenTelemetry export when non-nil.
	Tracing *tracing.Config
}

// Runner owns an executor and the side-services it was assembled with.
type Runner struct {
	executor        *engine.Executor
	registry        *engine.Registry
	logger          *zap.Logger
	publisher       *events.Publisher
	runTimeout      time.Duration
	tracingShutdown func(context.Context) error
}

// New assembles a runner from the configuration. The registry starts
// with every built-in behavior; use Registry to add custom types before
// the first Run.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Runner, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	r := &Runner{
		registry:   nodereg.Builtin(),
		logger:     logger,
		runTimeout: cfg.RunTimeout,
	}

	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithParallelism(cfg.Parallelism),
	}

	if cfg.NATSURL != "" {
		nc := internalnats.DefaultConnectionConfig(cfg.NATSURL)
		if cfg.EventSubjectPrefix != "" {
			nc.SubjectPrefix = cfg.EventSubjectPrefix
		}
		publisher, err := events.Connect(ctx, nc, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect event publisher: %w", err)
		}
		r.publisher = publisher
		opts = append(opts, engine.WithEventSink(publisher))
	}

	if cfg.AzureConnectionString != "" && cfg.ResultContainer != "" {
		blobClient, err := storage.NewAzureBlobClient(cfg.AzureConnectionString, cfg.ResultContainer, logger)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("failed to create blob client: %w", err)
		}
		archive, err := storage.NewArchive(blobClient, logger)
		if err != nil {
			r.Close()
			return nil, err
		}
		opts = append(opts, engine.WithResultArchiver(archive))
	}

	if cfg.Tracing != nil {
		shutdown, err := tracing.Setup(ctx, *cfg.Tracing, logger)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("failed to set up tracing: %w", err)
		}
		r.tracingShutdown = shutdown
	}

	executor, err := engine.NewExecutor(r.registry, opts...)
	if err != nil {
		r.Close()
		return nil, err
	}
	r.executor = executor
	return r, nil
}

// Registry exposes the behavior registry for custom node types.
func (r *Runner) Registry() *engine.Registry {
	return r.registry
}

// Run compiles the definition and executes it against the input batch.
func (r *Runner) Run(ctx context.Context, def *workflow.Definition, input []*record.Record) (*engine.Result, error) {
	p, err := plan.Compile(def)
	if err != nil {
		return nil, err
	}
	return r.RunPlan(ctx, p, input)
}

// RunPlan executes an already compiled plan.
func (r *Runner) RunPlan(ctx context.Context, p *plan.Plan, input []*record.Record) (*engine.Result, error) {
	if r.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.runTimeout)
		defer cancel()
	}
	return r.executor.Execute(ctx, p, input)
}

// Close releases the runner's side-services. Safe on a partially
// assembled runner.
func (r *Runner) Close() error {
	var errs []error
	if r.publisher != nil {
		if err := r.publisher.Close(); err != nil {
			errs = append(errs, err)
		}
		r.publisher = nil
	}
	if r.tracingShutdown != nil {
		if err := tracing.Shutdown(r.tracingShutdown, r.logger); err != nil {
			errs = append(errs, err)
		}
		r.tracingShutdown = nil
	}
	return errors.Join(errs...)
}
