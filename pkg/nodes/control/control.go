// Package control implements the flow-control behaviors: Checkpoint,
// Resume, Throttle and SLA. They do not transform records; they mark
// progress in the execution variables, pace record delivery or bound a
// stage's wall-clock runtime.
package control

import (
	"time"

	"go.uber.org/zap"

	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/engine"
	enginerrors "github.com/krishnasabbu/abinitio-backend-sub000/pkg/errors"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/record"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/workflow"
)

// Node type names registered for this package.
const (
	TypeCheckpoint = "checkpoint"
	TypeResume     = "resume"
	TypeThrottle   = "throttle"
	TypeSLA        = "sla"
)

// CheckpointConfig configures a Checkpoint node.
type CheckpointConfig struct {
	// Name overrides the checkpoint identifier. Defaults to the node id.
	Name string `json:"name"`
}

// Checkpoint records a progress marker in the execution variables and
// passes records through unchanged. The marker carries the checkpoint
// name, the stamping node and the record count seen.
type Checkpoint struct {
	engine.BaseBehavior
	cfg CheckpointConfig

	now func() time.Time
}

// NewCheckpoint constructs a Checkpoint behavior.
func NewCheckpoint(def workflow.NodeDefinition) (engine.Behavior, error) {
	c := &Checkpoint{BaseBehavior: engine.NewBaseBehavior(def), now: time.Now}
	if err := c.DecodeConfig(&c.cfg); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Checkpoint) name() string {
	if c.cfg.Name != "" {
		return c.cfg.Name
	}
	return c.NodeId()
}

// Write stores the checkpoint marker, then delegates delivery.
func (c *Checkpoint) Write(sc *engine.StageContext, batch []*record.Record) error {
	sc.Variables.Set(engine.CheckpointKeyPrefix+c.name(), map[string]interface{}{
		"checkpoint": c.name(),
		"nodeId":     c.NodeId(),
		"records":    len(batch),
		"reachedAt":  c.now().UTC().Format(time.RFC3339),
	})
	sc.Logger.Info("checkpoint reached",
		zap.String("checkpoint", c.name()),
		zap.Int("records", len(batch)))
	return c.BaseBehavior.Write(sc, batch)
}

// ResumeConfig configures a Resume node.
type ResumeConfig struct {
	// Checkpoint names the marker this node expects to exist.
	Checkpoint string `json:"checkpoint"`
}

// Resume verifies an earlier Checkpoint marker exists for the current
// execution and passes records through. A missing marker logs a warning
// and continues: there is no positional restart, the marker is a
// consistency signal only.
type Resume struct {
	engine.BaseBehavior
	cfg ResumeConfig
}

// NewResume constructs a Resume behavior.
func NewResume(def workflow.NodeDefinition) (engine.Behavior, error) {
	r := &Resume{BaseBehavior: engine.NewBaseBehavior(def)}
	if err := r.DecodeConfig(&r.cfg); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate requires the checkpoint name.
func (r *Resume) Validate() error {
	if r.cfg.Checkpoint == "" {
		return enginerrors.NewConfigurationError(r.NodeId(), "checkpoint", "checkpoint name is required")
	}
	return nil
}

// Read checks the marker before draining the input normally.
func (r *Resume) Read(sc *engine.StageContext) ([]*record.Record, error) {
	if !sc.Variables.Has(engine.CheckpointKeyPrefix + r.cfg.Checkpoint) {
		sc.Logger.Warn("resume point references a checkpoint that was never reached",
			zap.String("checkpoint", r.cfg.Checkpoint))
	}
	return r.BaseBehavior.Read(sc)
}

// ThrottleConfig configures a Throttle node.
type ThrottleConfig struct {
	// RecordsPerSecond caps the delivery rate. Must be positive.
	RecordsPerSecond float64 `json:"recordsPerSecond"`
}

// Throttle paces record delivery to a configured rate. Pacing happens in
// the processor so cancellation interrupts a sleeping stage promptly.
type Throttle struct {
	engine.BaseBehavior
	cfg ThrottleConfig
}

// NewThrottle constructs a Throttle behavior.
func NewThrottle(def workflow.NodeDefinition) (engine.Behavior, error) {
	t := &Throttle{BaseBehavior: engine.NewBaseBehavior(def)}
	if err := t.DecodeConfig(&t.cfg); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate requires a positive rate.
func (t *Throttle) Validate() error {
	if t.cfg.RecordsPerSecond <= 0 {
		return enginerrors.NewConfigurationError(t.NodeId(), "recordsPerSecond", "rate must be positive")
	}
	return nil
}

// Process sleeps the inter-record interval, honoring cancellation. The
// next permitted release time lives in stage state so the pace survives
// across records of the batch.
func (t *Throttle) Process(sc *engine.StageContext, rec *record.Record) (*record.Record, error) {
	interval := time.Duration(float64(time.Second) / t.cfg.RecordsPerSecond)

	var next time.Time
	if v, ok := sc.State["throttleNext"]; ok {
		next = v.(time.Time)
	}
	now := time.Now()
	if now.Before(next) {
		timer := time.NewTimer(next.Sub(now))
		select {
		case <-sc.Ctx.Done():
			timer.Stop()
			return nil, sc.Ctx.Err()
		case <-timer.C:
		}
		now = next
	}
	sc.State["throttleNext"] = now.Add(interval)
	return rec, nil
}

// SLAConfig configures an SLA node.
type SLAConfig struct {
	// MaxDurationMs bounds the elapsed time of the execution as observed
	// at this node.
	MaxDurationMs int64 `json:"maxDurationMs"`
	// OnViolation is "warn" (default) or "fail".
	OnViolation string `json:"onViolation"`
}

// SLA measures the execution's elapsed time at this node's stage and
// either warns about or fails the execution when the configured bound is
// exceeded. Records pass through untouched.
type SLA struct {
	engine.BaseBehavior
	cfg   SLAConfig
	start time.Time
}

// NewSLA constructs an SLA behavior.
func NewSLA(def workflow.NodeDefinition) (engine.Behavior, error) {
	s := &SLA{BaseBehavior: engine.NewBaseBehavior(def), start: time.Now()}
	if err := s.DecodeConfig(&s.cfg); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate requires a positive bound and a known violation policy.
func (s *SLA) Validate() error {
	if s.cfg.MaxDurationMs <= 0 {
		return enginerrors.NewConfigurationError(s.NodeId(), "maxDurationMs", "bound must be positive")
	}
	switch s.cfg.OnViolation {
	case "", "warn", "fail":
	default:
		return enginerrors.NewConfigurationError(s.NodeId(), "onViolation",
			"policy must be \"warn\" or \"fail\"")
	}
	return nil
}

// Write checks the elapsed-time bound before delivering the batch.
func (s *SLA) Write(sc *engine.StageContext, batch []*record.Record) error {
	elapsed := time.Since(s.start).Milliseconds()
	if elapsed > s.cfg.MaxDurationMs {
		violation := &enginerrors.SLAViolationError{
			NodeID:    s.NodeId(),
			ElapsedMs: elapsed,
			BoundMs:   s.cfg.MaxDurationMs,
		}
		if s.cfg.OnViolation == "fail" {
			return violation
		}
		sc.Logger.Warn("sla bound exceeded",
			zap.Int64("elapsedMs", elapsed),
			zap.Int64("boundMs", s.cfg.MaxDurationMs))
	}
	return s.BaseBehavior.Write(sc, batch)
}
