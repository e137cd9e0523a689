package middleware

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"EntryGate/internal/domain/models"
	domrepo "EntryGate/internal/domain/repository"
	"EntryGate/internal/service/ratelimit"
)

// Proc is the minimal processor interface the pipeline needs.
type Proc interface {
	Process(ctx context.Context, snap *models.IndicatorSnapshot) (*models.Evaluation, error)
}

// SnapshotPipeline sits between the snapshot feed and the evaluation loop.
// It validates and normalises snapshots and throttles open-candle ticks per
// symbol. Closed-candle ticks are never throttled since they advance streaks.
type SnapshotPipeline struct {
	proc      Proc
	metrics   domrepo.Metrics
	openTicks *ratelimit.Limiter
	transform func(*models.IndicatorSnapshot) *models.IndicatorSnapshot
}

type PipelineOption func(*SnapshotPipeline)

// WithMaxOpenTicks caps open-candle ticks per symbol per second. n <= 0
// disables the throttle.
func WithMaxOpenTicks(n int) PipelineOption {
	return func(p *SnapshotPipeline) { p.openTicks = ratelimit.New(float64(n), max(n, 1)) }
}

// WithTransform sets a hook that rewrites snapshots before validation.
func WithTransform(fn func(*models.IndicatorSnapshot) *models.IndicatorSnapshot) PipelineOption {
	return func(p *SnapshotPipeline) { p.transform = fn }
}

func NewSnapshotPipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *SnapshotPipeline {
	p := &SnapshotPipeline{
		proc:      proc,
		metrics:   metrics,
		openTicks: ratelimit.New(5, 5),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process validates, throttles and forwards snap. Throttled ticks are
// dropped silently.
func (p *SnapshotPipeline) Process(ctx context.Context, snap *models.IndicatorSnapshot) error {
	start := time.Now()
	if p.transform != nil && snap != nil {
		snap = p.transform(snap)
	}
	if err := validateSnapshot(snap); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	snap.Symbol = strings.ToUpper(strings.TrimSpace(snap.Symbol))

	if !snap.CandleClosed && !p.openTicks.Allow(snap.Symbol) {
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}

	if _, err := p.proc.Process(ctx, snap); err != nil {
		p.metrics.RecordError("pipeline_process")
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

// SweepThrottle drops per-symbol throttle state for symbols that went quiet.
func (p *SnapshotPipeline) SweepThrottle() int {
	return p.openTicks.Sweep()
}

func validateSnapshot(s *models.IndicatorSnapshot) error {
	if s == nil {
		return models.NewSchemaError("", "snapshot is nil")
	}
	if strings.TrimSpace(s.Symbol) == "" {
		return models.NewSchemaError("symbol", "is required")
	}
	for name, v := range s.Metrics {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return models.NewSchemaError("metrics."+name, "must be finite")
		}
	}
	return nil
}
