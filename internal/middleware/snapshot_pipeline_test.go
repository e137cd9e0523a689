package middleware

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EntryGate/internal/domain/models"
	"EntryGate/pkg/metrics"
)

type recordingProc struct {
	mu   sync.Mutex
	seen []*models.IndicatorSnapshot
	err  error
}

func (r *recordingProc) Process(_ context.Context, s *models.IndicatorSnapshot) (*models.Evaluation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, s)
	if r.err != nil {
		return nil, r.err
	}
	return &models.Evaluation{Symbol: s.Symbol}, nil
}

func TestPipelineNormalisesSymbol(t *testing.T) {
	proc := &recordingProc{}
	p := NewSnapshotPipeline(proc, metrics.Nop{})

	require.NoError(t, p.Process(context.Background(), &models.IndicatorSnapshot{Symbol: " btcusdt ", CandleClosed: true}))
	require.Len(t, proc.seen, 1)
	assert.Equal(t, "BTCUSDT", proc.seen[0].Symbol)
}

func TestPipelineRejectsInvalid(t *testing.T) {
	proc := &recordingProc{}
	p := NewSnapshotPipeline(proc, metrics.Nop{})

	err := p.Process(context.Background(), &models.IndicatorSnapshot{})
	_, ok := models.AsSchemaError(err)
	assert.True(t, ok)

	err = p.Process(context.Background(), &models.IndicatorSnapshot{
		Symbol:  "ETH",
		Metrics: map[string]float64{models.MetricBBWidth: math.NaN()},
	})
	se, ok := models.AsSchemaError(err)
	require.True(t, ok)
	assert.Equal(t, "metrics.bb_width", se.Issues[0].Field)

	assert.Error(t, p.Process(context.Background(), nil))
	assert.Empty(t, proc.seen)
}

func TestPipelineThrottlesOpenTicksOnly(t *testing.T) {
	proc := &recordingProc{}
	p := NewSnapshotPipeline(proc, metrics.Nop{}, WithMaxOpenTicks(1))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, p.Process(ctx, &models.IndicatorSnapshot{Symbol: "BTC"}))
	}
	assert.Len(t, proc.seen, 1)

	for i := 0; i < 3; i++ {
		require.NoError(t, p.Process(ctx, &models.IndicatorSnapshot{Symbol: "BTC", CandleClosed: true}))
	}
	assert.Len(t, proc.seen, 4)

	require.NoError(t, p.Process(ctx, &models.IndicatorSnapshot{Symbol: "ETH"}))
	assert.Len(t, proc.seen, 5)
}

func TestPipelineNoThrottle(t *testing.T) {
	proc := &recordingProc{}
	p := NewSnapshotPipeline(proc, metrics.Nop{}, WithMaxOpenTicks(0))
	for i := 0; i < 50; i++ {
		require.NoError(t, p.Process(context.Background(), &models.IndicatorSnapshot{Symbol: "BTC"}))
	}
	assert.Len(t, proc.seen, 50)
}

func TestPipelineWrapsDownstreamError(t *testing.T) {
	proc := &recordingProc{err: models.ErrDuplicateTick}
	p := NewSnapshotPipeline(proc, metrics.Nop{})

	err := p.Process(context.Background(), &models.IndicatorSnapshot{Symbol: "BTC", CandleClosed: true})
	assert.True(t, errors.Is(err, models.ErrDuplicateTick))
}

func TestPipelineTransform(t *testing.T) {
	proc := &recordingProc{}
	p := NewSnapshotPipeline(proc, metrics.Nop{}, WithTransform(func(s *models.IndicatorSnapshot) *models.IndicatorSnapshot {
		c := *s
		c.Symbol = "SOL"
		return &c
	}))
	require.NoError(t, p.Process(context.Background(), &models.IndicatorSnapshot{CandleClosed: true}))
	assert.Equal(t, "SOL", proc.seen[0].Symbol)
}
