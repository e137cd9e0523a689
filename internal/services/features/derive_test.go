package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EntryGate/internal/domain/models"
)

func TestDeriveBuckets(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
		key  string
		want string
	}{
		{"rsi low edge inclusive", map[string]any{"rsi_value": 30.0}, "rsi_bucket", "<=30"},
		{"rsi mid", map[string]any{"rsi_value": 45.5}, "rsi_bucket", "40-50"},
		{"rsi high", map[string]any{"rsi_value": "71"}, "rsi_bucket", ">70"},
		{"stoch k", map[string]any{"stoch_k": 85}, "stoch_k_bucket", ">80"},
		{"stoch d", map[string]any{"stoch_d": 20.0}, "stoch_d_bucket", "<=20"},
		{"boll fraction scaled", map[string]any{"bollinger_position": 0.25}, "boll_bucket", "<=30"},
		{"boll percent", map[string]any{"bollinger_position": 50.0}, "boll_bucket", "45-55"},
		{"boll fraction top", map[string]any{"bollinger_position": 0.9}, "boll_bucket", ">70"},
		{"cci deep", map[string]any{"cci_value": -150.0}, "cci_bucket", "<=-100"},
		{"cci negative", map[string]any{"cci_value": -10.0}, "cci_bucket", "-100-0"},
		{"cci positive", map[string]any{"cci_value": 100.0}, "cci_bucket", "0-100"},
		{"cci high", map[string]any{"cci_value": 140.0}, "cci_bucket", ">100"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Derive(&models.IndicatorSnapshot{Raw: tt.raw})
			assert.Equal(t, tt.want, out.States[tt.key])
		})
	}
}

func TestDeriveNormalisesStrings(t *testing.T) {
	snap := &models.IndicatorSnapshot{
		States: map[string]string{"rsi_trend": "UP", "macd_crossed": "Sideways"},
		Raw:    map[string]any{"support_position": " Near_Support ", "microtrend_1m": "Bullish"},
	}
	out := Derive(snap)

	assert.Equal(t, "up", out.States["rsi_trend"])
	assert.Equal(t, "near_support", out.States["support_position"])
	assert.Equal(t, "bullish", out.States["microtrend_1m"])
	assert.Equal(t, "neutral", out.States["microtrend_5m"])
	assert.Equal(t, "none", out.States["macd_crossed"])
}

func TestDerivePatternFlags(t *testing.T) {
	out := Derive(&models.IndicatorSnapshot{Raw: map[string]any{"patterns": []any{"Hammer", "doji", 3}}})
	assert.Equal(t, "yes", out.States["pat_hammer"])
	assert.Equal(t, "yes", out.States["pat_doji"])
	assert.Equal(t, "no", out.States["pat_shooting_star"])

	kept := Derive(&models.IndicatorSnapshot{States: map[string]string{"pat_hammer": "yes"}})
	assert.Equal(t, "yes", kept.States["pat_hammer"])
}

func TestDeriveDoesNotMutateInput(t *testing.T) {
	snap := &models.IndicatorSnapshot{
		States:  map[string]string{"rsi_trend": "UP"},
		Metrics: map[string]float64{"prox_lo": 0.5},
		Raw:     map[string]any{"rsi_value": 10.0, "bb_width_pct": 0.004},
	}
	out := Derive(snap)

	assert.Equal(t, "UP", snap.States["rsi_trend"])
	assert.NotContains(t, snap.States, "rsi_bucket")
	assert.NotContains(t, snap.Metrics, models.MetricBBWidth)

	require.Contains(t, out.Metrics, models.MetricBBWidth)
	assert.InDelta(t, 0.004, out.Metrics[models.MetricBBWidth], 1e-12)
	assert.Equal(t, "<=30", out.States["rsi_bucket"])
}

func TestDeriveNormalisesRegime(t *testing.T) {
	tests := map[models.Regime]models.Regime{
		"Bullish":   models.RegimeBullish,
		" BEARISH ": models.RegimeBearish,
		"":          models.RegimeNeutral,
	}
	for in, want := range tests {
		out := NewDeriver().Derive(&models.IndicatorSnapshot{Symbol: "X", Regime: in})
		assert.Equal(t, want, out.Regime, "regime %q", in)
	}
}

func TestDeriveMetricFallback(t *testing.T) {
	out := Derive(&models.IndicatorSnapshot{Metrics: map[string]float64{"rsi_value": 65}})
	assert.Equal(t, "60-70", out.States["rsi_bucket"])
}
