package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDoc = `{
  "mode": "CUSTOM",
  "long": {
    "core": [["macd_crossed","bullish_cross"],["rsi_trend","up"],["macd_crossed","bullish_cross"]],
    "pairs": [[["boll_bucket","<=30"],["rsi_bucket","<=30"]]],
    "threshold": 9.5,
    "anti_filters": {"require_closed_candle": true, "hysteresis_bars": 1, "min_pair_hits": 2, "exclusive_blockers": false, "cooldown_bars": 3}
  },
  "short": {
    "core": [["rsi_trend","down"]],
    "pairs": [],
    "threshold": 9.5,
    "anti_filters": {}
  },
  "fasttrack": {"enable": true, "min_cores": 2, "min_pairs": 1, "min_bars_in_state": 1, "allow_open_candle": true, "min_bb_width": 0.003, "prox_hi": 0.98, "prox_lo": 0.98},
  "regime_bonus": 0.8,
  "weights": {"core": 3.5, "pair": 1.6},
  "decision_delta": 0.5,
  "fallback": "default"
}`

func TestDecodeConditions(t *testing.T) {
	doc, err := DecodeConditions([]byte(sampleDoc))
	require.NoError(t, err)
	require.NoError(t, doc.Validate())

	assert.True(t, doc.IsCustom())
	assert.Equal(t, 2, doc.Long.Core.Len(), "duplicate core entries collapse")
	assert.Equal(t, []IndicatorCondition{Cond("macd_crossed", "bullish_cross"), Cond("rsi_trend", "up")}, doc.Long.Core.Items())
	require.Len(t, doc.Long.Pairs, 1)
	assert.Equal(t, Cond("rsi_bucket", "<=30"), doc.Long.Pairs[0].Second)
	assert.JSONEq(t, `3`, string(doc.Long.AntiFilters.Extra["cooldown_bars"]))
	assert.Equal(t, 3.5, doc.EffectiveWeights().Core)
}

func TestConditionsRoundTripIsStable(t *testing.T) {
	doc, err := DecodeConditions([]byte(sampleDoc))
	require.NoError(t, err)

	first, err := json.Marshal(doc)
	require.NoError(t, err)
	again, err := DecodeConditions(first)
	require.NoError(t, err)
	second, err := json.Marshal(again)
	require.NoError(t, err)

	assert.JSONEq(t, string(first), string(second))
	assert.Contains(t, string(first), `"cooldown_bars":3`)
}

func TestDefaultConditionsRoundTrip(t *testing.T) {
	b, err := json.Marshal(DefaultConditions())
	require.NoError(t, err)
	doc, err := DecodeConditions(b)
	require.NoError(t, err)
	require.NoError(t, doc.Validate())

	again, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.JSONEq(t, string(b), string(again))
}

func TestEmptyDocument(t *testing.T) {
	b, err := json.Marshal(&TradeConditions{})
	require.NoError(t, err)
	assert.Equal(t, "{}", string(b))

	doc, err := DecodeConditions([]byte(`{}`))
	require.NoError(t, err)
	assert.True(t, doc.IsEmpty())
	assert.False(t, doc.IsCustom())
	assert.NoError(t, doc.Validate())
}

func TestDecodeRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"pair with three members", `{"long":{"pairs":[[["a","1"],["b","2"],["c","3"]]]}}`},
		{"pair with one member", `{"long":{"pairs":[[["a","1"]]]}}`},
		{"condition with one element", `{"long":{"core":[["a"]]}}`},
		{"unknown top-level key", `{"mode":"CUSTOM","weight":{}}`},
		{"unknown fasttrack key", `{"fasttrack":{"enabled":true}}`},
		{"not json", `{"mode":`},
		{"empty body", ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeConditions([]byte(tt.body))
			require.Error(t, err)
			_, ok := AsSchemaError(err)
			assert.True(t, ok, "want SchemaError, got %T: %v", err, err)
		})
	}
}

func TestValidateRanges(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*TradeConditions)
		field string
	}{
		{"negative threshold", func(tc *TradeConditions) { tc.Long.Threshold = -1 }, "long.threshold"},
		{"negative core weight", func(tc *TradeConditions) { tc.Weights.Core = -0.5 }, "weights.core"},
		{"negative delta", func(tc *TradeConditions) { tc.DecisionDelta = -0.1 }, "decision_delta"},
		{"unknown fallback", func(tc *TradeConditions) { tc.Fallback = "coin_flip" }, "fallback"},
		{"unknown mode", func(tc *TradeConditions) { tc.Mode = "AUTO" }, "mode"},
		{"prox above one", func(tc *TradeConditions) { tc.FastTrack.ProxHi = 1.2 }, "fasttrack.prox_hi"},
		{"negative hysteresis", func(tc *TradeConditions) { tc.Short.AntiFilters.HysteresisBars = -2 }, "short.anti_filters.hysteresis_bars"},
		{"empty indicator", func(tc *TradeConditions) { tc.Long.Core.Add(Cond("", "up")) }, "long.core"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := DefaultConditions()
			tt.edit(doc)
			err := doc.Validate()
			se, ok := AsSchemaError(err)
			require.True(t, ok, "want SchemaError, got %v", err)
			require.NotEmpty(t, se.Issues)
			assert.Equal(t, tt.field, se.Issues[0].Field)
		})
	}
}

func TestNormalize(t *testing.T) {
	doc := &TradeConditions{Mode: " custom", Fallback: "Higher_Score"}
	doc.Normalize()
	assert.Equal(t, ModeCustom, doc.Mode)
	assert.Equal(t, FallbackHigherScore, doc.Fallback)
	assert.NoError(t, doc.Validate())
}

func TestEffectiveFallback(t *testing.T) {
	assert.Equal(t, FallbackHold, (&TradeConditions{}).EffectiveFallback())
	assert.Equal(t, FallbackDefault, DefaultConditions().EffectiveFallback())
	assert.Equal(t, DefaultWeights, (&TradeConditions{}).EffectiveWeights())
}

func TestCloneIsDeep(t *testing.T) {
	doc, err := DecodeConditions([]byte(sampleDoc))
	require.NoError(t, err)
	cp := doc.Clone()

	cp.Long.Core.Toggle(Cond("rsi_trend", "up"))
	cp.Long.Pairs[0].First.State = ">70"
	cp.Long.AntiFilters.Extra["cooldown_bars"] = json.RawMessage(`9`)
	cp.FastTrack.MinCores = 9
	cp.Weights.Pair = 9

	assert.True(t, doc.Long.Core.Contains(Cond("rsi_trend", "up")))
	assert.Equal(t, "<=30", doc.Long.Pairs[0].First.State)
	assert.JSONEq(t, `3`, string(doc.Long.AntiFilters.Extra["cooldown_bars"]))
	assert.Equal(t, 2, doc.FastTrack.MinCores)
	assert.Equal(t, 1.6, doc.Weights.Pair)
}

func TestPatchApply(t *testing.T) {
	doc := DefaultConditions()
	th := 7.0
	bars := 3
	core := 2.0
	fb := FallbackHigherScore
	p := &ConditionsPatch{
		Short:    &SidePatch{Threshold: &th, HysteresisBars: &bars},
		Fallback: &fb,
		Weights:  &WeightsPatch{Core: &core},
	}
	p.ApplyTo(doc)

	assert.Equal(t, 7.0, doc.Short.Threshold)
	assert.Equal(t, 3, doc.Short.AntiFilters.HysteresisBars)
	assert.True(t, doc.Short.AntiFilters.RequireClosedCandle, "untouched field kept")
	assert.Equal(t, 9.5, doc.Long.Threshold)
	assert.Equal(t, FallbackHigherScore, doc.Fallback)
	assert.Equal(t, 2.0, doc.Weights.Core)
	assert.Equal(t, 1.6, doc.Weights.Pair, "pair weight kept")
}

func TestPatchFastTrackKeepsOtherFields(t *testing.T) {
	doc := DefaultConditions()
	before := *doc.FastTrack
	p, err := DecodePatch([]byte(`{"fasttrack":{"min_cores":3}}`))
	require.NoError(t, err)
	p.ApplyTo(doc)

	want := before
	want.MinCores = 3
	assert.Equal(t, want, *doc.FastTrack)
}

func TestPatchWeightsOnBareDocument(t *testing.T) {
	doc := &TradeConditions{Mode: ModeCustom}
	pair := 5.0
	(&ConditionsPatch{Weights: &WeightsPatch{Pair: &pair}}).ApplyTo(doc)
	require.NotNil(t, doc.Weights)
	assert.Equal(t, Weights{Core: DefaultWeights.Core, Pair: 5}, *doc.Weights)
}

func TestDecodePatchRejectsUnknownKeys(t *testing.T) {
	cases := map[string]string{
		"top level": `{"decison_delta":5}`,
		"fasttrack": `{"fasttrack":{"min_core":3}}`,
		"weights":   `{"weights":{"cores":2}}`,
		"side":      `{"long":{"treshold":2}}`,
		"empty":     ``,
		"trailing":  `{"mode":"custom"} {}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodePatch([]byte(body))
			_, ok := AsSchemaError(err)
			assert.True(t, ok, "got %v", err)
		})
	}
}

func TestSettersCreateMissingSide(t *testing.T) {
	doc := &TradeConditions{}
	doc.SetThreshold(SideShort, 4)
	require.NotNil(t, doc.Short)
	assert.Nil(t, doc.Long)

	doc.AddPair(SideShort, Pair(Cond("a", "1"), Cond("b", "2")))
	doc.AddPair(SideShort, Pair(Cond("c", "1"), Cond("d", "2")))
	require.NoError(t, doc.RemovePair(SideShort, 0))
	require.Len(t, doc.Short.Pairs, 1)
	assert.Equal(t, "c", doc.Short.Pairs[0].First.Indicator)

	err := doc.RemovePair(SideShort, 5)
	assert.ErrorIs(t, err, ErrPairIndex)
}

func TestParseSide(t *testing.T) {
	s, err := ParseSide("long")
	require.NoError(t, err)
	assert.Equal(t, SideLong, s)
	assert.Equal(t, SideShort, s.Opposite())

	_, err = ParseSide("sideways")
	assert.Error(t, err)
}
