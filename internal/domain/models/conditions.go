package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Side is a trade direction a condition set argues for.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Sides lists both directions in evaluation order.
var Sides = []Side{SideLong, SideShort}

// Opposite returns the other direction.
func (s Side) Opposite() Side {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

// ParseSide accepts "long"/"short" in any case.
func ParseSide(v string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case string(SideLong):
		return SideLong, nil
	case string(SideShort):
		return SideShort, nil
	}
	return "", NewSchemaError("side", fmt.Sprintf("unknown side %q", v))
}

const (
	ModeCustom  = "CUSTOM"
	ModeDefault = "DEFAULT"

	FallbackDefault     = "default"
	FallbackHold        = "hold"
	FallbackHigherScore = "higher_score"
)

// IndicatorCondition is an (indicator, state) tuple. It is encoded as a
// two-element JSON array: ["rsi_trend", "up"].
type IndicatorCondition struct {
	Indicator string
	State     string
}

// Cond is shorthand for building an IndicatorCondition.
func Cond(indicator, state string) IndicatorCondition {
	return IndicatorCondition{Indicator: indicator, State: state}
}

func (c IndicatorCondition) String() string {
	return c.Indicator + "=" + c.State
}

func (c IndicatorCondition) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{c.Indicator, c.State})
}

func (c *IndicatorCondition) UnmarshalJSON(b []byte) error {
	var raw []string
	if err := json.Unmarshal(b, &raw); err != nil {
		return NewSchemaError("condition", "must be an [indicator, state] array of strings")
	}
	if len(raw) != 2 {
		return NewSchemaError("condition", fmt.Sprintf("must have exactly 2 elements, got %d", len(raw)))
	}
	c.Indicator, c.State = raw[0], raw[1]
	return nil
}

// IndicatorPair is an ordered pair of conditions that scores only when both
// members match.
type IndicatorPair struct {
	First  IndicatorCondition
	Second IndicatorCondition
}

// Pair is shorthand for building an IndicatorPair.
func Pair(first, second IndicatorCondition) IndicatorPair {
	return IndicatorPair{First: first, Second: second}
}

func (p IndicatorPair) String() string {
	return p.First.String() + "&" + p.Second.String()
}

func (p IndicatorPair) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]IndicatorCondition{p.First, p.Second})
}

func (p *IndicatorPair) UnmarshalJSON(b []byte) error {
	var members []IndicatorCondition
	if err := json.Unmarshal(b, &members); err != nil {
		if se, ok := AsSchemaError(err); ok {
			return se.Prefix("pairs")
		}
		return NewSchemaError("pairs", "pair must be an array of two conditions")
	}
	if len(members) != 2 {
		return NewSchemaError("pairs", fmt.Sprintf("pair must have exactly 2 members, got %d", len(members)))
	}
	p.First, p.Second = members[0], members[1]
	return nil
}

// ConditionSet is the rule set for one direction.
type ConditionSet struct {
	Core        CoreSet         `json:"core"`
	Pairs       []IndicatorPair `json:"pairs"`
	Threshold   float64         `json:"threshold" validate:"gte=0"`
	AntiFilters AntiFilters     `json:"anti_filters"`
}

func (cs ConditionSet) MarshalJSON() ([]byte, error) {
	type alias ConditionSet
	a := alias(cs)
	if a.Pairs == nil {
		a.Pairs = []IndicatorPair{}
	}
	return json.Marshal(a)
}

// Clone returns a deep copy.
func (cs *ConditionSet) Clone() *ConditionSet {
	if cs == nil {
		return nil
	}
	out := &ConditionSet{
		Core:        cs.Core.Clone(),
		Threshold:   cs.Threshold,
		AntiFilters: cs.AntiFilters.Clone(),
	}
	if cs.Pairs != nil {
		out.Pairs = append([]IndicatorPair(nil), cs.Pairs...)
	}
	return out
}

// AntiFilters are admission gates applied after scoring. Keys this build does
// not know are kept in Extra and written back on save.
type AntiFilters struct {
	RequireClosedCandle bool `json:"require_closed_candle"`
	HysteresisBars      int  `json:"hysteresis_bars" validate:"gte=0"`
	MinPairHits         int  `json:"min_pair_hits" validate:"gte=0"`
	ExclusiveBlockers   bool `json:"exclusive_blockers"`

	Extra map[string]json.RawMessage `json:"-"`
}

var antiFilterKeys = map[string]struct{}{
	"require_closed_candle": {},
	"hysteresis_bars":       {},
	"min_pair_hits":         {},
	"exclusive_blockers":    {},
}

func (af AntiFilters) MarshalJSON() ([]byte, error) {
	type alias AntiFilters
	b, err := json.Marshal(alias(af))
	if err != nil || len(af.Extra) == 0 {
		return b, err
	}
	merged := make(map[string]json.RawMessage, len(antiFilterKeys)+len(af.Extra))
	if err := json.Unmarshal(b, &merged); err != nil {
		return nil, err
	}
	for k, v := range af.Extra {
		if _, known := antiFilterKeys[k]; !known {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

func (af *AntiFilters) UnmarshalJSON(b []byte) error {
	type alias AntiFilters
	var a alias
	if err := json.Unmarshal(b, &a); err != nil {
		return NewSchemaError("anti_filters", err.Error())
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(b, &all); err != nil {
		return NewSchemaError("anti_filters", err.Error())
	}
	for k, v := range all {
		if _, known := antiFilterKeys[k]; known {
			continue
		}
		if a.Extra == nil {
			a.Extra = make(map[string]json.RawMessage)
		}
		a.Extra[k] = append(json.RawMessage(nil), v...)
	}
	*af = AntiFilters(a)
	return nil
}

// Clone returns a copy with its own Extra map.
func (af AntiFilters) Clone() AntiFilters {
	out := af
	if af.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(af.Extra))
		for k, v := range af.Extra {
			out.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out
}

// FastTrackConfig describes the bypass that admits a strong setup without
// waiting for the gate.
type FastTrackConfig struct {
	Enable          bool    `json:"enable"`
	MinCores        int     `json:"min_cores" validate:"gte=0"`
	MinPairs        int     `json:"min_pairs" validate:"gte=0"`
	MinBarsInState  int     `json:"min_bars_in_state" validate:"gte=0"`
	AllowOpenCandle bool    `json:"allow_open_candle"`
	MinBBWidth      float64 `json:"min_bb_width" validate:"gte=0"`
	ProxHi          float64 `json:"prox_hi" validate:"gte=0,lte=1"`
	ProxLo          float64 `json:"prox_lo" validate:"gte=0,lte=1"`
}

// Weights are the per-hit score multipliers.
type Weights struct {
	Core float64 `json:"core" validate:"gte=0"`
	Pair float64 `json:"pair" validate:"gte=0"`
}

// DefaultWeights apply when a custom document carries no weights block.
var DefaultWeights = Weights{Core: 1, Pair: 2}

// TradeConditions is the whole user-editable document. The zero value is the
// empty document and marshals to {}.
type TradeConditions struct {
	Mode           string           `json:"mode" validate:"omitempty,oneof=CUSTOM DEFAULT"`
	Long           *ConditionSet    `json:"long,omitempty"`
	Short          *ConditionSet    `json:"short,omitempty"`
	FastTrack      *FastTrackConfig `json:"fasttrack,omitempty"`
	RegimeBonus    float64          `json:"regime_bonus"`
	Weights        *Weights         `json:"weights,omitempty"`
	DecisionDelta  float64          `json:"decision_delta" validate:"gte=0"`
	Fallback       string           `json:"fallback" validate:"omitempty,oneof=default hold higher_score"`
	TrendAlignment json.RawMessage  `json:"trend_alignment,omitempty"`
}

// IsEmpty reports whether the document carries no settings at all.
func (tc *TradeConditions) IsEmpty() bool {
	return tc == nil || (tc.Mode == "" && tc.Long == nil && tc.Short == nil &&
		tc.FastTrack == nil && tc.Weights == nil && tc.RegimeBonus == 0 &&
		tc.DecisionDelta == 0 && tc.Fallback == "" && len(tc.TrendAlignment) == 0)
}

// IsCustom reports whether the custom engine should evaluate this document.
func (tc *TradeConditions) IsCustom() bool {
	return tc != nil && tc.Mode == ModeCustom
}

func (tc TradeConditions) MarshalJSON() ([]byte, error) {
	if tc.IsEmpty() {
		return []byte("{}"), nil
	}
	type alias TradeConditions
	return json.Marshal(alias(tc))
}

// Set returns the condition set for side, or nil when absent.
func (tc *TradeConditions) Set(side Side) *ConditionSet {
	if side == SideShort {
		return tc.Short
	}
	return tc.Long
}

// EffectiveWeights returns the configured weights or DefaultWeights.
func (tc *TradeConditions) EffectiveWeights() Weights {
	if tc == nil || tc.Weights == nil {
		return DefaultWeights
	}
	return *tc.Weights
}

// EffectiveFallback maps an unset fallback to hold.
func (tc *TradeConditions) EffectiveFallback() string {
	if tc == nil || tc.Fallback == "" {
		return FallbackHold
	}
	return tc.Fallback
}

// Clone returns a deep copy.
func (tc *TradeConditions) Clone() *TradeConditions {
	if tc == nil {
		return &TradeConditions{}
	}
	out := *tc
	out.Long = tc.Long.Clone()
	out.Short = tc.Short.Clone()
	if tc.FastTrack != nil {
		ft := *tc.FastTrack
		out.FastTrack = &ft
	}
	if tc.Weights != nil {
		w := *tc.Weights
		out.Weights = &w
	}
	if tc.TrendAlignment != nil {
		out.TrendAlignment = append(json.RawMessage(nil), tc.TrendAlignment...)
	}
	return &out
}

// DecodeConditions parses a document strictly: unknown top-level and
// condition-set keys are rejected, anti-filter keys are preserved.
func DecodeConditions(b []byte) (*TradeConditions, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil, NewSchemaError("", "empty document")
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var tc TradeConditions
	if err := dec.Decode(&tc); err != nil {
		if se, ok := AsSchemaError(err); ok {
			return nil, se
		}
		return nil, NewSchemaError("", err.Error())
	}
	if dec.More() {
		return nil, NewSchemaError("", "trailing data after document")
	}
	return &tc, nil
}

// DefaultConditions is the example custom document offered to editors.
func DefaultConditions() *TradeConditions {
	return &TradeConditions{
		Mode: ModeCustom,
		Long: &ConditionSet{
			Core: NewCoreSet(
				Cond("macd_crossed", "bullish_cross"),
				Cond("macd_hist_direction", "up"),
				Cond("rsi_trend", "up"),
				Cond("microtrend_5m", "bullish"),
			),
			Pairs: []IndicatorPair{
				Pair(Cond("support_position", "near_support"), Cond("microtrend_1m", "bullish")),
				Pair(Cond("boll_bucket", "<=30"), Cond("rsi_bucket", "<=30")),
			},
			Threshold:   9.5,
			AntiFilters: AntiFilters{RequireClosedCandle: true, HysteresisBars: 1, MinPairHits: 2},
		},
		Short: &ConditionSet{
			Core: NewCoreSet(
				Cond("macd_crossed", "bearish_cross"),
				Cond("macd_hist_direction", "down"),
				Cond("rsi_trend", "down"),
				Cond("microtrend_5m", "bearish"),
			),
			Pairs: []IndicatorPair{
				Pair(Cond("support_position", "near_resistance"), Cond("microtrend_1m", "bearish")),
				Pair(Cond("boll_bucket", ">70"), Cond("rsi_bucket", ">70")),
			},
			Threshold:   9.5,
			AntiFilters: AntiFilters{RequireClosedCandle: true, HysteresisBars: 1, MinPairHits: 2},
		},
		FastTrack: &FastTrackConfig{
			Enable:          true,
			MinCores:        2,
			MinPairs:        1,
			MinBarsInState:  1,
			AllowOpenCandle: true,
			MinBBWidth:      0.003,
			ProxHi:          0.98,
			ProxLo:          0.98,
		},
		RegimeBonus:   0.8,
		Weights:       &Weights{Core: 3.5, Pair: 1.6},
		DecisionDelta: 0.5,
		Fallback:      FallbackDefault,
	}
}
