package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Named setters. They mutate a working copy; the caller validates the result
// once before it is saved.

func (tc *TradeConditions) ensure(side Side) *ConditionSet {
	if side == SideShort {
		if tc.Short == nil {
			tc.Short = &ConditionSet{}
		}
		return tc.Short
	}
	if tc.Long == nil {
		tc.Long = &ConditionSet{}
	}
	return tc.Long
}

func (tc *TradeConditions) SetMode(mode string) { tc.Mode = mode }

func (tc *TradeConditions) SetThreshold(side Side, v float64) {
	tc.ensure(side).Threshold = v
}

func (tc *TradeConditions) SetRequireClosedCandle(side Side, v bool) {
	tc.ensure(side).AntiFilters.RequireClosedCandle = v
}

func (tc *TradeConditions) SetHysteresisBars(side Side, n int) {
	tc.ensure(side).AntiFilters.HysteresisBars = n
}

func (tc *TradeConditions) SetMinPairHits(side Side, n int) {
	tc.ensure(side).AntiFilters.MinPairHits = n
}

func (tc *TradeConditions) SetExclusiveBlockers(side Side, v bool) {
	tc.ensure(side).AntiFilters.ExclusiveBlockers = v
}

// ToggleCore flips c in the side's core set and reports whether it is now set.
func (tc *TradeConditions) ToggleCore(side Side, c IndicatorCondition) bool {
	return tc.ensure(side).Core.Toggle(c)
}

// AddPair appends p. Identical pairs are allowed and each one scores.
func (tc *TradeConditions) AddPair(side Side, p IndicatorPair) {
	set := tc.ensure(side)
	set.Pairs = append(set.Pairs, p)
}

// RemovePair deletes the pair at index i.
func (tc *TradeConditions) RemovePair(side Side, i int) error {
	set := tc.ensure(side)
	if i < 0 || i >= len(set.Pairs) {
		return fmt.Errorf("%w: %d (have %d)", ErrPairIndex, i, len(set.Pairs))
	}
	set.Pairs = append(set.Pairs[:i:i], set.Pairs[i+1:]...)
	return nil
}

func (tc *TradeConditions) SetFastTrack(ft FastTrackConfig) { tc.FastTrack = &ft }

func (tc *TradeConditions) ensureFastTrack() *FastTrackConfig {
	if tc.FastTrack == nil {
		tc.FastTrack = &FastTrackConfig{}
	}
	return tc.FastTrack
}

func (tc *TradeConditions) SetFastTrackEnable(v bool) { tc.ensureFastTrack().Enable = v }

func (tc *TradeConditions) SetFastTrackMinCores(n int) { tc.ensureFastTrack().MinCores = n }

func (tc *TradeConditions) SetFastTrackMinPairs(n int) { tc.ensureFastTrack().MinPairs = n }

func (tc *TradeConditions) SetFastTrackMinBarsInState(n int) { tc.ensureFastTrack().MinBarsInState = n }

func (tc *TradeConditions) SetFastTrackAllowOpenCandle(v bool) { tc.ensureFastTrack().AllowOpenCandle = v }

func (tc *TradeConditions) SetFastTrackMinBBWidth(v float64) { tc.ensureFastTrack().MinBBWidth = v }

func (tc *TradeConditions) SetFastTrackProxHi(v float64) { tc.ensureFastTrack().ProxHi = v }

func (tc *TradeConditions) SetFastTrackProxLo(v float64) { tc.ensureFastTrack().ProxLo = v }

func (tc *TradeConditions) SetWeights(w Weights) { tc.Weights = &w }

// ensureWeights materialises the effective weights so a single-field change
// keeps the other multiplier.
func (tc *TradeConditions) ensureWeights() *Weights {
	if tc.Weights == nil {
		w := DefaultWeights
		tc.Weights = &w
	}
	return tc.Weights
}

func (tc *TradeConditions) SetCoreWeight(v float64) { tc.ensureWeights().Core = v }

func (tc *TradeConditions) SetPairWeight(v float64) { tc.ensureWeights().Pair = v }

func (tc *TradeConditions) SetRegimeBonus(v float64) { tc.RegimeBonus = v }

func (tc *TradeConditions) SetDecisionDelta(v float64) { tc.DecisionDelta = v }

func (tc *TradeConditions) SetFallback(f string) { tc.Fallback = f }

// SidePatch carries the per-side scalar fields a PATCH may change.
type SidePatch struct {
	Threshold           *float64 `json:"threshold,omitempty"`
	RequireClosedCandle *bool    `json:"require_closed_candle,omitempty"`
	HysteresisBars      *int     `json:"hysteresis_bars,omitempty"`
	MinPairHits         *int     `json:"min_pair_hits,omitempty"`
	ExclusiveBlockers   *bool    `json:"exclusive_blockers,omitempty"`
}

// FastTrackPatch changes individual fast-track fields.
type FastTrackPatch struct {
	Enable          *bool    `json:"enable,omitempty"`
	MinCores        *int     `json:"min_cores,omitempty"`
	MinPairs        *int     `json:"min_pairs,omitempty"`
	MinBarsInState  *int     `json:"min_bars_in_state,omitempty"`
	AllowOpenCandle *bool    `json:"allow_open_candle,omitempty"`
	MinBBWidth      *float64 `json:"min_bb_width,omitempty"`
	ProxHi          *float64 `json:"prox_hi,omitempty"`
	ProxLo          *float64 `json:"prox_lo,omitempty"`
}

// WeightsPatch changes one or both score multipliers.
type WeightsPatch struct {
	Core *float64 `json:"core,omitempty"`
	Pair *float64 `json:"pair,omitempty"`
}

// ConditionsPatch is a partial update; nil fields are left untouched.
type ConditionsPatch struct {
	Mode          *string          `json:"mode,omitempty"`
	Long          *SidePatch       `json:"long,omitempty"`
	Short         *SidePatch       `json:"short,omitempty"`
	FastTrack     *FastTrackPatch `json:"fasttrack,omitempty"`
	Weights       *WeightsPatch   `json:"weights,omitempty"`
	RegimeBonus   *float64        `json:"regime_bonus,omitempty"`
	DecisionDelta *float64        `json:"decision_delta,omitempty"`
	Fallback      *string         `json:"fallback,omitempty"`
}

// DecodePatch parses a PATCH body strictly so a misspelled key is a schema
// error rather than an empty change.
func DecodePatch(b []byte) (*ConditionsPatch, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil, NewSchemaError("", "empty patch")
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var p ConditionsPatch
	if err := dec.Decode(&p); err != nil {
		return nil, NewSchemaError("", err.Error())
	}
	if dec.More() {
		return nil, NewSchemaError("", "trailing data after patch")
	}
	return &p, nil
}

// ApplyTo writes the patch into tc through the named setters.
func (p *ConditionsPatch) ApplyTo(tc *TradeConditions) {
	if p.Mode != nil {
		tc.SetMode(*p.Mode)
	}
	p.Long.applyTo(tc, SideLong)
	p.Short.applyTo(tc, SideShort)
	p.FastTrack.applyTo(tc)
	p.Weights.applyTo(tc)
	if p.RegimeBonus != nil {
		tc.SetRegimeBonus(*p.RegimeBonus)
	}
	if p.DecisionDelta != nil {
		tc.SetDecisionDelta(*p.DecisionDelta)
	}
	if p.Fallback != nil {
		tc.SetFallback(*p.Fallback)
	}
}

func (sp *SidePatch) applyTo(tc *TradeConditions, side Side) {
	if sp == nil {
		return
	}
	if sp.Threshold != nil {
		tc.SetThreshold(side, *sp.Threshold)
	}
	if sp.RequireClosedCandle != nil {
		tc.SetRequireClosedCandle(side, *sp.RequireClosedCandle)
	}
	if sp.HysteresisBars != nil {
		tc.SetHysteresisBars(side, *sp.HysteresisBars)
	}
	if sp.MinPairHits != nil {
		tc.SetMinPairHits(side, *sp.MinPairHits)
	}
	if sp.ExclusiveBlockers != nil {
		tc.SetExclusiveBlockers(side, *sp.ExclusiveBlockers)
	}
}

func (fp *FastTrackPatch) applyTo(tc *TradeConditions) {
	if fp == nil {
		return
	}
	if fp.Enable != nil {
		tc.SetFastTrackEnable(*fp.Enable)
	}
	if fp.MinCores != nil {
		tc.SetFastTrackMinCores(*fp.MinCores)
	}
	if fp.MinPairs != nil {
		tc.SetFastTrackMinPairs(*fp.MinPairs)
	}
	if fp.MinBarsInState != nil {
		tc.SetFastTrackMinBarsInState(*fp.MinBarsInState)
	}
	if fp.AllowOpenCandle != nil {
		tc.SetFastTrackAllowOpenCandle(*fp.AllowOpenCandle)
	}
	if fp.MinBBWidth != nil {
		tc.SetFastTrackMinBBWidth(*fp.MinBBWidth)
	}
	if fp.ProxHi != nil {
		tc.SetFastTrackProxHi(*fp.ProxHi)
	}
	if fp.ProxLo != nil {
		tc.SetFastTrackProxLo(*fp.ProxLo)
	}
}

func (wp *WeightsPatch) applyTo(tc *TradeConditions) {
	if wp == nil {
		return
	}
	if wp.Core != nil {
		tc.SetCoreWeight(*wp.Core)
	}
	if wp.Pair != nil {
		tc.SetPairWeight(*wp.Pair)
	}
}
