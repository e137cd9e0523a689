package models

import (
	"strings"
	"time"
)

// Regime is the prevailing market trend label.
type Regime string

const (
	RegimeBullish Regime = "bullish"
	RegimeBearish Regime = "bearish"
	RegimeNeutral Regime = "neutral"
)

// ParseRegime lower-cases v. Unknown labels are kept verbatim and never
// align with a side.
func ParseRegime(v string) Regime {
	r := Regime(strings.ToLower(strings.TrimSpace(v)))
	if r == "" {
		return RegimeNeutral
	}
	return r
}

// Aligned returns the side the regime favours, or "" for none.
func (r Regime) Aligned() Side {
	switch r {
	case RegimeBullish:
		return SideLong
	case RegimeBearish:
		return SideShort
	}
	return ""
}

// Metric names read by the fast-track bypass.
const (
	MetricBBWidth = "bb_width"
	MetricProxHi  = "prox_hi"
	MetricProxLo  = "prox_lo"
)

// IndicatorSnapshot is one tick of discretised indicator states for a symbol.
type IndicatorSnapshot struct {
	Symbol       string             `json:"symbol" validate:"required"`
	Timestamp    time.Time          `json:"ts"`
	CandleClosed bool               `json:"candle_closed"`
	Regime       Regime             `json:"regime,omitempty"`
	States       map[string]string  `json:"states"`
	Metrics      map[string]float64 `json:"metrics,omitempty"`
	Raw          map[string]any     `json:"raw,omitempty"`
}

// State returns the current state label of an indicator.
func (s *IndicatorSnapshot) State(indicator string) (string, bool) {
	v, ok := s.States[indicator]
	return v, ok
}

// Matches reports whether c holds in this snapshot. States compare exactly.
func (s *IndicatorSnapshot) Matches(c IndicatorCondition) bool {
	v, ok := s.States[c.Indicator]
	return ok && v == c.State
}

// Metric returns a numeric metric.
func (s *IndicatorSnapshot) Metric(name string) (float64, bool) {
	v, ok := s.Metrics[name]
	return v, ok
}

// MarketState is the per-symbol memory carried between ticks.
type MarketState struct {
	LongStreak  int       `json:"long_streak"`
	ShortStreak int       `json:"short_streak"`
	LastClosed  time.Time `json:"last_closed,omitempty"`
}

// Streak returns consecutive at-or-above-threshold ticks for side.
func (m *MarketState) Streak(side Side) int {
	if side == SideShort {
		return m.ShortStreak
	}
	return m.LongStreak
}

// Observe advances the streak for side when qualifies holds and resets it
// otherwise. It returns the new streak.
func (m *MarketState) Observe(side Side, qualifies bool) int {
	p := &m.LongStreak
	if side == SideShort {
		p = &m.ShortStreak
	}
	if qualifies {
		*p++
	} else {
		*p = 0
	}
	return *p
}

// Reset clears both streaks.
func (m *MarketState) Reset() {
	m.LongStreak, m.ShortStreak = 0, 0
}
