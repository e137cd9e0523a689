package models

import "time"

// Decision is the arbitrated outcome of one tick.
type Decision string

const (
	DecisionLong  Decision = "LONG"
	DecisionShort Decision = "SHORT"
	DecisionNone  Decision = "NONE"
)

// DecisionFor maps a side to its decision.
func DecisionFor(side Side) Decision {
	if side == SideShort {
		return DecisionShort
	}
	return DecisionLong
}

// BlockReason names the first gate that refused a side.
type BlockReason string

const (
	BlockOpenCandle     BlockReason = "open_candle"
	BlockExclusive      BlockReason = "exclusive_blocker"
	BlockMinPairHits    BlockReason = "min_pair_hits"
	BlockBelowThreshold BlockReason = "below_threshold"
	BlockHysteresis     BlockReason = "hysteresis"
	BlockNone           BlockReason = ""
)

// Phase is where a side sits on its way to admission.
type Phase string

const (
	PhaseBelowThreshold Phase = "BELOW_THRESHOLD"
	PhaseArming         Phase = "ARMING"
	PhaseAdmitted       Phase = "ADMITTED"
)

const (
	EngineCustom  = "custom"
	EngineDefault = "default"
)

// SideResult is the per-direction breakdown of an evaluation.
type SideResult struct {
	Side          Side        `json:"side"`
	Score         float64     `json:"score"`
	AdjustedScore float64     `json:"adjusted_score"`
	Threshold     float64     `json:"threshold"`
	CoreHits      int         `json:"core_hits"`
	PairHits      int         `json:"pair_hits"`
	Matched       []string    `json:"matched"`
	Streak        int         `json:"streak"`
	Eligible      bool        `json:"eligible"`
	BlockReason   BlockReason `json:"block_reason,omitempty"`
	Bypassed      bool        `json:"bypassed"`
	BypassNote    string      `json:"bypass_note,omitempty"`
	Phase         Phase       `json:"phase"`
}

// Candidate reports whether the side reached the arbiter.
func (r SideResult) Candidate() bool {
	return r.Eligible || r.Bypassed
}

// Evaluation is the full record of one tick.
type Evaluation struct {
	ID        string     `json:"id"`
	Symbol    string     `json:"symbol"`
	Timestamp time.Time  `json:"ts"`
	Version   int64      `json:"version"`
	Engine    string     `json:"engine"`
	Decision  Decision   `json:"decision"`
	Deferred  bool       `json:"deferred"`
	Fallback  string     `json:"fallback,omitempty"`
	Margin    float64    `json:"margin"`
	Regime    Regime     `json:"regime,omitempty"`
	Reason    string     `json:"reason"`
	Long      SideResult `json:"long"`
	Short     SideResult `json:"short"`
}

// Result returns the breakdown for side.
func (e *Evaluation) Result(side Side) *SideResult {
	if side == SideShort {
		return &e.Short
	}
	return &e.Long
}
