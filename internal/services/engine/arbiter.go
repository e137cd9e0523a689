package engine

import (
	"math"

	"EntryGate/internal/domain/models"
)

// ArbiterInput is everything the arbiter looks at.
type ArbiterInput struct {
	LongScore      float64
	ShortScore     float64
	LongCandidate  bool
	ShortCandidate bool
	Regime         models.Regime
	RegimeBonus    float64
	DecisionDelta  float64
	Fallback       string
}

// Outcome is the arbiter verdict. Deferred means the caller must ask the
// default rules for the decision.
type Outcome struct {
	Decision      models.Decision
	Deferred      bool
	FallbackUsed  string
	LongAdjusted  float64
	ShortAdjusted float64
	Margin        float64
	Reason        string
}

// Arbitrate picks at most one side.
func Arbitrate(in ArbiterInput) Outcome {
	out := Outcome{LongAdjusted: in.LongScore, ShortAdjusted: in.ShortScore}
	switch in.Regime.Aligned() {
	case models.SideLong:
		out.LongAdjusted += in.RegimeBonus
	case models.SideShort:
		out.ShortAdjusted += in.RegimeBonus
	}
	out.Margin = math.Abs(out.LongAdjusted - out.ShortAdjusted)

	switch {
	case !in.LongCandidate && !in.ShortCandidate:
		out.Decision = models.DecisionNone
		out.Reason = "no candidate"
		return out
	case in.LongCandidate && !in.ShortCandidate:
		out.Decision = models.DecisionLong
		out.Reason = "long is the only candidate"
		return out
	case in.ShortCandidate && !in.LongCandidate:
		out.Decision = models.DecisionShort
		out.Reason = "short is the only candidate"
		return out
	}

	if out.Margin > scoreEpsilon && atLeast(out.Margin, in.DecisionDelta) {
		out.Decision = higher(out.LongAdjusted, out.ShortAdjusted)
		out.Reason = "margin clears decision delta"
		return out
	}

	out.FallbackUsed = in.Fallback
	if out.FallbackUsed == "" {
		out.FallbackUsed = models.FallbackHold
	}
	switch out.FallbackUsed {
	case models.FallbackDefault:
		out.Decision = models.DecisionNone
		out.Deferred = true
		out.Reason = "margin below decision delta, deferred to default rules"
	case models.FallbackHigherScore:
		out.Decision = higher(out.LongAdjusted, out.ShortAdjusted)
		out.Reason = "margin below decision delta, higher score taken"
	default:
		out.Decision = models.DecisionNone
		out.Reason = "margin below decision delta, holding"
	}
	return out
}

// higher breaks exact ties toward LONG.
func higher(long, short float64) models.Decision {
	if long+scoreEpsilon >= short {
		return models.DecisionLong
	}
	return models.DecisionShort
}
