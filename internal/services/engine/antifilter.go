package engine

import "EntryGate/internal/domain/models"

// Admission is the gate verdict for one side.
type Admission struct {
	Eligible bool
	Reason   models.BlockReason
}

func blocked(r models.BlockReason) Admission { return Admission{Reason: r} }

// Admit runs the anti-filters for side in a fixed order and stops at the
// first one that refuses. streak must already include the current tick.
// A side the document does not define is never eligible.
func Admit(side models.Side, sc ScoreResult, snap *models.IndicatorSnapshot, doc *models.TradeConditions, streak int) Admission {
	set := doc.Set(side)
	if set == nil {
		return blocked(models.BlockBelowThreshold)
	}
	af := set.AntiFilters

	if af.RequireClosedCandle && !snap.CandleClosed {
		return blocked(models.BlockOpenCandle)
	}
	if af.ExclusiveBlockers && opposingCoreTriggered(snap, doc.Set(side.Opposite())) {
		return blocked(models.BlockExclusive)
	}
	if sc.PairHits < af.MinPairHits {
		return blocked(models.BlockMinPairHits)
	}
	if !qualifies(sc, set) {
		return blocked(models.BlockBelowThreshold)
	}
	if streak < af.HysteresisBars {
		return blocked(models.BlockHysteresis)
	}
	return Admission{Eligible: true}
}

// qualifies reports whether the score is at or above the side threshold.
// A score of zero never qualifies, so a side with nothing matched cannot be
// admitted through the gate even with a zero threshold.
func qualifies(sc ScoreResult, set *models.ConditionSet) bool {
	return set != nil && sc.Value > scoreEpsilon && atLeast(sc.Value, set.Threshold)
}

func opposingCoreTriggered(snap *models.IndicatorSnapshot, opposite *models.ConditionSet) bool {
	if opposite == nil {
		return false
	}
	for _, c := range opposite.Core.Items() {
		if snap.Matches(c) {
			return true
		}
	}
	return false
}
