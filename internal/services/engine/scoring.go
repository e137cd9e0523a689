package engine

import (
	"math"

	"EntryGate/internal/domain/models"
)

// scoreEpsilon absorbs float drift in weighted sums before comparisons.
const scoreEpsilon = 1e-9

// ScoreResult is the weighted score of one side plus what matched.
type ScoreResult struct {
	Value    float64
	CoreHits int
	PairHits int
	Matched  []string
}

// Score sums weights.Core per matched core condition and weights.Pair per
// pair whose two members both match. A nil set scores zero.
func Score(snap *models.IndicatorSnapshot, set *models.ConditionSet, w models.Weights) ScoreResult {
	r := ScoreResult{Matched: []string{}}
	if set == nil || snap == nil {
		return r
	}
	for _, c := range set.Core.Items() {
		if snap.Matches(c) {
			r.CoreHits++
			r.Matched = append(r.Matched, c.String())
		}
	}
	for _, p := range set.Pairs {
		if snap.Matches(p.First) && snap.Matches(p.Second) {
			r.PairHits++
			r.Matched = append(r.Matched, p.String())
		}
	}
	r.Value = w.Core*float64(r.CoreHits) + w.Pair*float64(r.PairHits)
	return r
}

func atLeast(v, floor float64) bool {
	return v+scoreEpsilon >= floor
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
