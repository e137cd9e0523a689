package engine

import (
	"EntryGate/internal/domain/models"
	domsvc "EntryGate/internal/domain/service"
)

// CustomEngine evaluates ticks against one immutable conditions document.
type CustomEngine struct {
	doc      *models.TradeConditions
	version  int64
	weights  models.Weights
	fallback domsvc.Evaluator
}

// NewCustomEngine binds a document version. fallback answers deferred ties
// and may be nil, in which case a deferred tie resolves to NONE.
func NewCustomEngine(v *models.VersionedConditions, fallback domsvc.Evaluator) *CustomEngine {
	return &CustomEngine{
		doc:      v.Document,
		version:  v.Version,
		weights:  v.Document.EffectiveWeights(),
		fallback: fallback,
	}
}

func (e *CustomEngine) Name() string { return models.EngineCustom }

func (e *CustomEngine) Evaluate(snap *models.IndicatorSnapshot, state *models.MarketState) models.Evaluation {
	ev := models.Evaluation{
		Symbol:    snap.Symbol,
		Timestamp: snap.Timestamp,
		Version:   e.version,
		Engine:    models.EngineCustom,
		Regime:    snap.Regime,
	}
	ev.Long = e.evaluateSide(models.SideLong, snap, state)
	ev.Short = e.evaluateSide(models.SideShort, snap, state)

	out := Arbitrate(ArbiterInput{
		LongScore:      ev.Long.Score,
		ShortScore:     ev.Short.Score,
		LongCandidate:  ev.Long.Candidate(),
		ShortCandidate: ev.Short.Candidate(),
		Regime:         snap.Regime,
		RegimeBonus:    e.doc.RegimeBonus,
		DecisionDelta:  e.doc.DecisionDelta,
		Fallback:       e.doc.EffectiveFallback(),
	})
	ev.Long.AdjustedScore = round3(out.LongAdjusted)
	ev.Short.AdjustedScore = round3(out.ShortAdjusted)
	ev.Long.Score = round3(ev.Long.Score)
	ev.Short.Score = round3(ev.Short.Score)
	ev.Margin = round3(out.Margin)
	ev.Decision = out.Decision
	ev.Fallback = out.FallbackUsed
	ev.Reason = out.Reason

	if out.Deferred {
		ev.Deferred = true
		if e.fallback != nil {
			fb := e.fallback.Evaluate(snap, &models.MarketState{})
			ev.Decision = fb.Decision
			ev.Reason = out.Reason + ": " + fb.Reason
		}
	}
	return ev
}

func (e *CustomEngine) evaluateSide(side models.Side, snap *models.IndicatorSnapshot, state *models.MarketState) models.SideResult {
	set := e.doc.Set(side)
	sc := Score(snap, set, e.weights)

	res := models.SideResult{
		Side:     side,
		Score:    sc.Value,
		CoreHits: sc.CoreHits,
		PairHits: sc.PairHits,
		Matched:  sc.Matched,
	}
	if set != nil {
		res.Threshold = set.Threshold
	}
	above := qualifies(sc, set)
	res.Streak = state.Observe(side, above)

	adm := Admit(side, sc, snap, e.doc, res.Streak)
	res.Eligible = adm.Eligible
	res.BlockReason = adm.Reason

	bp := TryBypass(side, snap, set, sc, e.doc.FastTrack, res.Streak)
	res.Bypassed = bp.OK
	res.BypassNote = bp.Note

	switch {
	case res.Candidate():
		res.Phase = models.PhaseAdmitted
	case above:
		res.Phase = models.PhaseArming
	default:
		res.Phase = models.PhaseBelowThreshold
	}
	return res
}

var _ domsvc.Evaluator = (*CustomEngine)(nil)
