package engine

import (
	"EntryGate/internal/domain/models"
	domsvc "EntryGate/internal/domain/service"
)

// Select returns the evaluator for a stored document: the custom engine for
// CUSTOM documents, the default rules otherwise.
func Select(v *models.VersionedConditions, def *DefaultEngine) domsvc.Evaluator {
	if v == nil || v.Document == nil || !v.Document.IsCustom() {
		return versioned{Evaluator: def, version: versionOf(v)}
	}
	return NewCustomEngine(v, def)
}

// versioned stamps the active document version onto default-engine results.
type versioned struct {
	domsvc.Evaluator
	version int64
}

func (v versioned) Evaluate(snap *models.IndicatorSnapshot, state *models.MarketState) models.Evaluation {
	ev := v.Evaluator.Evaluate(snap, state)
	ev.Version = v.version
	return ev
}

func versionOf(v *models.VersionedConditions) int64 {
	if v == nil {
		return 0
	}
	return v.Version
}
