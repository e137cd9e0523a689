package service

import "EntryGate/internal/domain/models"

// Evaluator turns one snapshot into a decision. Implementations may advance
// the streaks held in state and must not retain either argument.
type Evaluator interface {
	Name() string
	Evaluate(snap *models.IndicatorSnapshot, state *models.MarketState) models.Evaluation
}

// SnapshotDeriver fills bucketed and normalised states from raw readings.
type SnapshotDeriver interface {
	Derive(snap *models.IndicatorSnapshot) *models.IndicatorSnapshot
}
